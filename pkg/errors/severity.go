// Package errors provides severity-aware error types for discovery runs.
package errors

import (
	stderrors "errors"
	"fmt"
)

// Severity indicates error impact level.
type Severity int

const (
	SeverityInfo Severity = iota
	SeverityWarning
	SeverityError
	SeverityFatal
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityWarning:
		return "warning"
	case SeverityError:
		return "error"
	case SeverityFatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// DiscoveryError is a structured error attributable to a (provider, unit)
// pair. Recoverable errors are recorded by the orchestrator without
// aborting sibling units; fatal errors abort their provider.
type DiscoveryError struct {
	Code        string   `json:"code"`
	Message     string   `json:"message"`
	Severity    Severity `json:"severity"`
	Provider    string   `json:"provider,omitempty"`
	Unit        string   `json:"unit,omitempty"`
	Recoverable bool     `json:"recoverable"`
	Err         error    `json:"-"`
}

func (e *DiscoveryError) Error() string {
	if e.Unit != "" {
		return fmt.Sprintf("[%s] %s: %s (unit: %s)", e.Severity, e.Code, e.Message, e.Unit)
	}
	return fmt.Sprintf("[%s] %s: %s", e.Severity, e.Code, e.Message)
}

func (e *DiscoveryError) Unwrap() error { return e.Err }

// Error codes
const (
	ErrCodeExploreFailed    = "EXPLORE_FAILED"
	ErrCodePermissionDenied = "PERMISSION_DENIED"
	ErrCodeMalformedPayload = "MALFORMED_PAYLOAD"
	ErrCodeBadScope         = "BAD_SCOPE"
	ErrCodeAuthFailed       = "AUTH_FAILED"
	ErrCodeQueryInvalid     = "QUERY_INVALID"
)

// NewExploreError wraps a transient provider failure for one unit.
func NewExploreError(provider, unit string, err error) *DiscoveryError {
	return &DiscoveryError{
		Code:        ErrCodeExploreFailed,
		Message:     fmt.Sprintf("exploration failed: %v", err),
		Severity:    SeverityError,
		Provider:    provider,
		Unit:        unit,
		Recoverable: true,
		Err:         err,
	}
}

// NewPermissionDeniedError marks a scoped query the caller is not allowed to
// run. Treated as an empty result plus a warning, never a hard failure.
func NewPermissionDeniedError(provider, unit string) *DiscoveryError {
	return &DiscoveryError{
		Code:        ErrCodePermissionDenied,
		Message:     "access denied for scoped query",
		Severity:    SeverityWarning,
		Provider:    provider,
		Unit:        unit,
		Recoverable: true,
	}
}

// NewMalformedPayloadError marks a provider response missing an expected
// field or shape. The unit is skipped, not failed.
func NewMalformedPayloadError(provider, unit, detail string) *DiscoveryError {
	return &DiscoveryError{
		Code:        ErrCodeMalformedPayload,
		Message:     fmt.Sprintf("unexpected payload shape: %s", detail),
		Severity:    SeverityWarning,
		Provider:    provider,
		Unit:        unit,
		Recoverable: true,
	}
}

// NewBadScopeError marks invalid scoping parameters. Fatal to the provider.
func NewBadScopeError(provider, detail string) *DiscoveryError {
	return &DiscoveryError{
		Code:        ErrCodeBadScope,
		Message:     detail,
		Severity:    SeverityFatal,
		Provider:    provider,
		Recoverable: false,
	}
}

// NewAuthError marks expired or invalid credentials. Fatal to the provider.
func NewAuthError(provider string, err error) *DiscoveryError {
	return &DiscoveryError{
		Code:        ErrCodeAuthFailed,
		Message:     fmt.Sprintf("authentication failed: %v", err),
		Severity:    SeverityFatal,
		Provider:    provider,
		Recoverable: false,
		Err:         err,
	}
}

// IsFatal reports whether err should abort its provider's exploration.
func IsFatal(err error) bool {
	var de *DiscoveryError
	if stderrors.As(err, &de) {
		return de.Severity == SeverityFatal
	}
	return false
}

// IsDenied reports whether err is a permission denial that should be
// downgraded to an empty result.
func IsDenied(err error) bool {
	var de *DiscoveryError
	if stderrors.As(err, &de) {
		return de.Code == ErrCodePermissionDenied
	}
	return false
}

// IsWarning reports whether err yields an empty result plus a warning
// rather than a recorded failure (denials, malformed payloads).
func IsWarning(err error) bool {
	var de *DiscoveryError
	if stderrors.As(err, &de) {
		return de.Severity == SeverityWarning
	}
	return false
}

// Code extracts the structured error code, or "" for plain errors.
func Code(err error) string {
	var de *DiscoveryError
	if stderrors.As(err, &de) {
		return de.Code
	}
	return ""
}
