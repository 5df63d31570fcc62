// Package pathquery evaluates declarative selectors against the serialized
// discovery document. Selectors filter the resources sequence on metadata
// and payload fields, then optionally project a nested leaf out of every
// filtered resource:
//
//	$.resources[?@.meta.kind=='instance']
//	$.resources[?@.meta.kind=='instance'].meta.name
//	$.resources[?@.meta.kind=='global-backend-service' && @.struct.selfLink=='...'].struct.backends.*.group
//	$.resources[?@.meta.kind=='cloudrun' && @.meta.name contains 'web']
//	$.resources[?match(@.meta.name, 'projects/.*/slo/.*')]
//
// Keys containing dots or slashes are bracket-quoted: .['cloud.google.com/gke-nodepool'].
// This is a purpose-built selector, not a general query language: equality,
// containment, regex predicates, dotted descent and wildcard projection are
// the only operations.
package pathquery

import (
	"fmt"
	"regexp"
	"strings"

	"cloud-atlas/pkg/errors"
)

type opKind int

const (
	opEq opKind = iota
	opContains
	opMatch
)

type predicate struct {
	path    []segment
	op      opKind
	literal string
	re      *regexp.Regexp
}

type segment struct {
	key      string
	wildcard bool
}

// Selector is a parsed path query.
type Selector struct {
	source     string
	predicates []predicate
	projection []segment
}

func invalidQuery(source, detail string) error {
	return &errors.DiscoveryError{
		Code:        errors.ErrCodeQueryInvalid,
		Message:     fmt.Sprintf("invalid selector %q: %s", source, detail),
		Severity:    errors.SeverityError,
		Recoverable: false,
	}
}

// Parse compiles a selector string. Syntax errors (including invalid regex
// literals) are reported here, before any evaluation touches the document.
func Parse(input string) (*Selector, error) {
	const root = "$.resources["
	rest, ok := strings.CutPrefix(input, root)
	if !ok {
		return nil, invalidQuery(input, "selector must start with $.resources[")
	}
	rest, ok = strings.CutPrefix(rest, "?")
	if !ok {
		return nil, invalidQuery(input, "expected filter expression [?...]")
	}

	filter, remainder, err := scanToBracket(rest)
	if err != nil {
		return nil, invalidQuery(input, err.Error())
	}

	sel := &Selector{source: input}
	for _, clause := range splitOutsideQuotes(filter, "&&") {
		pred, err := parsePredicate(clause)
		if err != nil {
			return nil, invalidQuery(input, err.Error())
		}
		sel.predicates = append(sel.predicates, pred)
	}
	if len(sel.predicates) == 0 {
		return nil, invalidQuery(input, "empty filter expression")
	}

	if remainder != "" {
		proj, ok := strings.CutPrefix(remainder, ".")
		if !ok {
			return nil, invalidQuery(input, "projection must start with '.'")
		}
		segs, err := parseFieldPath(proj)
		if err != nil {
			return nil, invalidQuery(input, err.Error())
		}
		sel.projection = segs
	}
	return sel, nil
}

// scanToBracket returns the filter body up to the matching close bracket,
// plus whatever follows it. Single-quoted literals and nested brackets (a
// bracket-quoted key inside the filter) are skipped over.
func scanToBracket(s string) (body, remainder string, err error) {
	inQuote := false
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '\'':
			inQuote = !inQuote
		case '[':
			if !inQuote {
				depth++
			}
		case ']':
			if inQuote {
				continue
			}
			if depth > 0 {
				depth--
				continue
			}
			return s[:i], s[i+1:], nil
		}
	}
	return "", "", fmt.Errorf("unterminated filter expression")
}

func splitOutsideQuotes(s, sep string) []string {
	var parts []string
	inQuote := false
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '\'' {
			inQuote = !inQuote
			continue
		}
		if !inQuote && strings.HasPrefix(s[i:], sep) {
			parts = append(parts, s[start:i])
			i += len(sep) - 1
			start = i + 1
		}
	}
	parts = append(parts, s[start:])
	return parts
}

func parsePredicate(clause string) (predicate, error) {
	clause = strings.TrimSpace(clause)

	if inner, ok := strings.CutPrefix(clause, "match("); ok {
		inner, ok = strings.CutSuffix(inner, ")")
		if !ok {
			return predicate{}, fmt.Errorf("unterminated match() predicate")
		}
		args := splitOutsideQuotes(inner, ",")
		if len(args) != 2 {
			return predicate{}, fmt.Errorf("match() takes a field path and a pattern")
		}
		path, err := parsePredicatePath(args[0])
		if err != nil {
			return predicate{}, err
		}
		pattern, err := unquote(args[1])
		if err != nil {
			return predicate{}, err
		}
		re, err := regexp.Compile(pattern)
		if err != nil {
			return predicate{}, fmt.Errorf("bad pattern %q: %v", pattern, err)
		}
		return predicate{path: path, op: opMatch, literal: pattern, re: re}, nil
	}

	if left, right, found := cutOutsideQuotes(clause, "=="); found {
		return buildComparison(left, right, opEq)
	}
	if left, right, found := cutOutsideQuotes(clause, " contains "); found {
		return buildComparison(left, right, opContains)
	}
	return predicate{}, fmt.Errorf("unrecognized predicate %q", clause)
}

func cutOutsideQuotes(s, sep string) (left, right string, found bool) {
	inQuote := false
	for i := 0; i+len(sep) <= len(s); i++ {
		if s[i] == '\'' {
			inQuote = !inQuote
			continue
		}
		if !inQuote && s[i:i+len(sep)] == sep {
			return s[:i], s[i+len(sep):], true
		}
	}
	return "", "", false
}

func buildComparison(left, right string, op opKind) (predicate, error) {
	path, err := parsePredicatePath(left)
	if err != nil {
		return predicate{}, err
	}
	literal, err := unquote(right)
	if err != nil {
		return predicate{}, err
	}
	return predicate{path: path, op: op, literal: literal}, nil
}

func parsePredicatePath(s string) ([]segment, error) {
	s = strings.TrimSpace(s)
	body, ok := strings.CutPrefix(s, "@.")
	if !ok {
		return nil, fmt.Errorf("field path must start with @. in %q", s)
	}
	segs, err := parseFieldPath(body)
	if err != nil {
		return nil, err
	}
	for _, seg := range segs {
		if seg.wildcard {
			return nil, fmt.Errorf("wildcard not allowed in a filter path: %q", s)
		}
	}
	return segs, nil
}

func unquote(s string) (string, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '\'' || s[len(s)-1] != '\'' {
		return "", fmt.Errorf("expected single-quoted literal, got %q", s)
	}
	return s[1 : len(s)-1], nil
}

// parseFieldPath splits a dotted descent into segments. A segment is a plain
// key, a '*' wildcard, or a bracket-quoted key for names that contain dots.
func parseFieldPath(s string) ([]segment, error) {
	var segs []segment
	for len(s) > 0 {
		if strings.HasPrefix(s, "['") {
			end := strings.Index(s, "']")
			if end < 0 {
				return nil, fmt.Errorf("unterminated bracket-quoted key in %q", s)
			}
			segs = append(segs, segment{key: s[2:end]})
			s = s[end+2:]
			if rest, ok := strings.CutPrefix(s, "."); ok {
				s = rest
			} else if len(s) > 0 {
				return nil, fmt.Errorf("expected '.' after bracket-quoted key in %q", s)
			}
			continue
		}
		var tok string
		if dot := strings.IndexByte(s, '.'); dot >= 0 {
			tok, s = s[:dot], s[dot+1:]
		} else {
			tok, s = s, ""
		}
		if tok == "" {
			return nil, fmt.Errorf("empty path segment")
		}
		if tok == "*" {
			segs = append(segs, segment{wildcard: true})
		} else {
			segs = append(segs, segment{key: tok})
		}
	}
	if len(segs) == 0 {
		return nil, fmt.Errorf("empty field path")
	}
	return segs, nil
}
