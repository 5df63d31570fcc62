package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// HTTPClient is a retrying JSON client used by REST-based explorers. The
// underlying http.Client may carry an authorizing transport (oauth2).
type HTTPClient struct {
	Client  *http.Client
	BaseURL string
	Retries int
	Timeout time.Duration
	Logger  *slog.Logger
}

func NewHTTPClient(base *http.Client, baseURL string, retries int, timeout time.Duration) *HTTPClient {
	if base == nil {
		base = &http.Client{}
	}
	base.Timeout = timeout
	return &HTTPClient{
		Client:  base,
		BaseURL: baseURL,
		Retries: retries,
		Timeout: timeout,
		Logger:  slog.Default(),
	}
}

// StatusError carries a non-2xx response status.
type StatusError struct {
	StatusCode int
	URL        string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("unexpected status %d from %s", e.StatusCode, e.URL)
}

// GetJSON fetches path (relative to BaseURL) and decodes the response body
// into a generic map. Server errors are retried with exponential backoff;
// 4xx responses are returned immediately as a StatusError so callers can
// classify denials.
func (c *HTTPClient) GetJSON(ctx context.Context, path string, params url.Values) (map[string]interface{}, error) {
	full := c.BaseURL + path
	if len(params) > 0 {
		full += "?" + params.Encode()
	}

	var resp *http.Response
	var err error

	for i := 0; ; i++ {
		req, rErr := http.NewRequestWithContext(ctx, http.MethodGet, full, nil)
		if rErr != nil {
			return nil, rErr
		}
		req.Header.Set("Accept", "application/json")

		resp, err = c.Client.Do(req)
		if err == nil && resp.StatusCode < 500 {
			break
		}
		// retried responses are drained and closed here, the one that
		// breaks the loop below
		status := 0
		if resp != nil {
			status = resp.StatusCode
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
		}
		if i == c.Retries {
			if err != nil {
				return nil, fmt.Errorf("request failed after %d retries: %w", c.Retries, err)
			}
			return nil, &StatusError{StatusCode: status, URL: full}
		}
		c.Logger.Warn("HTTP request failed, retrying", "url", full, "attempt", i+1, "error", err)
		select {
		case <-time.After(time.Duration(1<<i) * 200 * time.Millisecond): // Exponential backoff
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		io.Copy(io.Discard, resp.Body)
		return nil, &StatusError{StatusCode: resp.StatusCode, URL: full}
	}

	var payload map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("decode response from %s: %w", full, err)
	}
	return payload, nil
}
