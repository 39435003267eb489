package routing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

// StatusError is returned for HTTP responses with status >= 400.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("code %d: %s", e.Code, e.Body)
}

// Retryable reports whether the status is worth another attempt.
func (e *StatusError) Retryable() bool {
	switch e.Code {
	case 429, 500, 502, 503, 504:
		return true
	}
	return false
}

// secretParams are query parameters that carry provider credentials.
var secretParams = []string{"apikey", "apiKey", "api_key", "key", "signature", "client"}

// redact strips credentials from the URL that net/http embeds in *url.Error.
func redact(err error) error {
	var ue *url.Error
	if !errors.As(err, &ue) {
		return err
	}
	return &url.Error{Op: ue.Op, URL: redactURL(ue.URL), Err: ue.Err}
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "(unparsable url)"
	}
	q := u.Query()
	for _, k := range secretParams {
		if q.Has(k) {
			q.Set(k, "REDACTED")
		}
	}
	u.RawQuery = q.Encode()
	u.User = nil
	return u.String()
}

// Reason classifies a routing failure in words safe to show a client.
func Reason(err error) string {
	var se *StatusError
	var netErr net.Error
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNoRoute):
		return "no route found"
	case errors.Is(err, context.DeadlineExceeded):
		return "routing timed out"
	case errors.Is(err, context.Canceled):
		return "routing cancelled"
	case errors.As(err, &se):
		return fmt.Sprintf("routing provider returned %d", se.Code)
	case errors.As(err, &netErr):
		return "routing provider unreachable"
	}
	return "routing failed"
}

type httpClient struct {
	http        *http.Client
	limiter     *rate.Limiter
	maxAttempts int
	backoff     time.Duration
}

func (c *httpClient) do(req *http.Request) (*http.Response, error) {
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, redact(err)
	}
	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(b))}
	}
	return resp, nil
}

// getJSON issues a GET and decodes the body into out. Network errors and
// 429/5xx responses are retried with exponential backoff; every attempt
// waits on the rate limiter first.
func (c *httpClient) getJSON(ctx context.Context, rawURL string, header http.Header, out any) error {
	backoff := c.backoff
	attempts := c.maxAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 1; attempt <= attempts; attempt++ {
		if c.limiter != nil {
			if err := c.limiter.Wait(ctx); err != nil {
				return err
			}
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")
		for k, vs := range header {
			for _, v := range vs {
				req.Header.Add(k, v)
			}
		}

		resp, err := c.do(req)
		if err == nil {
			defer resp.Body.Close()
			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return fmt.Errorf("decode response: %w", err)
			}
			return nil
		}
		lastErr = err

		retry := false
		var se *StatusError
		if errors.As(err, &se) {
			retry = se.Retryable()
		}
		var netErr net.Error
		if !retry && errors.As(err, &netErr) {
			retry = true
		}
		if !retry || attempt == attempts {
			return lastErr
		}

		timer := time.NewTimer(backoff)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
		backoff *= 2
	}
	return lastErr
}
