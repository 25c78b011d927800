package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net"
	"net/http"
	"time"
)

// ClientOption tunes an HTTP runtime client.
type ClientOption func(*clientSettings)

type clientSettings struct {
	timeout  time.Duration
	attempts int
	base     time.Duration
	max      time.Duration
	baseURL  string
}

// WithHTTPTimeout bounds a single HTTP exchange. Zero keeps the default.
func WithHTTPTimeout(d time.Duration) ClientOption {
	return func(s *clientSettings) {
		if d > 0 {
			s.timeout = d
		}
	}
}

// WithRetries sets the attempt budget and backoff range. Non-positive values
// keep the client's defaults.
func WithRetries(attempts int, base, max time.Duration) ClientOption {
	return func(s *clientSettings) {
		if attempts > 0 {
			s.attempts = attempts
		}
		if base > 0 {
			s.base = base
		}
		if max > 0 {
			s.max = max
		}
	}
}

// WithBaseURL points the client at another endpoint, e.g. a test server.
func WithBaseURL(u string) ClientOption {
	return func(s *clientSettings) {
		if u != "" {
			s.baseURL = u
		}
	}
}

func (s clientSettings) apply(opts []ClientOption) clientSettings {
	for _, o := range opts {
		o(&s)
	}
	return s
}

func (s clientSettings) transport() *transport {
	return &transport{
		http:   &http.Client{Timeout: s.timeout},
		policy: backoff{attempts: s.attempts, base: s.base, max: s.max},
	}
}

// transient marks an error worth another attempt. wait, when set, is the
// delay the server asked for.
type transient struct {
	err  error
	wait time.Duration
}

func (t *transient) Error() string { return t.err.Error() }
func (t *transient) Unwrap() error { return t.err }

// backoff retries transient failures with capped, jittered exponential delays.
type backoff struct {
	attempts int
	base     time.Duration
	max      time.Duration
}

func (b backoff) delay(attempt int) time.Duration {
	d := b.base << (attempt - 1)
	if d <= 0 {
		d = b.base
	}
	d = time.Duration(float64(d) * (0.8 + rand.Float64()*0.4))
	if b.max > 0 && d > b.max {
		d = b.max
	}
	return d
}

func (b backoff) run(ctx context.Context, call func() error) error {
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := call()
		var tr *transient
		if !errors.As(err, &tr) {
			return err
		}
		if attempt >= b.attempts {
			return tr.err
		}
		wait := tr.wait
		if wait <= 0 {
			wait = b.delay(attempt)
		}
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// transport posts JSON and decodes JSON, retrying transient failures.
type transport struct {
	http   *http.Client
	policy backoff
	// netErr wraps dial and read failures; nil leaves them as "http request" errors.
	netErr func(error) error
	// statusErr maps a non-2xx response (body already parsed) to a typed error.
	statusErr func(*APIError, *http.Response) error
}

// postJSON sends body to url and decodes a 2xx reply into out. It returns
// the response headers of the successful exchange.
func (t *transport) postJSON(ctx context.Context, url string, header http.Header, body, out any) (http.Header, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	var got http.Header
	err = t.policy.run(ctx, func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
		if err != nil {
			return fmt.Errorf("build request: %w", err)
		}
		for k, vs := range header {
			req.Header[k] = vs
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := t.http.Do(req)
		if err != nil {
			wrapped := fmt.Errorf("http request: %w", err)
			if t.netErr != nil {
				wrapped = t.netErr(err)
			}
			if temporaryNetErr(err) {
				return &transient{err: wrapped}
			}
			return wrapped
		}
		defer resp.Body.Close()

		if resp.StatusCode < 200 || resp.StatusCode > 299 {
			apiErr := readAPIError(resp)
			var typed error = apiErr
			if t.statusErr != nil {
				typed = t.statusErr(apiErr, resp)
			}
			if retryable(resp.StatusCode) {
				return &transient{err: typed, wait: retryAfter(resp)}
			}
			return typed
		}
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			return &transient{err: fmt.Errorf("decode response: %w", err)}
		}
		got = resp.Header
		return nil
	})
	return got, err
}

func temporaryNetErr(err error) bool {
	var nerr net.Error
	if errors.As(err, &nerr) && nerr.Timeout() {
		return true
	}
	return errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)
}
