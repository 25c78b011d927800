package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// ErrNoPlan is returned when the model answered without a usable JSON plan.
var ErrNoPlan = errors.New("model returned no usable plan")

// APIError is a non-2xx provider reply. The typed errors below wrap it so
// callers can branch with errors.As.
type APIError struct {
	StatusCode int            `json:"-"`
	Code       string         `json:"code,omitempty"`
	Message    string         `json:"message,omitempty"`
	Raw        map[string]any `json:"-"`
	RequestID  string         `json:"-"`
}

func (e *APIError) Error() string {
	parts := []string{"api error: status=" + strconv.Itoa(e.StatusCode)}
	for _, kv := range [][2]string{{"code", e.Code}, {"request_id", e.RequestID}, {"message", e.Message}} {
		if kv[1] != "" {
			parts = append(parts, kv[0]+"="+kv[1])
		}
	}
	return strings.Join(parts, " ")
}

type (
	// AuthError is a 401/403: missing, invalid or unauthorized key.
	AuthError struct{ *APIError }
	// ModelNotFoundError means the model id is unknown or not pulled locally.
	ModelNotFoundError struct{ *APIError }
	// BadRequestError is a 400 the provider rejected as malformed.
	BadRequestError struct{ *APIError }
	// QuotaExceededError covers billing and credit exhaustion.
	QuotaExceededError struct{ *APIError }
	// ServerError is a provider-side 5xx.
	ServerError struct{ *APIError }
)

func (e *AuthError) Error() string          { return "authentication failed: " + e.APIError.Error() }
func (e *ModelNotFoundError) Error() string { return "model not found: " + e.APIError.Error() }
func (e *BadRequestError) Error() string    { return "bad request: " + e.APIError.Error() }
func (e *QuotaExceededError) Error() string { return "quota exceeded: " + e.APIError.Error() }
func (e *ServerError) Error() string        { return "provider error: " + e.APIError.Error() }

func (e *AuthError) Unwrap() error          { return e.APIError }
func (e *ModelNotFoundError) Unwrap() error { return e.APIError }
func (e *BadRequestError) Unwrap() error    { return e.APIError }
func (e *QuotaExceededError) Unwrap() error { return e.APIError }
func (e *ServerError) Unwrap() error        { return e.APIError }

// RateLimitError is a 429. RetryAfter is the server's requested wait, if any.
type RateLimitError struct {
	*APIError
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limited (retry in %s): %s", e.RetryAfter, e.APIError.Error())
	}
	return "rate limited: " + e.APIError.Error()
}

func (e *RateLimitError) Unwrap() error { return e.APIError }

// UnreachableError means no HTTP exchange happened at all, typically a local
// Ollama that is not running.
type UnreachableError struct {
	Host string
	Err  error
}

func (e *UnreachableError) Error() string {
	if e.Host == "" {
		return fmt.Sprintf("endpoint unreachable: %v", e.Err)
	}
	return fmt.Sprintf("endpoint unreachable at %s: %v", e.Host, e.Err)
}

func (e *UnreachableError) Unwrap() error { return e.Err }

// errorBody covers both provider shapes: OpenRouter nests
// {"error":{"message","code"}}, Ollama sends {"error":"..."}.
type errorBody struct {
	Error   json.RawMessage `json:"error"`
	Message string          `json:"message"`
	Code    any             `json:"code"`
}

// readAPIError drains at most 8KiB of a non-2xx response into an APIError.
func readAPIError(resp *http.Response) *APIError {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 8<<10))
	e := &APIError{StatusCode: resp.StatusCode, RequestID: requestIDFrom(resp.Header)}
	_ = json.Unmarshal(data, &e.Raw)

	var body errorBody
	if json.Unmarshal(data, &body) != nil {
		e.Message = strings.TrimSpace(string(data))
		return e
	}
	e.Message, e.Code = body.Message, codeString(body.Code)
	var nested errorBody
	var flat string
	switch {
	case json.Unmarshal(body.Error, &flat) == nil:
		e.Message = flat
	case json.Unmarshal(body.Error, &nested) == nil:
		if nested.Message != "" {
			e.Message = nested.Message
		}
		if c := codeString(nested.Code); c != "" {
			e.Code = c
		}
	}
	return e
}

// codeString accepts string or numeric error codes.
func codeString(v any) string {
	switch c := v.(type) {
	case string:
		return c
	case float64:
		return strconv.Itoa(int(c))
	}
	return ""
}

// classifyAPIError maps an OpenRouter reply to a typed error.
func classifyAPIError(e *APIError, resp *http.Response) error {
	msg := strings.ToLower(e.Message)
	switch sc := e.StatusCode; {
	case sc == http.StatusUnauthorized || sc == http.StatusForbidden:
		return &AuthError{e}
	case sc == http.StatusTooManyRequests:
		return &RateLimitError{APIError: e, RetryAfter: retryAfter(resp)}
	case sc == http.StatusNotFound && (e.Code == "model_not_found" || mentionsAll(msg, "model", "not", "found")):
		return &ModelNotFoundError{e}
	case sc == http.StatusNotFound:
		return e
	case sc == http.StatusBadRequest:
		return &BadRequestError{e}
	case sc == http.StatusPaymentRequired || e.Code == "quota_exceeded" || mentionsAny(msg, "quota", "billing", "limit exceeded"):
		return &QuotaExceededError{e}
	case sc >= 500:
		return &ServerError{e}
	}
	return e
}

func retryable(status int) bool {
	return status == http.StatusTooManyRequests || status >= 500
}

// retryAfter reads Retry-After as delta-seconds or an HTTP date.
func retryAfter(resp *http.Response) time.Duration {
	if resp == nil {
		return 0
	}
	v := strings.TrimSpace(resp.Header.Get("Retry-After"))
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		return time.Duration(max(secs, 0)) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		return max(time.Until(at).Truncate(time.Second), 0)
	}
	return 0
}

func mentionsAll(s string, words ...string) bool {
	for _, w := range words {
		if !strings.Contains(s, w) {
			return false
		}
	}
	return true
}

func mentionsAny(s string, words ...string) bool {
	for _, w := range words {
		if strings.Contains(s, w) {
			return true
		}
	}
	return false
}

// requestIDFrom pulls a best-effort request ID from common headers.
func requestIDFrom(h http.Header) string {
	for _, k := range []string{"X-Request-Id", "OpenAI-Request-ID", "Openrouter-Request-ID", "X-Amzn-Requestid"} {
		if v := h.Get(k); v != "" {
			return v
		}
	}
	return ""
}
