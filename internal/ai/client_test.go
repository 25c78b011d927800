package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// reply is one canned answer from a fake completion endpoint.
type reply struct {
	status int
	header http.Header
	body   any
}

// scripted serves replies in order and repeats the last one.
func scripted(t *testing.T, path string, replies ...reply) (*httptest.Server, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != path {
			http.NotFound(w, r)
			return
		}
		i := int(atomic.AddInt32(&calls, 1)) - 1
		if i >= len(replies) {
			i = len(replies) - 1
		}
		rp := replies[i]
		for k, vs := range rp.header {
			w.Header()[k] = vs
		}
		w.WriteHeader(rp.status)
		_ = json.NewEncoder(w).Encode(rp.body)
	}))
	t.Cleanup(srv.Close)
	return srv, &calls
}

func planReply(content string) reply {
	return reply{status: http.StatusOK, body: GenerateResponse{
		ID:      "gen-1",
		Choices: []Choice{{Message: Message{Role: "assistant", Content: content}}},
		Usage:   Usage{PromptTokens: 10, CompletionTokens: 5, TotalTokens: 15},
	}}
}

func errorReply(status int, msg, code string) reply {
	return reply{status: status, body: map[string]any{"error": map[string]any{"message": msg, "code": code}}}
}

var hello = []Message{{Role: "user", Content: "plan this dataset"}}

func TestOpenRouterRetriesRateLimit(t *testing.T) {
	srv, calls := scripted(t, "/chat/completions",
		reply{status: http.StatusTooManyRequests, header: http.Header{"Retry-After": {"0"}}, body: map[string]any{"error": "slow down"}},
		planReply(`{"kpis":[]}`),
	)
	c := NewOpenRouterClient("key", WithBaseURL(srv.URL), WithRetries(3, 10*time.Millisecond, 50*time.Millisecond))

	resp, err := c.Generate(context.Background(), GenerateRequest{Model: "m", Messages: hello})
	require.NoError(t, err)
	assert.Equal(t, `{"kpis":[]}`, resp.Content())
	assert.Equal(t, 15, resp.Usage.TotalTokens)
	assert.EqualValues(t, 2, atomic.LoadInt32(calls))
}

func TestOpenRouterHonorsRetryAfter(t *testing.T) {
	srv, _ := scripted(t, "/chat/completions",
		reply{status: http.StatusTooManyRequests, header: http.Header{"Retry-After": {"1"}}, body: map[string]any{}},
		planReply("ok"),
	)
	c := NewOpenRouterClient("key", WithBaseURL(srv.URL), WithRetries(3, time.Millisecond, time.Millisecond))

	start := time.Now()
	_, err := c.Generate(context.Background(), GenerateRequest{Model: "m", Messages: hello})
	require.NoError(t, err)
	assert.GreaterOrEqual(t, time.Since(start), 900*time.Millisecond)
}

func TestOpenRouterGivesUpAfterAttempts(t *testing.T) {
	srv, calls := scripted(t, "/chat/completions", errorReply(http.StatusBadGateway, "upstream", ""))
	c := NewOpenRouterClient("key", WithBaseURL(srv.URL), WithRetries(2, time.Millisecond, time.Millisecond))

	_, err := c.Generate(context.Background(), GenerateRequest{Model: "m", Messages: hello})
	var se *ServerError
	require.ErrorAs(t, err, &se)
	assert.EqualValues(t, 2, atomic.LoadInt32(calls))
}

func TestOpenRouterErrorCarriesRequestID(t *testing.T) {
	rp := errorReply(http.StatusBadRequest, "bad req", "bad_request")
	rp.header = http.Header{"X-Request-Id": {"req_test_123"}}
	srv, calls := scripted(t, "/chat/completions", rp)
	c := NewOpenRouterClient("key", WithBaseURL(srv.URL))

	_, err := c.Generate(context.Background(), GenerateRequest{Model: "m", Messages: hello})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "req_test_123")
	var br *BadRequestError
	assert.ErrorAs(t, err, &br)
	assert.EqualValues(t, 1, atomic.LoadInt32(calls), "400 must not be retried")
}

func TestOpenRouterErrorClassification(t *testing.T) {
	cases := []struct {
		name  string
		reply reply
		check func(*testing.T, error)
	}{
		{"auth", errorReply(http.StatusUnauthorized, "no key", ""), func(t *testing.T, err error) {
			var e *AuthError
			assert.ErrorAs(t, err, &e)
		}},
		{"model", errorReply(http.StatusNotFound, "model not found", "model_not_found"), func(t *testing.T, err error) {
			var e *ModelNotFoundError
			assert.ErrorAs(t, err, &e)
		}},
		{"quota", errorReply(http.StatusPaymentRequired, "quota exhausted", ""), func(t *testing.T, err error) {
			var e *QuotaExceededError
			assert.ErrorAs(t, err, &e)
		}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv, _ := scripted(t, "/chat/completions", tc.reply)
			c := NewOpenRouterClient("key", WithBaseURL(srv.URL), WithRetries(1, 0, 0))
			_, err := c.Generate(context.Background(), GenerateRequest{Model: "m", Messages: hello})
			require.Error(t, err)
			tc.check(t, err)
		})
	}
}

func TestOpenRouterSendsHeadersAndFormat(t *testing.T) {
	var got GenerateRequest
	var auth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		auth = r.Header.Get("Authorization")
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Openrouter-Request-ID", "or-42")
		_ = json.NewEncoder(w).Encode(GenerateResponse{Choices: []Choice{{Message: Message{Content: "{}"}}}})
	}))
	defer srv.Close()

	c := NewOpenRouterClient("secret", WithBaseURL(srv.URL))
	resp, err := c.Generate(context.Background(), GenerateRequest{Model: "m", Messages: hello, ResponseFormat: JSONObject, MaxTokens: 64})
	require.NoError(t, err)
	assert.Equal(t, "Bearer secret", auth)
	require.NotNil(t, got.ResponseFormat)
	assert.Equal(t, "json_object", got.ResponseFormat.Type)
	assert.Equal(t, 64, got.MaxTokens)
	assert.Equal(t, "or-42", resp.RequestID)
}

func TestOpenRouterRejectsMissingInputs(t *testing.T) {
	_, err := NewOpenRouterClient("").Generate(context.Background(), GenerateRequest{Model: "m"})
	assert.ErrorContains(t, err, "OPENROUTER_API_KEY")

	_, err = NewOpenRouterClient("key").Generate(context.Background(), GenerateRequest{})
	assert.ErrorContains(t, err, "model cannot be empty")
}

func TestOpenRouterStopsOnCancel(t *testing.T) {
	srv, _ := scripted(t, "/chat/completions",
		reply{status: http.StatusServiceUnavailable, header: http.Header{"Retry-After": {"30"}}, body: map[string]any{}})
	c := NewOpenRouterClient("key", WithBaseURL(srv.URL), WithRetries(5, 0, 0))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err := c.Generate(ctx, GenerateRequest{Model: "m", Messages: hello})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestBackoffDelayIsCapped(t *testing.T) {
	b := backoff{attempts: 10, base: 100 * time.Millisecond, max: 400 * time.Millisecond}
	first := b.delay(1)
	assert.GreaterOrEqual(t, first, 80*time.Millisecond)
	assert.LessOrEqual(t, first, 120*time.Millisecond)
	assert.Equal(t, 400*time.Millisecond, b.delay(8))
}

func TestReadAPIErrorShapes(t *testing.T) {
	cases := []struct {
		name, body, msg, code string
	}{
		{"nested", `{"error":{"message":"No auth credentials found","code":401}}`, "No auth credentials found", "401"},
		{"flat", `{"error":"model 'llama9' not found, try pulling it first"}`, "model 'llama9' not found, try pulling it first", ""},
		{"top level", `{"message":"overloaded","code":"server_busy"}`, "overloaded", "server_busy"},
		{"plain text", "upstream connect error\n", "upstream connect error", ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			rec.Header().Set("X-Request-Id", "req-9")
			rec.WriteHeader(http.StatusBadGateway)
			_, _ = rec.WriteString(tc.body)

			e := readAPIError(rec.Result())
			assert.Equal(t, http.StatusBadGateway, e.StatusCode)
			assert.Equal(t, tc.msg, e.Message)
			assert.Equal(t, tc.code, e.Code)
			assert.Equal(t, "req-9", e.RequestID)
		})
	}
}

func TestRetryAfterParsing(t *testing.T) {
	resp := &http.Response{Header: http.Header{}}
	assert.Zero(t, retryAfter(resp))

	resp.Header.Set("Retry-After", "3")
	assert.Equal(t, 3*time.Second, retryAfter(resp))

	resp.Header.Set("Retry-After", time.Now().Add(-time.Minute).UTC().Format(http.TimeFormat))
	assert.Zero(t, retryAfter(resp))

	resp.Header.Set("Retry-After", "soon")
	assert.Zero(t, retryAfter(resp))
}
