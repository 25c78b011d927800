package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOllamaGenerate(t *testing.T) {
	var captured ollamaChatRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			http.NotFound(w, r)
			return
		}
		_ = json.NewDecoder(r.Body).Decode(&captured)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"message":           map[string]any{"role": "assistant", "content": `{"kpis":[]}`},
			"done":              true,
			"prompt_eval_count": 120,
			"eval_count":        30,
		})
	}))
	defer srv.Close()

	msgs := []Message{
		{Role: "system", Content: "You design dashboards"},
		{Role: "user", Content: "Columns: entrada, venda"},
		{Role: "assistant", Content: "{}"},
		{Role: "user", Content: "Again, with a funnel"},
	}
	c := NewOllamaClient(srv.URL, WithRetries(1, 0, 0))
	resp, err := c.Generate(context.Background(), GenerateRequest{
		Model:          "llama3.1:8b",
		Messages:       msgs,
		ResponseFormat: JSONObject,
		MaxTokens:      64,
		Temperature:    0.2,
	})
	require.NoError(t, err)

	assert.Equal(t, msgs, captured.Messages)
	assert.False(t, captured.Stream)
	assert.Equal(t, "json", captured.Format)
	assert.Equal(t, float64(64), captured.Options["num_predict"])
	assert.Equal(t, 0.2, captured.Options["temperature"])

	assert.Equal(t, `{"kpis":[]}`, resp.Content())
	assert.Equal(t, 150, resp.Usage.TotalTokens)
	assert.True(t, strings.HasPrefix(resp.RequestID, "ollama-"), resp.RequestID)
}

func TestOllamaOmitsEmptyOptions(t *testing.T) {
	req := toOllama(GenerateRequest{Model: "m", Messages: hello})
	assert.Nil(t, req.Options)
	assert.Empty(t, req.Format)
}

func TestOllamaStatusErrors(t *testing.T) {
	cases := []struct {
		status int
		check  func(*testing.T, error)
	}{
		{http.StatusNotFound, func(t *testing.T, err error) {
			var e *ModelNotFoundError
			assert.ErrorAs(t, err, &e)
		}},
		{http.StatusBadRequest, func(t *testing.T, err error) {
			var e *BadRequestError
			assert.ErrorAs(t, err, &e)
		}},
		{http.StatusInternalServerError, func(t *testing.T, err error) {
			var e *ServerError
			assert.ErrorAs(t, err, &e)
		}},
	}
	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			srv, _ := scripted(t, "/api/chat", reply{status: tc.status, body: map[string]any{"error": "nope"}})
			c := NewOllamaClient(srv.URL, WithRetries(1, 0, 0))
			_, err := c.Generate(context.Background(), GenerateRequest{Model: "llama3.1:8b", Messages: hello})
			require.Error(t, err)
			assert.Contains(t, err.Error(), "nope")
			tc.check(t, err)
		})
	}
}

func TestOllamaValidatesRequest(t *testing.T) {
	c := NewOllamaClient("")
	assert.Equal(t, defaultOllamaHost, c.host)

	_, err := c.Generate(context.Background(), GenerateRequest{Model: "llama3.1:8b"})
	assert.EqualError(t, err, "messages cannot be empty")
	_, err = c.Generate(context.Background(), GenerateRequest{Messages: hello})
	assert.EqualError(t, err, "model cannot be empty")
}

func TestOllamaUnreachable(t *testing.T) {
	c := NewOllamaClient("http://127.0.0.1:1", WithHTTPTimeout(time.Second), WithRetries(1, 0, 0))
	_, err := c.Generate(context.Background(), GenerateRequest{Model: "llama3.1:8b", Messages: hello})
	var ue *UnreachableError
	require.ErrorAs(t, err, &ue)
	assert.Equal(t, "http://127.0.0.1:1", ue.Host)
}
