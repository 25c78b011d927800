package ai

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/google/uuid"
)

const defaultOllamaHost = "http://127.0.0.1:11434"

// OllamaClient talks to a local Ollama runtime through /api/chat.
type OllamaClient struct {
	host string
	t    *transport
}

// NewOllamaClient targets host (default http://127.0.0.1:11434). Local
// models are slow to load but fail fast when absent, so retries are short.
func NewOllamaClient(host string, opts ...ClientOption) *OllamaClient {
	s := clientSettings{
		timeout:  60 * time.Second,
		attempts: 2,
		base:     200 * time.Millisecond,
		max:      time.Second,
		baseURL:  host,
	}.apply(opts)
	if s.baseURL == "" {
		s.baseURL = defaultOllamaHost
	}
	c := &OllamaClient{host: s.baseURL, t: s.transport()}
	c.t.netErr = func(err error) error { return &UnreachableError{Host: c.host, Err: err} }
	c.t.statusErr = ollamaStatusError
	return c
}

type ollamaChatRequest struct {
	Model    string         `json:"model"`
	Messages []Message      `json:"messages"`
	Stream   bool           `json:"stream"`
	Format   string         `json:"format,omitempty"`
	Options  map[string]any `json:"options,omitempty"`
}

type ollamaChatResponse struct {
	Message         Message `json:"message"`
	Done            bool    `json:"done"`
	PromptEvalCount int     `json:"prompt_eval_count"`
	EvalCount       int     `json:"eval_count"`
}

func toOllama(req GenerateRequest) ollamaChatRequest {
	out := ollamaChatRequest{Model: req.Model, Messages: req.Messages}
	if req.ResponseFormat != nil && req.ResponseFormat.Type == JSONObject.Type {
		out.Format = "json"
	}
	opts := map[string]any{}
	if req.Temperature > 0 {
		opts["temperature"] = req.Temperature
	}
	if req.MaxTokens > 0 {
		opts["num_predict"] = req.MaxTokens
	}
	if len(opts) > 0 {
		out.Options = opts
	}
	return out
}

// Generate sends a non-streaming chat request. Ollama reports token counts
// but no request ID, so one is minted locally for log correlation.
func (c *OllamaClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	if req.Model == "" {
		return nil, errors.New("model cannot be empty")
	}
	if len(req.Messages) == 0 {
		return nil, errors.New("messages cannot be empty")
	}
	var resp ollamaChatResponse
	if _, err := c.t.postJSON(ctx, c.host+"/api/chat", nil, toOllama(req), &resp); err != nil {
		return nil, err
	}
	return &GenerateResponse{
		Choices: []Choice{{Message: Message{Role: "assistant", Content: resp.Message.Content}}},
		Usage: Usage{
			PromptTokens:     resp.PromptEvalCount,
			CompletionTokens: resp.EvalCount,
			TotalTokens:      resp.PromptEvalCount + resp.EvalCount,
		},
		RequestID: "ollama-" + uuid.NewString(),
	}, nil
}

func ollamaStatusError(apiErr *APIError, resp *http.Response) error {
	switch sc := resp.StatusCode; {
	case sc == http.StatusNotFound:
		// Unpulled models answer 404.
		return &ModelNotFoundError{APIError: apiErr}
	case sc == http.StatusBadRequest:
		return &BadRequestError{APIError: apiErr}
	case sc >= 500:
		return &ServerError{APIError: apiErr}
	}
	return apiErr
}
