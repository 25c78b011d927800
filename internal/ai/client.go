package ai

import (
	"context"
	"errors"
	"net/http"
	"time"
)

// Message is one chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ResponseFormat asks the provider to constrain output, e.g. {"type":"json_object"}.
type ResponseFormat struct {
	Type string `json:"type"`
}

// JSONObject requests a single JSON object as output.
var JSONObject = &ResponseFormat{Type: "json_object"}

// GenerateRequest is the provider-neutral chat request. Its JSON form is the
// OpenAI-compatible body OpenRouter accepts.
type GenerateRequest struct {
	Model          string          `json:"model"`
	Messages       []Message       `json:"messages"`
	MaxTokens      int             `json:"max_tokens,omitempty"`
	Temperature    float64         `json:"temperature,omitempty"`
	ResponseFormat *ResponseFormat `json:"response_format,omitempty"`
}

type Usage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

type Choice struct {
	Message Message `json:"message"`
}

type GenerateResponse struct {
	ID        string   `json:"id"`
	Choices   []Choice `json:"choices"`
	Usage     Usage    `json:"usage"`
	RequestID string   `json:"-"`
}

// Content returns the first choice's text, or "".
func (r *GenerateResponse) Content() string {
	if r == nil || len(r.Choices) == 0 {
		return ""
	}
	return r.Choices[0].Message.Content
}

const openRouterURL = "https://openrouter.ai/api/v1"

// OpenRouterClient calls the OpenRouter chat completions endpoint.
type OpenRouterClient struct {
	apiKey  string
	baseURL string
	t       *transport
}

// NewOpenRouterClient defaults to a 60s timeout and three attempts with
// 500ms to 4s backoff.
func NewOpenRouterClient(apiKey string, opts ...ClientOption) *OpenRouterClient {
	s := clientSettings{
		timeout:  60 * time.Second,
		attempts: 3,
		base:     500 * time.Millisecond,
		max:      4 * time.Second,
		baseURL:  openRouterURL,
	}.apply(opts)
	t := s.transport()
	t.statusErr = classifyAPIError
	return &OpenRouterClient{apiKey: apiKey, baseURL: s.baseURL, t: t}
}

// Generate sends one non-streaming completion request.
func (c *OpenRouterClient) Generate(ctx context.Context, req GenerateRequest) (*GenerateResponse, error) {
	switch {
	case c.apiKey == "":
		return nil, errors.New("OPENROUTER_API_KEY is missing")
	case req.Model == "":
		return nil, errors.New("model cannot be empty")
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.apiKey)
	header.Set("HTTP-Referer", "https://github.com/KaramelBytes/dashspec-cli")
	header.Set("X-Title", "dashspec")

	var out GenerateResponse
	h, err := c.t.postJSON(ctx, c.baseURL+"/chat/completions", header, req, &out)
	if err != nil {
		return nil, err
	}
	out.RequestID = requestIDFrom(h)
	return &out, nil
}
