package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/KaramelBytes/dashspec-cli/internal/dashboard"
	"github.com/KaramelBytes/dashspec-cli/internal/utils"
)

const plannerSystemPrompt = `You design analytics dashboards from column metadata.
Answer with ONE JSON object and nothing else, shaped like:
{"version":1,
 "time":{"column":"<time column>"},
 "kpis":[{"column":"<col>","label":"<text>","aggregation":"count|count_distinct|sum|avg|truthy_count","format":"integer|number|currency|percent","goal_direction":"up|down"}],
 "funnel":{"stages":[{"column":"<col>","label":"<text>"}],"id_column":"<col>"},
 "charts":[{"type":"line|bar|area","title":"<text>","x_column":"<col>","series":[{"column":"<col>","aggregation":"<agg>"}]}],
 "table":{"columns":[{"column":"<col>"}]},
 "tabs":["overview","funnel","trends","details"]}
Rules: use only the listed column names; at most 8 kpis and 4 charts; funnel stages in
process order; omit sections you cannot fill.`

// plannerPromptSlack leaves room for message framing the token estimate misses.
const plannerPromptSlack = 64

// Planner asks a chat Runtime for a dashboard plan. The answer is untrusted:
// the compiler resolves and repairs it like any other plan.
type Planner struct {
	runtime     Runtime
	model       string
	maxTokens   int
	temperature float64
	logger      zerolog.Logger
}

// PlannerOption configures a Planner.
type PlannerOption func(*Planner)

// WithMaxTokens caps the completion length.
func WithMaxTokens(n int) PlannerOption {
	return func(p *Planner) {
		if n > 0 {
			p.maxTokens = n
		}
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) PlannerOption { return func(p *Planner) { p.temperature = t } }

// WithPlannerLogger sets the logger used for usage and cost lines.
func WithPlannerLogger(l zerolog.Logger) PlannerOption { return func(p *Planner) { p.logger = l } }

// NewPlanner returns a Planner using model on rt.
func NewPlanner(rt Runtime, model string, opts ...PlannerOption) *Planner {
	p := &Planner{runtime: rt, model: model, maxTokens: 1500, temperature: 0.2, logger: zerolog.Nop()}
	for _, o := range opts {
		o(p)
	}
	return p
}

var _ dashboard.Planner = (*Planner)(nil)

// Plan implements dashboard.Planner.
func (p *Planner) Plan(ctx context.Context, req dashboard.PlanRequest) (*dashboard.Specification, error) {
	resp, err := p.runtime.Generate(ctx, GenerateRequest{
		Model:          p.model,
		Messages:       p.Messages(req),
		MaxTokens:      p.maxTokens,
		Temperature:    p.temperature,
		ResponseFormat: JSONObject,
	})
	if err != nil {
		return nil, fmt.Errorf("plan request: %w", err)
	}
	ev := p.logger.Info().
		Str("model", p.model).
		Str("request_id", resp.RequestID).
		Int("prompt_tokens", resp.Usage.PromptTokens).
		Int("completion_tokens", resp.Usage.CompletionTokens)
	if cost, ok := EstimateCostUSD(p.model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens); ok {
		ev = ev.Float64("cost_usd", cost)
	}
	ev.Msg("plan received")
	return ParsePlan(resp.Content())
}

// Messages builds the chat for req. The optional profile context is truncated
// to what fits in the model's window after the completion budget.
func (p *Planner) Messages(req dashboard.PlanRequest) []Message {
	var b strings.Builder
	if req.DatasetName != "" {
		fmt.Fprintf(&b, "Dataset: %s\n", req.DatasetName)
	}
	if req.Detection.IsMatch {
		fmt.Fprintf(&b, "This looks like a CRM lead export (confidence %d/100).\n", req.Detection.Confidence)
	}
	b.WriteString("Columns (use these names exactly):\n")
	for _, c := range req.Columns {
		fmt.Fprintf(&b, "- %s: role=%s", c.Column.Name, c.Inferred)
		if c.Column.DeclaredType != "" {
			fmt.Fprintf(&b, " type=%s", c.Column.DeclaredType)
		}
		if c.Stage != nil {
			fmt.Fprintf(&b, " stage=%s", c.Stage.Name)
		}
		if c.Column.DisplayLabel != "" {
			fmt.Fprintf(&b, " label=%q", c.Column.DisplayLabel)
		}
		if c.Column.Hidden {
			b.WriteString(" hidden")
		}
		b.WriteString("\n")
	}
	user := b.String()
	if extra := strings.TrimSpace(req.Context); extra != "" {
		budget := ContextWindow(p.model) - p.maxTokens - plannerPromptSlack -
			utils.EstimateTokens(plannerSystemPrompt) - utils.EstimateTokens(user)
		if budget > 0 {
			user += "\nProfile:\n" + utils.ClipToTokens(extra, budget)
		}
	}
	return []Message{
		{Role: "system", Content: plannerSystemPrompt},
		{Role: "user", Content: user},
	}
}

// ParsePlan decodes the first JSON object in content. Code fences and
// surrounding prose are tolerated.
func ParsePlan(content string) (*dashboard.Specification, error) {
	raw := firstJSONObject(content)
	if raw == "" {
		return nil, ErrNoPlan
	}
	var spec dashboard.Specification
	if err := json.Unmarshal([]byte(raw), &spec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoPlan, err)
	}
	if len(spec.KPIs) == 0 && spec.Funnel == nil && len(spec.Charts) == 0 && len(spec.Table.Columns) == 0 {
		return nil, fmt.Errorf("%w: plan has no kpis, funnel, charts or table", ErrNoPlan)
	}
	return &spec, nil
}

// firstJSONObject returns the first balanced {...} span, honoring string
// literals and escapes, or "" when there is none.
func firstJSONObject(s string) string {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inStr, esc := false, false
	for i := start; i < len(s); i++ {
		ch := s[i]
		if inStr {
			switch {
			case esc:
				esc = false
			case ch == '\\':
				esc = true
			case ch == '"':
				inStr = false
			}
			continue
		}
		switch ch {
		case '"':
			inStr = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1]
			}
		}
	}
	return ""
}
