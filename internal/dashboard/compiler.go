package dashboard

import (
	"context"

	"github.com/rs/zerolog"
)

// Planner proposes an untrusted plan for a dataset, typically by asking a
// language model. Implementations own their timeouts.
type Planner interface {
	Plan(ctx context.Context, req PlanRequest) (*Specification, error)
}

// PlanRequest is what a Planner sees.
type PlanRequest struct {
	DatasetName string
	Columns     []ClassifiedColumn
	Detection   Detection
	// Context is optional free text describing the dataset (e.g. a rendered profile).
	Context string
}

// Request is one compile call.
type Request struct {
	DatasetName string          `json:"dataset_name"`
	Columns     []ColumnProfile `json:"columns"`
	Plan        *Specification  `json:"plan,omitempty"`
	LegacyTiles []LegacyTile    `json:"legacy_tiles,omitempty"`
	// UsePlanner asks the configured Planner for a plan when Plan is nil.
	UsePlanner  bool          `json:"use_planner,omitempty"`
	PlanContext string        `json:"-"`
	Rows        []Row         `json:"rows,omitempty"`
	RowSource   PreviewSource `json:"row_source,omitempty"`
}

// Result is the outcome of Compile.
type Result struct {
	Strategy   Strategy            `json:"strategy"`
	Detection  Detection           `json:"detection"`
	Classified []ClassifiedColumn  `json:"classified"`
	Synthesis  []Decision          `json:"synthesis_decisions,omitempty"`
	Validation ValidationResult    `json:"validation"`
	Preview    *AggregationPreview `json:"preview,omitempty"`
	// PlannerError records a failed planner call; compilation continued without a plan.
	PlannerError string `json:"planner_error,omitempty"`
}

// Spec returns the repaired specification.
func (r Result) Spec() *Specification { return r.Validation.Spec }

// Committable reports whether the specification may be persisted.
func (r Result) Committable() bool { return len(r.Validation.Errors) == 0 }

// Compiler runs the full pipeline: classify, detect, plan, synthesize,
// validate and preview.
type Compiler struct {
	rules      *Rules
	classifier *Classifier
	detector   *Detector
	synth      *Synthesizer
	validator  *Validator
	previewer  *Previewer
	planner    Planner
	logger     zerolog.Logger
}

// Option configures a Compiler.
type Option func(*Compiler)

// WithRules sets the rule tables.
func WithRules(r *Rules) Option { return func(c *Compiler) { c.rules = r } }

// WithPlanner sets the plan collaborator.
func WithPlanner(p Planner) Option { return func(c *Compiler) { c.planner = p } }

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option { return func(c *Compiler) { c.logger = l } }

// NewCompiler returns a compiler with DefaultRules and no planner unless
// options say otherwise.
func NewCompiler(opts ...Option) *Compiler {
	c := &Compiler{logger: zerolog.Nop()}
	for _, o := range opts {
		o(c)
	}
	if c.rules == nil {
		c.rules = DefaultRules()
	}
	c.classifier = NewClassifier(c.rules)
	c.detector = NewDetector(c.rules)
	c.synth = NewSynthesizer(c.rules)
	c.validator = NewValidator(c.rules)
	c.previewer = NewPreviewer(c.rules)
	return c
}

// Rules returns the compiler's rule tables.
func (c *Compiler) Rules() *Rules { return c.rules }

// Classify assigns a role to each column.
func (c *Compiler) Classify(columns []ColumnProfile) []ClassifiedColumn {
	return c.classifier.Classify(columns)
}

// Detect classifies and scores columns without synthesizing.
func (c *Compiler) Detect(datasetName string, columns []ColumnProfile) Detection {
	names := make([]string, 0, len(columns))
	for _, col := range columns {
		names = append(names, col.Name)
	}
	return c.detector.Detect(names, datasetName)
}

// Validate repairs an externally supplied specification.
func (c *Compiler) Validate(spec *Specification, columns []ColumnProfile) ValidationResult {
	return c.validator.ValidateAndRepair(spec, columns)
}

// Preview aggregates rows for spec.
func (c *Compiler) Preview(rows []Row, spec *Specification, source PreviewSource) AggregationPreview {
	return c.previewer.Preview(rows, spec, source)
}

// Compile runs the pipeline. The planner call is best effort: its failure is
// logged and recorded, never returned.
func (c *Compiler) Compile(ctx context.Context, req Request) Result {
	log := c.logger.With().Str("dataset", req.DatasetName).Logger()

	classified := c.classifier.Classify(req.Columns)
	for _, cc := range classified {
		log.Debug().Str("column", cc.Column.Name).Str("role", string(cc.Role)).Str("reason", cc.Reason).Msg("classified")
	}
	det := c.Detect(req.DatasetName, req.Columns)
	res := Result{Detection: det, Classified: classified}

	plan := req.Plan
	if plan == nil && req.UsePlanner && c.planner != nil {
		p, err := c.planner.Plan(ctx, PlanRequest{
			DatasetName: req.DatasetName,
			Columns:     classified,
			Detection:   det,
			Context:     req.PlanContext,
		})
		if err != nil {
			log.Warn().Err(err).Msg("planner failed, continuing with heuristics")
			res.PlannerError = err.Error()
		} else {
			plan = p
		}
	}

	syn := c.synth.Synthesize(SynthesisInput{
		Columns:     classified,
		Plan:        plan,
		LegacyTiles: req.LegacyTiles,
		Detection:   &det,
	})
	for _, d := range syn.Decisions {
		if d.Severity == SeverityWarning {
			log.Warn().Str("field", d.Field).Str("requested", d.Requested).Msg(d.Reason)
		}
	}
	res.Strategy = syn.Strategy
	res.Synthesis = syn.Decisions

	res.Validation = c.validator.ValidateDataset(req.DatasetName, syn.Spec, req.Columns)
	res.Validation.carryWarnings(syn.Decisions)
	if res.Validation.Fallback != nil {
		res.Strategy = StrategyMinimalFallback
	}
	for _, d := range res.Validation.Decisions {
		ev := log.Debug()
		switch d.Severity {
		case SeverityWarning:
			ev = log.Info()
		case SeverityError:
			ev = log.Warn()
		}
		ev.Str("field", d.Field).Str("action", string(d.Action)).Msg(d.Reason)
	}

	if len(req.Rows) > 0 {
		pv := c.previewer.Preview(req.Rows, res.Validation.Spec, req.RowSource)
		res.Preview = &pv
	}

	log.Info().
		Str("strategy", string(res.Strategy)).
		Bool("crm", det.IsMatch).
		Int("confidence", det.Confidence).
		Int("kpis", len(res.Validation.Spec.KPIs)).
		Int("charts", len(res.Validation.Spec.Charts)).
		Int("warnings", len(res.Validation.Warnings)).
		Int("errors", len(res.Validation.Errors)).
		Msg("compiled")
	return res
}
