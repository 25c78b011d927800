// Package dashboard compiles tabular column profiles into renderable dashboard
// specifications: semantic classification, fuzzy column resolution, CRM funnel
// detection, heuristic synthesis, validation with repair, and sample previews.
package dashboard

import "errors"

// SpecVersion is the current Specification schema version.
const SpecVersion = 1

// Caps applied to synthesized and repaired specifications.
const (
	MaxKPIs   = 8
	MaxCharts = 4
)

// ErrNoColumns is reported when a dataset has no columns to reference.
var ErrNoColumns = errors.New("dataset has no columns")

// Role is the semantic role assigned to a column.
type Role string

const (
	RoleTime           Role = "time"
	RoleIdentifier     Role = "identifier"
	RoleDimension      Role = "dimension"
	RoleFunnelStage    Role = "funnel_stage"
	RoleMetricNumeric  Role = "metric_numeric"
	RoleMetricCurrency Role = "metric_currency"
	RoleMetricPercent  Role = "metric_percent"
	RoleTextDetail     Role = "text_detail"
	RoleIgnored        Role = "ignored"
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleTime, RoleIdentifier, RoleDimension, RoleFunnelStage, RoleMetricNumeric,
		RoleMetricCurrency, RoleMetricPercent, RoleTextDetail, RoleIgnored:
		return true
	}
	return false
}

// IsMetric reports whether r is one of the numeric metric roles.
func (r Role) IsMetric() bool {
	return r == RoleMetricNumeric || r == RoleMetricCurrency || r == RoleMetricPercent
}

// SampleStats are statistics computed over a column sample. Rates are in [0,1].
type SampleStats struct {
	NullRate      float64 `json:"null_rate"`
	DistinctCount int     `json:"distinct_count"`
	BooleanRate   float64 `json:"boolean_rate"`
	DateParseRate float64 `json:"date_parse_rate"`
	NumericRate   float64 `json:"numeric_rate,omitempty"`
}

// ColumnProfile is normalized metadata for one dataset column.
type ColumnProfile struct {
	Name         string       `json:"name"`
	DeclaredType string       `json:"declared_type"`
	SemanticRole Role         `json:"semantic_role,omitempty"`
	DisplayLabel string       `json:"display_label,omitempty"`
	Hidden       bool         `json:"hidden,omitempty"`
	Stats        *SampleStats `json:"sample_stats,omitempty"`
}

// Label returns the display label, defaulting to the column name.
func (c ColumnProfile) Label() string {
	if c.DisplayLabel != "" {
		return c.DisplayLabel
	}
	return c.Name
}

// Aggregations understood by the previewer.
const (
	AggSum           = "sum"
	AggCount         = "count"
	AggCountDistinct = "count_distinct"
	AggAvg           = "avg"
	AggTruthyCount   = "truthy_count"
)

// KPI formats.
const (
	FormatInteger  = "integer"
	FormatNumber   = "number"
	FormatCurrency = "currency"
	FormatPercent  = "percent"
	FormatDate     = "date"
	FormatText     = "text"
)

// Goal directions.
const (
	GoalUp   = "up"
	GoalDown = "down"
)

// Chart types.
const (
	ChartLine = "line"
	ChartBar  = "bar"
)

// Default tab names.
const (
	TabOverview = "overview"
	TabFunnel   = "funnel"
	TabTrends   = "trends"
	TabTeam     = "team"
	TabDetails  = "details"
)

// Specification is the declarative dashboard definition.
type Specification struct {
	Version    int               `json:"version"`
	Time       *TimeSpec         `json:"time,omitempty"`
	KPIs       []KPI             `json:"kpis"`
	Funnel     *Funnel           `json:"funnel,omitempty"`
	Charts     []Chart           `json:"charts"`
	Table      Table             `json:"table"`
	Tabs       []string          `json:"tabs"`
	Labels     map[string]string `json:"labels,omitempty"`
	Formatting map[string]any    `json:"formatting,omitempty"`
}

// TimeSpec names the primary time column.
type TimeSpec struct {
	Column string `json:"column"`
	Type   string `json:"type,omitempty"`
}

// KPI is a single headline number.
type KPI struct {
	Column        string   `json:"column"`
	Label         string   `json:"label,omitempty"`
	Aggregation   string   `json:"aggregation"`
	Format        string   `json:"format,omitempty"`
	GoalDirection string   `json:"goal_direction,omitempty"`
	Target        *float64 `json:"target,omitempty"`
}

// Funnel is an ordered list of conversion stages.
type Funnel struct {
	Stages   []FunnelStage `json:"stages"`
	IDColumn string        `json:"id_column,omitempty"`
}

// FunnelStage is one step of a funnel.
type FunnelStage struct {
	Column string `json:"column"`
	Label  string `json:"label,omitempty"`
}

// Chart is a chart keyed on an x-axis column with one or more series.
type Chart struct {
	Type    string   `json:"type"`
	Title   string   `json:"title,omitempty"`
	XColumn string   `json:"x_column"`
	Series  []Series `json:"series"`
}

// Series is one plotted column.
type Series struct {
	Column      string `json:"column"`
	Label       string `json:"label,omitempty"`
	Aggregation string `json:"aggregation,omitempty"`
}

// Table lists the detail-table columns.
type Table struct {
	Columns []TableColumn `json:"columns"`
}

// TableColumn is one detail-table column.
type TableColumn struct {
	Column string `json:"column"`
	Label  string `json:"label,omitempty"`
	Format string `json:"format,omitempty"`
}

// LegacyTile is a KPI tile from an older dashboard definition.
type LegacyTile struct {
	Column      string `json:"column"`
	Label       string `json:"label,omitempty"`
	Aggregation string `json:"aggregation,omitempty"`
	Format      string `json:"format,omitempty"`
}

// Renderable reports whether s has at least one KPI, chart, or a funnel with
// two or more stages.
func (s *Specification) Renderable() bool {
	if s == nil {
		return false
	}
	return len(s.KPIs) > 0 || len(s.Charts) > 0 || (s.Funnel != nil && len(s.Funnel.Stages) >= 2)
}

// Clone returns a deep copy of s.
func (s *Specification) Clone() *Specification {
	if s == nil {
		return nil
	}
	out := *s
	if s.Time != nil {
		t := *s.Time
		out.Time = &t
	}
	out.KPIs = make([]KPI, len(s.KPIs))
	for i, k := range s.KPIs {
		if k.Target != nil {
			v := *k.Target
			k.Target = &v
		}
		out.KPIs[i] = k
	}
	if s.Funnel != nil {
		f := *s.Funnel
		f.Stages = append([]FunnelStage(nil), s.Funnel.Stages...)
		out.Funnel = &f
	}
	out.Charts = make([]Chart, len(s.Charts))
	for i, c := range s.Charts {
		c.Series = append([]Series(nil), c.Series...)
		out.Charts[i] = c
	}
	out.Table.Columns = append([]TableColumn(nil), s.Table.Columns...)
	out.Tabs = append([]string(nil), s.Tabs...)
	if s.Labels != nil {
		out.Labels = make(map[string]string, len(s.Labels))
		for k, v := range s.Labels {
			out.Labels[k] = v
		}
	}
	if s.Formatting != nil {
		out.Formatting = cloneAnyMap(s.Formatting)
	}
	return &out
}

// Columns returns every column referenced anywhere in s, in encounter order.
func (s *Specification) Columns() []string {
	if s == nil {
		return nil
	}
	var out []string
	add := func(c string) { out = append(out, c) }
	if s.Time != nil {
		add(s.Time.Column)
	}
	for _, k := range s.KPIs {
		add(k.Column)
	}
	if s.Funnel != nil {
		for _, st := range s.Funnel.Stages {
			add(st.Column)
		}
		if s.Funnel.IDColumn != "" {
			add(s.Funnel.IDColumn)
		}
	}
	for _, c := range s.Charts {
		add(c.XColumn)
		for _, sr := range c.Series {
			add(sr.Column)
		}
	}
	for _, tc := range s.Table.Columns {
		add(tc.Column)
	}
	return out
}

func cloneAnyMap(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = cloneAny(v)
	}
	return out
}

func cloneAny(v any) any {
	switch t := v.(type) {
	case map[string]any:
		return cloneAnyMap(t)
	case []any:
		cp := make([]any, len(t))
		for i, e := range t {
			cp[i] = cloneAny(e)
		}
		return cp
	default:
		return v
	}
}

// Severity of a repair decision.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
	SeverityError   Severity = "error"
)

// Action taken for a field during synthesis or repair.
type Action string

const (
	ActionKept      Action = "kept"
	ActionResolved  Action = "resolved"
	ActionDefaulted Action = "defaulted"
	ActionForced    Action = "forced"
	ActionDropped   Action = "dropped"
	ActionFallback  Action = "fallback"
	ActionRejected  Action = "rejected"
)

// Decision records what happened to one field and why.
type Decision struct {
	Field     string   `json:"field"`
	Action    Action   `json:"action"`
	Requested string   `json:"requested,omitempty"`
	Resolved  string   `json:"resolved,omitempty"`
	Reason    string   `json:"reason"`
	Severity  Severity `json:"severity"`
}

// Fallback describes an auto-substituted minimal specification.
type Fallback struct {
	Applied bool   `json:"applied"`
	Reason  string `json:"reason"`
}

// ValidationResult is the outcome of ValidateAndRepair.
type ValidationResult struct {
	Valid     bool           `json:"valid"`
	Errors    []string       `json:"errors"`
	Warnings  []string       `json:"warnings"`
	Fallback  *Fallback      `json:"_fallback,omitempty"`
	Decisions []Decision     `json:"decisions,omitempty"`
	Spec      *Specification `json:"repaired_specification"`
}

// PreviewSource tells whether preview rows are a full scan or a bounded sample.
type PreviewSource string

const (
	SourceSample   PreviewSource = "sample"
	SourceFullScan PreviewSource = "full_scan"
)

// KPIValue is a computed KPI value.
type KPIValue struct {
	Column string  `json:"column"`
	Label  string  `json:"label"`
	Value  float64 `json:"value"`
	Format string  `json:"format,omitempty"`
}

// StageValue is a computed funnel-stage value.
type StageValue struct {
	Column string  `json:"column"`
	Label  string  `json:"label"`
	Value  float64 `json:"value"`
}

// AggregationPreview is an approximate or exact rendering of KPI and funnel values.
type AggregationPreview struct {
	KPIValues    []KPIValue    `json:"kpi_values"`
	FunnelValues []StageValue  `json:"funnel_values"`
	Source       PreviewSource `json:"source"`
	Approximate  bool          `json:"approximate"`
	RowCount     int           `json:"row_count"`
}
