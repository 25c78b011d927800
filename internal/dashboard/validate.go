package dashboard

import (
	"fmt"
	"math"
	"sort"
)

// Structural defaults filled in by the validator.
const (
	defaultChartType = ChartLine
	defaultDecimals  = 2
)

// Fallback column caps.
const (
	fallbackColumns      = 4
	fallbackColumnsTyped = 8
)

// Validator enforces the structural invariants of a Specification and repairs
// what it can.
type Validator struct {
	rules      *Rules
	resolver   *Resolver
	classifier *Classifier
}

// NewValidator returns a validator over rules (DefaultRules when nil).
func NewValidator(rules *Rules) *Validator {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Validator{rules: rules, resolver: NewResolver(rules), classifier: NewClassifier(rules)}
}

// ValidateAndRepair checks candidate against columns using the default rules.
func ValidateAndRepair(candidate *Specification, columns []ColumnProfile) ValidationResult {
	return defaultValidator.ValidateAndRepair(candidate, columns)
}

var defaultValidator = NewValidator(nil)

// ValidateAndRepair repairs a copy of candidate so that every column reference
// exists in columns and the result always renders something. candidate is not
// modified. Warnings describe dropped or defaulted fields; errors describe
// corruption that must block persistence.
func (v *Validator) ValidateAndRepair(candidate *Specification, columns []ColumnProfile) ValidationResult {
	return v.ValidateDataset("", candidate, columns)
}

// ValidateDataset is ValidateAndRepair with the dataset name available to the
// CRM detector when default tabs are derived.
func (v *Validator) ValidateDataset(datasetName string, candidate *Specification, columns []ColumnProfile) ValidationResult {
	var spec *Specification
	if candidate == nil {
		spec = &Specification{}
	} else {
		spec = candidate.Clone()
	}
	rp := &repair{v: v, cs: newColumnSet(v.classifier.Classify(columns)), spec: spec, dataset: datasetName}

	rp.version()
	rp.time()
	rp.kpis()
	rp.funnel()
	rp.charts()
	rp.table()
	rp.structure()
	rp.finite()
	fb := rp.nonEmpty()
	if fb != nil {
		// Tabs were derived before the fallback KPIs existed.
		rp.ensureTab(TabOverview)
	}

	res := ValidationResult{
		Errors:    []string{},
		Warnings:  []string{},
		Fallback:  fb,
		Decisions: rp.decisions,
		Spec:      spec,
	}
	for _, d := range rp.decisions {
		switch d.Severity {
		case SeverityError:
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %s", d.Field, d.Reason))
		case SeverityWarning:
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s: %s", d.Field, d.Reason))
		}
	}
	res.Valid = len(res.Errors) == 0
	return res
}

// carryWarnings puts the warnings of an earlier stage ahead of the
// validator's own, so entries dropped before validation are still reported.
func (res *ValidationResult) carryWarnings(earlier []Decision) {
	var ds []Decision
	var ws []string
	for _, d := range earlier {
		if d.Severity != SeverityWarning {
			continue
		}
		ds = append(ds, d)
		ws = append(ws, fmt.Sprintf("%s: %s", d.Field, d.Reason))
	}
	if len(ds) == 0 {
		return
	}
	res.Decisions = append(ds, res.Decisions...)
	res.Warnings = append(ws, res.Warnings...)
}

// repair carries one validation pass.
type repair struct {
	v         *Validator
	cs        *columnSet
	spec      *Specification
	dataset   string
	decisions []Decision
}

func (rp *repair) add(d Decision) { rp.decisions = append(rp.decisions, d) }

func (rp *repair) warn(field string, action Action, reason string) {
	rp.add(Decision{Field: field, Action: action, Reason: reason, Severity: SeverityWarning})
}

func (rp *repair) resolve(field, requested string) (string, bool) {
	return resolveField(rp.v.resolver, rp.cs, field, requested, &rp.decisions)
}

func (rp *repair) version() {
	if rp.spec.Version <= 0 {
		rp.spec.Version = SpecVersion
		rp.add(Decision{Field: "version", Action: ActionDefaulted, Resolved: fmt.Sprint(SpecVersion),
			Reason: "version missing, defaulted", Severity: SeverityWarning})
	}
}

// timeColumn is the column charts fall back to: the resolved time column or
// the first time-classified column.
func (rp *repair) timeColumn() string {
	if rp.spec.Time != nil {
		return rp.spec.Time.Column
	}
	if c, ok := rp.cs.firstInferred(RoleTime); ok {
		return c.Column.Name
	}
	return ""
}

func (rp *repair) time() {
	t := rp.spec.Time
	if t == nil {
		return
	}
	name, kind := rp.v.resolver.ResolveKind(t.Column, rp.cs.names)
	switch {
	case kind == MatchExact:
	case kind != MatchNone:
		rp.add(Decision{Field: "time.column", Action: ActionResolved, Requested: t.Column, Resolved: name,
			Reason: fmt.Sprintf("%s match", kind), Severity: SeverityInfo})
		t.Column = name
	default:
		if c, ok := rp.cs.firstInferred(RoleTime); ok {
			rp.add(Decision{Field: "time.column", Action: ActionFallback, Requested: t.Column, Resolved: c.Column.Name,
				Reason: fmt.Sprintf("column %q not found, using first time column", t.Column), Severity: SeverityWarning})
			t.Column = c.Column.Name
			t.Type = ""
		} else {
			rp.add(Decision{Field: "time", Action: ActionDropped, Requested: t.Column,
				Reason: fmt.Sprintf("column %q not found and no time column exists", t.Column), Severity: SeverityWarning})
			rp.spec.Time = nil
			return
		}
	}
	if t.Type == "" {
		t.Type = timeType(rp.cs.byName[t.Column].Column)
	}
}

func (rp *repair) kpis() {
	var kept []KPI
	for i, k := range rp.spec.KPIs {
		field := fmt.Sprintf("kpis[%d]", i)
		name, ok := rp.resolve(field+".column", k.Column)
		if !ok {
			continue
		}
		if len(kept) == MaxKPIs {
			rp.warn(field, ActionDropped, fmt.Sprintf("more than %d KPIs", MaxKPIs))
			continue
		}
		cc := rp.cs.byName[name]
		k.Column = name
		if k.Label == "" {
			k.Label = cc.Column.Label()
		}
		if k.Aggregation == "" {
			k.Aggregation, _ = defaultAggregation(cc)
			rp.add(Decision{Field: field + ".aggregation", Action: ActionDefaulted, Resolved: k.Aggregation,
				Reason: "aggregation missing", Severity: SeverityInfo})
		}
		if numericAggregation(k.Aggregation) && !rp.v.classifier.isNumericTyped(cc) && cc.Inferred != RoleFunnelStage {
			forced := AggCount
			if cc.Inferred == RoleIdentifier {
				forced = AggCountDistinct
			}
			rp.add(Decision{Field: field + ".aggregation", Action: ActionForced, Requested: k.Aggregation, Resolved: forced,
				Reason: fmt.Sprintf("%s on non-numeric column %q", k.Aggregation, name), Severity: SeverityWarning})
			k.Aggregation = forced
			if k.Format == FormatCurrency || k.Format == FormatPercent || k.Format == FormatNumber {
				k.Format = FormatInteger
			}
		}
		kept = append(kept, k)
	}
	rp.spec.KPIs = kept
}

func numericAggregation(agg string) bool {
	return agg == AggSum || agg == AggAvg
}

func (rp *repair) funnel() {
	f := rp.spec.Funnel
	if f == nil {
		return
	}
	var stages []FunnelStage
	for i, st := range f.Stages {
		name, ok := rp.resolve(fmt.Sprintf("funnel.stages[%d].column", i), st.Column)
		if !ok {
			continue
		}
		st.Column = name
		if st.Label == "" {
			st.Label = rp.cs.byName[name].Column.Label()
		}
		stages = append(stages, st)
	}
	if len(stages) < 2 {
		rp.warn("funnel", ActionDropped, fmt.Sprintf("only %d stage(s) resolved", len(stages)))
		rp.spec.Funnel = nil
		return
	}
	f.Stages = stages
	if f.IDColumn != "" {
		if name, ok := rp.resolve("funnel.id_column", f.IDColumn); ok {
			f.IDColumn = name
		} else {
			f.IDColumn = ""
		}
	}
}

func (rp *repair) charts() {
	var kept []Chart
	for i, c := range rp.spec.Charts {
		field := fmt.Sprintf("charts[%d]", i)
		x, kind := rp.v.resolver.ResolveKind(c.XColumn, rp.cs.names)
		switch {
		case kind == MatchExact:
		case kind != MatchNone:
			rp.add(Decision{Field: field + ".x_column", Action: ActionResolved, Requested: c.XColumn, Resolved: x,
				Reason: fmt.Sprintf("%s match", kind), Severity: SeverityInfo})
		default:
			x = rp.timeColumn()
			if x == "" {
				rp.add(Decision{Field: field, Action: ActionDropped, Requested: c.XColumn,
					Reason: fmt.Sprintf("x column %q not found and no time column exists", c.XColumn), Severity: SeverityWarning})
				continue
			}
			rp.add(Decision{Field: field + ".x_column", Action: ActionFallback, Requested: c.XColumn, Resolved: x,
				Reason: fmt.Sprintf("x column %q not found, using time column", c.XColumn), Severity: SeverityWarning})
		}
		c.XColumn = x
		var series []Series
		for j, sr := range c.Series {
			name, ok := rp.resolve(fmt.Sprintf("%s.series[%d].column", field, j), sr.Column)
			if !ok {
				continue
			}
			sr.Column = name
			if sr.Label == "" {
				sr.Label = rp.cs.byName[name].Column.Label()
			}
			series = append(series, sr)
		}
		if len(series) == 0 {
			rp.warn(field, ActionDropped, "no series resolved")
			continue
		}
		c.Series = series
		if c.Type == "" {
			c.Type = defaultChartType
		}
		if len(kept) == MaxCharts {
			rp.warn(field, ActionDropped, fmt.Sprintf("more than %d charts", MaxCharts))
			continue
		}
		kept = append(kept, c)
	}
	rp.spec.Charts = kept
}

func (rp *repair) table() {
	var cols []TableColumn
	for i, tc := range rp.spec.Table.Columns {
		field := fmt.Sprintf("table.columns[%d]", i)
		name, ok := rp.resolve(field+".column", tc.Column)
		if !ok {
			continue
		}
		if rp.cs.byName[name].Role == RoleIgnored {
			rp.add(Decision{Field: field, Action: ActionDropped, Requested: tc.Column,
				Reason: fmt.Sprintf("column %q is hidden", name), Severity: SeverityWarning})
			continue
		}
		tc.Column = name
		if tc.Label == "" {
			tc.Label = rp.cs.byName[name].Column.Label()
		}
		cols = append(cols, tc)
	}
	if len(cols) == 0 {
		def := defaultTable(rp.cs)
		if len(def.Columns) > 0 {
			rp.add(Decision{Field: "table", Action: ActionDefaulted,
				Reason: "no table columns, listing every visible column", Severity: SeverityInfo})
		}
		cols = def.Columns
	}
	rp.spec.Table.Columns = cols
}

// structure fills tabs, labels and formatting.
func (rp *repair) structure() {
	s := rp.spec
	seen := make(map[string]bool, len(s.Tabs))
	var tabs []string
	for _, t := range s.Tabs {
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		tabs = append(tabs, t)
	}
	if len(tabs) == 0 {
		_, hasDim := rp.cs.firstInferred(RoleDimension)
		crm := NewDetector(rp.v.rules).Detect(rp.cs.names, rp.dataset).IsMatch
		tabs = templateTabs(s, crm, hasDim)
		rp.add(Decision{Field: "tabs", Action: ActionDefaulted, Reason: "no tabs, using template", Severity: SeverityInfo})
	}
	s.Tabs = tabs
	rp.ensureTab(TabDetails)

	if s.Labels == nil {
		s.Labels = make(map[string]string)
		for _, name := range s.Columns() {
			if lbl := rp.cs.byName[name].Column.Label(); lbl != name {
				s.Labels[name] = lbl
			}
		}
	}
	if s.Formatting == nil {
		s.Formatting = map[string]any{"decimals": float64(defaultDecimals)}
	}
}

func (rp *repair) ensureTab(tab string) {
	for _, t := range rp.spec.Tabs {
		if t == tab {
			return
		}
	}
	if tab == TabOverview {
		rp.spec.Tabs = append([]string{tab}, rp.spec.Tabs...)
	} else {
		rp.spec.Tabs = append(rp.spec.Tabs, tab)
	}
}

// finite reports NaN and Inf leaves as errors and clears them so the repaired
// specification stays encodable.
func (rp *repair) finite() {
	for i := range rp.spec.KPIs {
		k := &rp.spec.KPIs[i]
		if k.Target != nil && !isFinite(*k.Target) {
			rp.add(Decision{Field: fmt.Sprintf("kpis[%d].target", i), Action: ActionRejected,
				Requested: fmt.Sprint(*k.Target), Reason: "non-finite number", Severity: SeverityError})
			k.Target = nil
		}
	}
	rp.scrubMap("formatting", rp.spec.Formatting)
}

// scrubMap removes non-finite leaves from m in place, visiting keys in sorted
// order so decisions are deterministic.
func (rp *repair) scrubMap(path string, m map[string]any) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		v, ok := rp.scrubValue(path+"."+k, m[k])
		if !ok {
			delete(m, k)
			continue
		}
		m[k] = v
	}
}

// scrubValue returns v without non-finite leaves; ok is false when v itself
// is non-finite.
func (rp *repair) scrubValue(path string, v any) (any, bool) {
	switch t := v.(type) {
	case float64:
		return t, !rp.reportNonFinite(path, t)
	case float32:
		return t, !rp.reportNonFinite(path, float64(t))
	case map[string]any:
		rp.scrubMap(path, t)
		return t, true
	case []any:
		out := make([]any, 0, len(t))
		for i, e := range t {
			if e2, ok := rp.scrubValue(fmt.Sprintf("%s[%d]", path, i), e); ok {
				out = append(out, e2)
			}
		}
		return out, true
	}
	return v, true
}

func (rp *repair) reportNonFinite(path string, f float64) bool {
	if isFinite(f) {
		return false
	}
	rp.add(Decision{Field: path, Action: ActionRejected, Requested: fmt.Sprint(f),
		Reason: "non-finite number", Severity: SeverityError})
	return true
}

func isFinite(f float64) bool { return !math.IsNaN(f) && !math.IsInf(f, 0) }

// nonEmpty substitutes count-based KPIs when nothing else survived.
func (rp *repair) nonEmpty() *Fallback {
	if rp.spec.Renderable() {
		return nil
	}
	cols := rp.cs.cols
	if len(cols) == 0 {
		rp.add(Decision{Field: "columns", Action: ActionRejected, Reason: ErrNoColumns.Error(), Severity: SeverityError})
		return nil
	}
	limit := fallbackColumns
	for _, c := range cols {
		if rp.v.classifier.isNumericTyped(c) || c.Inferred == RoleFunnelStage {
			limit = fallbackColumnsTyped
			break
		}
	}
	if limit > len(cols) {
		limit = len(cols)
	}
	for _, c := range cols[:limit] {
		agg := AggCountDistinct
		if c.Inferred == RoleFunnelStage {
			agg = AggTruthyCount
		}
		rp.spec.KPIs = append(rp.spec.KPIs, KPI{
			Column: c.Column.Name, Label: c.Column.Label(), Aggregation: agg,
			Format: FormatInteger, GoalDirection: GoalUp,
		})
		rp.add(Decision{Field: fmt.Sprintf("kpis[%d]", len(rp.spec.KPIs)-1), Action: ActionFallback,
			Resolved: c.Column.Name, Reason: "count-based fallback KPI", Severity: SeverityInfo})
	}
	return &Fallback{
		Applied: true,
		Reason:  fmt.Sprintf("no KPI, chart or funnel survived repair; substituted %d count-based KPIs", limit),
	}
}
