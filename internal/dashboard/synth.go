package dashboard

import (
	"fmt"
	"sort"
)

// Strategy names how a candidate specification was produced.
type Strategy string

const (
	StrategyExternalPlan    Strategy = "from_external_plan"
	StrategyLegacyTiles     Strategy = "from_legacy_tiles"
	StrategyHeuristics      Strategy = "from_heuristics"
	StrategyMinimalFallback Strategy = "minimal_fallback"
)

// strategyOrder is the precedence used by Synthesize. The minimal fallback is
// applied by the validator, not here.
var strategyOrder = []Strategy{StrategyExternalPlan, StrategyLegacyTiles, StrategyHeuristics}

// SynthesisInput carries everything the synthesizer may use.
type SynthesisInput struct {
	Columns []ClassifiedColumn
	// Plan is an untrusted hint shaped like a Specification.
	Plan *Specification
	// LegacyTiles are KPI tiles from an older dashboard definition.
	LegacyTiles []LegacyTile
	// Detection is the CRM detector result, when available.
	Detection *Detection
}

// Synthesis is a candidate specification plus the trail that produced it.
type Synthesis struct {
	Spec      *Specification `json:"spec"`
	Strategy  Strategy       `json:"strategy"`
	Decisions []Decision     `json:"decisions"`
}

// Synthesizer builds candidate specifications.
type Synthesizer struct {
	rules    *Rules
	resolver *Resolver
}

// NewSynthesizer returns a synthesizer over rules (DefaultRules when nil).
func NewSynthesizer(rules *Rules) *Synthesizer {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Synthesizer{rules: rules, resolver: NewResolver(rules)}
}

// Synthesize tries each strategy in precedence order and returns the first
// that yields a renderable candidate. Heuristic synthesis always returns its
// result, renderable or not; the validator guarantees non-emptiness.
func (s *Synthesizer) Synthesize(in SynthesisInput) Synthesis {
	cs := newColumnSet(in.Columns)
	var trail []Decision
	for _, strat := range strategyOrder {
		var spec *Specification
		var ds []Decision
		switch strat {
		case StrategyExternalPlan:
			if in.Plan == nil {
				continue
			}
			spec, ds = s.fromPlan(in.Plan, cs)
		case StrategyLegacyTiles:
			if len(in.LegacyTiles) == 0 {
				continue
			}
			spec, ds = s.fromLegacyTiles(in.LegacyTiles, cs, in.Detection)
		case StrategyHeuristics:
			spec = s.fromHeuristics(cs, in.Detection)
			return Synthesis{Spec: spec, Strategy: strat, Decisions: trail}
		}
		trail = append(trail, ds...)
		if spec.Renderable() {
			return Synthesis{Spec: spec, Strategy: strat, Decisions: trail}
		}
		trail = append(trail, Decision{
			Field:    string(strat),
			Action:   ActionRejected,
			Reason:   "nothing renderable survived column resolution",
			Severity: SeverityWarning,
		})
	}
	// unreachable: heuristics always returns
	return Synthesis{Spec: &Specification{Version: SpecVersion}, Strategy: StrategyHeuristics, Decisions: trail}
}

// columnSet indexes classified columns by name.
type columnSet struct {
	cols   []ClassifiedColumn
	names  []string
	byName map[string]ClassifiedColumn
}

func newColumnSet(cols []ClassifiedColumn) *columnSet {
	cs := &columnSet{cols: cols, byName: make(map[string]ClassifiedColumn, len(cols))}
	for _, c := range cols {
		cs.names = append(cs.names, c.Column.Name)
		cs.byName[c.Column.Name] = c
	}
	return cs
}

func (cs *columnSet) firstInferred(role Role) (ClassifiedColumn, bool) {
	for _, c := range cs.cols {
		if c.Inferred == role {
			return c, true
		}
	}
	return ClassifiedColumn{}, false
}

func (cs *columnSet) allInferred(role Role) []ClassifiedColumn {
	var out []ClassifiedColumn
	for _, c := range cs.cols {
		if c.Inferred == role {
			out = append(out, c)
		}
	}
	return out
}

// resolveField resolves one column reference and records the decision.
func resolveField(r *Resolver, cs *columnSet, field, requested string, ds *[]Decision) (string, bool) {
	name, kind := r.ResolveKind(requested, cs.names)
	switch kind {
	case MatchNone:
		*ds = append(*ds, Decision{
			Field: field, Action: ActionDropped, Requested: requested,
			Reason: fmt.Sprintf("column %q not found", requested), Severity: SeverityWarning,
		})
		return "", false
	case MatchExact:
		return name, true
	default:
		*ds = append(*ds, Decision{
			Field: field, Action: ActionResolved, Requested: requested, Resolved: name,
			Reason: fmt.Sprintf("%s match", kind), Severity: SeverityInfo,
		})
		return name, true
	}
}

func (s *Synthesizer) fromPlan(plan *Specification, cs *columnSet) (*Specification, []Decision) {
	var ds []Decision
	out := &Specification{
		Version: plan.Version,
		Tabs:    append([]string(nil), plan.Tabs...),
	}
	if plan.Labels != nil {
		out.Labels = make(map[string]string, len(plan.Labels))
		for k, v := range plan.Labels {
			out.Labels[k] = v
		}
	}
	if plan.Formatting != nil {
		out.Formatting = cloneAnyMap(plan.Formatting)
	}
	if plan.Time != nil {
		if name, ok := resolveField(s.resolver, cs, "time.column", plan.Time.Column, &ds); ok {
			out.Time = &TimeSpec{Column: name, Type: plan.Time.Type}
		}
	}
	for i, k := range plan.KPIs {
		name, ok := resolveField(s.resolver, cs, fmt.Sprintf("kpis[%d].column", i), k.Column, &ds)
		if !ok {
			continue
		}
		k.Column = name
		if k.Label == "" {
			k.Label = cs.byName[name].Column.Label()
		}
		out.KPIs = append(out.KPIs, k)
	}
	if plan.Funnel != nil {
		f := &Funnel{}
		for i, st := range plan.Funnel.Stages {
			name, ok := resolveField(s.resolver, cs, fmt.Sprintf("funnel.stages[%d].column", i), st.Column, &ds)
			if !ok {
				continue
			}
			st.Column = name
			f.Stages = append(f.Stages, st)
		}
		if plan.Funnel.IDColumn != "" {
			if name, ok := resolveField(s.resolver, cs, "funnel.id_column", plan.Funnel.IDColumn, &ds); ok {
				f.IDColumn = name
			}
		}
		if len(f.Stages) >= 2 {
			out.Funnel = f
		} else {
			ds = append(ds, Decision{Field: "funnel", Action: ActionDropped,
				Reason: fmt.Sprintf("only %d stage(s) resolved", len(f.Stages)), Severity: SeverityWarning})
		}
	}
	for i, c := range plan.Charts {
		x, ok := resolveField(s.resolver, cs, fmt.Sprintf("charts[%d].x_column", i), c.XColumn, &ds)
		if !ok {
			continue
		}
		ch := Chart{Type: c.Type, Title: c.Title, XColumn: x}
		for j, sr := range c.Series {
			name, ok := resolveField(s.resolver, cs, fmt.Sprintf("charts[%d].series[%d].column", i, j), sr.Column, &ds)
			if !ok {
				continue
			}
			sr.Column = name
			ch.Series = append(ch.Series, sr)
		}
		if len(ch.Series) == 0 {
			ds = append(ds, Decision{Field: fmt.Sprintf("charts[%d]", i), Action: ActionDropped,
				Reason: "no series resolved", Severity: SeverityWarning})
			continue
		}
		out.Charts = append(out.Charts, ch)
	}
	for i, tc := range plan.Table.Columns {
		name, ok := resolveField(s.resolver, cs, fmt.Sprintf("table.columns[%d].column", i), tc.Column, &ds)
		if !ok {
			continue
		}
		tc.Column = name
		out.Table.Columns = append(out.Table.Columns, tc)
	}
	if len(out.Table.Columns) == 0 {
		out.Table = defaultTable(cs)
	}
	return out, ds
}

func (s *Synthesizer) fromLegacyTiles(tiles []LegacyTile, cs *columnSet, det *Detection) (*Specification, []Decision) {
	var ds []Decision
	spec := s.fromHeuristics(cs, det)
	spec.KPIs = nil
	for i, t := range tiles {
		name, ok := resolveField(s.resolver, cs, fmt.Sprintf("tiles[%d].column", i), t.Column, &ds)
		if !ok {
			continue
		}
		k := kpiFor(cs.byName[name])
		if t.Label != "" {
			k.Label = t.Label
		}
		if t.Aggregation != "" {
			k.Aggregation = t.Aggregation
		}
		if t.Format != "" {
			k.Format = t.Format
		}
		spec.KPIs = append(spec.KPIs, k)
		if len(spec.KPIs) == MaxKPIs {
			break
		}
	}
	if len(spec.KPIs) == 0 {
		// Without a single tile the heuristic KPIs would make this
		// indistinguishable from the heuristic strategy.
		return &Specification{}, ds
	}
	return spec, ds
}

func (s *Synthesizer) fromHeuristics(cs *columnSet, det *Detection) *Specification {
	spec := &Specification{Version: SpecVersion}

	timeCol, hasTime := s.pickTime(cs)
	if hasTime {
		spec.Time = &TimeSpec{Column: timeCol.Column.Name, Type: timeType(timeCol.Column)}
	}
	idCol, hasID := cs.firstInferred(RoleIdentifier)
	stages := s.orderedStages(cs)
	metrics := metricColumns(cs)
	dim, hasDim := cs.firstInferred(RoleDimension)

	if hasID {
		spec.KPIs = append(spec.KPIs, kpiFor(idCol))
	}
	for _, st := range stages {
		if len(spec.KPIs) == MaxKPIs {
			break
		}
		spec.KPIs = append(spec.KPIs, kpiFor(st))
	}
	for _, m := range metrics {
		if len(spec.KPIs) == MaxKPIs {
			break
		}
		spec.KPIs = append(spec.KPIs, kpiFor(m))
	}

	if len(stages) >= 2 {
		f := &Funnel{}
		for _, st := range stages {
			f.Stages = append(f.Stages, FunnelStage{Column: st.Column.Name, Label: st.Column.Label()})
		}
		if hasID {
			f.IDColumn = idCol.Column.Name
		}
		spec.Funnel = f
	}

	// Charts key on the first stage, or the first metric when there is no funnel.
	var lead *ClassifiedColumn
	if len(stages) > 0 {
		lead = &stages[0]
	} else if len(metrics) > 0 {
		lead = &metrics[0]
	}
	if lead != nil && hasTime {
		spec.Charts = append(spec.Charts, trendChart(timeCol, *lead))
	}
	if won, ok := wonStage(stages); ok && hasTime && (lead == nil || won.Column.Name != lead.Column.Name) {
		spec.Charts = append(spec.Charts, trendChart(timeCol, won))
	}
	if lead != nil && hasDim {
		spec.Charts = append(spec.Charts, Chart{
			Type:    ChartBar,
			Title:   fmt.Sprintf("%s by %s", lead.Column.Label(), dim.Column.Label()),
			XColumn: dim.Column.Name,
			Series:  []Series{seriesFor(*lead)},
		})
	}
	if len(spec.Charts) > MaxCharts {
		spec.Charts = spec.Charts[:MaxCharts]
	}

	spec.Table = defaultTable(cs)
	spec.Tabs = templateTabs(spec, det != nil && det.IsMatch, hasDim)
	return spec
}

// pickTime returns the first time column, preferring the priority list.
func (s *Synthesizer) pickTime(cs *columnSet) (ClassifiedColumn, bool) {
	times := cs.allInferred(RoleTime)
	if len(times) == 0 {
		return ClassifiedColumn{}, false
	}
	for _, want := range s.rules.TimePriority {
		for _, t := range times {
			if foldName(t.Column.Name) == foldName(want) {
				return t, true
			}
		}
	}
	return times[0], true
}

// orderedStages sorts funnel-stage columns by canonical rank; unmatched stages
// go last in original column order.
func (s *Synthesizer) orderedStages(cs *columnSet) []ClassifiedColumn {
	stages := cs.allInferred(RoleFunnelStage)
	rank := func(c ClassifiedColumn) int {
		if c.Stage != nil {
			return c.Stage.Rank
		}
		if g, ok := s.rules.StageFor(c.Column.Name); ok {
			return g.Rank
		}
		return int(^uint(0) >> 1)
	}
	sort.SliceStable(stages, func(i, j int) bool { return rank(stages[i]) < rank(stages[j]) })
	return stages
}

func wonStage(stages []ClassifiedColumn) (ClassifiedColumn, bool) {
	for _, st := range stages {
		if st.Stage != nil && st.Stage.Won {
			return st, true
		}
	}
	return ClassifiedColumn{}, false
}

func metricColumns(cs *columnSet) []ClassifiedColumn {
	var out []ClassifiedColumn
	for _, c := range cs.cols {
		if c.Inferred.IsMetric() {
			out = append(out, c)
		}
	}
	return out
}

func kpiFor(c ClassifiedColumn) KPI {
	k := KPI{Column: c.Column.Name, Label: c.Column.Label(), GoalDirection: GoalUp}
	k.Aggregation, k.Format = defaultAggregation(c)
	if c.Inferred == RoleFunnelStage && c.Stage != nil && c.Stage.Lost {
		k.GoalDirection = GoalDown
	}
	return k
}

func seriesFor(c ClassifiedColumn) Series {
	agg, _ := defaultAggregation(c)
	return Series{Column: c.Column.Name, Label: c.Column.Label(), Aggregation: agg}
}

func trendChart(timeCol, c ClassifiedColumn) Chart {
	return Chart{
		Type:    ChartLine,
		Title:   fmt.Sprintf("%s over time", c.Column.Label()),
		XColumn: timeCol.Column.Name,
		Series:  []Series{seriesFor(c)},
	}
}

// defaultTable lists every non-ignored column in profile order.
func defaultTable(cs *columnSet) Table {
	var t Table
	for _, c := range cs.cols {
		if c.Role == RoleIgnored {
			continue
		}
		t.Columns = append(t.Columns, TableColumn{Column: c.Column.Name, Label: c.Column.Label(), Format: formatFor(c.Inferred)})
	}
	return t
}

// defaultAggregation picks the aggregation and format for a column's role.
func defaultAggregation(c ClassifiedColumn) (agg, format string) {
	switch c.Inferred {
	case RoleIdentifier:
		return AggCountDistinct, FormatInteger
	case RoleFunnelStage:
		return AggTruthyCount, FormatInteger
	case RoleMetricCurrency:
		return AggSum, FormatCurrency
	case RoleMetricPercent:
		return AggAvg, FormatPercent
	case RoleMetricNumeric:
		return AggSum, FormatNumber
	default:
		return AggCountDistinct, FormatInteger
	}
}

func formatFor(r Role) string {
	switch r {
	case RoleTime:
		return FormatDate
	case RoleMetricCurrency:
		return FormatCurrency
	case RoleMetricPercent:
		return FormatPercent
	case RoleMetricNumeric:
		return FormatNumber
	case RoleFunnelStage:
		return FormatInteger
	default:
		return FormatText
	}
}

func timeType(c ColumnProfile) string {
	if c.DeclaredType != "" {
		return c.DeclaredType
	}
	return "timestamp"
}

// templateTabs builds the tab list from the CRM or generic template.
func templateTabs(spec *Specification, crm, hasDimension bool) []string {
	tabs := []string{TabOverview}
	if spec.Funnel != nil && len(spec.Funnel.Stages) >= 2 {
		tabs = append(tabs, TabFunnel)
	}
	if len(spec.Charts) > 0 {
		tabs = append(tabs, TabTrends)
	}
	if crm && hasDimension {
		tabs = append(tabs, TabTeam)
	}
	return append(tabs, TabDetails)
}
