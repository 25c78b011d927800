package dashboard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func leadColumns() []ColumnProfile {
	return []ColumnProfile{
		{Name: "lead_id", DeclaredType: "integer"},
		{Name: "created_at", DeclaredType: "timestamp"},
		{Name: "entrada", DeclaredType: "boolean"},
		{Name: "qualificado", DeclaredType: "boolean"},
		{Name: "venda", DeclaredType: "boolean"},
	}
}

func synthesize(cols []ColumnProfile, in SynthesisInput) Synthesis {
	in.Columns = NewClassifier(nil).Classify(cols)
	return NewSynthesizer(nil).Synthesize(in)
}

func TestSynthesizeLeadFunnel(t *testing.T) {
	syn := synthesize(leadColumns(), SynthesisInput{})
	spec := syn.Spec
	assert.Equal(t, StrategyHeuristics, syn.Strategy)

	require.NotNil(t, spec.Time)
	assert.Equal(t, "created_at", spec.Time.Column)

	require.NotNil(t, spec.Funnel)
	var stages []string
	for _, st := range spec.Funnel.Stages {
		stages = append(stages, st.Column)
	}
	assert.Equal(t, []string{"entrada", "qualificado", "venda"}, stages)
	assert.Equal(t, "lead_id", spec.Funnel.IDColumn)

	require.NotEmpty(t, spec.KPIs)
	assert.Equal(t, KPI{Column: "lead_id", Label: "lead_id", Aggregation: AggCountDistinct, Format: FormatInteger, GoalDirection: GoalUp}, spec.KPIs[0])
	assert.Len(t, spec.KPIs, 4)
	for _, k := range spec.KPIs[1:] {
		assert.Equal(t, AggTruthyCount, k.Aggregation)
	}

	require.Len(t, spec.Charts, 2)
	for _, c := range spec.Charts {
		assert.Equal(t, ChartLine, c.Type)
		assert.Equal(t, "created_at", c.XColumn)
	}
	assert.Equal(t, "entrada", spec.Charts[0].Series[0].Column)
	assert.Equal(t, "venda", spec.Charts[1].Series[0].Column)

	assert.Len(t, spec.Table.Columns, 5)
	assert.Equal(t, []string{TabOverview, TabFunnel, TabTrends, TabDetails}, spec.Tabs)
}

func TestSynthesizedSpecValidatesCleanly(t *testing.T) {
	cols := leadColumns()
	syn := synthesize(cols, SynthesisInput{})
	res := ValidateAndRepair(syn.Spec, cols)
	assert.True(t, res.Valid)
	assert.Empty(t, res.Warnings)
	assert.Nil(t, res.Fallback)
}

func TestSynthesizeStageOrdering(t *testing.T) {
	cols := []ColumnProfile{
		{Name: "flag_custom", DeclaredType: "boolean"},
		{Name: "venda", DeclaredType: "boolean"},
		{Name: "perdido", DeclaredType: "boolean"},
		{Name: "entrada", DeclaredType: "boolean"},
	}
	spec := synthesize(cols, SynthesisInput{}).Spec
	require.NotNil(t, spec.Funnel)
	var got []string
	for _, st := range spec.Funnel.Stages {
		got = append(got, st.Column)
	}
	assert.Equal(t, []string{"entrada", "venda", "perdido", "flag_custom"}, got)

	for _, k := range spec.KPIs {
		if k.Column == "perdido" {
			assert.Equal(t, GoalDown, k.GoalDirection)
		} else {
			assert.Equal(t, GoalUp, k.GoalDirection)
		}
	}
}

func TestSynthesizeKPICap(t *testing.T) {
	cols := []ColumnProfile{{Name: "lead_id"}}
	for _, n := range []string{"entrada", "novo", "qualificado", "mql", "agendado", "reuniao", "compareceu", "proposta", "venda"} {
		cols = append(cols, ColumnProfile{Name: n, DeclaredType: "boolean"})
	}
	spec := synthesize(cols, SynthesisInput{}).Spec
	assert.Len(t, spec.KPIs, MaxKPIs)
	assert.Equal(t, "lead_id", spec.KPIs[0].Column)
}

func TestSynthesizeGenericMetrics(t *testing.T) {
	cols := []ColumnProfile{
		{Name: "data", DeclaredType: "date"},
		{Name: "vendedor", DeclaredType: "text"},
		{Name: "receita", DeclaredType: "numeric"},
		{Name: "taxa_conversao", DeclaredType: "numeric"},
	}
	spec := synthesize(cols, SynthesisInput{}).Spec
	require.Len(t, spec.KPIs, 2)
	assert.Equal(t, AggSum, spec.KPIs[0].Aggregation)
	assert.Equal(t, FormatCurrency, spec.KPIs[0].Format)
	assert.Equal(t, AggAvg, spec.KPIs[1].Aggregation)
	assert.Equal(t, FormatPercent, spec.KPIs[1].Format)

	require.Len(t, spec.Charts, 2)
	assert.Equal(t, "data", spec.Charts[0].XColumn)
	assert.Equal(t, ChartBar, spec.Charts[1].Type)
	assert.Equal(t, "vendedor", spec.Charts[1].XColumn)
	assert.Nil(t, spec.Funnel)
	assert.Equal(t, []string{TabOverview, TabTrends, TabDetails}, spec.Tabs)
}

func TestSynthesizeCRMTabs(t *testing.T) {
	cols := append(leadColumns(), ColumnProfile{Name: "vendedor", DeclaredType: "text"})
	det := Detection{IsMatch: true, Confidence: 80}
	spec := synthesize(cols, SynthesisInput{Detection: &det}).Spec
	assert.Equal(t, []string{TabOverview, TabFunnel, TabTrends, TabTeam, TabDetails}, spec.Tabs)
	assert.Len(t, spec.Charts, 3)
}

func TestSynthesizeFromPlan(t *testing.T) {
	plan := &Specification{
		Version: 1,
		KPIs: []KPI{
			{Column: "ST_Entrada", Aggregation: AggTruthyCount},
			{Column: "missing", Aggregation: AggSum},
		},
		Charts: []Chart{{Type: ChartBar, XColumn: "nowhere", Series: []Series{{Column: "venda"}}}},
	}
	syn := synthesize(leadColumns(), SynthesisInput{Plan: plan})
	assert.Equal(t, StrategyExternalPlan, syn.Strategy)
	require.Len(t, syn.Spec.KPIs, 1)
	assert.Equal(t, "entrada", syn.Spec.KPIs[0].Column)
	assert.Empty(t, syn.Spec.Charts)
	assert.Len(t, syn.Spec.Table.Columns, 5)

	var dropped []string
	for _, d := range syn.Decisions {
		if d.Action == ActionDropped {
			dropped = append(dropped, d.Requested)
		}
	}
	assert.Equal(t, []string{"missing", "nowhere"}, dropped)
	// the plan itself is untouched
	assert.Equal(t, "ST_Entrada", plan.KPIs[0].Column)
}

func TestSynthesizeUnusablePlanFallsThrough(t *testing.T) {
	plan := &Specification{KPIs: []KPI{{Column: "nope"}}}
	syn := synthesize(leadColumns(), SynthesisInput{Plan: plan})
	assert.Equal(t, StrategyHeuristics, syn.Strategy)
	require.NotEmpty(t, syn.Decisions)
	last := syn.Decisions[len(syn.Decisions)-1]
	assert.Equal(t, ActionRejected, last.Action)
	assert.Equal(t, string(StrategyExternalPlan), last.Field)
}

func TestSynthesizeFromLegacyTiles(t *testing.T) {
	tiles := []LegacyTile{{Column: "Venda", Label: "Vendas"}, {Column: "gone"}}
	syn := synthesize(leadColumns(), SynthesisInput{LegacyTiles: tiles})
	assert.Equal(t, StrategyLegacyTiles, syn.Strategy)
	require.Len(t, syn.Spec.KPIs, 1)
	assert.Equal(t, KPI{Column: "venda", Label: "Vendas", Aggregation: AggTruthyCount, Format: FormatInteger, GoalDirection: GoalUp}, syn.Spec.KPIs[0])
	assert.NotNil(t, syn.Spec.Funnel)
}

func TestSynthesizePlanBeatsTiles(t *testing.T) {
	plan := &Specification{KPIs: []KPI{{Column: "lead_id", Aggregation: AggCountDistinct}}}
	syn := synthesize(leadColumns(), SynthesisInput{Plan: plan, LegacyTiles: []LegacyTile{{Column: "venda"}}})
	assert.Equal(t, StrategyExternalPlan, syn.Strategy)
}
