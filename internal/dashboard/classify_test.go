package dashboard

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClassifyColumn(t *testing.T) {
	tests := []struct {
		name  string
		col   ColumnProfile
		want  Role
		stage string
	}{
		{"time by name", ColumnProfile{Name: "created_at"}, RoleTime, ""},
		{"time by prefix", ColumnProfile{Name: "data_venda", DeclaredType: "text"}, RoleTime, ""},
		{"time by type", ColumnProfile{Name: "quando", DeclaredType: "timestamp with time zone"}, RoleTime, ""},
		{"time by stats", ColumnProfile{Name: "col_when", Stats: &SampleStats{DateParseRate: 0.8}}, RoleTime, ""},
		{"identifier", ColumnProfile{Name: "lead_id", DeclaredType: "integer"}, RoleIdentifier, ""},
		{"identifier idd", ColumnProfile{Name: "idd"}, RoleIdentifier, ""},
		{"stage entry", ColumnProfile{Name: "entrada"}, RoleFunnelStage, "entry"},
		{"stage prefixed", ColumnProfile{Name: "st_qualificado", DeclaredType: "boolean"}, RoleFunnelStage, "qualified"},
		{"stage accented", ColumnProfile{Name: "Reunião"}, RoleFunnelStage, "scheduled"},
		{"stage lost", ColumnProfile{Name: "perdido"}, RoleFunnelStage, "lost"},
		{"boolean stats", ColumnProfile{Name: "flag_x", DeclaredType: "integer", Stats: &SampleStats{BooleanRate: 0.9}}, RoleFunnelStage, ""},
		{"declared boolean", ColumnProfile{Name: "ativo", DeclaredType: "bool"}, RoleFunnelStage, ""},
		{"amount is not a stage", ColumnProfile{Name: "venda_total", DeclaredType: "numeric"}, RoleMetricCurrency, ""},
		{"percent", ColumnProfile{Name: "taxa_conversao", DeclaredType: "numeric"}, RoleMetricPercent, ""},
		{"percent sign", ColumnProfile{Name: "margin %", DeclaredType: "float"}, RoleMetricPercent, ""},
		{"plain numeric", ColumnProfile{Name: "quantidade", DeclaredType: "integer"}, RoleMetricNumeric, ""},
		{"numeric with precision", ColumnProfile{Name: "score", DeclaredType: "decimal(10,2)"}, RoleMetricNumeric, ""},
		{"dimension", ColumnProfile{Name: "vendedor", DeclaredType: "text"}, RoleDimension, ""},
		{"dimension untyped", ColumnProfile{Name: "canal_origem"}, RoleDimension, ""},
		{"text detail", ColumnProfile{Name: "observacao", DeclaredType: "text"}, RoleTextDetail, ""},
		{"upstream role", ColumnProfile{Name: "foo", SemanticRole: RoleDimension}, RoleDimension, ""},
	}
	c := NewClassifier(nil)
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := c.ClassifyColumn(tc.col)
			assert.Equal(t, tc.want, got.Role, got.Reason)
			assert.Equal(t, tc.want, got.Inferred)
			if tc.stage != "" {
				require.NotNil(t, got.Stage)
				assert.Equal(t, tc.stage, got.Stage.Name)
			}
		})
	}
}

func TestClassifyHiddenKeepsInferredRole(t *testing.T) {
	got := NewClassifier(nil).ClassifyColumn(ColumnProfile{Name: "entrada", Hidden: true})
	assert.Equal(t, RoleIgnored, got.Role)
	assert.Equal(t, RoleFunnelStage, got.Inferred)
}

func TestClassifyPreservesOrder(t *testing.T) {
	out := NewClassifier(nil).Classify(profiles("lead_id", "created_at", "entrada"))
	require.Len(t, out, 3)
	assert.Equal(t, "lead_id", out[0].Column.Name)
	assert.Equal(t, "entrada", out[2].Column.Name)
}

func TestCustomRules(t *testing.T) {
	r, err := ParseRules([]byte(`
stages:
  - name: trial
    rank: 1
    tokens: [trial]
  - name: paid
    rank: 2
    won: true
    tokens: [paid]
rate_threshold: 0
`))
	require.NoError(t, err)
	assert.Equal(t, DefaultRateThreshold, r.RateThreshold)
	assert.Equal(t, DefaultCRMMatchThreshold, r.CRMMatchThreshold)

	c := NewClassifier(r)
	assert.Equal(t, RoleFunnelStage, c.ClassifyColumn(ColumnProfile{Name: "trial"}).Role)
	assert.Equal(t, RoleTextDetail, c.ClassifyColumn(ColumnProfile{Name: "entrada", DeclaredType: "text"}).Role)

	_, err = ParseRules([]byte("time_patterns: ['(']"))
	assert.Error(t, err)
}

// profiles builds untyped column profiles; names carry the semantics.
func profiles(names ...string) []ColumnProfile {
	out := make([]ColumnProfile, 0, len(names))
	for _, n := range names {
		out = append(out, ColumnProfile{Name: n})
	}
	return out
}
