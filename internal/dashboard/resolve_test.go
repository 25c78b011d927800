package dashboard

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		name      string
		requested string
		available []string
		want      string
		kind      MatchKind
	}{
		{"prefixed and cased", "ST_Entrada", []string{"entrada"}, "entrada", MatchNormalized},
		{"exact", "venda_total", []string{"venda_total"}, "venda_total", MatchExact},
		{"unknown", "unknown_col", []string{"a", "b"}, "", MatchNone},
		{"case only", "Created_At", []string{"created_at"}, "created_at", MatchCaseInsensitive},
		{"accents", "Qualificação", []string{"lead_id", "qualificacao"}, "qualificacao", MatchNormalized},
		{"separators", "data-entrada", []string{"data_entrada"}, "data_entrada", MatchNormalized},
		{"substring", "lead", []string{"created_at", "lead_source_name"}, "lead_source_name", MatchSubstring},
		{"earliest step wins", "data", []string{"data_entrada", "Data"}, "Data", MatchCaseInsensitive},
		{"blank", "  ", []string{"a"}, "", MatchNone},
		{"no columns", "a", nil, "", MatchNone},
	}
	r := NewResolver(nil)
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, kind := r.ResolveKind(tc.requested, tc.available)
			assert.Equal(t, tc.want, got)
			assert.Equal(t, tc.kind, kind)
		})
	}
}

func TestResolvePackageLevel(t *testing.T) {
	got, ok := Resolve("ST_Entrada", []string{"entrada"})
	assert.True(t, ok)
	assert.Equal(t, "entrada", got)

	_, ok = Resolve("unknown_col", []string{"a", "b"})
	assert.False(t, ok)
}

func TestFoldName(t *testing.T) {
	assert.Equal(t, "qualificacao", foldName("  Qualificação "))
	assert.Equal(t, "reuniao", foldName("Reunião"))
	assert.Equal(t, "plain", foldName("PLAIN"))
}
