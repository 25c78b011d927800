package dashboard

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDetectCRMBoundary(t *testing.T) {
	d := NewDetector(nil)

	det := d.Detect([]string{"lead_id", "created_at", "entrada", "qualificado", "agendado", "venda"}, "")
	assert.Equal(t, 60, det.Confidence)
	assert.True(t, det.IsMatch)
	assert.Len(t, det.Reasons, 3)

	det = d.Detect([]string{"foo", "bar", "baz"}, "")
	assert.Equal(t, 0, det.Confidence)
	assert.False(t, det.IsMatch)
	assert.Empty(t, det.Reasons)
}

func TestDetectScoring(t *testing.T) {
	d := NewDetector(nil)
	tests := []struct {
		name    string
		cols    []string
		dataset string
		want    int
	}{
		{"platform only", []string{"foo"}, "Export Kommo 2024", 20},
		{"two stages", []string{"entrada", "venda"}, "", 15},
		{"dimensions", []string{"vendedor", "canal"}, "", 20},
		{"one dimension", []string{"vendedor"}, "", 0},
		{"all signals", []string{"lead_id", "created_at", "entrada", "qualificado", "agendado", "venda", "vendedor", "canal"}, "crm", 100},
		{"time counted once", []string{"created_at", "updated_at"}, "", 10},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, d.Detect(tc.cols, tc.dataset).Confidence)
		})
	}
}

func TestDetectThresholdIsConfigurable(t *testing.T) {
	r, err := ParseRules([]byte("crm_match_threshold: 25"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	det := NewDetector(r).Detect([]string{"lead_id", "created_at"}, "")
	assert.Equal(t, 25, det.Confidence)
	assert.True(t, det.IsMatch)
}
