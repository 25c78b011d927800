package dashboard

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Row is one sampled record keyed by column name.
type Row map[string]any

// Preview computes approximate KPI and funnel values over rows using the
// default truthy values. source must say whether rows is a bounded sample or a
// full scan; sample-based previews are marked approximate.
func Preview(rows []Row, spec *Specification, source PreviewSource) AggregationPreview {
	return defaultPreviewer.Preview(rows, spec, source)
}

var defaultPreviewer = NewPreviewer(nil)

// Previewer aggregates sampled rows for a validated specification.
type Previewer struct {
	rules *Rules
}

// NewPreviewer returns a previewer over rules (DefaultRules when nil).
func NewPreviewer(rules *Rules) *Previewer {
	if rules == nil {
		rules = DefaultRules()
	}
	return &Previewer{rules: rules}
}

// Preview computes per-KPI and per-stage values. It performs no I/O.
func (p *Previewer) Preview(rows []Row, spec *Specification, source PreviewSource) AggregationPreview {
	if source == "" {
		source = SourceSample
	}
	out := AggregationPreview{
		KPIValues:    []KPIValue{},
		FunnelValues: []StageValue{},
		Source:       source,
		Approximate:  source != SourceFullScan,
		RowCount:     len(rows),
	}
	if spec == nil {
		return out
	}
	for _, k := range spec.KPIs {
		out.KPIValues = append(out.KPIValues, KPIValue{
			Column: k.Column,
			Label:  nonEmpty(k.Label, k.Column),
			Value:  round2(p.aggregate(rows, k.Column, k.Aggregation)),
			Format: k.Format,
		})
	}
	if spec.Funnel != nil {
		for _, st := range spec.Funnel.Stages {
			out.FunnelValues = append(out.FunnelValues, StageValue{
				Column: st.Column,
				Label:  nonEmpty(st.Label, st.Column),
				Value:  round2(p.aggregate(rows, st.Column, AggTruthyCount)),
			})
		}
	}
	return out
}

func (p *Previewer) aggregate(rows []Row, col, agg string) float64 {
	switch agg {
	case AggSum:
		var sum float64
		for _, r := range rows {
			if f, ok := toFloat(r[col]); ok {
				sum += f
			}
		}
		return sum
	case AggCount:
		return float64(len(rows))
	case AggCountDistinct:
		seen := make(map[string]struct{})
		for _, r := range rows {
			v := r[col]
			if isNull(v) {
				continue
			}
			seen[distinctKey(v)] = struct{}{}
		}
		return float64(len(seen))
	case AggAvg:
		var sum float64
		n := 0
		for _, r := range rows {
			if f, ok := toFloat(r[col]); ok {
				sum += f
				n++
			}
		}
		if n == 0 {
			return 0
		}
		return sum / float64(n)
	case AggTruthyCount:
		n := 0
		for _, r := range rows {
			if p.Truthy(r[col]) {
				n++
			}
		}
		return float64(n)
	default:
		n := 0
		for _, r := range rows {
			if !isNull(r[col]) {
				n++
			}
		}
		return float64(n)
	}
}

// Truthy reports whether v counts as "stage reached" under the default rules.
func Truthy(v any) bool { return defaultPreviewer.Truthy(v) }

// Truthy coerces v to a boolean: nil and blank strings are false, booleans are
// themselves, numbers are true when positive, and anything else is matched
// lower-cased and trimmed against the truthy value set.
func (p *Previewer) Truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		s := strings.ToLower(strings.TrimSpace(t))
		return s != "" && p.rules.truthy[s]
	case json.Number:
		f, err := t.Float64()
		return err == nil && f > 0
	}
	if f, ok := numberValue(v); ok {
		return f > 0
	}
	return p.rules.truthy[strings.ToLower(strings.TrimSpace(fmt.Sprint(v)))]
}

func isNull(v any) bool {
	if v == nil {
		return true
	}
	if s, ok := v.(string); ok {
		return strings.TrimSpace(s) == ""
	}
	return false
}

// distinctKey keys values so 1, 1.0 and "1" from different decoders collapse.
func distinctKey(v any) string {
	if f, ok := numberValue(v); ok {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return fmt.Sprint(v)
}

// numberValue converts Go numeric kinds to float64.
func numberValue(v any) (float64, bool) {
	switch t := v.(type) {
	case float64:
		return t, true
	case float32:
		return float64(t), true
	case int:
		return float64(t), true
	case int8:
		return float64(t), true
	case int16:
		return float64(t), true
	case int32:
		return float64(t), true
	case int64:
		return float64(t), true
	case uint:
		return float64(t), true
	case uint8:
		return float64(t), true
	case uint16:
		return float64(t), true
	case uint32:
		return float64(t), true
	case uint64:
		return float64(t), true
	case json.Number:
		f, err := t.Float64()
		return f, err == nil
	}
	return 0, false
}

// toFloat parses numeric values, accepting strings with a comma decimal
// separator ("1.234,56" and "12,5").
func toFloat(v any) (float64, bool) {
	if f, ok := numberValue(v); ok {
		return f, isFinite(f)
	}
	s, ok := v.(string)
	if !ok {
		return 0, false
	}
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if strings.Contains(s, ",") {
		if strings.Contains(s, ".") {
			s = strings.ReplaceAll(s, ".", "")
		}
		s = strings.ReplaceAll(s, ",", ".")
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || !isFinite(f) {
		return 0, false
	}
	return f, true
}

func round2(f float64) float64 {
	if !isFinite(f) {
		return 0
	}
	return math.Round(f*100) / 100
}

func nonEmpty(s, fallback string) string {
	if s != "" {
		return s
	}
	return fallback
}
