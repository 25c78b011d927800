// Package analysis introspects tabular files into column profiles and a
// bounded row sample for the dashboard compiler.
package analysis

import (
	"bufio"
	"cmp"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/KaramelBytes/dashspec-cli/internal/dashboard"
)

// ErrUnsupportedFormat is returned for files that are neither CSV/TSV nor XLSX.
var ErrUnsupportedFormat = errors.New("unsupported file format")

// Options controls profiling of tabular data.
type Options struct {
	// MaxRows caps the rows that feed statistics and samples; 0 means no cap.
	// Rows past the cap are still counted.
	MaxRows int
	// SampleRows is how many rows are kept for previews.
	SampleRows int
	// Delimiter for CSV. If 0, sniffs ',', ';' and '\t' from the header line.
	Delimiter rune
	// DecimalSeparator fixes the decimal mark; 0 guesses it per value.
	DecimalSeparator rune
	// ThousandsSeparator is stripped before parsing; 0 strips ',', '.' and
	// space, whichever is not the decimal mark.
	ThousandsSeparator rune
	// Sheet selects an XLSX sheet by name; SheetIndex (1-based) is used when empty.
	Sheet      string
	SheetIndex int
}

// DefaultOptions profiles up to 100k rows and keeps 500 for previews.
func DefaultOptions() Options {
	return Options{MaxRows: 100_000, SampleRows: 500}
}

// Dataset is the profile of one tabular file.
type Dataset struct {
	Name      string                    `json:"name"`
	Rows      int                       `json:"rows"`
	Processed int                       `json:"processed"`
	Columns   []dashboard.ColumnProfile `json:"columns"`
	Summaries []ColumnSummary           `json:"summaries"`
	Samples   []dashboard.Row           `json:"-"`
	Warnings  []string                  `json:"warnings,omitempty"`
}

// ColumnSummary is the human-facing view of one column.
type ColumnSummary struct {
	Name    string `json:"name"`
	Kind    string `json:"kind"` // numeric|datetime|boolean|categorical|text|unknown
	Unit    string `json:"unit,omitempty"`
	NonNull int    `json:"non_null"`
	Missing int    `json:"missing"`
	Unique  int    `json:"unique"`

	Min  float64 `json:"min,omitempty"`
	Max  float64 `json:"max,omitempty"`
	Mean float64 `json:"mean,omitempty"`
	Std  float64 `json:"std,omitempty"`

	TopValues    []CategoryCount `json:"top_values,omitempty"`
	ExampleTexts []string        `json:"example_texts,omitempty"`
}

type CategoryCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// Source reports whether Samples covers every row of the file.
func (d *Dataset) Source() dashboard.PreviewSource {
	if d.Processed == d.Rows && len(d.Samples) == d.Rows {
		return dashboard.SourceFullScan
	}
	return dashboard.SourceSample
}

// ColumnNames lists column names in file order.
func (d *Dataset) ColumnNames() []string {
	out := make([]string, len(d.Columns))
	for i, c := range d.Columns {
		out[i] = c.Name
	}
	return out
}

// ProfileFile dispatches on the file extension.
func ProfileFile(path string, opt Options) (*Dataset, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv", ".tsv", ".txt":
		return ProfileCSV(path, opt)
	case ".xlsx":
		return ProfileXLSX(path, opt)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, ext)
	}
}

// recordReader yields one row of raw cells per call and io.EOF at the end.
type recordReader interface {
	next() ([]string, error)
}

type csvRecords struct{ r *csv.Reader }

func (c csvRecords) next() ([]string, error) { return c.r.Read() }

// ProfileCSV profiles a delimited text file.
func ProfileCSV(path string, opt Options) (*Dataset, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open csv: %w", err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	r := csv.NewReader(br)
	r.Comma = cmp.Or(opt.Delimiter, sniffDelimiter(path, br))
	r.FieldsPerRecord = -1
	r.LazyQuotes = true
	r.TrimLeadingSpace = true
	r.ReuseRecord = true
	return profileRecords(filepath.Base(path), csvRecords{r}, opt)
}

// profileRecords treats the first record as the header and profiles the rest.
func profileRecords(name string, src recordReader, opt Options) (*Dataset, error) {
	header, err := src.next()
	switch {
	case errors.Is(err, io.EOF):
		return &Dataset{Name: name}, nil
	case err != nil:
		return nil, fmt.Errorf("read header: %w", err)
	case len(header) == 0:
		return &Dataset{Name: name}, nil
	}
	p := newProfiler(name, header, opt)
	for {
		rec, err := src.next()
		if errors.Is(err, io.EOF) {
			return p.finish(), nil
		}
		if err != nil {
			return nil, fmt.Errorf("read row %d: %w", p.ds.Rows+1, err)
		}
		p.add(rec)
	}
}

// sniffDelimiter picks the most frequent of ',', ';' and '\t' on the header
// line, falling back to the extension.
func sniffDelimiter(path string, br *bufio.Reader) rune {
	best := ','
	if strings.EqualFold(filepath.Ext(path), ".tsv") {
		best = '\t'
	}
	head, _ := br.Peek(4096)
	line, _, _ := strings.Cut(strings.ReplaceAll(string(head), "\r", "\n"), "\n")
	bestN := 0
	for _, d := range []rune{',', ';', '\t'} {
		if n := strings.Count(line, string(d)); n > bestN {
			best, bestN = d, n
		}
	}
	return best
}

const (
	maxTrackedValues = 10_000
	maxExampleTexts  = 3
	maxTopValues     = 8
)

// runningStats is Welford's online mean and variance with min and max.
type runningStats struct {
	n          int
	mean, m2   float64
	minV, maxV float64
}

func (s *runningStats) push(x float64) {
	if s.n == 0 || x < s.minV {
		s.minV = x
	}
	if s.n == 0 || x > s.maxV {
		s.maxV = x
	}
	s.n++
	d := x - s.mean
	s.mean += d / float64(s.n)
	s.m2 += d * (x - s.mean)
}

// std is the sample standard deviation.
func (s *runningStats) std() float64 {
	if s.n < 2 {
		return 0
	}
	return math.Sqrt(s.m2 / float64(s.n-1))
}

// column accumulates what one header's cells look like.
type column struct {
	name, label, unit string

	present, missing int
	bools, times     int
	texts            int
	nums             runningStats
	values           map[string]int
	examples         []string
}

func (c *column) observe(v string, opt Options) {
	if v == "" {
		c.missing++
		return
	}
	c.present++
	if len(c.values) < maxTrackedValues {
		c.values[v]++
	}
	if isBoolWord(v) {
		c.bools++
	}
	if c.unit == "" && strings.Contains(v, "%") {
		c.unit = "%"
	}
	if x, ok := parseNumeric(v, opt); ok {
		c.nums.push(x)
		return
	}
	if isTimestamp(v) {
		c.times++
		return
	}
	c.texts++
	if len(c.examples) < maxExampleTexts {
		c.examples = append(c.examples, v)
	}
}

// kind resolves the dominant shape. Ties favour numeric over datetime over text.
func (c *column) kind() string {
	nums := c.nums.n
	switch {
	case c.present > 0 && c.bools == c.present && len(c.values) <= 2:
		return "boolean"
	case nums > 0 && nums >= c.times && nums >= c.texts:
		return "numeric"
	case c.times > 0 && c.times >= c.texts:
		return "datetime"
	case len(c.values) > 0 && len(c.values) < c.present:
		return "categorical"
	case c.texts > 0:
		return "text"
	}
	return "unknown"
}

func (c *column) summary(kind string) ColumnSummary {
	s := ColumnSummary{
		Name: c.name, Kind: kind, Unit: c.unit,
		NonNull: c.present, Missing: c.missing, Unique: len(c.values),
	}
	switch kind {
	case "numeric":
		s.Min, s.Max, s.Mean, s.Std = c.nums.minV, c.nums.maxV, c.nums.mean, c.nums.std()
	case "categorical":
		s.TopValues = topValues(c.values, maxTopValues)
	case "text":
		s.ExampleTexts = c.examples
	}
	return s
}

func (c *column) profile(kind string) dashboard.ColumnProfile {
	cp := dashboard.ColumnProfile{Name: c.name, DeclaredType: declaredType(kind)}
	if c.label != c.name {
		cp.DisplayLabel = c.label
	}
	if c.present+c.missing > 0 {
		cp.Stats = &dashboard.SampleStats{
			NullRate:      ratio(c.missing, c.present+c.missing),
			DistinctCount: len(c.values),
			BooleanRate:   ratio(c.bools, c.present),
			DateParseRate: ratio(c.times, c.present),
			NumericRate:   ratio(c.nums.n, c.present),
		}
	}
	return cp
}

// profiler feeds raw records into per-column accumulators.
type profiler struct {
	opt     Options
	limit   int
	cols    []*column
	ds      *Dataset
	samples [][]string
}

func newProfiler(name string, header []string, opt Options) *profiler {
	p := &profiler{opt: opt, limit: opt.MaxRows, ds: &Dataset{Name: name}}
	if p.limit <= 0 {
		p.limit = math.MaxInt
	}
	p.opt.SampleRows = max(p.opt.SampleRows, 0)

	seen := map[string]int{}
	for i, h := range header {
		raw := strings.TrimSpace(strings.TrimPrefix(h, "\ufeff"))
		if raw == "" {
			raw = fmt.Sprintf("column_%d", i+1)
		}
		if seen[raw]++; seen[raw] > 1 {
			raw = fmt.Sprintf("%s_%d", raw, seen[raw])
		}
		label, unit := splitUnits(raw)
		p.cols = append(p.cols, &column{name: raw, label: label, unit: unit, values: map[string]int{}})
	}
	return p
}

func (p *profiler) add(rec []string) {
	p.ds.Rows++
	if p.ds.Processed >= p.limit {
		return
	}
	p.ds.Processed++
	if len(p.samples) < p.opt.SampleRows {
		row := make([]string, len(p.cols))
		copy(row, rec)
		p.samples = append(p.samples, row)
	}
	for j, c := range p.cols {
		v := ""
		if j < len(rec) {
			v = strings.TrimSpace(rec[j])
		}
		c.observe(v, p.opt)
	}
}

func (p *profiler) finish() *Dataset {
	ds := p.ds
	kinds := make([]string, len(p.cols))
	for i, c := range p.cols {
		kinds[i] = c.kind()
		ds.Summaries = append(ds.Summaries, c.summary(kinds[i]))
		ds.Columns = append(ds.Columns, c.profile(kinds[i]))
	}
	for _, rec := range p.samples {
		row := make(dashboard.Row, len(p.cols))
		for j, c := range p.cols {
			row[c.name] = p.typedValue(rec[j], kinds[j])
		}
		ds.Samples = append(ds.Samples, row)
	}
	if ds.Processed < ds.Rows {
		ds.Warnings = append(ds.Warnings, fmt.Sprintf("processed only %d/%d rows due to MaxRows", ds.Processed, ds.Rows))
	}
	return ds
}

// typedValue converts a sampled cell for previews: numbers for numeric
// columns, nil for blanks, the trimmed text otherwise.
func (p *profiler) typedValue(raw, kind string) any {
	v := strings.TrimSpace(raw)
	if v == "" {
		return nil
	}
	if kind == "numeric" {
		if x, ok := parseNumeric(v, p.opt); ok {
			return x
		}
	}
	return v
}

func declaredType(kind string) string {
	switch kind {
	case "numeric", "boolean":
		return kind
	case "datetime":
		return "timestamp"
	case "unknown":
		return ""
	}
	return "text"
}

func ratio(n, d int) float64 {
	if d == 0 {
		return 0
	}
	return float64(n) / float64(d)
}

// topValues returns the n most frequent values, ties broken alphabetically.
func topValues(counts map[string]int, n int) []CategoryCount {
	out := make([]CategoryCount, 0, len(counts))
	for v, c := range counts {
		out = append(out, CategoryCount{Value: v, Count: c})
	}
	slices.SortFunc(out, func(a, b CategoryCount) int {
		return cmp.Or(cmp.Compare(b.Count, a.Count), strings.Compare(a.Value, b.Value))
	})
	return out[:min(n, len(out))]
}
