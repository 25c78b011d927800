package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/KaramelBytes/dashspec-cli/internal/ai"
	"github.com/KaramelBytes/dashspec-cli/internal/analysis"
	cfgpkg "github.com/KaramelBytes/dashspec-cli/internal/config"
	"github.com/KaramelBytes/dashspec-cli/internal/dashboard"
	"github.com/KaramelBytes/dashspec-cli/internal/store"
	"github.com/KaramelBytes/dashspec-cli/internal/utils"
)

// runtimeOptions captures CLI-level overrides for runtime selection.
type runtimeOptions struct {
	ProviderFlag string
	OllamaHost   string
}

// buildRuntime resolves a provider from flags and config and constructs the runtime.
func buildRuntime(cfg *cfgpkg.Global, opts runtimeOptions) (ai.Runtime, string, error) {
	httpTimeout := 60 * time.Second
	retryMax := 3
	baseDelay := 500 * time.Millisecond
	maxDelay := 4 * time.Second
	if cfg != nil {
		if cfg.HTTPTimeoutSec > 0 {
			httpTimeout = time.Duration(cfg.HTTPTimeoutSec) * time.Second
		}
		if cfg.RetryMaxAttempts > 0 {
			retryMax = cfg.RetryMaxAttempts
		}
		if cfg.RetryBaseDelayMs > 0 {
			baseDelay = time.Duration(cfg.RetryBaseDelayMs) * time.Millisecond
		}
		if cfg.RetryMaxDelayMs > 0 {
			maxDelay = time.Duration(cfg.RetryMaxDelayMs) * time.Millisecond
		}
	}

	providerName := strings.TrimSpace(opts.ProviderFlag)
	if providerName == "" && cfg != nil {
		providerName = cfg.DefaultProvider
	}
	providerName = normalizeProvider(providerName)

	apiKey := os.Getenv("OPENROUTER_API_KEY")
	if apiKey == "" && cfg != nil {
		apiKey = cfg.APIKey
	}
	rc := ai.RuntimeConfig{
		HTTPTimeout: httpTimeout,
		RetryMax:    retryMax,
		BaseDelay:   baseDelay,
		MaxDelay:    maxDelay,
		APIKey:      apiKey,
	}
	if providerName == ai.ProviderOllama {
		host := strings.TrimSpace(opts.OllamaHost)
		if host == "" && cfg != nil {
			host = cfg.OllamaHost
		}
		rc.Host = host
		if cfg != nil && cfg.OllamaTimeoutSec > 0 {
			rc.HTTPTimeout = time.Duration(cfg.OllamaTimeoutSec) * time.Second
		}
		// Local models are slow to load; don't hammer them.
		rc.RetryMax = 0
		rc.BaseDelay = 0
		rc.MaxDelay = 0
	}
	rt, err := ai.NewRuntime(providerName, rc)
	if err != nil {
		return nil, "", err
	}
	return rt, providerName, nil
}

// normalizeProvider maps vendor aliases onto registered providers.
func normalizeProvider(name string) string {
	name = strings.ToLower(strings.TrimSpace(name))
	switch name {
	case "":
		return ai.ProviderOpenRouter
	case "local", "ollama":
		return ai.ProviderOllama
	case "openai", "anthropic", "google", "gemini", "meta", "llama":
		return ai.ProviderOpenRouter
	}
	return name
}

// selectModel picks the flag value, then the configured default.
func selectModel(flagModel, provider string) string {
	if m := strings.TrimSpace(flagModel); m != "" {
		return m
	}
	if cfg != nil && cfg.DefaultModel != "" && !(provider == ai.ProviderOllama && strings.Contains(cfg.DefaultModel, "/")) {
		return cfg.DefaultModel
	}
	if provider == ai.ProviderOllama {
		return "llama3.1:8b"
	}
	return "openai/gpt-4o-mini"
}

// buildPlanner wires an LLM planner from flags and config.
func buildPlanner(provider, model, ollamaHost string) (*ai.Planner, string, error) {
	rt, prov, err := buildRuntime(cfg, runtimeOptions{ProviderFlag: provider, OllamaHost: ollamaHost})
	if err != nil {
		return nil, "", err
	}
	model = selectModel(model, prov)
	opts := []ai.PlannerOption{ai.WithPlannerLogger(logger)}
	if cfg != nil {
		opts = append(opts, ai.WithMaxTokens(cfg.MaxTokens))
		if cfg.Temperature > 0 {
			opts = append(opts, ai.WithTemperature(cfg.Temperature))
		}
	}
	return ai.NewPlanner(rt, model, opts...), model, nil
}

// dataFlags are the profiling flags shared by commands that read a dataset.
type dataFlags struct {
	delimiter  string
	decimal    string
	thousands  string
	sheetName  string
	sheetIndex int
	sampleRows int
	maxRows    int
}

func (f *dataFlags) register(c *cobra.Command) {
	c.Flags().StringVar(&f.delimiter, "delimiter", "", "CSV delimiter: ',', ';', 'tab' (default: sniff)")
	c.Flags().StringVar(&f.decimal, "decimal", "", "decimal separator for numbers: '.' or ','")
	c.Flags().StringVar(&f.thousands, "thousands", "", "thousands separator: ',', '.', 'space' (optional)")
	c.Flags().StringVar(&f.sheetName, "sheet-name", "", "XLSX: sheet name to read")
	c.Flags().IntVar(&f.sheetIndex, "sheet-index", 0, "XLSX: 1-based sheet index (used if --sheet-name not provided)")
	c.Flags().IntVar(&f.sampleRows, "sample-rows", 0, "rows kept for previews (default from config)")
	c.Flags().IntVar(&f.maxRows, "max-rows", 0, "max rows to scan; 0 uses config")
}

func (f *dataFlags) options() (analysis.Options, error) {
	opt := analysis.DefaultOptions()
	if cfg != nil {
		if cfg.SampleRows > 0 {
			opt.SampleRows = cfg.SampleRows
		}
		if cfg.MaxRows > 0 {
			opt.MaxRows = cfg.MaxRows
		}
	}
	if f.sampleRows > 0 {
		opt.SampleRows = f.sampleRows
	}
	if f.maxRows > 0 {
		opt.MaxRows = f.maxRows
	}
	switch strings.ToLower(strings.TrimSpace(f.delimiter)) {
	case "":
	case ",", "comma":
		opt.Delimiter = ','
	case ";", "semicolon":
		opt.Delimiter = ';'
	case "tab", "\\t", "\t":
		opt.Delimiter = '\t'
	default:
		return opt, fmt.Errorf("unsupported --delimiter %q", f.delimiter)
	}
	switch strings.TrimSpace(f.decimal) {
	case "":
	case ".":
		opt.DecimalSeparator = '.'
	case ",":
		opt.DecimalSeparator = ','
	default:
		return opt, fmt.Errorf("unsupported --decimal %q", f.decimal)
	}
	switch strings.ToLower(strings.TrimSpace(f.thousands)) {
	case "":
	case ",":
		opt.ThousandsSeparator = ','
	case ".":
		opt.ThousandsSeparator = '.'
	case "space", " ":
		opt.ThousandsSeparator = ' '
	default:
		return opt, fmt.Errorf("unsupported --thousands %q", f.thousands)
	}
	opt.Sheet = strings.TrimSpace(f.sheetName)
	if opt.Sheet == "" && f.sheetIndex > 0 {
		opt.SheetIndex = f.sheetIndex
	}
	return opt, nil
}

// loadDataset profiles the file at path with the shared data flags.
func loadDataset(path string, f *dataFlags) (*analysis.Dataset, error) {
	opt, err := f.options()
	if err != nil {
		return nil, err
	}
	ds, err := analysis.ProfileFile(path, opt)
	if err != nil {
		return nil, fmt.Errorf("profile %s: %w", path, err)
	}
	logger.Debug().Str("file", path).Int("rows", ds.Rows).Int("columns", len(ds.Columns)).Msg("profiled")
	return ds, nil
}

// datasetName is the file name without extension.
func datasetName(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// readSpec reads a JSON specification file.
func readSpec(path string) (*dashboard.Specification, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read spec: %w", err)
	}
	var spec dashboard.Specification
	if err := json.Unmarshal(b, &spec); err != nil {
		return nil, fmt.Errorf("parse spec %s: %w", path, err)
	}
	return &spec, nil
}

// readLegacyTiles reads a JSON array of legacy KPI tiles.
func readLegacyTiles(path string) ([]dashboard.LegacyTile, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read legacy tiles: %w", err)
	}
	var tiles []dashboard.LegacyTile
	if err := json.Unmarshal(b, &tiles); err != nil {
		return nil, fmt.Errorf("parse legacy tiles %s: %w", path, err)
	}
	return tiles, nil
}

// writeJSON prints v indented, to path when set and to w otherwise.
func writeJSON(w io.Writer, path string, v any) error {
	b, err := utils.PrettyJSON(v)
	if err != nil {
		return err
	}
	b = append(b, '\n')
	if path != "" {
		if err := utils.SafeWriteFile(path, b); err != nil {
			return err
		}
		success(w, "Wrote %s", path)
		return nil
	}
	_, err = w.Write(b)
	return err
}

// openStore opens the configured dashboard database.
func openStore(ctx context.Context, rules *dashboard.Rules) (*store.Store, error) {
	path := ""
	if cfg != nil {
		path = cfg.StorePath
	}
	if path == "" {
		dir, err := cfgpkg.Dir()
		if err != nil {
			return nil, err
		}
		path = filepath.Join(dir, "dashboards.db")
	}
	st, err := store.Open(ctx, path, rules)
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}
	return st, nil
}

func newTable(w io.Writer) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	return t
}

func renderColumns(w io.Writer, ds *analysis.Dataset, classified []dashboard.ClassifiedColumn) {
	roles := make(map[string]dashboard.ClassifiedColumn, len(classified))
	for _, cc := range classified {
		roles[cc.Column.Name] = cc
	}
	t := newTable(w)
	t.AppendHeader(table.Row{"Column", "Kind", "Type", "Role", "Missing", "Distinct", "Notes"})
	for _, s := range ds.Summaries {
		cc := roles[s.Name]
		role := string(cc.Role)
		if cc.Stage != nil {
			role += " (" + cc.Stage.Name + ")"
		}
		notes := ""
		switch s.Kind {
		case "numeric":
			notes = fmt.Sprintf("min %.4g max %.4g mean %.4g", s.Min, s.Max, s.Mean)
		case "categorical":
			vals := make([]string, 0, len(s.TopValues))
			for _, kv := range s.TopValues {
				vals = append(vals, fmt.Sprintf("%s(%d)", kv.Value, kv.Count))
			}
			notes = strings.Join(vals, ", ")
		}
		if s.Unit != "" {
			notes = strings.TrimSpace("[" + s.Unit + "] " + notes)
		}
		t.AppendRow(table.Row{s.Name, s.Kind, cc.Column.DeclaredType, role, s.Missing, s.Unique, truncate(notes, 60)})
	}
	t.Render()
}

func renderDetection(w io.Writer, det dashboard.Detection) {
	if det.IsMatch {
		success(w, "CRM/lead funnel: confidence %d", det.Confidence)
	} else {
		failure(w, "CRM/lead funnel: confidence %d", det.Confidence)
	}
	for _, r := range det.Reasons {
		fmt.Fprintf(w, "  - %s\n", r)
	}
}

func renderPreview(w io.Writer, pv *dashboard.AggregationPreview) {
	if pv == nil {
		return
	}
	note := "full scan"
	if pv.Approximate {
		note = fmt.Sprintf("approximate, %d sampled rows", pv.RowCount)
	}
	fmt.Fprintf(w, "Preview (%s):\n", note)
	if len(pv.KPIValues) > 0 {
		t := newTable(w)
		t.AppendHeader(table.Row{"KPI", "Column", "Value"})
		for _, k := range pv.KPIValues {
			t.AppendRow(table.Row{k.Label, k.Column, formatValue(k.Value, k.Format)})
		}
		t.Render()
	}
	if len(pv.FunnelValues) > 0 {
		t := newTable(w)
		t.AppendHeader(table.Row{"Stage", "Column", "Count", "Conversion"})
		first := pv.FunnelValues[0].Value
		for _, s := range pv.FunnelValues {
			conv := "-"
			if first > 0 {
				conv = fmt.Sprintf("%.1f%%", s.Value*100/first)
			}
			t.AppendRow(table.Row{s.Label, s.Column, formatValue(s.Value, dashboard.FormatInteger), conv})
		}
		t.Render()
	}
}

func renderValidation(w io.Writer, v dashboard.ValidationResult) {
	if v.Fallback != nil && v.Fallback.Applied {
		warning(w, "Fallback applied: %s", v.Fallback.Reason)
	}
	for _, m := range v.Warnings {
		warning(w, "%s", m)
	}
	for _, m := range v.Errors {
		failure(w, "%s", m)
	}
}

func renderSpecSummary(w io.Writer, spec *dashboard.Specification) {
	if spec == nil {
		return
	}
	t := newTable(w)
	t.AppendHeader(table.Row{"Section", "Contents"})
	if spec.Time != nil {
		t.AppendRow(table.Row{"time", spec.Time.Column})
	}
	kpis := make([]string, 0, len(spec.KPIs))
	for _, k := range spec.KPIs {
		kpis = append(kpis, fmt.Sprintf("%s(%s)", k.Aggregation, k.Column))
	}
	t.AppendRow(table.Row{"kpis", strings.Join(kpis, ", ")})
	if spec.Funnel != nil {
		stages := make([]string, 0, len(spec.Funnel.Stages))
		for _, s := range spec.Funnel.Stages {
			stages = append(stages, s.Column)
		}
		t.AppendRow(table.Row{"funnel", strings.Join(stages, " → ")})
	}
	for _, c := range spec.Charts {
		series := make([]string, 0, len(c.Series))
		for _, s := range c.Series {
			series = append(series, s.Column)
		}
		t.AppendRow(table.Row{"chart/" + c.Type, fmt.Sprintf("%s by %s", strings.Join(series, ", "), c.XColumn)})
	}
	t.AppendRow(table.Row{"table", fmt.Sprintf("%d columns", len(spec.Table.Columns))})
	t.AppendRow(table.Row{"tabs", strings.Join(spec.Tabs, ", ")})
	t.Render()
}

func renderDashboards(w io.Writer, list []store.Dashboard) {
	t := newTable(w)
	t.AppendHeader(table.Row{"ID", "Name", "Dataset", "Strategy", "KPIs", "Updated"})
	for _, d := range list {
		kpis := 0
		if d.Spec != nil {
			kpis = len(d.Spec.KPIs)
		}
		t.AppendRow(table.Row{d.ID, d.Name, d.DatasetName, string(d.Strategy), kpis, d.UpdatedAt.Local().Format("2006-01-02 15:04")})
	}
	t.Render()
}

func formatValue(v float64, format string) string {
	switch format {
	case dashboard.FormatInteger:
		return strconv.FormatFloat(v, 'f', 0, 64)
	case dashboard.FormatPercent:
		return strconv.FormatFloat(v, 'f', 2, 64) + "%"
	case dashboard.FormatCurrency:
		return strconv.FormatFloat(v, 'f', 2, 64)
	}
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-3]) + "..."
}
