package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/KaramelBytes/dashspec-cli/internal/ai"
	"github.com/KaramelBytes/dashspec-cli/internal/dashboard"
	"github.com/KaramelBytes/dashspec-cli/internal/store"
)

const leadsCSV = `lead_id,created_at,entrada,qualificado,venda,vendedor,valor
1,2024-01-01,sim,sim,sim,Ana,100
2,2024-01-02,sim,sim,nao,Bruno,200
3,2024-01-03,sim,nao,nao,Ana,
`

// resetFlags puts every flag back to its default so package-level flag vars
// don't leak between invocations.
func resetFlags(c *cobra.Command) {
	reset := func(fl *pflag.Flag) {
		_ = fl.Value.Set(fl.DefValue)
		fl.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// execute runs the root command with args and returns its stdout.
func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	color.NoColor = true
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

// runCmd is execute that fails the test on error.
func runCmd(t *testing.T, args ...string) string {
	t.Helper()
	out, err := execute(t, args...)
	require.NoError(t, err, "command %v failed:\n%s", args, out)
	return out
}

// setupHome isolates config and store under a temp HOME and writes the leads fixture.
func setupHome(t *testing.T) (home, data string) {
	t.Helper()
	home = t.TempDir()
	t.Setenv("HOME", home)
	data = filepath.Join(home, "leads.csv")
	require.NoError(t, os.WriteFile(data, []byte(leadsCSV), 0o644))
	return home, data
}

func TestCLI_Profile(t *testing.T) {
	_, data := setupHome(t)

	out := runCmd(t, "profile", data)
	assert.Contains(t, out, "leads.csv: 3 rows, 7 columns")
	assert.Contains(t, out, "lead_id")
	assert.Contains(t, out, string(dashboard.RoleFunnelStage))

	out = runCmd(t, "profile", data, "--markdown")
	assert.Contains(t, out, "[DATASET SUMMARY]")

	out = runCmd(t, "profile", data, "--json")
	var ds map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &ds))
	assert.EqualValues(t, 3, ds["rows"])
}

func TestCLI_ProfileRejectsBadDelimiter(t *testing.T) {
	_, data := setupHome(t)
	_, err := execute(t, "profile", data, "--delimiter", "|")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--delimiter")
}

func TestCLI_Detect(t *testing.T) {
	_, data := setupHome(t)

	out := runCmd(t, "detect", data)
	assert.Contains(t, out, "CRM/lead funnel: confidence")
	assert.Contains(t, out, `identifier column "lead_id"`)

	out = runCmd(t, "detect", data, "--json")
	var det dashboard.Detection
	require.NoError(t, json.Unmarshal([]byte(out), &det))
	assert.NotEmpty(t, det.Reasons)
}

func TestCLI_CompilePreviewAndOutput(t *testing.T) {
	home, data := setupHome(t)
	specPath := filepath.Join(home, "out", "spec.json")

	out := runCmd(t, "compile", data, "--preview", "-o", specPath)
	assert.Contains(t, out, "Strategy: "+string(dashboard.StrategyHeuristics))
	assert.Contains(t, out, "Preview (full scan)")
	assert.Contains(t, out, "CONVERSION")
	assert.Contains(t, out, "✓ Wrote "+specPath)

	spec, err := readSpec(specPath)
	require.NoError(t, err)
	assert.Equal(t, dashboard.SpecVersion, spec.Version)
	assert.NotEmpty(t, spec.KPIs)
	require.NotNil(t, spec.Funnel)
	assert.Equal(t, "entrada", spec.Funnel.Stages[0].Column)
}

func TestCLI_CompileJSON(t *testing.T) {
	_, data := setupHome(t)

	out := runCmd(t, "compile", data, "--json")
	var res map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, string(dashboard.StrategyHeuristics), res["strategy"])
	assert.Contains(t, res, "validation")
}

func TestCLI_CompileWithPlanRepairsColumns(t *testing.T) {
	home, data := setupHome(t)
	plan := filepath.Join(home, "plan.json")
	require.NoError(t, os.WriteFile(plan, []byte(`{
		"version": 1,
		"kpis": [{"column": "Valor", "aggregation": "sum"}, {"column": "nope", "aggregation": "sum"}],
		"charts": [], "table": {"columns": []}, "tabs": []
	}`), 0o644))

	out := runCmd(t, "compile", data, "--plan", plan, "--json")
	var res struct {
		Strategy   dashboard.Strategy         `json:"strategy"`
		Validation dashboard.ValidationResult `json:"validation"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, dashboard.StrategyExternalPlan, res.Strategy)
	require.NotNil(t, res.Validation.Spec)
	cols := res.Validation.Spec.Columns()
	assert.Contains(t, cols, "valor")
	assert.NotContains(t, cols, "nope")
	assert.NotEmpty(t, res.Validation.Warnings)
}

func TestCLI_CompileEmptyDatasetIsNotCommittable(t *testing.T) {
	home, _ := setupHome(t)
	empty := filepath.Join(home, "empty.csv")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))

	_, err := execute(t, "compile", empty, "--commit")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "validation error")
}

func TestCLI_CommitAndManageDashboards(t *testing.T) {
	_, data := setupHome(t)

	out := runCmd(t, "dashboards", "list")
	assert.Contains(t, out, "No dashboards saved yet")

	out = runCmd(t, "compile", data, "--commit", "--name", "Leads Q1")
	assert.Contains(t, out, "✓ Saved dashboard")

	out = runCmd(t, "dashboards", "list", "--json")
	var list []store.Dashboard
	require.NoError(t, json.Unmarshal([]byte(out), &list))
	require.Len(t, list, 1)
	assert.Equal(t, "Leads Q1", list[0].Name)
	assert.Equal(t, "leads", list[0].DatasetName)
	id := list[0].ID

	out = runCmd(t, "dashboards", "list")
	assert.Contains(t, out, "Leads Q1")

	out = runCmd(t, "dashboards", "show", id)
	var got store.Dashboard
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, id, got.ID)
	require.NotNil(t, got.Spec)

	out = runCmd(t, "dashboards", "delete", id)
	assert.Contains(t, out, "✓ Deleted dashboard "+id)

	_, err := execute(t, "dashboards", "show", id)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}

func TestCLI_ValidateAndPreview(t *testing.T) {
	home, data := setupHome(t)
	specPath := filepath.Join(home, "spec.json")
	require.NoError(t, os.WriteFile(specPath, []byte(`{
		"version": 1,
		"kpis": [{"column": "lead_id", "aggregation": "count_distinct"}, {"column": "missing_col", "aggregation": "sum"}],
		"funnel": {"stages": [{"column": "entrada"}, {"column": "venda"}]},
		"charts": [], "table": {"columns": []}, "tabs": ["overview"]
	}`), 0o644))

	_, err := execute(t, "validate", specPath)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "--data")

	repaired := filepath.Join(home, "repaired.json")
	out := runCmd(t, "validate", specPath, "--data", data, "-o", repaired)
	assert.Contains(t, out, "⚠")
	assert.Contains(t, out, "✓ Specification is valid")
	spec, err := readSpec(repaired)
	require.NoError(t, err)
	assert.NotContains(t, spec.Columns(), "missing_col")

	out = runCmd(t, "preview", specPath, "--data", data, "--json")
	var pv dashboard.AggregationPreview
	require.NoError(t, json.Unmarshal([]byte(out), &pv))
	assert.Equal(t, dashboard.SourceFullScan, pv.Source)
	assert.False(t, pv.Approximate)
	require.Len(t, pv.KPIValues, 1)
	assert.Equal(t, 3.0, pv.KPIValues[0].Value)
	require.Len(t, pv.FunnelValues, 2)
	assert.Equal(t, 3.0, pv.FunnelValues[0].Value)
	assert.Equal(t, 1.0, pv.FunnelValues[1].Value)
}

func TestCLI_RulesDump(t *testing.T) {
	home, _ := setupHome(t)

	out := runCmd(t, "rules", "dump")
	assert.Contains(t, out, "time_patterns:")

	path := filepath.Join(home, "rules.yaml")
	runCmd(t, "rules", "dump", "-o", path)
	_, err := dashboard.LoadRules(path)
	require.NoError(t, err)

	// The dumped file round-trips through --rules.
	out = runCmd(t, "--rules", path, "rules", "dump")
	assert.Contains(t, out, "time_patterns:")
}

func TestCLI_ConfigSetShow(t *testing.T) {
	setupHome(t)

	runCmd(t, "config", "set", "default_model", "anthropic/claude-3.5-sonnet")
	runCmd(t, "config", "set", "default_provider", "local")
	runCmd(t, "config", "set", "api_key", "sk-or-1234567890abcd")

	out := runCmd(t, "config", "show")
	assert.Contains(t, out, "default_model: anthropic/claude-3.5-sonnet")
	assert.Contains(t, out, "default_provider: ollama")
	assert.NotContains(t, out, "sk-or-1234567890abcd")
	assert.Contains(t, out, "sk-o")

	_, err := execute(t, "config", "set", "default_provider", "bogus")
	require.Error(t, err)
	_, err = execute(t, "config", "set", "max_tokens", "lots")
	require.Error(t, err)
	_, err = execute(t, "config", "set", "nope", "1")
	require.Error(t, err)
}

func TestNormalizeProviderAndSelectModel(t *testing.T) {
	assert.Equal(t, "openrouter", normalizeProvider(""))
	assert.Equal(t, "ollama", normalizeProvider(" Local "))
	assert.Equal(t, "openrouter", normalizeProvider("anthropic"))

	old := cfg
	t.Cleanup(func() { cfg = old })
	cfg = nil
	assert.Equal(t, "openai/gpt-4o-mini", selectModel("", "openrouter"))
	assert.Equal(t, "llama3.1:8b", selectModel("", "ollama"))
	assert.Equal(t, "phi3:mini", selectModel(" phi3:mini ", "ollama"))
}

func TestBuildRuntimeUnknownProvider(t *testing.T) {
	_, _, err := buildRuntime(nil, runtimeOptions{ProviderFlag: "bogus"})
	require.Error(t, err)
	rt, prov, err := buildRuntime(nil, runtimeOptions{ProviderFlag: "ollama", OllamaHost: "http://127.0.0.1:1"})
	require.NoError(t, err)
	assert.Equal(t, "ollama", prov)
	assert.NotNil(t, rt)
}

type stubRuntime struct {
	content string
	err     error
}

func (s stubRuntime) Generate(context.Context, ai.GenerateRequest) (*ai.GenerateResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &ai.GenerateResponse{Choices: []ai.Choice{{Message: ai.Message{Role: "assistant", Content: s.content}}}}, nil
}

func TestCLI_CompileWithPlanner(t *testing.T) {
	_, data := setupHome(t)
	ai.RegisterRuntime("stub-plan", func(ai.RuntimeConfig) ai.Runtime {
		return stubRuntime{content: "Here you go:\n" + `{"version":1,"kpis":[{"column":"VALOR","aggregation":"sum","format":"currency"}],"charts":[],"table":{"columns":[]},"tabs":[]}`}
	})
	ai.RegisterRuntime("stub-down", func(ai.RuntimeConfig) ai.Runtime {
		return stubRuntime{err: errors.New("connection refused")}
	})

	out := runCmd(t, "compile", data, "--ai", "--provider", "stub-plan", "--json")
	var res dashboard.Result
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, dashboard.StrategyExternalPlan, res.Strategy)
	assert.Empty(t, res.PlannerError)
	require.NotNil(t, res.Validation.Spec)
	require.NotEmpty(t, res.Validation.Spec.KPIs)
	assert.Equal(t, "valor", res.Validation.Spec.KPIs[0].Column)

	out = runCmd(t, "compile", data, "--ai", "--provider", "stub-down")
	assert.Contains(t, out, "⚠ Planner failed, used heuristics")
	assert.Contains(t, out, "Strategy: "+string(dashboard.StrategyHeuristics))
}

func TestCLI_ModelsShow(t *testing.T) {
	setupHome(t)

	out := runCmd(t, "models", "show")
	assert.Contains(t, out, "openai/gpt-4o-mini")
	assert.Contains(t, out, "Providers: ")

	out = runCmd(t, "models", "show", "--json")
	var cat []ai.ModelInfo
	require.NoError(t, json.Unmarshal([]byte(out), &cat))
	assert.NotEmpty(t, cat)
}

func TestCLI_EnvFile(t *testing.T) {
	home, _ := setupHome(t)
	env := filepath.Join(home, "dashspec.env")
	require.NoError(t, os.WriteFile(env, []byte("DASHSPEC_LISTEN_ADDR=0.0.0.0:9999\n"), 0o644))
	t.Cleanup(func() { _ = os.Unsetenv("DASHSPEC_LISTEN_ADDR") })

	out := runCmd(t, "--env-file", env, "config", "show")
	assert.Contains(t, out, "0.0.0.0:9999")
}
