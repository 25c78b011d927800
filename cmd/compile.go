package cmd

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/dashspec-cli/internal/dashboard"
	"github.com/KaramelBytes/dashspec-cli/internal/store"
)

var (
	compileData       dataFlags
	compilePlanFile   string
	compileLegacyFile string
	compileUseAI      bool
	compileProvider   string
	compileModel      string
	compileOllamaHost string
	compilePreview    bool
	compileCommit     bool
	compileName       string
	compileOutput     string
	compileJSON       bool
	compileTimeoutSec int
)

var compileCmd = &cobra.Command{
	Use:   "compile <file>",
	Short: "Compile a validated dashboard specification for a dataset",
	Long: `Profiles the dataset, classifies its columns and compiles a dashboard
specification. A plan may come from --plan (JSON file), --legacy (JSON array of KPI
tiles) or --ai (LLM planner); it is repaired against the real columns either way.
Without a plan the specification is synthesized from heuristics.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		ds, err := loadDataset(args[0], &compileData)
		if err != nil {
			return err
		}
		req := dashboard.Request{
			DatasetName: datasetName(args[0]),
			Columns:     ds.Columns,
			PlanContext: ds.Markdown(),
		}
		if compilePlanFile != "" {
			if req.Plan, err = readSpec(compilePlanFile); err != nil {
				return err
			}
		}
		if compileLegacyFile != "" {
			if req.LegacyTiles, err = readLegacyTiles(compileLegacyFile); err != nil {
				return err
			}
		}
		if compilePreview {
			req.Rows = ds.Samples
			req.RowSource = ds.Source()
		}

		var planner dashboard.Planner
		if compileUseAI && req.Plan == nil {
			p, model, err := buildPlanner(compileProvider, compileModel, compileOllamaHost)
			if err != nil {
				return err
			}
			logger.Debug().Str("model", model).Msg("planner enabled")
			planner = p
			req.UsePlanner = true
		}
		c, err := newCompiler(planner)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		if compileTimeoutSec > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, time.Duration(compileTimeoutSec)*time.Second)
			defer cancel()
		}
		stop := func() {}
		if req.UsePlanner {
			sp := newSpinner("asking the planner...")
			sp.Start()
			stop = sp.Stop
		}
		res := c.Compile(ctx, req)
		stop()

		if compileJSON {
			if err := writeJSON(out, "", res); err != nil {
				return err
			}
		} else {
			fmt.Fprintf(out, "Strategy: %s\n", res.Strategy)
			renderDetection(out, res.Detection)
			if res.PlannerError != "" {
				warning(out, "Planner failed, used heuristics: %s", res.PlannerError)
			}
			renderSpecSummary(out, res.Spec())
			renderValidation(out, res.Validation)
			renderPreview(out, res.Preview)
		}
		if compileOutput != "" {
			if err := writeJSON(out, compileOutput, res.Spec()); err != nil {
				return err
			}
		}

		if !res.Committable() {
			return fmt.Errorf("specification has %d validation error(s)", len(res.Validation.Errors))
		}
		if compileCommit {
			st, err := openStore(ctx, c.Rules())
			if err != nil {
				return err
			}
			defer st.Close()
			d := store.FromResult(compileName, req, res)
			if err := st.Save(ctx, &d); err != nil {
				return err
			}
			success(out, "Saved dashboard %s (%s)", d.ID, d.Name)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(compileCmd)
	compileData.register(compileCmd)
	f := compileCmd.Flags()
	f.StringVar(&compilePlanFile, "plan", "", "JSON plan to repair against the dataset")
	f.StringVar(&compileLegacyFile, "legacy", "", "JSON array of legacy KPI tiles")
	f.BoolVar(&compileUseAI, "ai", false, "ask an LLM for a plan when --plan is not given")
	f.StringVar(&compileProvider, "provider", "", "LLM provider: openrouter|ollama (default from config)")
	f.StringVar(&compileModel, "model", "", "model name (default from config)")
	f.StringVar(&compileOllamaHost, "ollama-host", "", "Ollama host URL (overrides config)")
	f.BoolVar(&compilePreview, "preview", false, "aggregate sampled rows for KPIs and funnel")
	f.BoolVar(&compileCommit, "commit", false, "save the specification to the dashboard store")
	f.StringVar(&compileName, "name", "", "dashboard name when committing (default: dataset name)")
	f.StringVarP(&compileOutput, "output", "o", "", "write the repaired specification JSON to a file")
	f.BoolVar(&compileJSON, "json", false, "print the full compile result as JSON")
	f.IntVar(&compileTimeoutSec, "timeout", 120, "overall timeout in seconds for the planner call")
}
