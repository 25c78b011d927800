package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	cfgpkg "github.com/KaramelBytes/dashspec-cli/internal/config"
	"github.com/KaramelBytes/dashspec-cli/internal/dashboard"
	"github.com/KaramelBytes/dashspec-cli/internal/logging"
)

var (
	cfgFile       string
	debug         bool
	flagLogLevel  string
	flagLogFormat string
	flagRulesFile string
	flagStorePath string
	flagEnvFile   string
	flagNoColor   bool
	// Retry/HTTP flags (override config if set)
	flagHTTPTimeoutSec   int
	flagRetryMaxAttempts int
	flagRetryBaseDelayMs int
	flagRetryMaxDelayMs  int

	// Loaded configuration
	cfg    *cfgpkg.Global
	logger = zerolog.Nop()
)

var rootCmd = &cobra.Command{
	Use:   "dashspec",
	Short: "dashspec: compile dashboard specifications from tabular data",
	Long: `dashspec profiles a CSV/TSV/XLSX export, classifies its columns, and compiles a
validated dashboard specification (KPIs, funnel, charts, table, tabs). A plan from
a file or an LLM is treated as untrusted input and repaired against the real columns.`,
	SilenceUsage: true,
}

// Execute is the entry point called by main.main()
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "✗ Error:", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(loadConfig)
	pf := rootCmd.PersistentFlags()
	pf.StringVar(&cfgFile, "config", "", "config file (default is ~/.dashspec/config.yaml)")
	pf.BoolVar(&debug, "debug", false, "enable debug logging")
	pf.StringVar(&flagLogLevel, "log-level", "", "log level: debug|info|warn|error (overrides config)")
	pf.StringVar(&flagLogFormat, "log-format", "", "log format: console|json (overrides config)")
	pf.StringVar(&flagRulesFile, "rules", "", "YAML heuristic rules file (overrides config)")
	pf.StringVar(&flagStorePath, "store", "", "dashboard database path (overrides config)")
	pf.StringVar(&flagEnvFile, "env-file", ".env", "dotenv file loaded before config (missing file is ignored)")
	pf.BoolVar(&flagNoColor, "no-color", false, "disable colored output")
	pf.IntVar(&flagHTTPTimeoutSec, "http-timeout", 0, "HTTP client timeout in seconds (overrides config)")
	pf.IntVar(&flagRetryMaxAttempts, "retry-max", 0, "max retry attempts on 429/5xx (overrides config)")
	pf.IntVar(&flagRetryBaseDelayMs, "retry-base-ms", 0, "base retry backoff in ms (overrides config)")
	pf.IntVar(&flagRetryMaxDelayMs, "retry-max-ms", 0, "max retry backoff cap in ms (overrides config)")
}

func loadConfig() {
	if flagNoColor {
		color.NoColor = true
	}
	if flagEnvFile != "" {
		// Existing environment variables win over the file.
		if err := godotenv.Load(flagEnvFile); err != nil && !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "⚠ Warning: failed to load %s: %v\n", flagEnvFile, err)
		}
	}
	c, err := cfgpkg.Load(cfgFile)
	if err != nil {
		// Non-fatal: commands fall back to built-in defaults.
		fmt.Fprintf(os.Stderr, "⚠ Warning: failed to load config: %v\n", err)
		c = &cfgpkg.Global{}
	}
	cfg = c

	f := rootCmd.PersistentFlags()
	if f.Changed("http-timeout") && flagHTTPTimeoutSec > 0 {
		cfg.HTTPTimeoutSec = flagHTTPTimeoutSec
	}
	if f.Changed("retry-max") && flagRetryMaxAttempts > 0 {
		cfg.RetryMaxAttempts = flagRetryMaxAttempts
	}
	if f.Changed("retry-base-ms") && flagRetryBaseDelayMs > 0 {
		cfg.RetryBaseDelayMs = flagRetryBaseDelayMs
	}
	if f.Changed("retry-max-ms") && flagRetryMaxDelayMs > 0 {
		cfg.RetryMaxDelayMs = flagRetryMaxDelayMs
	}
	if flagRulesFile != "" {
		cfg.RulesFile = flagRulesFile
	}
	if flagStorePath != "" {
		cfg.StorePath = flagStorePath
	}

	level := cfg.LogLevel
	if flagLogLevel != "" {
		level = flagLogLevel
	}
	if debug {
		level = "debug"
	}
	format := cfg.LogFormat
	if flagLogFormat != "" {
		format = flagLogFormat
	}
	logger = logging.New(logging.Options{Level: level, Format: format, Output: os.Stderr})
}

// loadRules returns the configured rule tables, or the defaults.
func loadRules() (*dashboard.Rules, error) {
	if cfg == nil || strings.TrimSpace(cfg.RulesFile) == "" {
		return dashboard.DefaultRules(), nil
	}
	r, err := dashboard.LoadRules(cfg.RulesFile)
	if err != nil {
		return nil, fmt.Errorf("load rules: %w", err)
	}
	logger.Debug().Str("path", cfg.RulesFile).Msg("loaded rules")
	return r, nil
}

// newCompiler builds a compiler over the configured rules. planner may be nil.
func newCompiler(planner dashboard.Planner) (*dashboard.Compiler, error) {
	rules, err := loadRules()
	if err != nil {
		return nil, err
	}
	opts := []dashboard.Option{dashboard.WithRules(rules), dashboard.WithLogger(logger)}
	if planner != nil {
		opts = append(opts, dashboard.WithPlanner(planner))
	}
	return dashboard.NewCompiler(opts...), nil
}
