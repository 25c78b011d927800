package cmd

import (
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/dashspec-cli/internal/dashboard"
	"github.com/KaramelBytes/dashspec-cli/internal/server"
	"github.com/KaramelBytes/dashspec-cli/internal/store"
)

var (
	serveAddr       string
	serveUseAI      bool
	serveProvider   string
	serveModel      string
	serveOllamaHost string
	serveNoStore    bool
	serveTimeoutSec int
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the compiler over HTTP",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var planner dashboard.Planner
		if serveUseAI {
			p, model, err := buildPlanner(serveProvider, serveModel, serveOllamaHost)
			if err != nil {
				return err
			}
			logger.Info().Str("model", model).Msg("planner enabled")
			planner = p
		}
		c, err := newCompiler(planner)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		var st *store.Store
		if !serveNoStore {
			if st, err = openStore(ctx, c.Rules()); err != nil {
				return err
			}
			defer st.Close()
		}

		addr := serveAddr
		if addr == "" && cfg != nil {
			addr = cfg.ListenAddr
		}
		if addr == "" {
			addr = "127.0.0.1:8080"
		}
		srv := server.New(c, st, logger, server.Config{
			Addr:           addr,
			RequestTimeout: time.Duration(serveTimeoutSec) * time.Second,
		})
		success(cmd.OutOrStdout(), "Listening on http://%s", addr)
		return srv.ListenAndServe(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	f := serveCmd.Flags()
	f.StringVar(&serveAddr, "addr", "", "listen address (default from config)")
	f.BoolVar(&serveUseAI, "ai", false, "enable the LLM planner for use_planner requests")
	f.StringVar(&serveProvider, "provider", "", "LLM provider: openrouter|ollama (default from config)")
	f.StringVar(&serveModel, "model", "", "model name (default from config)")
	f.StringVar(&serveOllamaHost, "ollama-host", "", "Ollama host URL (overrides config)")
	f.BoolVar(&serveNoStore, "no-store", false, "do not mount the /v1/dashboards routes")
	f.IntVar(&serveTimeoutSec, "request-timeout", 60, "per-request timeout in seconds")
}
