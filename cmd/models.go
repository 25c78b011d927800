package cmd

import (
	"fmt"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/KaramelBytes/dashspec-cli/internal/ai"
)

var modelsJSON bool

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Inspect the planner model catalog and pricing",
}

var modelsShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show known models with context size and pricing",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cat := ai.Catalog()
		out := cmd.OutOrStdout()
		if modelsJSON {
			return writeJSON(out, "", cat)
		}
		t := newTable(out)
		t.AppendHeader(table.Row{"Model", "Provider", "Context", "$/1M in", "$/1M out"})
		for _, m := range cat {
			in, outp := "-", "-"
			if m.InputPerM > 0 || m.OutputPerM > 0 {
				in = fmt.Sprintf("%.3f", m.InputPerM)
				outp = fmt.Sprintf("%.3f", m.OutputPerM)
			}
			t.AppendRow(table.Row{m.Name, m.Provider, m.ContextTokens, in, outp})
		}
		t.Render()
		fmt.Fprintf(out, "Providers: %s\n", strings.Join(ai.Providers(), ", "))
		return nil
	},
}

func init() {
	rootCmd.AddCommand(modelsCmd)
	modelsCmd.AddCommand(modelsShowCmd)
	modelsShowCmd.Flags().BoolVar(&modelsJSON, "json", false, "print the catalog as JSON")
}
