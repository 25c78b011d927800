package cmd

import (
	"github.com/spf13/cobra"

	"github.com/KaramelBytes/dashspec-cli/internal/utils"
)

var rulesOutput string

var rulesCmd = &cobra.Command{
	Use:   "rules",
	Short: "Inspect the heuristic rule tables",
}

var rulesDumpCmd = &cobra.Command{
	Use:   "dump",
	Short: "Print the active rules as YAML (a starting point for --rules)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		r, err := loadRules()
		if err != nil {
			return err
		}
		b, err := r.YAML()
		if err != nil {
			return err
		}
		if rulesOutput != "" {
			if err := utils.SafeWriteFile(rulesOutput, b); err != nil {
				return err
			}
			success(cmd.OutOrStdout(), "Wrote %s", rulesOutput)
			return nil
		}
		_, err = cmd.OutOrStdout().Write(b)
		return err
	},
}

func init() {
	rootCmd.AddCommand(rulesCmd)
	rulesCmd.AddCommand(rulesDumpCmd)
	rulesDumpCmd.Flags().StringVarP(&rulesOutput, "output", "o", "", "write the rules to a file")
}
