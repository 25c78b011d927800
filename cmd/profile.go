package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/dashspec-cli/internal/analysis"
)

var (
	profileData     dataFlags
	profileMarkdown bool
	profileJSON     bool
	profileSheets   bool
)

var profileCmd = &cobra.Command{
	Use:   "profile <file>",
	Short: "Profile a CSV/TSV/XLSX file and show inferred column roles",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if profileSheets {
			names, err := analysis.SheetNames(args[0])
			if err != nil {
				return err
			}
			for i, n := range names {
				fmt.Fprintf(cmd.OutOrStdout(), "%d. %s\n", i+1, n)
			}
			return nil
		}
		ds, err := loadDataset(args[0], &profileData)
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		switch {
		case profileJSON:
			return writeJSON(out, "", ds)
		case profileMarkdown:
			fmt.Fprint(out, ds.Markdown())
			return nil
		}
		c, err := newCompiler(nil)
		if err != nil {
			return err
		}
		classified := c.Classify(ds.Columns)
		fmt.Fprintf(out, "%s: %d rows, %d columns\n", ds.Name, ds.Rows, len(ds.Columns))
		renderColumns(out, ds, classified)
		for _, w := range ds.Warnings {
			warning(out, "%s", w)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(profileCmd)
	profileData.register(profileCmd)
	profileCmd.Flags().BoolVar(&profileMarkdown, "markdown", false, "print the profile as markdown")
	profileCmd.Flags().BoolVar(&profileJSON, "json", false, "print the profile as JSON")
	profileCmd.Flags().BoolVar(&profileSheets, "list-sheets", false, "XLSX: list sheet names and exit")
}
