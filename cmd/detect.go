package cmd

import (
	"github.com/spf13/cobra"
)

var (
	detectData dataFlags
	detectJSON bool
)

var detectCmd = &cobra.Command{
	Use:   "detect <file>",
	Short: "Score a dataset against the CRM/lead funnel pattern",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ds, err := loadDataset(args[0], &detectData)
		if err != nil {
			return err
		}
		c, err := newCompiler(nil)
		if err != nil {
			return err
		}
		det := c.Detect(datasetName(args[0]), ds.Columns)
		if detectJSON {
			return writeJSON(cmd.OutOrStdout(), "", det)
		}
		renderDetection(cmd.OutOrStdout(), det)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(detectCmd)
	detectData.register(detectCmd)
	detectCmd.Flags().BoolVar(&detectJSON, "json", false, "print the detection as JSON")
}
