package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	previewData dataFlags
	previewFile string
	previewJSON bool
)

var previewCmd = &cobra.Command{
	Use:   "preview <spec.json>",
	Short: "Compute approximate KPI and funnel values for a specification",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if previewFile == "" {
			return fmt.Errorf("--data is required")
		}
		spec, err := readSpec(args[0])
		if err != nil {
			return err
		}
		ds, err := loadDataset(previewFile, &previewData)
		if err != nil {
			return err
		}
		c, err := newCompiler(nil)
		if err != nil {
			return err
		}
		// Only aggregate what survived repair.
		v := c.Validate(spec, ds.Columns)
		pv := c.Preview(ds.Samples, v.Spec, ds.Source())
		out := cmd.OutOrStdout()
		if previewJSON {
			return writeJSON(out, "", pv)
		}
		renderValidation(out, v)
		renderPreview(out, &pv)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(previewCmd)
	previewData.register(previewCmd)
	previewCmd.Flags().StringVar(&previewFile, "data", "", "dataset to aggregate")
	previewCmd.Flags().BoolVar(&previewJSON, "json", false, "print the preview as JSON")
}
