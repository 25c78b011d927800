package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

var (
	validateData   dataFlags
	validateFile   string
	validateOutput string
	validateJSON   bool
)

var validateCmd = &cobra.Command{
	Use:   "validate <spec.json>",
	Short: "Validate and repair a specification against a dataset's columns",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if validateFile == "" {
			return fmt.Errorf("--data is required")
		}
		spec, err := readSpec(args[0])
		if err != nil {
			return err
		}
		ds, err := loadDataset(validateFile, &validateData)
		if err != nil {
			return err
		}
		c, err := newCompiler(nil)
		if err != nil {
			return err
		}
		res := c.Validate(spec, ds.Columns)
		out := cmd.OutOrStdout()
		if validateJSON {
			if err := writeJSON(out, "", res); err != nil {
				return err
			}
		} else {
			renderValidation(out, res)
			if res.Valid {
				success(out, "Specification is valid")
			}
		}
		if validateOutput != "" {
			if err := writeJSON(out, validateOutput, res.Spec); err != nil {
				return err
			}
		}
		if len(res.Errors) > 0 {
			return fmt.Errorf("specification has %d validation error(s)", len(res.Errors))
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(validateCmd)
	validateData.register(validateCmd)
	validateCmd.Flags().StringVar(&validateFile, "data", "", "dataset whose columns the specification must reference")
	validateCmd.Flags().StringVarP(&validateOutput, "output", "o", "", "write the repaired specification JSON to a file")
	validateCmd.Flags().BoolVar(&validateJSON, "json", false, "print the validation result as JSON")
}
