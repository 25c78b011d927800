package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/KaramelBytes/dashspec-cli/internal/store"
)

var dashboardsJSON bool

var dashboardsCmd = &cobra.Command{
	Use:     "dashboards",
	Aliases: []string{"ls-dashboards"},
	Short:   "Manage committed dashboard specifications",
}

var dashboardsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List committed dashboards",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rules, err := loadRules()
		if err != nil {
			return err
		}
		st, err := openStore(cmd.Context(), rules)
		if err != nil {
			return err
		}
		defer st.Close()
		list, err := st.List(cmd.Context())
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		if dashboardsJSON {
			return writeJSON(out, "", list)
		}
		if len(list) == 0 {
			fmt.Fprintln(out, "No dashboards saved yet. Use: dashspec compile <file> --commit")
			return nil
		}
		renderDashboards(out, list)
		return nil
	},
}

var dashboardsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Print a committed dashboard as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rules, err := loadRules()
		if err != nil {
			return err
		}
		st, err := openStore(cmd.Context(), rules)
		if err != nil {
			return err
		}
		defer st.Close()
		d, err := st.Get(cmd.Context(), args[0])
		if err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("dashboard %s not found", args[0])
			}
			return err
		}
		return writeJSON(cmd.OutOrStdout(), "", d)
	},
}

var dashboardsDeleteCmd = &cobra.Command{
	Use:     "delete <id>",
	Aliases: []string{"rm"},
	Short:   "Delete a committed dashboard",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rules, err := loadRules()
		if err != nil {
			return err
		}
		st, err := openStore(cmd.Context(), rules)
		if err != nil {
			return err
		}
		defer st.Close()
		if err := st.Delete(cmd.Context(), args[0]); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("dashboard %s not found", args[0])
			}
			return err
		}
		success(cmd.OutOrStdout(), "Deleted dashboard %s", args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(dashboardsCmd)
	dashboardsCmd.AddCommand(dashboardsListCmd, dashboardsShowCmd, dashboardsDeleteCmd)
	dashboardsListCmd.Flags().BoolVar(&dashboardsJSON, "json", false, "print the list as JSON")
}
