package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/fyrsmithlabs/prove/internal/prove/builtin"
	"github.com/spf13/cobra"
)

var quickOnly bool

func init() {
	checksCmd.Flags().BoolVar(&quickOnly, "quick", false, "list only quick-mode checks")
	checksCmd.Flags().BoolVar(&jsonOutput, "json", false, "print definitions as JSON")
	rootCmd.AddCommand(checksCmd)
}

var checksCmd = &cobra.Command{
	Use:   "checks",
	Short: "List registered checks",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		reg, _, err := builtin.DefaultRegistry(builtin.Options{})
		if err != nil {
			return err
		}
		defs := reg.List()
		if quickOnly {
			defs = reg.QuickModeChecks()
		}
		if jsonOutput {
			return writeJSON(cmd.OutOrStdout(), defs)
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tCATEGORY\tQUICK\tGATE\tDESCRIPTION")
		for _, d := range defs {
			gate := "-"
			switch {
			case d.Mode != "":
				gate = "mode=" + d.Mode
			case d.ToggleKey != "":
				gate = "toggle=" + d.ToggleKey
			}
			quick := "no"
			if d.QuickModeEligible {
				quick = "yes"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", d.ID, d.Category, quick, gate, d.Description)
		}
		return tw.Flush()
	},
}
