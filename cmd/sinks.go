package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

// newSinksCmd creates the 'sinks' subcommand listing every registered sink.
func newSinksCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sinks",
		Short: "List available export sinks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			_, _ = fmt.Fprintln(w, "SHORT NAME\tNAME\tDESCRIPTION")
			for _, e := range newRegistry().Entries() {
				_, _ = fmt.Fprintf(w, "%s\t%s\t%s\n", e.ShortName, e.Name, e.Description)
			}
			return w.Flush()
		},
	}
}
