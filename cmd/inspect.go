package cmd

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/forum-archiver/internal/crawler"
)

type inspectFlags struct {
	version int
	page    int
	post    string
}

// newInspectCmd creates the 'inspect' subcommand, the read path over an
// existing archive.
func newInspectCmd(root *rootOptions) *cobra.Command {
	flags := &inspectFlags{}
	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "List or print archived posts",
		Long: `Without selectors, prints the archive index as JSON
(version -> page -> post numbers). With --version, --page and --post,
prints that single post record. --version is the archive version number
given to 'archive', not a thread URL.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInspect(cmd, root, flags)
		},
	}
	cmd.Flags().IntVar(&flags.version, "version", 0, "archive version to read")
	cmd.Flags().IntVar(&flags.page, "page", 0, "page number to read")
	cmd.Flags().StringVar(&flags.post, "post", "", "post number to read")
	addSinkFlags(cmd)
	return cmd
}

func runInspect(cmd *cobra.Command, root *rootOptions, flags *inspectFlags) error {
	single := flags.version != 0 || flags.page != 0 || flags.post != ""
	if single {
		if err := crawler.ValidatePostKey(flags.version, flags.page, flags.post); err != nil {
			return fmt.Errorf("--version, --page and --post: %w", err)
		}
	}

	a, _, cleanup, err := openApp(cmd, root, true)
	if err != nil {
		return err
	}
	defer cleanup()

	var out any
	if single {
		record, err := a.Sink.Read(cmd.Context(), flags.version, flags.page, flags.post)
		if err != nil {
			return fmt.Errorf("inspect: %w", err)
		}
		out = record
	} else {
		idx, err := a.Sink.Enumerate(cmd.Context())
		if err != nil {
			return fmt.Errorf("inspect: %w", err)
		}
		out = idx
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
