package cmd

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/JakeFAU/forum-archiver/internal/api"
	"github.com/JakeFAU/forum-archiver/internal/app"
	"github.com/JakeFAU/forum-archiver/internal/batch"
	"github.com/JakeFAU/forum-archiver/internal/crawler"
)

type threadFlags struct {
	thread  string
	version int
	file    string
}

func (f *threadFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.thread, "thread", "t", "", "thread URL to archive")
	cmd.Flags().IntVar(&f.version, "version", 1, "version number for --thread")
	cmd.Flags().StringVarP(&f.file, "file", "f", "", "batch file of '<version> <url>' lines")
}

// resolve validates the thread selection. --thread wins over --file.
func (f *threadFlags) resolve() (map[int]crawler.ThreadRequest, error) {
	switch {
	case strings.TrimSpace(f.thread) != "":
		return batch.Single(f.version, f.thread)
	case strings.TrimSpace(f.file) != "":
		return batch.ParseFile(f.file)
	default:
		return nil, fmt.Errorf("%w: either --thread or --file is required", crawler.ErrConfiguration)
	}
}

// newArchiveCmd creates the 'archive' subcommand, which runs one archive pass.
func newArchiveCmd(root *rootOptions) *cobra.Command {
	threads := &threadFlags{}
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Archive one thread or a batch of threads",
		Long: `Fetches every page of the selected threads and writes each post to
the configured sink. A batch file holds one '<version> <url>' pair per line.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			requests, err := threads.resolve()
			if err != nil {
				return err
			}
			return runArchive(cmd, root, requests)
		},
	}
	threads.register(cmd)
	addSinkFlags(cmd)
	return cmd
}

func runArchive(cmd *cobra.Command, root *rootOptions, requests map[int]crawler.ThreadRequest) error {
	a, cfg, cleanup, err := openApp(cmd, root, false)
	if err != nil {
		return err
	}
	defer cleanup()

	var summary crawler.Summary
	err = withStatusServer(cmd.Context(), a, cfg.Metrics.ListenAddr, func(ctx context.Context) error {
		var runErr error
		summary, runErr = a.Engine.Run(ctx, requests)
		return runErr
	})
	if err != nil {
		return fmt.Errorf("archive: %w", err)
	}
	printSummary(cmd.OutOrStdout(), summary)
	a.Logger.Info("Archive finished", zap.String("run_id", summary.RunID))
	return nil
}

// withStatusServer runs fn, serving the status endpoints on addr for as long
// as fn runs. An empty addr runs fn alone.
func withStatusServer(ctx context.Context, a *app.App, addr string, fn func(context.Context) error) error {
	if addr == "" {
		return fn(ctx)
	}
	srv := api.NewServer(a.Engine, a.Sink, a.Clock, a.Logger.Named("api"))
	serverCtx, stopServer := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(serverCtx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx, addr)
	})
	g.Go(func() error {
		defer stopServer()
		return fn(gctx)
	})
	err := g.Wait()
	stopServer()
	return err
}

func printSummary(w io.Writer, s crawler.Summary) {
	_, _ = fmt.Fprintf(w, "Archived %d posts from %d pages across %d threads (%d skipped, %d challenges solved)\n",
		s.Posts, s.Pages, s.Threads, s.Skipped, s.Challenges)
}
