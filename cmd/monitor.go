package cmd

import (
	"context"
	"fmt"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/forum-archiver/internal/crawler"
	"github.com/JakeFAU/forum-archiver/internal/engine"
)

// newMonitorCmd creates the 'monitor' subcommand, which re-archives the
// selected threads on a cron schedule until interrupted.
func newMonitorCmd(root *rootOptions) *cobra.Command {
	threads := &threadFlags{}
	var schedule string
	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Re-archive threads on a schedule",
		Long: `Runs an archive pass immediately and then again on every tick of
monitor.schedule (standard cron syntax or descriptors such as @hourly).
Existing posts are overwritten with their latest content.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			requests, err := threads.resolve()
			if err != nil {
				return err
			}
			return runMonitor(cmd, root, schedule, requests)
		},
	}
	threads.register(cmd)
	addSinkFlags(cmd)
	cmd.Flags().StringVar(&schedule, "schedule", "", "cron schedule overriding monitor.schedule")
	return cmd
}

func runMonitor(cmd *cobra.Command, root *rootOptions, schedule string, requests map[int]crawler.ThreadRequest) error {
	a, cfg, cleanup, err := openApp(cmd, root, false)
	if err != nil {
		return err
	}
	defer cleanup()
	if schedule == "" {
		schedule = cfg.Monitor.Schedule
	}
	logger := a.Logger.Named("monitor")

	return withStatusServer(cmd.Context(), a, cfg.Metrics.ListenAddr, func(ctx context.Context) error {
		fatal := make(chan error, 1)
		pass := func() {
			summary, runErr := a.Engine.Run(ctx, requests)
			switch {
			case runErr == nil:
				logger.Info("Archive pass finished",
					zap.String("run_id", summary.RunID),
					zap.Int("posts", summary.Posts),
					zap.Int("skipped", summary.Skipped))
			case ctx.Err() != nil:
			case engine.IsFatal(runErr):
				select {
				case fatal <- runErr:
				default:
				}
			default:
				logger.Error("Archive pass failed", zap.Error(runErr))
			}
		}

		scheduler := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
		if _, err := scheduler.AddFunc(schedule, pass); err != nil {
			return fmt.Errorf("%w: monitor schedule %q: %v", crawler.ErrConfiguration, schedule, err)
		}

		pass()
		scheduler.Start()
		logger.Info("Monitoring threads", zap.String("schedule", schedule), zap.Int("threads", len(requests)))
		defer func() { <-scheduler.Stop().Done() }()

		select {
		case <-ctx.Done():
			logger.Info("Monitor stopping")
			return nil
		case err := <-fatal:
			return fmt.Errorf("monitor: %w", err)
		}
	})
}
