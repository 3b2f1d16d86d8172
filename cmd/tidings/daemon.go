package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/matthewjhunter/tidings"
)

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	if parent == nil {
		parent = context.Background()
	}
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}

func daemonCmd() *cobra.Command {
	var schedule string

	cmd := &cobra.Command{
		Use:   "daemon",
		Short: "Check for new articles and backfill dates on a schedule",
		Long: `Runs check followed by backfill on a cron schedule (default from
schedule.check, "@every 10m"). Designed for running inside a container or as
a background service. Handles SIGINT/SIGTERM for graceful shutdown (waits
for the running cycle to finish).`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if schedule == "" {
				schedule = cfg.Schedule.Check
			}

			engine, err := openEngine()
			if err != nil {
				return err
			}
			defer engine.Close()

			ctx, stop := signalContext(cmd.Context())
			defer stop()

			log := logger.Named("daemon")
			cycle := 0
			runCycle := func() {
				cycle++
				start := time.Now()
				log.Info("cycle starting", zap.Int("cycle", cycle))
				if err := runCheckCycle(ctx, engine, log); err != nil {
					log.Error("cycle failed", zap.Int("cycle", cycle), zap.Error(err))
					return
				}
				log.Info("cycle completed", zap.Int("cycle", cycle), zap.Duration("elapsed", time.Since(start).Round(time.Millisecond)))
			}

			c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
			if _, err := c.AddFunc(schedule, runCycle); err != nil {
				return fmt.Errorf("invalid schedule %q: %w", schedule, err)
			}

			log.Info("starting", zap.String("schedule", schedule))
			runCycle()
			c.Start()

			<-ctx.Done()
			log.Info("received shutdown signal, waiting for running cycle")
			<-c.Stop().Done()
			return nil
		},
	}

	cmd.Flags().StringVarP(&schedule, "schedule", "s", "", `cron spec or "@every <duration>" (default: schedule.check)`)
	return cmd
}

// runCheckCycle is one daemon tick: ingest the listing, then backfill
// missing dates.
func runCheckCycle(ctx context.Context, engine *tidings.Engine, log *zap.Logger) error {
	check, err := engine.CheckForNew(ctx)
	if err != nil {
		return fmt.Errorf("check: %w", err)
	}
	if check.Status == tidings.CheckFetchFailed {
		log.Warn("listing fetch failed")
	} else {
		log.Info("checked listing", zap.Int("found", check.Found), zap.Int("inserted", len(check.Inserted)))
	}

	backfill, err := engine.Backfill(ctx)
	if err != nil {
		return fmt.Errorf("backfill: %w", err)
	}
	if backfill.Candidates > 0 {
		log.Info("backfilled dates", zap.Int("candidates", backfill.Candidates), zap.Int("updated", backfill.Updated))
	}
	return nil
}
