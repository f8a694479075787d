package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"venue-membership/internal/domain"
	"venue-membership/internal/infra/sched"
	appuc "venue-membership/internal/usecase"

	"github.com/spf13/cobra"
)

var sweepScheduled bool

var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one renewal sweep now and exit",
	Long: `Runs one renewal sweep and waits for every dispatched renewal.
By default the sweep is manual and ignores today's scheduled run. With
--scheduled it takes the daily lock, so it is skipped if the scheduled sweep
already ran today.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		a, err := buildApp(ctx)
		if err != nil {
			return err
		}
		defer a.Close()
		a.work.Start(ctx)

		trigger := appuc.TriggerManual
		if sweepScheduled {
			trigger = appuc.TriggerSchedule
		}
		report, err := sched.RunSweep(ctx, a.renewal, trigger, a.log)
		if errors.Is(err, domain.ErrLockHeld) {
			fmt.Fprintln(cmd.OutOrStdout(), "skipped: another sweep holds the lock")
			return nil
		}
		if report.RunID != "" {
			fmt.Fprintf(cmd.OutOrStdout(), "run %s: %d memberships, %d renewals dispatched, %d failed\n",
				report.RunID, report.Total, report.Dispatched, report.Failed)
		}
		return err
	},
}

func init() {
	sweepCmd.Flags().BoolVar(&sweepScheduled, "scheduled", false, "take the daily lock like the scheduler")
}
