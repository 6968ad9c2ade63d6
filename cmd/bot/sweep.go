package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ChuprinaDaria/yoga-bot/internal/app"
	"github.com/ChuprinaDaria/yoga-bot/internal/domain"
)

var sweepCmd = &cobra.Command{
	Use:       "sweep daily|purge|cleanup",
	Short:     "Run one maintenance sweep now",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{string(domain.RunDaily), string(domain.RunPurge), string(domain.RunCleanup)},
	RunE: func(cmd *cobra.Command, args []string) error {
		application, err := app.New(cmd.Context(), cfg, log)
		if err != nil {
			return err
		}
		defer func() { _ = application.Close() }()

		run, err := application.Sweep(cmd.Context(), domain.RunKind(args[0]))
		if err != nil {
			return err
		}
		log.Info("sweep done", zap.String("runID", run.ID))
		fmt.Fprintf(cmd.OutOrStdout(), "%s: scanned=%d applied=%d skipped=%d failed=%d\n",
			run.Kind, run.Scanned, run.Applied, run.Skipped, run.Failed)
		return nil
	},
}
