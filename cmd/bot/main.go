// Command bot runs the yoga course Telegram bot and its maintenance tasks.
package main

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ChuprinaDaria/yoga-bot/internal/config"
	"github.com/ChuprinaDaria/yoga-bot/internal/logger"
)

var (
	cfg config.Config
	log *zap.Logger
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		// We intentionally ignore write errors to avoid shadowing the real cause.
		_, _ = os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(2)
	}
}

var rootCmd = &cobra.Command{
	Use:               "bot",
	Short:             "Yoga course Telegram bot",
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		// Ensure logger flush; ignore sync error (common on some platforms).
		if log != nil {
			_ = log.Sync()
		}
	},
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(sweepCmd)
}

// setup loads configuration and the logger for every command.
func setup(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load()
	if err != nil {
		return err
	}
	log, err = logger.New(cfg.LogLevel)
	return err
}
