package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ChuprinaDaria/yoga-bot/internal/app"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Poll Telegram updates and run scheduled maintenance",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	application, err := app.New(cmd.Context(), cfg, log)
	if err != nil {
		log.Error("app init failed", zap.Error(err))
		return err
	}
	if err := application.Run(cmd.Context()); err != nil {
		log.Error("app run failed", zap.Error(err))
		return err
	}
	return nil
}
