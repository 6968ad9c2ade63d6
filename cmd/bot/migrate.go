package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/ChuprinaDaria/yoga-bot/internal/store"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		repo, err := store.OpenSQLite(cmd.Context(), cfg.DBPath)
		if err != nil {
			return err
		}
		log.Info("migrations applied", zap.String("path", cfg.DBPath))
		return repo.Close()
	},
}
