package main

import (
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/leadwire/leadwire/internal/db"
	"github.com/leadwire/leadwire/internal/logger"
)

var migrateCmd = &cobra.Command{
	Use:       "migrate [up|down]",
	Short:     "Apply or roll back database migrations",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{"up", "down"},
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		log := logger.Init(cfg.Log)
		if err := db.Migrate(cfg.Postgres.DSN(), args[0]); err != nil {
			return err
		}
		log.Info("migrations applied", slog.String("direction", args[0]))
		return nil
	},
}
