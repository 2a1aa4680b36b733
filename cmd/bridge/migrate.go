package main

import (
	"github.com/rs/zerolog/log"
	"github.com/urfave/cli/v2"

	"github.com/kvantora/comment-bridge/internal/data"
)

func migrateCommand() *cli.Command {
	return &cli.Command{
		Name:  "migrate",
		Usage: "Apply database migrations (Postgres only, sqlite files initialise themselves)",
		Action: func(c *cli.Context) error {
			cfg, err := loadConfig(c)
			if err != nil {
				return err
			}

			if !data.IsPostgresURL(cfg.Storage.DatabaseURL) {
				log.Info().Msg("sqlite storage needs no migrations")
				return nil
			}
			if err := data.RunMigrations(cfg.Storage.DatabaseURL); err != nil {
				return err
			}
			log.Info().Msg("migrations applied")
			return nil
		},
	}
}
