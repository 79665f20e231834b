package cmd

import (
	"database/sql"

	"github.com/spf13/cobra"
	"github.com/templui/piggybank/internal/config"
	"github.com/templui/piggybank/internal/db"
	"github.com/templui/piggybank/internal/logger"
)

func MigrateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply or roll back history index migrations",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return migrate(db.RunMigrations)
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "down",
		Short: "Roll back the latest migration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return migrate(db.MigrateDown)
		},
	})
	return cmd
}

func migrate(run func(*sql.DB, string) error) error {
	cfg := config.Load()
	logger.Init(true, "", cfg.AppEnv)

	database, err := db.Init(cfg.DBDriver, cfg.DBConnection)
	if err != nil {
		return err
	}
	defer database.Close()

	return run(database.DB, cfg.DBDriver)
}
