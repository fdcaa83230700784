package main

import (
	"github.com/spf13/cobra"

	"github.com/offertesting/outreach_services/internal/platform/database"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply database migrations",
	RunE: func(_ *cobra.Command, _ []string) error {
		return database.MigrateUp(cfg.Database.MigrationsPath, cfg.Database.DSN, appLog)
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
