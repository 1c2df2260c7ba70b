package cmd

import (
	"github.com/spf13/cobra"

	"livestream-chat/internal/db"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply the chat database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		database, err := db.Connect(cmd.Context(), cfg.Database.DSN)
		if err != nil {
			return err
		}
		defer database.Close()
		return db.Migrate(cmd.Context(), database)
	},
}
