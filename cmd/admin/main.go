// Command admin runs one-off maintenance tasks against the InfraSite database and bucket.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"infrasite/internal/config"
	"infrasite/internal/database"
)

var rootCmd = &cobra.Command{
	Use:   "admin",
	Short: "InfraSite maintenance commands",
	Long: `Maintenance commands for the InfraSite backend.

Configuration is read from the same environment variables (and optional .env)
as the API and worker.`,
	SilenceUsage: true,
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update every table",
	RunE: func(cmd *cobra.Command, _ []string) error {
		_, db, err := openDatabase()
		if err != nil {
			return err
		}
		if err := database.Migrate(db); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "schema is up to date")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd, createUserCmd, seedCmd, pruneMediaCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func openDatabase() (*config.Config, *gorm.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	db, err := database.InitDatabase(cfg.Database)
	if err != nil {
		return nil, nil, err
	}
	return cfg, db, nil
}
