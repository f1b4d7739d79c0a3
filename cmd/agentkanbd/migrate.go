package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/madhatter5501/agentkanbd/internal/config"
	"github.com/madhatter5501/agentkanbd/internal/db"
)

func newMigrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, _, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			d, err := db.Open(cfg.DBPath)
			if err != nil {
				return fmt.Errorf("open db: %w", err)
			}
			defer d.Close()
			fmt.Printf("database at %s is up to date\n", cfg.DBPath)
			return nil
		},
	}
}
