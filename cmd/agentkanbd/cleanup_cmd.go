package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/madhatter5501/agentkanbd/internal/cleanup"
)

func newCleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Run one cleanup sweep (expired locks, stale runs) and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, closeFn, err := buildEngine()
			if err != nil {
				return err
			}
			defer closeFn()

			svc := &cleanup.Service{
				Store:      eng.store,
				Lifecycle:  eng.lifecycle,
				Interval:   eng.cfg.CleanupInterval,
				StaleAfter: eng.cfg.StaleRunAfter,
				Log:        eng.log.With("component", "cleanup"),
			}
			if _, err := eng.store.DeleteExpiredRepoLocks(cmd.Context()); err != nil {
				return fmt.Errorf("cleanup sweep: %w", err)
			}
			if err := svc.RunStartupSweep(cmd.Context()); err != nil {
				return fmt.Errorf("cleanup sweep: %w", err)
			}
			fmt.Println("cleanup sweep complete")
			return nil
		},
	}
}
