// Command agentkanbd is the entrypoint for the kanban engine: it serves
// the poll/drive worker loop and the cleanup sweep, and offers
// operator commands for migrating the store and registering projects.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

func main() {
	root := &cobra.Command{
		Use:   "agentkanbd",
		Short: "Drives AI coding-assistant subprocesses against kanban tickets",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to config file (YAML or JSON)")

	root.AddCommand(
		newServeCmd(),
		newWorkerCmd(),
		newMigrateCmd(),
		newCleanupCmd(),
		newProjectCmd(),
	)

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
