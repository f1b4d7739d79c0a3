package main

import (
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/madhatter5501/agentkanbd/internal/cleanup"
	"github.com/madhatter5501/agentkanbd/internal/config"
	"github.com/madhatter5501/agentkanbd/internal/db"
	"github.com/madhatter5501/agentkanbd/internal/kanban"
	"github.com/madhatter5501/agentkanbd/internal/orchestrator"
	"github.com/madhatter5501/agentkanbd/internal/worker"
	"github.com/madhatter5501/agentkanbd/internal/worktree"
)

// engine bundles the wiring shared by serve and worker so both commands
// build the same dependency graph from one place.
type engine struct {
	cfg       *config.Config
	store     *kanban.Store
	lifecycle *kanban.Lifecycle
	log       *slog.Logger
}

func buildEngine() (*engine, func(), error) {
	log := slog.New(slog.NewTextHandler(os.Stderr, nil))

	cfg, v, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}
	config.WatchReload(v, cfg, log)

	d, err := db.Open(cfg.DBPath)
	if err != nil {
		return nil, nil, fmt.Errorf("open db: %w", err)
	}
	store := kanban.New(d)
	lifecycle := kanban.NewLifecycle(store)

	return &engine{cfg: cfg, store: store, lifecycle: lifecycle, log: log}, func() { d.Close() }, nil
}

func newServeCmd() *cobra.Command {
	var boardID, domain string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the worker and cleanup loops until interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, closeFn, err := buildEngine()
			if err != nil {
				return err
			}
			defer closeFn()

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			cleanupSvc := &cleanup.Service{
				Store:      eng.store,
				Lifecycle:  eng.lifecycle,
				Interval:   eng.cfg.CleanupInterval,
				StaleAfter: eng.cfg.StaleRunAfter,
				Log:        eng.log.With("component", "cleanup"),
			}
			if err := cleanupSvc.RunStartupSweep(ctx); err != nil {
				return fmt.Errorf("startup sweep: %w", err)
			}
			go cleanupSvc.Run(ctx)

			wt := worktree.New(".", eng.cfg.WorktreeBaseDir, "main")
			binaries := &orchestrator.DefaultBinaryResolver{
				ClaudeBinary: eng.cfg.ClaudeBinary,
				CursorBinary: eng.cfg.CursorBinary,
			}
			orch := orchestrator.New(eng.store, eng.lifecycle, wt, binaries, eng.log.With("component", "orchestrator"), eng.cfg.StageTimeout)

			w := &worker.Worker{
				Store:     eng.store,
				Driver:    orch,
				BoardID:   boardID,
				Domain:    domain,
				LockTTL:   eng.cfg.LockTTL,
				Poll:      eng.cfg.PollInterval,
				Heartbeat: eng.cfg.HeartbeatInterval,
				Log:       eng.log.With("component", "worker"),
			}
			w.Run(ctx)
			return nil
		},
	}
	cmd.Flags().StringVar(&boardID, "board", "", "board id to serve")
	cmd.Flags().StringVar(&domain, "domain", "", "restrict to tickets tagged with this domain")
	return cmd
}

func newWorkerCmd() *cobra.Command {
	cmd := newServeCmd()
	cmd.Use = "worker"
	cmd.Short = "Alias for serve, kept for operators used to a dedicated worker process"
	return cmd
}
