// Package cleanup runs the periodic sweeps that reclaim expired repo
// locks and abort stale agent runs, plus the one-shot startup sweep that
// requeues tasks abandoned by a crashed worker.
package cleanup

import (
	"context"
	"log/slog"
	"time"

	"github.com/madhatter5501/agentkanbd/internal/kanban"
)

// Service periodically reclaims expired locks and aborts runs that have
// exceeded staleAfter without finishing.
type Service struct {
	Store      *kanban.Store
	Lifecycle  *kanban.Lifecycle
	Interval   time.Duration
	StaleAfter time.Duration
	Log        *slog.Logger
}

// RunStartupSweep performs the one-shot reconciliation a fresh process
// must do before accepting new work: any task left in_progress whose
// owning run isn't actually running is abandoned and requeued (the Open
// Question decision recorded in DESIGN.md), and any run still "running"
// that started more than StaleAfter ago is marked cancelled and its
// ticket moved to Blocked. Runs that started within StaleAfter are left
// as they are.
func (s *Service) RunStartupSweep(ctx context.Context) error {
	n, err := s.Store.RequeueAbandonedTasks(ctx)
	if err != nil {
		return err
	}
	if n > 0 {
		s.Log.Info("requeued abandoned tasks on startup", "count", n)
	}
	return s.abortStaleRuns(ctx, time.Now())
}

// Run blocks, sweeping on Interval until ctx is cancelled.
func (s *Service) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Service) tick(ctx context.Context) {
	if n, err := s.Store.DeleteExpiredRepoLocks(ctx); err != nil {
		s.Log.Error("delete expired repo locks failed", "error", err)
	} else if n > 0 {
		s.Log.Info("reclaimed expired repo locks", "count", n)
	}

	if err := s.abortStaleRuns(ctx, time.Now()); err != nil {
		s.Log.Error("abort stale runs failed", "error", err)
	}
}

func (s *Service) abortStaleRuns(ctx context.Context, now time.Time) error {
	cutoff := now.Add(-s.StaleAfter)
	runs, err := s.Store.ListStaleRunningRuns(ctx, cutoff)
	if err != nil {
		return err
	}
	for _, r := range runs {
		summary := "run exceeded stale threshold and was aborted by the cleanup service"
		if err := s.Store.FinishAgentRun(ctx, r.ID, kanban.RunCancelled, "", summary, r.RetryCount); err != nil {
			s.Log.Error("finish stale run failed", "run_id", r.ID, "error", err)
			continue
		}
		if err := s.Store.AddComment(ctx, &kanban.Comment{TicketID: r.TicketID, Author: "system", Body: summary}); err != nil {
			s.Log.Error("comment on stale run failed", "run_id", r.ID, "error", err)
		}
		if err := s.Lifecycle.Transition(ctx, r.TicketID, kanban.StatusBlocked, summary); err != nil {
			s.Log.Error("transition stale ticket failed", "ticket_id", r.TicketID, "error", err)
		}
	}
	return nil
}
