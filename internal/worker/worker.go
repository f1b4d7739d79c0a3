// Package worker runs the poll/reserve/drive/release loop that pulls
// Ready tickets off a board and drives them through the Stage
// Orchestrator, one worker goroutine per configured domain.
package worker

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/madhatter5501/agentkanbd/internal/kanban"
)

// Driver abstracts the orchestrator so worker tests can substitute a stub.
type Driver interface {
	Drive(ctx context.Context, ticket *kanban.Ticket, task *kanban.Task, project *kanban.Project) error
}

// Worker polls one board/domain pair for reservable tickets.
type Worker struct {
	Store    *kanban.Store
	Driver   Driver
	BoardID  string
	Domain   string
	LockTTL  time.Duration
	Poll     time.Duration
	Heartbeat time.Duration
	Log      *slog.Logger
}

// Run blocks, polling until ctx is cancelled. Each reservation spawns a
// heartbeat goroutine that renews the ticket's lock until the drive
// completes, matching the background-ticker idiom used
// elsewhere in the engine.
func (w *Worker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.Poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.tick(ctx)
		}
	}
}

func (w *Worker) tick(ctx context.Context) {
	runID := uuid.NewString()
	ticket, err := w.Store.ReserveNextTicket(ctx, w.BoardID, w.Domain, runID, w.LockTTL)
	if err != nil {
		w.Log.Error("reserve ticket failed", "error", err)
		return
	}
	if ticket == nil {
		return
	}
	log := w.Log.With("ticket_id", ticket.ID, "run_id", runID)

	heartbeatCtx, stopHeartbeat := context.WithCancel(ctx)
	defer stopHeartbeat()
	go w.heartbeat(heartbeatCtx, ticket.ID, runID)

	defer func() {
		if err := w.Store.ReleaseTicketLock(ctx, ticket.ID); err != nil {
			log.Error("release ticket lock failed", "error", err)
		}
	}()

	task, err := w.Store.GetNextPendingTask(ctx, ticket.ID)
	if err != nil {
		log.Error("get next pending task failed", "error", err)
		return
	}
	if task == nil {
		return
	}
	if err := w.Store.StartTask(ctx, task.ID, runID); err != nil {
		log.Error("start task failed", "error", err)
		return
	}

	project, err := w.projectFor(ctx, ticket)
	if err != nil {
		log.Error("resolve project failed", "error", err)
		return
	}

	if err := w.Driver.Drive(ctx, ticket, task, project); err != nil {
		log.Error("drive failed", "error", err)
	}
}

func (w *Worker) projectFor(ctx context.Context, ticket *kanban.Ticket) (*kanban.Project, error) {
	if ticket.ProjectID == "" {
		return &kanban.Project{}, nil
	}
	return w.Store.GetProject(ctx, ticket.ProjectID)
}

// heartbeat renews the ticket's reservation lock every Heartbeat interval
// (half the lock TTL when Heartbeat is unset) until the parent run
// context is cancelled (the drive completed or the run
// was cancelled), so a long-running stage never loses its claim.
func (w *Worker) heartbeat(ctx context.Context, ticketID, runID string) {
	interval := w.Heartbeat
	if interval <= 0 {
		interval = w.LockTTL / 2
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.Store.RenewTicketLock(ctx, ticketID, runID, w.LockTTL); err != nil {
				w.Log.Error("heartbeat renew failed", "ticket_id", ticketID, "error", err)
			}
		}
	}
}
