package orchestrator

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/madhatter5501/agentkanbd/internal/kanban"
	"github.com/madhatter5501/agentkanbd/internal/runner"
	"github.com/madhatter5501/agentkanbd/internal/worktree"
)

// AgentBinaryResolver resolves which CLI binary to invoke for a given
// agent kind, honoring a project's overrides before falling back to the
// engine-wide default (SPEC_FULL.md §3 Project.agent_binary_overrides).
type AgentBinaryResolver interface {
	Resolve(project *kanban.Project, agentKind string) string
}

// Orchestrator drives one ticket's task through its stage pipeline.
type Orchestrator struct {
	Store      *kanban.Store
	Lifecycle  *kanban.Lifecycle
	Worktrees  *worktree.Manager
	Binaries   AgentBinaryResolver
	Log        *slog.Logger
	StageTimeout time.Duration

	mu      sync.Mutex
	cancels map[string]*runner.CancelHandle
}

func New(store *kanban.Store, lifecycle *kanban.Lifecycle, wt *worktree.Manager, binaries AgentBinaryResolver, log *slog.Logger, stageTimeout time.Duration) *Orchestrator {
	return &Orchestrator{
		Store:        store,
		Lifecycle:    lifecycle,
		Worktrees:    wt,
		Binaries:     binaries,
		Log:          log,
		StageTimeout: stageTimeout,
		cancels:      make(map[string]*runner.CancelHandle),
	}
}

// Cancel requests the in-flight run (if any) for runID to stop at the
// next poll tick.
func (o *Orchestrator) Cancel(runID string) {
	o.mu.Lock()
	h, ok := o.cancels[runID]
	o.mu.Unlock()
	if ok {
		h.Cancel()
	}
}

func (o *Orchestrator) registerCancel(runID string) *runner.CancelHandle {
	h := &runner.CancelHandle{}
	o.mu.Lock()
	o.cancels[runID] = h
	o.mu.Unlock()
	return h
}

func (o *Orchestrator) unregisterCancel(runID string) {
	o.mu.Lock()
	delete(o.cancels, runID)
	o.mu.Unlock()
}

// Drive runs a task's full stage pipeline inside a worktree, persisting
// one AgentRun per stage, advancing the ticket to Review on success or
// Blocked on a fatal stage failure.
func (o *Orchestrator) Drive(ctx context.Context, ticket *kanban.Ticket, task *kanban.Task, project *kanban.Project) error {
	log := o.Log.With("ticket_id", ticket.ID, "task_id", task.ID)

	branch := o.branchName(ticket)
	wt, err := o.Worktrees.CreateWorktree(ctx, ticket.ID, branch)
	if err != nil {
		return o.fail(ctx, ticket, task, fmt.Sprintf("worktree create failed: %v", err))
	}
	if err := o.Store.SetTicketStatus(ctx, ticket.ID, kanban.StatusInProgress, ""); err != nil {
		return err
	}

	pipeline := PipelineFor(string(task.Type))
	for _, stage := range pipeline {
		if err := o.runStage(ctx, ticket, task, project, wt.Path, stage); err != nil {
			log.Error("stage failed", "stage", stage, "error", err)
			return o.fail(ctx, ticket, task, fmt.Sprintf("stage %s failed: %v", stage, err))
		}
	}

	if err := o.Store.CompleteTask(ctx, task.ID); err != nil {
		return err
	}
	return o.Lifecycle.Transition(ctx, ticket.ID, kanban.StatusReview, "")
}

func (o *Orchestrator) runStage(ctx context.Context, ticket *kanban.Ticket, task *kanban.Task, project *kanban.Project, worktreePath string, stage Stage) error {
	agentKind := agentKindForStage(stage)
	binary := o.Binaries.Resolve(project, agentKind)

	run := &kanban.AgentRun{
		TicketID:     ticket.ID,
		TaskID:       task.ID,
		Stage:        string(stage),
		Agent:        agentKind,
		WorktreePath: worktreePath,
	}
	if err := o.Store.CreateAgentRun(ctx, run); err != nil {
		return err
	}
	if err := o.Store.IncrementAgentRunCount(ctx, ticket.ID); err != nil {
		return err
	}

	cancel := o.registerCancel(run.ID)
	defer o.unregisterCancel(run.ID)

	onLine := func(stream kanban.EventStream, line string) {
		text := line
		if extracted, ok := runner.ExtractStreamText(line); ok {
			text = extracted
		}
		_ = o.Store.AppendEvent(ctx, &kanban.Event{RunID: run.ID, Stream: stream, Text: text})
	}

	deadline := time.Now().Add(o.StageTimeout)
	spec := runner.Spec{
		Binary:  binary,
		Args:    []string{"--print", "--dangerously-skip-permissions"},
		Dir:     worktreePath,
		Stdin:   promptFor(stage, ticket),
		Timeout: o.StageTimeout,
		OnLine:  onLine,
		Cancel:  cancel,
	}

	res, retries, err := runner.RunWithRetry(ctx, spec, deadline)
	status := kanban.RunSucceeded
	errMsg := ""
	if err != nil {
		status = kanban.RunFailed
		errMsg = err.Error()
	} else if res != nil && res.ExitCode != 0 {
		status = kanban.RunFailed
		errMsg = fmt.Sprintf("exit code %d", res.ExitCode)
	}
	output := ""
	if res != nil {
		output = res.Stdout
	}
	if finishErr := o.Store.FinishAgentRun(ctx, run.ID, status, output, errMsg, retries); finishErr != nil {
		return finishErr
	}
	if status == kanban.RunFailed {
		return fmt.Errorf("%s", errMsg)
	}
	return nil
}

func (o *Orchestrator) fail(ctx context.Context, ticket *kanban.Ticket, task *kanban.Task, reason string) error {
	if err := o.Store.FailTask(ctx, task.ID); err != nil {
		return err
	}
	if err := o.Store.AddComment(ctx, &kanban.Comment{TicketID: ticket.ID, Author: "system", Body: reason}); err != nil {
		return err
	}
	return o.Lifecycle.Transition(ctx, ticket.ID, kanban.StatusBlocked, reason)
}

// branchName reuses the ticket's worktree_branch if set, otherwise derives
// a deterministic name from the ticket id and title. No branch-gen stage
// runs and no temporary branch is renamed.
func (o *Orchestrator) branchName(ticket *kanban.Ticket) string {
	if ticket.WorktreeBranch != "" {
		return ticket.WorktreeBranch
	}
	return worktree.GenerateBranchName("ticket", shortID(ticket.ID), ticket.Title)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func agentKindForStage(stage Stage) string {
	switch stage {
	case StagePlan:
		return "planner"
	case StageUnitTests:
		return "qa"
	case StageReviewChanges1, StageReviewChanges2:
		return "reviewer"
	default:
		return "dev"
	}
}

func promptFor(stage Stage, ticket *kanban.Ticket) string {
	return fmt.Sprintf("stage=%s ticket=%s title=%q", stage, ticket.ID, ticket.Title)
}

// HooksPath returns the per-worktree hook configuration file path for the
// given agent kind: the file WriteCursorHooks or WriteClaudeHooks writes.
func HooksPath(worktreePath, agentKind string) string {
	switch agentKind {
	case "cursor":
		return filepath.Join(worktreePath, ".cursor", "hooks.json")
	default:
		return filepath.Join(worktreePath, ".claude", "settings.local.json")
	}
}
