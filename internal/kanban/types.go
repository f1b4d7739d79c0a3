// Package kanban defines the domain model and persistence contract for the
// agent-driven kanban engine: projects, boards, tickets, tasks, agent runs,
// comments and the column state machine that drives them.
package kanban

import "time"

// Status is a ticket's position on the board.
type Status string

const (
	StatusBacklog    Status = "backlog"
	StatusReady      Status = "ready"
	StatusInProgress Status = "in_progress"
	StatusBlocked    Status = "blocked"
	StatusReview     Status = "review"
	StatusDone       Status = "done"
)

// DefaultColumns is the fixed column order every new board is seeded with.
var DefaultColumns = []Status{
	StatusBacklog,
	StatusReady,
	StatusInProgress,
	StatusBlocked,
	StatusReview,
	StatusDone,
}

// TaskType selects which preset (or full plan-driven) pipeline a task runs.
type TaskType string

const (
	TaskImplement    TaskType = "implement"
	TaskSyncWithMain TaskType = "sync-with-main"
	TaskAddTests     TaskType = "add-tests"
	TaskReviewPolish TaskType = "review-polish"
	TaskFixLint      TaskType = "fix-lint"
)

// TaskStatus tracks a task's progress through the worker loop.
type TaskStatus string

const (
	TaskPending    TaskStatus = "pending"
	TaskInProgress TaskStatus = "in_progress"
	TaskCompleted  TaskStatus = "completed"
	TaskFailed     TaskStatus = "failed"
)

// RunStatus tracks an AgentRun's lifecycle.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// Project registers a git repository the engine can drive work against.
type Project struct {
	ID                   string            `json:"id"`
	Name                 string            `json:"name"`
	RepoPath             string            `json:"repo_path"`
	MainBranch           string            `json:"main_branch"`
	AgentBinaryOverrides map[string]string `json:"agent_binary_overrides,omitempty"`
	CreatedAt            time.Time         `json:"created_at"`
	UpdatedAt            time.Time         `json:"updated_at"`
}

// Board groups tickets under a project.
type Board struct {
	ID                string    `json:"id"`
	ProjectID         string    `json:"project_id"`
	Name              string    `json:"name"`
	DefaultProjectID  string    `json:"default_project_id,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// Column is one lane of a board.
type Column struct {
	ID       string `json:"id"`
	BoardID  string `json:"board_id"`
	Name     Status `json:"name"`
	Position int    `json:"position"`
	WIPLimit int    `json:"wip_limit"`
}

// Ticket is a unit of work tracked on a board.
type Ticket struct {
	ID                string    `json:"id"`
	BoardID           string    `json:"board_id"`
	ProjectID         string    `json:"project_id,omitempty"`
	ParentEpicID      string    `json:"parent_epic_id,omitempty"`
	DependsOnEpicIDs  []string  `json:"depends_on_epic_ids,omitempty"`
	Title             string    `json:"title"`
	Description       string    `json:"description,omitempty"`
	Domain            string    `json:"domain,omitempty"`
	Priority          int       `json:"priority"`
	Status            Status    `json:"status"`
	BlockedReason     string    `json:"blocked_reason,omitempty"`
	OrderInEpic       int       `json:"order_in_epic"`
	AgentRunCount     int       `json:"agent_run_count"`
	WorktreePath      string    `json:"worktree_path,omitempty"`
	WorktreeBranch    string    `json:"worktree_branch,omitempty"`
	LockOwner         string    `json:"lock_owner,omitempty"`
	LockExpiresAt     *time.Time `json:"lock_expires_at,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// DependsOnEpicID returns the display-only scalar form of DependsOnEpicIDs.
// Decided in DESIGN.md: the canonical storage shape is a list capped at
// length 1; this is a read-model convenience for callers that only ever
// dealt with a single dependency.
func (t *Ticket) DependsOnEpicID() string {
	if len(t.DependsOnEpicIDs) == 0 {
		return ""
	}
	return t.DependsOnEpicIDs[0]
}

// Task is one unit of pipeline work under a ticket (an implement pass,
// or one of the preset task types).
type Task struct {
	ID          string     `json:"id"`
	TicketID    string     `json:"ticket_id"`
	Type        TaskType   `json:"type"`
	Status      TaskStatus `json:"status"`
	RunID       string     `json:"run_id,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// AgentRun records one subprocess invocation (one pipeline stage).
type AgentRun struct {
	ID           string     `json:"id"`
	TicketID     string     `json:"ticket_id"`
	TaskID       string     `json:"task_id,omitempty"`
	ParentRunID  string     `json:"parent_run_id,omitempty"`
	Stage        string     `json:"stage"`
	Agent        string     `json:"agent"`
	Model        string     `json:"model,omitempty"`
	RetryCount   int        `json:"retry_count"`
	WorktreePath string     `json:"worktree_path,omitempty"`
	Status       RunStatus  `json:"status"`
	StartedAt    time.Time  `json:"started_at"`
	EndedAt      *time.Time `json:"ended_at,omitempty"`
	Output       string     `json:"output,omitempty"`
	Error        string     `json:"error,omitempty"`
}

// EventStream identifies which subprocess stream an Event line came from.
type EventStream string

const (
	StreamStdout EventStream = "stdout"
	StreamStderr EventStream = "stderr"
)

// Event is one streamed line of agent output, persisted for replay/audit.
type Event struct {
	ID        string      `json:"id"`
	RunID     string      `json:"run_id"`
	Stream    EventStream `json:"stream"`
	Text      string      `json:"text"`
	CreatedAt time.Time   `json:"created_at"`
}

// Comment is a human- or system-authored note attached to a ticket.
type Comment struct {
	ID        string    `json:"id"`
	TicketID  string    `json:"ticket_id"`
	Author    string    `json:"author"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

// RepoLock serializes worktree-mutating operations against one repo path.
type RepoLock struct {
	RepoPath    string    `json:"repo_path"`
	OwnerRunID  string    `json:"owner_run_id"`
	AcquiredAt  time.Time `json:"acquired_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Scratchpad is free-form markdown an agent accumulates across a ticket's
// runs so a restarted run can recover prior context.
type Scratchpad struct {
	TicketID  string    `json:"ticket_id"`
	Content   string    `json:"content"`
	UpdatedAt time.Time `json:"updated_at"`
}
