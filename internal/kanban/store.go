package kanban

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/madhatter5501/agentkanbd/internal/db"
)

// Store is the single point of access to persisted kanban state. The
// underlying *db.DB allows one open connection, so every statement and
// transaction has exclusive use of it for its duration and writers never
// overlap; Store itself holds no mutex.
type Store struct {
	db *db.DB
}

// New wraps an already-opened database handle.
func New(d *db.DB) *Store {
	return &Store{db: d}
}

func newID() string { return uuid.NewString() }

// --- Projects ---------------------------------------------------------

func (s *Store) CreateProject(ctx context.Context, p *Project) error {
	if p.Name == "" {
		return &ValidationError{Field: "name", Reason: "required"}
	}
	if p.RepoPath == "" {
		return &ValidationError{Field: "repo_path", Reason: "required"}
	}
	if p.ID == "" {
		p.ID = newID()
	}
	if p.MainBranch == "" {
		p.MainBranch = "main"
	}
	overrides, err := json.Marshal(p.AgentBinaryOverrides)
	if err != nil {
		return fmt.Errorf("marshal agent_binary_overrides: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO projects (id, name, repo_path, main_branch, agent_binary_overrides)
		VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.RepoPath, p.MainBranch, string(overrides))
	if err != nil {
		return fmt.Errorf("insert project: %w", err)
	}
	return nil
}

func (s *Store) GetProject(ctx context.Context, id string) (*Project, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, name, repo_path, main_branch, agent_binary_overrides, created_at, updated_at
		FROM projects WHERE id = ?`, id)
	p := &Project{}
	var overrides sql.NullString
	if err := row.Scan(&p.ID, &p.Name, &p.RepoPath, &p.MainBranch, &overrides, &p.CreatedAt, &p.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &NotFoundError{Kind: "project", ID: id}
		}
		return nil, fmt.Errorf("get project: %w", err)
	}
	if overrides.Valid && overrides.String != "" {
		_ = json.Unmarshal([]byte(overrides.String), &p.AgentBinaryOverrides)
	}
	return p, nil
}

func (s *Store) ListProjects(ctx context.Context) ([]*Project, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM projects ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan project id: %w", err)
		}
		ids = append(ids, id)
	}
	out := make([]*Project, 0, len(ids))
	for _, id := range ids {
		p, err := s.GetProject(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

func (s *Store) UpdateProject(ctx context.Context, p *Project) error {
	overrides, err := json.Marshal(p.AgentBinaryOverrides)
	if err != nil {
		return fmt.Errorf("marshal agent_binary_overrides: %w", err)
	}
	res, err := s.db.ExecContext(ctx, `
		UPDATE projects SET name = ?, repo_path = ?, main_branch = ?, agent_binary_overrides = ?,
			updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		p.Name, p.RepoPath, p.MainBranch, string(overrides), p.ID)
	if err != nil {
		return fmt.Errorf("update project: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return &NotFoundError{Kind: "project", ID: p.ID}
	}
	return nil
}

func (s *Store) DeleteProject(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete project: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return &NotFoundError{Kind: "project", ID: id}
	}
	return nil
}

// --- Boards & columns ---------------------------------------------------

func (s *Store) CreateBoard(ctx context.Context, b *Board) error {
	if b.Name == "" {
		return &ValidationError{Field: "name", Reason: "required"}
	}
	if b.ID == "" {
		b.ID = newID()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO boards (id, project_id, name, default_project_id) VALUES (?, ?, ?, ?)`,
		b.ID, b.ProjectID, b.Name, b.DefaultProjectID); err != nil {
		return fmt.Errorf("insert board: %w", err)
	}
	for i, status := range DefaultColumns {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO columns (id, board_id, name, position) VALUES (?, ?, ?, ?)`,
			newID(), b.ID, string(status), i); err != nil {
			return fmt.Errorf("seed column %s: %w", status, err)
		}
	}
	return tx.Commit()
}

func (s *Store) GetBoard(ctx context.Context, id string) (*Board, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, project_id, name, COALESCE(default_project_id, ''), created_at
		FROM boards WHERE id = ?`, id)
	b := &Board{}
	if err := row.Scan(&b.ID, &b.ProjectID, &b.Name, &b.DefaultProjectID, &b.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &NotFoundError{Kind: "board", ID: id}
		}
		return nil, fmt.Errorf("get board: %w", err)
	}
	return b, nil
}

func (s *Store) ListColumns(ctx context.Context, boardID string) ([]*Column, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, board_id, name, position, wip_limit FROM columns
		WHERE board_id = ? ORDER BY position`, boardID)
	if err != nil {
		return nil, fmt.Errorf("list columns: %w", err)
	}
	defer rows.Close()
	var out []*Column
	for rows.Next() {
		c := &Column{}
		if err := rows.Scan(&c.ID, &c.BoardID, &c.Name, &c.Position, &c.WIPLimit); err != nil {
			return nil, fmt.Errorf("scan column: %w", err)
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *Store) SetColumnWIPLimit(ctx context.Context, columnID string, limit int) error {
	res, err := s.db.ExecContext(ctx, `UPDATE columns SET wip_limit = ? WHERE id = ?`, limit, columnID)
	if err != nil {
		return fmt.Errorf("set wip limit: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return &NotFoundError{Kind: "column", ID: columnID}
	}
	return nil
}

// --- Tickets -------------------------------------------------------------

func (s *Store) CreateTicket(ctx context.Context, t *Ticket) error {
	if t.Title == "" {
		return &ValidationError{Field: "title", Reason: "required"}
	}
	if len(t.DependsOnEpicIDs) > 1 {
		return &ValidationError{Field: "depends_on_epic_ids", Reason: "at most one dependency supported"}
	}
	if t.ID == "" {
		t.ID = newID()
	}
	if t.Status == "" {
		t.Status = StatusBacklog
	}
	deps, err := json.Marshal(t.DependsOnEpicIDs)
	if err != nil {
		return fmt.Errorf("marshal depends_on_epic_ids: %w", err)
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO tickets (id, board_id, project_id, parent_epic_id, depends_on_epic_ids, title,
			description, domain, priority, status, order_in_epic)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.BoardID, nullable(t.ProjectID), nullable(t.ParentEpicID), string(deps), t.Title,
		t.Description, t.Domain, t.Priority, string(t.Status), t.OrderInEpic)
	if err != nil {
		return fmt.Errorf("insert ticket: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO tasks (id, ticket_id, type, status) VALUES (?, ?, ?, ?)`,
		newID(), t.ID, string(TaskImplement), string(TaskPending)); err != nil {
		return fmt.Errorf("insert initial task: %w", err)
	}
	return tx.Commit()
}

func nullable(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func scanTicket(row interface {
	Scan(dest ...interface{}) error
}) (*Ticket, error) {
	t := &Ticket{}
	var projectID, parentEpic, blockedReason, worktreePath, worktreeBranch, lockOwner sql.NullString
	var deps sql.NullString
	var lockExpires sql.NullTime
	err := row.Scan(&t.ID, &t.BoardID, &projectID, &parentEpic, &deps, &t.Title, &t.Description,
		&t.Domain, &t.Priority, &t.Status, &blockedReason, &t.OrderInEpic, &t.AgentRunCount,
		&worktreePath, &worktreeBranch, &lockOwner, &lockExpires, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.ProjectID = projectID.String
	t.ParentEpicID = parentEpic.String
	t.BlockedReason = blockedReason.String
	t.WorktreePath = worktreePath.String
	t.WorktreeBranch = worktreeBranch.String
	t.LockOwner = lockOwner.String
	if lockExpires.Valid {
		t.LockExpiresAt = &lockExpires.Time
	}
	if deps.Valid && deps.String != "" {
		_ = json.Unmarshal([]byte(deps.String), &t.DependsOnEpicIDs)
	}
	return t, nil
}

const ticketColumns = `id, board_id, project_id, parent_epic_id, depends_on_epic_ids, title,
	description, domain, priority, status, blocked_reason, order_in_epic, agent_run_count,
	worktree_path, worktree_branch, lock_owner, lock_expires_at, created_at, updated_at`

func (s *Store) GetTicket(ctx context.Context, id string) (*Ticket, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE id = ?`, id)
	t, err := scanTicket(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &NotFoundError{Kind: "ticket", ID: id}
		}
		return nil, fmt.Errorf("get ticket: %w", err)
	}
	return t, nil
}

func (s *Store) ListTicketsByStatus(ctx context.Context, boardID string, status Status) ([]*Ticket, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+ticketColumns+` FROM tickets WHERE board_id = ? AND status = ?
		ORDER BY priority DESC, created_at`, boardID, string(status))
	if err != nil {
		return nil, fmt.Errorf("list tickets: %w", err)
	}
	defer rows.Close()
	var out []*Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ticket: %w", err)
		}
		out = append(out, t)
	}
	return out, nil
}

func (s *Store) ListChildTickets(ctx context.Context, epicID string) ([]*Ticket, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT `+ticketColumns+` FROM tickets WHERE parent_epic_id = ?
		ORDER BY order_in_epic, created_at`, epicID)
	if err != nil {
		return nil, fmt.Errorf("list child tickets: %w", err)
	}
	defer rows.Close()
	var out []*Ticket
	for rows.Next() {
		t, err := scanTicket(rows)
		if err != nil {
			return nil, fmt.Errorf("scan ticket: %w", err)
		}
		out = append(out, t)
	}
	return out, nil
}

// SetTicketStatus moves a ticket to a new column, optionally recording a
// blocked reason. It is the only path that mutates Status so the Lifecycle
// Rules in state.go can own the column-transition table.
func (s *Store) SetTicketStatus(ctx context.Context, id string, status Status, blockedReason string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tickets SET status = ?, blocked_reason = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, string(status), nullable(blockedReason), id)
	if err != nil {
		return fmt.Errorf("set ticket status: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return &NotFoundError{Kind: "ticket", ID: id}
	}
	return nil
}

// ReserveNextTicket atomically claims the highest-priority Ready ticket for
// domain that is not currently lock-held, in a single UPDATE with a
// correlated subquery so two concurrent Workers can never both reserve the
// same ticket (property A2). Returns (nil, nil) when nothing is available.
func (s *Store) ReserveNextTicket(ctx context.Context, boardID, domain, ownerRunID string, lockTTL time.Duration) (*Ticket, error) {
	now := time.Now().UTC()
	expires := now.Add(lockTTL)

	res, err := s.db.ExecContext(ctx, `
		UPDATE tickets
		SET lock_owner = ?, lock_expires_at = ?, updated_at = CURRENT_TIMESTAMP
		WHERE id = (
			SELECT id FROM tickets
			WHERE board_id = ?
			  AND status = ?
			  AND (domain = ? OR ? = '')
			  AND (lock_owner IS NULL OR lock_expires_at < ?)
			ORDER BY priority DESC, created_at
			LIMIT 1
		)`,
		ownerRunID, expires, boardID, string(StatusReady), domain, domain, now)
	if err != nil {
		return nil, fmt.Errorf("reserve ticket: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return nil, fmt.Errorf("reserve ticket rows affected: %w", err)
	}
	if n == 0 {
		return nil, nil
	}

	row := s.db.QueryRowContext(ctx, `SELECT `+ticketColumns+` FROM tickets WHERE lock_owner = ? AND lock_expires_at = ?`, ownerRunID, expires)
	t, err := scanTicket(row)
	if err != nil {
		return nil, fmt.Errorf("load reserved ticket: %w", err)
	}
	return t, nil
}

// RenewTicketLock extends an already-held ticket reservation's expiry.
// The Worker's heartbeat goroutine calls this periodically so a
// long-running stage never loses its claim to a competing reservation.
func (s *Store) RenewTicketLock(ctx context.Context, ticketID, ownerRunID string, ttl time.Duration) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tickets SET lock_expires_at = ? WHERE id = ? AND lock_owner = ?`,
		time.Now().UTC().Add(ttl), ticketID, ownerRunID)
	if err != nil {
		return fmt.Errorf("renew ticket lock: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return &LockConflictError{RepoPath: ticketID, Owner: ownerRunID}
	}
	return nil
}

// ReleaseTicketLock clears the reservation set by ReserveNextTicket.
func (s *Store) ReleaseTicketLock(ctx context.Context, id string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE tickets SET lock_owner = NULL, lock_expires_at = NULL, updated_at = CURRENT_TIMESTAMP
		WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("release ticket lock: %w", err)
	}
	return nil
}

func (s *Store) IncrementAgentRunCount(ctx context.Context, ticketID string) error {
	_, err := s.db.ExecContext(ctx, `UPDATE tickets SET agent_run_count = agent_run_count + 1 WHERE id = ?`, ticketID)
	if err != nil {
		return fmt.Errorf("increment agent run count: %w", err)
	}
	return nil
}

// --- Tasks -----------------------------------------------------------------

func (s *Store) CreateTask(ctx context.Context, t *Task) error {
	if t.ID == "" {
		t.ID = newID()
	}
	if t.Type == "" {
		t.Type = TaskImplement
	}
	if t.Status == "" {
		t.Status = TaskPending
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO tasks (id, ticket_id, type, status) VALUES (?, ?, ?, ?)`,
		t.ID, t.TicketID, string(t.Type), string(t.Status))
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

func (s *Store) ListTasks(ctx context.Context, ticketID string) ([]*Task, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ticket_id, type, status, COALESCE(run_id, ''), created_at, started_at, completed_at
		FROM tasks WHERE ticket_id = ? ORDER BY created_at`, ticketID)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()
	var out []*Task
	for rows.Next() {
		tk := &Task{}
		if err := rows.Scan(&tk.ID, &tk.TicketID, &tk.Type, &tk.Status, &tk.RunID, &tk.CreatedAt, &tk.StartedAt, &tk.CompletedAt); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		out = append(out, tk)
	}
	return out, nil
}

func (s *Store) GetNextPendingTask(ctx context.Context, ticketID string) (*Task, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, ticket_id, type, status, COALESCE(run_id, ''), created_at, started_at, completed_at
		FROM tasks WHERE ticket_id = ? AND status = ? ORDER BY created_at LIMIT 1`,
		ticketID, string(TaskPending))
	tk := &Task{}
	if err := row.Scan(&tk.ID, &tk.TicketID, &tk.Type, &tk.Status, &tk.RunID, &tk.CreatedAt, &tk.StartedAt, &tk.CompletedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get next pending task: %w", err)
	}
	return tk, nil
}

// StartTask transactionally moves a task from pending to in_progress and
// records the driving run id, failing if another writer already started it
// (the Open Question decision recorded in DESIGN.md: a task found already
// in_progress on worker startup is treated as abandoned and requeued by the
// Cleanup Service rather than resumed in place).
func (s *Store) StartTask(ctx context.Context, taskID, runID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET status = ?, run_id = ?, started_at = CURRENT_TIMESTAMP
		WHERE id = ? AND status = ?`,
		string(TaskInProgress), runID, taskID, string(TaskPending))
	if err != nil {
		return fmt.Errorf("start task: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return &LockConflictError{RepoPath: taskID, Owner: runID}
	}
	return nil
}

func (s *Store) CompleteTask(ctx context.Context, taskID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET status = ?, completed_at = CURRENT_TIMESTAMP WHERE id = ? AND status = ?`,
		string(TaskCompleted), taskID, string(TaskInProgress))
	if err != nil {
		return fmt.Errorf("complete task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &ValidationError{Field: "status", Reason: fmt.Sprintf("task %s is not in_progress", taskID)}
	}
	return nil
}

func (s *Store) FailTask(ctx context.Context, taskID string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET status = ?, completed_at = CURRENT_TIMESTAMP WHERE id = ? AND status = ?`,
		string(TaskFailed), taskID, string(TaskInProgress))
	if err != nil {
		return fmt.Errorf("fail task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &ValidationError{Field: "status", Reason: fmt.Sprintf("task %s is not in_progress", taskID)}
	}
	return nil
}

// RequeueAbandonedTasks resets any task stuck in_progress whose owning run
// is no longer running, back to pending. Used by the Cleanup Service.
func (s *Store) RequeueAbandonedTasks(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		UPDATE tasks SET status = ?, run_id = NULL, started_at = NULL
		WHERE status = ? AND (run_id IS NULL OR run_id NOT IN (
			SELECT id FROM agent_runs WHERE status = ?
		))`, string(TaskPending), string(TaskInProgress), string(RunRunning))
	if err != nil {
		return 0, fmt.Errorf("requeue abandoned tasks: %w", err)
	}
	return res.RowsAffected()
}

// --- Agent runs --------------------------------------------------------

func (s *Store) CreateAgentRun(ctx context.Context, r *AgentRun) error {
	if r.ID == "" {
		r.ID = newID()
	}
	if r.Status == "" {
		r.Status = RunRunning
	}
	if r.StartedAt.IsZero() {
		r.StartedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agent_runs (id, ticket_id, task_id, parent_run_id, stage, agent, model,
			worktree_path, status, started_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.TicketID, nullable(r.TaskID), nullable(r.ParentRunID), r.Stage, r.Agent,
		nullable(r.Model), nullable(r.WorktreePath), string(r.Status), r.StartedAt)
	if err != nil {
		return fmt.Errorf("insert agent run: %w", err)
	}
	return nil
}

func (s *Store) FinishAgentRun(ctx context.Context, id string, status RunStatus, output, errMsg string, retryCount int) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE agent_runs SET status = ?, output = ?, error = ?, retry_count = ?, ended_at = CURRENT_TIMESTAMP
		WHERE id = ?`, string(status), output, errMsg, retryCount, id)
	if err != nil {
		return fmt.Errorf("finish agent run: %w", err)
	}
	return nil
}

func (s *Store) GetAgentRun(ctx context.Context, id string) (*AgentRun, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, ticket_id, COALESCE(task_id, ''), COALESCE(parent_run_id, ''), stage, agent,
			COALESCE(model, ''), retry_count, COALESCE(worktree_path, ''), status, started_at,
			ended_at, COALESCE(output, ''), COALESCE(error, '')
		FROM agent_runs WHERE id = ?`, id)
	r := &AgentRun{}
	if err := row.Scan(&r.ID, &r.TicketID, &r.TaskID, &r.ParentRunID, &r.Stage, &r.Agent, &r.Model,
		&r.RetryCount, &r.WorktreePath, &r.Status, &r.StartedAt, &r.EndedAt, &r.Output, &r.Error); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, &NotFoundError{Kind: "agent_run", ID: id}
		}
		return nil, fmt.Errorf("get agent run: %w", err)
	}
	return r, nil
}

// ListStaleRunningRuns returns runs still marked running whose started_at
// is older than cutoff — candidates for the Cleanup Service's abort sweep.
func (s *Store) ListStaleRunningRuns(ctx context.Context, cutoff time.Time) ([]*AgentRun, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id FROM agent_runs WHERE status = ? AND started_at < ?`, string(RunRunning), cutoff)
	if err != nil {
		return nil, fmt.Errorf("list stale runs: %w", err)
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan stale run id: %w", err)
		}
		ids = append(ids, id)
	}
	out := make([]*AgentRun, 0, len(ids))
	for _, id := range ids {
		r, err := s.GetAgentRun(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// --- Events --------------------------------------------------------------

func (s *Store) AppendEvent(ctx context.Context, e *Event) error {
	if e.ID == "" {
		e.ID = newID()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agent_events (id, run_id, stream, text) VALUES (?, ?, ?, ?)`,
		e.ID, e.RunID, string(e.Stream), e.Text)
	if err != nil {
		return fmt.Errorf("append event: %w", err)
	}
	return nil
}

func (s *Store) ListEvents(ctx context.Context, runID string) ([]*Event, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, run_id, stream, text, created_at FROM agent_events
		WHERE run_id = ? ORDER BY created_at`, runID)
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer rows.Close()
	var out []*Event
	for rows.Next() {
		e := &Event{}
		if err := rows.Scan(&e.ID, &e.RunID, &e.Stream, &e.Text, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		out = append(out, e)
	}
	return out, nil
}

// --- Comments --------------------------------------------------------------

func (s *Store) AddComment(ctx context.Context, c *Comment) error {
	if c.ID == "" {
		c.ID = newID()
	}
	if c.Body == "" {
		return &ValidationError{Field: "body", Reason: "required"}
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO comments (id, ticket_id, author, body) VALUES (?, ?, ?, ?)`,
		c.ID, c.TicketID, c.Author, c.Body)
	if err != nil {
		return fmt.Errorf("add comment: %w", err)
	}
	return nil
}

func (s *Store) ListComments(ctx context.Context, ticketID string) ([]*Comment, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, ticket_id, author, body, created_at FROM comments
		WHERE ticket_id = ? ORDER BY created_at`, ticketID)
	if err != nil {
		return nil, fmt.Errorf("list comments: %w", err)
	}
	defer rows.Close()
	var out []*Comment
	for rows.Next() {
		c := &Comment{}
		if err := rows.Scan(&c.ID, &c.TicketID, &c.Author, &c.Body, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan comment: %w", err)
		}
		out = append(out, c)
	}
	return out, nil
}

// --- Scratchpads -------------------------------------------------------

func (s *Store) GetScratchpad(ctx context.Context, ticketID string) (*Scratchpad, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT ticket_id, content, updated_at FROM scratchpads WHERE ticket_id = ?`, ticketID)
	sp := &Scratchpad{}
	if err := row.Scan(&sp.TicketID, &sp.Content, &sp.UpdatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return &Scratchpad{TicketID: ticketID}, nil
		}
		return nil, fmt.Errorf("get scratchpad: %w", err)
	}
	return sp, nil
}

func (s *Store) UpsertScratchpad(ctx context.Context, ticketID, content string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO scratchpads (ticket_id, content, updated_at) VALUES (?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(ticket_id) DO UPDATE SET content = excluded.content, updated_at = CURRENT_TIMESTAMP`,
		ticketID, content)
	if err != nil {
		return fmt.Errorf("upsert scratchpad: %w", err)
	}
	return nil
}

// --- Repo locks --------------------------------------------------------

// AcquireRepoLock attempts to take the lock for repoPath, failing with
// LockConflictError if another run holds an unexpired lock.
func (s *Store) AcquireRepoLock(ctx context.Context, repoPath, ownerRunID string, ttl time.Duration) error {
	now := time.Now().UTC()
	expires := now.Add(ttl)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, `SELECT owner_run_id, expires_at FROM repo_locks WHERE repo_path = ?`, repoPath)
	var owner string
	var expiresAt time.Time
	err = row.Scan(&owner, &expiresAt)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO repo_locks (repo_path, owner_run_id, acquired_at, expires_at) VALUES (?, ?, ?, ?)`,
			repoPath, ownerRunID, now, expires); err != nil {
			return fmt.Errorf("insert repo lock: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read repo lock: %w", err)
	default:
		if owner != ownerRunID && expiresAt.After(now) {
			return &LockConflictError{RepoPath: repoPath, Owner: owner}
		}
		if _, err := tx.ExecContext(ctx, `
			UPDATE repo_locks SET owner_run_id = ?, acquired_at = ?, expires_at = ? WHERE repo_path = ?`,
			ownerRunID, now, expires, repoPath); err != nil {
			return fmt.Errorf("update repo lock: %w", err)
		}
	}
	return tx.Commit()
}

// RenewRepoLock extends an already-held lock's expiry; the heartbeat loop
// calls this periodically while a run holds the repo.
func (s *Store) RenewRepoLock(ctx context.Context, repoPath, ownerRunID string, ttl time.Duration) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE repo_locks SET expires_at = ? WHERE repo_path = ? AND owner_run_id = ?`,
		time.Now().UTC().Add(ttl), repoPath, ownerRunID)
	if err != nil {
		return fmt.Errorf("renew repo lock: %w", err)
	}
	n, _ := res.RowsAffected()
	if n == 0 {
		return &LockConflictError{RepoPath: repoPath, Owner: ownerRunID}
	}
	return nil
}

func (s *Store) ReleaseRepoLock(ctx context.Context, repoPath, ownerRunID string) error {
	_, err := s.db.ExecContext(ctx, `
		DELETE FROM repo_locks WHERE repo_path = ? AND owner_run_id = ?`, repoPath, ownerRunID)
	if err != nil {
		return fmt.Errorf("release repo lock: %w", err)
	}
	return nil
}

// DeleteExpiredRepoLocks is the periodic sweep performed by the Cleanup
// Service (C7).
func (s *Store) DeleteExpiredRepoLocks(ctx context.Context) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM repo_locks WHERE expires_at < ?`, time.Now().UTC())
	if err != nil {
		return 0, fmt.Errorf("delete expired repo locks: %w", err)
	}
	return res.RowsAffected()
}
