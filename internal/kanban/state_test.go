package kanban

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/madhatter5501/agentkanbd/internal/db"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	d, err := db.Open(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { d.Close() })
	return New(d)
}

func TestA1TicketAlwaysHasValidStatus(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	board := &Board{Name: "board"}
	require.NoError(t, s.CreateBoard(ctx, board))

	ticket := &Ticket{BoardID: board.ID, Title: "do the thing"}
	require.NoError(t, s.CreateTicket(ctx, ticket))

	got, err := s.GetTicket(ctx, ticket.ID)
	require.NoError(t, err)
	require.Equal(t, StatusBacklog, got.Status)
}

func TestLifecycleRejectsIllegalTransition(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	lc := NewLifecycle(s)

	board := &Board{Name: "board"}
	require.NoError(t, s.CreateBoard(ctx, board))
	ticket := &Ticket{BoardID: board.ID, Title: "skip ahead"}
	require.NoError(t, s.CreateTicket(ctx, ticket))

	err := lc.Transition(ctx, ticket.ID, StatusDone, "")
	require.Error(t, err)
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
}

func TestLifecycleReadyGateBlocksOnIncompleteDependency(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	lc := NewLifecycle(s)

	board := &Board{Name: "board"}
	require.NoError(t, s.CreateBoard(ctx, board))

	epic := &Ticket{BoardID: board.ID, Title: "epic"}
	require.NoError(t, s.CreateTicket(ctx, epic))

	dependent := &Ticket{BoardID: board.ID, Title: "depends on epic", DependsOnEpicIDs: []string{epic.ID}}
	require.NoError(t, s.CreateTicket(ctx, dependent))

	err := lc.Transition(ctx, dependent.ID, StatusReady, "")
	require.Error(t, err)
}

func TestLifecycleAllSiblingsDoneAdvancesEpicToReview(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	lc := NewLifecycle(s)

	board := &Board{Name: "board"}
	require.NoError(t, s.CreateBoard(ctx, board))

	epic := &Ticket{BoardID: board.ID, Title: "epic"}
	require.NoError(t, s.CreateTicket(ctx, epic))
	require.NoError(t, s.SetTicketStatus(ctx, epic.ID, StatusInProgress, ""))

	child := &Ticket{BoardID: board.ID, Title: "only child", ParentEpicID: epic.ID}
	require.NoError(t, s.CreateTicket(ctx, child))
	require.NoError(t, s.SetTicketStatus(ctx, child.ID, StatusReady, ""))
	require.NoError(t, s.SetTicketStatus(ctx, child.ID, StatusInProgress, ""))
	require.NoError(t, s.SetTicketStatus(ctx, child.ID, StatusReview, ""))

	require.NoError(t, lc.Transition(ctx, child.ID, StatusDone, ""))

	got, err := s.GetTicket(ctx, epic.ID)
	require.NoError(t, err)
	require.Equal(t, StatusReview, got.Status)
}
