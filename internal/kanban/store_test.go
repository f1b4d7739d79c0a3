package kanban

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestA2ConcurrentReservationNeverDoubleAssigns(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	board := &Board{Name: "board"}
	require.NoError(t, s.CreateBoard(ctx, board))
	ticket := &Ticket{BoardID: board.ID, Title: "only one winner", Status: StatusReady}
	require.NoError(t, s.CreateTicket(ctx, ticket))

	const workers = 8
	var wg sync.WaitGroup
	wins := make(chan string, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			owner := uuid.NewString()
			got, err := s.ReserveNextTicket(ctx, board.ID, "", owner, time.Minute)
			require.NoError(t, err)
			if got != nil {
				wins <- owner
			}
		}()
	}
	wg.Wait()
	close(wins)

	count := 0
	for range wins {
		count++
	}
	require.Equal(t, 1, count, "exactly one worker should have reserved the ticket")
}

func TestReserveNextTicketReturnsNilWhenNothingReady(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	board := &Board{Name: "board"}
	require.NoError(t, s.CreateBoard(ctx, board))

	got, err := s.ReserveNextTicket(ctx, board.ID, "", "owner-1", time.Minute)
	require.NoError(t, err)
	require.Nil(t, got)
}

func TestStartTaskFailsIfAlreadyStarted(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	board := &Board{Name: "board"}
	require.NoError(t, s.CreateBoard(ctx, board))
	ticket := &Ticket{BoardID: board.ID, Title: "t"}
	require.NoError(t, s.CreateTicket(ctx, ticket))
	task := &Task{TicketID: ticket.ID}
	require.NoError(t, s.CreateTask(ctx, task))

	require.NoError(t, s.StartTask(ctx, task.ID, "run-1"))
	err := s.StartTask(ctx, task.ID, "run-2")
	require.Error(t, err)
}

func TestRepoLockConflict(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.AcquireRepoLock(ctx, "/repo", "run-1", time.Minute))
	err := s.AcquireRepoLock(ctx, "/repo", "run-2", time.Minute)
	require.Error(t, err)
	var lockErr *LockConflictError
	require.ErrorAs(t, err, &lockErr)

	require.NoError(t, s.ReleaseRepoLock(ctx, "/repo", "run-1"))
	require.NoError(t, s.AcquireRepoLock(ctx, "/repo", "run-2", time.Minute))
}
