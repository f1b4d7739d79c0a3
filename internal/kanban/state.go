package kanban

import (
	"context"
	"fmt"
)

// allowedTransitions encodes the fixed column state machine. A move not
// listed here is rejected with a ValidationError.
var allowedTransitions = map[Status][]Status{
	StatusBacklog:    {StatusReady},
	StatusReady:      {StatusInProgress, StatusBlocked},
	StatusInProgress: {StatusReview, StatusBlocked},
	StatusBlocked:    {StatusReady, StatusInProgress},
	StatusReview:     {StatusDone, StatusInProgress},
	StatusDone:       {},
}

func canTransition(from, to Status) bool {
	for _, s := range allowedTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Lifecycle owns the column state machine and epic-advancement cascade
// (C6). It holds no state of its own beyond the Store it drives.
type Lifecycle struct {
	store *Store
}

func NewLifecycle(s *Store) *Lifecycle {
	return &Lifecycle{store: s}
}

// Transition moves a ticket to a new column, enforcing the allowed-move
// table and triggering epic advancement when a child reaches Done.
func (l *Lifecycle) Transition(ctx context.Context, ticketID string, to Status, blockedReason string) error {
	t, err := l.store.GetTicket(ctx, ticketID)
	if err != nil {
		return err
	}
	if !canTransition(t.Status, to) {
		return &ValidationError{Field: "status", Reason: fmt.Sprintf("cannot move from %s to %s", t.Status, to)}
	}
	if to == StatusReady {
		if ok, reason, err := l.readyGate(ctx, t); err != nil {
			return err
		} else if !ok {
			return &ValidationError{Field: "status", Reason: reason}
		}
	}
	if err := l.store.SetTicketStatus(ctx, ticketID, to, blockedReason); err != nil {
		return err
	}
	if to == StatusDone {
		return l.onChildDone(ctx, t)
	}
	if to == StatusBlocked {
		return l.propagateBlocked(ctx, t, blockedReason)
	}
	return nil
}

// readyGate enforces that a ticket depending on an epic cannot become
// Ready until that epic is Done. It does not check that the ticket's
// project, or its board's default project, resolves to an existing
// repository path.
func (l *Lifecycle) readyGate(ctx context.Context, t *Ticket) (bool, string, error) {
	depID := t.DependsOnEpicID()
	if depID == "" {
		return true, "", nil
	}
	dep, err := l.store.GetTicket(ctx, depID)
	if err != nil {
		if _, ok := err.(*NotFoundError); ok {
			return false, fmt.Sprintf("dependency epic %s not found", depID), nil
		}
		return false, "", err
	}
	if dep.Status != StatusDone {
		return false, fmt.Sprintf("blocked on epic %s (%s)", depID, dep.Status), nil
	}
	return true, "", nil
}

// onChildDone advances the parent epic: if every sibling sharing the same
// parent_epic_id is now Done, the parent epic itself moves to Review when
// it is In Progress or Ready (a human or the PM checkin surface decides
// Done for the epic itself,
// mirroring original_source's epic.rs which never auto-closes the parent).
// It also promotes the next sibling in order_in_epic to Ready if it was
// sitting in Backlog, matching the "first-child-to-Ready" rule.
func (l *Lifecycle) onChildDone(ctx context.Context, child *Ticket) error {
	if child.ParentEpicID == "" {
		return nil
	}
	siblings, err := l.store.ListChildTickets(ctx, child.ParentEpicID)
	if err != nil {
		return err
	}
	allDone := true
	var nextBacklog *Ticket
	for _, sib := range siblings {
		if sib.ID == child.ID {
			continue
		}
		if sib.Status != StatusDone {
			allDone = false
		}
		if sib.Status == StatusBacklog && (nextBacklog == nil || sib.OrderInEpic < nextBacklog.OrderInEpic) {
			nextBacklog = sib
		}
	}
	if nextBacklog != nil {
		if err := l.store.SetTicketStatus(ctx, nextBacklog.ID, StatusReady, ""); err != nil {
			return err
		}
		if err := l.store.AddComment(ctx, &Comment{
			TicketID: nextBacklog.ID,
			Author:   "system",
			Body:     fmt.Sprintf("promoted to Ready: previous sibling %s completed", child.ID),
		}); err != nil {
			return err
		}
	}
	if allDone {
		epic, err := l.store.GetTicket(ctx, child.ParentEpicID)
		if err != nil {
			return err
		}
		if epic.Status == StatusInProgress || epic.Status == StatusReady {
			if err := l.store.SetTicketStatus(ctx, epic.ID, StatusReview, ""); err != nil {
				return err
			}
			if err := l.store.AddComment(ctx, &Comment{
				TicketID: epic.ID,
				Author:   "system",
				Body:     "all child tickets done; epic moved to Review",
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

// propagateBlocked cascades a Blocked move from a parent epic down to any
// child tickets still in Ready/Backlog, recording the reason.
func (l *Lifecycle) propagateBlocked(ctx context.Context, t *Ticket, reason string) error {
	children, err := l.store.ListChildTickets(ctx, t.ID)
	if err != nil {
		return err
	}
	for _, c := range children {
		if c.Status == StatusReady || c.Status == StatusBacklog {
			if err := l.store.SetTicketStatus(ctx, c.ID, StatusBlocked, fmt.Sprintf("parent epic %s blocked: %s", t.ID, reason)); err != nil {
				return err
			}
		}
	}
	return nil
}
