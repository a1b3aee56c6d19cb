// Package reassign implements the per-ticket reassignment workflow. It is
// the one place where the derived-field invariant is enforced at mutation
// time: a ticket's group is always copied from the chosen candidate's own
// roster record, never chosen independently, so the optimistic display
// can never show an assignee/group pair that the roster itself does not
// contain.
package reassign

import (
	"context"
	"fmt"
	"sync"

	"github.com/oaps-analytics/deskops/internal/board"
	"github.com/oaps-analytics/deskops/internal/helpdesk"
)

// UnknownAgentError reports a reassignment target that is not in the
// loaded candidate roster (a stale roster vs. a server-side ID). The
// write is refused outright: a partial assignee-only update could leave
// the group/assignee invariant violated with no path to automatic repair.
type UnknownAgentError struct {
	AgentID int64
}

func (e *UnknownAgentError) Error() string {
	return fmt.Sprintf("agent %d is not in the loaded candidate list; refresh agents and retry", e.AgentID)
}

// RowPhase tracks one ticket's editable fields through a mutation.
type RowPhase string

const (
	RowConfirmed RowPhase = "confirmed" // display matches last server truth
	RowPending   RowPhase = "pending"   // optimistic value shown, write in flight
	RowFailed    RowPhase = "failed"    // write rejected, display rolled back
)

// RowView is the display echo of one ticket's editable fields.
type RowView struct {
	TicketID     int64
	Phase        RowPhase
	Status       helpdesk.Status
	AssigneeID   *int64
	AssigneeName string
	Group        string
	Err          string // set when Phase is RowFailed
}

type rowFields struct {
	status       helpdesk.Status
	assigneeID   *int64
	assigneeName string
	group        string
}

type rowState struct {
	phase    RowPhase
	display  rowFields
	original rowFields // last server-confirmed values, for rollback
	errMsg   string
}

// Workflow drives optimistic per-row mutations against the board. Rows
// hold only an ephemeral echo of editable fields; every board refresh is
// the authority they reconcile against.
type Workflow struct {
	board  *board.Board
	roster *Roster

	mu   sync.Mutex
	rows map[int64]*rowState
}

// NewWorkflow creates a workflow over the board and a fixed roster.
func NewWorkflow(b *board.Board, roster *Roster) *Workflow {
	return &Workflow{board: b, roster: roster, rows: make(map[int64]*rowState)}
}

// Roster returns the candidate universe this workflow assigns from.
func (w *Workflow) Roster() *Roster { return w.roster }

// Reassign moves a ticket to the given candidate. The candidate's group
// is looked up from the roster and written together with the assignee in
// one combined patch. The display is updated optimistically; on failure
// it rolls back to the last confirmed values and a reconciling refresh is
// issued anyway, so the view converges on server truth within one round
// trip whatever the outcome.
func (w *Workflow) Reassign(ctx context.Context, ticketID, agentID int64) error {
	agent, ok := w.roster.Lookup(agentID)
	if !ok {
		return &UnknownAgentError{AgentID: agentID}
	}

	original := w.confirmedFields(ticketID)
	id := agent.ID
	w.setPending(ticketID, original, rowFields{
		status:       original.status,
		assigneeID:   &id,
		assigneeName: agent.Name,
		// Copied from the candidate's own record, so the optimistic pair
		// satisfies the group-matches-assignee invariant by construction.
		group: agent.GroupID,
	})

	err := w.board.Reassign(ctx, ticketID, board.ReassignRequest{
		AssigneeID: agent.ID,
		GroupID:    agent.GroupID,
	})
	if err != nil {
		w.fail(ticketID, err)
		_ = w.board.Reconcile(ctx)
		return err
	}
	w.confirm(ticketID)
	return nil
}

// SetStatus applies the simpler single-field optimistic pattern: show the
// new status immediately, write it, and let the refresh confirm or the
// rollback correct it.
func (w *Workflow) SetStatus(ctx context.Context, ticketID int64, status helpdesk.Status) error {
	original := w.confirmedFields(ticketID)
	optimistic := original
	optimistic.status = status
	w.setPending(ticketID, original, optimistic)

	if err := w.board.UpdateStatus(ctx, ticketID, status); err != nil {
		w.fail(ticketID, err)
		_ = w.board.Reconcile(ctx)
		return err
	}
	w.confirm(ticketID)
	return nil
}

// AddNote delegates to the board; notes do not change row display fields.
func (w *Workflow) AddNote(ctx context.Context, ticketID int64, body string, public bool) error {
	return w.board.AddNote(ctx, ticketID, body, public)
}

// Row returns the current display state for a ticket. While a write is
// pending or failed the stored echo wins; otherwise the board's copy is
// mirrored at read time.
func (w *Workflow) Row(ticketID int64) RowView {
	w.mu.Lock()
	row, ok := w.rows[ticketID]
	if ok && row.phase != RowConfirmed {
		view := RowView{
			TicketID:     ticketID,
			Phase:        row.phase,
			Status:       row.display.status,
			AssigneeID:   row.display.assigneeID,
			AssigneeName: row.display.assigneeName,
			Group:        row.display.group,
			Err:          row.errMsg,
		}
		w.mu.Unlock()
		return view
	}
	w.mu.Unlock()

	f := w.confirmedFields(ticketID)
	return RowView{
		TicketID:     ticketID,
		Phase:        RowConfirmed,
		Status:       f.status,
		AssigneeID:   f.assigneeID,
		AssigneeName: f.assigneeName,
		Group:        f.group,
	}
}

// confirmedFields snapshots the board's current copy of a ticket.
func (w *Workflow) confirmedFields(ticketID int64) rowFields {
	t, ok := w.board.Ticket(ticketID)
	if !ok {
		return rowFields{}
	}
	return rowFields{
		status:       t.Status,
		assigneeID:   t.AssigneeID,
		assigneeName: t.AssigneeName,
		group:        t.Group,
	}
}

func (w *Workflow) setPending(ticketID int64, original, optimistic rowFields) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.rows[ticketID] = &rowState{phase: RowPending, display: optimistic, original: original}
}

// fail rolls the display back to the last confirmed values.
func (w *Workflow) fail(ticketID int64, err error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	row, ok := w.rows[ticketID]
	if !ok {
		return
	}
	row.phase = RowFailed
	row.display = row.original
	row.errMsg = board.Humanize(err)
}

func (w *Workflow) confirm(ticketID int64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.rows, ticketID)
}
