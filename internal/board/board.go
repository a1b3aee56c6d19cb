// Package board owns the in-memory ticket list and meeting-window
// metadata for one dashboard session. It is the Ticket Collection
// Manager: reads go through Refresh, and every mutation reconciles by
// re-fetching server truth rather than patching the local list.
package board

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/oaps-analytics/deskops/internal/gateway"
	"github.com/oaps-analytics/deskops/internal/helpdesk"
)

// Phase is the session state machine: Idle → Loading → {Ready, Failed},
// re-entering Loading on every refresh or mutation.
type Phase string

const (
	PhaseIdle    Phase = "idle"
	PhaseLoading Phase = "loading"
	PhaseReady   Phase = "ready"
	PhaseFailed  Phase = "failed"
)

// ValidationError is a local precondition failure. It never reaches the
// network.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string { return e.Msg }

// RefreshFunc observes completed refresh attempts. Used by the CLI to
// record refresh history; nil hooks are ignored. ticketCount is the size
// of the fetched list, 0 for a failed attempt (the stale list kept on
// display is not what the attempt produced).
type RefreshFunc func(ticketCount int, took time.Duration, err error)

// Board holds one session's tickets. All methods are safe for concurrent
// use; the CLI, REST and MCP surfaces may share a single Board.
type Board struct {
	client *helpdesk.Client

	mu         sync.Mutex
	phase      Phase
	tickets    []helpdesk.Ticket
	window     helpdesk.MeetingWindow
	filter     helpdesk.Filter
	hasFilter  bool
	refreshErr string // session-level channel
	actionErr  string // per-mutation channel, kept separate so a failed
	// note-add does not blank out a successful prior refresh
	onRefresh RefreshFunc
}

// New creates an idle Board over the given client.
func New(client *helpdesk.Client) *Board {
	return &Board{client: client, phase: PhaseIdle}
}

// SetRefreshHook installs an observer for refresh attempts.
func (b *Board) SetRefreshHook(fn RefreshFunc) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onRefresh = fn
}

// Refresh fetches the meeting window and the filtered ticket list
// concurrently. Both must land before the board leaves Loading; if either
// fails the whole refresh fails and the prior list stays in place,
// stale but valid.
func (b *Board) Refresh(ctx context.Context, filter helpdesk.Filter) error {
	b.mu.Lock()
	b.phase = PhaseLoading
	hook := b.onRefresh
	b.mu.Unlock()

	start := time.Now()

	var (
		wg      sync.WaitGroup
		tickets []helpdesk.Ticket
		window  helpdesk.MeetingWindow
		tErr    error
		wErr    error
	)
	wg.Add(2)
	go func() {
		defer wg.Done()
		tickets, tErr = b.client.Tickets(ctx, filter)
	}()
	go func() {
		defer wg.Done()
		window, wErr = b.client.MeetingWindow(ctx)
	}()
	wg.Wait()

	err := errors.Join(tErr, wErr)

	b.mu.Lock()
	if err != nil {
		b.phase = PhaseFailed
		b.refreshErr = Humanize(err)
	} else {
		b.phase = PhaseReady
		b.tickets = tickets
		b.window = window
		b.filter = filter
		b.hasFilter = true
		b.refreshErr = ""
	}
	b.mu.Unlock()

	if hook != nil {
		n := 0
		if err == nil {
			n = len(tickets)
		}
		hook(n, time.Since(start), err)
	}
	if err != nil {
		return fmt.Errorf("refresh: %w", err)
	}
	return nil
}

// UpdateStatus writes a single-field status change, then reconciles with
// a full refresh using the last-used filter. A refresh failure after a
// successful write is reported on the refresh channel, not returned: the
// mutation itself landed.
func (b *Board) UpdateStatus(ctx context.Context, ticketID int64, status helpdesk.Status) error {
	if !helpdesk.ValidStatus(status) {
		return b.failAction(&ValidationError{Msg: fmt.Sprintf("invalid status %q", status)})
	}
	s := status
	return b.mutate(ctx, ticketID, helpdesk.TicketPatch{Status: &s})
}

// ReassignRequest is the combined field set for a reassignment write. The
// caller derives GroupID from the assignee; this layer does not validate
// the pairing, it only transmits and reconciles.
type ReassignRequest struct {
	AssigneeID int64
	GroupID    string
}

// Reassign writes the combined assignee/group update, then reconciles.
func (b *Board) Reassign(ctx context.Context, ticketID int64, req ReassignRequest) error {
	patch := helpdesk.TicketPatch{AssigneeID: &req.AssigneeID}
	if req.GroupID != "" {
		g := req.GroupID
		patch.GroupID = &g
	}
	return b.mutate(ctx, ticketID, patch)
}

// AddNote posts a comment on a ticket, then reconciles. A body that trims
// to empty fails fast locally and never issues a network call.
func (b *Board) AddNote(ctx context.Context, ticketID int64, body string, public bool) error {
	if strings.TrimSpace(body) == "" {
		return b.failAction(&ValidationError{Msg: "note body is empty"})
	}
	if err := b.client.AddComment(ctx, ticketID, body, public); err != nil {
		return b.failAction(fmt.Errorf("add note to ticket %d: %w", ticketID, err))
	}
	b.clearAction()
	b.refreshAfterWrite(ctx)
	return nil
}

func (b *Board) mutate(ctx context.Context, ticketID int64, patch helpdesk.TicketPatch) error {
	if err := b.client.UpdateTicket(ctx, ticketID, patch); err != nil {
		return b.failAction(fmt.Errorf("update ticket %d: %w", ticketID, err))
	}
	b.clearAction()
	b.refreshAfterWrite(ctx)
	return nil
}

// Reconcile re-fetches with the last-used filter so the view matches
// server truth. Before the first refresh there is no filter to reuse, so
// it falls back to the bucketed default.
func (b *Board) Reconcile(ctx context.Context) error {
	b.mu.Lock()
	filter := b.filter
	if !b.hasFilter {
		filter = helpdesk.Filter{Bucketed: true}
	}
	b.mu.Unlock()
	return b.Refresh(ctx, filter)
}

func (b *Board) refreshAfterWrite(ctx context.Context) {
	_ = b.Reconcile(ctx)
}

func (b *Board) failAction(err error) error {
	b.mu.Lock()
	b.actionErr = Humanize(err)
	b.mu.Unlock()
	return err
}

func (b *Board) clearAction() {
	b.mu.Lock()
	b.actionErr = ""
	b.mu.Unlock()
}

// Tickets returns a copy of the current ticket list.
func (b *Board) Tickets() []helpdesk.Ticket {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]helpdesk.Ticket, len(b.tickets))
	copy(out, b.tickets)
	return out
}

// Ticket returns the current view of one ticket by ID.
func (b *Board) Ticket(id int64) (helpdesk.Ticket, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range b.tickets {
		if t.ID == id {
			return t, true
		}
	}
	return helpdesk.Ticket{}, false
}

// Window returns the meeting window from the last successful refresh.
func (b *Board) Window() helpdesk.MeetingWindow {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.window
}

// Phase returns the current session phase.
func (b *Board) Phase() Phase {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.phase
}

// LastFilter returns the filter from the last successful refresh.
func (b *Board) LastFilter() helpdesk.Filter {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.filter
}

// RefreshErr returns the session-level error message, empty when the last
// refresh succeeded.
func (b *Board) RefreshErr() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.refreshErr
}

// ActionErr returns the most recent mutation error message, empty when
// the last mutation succeeded.
func (b *Board) ActionErr() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.actionErr
}

// Humanize renders an error for display, prefixing the upstream status
// code when one is present.
func Humanize(err error) string {
	if err == nil {
		return ""
	}
	var reqErr *gateway.RequestError
	if errors.As(err, &reqErr) {
		return fmt.Sprintf("%d: %s", reqErr.Status, reqErr.Detail)
	}
	if errors.Is(err, gateway.ErrTimeout) {
		return "request timed out"
	}
	return err.Error()
}
