package board

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oaps-analytics/deskops/internal/gateway"
	"github.com/oaps-analytics/deskops/internal/helpdesk"
)

// fakeDesk is a scriptable upstream helpdesk server.
type fakeDesk struct {
	mu         sync.Mutex
	tickets    []helpdesk.Ticket
	failList   int // non-zero: status code for GET /tickets
	failWindow int // non-zero: status code for GET /meeting-window
	failPatch  int // non-zero: status code for PATCH /tickets/{id}

	listCalls   int
	lastListRaw string
	patches     []map[string]any
	comments    []map[string]any
}

func (f *fakeDesk) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /tickets", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.listCalls++
		f.lastListRaw = r.URL.RawQuery
		if f.failList != 0 {
			http.Error(w, "list blew up", f.failList)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"rows": f.tickets})
	})
	mux.HandleFunc("GET /meeting-window", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		if f.failWindow != 0 {
			http.Error(w, "window blew up", f.failWindow)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{
			"start": "2026-08-26T00:00:00Z",
			"end":   "2026-08-31T12:00:00Z",
		})
	})
	mux.HandleFunc("PATCH /tickets/{id}", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.patches = append(f.patches, body)
		if f.failPatch != 0 {
			http.Error(w, "patch rejected", f.failPatch)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"ok": true})
	})
	mux.HandleFunc("POST /tickets/{id}/comments", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		var body map[string]any
		_ = json.NewDecoder(r.Body).Decode(&body)
		f.comments = append(f.comments, body)
		w.WriteHeader(http.StatusCreated)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func (f *fakeDesk) listCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.listCalls
}

func ticketFixture() []helpdesk.Ticket {
	ann := int64(1)
	return []helpdesk.Ticket{
		{ID: 77, Subject: "printer on fire", Group: "AIMS", Status: helpdesk.StatusOpen, AssigneeID: &ann, AgeDays: 12, AgeBucket: helpdesk.BucketOver10},
		{ID: 78, Subject: "vpn flaky", Group: "Policy", Status: helpdesk.StatusPending, AgeDays: 3, AgeBucket: helpdesk.BucketUnder10},
	}
}

func newTestBoard(t *testing.T, desk *fakeDesk) *Board {
	t.Helper()
	srv := desk.server(t)
	client := helpdesk.NewClient(gateway.New(gateway.Config{BaseURL: srv.URL}))
	return New(client)
}

func TestRefresh_PopulatesTicketsAndWindow(t *testing.T) {
	desk := &fakeDesk{tickets: ticketFixture()}
	b := newTestBoard(t, desk)
	assert.Equal(t, PhaseIdle, b.Phase())

	err := b.Refresh(context.Background(), helpdesk.Filter{Bucketed: true})
	require.NoError(t, err)

	assert.Equal(t, PhaseReady, b.Phase())
	assert.Len(t, b.Tickets(), 2)
	assert.Empty(t, b.RefreshErr())
	assert.Equal(t, 2026, b.Window().Start.Year())
}

func TestRefresh_Idempotent(t *testing.T) {
	desk := &fakeDesk{tickets: ticketFixture()}
	b := newTestBoard(t, desk)
	filter := helpdesk.Filter{Bucketed: true, GroupIDs: []string{"101"}}

	require.NoError(t, b.Refresh(context.Background(), filter))
	first := b.Tickets()
	require.NoError(t, b.Refresh(context.Background(), filter))

	assert.Equal(t, first, b.Tickets())
}

func TestRefresh_FailureKeepsStaleList(t *testing.T) {
	desk := &fakeDesk{tickets: ticketFixture()}
	b := newTestBoard(t, desk)
	require.NoError(t, b.Refresh(context.Background(), helpdesk.Filter{Bucketed: true}))

	desk.mu.Lock()
	desk.failList = http.StatusInternalServerError
	desk.mu.Unlock()

	err := b.Refresh(context.Background(), helpdesk.Filter{Bucketed: true})
	require.Error(t, err)

	assert.Equal(t, PhaseFailed, b.Phase())
	assert.Len(t, b.Tickets(), 2, "prior list must survive a failed refresh")
	assert.Contains(t, b.RefreshErr(), "500")
}

func TestRefresh_WindowFailureFailsWholeRefresh(t *testing.T) {
	desk := &fakeDesk{tickets: ticketFixture(), failWindow: http.StatusBadGateway}
	b := newTestBoard(t, desk)

	// 502 is transient so the gateway retries it once; keep it failing.
	err := b.Refresh(context.Background(), helpdesk.Filter{Bucketed: true})
	require.Error(t, err)
	assert.Equal(t, PhaseFailed, b.Phase())
	assert.Empty(t, b.Tickets())
}

func TestUpdateStatus_WritesThenRefreshesWithLastFilter(t *testing.T) {
	desk := &fakeDesk{tickets: ticketFixture()}
	b := newTestBoard(t, desk)
	filter := helpdesk.Filter{Bucketed: false, Statuses: []string{"open"}}
	require.NoError(t, b.Refresh(context.Background(), filter))
	before := desk.listCount()

	require.NoError(t, b.UpdateStatus(context.Background(), 77, helpdesk.StatusSolved))

	desk.mu.Lock()
	defer desk.mu.Unlock()
	require.Len(t, desk.patches, 1)
	assert.Equal(t, map[string]any{"status": "solved"}, desk.patches[0])
	assert.Equal(t, before+1, desk.listCalls, "mutation must reconcile via re-fetch")
	assert.Contains(t, desk.lastListRaw, "bucketed=false", "reconciliation reuses the last filter")
	assert.Contains(t, desk.lastListRaw, "statuses=open")
}

func TestUpdateStatus_InvalidStatusNeverTouchesNetwork(t *testing.T) {
	desk := &fakeDesk{tickets: ticketFixture()}
	b := newTestBoard(t, desk)

	err := b.UpdateStatus(context.Background(), 77, helpdesk.Status("bogus"))
	require.Error(t, err)

	var verr *ValidationError
	assert.ErrorAs(t, err, &verr)
	assert.Empty(t, desk.patches)
	assert.Equal(t, 0, desk.listCount())
}

func TestUpdateStatus_FailureLeavesListAndSetsActionErr(t *testing.T) {
	desk := &fakeDesk{tickets: ticketFixture(), failPatch: http.StatusBadRequest}
	b := newTestBoard(t, desk)
	require.NoError(t, b.Refresh(context.Background(), helpdesk.Filter{Bucketed: true}))
	before := desk.listCount()

	err := b.UpdateStatus(context.Background(), 77, helpdesk.StatusSolved)
	require.Error(t, err)

	desk.mu.Lock()
	patchAttempts := len(desk.patches)
	desk.mu.Unlock()

	assert.Equal(t, 1, patchAttempts, "400 must not be retried")
	assert.Equal(t, before, desk.listCount(), "no reconciliation after a failed write")
	assert.Len(t, b.Tickets(), 2)
	assert.Contains(t, b.ActionErr(), "400")
	assert.Empty(t, b.RefreshErr(), "mutation failures stay off the refresh channel")
}

func TestReassign_TransmitsCombinedFields(t *testing.T) {
	desk := &fakeDesk{tickets: ticketFixture()}
	b := newTestBoard(t, desk)
	require.NoError(t, b.Refresh(context.Background(), helpdesk.Filter{Bucketed: true}))

	require.NoError(t, b.Reassign(context.Background(), 77, ReassignRequest{AssigneeID: 2, GroupID: "Policy"}))

	desk.mu.Lock()
	defer desk.mu.Unlock()
	require.Len(t, desk.patches, 1)
	assert.Equal(t, float64(2), desk.patches[0]["assignee_id"])
	assert.Equal(t, "Policy", desk.patches[0]["group_id"])
}

func TestAddNote_EmptyBodyFailsFast(t *testing.T) {
	desk := &fakeDesk{tickets: ticketFixture()}
	b := newTestBoard(t, desk)

	for _, body := range []string{"", "   ", "\n\t"} {
		err := b.AddNote(context.Background(), 77, body, false)
		require.Error(t, err)
		var verr *ValidationError
		assert.ErrorAs(t, err, &verr)
	}

	desk.mu.Lock()
	defer desk.mu.Unlock()
	assert.Empty(t, desk.comments, "empty notes must never issue a network call")
	assert.Equal(t, 0, desk.listCalls)
}

func TestAddNote_PostsThenRefreshes(t *testing.T) {
	desk := &fakeDesk{tickets: ticketFixture()}
	b := newTestBoard(t, desk)
	require.NoError(t, b.Refresh(context.Background(), helpdesk.Filter{Bucketed: true}))
	before := desk.listCount()

	require.NoError(t, b.AddNote(context.Background(), 77, "called the vendor", false))

	desk.mu.Lock()
	defer desk.mu.Unlock()
	require.Len(t, desk.comments, 1)
	assert.Equal(t, "called the vendor", desk.comments[0]["body"])
	assert.Equal(t, before+1, desk.listCalls)
}

func TestRefreshHook_ObservesAttempts(t *testing.T) {
	desk := &fakeDesk{tickets: ticketFixture()}
	b := newTestBoard(t, desk)

	var calls int
	var lastCount int
	var lastErr error
	b.SetRefreshHook(func(count int, took time.Duration, err error) {
		calls++
		lastCount = count
		lastErr = err
	})

	require.NoError(t, b.Refresh(context.Background(), helpdesk.Filter{Bucketed: true}))
	assert.Equal(t, 1, calls)
	assert.Equal(t, 2, lastCount)
	assert.NoError(t, lastErr)

	desk.mu.Lock()
	desk.failList = http.StatusServiceUnavailable
	desk.mu.Unlock()
	_ = b.Refresh(context.Background(), helpdesk.Filter{Bucketed: true})
	assert.Equal(t, 2, calls)
	assert.Equal(t, 0, lastCount, "a failed attempt fetched nothing, whatever is still on display")
	assert.Error(t, lastErr)
	assert.Len(t, b.Tickets(), 2, "stale list stays on display regardless")
}

func TestHumanize(t *testing.T) {
	assert.Equal(t, "", Humanize(nil))
	assert.Equal(t, "503: busy", Humanize(&gateway.RequestError{Status: 503, Detail: "busy"}))
	assert.Equal(t, "request timed out", Humanize(gateway.ErrTimeout))
}
