package helpdesk

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/oaps-analytics/deskops/internal/gateway"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewClient(gateway.New(gateway.Config{BaseURL: srv.URL}))
}

func TestTickets_QueryShape(t *testing.T) {
	var gotPath, gotQuery string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`{"rows":[{"id":77,"subject":"printer on fire","group":"AIMS","status":"open","assignee_id":1,"ageDays":12,"ageBucket":"Over 10 Days"}]}`))
	})

	rows, err := c.Tickets(context.Background(), Filter{
		GroupIDs: []string{"101", "102"},
		Statuses: []string{"open", "pending"},
		Bucketed: true,
	})
	require.NoError(t, err)

	assert.Equal(t, "/tickets", gotPath)
	assert.Contains(t, gotQuery, "bucketed=true")
	assert.Contains(t, gotQuery, "group_ids=101%2C102")
	assert.Contains(t, gotQuery, "statuses=open%2Cpending")

	require.Len(t, rows, 1)
	assert.Equal(t, int64(77), rows[0].ID)
	assert.Equal(t, StatusOpen, rows[0].Status)
	assert.Equal(t, BucketOver10, rows[0].AgeBucket)
	require.NotNil(t, rows[0].AssigneeID)
	assert.Equal(t, int64(1), *rows[0].AssigneeID)
}

func TestTickets_ExactAgePassthrough(t *testing.T) {
	var gotQuery string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`{"rows":[]}`))
	})

	_, err := c.Tickets(context.Background(), Filter{Bucketed: false})
	require.NoError(t, err)
	assert.Contains(t, gotQuery, "bucketed=false", "the bucketed toggle is forwarded, never interpreted locally")
}

func TestUpdateTicket_BodyContainsOnlySetFields(t *testing.T) {
	var gotBody map[string]any
	var gotMethod, gotPath string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotPath = r.URL.Path
		data, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(data, &gotBody))
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	status := StatusSolved
	err := c.UpdateTicket(context.Background(), 77, TicketPatch{Status: &status})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPatch, gotMethod)
	assert.Equal(t, "/tickets/77", gotPath)
	assert.Equal(t, map[string]any{"status": "solved"}, gotBody, "unset fields must be omitted")
}

func TestUpdateTicket_ReassignmentCarriesBothFields(t *testing.T) {
	var gotBody map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(data, &gotBody))
		_, _ = w.Write([]byte(`{"ok":true}`))
	})

	assignee := int64(2)
	group := "Policy"
	err := c.UpdateTicket(context.Background(), 77, TicketPatch{AssigneeID: &assignee, GroupID: &group})
	require.NoError(t, err)

	assert.Equal(t, float64(2), gotBody["assignee_id"])
	assert.Equal(t, "Policy", gotBody["group_id"])
	_, hasStatus := gotBody["status"]
	assert.False(t, hasStatus)
}

func TestUpdateTicket_EmptyPatchRefusedLocally(t *testing.T) {
	called := false
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		called = true
	})

	err := c.UpdateTicket(context.Background(), 77, TicketPatch{})
	assert.ErrorIs(t, err, ErrEmptyPatch)
	assert.False(t, called, "an empty patch must never reach the network")
}

func TestAddComment(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		data, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(data, &gotBody))
		w.WriteHeader(http.StatusCreated)
	})

	err := c.AddComment(context.Background(), 42, "escalating to facilities", false)
	require.NoError(t, err)

	assert.Equal(t, "/tickets/42/comments", gotPath)
	assert.Equal(t, "escalating to facilities", gotBody["body"])
	assert.Equal(t, false, gotBody["public"])
}

func TestAgents(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/users", r.URL.Path)
		_, _ = w.Write([]byte(`{"users":[{"id":1,"name":"Ann","group_id":"AIMS"},{"id":2,"name":"Bo","group_id":"Policy"}]}`))
	})

	agents, err := c.Agents(context.Background())
	require.NoError(t, err)
	require.Len(t, agents, 2)
	assert.Equal(t, "Ann", agents[0].Name)
	assert.Equal(t, "Policy", agents[1].GroupID)
}

func TestMeetingWindow(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/meeting-window", r.URL.Path)
		_, _ = w.Write([]byte(`{"start":"2026-08-26T00:00:00-04:00","end":"2026-08-31T12:00:00-04:00"}`))
	})

	win, err := c.MeetingWindow(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2026, win.Start.Year())
	assert.True(t, win.End.After(win.Start))
}

func TestTriggerExport(t *testing.T) {
	var gotMethod, gotQuery string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`{"url":"https://docs.example.org/x.xlsx","filename":"Ticket Breakdown 8.31.2026.xlsx","rows":40}`))
	})

	receipt, err := c.TriggerExport(context.Background(), Filter{GroupIDs: []string{"101"}})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Contains(t, gotQuery, "group_ids=101")
	assert.Equal(t, "Ticket Breakdown 8.31.2026.xlsx", receipt.Filename)
	assert.Equal(t, 40, receipt.RowCount)
}

func TestLastComments_Limit(t *testing.T) {
	var gotQuery string
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		_, _ = w.Write([]byte(`{"comments":[{"body":"checked the cable","public":false,"created_at":"2026-08-30T10:00:00Z"}]}`))
	})

	comments, err := c.LastComments(context.Background(), 42, 3)
	require.NoError(t, err)
	assert.Contains(t, gotQuery, "limit=3")
	require.Len(t, comments, 1)
	assert.Equal(t, "checked the cable", comments[0].Body)
}
