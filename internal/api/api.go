// Package api exposes the dashboard over REST for the web frontend. All
// ticket reads and writes go through the shared board so the REST surface
// observes the same refresh-after-write reconciliation as the CLI.
package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/oaps-analytics/deskops/internal/board"
	"github.com/oaps-analytics/deskops/internal/gateway"
	"github.com/oaps-analytics/deskops/internal/helpdesk"
	"github.com/oaps-analytics/deskops/internal/reassign"
	"github.com/oaps-analytics/deskops/internal/store"
)

// Server provides the REST API handlers.
type Server struct {
	board *board.Board
	flow  *reassign.Workflow
	desk  *helpdesk.Client
	store store.Store
}

// NewServer creates a new API server. The store may be nil when export
// history persistence is not configured.
func NewServer(b *board.Board, flow *reassign.Workflow, desk *helpdesk.Client, st store.Store) *Server {
	return &Server{
		board: b,
		flow:  flow,
		desk:  desk,
		store: st,
	}
}

// Router returns an http.Handler for the API routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/tickets", s.listTickets)
	mux.HandleFunc("PATCH /api/v1/tickets/{id}", s.patchTicket)
	mux.HandleFunc("GET /api/v1/tickets/{id}/comments", s.listComments)
	mux.HandleFunc("POST /api/v1/tickets/{id}/comments", s.addComment)

	mux.HandleFunc("GET /api/v1/meeting-window", s.meetingWindow)
	mux.HandleFunc("GET /api/v1/agents", s.listAgents)
	// Route kept under both names; the web frontend calls it "users".
	mux.HandleFunc("GET /api/v1/users", s.listAgents)

	mux.HandleFunc("POST /api/v1/export", s.triggerExport)
	mux.HandleFunc("GET /api/v1/export/last", s.lastExport)
	mux.HandleFunc("GET /api/v1/export/history", s.exportHistory)

	mux.HandleFunc("GET /api/v1/healthz", s.healthz)

	return corsMiddleware(mux)
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeUpstreamError maps upstream failures onto gateway-style statuses so
// the frontend can distinguish local validation from helpdesk outages.
func writeUpstreamError(w http.ResponseWriter, err error) {
	var valErr *board.ValidationError
	if errors.As(err, &valErr) {
		writeError(w, http.StatusBadRequest, valErr.Error())
		return
	}
	var unknownErr *reassign.UnknownAgentError
	if errors.As(err, &unknownErr) {
		writeError(w, http.StatusUnprocessableEntity, unknownErr.Error())
		return
	}
	if errors.Is(err, gateway.ErrTimeout) {
		writeError(w, http.StatusGatewayTimeout, board.Humanize(err))
		return
	}
	var reqErr *gateway.RequestError
	if errors.As(err, &reqErr) {
		writeError(w, http.StatusBadGateway, board.Humanize(err))
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}

func parseTicketID(r *http.Request) (int64, error) {
	return strconv.ParseInt(r.PathValue("id"), 10, 64)
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// --- Tickets ---

type ticketListResponse struct {
	Rows          []helpdesk.Ticket      `json:"rows"`
	MeetingWindow helpdesk.MeetingWindow `json:"meetingWindow"`
	Phase         board.Phase            `json:"phase"`
	RefreshError  string                 `json:"refreshError,omitempty"`
}

func (s *Server) listTickets(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := helpdesk.Filter{
		GroupIDs: splitCSV(q.Get("group_ids")),
		Statuses: splitCSV(q.Get("statuses")),
		IDs:      splitCSV(q.Get("ids")),
		Bucketed: q.Get("bucketed") != "false",
	}

	// A failed refresh still answers with the previous list. The phase and
	// refreshError fields tell the frontend the rows are stale.
	_ = s.board.Refresh(r.Context(), filter)

	writeJSON(w, http.StatusOK, ticketListResponse{
		Rows:          s.board.Tickets(),
		MeetingWindow: s.board.Window(),
		Phase:         s.board.Phase(),
		RefreshError:  s.board.RefreshErr(),
	})
}

func (s *Server) patchTicket(w http.ResponseWriter, r *http.Request) {
	id, err := parseTicketID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid ticket id")
		return
	}

	var req struct {
		Status     string `json:"status"`
		AssigneeID *int64 `json:"assignee_id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	switch {
	case req.AssigneeID != nil && req.Status != "":
		writeError(w, http.StatusBadRequest, "set either status or assignee_id, not both")
		return
	case req.AssigneeID != nil:
		err = s.flow.Reassign(r.Context(), id, *req.AssigneeID)
	case req.Status != "":
		err = s.flow.SetStatus(r.Context(), id, helpdesk.Status(req.Status))
	default:
		writeError(w, http.StatusBadRequest, "status or assignee_id is required")
		return
	}
	if err != nil {
		writeUpstreamError(w, err)
		return
	}

	ticket, ok := s.board.Ticket(id)
	if !ok {
		// Write landed but the ticket left the filtered view.
		w.WriteHeader(http.StatusNoContent)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

// --- Comments ---

func (s *Server) addComment(w http.ResponseWriter, r *http.Request) {
	id, err := parseTicketID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid ticket id")
		return
	}

	var req struct {
		Body   string `json:"body"`
		Public bool   `json:"public"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if err := s.flow.AddNote(r.Context(), id, req.Body, req.Public); err != nil {
		writeUpstreamError(w, err)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (s *Server) listComments(w http.ResponseWriter, r *http.Request) {
	id, err := parseTicketID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid ticket id")
		return
	}

	limit := 5
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	comments, err := s.desk.LastComments(r.Context(), id, limit)
	if err != nil {
		writeUpstreamError(w, err)
		return
	}
	if comments == nil {
		comments = []helpdesk.Comment{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"comments": comments})
}

// --- Meeting Window / Agents ---

func (s *Server) meetingWindow(w http.ResponseWriter, r *http.Request) {
	window, err := s.desk.MeetingWindow(r.Context())
	if err != nil {
		writeUpstreamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, window)
}

func (s *Server) listAgents(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"users": s.flow.Roster().Agents()})
}

// --- Exports ---

func (s *Server) triggerExport(w http.ResponseWriter, r *http.Request) {
	var req struct {
		GroupIDs []string `json:"group_ids"`
		Statuses []string `json:"statuses"`
	}
	if r.Body != nil && r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid JSON")
			return
		}
	}

	filter := helpdesk.Filter{GroupIDs: req.GroupIDs, Statuses: req.Statuses}
	receipt, err := s.desk.TriggerExport(r.Context(), filter)
	if err != nil {
		writeUpstreamError(w, err)
		return
	}

	if s.store != nil {
		rec := &store.ExportRecord{
			Filename: receipt.Filename,
			URL:      receipt.URL,
			RowCount: receipt.RowCount,
			GroupIDs: req.GroupIDs,
			Statuses: req.Statuses,
		}
		if err := s.store.RecordExport(r.Context(), rec); err != nil {
			slog.Warn("failed to record export receipt", "error", err)
		}
	}

	writeJSON(w, http.StatusOK, receipt)
}

func (s *Server) lastExport(w http.ResponseWriter, r *http.Request) {
	if s.store != nil {
		rec, err := s.store.LastExport(r.Context())
		if err == nil && rec != nil {
			writeJSON(w, http.StatusOK, map[string]any{"ok": true, "meta": rec})
			return
		}
	}

	// No local record yet. The helpdesk keeps its own last-export marker.
	meta, err := s.desk.LastExport(r.Context())
	if errors.Is(err, helpdesk.ErrNoExport) {
		writeJSON(w, http.StatusOK, map[string]any{"ok": false})
		return
	}
	if err != nil {
		writeUpstreamError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"ok": true, "meta": meta})
}

func (s *Server) exportHistory(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeJSON(w, http.StatusOK, map[string]any{"exports": []*store.ExportRecord{}})
		return
	}

	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	recs, err := s.store.ListExports(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if recs == nil {
		recs = []*store.ExportRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"exports": recs})
}

// --- Health ---

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	resp := map[string]any{
		"status": "ok",
		"phase":  s.board.Phase(),
	}
	if s.store != nil {
		if rec, err := s.store.LastRefresh(r.Context()); err == nil && rec != nil {
			resp["lastRefresh"] = rec
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
