// Package mcp exposes the dashboard as MCP tools over stdio so an agent
// can drive the same board and reassignment workflow the CLI uses.
package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/oaps-analytics/deskops/internal/board"
	"github.com/oaps-analytics/deskops/internal/helpdesk"
	"github.com/oaps-analytics/deskops/internal/reassign"
	"github.com/oaps-analytics/deskops/internal/store"
)

// Server wraps the board and workflow and exposes them as MCP tools.
type Server struct {
	board *board.Board
	flow  *reassign.Workflow
	desk  *helpdesk.Client
	store store.Store
}

// NewServer creates the MCP server wrapper. The store may be nil when no
// local database is configured; export history tools degrade gracefully.
func NewServer(b *board.Board, flow *reassign.Workflow, desk *helpdesk.Client, st store.Store) *Server {
	return &Server{
		board: b,
		flow:  flow,
		desk:  desk,
		store: st,
	}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("deskops", "1.0.0", server.WithToolCapabilities(true))

	srv.AddTool(s.listTicketsTool())
	srv.AddTool(s.listAgentsTool())
	srv.AddTool(s.updateStatusTool())
	srv.AddTool(s.reassignTicketTool())
	srv.AddTool(s.addNoteTool())
	srv.AddTool(s.listCommentsTool())
	srv.AddTool(s.triggerExportTool())
	srv.AddTool(s.lastExportTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

// desk_list_tickets
func (s *Server) listTicketsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("desk_list_tickets",
		mcp.WithDescription("Refresh and list helpdesk tickets. Returns a JSON array of rows with id, subject, group, status, assignee, age bucket, and the closed-by-meeting flag. Filters are comma-separated."),
		mcp.WithString("group_ids", mcp.Description("Comma-separated group IDs to filter by")),
		mcp.WithString("statuses", mcp.Description("Comma-separated statuses: open, pending, on-hold, solved, closed")),
		mcp.WithBoolean("bucketed", mcp.Description("Return coarse age buckets instead of exact day counts (default true)")),
	)
	return tool, s.handleListTickets
}

func (s *Server) handleListTickets(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter := helpdesk.Filter{
		GroupIDs: splitCSV(request.GetString("group_ids", "")),
		Statuses: splitCSV(request.GetString("statuses", "")),
		Bucketed: request.GetBool("bucketed", true),
	}

	if err := s.board.Refresh(ctx, filter); err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("refresh failed: %s", s.board.RefreshErr())), nil
	}

	window := s.board.Window()
	result := map[string]any{
		"rows": s.board.Tickets(),
		"meeting_window": map[string]any{
			"start": window.Start.Format(time.RFC3339),
			"end":   window.End.Format(time.RFC3339),
		},
	}

	data, err := json.Marshal(result)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal tickets: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// desk_list_agents
func (s *Server) listAgentsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("desk_list_agents",
		mcp.WithDescription("List the assignment candidates for ticket reassignment. Returns a JSON array of agents with id, name, and group_id."),
	)
	return tool, s.handleListAgents
}

func (s *Server) handleListAgents(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(s.flow.Roster().Agents())
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal agents: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// desk_update_status
func (s *Server) updateStatusTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("desk_update_status",
		mcp.WithDescription("Change a ticket's status. The board re-fetches server truth after the write, so the returned row reflects what the helpdesk actually stored."),
		mcp.WithNumber("ticket_id", mcp.Required(), mcp.Description("Ticket ID")),
		mcp.WithString("status", mcp.Required(), mcp.Description("New status: open, pending, on-hold, solved, closed")),
	)
	return tool, s.handleUpdateStatus
}

func (s *Server) handleUpdateStatus(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ticketID, err := request.RequireInt("ticket_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: ticket_id"), nil
	}
	status, err := request.RequireString("status")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: status"), nil
	}

	if err := s.flow.SetStatus(ctx, int64(ticketID), helpdesk.Status(status)); err != nil {
		return mcp.NewToolResultError(board.Humanize(err)), nil
	}

	return s.rowResult(int64(ticketID))
}

// desk_reassign_ticket
func (s *Server) reassignTicketTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("desk_reassign_ticket",
		mcp.WithDescription("Reassign a ticket to another agent. The target group is always derived from the agent's record; an agent ID outside the roster is refused without touching the helpdesk."),
		mcp.WithNumber("ticket_id", mcp.Required(), mcp.Description("Ticket ID")),
		mcp.WithNumber("agent_id", mcp.Required(), mcp.Description("Assignment candidate's agent ID")),
	)
	return tool, s.handleReassignTicket
}

func (s *Server) handleReassignTicket(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ticketID, err := request.RequireInt("ticket_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: ticket_id"), nil
	}
	agentID, err := request.RequireInt("agent_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: agent_id"), nil
	}

	if err := s.flow.Reassign(ctx, int64(ticketID), int64(agentID)); err != nil {
		return mcp.NewToolResultError(board.Humanize(err)), nil
	}

	return s.rowResult(int64(ticketID))
}

// desk_add_note
func (s *Server) addNoteTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("desk_add_note",
		mcp.WithDescription("Add a comment to a ticket. An empty or whitespace-only body is rejected locally."),
		mcp.WithNumber("ticket_id", mcp.Required(), mcp.Description("Ticket ID")),
		mcp.WithString("body", mcp.Required(), mcp.Description("Comment text")),
		mcp.WithBoolean("public", mcp.Description("Public reply instead of internal note (default false)")),
	)
	return tool, s.handleAddNote
}

func (s *Server) handleAddNote(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ticketID, err := request.RequireInt("ticket_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: ticket_id"), nil
	}
	body, err := request.RequireString("body")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: body"), nil
	}
	public := request.GetBool("public", false)

	if err := s.flow.AddNote(ctx, int64(ticketID), body, public); err != nil {
		return mcp.NewToolResultError(board.Humanize(err)), nil
	}

	result := map[string]any{
		"ticket_id": ticketID,
		"posted":    true,
		"public":    public,
	}
	data, _ := json.Marshal(result)
	return mcp.NewToolResultText(string(data)), nil
}

// desk_list_comments
func (s *Server) listCommentsTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("desk_list_comments",
		mcp.WithDescription("List the most recent comments on a ticket, newest first."),
		mcp.WithNumber("ticket_id", mcp.Required(), mcp.Description("Ticket ID")),
		mcp.WithNumber("limit", mcp.Description("Maximum comments to return (default 5)")),
	)
	return tool, s.handleListComments
}

func (s *Server) handleListComments(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	ticketID, err := request.RequireInt("ticket_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: ticket_id"), nil
	}
	limit := request.GetInt("limit", 5)

	comments, err := s.desk.LastComments(ctx, int64(ticketID), limit)
	if err != nil {
		return mcp.NewToolResultError(board.Humanize(err)), nil
	}

	data, err := json.Marshal(comments)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal comments: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// desk_trigger_export
func (s *Server) triggerExportTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("desk_trigger_export",
		mcp.WithDescription("Trigger a CSV export of the filtered ticket set. Returns the download URL, filename, and row count; the receipt is recorded locally."),
		mcp.WithString("group_ids", mcp.Description("Comma-separated group IDs to filter by")),
		mcp.WithString("statuses", mcp.Description("Comma-separated statuses to filter by")),
	)
	return tool, s.handleTriggerExport
}

func (s *Server) handleTriggerExport(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	filter := helpdesk.Filter{
		GroupIDs: splitCSV(request.GetString("group_ids", "")),
		Statuses: splitCSV(request.GetString("statuses", "")),
	}

	receipt, err := s.desk.TriggerExport(ctx, filter)
	if err != nil {
		return mcp.NewToolResultError(board.Humanize(err)), nil
	}

	if s.store != nil {
		rec := &store.ExportRecord{
			Filename: receipt.Filename,
			URL:      receipt.URL,
			RowCount: receipt.RowCount,
			GroupIDs: filter.GroupIDs,
			Statuses: filter.Statuses,
		}
		_ = s.store.RecordExport(ctx, rec)
	}

	data, err := json.Marshal(receipt)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal receipt: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// desk_last_export
func (s *Server) lastExportTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("desk_last_export",
		mcp.WithDescription("Describe the most recent export: when it ran, the filename, and the row count."),
	)
	return tool, s.handleLastExport
}

func (s *Server) handleLastExport(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if s.store != nil {
		if rec, err := s.store.LastExport(ctx); err == nil && rec != nil {
			data, _ := json.Marshal(map[string]any{"ok": true, "meta": rec})
			return mcp.NewToolResultText(string(data)), nil
		}
	}

	meta, err := s.desk.LastExport(ctx)
	if errors.Is(err, helpdesk.ErrNoExport) {
		return mcp.NewToolResultText(`{"ok":false}`), nil
	}
	if err != nil {
		return mcp.NewToolResultError(board.Humanize(err)), nil
	}

	data, err := json.Marshal(map[string]any{"ok": true, "meta": meta})
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal export meta: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// rowResult renders the workflow's current view of one ticket row.
func (s *Server) rowResult(ticketID int64) (*mcp.CallToolResult, error) {
	row := s.flow.Row(ticketID)
	result := map[string]any{
		"ticket_id": row.TicketID,
		"phase":     string(row.Phase),
		"status":    string(row.Status),
		"group":     row.Group,
	}
	if row.AssigneeID != nil {
		result["assignee_id"] = *row.AssigneeID
	}
	if row.AssigneeName != "" {
		result["assignee_name"] = row.AssigneeName
	}
	if row.Err != "" {
		result["error"] = row.Err
	}

	data, err := json.Marshal(result)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal row: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
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
