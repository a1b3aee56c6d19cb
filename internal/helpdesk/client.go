// Package helpdesk is the typed client for the external ticket system.
// It maps the wire contract onto Go types and delegates every call to the
// request gateway, which owns timeout and retry semantics.
package helpdesk

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/oaps-analytics/deskops/internal/gateway"
)

// ErrNoExport reports that the helpdesk has no completed export on
// record. Use errors.Is.
var ErrNoExport = errors.New("no export recorded upstream")

// ErrEmptyPatch reports an update with no fields set. Refused locally so
// a write that would change nothing can never look committed.
var ErrEmptyPatch = errors.New("ticket patch has no fields set")

// Client wraps the gateway with the helpdesk API surface.
type Client struct {
	gw *gateway.Gateway
}

// NewClient creates a helpdesk client over the given gateway.
func NewClient(gw *gateway.Gateway) *Client {
	return &Client{gw: gw}
}

// Tickets lists tickets matching the filter.
func (c *Client) Tickets(ctx context.Context, filter Filter) ([]Ticket, error) {
	query := url.Values{}
	query.Set("bucketed", strconv.FormatBool(filter.Bucketed))
	if len(filter.GroupIDs) > 0 {
		query.Set("group_ids", strings.Join(filter.GroupIDs, ","))
	}
	if len(filter.Statuses) > 0 {
		query.Set("statuses", strings.Join(filter.Statuses, ","))
	}
	if len(filter.IDs) > 0 {
		query.Set("ids", strings.Join(filter.IDs, ","))
	}

	var resp struct {
		Rows []Ticket `json:"rows"`
	}
	if err := c.gw.Execute(ctx, http.MethodGet, "/tickets", query, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Rows, nil
}

// MeetingWindow fetches the active reporting interval.
func (c *Client) MeetingWindow(ctx context.Context) (MeetingWindow, error) {
	var win MeetingWindow
	err := c.gw.Execute(ctx, http.MethodGet, "/meeting-window", nil, nil, &win)
	return win, err
}

// Agents lists the eligible assignment candidates.
func (c *Client) Agents(ctx context.Context) ([]Agent, error) {
	var resp struct {
		Users []Agent `json:"users"`
	}
	if err := c.gw.Execute(ctx, http.MethodGet, "/users", nil, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Users, nil
}

// UpdateTicket patches a subset of one ticket's fields. The caller is
// responsible for the assignee/group pairing; this layer only transmits.
func (c *Client) UpdateTicket(ctx context.Context, id int64, patch TicketPatch) error {
	if patch.Empty() {
		return ErrEmptyPatch
	}
	return c.gw.Execute(ctx, http.MethodPatch, ticketPath(id), nil, patch, nil)
}

// AddComment posts a comment on a ticket.
func (c *Client) AddComment(ctx context.Context, id int64, body string, public bool) error {
	payload := map[string]any{"body": body, "public": public}
	return c.gw.Execute(ctx, http.MethodPost, ticketPath(id)+"/comments", nil, payload, nil)
}

// LastComments returns the most recent comments on a ticket, newest
// first, for inline display.
func (c *Client) LastComments(ctx context.Context, id int64, limit int) ([]Comment, error) {
	query := url.Values{}
	if limit > 0 {
		query.Set("limit", strconv.Itoa(limit))
	}
	var resp struct {
		Comments []Comment `json:"comments"`
	}
	if err := c.gw.Execute(ctx, http.MethodGet, ticketPath(id)+"/comments", query, nil, &resp); err != nil {
		return nil, err
	}
	return resp.Comments, nil
}

// TriggerExport kicks off the export/notification pipeline for the
// filtered ticket set. Fire-and-forget from this side: the pipeline owns
// everything past the receipt.
func (c *Client) TriggerExport(ctx context.Context, filter Filter) (ExportReceipt, error) {
	query := url.Values{}
	if len(filter.GroupIDs) > 0 {
		query.Set("group_ids", strings.Join(filter.GroupIDs, ","))
	}
	if len(filter.Statuses) > 0 {
		query.Set("statuses", strings.Join(filter.Statuses, ","))
	}

	var receipt ExportReceipt
	err := c.gw.Execute(ctx, http.MethodPost, "/export", query, nil, &receipt)
	return receipt, err
}

// LastExport returns the most recent export recorded upstream.
func (c *Client) LastExport(ctx context.Context) (ExportMeta, error) {
	var resp struct {
		OK   bool       `json:"ok"`
		Meta ExportMeta `json:"meta"`
	}
	if err := c.gw.Execute(ctx, http.MethodGet, "/export/last", nil, nil, &resp); err != nil {
		return ExportMeta{}, err
	}
	if !resp.OK {
		return ExportMeta{}, ErrNoExport
	}
	return resp.Meta, nil
}

func ticketPath(id int64) string {
	return "/tickets/" + strconv.FormatInt(id, 10)
}
