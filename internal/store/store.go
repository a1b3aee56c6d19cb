package store

import (
	"context"
	"time"
)

// ExportRecord is one completed CSV export handed back by the helpdesk.
type ExportRecord struct {
	ID          string    `json:"id"`
	Filename    string    `json:"filename"`
	URL         string    `json:"url"`
	RowCount    int       `json:"row_count"`
	GroupIDs    []string  `json:"group_ids"`
	Statuses    []string  `json:"statuses"`
	TriggeredAt time.Time `json:"triggered_at"`
}

// RefreshRecord logs one board refresh attempt, successful or not.
type RefreshRecord struct {
	ID          string    `json:"id"`
	At          time.Time `json:"at"`
	TicketCount int       `json:"ticket_count"`
	OK          bool      `json:"ok"`
	Error       string    `json:"error,omitempty"`
}

// Store defines local persistence for deskops.
type Store interface {
	// Exports
	RecordExport(ctx context.Context, rec *ExportRecord) error
	LastExport(ctx context.Context) (*ExportRecord, error)
	ListExports(ctx context.Context, limit int) ([]*ExportRecord, error)

	// Refreshes
	RecordRefresh(ctx context.Context, rec *RefreshRecord) error
	LastRefresh(ctx context.Context) (*RefreshRecord, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
