package helpdesk

import "time"

// Status is a ticket lifecycle state as defined by the helpdesk system.
type Status string

const (
	StatusOpen    Status = "open"
	StatusPending Status = "pending"
	StatusOnHold  Status = "on-hold"
	StatusSolved  Status = "solved"
	StatusClosed  Status = "closed"
)

// ValidStatus reports whether s is one of the helpdesk lifecycle states.
func ValidStatus(s Status) bool {
	switch s {
	case StatusOpen, StatusPending, StatusOnHold, StatusSolved, StatusClosed:
		return true
	}
	return false
}

// Age bucket labels as computed by the helpdesk system. The boundaries
// (and its definition of "day") are authoritative upstream; they are
// never recomputed locally.
const (
	BucketOver30  = "Over 30 Days"
	BucketOver20  = "Over 20 Days"
	BucketOver10  = "Over 10 Days"
	BucketUnder10 = "Under 10 Days"
)

// Ticket is a read-refreshed view of one helpdesk ticket. The helpdesk
// system is the source of truth; this struct only mirrors it between
// refreshes.
type Ticket struct {
	ID              int64  `json:"id"`
	Subject         string `json:"subject"`
	Group           string `json:"group"`
	Status          Status `json:"status"`
	AssigneeID      *int64 `json:"assignee_id"`
	AssigneeName    string `json:"assignee_name,omitempty"`
	AgeBucket       string `json:"ageBucket,omitempty"`
	AgeDays         int    `json:"ageDays"`
	ClosedByMeeting bool   `json:"closedByMeeting"`
}

// Agent is an assignment candidate. Agents are fetched once per session
// and form the entire universe a reassignment target may be chosen from.
type Agent struct {
	ID      int64  `json:"id"`
	Name    string `json:"name"`
	GroupID string `json:"group_id"`
}

// MeetingWindow is the active reporting interval used upstream to compute
// the closed-by-meeting flag. Read-only, refreshed alongside tickets.
type MeetingWindow struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Comment is one ticket comment for inline display.
type Comment struct {
	AuthorID  *int64    `json:"author_id"`
	Body      string    `json:"body"`
	Public    bool      `json:"public"`
	CreatedAt time.Time `json:"created_at"`
}

// Filter selects which tickets a list call returns. Bucketed is passed
// straight through to the server; it decides whether rows carry coarse
// age buckets or exact-day precision only.
type Filter struct {
	GroupIDs []string
	Statuses []string
	IDs      []string
	Bucketed bool
}

// TicketPatch is a partial ticket update. Nil fields are omitted from the
// request body entirely.
type TicketPatch struct {
	Status     *Status `json:"status,omitempty"`
	AssigneeID *int64  `json:"assignee_id,omitempty"`
	GroupID    *string `json:"group_id,omitempty"`
}

// Empty reports whether the patch would be a no-op.
func (p TicketPatch) Empty() bool {
	return p.Status == nil && p.AssigneeID == nil && p.GroupID == nil
}

// ExportReceipt is what the export/notification pipeline reports back
// when an export is triggered.
type ExportReceipt struct {
	URL      string `json:"url"`
	Filename string `json:"filename"`
	RowCount int    `json:"rows"`
}

// ExportMeta describes the last completed export as recorded upstream.
type ExportMeta struct {
	Timestamp time.Time `json:"timestamp"`
	Filename  string    `json:"filename"`
	URL       string    `json:"url"`
	RowCount  int       `json:"rows"`
}
