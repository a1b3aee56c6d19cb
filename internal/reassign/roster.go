package reassign

import (
	"sort"
	"strings"

	"github.com/oaps-analytics/deskops/internal/helpdesk"
)

// Roster is the fixed universe of assignment candidates for one session.
// It is built once from the fetched agent list; reassignment targets can
// only be chosen from it, so free-text assignee IDs are unrepresentable.
type Roster struct {
	byID    map[int64]helpdesk.Agent
	ordered []helpdesk.Agent
}

// NewRoster indexes the fetched agent list by ID.
func NewRoster(agents []helpdesk.Agent) *Roster {
	r := &Roster{byID: make(map[int64]helpdesk.Agent, len(agents))}
	for _, a := range agents {
		if _, dup := r.byID[a.ID]; dup {
			continue
		}
		r.byID[a.ID] = a
		r.ordered = append(r.ordered, a)
	}
	sort.Slice(r.ordered, func(i, j int) bool { return r.ordered[i].Name < r.ordered[j].Name })
	return r
}

// Lookup returns the agent record for an ID, if it is in the roster.
func (r *Roster) Lookup(id int64) (helpdesk.Agent, bool) {
	a, ok := r.byID[id]
	return a, ok
}

// FindByName returns the agent whose display name matches, ignoring
// case. Used by the CLI so operators can assign by name instead of ID.
func (r *Roster) FindByName(name string) (helpdesk.Agent, bool) {
	for _, a := range r.ordered {
		if strings.EqualFold(a.Name, name) {
			return a, true
		}
	}
	return helpdesk.Agent{}, false
}

// Agents returns the candidates sorted by display name.
func (r *Roster) Agents() []helpdesk.Agent {
	out := make([]helpdesk.Agent, len(r.ordered))
	copy(out, r.ordered)
	return out
}

// Len returns the candidate count.
func (r *Roster) Len() int { return len(r.byID) }
