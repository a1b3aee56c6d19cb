package cmd

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/oaps-analytics/deskops/internal/helpdesk"
	"github.com/oaps-analytics/deskops/internal/output"
	"github.com/oaps-analytics/deskops/internal/store"
)

var (
	ticketGroups   []string
	ticketStatuses []string
	ticketIDs      []string
	ticketExactAge bool

	assignAgentID   int64
	assignAgentName string

	notePublic   bool
	commentLimit int
)

var ticketsCmd = &cobra.Command{
	Use:   "tickets",
	Short: "List and act on aging helpdesk tickets",
	Long:  "List the filtered ticket set, change statuses, reassign between agents, and post notes.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return ticketsListRun()
	},
}

var ticketsListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List tickets with age buckets and the meeting window",
	RunE: func(cmd *cobra.Command, args []string) error {
		return ticketsListRun()
	},
}

var ticketsStatusCmd = &cobra.Command{
	Use:   "status <ticket-id> <status>",
	Short: "Change a ticket's status",
	Long:  "Change a ticket's status. Valid statuses: open, pending, on-hold, solved, closed.",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return ticketsStatusRun(args[0], args[1])
	},
}

var ticketsAssignCmd = &cobra.Command{
	Use:   "assign <ticket-id>",
	Short: "Reassign a ticket to another agent",
	Long: `Reassign a ticket to another agent by --agent-id or --agent-name.
The target group is derived from the agent's record; there is no way to
move a ticket to an agent without also moving it to that agent's group.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return ticketsAssignRun(args[0])
	},
}

var ticketsNoteCmd = &cobra.Command{
	Use:   "note <ticket-id> <body>",
	Short: "Add a comment to a ticket",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return ticketsNoteRun(args[0], args[1])
	},
}

var ticketsCommentsCmd = &cobra.Command{
	Use:   "comments <ticket-id>",
	Short: "Show the most recent comments on a ticket",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return ticketsCommentsRun(args[0])
	},
}

func init() {
	for _, c := range []*cobra.Command{ticketsCmd, ticketsListCmd} {
		c.Flags().StringSliceVar(&ticketGroups, "group", nil, "Group IDs to filter by")
		c.Flags().StringSliceVar(&ticketStatuses, "status", nil, "Statuses to filter by")
		c.Flags().StringSliceVar(&ticketIDs, "ids", nil, "Specific ticket IDs")
		c.Flags().BoolVar(&ticketExactAge, "exact-age", false, "Show exact days open instead of coarse buckets")
	}

	ticketsAssignCmd.Flags().Int64Var(&assignAgentID, "agent-id", 0, "Target agent ID")
	ticketsAssignCmd.Flags().StringVar(&assignAgentName, "agent-name", "", "Target agent name (case-insensitive)")

	ticketsNoteCmd.Flags().BoolVar(&notePublic, "public", false, "Post as a public reply instead of an internal note")

	ticketsCommentsCmd.Flags().IntVar(&commentLimit, "limit", 5, "Maximum comments to show")

	ticketsCmd.AddCommand(ticketsListCmd)
	ticketsCmd.AddCommand(ticketsStatusCmd)
	ticketsCmd.AddCommand(ticketsAssignCmd)
	ticketsCmd.AddCommand(ticketsNoteCmd)
	ticketsCmd.AddCommand(ticketsCommentsCmd)
	rootCmd.AddCommand(ticketsCmd)
}

func parseTicketArg(arg string) (int64, error) {
	id, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid ticket id %q", arg)
	}
	return id, nil
}

func ticketsListRun() error {
	b := getBoard()
	ctx := context.Background()

	filter := configuredFilter(ticketGroups, ticketStatuses, ticketIDs, !ticketExactAge)

	start := time.Now()
	err := b.Refresh(ctx, filter)
	fetched := len(b.Tickets())
	if err != nil {
		// The list on display is the stale prior one, not this attempt's.
		fetched = 0
	}
	recordRefresh(ctx, fetched, err)
	if err != nil {
		// The previous list, if any, is still valid. Show the failure but
		// keep rendering whatever we have.
		ui.Error("Refresh failed: %s", b.RefreshErr())
		if len(b.Tickets()) == 0 {
			return nil
		}
		ui.Warning("Showing stale results from the last successful refresh")
	}
	ui.VerboseLog("Refreshed %d tickets in %s", len(b.Tickets()), time.Since(start).Round(time.Millisecond))

	window := b.Window()
	if !window.Start.IsZero() {
		ui.Info("Meeting window: %s - %s",
			window.Start.Format("2006-01-02 15:04"),
			window.End.Format("15:04 MST"))
	}

	tickets := b.Tickets()
	if len(tickets) == 0 {
		ui.Info("No tickets match the current filters.")
		return nil
	}

	table := ui.Table([]string{"ID", "Subject", "Group", "Status", "Assignee", "Age", "Mtg"})
	for _, t := range tickets {
		age := output.AgeColor(t.AgeBucket)
		if ticketExactAge {
			age = fmt.Sprintf("%dd", t.AgeDays)
		}

		mtg := ""
		if t.ClosedByMeeting {
			mtg = output.Green("Y")
		}

		_ = table.Append([]string{
			strconv.FormatInt(t.ID, 10),
			t.Subject,
			t.Group,
			output.StatusColor(string(t.Status)),
			t.AssigneeName,
			age,
			mtg,
		})
	}
	_ = table.Render()
	return nil
}

func ticketsStatusRun(idArg, statusArg string) error {
	id, err := parseTicketArg(idArg)
	if err != nil {
		return err
	}

	ctx := context.Background()
	flow, err := getWorkflow(ctx)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would set ticket %d to %s", id, statusArg)
		return nil
	}

	if err := flow.SetStatus(ctx, id, helpdesk.Status(statusArg)); err != nil {
		row := flow.Row(id)
		if row.Err != "" {
			return fmt.Errorf("status update failed: %s", row.Err)
		}
		return err
	}

	ui.Success("Ticket %d is now %s", id, output.StatusColor(statusArg))
	return nil
}

func ticketsAssignRun(idArg string) error {
	id, err := parseTicketArg(idArg)
	if err != nil {
		return err
	}

	ctx := context.Background()
	flow, err := getWorkflow(ctx)
	if err != nil {
		return err
	}

	agentID := assignAgentID
	if agentID == 0 && assignAgentName != "" {
		agent, ok := flow.Roster().FindByName(assignAgentName)
		if !ok {
			return fmt.Errorf("no agent named %q in the roster", assignAgentName)
		}
		agentID = agent.ID
	}
	if agentID == 0 {
		return fmt.Errorf("specify --agent-id or --agent-name")
	}

	agent, ok := flow.Roster().Lookup(agentID)
	if !ok {
		return fmt.Errorf("agent %d is not an assignment candidate", agentID)
	}

	if dryRun {
		ui.DryRunMsg("Would reassign ticket %d to %s (group %s)", id, agent.Name, agent.GroupID)
		return nil
	}

	if err := flow.Reassign(ctx, id, agentID); err != nil {
		row := flow.Row(id)
		if row.Err != "" {
			return fmt.Errorf("reassignment failed: %s", row.Err)
		}
		return err
	}

	ui.Success("Ticket %d reassigned to %s (group %s)", id, output.Cyan(agent.Name), agent.GroupID)
	return nil
}

func ticketsNoteRun(idArg, body string) error {
	id, err := parseTicketArg(idArg)
	if err != nil {
		return err
	}

	ctx := context.Background()
	flow, err := getWorkflow(ctx)
	if err != nil {
		return err
	}

	if dryRun {
		ui.DryRunMsg("Would add note to ticket %d: %s", id, body)
		return nil
	}

	if err := flow.AddNote(ctx, id, body, notePublic); err != nil {
		return err
	}

	kind := "internal note"
	if notePublic {
		kind = "public reply"
	}
	ui.Success("Added %s to ticket %d", kind, id)
	return nil
}

func ticketsCommentsRun(idArg string) error {
	id, err := parseTicketArg(idArg)
	if err != nil {
		return err
	}

	ctx := context.Background()
	comments, err := getDesk().LastComments(ctx, id, commentLimit)
	if err != nil {
		return err
	}

	if len(comments) == 0 {
		ui.Info("No comments on ticket %d.", id)
		return nil
	}

	for _, c := range comments {
		visibility := "internal"
		if c.Public {
			visibility = "public"
		}
		fmt.Fprintf(ui.Out, "%s  %s\n", output.Cyan(c.CreatedAt.Format("2006-01-02 15:04")), visibility)
		fmt.Fprintf(ui.Out, "  %s\n", c.Body)
	}
	return nil
}

// recordRefresh logs a refresh attempt to the local store, best-effort.
func recordRefresh(ctx context.Context, ticketCount int, refreshErr error) {
	s, err := getStore()
	if err != nil {
		return
	}
	rec := &store.RefreshRecord{TicketCount: ticketCount, OK: refreshErr == nil}
	if refreshErr != nil {
		rec.Error = getBoard().RefreshErr()
	}
	_ = s.RecordRefresh(ctx, rec)
}
