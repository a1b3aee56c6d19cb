package cmd

import (
	"context"
	"strconv"

	"github.com/spf13/cobra"
)

var agentsCmd = &cobra.Command{
	Use:     "agents",
	Aliases: []string{"users"},
	Short:   "List the assignment candidates",
	Long:    "List the agents a ticket may be reassigned to, with the group each assignment would move the ticket into.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return agentsListRun()
	},
}

func init() {
	rootCmd.AddCommand(agentsCmd)
}

func agentsListRun() error {
	flow, err := getWorkflow(context.Background())
	if err != nil {
		return err
	}

	agents := flow.Roster().Agents()
	if len(agents) == 0 {
		ui.Info("No assignment candidates available.")
		return nil
	}

	table := ui.Table([]string{"ID", "Name", "Group"})
	for _, a := range agents {
		_ = table.Append([]string{
			strconv.FormatInt(a.ID, 10),
			a.Name,
			a.GroupID,
		})
	}
	_ = table.Render()
	return nil
}
