package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/oaps-analytics/deskops/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server for agent integration",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets an MCP client drive the dashboard natively: list tickets,
reassign them, change statuses, post notes, and trigger exports.
Configure it with:

  {
    "mcpServers": {
      "deskops": { "command": "deskops", "args": ["mcp"] }
    }
  }

Available tools: desk_list_tickets, desk_list_agents, desk_update_status,
desk_reassign_ticket, desk_add_note, desk_list_comments,
desk_trigger_export, desk_last_export`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := context.Background()

		flow, err := getWorkflow(ctx)
		if err != nil {
			return fmt.Errorf("initialize workflow: %w", err)
		}

		// The store is optional here; export tools fall back to the
		// helpdesk's own last-export marker without it.
		s, _ := getStore()

		srv := mcp.NewServer(getBoard(), flow, getDesk(), s)
		return srv.ServeStdio(ctx)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
