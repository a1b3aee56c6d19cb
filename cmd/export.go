package cmd

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/oaps-analytics/deskops/internal/helpdesk"
	"github.com/oaps-analytics/deskops/internal/output"
	"github.com/oaps-analytics/deskops/internal/store"
)

var (
	exportGroups   []string
	exportStatuses []string
	exportHistoryN int
)

var exportCmd = &cobra.Command{
	Use:   "export",
	Short: "Trigger and inspect CSV exports",
	Long:  "Trigger a CSV export of the filtered ticket set and look up past export receipts.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return exportRunRun()
	},
}

var exportRunCmd = &cobra.Command{
	Use:   "run",
	Short: "Trigger a CSV export",
	RunE: func(cmd *cobra.Command, args []string) error {
		return exportRunRun()
	},
}

var exportLastCmd = &cobra.Command{
	Use:   "last",
	Short: "Show the most recent export",
	RunE: func(cmd *cobra.Command, args []string) error {
		return exportLastRun()
	},
}

var exportHistoryCmd = &cobra.Command{
	Use:   "history",
	Short: "List recorded export receipts, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		return exportHistoryRun()
	},
}

func init() {
	for _, c := range []*cobra.Command{exportCmd, exportRunCmd} {
		c.Flags().StringSliceVar(&exportGroups, "group", nil, "Group IDs to filter by")
		c.Flags().StringSliceVar(&exportStatuses, "status", nil, "Statuses to filter by")
	}

	exportHistoryCmd.Flags().IntVar(&exportHistoryN, "limit", 20, "Maximum receipts to show")

	exportCmd.AddCommand(exportRunCmd)
	exportCmd.AddCommand(exportLastCmd)
	exportCmd.AddCommand(exportHistoryCmd)
	rootCmd.AddCommand(exportCmd)
}

func exportRunRun() error {
	ctx := context.Background()
	filter := configuredFilter(exportGroups, exportStatuses, nil, false)

	if dryRun {
		ui.DryRunMsg("Would trigger export for groups [%s] statuses [%s]",
			strings.Join(filter.GroupIDs, ","), strings.Join(filter.Statuses, ","))
		return nil
	}

	receipt, err := getDesk().TriggerExport(ctx, filter)
	if err != nil {
		return fmt.Errorf("trigger export: %w", err)
	}

	if s, err := getStore(); err == nil {
		rec := &store.ExportRecord{
			Filename: receipt.Filename,
			URL:      receipt.URL,
			RowCount: receipt.RowCount,
			GroupIDs: filter.GroupIDs,
			Statuses: filter.Statuses,
		}
		_ = s.RecordExport(ctx, rec)
	}

	ui.Success("Export ready: %s (%d rows)", output.Cyan(receipt.Filename), receipt.RowCount)
	ui.Info("Download: %s", receipt.URL)
	return nil
}

func exportLastRun() error {
	ctx := context.Background()

	if s, err := getStore(); err == nil {
		if rec, err := s.LastExport(ctx); err == nil && rec != nil {
			ui.Info("Last export: %s (%d rows)", output.Cyan(rec.Filename), rec.RowCount)
			ui.Info("Triggered:   %s", rec.TriggeredAt.Format("2006-01-02 15:04:05 MST"))
			ui.Info("Download:    %s", rec.URL)
			return nil
		}
	}

	// No local record. Ask the helpdesk for its own marker.
	meta, err := getDesk().LastExport(ctx)
	if errors.Is(err, helpdesk.ErrNoExport) {
		ui.Info("No exports recorded yet.")
		return nil
	}
	if err != nil {
		return fmt.Errorf("fetch last export: %w", err)
	}

	ui.Info("Last export: %s (%d rows)", output.Cyan(meta.Filename), meta.RowCount)
	ui.Info("Triggered:   %s", meta.Timestamp.Format("2006-01-02 15:04:05 MST"))
	ui.Info("Download:    %s", meta.URL)
	return nil
}

func exportHistoryRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}

	recs, err := s.ListExports(context.Background(), exportHistoryN)
	if err != nil {
		return err
	}
	if len(recs) == 0 {
		ui.Info("No exports recorded yet.")
		return nil
	}

	table := ui.Table([]string{"When", "Filename", "Rows", "Groups", "Statuses"})
	for _, rec := range recs {
		_ = table.Append([]string{
			rec.TriggeredAt.Format("2006-01-02 15:04"),
			rec.Filename,
			strconv.Itoa(rec.RowCount),
			strings.Join(rec.GroupIDs, ","),
			strings.Join(rec.Statuses, ","),
		})
	}
	_ = table.Render()
	return nil
}
