package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"vitrine/internal/catalog"
	"vitrine/internal/config"
	"vitrine/internal/runlog"
)

func newLogCommand(ctx *cliContext) *cobra.Command {
	var limit int
	var showRuns bool
	var statusFilter string

	cmd := &cobra.Command{
		Use:   "log",
		Short: "Show recent publish attempts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if showRuns {
				if statusFilter != "" {
					return fmt.Errorf("--status filters post attempts, not the run journal")
				}
				cfg, err := ctx.ensureConfig()
				if err != nil {
					return err
				}
				return printRunJournal(cmd, cfg.Paths.RunLog, limit)
			}
			var statuses []catalog.Status
			if statusFilter != "" {
				status, ok := catalog.ParseStatus(statusFilter)
				if !ok {
					return fmt.Errorf("unknown status %q (one of: %s)", statusFilter, knownStatusNames())
				}
				statuses = append(statuses, status)
			}
			return ctx.withStore(func(cfg *config.Config, store *catalog.Store) error {
				return printAttempts(cmd, store, limit, statuses...)
			})
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum number of rows to show")
	cmd.Flags().BoolVar(&showRuns, "runs", false, "Show run outcomes from the journal instead of post attempts")
	cmd.Flags().StringVar(&statusFilter, "status", "", "Only show attempts in this state")
	return cmd
}

func knownStatusNames() string {
	statuses := catalog.AllStatuses()
	names := make([]string, len(statuses))
	for i, status := range statuses {
		names[i] = string(status)
	}
	return strings.Join(names, ", ")
}

func printAttempts(cmd *cobra.Command, store *catalog.Store, limit int, statuses ...catalog.Status) error {
	attempts, err := store.RecentAttempts(cmd.Context(), limit, statuses...)
	if err != nil {
		return err
	}
	if len(attempts) == 0 {
		if len(statuses) > 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No matching publish attempts.")
			return nil
		}
		fmt.Fprintln(cmd.OutOrStdout(), "No publish attempts recorded yet.")
		return nil
	}

	rows := make([][]string, 0, len(attempts))
	for _, attempt := range attempts {
		rows = append(rows, []string{
			attempt.CreatedAt.Local().Format("2006-01-02 15:04"),
			attempt.ItemKey,
			string(attempt.Status),
			string(attempt.FailureReason),
			attempt.PublishID,
		})
	}
	columns := []tableColumn{
		{header: "TIME"},
		{header: "ITEM"},
		{header: "STATUS"},
		{header: "REASON"},
		{header: "PUBLISH ID"},
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderTable(columns, rows))
	return nil
}

func printRunJournal(cmd *cobra.Command, path string, limit int) error {
	entries, err := runlog.Recent(path, limit)
	if err != nil {
		return err
	}
	if len(entries) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No runs journaled yet.")
		return nil
	}

	rows := make([][]string, 0, len(entries))
	for _, entry := range entries {
		rows = append(rows, []string{
			entry.Timestamp.Local().Format("2006-01-02 15:04"),
			shortRunID(entry.RunID),
			entry.Outcome,
			entry.ItemKey,
			entry.Status,
			entry.Reason,
		})
	}
	columns := []tableColumn{
		{header: "TIME"},
		{header: "RUN"},
		{header: "OUTCOME"},
		{header: "ITEM"},
		{header: "STATUS"},
		{header: "REASON"},
	}
	fmt.Fprintln(cmd.OutOrStdout(), renderTable(columns, rows))
	return nil
}

func shortRunID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
