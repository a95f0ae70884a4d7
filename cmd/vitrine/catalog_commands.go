package main

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"vitrine/internal/catalog"
	"vitrine/internal/config"
	"vitrine/internal/ingest"
	"vitrine/internal/rotation"
	"vitrine/internal/services"
)

func newCatalogCommand(ctx *cliContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage the item catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	cmd.AddCommand(newCatalogImportCommand(ctx))
	cmd.AddCommand(newCatalogListCommand(ctx))
	cmd.AddCommand(newCatalogActiveCommand(ctx, true))
	cmd.AddCommand(newCatalogActiveCommand(ctx, false))

	return cmd
}

func newCatalogImportCommand(ctx *cliContext) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.csv>",
		Short: "Upsert catalog items from a CSV export",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *catalog.Store) error {
				file, err := os.Open(args[0])
				if err != nil {
					return fmt.Errorf("open csv: %w", err)
				}
				defer file.Close()

				summary, err := ingest.ImportCSV(cmd.Context(), store, file)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Imported %d new, updated %d, skipped %d\n",
					summary.Inserted, summary.Updated, summary.Skipped)
				for _, problem := range summary.Problems {
					fmt.Fprintf(out, "  %s\n", problem)
				}
				return nil
			})
		},
	}
}

func newCatalogListCommand(ctx *cliContext) *cobra.Command {
	var includeInactive bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List catalog items in posting order",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *catalog.Store) error {
				items, err := store.ListItems(cmd.Context(), includeInactive)
				if err != nil {
					return err
				}
				if len(items) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "Catalog is empty. Load items with 'vitrine catalog import'.")
					return nil
				}

				rows := make([][]string, 0, len(items))
				for _, item := range rotation.Order(items) {
					rows = append(rows, []string{
						item.Key,
						item.Name,
						strconv.FormatInt(item.Price, 10),
						strconv.FormatInt(item.PostCount, 10),
						formatLastPosted(item.LastPostedAt),
						yesNo(item.Active),
					})
				}
				columns := []tableColumn{
					{header: "KEY"},
					{header: "NAME"},
					{header: "PRICE", numeric: true},
					{header: "POSTS", numeric: true},
					{header: "LAST POSTED"},
					{header: "ACTIVE"},
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable(columns, rows))
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&includeInactive, "all", false, "Include deactivated items")
	return cmd
}

func newCatalogActiveCommand(ctx *cliContext, active bool) *cobra.Command {
	use, short, done := "activate <key>", "Return an item to the posting rotation", "activated"
	if !active {
		use, short, done = "deactivate <key>", "Remove an item from the posting rotation", "deactivated"
	}

	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(func(cfg *config.Config, store *catalog.Store) error {
				key := args[0]
				found, err := store.SetItemActive(cmd.Context(), key, active)
				if err != nil {
					return err
				}
				if !found {
					return services.Wrap(services.ErrNotFound, "cli", "catalog",
						fmt.Sprintf("item %q is not in the catalog", key), nil)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Item %s %s\n", key, done)
				return nil
			})
		},
	}
}

func formatLastPosted(ts *time.Time) string {
	if ts == nil {
		return "never"
	}
	return ts.Local().Format("2006-01-02 15:04")
}
