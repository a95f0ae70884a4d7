// Package ingest imports catalog items from CSV files. Imports upsert by
// item key: new keys are inserted active, existing keys get their display
// fields refreshed while rotation stats and the active flag stay untouched.
package ingest

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"unicode"

	"vitrine/internal/catalog"
	"vitrine/internal/services"
)

// Columns are resolved by header name, not position. item_id and name are
// required; the rest default to empty when the column is absent.
const (
	columnKey         = "item_id"
	columnName        = "name"
	columnPrice       = "price"
	columnMediaRef    = "image_url"
	columnCategory    = "category"
	columnDescription = "description"
	columnSourceURL   = "source_url"
)

// Summary totals one import pass. Problems carries one human-readable line
// per skipped row.
type Summary struct {
	Inserted int
	Updated  int
	Skipped  int
	Problems []string
}

// ImportCSV reads catalog rows from r and upserts them into the store.
// Malformed rows are skipped and reported in the summary; a malformed
// header or an unreadable stream aborts the import.
func ImportCSV(ctx context.Context, store *catalog.Store, r io.Reader) (Summary, error) {
	var summary Summary

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return summary, services.Wrap(services.ErrValidation, "ingest", "import", "csv input is empty", nil)
	}
	if err != nil {
		return summary, services.Wrap(services.ErrValidation, "ingest", "import", "read csv header", err)
	}
	columns, err := mapColumns(header)
	if err != nil {
		return summary, err
	}

	for row := 1; ; row++ {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return summary, services.Wrap(services.ErrValidation, "ingest", "import", fmt.Sprintf("read csv row %d", row), err)
		}

		item, problem := itemFromRecord(columns, record)
		if problem != "" {
			summary.Skipped++
			summary.Problems = append(summary.Problems, fmt.Sprintf("row %d: %s", row, problem))
			continue
		}

		_, created, err := store.UpsertItem(ctx, item)
		if err != nil {
			return summary, fmt.Errorf("upsert item %s: %w", item.Key, err)
		}
		if created {
			summary.Inserted++
		} else {
			summary.Updated++
		}
	}
	return summary, nil
}

func mapColumns(header []string) (map[string]int, error) {
	columns := make(map[string]int, len(header))
	for i, cell := range header {
		name := strings.ToLower(strings.TrimSpace(cell))
		if i == 0 {
			name = strings.TrimPrefix(name, "\uFEFF")
		}
		if name == "" {
			continue
		}
		if _, dup := columns[name]; dup {
			return nil, services.Wrap(services.ErrValidation, "ingest", "import", fmt.Sprintf("duplicate csv column %q", name), nil)
		}
		columns[name] = i
	}
	for _, required := range []string{columnKey, columnName} {
		if _, ok := columns[required]; !ok {
			return nil, services.Wrap(services.ErrValidation, "ingest", "import", fmt.Sprintf("csv header is missing column %q", required), nil)
		}
	}
	return columns, nil
}

// itemFromRecord builds a catalog item from one row, or explains why the
// row cannot be imported. Item keys must not contain whitespace: they feed
// the run journal's one-line format and CLI arguments.
func itemFromRecord(columns map[string]int, record []string) (*catalog.Item, string) {
	get := func(column string) string {
		idx, ok := columns[column]
		if !ok || idx >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[idx])
	}

	key := get(columnKey)
	if key == "" {
		return nil, "item_id is empty"
	}
	if strings.ContainsFunc(key, unicode.IsSpace) {
		return nil, fmt.Sprintf("item_id %q contains whitespace", key)
	}
	name := get(columnName)
	if name == "" {
		return nil, fmt.Sprintf("item %s has no name", key)
	}

	var price int64
	if raw := get(columnPrice); raw != "" {
		parsed, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || parsed < 0 {
			return nil, fmt.Sprintf("item %s has an invalid price %q", key, raw)
		}
		price = parsed
	}

	return &catalog.Item{
		Key:         key,
		Name:        name,
		Price:       price,
		MediaRef:    get(columnMediaRef),
		Category:    get(columnCategory),
		Description: get(columnDescription),
		SourceURL:   get(columnSourceURL),
		Active:      true,
	}, ""
}
