package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"vitrine/internal/config"
)

// Store manages catalog persistence backed by SQLite.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the catalog database and applies migrations.
func Open(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("prepare data directories: %w", err)
	}

	db, err := openDatabase(cfg.Paths.Database)
	if err != nil {
		return nil, err
	}

	store := &Store{db: db, path: cfg.Paths.Database}
	if err := store.applyMigrations(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func openDatabase(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open catalog db: %w", err)
	}
	for _, pragma := range [...]string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA foreign_keys = ON",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("exec %s: %w", pragma, err)
		}
	}
	return db, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s != nil && s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Path returns the database file location.
func (s *Store) Path() string {
	return s.path
}

// UpsertItem inserts a new catalog item or refreshes the display fields of an
// existing one. Rotation stats and the active flag are preserved on update so
// re-importing a catalog never resets posting history.
func (s *Store) UpsertItem(ctx context.Context, item *Item) (*Item, bool, error) {
	if item == nil {
		return nil, false, errors.New("item is nil")
	}
	key := strings.TrimSpace(item.Key)
	if key == "" {
		return nil, false, errors.New("item key is empty")
	}

	existing, err := s.GetItemByKey(ctx, key)
	if err != nil {
		return nil, false, err
	}
	timestamp := time.Now().UTC().Format(time.RFC3339Nano)

	if existing == nil {
		_, err := s.db.ExecContext(
			ctx,
			`INSERT INTO catalog_items (
	            item_key, name, price, media_ref, category, description,
	            source_url, post_count, active, created_at, updated_at
	        ) VALUES (?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?)`,
			key,
			item.Name,
			item.Price,
			nullIfEmpty(item.MediaRef),
			nullIfEmpty(item.Category),
			nullIfEmpty(item.Description),
			nullIfEmpty(item.SourceURL),
			asInt(item.Active),
			timestamp,
			timestamp,
		)
		if err != nil {
			return nil, false, fmt.Errorf("insert item: %w", err)
		}
		created, err := s.GetItemByKey(ctx, key)
		if err != nil {
			return nil, false, err
		}
		return created, true, nil
	}

	_, err = s.db.ExecContext(
		ctx,
		`UPDATE catalog_items
	     SET name = ?, price = ?, media_ref = ?, category = ?, description = ?,
	         source_url = ?, updated_at = ?
	     WHERE item_key = ?`,
		item.Name,
		item.Price,
		nullIfEmpty(item.MediaRef),
		nullIfEmpty(item.Category),
		nullIfEmpty(item.Description),
		nullIfEmpty(item.SourceURL),
		timestamp,
		key,
	)
	if err != nil {
		return nil, false, fmt.Errorf("update item: %w", err)
	}
	updated, err := s.GetItemByKey(ctx, key)
	if err != nil {
		return nil, false, err
	}
	return updated, false, nil
}

// GetItemByKey fetches a catalog item by its stable key.
func (s *Store) GetItemByKey(ctx context.Context, key string) (*Item, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM catalog_items WHERE item_key = ?`, key)
	item, err := readItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load item: %w", err)
	}
	return item, nil
}

// ActiveItems returns every active catalog item ordered by key.
func (s *Store) ActiveItems(ctx context.Context) ([]*Item, error) {
	return s.ListItems(ctx, false)
}

// ListItems returns catalog items ordered by key, optionally including
// deactivated entries.
func (s *Store) ListItems(ctx context.Context, includeInactive bool) ([]*Item, error) {
	query := `SELECT ` + itemColumns + ` FROM catalog_items`
	if !includeInactive {
		query += ` WHERE active = 1`
	}
	query += ` ORDER BY item_key`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list items: %w", err)
	}
	defer rows.Close()

	var items []*Item
	for rows.Next() {
		item, err := readItem(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

// SetItemActive flips the active flag for an item. Items are never deleted,
// only deactivated. Returns false when no item matches the key.
func (s *Store) SetItemActive(ctx context.Context, key string, active bool) (bool, error) {
	res, err := s.db.ExecContext(
		ctx,
		`UPDATE catalog_items SET active = ?, updated_at = ? WHERE item_key = ?`,
		asInt(active),
		time.Now().UTC().Format(time.RFC3339Nano),
		key,
	)
	if err != nil {
		return false, fmt.Errorf("set item active: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("rows affected: %w", err)
	}
	return affected > 0, nil
}

// LatestAttemptForItem returns the most recent post attempt for an item, or
// nil when the item has never been attempted.
func (s *Store) LatestAttemptForItem(ctx context.Context, key string) (*Attempt, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT `+attemptColumns+` FROM post_attempts WHERE item_key = ? ORDER BY id DESC LIMIT 1`,
		key,
	)
	attempt, err := readAttempt(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("latest attempt: %w", err)
	}
	return attempt, nil
}

// RecentAttempts returns the newest post attempts, most recent first. One or
// more statuses narrow the result to attempts currently in those states.
func (s *Store) RecentAttempts(ctx context.Context, limit int, statuses ...Status) ([]*Attempt, error) {
	if limit <= 0 {
		limit = 10
	}
	query := `SELECT ` + attemptColumns + ` FROM post_attempts`
	args := make([]any, 0, len(statuses)+1)
	if len(statuses) > 0 {
		query += ` WHERE status IN (?` + strings.Repeat(`, ?`, len(statuses)-1) + `)`
		for _, status := range statuses {
			args = append(args, string(status))
		}
	}
	query += ` ORDER BY id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("recent attempts: %w", err)
	}
	defer rows.Close()

	var attempts []*Attempt
	for rows.Next() {
		attempt, err := readAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, attempt)
	}
	return attempts, rows.Err()
}

// AttemptStats returns a count of post attempts grouped by status.
func (s *Store) AttemptStats(ctx context.Context) (map[Status]int, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT status, COUNT(1) FROM post_attempts GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("attempt stats: %w", err)
	}
	defer rows.Close()

	stats := make(map[Status]int)
	for rows.Next() {
		var (
			status Status
			total  int
		)
		if err := rows.Scan(&status, &total); err != nil {
			return nil, err
		}
		stats[status] = total
	}
	return stats, rows.Err()
}

const itemColumns = "id, item_key, name, price, media_ref, category, description, source_url, post_count, last_posted_at, active, created_at, updated_at"

const attemptColumns = "id, item_key, post_text, media_url, publish_id, status, failure_reason, error_message, created_at, updated_at"

type rowScanner interface {
	Scan(dest ...any) error
}

func readItem(row rowScanner) (*Item, error) {
	var (
		item                                       Item
		mediaRef, category, description, sourceURL sql.NullString
		lastPosted, createdRaw, updatedRaw         sql.NullString
		active                                     sql.NullInt64
	)
	if err := row.Scan(
		&item.ID, &item.Key, &item.Name, &item.Price,
		&mediaRef, &category, &description, &sourceURL,
		&item.PostCount, &lastPosted, &active, &createdRaw, &updatedRaw,
	); err != nil {
		return nil, err
	}

	item.MediaRef = mediaRef.String
	item.Category = category.String
	item.Description = description.String
	item.SourceURL = sourceURL.String
	item.Active = active.Valid && active.Int64 != 0
	if posted, ok := parseStoredTime(lastPosted.String); ok {
		item.LastPostedAt = &posted
	}
	item.CreatedAt, _ = parseStoredTime(createdRaw.String)
	item.UpdatedAt, _ = parseStoredTime(updatedRaw.String)
	return &item, nil
}

func readAttempt(row rowScanner) (*Attempt, error) {
	var (
		attempt                       Attempt
		postText, mediaURL, publishID sql.NullString
		status, reason, errMsg        sql.NullString
		createdRaw, updatedRaw        sql.NullString
	)
	if err := row.Scan(
		&attempt.ID, &attempt.ItemKey, &postText, &mediaURL, &publishID,
		&status, &reason, &errMsg, &createdRaw, &updatedRaw,
	); err != nil {
		return nil, err
	}

	attempt.PostText = postText.String
	attempt.MediaURL = mediaURL.String
	attempt.PublishID = publishID.String
	attempt.Status = Status(status.String)
	attempt.FailureReason = FailureReason(reason.String)
	attempt.ErrorMessage = errMsg.String
	attempt.CreatedAt, _ = parseStoredTime(createdRaw.String)
	attempt.UpdatedAt, _ = parseStoredTime(updatedRaw.String)
	return &attempt, nil
}

func nullIfEmpty(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func asInt(flag bool) int {
	if flag {
		return 1
	}
	return 0
}

var storedTimeLayouts = []string{time.RFC3339Nano, "2006-01-02 15:04:05"}

func parseStoredTime(value string) (time.Time, bool) {
	if value == "" {
		return time.Time{}, false
	}
	for _, layout := range storedTimeLayouts {
		if t, err := time.Parse(layout, value); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
