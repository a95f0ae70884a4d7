package catalog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// RunTx scopes every catalog write of a single publish run to one database
// transaction. The caller commits once the attempt reaches a terminal status.
// Rolling back instead leaves the catalog exactly as it was before the run.
type RunTx struct {
	tx *sql.Tx
}

// BeginRun opens the transaction that carries all writes for one run.
func (s *Store) BeginRun(ctx context.Context) (*RunTx, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin run transaction: %w", err)
	}
	return &RunTx{tx: tx}, nil
}

// InsertAttempt records a new post attempt and fills in its assigned ID and
// timestamps. Attempts start pending unless the caller chose a status.
func (r *RunTx) InsertAttempt(ctx context.Context, attempt *Attempt) error {
	if attempt == nil {
		return errors.New("attempt is nil")
	}
	if attempt.Status == "" {
		attempt.Status = StatusPending
	}

	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)

	res, err := r.tx.ExecContext(
		ctx,
		`INSERT INTO post_attempts (
	        item_key, post_text, media_url, publish_id, status,
	        failure_reason, error_message, created_at, updated_at
	    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		attempt.ItemKey,
		nullIfEmpty(attempt.PostText),
		nullIfEmpty(attempt.MediaURL),
		nullIfEmpty(attempt.PublishID),
		string(attempt.Status),
		nullIfEmpty(string(attempt.FailureReason)),
		nullIfEmpty(attempt.ErrorMessage),
		timestamp,
		timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert attempt: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("attempt id: %w", err)
	}
	attempt.ID = id
	attempt.CreatedAt = now
	attempt.UpdatedAt = now
	return nil
}

// UpdateAttempt persists the current state of an attempt.
func (r *RunTx) UpdateAttempt(ctx context.Context, attempt *Attempt) error {
	if attempt == nil || attempt.ID == 0 {
		return errors.New("attempt has no id")
	}

	now := time.Now().UTC()
	_, err := r.tx.ExecContext(
		ctx,
		`UPDATE post_attempts
	     SET post_text = ?, media_url = ?, publish_id = ?, status = ?,
	         failure_reason = ?, error_message = ?, updated_at = ?
	     WHERE id = ?`,
		nullIfEmpty(attempt.PostText),
		nullIfEmpty(attempt.MediaURL),
		nullIfEmpty(attempt.PublishID),
		string(attempt.Status),
		nullIfEmpty(string(attempt.FailureReason)),
		nullIfEmpty(attempt.ErrorMessage),
		now.Format(time.RFC3339Nano),
		attempt.ID,
	)
	if err != nil {
		return fmt.Errorf("update attempt: %w", err)
	}
	attempt.UpdatedAt = now
	return nil
}

// BumpRotation advances the rotation stats of an item after a successful
// publish. Stats never move for failed attempts.
func (r *RunTx) BumpRotation(ctx context.Context, itemKey string, postedAt time.Time) error {
	timestamp := postedAt.UTC().Format(time.RFC3339Nano)
	res, err := r.tx.ExecContext(
		ctx,
		`UPDATE catalog_items
	     SET post_count = post_count + 1, last_posted_at = ?, updated_at = ?
	     WHERE item_key = ?`,
		timestamp,
		timestamp,
		itemKey,
	)
	if err != nil {
		return fmt.Errorf("bump rotation: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("bump rotation: no item with key %q", itemKey)
	}
	return nil
}

// LatestAttemptForItem reads the newest attempt for an item inside the run
// transaction, or nil when the item has never been attempted.
func (r *RunTx) LatestAttemptForItem(ctx context.Context, key string) (*Attempt, error) {
	row := r.tx.QueryRowContext(
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

// Commit finalizes the run's writes.
func (r *RunTx) Commit() error {
	return r.tx.Commit()
}

// Rollback abandons the run's writes. Calling it after Commit is a no-op.
func (r *RunTx) Rollback() error {
	err := r.tx.Rollback()
	if errors.Is(err, sql.ErrTxDone) {
		return nil
	}
	return err
}
