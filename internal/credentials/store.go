package credentials

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"vitrine/internal/config"
)

// Store persists the singleton credential record in its own table of the
// catalog database. The table holds at most one row; saving replaces it
// atomically so readers never observe a partial record.
type Store struct {
	db *sql.DB
}

const createCredentialsTable = `
CREATE TABLE IF NOT EXISTS credentials (
    id INTEGER PRIMARY KEY CHECK (id = 1),
    access_token TEXT NOT NULL,
    refresh_token TEXT NOT NULL,
    expires_at TEXT NOT NULL,
    account_id TEXT,
    updated_at TEXT NOT NULL
)`

// OpenStore connects to the credential table, creating it when absent.
func OpenStore(cfg *config.Config) (*Store, error) {
	if err := cfg.EnsureDirectories(); err != nil {
		return nil, fmt.Errorf("prepare data directories: %w", err)
	}

	db, err := sql.Open("sqlite", cfg.Paths.Database)
	if err != nil {
		return nil, fmt.Errorf("open credentials db: %w", err)
	}

	for _, pragma := range [...]string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
	} {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("exec %s: %w", pragma, err)
		}
	}

	if _, err := db.Exec(createCredentialsTable); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create credentials table: %w", err)
	}

	return &Store{db: db}, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s != nil && s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Load reads the current record. A zero Record means no credentials have
// been linked yet.
func (s *Store) Load(ctx context.Context) (Record, error) {
	row := s.db.QueryRowContext(
		ctx,
		`SELECT access_token, refresh_token, expires_at, account_id, updated_at FROM credentials WHERE id = 1`,
	)

	var (
		accessToken  string
		refreshToken string
		expiresRaw   string
		accountID    sql.NullString
		updatedRaw   string
	)
	err := row.Scan(&accessToken, &refreshToken, &expiresRaw, &accountID, &updatedRaw)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, nil
	}
	if err != nil {
		return Record{}, fmt.Errorf("load credentials: %w", err)
	}

	record := Record{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		AccountID:    accountID.String,
	}
	if expires, err := time.Parse(time.RFC3339Nano, expiresRaw); err == nil {
		record.ExpiresAt = expires
	}
	if updated, err := time.Parse(time.RFC3339Nano, updatedRaw); err == nil {
		record.UpdatedAt = updated
	}
	return record, nil
}

// Save replaces the stored record in a single statement.
func (s *Store) Save(ctx context.Context, record Record) error {
	updatedAt := record.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = time.Now().UTC()
	}

	_, err := s.db.ExecContext(
		ctx,
		`INSERT INTO credentials (id, access_token, refresh_token, expires_at, account_id, updated_at)
	     VALUES (1, ?, ?, ?, ?, ?)
	     ON CONFLICT(id) DO UPDATE SET
	         access_token = excluded.access_token,
	         refresh_token = excluded.refresh_token,
	         expires_at = excluded.expires_at,
	         account_id = excluded.account_id,
	         updated_at = excluded.updated_at`,
		record.AccessToken,
		record.RefreshToken,
		record.ExpiresAt.UTC().Format(time.RFC3339Nano),
		record.AccountID,
		updatedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}
	return nil
}
