// Package runlog keeps a plain-text journal of publish runs: one line per
// run, appended once the run reaches its outcome. The file is meant to be
// readable with tail and grep, independent of the structured logs.
package runlog

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// placeholder marks fields that are empty for a given run, keeping every
// line at the same token count.
const placeholder = "-"

// Entry is one journal line.
type Entry struct {
	Timestamp time.Time
	RunID     string
	Outcome   string
	ItemKey   string
	Status    string
	Reason    string
}

// Line renders the entry in the on-disk format.
func (e Entry) Line() string {
	ts := e.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	return fmt.Sprintf("%s run=%s outcome=%s item=%s status=%s reason=%s",
		ts.UTC().Format(time.RFC3339),
		orPlaceholder(e.RunID),
		orPlaceholder(e.Outcome),
		orPlaceholder(e.ItemKey),
		orPlaceholder(e.Status),
		orPlaceholder(e.Reason))
}

// Journal appends run outcome lines to a single on-disk file.
type Journal struct {
	path string
	mu   sync.Mutex
	file *os.File
}

// Open creates the journal file (and its directory) if needed and positions
// writes at the end.
func Open(path string) (*Journal, error) {
	trimmed := strings.TrimSpace(path)
	if trimmed == "" {
		return nil, errors.New("run log path required")
	}
	if err := os.MkdirAll(filepath.Dir(trimmed), 0o755); err != nil {
		return nil, fmt.Errorf("ensure run log dir: %w", err)
	}
	file, err := os.OpenFile(trimmed, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open run log %s: %w", trimmed, err)
	}
	return &Journal{path: trimmed, file: file}, nil
}

// Append writes one entry. A failed append never corrupts earlier lines.
func (j *Journal) Append(entry Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return errors.New("run log is closed")
	}
	if _, err := j.file.WriteString(entry.Line() + "\n"); err != nil {
		return fmt.Errorf("append run log: %w", err)
	}
	return nil
}

// Close releases the journal file handle.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file == nil {
		return nil
	}
	err := j.file.Close()
	j.file = nil
	return err
}

// Path returns the on-disk location backing the journal.
func (j *Journal) Path() string {
	return j.path
}

// Recent reads the journal and returns up to limit entries, newest first.
// A missing file yields no entries. Lines that do not parse are skipped so
// a hand-edited journal never blocks the caller.
func Recent(path string, limit int) ([]Entry, error) {
	file, err := os.Open(strings.TrimSpace(path))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open run log: %w", err)
	}
	defer file.Close()

	var entries []Entry
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		entry, ok := parseLine(scanner.Text())
		if !ok {
			continue
		}
		entries = append(entries, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read run log: %w", err)
	}

	// Newest first.
	for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
		entries[i], entries[j] = entries[j], entries[i]
	}
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}

func parseLine(line string) (Entry, bool) {
	fields := strings.Fields(line)
	if len(fields) != 6 {
		return Entry{}, false
	}
	ts, err := time.Parse(time.RFC3339, fields[0])
	if err != nil {
		return Entry{}, false
	}
	entry := Entry{Timestamp: ts}
	for _, field := range fields[1:] {
		key, value, ok := strings.Cut(field, "=")
		if !ok {
			return Entry{}, false
		}
		if value == placeholder {
			value = ""
		}
		switch key {
		case "run":
			entry.RunID = value
		case "outcome":
			entry.Outcome = value
		case "item":
			entry.ItemKey = value
		case "status":
			entry.Status = value
		case "reason":
			entry.Reason = value
		default:
			return Entry{}, false
		}
	}
	return entry, true
}

func orPlaceholder(value string) string {
	value = strings.TrimSpace(value)
	if value == "" {
		return placeholder
	}
	return value
}
