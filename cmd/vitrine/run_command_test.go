package main

import (
	"context"
	"strings"
	"testing"

	"vitrine/internal/catalog"
	"vitrine/internal/runlog"
)

func TestCLIRunDryRun(t *testing.T) {
	env := newCLIEnv(t)
	store := env.openStore(t)

	ctx := context.Background()
	if _, _, err := store.UpsertItem(ctx, &catalog.Item{
		Key:      "bag-001",
		Name:     "レザートートバッグ",
		Price:    12800,
		MediaRef: "https://img.example/bag.jpg",
		Active:   true,
	}); err != nil {
		t.Fatalf("seed item: %v", err)
	}

	out, _, err := runCLI(t, []string{"run", "--dry-run"}, env.configPath)
	if err != nil {
		t.Fatalf("run --dry-run: %v", err)
	}
	requireContains(t, out, "Dry run: composed post for レザートートバッグ (bag-001)")
	requireContains(t, out, "価格 12,800円")

	attempts, err := store.RecentAttempts(ctx, 10)
	if err != nil {
		t.Fatalf("RecentAttempts: %v", err)
	}
	if len(attempts) != 0 {
		t.Fatalf("dry run must not persist attempts, found %d", len(attempts))
	}

	item, err := store.GetItemByKey(ctx, "bag-001")
	if err != nil {
		t.Fatalf("GetItemByKey: %v", err)
	}
	if item.PostCount != 0 || item.LastPostedAt != nil {
		t.Fatalf("dry run must not advance rotation stats, got count=%d", item.PostCount)
	}

	cfg := env.loadConfig(t)
	entries, err := runlog.Recent(cfg.Paths.RunLog, 5)
	if err != nil {
		t.Fatalf("runlog.Recent: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected one journal entry, got %d", len(entries))
	}
	if entries[0].Outcome != "dry_run" || entries[0].ItemKey != "bag-001" {
		t.Fatalf("unexpected journal entry: %+v", entries[0])
	}
}

func TestCLIRunNoActiveItems(t *testing.T) {
	env := newCLIEnv(t)

	out, _, err := runCLI(t, []string{"run"}, env.configPath)
	if err != nil {
		t.Fatalf("run on an empty catalog should exit cleanly: %v", err)
	}
	requireContains(t, out, "Skipped: no active catalog items")
}

func TestCLILogShowsJournaledRuns(t *testing.T) {
	env := newCLIEnv(t)
	store := env.openStore(t)

	ctx := context.Background()
	if _, _, err := store.UpsertItem(ctx, &catalog.Item{
		Key:      "hat-002",
		Name:     "ストローハット",
		Price:    4200,
		MediaRef: "https://img.example/hat.jpg",
		Active:   true,
	}); err != nil {
		t.Fatalf("seed item: %v", err)
	}

	if _, _, err := runCLI(t, []string{"run", "--dry-run"}, env.configPath); err != nil {
		t.Fatalf("run --dry-run: %v", err)
	}

	out, _, err := runCLI(t, []string{"log", "--runs"}, env.configPath)
	if err != nil {
		t.Fatalf("log --runs: %v", err)
	}
	requireContains(t, out, "dry_run")
	requireContains(t, out, "hat-002")

	out, _, err = runCLI(t, []string{"log"}, env.configPath)
	if err != nil {
		t.Fatalf("log: %v", err)
	}
	requireContains(t, out, "No publish attempts recorded yet.")
}

func TestCLILogFiltersAttemptsByStatus(t *testing.T) {
	env := newCLIEnv(t)
	store := env.openStore(t)

	ctx := context.Background()
	if _, _, err := store.UpsertItem(ctx, &catalog.Item{
		Key:      "mug-003",
		Name:     "琺瑯マグ",
		Price:    3200,
		MediaRef: "https://img.example/mug.jpg",
		Active:   true,
	}); err != nil {
		t.Fatalf("seed item: %v", err)
	}

	tx, err := store.BeginRun(ctx)
	if err != nil {
		t.Fatalf("BeginRun: %v", err)
	}
	published := &catalog.Attempt{ItemKey: "mug-003", Status: catalog.StatusPublished, PublishID: "pub-ok"}
	if err := tx.InsertAttempt(ctx, published); err != nil {
		t.Fatalf("InsertAttempt: %v", err)
	}
	failed := &catalog.Attempt{ItemKey: "mug-003"}
	failed.SetFailed(catalog.ReasonRemoteRejected, "media expired")
	if err := tx.InsertAttempt(ctx, failed); err != nil {
		t.Fatalf("InsertAttempt: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("Commit: %v", err)
	}

	out, _, err := runCLI(t, []string{"log", "--status", "failed"}, env.configPath)
	if err != nil {
		t.Fatalf("log --status failed: %v", err)
	}
	requireContains(t, out, "remote_rejected")
	if strings.Contains(out, "pub-ok") {
		t.Fatalf("published attempt leaked into the failed filter:\n%s", out)
	}

	_, _, err = runCLI(t, []string{"log", "--status", "bogus"}, env.configPath)
	if err == nil {
		t.Fatal("expected an error for an unknown status")
	}
	requireContains(t, err.Error(), "unknown status")
	requireContains(t, err.Error(), "awaiting_confirmation")
}

func TestCLIInitStore(t *testing.T) {
	env := newCLIEnv(t)

	out, _, err := runCLI(t, []string{"init-store"}, env.configPath)
	if err != nil {
		t.Fatalf("init-store: %v", err)
	}
	requireContains(t, out, "Catalog store ready at")
	requireContains(t, out, "catalog.db")
}
