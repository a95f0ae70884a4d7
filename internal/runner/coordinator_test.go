package runner_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gofrs/flock"

	"vitrine/internal/catalog"
	"vitrine/internal/compose"
	"vitrine/internal/config"
	"vitrine/internal/credentials"
	"vitrine/internal/logging"
	"vitrine/internal/pipeline"
	"vitrine/internal/runlog"
	"vitrine/internal/runner"
	"vitrine/internal/services"
	"vitrine/internal/services/contentapi"
	"vitrine/internal/testsupport"
)

type fakeHoster struct {
	mu    sync.Mutex
	calls int
	url   string
}

func (f *fakeHoster) Host(_ context.Context, _ string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.url, nil
}

func (f *fakeHoster) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakePublisher struct {
	mu        sync.Mutex
	initCalls int
	publishID string
	confirms  []contentapi.Confirmation
	confirmN  int
}

func (f *fakePublisher) InitPublish(_ context.Context, _ string, _ contentapi.Post) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.initCalls++
	return f.publishID, nil
}

func (f *fakePublisher) ConfirmStatus(_ context.Context, _ string, _ string) (contentapi.Confirmation, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.confirmN++
	if len(f.confirms) == 0 {
		return contentapi.Confirmation{State: contentapi.RemotePublished}, nil
	}
	idx := f.confirmN - 1
	if idx >= len(f.confirms) {
		idx = len(f.confirms) - 1
	}
	return f.confirms[idx], nil
}

func (f *fakePublisher) initCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.initCalls
}

type fakeNotifier struct {
	mu        sync.Mutex
	published []string
	failures  []string
	skips     []string
}

func (f *fakeNotifier) NotifyPublished(_ context.Context, _ string, publishID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.published = append(f.published, publishID)
	return nil
}

func (f *fakeNotifier) NotifyRunFailed(_ context.Context, _ string, reason string, _ error) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failures = append(f.failures, reason)
	return nil
}

func (f *fakeNotifier) NotifySkipped(_ context.Context, reason string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.skips = append(f.skips, reason)
	return nil
}

func (f *fakeNotifier) TestNotification(_ context.Context) error { return nil }

type memTokenStore struct {
	mu     sync.Mutex
	record credentials.Record
}

func (s *memTokenStore) Load(_ context.Context) (credentials.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.record, nil
}

func (s *memTokenStore) Save(_ context.Context, record credentials.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.record = record
	return nil
}

type stubRefresher struct{}

func (stubRefresher) RefreshToken(_ context.Context, _ string) (credentials.Record, error) {
	return credentials.Record{}, errors.New("refresh not available in tests")
}

type rig struct {
	cfg       *config.Config
	store     *catalog.Store
	hoster    *fakeHoster
	publisher *fakePublisher
	notifier  *fakeNotifier
	coord     *runner.Coordinator
}

func newRig(t *testing.T) *rig {
	t.Helper()
	return buildRig(t, testsupport.NewConfig(t, testsupport.WithStaticToken("run-token")))
}

func newRigWithoutToken(t *testing.T) *rig {
	t.Helper()
	return buildRig(t, testsupport.NewConfig(t))
}

func buildRig(t *testing.T, cfg *config.Config) *rig {
	t.Helper()
	cfg.Retry.HostAttempts = 2
	cfg.Retry.InitAttempts = 2
	cfg.Retry.PollInterval = 0
	cfg.Retry.ConfirmTimeout = 1

	store, err := catalog.Open(cfg)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	composer, err := compose.New(cfg)
	if err != nil {
		t.Fatalf("new composer: %v", err)
	}

	hoster := &fakeHoster{url: "https://img.example/hosted.jpg"}
	publisher := &fakePublisher{publishID: "pub-1"}
	pipe := pipeline.New(cfg, store, composer, hoster, publisher, logging.NewNop())

	journal, err := runlog.Open(cfg.Paths.RunLog)
	if err != nil {
		t.Fatalf("open journal: %v", err)
	}
	t.Cleanup(func() { _ = journal.Close() })

	creds := credentials.NewManager(cfg, &memTokenStore{}, stubRefresher{})
	notifier := &fakeNotifier{}

	coord, err := runner.New(cfg, store, pipe, creds, notifier, journal, logging.NewNop())
	if err != nil {
		t.Fatalf("new coordinator: %v", err)
	}
	return &rig{cfg: cfg, store: store, hoster: hoster, publisher: publisher, notifier: notifier, coord: coord}
}

func (r *rig) seedItem(t *testing.T, key string, postCount int) *catalog.Item {
	t.Helper()
	_, _, err := r.store.UpsertItem(context.Background(), &catalog.Item{
		Key:      key,
		Name:     "アイテム " + key,
		Price:    1000,
		MediaRef: "https://shop.example/" + key + ".jpg",
		Active:   true,
	})
	if err != nil {
		t.Fatalf("seed item: %v", err)
	}
	for i := 0; i < postCount; i++ {
		tx, err := r.store.BeginRun(context.Background())
		if err != nil {
			t.Fatalf("begin run: %v", err)
		}
		if err := tx.BumpRotation(context.Background(), key, time.Now().UTC()); err != nil {
			t.Fatalf("bump rotation: %v", err)
		}
		if err := tx.Commit(); err != nil {
			t.Fatalf("commit: %v", err)
		}
	}
	seeded, err := r.store.GetItemByKey(context.Background(), key)
	if err != nil {
		t.Fatalf("reload item: %v", err)
	}
	return seeded
}

func (r *rig) lastJournalEntry(t *testing.T) runlog.Entry {
	t.Helper()
	entries, err := runlog.Recent(r.cfg.Paths.RunLog, 1)
	if err != nil {
		t.Fatalf("read journal: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("journal entries = %d, want 1", len(entries))
	}
	return entries[0]
}

func TestRunOncePublishesNextItem(t *testing.T) {
	r := newRig(t)
	r.seedItem(t, "x1", 0)
	before := r.seedItem(t, "x2", 3)

	result := r.coord.RunOnce(context.Background(), runner.Options{})
	if result.Outcome != runner.OutcomePublished {
		t.Fatalf("outcome = %q (err %v), want published", result.Outcome, result.Err)
	}
	if result.Outcome.ExitCode() != 0 {
		t.Errorf("exit code = %d, want 0", result.Outcome.ExitCode())
	}
	if result.Item == nil || result.Item.Key != "x1" {
		t.Fatalf("selected item = %+v, want the never-posted x1", result.Item)
	}
	if result.Attempt == nil || result.Attempt.Status != catalog.StatusPublished {
		t.Fatalf("attempt = %+v, want published", result.Attempt)
	}

	x1, err := r.store.GetItemByKey(context.Background(), "x1")
	if err != nil {
		t.Fatalf("get x1: %v", err)
	}
	if x1.PostCount != 1 || x1.LastPostedAt == nil {
		t.Errorf("x1 stats = count %d posted %v, want bumped", x1.PostCount, x1.LastPostedAt)
	}
	x2, err := r.store.GetItemByKey(context.Background(), "x2")
	if err != nil {
		t.Fatalf("get x2: %v", err)
	}
	if x2.PostCount != before.PostCount {
		t.Errorf("x2 post count changed: %d -> %d", before.PostCount, x2.PostCount)
	}

	entry := r.lastJournalEntry(t)
	if entry.Outcome != "published" || entry.ItemKey != "x1" || entry.Status != "published" {
		t.Errorf("journal entry = %+v", entry)
	}
	if len(r.notifier.published) != 1 || r.notifier.published[0] != "pub-1" {
		t.Errorf("publish notifications = %v", r.notifier.published)
	}
}

func TestRunOnceDryRunTouchesNothing(t *testing.T) {
	r := newRig(t)
	r.seedItem(t, "x1", 0)

	result := r.coord.RunOnce(context.Background(), runner.Options{DryRun: true})
	if result.Outcome != runner.OutcomeDryRun {
		t.Fatalf("outcome = %q (err %v), want dry_run", result.Outcome, result.Err)
	}
	if result.Attempt == nil || result.Attempt.PostText == "" {
		t.Fatal("dry run result carries no composed post")
	}
	if r.hoster.callCount() != 0 || r.publisher.initCount() != 0 {
		t.Error("dry run made remote calls")
	}

	attempts, err := r.store.RecentAttempts(context.Background(), 10)
	if err != nil {
		t.Fatalf("recent attempts: %v", err)
	}
	if len(attempts) != 0 {
		t.Errorf("attempt rows = %d, want 0", len(attempts))
	}
	x1, err := r.store.GetItemByKey(context.Background(), "x1")
	if err != nil {
		t.Fatalf("get x1: %v", err)
	}
	if x1.PostCount != 0 {
		t.Errorf("post count = %d, dry run must not advance rotation", x1.PostCount)
	}

	entry := r.lastJournalEntry(t)
	if entry.Outcome != "dry_run" {
		t.Errorf("journal outcome = %q, want dry_run", entry.Outcome)
	}
}

func TestRunOnceSkipsWhenLockHeld(t *testing.T) {
	r := newRig(t)
	r.seedItem(t, "x1", 0)

	holder := flock.New(r.cfg.Paths.LockFile)
	held, err := holder.TryLock()
	if err != nil || !held {
		t.Fatalf("pre-acquire lock: held=%v err=%v", held, err)
	}
	defer func() { _ = holder.Unlock() }()

	result := r.coord.RunOnce(context.Background(), runner.Options{})
	if result.Outcome != runner.OutcomeSkippedLocked {
		t.Fatalf("outcome = %q, want skipped_locked", result.Outcome)
	}
	if result.Outcome.ExitCode() != 0 {
		t.Errorf("exit code = %d, lock contention is a clean skip", result.Outcome.ExitCode())
	}

	attempts, err := r.store.RecentAttempts(context.Background(), 10)
	if err != nil {
		t.Fatalf("recent attempts: %v", err)
	}
	if len(attempts) != 0 {
		t.Errorf("attempt rows = %d, skipped run must not touch the store", len(attempts))
	}
	if r.publisher.initCount() != 0 {
		t.Error("skipped run reached the publisher")
	}

	entry := r.lastJournalEntry(t)
	if entry.Outcome != "skipped_locked" {
		t.Errorf("journal outcome = %q", entry.Outcome)
	}
}

func TestRunOnceNoActiveItems(t *testing.T) {
	r := newRig(t)

	result := r.coord.RunOnce(context.Background(), runner.Options{})
	if result.Outcome != runner.OutcomeNoActiveItems {
		t.Fatalf("outcome = %q, want no_active_items", result.Outcome)
	}
	if result.Outcome.ExitCode() != 0 {
		t.Errorf("exit code = %d, want 0", result.Outcome.ExitCode())
	}
	if len(r.notifier.skips) != 1 {
		t.Errorf("skip notifications = %v, want one", r.notifier.skips)
	}
}

func TestRunOnceCredentialFailureWritesNoAttempt(t *testing.T) {
	r := newRigWithoutToken(t)
	r.seedItem(t, "x1", 0)

	result := r.coord.RunOnce(context.Background(), runner.Options{})
	if result.Outcome != runner.OutcomeCredentialError {
		t.Fatalf("outcome = %q (err %v), want credential_error", result.Outcome, result.Err)
	}
	if result.Outcome.ExitCode() != 2 {
		t.Errorf("exit code = %d, want 2", result.Outcome.ExitCode())
	}
	if !errors.Is(result.Err, services.ErrAuth) {
		t.Errorf("error = %v, want auth", result.Err)
	}

	attempts, err := r.store.RecentAttempts(context.Background(), 10)
	if err != nil {
		t.Fatalf("recent attempts: %v", err)
	}
	if len(attempts) != 0 {
		t.Errorf("attempt rows = %d, credential failures precede the pipeline", len(attempts))
	}
	if len(r.notifier.failures) != 1 || r.notifier.failures[0] != "credential_error" {
		t.Errorf("failure notifications = %v", r.notifier.failures)
	}
}

func TestRunOnceForcedInactiveItem(t *testing.T) {
	r := newRig(t)
	r.seedItem(t, "x1", 0)
	r.seedItem(t, "x2", 0)
	if _, err := r.store.SetItemActive(context.Background(), "x2", false); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	result := r.coord.RunOnce(context.Background(), runner.Options{ItemKey: "x2"})
	if result.Outcome != runner.OutcomePublished {
		t.Fatalf("outcome = %q (err %v), want published", result.Outcome, result.Err)
	}
	if result.Item.Key != "x2" {
		t.Errorf("item = %q, want the forced x2", result.Item.Key)
	}
}

func TestRunOnceForcedItemMissing(t *testing.T) {
	r := newRig(t)

	result := r.coord.RunOnce(context.Background(), runner.Options{ItemKey: "ghost"})
	if result.Outcome != runner.OutcomeFailed {
		t.Fatalf("outcome = %q, want failed", result.Outcome)
	}
	if result.Outcome.ExitCode() != 1 {
		t.Errorf("exit code = %d, want 1", result.Outcome.ExitCode())
	}
	if !errors.Is(result.Err, services.ErrNotFound) {
		t.Errorf("error = %v, want not found", result.Err)
	}
}

func TestRunOnceRejectedPublishJournalsReason(t *testing.T) {
	r := newRig(t)
	r.seedItem(t, "x1", 0)
	r.publisher.confirms = []contentapi.Confirmation{
		{State: contentapi.RemoteRejected, FailReason: "picture_size_check_failed"},
	}

	result := r.coord.RunOnce(context.Background(), runner.Options{})
	if result.Outcome != runner.OutcomeFailed {
		t.Fatalf("outcome = %q, want failed", result.Outcome)
	}
	if result.Attempt == nil || result.Attempt.FailureReason != catalog.ReasonRemoteRejected {
		t.Fatalf("attempt = %+v, want remote_rejected", result.Attempt)
	}

	entry := r.lastJournalEntry(t)
	if entry.Reason != string(catalog.ReasonRemoteRejected) {
		t.Errorf("journal reason = %q, want remote_rejected", entry.Reason)
	}
	if len(r.notifier.failures) != 1 || r.notifier.failures[0] != string(catalog.ReasonRemoteRejected) {
		t.Errorf("failure notifications = %v", r.notifier.failures)
	}

	x1, err := r.store.GetItemByKey(context.Background(), "x1")
	if err != nil {
		t.Fatalf("get x1: %v", err)
	}
	if x1.PostCount != 0 {
		t.Errorf("post count = %d, failed run must not advance rotation", x1.PostCount)
	}
}

func TestOutcomeExitCodes(t *testing.T) {
	cases := []struct {
		outcome runner.Outcome
		want    int
	}{
		{runner.OutcomePublished, 0},
		{runner.OutcomeDryRun, 0},
		{runner.OutcomeSkippedLocked, 0},
		{runner.OutcomeNoActiveItems, 0},
		{runner.OutcomeFailed, 1},
		{runner.OutcomeCredentialError, 2},
	}
	for _, tc := range cases {
		if got := tc.outcome.ExitCode(); got != tc.want {
			t.Errorf("ExitCode(%q) = %d, want %d", tc.outcome, got, tc.want)
		}
	}
}
