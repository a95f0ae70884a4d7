// Package runner coordinates single publish runs: one process lock, one
// selected item, one pipeline execution, one journal line. Every invocation
// produces a RunResult; the coordinator never panics a run into the caller.
package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/uuid"

	"vitrine/internal/catalog"
	"vitrine/internal/config"
	"vitrine/internal/credentials"
	"vitrine/internal/logging"
	"vitrine/internal/notifications"
	"vitrine/internal/pipeline"
	"vitrine/internal/rotation"
	"vitrine/internal/runlog"
	"vitrine/internal/services"
)

// Outcome classifies how a run ended.
type Outcome string

const (
	OutcomePublished       Outcome = "published"
	OutcomeDryRun          Outcome = "dry_run"
	OutcomeFailed          Outcome = "failed"
	OutcomeSkippedLocked   Outcome = "skipped_locked"
	OutcomeNoActiveItems   Outcome = "no_active_items"
	OutcomeCredentialError Outcome = "credential_error"
)

// ExitCode maps an outcome to the process exit contract: successes and clean
// skips exit 0, run failures exit 1, credential failures exit 2.
func (o Outcome) ExitCode() int {
	switch o {
	case OutcomePublished, OutcomeDryRun, OutcomeSkippedLocked, OutcomeNoActiveItems:
		return 0
	case OutcomeCredentialError:
		return 2
	default:
		return 1
	}
}

// Options control a single run.
type Options struct {
	// DryRun composes the would-be post without remote calls or store writes.
	DryRun bool
	// ItemKey forces a specific item, bypassing rotation. Inactive items are
	// allowed when forced.
	ItemKey string
}

// RunResult summarizes one coordinator invocation.
type RunResult struct {
	RunID    string
	Outcome  Outcome
	Item     *catalog.Item
	Attempt  *catalog.Attempt
	Err      error
	Duration time.Duration
}

// Coordinator owns the run lifecycle. Overlapping invocations are guarded by
// a file lock held for the duration of the run.
type Coordinator struct {
	cfg      *config.Config
	store    *catalog.Store
	pipe     *pipeline.Pipeline
	creds    *credentials.Manager
	notifier notifications.Service
	journal  *runlog.Journal
	logger   *slog.Logger

	lockPath string
	lock     *flock.Flock
}

// New wires a coordinator with initialized dependencies.
func New(cfg *config.Config, store *catalog.Store, pipe *pipeline.Pipeline, creds *credentials.Manager, notifier notifications.Service, journal *runlog.Journal, logger *slog.Logger) (*Coordinator, error) {
	if cfg == nil || store == nil || pipe == nil || creds == nil || notifier == nil || journal == nil {
		return nil, errors.New("runner requires config, store, pipeline, credentials, notifier, and journal")
	}

	lockPath := cfg.Paths.LockFile
	return &Coordinator{
		cfg:      cfg,
		store:    store,
		pipe:     pipe,
		creds:    creds,
		notifier: notifier,
		journal:  journal,
		logger:   logging.NewComponentLogger(logger, "runner"),
		lockPath: lockPath,
		lock:     flock.New(lockPath),
	}, nil
}

// RunOnce executes a single publish run and reports how it went. Per-item
// failures land in the result, not in a panic or process crash; the caller
// maps the outcome to an exit code.
func (c *Coordinator) RunOnce(ctx context.Context, opts Options) RunResult {
	started := time.Now()
	result := RunResult{RunID: uuid.NewString()}
	ctx = services.WithRunID(ctx, result.RunID)
	logger := c.logger.With(logging.String(logging.FieldRunID, result.RunID))

	mode := "publish"
	if opts.DryRun {
		mode = "dry_run"
	}
	logger.Info("run started",
		logging.String(logging.FieldEventType, "run_start"),
		logging.String("mode", mode),
	)

	locked, err := c.lock.TryLock()
	if err != nil {
		result.Outcome = OutcomeFailed
		result.Err = fmt.Errorf("acquire run lock %s: %w", c.lockPath, err)
		c.finish(logger, &result, started)
		return result
	}
	if !locked {
		result.Outcome = OutcomeSkippedLocked
		logger.Info("another run holds the lock, skipping",
			logging.String(logging.FieldEventType, "run_skipped"),
			logging.String("lock", c.lockPath),
		)
		c.finish(logger, &result, started)
		return result
	}
	defer func() {
		if unlockErr := c.lock.Unlock(); unlockErr != nil {
			logger.Warn("failed to release run lock", logging.Error(unlockErr))
		}
	}()

	runCtx, cancel := context.WithTimeout(ctx, c.cfg.RunBudget())
	defer cancel()

	item, outcome, err := c.resolveItem(runCtx, logger, opts)
	if outcome != "" || err != nil {
		result.Outcome = outcome
		result.Err = err
		if outcome == OutcomeNoActiveItems {
			c.notifySkipped(ctx, logger, "no active catalog items")
		}
		c.finish(logger, &result, started)
		return result
	}
	result.Item = item
	ctx = services.WithItemKey(ctx, item.Key)
	runCtx = services.WithItemKey(runCtx, item.Key)
	logger = logger.With(logging.String(logging.FieldItemKey, item.Key))

	var accessToken string
	if !opts.DryRun {
		accessToken, err = c.creds.EnsureValid(runCtx)
		if err != nil {
			result.Outcome = OutcomeCredentialError
			result.Err = err
			c.notifyRunFailed(ctx, logger, item.Name, "credential_error", err)
			c.finish(logger, &result, started)
			return result
		}
	}

	attempt, pipeErr := c.pipe.Execute(runCtx, item, pipeline.Options{
		AccessToken: accessToken,
		DryRun:      opts.DryRun,
	})
	result.Attempt = attempt

	switch {
	case pipeErr != nil:
		result.Outcome = OutcomeFailed
		result.Err = pipeErr
		c.notifyRunFailed(ctx, logger, item.Name, failureReason(attempt), pipeErr)
	case opts.DryRun:
		result.Outcome = OutcomeDryRun
	default:
		result.Outcome = OutcomePublished
		if notifyErr := c.notifier.NotifyPublished(ctx, item.Name, attempt.PublishID); notifyErr != nil {
			logger.Warn("publish notification failed", logging.Error(notifyErr))
		}
	}

	c.finish(logger, &result, started)
	return result
}

// resolveItem picks the run's target: the forced key when given, otherwise
// the rotation's next item. A non-empty outcome means the run ends here.
func (c *Coordinator) resolveItem(ctx context.Context, logger *slog.Logger, opts Options) (*catalog.Item, Outcome, error) {
	if opts.ItemKey != "" {
		item, err := c.store.GetItemByKey(ctx, opts.ItemKey)
		if err != nil {
			return nil, OutcomeFailed, fmt.Errorf("load forced item: %w", err)
		}
		if item == nil {
			return nil, OutcomeFailed, services.Wrap(services.ErrNotFound, "runner", "resolve", fmt.Sprintf("item %q is not in the catalog", opts.ItemKey), nil)
		}
		if !item.Active {
			logger.Warn("forced item is inactive, publishing anyway",
				logging.String(logging.FieldItemKey, item.Key),
			)
		}
		return item, "", nil
	}

	items, err := c.store.ActiveItems(ctx)
	if err != nil {
		return nil, OutcomeFailed, fmt.Errorf("load active items: %w", err)
	}
	item, err := rotation.Next(items)
	if errors.Is(err, services.ErrNotFound) {
		logger.Info("no active catalog items, skipping run",
			logging.String(logging.FieldEventType, "run_skipped"),
		)
		return nil, OutcomeNoActiveItems, nil
	}
	if err != nil {
		return nil, OutcomeFailed, err
	}
	logger.Info("item selected",
		logging.String(logging.FieldEventType, "item_selected"),
		logging.String(logging.FieldItemKey, item.Key),
		logging.Int64("post_count", item.PostCount),
	)
	return item, "", nil
}

func (c *Coordinator) notifyRunFailed(ctx context.Context, logger *slog.Logger, itemName, reason string, err error) {
	if notifyErr := c.notifier.NotifyRunFailed(ctx, itemName, reason, err); notifyErr != nil {
		logger.Warn("failure notification failed", logging.Error(notifyErr))
	}
}

func (c *Coordinator) notifySkipped(ctx context.Context, logger *slog.Logger, reason string) {
	if notifyErr := c.notifier.NotifySkipped(ctx, reason); notifyErr != nil {
		logger.Warn("skip notification failed", logging.Error(notifyErr))
	}
}

// finish stamps the duration, appends the journal line, and emits the final
// run log event. Journal problems degrade to a warning so the run's outcome
// still reaches the caller.
func (c *Coordinator) finish(logger *slog.Logger, result *RunResult, started time.Time) {
	result.Duration = time.Since(started)

	entry := runlog.Entry{
		Timestamp: time.Now().UTC(),
		RunID:     result.RunID,
		Outcome:   string(result.Outcome),
	}
	if result.Item != nil {
		entry.ItemKey = result.Item.Key
	}
	if result.Attempt != nil {
		entry.Status = string(result.Attempt.Status)
		entry.Reason = string(result.Attempt.FailureReason)
	}
	if err := c.journal.Append(entry); err != nil {
		logger.Warn("failed to append run journal", logging.Error(err))
	}

	attrs := []any{
		logging.String(logging.FieldEventType, "run_finished"),
		logging.String("outcome", string(result.Outcome)),
		logging.Duration("duration", result.Duration),
	}
	if result.Err != nil {
		attrs = append(attrs, logging.Error(result.Err))
		logger.Warn("run finished", attrs...)
		return
	}
	logger.Info("run finished", attrs...)
}

func failureReason(attempt *catalog.Attempt) string {
	if attempt == nil {
		return string(catalog.ReasonUnexpected)
	}
	return string(attempt.FailureReason)
}
