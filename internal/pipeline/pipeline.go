// Package pipeline drives one catalog item from selection to a terminal
// post attempt status: pending, uploading, awaiting_confirmation, then
// published or failed. Failures finalize the attempt with a reason instead
// of propagating; rotation stats move only on a confirmed publish.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/cenkalti/backoff/v5"

	"vitrine/internal/catalog"
	"vitrine/internal/compose"
	"vitrine/internal/config"
	"vitrine/internal/logging"
	"vitrine/internal/services"
	"vitrine/internal/services/contentapi"
	"vitrine/internal/services/imagehost"
)

var errStillProcessing = errors.New("remote publish still processing")

// Options adjusts a single pipeline execution.
type Options struct {
	// AccessToken authenticates the publish and confirmation calls.
	AccessToken string
	// DryRun composes the post but performs no remote calls and writes
	// nothing to the store.
	DryRun bool
}

// Pipeline executes the publish state machine for single items. All store
// mutations for one execution share a run transaction committed only after
// the attempt reaches a terminal status.
type Pipeline struct {
	store     *catalog.Store
	composer  *compose.Composer
	hoster    imagehost.Hoster
	publisher contentapi.Publisher
	logger    *slog.Logger

	hostAttempts   int
	initAttempts   int
	pollInterval   time.Duration
	confirmTimeout time.Duration
}

// New builds a Pipeline from the retry section of the configuration.
func New(cfg *config.Config, store *catalog.Store, composer *compose.Composer, hoster imagehost.Hoster, publisher contentapi.Publisher, logger *slog.Logger) *Pipeline {
	return &Pipeline{
		store:          store,
		composer:       composer,
		hoster:         hoster,
		publisher:      publisher,
		logger:         logging.NewComponentLogger(logger, "pipeline"),
		hostAttempts:   cfg.Retry.HostAttempts,
		initAttempts:   cfg.Retry.InitAttempts,
		pollInterval:   cfg.PollInterval(),
		confirmTimeout: cfg.ConfirmTimeout(),
	}
}

// Execute publishes one item and returns its finalized attempt. A non-nil
// error describes why the attempt failed; the attempt row is still persisted
// with its failure reason so the audit trail stays complete. Dry runs return
// an unpersisted attempt carrying the composed text.
func (p *Pipeline) Execute(ctx context.Context, item *catalog.Item, opts Options) (*catalog.Attempt, error) {
	if item == nil || strings.TrimSpace(item.Key) == "" {
		return nil, services.Wrap(services.ErrValidation, "pipeline", "execute", "item is required", nil)
	}
	logger := logging.WithContext(ctx, p.logger)
	if services.ItemKey(ctx) == "" {
		logger = logger.With(logging.String(logging.FieldItemKey, item.Key))
	}

	if opts.DryRun {
		return p.dryRun(item, logger)
	}

	// The transaction must outlive the run budget so a timeout can still
	// finalize the attempt row before commit.
	txCtx := context.WithoutCancel(ctx)
	runTx, err := p.store.BeginRun(txCtx)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "pipeline", "begin", "open run transaction", err)
	}
	defer func() { _ = runTx.Rollback() }()

	previous, err := runTx.LatestAttemptForItem(txCtx, item.Key)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "pipeline", "reconcile", "load latest attempt", err)
	}
	if prior := reconcilable(previous); prior != nil {
		done, attempt, err := p.resumeConfirmation(ctx, txCtx, runTx, logger, prior, opts.AccessToken)
		if done {
			return attempt, err
		}
	}

	attempt := &catalog.Attempt{ItemKey: item.Key, Status: catalog.StatusPending}
	if err := runTx.InsertAttempt(txCtx, attempt); err != nil {
		return nil, services.Wrap(services.ErrTransient, "pipeline", "record", "insert post attempt", err)
	}
	logger = logger.With(logging.Int64(logging.FieldAttemptID, attempt.ID))
	logger.Info("publish attempt started", logging.String(logging.FieldEventType, "attempt_start"))

	text, err := p.composer.Compose(item)
	if err != nil {
		return p.fail(txCtx, runTx, logger, attempt, err, "")
	}
	attempt.PostText = text
	if err := runTx.UpdateAttempt(txCtx, attempt); err != nil {
		return attempt, services.Wrap(services.ErrTransient, "pipeline", "record", "persist composed text", err)
	}
	logger.Debug("post text composed", logging.Int("text_chars", utf8.RuneCountInString(text)))

	mediaRef := strings.TrimSpace(item.MediaRef)
	if mediaRef == "" {
		return p.fail(txCtx, runTx, logger, attempt,
			services.Wrap(services.ErrHosting, "pipeline", "host", "item has no media reference", nil), "")
	}
	hostStart := time.Now()
	mediaURL, err := p.host(ctx, mediaRef)
	if err != nil {
		return p.fail(txCtx, runTx, logger, attempt, err, "")
	}
	attempt.MediaURL = mediaURL
	attempt.Status = catalog.StatusUploading
	if err := runTx.UpdateAttempt(txCtx, attempt); err != nil {
		return attempt, services.Wrap(services.ErrTransient, "pipeline", "record", "persist hosted media", err)
	}
	logger.Info("media hosted",
		logging.String(logging.FieldStage, "hosting"),
		logging.String("media_url", mediaURL),
		logging.Duration("duration", time.Since(hostStart)),
	)

	publishID, err := p.initPublish(ctx, opts.AccessToken, contentapi.Post{Text: text, MediaURL: mediaURL})
	if err != nil {
		return p.fail(txCtx, runTx, logger, attempt, err, catalog.ReasonPublishInitFailed)
	}
	attempt.PublishID = publishID
	attempt.Status = catalog.StatusAwaitingConfirmation
	if err := runTx.UpdateAttempt(txCtx, attempt); err != nil {
		return attempt, services.Wrap(services.ErrTransient, "pipeline", "record", "persist publish id", err)
	}
	logger.Info("publish initialized",
		logging.String(logging.FieldStage, "init"),
		logging.String("publish_id", publishID),
	)

	confirmation, err := p.confirm(ctx, opts.AccessToken, publishID)
	if err != nil {
		return p.fail(txCtx, runTx, logger, attempt, err, catalog.ReasonConfirmationTimeout)
	}
	if confirmation.State == contentapi.RemoteRejected {
		rejection := services.Wrap(services.ErrRemote, "pipeline", "confirm",
			fmt.Sprintf("remote rejected publish: %s", confirmation.FailReason), nil)
		return p.fail(txCtx, runTx, logger, attempt, rejection, catalog.ReasonRemoteRejected)
	}

	return p.finalizePublished(txCtx, runTx, logger, attempt)
}

func (p *Pipeline) dryRun(item *catalog.Item, logger *slog.Logger) (*catalog.Attempt, error) {
	text, err := p.composer.Compose(item)
	if err != nil {
		return nil, err
	}
	if strings.TrimSpace(item.MediaRef) == "" {
		logger.Warn("item has no media reference, a real run would fail",
			logging.String(logging.FieldEventType, "dry_run"),
			logging.String(logging.FieldErrorHint, "set image_url for this item in the catalog"),
		)
	}
	logger.Info("dry run: composed post",
		logging.String(logging.FieldEventType, "dry_run"),
		logging.Int("text_chars", utf8.RuneCountInString(text)),
	)
	return &catalog.Attempt{ItemKey: item.Key, PostText: text, Status: catalog.StatusPending}, nil
}

// reconcilable returns the prior attempt when its publish outcome is still
// unknown: it holds a publish id and either sits in a non-terminal state or
// recorded a confirmation timeout. That id may have completed remotely, so
// it must be checked before a fresh publish risks a duplicate post.
func reconcilable(previous *catalog.Attempt) *catalog.Attempt {
	if previous == nil || strings.TrimSpace(previous.PublishID) == "" {
		return nil
	}
	if !previous.Status.Terminal() {
		return previous
	}
	if previous.Status == catalog.StatusFailed && previous.FailureReason == catalog.ReasonConfirmationTimeout {
		return previous
	}
	return nil
}

// resumeConfirmation probes the prior publish id once. A definitive remote
// rejection clears the way for a fresh publish (done=false). Anything else
// re-enters awaiting_confirmation on the old id and this run's attempt
// records the outcome.
func (p *Pipeline) resumeConfirmation(ctx, txCtx context.Context, runTx *catalog.RunTx, logger *slog.Logger, prior *catalog.Attempt, accessToken string) (bool, *catalog.Attempt, error) {
	probe, probeErr := p.publisher.ConfirmStatus(ctx, accessToken, prior.PublishID)
	if probeErr == nil && probe.State == contentapi.RemoteRejected {
		logger.Info("earlier publish was rejected remotely, publishing fresh",
			logging.String(logging.FieldEventType, "reconcile_rejected"),
			logging.String("publish_id", prior.PublishID),
		)
		return false, nil, nil
	}

	attempt := &catalog.Attempt{
		ItemKey:   prior.ItemKey,
		PostText:  prior.PostText,
		MediaURL:  prior.MediaURL,
		PublishID: prior.PublishID,
		Status:    catalog.StatusAwaitingConfirmation,
	}
	if err := runTx.InsertAttempt(txCtx, attempt); err != nil {
		return true, nil, services.Wrap(services.ErrTransient, "pipeline", "reconcile", "insert post attempt", err)
	}
	logger = logger.With(logging.Int64(logging.FieldAttemptID, attempt.ID))
	logger.Info("re-entering confirmation for earlier publish",
		logging.String(logging.FieldEventType, "reconcile_resume"),
		logging.String("publish_id", prior.PublishID),
	)

	if probeErr == nil && probe.State == contentapi.RemotePublished {
		recorded, err := p.finalizePublished(txCtx, runTx, logger, attempt)
		return true, recorded, err
	}

	confirmation, err := p.confirm(ctx, accessToken, prior.PublishID)
	if err != nil {
		failed, failErr := p.fail(txCtx, runTx, logger, attempt, err, catalog.ReasonConfirmationTimeout)
		return true, failed, failErr
	}
	if confirmation.State == contentapi.RemoteRejected {
		rejection := services.Wrap(services.ErrRemote, "pipeline", "confirm",
			fmt.Sprintf("remote rejected publish: %s", confirmation.FailReason), nil)
		failed, failErr := p.fail(txCtx, runTx, logger, attempt, rejection, catalog.ReasonRemoteRejected)
		return true, failed, failErr
	}

	published, err := p.finalizePublished(txCtx, runTx, logger, attempt)
	return true, published, err
}

func (p *Pipeline) host(ctx context.Context, mediaRef string) (string, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.MaxInterval = 5 * time.Second

	return backoff.Retry(ctx, func() (string, error) {
		return p.hoster.Host(ctx, mediaRef)
	}, backoff.WithBackOff(policy), backoff.WithMaxTries(uint(p.hostAttempts)))
}

func (p *Pipeline) initPublish(ctx context.Context, accessToken string, post contentapi.Post) (string, error) {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.MaxInterval = 5 * time.Second

	return backoff.Retry(ctx, func() (string, error) {
		publishID, err := p.publisher.InitPublish(ctx, accessToken, post)
		if err != nil {
			if errors.Is(err, services.ErrAuth) || errors.Is(err, services.ErrValidation) {
				return "", backoff.Permanent(err)
			}
			return "", err
		}
		return publishID, nil
	}, backoff.WithBackOff(policy), backoff.WithMaxTries(uint(p.initAttempts)))
}

// confirm polls the remote status until it reports a terminal state or the
// confirmation budget runs out. Both terminal answers return with a nil
// error; exhaustion returns errStillProcessing or the last remote error.
func (p *Pipeline) confirm(ctx context.Context, accessToken, publishID string) (contentapi.Confirmation, error) {
	return backoff.Retry(ctx, func() (contentapi.Confirmation, error) {
		confirmation, err := p.publisher.ConfirmStatus(ctx, accessToken, publishID)
		if err != nil {
			return contentapi.Confirmation{}, err
		}
		if confirmation.State == contentapi.RemoteProcessing {
			return contentapi.Confirmation{}, errStillProcessing
		}
		return confirmation, nil
	}, backoff.WithBackOff(backoff.NewConstantBackOff(p.pollInterval)), backoff.WithMaxElapsedTime(p.confirmTimeout))
}

func (p *Pipeline) finalizePublished(ctx context.Context, runTx *catalog.RunTx, logger *slog.Logger, attempt *catalog.Attempt) (*catalog.Attempt, error) {
	attempt.SetPublished()
	if err := runTx.UpdateAttempt(ctx, attempt); err != nil {
		return attempt, services.Wrap(services.ErrTransient, "pipeline", "record", "persist published attempt", err)
	}
	if err := runTx.BumpRotation(ctx, attempt.ItemKey, time.Now().UTC()); err != nil {
		return attempt, services.Wrap(services.ErrTransient, "pipeline", "record", "update rotation stats", err)
	}
	if err := runTx.Commit(); err != nil {
		return attempt, services.Wrap(services.ErrTransient, "pipeline", "record", "commit run transaction", err)
	}
	logger.Info("item published",
		logging.String(logging.FieldEventType, "published"),
		logging.String("publish_id", attempt.PublishID),
	)
	return attempt, nil
}

// fail finalizes the attempt with a failure reason and commits the run
// transaction so the audit row survives. The stage error passes through to
// the caller for the run result.
func (p *Pipeline) fail(ctx context.Context, runTx *catalog.RunTx, logger *slog.Logger, attempt *catalog.Attempt, stageErr error, fallback catalog.FailureReason) (*catalog.Attempt, error) {
	reason := fallback
	if reason == "" || errors.Is(stageErr, context.DeadlineExceeded) || errors.Is(stageErr, services.ErrTimeout) {
		reason = services.FailureReasonFor(stageErr)
	}
	attempt.SetFailed(reason, stageErr.Error())
	if err := runTx.UpdateAttempt(ctx, attempt); err != nil {
		logger.Error("failed to persist attempt failure", logging.Error(err))
		return attempt, stageErr
	}
	if err := runTx.Commit(); err != nil {
		logger.Error("failed to commit attempt failure", logging.Error(err))
		return attempt, stageErr
	}
	logger.Warn("publish attempt failed",
		logging.String(logging.FieldEventType, "attempt_failed"),
		logging.String("failure_reason", string(reason)),
		logging.Error(stageErr),
	)
	return attempt, stageErr
}
