package credentials

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"

	"vitrine/internal/config"
	"vitrine/internal/services"
)

// Refresher exchanges a refresh token for a replacement credential record.
type Refresher interface {
	RefreshToken(ctx context.Context, refreshToken string) (Record, error)
}

// TokenStore persists the singleton credential record.
type TokenStore interface {
	Load(ctx context.Context) (Record, error)
	Save(ctx context.Context, record Record) error
}

// ManagerOption customises Manager construction.
type ManagerOption func(*Manager)

// WithClock overrides the time source, used in tests.
func WithClock(now func() time.Time) ManagerOption {
	return func(m *Manager) {
		m.now = now
	}
}

// Manager keeps the access token valid across unattended runs. It caches the
// stored record, refreshes it inside the configured margin before expiry, and
// persists the replacement before handing the new token out.
type Manager struct {
	store       TokenStore
	refresher   Refresher
	margin      time.Duration
	maxAttempts int
	staticToken string
	now         func() time.Time

	stateMu sync.RWMutex
	record  Record
	loaded  bool
}

// NewManager builds a Manager using the provided configuration. A static
// access token in the config bypasses the stored record entirely.
func NewManager(cfg *config.Config, store TokenStore, refresher Refresher, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:       store,
		refresher:   refresher,
		margin:      cfg.RefreshMargin(),
		maxAttempts: cfg.Retry.RefreshAttempts,
		staticToken: cfg.API.AccessToken,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// EnsureValid returns an access token usable for the remainder of the run,
// refreshing the stored record first when it is near expiry or expired.
// Failure means no valid credentials exist and the run must not publish.
func (m *Manager) EnsureValid(ctx context.Context) (string, error) {
	if m.staticToken != "" {
		return m.staticToken, nil
	}
	if token, ok := m.cachedToken(); ok {
		return token, nil
	}
	return m.refresh(ctx)
}

func (m *Manager) cachedToken() (string, bool) {
	m.stateMu.RLock()
	defer m.stateMu.RUnlock()

	if m.loaded && EvaluateState(m.record, m.now(), m.margin) == StateValid {
		return m.record.AccessToken, true
	}
	return "", false
}

func (m *Manager) refresh(ctx context.Context) (string, error) {
	m.stateMu.Lock()
	defer m.stateMu.Unlock()

	if err := m.loadLocked(ctx); err != nil {
		return "", err
	}
	if EvaluateState(m.record, m.now(), m.margin) == StateValid {
		return m.record.AccessToken, nil
	}
	if strings.TrimSpace(m.record.RefreshToken) == "" {
		return "", services.Wrap(services.ErrAuth, "credentials", "refresh", "no refresh token linked (run 'vitrine auth url' to authorize)", nil)
	}

	refreshToken := m.record.RefreshToken
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.MaxInterval = 5 * time.Second

	refreshed, err := backoff.Retry(ctx, func() (Record, error) {
		record, err := m.refresher.RefreshToken(ctx, refreshToken)
		if err != nil {
			if errors.Is(err, services.ErrAuth) {
				return Record{}, backoff.Permanent(err)
			}
			return Record{}, err
		}
		return record, nil
	}, backoff.WithBackOff(policy), backoff.WithMaxTries(uint(m.maxAttempts)))
	if err != nil {
		return "", services.Wrap(services.ErrAuth, "credentials", "refresh", "token refresh failed", err)
	}

	if strings.TrimSpace(refreshed.AccessToken) == "" {
		return "", services.Wrap(services.ErrAuth, "credentials", "refresh", "refresh returned an empty access token", nil)
	}
	if strings.TrimSpace(refreshed.RefreshToken) == "" {
		refreshed.RefreshToken = refreshToken
	}
	refreshed.UpdatedAt = m.now().UTC()

	if err := m.store.Save(ctx, refreshed); err != nil {
		return "", services.Wrap(services.ErrAuth, "credentials", "persist", "save refreshed credentials", err)
	}
	m.record = refreshed
	return refreshed.AccessToken, nil
}

func (m *Manager) loadLocked(ctx context.Context) error {
	if m.loaded {
		return nil
	}
	record, err := m.store.Load(ctx)
	if err != nil {
		return services.Wrap(services.ErrAuth, "credentials", "load", "read credential record", err)
	}
	m.record = record
	m.loaded = true
	return nil
}

// Inspect reports the stored record and its lifecycle state without
// triggering a refresh.
func (m *Manager) Inspect(ctx context.Context) (Record, State, error) {
	if m.staticToken != "" {
		return Record{AccessToken: m.staticToken}, StateValid, nil
	}

	m.stateMu.Lock()
	defer m.stateMu.Unlock()

	if err := m.loadLocked(ctx); err != nil {
		return Record{}, StateInvalid, err
	}
	return m.record, EvaluateState(m.record, m.now(), m.margin), nil
}

// Replace stores a freshly authorized record, discarding any previous one.
func (m *Manager) Replace(ctx context.Context, record Record) error {
	if strings.TrimSpace(record.AccessToken) == "" {
		return services.Wrap(services.ErrAuth, "credentials", "store", "authorization returned an empty access token", nil)
	}

	m.stateMu.Lock()
	defer m.stateMu.Unlock()

	record.UpdatedAt = m.now().UTC()
	if err := m.store.Save(ctx, record); err != nil {
		return services.Wrap(services.ErrAuth, "credentials", "persist", "save credentials", err)
	}
	m.record = record
	m.loaded = true
	return nil
}
