package testsupport

import (
	"path/filepath"
	"testing"

	"vitrine/internal/config"
)

// ConfigOption customizes the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig returns a runnable configuration rooted in a per-test temp
// directory, with placeholder credentials and any options applied.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	root := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(root, "data")
	cfg.Paths.Database = filepath.Join(root, "data", "catalog.db")
	cfg.Paths.LockFile = filepath.Join(root, "data", "vitrine.lock")
	cfg.Paths.RunLog = filepath.Join(root, "data", "runs.log")
	cfg.Paths.LogDir = filepath.Join(root, "logs")
	cfg.API.ClientKey = "test-client-key"
	cfg.API.ClientSecret = "test-client-secret"
	cfg.ImageHost.APIKey = "test-image-key"

	for _, opt := range opts {
		opt(&cfg)
	}

	return &cfg
}

// WithStaticToken sets the access token override on the test config.
func WithStaticToken(token string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.API.AccessToken = token
	}
}

// WithNtfyTopic enables push notifications on the test config.
func WithNtfyTopic(topic string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Notifications.NtfyTopic = topic
	}
}
