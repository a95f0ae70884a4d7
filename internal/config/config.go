package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleTOML string

// Paths contains data file locations.
type Paths struct {
	DataDir  string `toml:"data_dir"`
	Database string `toml:"database"`
	LockFile string `toml:"lock_file"`
	RunLog   string `toml:"run_log"`
	LogDir   string `toml:"log_dir"`
}

// API contains the content platform connection settings.
type API struct {
	BaseURL         string   `toml:"base_url"`
	AuthBaseURL     string   `toml:"auth_base_url"`
	ClientKey       string   `toml:"client_key"`
	ClientSecret    string   `toml:"client_secret"`
	RedirectURI     string   `toml:"redirect_uri"`
	Scopes          []string `toml:"scopes"`
	AccessToken     string   `toml:"access_token"`
	PrivacyLevel    string   `toml:"privacy_level"`
	DisableComments bool     `toml:"disable_comments"`
	AutoAddMusic    bool     `toml:"auto_add_music"`
	RequestTimeout  int      `toml:"request_timeout"`
}

// ImageHost contains the media hosting collaborator settings.
type ImageHost struct {
	BaseURL           string   `toml:"base_url"`
	APIKey            string   `toml:"api_key"`
	MaxUploadMB       int      `toml:"max_upload_mb"`
	AllowedExtensions []string `toml:"allowed_extensions"`
	RequestTimeout    int      `toml:"request_timeout"`
}

// Rotation contains post composition settings.
type Rotation struct {
	Hashtags     []string `toml:"hashtags"`
	TextTemplate string   `toml:"text_template"`
	PriceLocale  string   `toml:"price_locale"`
}

// Retry contains retry budgets and timing for the publish pipeline. All
// interval fields are seconds.
type Retry struct {
	HostAttempts    int `toml:"host_attempts"`
	InitAttempts    int `toml:"init_attempts"`
	PollInterval    int `toml:"poll_interval"`
	ConfirmTimeout  int `toml:"confirm_timeout"`
	RunBudget       int `toml:"run_budget"`
	RefreshMargin   int `toml:"refresh_margin"`
	RefreshAttempts int `toml:"refresh_attempts"`
}

// Notifications contains ntfy push notification settings.
type Notifications struct {
	NtfyTopic      string `toml:"ntfy_topic"`
	RequestTimeout int    `toml:"request_timeout"`
	Publishes      bool   `toml:"publishes"`
	Errors         bool   `toml:"errors"`
}

// Logging contains log output settings.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for Vitrine.
//
// Configuration sections by subsystem:
//   - Paths: data directory, catalog database, lock file, run log
//   - API: content platform credentials and publish options
//   - ImageHost: media hosting upload settings
//   - Rotation: post text template, hashtags, price locale
//   - Retry: pipeline retry budgets and the run wall-clock budget
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	API           API           `toml:"api"`
	ImageHost     ImageHost     `toml:"image_host"`
	Rotation      Rotation      `toml:"rotation"`
	Retry         Retry         `toml:"retry"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns where Vitrine looks for its configuration when
// no explicit path is given.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/vitrine/config.toml")
}

// Load reads the configuration at path (or the default location when path is
// empty), fills in defaults, and validates the result. The returned config
// has every path field expanded and normalized. The bool reports whether a
// file was actually read.
func Load(path string) (*Config, string, bool, error) {
	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	cfg := Default()
	if exists {
		raw, err := os.ReadFile(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("read config: %w", err)
		}
		if err := toml.Unmarshal(raw, &cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}
	return &cfg, resolvedPath, exists, nil
}

// resolveConfigPath decides which file Load reads. An explicit path wins
// even when it does not exist yet; otherwise the default location is probed,
// then a vitrine.toml next to the working directory.
func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		switch _, err := os.Stat(expanded); {
		case err == nil:
			return expanded, true, nil
		case errors.Is(err, fs.ErrNotExist):
			return expanded, false, nil
		default:
			return "", false, fmt.Errorf("stat config: %w", err)
		}
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}
	if fileExists(defaultPath) {
		return defaultPath, true, nil
	}
	if projectPath, err := filepath.Abs("vitrine.toml"); err == nil && fileExists(projectPath) {
		return projectPath, true, nil
	}
	return defaultPath, false, nil
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

// EnsureDirectories creates the directories backing the configured paths.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.Paths.DataDir,
		c.Paths.LogDir,
		filepath.Dir(c.Paths.Database),
		filepath.Dir(c.Paths.LockFile),
		filepath.Dir(c.Paths.RunLog),
	}
	for _, dir := range dirs {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %s: %w", dir, err)
		}
	}
	return nil
}

// PollInterval returns the confirmation poll interval.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Retry.PollInterval) * time.Second
}

// ConfirmTimeout returns how long confirmation polling may run before the
// attempt is finalized as a local timeout.
func (c *Config) ConfirmTimeout() time.Duration {
	return time.Duration(c.Retry.ConfirmTimeout) * time.Second
}

// RunBudget returns the wall-clock budget for a whole run.
func (c *Config) RunBudget() time.Duration {
	return time.Duration(c.Retry.RunBudget) * time.Second
}

// RefreshMargin returns the credential safety window before expiry.
func (c *Config) RefreshMargin() time.Duration {
	return time.Duration(c.Retry.RefreshMargin) * time.Second
}

// APIRequestTimeout returns the per-request timeout for content API calls.
func (c *Config) APIRequestTimeout() time.Duration {
	return time.Duration(c.API.RequestTimeout) * time.Second
}

// ImageHostRequestTimeout returns the per-request timeout for media uploads.
func (c *Config) ImageHostRequestTimeout() time.Duration {
	return time.Duration(c.ImageHost.RequestTimeout) * time.Second
}

// NotifyRequestTimeout returns the per-request timeout for notifications.
func (c *Config) NotifyRequestTimeout() time.Duration {
	return time.Duration(c.Notifications.RequestTimeout) * time.Second
}

// MaxUploadBytes returns the media upload size cap in bytes.
func (c *Config) MaxUploadBytes() int64 {
	return int64(c.ImageHost.MaxUploadMB) * 1024 * 1024
}

// expandPath resolves a leading tilde against the home directory and makes
// the result absolute. A bare "~user" form passes through untouched.
func expandPath(raw string) (string, error) {
	if raw == "" {
		return "", nil
	}
	expanded := raw
	if raw == "~" || strings.HasPrefix(raw, "~/") || strings.HasPrefix(raw, `~\`) {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("locate home directory: %w", err)
		}
		expanded = filepath.Join(home, strings.TrimLeft(raw[1:], `/\`))
	}
	absolute, err := filepath.Abs(filepath.Clean(expanded))
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", expanded, err)
	}
	return absolute, nil
}

// ExpandPath applies the same tilde and relative-path handling Load uses, for
// callers that accept paths on the command line.
func ExpandPath(raw string) (string, error) {
	return expandPath(raw)
}

// CreateSample writes the embedded sample configuration to path, creating
// parent directories as needed.
func CreateSample(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(sampleTOML), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
