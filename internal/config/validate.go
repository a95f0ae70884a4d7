package config

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

var allowedPrivacyLevels = map[string]struct{}{
	"PUBLIC_TO_EVERYONE":    {},
	"MUTUAL_FOLLOW_FRIENDS": {},
	"FOLLOWER_OF_CREATOR":   {},
	"SELF_ONLY":             {},
}

// Validate checks that the configuration can drive a run.
func (c *Config) Validate() error {
	if err := c.validateAPI(); err != nil {
		return err
	}
	if err := c.validateImageHost(); err != nil {
		return err
	}
	if err := c.validateRotation(); err != nil {
		return err
	}
	if err := c.validateRetry(); err != nil {
		return err
	}
	if err := c.validateNotifications(); err != nil {
		return err
	}
	return c.validateLogging()
}

func (c *Config) validateAPI() error {
	if c.API.AccessToken == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/vitrine/config.toml"
		}
		if c.API.ClientKey == "" {
			return fmt.Errorf("api.client_key is required. Set VITRINE_CLIENT_KEY env var or edit %s (create with 'vitrine config init')", defaultPath)
		}
		if c.API.ClientSecret == "" {
			return fmt.Errorf("api.client_secret is required. Set VITRINE_CLIENT_SECRET env var or edit %s", defaultPath)
		}
	}
	if _, ok := allowedPrivacyLevels[c.API.PrivacyLevel]; !ok {
		return fmt.Errorf("api.privacy_level %q is not recognized", c.API.PrivacyLevel)
	}
	return nil
}

func (c *Config) validateImageHost() error {
	if c.ImageHost.APIKey == "" {
		defaultPath, err := DefaultConfigPath()
		if err != nil {
			defaultPath = "~/.config/vitrine/config.toml"
		}
		return fmt.Errorf("image_host.api_key is required. Set VITRINE_IMAGE_HOST_KEY env var or edit %s", defaultPath)
	}
	if c.ImageHost.MaxUploadMB <= 0 {
		return errors.New("image_host.max_upload_mb must be positive")
	}
	if len(c.ImageHost.AllowedExtensions) == 0 {
		return errors.New("image_host.allowed_extensions must not be empty")
	}
	return nil
}

func (c *Config) validateRotation() error {
	if _, err := language.Parse(c.Rotation.PriceLocale); err != nil {
		return fmt.Errorf("rotation.price_locale %q is not a valid language tag: %w", c.Rotation.PriceLocale, err)
	}
	return nil
}

func (c *Config) validateRetry() error {
	budgets := []struct {
		name  string
		value int
	}{
		{"retry.host_attempts", c.Retry.HostAttempts},
		{"retry.init_attempts", c.Retry.InitAttempts},
		{"retry.poll_interval", c.Retry.PollInterval},
		{"retry.confirm_timeout", c.Retry.ConfirmTimeout},
		{"retry.run_budget", c.Retry.RunBudget},
		{"retry.refresh_margin", c.Retry.RefreshMargin},
		{"retry.refresh_attempts", c.Retry.RefreshAttempts},
		{"api.request_timeout", c.API.RequestTimeout},
		{"image_host.request_timeout", c.ImageHost.RequestTimeout},
	}
	for _, budget := range budgets {
		if budget.value <= 0 {
			return fmt.Errorf("%s must be positive", budget.name)
		}
	}
	return nil
}

func (c *Config) validateNotifications() error {
	if c.Notifications.NtfyTopic != "" && c.Notifications.RequestTimeout <= 0 {
		return errors.New("notifications.request_timeout must be positive")
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format %q is not recognized (use console or json)", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not recognized", c.Logging.Level)
	}
	if strings.TrimSpace(c.Paths.Database) == "" {
		return errors.New("paths.database must be set")
	}
	return nil
}
