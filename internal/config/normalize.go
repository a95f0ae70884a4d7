package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeAPI()
	c.normalizeImageHost()
	c.normalizeRotation()
	c.normalizeNotifications()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}

	if strings.TrimSpace(c.Paths.Database) == "" {
		c.Paths.Database = filepath.Join(c.Paths.DataDir, defaultDatabaseFile)
	}
	if c.Paths.Database, err = expandPath(c.Paths.Database); err != nil {
		return fmt.Errorf("paths.database: %w", err)
	}

	if strings.TrimSpace(c.Paths.LockFile) == "" {
		c.Paths.LockFile = filepath.Join(c.Paths.DataDir, defaultLockFileName)
	}
	if c.Paths.LockFile, err = expandPath(c.Paths.LockFile); err != nil {
		return fmt.Errorf("paths.lock_file: %w", err)
	}

	if strings.TrimSpace(c.Paths.RunLog) == "" {
		c.Paths.RunLog = filepath.Join(c.Paths.DataDir, defaultRunLogFile)
	}
	if c.Paths.RunLog, err = expandPath(c.Paths.RunLog); err != nil {
		return fmt.Errorf("paths.run_log: %w", err)
	}

	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = filepath.Join(c.Paths.DataDir, "logs")
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeAPI() {
	if c.API.ClientKey == "" {
		if value, ok := os.LookupEnv("VITRINE_CLIENT_KEY"); ok {
			c.API.ClientKey = value
		}
	}
	if c.API.ClientSecret == "" {
		if value, ok := os.LookupEnv("VITRINE_CLIENT_SECRET"); ok {
			c.API.ClientSecret = value
		}
	}
	if c.API.AccessToken == "" {
		if value, ok := os.LookupEnv("VITRINE_ACCESS_TOKEN"); ok {
			c.API.AccessToken = value
		}
	}
	c.API.ClientKey = strings.TrimSpace(c.API.ClientKey)
	c.API.ClientSecret = strings.TrimSpace(c.API.ClientSecret)
	c.API.AccessToken = strings.TrimSpace(c.API.AccessToken)
	c.API.RedirectURI = strings.TrimSpace(c.API.RedirectURI)

	c.API.BaseURL = strings.TrimRight(strings.TrimSpace(c.API.BaseURL), "/")
	if c.API.BaseURL == "" {
		c.API.BaseURL = defaultAPIBaseURL
	}
	c.API.AuthBaseURL = strings.TrimRight(strings.TrimSpace(c.API.AuthBaseURL), "/")
	if c.API.AuthBaseURL == "" {
		c.API.AuthBaseURL = defaultAuthBaseURL
	}

	c.API.PrivacyLevel = strings.ToUpper(strings.TrimSpace(c.API.PrivacyLevel))
	if c.API.PrivacyLevel == "" {
		c.API.PrivacyLevel = defaultPrivacyLevel
	}

	c.API.Scopes = dedupeStrings(c.API.Scopes, strings.ToLower)
	if len(c.API.Scopes) == 0 {
		c.API.Scopes = defaultScopes()
	}
}

func (c *Config) normalizeImageHost() {
	if c.ImageHost.APIKey == "" {
		if value, ok := os.LookupEnv("VITRINE_IMAGE_HOST_KEY"); ok {
			c.ImageHost.APIKey = value
		}
	}
	c.ImageHost.APIKey = strings.TrimSpace(c.ImageHost.APIKey)

	c.ImageHost.BaseURL = strings.TrimRight(strings.TrimSpace(c.ImageHost.BaseURL), "/")
	if c.ImageHost.BaseURL == "" {
		c.ImageHost.BaseURL = defaultImageHostURL
	}

	exts := dedupeStrings(c.ImageHost.AllowedExtensions, func(ext string) string {
		ext = strings.ToLower(ext)
		if !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		return ext
	})
	if len(exts) == 0 {
		exts = defaultAllowedExtensions()
	}
	c.ImageHost.AllowedExtensions = exts
}

func (c *Config) normalizeRotation() {
	c.Rotation.PriceLocale = strings.TrimSpace(c.Rotation.PriceLocale)
	if c.Rotation.PriceLocale == "" {
		c.Rotation.PriceLocale = defaultPriceLocale
	}
	c.Rotation.TextTemplate = strings.TrimSpace(c.Rotation.TextTemplate)
	c.Rotation.Hashtags = dedupeStrings(c.Rotation.Hashtags, func(tag string) string {
		return strings.TrimPrefix(tag, "#")
	})
}

func (c *Config) normalizeNotifications() {
	c.Notifications.NtfyTopic = strings.TrimSpace(c.Notifications.NtfyTopic)
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func dedupeStrings(values []string, canonicalize func(string) string) []string {
	result := make([]string, 0, len(values))
	seen := make(map[string]struct{}, len(values))
	for _, value := range values {
		normalized := strings.TrimSpace(value)
		if canonicalize != nil {
			normalized = canonicalize(normalized)
		}
		if normalized == "" {
			continue
		}
		if _, exists := seen[normalized]; exists {
			continue
		}
		seen[normalized] = struct{}{}
		result = append(result, normalized)
	}
	return result
}
