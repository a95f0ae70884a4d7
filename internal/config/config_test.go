package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vitrine/internal/config"
)

func clearSecretEnv(t *testing.T) {
	t.Helper()
	t.Setenv("VITRINE_CLIENT_KEY", "")
	t.Setenv("VITRINE_CLIENT_SECRET", "")
	t.Setenv("VITRINE_ACCESS_TOKEN", "")
	t.Setenv("VITRINE_IMAGE_HOST_KEY", "")
}

func setSecretEnv(t *testing.T) {
	t.Helper()
	t.Setenv("VITRINE_CLIENT_KEY", "env-client-key")
	t.Setenv("VITRINE_CLIENT_SECRET", "env-client-secret")
	t.Setenv("VITRINE_ACCESS_TOKEN", "")
	t.Setenv("VITRINE_IMAGE_HOST_KEY", "env-image-key")
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	setSecretEnv(t)

	path := filepath.Join(t.TempDir(), "absent.toml")
	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if exists {
		t.Fatalf("expected missing file, got exists for %s", resolved)
	}
	if cfg.API.PrivacyLevel != "SELF_ONLY" {
		t.Fatalf("unexpected default privacy level %q", cfg.API.PrivacyLevel)
	}
	if cfg.Retry.PollInterval != 5 || cfg.Retry.ConfirmTimeout != 120 {
		t.Fatalf("unexpected retry defaults: %+v", cfg.Retry)
	}
	if cfg.API.ClientKey != "env-client-key" {
		t.Fatalf("env fallback not applied: %q", cfg.API.ClientKey)
	}
}

func TestLoadParsesFileAndExpandsPaths(t *testing.T) {
	setSecretEnv(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "vitrine.toml")
	content := `
[paths]
data_dir = "` + dir + `/data"

[api]
client_key = "file-key"
client_secret = "file-secret"
privacy_level = "public_to_everyone"

[rotation]
hashtags = ["#craft", "craft", " handmade "]
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !exists {
		t.Fatal("expected file to be found")
	}
	if cfg.API.ClientKey != "file-key" {
		t.Fatalf("file value not applied: %q", cfg.API.ClientKey)
	}
	if cfg.API.PrivacyLevel != "PUBLIC_TO_EVERYONE" {
		t.Fatalf("privacy level not canonicalized: %q", cfg.API.PrivacyLevel)
	}
	if !filepath.IsAbs(cfg.Paths.Database) {
		t.Fatalf("database path not absolute: %q", cfg.Paths.Database)
	}
	if filepath.Dir(cfg.Paths.Database) != filepath.Join(dir, "data") {
		t.Fatalf("database not derived from data_dir: %q", cfg.Paths.Database)
	}
	if len(cfg.Rotation.Hashtags) != 2 {
		t.Fatalf("hashtags not deduped: %#v", cfg.Rotation.Hashtags)
	}
	if cfg.Rotation.Hashtags[0] != "craft" || cfg.Rotation.Hashtags[1] != "handmade" {
		t.Fatalf("hashtags not normalized: %#v", cfg.Rotation.Hashtags)
	}
}

func TestValidateRequiresClientKey(t *testing.T) {
	clearSecretEnv(t)
	t.Setenv("VITRINE_IMAGE_HOST_KEY", "image-key")

	path := filepath.Join(t.TempDir(), "absent.toml")
	_, _, _, err := config.Load(path)
	if err == nil {
		t.Fatal("expected validation error without credentials")
	}
	if !strings.Contains(err.Error(), "api.client_key") {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestStaticAccessTokenSkipsClientCredentials(t *testing.T) {
	clearSecretEnv(t)
	t.Setenv("VITRINE_ACCESS_TOKEN", "static-token")
	t.Setenv("VITRINE_IMAGE_HOST_KEY", "image-key")

	path := filepath.Join(t.TempDir(), "absent.toml")
	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.API.AccessToken != "static-token" {
		t.Fatalf("access token not applied: %q", cfg.API.AccessToken)
	}
}

func TestValidateRequiresImageHostKey(t *testing.T) {
	clearSecretEnv(t)
	t.Setenv("VITRINE_CLIENT_KEY", "k")
	t.Setenv("VITRINE_CLIENT_SECRET", "s")

	path := filepath.Join(t.TempDir(), "absent.toml")
	_, _, _, err := config.Load(path)
	if err == nil || !strings.Contains(err.Error(), "image_host.api_key") {
		t.Fatalf("expected image host key error, got %v", err)
	}
}

func TestValidateRejectsUnknownPrivacyLevel(t *testing.T) {
	setSecretEnv(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "vitrine.toml")
	content := `
[api]
privacy_level = "EVERYONE"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	_, _, _, err := config.Load(path)
	if err == nil || !strings.Contains(err.Error(), "privacy_level") {
		t.Fatalf("expected privacy level error, got %v", err)
	}
}

func TestValidateRejectsBadPriceLocale(t *testing.T) {
	setSecretEnv(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "vitrine.toml")
	content := `
[rotation]
price_locale = "not a locale"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	_, _, _, err := config.Load(path)
	if err == nil || !strings.Contains(err.Error(), "price_locale") {
		t.Fatalf("expected locale error, got %v", err)
	}
}

func TestCreateSampleProducesLoadableConfig(t *testing.T) {
	setSecretEnv(t)

	path := filepath.Join(t.TempDir(), "config.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load of sample failed: %v", err)
	}
	if !exists {
		t.Fatal("sample config not detected")
	}
	if cfg.ImageHost.MaxUploadMB != 10 {
		t.Fatalf("unexpected sample value: %d", cfg.ImageHost.MaxUploadMB)
	}
}

func TestEnsureDirectories(t *testing.T) {
	setSecretEnv(t)

	dir := t.TempDir()
	path := filepath.Join(dir, "vitrine.toml")
	content := `
[paths]
data_dir = "` + dir + `/nested/data"
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}
	info, err := os.Stat(cfg.Paths.DataDir)
	if err != nil || !info.IsDir() {
		t.Fatalf("data dir not created: %v", err)
	}
	info, err = os.Stat(cfg.Paths.LogDir)
	if err != nil || !info.IsDir() {
		t.Fatalf("log dir not created: %v", err)
	}
}
