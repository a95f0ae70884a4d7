// Package config loads, normalizes, and validates Vitrine configuration data.
//
// It layers the user's TOML file over built-in defaults, expands tilde and
// relative paths, and falls back to environment variables such as
// VITRINE_CLIENT_KEY for secrets. The Config type centralizes every knob the
// CLI needs, so the catalog database location, platform credentials, and
// retry budgets are discovered in one pass.
//
// Downstream code should always go through this package; it then sees
// sanitized paths, canonical privacy levels, and clear validation errors.
package config
