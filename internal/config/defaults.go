package config

const (
	defaultDataDir         = "~/.local/share/vitrine"
	defaultLogDir          = "~/.local/share/vitrine/logs"
	defaultDatabaseFile    = "catalog.db"
	defaultLockFileName    = "vitrine.lock"
	defaultRunLogFile      = "runs.log"
	defaultAPIBaseURL      = "https://open.tiktokapis.com"
	defaultAuthBaseURL     = "https://www.tiktok.com"
	defaultPrivacyLevel    = "SELF_ONLY"
	defaultAPITimeout      = 30
	defaultImageHostURL    = "https://api.imgbb.com"
	defaultMaxUploadMB     = 10
	defaultUploadTimeout   = 60
	defaultPriceLocale     = "ja"
	defaultHostAttempts    = 3
	defaultInitAttempts    = 3
	defaultPollInterval    = 5
	defaultConfirmTimeout  = 120
	defaultRunBudget       = 300
	defaultRefreshMargin   = 3600
	defaultRefreshAttempts = 3
	defaultNotifyTimeout   = 10
	defaultLogFormat       = "console"
	defaultLogLevel        = "info"
)

func defaultScopes() []string {
	return []string{"user.info.basic", "video.publish"}
}

func defaultAllowedExtensions() []string {
	return []string{".jpg", ".jpeg", ".png", ".gif", ".webp"}
}

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir: defaultDataDir,
			LogDir:  defaultLogDir,
		},
		API: API{
			BaseURL:        defaultAPIBaseURL,
			AuthBaseURL:    defaultAuthBaseURL,
			Scopes:         defaultScopes(),
			PrivacyLevel:   defaultPrivacyLevel,
			AutoAddMusic:   true,
			RequestTimeout: defaultAPITimeout,
		},
		ImageHost: ImageHost{
			BaseURL:           defaultImageHostURL,
			MaxUploadMB:       defaultMaxUploadMB,
			AllowedExtensions: defaultAllowedExtensions(),
			RequestTimeout:    defaultUploadTimeout,
		},
		Rotation: Rotation{
			PriceLocale: defaultPriceLocale,
		},
		Retry: Retry{
			HostAttempts:    defaultHostAttempts,
			InitAttempts:    defaultInitAttempts,
			PollInterval:    defaultPollInterval,
			ConfirmTimeout:  defaultConfirmTimeout,
			RunBudget:       defaultRunBudget,
			RefreshMargin:   defaultRefreshMargin,
			RefreshAttempts: defaultRefreshAttempts,
		},
		Notifications: Notifications{
			RequestTimeout: defaultNotifyTimeout,
			Publishes:      true,
			Errors:         true,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
