package config

const (
	defaultStateDir           = "~/.local/share/coursewatch"
	defaultLogDir             = "~/.local/share/coursewatch/logs"
	defaultSourceURL          = "https://www.udemy.com/courses/free/"
	defaultAPIURL             = "https://www.udemy.com/api-2.0/courses/?price=price-free&category=Development"
	defaultCategory           = "Development"
	defaultPollIntervalHours  = 24
	defaultFetchTimeoutSec    = 60
	defaultMaxAttempts        = 3
	defaultBackoffBaseMS      = 500
	defaultBackoffMultiplier  = 2.0
	defaultCycleBudgetMinutes = 15
	defaultDegradedThreshold  = 3
	defaultRecoveryThreshold  = 5
	defaultBrowserHeadless    = true
	defaultNavTimeoutSec      = 45
	defaultSMTPServer         = "smtp.gmail.com"
	defaultSMTPPort           = 587
	defaultEmailTimeoutSec    = 30
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultLogRetentionDays   = 30
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
			LogDir:   defaultLogDir,
		},
		Catalog: Catalog{
			SourceURL: defaultSourceURL,
			APIURL:    defaultAPIURL,
			Category:  defaultCategory,
		},
		Monitor: Monitor{
			PollIntervalHours:  defaultPollIntervalHours,
			FetchTimeoutSec:    defaultFetchTimeoutSec,
			MaxAttempts:        defaultMaxAttempts,
			BackoffBaseMS:      defaultBackoffBaseMS,
			BackoffMultiplier:  defaultBackoffMultiplier,
			CycleBudgetMinutes: defaultCycleBudgetMinutes,
			DegradedThreshold:  defaultDegradedThreshold,
			RecoveryThreshold:  defaultRecoveryThreshold,
		},
		Browser: Browser{
			Enabled:       true,
			Headless:      defaultBrowserHeadless,
			NavTimeoutSec: defaultNavTimeoutSec,
		},
		Email: Email{
			SMTPServer: defaultSMTPServer,
			SMTPPort:   defaultSMTPPort,
			TimeoutSec: defaultEmailTimeoutSec,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
