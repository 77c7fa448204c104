package config

import "strings"

// Defaults applied by Normalize.
const (
	DefaultIntervalSeconds  = 5
	DefaultRequestTimeoutMs = 10_000
	DefaultStopGraceMs      = 5_000
	DefaultMaxLogEntries    = 100
)

// Normalize applies post-validation normalization.
// It is allowed to mutate configuration.
// It MUST be called only after Validate().
func Normalize(cfg *Config) {
	if cfg == nil {
		return
	}

	// Tokens pasted from the web UI often carry whitespace
	cfg.ClickUp.APIToken = strings.TrimSpace(cfg.ClickUp.APIToken)
	cfg.ClickUp.TeamID = strings.TrimSpace(cfg.ClickUp.TeamID)
	cfg.ClickUp.BaseURL = strings.TrimSuffix(cfg.ClickUp.BaseURL, "/")

	if cfg.Poll.IntervalSeconds == 0 {
		cfg.Poll.IntervalSeconds = DefaultIntervalSeconds
	}
	if cfg.Poll.RequestTimeoutMs == 0 {
		cfg.Poll.RequestTimeoutMs = DefaultRequestTimeoutMs
	}
	if cfg.Poll.StopGraceMs == 0 {
		cfg.Poll.StopGraceMs = DefaultStopGraceMs
	}
	if cfg.Logs.MaxEntries == 0 {
		cfg.Logs.MaxEntries = DefaultMaxLogEntries
	}
}
