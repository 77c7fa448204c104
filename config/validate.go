package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/st-keller/timer-watch/update"
)

// Validate checks configuration correctness.
// It performs declarative validation only.
// It MUST NOT mutate configuration.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}

	// ------------------------------------------------------------
	// CREDENTIALS
	// ------------------------------------------------------------

	if strings.TrimSpace(cfg.ClickUp.APIToken) == "" {
		return fmt.Errorf("clickup.api_token required (or set %s)", EnvAPIToken)
	}
	if strings.TrimSpace(cfg.ClickUp.TeamID) == "" {
		return fmt.Errorf("clickup.team_id required (or set %s)", EnvTeamID)
	}

	if cfg.ClickUp.BaseURL != "" {
		u, err := url.Parse(cfg.ClickUp.BaseURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return fmt.Errorf("clickup.base_url %q must be an absolute http(s) URL", cfg.ClickUp.BaseURL)
		}
	}

	// ------------------------------------------------------------
	// POLLING
	// ------------------------------------------------------------

	// Values below the 2s floor are accepted and clamped by the engine
	if cfg.Poll.IntervalSeconds < 0 {
		return fmt.Errorf("poll.interval_seconds must be >= 0 (got %d)", cfg.Poll.IntervalSeconds)
	}
	if cfg.Poll.IntervalSeconds > update.MaxInterval.Seconds() {
		return fmt.Errorf("poll.interval_seconds must be <= %d (got %d)", update.MaxInterval.Seconds(), cfg.Poll.IntervalSeconds)
	}
	if cfg.Poll.RequestTimeoutMs < 0 {
		return fmt.Errorf("poll.request_timeout_ms must be >= 0 (got %d)", cfg.Poll.RequestTimeoutMs)
	}
	if cfg.Poll.StopGraceMs < 0 {
		return fmt.Errorf("poll.stop_grace_ms must be >= 0 (got %d)", cfg.Poll.StopGraceMs)
	}

	// ------------------------------------------------------------
	// LOG WINDOW
	// ------------------------------------------------------------

	if cfg.Logs.MaxEntries < 0 {
		return fmt.Errorf("logs.max_entries must be >= 0 (got %d)", cfg.Logs.MaxEntries)
	}

	return nil
}
