// Package config loads the timer-watch YAML configuration.
//
// Flow: Load -> ApplyEnv -> Validate -> Normalize. Only Normalize mutates
// values; the engine never writes configuration back.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	timerwatch "github.com/st-keller/timer-watch"
)

// Environment variables overriding the credential pair.
const (
	EnvAPIToken = "CLICKUP_API_TOKEN"
	EnvTeamID   = "CLICKUP_TEAM_ID"
)

type Config struct {
	ClickUp   ClickUpConfig   `yaml:"clickup"`
	Poll      PollConfig      `yaml:"poll"`
	Logs      LogsConfig      `yaml:"logs"`
	Recording RecordingConfig `yaml:"recording"`
}

type ClickUpConfig struct {
	APIToken string `yaml:"api_token"`
	TeamID   string `yaml:"team_id"`
	BaseURL  string `yaml:"base_url"` // optional, production API if empty
	CAPath   string `yaml:"ca_path"`  // optional PEM bundle
}

type PollConfig struct {
	IntervalSeconds  int `yaml:"interval_seconds"`
	RequestTimeoutMs int `yaml:"request_timeout_ms"`
	StopGraceMs      int `yaml:"stop_grace_ms"`
}

type LogsConfig struct {
	MaxEntries int `yaml:"max_entries"`
}

type RecordingConfig struct {
	Path string `yaml:"path"` // empty = recording disabled
}

// Load reads and decodes path. Unknown keys are rejected.
// An empty file yields a zero Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(data)
}

// Parse decodes a YAML document.
func Parse(data []byte) (*Config, error) {
	var cfg Config

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

// ApplyEnv overrides the credential pair from the environment.
// lookup is os.LookupEnv outside of tests.
func ApplyEnv(cfg *Config, lookup func(string) (string, bool)) {
	if v, ok := lookup(EnvAPIToken); ok && v != "" {
		cfg.ClickUp.APIToken = v
	}
	if v, ok := lookup(EnvTeamID); ok && v != "" {
		cfg.ClickUp.TeamID = v
	}
}

// Engine returns the engine-wide settings.
func (c *Config) Engine() timerwatch.Config {
	return timerwatch.Config{
		BaseURL:        c.ClickUp.BaseURL,
		RequestTimeout: time.Duration(c.Poll.RequestTimeoutMs) * time.Millisecond,
		StopGrace:      time.Duration(c.Poll.StopGraceMs) * time.Millisecond,
		CAPath:         c.ClickUp.CAPath,
	}
}

// Session returns the per-session settings for StartPolling.
func (c *Config) Session() timerwatch.Session {
	return timerwatch.Session{
		Credential:      c.ClickUp.APIToken,
		AccountID:       c.ClickUp.TeamID,
		IntervalSeconds: c.Poll.IntervalSeconds,
	}
}
