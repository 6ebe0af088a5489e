// Package config loads and saves the YAML configuration file spec.md §6
// describes: tracked streamers, named presets, the watch-priority list, and
// ambient settings (control plane, analytics, Discord). Grounded on the
// teacher's internal/config (DefaultConfig/LoadConfig/SaveConfig/
// validateConfig clamping pattern), swapped from JSON to YAML per
// Guliveer-twitch-watcher-go's loader.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/twitch-miner/predictor/internal/store"
)

// StreamerEntry is one tracked channel and its betting configuration.
type StreamerEntry struct {
	ChannelName string               `yaml:"channelName"`
	Config      store.StreamerConfig `yaml:"config"`
}

// ControlPlaneSettings configures the REST control plane (spec.md §6).
type ControlPlaneSettings struct {
	Addr          string `yaml:"addr"`
	BasicAuthUser string `yaml:"basicAuthUser,omitempty"`
	BasicAuthPass string `yaml:"basicAuthPass,omitempty"`
}

// AnalyticsSettings configures the batched writer (spec.md §4.7). DBPath is
// a directory: database.Open creates DBPath/miner.db inside it.
type AnalyticsSettings struct {
	DBPath        string `yaml:"dbPath"`
	FlushInterval int    `yaml:"flushIntervalSeconds"`
	FlushRows     int    `yaml:"flushRows"`
}

// DiscordSettings configures the optional notifier.
type DiscordSettings struct {
	Enabled    bool   `yaml:"enabled"`
	WebhookURL string `yaml:"webhookUrl,omitempty"`
}

// Config is the top-level YAML document shape.
type Config struct {
	TokenPath string `yaml:"tokenPath"`
	LogFile   string `yaml:"logFile,omitempty"`
	Simulate  bool   `yaml:"simulate"`
	DeviceID  string `yaml:"deviceId,omitempty"`

	Streamers     []StreamerEntry           `yaml:"streamers"`
	Presets       map[string]store.Specific `yaml:"presets,omitempty"`
	WatchPriority []string                  `yaml:"watchPriority,omitempty"`

	ControlPlane ControlPlaneSettings `yaml:"controlPlane"`
	Analytics    AnalyticsSettings    `yaml:"analytics"`
	Discord      DiscordSettings      `yaml:"discord"`
}

// DefaultConfig returns a config with every ambient setting at its spec.md
// default, no streamers tracked yet (spec.md §6 control-plane operations
// add those at runtime).
func DefaultConfig() Config {
	return Config{
		TokenPath: "token.json",
		LogFile:   "miner.log",
		Presets:   map[string]store.Specific{},
		ControlPlane: ControlPlaneSettings{
			Addr: ":3000",
		},
		Analytics: AnalyticsSettings{
			DBPath:        "analytics",
			FlushInterval: 2,
			FlushRows:     500,
		},
	}
}

// LoadConfig reads and validates a YAML config file.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	validateConfig(&cfg)
	return &cfg, nil
}

// SaveConfig writes cfg to path as YAML.
func SaveConfig(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// validateConfig clamps ambient settings to sane bounds, mirroring the
// teacher's rate-limit clamping in validateConfig.
func validateConfig(cfg *Config) {
	if cfg.TokenPath == "" {
		cfg.TokenPath = "token.json"
	}
	if cfg.ControlPlane.Addr == "" {
		cfg.ControlPlane.Addr = ":3000"
	}
	if cfg.Analytics.DBPath == "" {
		cfg.Analytics.DBPath = "analytics"
	}
	if cfg.Analytics.FlushInterval <= 0 {
		cfg.Analytics.FlushInterval = 2
	}
	if cfg.Analytics.FlushRows <= 0 {
		cfg.Analytics.FlushRows = 500
	}
	if cfg.Presets == nil {
		cfg.Presets = map[string]store.Specific{}
	}
}
