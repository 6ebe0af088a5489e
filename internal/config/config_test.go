package config

import (
	"path/filepath"
	"testing"

	"github.com/twitch-miner/predictor/internal/store"
)

func TestSaveThenLoadRoundTrips(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	cfg := DefaultConfig()
	cfg.Streamers = append(cfg.Streamers, StreamerEntry{
		ChannelName: "someone",
		Config: store.StreamerConfig{
			Kind:     store.ConfigSpecific,
			Specific: store.Specific{FollowRaid: true},
		},
	})
	cfg.WatchPriority = []string{"someone"}

	if err := SaveConfig(path, &cfg); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}

	if len(loaded.Streamers) != 1 || loaded.Streamers[0].ChannelName != "someone" {
		t.Fatalf("expected 1 streamer named someone, got %+v", loaded.Streamers)
	}
	if !loaded.Streamers[0].Config.Specific.FollowRaid {
		t.Fatalf("expected FollowRaid to round-trip true")
	}
}

func TestLoadConfigValidatesDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := SaveConfig(path, &Config{}); err != nil {
		t.Fatalf("SaveConfig: %v", err)
	}

	loaded, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig: %v", err)
	}
	if loaded.ControlPlane.Addr != ":3000" {
		t.Fatalf("expected default control plane addr, got %q", loaded.ControlPlane.Addr)
	}
	if loaded.Analytics.FlushInterval != 2 || loaded.Analytics.FlushRows != 500 {
		t.Fatalf("expected default analytics batching, got %+v", loaded.Analytics)
	}
}

func TestLoadConfigMissingFileReturnsError(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatalf("expected an error for a missing config file")
	}
}
