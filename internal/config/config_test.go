package config

import (
	"flag"
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultConfigValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := Validate(&cfg); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.SAMPLING_RATE != 16000 || cfg.Channels != 1 || cfg.FramesPerBuffer != 1024 {
		t.Fatalf("unexpected audio defaults: %+v", cfg)
	}
	if cfg.PollInterval != 0.5 || cfg.PollTimeout != 0 || cfg.MinRecordSecs != 1.0 {
		t.Fatalf("unexpected timing defaults: %+v", cfg)
	}
}

func TestValidateRejects(t *testing.T) {
	cases := map[string]func(*Config){
		"channels":      func(c *Config) { c.Channels = 0 },
		"rate":          func(c *Config) { c.SAMPLING_RATE = 100 },
		"poll interval": func(c *Config) { c.PollInterval = 0 },
		"container":     func(c *Config) { c.CONTAINER = "avi" },
		"in flight":     func(c *Config) { c.MaxInFlight = 0 },
		"max record":    func(c *Config) { c.MaxRecordSecs = 0.5 },
		"hotkey":        func(c *Config) { c.Hotkey = " " },
		"log format":    func(c *Config) { c.LogFormat = "xml" },
	}
	for name, mutate := range cases {
		cfg := DefaultConfig()
		mutate(&cfg)
		if err := Validate(&cfg); err == nil {
			t.Fatalf("%s: expected validation error", name)
		}
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	body := `{"BUCKET": "my-bucket", "POLL_INTERVAL": 1.5, "MAX_IN_FLIGHT": 2}`
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("VOICEPASTE_LANGUAGE", "de-DE")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Bucket != "my-bucket" {
		t.Fatalf("expected bucket from file, got %q", cfg.Bucket)
	}
	if cfg.PollInterval != 1.5 || cfg.MaxInFlight != 2 {
		t.Fatalf("file values not applied: %+v", cfg)
	}
	if cfg.Language != "de-DE" {
		t.Fatalf("expected env override, got %q", cfg.Language)
	}
	if cfg.SAMPLING_RATE != 16000 {
		t.Fatalf("expected default sampling rate, got %d", cfg.SAMPLING_RATE)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.json")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestSaveDefaultRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	if err := SaveDefault(path); err != nil {
		t.Fatalf("SaveDefault failed: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg != DefaultConfig() {
		t.Fatalf("saved defaults differ:\n got %+v\nwant %+v", cfg, DefaultConfig())
	}
}

func TestApplyFlagsOnlySet(t *testing.T) {
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fv := BindFlags(fs)
	if err := fs.Parse([]string{"-hotkey", "alt+f9", "-poll-timeout", "20", "-notification"}); err != nil {
		t.Fatalf("parse: %v", err)
	}

	cfg := DefaultConfig()
	ApplyFlags(&cfg, fv)
	if cfg.Hotkey != "alt+f9" {
		t.Fatalf("hotkey not applied: %q", cfg.Hotkey)
	}
	if cfg.PollTimeout != 20 {
		t.Fatalf("poll timeout not applied: %v", cfg.PollTimeout)
	}
	if !cfg.Notification {
		t.Fatalf("notification not applied")
	}
	if cfg.Language != "en-US" {
		t.Fatalf("unset flag changed language: %q", cfg.Language)
	}
}

func TestContainerExt(t *testing.T) {
	if got := ContainerExt(""); got != "wav" {
		t.Fatalf("expected wav, got %s", got)
	}
	if got := ContainerExt("FLAC"); got != "flac" {
		t.Fatalf("expected flac, got %s", got)
	}
}
