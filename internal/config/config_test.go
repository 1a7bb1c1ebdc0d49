package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestEnvOverrides(t *testing.T) {
	cfg, err := Default()
	if err != nil {
		t.Fatalf("default: %v", err)
	}

	t.Setenv("LECTERN_METRICS_ADDR", "1.2.3.4:9999")
	t.Setenv("LECTERN_LOG_LEVEL", "debug")
	t.Setenv("LECTERN_LOG_FORMAT", "json")
	t.Setenv("LECTERN_INTERVAL", "15")
	t.Setenv("OPENAI_API_KEY", "sk-test")

	applyEnvOverrides(cfg)

	if !cfg.Metrics.Enabled || cfg.Metrics.Addr != "1.2.3.4:9999" {
		t.Fatalf("metrics override failed: %+v", cfg.Metrics)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "json" {
		t.Fatalf("logging overrides failed: %+v", cfg.Logging)
	}
	if cfg.Interval() != 15*time.Second {
		t.Fatalf("interval override failed: %v", cfg.Interval())
	}
	if cfg.LLM.APIKey != "sk-test" {
		t.Fatalf("api key override failed")
	}
}

func TestConfigKeyWinsOverEnv(t *testing.T) {
	cfg, _ := Default()
	cfg.LLM.APIKey = "from-file"
	t.Setenv("OPENAI_API_KEY", "from-env")
	applyEnvOverrides(cfg)
	if cfg.LLM.APIKey != "from-file" {
		t.Fatalf("expected config key to win, got %q", cfg.LLM.APIKey)
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	cfg, err := Default()
	if err != nil {
		t.Fatalf("default: %v", err)
	}
	cfg.Recording.IntervalSec = 30
	cfg.SmartCut.Markers = []string{"next topic"}

	if err := Save(cfg, path); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if loaded.Recording.IntervalSec != 30 {
		t.Fatalf("interval did not persist: %d", loaded.Recording.IntervalSec)
	}
	if len(loaded.SmartCut.Markers) != 1 || loaded.SmartCut.Markers[0] != "next topic" {
		t.Fatalf("markers did not persist: %v", loaded.SmartCut.Markers)
	}
	if loaded.Paths.ConfigPath != path {
		t.Fatalf("config path not recorded")
	}
}

func TestLoadWritesTemplate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "config.toml")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("template not written: %v", err)
	}
	if cfg.Recording.IntervalSec != defaultInterval {
		t.Fatalf("expected default interval, got %d", cfg.Recording.IntervalSec)
	}
}

func TestLoadReadsDotEnv(t *testing.T) {
	dir := t.TempDir()
	t.Setenv("OPENAI_API_KEY", "")
	os.Unsetenv("OPENAI_API_KEY")
	if err := os.WriteFile(filepath.Join(dir, ".env"), []byte("OPENAI_API_KEY=sk-dotenv\n"), 0o600); err != nil {
		t.Fatalf("write env: %v", err)
	}
	cfg, err := Load(filepath.Join(dir, "config.toml"))
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LLM.APIKey != "sk-dotenv" {
		t.Fatalf("expected key from .env, got %q", cfg.LLM.APIKey)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	cases := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero interval", func(c *Config) { c.Recording.IntervalSec = 0 }},
		{"unknown api type", func(c *Config) { c.LLM.APIType = "bard" }},
		{"too many channels", func(c *Config) { c.Audio.Channels = 6 }},
		{"speech ratio above one", func(c *Config) { c.VAD.MinSpeechRatio = 1.5 }},
		{"bad log format", func(c *Config) { c.Logging.Format = "xml" }},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			cfg, _ := Default()
			tc.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestRequireAPIKey(t *testing.T) {
	cfg, _ := Default()
	cfg.LLM.APIKey = ""
	if err := cfg.RequireAPIKey(); !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
	cfg.LLM.APIType = APITypeLocal
	if err := cfg.RequireAPIKey(); err != nil {
		t.Fatalf("local backend needs no key: %v", err)
	}
}
