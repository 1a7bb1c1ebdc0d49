package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

const (
	defaultInterval      = 60
	defaultMaxTokens     = 150
	defaultSummaryTokens = 1000
	defaultStatusTail    = 10
	defaultStateDirLinux = ".local/state/lectern"
	defaultConfigDir     = ".config/lectern"
)

// API types understood by the llm package.
const (
	APITypeOpenAI = "openai"
	APITypeLocal  = "local"
)

// ErrMissingAPIKey is returned when the openai backend has no credential.
var ErrMissingAPIKey = errors.New("llm.api_key (or OPENAI_API_KEY) is required for api_type openai")

// Config holds user configuration loaded from TOML.
type Config struct {
	Audio struct {
		DeviceName string `toml:"device_name"`
		SampleRate int    `toml:"sample_rate"`
		Channels   int    `toml:"channels"`
		Chunk      int    `toml:"chunk"` // frames per buffer
	} `toml:"audio"`

	Recording struct {
		IntervalSec int    `toml:"interval_sec"`
		Dir         string `toml:"dir"`
		DrainTail   bool   `toml:"drain_tail"`
	} `toml:"recording"`

	ASR struct {
		ModelPath  string  `toml:"model_path"`
		ModelName  string  `toml:"model_name"`
		Device     string  `toml:"device"` // cpu, cuda, metal
		Language   string  `toml:"language"`
		TimeoutSec float64 `toml:"timeout_sec"`
	} `toml:"asr"`

	VAD struct {
		Enabled        bool    `toml:"enabled"`
		Aggressiveness int     `toml:"aggressiveness"`
		MinSpeechRatio float64 `toml:"min_speech_ratio"`
	} `toml:"vad"`

	SmartCut struct {
		MaxSpanSec float64  `toml:"max_span_sec"`
		MaxGapSec  float64  `toml:"max_gap_sec"`
		Markers    []string `toml:"markers"`
	} `toml:"smartcut"`

	LLM struct {
		APIType          string  `toml:"api_type"` // openai, local
		APIBase          string  `toml:"api_base"`
		APIKey           string  `toml:"api_key"`
		Model            string  `toml:"model"`
		MaxTokens        int     `toml:"max_tokens"`
		SummaryMaxTokens int     `toml:"summary_max_tokens"`
		Temperature      float64 `toml:"temperature"`
		TimeoutSec       float64 `toml:"timeout_sec"`
		MaxRetries       int     `toml:"max_retries"`
	} `toml:"llm"`

	Output struct {
		SaveSummary bool   `toml:"save_summary"`
		SummaryDir  string `toml:"summary_dir"`
	} `toml:"output"`

	Hook struct {
		Command    string            `toml:"command"`
		Args       string            `toml:"args"`
		TimeoutSec float64           `toml:"timeout_sec"`
		QueueSize  int               `toml:"queue_size"`
		Env        map[string]string `toml:"env"`
	} `toml:"hook"`

	Logging struct {
		Level  string `toml:"level"`  // debug, info, warn, error
		Format string `toml:"format"` // text, json
		Stdout bool   `toml:"stdout"`
	} `toml:"logging"`

	Paths struct {
		StateDir   string `toml:"state_dir"`
		LogPath    string `toml:"log_path"`
		SocketPath string `toml:"socket_path"`
		PidPath    string `toml:"pid_path"`
		ConfigPath string `toml:"-"`
	} `toml:"paths"`

	UI struct {
		StatusTail int `toml:"status_tail"`
	} `toml:"ui"`

	Metrics struct {
		Enabled bool   `toml:"enabled"`
		Addr    string `toml:"addr"`
	} `toml:"metrics"`
}

// Default returns Config populated with defaults.
func Default() (*Config, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, err
	}

	stateDir := filepath.Join(home, defaultStateDirLinux)
	if isMac() {
		stateDir = filepath.Join(home, "Library", "Application Support", "lectern")
	}

	cfg := &Config{}

	cfg.Audio.SampleRate = 16000
	cfg.Audio.Channels = 1
	cfg.Audio.Chunk = 1024

	cfg.Recording.IntervalSec = defaultInterval
	cfg.Recording.Dir = filepath.Join(stateDir, "recordings")
	cfg.Recording.DrainTail = true

	cfg.ASR.ModelName = "turbo"
	cfg.ASR.ModelPath = filepath.Join(stateDir, "models", "ggml-large-v3-turbo-q8_0.bin")
	cfg.ASR.Device = "cpu"
	cfg.ASR.Language = "zh"
	cfg.ASR.TimeoutSec = 600

	cfg.VAD.Enabled = false
	cfg.VAD.Aggressiveness = 2
	cfg.VAD.MinSpeechRatio = 0.05

	cfg.SmartCut.MaxSpanSec = 300
	cfg.SmartCut.MaxGapSec = 2.0
	cfg.SmartCut.Markers = []string{"next", "moving on", "now let's", "let's talk about"}

	cfg.LLM.APIType = APITypeOpenAI
	cfg.LLM.APIBase = "https://api.openai.com/v1"
	cfg.LLM.Model = "gpt-4"
	cfg.LLM.MaxTokens = defaultMaxTokens
	cfg.LLM.SummaryMaxTokens = defaultSummaryTokens
	cfg.LLM.Temperature = 0.7
	cfg.LLM.TimeoutSec = 120
	cfg.LLM.MaxRetries = 2

	cfg.Output.SaveSummary = true
	cfg.Output.SummaryDir = filepath.Join(stateDir, "summaries")

	cfg.Hook.TimeoutSec = 10
	cfg.Hook.QueueSize = 16
	cfg.Hook.Env = map[string]string{}

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "text"

	cfg.Paths.StateDir = stateDir
	cfg.Paths.LogPath = filepath.Join(stateDir, "lectern.log")
	cfg.Paths.SocketPath = filepath.Join(stateDir, "lectern.sock")
	cfg.Paths.PidPath = filepath.Join(stateDir, "lectern.pid")

	cfg.UI.StatusTail = defaultStatusTail

	cfg.Metrics.Enabled = false
	cfg.Metrics.Addr = "127.0.0.1:9318"

	return cfg, nil
}

// Load loads config from file, applying defaults. A missing file is created
// from the defaults. A .env file next to the config is loaded first so
// OPENAI_API_KEY can be kept out of the TOML.
func Load(path string) (*Config, error) {
	cfg, err := Default()
	if err != nil {
		return nil, err
	}

	if path == "" {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, defaultConfigDir, "config.toml")
	}
	loadDotEnv(filepath.Join(filepath.Dir(path), ".env"))

	data, err := os.ReadFile(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
		if err := Save(cfg, path); err != nil {
			return nil, err
		}
	} else if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.Paths.ConfigPath = path
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Save writes cfg to path.
func Save(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	out, err := toml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, out, 0o600)
}

// Marshal renders cfg as TOML.
func Marshal(cfg *Config) ([]byte, error) {
	return toml.Marshal(cfg)
}

func isMac() bool {
	return runtime.GOOS == "darwin"
}

// MustStatePaths ensures state dirs exist.
func MustStatePaths(cfg *Config) error {
	for _, p := range []string{
		cfg.Paths.StateDir,
		filepath.Dir(cfg.Paths.LogPath),
		cfg.Recording.Dir,
		cfg.Output.SummaryDir,
	} {
		if p == "" {
			continue
		}
		if err := os.MkdirAll(p, 0o755); err != nil {
			return err
		}
	}
	return nil
}

// Interval returns the recording interval as a duration.
func (c *Config) Interval() time.Duration {
	return time.Duration(c.Recording.IntervalSec) * time.Second
}

// ASRTimeout returns the per-segment transcription timeout (0 = none).
func (c *Config) ASRTimeout() time.Duration {
	return seconds(c.ASR.TimeoutSec)
}

// LLMTimeout returns the per-request generation timeout (0 = none).
func (c *Config) LLMTimeout() time.Duration {
	return seconds(c.LLM.TimeoutSec)
}

// HookTimeout returns the hook command timeout (0 = none).
func (c *Config) HookTimeout() time.Duration {
	return seconds(c.Hook.TimeoutSec)
}

// RequireAPIKey reports a fatal setup error when the hosted backend has no key.
func (c *Config) RequireAPIKey() error {
	if strings.EqualFold(c.LLM.APIType, APITypeOpenAI) && strings.TrimSpace(c.LLM.APIKey) == "" {
		return ErrMissingAPIKey
	}
	return nil
}

func seconds(v float64) time.Duration {
	if v <= 0 {
		return 0
	}
	return time.Duration(v * float64(time.Second))
}

func loadDotEnv(path string) {
	if _, err := os.Stat(path); err != nil {
		return
	}
	// Existing environment wins over .env.
	_ = godotenv.Load(path)
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("OPENAI_API_KEY"); v != "" && cfg.LLM.APIKey == "" {
		cfg.LLM.APIKey = v
	}
	if v := os.Getenv("OPENAI_BASE_URL"); v != "" {
		cfg.LLM.APIBase = v
	}
	if v := os.Getenv("LECTERN_INTERVAL"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			cfg.Recording.IntervalSec = n
		}
	}
	if v := os.Getenv("LECTERN_METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
		cfg.Metrics.Enabled = true
	}
	if v := os.Getenv("LECTERN_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("LECTERN_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
}
