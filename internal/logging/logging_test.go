package logging

import (
	"os"
	"path/filepath"
	"testing"

	"lectern/internal/config"

	"github.com/sirupsen/logrus"
)

func TestConfigureWritesToRotatedFile(t *testing.T) {
	dir := t.TempDir()
	cfg, _ := config.Default()
	cfg.Paths.StateDir = dir
	cfg.Paths.LogPath = filepath.Join(dir, "logs", "lectern.log")
	cfg.Recording.Dir = filepath.Join(dir, "recordings")
	cfg.Output.SummaryDir = filepath.Join(dir, "summaries")
	cfg.Logging.Level = "warn"
	cfg.Logging.Format = "json"

	logger, err := Configure(cfg)
	if err != nil {
		t.Fatalf("configure: %v", err)
	}
	if logger.GetLevel() != logrus.WarnLevel {
		t.Fatalf("level not applied: %v", logger.GetLevel())
	}
	if _, ok := logger.Formatter.(*logrus.JSONFormatter); !ok {
		t.Fatalf("expected json formatter")
	}
	logger.Warn("hello")
	data, err := os.ReadFile(cfg.Paths.LogPath)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if len(data) == 0 {
		t.Fatalf("log file empty")
	}
	for _, d := range []string{cfg.Recording.Dir, cfg.Output.SummaryDir} {
		if _, err := os.Stat(d); err != nil {
			t.Fatalf("state dir %s not created: %v", d, err)
		}
	}
}

func TestConsoleIgnoresUnknownLevel(t *testing.T) {
	logger := Console("chatty")
	if logger.GetLevel() != logrus.InfoLevel {
		t.Fatalf("level = %v, want info", logger.GetLevel())
	}
	if logger.Out != os.Stderr {
		t.Fatalf("console logger should write to stderr")
	}
}
