// Package doctor runs environment checks for the daemon.
package doctor

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"lectern/internal/audio"
	"lectern/internal/config"
)

// Result represents a diagnostic check. Optional failures are warnings.
type Result struct {
	Name     string
	Pass     bool
	Optional bool
	Detail   string
}

// Run executes doctor checks.
func Run(cfg *config.Config) []Result {
	return []Result{
		checkFile("config path", cfg.Paths.ConfigPath),
		checkFile("model file", cfg.ASR.ModelPath),
		checkAPIKey(cfg),
		checkWritableDir("recordings", cfg.Recording.Dir),
		checkWritableDir("summaries", cfg.Output.SummaryDir),
		checkHookExecutable(cfg.Hook.Command),
		checkPortAudioPkgConfig(),
		checkPortAudio(),
	}
}

func checkFile(label, path string) Result {
	if path == "" {
		return Result{Name: label, Pass: false, Detail: "not set"}
	}
	if _, err := os.Stat(os.ExpandEnv(path)); err != nil {
		return Result{Name: label, Pass: false, Detail: err.Error()}
	}
	return Result{Name: label, Pass: true, Detail: path}
}

func checkAPIKey(cfg *config.Config) Result {
	label := "llm"
	if err := cfg.RequireAPIKey(); err != nil {
		return Result{Name: label, Pass: false, Detail: err.Error()}
	}
	return Result{Name: label, Pass: true, Detail: fmt.Sprintf("%s %s @ %s", cfg.LLM.APIType, cfg.LLM.Model, cfg.LLM.APIBase)}
}

func checkWritableDir(label, dir string) Result {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return Result{Name: label, Pass: false, Detail: err.Error()}
	}
	probe, err := os.CreateTemp(dir, ".doctor-*")
	if err != nil {
		return Result{Name: label, Pass: false, Detail: fmt.Sprintf("not writable: %v", err)}
	}
	name := probe.Name()
	_ = probe.Close()
	_ = os.Remove(name)
	return Result{Name: label, Pass: true, Detail: filepath.Clean(dir)}
}

func checkHookExecutable(cmd string) Result {
	label := "hook.command"
	if cmd == "" {
		return Result{Name: label, Pass: true, Optional: true, Detail: "not set (optional)"}
	}
	path := os.ExpandEnv(cmd)
	// If contains a path separator, treat as explicit path.
	if strings.Contains(path, "/") || strings.Contains(path, "\\") {
		info, err := os.Stat(path)
		if err != nil {
			return Result{Name: label, Pass: false, Detail: err.Error()}
		}
		if info.IsDir() {
			return Result{Name: label, Pass: false, Detail: "is a directory; set hook.command to an executable file"}
		}
		if info.Mode().Perm()&0o111 == 0 {
			return Result{Name: label, Pass: false, Detail: "not executable; chmod +x or choose another command"}
		}
		return Result{Name: label, Pass: true, Detail: path}
	}
	resolved, err := exec.LookPath(path)
	if err != nil {
		return Result{Name: label, Pass: false, Detail: err.Error()}
	}
	return Result{Name: label, Pass: true, Detail: resolved}
}

func checkPortAudioPkgConfig() Result {
	pkg, err := exec.LookPath("pkg-config")
	if err != nil {
		return Result{Name: "pkg-config", Pass: false, Optional: true, Detail: "pkg-config not found (brew install pkg-config)"}
	}
	if err := exec.Command(pkg, "--exists", "portaudio-2.0").Run(); err != nil {
		return Result{Name: "portaudio-dev", Pass: false, Optional: true, Detail: "portaudio-2.0 not found (brew install portaudio)"}
	}
	if out, err := exec.Command(pkg, "--modversion", "portaudio-2.0").Output(); err == nil {
		return Result{Name: "portaudio-dev", Pass: true, Detail: strings.TrimSpace(string(out))}
	}
	return Result{Name: "portaudio-dev", Pass: true, Detail: "found via pkg-config"}
}

func checkPortAudio() Result {
	err := audio.Probe()
	switch {
	case errors.Is(err, audio.ErrUnavailable):
		return Result{Name: "portaudio", Pass: false, Detail: "binary built without audio support; rebuild with -tags whisper"}
	case err != nil:
		return Result{Name: "portaudio", Pass: false, Detail: fmt.Sprintf("%v (install with: brew install portaudio)", err)}
	}
	return Result{Name: "portaudio", Pass: true, Detail: "ok"}
}
