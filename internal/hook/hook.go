// Package hook runs a user command after each note is saved.
package hook

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"lectern/internal/config"

	"github.com/google/shlex"
	"github.com/sirupsen/logrus"
)

// ErrNoCommand is returned by Run when no hook is configured.
var ErrNoCommand = errors.New("no hook.command configured")

// Job describes one saved note.
type Job struct {
	NotePath  string
	DataPath  string
	Summary   string
	SegmentID int64
	Degraded  bool
	Timestamp time.Time
}

// Runner executes the configured command for each job.
type Runner struct {
	command string
	args    []string
	env     map[string]string
	timeout time.Duration
	logger  *logrus.Logger
}

// NewRunner parses hook.args up front so a bad quote fails at startup.
func NewRunner(cfg *config.Config, logger *logrus.Logger) (*Runner, error) {
	args, err := ParseArgs(cfg.Hook.Args)
	if err != nil {
		return nil, fmt.Errorf("hook.args: %w", err)
	}
	return &Runner{
		command: strings.TrimSpace(cfg.Hook.Command),
		args:    args,
		env:     cfg.Hook.Env,
		timeout: cfg.HookTimeout(),
		logger:  logger,
	}, nil
}

// Enabled reports whether a command is configured.
func (r *Runner) Enabled() bool { return r != nil && r.command != "" }

// Run executes the command with the note path appended as the last argument.
func (r *Runner) Run(ctx context.Context, job Job) error {
	if !r.Enabled() {
		return ErrNoCommand
	}
	args := append(append([]string{}, r.args...), job.NotePath)

	runCtx := ctx
	if r.timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, r.timeout)
		defer cancel()
	}
	cmd := exec.CommandContext(runCtx, r.command, args...)
	cmd.Env = os.Environ()
	for k, v := range r.env {
		cmd.Env = append(cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}
	cmd.Env = append(cmd.Env,
		"LECTERN_NOTE_PATH="+job.NotePath,
		"LECTERN_DATA_PATH="+job.DataPath,
		"LECTERN_SUMMARY="+job.Summary,
		fmt.Sprintf("LECTERN_SEGMENT_ID=%d", job.SegmentID),
		fmt.Sprintf("LECTERN_DEGRADED=%t", job.Degraded),
	)

	out, err := cmd.CombinedOutput()
	if len(out) > 0 {
		r.logger.Infof("hook output: %s", strings.TrimSpace(string(out)))
	}
	if err != nil {
		if runCtx.Err() != nil && ctx.Err() == nil {
			return fmt.Errorf("hook timed out after %s: %w", r.timeout, err)
		}
		return fmt.Errorf("hook failed: %w", err)
	}
	return nil
}

// ParseArgs splits hook.args with shell quoting rules.
func ParseArgs(raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return []string{}, nil
	}
	return shlex.Split(raw)
}
