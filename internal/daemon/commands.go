package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"syscall"
	"time"

	"lectern/internal/config"
	"lectern/internal/control"
	"lectern/internal/logging"
	"lectern/internal/run"

	"github.com/spf13/cobra"
)

const defaultStopTimeout = 5 * time.Minute

// NewStartCmd starts the daemon (background).
func NewStartCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start recording a lecture in the background",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			if err := ensureNotRunning(cfg); err != nil {
				return err
			}
			// Fail here rather than in the detached child.
			if err := cfg.RequireAPIKey(); err != nil {
				return err
			}
			if err := os.MkdirAll(filepath.Dir(cfg.Paths.PidPath), 0o755); err != nil {
				return err
			}
			self, err := os.Executable()
			if err != nil {
				return err
			}
			child := exec.Command(self, "serve", "--config", cfg.Paths.ConfigPath)
			child.Env = append(os.Environ(), runtimeEnv(cmd)...)
			child.Stdout = os.Stdout
			child.Stderr = os.Stderr
			child.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
			if err := child.Start(); err != nil {
				return err
			}
			// Wait a moment and confirm pid file appears.
			for waited := 0; waited < 20; waited++ {
				if _, err := os.Stat(cfg.Paths.PidPath); err == nil {
					break
				}
				time.Sleep(100 * time.Millisecond)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "lectern started (pid %d)\n", child.Process.Pid)
			return child.Process.Release()
		},
	}
	addRuntimeFlags(cmd)
	return cmd
}

// NewServeCmd runs the daemon foreground (internal).
func NewServeCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:    "serve",
		Short:  "Run lectern in the foreground (internal)",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, kv := range runtimeEnv(cmd) {
				k, v, _ := cutEnv(kv)
				if err := os.Setenv(k, v); err != nil {
					return fmt.Errorf("set %s: %w", k, err)
				}
			}
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			logger, err := logging.Configure(cfg)
			if err != nil {
				return err
			}
			return run.Serve(cfg, logger)
		},
	}
	addRuntimeFlags(cmd)
	return cmd
}

// NewStopCmd stops the daemon. The daemon finishes queued segments and
// writes the session summary before exiting.
func NewStopCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop recording and write the session summary",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			if err := requestStop(cfg); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "stop requested")
			if wait, _ := cmd.Flags().GetBool("wait"); wait {
				timeout, _ := cmd.Flags().GetDuration("timeout")
				if err := waitForShutdown(*cfgPath, timeout); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "stopped")
			}
			return nil
		},
	}
	cmd.Flags().Bool("wait", false, "wait until the session summary is written")
	cmd.Flags().Duration("timeout", defaultStopTimeout, "how long --wait waits")
	return cmd
}

// NewRestartCmd stops then starts.
func NewRestartCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "restart",
		Short: "Close the current session and start a new one",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			_ = requestStop(cfg) // ignore error if not running

			timeout, _ := cmd.Flags().GetDuration("timeout")
			if err := waitForShutdown(*cfgPath, timeout); err != nil {
				return err
			}

			startCmd := NewStartCmd(cfgPath)
			startCmd.SetOut(cmd.OutOrStdout())
			return startCmd.RunE(startCmd, args)
		},
	}
	cmd.Flags().Duration("timeout", defaultStopTimeout, "how long to wait for the old session to finish")
	return cmd
}

func addRuntimeFlags(cmd *cobra.Command) {
	cmd.Flags().String("metrics-addr", "", "enable metrics at address (e.g., 127.0.0.1:9318) for this run")
	cmd.Flags().Int("interval", 0, "segment length in seconds for this run")
}

// runtimeEnv turns per-run flags into env overrides.
func runtimeEnv(cmd *cobra.Command) []string {
	var env []string
	if f := cmd.Flag("metrics-addr"); f != nil && f.Value.String() != "" {
		env = append(env, "LECTERN_METRICS_ADDR="+f.Value.String())
	}
	if f := cmd.Flag("interval"); f != nil && f.Changed {
		env = append(env, "LECTERN_INTERVAL="+f.Value.String())
	}
	return env
}

func cutEnv(kv string) (string, string, bool) {
	for i := 0; i < len(kv); i++ {
		if kv[i] == '=' {
			return kv[:i], kv[i+1:], true
		}
	}
	return kv, "", false
}

// requestStop asks over the control socket and falls back to SIGTERM.
func requestStop(cfg *config.Config) error {
	var resp control.SimpleResponse
	if err := control.Call(cfg.Paths.SocketPath, control.OpStop, &resp); err == nil && resp.OK {
		return nil
	}
	pid, err := readPID(cfg.Paths.PidPath)
	if err != nil {
		return fmt.Errorf("daemon not running: %w", err)
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	return proc.Signal(syscall.SIGTERM)
}

func ensureNotRunning(cfg *config.Config) error {
	pid, err := readPID(cfg.Paths.PidPath)
	if err != nil {
		return nil
	}
	// Check if process alive.
	proc, err := os.FindProcess(pid)
	if err == nil {
		if err := proc.Signal(syscall.Signal(0)); err == nil {
			return fmt.Errorf("already running with pid %d", pid)
		}
	}
	return nil
}

func readPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	var pid int
	if _, err := fmt.Sscanf(string(data), "%d", &pid); err != nil {
		return 0, err
	}
	return pid, nil
}

func waitForShutdown(cfgPath string, timeout time.Duration) error {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return err
	}
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		pid, err := readPID(cfg.Paths.PidPath)
		if err != nil {
			return nil // pid file gone
		}
		proc, _ := os.FindProcess(pid)
		if proc != nil {
			if err := proc.Signal(syscall.Signal(0)); err != nil {
				_ = os.Remove(cfg.Paths.PidPath)
				return nil
			}
		}
		time.Sleep(100 * time.Millisecond)
	}
	return fmt.Errorf("daemon did not stop within %s", timeout)
}
