package control

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"
	"time"

	"lectern/internal/config"
	"lectern/internal/llm"
	"lectern/internal/logging"
	"lectern/internal/notes"
	"lectern/internal/segments"
	"lectern/internal/summary"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// NewSummarizeCmd writes the aggregate summary for a day outside the daemon.
func NewSummarizeCmd(cfgPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "summarize",
		Short: "Summarize a day's notes and archive leftover recordings",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*cfgPath)
			if err != nil {
				return err
			}
			date, _ := cmd.Flags().GetString("date")
			if date != "" {
				if _, err := time.Parse(notes.DateLayout, date); err != nil {
					return fmt.Errorf("--date must be YYYY-MM-DD: %w", err)
				}
			}
			noArchive, _ := cmd.Flags().GetBool("no-archive")
			archive := !noArchive
			if archive {
				if archive, err = archiveAllowed(cfg, date, time.Now()); err != nil {
					return err
				}
				if !archive {
					fmt.Fprintf(cmd.OutOrStdout(), "recordings belong to today; not archiving them under %s\n", date)
				}
			}
			logger := logging.Console(cfg.Logging.Level)
			orch, err := newOrchestrator(cfg, logger, archive)
			if err != nil {
				return err
			}
			res, err := orch.SummarizeSession(cmd.Context(), date)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "date: %s\nnotes: %d\n", res.Date, res.Notes)
			if res.SummaryPath != "" {
				fmt.Fprintln(out, "summary:", res.SummaryPath)
			}
			if res.ArchivePath != "" {
				fmt.Fprintf(out, "recording: %s (%d segments)\n", res.ArchivePath, res.MergedSegments)
			}
			fmt.Fprintf(out, "\n%s\n", res.Summary)
			return nil
		},
	}
	cmd.Flags().String("date", "", "day to summarize (YYYY-MM-DD, default today); leftover recordings are archived only for today")
	cmd.Flags().Bool("no-archive", false, "leave recorded segments in place")
	return cmd
}

// archiveAllowed decides whether leftover segments may be merged now. The
// segment directory holds only the current recording, so a past date never
// archives. A live daemon still owns its queued segments.
func archiveAllowed(cfg *config.Config, date string, now time.Time) (bool, error) {
	if date != "" && date != now.Format(notes.DateLayout) {
		return false, nil
	}
	if daemonActive(cfg) {
		return false, errors.New("lectern is still recording; run `lectern stop --wait` first or pass --no-archive")
	}
	return true, nil
}

// daemonActive reports a daemon that answers on the control socket or whose
// pid file names a live process. The second case covers the shutdown phase,
// when the socket is already closed but the session is still being written.
func daemonActive(cfg *config.Config) bool {
	var resp SimpleResponse
	if err := Call(cfg.Paths.SocketPath, OpHealth, &resp); err == nil && resp.OK {
		return true
	}
	data, err := os.ReadFile(cfg.Paths.PidPath)
	if err != nil {
		return false
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	return proc.Signal(syscall.Signal(0)) == nil
}

func newOrchestrator(cfg *config.Config, logger *logrus.Logger, archive bool) (*summary.Orchestrator, error) {
	gen, err := llm.New(cfg, logger)
	if err != nil {
		return nil, err
	}
	ns, err := notes.NewStore(cfg.Output.SummaryDir)
	if err != nil {
		return nil, err
	}
	var segs *segments.Store
	if archive {
		if segs, err = segments.NewStore(cfg.Recording.Dir); err != nil {
			return nil, err
		}
	}
	return summary.New(gen, ns, segs, summary.Options{
		MaxTokens:        cfg.LLM.MaxTokens,
		SummaryMaxTokens: cfg.LLM.SummaryMaxTokens,
		Save:             true,
	}, logger), nil
}
