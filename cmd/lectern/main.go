package main

import (
	"fmt"
	"os"

	"lectern/internal/control"
	"lectern/internal/daemon"

	"github.com/spf13/cobra"
)

const version = "0.1.0"

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	root := &cobra.Command{
		Use:   "lectern",
		Short: "Lectern: record a lecture, transcribe it locally, and write notes",
		Long: `Lectern records your mic in fixed-length segments, transcribes each one locally with whisper.cpp,
splits the transcript into topic blocks, and writes notes for every block with an LLM.
Stopping a session writes one summary of the whole lecture and merges the audio into one WAV.

Key commands:
  start|stop|restart        Session lifecycle
  status [--json]           Uptime, queue depth, recent notes
  summarize [--date]        Summarize saved notes for a day
  transcribe <wav>          Transcribe and split a file offline
  mic list|set              Select microphone (alias: microphone, mics)
  doctor|setup              Check deps / download default model
  models list|download|set  Manage whisper.cpp models
  config show|path          Inspect the effective config
  service install|uninstall|status   launchd helper (macOS)
  health|tail-log           Liveness, log tail

Notable flags/env:
  --metrics-addr <addr>     Enable /metrics (Prometheus text)
  --interval <sec>          Segment length for this run
  Env overrides: OPENAI_API_KEY, OPENAI_BASE_URL, LECTERN_INTERVAL,
                 LECTERN_METRICS_ADDR, LECTERN_LOG_LEVEL/FORMAT`,
		Example: `  lectern start --interval 60
  lectern stop --wait
  lectern status
  lectern summarize --date 2025-03-14
  lectern mic set --index 1
  lectern models download medium
  lectern service install --env LECTERN_METRICS_ADDR=127.0.0.1:9318`,
		DisableFlagsInUseLine: true,
		SilenceUsage:          true,
	}

	root.Version = version
	root.SetVersionTemplate("Lectern v{{.Version}}\n")

	cfgPath := root.PersistentFlags().StringP("config", "c", "", "Path to config file (TOML). Defaults to ~/.config/lectern/config.toml")
	root.CompletionOptions.DisableDefaultCmd = true

	root.AddCommand(daemon.NewStartCmd(cfgPath))
	root.AddCommand(daemon.NewStopCmd(cfgPath))
	root.AddCommand(daemon.NewRestartCmd(cfgPath))
	root.AddCommand(control.NewStatusCmd(cfgPath))
	root.AddCommand(control.NewHealthCmd(cfgPath))
	root.AddCommand(control.NewTailLogCmd(cfgPath))
	root.AddCommand(control.NewSummarizeCmd(cfgPath))
	root.AddCommand(control.NewTranscribeCmd(cfgPath))
	root.AddCommand(control.NewMicCmd(cfgPath))
	root.AddCommand(control.NewModelsCmd(cfgPath))
	root.AddCommand(control.NewSetupCmd(cfgPath))
	root.AddCommand(control.NewDoctorCmd(cfgPath))
	root.AddCommand(control.NewConfigCmd(cfgPath))
	root.AddCommand(control.NewServiceRootCmd(cfgPath))

	// Hidden internal serve command used by start and launchd.
	root.AddCommand(daemon.NewServeCmd(cfgPath))

	applyColorHelp(root)

	return root.Execute()
}

func applyColorHelp(root *cobra.Command) {
	const (
		boldBlue = "\033[1;34m"
		green    = "\033[32m"
		bold     = "\033[1m"
		dim      = "\033[2m"
		reset    = "\033[0m"
	)
	defaultHelp := root.HelpFunc()
	root.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		if cmd != root {
			defaultHelp(cmd, args)
			return
		}
		out := cmd.OutOrStdout()
		write := func(format string, args ...any) { _, _ = fmt.Fprintf(out, format, args...) }
		writeln := func(line string) { _, _ = fmt.Fprintln(out, line) }

		write("%sLectern%s: lecture recorder and note taker %s(v%s)%s\n", boldBlue, reset, dim, version, reset)
		write("%sRecords in segments, transcribes locally, and writes notes per topic.%s\n\n", dim, reset)

		write("%sUsage%s\n", bold, reset)
		write("  lectern [command] [flags]\n\n")

		write("%sKey commands%s\n", bold, reset)
		writeln("  start|stop|restart          session lifecycle")
		writeln("  status [--json]             uptime, queue depth, recent notes")
		writeln("  summarize [--date]          summarize saved notes for a day")
		writeln("  transcribe <wav>            transcribe and split a file offline")
		writeln("  mic list|set                select input device (alias: microphone, mics)")
		writeln("  doctor                      check deps/model/key/hook/portaudio")
		writeln("  setup                       download default whisper model")
		writeln("  models list|download|set    manage whisper.cpp models")
		writeln("  config show|path            inspect the effective config")
		writeln("  service install|uninstall|status manage launchd plist (macOS)")
		writeln("  health                      control-socket liveness ping")
		writeln("  tail-log                    show last log lines")
		writeln("")

		write("%sNotable flags & env%s\n", bold, reset)
		writeln("  --metrics-addr <addr>   enable /metrics (Prometheus)")
		writeln("  --interval <sec>        segment length for this run")
		writeln("  -c, --config <path>     config file (default ~/.config/lectern/config.toml)")
		writeln("  Env: OPENAI_API_KEY, OPENAI_BASE_URL, LECTERN_INTERVAL=60,")
		writeln("       LECTERN_METRICS_ADDR=host:port, LECTERN_LOG_LEVEL=debug,")
		writeln("       LECTERN_LOG_FORMAT=json")
		writeln("")

		write("%sExamples%s\n", bold, reset)
		writeln("  lectern start --interval 60")
		writeln("  lectern stop --wait")
		writeln("  lectern summarize --date 2025-03-14")
		writeln("  lectern transcribe lecture.wav --notes")
		writeln("  lectern models download medium")
		writeln("  lectern service install --env LECTERN_METRICS_ADDR=127.0.0.1:9318")
		writeln("")

		write("%sCommands%s\n", bold, reset)
		for _, c := range cmd.Commands() {
			if c.Hidden {
				continue
			}
			write("  %s%-15s%s %s\n", green, c.Name(), reset, c.Short)
		}
	})
}
