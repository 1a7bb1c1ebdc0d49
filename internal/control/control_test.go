package control

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"lectern/internal/asr"
	"lectern/internal/config"
	"lectern/internal/segments"
	"lectern/internal/smartcut"
)

func TestTailFileSkipsBlankLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "log")
	if err := os.WriteFile(path, []byte("a\n\nb\nc\n\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	lines, err := tailFile(path, 2)
	if err != nil {
		t.Fatal(err)
	}
	if strings.Join(lines, ",") != "b,c" {
		t.Fatalf("lines = %v", lines)
	}
}

func TestWriteBlocks(t *testing.T) {
	spans := []asr.Span{
		{Text: "intro", Start: 0, End: 1.5},
		{Text: "moving on to loops", Start: 1.5, End: 3},
		{Text: "for i", Start: 65, End: 66.2},
	}
	blocks, reasons := smartcut.Detector{}.CutWithReasons(spans)
	var buf bytes.Buffer
	writeBlocks(&buf, blocks, reasons)
	out := buf.String()
	for _, want := range []string{
		"## block 1 [00:00.0 - 00:03.0] (marker)",
		"intro moving on to loops",
		"## block 2 [01:05.0 - 01:06.2] (end)",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("missing %q in:\n%s", want, out)
		}
	}

	buf.Reset()
	writeBlocks(&buf, nil, nil)
	if !strings.Contains(buf.String(), "no speech") {
		t.Fatalf("empty output %q", buf.String())
	}
}

func TestResolveModelFile(t *testing.T) {
	cfg, _ := config.Default()
	cfg.Paths.StateDir = "/state"
	cases := map[string]string{
		"turbo":                "/state/models/ggml-large-v3-turbo-q8_0.bin",
		"ggml-small-q5_1.bin":  "/state/models/ggml-small-q5_1.bin",
		"/opt/models/mine.bin": "/opt/models/mine.bin",
	}
	for in, want := range cases {
		if got := resolveModelFile(cfg, in); got != want {
			t.Fatalf("resolveModelFile(%q) = %q, want %q", in, got, want)
		}
	}
	if _, ok := knownModelFile("ggml-medium-q5_1.bin"); !ok {
		t.Fatalf("file names should be accepted")
	}
	if _, ok := knownModelFile("nope"); ok {
		t.Fatalf("unknown model accepted")
	}
}

func TestFirstLine(t *testing.T) {
	if got := firstLine("## Loops\n- for"); got != "## Loops" {
		t.Fatalf("firstLine = %q", got)
	}
	long := strings.Repeat("x", 100)
	if got := firstLine(long); len([]rune(got)) != 81 {
		t.Fatalf("expected truncation, got %d runes", len([]rune(got)))
	}
}

func TestParseEnvPairs(t *testing.T) {
	env, err := parseEnvPairs([]string{"LECTERN_LOG_LEVEL=debug", "OPENAI_BASE_URL=http://x/v1?a=b"})
	if err != nil {
		t.Fatal(err)
	}
	if env["LECTERN_LOG_LEVEL"] != "debug" || env["OPENAI_BASE_URL"] != "http://x/v1?a=b" {
		t.Fatalf("env = %v", env)
	}
	if _, err := parseEnvPairs([]string{"novalue"}); err == nil {
		t.Fatalf("expected error")
	}
}

// liveDaemon answers every control request with ok, like a recording daemon.
func liveDaemon(t *testing.T, socketPath string) {
	t.Helper()
	ln, err := net.Listen("unix", socketPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = ln.Close() })
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			sc := bufio.NewScanner(conn)
			if sc.Scan() {
				_ = json.NewEncoder(conn).Encode(SimpleResponse{OK: true, Message: "ok"})
			}
			_ = conn.Close()
		}
	}()
}

func summarizeConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	sockDir, err := os.MkdirTemp("", "lectern")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(sockDir) })
	cfg, _ := config.Default()
	cfg.Paths.ConfigPath = filepath.Join(dir, "config.toml")
	cfg.Paths.SocketPath = filepath.Join(sockDir, "c.sock")
	cfg.Paths.PidPath = filepath.Join(dir, "lectern.pid")
	cfg.Recording.Dir = filepath.Join(dir, "recordings")
	cfg.Output.SummaryDir = filepath.Join(dir, "summaries")
	cfg.LLM.APIKey = "test-key"
	if err := config.Save(cfg, cfg.Paths.ConfigPath); err != nil {
		t.Fatal(err)
	}
	return cfg
}

func TestSummarizeKeepsSegmentsWhileDaemonRecords(t *testing.T) {
	cfg := summarizeConfig(t)
	store, err := segments.NewStore(cfg.Recording.Dir)
	if err != nil {
		t.Fatal(err)
	}
	format := segments.Format{SampleRate: 16000, Channels: 1, BitDepth: 16}
	if _, err := store.Write(time.Unix(1000, 0), format, make([]int16, 160)); err != nil {
		t.Fatal(err)
	}
	liveDaemon(t, cfg.Paths.SocketPath)

	cfgPath := cfg.Paths.ConfigPath
	cmd := NewSummarizeCmd(&cfgPath)
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{})
	err = cmd.Execute()
	if err == nil || !strings.Contains(err.Error(), "still recording") {
		t.Fatalf("expected refusal while recording, got %v", err)
	}
	left, err := store.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(left) != 1 {
		t.Fatalf("queued segment was touched: %d left", len(left))
	}
}

func TestArchiveAllowed(t *testing.T) {
	now := time.Date(2025, 3, 14, 18, 0, 0, 0, time.Local)

	cfg := summarizeConfig(t)
	if ok, err := archiveAllowed(cfg, "", now); !ok || err != nil {
		t.Fatalf("idle today: ok=%v err=%v", ok, err)
	}
	if ok, err := archiveAllowed(cfg, "2025-03-14", now); !ok || err != nil {
		t.Fatalf("explicit today: ok=%v err=%v", ok, err)
	}
	if ok, err := archiveAllowed(cfg, "2025-03-13", now); ok || err != nil {
		t.Fatalf("past day must not archive: ok=%v err=%v", ok, err)
	}

	// A live pid without a socket is a daemon finishing its session.
	if err := os.WriteFile(cfg.Paths.PidPath, []byte(fmt.Sprintf("%d", os.Getpid())), 0o644); err != nil {
		t.Fatal(err)
	}
	if ok, err := archiveAllowed(cfg, "", now); ok || err == nil {
		t.Fatalf("expected refusal while daemon shuts down: ok=%v err=%v", ok, err)
	}
}
