package run

import (
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"lectern/internal/asr"
	"lectern/internal/config"
	"lectern/internal/control"
	"lectern/internal/logging"
	"lectern/internal/queue"
	"lectern/internal/segments"
	"lectern/internal/summary"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// tickSource yields one 160-sample frame per read and moves the clock by a second.
type tickSource struct {
	clock *fakeClock
}

func (s *tickSource) Open() error { return nil }
func (s *tickSource) Read() ([]int16, error) {
	time.Sleep(2 * time.Millisecond)
	s.clock.advance(time.Second)
	return make([]int16, 160), nil
}
func (s *tickSource) Close() error { return nil }
func (s *tickSource) Format() segments.Format {
	return segments.Format{SampleRate: 16000, Channels: 1, BitDepth: 16}
}

type fakeGen struct {
	mu      sync.Mutex
	prompts []string
}

func (g *fakeGen) Generate(_ context.Context, prompt string, _ int) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.prompts = append(g.prompts, prompt)
	return "notes", nil
}

func (g *fakeGen) aggregateCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	n := 0
	for _, p := range g.prompts {
		if strings.Contains(p, "whole lecture") {
			n++
		}
	}
	return n
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()
	cfg, err := config.Default()
	if err != nil {
		t.Fatal(err)
	}
	cfg.Recording.Dir = filepath.Join(dir, "recordings")
	cfg.Recording.IntervalSec = 3
	cfg.Output.SummaryDir = filepath.Join(dir, "summaries")
	cfg.Paths.SocketPath = ""
	cfg.Metrics.Enabled = false
	cfg.ASR.TimeoutSec = 5
	return cfg
}

func spansFor(path string) []asr.Span {
	id, _ := segments.ParseID(filepath.Base(path))
	return []asr.Span{{Text: fmt.Sprintf("segment %d", id), Start: 0, End: 2}}
}

func TestConsumerIsolatesPanickingSegment(t *testing.T) {
	cfg := testConfig(t)
	clock := &fakeClock{now: time.Date(2025, 3, 14, 9, 0, 0, 0, time.Local)}
	seen := make(chan string, 8)
	tr := asr.TranscriberFunc(func(_ context.Context, path string) ([]asr.Span, error) {
		seen <- path
		if strings.Contains(path, "seg_160") {
			panic("decoder crashed")
		}
		return []asr.Span{{Text: path, Start: 0, End: 1}}, nil
	})
	srv, err := New(cfg, logging.NewTestLogger(), Deps{Source: &tickSource{clock: clock}, Transcriber: tr, Generator: &fakeGen{}, Now: clock.Now})
	if err != nil {
		t.Fatal(err)
	}
	srv.wait = 10 * time.Millisecond
	for _, id := range []int64{100, 160, 220} {
		if err := srv.queue.Put(queue.Item{SegmentID: id, Path: fmt.Sprintf("seg_%d", id)}); err != nil {
			t.Fatal(err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.consume(ctx) }()

	var order []string
	for len(order) < 3 {
		select {
		case p := <-seen:
			order = append(order, p)
		case <-time.After(5 * time.Second):
			t.Fatalf("consumer stalled after %v", order)
		}
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("consume: %v", err)
	}

	if strings.Join(order, ",") != "seg_100,seg_160,seg_220" {
		t.Fatalf("processing order %v", order)
	}
	if got := srv.metrics.failed.Load(); got != 1 {
		t.Fatalf("failed = %d, want 1", got)
	}
	notes := srv.copyNotes()
	if len(notes) != 2 || notes[0].SegmentID != 100 || notes[1].SegmentID != 220 {
		t.Fatalf("unexpected notes %+v", notes)
	}
}

func TestTranscriptionErrorSkipsItem(t *testing.T) {
	cfg := testConfig(t)
	clock := &fakeClock{now: time.Date(2025, 3, 14, 9, 0, 0, 0, time.Local)}
	gen := &fakeGen{}
	tr := asr.TranscriberFunc(func(context.Context, string) ([]asr.Span, error) {
		return nil, errors.New("model missing")
	})
	srv, err := New(cfg, logging.NewTestLogger(), Deps{Source: &tickSource{clock: clock}, Transcriber: tr, Generator: gen, Now: clock.Now})
	if err != nil {
		t.Fatal(err)
	}
	srv.processItem(context.Background(), queue.Item{SegmentID: 1, Path: "x"})
	if srv.metrics.failed.Load() != 1 || len(gen.prompts) != 0 {
		t.Fatalf("transcription error should skip summarization")
	}
}

func TestShutdownSummarizesOnceAndArchives(t *testing.T) {
	cfg := testConfig(t)
	clock := &fakeClock{now: time.Date(2025, 3, 14, 9, 0, 0, 0, time.Local)}
	gen := &fakeGen{}
	tr := asr.TranscriberFunc(func(_ context.Context, path string) ([]asr.Span, error) {
		return spansFor(path), nil
	})
	srv, err := New(cfg, logging.NewTestLogger(), Deps{Source: &tickSource{clock: clock}, Transcriber: tr, Generator: gen, Now: clock.Now})
	if err != nil {
		t.Fatal(err)
	}
	srv.wait = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	type outcome struct {
		res summary.SessionResult
		err error
	}
	done := make(chan outcome, 1)
	go func() {
		res, err := srv.Run(ctx)
		done <- outcome{res, err}
	}()

	deadline := time.After(10 * time.Second)
	for srv.metrics.summarized.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("only %d blocks summarized", srv.metrics.summarized.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	out := <-done
	if out.err != nil {
		t.Fatalf("run: %v", out.err)
	}

	if n := gen.aggregateCalls(); n != 1 {
		t.Fatalf("aggregate summary requested %d times", n)
	}
	if out.res.SummaryPath == "" {
		t.Fatalf("no session summary written")
	}
	if _, err := os.Stat(out.res.ArchivePath); err != nil {
		t.Fatalf("archive: %v", err)
	}
	left, err := srv.segs.List()
	if err != nil {
		t.Fatal(err)
	}
	if len(left) != 0 {
		t.Fatalf("%d segments left after archive", len(left))
	}
	recorded := srv.metrics.recorded.Load()
	if got := srv.metrics.transcribed.Load(); got != recorded {
		t.Fatalf("transcribed %d of %d recorded segments", got, recorded)
	}
	if int64(out.res.MergedSegments) != recorded {
		t.Fatalf("archived %d of %d segments", out.res.MergedSegments, recorded)
	}
	if int64(out.res.Notes) != srv.metrics.summarized.Load() {
		t.Fatalf("session covered %d notes, %d saved", out.res.Notes, srv.metrics.summarized.Load())
	}
}

func TestRunFailsFastWhenDeviceMissing(t *testing.T) {
	cfg := testConfig(t)
	gen := &fakeGen{}
	src := failingSource{err: errors.New("no input devices found")}
	srv, err := New(cfg, logging.NewTestLogger(), Deps{Source: src, Transcriber: asr.TranscriberFunc(func(context.Context, string) ([]asr.Span, error) { return nil, nil }), Generator: gen})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := srv.Run(context.Background()); err == nil {
		t.Fatalf("expected device error")
	}
	if len(gen.prompts) != 0 {
		t.Fatalf("no summary should be attempted when recording never started")
	}
}

type failingSource struct{ err error }

func (f failingSource) Open() error             { return f.err }
func (f failingSource) Read() ([]int16, error)  { return nil, f.err }
func (f failingSource) Close() error            { return nil }
func (f failingSource) Format() segments.Format { return segments.Format{SampleRate: 16000, Channels: 1} }

func TestControlSocketStatusAndStop(t *testing.T) {
	cfg := testConfig(t)
	sockDir, err := os.MkdirTemp("", "lectern")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(sockDir) })
	cfg.Paths.SocketPath = filepath.Join(sockDir, "c.sock")

	clock := &fakeClock{now: time.Date(2025, 3, 14, 9, 0, 0, 0, time.Local)}
	tr := asr.TranscriberFunc(func(_ context.Context, path string) ([]asr.Span, error) {
		return spansFor(path), nil
	})
	srv, err := New(cfg, logging.NewTestLogger(), Deps{Source: &tickSource{clock: clock}, Transcriber: tr, Generator: &fakeGen{}, Now: clock.Now})
	if err != nil {
		t.Fatal(err)
	}
	srv.wait = 10 * time.Millisecond
	done := make(chan error, 1)
	go func() {
		_, err := srv.Run(context.Background())
		done <- err
	}()

	var health control.SimpleResponse
	deadline := time.Now().Add(5 * time.Second)
	for {
		if err := control.Call(cfg.Paths.SocketPath, control.OpHealth, &health); err == nil {
			break
		}
		if time.Now().After(deadline) {
			t.Fatalf("control socket never came up")
		}
		time.Sleep(10 * time.Millisecond)
	}
	if !health.OK {
		t.Fatalf("health = %+v", health)
	}

	var st control.Status
	if err := control.Call(cfg.Paths.SocketPath, control.OpStatus, &st); err != nil {
		t.Fatalf("status: %v", err)
	}
	if !st.Running || st.SessionID == "" {
		t.Fatalf("unexpected status %+v", st)
	}

	var stop control.SimpleResponse
	if err := control.Call(cfg.Paths.SocketPath, control.OpStop, &stop); err != nil || !stop.OK {
		t.Fatalf("stop: %+v %v", stop, err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatalf("server did not stop")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	cfg := testConfig(t)
	clock := &fakeClock{now: time.Now()}
	srv, err := New(cfg, logging.NewTestLogger(), Deps{
		Source:      &tickSource{clock: clock},
		Transcriber: asr.TranscriberFunc(func(context.Context, string) ([]asr.Span, error) { return nil, nil }),
		Generator:   &fakeGen{},
	})
	if err != nil {
		t.Fatal(err)
	}
	srv.metrics.recorded.Add(4)
	srv.metrics.hooksDropped.Add(1)
	_ = srv.queue.Put(queue.Item{SegmentID: 1})

	rec := httptest.NewRecorder()
	srv.writeMetrics(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()
	for _, want := range []string{
		"lectern_segments_recorded_total 4",
		"lectern_hooks_dropped_total 1",
		"lectern_queue_depth 1",
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("metrics missing %q:\n%s", want, body)
		}
	}
}

func TestStatusTailIsBounded(t *testing.T) {
	cfg := testConfig(t)
	cfg.UI.StatusTail = 2
	clock := &fakeClock{now: time.Now()}
	srv, err := New(cfg, logging.NewTestLogger(), Deps{
		Source:      &tickSource{clock: clock},
		Transcriber: asr.TranscriberFunc(func(_ context.Context, p string) ([]asr.Span, error) { return spansFor(p), nil }),
		Generator:   &fakeGen{},
		Now:         clock.Now,
	})
	if err != nil {
		t.Fatal(err)
	}
	for i := int64(1); i <= 4; i++ {
		srv.processItem(context.Background(), queue.Item{SegmentID: i, Path: segments.FileName(i)})
	}
	notes := srv.copyNotes()
	if len(notes) != 2 || notes[1].SegmentID != 4 {
		t.Fatalf("status tail %+v", notes)
	}
}

// openCounter records whether the device was ever opened.
type openCounter struct {
	tickSource
	opened bool
}

func (s *openCounter) Open() error {
	s.opened = true
	return nil
}

func TestRunAbortsWhenControlSocketCannotBind(t *testing.T) {
	cfg := testConfig(t)
	cfg.Paths.SocketPath = filepath.Join(t.TempDir(), "missing", "c.sock")
	clock := &fakeClock{now: time.Date(2025, 3, 14, 9, 0, 0, 0, time.Local)}
	src := &openCounter{tickSource: tickSource{clock: clock}}
	gen := &fakeGen{}
	srv, err := New(cfg, logging.NewTestLogger(), Deps{Source: src, Transcriber: asr.TranscriberFunc(func(context.Context, string) ([]asr.Span, error) { return nil, nil }), Generator: gen, Now: clock.Now})
	if err != nil {
		t.Fatal(err)
	}
	_, err = srv.Run(context.Background())
	if err == nil || !strings.Contains(err.Error(), "control socket") {
		t.Fatalf("expected control socket error, got %v", err)
	}
	if src.opened {
		t.Fatalf("audio device opened although the daemon could not be controlled")
	}
	if len(gen.prompts) != 0 {
		t.Fatalf("no summary expected, got %d prompts", len(gen.prompts))
	}
}
