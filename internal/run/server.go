package run

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"lectern/internal/asr"
	"lectern/internal/audio"
	"lectern/internal/config"
	"lectern/internal/control"
	"lectern/internal/hook"
	"lectern/internal/llm"
	"lectern/internal/notes"
	"lectern/internal/queue"
	"lectern/internal/recorder"
	"lectern/internal/segments"
	"lectern/internal/smartcut"
	"lectern/internal/speech"
	"lectern/internal/summary"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const consumerWait = time.Second

// Deps are the collaborators a Server drives. Serve builds the real ones.
type Deps struct {
	Source      recorder.Source
	Transcriber asr.Transcriber
	Generator   llm.Generator
	Gate        *speech.Gate // nil disables the speech gate
	Hook        *hook.Runner // nil or unconfigured disables hooks
	Now         func() time.Time
}

// Server records one session, turns segments into notes as they arrive and
// closes the session with an aggregate summary.
type Server struct {
	cfg    *config.Config
	logger *logrus.Logger

	segs        *segments.Store
	notes       *notes.Store
	queue       *queue.Queue[queue.Item]
	rec         *recorder.Recorder
	transcriber asr.Transcriber
	detector    smartcut.Detector
	orch        *summary.Orchestrator
	gate        *speech.Gate
	hook        *hook.Runner
	now         func() time.Time
	wait        time.Duration

	startedAt time.Time
	metrics   metrics
	hookCh    chan hook.Job

	notesMu sync.Mutex
	recent  []control.NoteEntry

	stopOnce sync.Once
	stopCh   chan struct{}
}

// Serve runs the daemon until interrupted or asked to stop, then writes the
// session summary.
func Serve(cfg *config.Config, logger *logrus.Logger) error {
	if err := cfg.RequireAPIKey(); err != nil {
		return err
	}
	if err := config.MustStatePaths(cfg); err != nil {
		return err
	}
	gen, err := llm.New(cfg, logger)
	if err != nil {
		return err
	}
	tr, err := asr.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("asr init: %w", err)
	}
	hk, err := hook.NewRunner(cfg, logger)
	if err != nil {
		return err
	}
	srv, err := New(cfg, logger, Deps{
		Source:      audio.NewSource(audio.OptionsFromConfig(cfg), logger),
		Transcriber: tr,
		Generator:   gen,
		Gate:        speech.NewGate(cfg, logger),
		Hook:        hk,
	})
	if err != nil {
		return err
	}

	if err := os.WriteFile(cfg.Paths.PidPath, []byte(fmt.Sprintf("%d", os.Getpid())), 0o644); err != nil {
		return err
	}
	defer func() {
		if err := os.Remove(cfg.Paths.PidPath); err != nil && !errors.Is(err, os.ErrNotExist) {
			logger.Warnf("remove pid file: %v", err)
		}
	}()
	if err := os.Remove(cfg.Paths.SocketPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Debugf("remove stale socket: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	res, err := srv.Run(ctx)
	if res.SummaryPath != "" {
		logger.Infof("session summary: %s", res.SummaryPath)
	}
	if res.ArchivePath != "" {
		logger.Infof("session recording: %s", res.ArchivePath)
	}
	return err
}

// New wires a Server from cfg and deps without touching the audio device.
func New(cfg *config.Config, logger *logrus.Logger, deps Deps) (*Server, error) {
	if deps.Source == nil || deps.Transcriber == nil || deps.Generator == nil {
		return nil, errors.New("run: source, transcriber and generator are required")
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	segs, err := segments.NewStore(cfg.Recording.Dir)
	if err != nil {
		return nil, err
	}
	ns, err := notes.NewStore(cfg.Output.SummaryDir)
	if err != nil {
		return nil, err
	}

	s := &Server{
		cfg:         cfg,
		logger:      logger,
		segs:        segs,
		notes:       ns,
		queue:       queue.New[queue.Item](),
		transcriber: asr.WithTimeout(deps.Transcriber, cfg.ASRTimeout()),
		detector: smartcut.Detector{
			MaxSpan: cfg.SmartCut.MaxSpanSec,
			MaxGap:  cfg.SmartCut.MaxGapSec,
			Markers: cfg.SmartCut.Markers,
		},
		gate:   deps.Gate,
		hook:   deps.Hook,
		now:    deps.Now,
		wait:   consumerWait,
		recent: make([]control.NoteEntry, 0, max(1, cfg.UI.StatusTail)),
		hookCh: make(chan hook.Job, max(1, cfg.Hook.QueueSize)),
		stopCh: make(chan struct{}),
	}
	s.orch = summary.New(deps.Generator, ns, segs, summary.Options{
		MaxTokens:        cfg.LLM.MaxTokens,
		SummaryMaxTokens: cfg.LLM.SummaryMaxTokens,
		Save:             cfg.Output.SaveSummary,
		Now:              deps.Now,
	}, logger)
	s.rec = recorder.New(deps.Source, segs, recorder.Options{
		Interval: cfg.Interval(),
		OnFlush:  s.enqueue,
		Now:      deps.Now,
	}, logger)
	return s, nil
}

// Run records until ctx is cancelled, a stop is requested or capture fails.
// It then finishes queued work and summarizes the session exactly once.
func (s *Server) Run(ctx context.Context) (summary.SessionResult, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// The control socket is how stop and status reach the daemon, so a
	// failure to bind aborts before any audio is captured.
	var ln net.Listener
	if s.cfg.Paths.SocketPath != "" {
		l, err := net.Listen("unix", s.cfg.Paths.SocketPath)
		if err != nil {
			return summary.SessionResult{}, fmt.Errorf("control socket: %w", err)
		}
		ln = l
	}
	if err := s.rec.Start(ctx); err != nil {
		if ln != nil {
			_ = ln.Close()
		}
		return summary.SessionResult{}, err
	}
	s.startedAt = s.now()
	s.logger.Infof("session %s started", s.orch.SessionID())

	hookDone := make(chan struct{})
	go s.hookWorker(hookDone)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.consume(gctx) })
	g.Go(func() error { return s.supervise(gctx, cancel) })
	if ln != nil {
		g.Go(func() error { return s.controlLoop(gctx, ln) })
	}
	if s.cfg.Metrics.Enabled {
		g.Go(func() error { return s.metricsServe(gctx) })
	}
	runErr := g.Wait()
	cancel()

	res, finErr := s.finalize(context.WithoutCancel(ctx))

	close(s.hookCh)
	<-hookDone
	return res, errors.Join(runErr, finErr)
}

// Stop asks a running server to shut down.
func (s *Server) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

func (s *Server) supervise(ctx context.Context, cancel context.CancelFunc) error {
	select {
	case <-ctx.Done():
		return nil
	case <-s.stopCh:
		s.logger.Info("stop requested, shutting down")
		cancel()
		return nil
	case <-s.rec.Done():
		if err := s.rec.Err(); err != nil {
			return fmt.Errorf("capture: %w", err)
		}
		return nil
	}
}

// enqueue runs on the capture goroutine after every flush.
func (s *Server) enqueue(seg segments.Segment) {
	s.metrics.recorded.Add(1)
	if err := s.queue.Put(queue.Item{SegmentID: seg.ID, Path: seg.Path}); err != nil {
		s.logger.Warnf("segment %d not queued: %v", seg.ID, err)
	}
}

func (s *Server) finalize(ctx context.Context) (summary.SessionResult, error) {
	if err := s.rec.Stop(); err != nil {
		s.logger.Debugf("recorder stopped with: %v", err)
	}
	s.queue.Close()
	pending := s.queue.Drain()
	if len(pending) > 0 {
		s.logger.Infof("processing %d queued segments before exit", len(pending))
	}
	for _, item := range pending {
		s.processItem(ctx, item)
	}

	if s.cfg.Recording.DrainTail {
		seg, ok, err := s.rec.Drain()
		switch {
		case err != nil:
			s.logger.Errorf("drain tail: %v", err)
		case ok:
			s.metrics.recorded.Add(1)
			s.processItem(ctx, queue.Item{SegmentID: seg.ID, Path: seg.Path})
		}
	}

	s.logger.Info("generating session summary")
	res, err := s.orch.SummarizeSession(ctx, "")
	if err != nil {
		s.logger.Errorf("session summary: %v", err)
		return res, err
	}
	s.logger.Infof("session %s finished: %d notes, %d segments archived", s.orch.SessionID(), res.Notes, res.MergedSegments)
	return res, nil
}

func (s *Server) rememberNote(rec notes.Record, saved notes.Saved) {
	s.metrics.notes.Add(1)
	entry := control.NoteEntry{
		Timestamp: rec.Timestamp,
		SegmentID: rec.SegmentID,
		Summary:   rec.Summary,
		NotePath:  saved.NotePath,
		Degraded:  rec.Degraded,
	}
	s.notesMu.Lock()
	defer s.notesMu.Unlock()
	s.recent = append(s.recent, entry)
	if tail := max(1, s.cfg.UI.StatusTail); len(s.recent) > tail {
		s.recent = s.recent[len(s.recent)-tail:]
	}
}

func (s *Server) copyNotes() []control.NoteEntry {
	s.notesMu.Lock()
	defer s.notesMu.Unlock()
	out := make([]control.NoteEntry, len(s.recent))
	copy(out, s.recent)
	return out
}

func (s *Server) status() control.Status {
	recording := true
	select {
	case <-s.rec.Done():
		recording = false
	default:
	}
	return control.Status{
		Running:          true,
		UptimeSec:        s.now().Sub(s.startedAt).Seconds(),
		SessionID:        s.orch.SessionID(),
		Recording:        recording,
		QueueDepth:       s.queue.Len(),
		SegmentsRecorded: s.metrics.recorded.Load(),
		NotesSaved:       s.metrics.notes.Load(),
		Notes:            s.copyNotes(),
	}
}
