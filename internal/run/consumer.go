package run

import (
	"context"
	"errors"
	"runtime/debug"

	"lectern/internal/queue"
	"lectern/internal/segments"
)

// consume takes segments off the queue until ctx is cancelled. Work on an
// item already taken runs to completion.
func (s *Server) consume(ctx context.Context) error {
	work := context.WithoutCancel(ctx)
	for ctx.Err() == nil {
		item, err := s.queue.Get(ctx, s.wait)
		switch {
		case err == nil:
			s.processItem(work, item)
		case errors.Is(err, queue.ErrTimeout):
		case errors.Is(err, queue.ErrClosed), ctx.Err() != nil:
			return nil
		default:
			return err
		}
	}
	return nil
}

// processItem transcribes one segment and summarizes each topic block in it.
// Failures, panics included, are confined to the item.
func (s *Server) processItem(ctx context.Context, item queue.Item) {
	log := s.logger.WithField("segment", item.SegmentID)
	defer func() {
		if r := recover(); r != nil {
			s.metrics.failed.Add(1)
			log.Errorf("processing panicked: %v\n%s", r, debug.Stack())
		}
	}()

	if s.gate != nil {
		seg, err := segments.Read(item.Path)
		if err != nil {
			log.Warnf("speech gate: %v", err)
		} else if ok, ratio := s.gate.Allow(seg); !ok {
			s.metrics.skipped.Add(1)
			log.Infof("skipped: speech ratio %.2f below %.2f", ratio, s.cfg.VAD.MinSpeechRatio)
			return
		}
	}

	spans, err := s.transcriber.Transcribe(ctx, item.Path)
	if err != nil {
		s.metrics.failed.Add(1)
		log.Errorf("transcription failed: %v", err)
		return
	}
	s.metrics.transcribed.Add(1)
	if len(spans) == 0 {
		log.Info("no speech recognized")
		return
	}

	blocks := s.detector.Cut(spans)
	log.Infof("transcribed %d spans into %d blocks", len(spans), len(blocks))
	for _, block := range blocks {
		rec, saved, err := s.orch.SummarizeBlock(ctx, block, item.SegmentID)
		if err != nil {
			log.Errorf("note: %v", err)
			continue
		}
		s.metrics.summarized.Add(1)
		if rec.Degraded {
			s.metrics.degraded.Add(1)
		}
		s.rememberNote(rec, saved)
		s.dispatchHook(rec, saved)
	}
}
