package run

import (
	"context"

	"lectern/internal/hook"
	"lectern/internal/notes"
)

func (s *Server) dispatchHook(rec notes.Record, saved notes.Saved) {
	if !s.hook.Enabled() || saved.NotePath == "" {
		return
	}
	job := hook.Job{
		NotePath:  saved.NotePath,
		DataPath:  saved.DataPath,
		Summary:   rec.Summary,
		SegmentID: rec.SegmentID,
		Degraded:  rec.Degraded,
		Timestamp: rec.Timestamp,
	}
	select {
	case s.hookCh <- job:
	default:
		s.metrics.hooksDropped.Add(1)
		s.logger.Warn("hook queue full, dropping job")
	}
}

// hookWorker runs hooks until hookCh is closed. Jobs queued before shutdown
// still run.
func (s *Server) hookWorker(done chan<- struct{}) {
	defer close(done)
	for job := range s.hookCh {
		if err := s.hook.Run(context.Background(), job); err != nil {
			s.logger.Errorf("hook: %v", err)
			continue
		}
		s.metrics.hooksSent.Add(1)
	}
}
