package run

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

type metrics struct {
	recorded     atomic.Int64
	transcribed  atomic.Int64
	skipped      atomic.Int64
	failed       atomic.Int64
	summarized   atomic.Int64
	degraded     atomic.Int64
	notes        atomic.Int64
	hooksSent    atomic.Int64
	hooksDropped atomic.Int64
}

func (s *Server) writeMetrics(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	fmt.Fprintf(w, "lectern_segments_recorded_total %d\n", s.metrics.recorded.Load())
	fmt.Fprintf(w, "lectern_segments_transcribed_total %d\n", s.metrics.transcribed.Load())
	fmt.Fprintf(w, "lectern_segments_skipped_total %d\n", s.metrics.skipped.Load())
	fmt.Fprintf(w, "lectern_transcribe_errors_total %d\n", s.metrics.failed.Load())
	fmt.Fprintf(w, "lectern_blocks_summarized_total %d\n", s.metrics.summarized.Load())
	fmt.Fprintf(w, "lectern_summaries_degraded_total %d\n", s.metrics.degraded.Load())
	fmt.Fprintf(w, "lectern_hooks_sent_total %d\n", s.metrics.hooksSent.Load())
	fmt.Fprintf(w, "lectern_hooks_dropped_total %d\n", s.metrics.hooksDropped.Load())
	fmt.Fprintf(w, "lectern_queue_depth %d\n", s.queue.Len())
}

func (s *Server) metricsServe(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", s.writeMetrics)
	server := &http.Server{
		Addr:              s.cfg.Metrics.Addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		_ = server.Close()
	}()
	s.logger.Infof("metrics listening on http://%s/metrics", s.cfg.Metrics.Addr)
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.logger.Warnf("metrics server: %v", err)
	}
	return nil
}
