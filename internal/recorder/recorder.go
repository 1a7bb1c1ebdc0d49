// Package recorder turns a continuous audio stream into fixed-interval
// segments.
package recorder

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"lectern/internal/audio"
	"lectern/internal/segments"

	"github.com/sirupsen/logrus"
)

// DefaultInterval is the flush period when Options.Interval is unset.
const DefaultInterval = 60 * time.Second

// Source yields interleaved 16-bit frames. Read blocks until a chunk is
// available. Open is called once by Start and Close once when capture ends.
type Source interface {
	Open() error
	Read() ([]int16, error)
	Close() error
	Format() segments.Format
}

// Options configures a Recorder.
type Options struct {
	Interval time.Duration
	// OnFlush is called on the capture goroutine after each segment is
	// written. It must not block for long.
	OnFlush func(segments.Segment)
	Now     func() time.Time
}

// Recorder buffers frames and flushes them to a segment store every
// Interval. It is not restartable.
type Recorder struct {
	src    Source
	store  *segments.Store
	opts   Options
	logger *logrus.Logger

	mu        sync.Mutex
	buf       []int16
	bufStart  time.Time
	lastFlush time.Time
	err       error
	started   bool

	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a Recorder over src.
func New(src Source, store *segments.Store, opts Options, logger *logrus.Logger) *Recorder {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Recorder{src: src, store: store, opts: opts, logger: logger, done: make(chan struct{})}
}

// Start opens the source and begins capturing in the background. Device
// errors are returned here and nothing is retried.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.started {
		r.mu.Unlock()
		return errors.New("recorder already started")
	}
	r.started = true
	r.mu.Unlock()

	if err := r.src.Open(); err != nil {
		close(r.done)
		return fmt.Errorf("open audio source: %w", err)
	}
	ctx, cancel := context.WithCancel(ctx)
	now := r.opts.Now()
	r.mu.Lock()
	r.cancel = cancel
	r.bufStart = now
	r.lastFlush = now
	r.mu.Unlock()

	r.logger.Infof("recording started, flushing every %s to %s", r.opts.Interval, r.store.Dir())
	go r.capture(ctx)
	return nil
}

// Done is closed when capture has ended, either by Stop or by a read error.
func (r *Recorder) Done() <-chan struct{} { return r.done }

// Err reports the read error that ended capture, if any.
func (r *Recorder) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Stop ends capture and waits for the capture goroutine. The unflushed tail
// stays buffered for Drain. Stop is safe to call more than once.
func (r *Recorder) Stop() error {
	r.mu.Lock()
	cancel, started := r.cancel, r.started
	r.mu.Unlock()
	if !started {
		return nil
	}
	if cancel != nil {
		cancel()
	}
	<-r.done
	return r.Err()
}

// Drain writes whatever is buffered as one final segment. ok is false when
// the buffer was empty. OnFlush is not called.
func (r *Recorder) Drain() (seg segments.Segment, ok bool, err error) {
	r.mu.Lock()
	samples, start := r.takeLocked(r.opts.Now())
	r.mu.Unlock()
	if len(samples) == 0 {
		return segments.Segment{}, false, nil
	}
	seg, err = r.store.Write(start, r.src.Format(), samples)
	if err != nil {
		return segments.Segment{}, false, err
	}
	r.logger.Infof("drained tail segment %d (%s)", seg.ID, seg.Duration().Round(time.Millisecond))
	return seg, true, nil
}

func (r *Recorder) capture(ctx context.Context) {
	defer close(r.done)
	defer func() {
		if err := r.src.Close(); err != nil {
			r.logger.Warnf("close audio source: %v", err)
		}
	}()
	for ctx.Err() == nil {
		frame, err := r.src.Read()
		if err != nil {
			if errors.Is(err, audio.ErrInputOverflowed) {
				r.logger.Warn("input overflow")
				continue
			}
			if ctx.Err() != nil {
				return
			}
			r.logger.Errorf("capture stopped: %v", err)
			r.mu.Lock()
			r.err = err
			r.mu.Unlock()
			return
		}
		now := r.opts.Now()
		r.mu.Lock()
		r.buf = append(r.buf, frame...)
		due := now.Sub(r.lastFlush) >= r.opts.Interval
		var samples []int16
		var start time.Time
		if due {
			samples, start = r.takeLocked(now)
		}
		r.mu.Unlock()
		if due {
			r.flush(start, samples)
		}
	}
}

// takeLocked hands over the buffer and restarts it at now.
func (r *Recorder) takeLocked(now time.Time) ([]int16, time.Time) {
	samples, start := r.buf, r.bufStart
	r.buf = nil
	r.bufStart = now
	r.lastFlush = now
	return samples, start
}

func (r *Recorder) flush(start time.Time, samples []int16) {
	if len(samples) == 0 {
		return
	}
	seg, err := r.store.Write(start, r.src.Format(), samples)
	if err != nil {
		r.logger.Errorf("write segment: %v", err)
		return
	}
	r.logger.Infof("segment %d saved: %s", seg.ID, seg.Path)
	if r.opts.OnFlush != nil {
		r.opts.OnFlush(seg)
	}
}
