package asr

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lectern/internal/config"

	"github.com/sirupsen/logrus"
)

// ErrUnavailable is returned by New when the binary was built without a
// speech backend.
var ErrUnavailable = errors.New("speech recognition unavailable: build with -tags whisper")

// Span is one timestamped piece of recognized text. Start and End are
// seconds relative to the beginning of the segment.
type Span struct {
	Text  string  `json:"text"`
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// Duration is End - Start in seconds.
func (s Span) Duration() float64 { return s.End - s.Start }

// Transcriber converts one audio segment file into spans, in spoken order.
type Transcriber interface {
	Transcribe(ctx context.Context, path string) ([]Span, error)
}

// TranscriberFunc adapts a function to Transcriber.
type TranscriberFunc func(ctx context.Context, path string) ([]Span, error)

func (f TranscriberFunc) Transcribe(ctx context.Context, path string) ([]Span, error) {
	return f(ctx, path)
}

// New returns the configured recognizer.
func New(cfg *config.Config, logger *logrus.Logger) (Transcriber, error) {
	return newWhisperTranscriber(cfg, logger)
}

// WithTimeout bounds every call to t. The underlying decoder may not be
// interruptible, so on expiry the call returns immediately and the decoder
// finishes in the background with its result discarded.
func WithTimeout(t Transcriber, d time.Duration) Transcriber {
	if d <= 0 {
		return t
	}
	return TranscriberFunc(func(ctx context.Context, path string) ([]Span, error) {
		ctx, cancel := context.WithTimeout(ctx, d)
		defer cancel()

		type result struct {
			spans []Span
			err   error
		}
		done := make(chan result, 1)
		go func() {
			defer func() {
				if r := recover(); r != nil {
					done <- result{err: fmt.Errorf("transcribe %s: recognizer panicked: %v", path, r)}
				}
			}()
			spans, err := t.Transcribe(ctx, path)
			done <- result{spans, err}
		}()
		select {
		case r := <-done:
			return r.spans, r.err
		case <-ctx.Done():
			return nil, fmt.Errorf("transcribe %s: %w", path, ctx.Err())
		}
	})
}
