//go:build whisper

package asr

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"lectern/internal/config"
	"lectern/internal/segments"

	"github.com/ggerganov/whisper.cpp/bindings/go/pkg/whisper"
	"github.com/sirupsen/logrus"
)

// whisperTranscriber runs whisper.cpp over whole segment files.
type whisperTranscriber struct {
	cfg    *config.Config
	logger *logrus.Logger
	model  whisper.Model
	mu     sync.Mutex // one decode at a time per model
}

func newWhisperTranscriber(cfg *config.Config, logger *logrus.Logger) (Transcriber, error) {
	modelPath := os.ExpandEnv(cfg.ASR.ModelPath)
	if _, err := os.Stat(modelPath); err != nil {
		return nil, fmt.Errorf("whisper model %s: %w (run: lectern setup)", modelPath, err)
	}
	model, err := whisper.New(modelPath)
	if err != nil {
		return nil, fmt.Errorf("load model: %w", err)
	}
	logger.Infof("whisper model loaded: %s (language %s, device %s)", modelPath, cfg.ASR.Language, cfg.ASR.Device)
	return &whisperTranscriber{cfg: cfg, logger: logger, model: model}, nil
}

func (w *whisperTranscriber) Transcribe(ctx context.Context, path string) ([]Span, error) {
	seg, err := segments.Read(path)
	if err != nil {
		return nil, err
	}
	samples := toModelInput(seg.Samples, seg.Format.Channels, seg.Format.SampleRate)
	if len(samples) == 0 {
		return nil, nil
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	wctx, err := w.model.NewContext()
	if err != nil {
		return nil, fmt.Errorf("whisper context: %w", err)
	}
	if lang := strings.TrimSpace(w.cfg.ASR.Language); lang != "" {
		if err := wctx.SetLanguage(lang); err != nil {
			w.logger.Warnf("set language %q: %v", lang, err)
		}
	}
	if err := wctx.Process(samples, nil, nil, nil); err != nil {
		return nil, fmt.Errorf("whisper process: %w", err)
	}

	var spans []Span
	for {
		s, err := wctx.NextSegment()
		if err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("whisper segment: %w", err)
		}
		text := strings.TrimSpace(s.Text)
		if text == "" {
			continue
		}
		spans = append(spans, Span{
			Text:  text,
			Start: s.Start.Seconds(),
			End:   s.End.Seconds(),
		})
	}
	return spans, nil
}
