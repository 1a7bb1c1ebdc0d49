// Package speech decides whether a recorded segment contains enough voice
// to be worth transcribing.
package speech

import (
	"errors"
	"fmt"

	"lectern/internal/config"
	"lectern/internal/segments"

	"github.com/sirupsen/logrus"
)

// FrameMS is the analysis frame length.
const FrameMS = 20

// ErrUnavailable is returned when the binary was built without WebRTC VAD.
var ErrUnavailable = errors.New("voice activity detection unavailable: build with -tags whisper")

// Detector reports the fraction of voiced frames in mono PCM.
type Detector interface {
	Ratio(samples []int16, sampleRate int) (float64, error)
}

// Gate drops segments whose voiced ratio is below a threshold. A nil Gate
// allows everything.
type Gate struct {
	det      Detector
	minRatio float64
	logger   *logrus.Logger
}

// NewGate returns nil when [vad] is disabled or no detector can be built.
func NewGate(cfg *config.Config, logger *logrus.Logger) *Gate {
	if !cfg.VAD.Enabled {
		return nil
	}
	det, err := NewWebRTC(cfg.VAD.Aggressiveness)
	if err != nil {
		logger.Warnf("speech gate disabled: %v", err)
		return nil
	}
	return NewGateWith(det, cfg.VAD.MinSpeechRatio, logger)
}

// NewGateWith builds a gate over an explicit detector.
func NewGateWith(det Detector, minRatio float64, logger *logrus.Logger) *Gate {
	return &Gate{det: det, minRatio: minRatio, logger: logger}
}

// Allow reports whether seg should be transcribed. Detector errors let the
// segment through.
func (g *Gate) Allow(seg segments.Segment) (bool, float64) {
	if g == nil {
		return true, 1
	}
	mono := Mono(seg.Samples, seg.Format.Channels)
	ratio, err := g.det.Ratio(mono, seg.Format.SampleRate)
	if err != nil {
		g.logger.Warnf("vad on segment %d: %v", seg.ID, err)
		return true, 1
	}
	return ratio >= g.minRatio, ratio
}

// Mono keeps the first channel of interleaved PCM.
func Mono(samples []int16, channels int) []int16 {
	if channels <= 1 {
		return samples
	}
	out := make([]int16, len(samples)/channels)
	for i := range out {
		out[i] = samples[i*channels]
	}
	return out
}

// FrameLen is the number of samples in one analysis frame at rate.
func FrameLen(rate int) (int, error) {
	switch rate {
	case 8000, 16000, 32000, 48000:
		return rate * FrameMS / 1000, nil
	default:
		return 0, fmt.Errorf("sample rate %d unsupported by vad (use 8k/16k/32k/48k)", rate)
	}
}
