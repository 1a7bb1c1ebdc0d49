// Package audio captures PCM frames from an input device.
package audio

import (
	"errors"

	"lectern/internal/config"
	"lectern/internal/segments"
)

var (
	// ErrInputOverflowed reports frames lost because reads fell behind. The
	// stream is still usable.
	ErrInputOverflowed = errors.New("audio input overflowed")
	// ErrUnavailable is returned when the binary was built without PortAudio.
	ErrUnavailable = errors.New("audio capture unavailable: build with -tags whisper (PortAudio required)")
)

// Options selects and shapes the input stream.
type Options struct {
	DeviceName string // substring match, empty means system default
	SampleRate int
	Channels   int
	Chunk      int // frames per read
}

// OptionsFromConfig maps the [audio] section.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		DeviceName: cfg.Audio.DeviceName,
		SampleRate: cfg.Audio.SampleRate,
		Channels:   cfg.Audio.Channels,
		Chunk:      cfg.Audio.Chunk,
	}
}

// Format is the PCM layout Read returns.
func (o Options) Format() segments.Format {
	return segments.Format{SampleRate: o.SampleRate, Channels: o.Channels, BitDepth: 16}
}

// Device describes one input device.
type Device struct {
	Index     int     `json:"index"`
	Name      string  `json:"name"`
	Channels  int     `json:"channels"`
	LatencyMs float64 `json:"latency_ms"`
	Default   bool    `json:"default"`
}
