//go:build whisper

package audio

import (
	"errors"
	"fmt"
	"strings"

	"lectern/internal/segments"

	"github.com/gordonklaus/portaudio"
	"github.com/sirupsen/logrus"
)

// Source is a blocking PortAudio input stream.
type Source struct {
	opts   Options
	logger *logrus.Logger
	stream *portaudio.Stream
	buf    []int16
}

// NewSource prepares a source; nothing is opened until Open.
func NewSource(opts Options, logger *logrus.Logger) *Source {
	if opts.Channels < 1 {
		opts.Channels = 1
	}
	if opts.Chunk <= 0 {
		opts.Chunk = 1024
	}
	return &Source{opts: opts, logger: logger}
}

// Format reports the layout of frames returned by Read.
func (s *Source) Format() segments.Format { return s.opts.Format() }

// Open initializes PortAudio and starts the stream.
func (s *Source) Open() error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("portaudio init: %w", err)
	}
	dev, err := selectDevice(s.opts.DeviceName)
	if err != nil {
		_ = portaudio.Terminate()
		return err
	}
	s.buf = make([]int16, s.opts.Chunk*s.opts.Channels)
	stream, err := portaudio.OpenStream(portaudio.StreamParameters{
		Input: portaudio.StreamDeviceParameters{
			Device:   dev,
			Channels: s.opts.Channels,
			Latency:  dev.DefaultHighInputLatency,
		},
		SampleRate:      float64(s.opts.SampleRate),
		FramesPerBuffer: s.opts.Chunk,
	}, &s.buf)
	if err != nil {
		_ = portaudio.Terminate()
		return fmt.Errorf("open stream on %q: %w", dev.Name, err)
	}
	if err := stream.Start(); err != nil {
		_ = stream.Close()
		_ = portaudio.Terminate()
		return fmt.Errorf("start stream: %w", err)
	}
	s.stream = stream
	s.logger.Infof("recording from mic: %s @ %d Hz, %d ch", dev.Name, s.opts.SampleRate, s.opts.Channels)
	return nil
}

// Read blocks for one chunk and returns a copy of it.
func (s *Source) Read() ([]int16, error) {
	if s.stream == nil {
		return nil, errors.New("audio source not open")
	}
	if err := s.stream.Read(); err != nil {
		if errors.Is(err, portaudio.InputOverflowed) {
			return nil, ErrInputOverflowed
		}
		return nil, fmt.Errorf("stream read: %w", err)
	}
	out := make([]int16, len(s.buf))
	copy(out, s.buf)
	return out, nil
}

// Close stops the stream and releases PortAudio.
func (s *Source) Close() error {
	if s.stream == nil {
		return nil
	}
	var errs []error
	if err := s.stream.Stop(); err != nil {
		errs = append(errs, fmt.Errorf("stop stream: %w", err))
	}
	if err := s.stream.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close stream: %w", err))
	}
	s.stream = nil
	if err := portaudio.Terminate(); err != nil {
		errs = append(errs, fmt.Errorf("portaudio terminate: %w", err))
	}
	return errors.Join(errs...)
}

// ListDevices returns every device with at least one input channel.
func ListDevices() ([]Device, error) {
	if err := portaudio.Initialize(); err != nil {
		return nil, fmt.Errorf("portaudio init: %w", err)
	}
	defer portaudio.Terminate()

	devs, err := portaudio.Devices()
	if err != nil {
		return nil, err
	}
	def, _ := portaudio.DefaultInputDevice()
	out := []Device{}
	for i, d := range devs {
		if d.MaxInputChannels < 1 {
			continue
		}
		out = append(out, Device{
			Index:     i,
			Name:      d.Name,
			Channels:  d.MaxInputChannels,
			LatencyMs: d.DefaultLowInputLatency.Seconds() * 1000,
			Default:   def != nil && d.Name == def.Name,
		})
	}
	return out, nil
}

// Probe checks that PortAudio initializes and a default input exists.
func Probe() error {
	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("portaudio init: %w", err)
	}
	defer portaudio.Terminate()
	if _, err := portaudio.DefaultInputDevice(); err != nil {
		return fmt.Errorf("no default input device: %w", err)
	}
	return nil
}

func selectDevice(preferred string) (*portaudio.DeviceInfo, error) {
	devs, err := portaudio.Devices()
	if err != nil {
		return nil, fmt.Errorf("list devices: %w", err)
	}
	if preferred != "" {
		for _, d := range devs {
			if d.MaxInputChannels > 0 && strings.Contains(strings.ToLower(d.Name), strings.ToLower(preferred)) {
				return d, nil
			}
		}
		return nil, fmt.Errorf("no input device matching %q (see: lectern mic list)", preferred)
	}
	if def, err := portaudio.DefaultInputDevice(); err == nil && def != nil {
		return def, nil
	}
	for _, d := range devs {
		if d.MaxInputChannels > 0 {
			return d, nil
		}
	}
	return nil, errors.New("no input devices found")
}
