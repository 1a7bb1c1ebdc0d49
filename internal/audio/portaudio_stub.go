//go:build !whisper

package audio

import (
	"lectern/internal/segments"

	"github.com/sirupsen/logrus"
)

// Source is unavailable without PortAudio; Open always fails.
type Source struct {
	opts Options
}

func NewSource(opts Options, _ *logrus.Logger) *Source { return &Source{opts: opts} }

func (s *Source) Format() segments.Format { return s.opts.Format() }
func (s *Source) Open() error             { return ErrUnavailable }
func (s *Source) Read() ([]int16, error)  { return nil, ErrUnavailable }
func (s *Source) Close() error            { return nil }

func ListDevices() ([]Device, error) { return nil, ErrUnavailable }

func Probe() error { return ErrUnavailable }
