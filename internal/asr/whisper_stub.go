//go:build !whisper

package asr

import (
	"lectern/internal/config"

	"github.com/sirupsen/logrus"
)

func newWhisperTranscriber(_ *config.Config, _ *logrus.Logger) (Transcriber, error) {
	return nil, ErrUnavailable
}
