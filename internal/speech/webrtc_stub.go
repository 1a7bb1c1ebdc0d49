//go:build !whisper

package speech

// NewWebRTC is unavailable without the native build.
func NewWebRTC(int) (Detector, error) { return nil, ErrUnavailable }
