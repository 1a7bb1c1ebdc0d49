//go:build whisper

package speech

import (
	"encoding/binary"
	"fmt"

	vad "github.com/maxhawkins/go-webrtcvad"
)

type webrtcDetector struct {
	v *vad.VAD
}

// NewWebRTC builds a WebRTC detector; mode is 0 (least) to 3 (most aggressive).
func NewWebRTC(mode int) (Detector, error) {
	v, err := vad.New()
	if err != nil {
		return nil, fmt.Errorf("vad init: %w", err)
	}
	if err := v.SetMode(mode); err != nil {
		return nil, fmt.Errorf("vad mode %d: %w", mode, err)
	}
	return &webrtcDetector{v: v}, nil
}

func (d *webrtcDetector) Ratio(samples []int16, rate int) (float64, error) {
	n, err := FrameLen(rate)
	if err != nil {
		return 0, err
	}
	if !vad.ValidRateAndFrameLength(rate, n) {
		return 0, fmt.Errorf("invalid vad frame %d at %d Hz", n, rate)
	}
	frames := len(samples) / n
	if frames == 0 {
		return 0, nil
	}
	buf := make([]byte, 2*n)
	voiced := 0
	for f := 0; f < frames; f++ {
		for i, s := range samples[f*n : (f+1)*n] {
			binary.LittleEndian.PutUint16(buf[2*i:], uint16(s))
		}
		ok, err := d.v.Process(rate, buf)
		if err != nil {
			return 0, fmt.Errorf("vad process: %w", err)
		}
		if ok {
			voiced++
		}
	}
	return float64(voiced) / float64(frames), nil
}
