// Package smartcut groups a chronological transcript into topic blocks.
package smartcut

import (
	"strings"

	"lectern/internal/asr"
)

const (
	// DefaultMaxSpan is the span length, in seconds, that closes a block on its own.
	DefaultMaxSpan = 300.0
	// DefaultMaxGap is the pause, in seconds, between spans that closes a block.
	DefaultMaxGap = 2.0
)

// DefaultMarkers are phrases that usually announce a new topic.
var DefaultMarkers = []string{"next", "moving on", "now let's", "let's talk about"}

// Block is a non-empty run of consecutive spans.
type Block []asr.Span

// Text joins the span texts with single spaces, in order.
func (b Block) Text() string {
	parts := make([]string, len(b))
	for i, s := range b {
		parts[i] = s.Text
	}
	return strings.Join(parts, " ")
}

// Reason names the rule that closed a block.
type Reason string

const (
	ReasonDuration Reason = "duration"
	ReasonGap      Reason = "gap"
	ReasonMarker   Reason = "marker"
	ReasonEnd      Reason = "end"
)

// Detector holds the cut thresholds. The zero value uses the defaults.
type Detector struct {
	MaxSpan float64
	MaxGap  float64
	Markers []string
}

// Cut partitions spans with the default Detector.
func Cut(spans []asr.Span) []Block {
	return Detector{}.Cut(spans)
}

// Cut partitions spans into blocks. Concatenating the result reproduces the
// input exactly; no empty block is ever returned.
func (d Detector) Cut(spans []asr.Span) []Block {
	blocks, _ := d.CutWithReasons(spans)
	return blocks
}

// CutWithReasons is Cut plus the rule that closed each block.
func (d Detector) CutWithReasons(spans []asr.Span) ([]Block, []Reason) {
	d = d.withDefaults()
	markers := lowerAll(d.Markers)

	var (
		blocks  []Block
		reasons []Reason
		cur     Block
	)
	for _, span := range spans {
		cur = append(cur, span)
		if r, ok := d.shouldCut(cur, markers); ok {
			blocks = append(blocks, cur)
			reasons = append(reasons, r)
			cur = nil
		}
	}
	if len(cur) > 0 {
		blocks = append(blocks, cur)
		reasons = append(reasons, ReasonEnd)
	}
	return blocks, reasons
}

// shouldCut evaluates the rules against the span just appended to cur.
func (d Detector) shouldCut(cur Block, markers []string) (Reason, bool) {
	last := cur[len(cur)-1]
	if last.Duration() >= d.MaxSpan {
		return ReasonDuration, true
	}
	if n := len(cur); n > 1 && last.Start-cur[n-2].End > d.MaxGap {
		return ReasonGap, true
	}
	text := strings.ToLower(last.Text)
	for _, m := range markers {
		if strings.Contains(text, m) {
			return ReasonMarker, true
		}
	}
	return "", false
}

func (d Detector) withDefaults() Detector {
	if d.MaxSpan <= 0 {
		d.MaxSpan = DefaultMaxSpan
	}
	if d.MaxGap <= 0 {
		d.MaxGap = DefaultMaxGap
	}
	if d.Markers == nil {
		d.Markers = DefaultMarkers
	}
	return d
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, m := range in {
		m = strings.ToLower(strings.TrimSpace(m))
		if m != "" {
			out = append(out, m)
		}
	}
	return out
}
