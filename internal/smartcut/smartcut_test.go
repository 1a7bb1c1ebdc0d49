package smartcut

import (
	"fmt"
	"math/rand/v2"
	"reflect"
	"testing"

	"lectern/internal/asr"
)

func sp(start, end float64, text string) asr.Span {
	return asr.Span{Start: start, End: end, Text: text}
}

func flatten(blocks []Block) []asr.Span {
	var out []asr.Span
	for _, b := range blocks {
		out = append(out, b...)
	}
	return out
}

func TestEmptyInputYieldsNoBlocks(t *testing.T) {
	if got := Cut(nil); len(got) != 0 {
		t.Fatalf("expected no blocks, got %v", got)
	}
	if got := Cut([]asr.Span{}); len(got) != 0 {
		t.Fatalf("expected no blocks, got %v", got)
	}
}

func TestLectureScenario(t *testing.T) {
	spans := []asr.Span{
		sp(0, 10, "intro"),
		sp(12, 20, "moving on to loops"),
		sp(21, 25, "loops continued"),
	}
	blocks, reasons := Detector{}.CutWithReasons(spans)
	want := []Block{
		{spans[0], spans[1]},
		{spans[2]},
	}
	if !reflect.DeepEqual(blocks, want) {
		t.Fatalf("blocks = %v, want %v", blocks, want)
	}
	if !reflect.DeepEqual(reasons, []Reason{ReasonMarker, ReasonEnd}) {
		t.Fatalf("reasons = %v", reasons)
	}
	if blocks[0].Text() != "intro moving on to loops" {
		t.Fatalf("text = %q", blocks[0].Text())
	}
}

func TestDurationRule(t *testing.T) {
	cases := []struct {
		name  string
		spans []asr.Span
		sizes []int
	}{
		{"first span long", []asr.Span{sp(0, 300, "a"), sp(300, 301, "b")}, []int{1, 1}},
		{"just under limit", []asr.Span{sp(0, 299.9, "a"), sp(300, 301, "b")}, []int{2}},
		{"long span closes open block", []asr.Span{sp(0, 1, "a"), sp(1, 400, "b"), sp(400, 401, "c")}, []int{2, 1}},
		{"single long span", []asr.Span{sp(10, 320, "a")}, []int{1}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			blocks := Cut(tc.spans)
			if got := sizes(blocks); !reflect.DeepEqual(got, tc.sizes) {
				t.Fatalf("sizes = %v, want %v", got, tc.sizes)
			}
		})
	}
}

func TestGapRule(t *testing.T) {
	cases := []struct {
		name  string
		spans []asr.Span
		sizes []int
	}{
		{"gap above threshold cuts after second span", []asr.Span{sp(0, 1, "a"), sp(3.5, 4, "b"), sp(4, 5, "c")}, []int{2, 1}},
		{"gap equal to threshold does not cut", []asr.Span{sp(0, 1, "a"), sp(3, 4, "b"), sp(4, 5, "c")}, []int{3}},
		{"small gaps never cut", []asr.Span{sp(0, 1, "a"), sp(1.5, 2, "b"), sp(3, 4, "c")}, []int{3}},
		{"gap only checked within a block", []asr.Span{sp(0, 1, "next"), sp(10, 11, "b"), sp(11, 12, "c")}, []int{1, 2}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := sizes(Cut(tc.spans)); !reflect.DeepEqual(got, tc.sizes) {
				t.Fatalf("sizes = %v, want %v", got, tc.sizes)
			}
		})
	}
}

func TestMarkerRule(t *testing.T) {
	spans := []asr.Span{
		sp(0, 1, "so that covers pointers"),
		sp(1, 2, "OK, Moving On"),
		sp(2, 3, "arrays are contiguous"),
	}
	if got := sizes(Cut(spans)); !reflect.DeepEqual(got, []int{2, 1}) {
		t.Fatalf("sizes = %v", got)
	}
	// Markers match substrings, as in "nextval".
	if got := sizes(Cut([]asr.Span{sp(0, 1, "call nextval"), sp(1, 2, "x")})); !reflect.DeepEqual(got, []int{1, 1}) {
		t.Fatalf("substring marker sizes = %v", got)
	}
}

func TestCustomMarkers(t *testing.T) {
	d := Detector{Markers: []string{"Chapter"}}
	spans := []asr.Span{sp(0, 1, "moving on"), sp(1, 2, "chapter two"), sp(2, 3, "x")}
	if got := sizes(d.Cut(spans)); !reflect.DeepEqual(got, []int{2, 1}) {
		t.Fatalf("sizes = %v", got)
	}
}

func TestPartitionPreservesInput(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	words := []string{"alpha", "beta", "next up", "gamma", "let's talk about x", "delta"}
	for trial := 0; trial < 200; trial++ {
		n := 1 + rng.IntN(40)
		spans := make([]asr.Span, n)
		at := 0.0
		for i := range spans {
			at += rng.Float64() * 4
			dur := rng.Float64() * 20
			if rng.IntN(30) == 0 {
				dur = 300 + rng.Float64()*10
			}
			spans[i] = sp(at, at+dur, words[rng.IntN(len(words))]+fmt.Sprint(i))
			at += dur
		}
		blocks := Cut(spans)
		for i, b := range blocks {
			if len(b) == 0 {
				t.Fatalf("trial %d: empty block %d", trial, i)
			}
		}
		if got := flatten(blocks); !reflect.DeepEqual(got, spans) {
			t.Fatalf("trial %d: partition lost or reordered spans", trial)
		}
	}
}

func sizes(blocks []Block) []int {
	out := make([]int, len(blocks))
	for i, b := range blocks {
		out[i] = len(b)
	}
	return out
}
