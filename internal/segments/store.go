// Package segments is the append-only directory of recorded WAV segments.
//
// A segment's identity is its ID: the unix second at which its audio began.
// IDs are strictly increasing within a store and every enumeration is sorted
// by ID, so the directory listing order never matters.
package segments

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-audio/audio"
	"github.com/go-audio/wav"
)

const (
	filePrefix = "recording_"
	fileExt    = ".wav"
	pcmFormat  = 1
)

// ErrNoSegments is returned by Merge when the store holds no segments.
var ErrNoSegments = errors.New("no audio segments to merge")

// Format describes PCM layout.
type Format struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

// Segment is one flushed slice of audio.
type Segment struct {
	ID      int64
	Path    string
	Format  Format
	Samples []int16 // nil when returned by List
}

// Duration reports the playback length of loaded samples.
func (s Segment) Duration() time.Duration {
	if s.Format.SampleRate <= 0 || s.Format.Channels <= 0 {
		return 0
	}
	frames := len(s.Samples) / s.Format.Channels
	return time.Duration(frames) * time.Second / time.Duration(s.Format.SampleRate)
}

// Store owns the segment files in one directory.
type Store struct {
	dir    string
	mu     sync.Mutex
	lastID int64
}

// NewStore opens (creating if needed) a segment directory.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("segments: mkdir: %w", err)
	}
	s := &Store{dir: dir}
	existing, err := s.List()
	if err != nil {
		return nil, err
	}
	if n := len(existing); n > 0 {
		s.lastID = existing[n-1].ID
	}
	return s, nil
}

// Dir returns the directory backing the store.
func (s *Store) Dir() string { return s.dir }

// Write flushes samples as a new segment that began at start.
func (s *Store) Write(start time.Time, f Format, samples []int16) (Segment, error) {
	if f.BitDepth == 0 {
		f.BitDepth = 16
	}
	s.mu.Lock()
	id := start.Unix()
	if id <= s.lastID {
		id = s.lastID + 1
	}
	s.lastID = id
	s.mu.Unlock()

	path := filepath.Join(s.dir, FileName(id))
	if err := writeWAV(path, f, samples); err != nil {
		return Segment{}, err
	}
	return Segment{ID: id, Path: path, Format: f, Samples: samples}, nil
}

// List returns every segment in the store, sorted by ID.
func (s *Store) List() ([]Segment, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("segments: list: %w", err)
	}
	out := make([]Segment, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		id, ok := ParseID(e.Name())
		if !ok {
			continue
		}
		out = append(out, Segment{ID: id, Path: filepath.Join(s.dir, e.Name())})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// Remove deletes one segment file.
func (s *Store) Remove(seg Segment) error {
	if err := os.Remove(seg.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("segments: remove %s: %w", filepath.Base(seg.Path), err)
	}
	return nil
}

// FileName returns the on-disk name for a segment ID.
func FileName(id int64) string {
	return filePrefix + strconv.FormatInt(id, 10) + fileExt
}

// ParseID extracts the ID from a segment file name.
func ParseID(name string) (int64, bool) {
	if !strings.HasPrefix(name, filePrefix) || !strings.HasSuffix(name, fileExt) {
		return 0, false
	}
	raw := strings.TrimSuffix(strings.TrimPrefix(name, filePrefix), fileExt)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 0 {
		return 0, false
	}
	return id, true
}

// Read decodes a WAV file into a Segment.
func Read(path string) (Segment, error) {
	f, err := os.Open(path)
	if err != nil {
		return Segment{}, fmt.Errorf("segments: open: %w", err)
	}
	defer f.Close()

	dec := wav.NewDecoder(f)
	if !dec.IsValidFile() {
		return Segment{}, fmt.Errorf("segments: %s is not a valid wav file", filepath.Base(path))
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return Segment{}, fmt.Errorf("segments: decode %s: %w", filepath.Base(path), err)
	}
	samples := make([]int16, len(buf.Data))
	for i, v := range buf.Data {
		samples[i] = int16(v)
	}
	id, _ := ParseID(filepath.Base(path))
	return Segment{
		ID:   id,
		Path: path,
		Format: Format{
			SampleRate: int(dec.SampleRate),
			Channels:   int(dec.NumChans),
			BitDepth:   int(dec.BitDepth),
		},
		Samples: samples,
	}, nil
}

func writeWAV(path string, f Format, samples []int16) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".segment-tmp-*")
	if err != nil {
		return fmt.Errorf("segments: create temp: %w", err)
	}
	tmpName := tmp.Name()
	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	enc := wav.NewEncoder(tmp, f.SampleRate, f.BitDepth, f.Channels, pcmFormat)
	if err := enc.Write(intBuffer(f, samples)); err != nil {
		return fmt.Errorf("segments: encode: %w", err)
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("segments: finalize: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("segments: close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("segments: rename: %w", err)
	}
	success = true
	return nil
}

func intBuffer(f Format, samples []int16) *audio.IntBuffer {
	data := make([]int, len(samples))
	for i, v := range samples {
		data[i] = int(v)
	}
	return &audio.IntBuffer{
		Format:         &audio.Format{NumChannels: f.Channels, SampleRate: f.SampleRate},
		Data:           data,
		SourceBitDepth: f.BitDepth,
	}
}
