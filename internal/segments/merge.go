package segments

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/go-audio/wav"
)

// MergeResult describes an archival merge.
type MergeResult struct {
	Path    string
	Merged  int
	Removed int
}

// Merge concatenates every segment, in ID order, into one WAV at dst using
// the first segment's format for the whole file. The individual segments are
// deleted only after the merged file has been written successfully.
func (s *Store) Merge(dst string) (MergeResult, error) {
	segs, err := s.List()
	if err != nil {
		return MergeResult{}, err
	}
	if len(segs) == 0 {
		return MergeResult{}, ErrNoSegments
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return MergeResult{}, fmt.Errorf("segments: mkdir archive dir: %w", err)
	}
	if err := mergeFiles(dst, segs); err != nil {
		return MergeResult{}, err
	}

	res := MergeResult{Path: dst, Merged: len(segs)}
	var errs []error
	for _, seg := range segs {
		if err := s.Remove(seg); err != nil {
			errs = append(errs, err)
			continue
		}
		res.Removed++
	}
	return res, errors.Join(errs...)
}

func mergeFiles(dst string, segs []Segment) error {
	first, err := Read(segs[0].Path)
	if err != nil {
		return err
	}
	format := first.Format

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".archive-tmp-*")
	if err != nil {
		return fmt.Errorf("segments: create archive: %w", err)
	}
	tmpName := tmp.Name()
	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()

	enc := wav.NewEncoder(tmp, format.SampleRate, format.BitDepth, format.Channels, pcmFormat)
	for i, seg := range segs {
		cur := first
		if i > 0 {
			if cur, err = Read(seg.Path); err != nil {
				return err
			}
		}
		if err := enc.Write(intBuffer(format, cur.Samples)); err != nil {
			return fmt.Errorf("segments: append %s: %w", filepath.Base(seg.Path), err)
		}
	}
	if err := enc.Close(); err != nil {
		return fmt.Errorf("segments: finalize archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("segments: close archive: %w", err)
	}
	if err := os.Rename(tmpName, dst); err != nil {
		return fmt.Errorf("segments: rename archive: %w", err)
	}
	success = true
	return nil
}
