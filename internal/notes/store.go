// Package notes persists per-block lecture notes in per-day directories.
//
// Layout under the root:
//
//	2025-03-14/lecture_note_10-04-05.123.md
//	2025-03-14/lecture_data_10-04-05.123.json
//	2025-03-14/lecture_summary_11-30-00.md
//	2025-03-14/lecture_recording_11-30-00.wav
package notes

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	DateLayout  = "2006-01-02"
	noteLayout  = "15-04-05.000"
	finalLayout = "15-04-05"

	notePrefix    = "lecture_note_"
	dataPrefix    = "lecture_data_"
	summaryPrefix = "lecture_summary_"
	archivePrefix = "lecture_recording_"
)

// ErrNoNotes is returned by LoadDay when a day has no note records.
var ErrNoNotes = errors.New("no notes found")

// Record is one summarized topic block.
type Record struct {
	ID           string    `json:"id"`
	SessionID    string    `json:"session_id,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
	OriginalText string    `json:"original_text"`
	Summary      string    `json:"summary"`
	SegmentID    int64     `json:"segment_id,omitempty"`
	Degraded     bool      `json:"degraded,omitempty"`
}

// Saved names the files written for one record.
type Saved struct {
	NotePath string
	DataPath string
}

// Store writes records beneath root.
type Store struct {
	root string

	mu       sync.Mutex
	lastNote time.Time
}

// NewStore creates root if needed.
func NewStore(root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("notes: mkdir: %w", err)
	}
	return &Store{root: root}, nil
}

// DayDir returns the directory for a YYYY-MM-DD date.
func (s *Store) DayDir(date string) string {
	return filepath.Join(s.root, date)
}

// Save writes the markdown note and JSON record for rec. Records saved within
// the same millisecond are nudged forward so file names never collide; the
// adjusted timestamp is written back into the record.
func (s *Store) Save(rec *Record) (Saved, error) {
	s.mu.Lock()
	ts := rec.Timestamp.Truncate(time.Millisecond)
	if !ts.After(s.lastNote) {
		ts = s.lastNote.Add(time.Millisecond)
	}
	s.lastNote = ts
	s.mu.Unlock()
	rec.Timestamp = ts

	date := ts.Format(DateLayout)
	stamp := ts.Format(noteLayout)
	dir := s.DayDir(date)

	saved := Saved{
		NotePath: filepath.Join(dir, notePrefix+stamp+".md"),
		DataPath: filepath.Join(dir, dataPrefix+stamp+".json"),
	}
	if err := writeAtomic(saved.NotePath, []byte(renderNote(rec, date, ts.Format(finalLayout)))); err != nil {
		return Saved{}, err
	}
	data, err := json.MarshalIndent(rec, "", "    ")
	if err != nil {
		return Saved{}, fmt.Errorf("notes: encode: %w", err)
	}
	if err := writeAtomic(saved.DataPath, data); err != nil {
		return Saved{}, err
	}
	return saved, nil
}

// LoadDay returns every record for date in chronological order.
func (s *Store) LoadDay(date string) ([]Record, error) {
	dir := s.DayDir(date)
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w for %s", ErrNoNotes, date)
		}
		return nil, fmt.Errorf("notes: read day: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), dataPrefix) && strings.HasSuffix(e.Name(), ".json") {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return nil, fmt.Errorf("%w for %s", ErrNoNotes, date)
	}
	// The stamp is fixed-width, so lexical order is time order.
	sort.Strings(names)

	out := make([]Record, 0, len(names))
	for _, name := range names {
		raw, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("notes: read %s: %w", name, err)
		}
		var rec Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("notes: decode %s: %w", name, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

// SaveSessionSummary writes the aggregate summary for date.
func (s *Store) SaveSessionSummary(date string, at time.Time, summary string) (string, error) {
	path := filepath.Join(s.DayDir(date), summaryPrefix+at.Format(finalLayout)+".md")
	body := fmt.Sprintf("# Lecture Summary - %s\n\n%s\n", date, summary)
	if err := writeAtomic(path, []byte(body)); err != nil {
		return "", err
	}
	return path, nil
}

// ArchivePath returns where the merged recording for date is written.
func (s *Store) ArchivePath(date string, at time.Time) string {
	return filepath.Join(s.DayDir(date), archivePrefix+at.Format(finalLayout)+".wav")
}

func renderNote(rec *Record, date, clock string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# Lecture Notes - %s %s\n\n", date, clock)
	b.WriteString(rec.Summary)
	b.WriteString("\n\n---\n")
	b.WriteString("## Original Transcript\n\n")
	b.WriteString("```\n")
	b.WriteString(rec.OriginalText)
	b.WriteString("\n```\n")
	return b.String()
}

// writeAtomic writes via temp file, fsync and rename.
func writeAtomic(path string, content []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("notes: mkdir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, ".lectern-tmp-*")
	if err != nil {
		return fmt.Errorf("notes: create temp: %w", err)
	}
	tmpName := tmp.Name()
	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpName)
		}
	}()
	if _, err := tmp.Write(content); err != nil {
		return fmt.Errorf("notes: write temp: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		return fmt.Errorf("notes: fsync: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("notes: close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("notes: rename: %w", err)
	}
	success = true
	return nil
}
