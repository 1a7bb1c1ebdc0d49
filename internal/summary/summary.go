// Package summary turns topic blocks into persisted notes and closes a
// session with an aggregate summary and an archival recording.
package summary

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"lectern/internal/llm"
	"lectern/internal/notes"
	"lectern/internal/segments"
	"lectern/internal/smartcut"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// NothingToSummarize is the session summary when a day has no notes.
const NothingToSummarize = "nothing to summarize"

const (
	noteSeparator   = "\n\n---\n\n"
	failurePrefix   = "note generation failed: "
	aggregatePrompt = "This is the transcript of one whole lecture. Summarize the main content and highlight the key points and concepts:\n\n"
)

// Options configures an Orchestrator.
type Options struct {
	MaxTokens        int  // per block
	SummaryMaxTokens int  // whole session
	Save             bool // persist notes
	SessionID        string
	Now              func() time.Time
}

// SessionResult reports what end-of-session summarization produced.
type SessionResult struct {
	Date           string
	Summary        string
	SummaryPath    string
	ArchivePath    string
	Notes          int
	MergedSegments int
	Degraded       bool
}

// Orchestrator requests summaries and persists them.
type Orchestrator struct {
	gen    llm.Generator
	notes  *notes.Store
	segs   *segments.Store
	opts   Options
	logger *logrus.Logger
}

// New builds an Orchestrator. segs may be nil when no archival merge is wanted.
func New(gen llm.Generator, store *notes.Store, segs *segments.Store, opts Options, logger *logrus.Logger) *Orchestrator {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.SessionID == "" {
		opts.SessionID = uuid.NewString()
	}
	return &Orchestrator{gen: gen, notes: store, segs: segs, opts: opts, logger: logger}
}

// SessionID identifies the records written by this orchestrator.
func (o *Orchestrator) SessionID() string { return o.opts.SessionID }

// SummarizeBlock summarizes one block. A generation failure is not an error:
// the record carries the failure text as its summary and is marked degraded.
// The returned error only reports a persistence failure.
func (o *Orchestrator) SummarizeBlock(ctx context.Context, block smartcut.Block, segmentID int64) (notes.Record, notes.Saved, error) {
	text := block.Text()
	summary, err := o.gen.Generate(ctx, text, o.opts.MaxTokens)
	rec := notes.Record{
		ID:           uuid.NewString(),
		SessionID:    o.opts.SessionID,
		Timestamp:    o.opts.Now(),
		OriginalText: text,
		Summary:      summary,
		SegmentID:    segmentID,
	}
	if err != nil {
		o.logger.Warnf("summary for segment %d degraded: %v", segmentID, err)
		rec.Summary = failurePrefix + err.Error()
		rec.Degraded = true
	}
	if !o.opts.Save || o.notes == nil {
		return rec, notes.Saved{}, nil
	}
	saved, err := o.notes.Save(&rec)
	if err != nil {
		return rec, notes.Saved{}, fmt.Errorf("save note: %w", err)
	}
	o.logger.Infof("note saved: %s", saved.NotePath)
	return rec, saved, nil
}

// SummarizeSession requests one summary over every note saved for date
// (YYYY-MM-DD, empty means today) and merges the remaining audio segments
// into one archival file. Missing notes or audio are reported in the result,
// not as errors.
func (o *Orchestrator) SummarizeSession(ctx context.Context, date string) (SessionResult, error) {
	now := o.opts.Now()
	if date == "" {
		date = now.Format(notes.DateLayout)
	}
	res := SessionResult{Date: date, Summary: NothingToSummarize}
	if o.notes == nil {
		return res, nil
	}

	recs, err := o.notes.LoadDay(date)
	switch {
	case errors.Is(err, notes.ErrNoNotes):
		o.logger.Infof("no notes for %s; skipping aggregate summary", date)
	case err != nil:
		return res, err
	default:
		res.Notes = len(recs)
		if err := o.aggregate(ctx, date, now, recs, &res); err != nil {
			return res, err
		}
	}

	if err := o.archive(date, now, &res); err != nil {
		return res, err
	}
	return res, nil
}

func (o *Orchestrator) aggregate(ctx context.Context, date string, now time.Time, recs []notes.Record, res *SessionResult) error {
	texts := make([]string, len(recs))
	for i, r := range recs {
		texts[i] = r.OriginalText
	}
	prompt := aggregatePrompt + strings.Join(texts, noteSeparator)
	summary, err := o.gen.Generate(ctx, prompt, o.opts.SummaryMaxTokens)
	if err != nil {
		o.logger.Warnf("session summary for %s degraded: %v", date, err)
		summary = failurePrefix + err.Error()
		res.Degraded = true
	}
	res.Summary = summary
	path, err := o.notes.SaveSessionSummary(date, now, summary)
	if err != nil {
		return fmt.Errorf("save session summary: %w", err)
	}
	res.SummaryPath = path
	o.logger.Infof("session summary saved: %s (%d notes)", path, len(recs))
	return nil
}

func (o *Orchestrator) archive(date string, now time.Time, res *SessionResult) error {
	if o.segs == nil {
		return nil
	}
	merged, err := o.segs.Merge(o.notes.ArchivePath(date, now))
	if errors.Is(err, segments.ErrNoSegments) {
		o.logger.Info("no audio segments to archive")
		return nil
	}
	if merged.Path != "" {
		res.ArchivePath = merged.Path
		res.MergedSegments = merged.Merged
		o.logger.Infof("merged %d segments into %s", merged.Merged, merged.Path)
	}
	if err != nil {
		return fmt.Errorf("archive recordings: %w", err)
	}
	return nil
}
