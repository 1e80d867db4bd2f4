// Package analysis turns customer feedback into causes and recurring issue
// reports using a language model.
package analysis

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/TobiSchelling/FeedbackLens/internal/database"
	"github.com/TobiSchelling/FeedbackLens/internal/llm"
	"github.com/TobiSchelling/FeedbackLens/internal/report"
)

var (
	// ErrEmptyFeedback is returned when submitted feedback has no text.
	ErrEmptyFeedback = errors.New("please enter some feedback before submitting")
	// ErrNoFeedback is returned when a bulk analysis is requested on an empty store.
	ErrNoFeedback = errors.New("no feedback data available for analysis")
)

// Store is the feedback store an Analyzer writes to and reads from.
type Store interface {
	Submit(ctx context.Context, feedback string, causes []string) (database.FeedbackRecord, error)
	AllRecords(ctx context.Context) ([]database.FeedbackRecord, error)
	CauseCounts(ctx context.Context) ([]database.CauseCount, error)
}

// Submission is the outcome of analysing one piece of feedback.
type Submission struct {
	Record   database.FeedbackRecord `json:"record"`
	Analysis string                  `json:"analysis"`
	// UpstreamErr is the model failure, if any. The record is stored either
	// way, with whatever causes the diagnostic text yielded.
	UpstreamErr error `json:"-"`
}

// BulkReport is the result of one bulk analysis over a store.
type BulkReport struct {
	Raw         string              `json:"raw"`
	Rows        []RecurringIssueRow `json:"rows"`
	TopCauses   []report.CauseShare `json:"top_causes"`
	Timeline    []report.DayCount   `json:"timeline"`
	Feedback    int                 `json:"feedback_count"`
	GeneratedAt time.Time           `json:"generated_at"`
	UpstreamErr error               `json:"-"`
}

// Analyzer runs feedback through the model.
type Analyzer struct {
	gen llm.Generator
	log *zap.Logger
	now func() time.Time
}

// NewAnalyzer creates an Analyzer backed by gen.
func NewAnalyzer(gen llm.Generator, log *zap.Logger) *Analyzer {
	return &Analyzer{gen: gen, log: log, now: time.Now}
}

// SubmitFeedback analyses text, extracts its causes and records both in
// store. Blank text is rejected with ErrEmptyFeedback and nothing is stored.
func (a *Analyzer) SubmitFeedback(ctx context.Context, store Store, text string) (Submission, error) {
	if strings.TrimSpace(text) == "" {
		return Submission{}, ErrEmptyFeedback
	}

	res := a.gen.Generate(ctx, IndividualPrompt(text))
	analysis := res.Text()
	causes := ExtractCauses(analysis)

	rec, err := store.Submit(ctx, text, causes)
	if err != nil {
		return Submission{}, fmt.Errorf("storing feedback: %w", err)
	}

	a.log.Info("feedback analysed",
		zap.Int64("id", rec.ID),
		zap.Int("causes", len(causes)),
		zap.Bool("upstream_ok", res.OK()))

	return Submission{Record: rec, Analysis: analysis, UpstreamErr: res.Err()}, nil
}

// AnalyzeBulk sends every stored feedback text to the model in one prompt
// and parses the recurring issues from the answer.
func (a *Analyzer) AnalyzeBulk(ctx context.Context, store Store) (*BulkReport, error) {
	records, err := store.AllRecords(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading feedback: %w", err)
	}
	if len(records) == 0 {
		return nil, ErrNoFeedback
	}

	texts := make([]string, len(records))
	for i, r := range records {
		texts[i] = r.Feedback
	}

	res := a.gen.Generate(ctx, BulkPrompt(strings.Join(texts, "\n")))
	raw := res.Text()
	rows := ParseBulk(raw)

	counts, err := store.CauseCounts(ctx)
	if err != nil {
		return nil, fmt.Errorf("reading cause counts: %w", err)
	}

	a.log.Info("bulk analysis complete",
		zap.Int("feedback", len(records)),
		zap.Int("rows", len(rows)),
		zap.Bool("upstream_ok", res.OK()))

	return &BulkReport{
		Raw:         raw,
		Rows:        rows,
		TopCauses:   report.TopCauses(counts, report.DefaultTopN),
		Timeline:    report.Timeline(records),
		Feedback:    len(records),
		GeneratedAt: a.now(),
		UpstreamErr: res.Err(),
	}, nil
}
