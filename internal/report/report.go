// Package report derives dashboard metrics and chart tables from a feedback
// store.
package report

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/TobiSchelling/FeedbackLens/internal/database"
)

// NoTopCause is shown in place of the top cause when nothing was counted.
const NoTopCause = "N/A"

// DefaultTopN is the number of causes charted on the dashboard.
const DefaultTopN = 10

// Source is the part of a feedback store the dashboard reads.
type Source interface {
	Stats(ctx context.Context) (database.Stats, error)
	TopCause(ctx context.Context) (string, bool, error)
}

// Metrics are the headline dashboard numbers.
type Metrics struct {
	TotalFeedback int    `json:"total_feedback"`
	UniqueCauses  int    `json:"unique_causes"`
	TopCause      string `json:"top_cause"`
}

// Collect reads the headline metrics from src.
func Collect(ctx context.Context, src Source) (Metrics, error) {
	stats, err := src.Stats(ctx)
	if err != nil {
		return Metrics{}, fmt.Errorf("reading stats: %w", err)
	}
	top, ok, err := src.TopCause(ctx)
	if err != nil {
		return Metrics{}, fmt.Errorf("reading top cause: %w", err)
	}
	if !ok {
		top = NoTopCause
	}
	return Metrics{
		TotalFeedback: stats.TotalFeedback,
		UniqueCauses:  stats.UniqueCauses,
		TopCause:      top,
	}, nil
}

// CauseShare is one bar of the top causes chart and one slice of the
// distribution chart.
type CauseShare struct {
	Cause string `json:"cause"`
	Count int    `json:"count"`
	// Share is the percentage of all occurrences among the charted causes.
	Share float64 `json:"share"`
	// Width is the bar length as a percentage of the largest count.
	Width float64 `json:"-"`
}

// TopCauses returns the n most frequent causes, largest first. Equal counts
// keep the order of counts, which the store gives in first-seen order.
func TopCauses(counts []database.CauseCount, n int) []CauseShare {
	sorted := append([]database.CauseCount(nil), counts...)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Count > sorted[j].Count
	})
	if n > 0 && len(sorted) > n {
		sorted = sorted[:n]
	}

	total := 0
	for _, c := range sorted {
		total += c.Count
	}

	shares := make([]CauseShare, 0, len(sorted))
	for _, c := range sorted {
		s := CauseShare{Cause: c.Cause, Count: c.Count}
		if total > 0 {
			s.Share = 100 * float64(c.Count) / float64(total)
		}
		if sorted[0].Count > 0 {
			s.Width = 100 * float64(c.Count) / float64(sorted[0].Count)
		}
		shares = append(shares, s)
	}
	return shares
}

// DayCount is the number of submissions on one calendar day.
type DayCount struct {
	Date  string  `json:"date"`
	Count int     `json:"count"`
	Width float64 `json:"-"`
}

// Timeline groups records by the local calendar day of their timestamp,
// oldest day first.
func Timeline(records []database.FeedbackRecord) []DayCount {
	byDay := make(map[string]int)
	for _, r := range records {
		byDay[r.Timestamp.In(time.Local).Format(time.DateOnly)]++
	}

	days := make([]DayCount, 0, len(byDay))
	peak := 0
	for date, n := range byDay {
		days = append(days, DayCount{Date: date, Count: n})
		if n > peak {
			peak = n
		}
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Date < days[j].Date })

	for i := range days {
		days[i].Width = 100 * float64(days[i].Count) / float64(peak)
	}
	return days
}
