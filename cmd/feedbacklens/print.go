package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/mattn/go-isatty"

	"github.com/TobiSchelling/FeedbackLens/internal/analysis"
	"github.com/TobiSchelling/FeedbackLens/internal/report"
)

// withSpinner runs fn while a spinner with suffix is shown on w. The spinner
// is only drawn when w is a terminal.
func withSpinner(w io.Writer, suffix string, fn func() error) error {
	f, ok := w.(*os.File)
	if !ok || !isatty.IsTerminal(f.Fd()) {
		return fn()
	}

	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(w))
	s.Suffix = suffix
	s.Start()
	defer s.Stop()
	return fn()
}

func heading(w io.Writer, title string) {
	bold := color.New(color.Bold, color.FgCyan)
	fmt.Fprintln(w)
	_, _ = bold.Fprintln(w, title)
}

func printSubmission(stdout, stderr io.Writer, sub analysis.Submission) {
	if sub.UpstreamErr != nil {
		yellow := color.New(color.FgYellow)
		_, _ = yellow.Fprintf(stderr, "Model call failed: %v\n", sub.UpstreamErr)
	}

	heading(stdout, "Main Causes")
	if len(sub.Record.MainCauses) == 0 {
		dim := color.New(color.FgHiBlack)
		_, _ = dim.Fprintln(stdout, "  none identified")
		return
	}
	for _, c := range sub.Record.MainCauses {
		fmt.Fprintf(stdout, "  - %s\n", c)
	}
}

func printMetrics(w io.Writer, m report.Metrics) {
	heading(w, "Dashboard")
	fmt.Fprintf(w, "  Total feedback: %d\n", m.TotalFeedback)
	fmt.Fprintf(w, "  Unique causes: %d\n", m.UniqueCauses)
	fmt.Fprintf(w, "  Top cause: %s\n", m.TopCause)
}

func printTopCauses(w io.Writer, shares []report.CauseShare) {
	if len(shares) == 0 {
		return
	}
	const barWidth = 24

	heading(w, "Top Causes")
	bar := color.New(color.FgGreen)
	for _, s := range shares {
		filled := int(s.Width * barWidth / 100)
		fmt.Fprintf(w, "  %-28s ", truncate(s.Cause, 28))
		_, _ = bar.Fprint(w, strings.Repeat("█", filled)+strings.Repeat("░", barWidth-filled))
		fmt.Fprintf(w, " %d (%.1f%%)\n", s.Count, s.Share)
	}
}

func printBulkReport(stdout, stderr io.Writer, rep *analysis.BulkReport) {
	if rep.UpstreamErr != nil {
		yellow := color.New(color.FgYellow)
		_, _ = yellow.Fprintf(stderr, "Model call failed: %v\n", rep.UpstreamErr)
	}

	heading(stdout, "Recurring Issues and Improvements")
	if len(rep.Rows) == 0 {
		dim := color.New(color.FgHiBlack)
		_, _ = dim.Fprintln(stdout, "  No recurring issues could be read from the analysis.")
		heading(stdout, "Analysis")
		fmt.Fprintln(stdout, rep.Raw)
	}
	bold := color.New(color.Bold)
	for i, row := range rep.Rows {
		_, _ = bold.Fprintf(stdout, "%d. %s\n", i+1, row.Issue)
		for _, imp := range row.Improvements {
			fmt.Fprintf(stdout, "   - %s\n", imp)
		}
		if row.RootCause != "" {
			fmt.Fprintf(stdout, "   Root cause: %s\n", row.RootCause)
		}
	}

	printTopCauses(stdout, rep.TopCauses)

	heading(stdout, "Feedback Timeline")
	for _, d := range rep.Timeline {
		fmt.Fprintf(stdout, "  %s  %d\n", d.Date, d.Count)
	}
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
