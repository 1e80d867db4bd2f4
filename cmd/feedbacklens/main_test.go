package main

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/TobiSchelling/FeedbackLens/internal/analysis"
	"github.com/TobiSchelling/FeedbackLens/internal/config"
	"github.com/TobiSchelling/FeedbackLens/internal/database"
	"github.com/TobiSchelling/FeedbackLens/internal/report"
)

func init() {
	color.NoColor = true
}

func TestReadFeedbackFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "feedback.txt")
	require.NoError(t, os.WriteFile(path, []byte("Slow checkout\n\n  Rude staff  \n"), 0o644))

	lines, err := readFeedbackFile(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"Slow checkout", "Rude staff"}, lines)
}

func TestReadFeedbackFileEmpty(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.txt")
	require.NoError(t, os.WriteFile(path, []byte("\n  \n"), 0o644))

	_, err := readFeedbackFile(path)
	assert.ErrorIs(t, err, analysis.ErrNoFeedback)
}

func TestReadFeedbackFileMissing(t *testing.T) {
	_, err := readFeedbackFile(filepath.Join(t.TempDir(), "nope.txt"))
	assert.Error(t, err)
}

func TestModelName(t *testing.T) {
	assert.Equal(t, "gemini-1.5-pro", modelName(config.LLM{Provider: "gemini", Model: "gemini-1.5-pro"}))
	assert.Equal(t, "gpt-4o-mini", modelName(config.LLM{Provider: "OpenAI", Model: "x", OpenAIModel: "gpt-4o-mini"}))
}

func TestNewModelClientMissingCredential(t *testing.T) {
	t.Setenv("FEEDBACKLENS_TEST_KEY", "")
	cfg = &config.Config{LLM: config.LLM{Provider: "gemini", APIKeyEnv: "FEEDBACKLENS_TEST_KEY"}}
	t.Cleanup(func() { cfg = nil })

	_, err := newModelClient(t.Context())
	assert.True(t, errors.Is(err, config.ErrMissingCredential))
}

func TestWithSpinnerNonTerminal(t *testing.T) {
	var buf bytes.Buffer
	called := false
	err := withSpinner(&buf, " working", func() error {
		called = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, called)
	assert.Empty(t, buf.String())
}

func TestPrintSubmission(t *testing.T) {
	var out, errOut bytes.Buffer
	printSubmission(&out, &errOut, analysis.Submission{
		Record: database.FeedbackRecord{MainCauses: []string{"slow service", "rude staff"}},
	})
	assert.Contains(t, out.String(), "Main Causes")
	assert.Contains(t, out.String(), "  - slow service\n")
	assert.Empty(t, errOut.String())

	out.Reset()
	printSubmission(&out, &errOut, analysis.Submission{UpstreamErr: errors.New("quota exceeded")})
	assert.Contains(t, errOut.String(), "quota exceeded")
	assert.Contains(t, out.String(), "none identified")
}

func TestPrintBulkReport(t *testing.T) {
	var out, errOut bytes.Buffer
	printBulkReport(&out, &errOut, &analysis.BulkReport{
		Rows: []analysis.RecurringIssueRow{
			{Issue: "Checkout fails", Improvements: []string{"Fix payment gateway"}, RootCause: "Timeouts"},
		},
		TopCauses: []report.CauseShare{{Cause: "payment errors", Count: 3, Share: 100, Width: 100}},
		Timeline:  []report.DayCount{{Date: "2026-05-01", Count: 3}},
	})

	s := out.String()
	assert.Contains(t, s, "1. Checkout fails")
	assert.Contains(t, s, "   - Fix payment gateway")
	assert.Contains(t, s, "Root cause: Timeouts")
	assert.Contains(t, s, "payment errors")
	assert.Contains(t, s, "3 (100.0%)")
	assert.Contains(t, s, "2026-05-01  3")
}

func TestPrintMetrics(t *testing.T) {
	var out bytes.Buffer
	printMetrics(&out, report.Metrics{TotalFeedback: 2, UniqueCauses: 1, TopCause: report.NoTopCause})
	assert.Contains(t, out.String(), "Top cause: N/A")
}

func TestExitCode(t *testing.T) {
	var buf bytes.Buffer
	assert.Equal(t, 0, exitCode(&buf, nil))
	assert.Empty(t, buf.String())

	err := fmt.Errorf("%w: set GOOGLE_API_KEY", config.ErrMissingCredential)
	assert.Equal(t, 2, exitCode(&buf, err))
	assert.Equal(t, 1, strings.Count(buf.String(), "GOOGLE_API_KEY"))
	assert.True(t, strings.HasPrefix(buf.String(), "Fatal: "))

	buf.Reset()
	assert.Equal(t, 1, exitCode(&buf, errors.New("boom")))
	assert.Equal(t, "Error: boom\n", buf.String())
}

func TestRootSilencesCobraErrors(t *testing.T) {
	assert.True(t, rootCmd.SilenceErrors)
	assert.True(t, rootCmd.SilenceUsage)
}

func TestOpenStoreFilePersists(t *testing.T) {
	dbPath = filepath.Join(t.TempDir(), "data", "feedback.db")
	t.Cleanup(func() { dbPath = "" })

	store, err := openStore()
	require.NoError(t, err)
	assert.Equal(t, dbPath, store.Path())
	_, err = store.Submit(t.Context(), "Slow checkout", []string{"slow checkout"})
	require.NoError(t, err)
	require.NoError(t, store.Close())

	store, err = openStore()
	require.NoError(t, err)
	defer store.Close()
	records, err := store.AllRecords(t.Context())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "Slow checkout", records[0].Feedback)
}

func TestOpenStoreDefaultsToMemory(t *testing.T) {
	dbPath = ""
	store, err := openStore()
	require.NoError(t, err)
	defer store.Close()
	assert.Equal(t, database.MemoryPath, store.Path())
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
}
