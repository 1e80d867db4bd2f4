package server

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/TobiSchelling/FeedbackLens/internal/analysis"
	"github.com/TobiSchelling/FeedbackLens/internal/config"
	"github.com/TobiSchelling/FeedbackLens/internal/ingest"
	"github.com/TobiSchelling/FeedbackLens/internal/llm"
	"github.com/TobiSchelling/FeedbackLens/internal/session"
	"github.com/TobiSchelling/FeedbackLens/internal/story"
)

const bulkReply = `Top 5 Recurring Issues:
1. Slow service

Suggested Improvements:
1. Issue: Slow service
- Hire more staff
2. Issue: Prices
- Offer discounts

Potential Root Causes:
Slow service: Understaffing
`

// scriptedGenerator answers by prompt kind.
type scriptedGenerator struct {
	fail bool
}

func (g scriptedGenerator) Generate(_ context.Context, prompt string) llm.Result {
	if g.fail {
		return llm.Failure(fmt.Errorf("upstream unavailable"))
	}
	switch {
	case strings.Contains(prompt, analysis.IssuesHeader):
		return llm.Success(bulkReply)
	case strings.Contains(prompt, analysis.CausesMarker):
		return llm.Success("Main Causes:\n- Slow Service\n- Rude Staff\n")
	default:
		return llm.Success("Once upon a time the dragon woke.")
	}
}

func newTestServer(t *testing.T, gen llm.Generator, feeds []config.Feed) *Server {
	t.Helper()
	log := zap.NewNop()
	sessions := session.NewManager(time.Hour, log)
	t.Cleanup(func() { sessions.Close() })

	srv, err := New(Options{
		Sessions: sessions,
		Analyzer: analysis.NewAnalyzer(gen, log),
		Stories:  story.NewGenerator(gen, log),
		Importer: ingest.NewImporter(10, 5*time.Second, log),
		Feeds:    feeds,
		Log:      log,
	})
	require.NoError(t, err)
	return srv
}

// client replays the session cookie between requests like a browser.
type client struct {
	t      *testing.T
	h      http.Handler
	cookie *http.Cookie
}

func newClient(t *testing.T, srv *Server) *client {
	return &client{t: t, h: srv.Handler()}
}

func (c *client) do(req *http.Request) *httptest.ResponseRecorder {
	c.t.Helper()
	if c.cookie != nil {
		req.AddCookie(c.cookie)
	}
	rec := httptest.NewRecorder()
	c.h.ServeHTTP(rec, req)
	for _, ck := range rec.Result().Cookies() {
		if ck.Name == SessionCookie {
			c.cookie = ck
		}
	}
	return rec
}

func (c *client) get(path string) *httptest.ResponseRecorder {
	return c.do(httptest.NewRequest(http.MethodGet, path, nil))
}

func (c *client) postForm(path string, values url.Values) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(values.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	return c.do(req)
}

func (c *client) postJSON(path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return c.do(req)
}

func TestIndexRoute(t *testing.T) {
	c := newClient(t, newTestServer(t, scriptedGenerator{}, nil))

	rec := c.get("/")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Submit Your Feedback")
	require.NotNil(t, c.cookie)
	assert.True(t, c.cookie.HttpOnly)
}

func TestUnknownRoute(t *testing.T) {
	c := newClient(t, newTestServer(t, scriptedGenerator{}, nil))
	assert.Equal(t, http.StatusNotFound, c.get("/nope").Code)
}

func TestStaticFiles(t *testing.T) {
	c := newClient(t, newTestServer(t, scriptedGenerator{}, nil))

	rec := c.get("/static/style.css")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), ".metric-box")
}

func TestSubmitFeedbackFlow(t *testing.T) {
	c := newClient(t, newTestServer(t, scriptedGenerator{}, nil))

	rec := c.postForm("/feedback", url.Values{"feedback": {"We waited forever"}})
	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Thank you!")
	assert.Contains(t, body, "slow service")

	rec = c.get("/feedback")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "We waited forever")
	assert.Contains(t, rec.Body.String(), "slow service, rude staff")

	rec = c.get("/causes")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "rude staff")

	rec = c.get("/dashboard")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "slow service")
}

func TestSubmitEmptyFeedback(t *testing.T) {
	c := newClient(t, newTestServer(t, scriptedGenerator{}, nil))

	rec := c.postForm("/feedback", url.Values{"feedback": {"   "}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Please enter some feedback")

	rec = c.get("/api/feedback")
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestSubmitShowsUpstreamFailure(t *testing.T) {
	c := newClient(t, newTestServer(t, scriptedGenerator{fail: true}, nil))

	rec := c.postForm("/feedback", url.Values{"feedback": {"Broken again"}})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "upstream unavailable")
	assert.Contains(t, rec.Body.String(), "No causes were identified")
}

func TestDashboardEmpty(t *testing.T) {
	c := newClient(t, newTestServer(t, scriptedGenerator{}, nil))

	rec := c.get("/dashboard")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "N/A")
	assert.NotContains(t, rec.Body.String(), "Import Reviews")
}

func TestAnalyzeWithoutFeedback(t *testing.T) {
	c := newClient(t, newTestServer(t, scriptedGenerator{}, nil))

	rec := c.postForm("/dashboard/analyze", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "No feedback data available for analysis.")
}

func TestAnalyzeReport(t *testing.T) {
	c := newClient(t, newTestServer(t, scriptedGenerator{}, nil))
	c.postForm("/feedback", url.Values{"feedback": {"Too slow"}})

	rec := c.postForm("/dashboard/analyze", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "Recurring Issues and Improvements")
	assert.Contains(t, body, "Hire more staff")
	assert.Contains(t, body, "Understaffing")
	assert.Contains(t, body, "Feedback Submission Timeline")
}

func TestResetRoute(t *testing.T) {
	c := newClient(t, newTestServer(t, scriptedGenerator{}, nil))
	c.postForm("/feedback", url.Values{"feedback": {"Too slow"}})

	rec := c.postForm("/reset", nil)
	assert.Equal(t, http.StatusSeeOther, rec.Code)
	assert.Equal(t, "/dashboard?reset=1", rec.Header().Get("Location"))

	rec = c.get("/dashboard?reset=1")
	assert.Contains(t, rec.Body.String(), "Feedback data has been reset.")
	assert.Contains(t, rec.Body.String(), "N/A")
}

func TestSessionsAreIsolated(t *testing.T) {
	srv := newTestServer(t, scriptedGenerator{}, nil)
	alice := newClient(t, srv)
	bob := newClient(t, srv)

	alice.postForm("/feedback", url.Values{"feedback": {"Alice says hi"}})

	rec := bob.get("/api/feedback")
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = alice.get("/api/feedback")
	assert.Contains(t, rec.Body.String(), "Alice says hi")
}

func TestAPIFeedbackAndMetrics(t *testing.T) {
	c := newClient(t, newTestServer(t, scriptedGenerator{}, nil))

	rec := c.postJSON("/api/feedback", `{"feedback": "The staff were rude"}`)
	require.Equal(t, http.StatusCreated, rec.Code)

	var sub submitResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &sub))
	assert.Equal(t, []string{"slow service", "rude staff"}, sub.Record.MainCauses)
	assert.Empty(t, sub.UpstreamError)

	rec = c.get("/api/causes")
	assert.JSONEq(t, `[{"cause":"slow service","count":1},{"cause":"rude staff","count":1}]`, rec.Body.String())

	rec = c.get("/api/metrics")
	assert.JSONEq(t, `{"total_feedback":1,"unique_causes":2,"top_cause":"slow service"}`, rec.Body.String())
}

func TestAPIValidation(t *testing.T) {
	c := newClient(t, newTestServer(t, scriptedGenerator{}, nil))

	rec := c.postJSON("/api/feedback", `{"feedback": ""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = c.postJSON("/api/feedback", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = c.postJSON("/api/analyze", ``)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "no feedback data")
}

func TestAPIAnalyzeAndReset(t *testing.T) {
	c := newClient(t, newTestServer(t, scriptedGenerator{}, nil))
	c.postJSON("/api/feedback", `{"feedback": "slow"}`)

	rec := c.postJSON("/api/analyze", ``)
	require.Equal(t, http.StatusOK, rec.Code)

	var rep analyzeResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &rep))
	require.Len(t, rep.Rows, 2)
	assert.Equal(t, "Slow service", rep.Rows[0].Issue)
	assert.Equal(t, "Understaffing", rep.Rows[0].RootCause)
	assert.Equal(t, 1, rep.Feedback)

	rec = c.postJSON("/api/reset", ``)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = c.get("/api/metrics")
	assert.JSONEq(t, `{"total_feedback":0,"unique_causes":0,"top_cause":"N/A"}`, rec.Body.String())
}

func TestStoryRoutes(t *testing.T) {
	c := newClient(t, newTestServer(t, scriptedGenerator{}, nil))

	rec := c.get("/story")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "overcoming the monster")

	rec = c.postForm("/story", url.Values{"type": {"the quest"}, "genre": {"fantasy"}, "prompt": {"A map is found"}})
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Once upon a time the dragon woke.")
	assert.Contains(t, rec.Body.String(), "A map is found")

	rec = c.postForm("/story", url.Values{"type": {"the quest"}, "genre": {"fantasy"}, "prompt": {""}})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = c.postForm("/story/clear", nil)
	assert.Equal(t, http.StatusSeeOther, rec.Code)

	rec = c.get("/story")
	assert.NotContains(t, rec.Body.String(), "A map is found")
}

func TestAPIStory(t *testing.T) {
	c := newClient(t, newTestServer(t, scriptedGenerator{}, nil))

	rec := c.postJSON("/api/story", `{"type": "comedy", "genre": "romance", "prompt": "Two rivals"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var resp storyResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Once upon a time the dragon woke.", resp.Continuation)
	assert.Len(t, resp.Turns, 1)

	rec = c.postJSON("/api/story", `{"type": "epic", "genre": "romance", "prompt": "x"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestImportRoute(t *testing.T) {
	feed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		fmt.Fprint(w, `<?xml version="1.0"?>
<rss version="2.0"><channel><title>Reviews</title>
<item><title>Slow</title><link>http://example.invalid/1</link><description>Service was slow</description></item>
<item><title>Rude</title><link>http://example.invalid/2</link><description>Staff were rude</description></item>
</channel></rss>`)
	}))
	defer feed.Close()

	c := newClient(t, newTestServer(t, scriptedGenerator{}, []config.Feed{{URL: feed.URL, Name: "Test"}}))

	rec := c.get("/dashboard")
	assert.Contains(t, rec.Body.String(), "Import Reviews")

	rec = c.postForm("/import", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "Imported and analyzed 2 reviews.")

	rec = c.get("/api/metrics")
	assert.JSONEq(t, `{"total_feedback":2,"unique_causes":2,"top_cause":"slow service"}`, rec.Body.String())
}

func TestImportWithoutFeeds(t *testing.T) {
	c := newClient(t, newTestServer(t, scriptedGenerator{}, nil))

	rec := c.postForm("/import", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "No review feeds are configured.")
}

func TestHealth(t *testing.T) {
	c := newClient(t, newTestServer(t, scriptedGenerator{}, nil))

	rec := c.get("/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestServeShutsDownOnCancel(t *testing.T) {
	srv := newTestServer(t, scriptedGenerator{}, nil)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- Serve(ctx, srv, 0, zap.NewNop()) }()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}

func TestRenderMarkdown(t *testing.T) {
	html := string(renderMarkdown("**bold** <script>"))
	assert.Contains(t, html, "<strong>bold</strong>")
	assert.NotContains(t, html, "<script>")
}
