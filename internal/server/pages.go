package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/TobiSchelling/FeedbackLens/internal/analysis"
	"github.com/TobiSchelling/FeedbackLens/internal/ingest"
	"github.com/TobiSchelling/FeedbackLens/internal/report"
	"github.com/TobiSchelling/FeedbackLens/internal/session"
	"github.com/TobiSchelling/FeedbackLens/internal/story"
)

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request, _ *session.Session) {
	s.render(w, http.StatusOK, "index.html", map[string]any{})
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	text := r.FormValue("feedback")

	sub, err := s.analyzer.SubmitFeedback(r.Context(), sess.Store, text)
	if errors.Is(err, analysis.ErrEmptyFeedback) {
		s.render(w, http.StatusBadRequest, "index.html", map[string]any{
			"Warning": "Please enter some feedback before submitting.",
		})
		return
	}
	if err != nil {
		s.internalError(w, "submitting feedback", err)
		return
	}

	data := map[string]any{
		"Notice":     "Thank you! Your feedback has been submitted and analyzed successfully.",
		"Submission": sub,
	}
	if sub.UpstreamErr != nil {
		data["Warning"] = "The analysis service reported a problem: " + sub.UpstreamErr.Error()
	}
	s.render(w, http.StatusOK, "index.html", data)
}

func (s *Server) dashboardData(r *http.Request, sess *session.Session) (map[string]any, error) {
	metrics, err := report.Collect(r.Context(), sess.Store)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"Metrics":     metrics,
		"FeedsConfig": len(s.feeds) > 0,
	}, nil
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	data, err := s.dashboardData(r, sess)
	if err != nil {
		s.internalError(w, "loading dashboard", err)
		return
	}
	if r.URL.Query().Get("reset") == "1" {
		data["Notice"] = "Feedback data has been reset."
	}
	s.render(w, http.StatusOK, "dashboard.html", data)
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	rep, err := s.analyzer.AnalyzeBulk(r.Context(), sess.Store)
	status := http.StatusOK
	var warning string
	switch {
	case errors.Is(err, analysis.ErrNoFeedback):
		status = http.StatusBadRequest
		warning = "No feedback data available for analysis."
	case err != nil:
		s.internalError(w, "bulk analysis", err)
		return
	case rep.UpstreamErr != nil:
		warning = "The analysis service reported a problem: " + rep.UpstreamErr.Error()
	}

	data, err := s.dashboardData(r, sess)
	if err != nil {
		s.internalError(w, "loading dashboard", err)
		return
	}
	data["Report"] = rep
	if warning != "" {
		data["Warning"] = warning
	}
	s.render(w, status, "dashboard.html", data)
}

func (s *Server) handleRecords(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	records, err := sess.Store.AllRecords(r.Context())
	if err != nil {
		s.internalError(w, "listing feedback", err)
		return
	}
	s.render(w, http.StatusOK, "records.html", map[string]any{"Records": records})
}

func (s *Server) handleCauses(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	counts, err := sess.Store.CauseCounts(r.Context())
	if err != nil {
		s.internalError(w, "listing causes", err)
		return
	}
	s.render(w, http.StatusOK, "causes.html", map[string]any{"Counts": counts})
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if err := sess.Store.Reset(r.Context()); err != nil {
		s.internalError(w, "resetting feedback", err)
		return
	}
	http.Redirect(w, r, "/dashboard?reset=1", http.StatusSeeOther)
}

func (s *Server) handleImport(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	status := http.StatusOK
	notice, warning := "", ""

	if len(s.feeds) == 0 || s.importer == nil {
		status = http.StatusBadRequest
		warning = "No review feeds are configured."
	} else {
		reviews, err := s.importer.Import(r.Context(), s.feeds)
		if err != nil {
			s.internalError(w, "importing reviews", err)
			return
		}
		res, err := ingest.SubmitAll(r.Context(), s.analyzer, sess.Store, reviews)
		if err != nil {
			s.internalError(w, "submitting reviews", err)
			return
		}
		notice = formatImport(res)
		if res.UpstreamFailed > 0 {
			warning = "Some reviews could not be analyzed by the model."
		}
	}

	data, err := s.dashboardData(r, sess)
	if err != nil {
		s.internalError(w, "loading dashboard", err)
		return
	}
	data["Notice"] = notice
	data["Warning"] = warning
	s.render(w, status, "dashboard.html", data)
}

func (s *Server) storyData(sess *session.Session) map[string]any {
	return map[string]any{
		"Types":  story.Types,
		"Genres": story.Genres,
		"Type":   story.Types[0],
		"Genre":  story.Genres[0],
		"Prompt": "",
		"Turns":  sess.Story.Turns(),
	}
}

func (s *Server) handleStory(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	s.render(w, http.StatusOK, "story.html", s.storyData(sess))
}

func (s *Server) handleStoryContinue(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	storyType := r.FormValue("type")
	genre := r.FormValue("genre")
	prompt := strings.TrimSpace(r.FormValue("prompt"))

	text, err := s.stories.Continue(r.Context(), sess.Story, storyType, genre, prompt)

	data := s.storyData(sess)
	data["Type"] = storyType
	data["Genre"] = genre
	if errors.Is(err, story.ErrEmptyPrompt) || errors.Is(err, story.ErrInvalidChoice) {
		data["Warning"] = err.Error()
		data["Prompt"] = prompt
		s.render(w, http.StatusBadRequest, "story.html", data)
		return
	}
	if err != nil {
		s.internalError(w, "continuing story", err)
		return
	}
	data["Continuation"] = text
	s.render(w, http.StatusOK, "story.html", data)
}

func (s *Server) handleStoryClear(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	sess.Story.Clear()
	http.Redirect(w, r, "/story", http.StatusSeeOther)
}

func formatImport(res ingest.Result) string {
	switch res.Submitted {
	case 0:
		return "No new reviews were found in the configured feeds."
	case 1:
		return "Imported and analyzed 1 review."
	default:
		return "Imported and analyzed " + strconv.Itoa(res.Submitted) + " reviews."
	}
}
