package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/TobiSchelling/FeedbackLens/internal/analysis"
	"github.com/TobiSchelling/FeedbackLens/internal/database"
	"github.com/TobiSchelling/FeedbackLens/internal/report"
	"github.com/TobiSchelling/FeedbackLens/internal/session"
	"github.com/TobiSchelling/FeedbackLens/internal/story"
)

type submitRequest struct {
	Feedback string `json:"feedback"`
}

type submitResponse struct {
	Record        database.FeedbackRecord `json:"record"`
	Analysis      string                  `json:"analysis"`
	UpstreamError string                  `json:"upstream_error,omitempty"`
}

type analyzeResponse struct {
	Raw           string                       `json:"raw"`
	Rows          []analysis.RecurringIssueRow `json:"rows"`
	TopCauses     []report.CauseShare          `json:"top_causes"`
	Timeline      []report.DayCount            `json:"timeline"`
	Feedback      int                          `json:"feedback_count"`
	GeneratedAt   time.Time                    `json:"generated_at"`
	UpstreamError string                       `json:"upstream_error,omitempty"`
}

type storyRequest struct {
	Type   string `json:"type"`
	Genre  string `json:"genre"`
	Prompt string `json:"prompt"`
}

type storyResponse struct {
	Continuation string       `json:"continuation"`
	Turns        []story.Turn `json:"turns"`
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) apiSubmit(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var req submitRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sub, err := s.analyzer.SubmitFeedback(r.Context(), sess.Store, req.Feedback)
	if errors.Is(err, analysis.ErrEmptyFeedback) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.apiInternalError(w, "submitting feedback", err)
		return
	}

	writeJSON(w, http.StatusCreated, submitResponse{
		Record:        sub.Record,
		Analysis:      sub.Analysis,
		UpstreamError: errorText(sub.UpstreamErr),
	})
}

func (s *Server) apiRecords(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	records, err := sess.Store.AllRecords(r.Context())
	if err != nil {
		s.apiInternalError(w, "listing feedback", err)
		return
	}
	if records == nil {
		records = []database.FeedbackRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

func (s *Server) apiCauses(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	counts, err := sess.Store.CauseCounts(r.Context())
	if err != nil {
		s.apiInternalError(w, "listing causes", err)
		return
	}
	if counts == nil {
		counts = []database.CauseCount{}
	}
	writeJSON(w, http.StatusOK, counts)
}

func (s *Server) apiMetrics(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	metrics, err := report.Collect(r.Context(), sess.Store)
	if err != nil {
		s.apiInternalError(w, "reading metrics", err)
		return
	}
	writeJSON(w, http.StatusOK, metrics)
}

func (s *Server) apiAnalyze(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	rep, err := s.analyzer.AnalyzeBulk(r.Context(), sess.Store)
	if errors.Is(err, analysis.ErrNoFeedback) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.apiInternalError(w, "bulk analysis", err)
		return
	}

	writeJSON(w, http.StatusOK, analyzeResponse{
		Raw:           rep.Raw,
		Rows:          rep.Rows,
		TopCauses:     rep.TopCauses,
		Timeline:      rep.Timeline,
		Feedback:      rep.Feedback,
		GeneratedAt:   rep.GeneratedAt,
		UpstreamError: errorText(rep.UpstreamErr),
	})
}

func (s *Server) apiReset(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	if err := sess.Store.Reset(r.Context()); err != nil {
		s.apiInternalError(w, "resetting feedback", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "reset"})
}

func (s *Server) apiStory(w http.ResponseWriter, r *http.Request, sess *session.Session) {
	var req storyRequest
	if err := readJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	text, err := s.stories.Continue(r.Context(), sess.Story, req.Type, req.Genre, req.Prompt)
	if errors.Is(err, story.ErrEmptyPrompt) || errors.Is(err, story.ErrInvalidChoice) {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err != nil {
		s.apiInternalError(w, "continuing story", err)
		return
	}
	writeJSON(w, http.StatusOK, storyResponse{Continuation: text, Turns: sess.Story.Turns()})
}

func (s *Server) apiInternalError(w http.ResponseWriter, msg string, err error) {
	s.log.Error(msg, zap.Error(err))
	writeError(w, http.StatusInternalServerError, "internal server error")
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func readJSON(w http.ResponseWriter, r *http.Request, v any) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20)).Decode(v)
}
