package server

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"io/fs"
	"net"
	"net/http"
	"time"

	"github.com/yuin/goldmark"
	"go.uber.org/zap"

	"github.com/TobiSchelling/FeedbackLens/internal/analysis"
	"github.com/TobiSchelling/FeedbackLens/internal/config"
	"github.com/TobiSchelling/FeedbackLens/internal/ingest"
	"github.com/TobiSchelling/FeedbackLens/internal/session"
	"github.com/TobiSchelling/FeedbackLens/internal/story"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static/*
var staticFS embed.FS

var md = goldmark.New()

// SessionCookie names the cookie that carries the session ID.
const SessionCookie = "feedbacklens_session"

// Options are the collaborators a Server needs.
type Options struct {
	Sessions *session.Manager
	Analyzer *analysis.Analyzer
	Stories  *story.Generator
	Importer *ingest.Importer
	Feeds    []config.Feed
	Log      *zap.Logger
}

// Server is the HTTP server for the feedback analyzer and story generator.
type Server struct {
	sessions *session.Manager
	analyzer *analysis.Analyzer
	stories  *story.Generator
	importer *ingest.Importer
	feeds    []config.Feed
	log      *zap.Logger
	pages    map[string]*template.Template
	mux      *http.ServeMux
}

// New creates a new Server.
func New(opts Options) (*Server, error) {
	funcMap := template.FuncMap{
		"markdown": renderMarkdown,
		"percent": func(v float64) string {
			return fmt.Sprintf("%.1f%%", v)
		},
		"width": func(v float64) template.CSS {
			return template.CSS(fmt.Sprintf("width: %.1f%%", v))
		},
		"formatTime": func(t time.Time) string {
			return t.Local().Format("2006-01-02 15:04:05")
		},
	}

	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	// Each page gets its own clone of base so every page can define
	// "title" and "content".
	pageNames := []string{"index.html", "dashboard.html", "records.html", "causes.html", "story.html"}
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		if _, err := clone.ParseFS(templateFS, "templates/"+name); err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}

	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}

	s := &Server{
		sessions: opts.Sessions,
		analyzer: opts.Analyzer,
		stories:  opts.Stories,
		importer: opts.Importer,
		feeds:    opts.Feeds,
		log:      log,
		pages:    pages,
		mux:      http.NewServeMux(),
	}
	s.routes()
	return s, nil
}

// Handler returns the HTTP handler for the server.
func (s *Server) Handler() http.Handler {
	return s.logRequests(s.mux)
}

func (s *Server) routes() {
	staticSub, _ := fs.Sub(staticFS, "static")
	s.mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(http.FS(staticSub))))

	s.mux.HandleFunc("GET /{$}", s.withSession(s.handleIndex))
	s.mux.HandleFunc("POST /feedback", s.withSession(s.handleSubmit))
	s.mux.HandleFunc("GET /feedback", s.withSession(s.handleRecords))
	s.mux.HandleFunc("GET /causes", s.withSession(s.handleCauses))
	s.mux.HandleFunc("GET /dashboard", s.withSession(s.handleDashboard))
	s.mux.HandleFunc("POST /dashboard/analyze", s.withSession(s.handleAnalyze))
	s.mux.HandleFunc("POST /reset", s.withSession(s.handleReset))
	s.mux.HandleFunc("POST /import", s.withSession(s.handleImport))
	s.mux.HandleFunc("GET /story", s.withSession(s.handleStory))
	s.mux.HandleFunc("POST /story", s.withSession(s.handleStoryContinue))
	s.mux.HandleFunc("POST /story/clear", s.withSession(s.handleStoryClear))

	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.HandleFunc("POST /api/feedback", s.withSession(s.apiSubmit))
	s.mux.HandleFunc("GET /api/feedback", s.withSession(s.apiRecords))
	s.mux.HandleFunc("GET /api/causes", s.withSession(s.apiCauses))
	s.mux.HandleFunc("GET /api/metrics", s.withSession(s.apiMetrics))
	s.mux.HandleFunc("POST /api/analyze", s.withSession(s.apiAnalyze))
	s.mux.HandleFunc("POST /api/reset", s.withSession(s.apiReset))
	s.mux.HandleFunc("POST /api/story", s.withSession(s.apiStory))
}

type sessionHandler func(http.ResponseWriter, *http.Request, *session.Session)

// withSession resolves the caller's session from its cookie, starting a new
// one when the cookie is missing or has expired.
func (s *Server) withSession(h sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var id string
		if c, err := r.Cookie(SessionCookie); err == nil {
			id = c.Value
		}

		sess, created, release, err := s.sessions.Acquire(id)
		if err != nil {
			s.log.Error("opening session", zap.Error(err))
			http.Error(w, "Internal server error", http.StatusInternalServerError)
			return
		}
		defer release()
		if created {
			http.SetCookie(w, &http.Cookie{
				Name:     SessionCookie,
				Value:    sess.ID,
				Path:     "/",
				HttpOnly: true,
				SameSite: http.SameSiteLaxMode,
			})
		}
		h(w, r, sess)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.Debug("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rec.status),
			zap.Duration("elapsed", time.Since(start)))
	})
}

func (s *Server) render(w http.ResponseWriter, status int, name string, data map[string]any) {
	tmpl, ok := s.pages[name]
	if !ok {
		s.log.Error("template not found", zap.String("template", name))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "base.html", data); err != nil {
		s.log.Error("rendering template", zap.String("template", name), zap.Error(err))
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

func (s *Server) internalError(w http.ResponseWriter, msg string, err error) {
	s.log.Error(msg, zap.Error(err))
	http.Error(w, "Internal server error", http.StatusInternalServerError)
}

func renderMarkdown(text string) template.HTML {
	var buf bytes.Buffer
	if err := md.Convert([]byte(text), &buf); err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return template.HTML(buf.String()) //nolint: gosec
}

// Serve runs the HTTP server on the given port until ctx is cancelled, then
// shuts it down gracefully.
func Serve(ctx context.Context, srv *Server, port int, log *zap.Logger) error {
	httpServer := &http.Server{
		Addr:              fmt.Sprintf("127.0.0.1:%d", port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ln, err := net.Listen("tcp", httpServer.Addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", httpServer.Addr, err)
	}
	log.Info("server listening", zap.String("url", "http://"+ln.Addr().String()))

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	<-errCh
	return nil
}
