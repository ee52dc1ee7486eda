// Package server exposes the curation actions and read accessors over HTTP.
package server

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/TobiSchelling/curator/internal/app"
	"github.com/TobiSchelling/curator/internal/models"
	"github.com/TobiSchelling/curator/internal/publish"
	"github.com/TobiSchelling/curator/internal/settings"
)

//go:embed templates/*.html
var templateFS embed.FS

// Server serves the JSON API and the report preview pages.
type Server struct {
	app   *app.App
	pages map[string]*template.Template
}

// New creates a server.
func New(a *app.App) (*Server, error) {
	funcMap := template.FuncMap{"markdown": renderMarkdown}

	base, err := template.New("base.html").Funcs(funcMap).ParseFS(templateFS, "templates/base.html")
	if err != nil {
		return nil, fmt.Errorf("parsing base template: %w", err)
	}

	pages := make(map[string]*template.Template)
	for _, name := range []string{"index.html", "report.html"} {
		clone, err := base.Clone()
		if err != nil {
			return nil, fmt.Errorf("cloning base for %s: %w", name, err)
		}
		if _, err := clone.ParseFS(templateFS, "templates/"+name); err != nil {
			return nil, fmt.Errorf("parsing template %s: %w", name, err)
		}
		pages[name] = clone
	}
	return &Server{app: a, pages: pages}, nil
}

// Router returns the HTTP handler.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(10 * time.Minute))

	r.Get("/health", s.handleHealth)
	r.Get("/", s.handleIndex)
	r.Get("/reports/{id}", s.handleReportPage)

	r.Route("/api", func(r chi.Router) {
		r.Get("/status", s.handleStatus)
		r.Get("/config", s.handleGetConfig)
		r.Put("/config", s.handlePutConfig)
		r.Get("/articles", s.handleArticles)
		r.Get("/logs", s.handleLogs)
		r.Post("/collect", s.handleCollect)
		r.Post("/process", s.handleProcess)

		r.Route("/reports", func(r chi.Router) {
			r.Get("/", s.handleReports)
			r.Post("/", s.handleGenerate)
			r.Get("/{id}", s.handleReport)
			r.Post("/{id}/publish", s.handlePublish)
		})
	})
	return r
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]any{"ok": true, "time": time.Now().UTC()})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := s.app.Status(r.Context())
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, st)
}

func (s *Server) handleGetConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := s.app.Settings.Get(r.Context())
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, cfg)
}

func (s *Server) handlePutConfig(w http.ResponseWriter, r *http.Request) {
	var cfg models.Settings
	if err := decodeJSON(w, r, &cfg); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.app.Settings.Save(r.Context(), cfg); err != nil {
		respondErr(w, err)
		return
	}
	saved, err := s.app.Settings.Get(r.Context())
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, saved)
}

func (s *Server) handleArticles(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	list, err := s.app.Articles.ListAll(ctx)
	if name := r.URL.Query().Get("status"); name != "" {
		status, perr := models.ParseArticleStatus(strings.ToUpper(name))
		if perr != nil {
			respondError(w, http.StatusBadRequest, perr.Error())
			return
		}
		list, err = s.app.Articles.ListByStatus(ctx, status)
	}
	if err != nil {
		respondErr(w, err)
		return
	}
	if list == nil {
		list = []models.Article{}
	}
	respondJSON(w, http.StatusOK, list)
}

func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	entries, err := s.app.Audit.List(r.Context())
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, entries)
}

func (s *Server) handleCollect(w http.ResponseWriter, r *http.Request) {
	res, err := s.app.Engine.Collect(r.Context())
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleProcess(w http.ResponseWriter, r *http.Request) {
	res, err := s.app.Engine.Process(r.Context())
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) handleReports(w http.ResponseWriter, r *http.Request) {
	reports, err := s.app.Reports.List(r.Context())
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, reports)
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	rep, err := s.app.Reports.Generate(r.Context())
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, rep)
}

func (s *Server) handleReport(w http.ResponseWriter, r *http.Request) {
	rep, err := s.app.Reports.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, rep)
}

type publishRequest struct {
	Markdown string `json:"markdown"`
}

func (s *Server) handlePublish(w http.ResponseWriter, r *http.Request) {
	var req publishRequest
	// An empty body publishes the stored markdown.
	if err := decodeJSON(w, r, &req); err != nil && !errors.Is(err, io.EOF) {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	rep, err := s.app.Reports.Publish(r.Context(), chi.URLParam(r, "id"), req.Markdown)
	if err != nil {
		respondErr(w, err)
		return
	}
	respondJSON(w, http.StatusOK, rep)
}

func (s *Server) handleIndex(w http.ResponseWriter, r *http.Request) {
	reports, err := s.app.Reports.List(r.Context())
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	s.render(w, "index.html", map[string]any{"Reports": reports})
}

func (s *Server) handleReportPage(w http.ResponseWriter, r *http.Request) {
	rep, err := s.app.Reports.Get(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, models.ErrReportNotFound) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	s.render(w, "report.html", map[string]any{"Report": rep})
}

func (s *Server) render(w http.ResponseWriter, name string, data any) {
	tmpl, ok := s.pages[name]
	if !ok {
		log.Printf("Template %s not found", name)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := tmpl.ExecuteTemplate(w, "base.html", data); err != nil {
		log.Printf("Error rendering template %s: %v", name, err)
	}
}

func renderMarkdown(text string) template.HTML {
	html, err := publish.RenderHTML(text)
	if err != nil {
		return template.HTML(template.HTMLEscapeString(text))
	}
	return html
}

// statusFor maps the error taxonomy onto HTTP status codes.
func statusFor(err error) int {
	var (
		preErr    *models.PreconditionError
		collabErr *models.CollaboratorError
	)
	switch {
	case errors.Is(err, models.ErrReportNotFound), errors.Is(err, models.ErrArticleNotFound):
		return http.StatusNotFound
	case settings.IsConfigurationError(err):
		return http.StatusBadRequest
	case errors.As(err, &preErr):
		return http.StatusConflict
	case errors.As(err, &collabErr):
		return http.StatusBadGateway
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func respondErr(w http.ResponseWriter, err error) {
	code := statusFor(err)
	if code == http.StatusInternalServerError {
		log.Printf("Request failed: %v", err)
	}
	respondError(w, code, err.Error())
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) error {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func respondError(w http.ResponseWriter, status int, msg string) {
	respondJSON(w, status, map[string]string{"error": msg})
}

// Serve listens on 127.0.0.1:port until ctx is cancelled.
func Serve(ctx context.Context, a *app.App, port int) error {
	srv, err := New(a)
	if err != nil {
		return err
	}

	httpSrv := &http.Server{
		Addr:              fmt.Sprintf("127.0.0.1:%d", port),
		Handler:           srv.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Server listening on http://%s", httpSrv.Addr)
		errCh <- httpSrv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpSrv.Shutdown(shutdownCtx)
	}
}
