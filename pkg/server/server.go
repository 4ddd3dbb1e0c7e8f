package server

import (
	"context"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"io"
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"github.com/yurifrl/exoprep/pkg/config"
	"github.com/yurifrl/exoprep/pkg/csv"
	"github.com/yurifrl/exoprep/pkg/fields"
	"github.com/yurifrl/exoprep/pkg/models"
	"github.com/yurifrl/exoprep/pkg/parser"
	"github.com/yurifrl/exoprep/pkg/reconcile"
	"github.com/yurifrl/exoprep/pkg/records"
	"github.com/yurifrl/exoprep/pkg/session"
	"github.com/yurifrl/exoprep/pkg/store"
)

//go:embed templates/*.html
var templates embed.FS

const sessionCookie = "exoprep_session"

// Predictor is the remote service the server forwards to.
type Predictor interface {
	session.Predictor
	Metrics(ctx context.Context) (*models.Metrics, error)
}

// Server is the HTTP adapter over the ingestion pipeline.
type Server struct {
	config    *config.Config
	logger    *log.Logger
	mux       *http.ServeMux
	template  *template.Template
	parser    *parser.Parser
	sessions  *session.Manager
	predictor Predictor
}

// New creates a new HTTP server
func New(cfg *config.Config, logger *log.Logger, predictor Predictor, results store.Store) *Server {
	tmpl := template.Must(template.ParseFS(templates, "templates/*.html"))
	s := &Server{
		config:    cfg,
		logger:    logger,
		mux:       http.NewServeMux(),
		template:  tmpl,
		parser:    parser.New(logger),
		sessions:  session.NewManager(predictor, results, cfg.Predictor.Timeout, cfg.Server.SessionTTL, logger),
		predictor: predictor,
	}
	s.setupRoutes()
	return s
}

// Handler exposes the routes, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Start serves until the listener fails.
func (s *Server) Start(addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return srv.ListenAndServe()
}

func (s *Server) setupRoutes() {
	// pages
	s.mux.HandleFunc("/", s.withLogging(s.handleHome))
	s.mux.HandleFunc(session.ResultsPath, s.withLogging(s.handleResultsPage))

	s.mux.HandleFunc("/api/upload", s.withLogging(s.handleUpload))
	s.mux.HandleFunc("/api/mode", s.withLogging(s.handleMode))
	s.mux.HandleFunc("/api/mapping", s.withLogging(s.handleMapping))
	s.mux.HandleFunc("/api/analyze", s.withLogging(s.handleAnalyze))
	s.mux.HandleFunc("/api/results", s.withLogging(s.handleResults))
	s.mux.HandleFunc("/api/files/", s.withLogging(s.handleFiles))
	s.mux.HandleFunc("/api/metrics", s.withLogging(s.handleMetrics))
}

type formInput struct {
	ID    string
	Label string
}

func (s *Server) handleHome(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		s.respondError(w, r, http.StatusNotFound, "not found", nil)
		return
	}
	if r.Method != http.MethodGet {
		s.respondError(w, r, http.StatusMethodNotAllowed, "method not allowed", nil)
		return
	}
	inputs := make([]formInput, 0, len(fields.Required))
	for _, f := range fields.Required {
		id, _ := fields.FormID(f)
		inputs = append(inputs, formInput{ID: id, Label: f.Label()})
	}
	if err := s.template.ExecuteTemplate(w, "index.html", map[string]any{"Inputs": inputs}); err != nil {
		s.respondError(w, r, http.StatusInternalServerError, "failed to render page", err)
	}
}

func (s *Server) handleResultsPage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, r, http.StatusMethodNotAllowed, "method not allowed", nil)
		return
	}
	if err := s.template.ExecuteTemplate(w, "results.html", nil); err != nil {
		s.respondError(w, r, http.StatusInternalServerError, "failed to render page", err)
	}
}

// ---------------- upload ----------------

// Entry is a mapping control as sent to the page.
type Entry struct {
	Field    string             `json:"field"`
	Label    string             `json:"label"`
	Options  []reconcile.Option `json:"options"`
	Selected string             `json:"selected"`
	Matched  bool               `json:"matched"`
}

func entries(report *reconcile.Report) []Entry {
	out := make([]Entry, len(report.Entries))
	for i, e := range report.Entries {
		out[i] = Entry{
			Field:    string(e.Field),
			Label:    e.Label,
			Options:  e.Options,
			Selected: e.Selected,
			Matched:  e.Status == reconcile.Matched,
		}
	}
	return out
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, r, http.StatusMethodNotAllowed, "method not allowed", nil)
		return
	}
	sess := s.sessionFor(w, r)

	r.Body = http.MaxBytesReader(w, r.Body, s.config.Server.MaxUploadBytes)
	file, header, err := r.FormFile("file")
	if err != nil {
		s.respondError(w, r, http.StatusBadRequest, "failed to read file", err)
		return
	}
	defer file.Close()
	data, err := io.ReadAll(file)
	if err != nil {
		s.respondError(w, r, http.StatusBadRequest, "failed to read file", err)
		return
	}

	table, err := s.parser.ProcessBytes(data, header.Filename)
	if err != nil {
		s.respondNotice(w, r, err)
		return
	}
	report := sess.Load(table)

	if err := s.writeJSON(w, http.StatusOK, map[string]any{
		"status":   "success",
		"file":     header.Filename,
		"headers":  table.Headers,
		"rows":     len(table.Rows),
		"entries":  entries(report),
		"matched":  report.MatchedCount(),
		"unmapped": report.UnmappedCount(),
	}); err != nil {
		s.logger.Warn("failed to write json response", "err", err)
	}
}

// ---------------- mode / mapping ----------------

func (s *Server) handleMode(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, r, http.StatusMethodNotAllowed, "method not allowed", nil)
		return
	}
	var req struct {
		Mode string `json:"mode"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, r, http.StatusBadRequest, "invalid request body", err)
		return
	}
	mode, ok := models.ParseMode(req.Mode)
	if !ok {
		s.respondError(w, r, http.StatusBadRequest, "unknown mode", nil)
		return
	}
	sess := s.sessionFor(w, r)
	sess.SetMode(mode)

	if err := s.writeJSON(w, http.StatusOK, map[string]any{"status": "success", "mode": mode}); err != nil {
		s.logger.Warn("failed to write json response", "err", err)
	}
}

func (s *Server) handleMapping(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, r, http.StatusMethodNotAllowed, "method not allowed", nil)
		return
	}
	var req struct {
		Field  string `json:"field"`
		Header string `json:"header"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, r, http.StatusBadRequest, "invalid request body", err)
		return
	}
	field, err := fields.Parse(req.Field)
	if err != nil {
		s.respondError(w, r, http.StatusBadRequest, "unknown field", err)
		return
	}

	sess, ok := s.existingSession(r)
	if !ok {
		s.respondNotice(w, r, records.ErrNoData)
		return
	}
	if err := sess.Override(field, req.Header); err != nil {
		s.respondNotice(w, r, err)
		return
	}
	report := sess.Report()

	if err := s.writeJSON(w, http.StatusOK, map[string]any{
		"status":   "success",
		"entries":  entries(report),
		"unmapped": report.UnmappedCount(),
	}); err != nil {
		s.logger.Warn("failed to write json response", "err", err)
	}
}

// ---------------- analyze ----------------

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.respondError(w, r, http.StatusMethodNotAllowed, "method not allowed", nil)
		return
	}
	var req struct {
		Mode string            `json:"mode"`
		Form map[string]string `json:"form"`
	}
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.respondError(w, r, http.StatusBadRequest, "invalid request body", err)
			return
		}
	}

	sess := s.sessionFor(w, r)
	if req.Mode != "" {
		mode, ok := models.ParseMode(req.Mode)
		if !ok {
			s.respondError(w, r, http.StatusBadRequest, "unknown mode", nil)
			return
		}
		sess.SetMode(mode)
	}

	out, err := sess.Submit(r.Context(), req.Form)
	if err != nil {
		s.respondNotice(w, r, err)
		return
	}
	s.logger.Info("analysis complete", "session", sess.ID, "records", out.Records)

	if err := s.writeJSON(w, http.StatusOK, map[string]any{
		"status":   "success",
		"redirect": out.Redirect,
		"records":  out.Records,
	}); err != nil {
		s.logger.Warn("failed to write json response", "err", err)
	}
}

func (s *Server) handleResults(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, r, http.StatusMethodNotAllowed, "method not allowed", nil)
		return
	}
	sess, ok := s.existingSession(r)
	if !ok {
		s.respondNotice(w, r, store.ErrNotFound)
		return
	}
	result, err := sess.Result(r.Context())
	if err != nil {
		s.respondNotice(w, r, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(result); err != nil {
		s.logger.Warn("failed to write results", "err", err)
	}
}

// ---------------- file download handler ----------------

// handleFiles serves the normalized CSV of the loaded file under its
// confirmed mapping.
func (s *Server) handleFiles(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, r, http.StatusMethodNotAllowed, "method not allowed", nil)
		return
	}
	sess, ok := s.existingSession(r)
	if !ok {
		s.respondNotice(w, r, records.ErrNoData)
		return
	}
	if sess.Mode() != models.Bulk {
		s.respondError(w, r, http.StatusBadRequest, "normalized export is only available for uploaded files", nil)
		return
	}
	p, err := sess.Prepare(nil)
	if err != nil {
		s.respondNotice(w, r, err)
		return
	}
	body, err := csv.Create(p, nil)
	if err != nil {
		s.respondError(w, r, http.StatusInternalServerError, "failed to render csv", err)
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="normalized.csv"`)
	if _, err := w.Write(body); err != nil {
		s.logger.Warn("failed to write csv response", "err", err)
	}
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.respondError(w, r, http.StatusMethodNotAllowed, "method not allowed", nil)
		return
	}
	ctx, cancel := context.WithTimeout(r.Context(), s.config.Predictor.Timeout)
	defer cancel()

	m, err := s.predictor.Metrics(ctx)
	if err != nil {
		s.respondError(w, r, http.StatusBadGateway, "failed to fetch model metrics", err)
		return
	}
	if err := s.writeJSON(w, http.StatusOK, m); err != nil {
		s.logger.Warn("failed to write json response", "err", err)
	}
}

// --- helpers ---

// sessionFor returns the caller's session, issuing a cookie for new ones.
func (s *Server) sessionFor(w http.ResponseWriter, r *http.Request) *session.Session {
	var id string
	if c, err := r.Cookie(sessionCookie); err == nil {
		id = c.Value
	}
	sess := s.sessions.Get(id)
	if sess.ID != id {
		http.SetCookie(w, &http.Cookie{
			Name:     sessionCookie,
			Value:    sess.ID,
			Path:     "/",
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
	}
	return sess
}

// existingSession returns the caller's session without creating one, for
// handlers that only read state.
func (s *Server) existingSession(r *http.Request) (*session.Session, bool) {
	c, err := r.Cookie(sessionCookie)
	if err != nil {
		return nil, false
	}
	return s.sessions.Lookup(c.Value)
}

// writeJSON encodes v as JSON with the given status and writes headers.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	return json.NewEncoder(w).Encode(v)
}

// respondNotice turns a pipeline error into its user-facing notice.
func (s *Server) respondNotice(w http.ResponseWriter, r *http.Request, err error) {
	status, message := notice(err)
	s.respondError(w, r, status, message, err)
}

// respondError logs the error and returns a minimal JSON error body.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, status int, message string, err error) {
	if err != nil {
		s.logger.Warn("request error", "status", status, "msg", message, "err", err, "method", r.Method, "path", r.URL.Path)
	} else {
		s.logger.Warn("request error", "status", status, "msg", message, "method", r.Method, "path", r.URL.Path)
	}
	_ = s.writeJSON(w, status, map[string]string{
		"status": "error",
		"error":  message,
	})
}

// withLogging wraps a handler to log request start/end and recover panics.
func (s *Server) withLogging(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.logger.Debug("http request", "method", r.Method, "path", r.URL.Path, "remote", r.RemoteAddr)
		defer func() {
			if rec := recover(); rec != nil {
				s.logger.Error("panic recovered", "panic", rec, "method", r.Method, "path", r.URL.Path)
				s.respondError(w, r, http.StatusInternalServerError, "internal server error", fmt.Errorf("panic: %v", rec))
			}
		}()
		next(w, r)
	}
}
