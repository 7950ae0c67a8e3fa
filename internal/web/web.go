package web

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"golang.org/x/crypto/bcrypt"

	"gestescal/internal/config"
	"gestescal/internal/export"
	appLog "gestescal/internal/log"
	"gestescal/internal/model"
)

// LastSyncLayout is the format of /last-sync timestamps.
const LastSyncLayout = "2006-01-02 15:04:05"

// Syncer is the part of refresh.Refresher the HTTP layer needs.
type Syncer interface {
	RefreshOnce(ctx context.Context) error
	LastSync() (time.Time, bool)
	Events() []model.Event
}

// Server exposes the published files and the sync controls over HTTP.
type Server struct {
	cfg    *config.Config
	syncer Syncer
	router chi.Router

	// /api/status reads both calendar files; the result is reused while
	// the last sync and both files are unchanged.
	statusMu    sync.Mutex
	statusCache *statusCache
}

// statusCache holds a computed /api/status body and the state it was
// computed from.
type statusCache struct {
	resp     statusResponse
	lastSync time.Time
	courses  fileStamp
	exams    fileStamp
}

// fileStamp identifies one version of a published file. A failed cycle can
// rewrite a calendar without moving the last sync time.
type fileStamp struct {
	modTime time.Time
	size    int64
}

func stampOf(path string) fileStamp {
	info, err := os.Stat(path)
	if err != nil {
		return fileStamp{}
	}
	return fileStamp{modTime: info.ModTime(), size: info.Size()}
}

func (sc *statusCache) fresh(last time.Time, courses, exams fileStamp) bool {
	return sc != nil && sc.lastSync.Equal(last) &&
		sc.courses.modTime.Equal(courses.modTime) && sc.courses.size == courses.size &&
		sc.exams.modTime.Equal(exams.modTime) && sc.exams.size == exams.size
}

// NewServer constructs a new Server.
func NewServer(cfg *config.Config, syncer Syncer) *Server {
	s := &Server{
		cfg:    cfg,
		syncer: syncer,
	}
	s.setupRoutes()
	return s
}

// Handler returns the router with CORS and, if configured, basic auth.
func (s *Server) Handler() http.Handler {
	h := http.Handler(s.router)
	if s.basicAuthEnabled() {
		appLog.Info("HTTP basic auth enabled", "user", s.cfg.BasicAuth.Username)
		h = s.basicAuthMiddleware(h)
	}
	return corsMiddleware(h)
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Get("/calendar/{name}.ics", s.handleCalendar)
	r.Get("/schedule.csv", s.handleCSV)
	r.Post("/resync", s.handleResync)
	r.Get("/last-sync", s.handleLastSync)

	r.Route("/api", func(r chi.Router) {
		r.Get("/events", s.handleEvents)
		r.Get("/status", s.handleStatus)
	})

	s.router = r
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
// TLS is used when both tls_cert and tls_key are configured.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		var err error
		if s.cfg.TLSCert != "" && s.cfg.TLSKey != "" {
			appLog.Info("starting HTTPS server", "listen", "https://"+s.cfg.Listen)
			err = srv.ListenAndServeTLS(s.cfg.TLSCert, s.cfg.TLSKey)
		} else {
			appLog.Info("starting HTTP server", "listen", "http://"+s.cfg.Listen)
			err = srv.ListenAndServe()
		}
		if errors.Is(err, http.ErrServerClosed) {
			err = nil
		}
		errCh <- err
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

// basicAuthEnabled reports whether HTTP Basic Auth is configured.
func (s *Server) basicAuthEnabled() bool {
	if s.cfg == nil || s.cfg.BasicAuth == nil {
		return false
	}
	// Empty username or password leaves auth off.
	if s.cfg.BasicAuth.Username == "" || s.cfg.BasicAuth.Password == "" {
		return false
	}
	return true
}

// basicAuthMiddleware guards everything except /health and the calendar
// feeds, which calendar clients poll without credentials.
func (s *Server) basicAuthMiddleware(next http.Handler) http.Handler {
	username := s.cfg.BasicAuth.Username
	password := s.cfg.BasicAuth.Password
	hashed := isBcryptHash(password)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" || strings.HasPrefix(r.URL.Path, "/calendar/") || r.Method == http.MethodOptions {
			next.ServeHTTP(w, r)
			return
		}

		u, p, ok := r.BasicAuth()
		if !ok || !secureCompare(u, username) || !checkPassword(p, password, hashed) {
			w.Header().Set("WWW-Authenticate", `Basic realm="gestescal", charset="UTF-8"`)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func isBcryptHash(s string) bool {
	_, err := bcrypt.Cost([]byte(s))
	return err == nil
}

func checkPassword(given, want string, hashed bool) bool {
	if hashed {
		return bcrypt.CompareHashAndPassword([]byte(want), []byte(given)) == nil
	}
	return secureCompare(given, want)
}

// secureCompare compares two strings in constant time.
func secureCompare(a, b string) bool {
	if len(a) != len(b) {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// corsMiddleware allows any origin; the feeds are meant to be embedded.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("Access-Control-Allow-Origin", "*")
		if r.Method == http.MethodOptions {
			h.Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
			h.Set("Access-Control-Allow-Headers", "Authorization, Content-Type")
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// calendarPath maps a feed name to its file, or "" for unknown names.
func (s *Server) calendarPath(name string) string {
	switch name {
	case "courses":
		return s.cfg.Output.Courses
	case "exams":
		return s.cfg.Output.Exams
	default:
		return ""
	}
}

// handleCalendar serves GET /calendar/{courses|exams}.ics as an attachment.
func (s *Server) handleCalendar(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	path := s.calendarPath(name)
	if path == "" || !serveAttachment(w, r, path, "text/calendar; charset=utf-8") {
		writeError(w, http.StatusNotFound, "Invalid calendar type or file not found.")
	}
}

func (s *Server) handleCSV(w http.ResponseWriter, r *http.Request) {
	if !serveAttachment(w, r, s.cfg.Output.CSV, "text/csv; charset=utf-8") {
		writeError(w, http.StatusNotFound, "Schedule not found.")
	}
}

// serveAttachment streams path with a download disposition. It reports false
// if the file cannot be opened, leaving the response untouched.
func serveAttachment(w http.ResponseWriter, r *http.Request, path, contentType string) bool {
	f, err := os.Open(path)
	if err != nil {
		return false
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil || info.IsDir() {
		return false
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", `attachment; filename="`+filepath.Base(path)+`"`)
	http.ServeContent(w, r, filepath.Base(path), info.ModTime(), f)
	return true
}

type messageResponse struct {
	Message string `json:"message"`
}

type resyncErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details"`
}

// handleResync runs a cycle synchronously. It waits for any cycle already in
// progress to finish first.
func (s *Server) handleResync(w http.ResponseWriter, r *http.Request) {
	if err := s.syncer.RefreshOnce(r.Context()); err != nil {
		writeJSON(w, http.StatusInternalServerError, resyncErrorResponse{
			Error:   "Failed to resync calendars.",
			Details: err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Message: "Calendars resynchronized successfully!"})
}

type lastSyncResponse struct {
	LastSyncTime string `json:"last_sync_time"`
}

func (s *Server) handleLastSync(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, lastSyncResponse{LastSyncTime: s.lastSyncText()})
}

func (s *Server) lastSyncText() string {
	t, ok := s.syncer.LastSync()
	if !ok {
		return "Never"
	}
	return t.Format(LastSyncLayout)
}

// eventsResponse is the JSON response shape for /api/events.
type eventsResponse struct {
	Date   string        `json:"date,omitempty"`
	Count  int           `json:"count"`
	Events []model.Event `json:"events"`
}

// handleEvents returns events from the last successful cycle.
//
// GET /api/events?date=2024-08-19 keeps only events starting that day.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	events := s.syncer.Events()

	date := r.URL.Query().Get("date")
	if date != "" {
		day, err := time.Parse("2006-01-02", date)
		if err != nil {
			writeError(w, http.StatusBadRequest, "date must be YYYY-MM-DD")
			return
		}
		events = model.FilterByDate(events, day)
	}
	if events == nil {
		events = []model.Event{}
	}

	writeJSON(w, http.StatusOK, eventsResponse{Date: date, Count: len(events), Events: events})
}

// statusResponse is the JSON response shape for /api/status.
type statusResponse struct {
	LastSyncTime string `json:"last_sync_time"`
	Events       int    `json:"events"`
	Courses      int    `json:"courses"`
	Exams        int    `json:"exams"`
}

// handleStatus reports the last sync and the entry count of each published
// calendar file. A missing or unreadable file counts as zero.
func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	last, _ := s.syncer.LastSync()
	courses := stampOf(s.cfg.Output.Courses)
	exams := stampOf(s.cfg.Output.Exams)

	s.statusMu.Lock()
	defer s.statusMu.Unlock()
	if s.statusCache.fresh(last, courses, exams) {
		writeJSON(w, http.StatusOK, s.statusCache.resp)
		return
	}

	resp := statusResponse{
		LastSyncTime: s.lastSyncText(),
		Events:       len(s.syncer.Events()),
		Courses:      countEntries(s.cfg.Output.Courses),
		Exams:        countEntries(s.cfg.Output.Exams),
	}
	s.statusCache = &statusCache{resp: resp, lastSync: last, courses: courses, exams: exams}
	writeJSON(w, http.StatusOK, resp)
}

func countEntries(path string) int {
	entries, err := export.ReadCalendar(path)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			appLog.Warn("calendar unreadable", "path", path, "err", err)
		}
		return 0
	}
	return len(entries)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		appLog.Error("failed to write JSON response", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	type errResp struct {
		Error string `json:"error"`
	}
	writeJSON(w, status, errResp{Error: msg})
}
