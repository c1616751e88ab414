// Package web serves the filebay HTTP API: session login, file and
// trash operations, streamed archives, share links, capacity, and the
// websocket change feed.
package web

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"github.com/filebay/filebay/internal/audit"
	"github.com/filebay/filebay/internal/config"
	"github.com/filebay/filebay/internal/metrics"
	"github.com/filebay/filebay/internal/share"
	"github.com/filebay/filebay/internal/vault"
)

// ErrorResponse is the JSON body returned for failed requests.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// statusRecorder wraps http.ResponseWriter to capture the HTTP status code.
type statusRecorder struct {
	http.ResponseWriter
	status      int
	wroteHeader bool
}

func (r *statusRecorder) WriteHeader(code int) {
	if !r.wroteHeader {
		r.status = code
		r.wroteHeader = true
		r.ResponseWriter.WriteHeader(code)
	}
	// Subsequent calls are silently ignored to prevent "http: superfluous response.WriteHeader call" warnings
}

// getStatus returns the recorded status, defaulting to 200 if WriteHeader was never called.
func (r *statusRecorder) getStatus() int {
	if r.status == 0 {
		return http.StatusOK
	}
	return r.status
}

// classifyStatus converts an HTTP status code to a metric status string.
func classifyStatus(httpStatus int) string {
	switch {
	case httpStatus >= 200 && httpStatus < 300:
		return "success"
	case httpStatus == http.StatusNotFound:
		return "not_found"
	case httpStatus == http.StatusUnauthorized:
		return "unauthorized"
	default:
		return "error"
	}
}

// Server serves the filebay web API.
type Server struct {
	cfg    *config.Config
	store  *vault.Store
	shares *share.Manager
	m      *metrics.StoreMetrics
	audit  *audit.Logger

	mux *http.ServeMux
	hub *hub

	sessionSecret []byte
	httpServer    *http.Server
	version       string
}

// NewServer creates the web server over the given store. The metrics
// handle and audit logger may be nil.
func NewServer(cfg *config.Config, store *vault.Store, shares *share.Manager, sessionSecret []byte, m *metrics.StoreMetrics, auditLog *audit.Logger) *Server {
	srv := &Server{
		cfg:           cfg,
		store:         store,
		shares:        shares,
		m:             m,
		audit:         auditLog,
		mux:           http.NewServeMux(),
		hub:           newHub(m),
		sessionSecret: sessionSecret,
	}
	srv.setupRoutes()
	return srv
}

// SetVersion sets the server version reported by the status endpoints.
func (s *Server) SetVersion(version string) {
	s.version = version
}

func (s *Server) setupRoutes() {
	s.mux.HandleFunc("/health", s.handleHealth)
	s.mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	s.mux.HandleFunc("/api/login", s.handleLogin)
	s.mux.HandleFunc("/api/files", s.withAuth(s.handleList))
	s.mux.HandleFunc("/api/files/upload", s.withAuth(s.handleUpload))
	s.mux.HandleFunc("/api/files/download", s.withAuth(s.handleDownload))
	s.mux.HandleFunc("/api/files/preview", s.withAuth(s.handlePreview))
	s.mux.HandleFunc("/api/files/archive", s.withAuth(s.handleArchive))
	s.mux.HandleFunc("/api/files/mkdir", s.withAuth(s.handleMkdir))
	s.mux.HandleFunc("/api/files/rename", s.withAuth(s.handleRename))
	s.mux.HandleFunc("/api/files/move", s.withAuth(s.handleMove))
	s.mux.HandleFunc("/api/files/delete", s.withAuth(s.handleDelete))
	s.mux.HandleFunc("/api/trash", s.withAuth(s.handleTrashList))
	s.mux.HandleFunc("/api/trash/restore", s.withAuth(s.handleTrashRestore))
	s.mux.HandleFunc("/api/trash/purge", s.withAuth(s.handleTrashPurge))
	s.mux.HandleFunc("/api/capacity", s.withAuth(s.handleCapacity))
	s.mux.HandleFunc("/api/shares", s.withAuth(s.handleShareCreate))
	s.mux.HandleFunc("/api/shares/qr", s.withAuth(s.handleShareQR))
	s.mux.HandleFunc("/api/events", s.withAuth(s.handleEvents))
	s.mux.HandleFunc("/s/", s.handleShareDownload)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func (s *Server) jsonError(w http.ResponseWriter, message string, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(ErrorResponse{
		Error:   http.StatusText(code),
		Code:    code,
		Message: message,
	})
}

// storeError maps a vault error to its public HTTP shape. Invalid and
// missing paths share one answer so probing cannot tell them apart.
func (s *Server) storeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, vault.ErrPathInvalid), errors.Is(err, vault.ErrNotFound):
		s.jsonError(w, "invalid or missing path", http.StatusNotFound)
	case errors.Is(err, vault.ErrAlreadyExists):
		s.jsonError(w, "entry already exists", http.StatusConflict)
	case errors.Is(err, vault.ErrInvalidArgument):
		s.jsonError(w, "invalid argument", http.StatusBadRequest)
	case errors.Is(err, vault.ErrIllegalOperation):
		s.jsonError(w, "operation not allowed", http.StatusUnprocessableEntity)
	case errors.Is(err, vault.ErrTooLarge):
		s.jsonError(w, "upload too large", http.StatusRequestEntityTooLarge)
	default:
		log.Error().Err(err).Msg("store operation failed")
		s.jsonError(w, "internal error", http.StatusInternalServerError)
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

// instrument records one finished API request. Meant to be deferred with
// time.Now() so the start time is captured at handler entry.
func (s *Server) instrument(op string, rec *statusRecorder, start time.Time) {
	if s.m == nil {
		return
	}
	s.m.RequestsTotal.WithLabelValues(op, classifyStatus(rec.getStatus())).Inc()
	s.m.RequestDuration.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// broadcast pushes a change event to every connected feed client.
func (s *Server) broadcast(eventType string, ns vault.Namespace, path string) {
	s.hub.broadcast(Event{Type: eventType, Tab: ns.String(), Path: path, Time: time.Now().UTC()})
}

// tabParam parses a tab value, defaulting to the permanent namespace.
func tabParam(value string) (vault.Namespace, error) {
	if value == "" {
		return vault.Permanent, nil
	}
	return vault.ParseNamespace(value)
}

// ListenAndServe starts the web server and blocks until Shutdown.
func (s *Server) ListenAndServe() error {
	s.httpServer = &http.Server{
		Addr:    s.cfg.Listen,
		Handler: s,
	}
	log.Info().Str("listen", s.cfg.Listen).Msg("starting web server")
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown stops accepting connections and drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpServer == nil {
		return nil
	}
	return s.httpServer.Shutdown(ctx)
}
