// Package server exposes the synchronization engine over HTTP: one
// action-dispatched endpoint consumed by the dashboard's admin UI and the
// external scheduler, plus a health check and the audit-trail read.
package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"habsync/internal/engine"
	"habsync/internal/openhab"
	"habsync/internal/store"
)

// SyncRunner starts one sync run. Implemented by [engine.Executor].
type SyncRunner interface {
	Run(ctx context.Context, configID string, trigger store.TriggerKind) (engine.Result, error)
}

// ItemDiscoverer lists mappable middleware items. Implemented by
// [engine.Discoverer].
type ItemDiscoverer interface {
	Discover(ctx context.Context, configID string) ([]engine.Candidate, error)
}

// ProbeFunc tests a draft endpoint. Normally [openhab.Probe].
type ProbeFunc func(ctx context.Context, endpointURL, token string) openhab.ProbeResult

// AuditReader reads the sync audit trail. Implemented by [store.Store].
type AuditReader interface {
	ListLogEntries(ctx context.Context, configID string, limit int) ([]*store.SyncLogEntry, error)
}

// Deps wires a Server to its collaborators.
type Deps struct {
	Runner     SyncRunner
	Discoverer ItemDiscoverer
	Probe      ProbeFunc
	Audit      AuditReader

	// APIToken guards the operator actions; CronToken guards auto-sync.
	// An empty token disables the respective check.
	APIToken  string
	CronToken string

	Logger *slog.Logger
}

// Server is the HTTP front of the sync subsystem.
type Server struct {
	runner     SyncRunner
	discoverer ItemDiscoverer
	probe      ProbeFunc
	audit      AuditReader
	apiToken   string
	cronToken  string
	log        *slog.Logger
}

// New creates a Server. A nil Probe defaults to [openhab.Probe], a nil
// Logger to [slog.Default].
func New(d Deps) *Server {
	if d.Probe == nil {
		d.Probe = openhab.Probe
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	return &Server{
		runner:     d.Runner,
		discoverer: d.Discoverer,
		probe:      d.Probe,
		audit:      d.Audit,
		apiToken:   d.APIToken,
		cronToken:  d.CronToken,
		log:        d.Logger,
	}
}

// Routes builds the chi router.
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Post("/api/sync", s.handleAction)
	r.Get("/api/sync/history", s.handleHistory)

	return r
}

// NewHTTPServer constructs an *http.Server with hardened timeouts around the
// given handler.
func NewHTTPServer(addr string, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 2 * time.Minute, // sync-data waits for the whole run
		IdleTimeout:  60 * time.Second,
	}
}
