// Package server is the HTTP surface of the sync backend: one sync
// endpoint and a couple of read-only views over the same delta queries.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/jmoiron/sqlx"

	"github.com/podkeep/podkeep/internal/auth"
	pkerrs "github.com/podkeep/podkeep/internal/errors"
	"github.com/podkeep/podkeep/internal/podkeep"
	"github.com/podkeep/podkeep/internal/ratelimit"
	"github.com/podkeep/podkeep/internal/reconcile"
)

type (
	// Syncer is the slice of the reconciliation engine the server needs.
	Syncer interface {
		Sync(ctx context.Context, userID string, lastSync *time.Time, batch podkeep.Batch) (reconcile.Result, error)
	}

	// Server handles device sync requests over HTTP.
	Server struct {
		*http.Server

		engine   Syncer
		store    podkeep.Store
		verifier *auth.Verifier
		limiter  *ratelimit.PerUser
		db       *sqlx.DB
	}

	ServerConfig struct {
		Port       int
		CorsHeader string

		// Sync calls allowed per user per minute.
		SyncPerMinute int
	}
)

func NewServer(config ServerConfig, engine Syncer, store podkeep.Store, verifier *auth.Verifier, db *sqlx.DB) *Server {
	perMinute := config.SyncPerMinute
	if perMinute <= 0 {
		perMinute = 30
	}

	r := errRouter{Router: mux.NewRouter()}
	srvr := Server{
		engine:   engine,
		store:    store,
		verifier: verifier,
		limiter:  ratelimit.PerMinute(perMinute),
		db:       db,
		Server: &http.Server{
			Addr:         fmt.Sprintf(":%d", config.Port),
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			Handler: handlers.CORS(
				handlers.AllowedOrigins([]string{config.CorsHeader}),
				handlers.AllowCredentials(),
				handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodOptions}),
				handlers.AllowedHeaders([]string{"content-type", "authorization"}),
			)(r),
		},
	}

	r.Use(accessLogMiddleware) // Log everything
	r.HandleFuncE("/healthz", srvr.getHealthz).Methods(http.MethodGet)

	authed := errRouter{Router: r.NewRoute().Subrouter()}
	authed.Use(srvr.requireAuthMiddleware)

	// The sync entry point, rate limited per user
	synced := errRouter{Router: authed.NewRoute().Subrouter()}
	synced.Use(srvr.rateLimitMiddleware)
	synced.HandleFuncE("/api/sync", srvr.postSync).Methods(http.MethodPost)

	// Pull-only views
	authed.HandleFuncE("/api/subscriptions", srvr.getSubscriptions).Methods(http.MethodGet)
	authed.HandleFuncE("/api/playlists", srvr.getPlaylists).Methods(http.MethodGet)

	slog.Debug("configured sync server", "port", config.Port)

	return &srvr
}

func writeJSON(w http.ResponseWriter, status int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(data); err != nil {
		return fmt.Errorf("error encoding json response: %s", err)
	}

	return nil
}

// HandlerFuncE is a modified type of [http.HandlerFunc] that returns an error.
type HandlerFuncE func(w http.ResponseWriter, r *http.Request) error

func (f HandlerFuncE) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	err := f(w, r)
	if err == nil {
		return
	}

	// Either it's already a structured error, or coerce it to one
	sErr := &pkerrs.Error{}
	if !errors.As(err, &sErr) {
		slog.Error("unstructured handler error", "error", err)
		sErr = pkerrs.E(http.StatusInternalServerError, "internal server error")
	}

	if err := writeJSON(w, sErr.Status, sErr); err != nil {
		slog.Error("error writing response", "error", err)
	}
}

// errRouter is a newtype around a mux router that allows attaching handlers that return errors.
type errRouter struct {
	*mux.Router
}

func (r errRouter) HandleFuncE(path string, f HandlerFuncE) *mux.Route {
	return r.Handle(path, f)
}

func (s *Server) getHealthz(w http.ResponseWriter, r *http.Request) error {
	if err := s.db.PingContext(r.Context()); err != nil {
		return pkerrs.E(http.StatusServiceUnavailable, pkerrs.Code("DB_UNAVAILABLE"), "database unreachable")
	}

	return writeJSON(w, http.StatusOK, struct{}{})
}
