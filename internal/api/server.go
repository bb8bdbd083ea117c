// Package api exposes the operator surface: trigger and observe sync runs,
// log in to the upstream account, tune settings.
package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/rdmartin/VaultSync/internal/auth"
	"github.com/rdmartin/VaultSync/internal/config"
	"github.com/rdmartin/VaultSync/internal/httputil"
	"github.com/rdmartin/VaultSync/internal/identity"
	"github.com/rdmartin/VaultSync/internal/jobs"
	"github.com/rdmartin/VaultSync/internal/report"
	"github.com/rdmartin/VaultSync/internal/scheduler"
	"github.com/rdmartin/VaultSync/internal/settings"
	"github.com/rdmartin/VaultSync/internal/syncer"
	"github.com/rdmartin/VaultSync/internal/upstream"
	"github.com/rdmartin/VaultSync/internal/version"
)

type Server struct {
	config       *config.Config
	sessions     *auth.Sessions
	settingsRepo *settings.Repository
	ids          *identity.Store
	up           *upstream.Client
	engine       *syncer.Engine
	dateAdded    *syncer.DateAdded
	queue        *jobs.Queue
	sched        *scheduler.Scheduler
	ring         *report.Ring
	wsHub        *WSHub
	version      version.Info
	router       chi.Router
}

func NewServer(cfg *config.Config, settingsRepo *settings.Repository, ids *identity.Store,
	up *upstream.Client, engine *syncer.Engine, dateAdded *syncer.DateAdded,
	queue *jobs.Queue, sched *scheduler.Scheduler, ring *report.Ring,
	wsHub *WSHub, ver version.Info) (*Server, error) {

	sessions, err := auth.NewSessions(cfg.JWTSecret, 0)
	if err != nil {
		return nil, err
	}

	s := &Server{
		config:       cfg,
		sessions:     sessions,
		settingsRepo: settingsRepo,
		ids:          ids,
		up:           up,
		engine:       engine,
		dateAdded:    dateAdded,
		queue:        queue,
		sched:        sched,
		ring:         ring,
		wsHub:        wsHub,
		version:      ver,
	}
	s.setupRoutes()
	return s, nil
}

func (s *Server) WSHub() *WSHub {
	return s.wsHub
}

func (s *Server) setupRoutes() {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Post("/api/v1/auth/login", s.handleLogin)
	r.Get("/api/v1/ws", s.handleWebSocket)

	r.Group(func(r chi.Router) {
		r.Use(s.requireSession)
		r.Get("/api/v1/status", s.handleStatus)
		r.Post("/api/v1/sync", s.handleTriggerSync)
		r.Post("/api/v1/auth/logout", s.handleLogout)
		r.Get("/api/v1/auth/login-token", s.handleLoginToken)
		r.Get("/api/v1/settings", s.handleGetSettings)
		r.Put("/api/v1/settings", s.handleUpdateSettings)
		r.Get("/api/v1/logs", s.handleLogs)
	})

	s.router = r
}

func (s *Server) Handler() http.Handler {
	return s.router
}

// requireSession validates the operator's bearer token.
func (s *Server) requireSession(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if token == "" {
			httputil.WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "missing bearer token")
			return
		}
		if _, err := s.sessions.ValidateToken(token); err != nil {
			httputil.WriteError(w, http.StatusUnauthorized, "UNAUTHORIZED", "invalid or expired token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": s.version.Version,
	})
}

func (s *Server) Addr() string {
	return fmt.Sprintf(":%d", s.config.Port)
}
