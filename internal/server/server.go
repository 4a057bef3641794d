package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/agentcore/server/internal/event"
	"github.com/agentcore/server/internal/permission"
	"github.com/agentcore/server/internal/provider"
	"github.com/agentcore/server/internal/sandbox"
	"github.com/agentcore/server/internal/session"
	"github.com/agentcore/server/internal/store"
	"github.com/agentcore/server/internal/tool"
)

// Config holds server-level settings the teacher's Config covered
// (port, timeouts, CORS); BearerToken adds spec §6's "optional shared
// bearer token for write endpoints."
type Config struct {
	Port         int
	EnableCORS   bool
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	BearerToken  string
}

// DefaultConfig mirrors the teacher's DefaultConfig, with no write
// timeout so SSE connections aren't cut off.
func DefaultConfig() *Config {
	return &Config{
		Port:         8080,
		EnableCORS:   true,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 0,
	}
}

// Server is the HTTP/SSE Surface (spec §4.8).
type Server struct {
	config    *Config
	router    *chi.Mux
	httpSrv   *http.Server
	store     *store.Store
	sessions  *session.Service
	gate      *permission.Gate
	tools     *tool.Registry
	providers *provider.Registry
	fs        *sandbox.FS
	hub       *event.Hub
	now       func() int64
}

// New wires a Server over the fully-constructed component set a process
// builds once at startup, matching the teacher's New(cfg, appConfig,
// store, providerReg, toolReg) shape but over this repo's collaborators.
func New(
	cfg *Config,
	st *store.Store,
	sessions *session.Service,
	gate *permission.Gate,
	tools *tool.Registry,
	providers *provider.Registry,
	fs *sandbox.FS,
	hub *event.Hub,
	now func() int64,
) *Server {
	s := &Server{
		config:    cfg,
		router:    chi.NewRouter(),
		store:     st,
		sessions:  sessions,
		gate:      gate,
		tools:     tools,
		providers: providers,
		fs:        fs,
		hub:       hub,
		now:       now,
	}

	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware matches the teacher's setupMiddleware exactly in
// shape: RequestID, Logger, Recoverer, RealIP, optional CORS, then this
// repo's bearer-auth gate in place of the teacher's instanceContext.
func (s *Server) setupMiddleware() {
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.Logger)
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RealIP)

	if s.config.EnableCORS {
		s.router.Use(cors.Handler(cors.Options{
			AllowedOrigins:   []string{"*"},
			AllowedMethods:   []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
			AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "Last-Event-ID"},
			ExposedHeaders:   []string{"X-Request-ID"},
			AllowCredentials: true,
			MaxAge:           300,
		}))
	}

	if s.config.BearerToken != "" {
		s.router.Use(s.requireBearerToken)
	}
}

// requireBearerToken enforces spec §6's "optional shared bearer token
// for write endpoints": GET requests (including the SSE stream) stay
// open, anything that mutates state needs the token.
func (s *Server) requireBearerToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			next.ServeHTTP(w, r)
			return
		}
		want := "Bearer " + s.config.BearerToken
		if r.Header.Get("Authorization") != want {
			writeError(w, http.StatusUnauthorized, ErrCodeUnauthorized, "missing or invalid bearer token")
			return
		}
		next.ServeHTTP(w, r)
	})
}

// Start runs the HTTP server until it errors or is shut down.
func (s *Server) Start() error {
	s.httpSrv = &http.Server{
		Addr:         fmt.Sprintf(":%d", s.config.Port),
		Handler:      s.router,
		ReadTimeout:  s.config.ReadTimeout,
		WriteTimeout: s.config.WriteTimeout,
	}
	return s.httpSrv.ListenAndServe()
}

// Shutdown gracefully drains in-flight requests, including open SSE
// connections, within ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.httpSrv == nil {
		return nil
	}
	return s.httpSrv.Shutdown(ctx)
}

// Router exposes the chi router for tests.
func (s *Server) Router() *chi.Mux {
	return s.router
}
