// Package web provides the HTTP server and handlers for upload sessions.
package web

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/JonMunkholm/uploadkit/internal/accept"
	"github.com/JonMunkholm/uploadkit/internal/adapter"
	"github.com/JonMunkholm/uploadkit/internal/config"
	"github.com/JonMunkholm/uploadkit/internal/history"
	"github.com/JonMunkholm/uploadkit/internal/notify"
	"github.com/JonMunkholm/uploadkit/internal/session"
	"github.com/JonMunkholm/uploadkit/internal/web/middleware"
)

// Deps are the collaborators a Server routes to. History and Limiter may be
// nil.
type Deps struct {
	Config   *config.Config
	Sessions *session.Registry
	Hub      *notify.Hub
	History  *history.Store
	Limiter  *adapter.Limiter
	Accept   accept.Config
	Logger   *slog.Logger
}

// Server is the HTTP server for upload sessions.
type Server struct {
	cfg      *config.Config
	sessions *session.Registry
	hub      *notify.Hub
	history  *history.Store
	limiter  *adapter.Limiter
	accept   accept.Config
	log      *slog.Logger

	router *chi.Mux
	server *http.Server
}

// NewServer creates a new Server instance.
func NewServer(d Deps) *Server {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	s := &Server{
		cfg:      d.Config,
		sessions: d.Sessions,
		hub:      d.Hub,
		history:  d.History,
		limiter:  d.Limiter,
		accept:   d.Accept,
		log:      d.Logger.With("component", "web"),
		router:   chi.NewRouter(),
	}
	s.setupMiddleware()
	s.setupRoutes()
	return s
}

// setupMiddleware configures middleware for all routes.
func (s *Server) setupMiddleware() {
	s.router.Use(chimw.RequestID)
	s.router.Use(middleware.TrustedRealIP(s.cfg.Security.TrustedProxies))
	s.router.Use(middleware.Logger)
	s.router.Use(chimw.Recoverer)
	s.router.Use(middleware.ClientInfo)
	s.router.Use(s.securityHeaders)

	if s.cfg.Rate.Enabled {
		s.router.Use(middleware.NewRateLimiter(s.cfg.Rate.RequestsPerMinute).Handler)
	}
}

// setupRoutes configures all HTTP routes.
func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)

	// Pages
	s.router.Get("/", s.handleIndex)
	s.router.Get("/sessions/{sid}", s.handleSessionPage)

	s.router.Route("/api", func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(&s.cfg.Security))

		r.Get("/limits", s.handleLimits)
		r.Post("/sessions", s.handleCreateSession)

		r.Route("/sessions/{sid}", func(r chi.Router) {
			r.Use(s.withSession)

			r.Delete("/", s.handleEndSession)
			r.Get("/files", s.handleListFiles)
			r.Get("/history", s.handleHistory)
			r.Get("/events", s.handleEvents)
			r.Post("/upload", s.handleUploadAll)
			r.Post("/clear", s.handleClear)

			admit := r.With()
			if s.cfg.Rate.Enabled {
				admit = r.With(middleware.NewRateLimiter(s.cfg.Rate.UploadLimit).Handler)
			}
			admit.Post("/files", s.handleAddFiles)

			r.Route("/files/{id}", func(r chi.Router) {
				r.Get("/", s.handleGetFile)
				r.Delete("/", s.handleDeleteFile)
				r.Post("/upload", s.handleUploadFile)
				r.Post("/cancel", s.handleCancelFile)
				r.Post("/retry", s.handleRetryFile)
				r.Post("/remove", s.handleRemoveFile)
			})
		})
	})
}

// Start begins listening for HTTP requests.
func (s *Server) Start(addr string) error {
	s.server = &http.Server{
		Addr:         addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.Server.ReadTimeout,
		WriteTimeout: s.cfg.Server.WriteTimeout, // 0 keeps websockets open
		IdleTimeout:  s.cfg.Server.IdleTimeout,
	}

	s.log.Info("starting server", "addr", addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

// Router returns the underlying chi router for testing.
func (s *Server) Router() *chi.Mux {
	return s.router
}

// securityHeaders adds security headers to all responses.
func (s *Server) securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")

		if s.cfg.Security.EnableCSP {
			w.Header().Set("Content-Security-Policy",
				"default-src 'self'; script-src 'self' 'unsafe-inline'; style-src 'self' 'unsafe-inline'; connect-src 'self' ws: wss:; img-src 'self' data:")
		}

		next.ServeHTTP(w, r)
	})
}

// requestTimeout bounds handlers that call the adapter synchronously.
const requestTimeout = 60 * time.Second
