// Package control exposes the create/list/cancel surface (plus the updater
// boundary) to the presentation layer over a loopback HTTP server.
package control

import (
	"context"
	"crypto/subtle"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"

	"lockpilot/internal/history"
	"lockpilot/internal/store"
	"lockpilot/internal/update"
	logx "lockpilot/pkg/logx"
)

// Config controls the HTTP control server.
//
// Security:
//   - Prefer binding to localhost (default).
//   - If binding to a non-loopback address, set Token.
type Config struct {
	Enabled bool
	Addr    string // default "127.0.0.1:8787"
	Token   string // optional bearer token

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

const defaultAddr = "127.0.0.1:8787"

// Server serves the control API.
type Server struct {
	mu  sync.Mutex
	cfg Config
	log logx.Logger

	timers  *store.Store
	hist    history.Store
	updater *update.Client
	version string

	ln  net.Listener
	srv *http.Server
}

func New(cfg Config, timers *store.Store, hist history.Store, updater *update.Client, version string, log logx.Logger) *Server {
	if log.IsZero() {
		log = logx.Nop()
	}
	return &Server{
		cfg:     cfg,
		log:     log,
		timers:  timers,
		hist:    hist,
		updater: updater,
		version: version,
	}
}

// Start binds the listener and serves in the background. Idempotent while
// running.
func (s *Server) Start(ctx context.Context) error {
	_ = ctx

	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.cfg.Enabled || s.srv != nil {
		return nil
	}

	addr := strings.TrimSpace(s.cfg.Addr)
	if addr == "" {
		addr = defaultAddr
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	srv := &http.Server{
		Handler:      s.routes(),
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
	}
	s.ln = ln
	s.srv = srv

	go func() {
		if serr := srv.Serve(ln); serr != nil && !errors.Is(serr, http.ErrServerClosed) {
			s.log.Error("control server stopped unexpectedly", logx.Err(serr))
		}
	}()
	s.log.Info("control server started", logx.String("addr", ln.Addr().String()))
	return nil
}

// Stop shuts the server down gracefully, bounded by ctx.
func (s *Server) Stop(ctx context.Context) {
	s.mu.Lock()
	srv := s.srv
	s.srv = nil
	s.ln = nil
	s.mu.Unlock()
	if srv == nil {
		return
	}
	if err := srv.Shutdown(ctx); err != nil {
		_ = srv.Close()
	}
	s.log.Info("control server stopped")
}

// Addr reports the bound address while running (tests bind to :0).
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

func (s *Server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(s.logRequests)
	if s.cfg.Token != "" {
		r.Use(s.requireToken)
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/version", s.handleVersion)

		r.Route("/timers", func(r chi.Router) {
			r.Post("/", s.handleCreateTimer)
			r.Get("/", s.handleListTimers)
			r.Delete("/{id}", s.handleCancelTimer)
		})

		r.Get("/history", s.handleHistory)

		r.Route("/updates", func(r chi.Router) {
			r.Get("/latest", s.handleLatestRelease)
			r.Get("/check", s.handleCheckUpdate)
			r.Post("/install", s.handleInstall)
		})
	})
	return r
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		next.ServeHTTP(w, r)
		s.log.Debug("request",
			logx.String("method", r.Method),
			logx.String("path", r.URL.Path),
			logx.Duration("took", time.Since(start)))
	})
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got := strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.cfg.Token)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}
