// Package server exposes the tutor over HTTP: lesson listing, chat as JSON,
// chunked text or WebSocket frames, session state, health and metrics.
package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/emera/sattur/internal/dispatch"
	"github.com/emera/sattur/internal/metrics"
)

// maxBodyBytes caps request bodies and WebSocket messages.
const maxBodyBytes = 1 << 20

// Options configures a Server.
type Options struct {
	Dispatcher *dispatch.Dispatcher
	Metrics    *metrics.Collector
	Logger     *zap.Logger

	// DefaultLanguage applies when a request omits the language field.
	DefaultLanguage string

	// Provider names the configured model backend for /health.
	Provider string

	// AllowedOrigins are host patterns accepted for WebSocket upgrades.
	// Empty accepts same-origin requests only.
	AllowedOrigins []string

	Addr        string
	ReadTimeout time.Duration
	IdleTimeout time.Duration
}

// Server is the HTTP front end.
type Server struct {
	opts     Options
	d        *dispatch.Dispatcher
	metrics  *metrics.Collector
	logger   *zap.Logger
	validate *validator.Validate
	router   chi.Router
}

// New creates a Server and registers its routes.
func New(opts Options) *Server {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Dispatcher == nil {
		opts.Dispatcher = dispatch.New(dispatch.Options{Logger: logger})
	}
	s := &Server{
		opts:     opts,
		d:        opts.Dispatcher,
		metrics:  opts.Metrics,
		logger:   logger,
		validate: newValidator(),
	}
	s.router = s.routes()
	return s
}

// Handler returns the root handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) routes() chi.Router {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(s.accessLog)
	r.Use(chimw.Recoverer)

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", s.metrics.Handler())

	r.Group(func(r chi.Router) {
		r.Use(sessionMiddleware)
		r.Get("/lessons", s.handleLessons)
		r.Get("/session", s.handleSession)
		r.Post("/chat", s.handleChat)
		r.Post("/chat/stream", s.handleChatStream)
		r.Get("/chat/ws", s.handleChatWS)
	})
	return r
}

// ListenAndServe serves until ctx is cancelled, then drains in-flight
// requests for up to ten seconds.
func (s *Server) ListenAndServe(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       s.opts.ReadTimeout,
		IdleTimeout:       s.opts.IdleTimeout,
		// No WriteTimeout: answers stream for as long as the dispatcher's
		// request timeout allows.
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("server listening", zap.String("addr", s.opts.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
