// Package app assembles the tutor from configuration: storage, the model
// provider, the grammar index, responders, router, sessions and the HTTP
// server.
package app

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/emera/sattur/internal/config"
	"github.com/emera/sattur/internal/dispatch"
	"github.com/emera/sattur/internal/embedding"
	"github.com/emera/sattur/internal/index"
	"github.com/emera/sattur/internal/lessons"
	"github.com/emera/sattur/internal/llm"
	"github.com/emera/sattur/internal/metrics"
	"github.com/emera/sattur/internal/responder"
	"github.com/emera/sattur/internal/router"
	"github.com/emera/sattur/internal/server"
	"github.com/emera/sattur/internal/session"
	"github.com/emera/sattur/internal/store"
)

// Options overrides collaborators that New would otherwise build from
// configuration.
type Options struct {
	Provider llm.Provider
	Embedder embedding.Engine
	Logger   *zap.Logger
}

// App holds the wired components. Close releases them.
type App struct {
	Config     *config.Config
	Logger     *zap.Logger
	Store      *store.Store
	Provider   llm.Provider // nil when the model is not configured
	Metrics    *metrics.Collector
	Sessions   session.Store
	Dispatcher *dispatch.Dispatcher

	closers []func() error
}

// New wires the application. Only invalid configuration and storage
// failures are errors; a missing model leaves the dispatcher not ready and
// a missing grammar index leaves the grammar responder without context.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	a := &App{Config: cfg, Logger: logger, Metrics: metrics.NewCollector("sattur")}

	if err := a.openStore(); err != nil {
		return nil, err
	}
	if err := a.openSessions(ctx); err != nil {
		a.Close()
		return nil, err
	}

	var initErr error
	a.Provider, initErr = a.provider(ctx, opts.Provider)

	dopts := dispatch.Options{
		Lessons:         lessons.NewCatalog(cfg.Curriculum.Dir),
		Sessions:        a.Sessions,
		DefaultLanguage: cfg.Curriculum.DefaultLanguage,
		EnforceUnlock:   cfg.Curriculum.EnforceUnlock,
		Timeout:         cfg.Server.RequestTimeout,
		InitErr:         initErr,
		Metrics:         a.Metrics,
		Logger:          logger.Named("dispatch"),
	}

	if a.Provider != nil {
		retrieval := a.grammarRetrieval(ctx, opts.Embedder)
		set, err := responder.NewSet(a.Provider, retrieval, responder.GenConfig{
			MaxTokens:   cfg.LLM.MaxTokens,
			Temperature: cfg.LLM.Temperature,
		}, logger.Named("responder"))
		if err != nil {
			logger.Error("responders not initialized", zap.Error(err))
			dopts.InitErr = err
		} else {
			dopts.Responders = set
			dopts.Router = router.New(a.Provider, router.Options{
				Structured: cfg.Router.Structured,
				MaxTokens:  cfg.Router.MaxTokens,
				Logger:     logger.Named("router"),
			})
		}
	}

	a.Dispatcher = dispatch.New(dopts)
	if !a.Dispatcher.Ready() {
		logger.Warn("chat pipeline not ready", zap.Error(dopts.InitErr))
	}
	return a, nil
}

func (a *App) openStore() error {
	path := a.Config.DBPath
	var err error
	if path == "" {
		path, err = store.DefaultDBPath()
	} else {
		err = store.EnsureDir(path)
	}
	if err != nil {
		return fmt.Errorf("resolve database path: %w", err)
	}

	st, err := store.Open(path)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	a.Store = st
	a.closers = append(a.closers, st.Close)
	return nil
}

func (a *App) openSessions(ctx context.Context) error {
	switch a.Config.Session.Backend {
	case config.BackendSQLite:
		a.Sessions = session.NewSQLStore(a.Store.DB())
	case config.BackendRedis:
		rs, err := session.NewRedisStore(ctx, a.Config.Session.Redis)
		if err != nil {
			return fmt.Errorf("connect session store: %w", err)
		}
		a.Sessions = rs
		a.closers = append(a.closers, rs.Close)
	default:
		a.Sessions = session.NewMemoryStore(a.Config.Session.IdleTTL)
	}
	a.Logger.Info("session store ready", zap.String("backend", a.Config.Session.Backend))
	return nil
}

func (a *App) provider(ctx context.Context, override llm.Provider) (llm.Provider, error) {
	if override != nil {
		return override, nil
	}
	if err := a.Config.LLMError(); err != nil {
		return nil, err
	}
	p, err := llm.NewProvider(ctx, a.Config.LLM, llm.Options{
		EventRepo:      a.Store.EventRepo(),
		Logger:         a.Logger.Named("llm"),
		OnBreakerState: a.Metrics.SetBreakerState,
	})
	if err != nil {
		return nil, err
	}
	a.Logger.Info("language model ready",
		zap.String("provider", a.Config.LLM.Provider),
		zap.String("model", p.ModelID()),
	)
	return p, nil
}

// grammarRetrieval loads or builds the grammar index. Failures degrade to
// an unavailable capability.
func (a *App) grammarRetrieval(ctx context.Context, engine embedding.Engine) index.Retrieval {
	if engine == nil {
		var err error
		engine, err = embedding.NewEngine(ctx, a.Config.Embedding)
		if err != nil {
			a.Logger.Warn("embedding engine unavailable, grammar answers will have no reference material", zap.Error(err))
			a.Metrics.SetRetrieval(a.Config.Grammar.Name, false)
			return index.Unavailable("embedding engine unavailable")
		}
	}

	b := index.NewBuilder(engine, a.Config.Index, a.Logger.Named("index"))
	r := b.BuildOrLoad(ctx, a.Config.Grammar.Domain())
	a.Metrics.SetRetrieval(a.Config.Grammar.Name, r.Available())
	return r
}

// Server returns the HTTP server for the wired dispatcher.
func (a *App) Server() *server.Server {
	return server.New(server.Options{
		Dispatcher:      a.Dispatcher,
		Metrics:         a.Metrics,
		Logger:          a.Logger.Named("http"),
		DefaultLanguage: a.Config.Curriculum.DefaultLanguage,
		Provider:        a.Config.LLM.Provider,
		AllowedOrigins:  a.Config.Server.AllowedOrigins,
		Addr:            a.Config.Server.Addr(),
		ReadTimeout:     a.Config.Server.ReadTimeout,
		IdleTimeout:     a.Config.Server.IdleTimeout,
	})
}

// Close releases everything New opened, newest first.
func (a *App) Close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = append(errs, a.closers[i]())
	}
	a.closers = nil
	return errors.Join(errs...)
}
