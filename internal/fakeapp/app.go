// Package fakeapp assembles the stand-in PillBridge app that the verification
// journeys run against: SPA shell, JSON API, SQLCipher store and assistant.
package fakeapp

import (
	"context"
	"errors"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/kuitang/pillbridge-verify/internal/api"
	"github.com/kuitang/pillbridge-verify/internal/assistant"
	"github.com/kuitang/pillbridge-verify/internal/auth"
	"github.com/kuitang/pillbridge-verify/internal/config"
	"github.com/kuitang/pillbridge-verify/internal/db"
	"github.com/kuitang/pillbridge-verify/internal/obs"
	"github.com/kuitang/pillbridge-verify/internal/ratelimit"
	"github.com/kuitang/pillbridge-verify/internal/web"
)

const (
	// CannedDelay holds canned replies back long enough for the loading
	// bubble to render.
	CannedDelay = 500 * time.Millisecond

	sessionCleanupInterval = 15 * time.Minute
	shutdownTimeout        = 10 * time.Second
)

// Options overrides collaborators, mostly for tests.
type Options struct {
	Hasher    auth.PasswordHasher
	Responder assistant.Responder
}

// App is a running stand-in app.
type App struct {
	cfg       *config.AppConfig
	store     *db.Store
	sessions  *auth.SessionService
	limiter   *ratelimit.RateLimiter
	responder assistant.Responder
	handler   http.Handler

	stop     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

// New opens the store and wires the handlers.
func New(ctx context.Context, cfg *config.AppConfig, opts Options) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log := obs.Pkg("fakeapp")

	store, err := db.Open(ctx, db.Options{Path: cfg.DatabasePath, Key: cfg.DatabaseKey})
	if err != nil {
		return nil, err
	}

	hasher := opts.Hasher
	if hasher == nil {
		hasher = auth.BcryptHasher{}
	}
	responder := opts.Responder
	if responder == nil {
		if cfg.OpenAIAPIKey != "" {
			responder = assistant.NewOpenAIResponder(cfg.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel)
			log.Info("assistant: openai", "model", cfg.OpenAIModel)
		} else {
			responder = assistant.CannedResponder{Delay: CannedDelay}
			log.Info("assistant: canned replies (OPENAI_API_KEY not set)")
		}
	}

	shell, err := web.NewHandler(cfg.Copy)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	users := auth.NewUserService(store, hasher, nil)
	sessions := auth.NewSessionService(store, nil)
	limiter := ratelimit.NewRateLimiter(ratelimit.Config{RPS: cfg.ChatRPS, Burst: cfg.ChatBurst})

	mux := http.NewServeMux()
	api.NewHandler(users, sessions, assistant.NewService(store, responder), limiter).RegisterRoutes(mux)
	shell.RegisterRoutes(mux)

	a := &App{
		cfg:       cfg,
		store:     store,
		sessions:  sessions,
		limiter:   limiter,
		responder: responder,
		handler:   obs.RequestContextMiddleware(obs.AccessLogMiddleware("fakeapp", mux)),
		stop:      make(chan struct{}),
	}
	a.wg.Add(1)
	go a.cleanupLoop()

	log.Info("stand-in app ready", "copy", shell.Copy().Name, "db", store.Path(), "encrypted", cfg.DatabaseKey != "")
	return a, nil
}

// Handler returns the root handler.
func (a *App) Handler() http.Handler { return a.handler }

// Responder returns the assistant backend in use.
func (a *App) Responder() assistant.Responder { return a.responder }

// Serve accepts connections on ln until ctx is done, then shuts down
// gracefully.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Close stops background work and closes the store.
func (a *App) Close() error {
	var err error
	a.stopOnce.Do(func() {
		close(a.stop)
		a.wg.Wait()
		a.limiter.Stop()
		err = a.store.Close()
	})
	return err
}

func (a *App) cleanupLoop() {
	defer a.wg.Done()
	ticker := time.NewTicker(sessionCleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-a.stop:
			return
		case <-ticker.C:
			n, err := a.sessions.Cleanup(context.Background())
			if err != nil {
				obs.Pkg("fakeapp").Warn("session cleanup failed", "error", err)
			} else if n > 0 {
				obs.Pkg("fakeapp").Debug("expired sessions removed", "count", n)
			}
		}
	}
}
