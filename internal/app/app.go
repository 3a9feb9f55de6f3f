// Package app wires the freshtrack subsystems into a running server.
//
// The App struct owns the full lifecycle: New opens the inventory store and
// builds the HTTP API, Run serves until the context is cancelled, and
// Shutdown releases every resource in order.
//
// For testing, inject doubles via functional options (WithStore, WithSpeech).
// When an option is not provided, New builds the real implementation from the
// config.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/freshtrack/freshtrack/internal/api"
	"github.com/freshtrack/freshtrack/internal/config"
	"github.com/freshtrack/freshtrack/internal/dialogue"
	"github.com/freshtrack/freshtrack/internal/health"
	"github.com/freshtrack/freshtrack/internal/inventory"
	"github.com/freshtrack/freshtrack/internal/observe"
	"github.com/freshtrack/freshtrack/internal/voiceparse"
	"github.com/freshtrack/freshtrack/pkg/provider/tts"
)

// shutdownGrace bounds how long in-flight requests may finish once Run's
// context is cancelled.
const shutdownGrace = 10 * time.Second

// App owns all subsystem lifetimes.
type App struct {
	cfg      *config.Config
	store    inventory.Store
	speech   api.Speech
	checks   []health.Checker
	metrics  *observe.Metrics
	level    *slog.LevelVar
	clock    voiceparse.Clock
	server   *api.Server
	http     *http.Server
	injected bool

	// closers are called in reverse order during Shutdown.
	closers []func() error

	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithStore injects an inventory store instead of opening one from config.
func WithStore(s inventory.Store) Option {
	return func(a *App) {
		a.store = s
		a.injected = true
	}
}

// WithSpeech sets the providers used for server-side voice sessions.
func WithSpeech(sp api.Speech) Option {
	return func(a *App) { a.speech = sp }
}

// WithHealthChecks adds readiness checks reported on /readyz.
func WithHealthChecks(checks ...health.Checker) Option {
	return func(a *App) { a.checks = append(a.checks, checks...) }
}

// WithMetrics records metrics on m instead of [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(a *App) { a.metrics = m }
}

// WithLevelVar lets [App.ApplyConfig] change the log level of a running
// process.
func WithLevelVar(v *slog.LevelVar) Option {
	return func(a *App) { a.level = v }
}

// WithClock sets the clock relative dates resolve against.
func WithClock(c voiceparse.Clock) Option {
	return func(a *App) { a.clock = c }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App from cfg. It connects to the configured inventory
// backend synchronously, so a missing database fails startup.
func New(ctx context.Context, cfg *config.Config, opts ...Option) (*App, error) {
	a := &App{cfg: cfg, clock: voiceparse.SystemClock}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	if err := a.initStore(ctx); err != nil {
		a.closeAll()
		return nil, fmt.Errorf("app: init inventory: %w", err)
	}

	a.server = api.New(a.store,
		api.WithMetrics(a.metrics),
		api.WithClock(a.clock),
		api.WithVoiceSettings(VoiceSettings(cfg.Voice)),
		api.WithSpeech(a.speech),
		api.WithSimilarityThreshold(cfg.Inventory.SimilarityThreshold),
		api.WithHealthChecks(a.checks...),
	)
	a.http = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           a.server.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return a, nil
}

// initStore opens the configured backend unless a store was injected.
func (a *App) initStore(ctx context.Context) error {
	backend := string(a.cfg.Inventory.Backend)
	if a.injected {
		a.store = inventory.Instrument(a.store, "injected", a.metrics)
		return nil
	}

	var store inventory.Store
	switch a.cfg.Inventory.Backend {
	case config.BackendPostgres:
		pg, closeFn, err := inventory.OpenPostgres(ctx, a.cfg.Inventory.PostgresDSN)
		if err != nil {
			return err
		}
		a.closers = append(a.closers, func() error {
			closeFn()
			return nil
		})
		store = pg
	case config.BackendRedis:
		rc := a.cfg.Inventory.Redis
		rs, closeFn, err := inventory.OpenRedis(ctx, inventory.RedisOptions{
			Addr:      rc.Addr,
			Password:  rc.Password,
			DB:        rc.DB,
			KeyPrefix: rc.KeyPrefix,
		})
		if err != nil {
			return err
		}
		a.closers = append(a.closers, closeFn)
		store = rs
	case config.BackendMemory, "":
		backend = string(config.BackendMemory)
		store = inventory.NewMemStore()
	default:
		return fmt.Errorf("unknown backend %q", a.cfg.Inventory.Backend)
	}

	slog.Info("app: inventory ready", "backend", backend)
	a.store = inventory.Instrument(store, backend, a.metrics)
	return nil
}

// VoiceSettings converts the voice config section into dialogue tuning.
func VoiceSettings(vc config.VoiceConfig) api.VoiceSettings {
	s := api.DefaultVoiceSettings
	s.Prompts = dialogue.Prompts{
		Quantity: vc.Prompts.Quantity,
		Category: vc.Prompts.Category,
		Expiry:   vc.Prompts.Expiry,
		Price:    vc.Prompts.Price,
	}
	if vc.NoSpeechTimeout > 0 {
		s.NoSpeechTimeout = vc.NoSpeechTimeout
	}
	if vc.SpeakFallbackDelay > 0 {
		s.FallbackDelay = vc.SpeakFallbackDelay
	}
	if vc.MaxRetries != nil {
		s.MaxRetries = *vc.MaxRetries
	}
	s.SkipKnown = vc.SkipKnown
	s.Language = vc.Language
	s.Voice = tts.VoiceProfile{ID: vc.VoiceID, SpeedFactor: vc.SpeedFactor}
	return s
}

// ─── Run ─────────────────────────────────────────────────────────────────────

// API returns the HTTP API server.
func (a *App) API() *api.Server {
	return a.server
}

// Handler returns the routed HTTP handler.
func (a *App) Handler() http.Handler {
	return a.http.Handler
}

// Run listens on the configured address and serves until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.http.Addr)
	if err != nil {
		return fmt.Errorf("app: listen %s: %w", a.http.Addr, err)
	}
	return a.Serve(ctx, ln)
}

// Serve serves HTTP on ln until ctx is cancelled, then drains in-flight
// requests for up to [shutdownGrace]. A clean shutdown returns nil.
func (a *App) Serve(ctx context.Context, ln net.Listener) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		slog.Info("app: server listening", "addr", ln.Addr().String(), "tls", a.cfg.Server.TLS != nil)
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.http.ServeTLS(ln, tls.CertFile, tls.KeyFile)
		} else {
			err = a.http.Serve(ln)
		}
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("app: serve: %w", err)
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownGrace)
		defer cancel()
		if err := a.http.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("app: http shutdown: %w", err)
		}
		return nil
	})

	return g.Wait()
}

// ApplyConfig applies the hot-reloadable parts of a new configuration. It is
// meant to be passed to [config.NewWatcher].
func (a *App) ApplyConfig(old, new *config.Config) {
	d := config.Diff(old, new)
	if d.LogLevelChanged && a.level != nil {
		a.level.Set(d.NewLogLevel.SlogLevel())
		slog.Info("app: log level changed", "level", d.NewLogLevel)
	}
	if d.VoiceChanged {
		a.server.SetVoiceSettings(VoiceSettings(new.Voice))
		slog.Info("app: voice settings reloaded", "prompts_changed", d.PromptChanges)
	}
	if len(d.RestartRequired) > 0 {
		slog.Warn("app: config changes need a restart to take effect", "keys", d.RestartRequired)
	}
	a.cfg = new
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown releases the inventory store and every other resource opened by
// New. It respects the context deadline: if ctx expires before all closers
// finish, remaining closers are skipped and the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("app: shutting down", "closers", len(a.closers))
		for i := len(a.closers) - 1; i >= 0; i-- {
			select {
			case <-ctx.Done():
				slog.Warn("app: shutdown deadline exceeded", "remaining", i+1)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := a.closers[i](); err != nil {
				slog.Warn("app: closer error", "index", i, "err", err)
			}
		}
		slog.Info("app: shutdown complete")
	})
	return shutdownErr
}

func (a *App) closeAll() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		_ = a.closers[i]()
	}
	a.closers = nil
}
