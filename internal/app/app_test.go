package app_test

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/freshtrack/freshtrack/internal/app"
	"github.com/freshtrack/freshtrack/internal/config"
	"github.com/freshtrack/freshtrack/internal/health"
	"github.com/freshtrack/freshtrack/internal/inventory"
	"github.com/freshtrack/freshtrack/internal/resilience"
)

// testConfig returns a validated default config.
func testConfig() *config.Config {
	cfg := &config.Config{}
	config.ApplyDefaults(cfg)
	cfg.Server.ListenAddr = "127.0.0.1:0"
	return cfg
}

func TestNew_MemoryBackend(t *testing.T) {
	t.Parallel()

	a, err := app.New(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/readyz", nil))
	if rec.Code != http.StatusOK {
		t.Errorf("readyz = %d, want 200", rec.Code)
	}
}

func TestNew_HealthChecks(t *testing.T) {
	t.Parallel()

	breaker := resilience.NewBreaker(resilience.BreakerConfig{Name: "stt/mock", MaxFailures: 1, Cooldown: time.Hour})
	a, err := app.New(context.Background(), testConfig(),
		app.WithHealthChecks(health.Checker{Name: "stt", Check: breaker.Check}))
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	t.Cleanup(func() { _ = a.Shutdown(context.Background()) })

	_ = breaker.Do(context.Background(), func(context.Context) error { return errors.New("dial refused") })

	rec := httptest.NewRecorder()
	a.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/readyz", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("readyz = %d, want 503", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "stt") {
		t.Errorf("readyz body missing stt check: %s", rec.Body)
	}
}

func TestNew_PostgresUnreachable(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Inventory.Backend = config.BackendPostgres
	cfg.Inventory.PostgresDSN = "postgres://freshtrack@[::1"

	if _, err := app.New(context.Background(), cfg); err == nil {
		t.Fatal("New() with a malformed DSN should fail")
	}
}

func TestNew_InjectedStore(t *testing.T) {
	t.Parallel()

	store := inventory.NewMemStore()
	a, err := app.New(context.Background(), testConfig(), app.WithStore(store))
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}

	rec := httptest.NewRecorder()
	body := `{"name":"rice","quantity":5,"unit":"kg"}`
	req := httptest.NewRequest("POST", "/v1/owners/alice/items", strings.NewReader(body))
	a.Handler().ServeHTTP(rec, req)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create = %d, body %s", rec.Code, rec.Body)
	}

	items, err := store.List(context.Background(), "alice", inventory.ListOptions{})
	if err != nil || len(items) != 1 {
		t.Errorf("store items = %v, %v", items, err)
	}
}

func TestApp_ServeAndShutdown(t *testing.T) {
	t.Parallel()

	a, err := app.New(context.Background(), testConfig())
	if err != nil {
		t.Fatalf("New() returned error: %v", err)
	}
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- a.Serve(ctx, ln) }()

	var resp *http.Response
	deadline := time.Now().Add(2 * time.Second)
	for {
		resp, err = http.Get("http://" + ln.Addr().String() + "/healthz")
		if err == nil || time.Now().After(deadline) {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("GET /healthz: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("healthz = %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve() = %v, want nil after cancel", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}

	if err := a.Shutdown(context.Background()); err != nil {
		t.Errorf("Shutdown() = %v", err)
	}
	// Idempotent.
	if err := a.Shutdown(context.Background()); err != nil {
		t.Errorf("second Shutdown() = %v", err)
	}
}

func TestApp_ShutdownDeadline(t *testing.T) {
	t.Parallel()

	a, err := app.New(context.Background(), testConfig())
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	// A memory backend has no closers, so even an expired context succeeds.
	if err := a.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown() = %v", err)
	}
}

func TestApp_ApplyConfig(t *testing.T) {
	t.Parallel()

	var level slog.LevelVar
	old := testConfig()
	a, err := app.New(context.Background(), old, app.WithLevelVar(&level))
	if err != nil {
		t.Fatal(err)
	}

	upd := testConfig()
	upd.Server.LogLevel = config.LogDebug
	upd.Voice.Prompts.Price = "Dam koto?"
	a.ApplyConfig(old, upd)

	if level.Level() != slog.LevelDebug {
		t.Errorf("level = %v, want debug", level.Level())
	}
	got := a.API().VoiceSettings()
	if got.Prompts.Price != "Dam koto?" {
		t.Errorf("price prompt = %q", got.Prompts.Price)
	}
}

func TestVoiceSettings(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	zero := 0
	cfg.Voice.MaxRetries = &zero
	cfg.Voice.NoSpeechTimeout = 5 * time.Second
	cfg.Voice.VoiceID = "rachel"
	cfg.Voice.SpeedFactor = 1.2
	cfg.Voice.SkipKnown = true

	s := app.VoiceSettings(cfg.Voice)
	if s.MaxRetries != 0 || s.NoSpeechTimeout != 5*time.Second || !s.SkipKnown {
		t.Errorf("settings = %+v", s)
	}
	if s.FallbackDelay != config.DefaultSpeakFallbackDelay {
		t.Errorf("fallback delay = %s", s.FallbackDelay)
	}
	if s.Voice.ID != "rachel" || s.Voice.SpeedFactor != 1.2 {
		t.Errorf("voice = %+v", s.Voice)
	}
}

func TestRun_ListenError(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Server.ListenAddr = "256.0.0.1:99999"
	a, err := app.New(context.Background(), cfg)
	if err != nil {
		t.Fatal(err)
	}
	if err := a.Run(context.Background()); err == nil || errors.Is(err, context.Canceled) {
		t.Errorf("Run() = %v, want a listen error", err)
	}
}
