// Command freshtrack serves the voice inventory API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/freshtrack/freshtrack/internal/api"
	"github.com/freshtrack/freshtrack/internal/app"
	"github.com/freshtrack/freshtrack/internal/config"
	"github.com/freshtrack/freshtrack/internal/health"
	"github.com/freshtrack/freshtrack/internal/observe"
	"github.com/freshtrack/freshtrack/internal/resilience"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

func main() {
	os.Exit(run())
}

func run() int {
	// ── CLI flags ──────────────────────────────────────────────────────────────
	configPath := flag.String("config", "freshtrack.yaml", "path to the YAML configuration file")
	envFile := flag.String("env-file", ".env", "optional dotenv file with FRESHTRACK_* overrides")
	watch := flag.Duration("watch", 5*time.Second, "config reload poll interval (0 disables reloading)")
	flag.Parse()

	// ── Environment ───────────────────────────────────────────────────────────
	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "freshtrack: load %s: %v\n", *envFile, err)
		return 1
	}

	// ── Load configuration ────────────────────────────────────────────────────
	cfg, err := config.Load(*configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			fmt.Fprintf(os.Stderr, "freshtrack: config file %q not found, copy configs/example.yaml to get started\n", *configPath)
		} else {
			fmt.Fprintf(os.Stderr, "freshtrack: %v\n", err)
		}
		return 1
	}

	// ── Logger ────────────────────────────────────────────────────────────────
	var level slog.LevelVar
	level.Set(cfg.Server.LogLevel.SlogLevel())
	logger, closeLog := observe.NewLogger(os.Stderr, observe.LogOptions{
		Level: &level,
		JSON:  cfg.Server.LogFormat == config.LogFormatJSON,
		File:  cfg.Server.LogFile,
	})
	defer closeLog()
	slog.SetDefault(logger)

	slog.Info("freshtrack starting",
		"version", version,
		"config", *configPath,
		"listen_addr", cfg.Server.ListenAddr,
		"backend", cfg.Inventory.Backend,
	)

	// ── Telemetry ─────────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownTelemetry, err := observe.InitProvider(ctx, observe.ProviderConfig{ServiceVersion: version})
	if err != nil {
		slog.Error("failed to initialise telemetry", "err", err)
		return 1
	}
	defer func() {
		if err := shutdownTelemetry(context.Background()); err != nil {
			slog.Warn("telemetry shutdown error", "err", err)
		}
	}()
	metrics := observe.DefaultMetrics()

	// ── Speech providers ──────────────────────────────────────────────────────
	reg := config.NewRegistry()
	registerBuiltinProviders(reg)

	speech, checks, err := buildSpeech(cfg, reg)
	if err != nil {
		slog.Error("failed to build speech providers", "err", err)
		return 1
	}

	// ── Application ───────────────────────────────────────────────────────────
	application, err := app.New(ctx, cfg,
		app.WithSpeech(speech),
		app.WithHealthChecks(checks...),
		app.WithMetrics(metrics),
		app.WithLevelVar(&level),
	)
	if err != nil {
		slog.Error("failed to initialise application", "err", err)
		return 1
	}

	if *watch > 0 {
		w, err := config.NewWatcher(*configPath, application.ApplyConfig, config.WithInterval(*watch))
		if err != nil {
			slog.Warn("config reloading disabled", "err", err)
		} else {
			defer w.Stop()
		}
	}

	slog.Info("server ready, press Ctrl+C to shut down",
		"server_speech", speech.STT != nil && speech.TTS != nil)

	if err := application.Run(ctx); err != nil {
		slog.Error("run error", "err", err)
		return 1
	}

	// ── Graceful shutdown ─────────────────────────────────────────────────────
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	slog.Info("shutdown signal received, stopping")
	if err := application.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// buildSpeech instantiates the speech providers named in cfg. Each provider
// is wrapped in a circuit breaker whose state is reported on /readyz.
func buildSpeech(cfg *config.Config, reg *config.Registry) (api.Speech, []health.Checker, error) {
	var (
		sp     api.Speech
		checks []health.Checker
	)

	if name := cfg.Providers.STT.Name; name != "" {
		entry := cfg.Providers.STT
		if optString(entry.Options, "language") == "" && cfg.Voice.Language != "" {
			entry.Options = withOption(entry.Options, "language", cfg.Voice.Language)
		}
		p, err := reg.CreateSTT(entry)
		switch {
		case errors.Is(err, config.ErrProviderNotRegistered):
			slog.Warn("provider not registered, server-side speech disabled", "kind", "stt", "name", name)
		case err != nil:
			return sp, nil, fmt.Errorf("create stt provider %q: %w", name, err)
		default:
			b := resilience.NewBreaker(resilience.BreakerConfig{Name: "stt/" + name})
			sp.STT, sp.STTName = resilience.GuardSTT(p, b), name
			checks = append(checks, health.Checker{Name: "stt", Check: b.Check})
			slog.Info("provider created", "kind", "stt", "name", name)
		}
	}

	if name := cfg.Providers.TTS.Name; name != "" {
		p, err := reg.CreateTTS(cfg.Providers.TTS)
		switch {
		case errors.Is(err, config.ErrProviderNotRegistered):
			slog.Warn("provider not registered, server-side speech disabled", "kind", "tts", "name", name)
		case err != nil:
			return sp, nil, fmt.Errorf("create tts provider %q: %w", name, err)
		default:
			b := resilience.NewBreaker(resilience.BreakerConfig{Name: "tts/" + name})
			sp.TTS, sp.TTSName = resilience.GuardTTS(p, b), name
			checks = append(checks, health.Checker{Name: "tts", Check: b.Check})
			slog.Info("provider created", "kind", "tts", "name", name)
		}
	}

	return sp, checks, nil
}
