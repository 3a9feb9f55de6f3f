package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"slices"
	"time"

	"gopkg.in/yaml.v3"
)

// Built-in defaults applied by [LoadFromReader].
const (
	DefaultListenAddr          = ":8080"
	DefaultNoSpeechTimeout     = 12 * time.Second
	DefaultSpeakFallbackDelay  = 600 * time.Millisecond
	DefaultMaxRetries          = 2
	DefaultSimilarityThreshold = 0.88
	DefaultRedisKeyPrefix      = "freshtrack"
)

// Environment variables that override secrets and connection strings.
const (
	EnvPostgresDSN   = "FRESHTRACK_POSTGRES_DSN"
	EnvRedisAddr     = "FRESHTRACK_REDIS_ADDR"
	EnvRedisPassword = "FRESHTRACK_REDIS_PASSWORD"
	EnvSTTAPIKey     = "FRESHTRACK_STT_API_KEY"
	EnvTTSAPIKey     = "FRESHTRACK_TTS_API_KEY"
	EnvListenAddr    = "FRESHTRACK_LISTEN_ADDR"
)

// ValidProviderNames lists known provider names per provider kind.
// Used by [Validate] to warn about unrecognised provider names.
var ValidProviderNames = map[string][]string{
	"stt": {"deepgram"},
	"tts": {"elevenlabs"},
}

// Load reads the YAML configuration file at path and returns a validated
// [Config] with environment overrides applied. It is a convenience wrapper
// around [LoadFromReader].
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", path, err)
	}
	defer f.Close()

	cfg, err := LoadFromReader(f, os.Getenv)
	if err != nil {
		return nil, fmt.Errorf("config: parse %q: %w", path, err)
	}
	return cfg, nil
}

// LoadFromReader decodes a YAML config from r, applies overrides read through
// getenv (nil skips them), fills in defaults and validates the result. An
// empty document yields the default configuration.
func LoadFromReader(r io.Reader, getenv func(string) string) (*Config, error) {
	cfg := &Config{}
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if getenv != nil {
		ApplyEnv(cfg, getenv)
	}
	ApplyDefaults(cfg)
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadBytes is [LoadFromReader] over an in-memory document.
func loadBytes(data []byte, getenv func(string) string) (*Config, error) {
	return LoadFromReader(bytes.NewReader(data), getenv)
}

// ApplyEnv copies every non-empty FRESHTRACK_* override into cfg.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	set := func(dst *string, key string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	set(&cfg.Server.ListenAddr, EnvListenAddr)
	set(&cfg.Inventory.PostgresDSN, EnvPostgresDSN)
	set(&cfg.Inventory.Redis.Addr, EnvRedisAddr)
	set(&cfg.Inventory.Redis.Password, EnvRedisPassword)
	set(&cfg.Providers.STT.APIKey, EnvSTTAPIKey)
	set(&cfg.Providers.TTS.APIKey, EnvTTSAPIKey)
}

// ApplyDefaults fills every unset field that has a default.
func ApplyDefaults(cfg *Config) {
	if cfg.Server.ListenAddr == "" {
		cfg.Server.ListenAddr = DefaultListenAddr
	}
	if cfg.Server.LogLevel == "" {
		cfg.Server.LogLevel = LogInfo
	}
	if cfg.Server.LogFormat == "" {
		cfg.Server.LogFormat = LogFormatText
	}
	if cfg.Voice.NoSpeechTimeout == 0 {
		cfg.Voice.NoSpeechTimeout = DefaultNoSpeechTimeout
	}
	if cfg.Voice.SpeakFallbackDelay == 0 {
		cfg.Voice.SpeakFallbackDelay = DefaultSpeakFallbackDelay
	}
	if cfg.Voice.MaxRetries == nil {
		n := DefaultMaxRetries
		cfg.Voice.MaxRetries = &n
	}
	if cfg.Inventory.Backend == "" {
		cfg.Inventory.Backend = BackendMemory
	}
	if cfg.Inventory.Redis.KeyPrefix == "" {
		cfg.Inventory.Redis.KeyPrefix = DefaultRedisKeyPrefix
	}
	if cfg.Inventory.SimilarityThreshold == 0 {
		cfg.Inventory.SimilarityThreshold = DefaultSimilarityThreshold
	}
}

// Validate checks that cfg contains a coherent set of values.
// It returns a joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	// Server
	if cfg.Server.LogLevel != "" && !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.LogFormat != "" && !cfg.Server.LogFormat.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_format %q is invalid; valid values: text, json", cfg.Server.LogFormat))
	}
	if tls := cfg.Server.TLS; tls != nil && (tls.CertFile == "" || tls.KeyFile == "") {
		errs = append(errs, errors.New("server.tls requires both cert_file and key_file"))
	}

	// Providers
	validateProviderName("stt", cfg.Providers.STT.Name)
	validateProviderName("tts", cfg.Providers.TTS.Name)
	if cfg.Providers.STT.Name != "" && cfg.Providers.STT.APIKey == "" {
		errs = append(errs, fmt.Errorf("providers.stt.api_key is required (or set %s)", EnvSTTAPIKey))
	}
	if cfg.Providers.TTS.Name != "" {
		if cfg.Providers.TTS.APIKey == "" {
			errs = append(errs, fmt.Errorf("providers.tts.api_key is required (or set %s)", EnvTTSAPIKey))
		}
		if cfg.Voice.VoiceID == "" {
			errs = append(errs, errors.New("voice.voice_id is required when providers.tts is configured"))
		}
	}

	// Voice
	v := cfg.Voice
	if v.SpeedFactor != 0 && (v.SpeedFactor < 0.5 || v.SpeedFactor > 2.0) {
		errs = append(errs, fmt.Errorf("voice.speed_factor %.2f is out of range [0.5, 2.0]", v.SpeedFactor))
	}
	if v.NoSpeechTimeout < 0 {
		errs = append(errs, fmt.Errorf("voice.no_speech_timeout %s must not be negative", v.NoSpeechTimeout))
	}
	if v.SpeakFallbackDelay < 0 {
		errs = append(errs, fmt.Errorf("voice.speak_fallback_delay %s must not be negative", v.SpeakFallbackDelay))
	}
	if v.MaxRetries != nil && *v.MaxRetries < 0 {
		errs = append(errs, fmt.Errorf("voice.max_retries %d must not be negative", *v.MaxRetries))
	}

	// Inventory
	inv := cfg.Inventory
	if inv.Backend != "" && !inv.Backend.IsValid() {
		errs = append(errs, fmt.Errorf("inventory.backend %q is invalid; valid values: memory, postgres, redis", inv.Backend))
	}
	if inv.Backend == BackendPostgres && inv.PostgresDSN == "" {
		errs = append(errs, fmt.Errorf("inventory.postgres_dsn is required for the postgres backend (or set %s)", EnvPostgresDSN))
	}
	if inv.Backend == BackendRedis && inv.Redis.Addr == "" {
		errs = append(errs, fmt.Errorf("inventory.redis.addr is required for the redis backend (or set %s)", EnvRedisAddr))
	}
	if inv.SimilarityThreshold < 0 || inv.SimilarityThreshold > 1 {
		errs = append(errs, fmt.Errorf("inventory.similarity_threshold %.2f is out of range [0, 1]", inv.SimilarityThreshold))
	}

	return errors.Join(errs...)
}

// validateProviderName logs a warning if name is non-empty and not found in
// the [ValidProviderNames] list for the given kind.
func validateProviderName(kind, name string) {
	if name == "" {
		return
	}
	known, ok := ValidProviderNames[kind]
	if !ok {
		return
	}
	if slices.Contains(known, name) {
		return
	}
	slog.Warn("config: unknown provider name, may be a typo or third-party provider",
		"kind", kind,
		"name", name,
		"known", known,
	)
}

// SlogLevel converts l to a [slog.Level]; unknown values map to info.
func (l LogLevel) SlogLevel() slog.Level {
	switch l {
	case LogDebug:
		return slog.LevelDebug
	case LogWarn:
		return slog.LevelWarn
	case LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
