// Package api exposes the parser, the inventory and the voice collection
// dialogue over HTTP.
//
// Routes:
//
//	POST   /v1/parse/item
//	POST   /v1/parse/date
//	POST   /v1/parse/price
//	GET    /v1/owners/{owner}/items
//	POST   /v1/owners/{owner}/items
//	GET    /v1/owners/{owner}/items/{id}
//	DELETE /v1/owners/{owner}/items/{id}
//	GET    /v1/owners/{owner}/voice          (WebSocket)
//	GET    /healthz, /readyz, /metrics
package api

import (
	"log/slog"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/freshtrack/freshtrack/internal/dialogue"
	"github.com/freshtrack/freshtrack/internal/health"
	"github.com/freshtrack/freshtrack/internal/inventory"
	"github.com/freshtrack/freshtrack/internal/observe"
	"github.com/freshtrack/freshtrack/internal/voiceparse"
	"github.com/freshtrack/freshtrack/pkg/provider/stt"
	"github.com/freshtrack/freshtrack/pkg/provider/tts"
)

// VoiceSettings tunes every dialogue started after it is applied.
type VoiceSettings struct {
	Prompts         dialogue.Prompts
	NoSpeechTimeout time.Duration
	FallbackDelay   time.Duration
	MaxRetries      int
	SkipKnown       bool

	// Voice and Language are used by server-side speech only.
	Voice    tts.VoiceProfile
	Language string
}

// DefaultVoiceSettings mirrors the dialogue defaults.
var DefaultVoiceSettings = VoiceSettings{
	Prompts:         dialogue.DefaultPrompts,
	NoSpeechTimeout: 12 * time.Second,
	FallbackDelay:   600 * time.Millisecond,
	MaxRetries:      2,
}

// Speech holds the providers used for ?mode=server voice sessions.
type Speech struct {
	STT     stt.Provider
	STTName string
	TTS     tts.Provider
	TTSName string
}

func (s Speech) available() bool { return s.STT != nil && s.TTS != nil }

// Option configures a [Server].
type Option func(*Server)

// WithMetrics records request and dialogue metrics on m.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithClock sets the clock relative dates resolve against.
func WithClock(c voiceparse.Clock) Option {
	return func(s *Server) { s.clock = c }
}

// WithVoiceSettings sets the initial dialogue tuning.
func WithVoiceSettings(v VoiceSettings) Option {
	return func(s *Server) { s.voice.Store(&v) }
}

// WithSpeech enables server-side recognition and synthesis.
func WithSpeech(sp Speech) Option {
	return func(s *Server) { s.speech = sp }
}

// WithSimilarityThreshold sets the score at which stored items are reported
// as possible duplicates of a new one.
func WithSimilarityThreshold(t float64) Option {
	return func(s *Server) { s.matcher = inventory.NewMatcher(t) }
}

// WithOriginPatterns lists the hosts allowed to open voice WebSockets from
// another origin.
func WithOriginPatterns(patterns ...string) Option {
	return func(s *Server) { s.origins = patterns }
}

// WithHealthChecks adds readiness checks beyond the inventory ping.
func WithHealthChecks(checks ...health.Checker) Option {
	return func(s *Server) { s.checks = append(s.checks, checks...) }
}

// WithLogger sets the logger. The default is [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.log = l }
}

// Server serves the freshtrack HTTP API.
type Server struct {
	store    inventory.Store
	matcher  *inventory.Matcher
	clock    voiceparse.Clock
	metrics  *observe.Metrics
	speech   Speech
	checks   []health.Checker
	origins  []string
	log      *slog.Logger
	validate *validator.Validate

	voice atomic.Pointer[VoiceSettings]
}

// New returns a Server backed by store.
func New(store inventory.Store, opts ...Option) *Server {
	s := &Server{
		store:    store,
		matcher:  inventory.NewMatcher(inventory.DefaultSimilarityThreshold),
		clock:    voiceparse.SystemClock,
		validate: newValidator(),
	}
	v := DefaultVoiceSettings
	s.voice.Store(&v)
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s
}

// SetVoiceSettings replaces the dialogue tuning. Running dialogues keep the
// settings they started with.
func (s *Server) SetVoiceSettings(v VoiceSettings) {
	s.voice.Store(&v)
}

// VoiceSettings returns the tuning new dialogues start with.
func (s *Server) VoiceSettings() VoiceSettings {
	return *s.voice.Load()
}

// Handler returns the fully routed and instrumented handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/parse/item", s.handleParseItem)
	mux.HandleFunc("POST /v1/parse/date", s.handleParseDate)
	mux.HandleFunc("POST /v1/parse/price", s.handleParsePrice)

	mux.HandleFunc("GET /v1/owners/{owner}/items", s.handleListItems)
	mux.HandleFunc("POST /v1/owners/{owner}/items", s.handleCreateItem)
	mux.HandleFunc("GET /v1/owners/{owner}/items/{id}", s.handleGetItem)
	mux.HandleFunc("DELETE /v1/owners/{owner}/items/{id}", s.handleDeleteItem)

	mux.HandleFunc("GET /v1/owners/{owner}/voice", s.handleVoice)

	checks := append([]health.Checker{health.Ping("inventory", s.store)}, s.checks...)
	health.New(checks...).Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	return observe.Middleware(s.metrics)(mux)
}
