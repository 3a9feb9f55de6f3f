package voiceio

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/freshtrack/freshtrack/internal/dialogue"
	"github.com/freshtrack/freshtrack/internal/observe"
	"github.com/freshtrack/freshtrack/internal/voiceparse"
	"github.com/freshtrack/freshtrack/pkg/provider/stt"
)

// DefaultKeywordBoost is the boost given to each parser vocabulary word when
// the stream config carries no keywords of its own.
const DefaultKeywordBoost = 1.5

// ErrNoRecognizer is returned by [Listener.Listen] when no STT provider is
// configured.
var ErrNoRecognizer = errors.New("voiceio: no speech recognizer configured")

// ListenerOption configures a [Listener].
type ListenerOption func(*Listener)

// WithListenerMetrics records provider requests on m.
func WithListenerMetrics(m *observe.Metrics, providerName string) ListenerOption {
	return func(l *Listener) {
		l.metrics = m
		l.name = providerName
	}
}

// Listener implements [dialogue.Listener] on top of an STT provider. Each
// Listen call opens a fresh provider session that lives for one answer.
type Listener struct {
	provider stt.Provider
	cfg      stt.StreamConfig
	metrics  *observe.Metrics
	name     string

	mu     sync.Mutex
	active stt.SessionHandle
}

var _ dialogue.Listener = (*Listener)(nil)

// NewListener returns a Listener opening sessions with cfg. When cfg has no
// keywords, the parser vocabulary is boosted.
func NewListener(p stt.Provider, cfg stt.StreamConfig, opts ...ListenerOption) *Listener {
	if cfg.Keywords == nil {
		for _, w := range voiceparse.Vocabulary() {
			cfg.Keywords = append(cfg.Keywords, stt.KeywordBoost{Keyword: w, Boost: DefaultKeywordBoost})
		}
	}
	l := &Listener{provider: p, cfg: cfg, name: "stt"}
	for _, o := range opts {
		o(l)
	}
	return l
}

// Listen opens a recognition session. Interim events carry everything heard
// so far in the turn; the final event carries the whole utterance once the
// provider reports its end. An empty final means nothing was said.
func (l *Listener) Listen(ctx context.Context) (<-chan dialogue.RecognitionEvent, error) {
	if l.provider == nil {
		return nil, ErrNoRecognizer
	}
	sess, err := l.provider.StartStream(ctx, l.cfg)
	if err != nil {
		l.record(ctx, err)
		return nil, fmt.Errorf("voiceio: start stream: %w", err)
	}
	l.record(ctx, nil)

	l.mu.Lock()
	prev := l.active
	l.active = sess
	l.mu.Unlock()
	if prev != nil {
		_ = prev.Close()
	}

	out := make(chan dialogue.RecognitionEvent, 16)
	go l.pump(ctx, sess, out)
	return out, nil
}

// Feed forwards a chunk of client audio to the open session. Audio arriving
// between turns is dropped.
func (l *Listener) Feed(chunk []byte) error {
	l.mu.Lock()
	sess := l.active
	l.mu.Unlock()
	if sess == nil {
		return nil
	}
	return sess.SendAudio(chunk)
}

// Close ends any open session.
func (l *Listener) Close() error {
	l.mu.Lock()
	sess := l.active
	l.active = nil
	l.mu.Unlock()
	if sess == nil {
		return nil
	}
	return sess.Close()
}

func (l *Listener) pump(ctx context.Context, sess stt.SessionHandle, out chan<- dialogue.RecognitionEvent) {
	defer close(out)
	defer l.release(sess)

	var heard []string
	partials, finals := sess.Partials(), sess.Finals()
	for {
		select {
		case <-ctx.Done():
			return
		case p, ok := <-partials:
			if !ok {
				partials = nil
				continue
			}
			if strings.TrimSpace(p.Text) == "" {
				continue
			}
			if !send(ctx, out, dialogue.RecognitionEvent{Text: join(heard, p.Text)}) {
				return
			}
		case f, ok := <-finals:
			if !ok {
				if len(heard) > 0 {
					send(ctx, out, dialogue.RecognitionEvent{Text: join(heard, ""), Final: true})
				}
				return
			}
			if t := strings.TrimSpace(f.Text); t != "" {
				heard = append(heard, t)
			}
			if f.EndOfUtterance {
				send(ctx, out, dialogue.RecognitionEvent{Text: join(heard, ""), Final: true})
				return
			}
		}
	}
}

// release closes sess and forgets it unless a newer session replaced it.
func (l *Listener) release(sess stt.SessionHandle) {
	l.mu.Lock()
	if l.active == sess {
		l.active = nil
	}
	l.mu.Unlock()
	_ = sess.Close()
}

func (l *Listener) record(ctx context.Context, err error) {
	if l.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
		l.metrics.RecordProviderError(ctx, l.name, "stt")
	}
	l.metrics.RecordProviderRequest(ctx, l.name, "stt", status)
}

func send(ctx context.Context, out chan<- dialogue.RecognitionEvent, ev dialogue.RecognitionEvent) bool {
	select {
	case out <- ev:
		return true
	case <-ctx.Done():
		return false
	}
}

func join(heard []string, tail string) string {
	parts := heard
	if tail = strings.TrimSpace(tail); tail != "" {
		parts = append(append([]string(nil), heard...), tail)
	}
	return strings.Join(parts, " ")
}
