package voiceio

import (
	"context"
	"fmt"

	"github.com/freshtrack/freshtrack/internal/dialogue"
	"github.com/freshtrack/freshtrack/internal/observe"
	"github.com/freshtrack/freshtrack/pkg/provider/tts"
)

// AudioSink receives synthesised PCM audio.
type AudioSink interface {
	WriteAudio(ctx context.Context, pcm []byte) error
}

// AudioSinkFunc adapts a function to [AudioSink].
type AudioSinkFunc func(ctx context.Context, pcm []byte) error

// WriteAudio implements [AudioSink].
func (f AudioSinkFunc) WriteAudio(ctx context.Context, pcm []byte) error { return f(ctx, pcm) }

// SpeakerOption configures a [Speaker].
type SpeakerOption func(*Speaker)

// WithVoice selects the voice prompts are read in.
func WithVoice(v tts.VoiceProfile) SpeakerOption {
	return func(s *Speaker) { s.voice = v }
}

// WithSpeakerMetrics records provider requests on m.
func WithSpeakerMetrics(m *observe.Metrics, providerName string) SpeakerOption {
	return func(s *Speaker) {
		s.metrics = m
		s.name = providerName
	}
}

// Speaker implements [dialogue.Speaker] on top of a TTS provider.
type Speaker struct {
	provider tts.Provider
	out      AudioSink
	voice    tts.VoiceProfile
	metrics  *observe.Metrics
	name     string
}

var _ dialogue.Speaker = (*Speaker)(nil)

// NewSpeaker returns a Speaker that writes audio to out. A nil provider
// yields a Speaker that always reports [dialogue.ErrSpeechUnavailable].
func NewSpeaker(p tts.Provider, out AudioSink, opts ...SpeakerOption) *Speaker {
	s := &Speaker{provider: p, out: out, name: "tts"}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Speak synthesises text and blocks until all audio has been written or ctx
// is cancelled. Provider failures are reported as
// [dialogue.ErrSpeechUnavailable] so the dialogue falls back to listening
// without speech.
func (s *Speaker) Speak(ctx context.Context, text string) (err error) {
	if s.provider == nil || s.out == nil {
		return dialogue.ErrSpeechUnavailable
	}
	defer func() { s.record(ctx, err) }()

	fragments := make(chan string, 1)
	fragments <- text
	close(fragments)

	audio, err := s.provider.SynthesizeStream(ctx, fragments, s.voice)
	if err != nil {
		return fmt.Errorf("voiceio: synthesize: %w: %w", dialogue.ErrSpeechUnavailable, err)
	}

	var wrote bool
	for pcm := range audio {
		if err := s.out.WriteAudio(ctx, pcm); err != nil {
			drain(audio)
			return fmt.Errorf("voiceio: write audio: %w", err)
		}
		wrote = true
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if !wrote {
		return fmt.Errorf("voiceio: synthesize %q: %w", text, dialogue.ErrSpeechUnavailable)
	}
	return nil
}

func (s *Speaker) record(ctx context.Context, err error) {
	if s.metrics == nil {
		return
	}
	status := "ok"
	if err != nil {
		status = "error"
		if ctx.Err() != nil {
			status = "cancelled"
		} else {
			s.metrics.RecordProviderError(ctx, s.name, "tts")
		}
	}
	s.metrics.RecordProviderRequest(ctx, s.name, "tts", status)
}

func drain[T any](ch <-chan T) {
	go func() {
		for range ch {
		}
	}()
}
