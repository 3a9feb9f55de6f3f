package resilience

import (
	"context"

	"github.com/freshtrack/freshtrack/pkg/provider/stt"
	"github.com/freshtrack/freshtrack/pkg/provider/tts"
)

// GuardedSTT is an [stt.Provider] whose stream setup runs through a [Breaker].
// Audio sent on an established session is not guarded.
type GuardedSTT struct {
	provider stt.Provider
	breaker  *Breaker
}

var _ stt.Provider = (*GuardedSTT)(nil)

// GuardSTT wraps p with b.
func GuardSTT(p stt.Provider, b *Breaker) *GuardedSTT {
	return &GuardedSTT{provider: p, breaker: b}
}

// Breaker returns the breaker guarding the provider.
func (g *GuardedSTT) Breaker() *Breaker { return g.breaker }

// StartStream opens a session on the wrapped provider unless the breaker is
// open.
func (g *GuardedSTT) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	var h stt.SessionHandle
	err := g.breaker.Do(ctx, func(ctx context.Context) error {
		var err error
		h, err = g.provider.StartStream(ctx, cfg)
		return err
	})
	return h, err
}

// GuardedTTS is a [tts.Provider] whose calls run through a [Breaker]. Only
// stream setup is guarded; a synthesis that fails midway closes its audio
// channel early, as the wrapped provider does.
type GuardedTTS struct {
	provider tts.Provider
	breaker  *Breaker
}

var _ tts.Provider = (*GuardedTTS)(nil)

// GuardTTS wraps p with b.
func GuardTTS(p tts.Provider, b *Breaker) *GuardedTTS {
	return &GuardedTTS{provider: p, breaker: b}
}

// Breaker returns the breaker guarding the provider.
func (g *GuardedTTS) Breaker() *Breaker { return g.breaker }

// SynthesizeStream starts synthesis on the wrapped provider unless the
// breaker is open.
func (g *GuardedTTS) SynthesizeStream(ctx context.Context, text <-chan string, voice tts.VoiceProfile) (<-chan []byte, error) {
	var audio <-chan []byte
	err := g.breaker.Do(ctx, func(ctx context.Context) error {
		var err error
		audio, err = g.provider.SynthesizeStream(ctx, text, voice)
		return err
	})
	return audio, err
}

// ListVoices lists voices on the wrapped provider unless the breaker is open.
func (g *GuardedTTS) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	var voices []tts.VoiceProfile
	err := g.breaker.Do(ctx, func(ctx context.Context) error {
		var err error
		voices, err = g.provider.ListVoices(ctx)
		return err
	})
	return voices, err
}
