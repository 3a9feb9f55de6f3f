// Package tts defines the Provider interface for Text-to-Speech backends.
//
// A TTS provider wraps a speech synthesis service (e.g. ElevenLabs) and
// presents a uniform streaming interface. SynthesizeStream accepts a channel
// of text fragments and returns a channel of raw PCM audio as it becomes
// available, so the first syllable of a prompt can play before the rest is
// synthesised.
//
// Implementations must be safe for concurrent use.
package tts

import "context"

// Provider is the abstraction over any TTS backend.
type Provider interface {
	// SynthesizeStream consumes text fragments from the text channel and
	// returns a channel that emits raw PCM audio byte slices as they are
	// synthesised.
	//
	// The returned audio channel is closed when all text has been
	// synthesised or when ctx is cancelled. The caller must drain it.
	//
	// Returns a non-nil error only if the stream cannot be started. Errors
	// during synthesis close the audio channel early; callers check ctx.Err()
	// to tell cancellation from provider failure.
	SynthesizeStream(ctx context.Context, text <-chan string, voice VoiceProfile) (<-chan []byte, error)

	// ListVoices returns all voice profiles available from this provider.
	ListVoices(ctx context.Context) ([]VoiceProfile, error)
}
