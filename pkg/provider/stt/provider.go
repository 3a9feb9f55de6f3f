// Package stt defines the Provider interface for Speech-to-Text backends.
//
// An STT provider wraps a real-time transcription service (e.g. Deepgram) and
// exposes a uniform streaming interface. The central abstraction is
// SessionHandle: once opened, a session accepts raw PCM audio frames and
// emits two streams of Transcript values: low-latency partials for live
// display and authoritative finals that drive the voice-add dialogue.
//
// Implementations must be safe for concurrent use.
package stt

import "context"

// StreamConfig describes the audio format and recognition hints for a new STT
// session.
type StreamConfig struct {
	// SampleRate is the audio sample rate in Hz. Browsers capturing for
	// speech usually resample to 16000.
	SampleRate int

	// Channels is the number of audio channels. 1 = mono.
	Channels int

	// Language is the BCP-47 language tag for recognition (e.g. "en-IN",
	// "hi", "bn"). An empty string lets the provider pick its default.
	Language string

	// Keywords are vocabulary hints that raise the recognition probability of
	// transliterated words such as "paanch" or "darjan".
	Keywords []KeywordBoost
}

// SessionHandle represents an open STT streaming session.
//
// Callers must call Close when the session is no longer needed. All methods
// must be safe for concurrent use.
type SessionHandle interface {
	// SendAudio delivers a chunk of raw PCM audio bytes to the provider. The
	// chunk must match the format agreed in StreamConfig. Calling SendAudio
	// after Close returns an error.
	SendAudio(chunk []byte) error

	// Partials emits interim transcripts. The channel is closed when the
	// session ends.
	Partials() <-chan Transcript

	// Finals emits committed transcripts. The channel is closed when the
	// session ends.
	Finals() <-chan Transcript

	// SetKeywords replaces the keyword list without restarting the session.
	// Providers that cannot do this return an error wrapping
	// [ErrNotSupported].
	SetKeywords(keywords []KeywordBoost) error

	// Close terminates the session and releases its resources. After Close
	// returns, Partials and Finals are closed. Calling Close more than once
	// is safe and returns nil.
	Close() error
}

// Provider is the abstraction over any STT backend.
type Provider interface {
	// StartStream opens a new streaming transcription session. The caller
	// owns the returned SessionHandle and must call Close when done.
	StartStream(ctx context.Context, cfg StreamConfig) (SessionHandle, error)
}
