package stt

import (
	"errors"
	"time"
)

// ErrNotSupported is wrapped by operations a provider does not implement.
var ErrNotSupported = errors.New("stt: not supported")

// Transcript represents a speech-to-text result. Both partial and final
// transcripts use this type.
type Transcript struct {
	// Text is the transcribed speech content.
	Text string

	// IsFinal reports that the provider will not revise Text any more.
	IsFinal bool

	// EndOfUtterance reports that the speaker has paused after this final.
	// A spoken answer may arrive as several finals; the last one carries
	// EndOfUtterance. Providers without endpoint detection set it on every
	// final.
	EndOfUtterance bool

	// Confidence is the overall confidence score (0.0–1.0). May be zero if
	// the provider does not report confidence.
	Confidence float64

	// Words contains per-word detail when available.
	Words []WordDetail

	// Timestamp marks when the utterance started, relative to session start.
	Timestamp time.Duration

	// Duration is the length of the utterance.
	Duration time.Duration
}

// WordDetail holds per-word metadata from STT providers that support it.
type WordDetail struct {
	Word       string
	Start      time.Duration
	End        time.Duration
	Confidence float64
}

// KeywordBoost is a recognition hint.
type KeywordBoost struct {
	// Keyword is the text to boost (e.g. "darjan").
	Keyword string

	// Boost is the intensity of the boost (provider-specific scale).
	Boost float64
}
