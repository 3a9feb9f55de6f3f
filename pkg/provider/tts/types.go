package tts

// VoiceProfile describes the voice used to read prompts aloud.
type VoiceProfile struct {
	// ID is the provider-specific voice identifier.
	ID string

	// Name is the human-readable voice name.
	Name string

	// Provider identifies which TTS provider this voice belongs to.
	Provider string

	// SpeedFactor adjusts speaking rate (0.5–2.0, 1.0 = default). Zero means
	// the provider default.
	SpeedFactor float64

	// Metadata holds provider-specific voice attributes (accent, gender, etc.).
	Metadata map[string]string
}
