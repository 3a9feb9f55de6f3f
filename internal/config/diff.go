package config

// ConfigDiff describes what changed between two configs.
// Voice settings and the log level are applied live; everything else is
// reported so the operator knows a restart is needed.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// VoiceChanged is true when any dialogue tuning or prompt changed.
	// New voice sessions pick it up; running ones keep their settings.
	VoiceChanged  bool
	PromptChanges []string // yaml keys of changed prompts

	// RestartRequired lists settings that only take effect on restart.
	RestartRequired []string
}

// Diff compares old and new configs and returns what changed.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	d.PromptChanges = diffPrompts(old.Voice.Prompts, new.Voice.Prompts)
	ov, nv := old.Voice, new.Voice
	d.VoiceChanged = len(d.PromptChanges) > 0 ||
		ov.VoiceID != nv.VoiceID ||
		ov.SpeedFactor != nv.SpeedFactor ||
		ov.Language != nv.Language ||
		ov.NoSpeechTimeout != nv.NoSpeechTimeout ||
		ov.SpeakFallbackDelay != nv.SpeakFallbackDelay ||
		retries(ov) != retries(nv) ||
		ov.SkipKnown != nv.SkipKnown

	restart := func(key string, changed bool) {
		if changed {
			d.RestartRequired = append(d.RestartRequired, key)
		}
	}
	restart("server.listen_addr", old.Server.ListenAddr != new.Server.ListenAddr)
	restart("server.log_format", old.Server.LogFormat != new.Server.LogFormat)
	restart("server.log_file", old.Server.LogFile != new.Server.LogFile)
	restart("providers.stt", !sameEntry(old.Providers.STT, new.Providers.STT))
	restart("providers.tts", !sameEntry(old.Providers.TTS, new.Providers.TTS))
	restart("inventory", old.Inventory.Backend != new.Inventory.Backend ||
		old.Inventory.PostgresDSN != new.Inventory.PostgresDSN ||
		old.Inventory.Redis != new.Inventory.Redis ||
		old.Inventory.SimilarityThreshold != new.Inventory.SimilarityThreshold)

	return d
}

func diffPrompts(old, new PromptsConfig) []string {
	var changed []string
	if old.Quantity != new.Quantity {
		changed = append(changed, "quantity")
	}
	if old.Category != new.Category {
		changed = append(changed, "category")
	}
	if old.Expiry != new.Expiry {
		changed = append(changed, "expiry")
	}
	if old.Price != new.Price {
		changed = append(changed, "price")
	}
	return changed
}

func retries(v VoiceConfig) int {
	if v.MaxRetries == nil {
		return DefaultMaxRetries
	}
	return *v.MaxRetries
}

// sameEntry compares the scalar fields of two provider entries. Options are
// ignored.
func sameEntry(a, b ProviderEntry) bool {
	return a.Name == b.Name && a.APIKey == b.APIKey && a.BaseURL == b.BaseURL && a.Model == b.Model
}
