package main

import (
	"strings"

	"github.com/freshtrack/freshtrack/internal/config"
	"github.com/freshtrack/freshtrack/pkg/provider/stt"
	"github.com/freshtrack/freshtrack/pkg/provider/stt/deepgram"
	"github.com/freshtrack/freshtrack/pkg/provider/tts"
	"github.com/freshtrack/freshtrack/pkg/provider/tts/elevenlabs"
)

// registerBuiltinProviders wires the provider factories that ship with
// freshtrack into reg.
func registerBuiltinProviders(reg *config.Registry) {
	reg.RegisterSTT("deepgram", func(entry config.ProviderEntry) (stt.Provider, error) {
		var opts []deepgram.Option
		if entry.Model != "" {
			opts = append(opts, deepgram.WithModel(entry.Model))
		}
		if lang := optString(entry.Options, "language"); lang != "" {
			opts = append(opts, deepgram.WithLanguage(lang))
		}
		if ms, ok := optInt(entry.Options, "endpointing_ms"); ok {
			opts = append(opts, deepgram.WithEndpointing(ms))
		}
		if ms, ok := optInt(entry.Options, "utterance_end_ms"); ok {
			opts = append(opts, deepgram.WithUtteranceEnd(ms))
		}
		if entry.BaseURL != "" {
			opts = append(opts, deepgram.WithEndpoint(entry.BaseURL))
		}
		return deepgram.New(entry.APIKey, opts...)
	})

	reg.RegisterTTS("elevenlabs", func(entry config.ProviderEntry) (tts.Provider, error) {
		var opts []elevenlabs.Option
		if entry.Model != "" {
			opts = append(opts, elevenlabs.WithModel(entry.Model))
		}
		if outputFmt := optString(entry.Options, "output_format"); outputFmt != "" {
			opts = append(opts, elevenlabs.WithOutputFormat(outputFmt))
		}
		if entry.BaseURL != "" {
			opts = append(opts, elevenlabs.WithBaseURLs(wsBase(entry), entry.BaseURL))
		}
		return elevenlabs.New(entry.APIKey, opts...)
	})
}

// optString extracts a string value from a provider Options map.
// Returns "" if the map is nil, the key is absent, or the value is not a string.
func optString(opts map[string]any, key string) string {
	s, _ := opts[key].(string)
	return s
}

// optInt extracts an integer option. YAML decodes whole numbers as int.
func optInt(opts map[string]any, key string) (int, bool) {
	switch v := opts[key].(type) {
	case int:
		return v, true
	case float64:
		return int(v), true
	}
	return 0, false
}

// withOption returns a copy of opts with key set to v.
func withOption(opts map[string]any, key string, v any) map[string]any {
	out := make(map[string]any, len(opts)+1)
	for k, val := range opts {
		out[k] = val
	}
	out[key] = v
	return out
}

// wsBase returns the streaming base URL for an entry with a custom BaseURL:
// the ws_base_url option when set, otherwise BaseURL with a ws scheme.
func wsBase(entry config.ProviderEntry) string {
	if u := optString(entry.Options, "ws_base_url"); u != "" {
		return u
	}
	switch {
	case strings.HasPrefix(entry.BaseURL, "https://"):
		return "wss://" + strings.TrimPrefix(entry.BaseURL, "https://")
	case strings.HasPrefix(entry.BaseURL, "http://"):
		return "ws://" + strings.TrimPrefix(entry.BaseURL, "http://")
	}
	return entry.BaseURL
}
