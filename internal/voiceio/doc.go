// Package voiceio adapts streaming speech providers to the capabilities the
// collection dialogue needs.
//
// [Speaker] reads prompts aloud through a [tts.Provider] and forwards the
// audio to an [AudioSink], usually the client's WebSocket. [Listener] opens
// one [stt.Provider] session per recognition turn and feeds it the audio the
// client streams in via [Listener.Feed].
package voiceio
