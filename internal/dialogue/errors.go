package dialogue

import "errors"

var (
	// ErrNoSpeech is the soft recognition failure: the listener heard nothing
	// usable. The current question is asked again.
	ErrNoSpeech = errors.New("dialogue: no speech detected")

	// ErrSpeechUnavailable is returned by a [Speaker] that cannot synthesise
	// speech. The session waits a short fallback delay and listens anyway.
	ErrSpeechUnavailable = errors.New("dialogue: speech synthesis unavailable")

	// ErrSessionActive is returned by [Session.Start] while a dialogue is in
	// flight. Cancel it first.
	ErrSessionActive = errors.New("dialogue: a dialogue is already in progress")

	// ErrNotConfirming is returned by [Session.Confirm] outside [Confirming].
	ErrNotConfirming = errors.New("dialogue: nothing to confirm")

	// ErrCommitting is returned by [Session.Confirm] while an earlier
	// Confirm is still writing to the sink.
	ErrCommitting = errors.New("dialogue: commit already in progress")

	// ErrClosed is returned by [Session.Start] after [Session.Close].
	ErrClosed = errors.New("dialogue: session closed")
)
