package api

import (
	"github.com/freshtrack/freshtrack/internal/dialogue"
	"github.com/freshtrack/freshtrack/internal/inventory"
)

// Client to server message types.
const (
	msgStart            = "start"
	msgTranscript       = "transcript"
	msgRecognitionError = "recognition_error"
	msgSpoken           = "spoken"
	msgConfirm          = "confirm"
	msgCancel           = "cancel"
)

// Server to client message types.
const (
	msgState     = "state"
	msgSpeak     = "speak"
	msgListen    = "listen"
	msgInterim   = "interim"
	msgNotice    = "notice"
	msgAborted   = "aborted"
	msgCommitted = "committed"
	msgSimilar   = "similar"
	msgError     = "error"
)

// Recognition error codes sent by browsers. Only no-speech is retried.
const codeNoSpeech = "no-speech"

// clientMessage is the union of every message a client may send. Fields not
// used by Type are ignored.
type clientMessage struct {
	Type string `json:"type"`

	// transcript
	Text  string `json:"text,omitempty"`
	Final bool   `json:"final,omitempty"`

	// recognition_error
	Code string `json:"code,omitempty"`

	// spoken; set when the client could not synthesise the prompt
	Unavailable bool `json:"unavailable,omitempty"`

	// confirm
	Edit *dialogue.Edit `json:"edit,omitempty"`
}

type stateMessage struct {
	Type  string          `json:"type"`
	Phase dialogue.Phase  `json:"phase"`
	Draft *dialogue.Draft `json:"draft,omitempty"`
	Item  *dialogue.Item  `json:"item,omitempty"`
}

// textMessage carries speak, interim and notice.
type textMessage struct {
	Type string `json:"type"`
	Text string `json:"text"`

	// ServerAudio marks a prompt whose audio follows as binary frames.
	ServerAudio bool `json:"server_audio,omitempty"`
}

type listenMessage struct {
	Type string `json:"type"`
}

type abortedMessage struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

type committedMessage struct {
	Type string         `json:"type"`
	Item inventory.Item `json:"item"`
}

type similarMessage struct {
	Type  string            `json:"type"`
	Items []inventory.Match `json:"items"`
}

type errorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func newStateMessage(st dialogue.State) stateMessage {
	msg := stateMessage{Type: msgState, Phase: st.Phase()}
	if c, ok := st.(dialogue.Confirming); ok {
		item := c.Item
		msg.Item = &item
		return msg
	}
	if d, ok := dialogue.DraftOf(st); ok {
		msg.Draft = &d
	}
	return msg
}
