package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"

	"github.com/freshtrack/freshtrack/internal/dialogue"
	"github.com/freshtrack/freshtrack/internal/inventory"
	"github.com/freshtrack/freshtrack/internal/voiceio"
	"github.com/freshtrack/freshtrack/pkg/provider/stt"
)

const (
	// writeTimeout bounds a single WebSocket write.
	writeTimeout = 5 * time.Second

	// serverSampleRate is the PCM rate expected from ?mode=server clients.
	serverSampleRate = 16000
)

// voiceConn is one WebSocket client driving one dialogue.
type voiceConn struct {
	srv   *Server
	conn  *websocket.Conn
	owner string
	ctx   context.Context
	log   *slog.Logger

	session  *dialogue.Session
	speaker  *remoteSpeaker    // client mode
	listener *remoteListener   // client mode
	audioIn  *voiceio.Listener // server mode
}

func (s *Server) handleVoice(w http.ResponseWriter, r *http.Request) {
	owner := r.PathValue("owner")
	serverMode := r.URL.Query().Get("mode") == "server"
	if serverMode && !s.speech.available() {
		writeError(w, http.StatusConflict, "server-side speech is not configured")
		return
	}

	conn, err := websocket.Accept(w, r, &websocket.AcceptOptions{OriginPatterns: s.origins})
	if err != nil {
		s.log.Warn("api: websocket accept failed", "owner", owner, "err", err)
		return
	}
	defer conn.CloseNow()

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	vc := &voiceConn{
		srv:   s,
		conn:  conn,
		owner: owner,
		ctx:   ctx,
		log:   s.log.With("owner", owner, "voice_session", uuid.NewString()),
	}
	vc.session = vc.newSession(serverMode)
	defer func() {
		_ = vc.session.Close()
		if vc.audioIn != nil {
			_ = vc.audioIn.Close()
		}
	}()

	vc.log.Info("api: voice session opened", "server_mode", serverMode)
	err = vc.readLoop(ctx)
	switch websocket.CloseStatus(err) {
	case websocket.StatusNormalClosure, websocket.StatusGoingAway:
		vc.log.Info("api: voice session closed")
		conn.Close(websocket.StatusNormalClosure, "")
	default:
		if ctx.Err() == nil {
			vc.log.Warn("api: voice session ended", "err", err)
		}
		conn.Close(websocket.StatusInternalError, "session ended")
	}
}

func (vc *voiceConn) newSession(serverMode bool) *dialogue.Session {
	settings := vc.srv.VoiceSettings()
	opts := []dialogue.Option{
		dialogue.WithClock(vc.srv.clock),
		dialogue.WithPrompts(settings.Prompts),
		dialogue.WithNoSpeechTimeout(settings.NoSpeechTimeout),
		dialogue.WithFallbackDelay(settings.FallbackDelay),
		dialogue.WithMaxRetries(settings.MaxRetries),
		dialogue.WithMetrics(vc.srv.metrics),
		dialogue.WithLogger(vc.log),
		dialogue.WithHooks(vc.hooks(serverMode)),
	}
	if settings.SkipKnown {
		opts = append(opts, dialogue.WithSkipKnown())
	}

	sink := dialogue.SinkFunc(vc.commit)
	if !serverMode {
		vc.speaker = &remoteSpeaker{send: vc.send}
		vc.listener = &remoteListener{send: vc.send}
		opts = append(opts, dialogue.WithSpeaker(vc.speaker))
		return dialogue.New(vc.listener, sink, opts...)
	}

	sp := vc.srv.speech
	vc.audioIn = voiceio.NewListener(sp.STT, stt.StreamConfig{
		SampleRate: serverSampleRate,
		Channels:   1,
		Language:   settings.Language,
	}, voiceio.WithListenerMetrics(vc.srv.metrics, sp.STTName))
	speaker := voiceio.NewSpeaker(sp.TTS, voiceio.AudioSinkFunc(vc.writeAudio),
		voiceio.WithVoice(settings.Voice),
		voiceio.WithSpeakerMetrics(vc.srv.metrics, sp.TTSName),
	)
	opts = append(opts, dialogue.WithSpeaker(speaker))
	return dialogue.New(announcingListener{vc.audioIn, vc.send}, sink, opts...)
}

func (vc *voiceConn) hooks(serverMode bool) dialogue.Hooks {
	h := dialogue.Hooks{
		OnState: func(st dialogue.State) {
			vc.emit(newStateMessage(st))
		},
		OnInterim: func(text string) {
			vc.emit(textMessage{Type: msgInterim, Text: text})
		},
		OnNotice: func(text string) {
			vc.emit(textMessage{Type: msgNotice, Text: text})
		},
		OnAbort: func(err error) {
			vc.emit(abortedMessage{Type: msgAborted, Reason: abortReason(err)})
		},
	}
	if serverMode {
		h.OnPrompt = func(text string) {
			vc.emit(textMessage{Type: msgSpeak, Text: text, ServerAudio: true})
		}
	}
	return h
}

func abortReason(err error) string {
	if errors.Is(err, dialogue.ErrNoSpeech) {
		return codeNoSpeech
	}
	return err.Error()
}

func (vc *voiceConn) readLoop(ctx context.Context) error {
	for {
		typ, data, err := vc.conn.Read(ctx)
		if err != nil {
			return err
		}
		if typ == websocket.MessageBinary {
			if vc.audioIn != nil {
				if err := vc.audioIn.Feed(data); err != nil {
					vc.log.Debug("api: audio dropped", "err", err)
				}
			}
			continue
		}

		var msg clientMessage
		if err := json.Unmarshal(data, &msg); err != nil {
			vc.emit(errorMessage{Type: msgError, Message: "invalid message: " + err.Error()})
			continue
		}
		vc.handle(ctx, msg)
	}
}

func (vc *voiceConn) handle(ctx context.Context, msg clientMessage) {
	switch msg.Type {
	case msgStart:
		if err := vc.session.Start(vc.ctx); err != nil {
			vc.emit(errorMessage{Type: msgError, Message: err.Error()})
		}
	case msgCancel:
		vc.session.Cancel()
	case msgConfirm:
		var edit dialogue.Edit
		if msg.Edit != nil {
			edit = *msg.Edit
		}
		if _, err := vc.session.Confirm(ctx, edit); err != nil {
			vc.emit(errorMessage{Type: msgError, Message: err.Error()})
		}
	case msgTranscript:
		if vc.listener == nil {
			return
		}
		vc.listener.deliver(dialogue.RecognitionEvent{Text: msg.Text, Final: msg.Final})
	case msgRecognitionError:
		if vc.listener == nil {
			return
		}
		vc.listener.deliver(dialogue.RecognitionEvent{Err: recognitionError(msg.Code)})
	case msgSpoken:
		if vc.speaker != nil {
			vc.speaker.spoken(msg.Unavailable)
		}
	default:
		vc.emit(errorMessage{Type: msgError, Message: fmt.Sprintf("unknown message type %q", msg.Type)})
	}
}

// commit stores a confirmed item and reports stored items with a similar
// name.
func (vc *voiceConn) commit(ctx context.Context, item dialogue.Item) error {
	existing, err := vc.srv.store.List(ctx, vc.owner, inventory.ListOptions{})
	if err != nil {
		return err
	}
	stored := inventory.FromDialogue(vc.owner, item)
	if err := vc.srv.store.Add(ctx, &stored); err != nil {
		return err
	}
	vc.emit(committedMessage{Type: msgCommitted, Item: stored})
	if matches := vc.srv.matcher.FindSimilar(existing, stored.Name); len(matches) > 0 {
		vc.emit(similarMessage{Type: msgSimilar, Items: matches})
	}
	return nil
}

func (vc *voiceConn) send(ctx context.Context, msg any) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return wsjson.Write(ctx, vc.conn, msg)
}

// emit sends msg on the connection context, logging failures.
func (vc *voiceConn) emit(msg any) {
	if err := vc.send(vc.ctx, msg); err != nil && vc.ctx.Err() == nil {
		vc.log.Debug("api: write message failed", "err", err)
	}
}

func (vc *voiceConn) writeAudio(ctx context.Context, pcm []byte) error {
	ctx, cancel := context.WithTimeout(ctx, writeTimeout)
	defer cancel()
	return vc.conn.Write(ctx, websocket.MessageBinary, pcm)
}

// announcingListener tells the client when server-side recognition starts.
type announcingListener struct {
	*voiceio.Listener
	send sendFunc
}

func (l announcingListener) Listen(ctx context.Context) (<-chan dialogue.RecognitionEvent, error) {
	events, err := l.Listener.Listen(ctx)
	if err != nil {
		return nil, err
	}
	if err := l.send(ctx, listenMessage{Type: msgListen}); err != nil {
		slog.Debug("api: announce listening failed", "err", err)
	}
	return events, nil
}
