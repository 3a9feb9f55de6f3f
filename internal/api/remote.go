package api

import (
	"context"
	"fmt"
	"sync"

	"github.com/freshtrack/freshtrack/internal/dialogue"
)

// sendFunc writes one JSON message to the client.
type sendFunc func(ctx context.Context, msg any) error

// remoteSpeaker asks the client to speak each prompt and waits for its
// spoken reply.
type remoteSpeaker struct {
	send sendFunc

	mu      sync.Mutex
	waiting chan error
}

var _ dialogue.Speaker = (*remoteSpeaker)(nil)

func (s *remoteSpeaker) Speak(ctx context.Context, text string) error {
	done := make(chan error, 1)
	s.mu.Lock()
	s.waiting = done
	s.mu.Unlock()
	defer s.clear(done)

	if err := s.send(ctx, textMessage{Type: msgSpeak, Text: text}); err != nil {
		return fmt.Errorf("api: send prompt: %w: %w", dialogue.ErrSpeechUnavailable, err)
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

// spoken resolves the pending prompt. It reports whether one was pending.
func (s *remoteSpeaker) spoken(unavailable bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.waiting == nil {
		return false
	}
	var err error
	if unavailable {
		err = dialogue.ErrSpeechUnavailable
	}
	s.waiting <- err
	s.waiting = nil
	return true
}

func (s *remoteSpeaker) clear(done chan error) {
	s.mu.Lock()
	if s.waiting == done {
		s.waiting = nil
	}
	s.mu.Unlock()
}

// remoteListener turns transcripts sent by the client into recognition
// events. At most one turn is open at a time.
type remoteListener struct {
	send sendFunc

	mu      sync.Mutex
	turn    chan dialogue.RecognitionEvent
	turnCtx context.Context
}

var _ dialogue.Listener = (*remoteListener)(nil)

func (l *remoteListener) Listen(ctx context.Context) (<-chan dialogue.RecognitionEvent, error) {
	ch := make(chan dialogue.RecognitionEvent, 16)
	l.mu.Lock()
	if l.turn != nil {
		close(l.turn)
	}
	l.turn, l.turnCtx = ch, ctx
	l.mu.Unlock()

	if err := l.send(ctx, listenMessage{Type: msgListen}); err != nil {
		l.end(ch)
		return nil, fmt.Errorf("api: request listening: %w", err)
	}
	go func() {
		<-ctx.Done()
		l.end(ch)
	}()
	return ch, nil
}

// deliver routes ev to the open turn. Finals and errors close the turn.
// It reports whether a turn was open.
func (l *remoteListener) deliver(ev dialogue.RecognitionEvent) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.turn == nil {
		return false
	}
	if !ev.Final && ev.Err == nil {
		select {
		case l.turn <- ev:
		default:
		}
		return true
	}
	select {
	case l.turn <- ev:
	case <-l.turnCtx.Done():
	}
	close(l.turn)
	l.turn = nil
	return true
}

func (l *remoteListener) end(ch chan dialogue.RecognitionEvent) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.turn == ch {
		close(ch)
		l.turn = nil
	}
}

// recognitionError maps a browser error code to a recognition failure.
func recognitionError(code string) error {
	if code == codeNoSpeech {
		return dialogue.ErrNoSpeech
	}
	return fmt.Errorf("api: recognition failed: %s", code)
}
