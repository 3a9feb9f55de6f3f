// Package mock provides test doubles for the stt package interfaces.
//
// Provider hands out Sessions. A test scripts what the recogniser "hears" by
// pushing transcripts onto a Session and inspects the audio that was fed to
// it.
//
//	p := &mock.Provider{}
//	handle, _ := p.StartStream(ctx, cfg)
//	p.Last().Say("do kilo")
package mock

import (
	"context"
	"errors"
	"sync"

	"github.com/freshtrack/freshtrack/pkg/provider/stt"
)

// ErrClosed is returned by SendAudio after Close.
var ErrClosed = errors.New("mock stt: session closed")

// StartStreamCall records a single invocation of Provider.StartStream.
type StartStreamCall struct {
	Ctx context.Context
	Cfg stt.StreamConfig
}

// Provider is a mock implementation of stt.Provider.
type Provider struct {
	mu sync.Mutex

	// StartStreamErr, if non-nil, is returned as the error from StartStream.
	StartStreamErr error

	// OnStart, if set, is called with every new session before it is
	// returned. Tests use it to queue transcripts.
	OnStart func(*Session)

	calls    []StartStreamCall
	sessions []*Session
}

// StartStream records the call and returns a fresh Session.
func (p *Provider) StartStream(ctx context.Context, cfg stt.StreamConfig) (stt.SessionHandle, error) {
	p.mu.Lock()
	p.calls = append(p.calls, StartStreamCall{Ctx: ctx, Cfg: cfg})
	if p.StartStreamErr != nil {
		err := p.StartStreamErr
		p.mu.Unlock()
		return nil, err
	}
	s := NewSession()
	p.sessions = append(p.sessions, s)
	onStart := p.OnStart
	p.mu.Unlock()

	if onStart != nil {
		onStart(s)
	}
	return s, nil
}

// Calls returns a copy of the recorded StartStream calls.
func (p *Provider) Calls() []StartStreamCall {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]StartStreamCall(nil), p.calls...)
}

// Sessions returns every session handed out so far.
func (p *Provider) Sessions() []*Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Session(nil), p.sessions...)
}

// Last returns the most recently started session, or nil.
func (p *Provider) Last() *Session {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.sessions) == 0 {
		return nil
	}
	return p.sessions[len(p.sessions)-1]
}

var _ stt.Provider = (*Provider)(nil)

// Session is a mock implementation of stt.SessionHandle with buffered
// channels that are closed by Close.
type Session struct {
	mu sync.Mutex

	partials chan stt.Transcript
	finals   chan stt.Transcript
	closed   bool

	// SendAudioErr, if non-nil, is returned by every SendAudio call.
	SendAudioErr error

	// SetKeywordsErr, if non-nil, is returned by every SetKeywords call.
	SetKeywordsErr error

	audio      [][]byte
	keywords   [][]stt.KeywordBoost
	closeCalls int
}

// NewSession returns a Session with room for 64 queued transcripts on each
// stream.
func NewSession() *Session {
	return &Session{
		partials: make(chan stt.Transcript, 64),
		finals:   make(chan stt.Transcript, 64),
	}
}

// Partial queues an interim transcript. It is dropped after Close.
func (s *Session) Partial(text string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.partials <- stt.Transcript{Text: text}
}

// Final queues a committed transcript. It is dropped after Close.
func (s *Session) Final(t stt.Transcript) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	t.IsFinal = true
	s.finals <- t
}

// Say queues a complete utterance: a partial followed by a final that ends
// the utterance.
func (s *Session) Say(text string) {
	s.Partial(text)
	s.Final(stt.Transcript{Text: text, EndOfUtterance: true})
}

// SendAudio records a copy of chunk and returns SendAudioErr.
func (s *Session) SendAudio(chunk []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	s.audio = append(s.audio, append([]byte(nil), chunk...))
	return s.SendAudioErr
}

// Partials returns the interim transcript channel.
func (s *Session) Partials() <-chan stt.Transcript { return s.partials }

// Finals returns the committed transcript channel.
func (s *Session) Finals() <-chan stt.Transcript { return s.finals }

// SetKeywords records the call and returns SetKeywordsErr.
func (s *Session) SetKeywords(keywords []stt.KeywordBoost) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.keywords = append(s.keywords, append([]stt.KeywordBoost(nil), keywords...))
	return s.SetKeywordsErr
}

// Close closes both channels on first call.
func (s *Session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeCalls++
	if !s.closed {
		s.closed = true
		close(s.partials)
		close(s.finals)
	}
	return nil
}

// Audio returns copies of every chunk passed to SendAudio.
func (s *Session) Audio() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([][]byte(nil), s.audio...)
}

// CloseCalls returns the number of Close calls.
func (s *Session) CloseCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeCalls
}

// Closed reports whether Close has been called.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

var _ stt.SessionHandle = (*Session)(nil)
