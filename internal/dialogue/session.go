package dialogue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/freshtrack/freshtrack/internal/observe"
	"github.com/freshtrack/freshtrack/internal/voiceparse"
)

const (
	defaultNoSpeechTimeout = 12 * time.Second
	defaultFallbackDelay   = 600 * time.Millisecond
	defaultMaxRetries      = 2
)

// Speaker speaks a prompt and returns once playback has finished.
// Implementations return [ErrSpeechUnavailable] when they cannot synthesise
// speech at all; cancelling ctx must stop playback.
type Speaker interface {
	Speak(ctx context.Context, text string) error
}

// Listener starts one recognition turn. The returned channel delivers zero or
// more interim events and then one final event or one error event, and is
// closed afterwards. Cancelling ctx must stop recognition and close the
// channel.
type Listener interface {
	Listen(ctx context.Context) (<-chan RecognitionEvent, error)
}

// RecognitionEvent is one result from a [Listener].
type RecognitionEvent struct {
	Text  string
	Final bool

	// Err reports a recognition failure. [ErrNoSpeech] is retried; any other
	// error abandons the dialogue.
	Err error
}

// Sink receives confirmed items.
type Sink interface {
	Add(ctx context.Context, item Item) error
}

// SinkFunc adapts a function to [Sink].
type SinkFunc func(ctx context.Context, item Item) error

// Add implements [Sink].
func (f SinkFunc) Add(ctx context.Context, item Item) error { return f(ctx, item) }

// Prompts are the questions spoken for each field.
type Prompts struct {
	Quantity string
	Category string
	Expiry   string
	Price    string
}

// DefaultPrompts are used for every empty field of a configured [Prompts].
var DefaultPrompts = Prompts{
	Quantity: "How much is there?",
	Category: "Which category is it?",
	Expiry:   "When does it expire?",
	Price:    "What was the price?",
}

func (p Prompts) forField(f Field) string {
	var s, def string
	switch f {
	case FieldQuantity:
		s, def = p.Quantity, DefaultPrompts.Quantity
	case FieldCategory:
		s, def = p.Category, DefaultPrompts.Category
	case FieldExpiry:
		s, def = p.Expiry, DefaultPrompts.Expiry
	case FieldPrice:
		s, def = p.Price, DefaultPrompts.Price
	}
	if s == "" {
		return def
	}
	return s
}

// Hooks observe a [Session]. Every hook is optional and is called from the
// session goroutine, or from the goroutine calling Start, Cancel or Confirm.
// Hooks must not call Close.
type Hooks struct {
	// OnState is called after every transition.
	OnState func(State)

	// OnPrompt is called with the text of each question before it is spoken.
	OnPrompt func(text string)

	// OnListen is called each time recognition starts.
	OnListen func()

	// OnInterim receives non-final transcripts for live display.
	OnInterim func(text string)

	// OnNotice receives transient messages about answers that could not be
	// parsed.
	OnNotice func(text string)

	// OnAbort is called when the dialogue is abandoned because of a
	// recognition error or repeated silence.
	OnAbort func(err error)
}

// Option configures a [Session].
type Option func(*Session)

// WithSpeaker sets the prompt speaker. Without one, every prompt is replaced
// by the fallback delay.
func WithSpeaker(sp Speaker) Option {
	return func(s *Session) { s.speaker = sp }
}

// WithClock sets the clock used to resolve relative dates.
func WithClock(c voiceparse.Clock) Option {
	return func(s *Session) { s.clock = c }
}

// WithPrompts overrides the spoken questions.
func WithPrompts(p Prompts) Option {
	return func(s *Session) { s.prompts = p }
}

// WithNoSpeechTimeout sets how long one listening step waits for a final
// transcript. Zero disables the timeout.
func WithNoSpeechTimeout(d time.Duration) Option {
	return func(s *Session) { s.noSpeechTimeout = d }
}

// WithFallbackDelay sets the pause used instead of a prompt when speech
// synthesis is unavailable.
func WithFallbackDelay(d time.Duration) Option {
	return func(s *Session) { s.fallbackDelay = d }
}

// WithMaxRetries sets how many times a step is retried after no speech.
func WithMaxRetries(n int) Option {
	return func(s *Session) { s.maxRetries = n }
}

// WithSkipKnown also skips the category and expiry questions when the opening
// utterance already supplied them.
func WithSkipKnown() Option {
	return func(s *Session) { s.skipKnown = true }
}

// WithHooks sets the session observers.
func WithHooks(h Hooks) Option {
	return func(s *Session) { s.hooks = h }
}

// WithMetrics sets the metrics recorder. Defaults to [observe.DefaultMetrics].
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Session) { s.metrics = m }
}

// WithLogger sets the logger. Defaults to [slog.Default].
func WithLogger(l *slog.Logger) Option {
	return func(s *Session) { s.log = l }
}

// Session runs at most one dialogue at a time on a background goroutine.
// All exported methods are safe for concurrent use.
type Session struct {
	listener Listener
	sink     Sink

	speaker         Speaker
	clock           voiceparse.Clock
	prompts         Prompts
	noSpeechTimeout time.Duration
	fallbackDelay   time.Duration
	maxRetries      int
	skipKnown       bool
	hooks           Hooks
	metrics         *observe.Metrics
	log             *slog.Logger

	mu    sync.Mutex
	state State
	// gen increments whenever the current dialogue is replaced, so that a
	// goroutine left over from a cancelled dialogue never writes state.
	gen          uint64
	runCancel    context.CancelFunc
	listenCancel context.CancelFunc
	speakCancel  context.CancelFunc

	// committing is set while Confirm writes to the sink. A Cancel that
	// arrives meanwhile only cancels commitCancel and leaves the outcome to
	// Confirm, so exactly one of them ends the dialogue.
	committing      bool
	commitCancel    context.CancelFunc
	cancelRequested bool

	started time.Time
	closed  bool
	wg      sync.WaitGroup
}

// New returns an idle Session that listens through l and commits confirmed
// items to sink.
func New(l Listener, sink Sink, opts ...Option) *Session {
	s := &Session{
		listener:        l,
		sink:            sink,
		clock:           voiceparse.SystemClock,
		noSpeechTimeout: defaultNoSpeechTimeout,
		fallbackDelay:   defaultFallbackDelay,
		maxRetries:      defaultMaxRetries,
		state:           Idle{},
	}
	for _, o := range opts {
		o(s)
	}
	if s.metrics == nil {
		s.metrics = observe.DefaultMetrics()
	}
	if s.log == nil {
		s.log = slog.Default()
	}
	return s
}

// State returns the current state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Start begins a dialogue and returns immediately; the dialogue proceeds on
// its own goroutine until it reaches [Confirming] or is abandoned. ctx bounds
// the whole dialogue. Returns [ErrSessionActive] unless the session is idle.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	next, err := begin(s.state)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.gen++
	gen := s.gen
	runCtx, cancel := context.WithCancel(ctx)
	s.runCancel = cancel
	s.state = next
	s.started = time.Now()
	s.wg.Add(1)
	s.mu.Unlock()

	s.metrics.RecordDialogueStarted(ctx)
	s.log.Debug("dialogue: started", "gen", gen)
	s.emitState(next)

	go func() {
		defer s.wg.Done()
		defer cancel()
		s.run(runCtx, gen)
	}()
	return nil
}

// Cancel abandons the dialogue: it stops recognition, cancels any prompt being
// spoken, discards the draft and returns to [Idle], in that order. Cancel is a
// no-op when the session is already idle.
func (s *Session) Cancel() {
	s.mu.Lock()
	if s.committing {
		s.cancelRequested = true
		s.commitCancel()
		s.mu.Unlock()
		return
	}
	if s.listenCancel != nil {
		s.listenCancel()
		s.listenCancel = nil
	}
	if s.speakCancel != nil {
		s.speakCancel()
		s.speakCancel = nil
	}
	if s.runCancel != nil {
		s.runCancel()
		s.runCancel = nil
	}
	_, wasIdle := s.state.(Idle)
	s.state = Idle{}
	s.gen++
	started := s.started
	s.mu.Unlock()

	if wasIdle {
		return
	}
	s.log.Debug("dialogue: cancelled")
	s.metrics.RecordDialogueEnded(context.Background(), observe.OutcomeCancelled, time.Since(started))
	s.emitState(Idle{})
}

// Confirm applies edit to the completed record and commits it to the sink.
// On success the session returns to [Idle] and the committed item is
// returned. When the sink fails the session stays in [Confirming] so the
// user can retry. A [Session.Cancel] during the write cancels the sink's
// context; if the sink still succeeds the item counts as committed,
// otherwise the dialogue ends as cancelled.
func (s *Session) Confirm(ctx context.Context, edit Edit) (Item, error) {
	s.mu.Lock()
	c, ok := s.state.(Confirming)
	if !ok {
		s.mu.Unlock()
		return Item{}, ErrNotConfirming
	}
	if s.committing {
		s.mu.Unlock()
		return Item{}, ErrCommitting
	}
	commitCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.committing = true
	s.commitCancel = cancel
	s.cancelRequested = false
	started := s.started
	s.mu.Unlock()

	item := edit.Apply(c.Item)
	err := s.sink.Add(commitCtx, item)

	s.mu.Lock()
	cancelled := s.cancelRequested
	s.committing = false
	s.commitCancel = nil
	s.cancelRequested = false
	if err != nil && !cancelled {
		s.mu.Unlock()
		return Item{}, fmt.Errorf("dialogue: commit item: %w", err)
	}
	s.state = Idle{}
	s.gen++
	s.mu.Unlock()

	if err != nil {
		s.log.Debug("dialogue: cancelled during commit", "err", err)
		s.metrics.RecordDialogueEnded(context.WithoutCancel(ctx), observe.OutcomeCancelled, time.Since(started))
		s.emitState(Idle{})
		return Item{}, fmt.Errorf("dialogue: commit item: %w", err)
	}
	s.log.Info("dialogue: item committed", "name", item.Name, "quantity", item.Quantity, "unit", item.Unit)
	s.metrics.RecordDialogueEnded(context.WithoutCancel(ctx), observe.OutcomeCommitted, time.Since(started))
	s.emitState(Idle{})
	return item, nil
}

// Close cancels any dialogue and waits for its goroutine to exit. Start fails
// with [ErrClosed] afterwards.
func (s *Session) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.Cancel()
	s.wg.Wait()
	return nil
}

// run drives the dialogue until it leaves the speaking and listening states.
func (s *Session) run(ctx context.Context, gen uint64) {
	for {
		s.mu.Lock()
		if s.gen != gen {
			s.mu.Unlock()
			return
		}
		st := s.state
		s.mu.Unlock()

		var next State
		switch st := st.(type) {
		case ListeningInitial:
			text, err := s.recognise(ctx, gen)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				next = s.recognitionFailed(ctx, st, err)
				break
			}
			next = heardInitial(text, s.clock.Now(), s.skipKnown)
		case Asking:
			if err := s.prompt(ctx, gen, st); err != nil {
				return
			}
			next = prompted(st)
		case Listening:
			text, err := s.recognise(ctx, gen)
			if ctx.Err() != nil {
				return
			}
			if err != nil {
				next = s.recognitionFailed(ctx, st, err)
				break
			}
			var notice string
			next, notice = heard(st, text, s.clock.Now(), s.skipKnown)
			if notice != "" {
				s.metrics.RecordParseFailure(ctx, st.Field.String())
				s.log.Debug("dialogue: answer not understood", "field", st.Field.String(), "text", text)
				if s.hooks.OnNotice != nil {
					s.hooks.OnNotice(notice)
				}
			}
		default:
			return
		}

		if !s.advance(ctx, gen, next) {
			return
		}
	}
}

// advance stores next unless the dialogue has been replaced or cancelled.
func (s *Session) advance(ctx context.Context, gen uint64, next State) bool {
	s.mu.Lock()
	if s.gen != gen || ctx.Err() != nil {
		s.mu.Unlock()
		return false
	}
	s.state = next
	s.mu.Unlock()
	s.emitState(next)
	return true
}

// recognitionFailed maps a failed listening step to the next state. Silence
// retries the step; anything else abandons the dialogue.
func (s *Session) recognitionFailed(ctx context.Context, st State, err error) State {
	if errors.Is(err, ErrNoSpeech) {
		next, exhausted := noSpeech(st, s.maxRetries)
		if !exhausted {
			s.log.Debug("dialogue: no speech, retrying", "phase", st.Phase())
			return next
		}
	}
	s.abort(ctx, st, err)
	return Idle{}
}

func (s *Session) abort(ctx context.Context, st State, err error) {
	s.mu.Lock()
	started := s.started
	s.mu.Unlock()
	s.log.Warn("dialogue: abandoned", "phase", st.Phase(), "err", err)
	s.metrics.RecordDialogueEnded(ctx, observe.OutcomeAborted, time.Since(started))
	if s.hooks.OnAbort != nil {
		s.hooks.OnAbort(err)
	}
}

// prompt speaks the question for a. It returns an error only when ctx is
// done; synthesis failures fall back to a fixed pause.
func (s *Session) prompt(ctx context.Context, gen uint64, a Asking) error {
	text := s.prompts.forField(a.Field)
	if s.hooks.OnPrompt != nil {
		s.hooks.OnPrompt(text)
	}

	speakCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	if !s.setCancel(gen, &s.speakCancel, cancel) {
		return context.Canceled
	}
	defer s.setCancel(gen, &s.speakCancel, nil)

	err := ErrSpeechUnavailable
	if s.speaker != nil {
		start := time.Now()
		err = s.speaker.Speak(speakCtx, text)
		s.metrics.RecordPromptDuration(ctx, time.Since(start))
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if err != nil {
		if !errors.Is(err, ErrSpeechUnavailable) {
			s.log.Warn("dialogue: speak prompt failed", "field", a.Field.String(), "err", err)
		}
		t := time.NewTimer(s.fallbackDelay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	return nil
}

// recognise runs one listening turn and returns the final transcript.
// Silence, an empty final transcript, a closed channel and the no-speech
// timeout are all reported as [ErrNoSpeech].
func (s *Session) recognise(ctx context.Context, gen uint64) (string, error) {
	var (
		listenCtx context.Context
		cancel    context.CancelFunc
	)
	if s.noSpeechTimeout > 0 {
		listenCtx, cancel = context.WithTimeout(ctx, s.noSpeechTimeout)
	} else {
		listenCtx, cancel = context.WithCancel(ctx)
	}
	defer cancel()
	if !s.setCancel(gen, &s.listenCancel, cancel) {
		return "", context.Canceled
	}
	defer s.setCancel(gen, &s.listenCancel, nil)

	if s.hooks.OnListen != nil {
		s.hooks.OnListen()
	}
	start := time.Now()
	text, err := s.await(ctx, listenCtx)
	s.metrics.RecordListenDuration(ctx, time.Since(start), err == nil)
	return text, err
}

func (s *Session) await(ctx, listenCtx context.Context) (string, error) {
	events, err := s.listener.Listen(listenCtx)
	if err != nil {
		if ctx.Err() == nil && listenCtx.Err() != nil {
			return "", ErrNoSpeech
		}
		return "", fmt.Errorf("dialogue: start listening: %w", err)
	}
	for {
		select {
		case <-listenCtx.Done():
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			return "", ErrNoSpeech
		case ev, ok := <-events:
			if !ok {
				return "", ErrNoSpeech
			}
			if ev.Err != nil {
				return "", ev.Err
			}
			if !ev.Final {
				if s.hooks.OnInterim != nil {
					s.hooks.OnInterim(ev.Text)
				}
				continue
			}
			if ev.Text == "" {
				return "", ErrNoSpeech
			}
			return ev.Text, nil
		}
	}
}

// setCancel stores fn in *slot if the dialogue is still current.
func (s *Session) setCancel(gen uint64, slot *context.CancelFunc, fn context.CancelFunc) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.gen != gen {
		return false
	}
	*slot = fn
	return true
}

func (s *Session) emitState(st State) {
	if s.hooks.OnState != nil {
		s.hooks.OnState(st)
	}
}
