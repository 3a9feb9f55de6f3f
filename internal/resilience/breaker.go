// Package resilience guards outbound speech providers with circuit breakers.
//
// A [Breaker] counts consecutive failures of a dependency. Once the limit is
// reached it opens and rejects calls with [ErrOpen] until a cooldown has
// passed, after which a single trial call decides whether it closes again.
// [GuardSTT] and [GuardTTS] wrap providers so that a vendor outage surfaces
// as a fast error and a failing readiness check rather than a stalled prompt.
//
// All types are safe for concurrent use.
package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// ErrOpen is returned by [Breaker.Do] while the breaker rejects calls.
var ErrOpen = errors.New("resilience: circuit open")

// State is the operating mode of a [Breaker].
type State int

const (
	// StateClosed forwards every call.
	StateClosed State = iota

	// StateOpen rejects calls until the cooldown elapses.
	StateOpen

	// StateHalfOpen lets a single trial call through.
	StateHalfOpen
)

// String returns the lower-case state name used in logs.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes a [Breaker]. Zero fields take the defaults.
type BreakerConfig struct {
	// Name labels log records and readiness failures, e.g. "stt/deepgram".
	Name string

	// MaxFailures is the number of consecutive failures that opens the
	// breaker. Default: 3.
	MaxFailures int

	// Cooldown is how long the breaker stays open before probing.
	// Default: 30s.
	Cooldown time.Duration
}

// Breaker is a three-state circuit breaker.
type Breaker struct {
	name        string
	maxFailures int
	cooldown    time.Duration
	now         func() time.Time

	mu       sync.Mutex
	state    State
	failures int
	openedAt time.Time
	probing  bool
}

// BreakerOption configures a [Breaker].
type BreakerOption func(*Breaker)

// WithNow replaces the breaker's clock. Tests use it to step past the
// cooldown.
func WithNow(now func() time.Time) BreakerOption {
	return func(b *Breaker) { b.now = now }
}

// NewBreaker returns a closed [Breaker].
func NewBreaker(cfg BreakerConfig, opts ...BreakerOption) *Breaker {
	if cfg.MaxFailures <= 0 {
		cfg.MaxFailures = 3
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	b := &Breaker{
		name:        cfg.Name,
		maxFailures: cfg.MaxFailures,
		cooldown:    cfg.Cooldown,
		now:         time.Now,
	}
	for _, o := range opts {
		o(b)
	}
	return b
}

// Name returns the label the breaker was created with.
func (b *Breaker) Name() string { return b.name }

// Do calls fn unless the breaker is open. Errors caused by ctx being
// cancelled or timing out are passed through without counting as failures,
// since they say nothing about the dependency.
func (b *Breaker) Do(ctx context.Context, fn func(context.Context) error) error {
	trial, err := b.admit()
	if err != nil {
		return err
	}

	err = fn(ctx)

	b.mu.Lock()
	defer b.mu.Unlock()
	if trial {
		b.probing = false
	}
	switch {
	case err == nil:
		if b.state != StateClosed {
			slog.Info("resilience: circuit closed", "name", b.name)
		}
		b.state = StateClosed
		b.failures = 0
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		// Caller gave up; leave the counters alone.
	default:
		b.failures++
		if trial || b.failures >= b.maxFailures {
			if b.state != StateOpen {
				slog.Warn("resilience: circuit opened",
					"name", b.name, "consecutive_failures", b.failures, "err", err)
			}
			b.state = StateOpen
			b.openedAt = b.now()
		}
	}
	return err
}

// admit decides whether a call may proceed and whether it is the trial.
func (b *Breaker) admit() (trial bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateOpen:
		if b.now().Sub(b.openedAt) < b.cooldown {
			return false, ErrOpen
		}
		b.state = StateHalfOpen
		slog.Info("resilience: circuit half-open", "name", b.name)
		fallthrough
	case StateHalfOpen:
		if b.probing {
			return false, ErrOpen
		}
		b.probing = true
		return true, nil
	}
	return false, nil
}

// State reports the current state. An open breaker whose cooldown has passed
// reports [StateHalfOpen]; the transition itself happens on the next call.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == StateOpen && b.now().Sub(b.openedAt) >= b.cooldown {
		return StateHalfOpen
	}
	return b.state
}

// Check satisfies the readiness checker signature. It fails only while the
// breaker is fully open.
func (b *Breaker) Check(context.Context) error {
	if b.State() == StateOpen {
		return fmt.Errorf("%w: %s", ErrOpen, b.name)
	}
	return nil
}
