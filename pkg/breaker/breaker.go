package breaker

import (
	"errors"
	"sync"
	"time"
)

// ErrOpen is returned by Allow when the breaker is rejecting calls.
var ErrOpen = errors.New("circuit breaker is open")

// State of the breaker.
type State int

const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

// Clock abstracts time so state transitions can be tested with simulated time.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns a Clock backed by time.Now.
func SystemClock() Clock { return systemClock{} }

// Settings controls the breaker thresholds.
type Settings struct {
	// FailureThreshold is the number of consecutive failures that trips
	// the breaker from closed to open.
	FailureThreshold int
	// OpenTimeout is how long the breaker stays open before allowing a probe.
	OpenTimeout time.Duration
}

// DefaultSettings returns the thresholds used when none are configured.
func DefaultSettings() Settings {
	return Settings{
		FailureThreshold: 5,
		OpenTimeout:      30 * time.Second,
	}
}

// Breaker is a closed -> open -> half-open circuit breaker.
// It is decoupled from any transport: callers ask Allow before the guarded
// call and report the outcome with RecordSuccess / RecordFailure.
type Breaker struct {
	mu       sync.Mutex
	clock    Clock
	settings Settings

	state    State
	failures int
	openedAt time.Time
	probing  bool
}

// New creates a Breaker with the given settings and clock.
// A nil clock falls back to the system clock.
func New(settings Settings, clock Clock) *Breaker {
	if settings.FailureThreshold <= 0 {
		settings.FailureThreshold = DefaultSettings().FailureThreshold
	}
	if settings.OpenTimeout <= 0 {
		settings.OpenTimeout = DefaultSettings().OpenTimeout
	}
	if clock == nil {
		clock = SystemClock()
	}
	return &Breaker{clock: clock, settings: settings, state: StateClosed}
}

// State returns the current state, applying the open -> half-open
// transition if the open timeout has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshLocked()
	return b.state
}

// Allow reports whether a call may proceed. In half-open state only a
// single probe call is admitted until its outcome is recorded.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.refreshLocked()

	switch b.state {
	case StateOpen:
		return ErrOpen
	case StateHalfOpen:
		if b.probing {
			return ErrOpen
		}
		b.probing = true
		return nil
	default:
		return nil
	}
}

// RecordSuccess reports a successful guarded call.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures = 0
	b.probing = false
	b.state = StateClosed
}

// RecordFailure reports a failed guarded call.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateHalfOpen {
		// Probe failed: back to open, restart the timeout.
		b.trip()
		return
	}

	b.failures++
	if b.failures >= b.settings.FailureThreshold {
		b.trip()
	}
}

// Do runs fn under the breaker, recording its outcome.
func (b *Breaker) Do(fn func() error) error {
	if err := b.Allow(); err != nil {
		return err
	}
	if err := fn(); err != nil {
		b.RecordFailure()
		return err
	}
	b.RecordSuccess()
	return nil
}

func (b *Breaker) trip() {
	b.state = StateOpen
	b.failures = 0
	b.probing = false
	b.openedAt = b.clock.Now()
}

func (b *Breaker) refreshLocked() {
	if b.state == StateOpen && b.clock.Now().Sub(b.openedAt) >= b.settings.OpenTimeout {
		b.state = StateHalfOpen
		b.probing = false
	}
}
