package resilience

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// State represents the circuit breaker state.
type State int

const (
	StateClosed State = iota
	StateHalfOpen
	StateOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateHalfOpen:
		return "half-open"
	case StateOpen:
		return "open"
	default:
		return "unknown"
	}
}

// OpenError is returned when a call is rejected without invoking the
// wrapped operation.
type OpenError struct {
	Dependency string
	RetryAfter time.Duration
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("circuit breaker %q is open, retry after %v", e.Dependency, e.RetryAfter)
}

// IsOpen reports whether err is a breaker rejection.
func IsOpen(err error) bool {
	var openErr *OpenError
	return errors.As(err, &openErr)
}

// Settings configures breaker behavior.
type Settings struct {
	// FailureThreshold is the consecutive-failure count that opens a
	// closed breaker.
	FailureThreshold int
	// SuccessThreshold is the consecutive-success count that closes a
	// half-open breaker.
	SuccessThreshold int
	// OpenTimeout is how long an open breaker rejects calls before the
	// next attempt probes recovery.
	OpenTimeout time.Duration
	// HalfOpenMaxProbes caps in-flight probe calls while half-open.
	HalfOpenMaxProbes int
	// OnStateChange is called whenever the state changes.
	OnStateChange func(name string, from, to State)
}

// Counts holds breaker statistics.
type Counts struct {
	TotalCalls           uint64
	TotalSuccesses       uint64
	TotalFailures        uint64
	ConsecutiveSuccesses uint32
	ConsecutiveFailures  uint32
}

// Breaker guards a single external dependency. Calls pass through while
// closed, are rejected while open, and probe recovery while half-open.
// The wrapped operation always runs outside the lock so a slow call never
// blocks unrelated state reads.
type Breaker struct {
	name     string
	settings Settings

	mu            sync.Mutex
	state         State
	counts        Counts
	lastFailure   time.Time
	halfOpenCalls int
	stateChanges  uint64
}

// New creates a breaker with the given settings, filling zero fields with
// defaults.
func New(name string, settings Settings) *Breaker {
	if settings.FailureThreshold == 0 {
		settings.FailureThreshold = 5
	}
	if settings.SuccessThreshold == 0 {
		settings.SuccessThreshold = 2
	}
	if settings.OpenTimeout == 0 {
		settings.OpenTimeout = 60 * time.Second
	}
	if settings.HalfOpenMaxProbes == 0 {
		settings.HalfOpenMaxProbes = 3
	}

	return &Breaker{
		name:     name,
		settings: settings,
		state:    StateClosed,
	}
}

// Name returns the dependency name this breaker guards.
func (b *Breaker) Name() string {
	return b.name
}

// State returns the current state, applying the lazy open-to-half-open
// transition when the open timeout has elapsed.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.currentState(time.Now())
}

// Counts returns a copy of the internal counts.
func (b *Breaker) Counts() Counts {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.counts
}

// Do runs op under breaker protection. While open it fails with *OpenError
// without invoking op. Otherwise it invokes op, records the outcome, and
// returns op's error unchanged; the breaker gates attempts but never
// swallows errors.
func (b *Breaker) Do(op func() error) error {
	if err := b.beforeCall(); err != nil {
		return err
	}

	defer func() {
		if r := recover(); r != nil {
			b.afterCall(false)
			panic(r)
		}
	}()

	err := op()
	b.afterCall(err == nil)
	return err
}

// Execute runs op under breaker protection and returns its result.
func (b *Breaker) Execute(op func() (any, error)) (any, error) {
	var result any
	err := b.Do(func() error {
		var opErr error
		result, opErr = op()
		return opErr
	})
	return result, err
}

func (b *Breaker) beforeCall() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	state := b.currentState(now)
	b.counts.TotalCalls++

	switch state {
	case StateOpen:
		return &OpenError{Dependency: b.name, RetryAfter: b.retryAfter(now)}
	case StateHalfOpen:
		if b.halfOpenCalls >= b.settings.HalfOpenMaxProbes {
			return &OpenError{Dependency: b.name, RetryAfter: b.retryAfter(now)}
		}
		b.halfOpenCalls++
	}
	return nil
}

func (b *Breaker) afterCall(success bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	state := b.currentState(now)

	if success {
		b.onSuccess(state, now)
	} else {
		b.onFailure(state, now)
	}
}

func (b *Breaker) onSuccess(state State, now time.Time) {
	b.counts.TotalSuccesses++
	b.counts.ConsecutiveSuccesses++
	b.counts.ConsecutiveFailures = 0

	if state == StateHalfOpen && int(b.counts.ConsecutiveSuccesses) >= b.settings.SuccessThreshold {
		b.setState(StateClosed, now)
	}
}

func (b *Breaker) onFailure(state State, now time.Time) {
	b.counts.TotalFailures++
	b.counts.ConsecutiveFailures++
	b.counts.ConsecutiveSuccesses = 0
	b.lastFailure = now

	switch state {
	case StateClosed:
		if int(b.counts.ConsecutiveFailures) >= b.settings.FailureThreshold {
			b.setState(StateOpen, now)
		}
	case StateHalfOpen:
		// Any failure during a probe reopens and restarts the window clock
		b.setState(StateOpen, now)
	}
}

// currentState applies the lazy transition out of Open once the timeout has
// elapsed. Caller holds the lock.
func (b *Breaker) currentState(now time.Time) State {
	if b.state == StateOpen && now.Sub(b.lastFailure) >= b.settings.OpenTimeout {
		b.setState(StateHalfOpen, now)
	}
	return b.state
}

func (b *Breaker) setState(state State, now time.Time) {
	if b.state == state {
		return
	}

	prev := b.state
	b.state = state
	b.stateChanges++
	b.halfOpenCalls = 0

	switch state {
	case StateClosed:
		b.counts.ConsecutiveFailures = 0
		b.counts.ConsecutiveSuccesses = 0
	case StateHalfOpen:
		b.counts.ConsecutiveSuccesses = 0
	}

	if b.settings.OnStateChange != nil {
		b.settings.OnStateChange(b.name, prev, state)
	}
}

func (b *Breaker) retryAfter(now time.Time) time.Duration {
	if b.lastFailure.IsZero() {
		return 0
	}
	remaining := b.settings.OpenTimeout - now.Sub(b.lastFailure)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// Status is a read-only snapshot for observability collectors.
type Status struct {
	Name         string        `json:"name"`
	State        string        `json:"state"`
	Counts       Counts        `json:"counts"`
	StateChanges uint64        `json:"state_changes"`
	RetryAfter   time.Duration `json:"retry_after"`
	LastFailure  time.Time     `json:"last_failure,omitempty"`
}

// Status returns the current snapshot.
func (b *Breaker) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()
	state := b.currentState(now)

	status := Status{
		Name:         b.name,
		State:        state.String(),
		Counts:       b.counts,
		StateChanges: b.stateChanges,
		LastFailure:  b.lastFailure,
	}
	if state == StateOpen {
		status.RetryAfter = b.retryAfter(now)
	}
	return status
}

// Reset returns the breaker to closed with fresh counters.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = StateClosed
	b.counts = Counts{}
	b.halfOpenCalls = 0
	b.lastFailure = time.Time{}
}
