package circuitbreaker

import (
	"errors"
	"sync"
	"time"
)

// State represents the state of the circuit breaker.
type State int

const (
	// Closed is the initial state where requests are allowed.
	Closed State = iota
	// Open state is when the circuit has tripped and requests are blocked.
	Open
	// HalfOpen allows trial requests to test whether the dependency recovered.
	HalfOpen
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case Closed:
		return "Closed"
	case Open:
		return "Open"
	case HalfOpen:
		return "Half-Open"
	default:
		return "Unknown"
	}
}

var (
	// ErrCircuitOpen is returned when the circuit breaker is in the Open state.
	ErrCircuitOpen = errors.New("circuit breaker is open")
)

// CircuitBreaker is the interface for the circuit breaker pattern.
type CircuitBreaker interface {
	// Execute runs the given request if the circuit breaker is closed or half-open.
	Execute(req func() (interface{}, error)) (interface{}, error)
	// State returns the current state of the circuit breaker.
	State() State
	// Name identifies the protected dependency.
	Name() string
}

// Settings configures a breaker.
type Settings struct {
	Name             string
	FailureThreshold uint32        // Number of consecutive failures to trip the circuit.
	SuccessThreshold uint32        // Number of successes in HalfOpen state to close the circuit.
	Timeout          time.Duration // Duration to wait in Open state before transitioning to HalfOpen.
	// OnStateChange is called outside the lock after every transition.
	OnStateChange func(name string, from, to State)
	// IsSuccessful decides whether an error counts against the breaker.
	// Nil means every non-nil error is a failure.
	IsSuccessful func(err error) bool
}

type breaker struct {
	settings             Settings
	consecutiveSuccesses uint32    // Current count of consecutive successes.
	consecutiveFailures  uint32    // Current count of consecutive failures.
	lastErrorTime        time.Time // Time when the circuit was opened.
	state                State
	mutex                sync.Mutex
}

// New creates a breaker with the legacy positional arguments.
func New(failureThreshold, successThreshold uint32, timeout time.Duration) CircuitBreaker {
	return NewWithSettings(Settings{
		FailureThreshold: failureThreshold,
		SuccessThreshold: successThreshold,
		Timeout:          timeout,
	})
}

// NewWithSettings creates a breaker; zero thresholds default to 1.
func NewWithSettings(s Settings) CircuitBreaker {
	if s.FailureThreshold == 0 {
		s.FailureThreshold = 1
	}
	if s.SuccessThreshold == 0 {
		s.SuccessThreshold = 1
	}
	return &breaker{settings: s, state: Closed}
}

func (cb *breaker) Name() string { return cb.settings.Name }

// State returns the current state of the circuit breaker.
func (cb *breaker) State() State {
	cb.mutex.Lock()
	defer cb.mutex.Unlock()
	return cb.currentState()
}

// currentState applies the Open -> HalfOpen timeout. Caller holds the lock.
func (cb *breaker) currentState() State {
	if cb.state == Open && time.Since(cb.lastErrorTime) > cb.settings.Timeout {
		cb.state = HalfOpen
		cb.consecutiveSuccesses = 0
	}
	return cb.state
}

// Execute wraps the execution of a function with the circuit breaker logic.
func (cb *breaker) Execute(req func() (interface{}, error)) (interface{}, error) {
	cb.mutex.Lock()
	before := cb.state
	state := cb.currentState()
	cb.mutex.Unlock()
	cb.notify(before, state)

	if state == Open {
		return nil, ErrCircuitOpen
	}

	res, err := req()
	if err != nil && !cb.successful(err) {
		cb.onFailure()
		return nil, err
	}
	cb.onSuccess()
	return res, err
}

func (cb *breaker) successful(err error) bool {
	if cb.settings.IsSuccessful == nil {
		return false
	}
	return cb.settings.IsSuccessful(err)
}

// onSuccess handles the logic when a request succeeds.
func (cb *breaker) onSuccess() {
	cb.mutex.Lock()
	before := cb.state
	switch cb.state {
	case HalfOpen:
		cb.consecutiveSuccesses++
		if cb.consecutiveSuccesses >= cb.settings.SuccessThreshold {
			cb.reset()
		}
	case Closed:
		cb.consecutiveFailures = 0
	}
	after := cb.state
	cb.mutex.Unlock()
	cb.notify(before, after)
}

// onFailure handles the logic when a request fails.
func (cb *breaker) onFailure() {
	cb.mutex.Lock()
	before := cb.state
	switch cb.state {
	case HalfOpen:
		cb.trip()
	case Closed:
		cb.consecutiveFailures++
		if cb.consecutiveFailures >= cb.settings.FailureThreshold {
			cb.trip()
		}
	}
	after := cb.state
	cb.mutex.Unlock()
	cb.notify(before, after)
}

func (cb *breaker) notify(from, to State) {
	if from != to && cb.settings.OnStateChange != nil {
		cb.settings.OnStateChange(cb.settings.Name, from, to)
	}
}

// trip opens the circuit.
func (cb *breaker) trip() {
	cb.state = Open
	cb.lastErrorTime = time.Now()
	cb.consecutiveFailures = 0
	cb.consecutiveSuccesses = 0
}

// reset closes the circuit and resets all counters.
func (cb *breaker) reset() {
	cb.state = Closed
	cb.consecutiveFailures = 0
	cb.consecutiveSuccesses = 0
}
