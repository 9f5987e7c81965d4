// Package resilience provides retry and circuit breaker helpers for calls to
// external services.
package resilience

import (
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
)

// CircuitState represents the state of a circuit breaker.
type CircuitState int

const (
	// CircuitClosed lets requests through.
	CircuitClosed CircuitState = iota
	// CircuitOpen rejects requests until the reset timeout elapses.
	CircuitOpen
	// CircuitHalfOpen lets a single probe through.
	CircuitHalfOpen
)

func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "closed"
	case CircuitOpen:
		return "open"
	case CircuitHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// ErrCircuitOpen is returned when a call is rejected by an open circuit.
var ErrCircuitOpen = eris.New("circuit breaker is open")

// BreakerConfig controls circuit breaker behavior. A zero FailureThreshold
// disables the breaker.
type BreakerConfig struct {
	FailureThreshold int
	ResetTimeout     time.Duration
}

// Breaker is a consecutive-failure circuit breaker for one channel.
type Breaker struct {
	name string
	cfg  BreakerConfig

	mu            sync.Mutex
	state         CircuitState
	failures      int
	openedAt      time.Time
	probeInFlight bool

	now func() time.Time
}

// NewBreaker creates a breaker. name is used for logs only.
func NewBreaker(name string, cfg BreakerConfig) *Breaker {
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = 30 * time.Second
	}
	return &Breaker{name: name, cfg: cfg, now: time.Now}
}

// Allow reports whether a call may proceed. Every allowed call must be
// followed by exactly one Record or Cancel.
func (b *Breaker) Allow() error {
	if b == nil || b.cfg.FailureThreshold <= 0 {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case CircuitOpen:
		if b.now().Sub(b.openedAt) < b.cfg.ResetTimeout {
			return ErrCircuitOpen
		}
		b.setState(CircuitHalfOpen)
		b.probeInFlight = true
		return nil
	case CircuitHalfOpen:
		if b.probeInFlight {
			return ErrCircuitOpen
		}
		b.probeInFlight = true
		return nil
	default:
		return nil
	}
}

// Record registers the outcome of an allowed call. Only failures for which
// trip is true count; a nil trip counts every non-nil error.
func (b *Breaker) Record(err error, trip func(error) bool) {
	if b == nil || b.cfg.FailureThreshold <= 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	failed := err != nil && (trip == nil || trip(err))
	b.probeInFlight = false

	if !failed {
		b.failures = 0
		if b.state != CircuitClosed {
			b.setState(CircuitClosed)
		}
		return
	}

	b.failures++
	if b.state == CircuitHalfOpen || b.failures >= b.cfg.FailureThreshold {
		b.openedAt = b.now()
		if b.state != CircuitOpen {
			b.setState(CircuitOpen)
		}
	}
}

// Cancel releases an allowed call that never reached the remote end. The
// state and failure count are left as they were.
func (b *Breaker) Cancel() {
	if b == nil || b.cfg.FailureThreshold <= 0 {
		return
	}
	b.mu.Lock()
	b.probeInFlight = false
	b.mu.Unlock()
}

// State returns the current state.
func (b *Breaker) State() CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

func (b *Breaker) setState(to CircuitState) {
	zap.L().Info("resilience: circuit state change",
		zap.String("breaker", b.name),
		zap.Stringer("from", b.state),
		zap.Stringer("to", to),
	)
	b.state = to
}

// Breakers lazily creates one breaker per key (a messaging session).
type Breakers struct {
	cfg BreakerConfig

	mu       sync.Mutex
	breakers map[string]*Breaker
}

// NewBreakers creates a keyed breaker registry.
func NewBreakers(cfg BreakerConfig) *Breakers {
	return &Breakers{cfg: cfg, breakers: make(map[string]*Breaker)}
}

// Get returns the breaker for key, creating it on first use.
func (bs *Breakers) Get(key string) *Breaker {
	if bs == nil {
		return nil
	}
	bs.mu.Lock()
	defer bs.mu.Unlock()
	b, ok := bs.breakers[key]
	if !ok {
		b = NewBreaker(key, bs.cfg)
		bs.breakers[key] = b
	}
	return b
}
