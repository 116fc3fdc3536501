// Package breaker implements C9, the circuit breaker registry: one
// sony/gobreaker two-step breaker per logical operation, exposing the
// allow/recordSuccess/recordFailure contract from spec.md §4.7.
package breaker

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/plugincraft/forge/pkg/shared/logging"
	"github.com/plugincraft/forge/pkg/shared/types"
)

// entry pairs a two-step breaker with the FIFO queue of pending "done"
// callbacks produced by Allow(). recordSuccess/recordFailure do not carry a
// call token (per spec.md §4.7's allow/recordSuccess/recordFailure shape),
// so outcomes are matched to calls in the order they were allowed — correct
// as long as a given operation's calls report their outcome in call order,
// which holds for forge's single-flight-per-operation usage (C1 issues at
// most one outstanding call per logical operation at a time).
type entry struct {
	breaker *gobreaker.TwoStepCircuitBreaker
	mu      sync.Mutex
	pending []func(bool)
}

// Registry is the per-operation breaker map described by CircuitBreakerEntry.
type Registry struct {
	mu               sync.RWMutex
	entries          map[string]*entry
	failureThreshold int
	openTimeout      time.Duration
	logger           *logrus.Logger
}

// NewRegistry builds an empty registry. failureThreshold is the
// consecutive-failure count that opens a breaker (default 5);
// openTimeout is how long it stays open before probing half-open
// (default 30s).
func NewRegistry(failureThreshold int, openTimeout time.Duration, logger *logrus.Logger) *Registry {
	if failureThreshold <= 0 {
		failureThreshold = 5
	}
	if openTimeout <= 0 {
		openTimeout = 30 * time.Second
	}
	return &Registry{
		entries:          make(map[string]*entry),
		failureThreshold: failureThreshold,
		openTimeout:      openTimeout,
		logger:           logger,
	}
}

func (r *Registry) entryFor(operation string) *entry {
	r.mu.RLock()
	e, ok := r.entries[operation]
	r.mu.RUnlock()
	if ok {
		return e
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if e, ok = r.entries[operation]; ok {
		return e
	}

	threshold := uint32(r.failureThreshold)
	cb := gobreaker.NewTwoStepCircuitBreaker(gobreaker.Settings{
		Name:        operation,
		MaxRequests: 1,
		Interval:    0,
		Timeout:     r.openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			if r.logger != nil {
				r.logger.WithFields(logging.NewFields().Component("breaker").Operation(name).
					Custom("from", from.String()).Custom("to", to.String()).ToLogrus()).
					Info("circuit breaker state transition")
			}
		},
	})
	e = &entry{breaker: cb}
	r.entries[operation] = e
	return e
}

// Allow reports whether a call for operation may proceed. A false result
// means the breaker is open for this operation.
func (r *Registry) Allow(operation string) bool {
	e := r.entryFor(operation)
	done, err := e.breaker.Allow()
	if err != nil {
		return false
	}
	e.mu.Lock()
	e.pending = append(e.pending, done)
	e.mu.Unlock()
	return true
}

// RecordSuccess reports that the oldest allowed, not yet reported call for
// operation succeeded; a success in half-open state closes the breaker.
func (r *Registry) RecordSuccess(operation string) {
	r.report(operation, true)
}

// RecordFailure reports that the oldest allowed, not yet reported call for
// operation failed; this counts toward the breaker's consecutive-failure count.
func (r *Registry) RecordFailure(operation string) {
	r.report(operation, false)
}

func (r *Registry) report(operation string, success bool) {
	e := r.entryFor(operation)
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.pending) == 0 {
		return
	}
	done := e.pending[0]
	e.pending = e.pending[1:]
	done(success)
}

// State reports the current CircuitBreakerEntry snapshot for operation.
func (r *Registry) State(operation string) types.CircuitBreakerEntry {
	e := r.entryFor(operation)
	counts := e.breaker.Counts()
	return types.CircuitBreakerEntry{
		Operation:           operation,
		State:               stateOf(e.breaker.State()),
		ConsecutiveFailures: int(counts.ConsecutiveFailures),
	}
}

func stateOf(s gobreaker.State) types.BreakerState {
	switch s {
	case gobreaker.StateOpen:
		return types.BreakerOpen
	case gobreaker.StateHalfOpen:
		return types.BreakerHalfOpen
	default:
		return types.BreakerClosed
	}
}
