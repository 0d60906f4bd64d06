// Package breaker implements the process-wide circuit breaker guarding
// outbound traffic to the source site. It has no dependency on the
// transport or the orchestrator; both depend on it.
package breaker

import (
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/lien-Gu/jjcrawler/internal/crawler"
	"github.com/lien-Gu/jjcrawler/internal/metrics"
)

// State is the breaker's position in the CLOSED/OPEN/HALF_OPEN machine.
type State int

// Breaker states.
const (
	StateClosed State = iota
	StateOpen
	StateHalfOpen
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// OpenError is returned while the breaker rejects traffic. RetryAfter is
// the estimated remaining cooldown.
type OpenError struct {
	RetryAfter time.Duration
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("breaker open: retry after %s", e.RetryAfter.Round(time.Millisecond))
}

// Breaker is the shared tri-state guard. Exactly one instance exists per
// process; every state read and transition happens under one mutex so
// concurrent 503 reporters cannot start overlapping cooldown windows.
type Breaker struct {
	mu       sync.Mutex
	state    State
	openedAt time.Time
	cooldown time.Duration
	clock    crawler.Clock
	logger   *zap.Logger
}

// New constructs a closed Breaker with the given cooldown.
func New(cooldown time.Duration, clock crawler.Clock, logger *zap.Logger) *Breaker {
	if cooldown <= 0 {
		cooldown = 25 * time.Second
	}
	return &Breaker{
		state:    StateClosed,
		cooldown: cooldown,
		clock:    clock,
		logger:   logger,
	}
}

// Allow reports whether a request may be issued right now. While OPEN it
// returns an OpenError without any network activity; once the cooldown
// has elapsed it moves to HALF_OPEN and lets the probe through.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateOpen {
		return nil
	}
	elapsed := b.clock.Now().Sub(b.openedAt)
	if elapsed < b.cooldown {
		return &OpenError{RetryAfter: b.cooldown - elapsed}
	}
	b.state = StateHalfOpen
	metrics.SetBreakerState(int(b.state))
	b.logger.Info("breaker half-open, probing source")
	return nil
}

// ReportOverload records a 503 from the source. The first reporter trips
// the breaker and starts the cooldown; reporters arriving while already
// OPEN are no-ops so one incident never extends its own window.
func (b *Breaker) ReportOverload() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == StateOpen {
		return
	}
	prev := b.state
	b.state = StateOpen
	b.openedAt = b.clock.Now()
	metrics.BreakerTripped()
	metrics.SetBreakerState(int(b.state))
	b.logger.Warn("breaker tripped by 503, suspending requests",
		zap.String("from", prev.String()),
		zap.Duration("cooldown", b.cooldown),
	)
}

// ReportSuccess records a successful response. A success while HALF_OPEN
// closes the breaker; in any other state it is a no-op.
func (b *Breaker) ReportSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state != StateHalfOpen {
		return
	}
	b.state = StateClosed
	metrics.SetBreakerState(int(b.state))
	b.logger.Info("breaker closed, source recovered")
}

// State returns the current state without transitioning.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
