package toolruntime

import (
	"sync"
	"sync/atomic"
	"time"
)

// BreakerState is a per-tool circuit breaker's state (spec.md §4.3
// "Circuit breaker"). Grounded on the teacher's
// internal/backpressure.CircuitBreaker, simplified from the teacher's
// half-open-probe-count model to spec.md's single-probe model: the
// next call after reset_ms is admitted, and its outcome alone decides
// whether the circuit closes or reopens.
type BreakerState int32

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes a tool's breaker. Zero values fall back to
// spec.md §4.3's defaults (open_after=5 consecutive failures).
type BreakerConfig struct {
	OpenAfter int `json:"open_after"`
	ResetMS   int `json:"reset_ms"`
}

const (
	defaultOpenAfter = 5
	defaultResetMS   = 30000
)

func (c BreakerConfig) normalized() BreakerConfig {
	if c.OpenAfter <= 0 {
		c.OpenAfter = defaultOpenAfter
	}
	if c.ResetMS <= 0 {
		c.ResetMS = defaultResetMS
	}
	return c
}

// Breaker is a single tool's circuit breaker.
type Breaker struct {
	state            int32
	consecutiveFails int32
	mu               sync.RWMutex
	openedAt         time.Time
	cfg              BreakerConfig
}

func newBreaker(cfg BreakerConfig) *Breaker {
	return &Breaker{cfg: cfg.normalized()}
}

// State reports the breaker's current state, lazily transitioning
// open -> half-open once reset_ms has elapsed.
func (b *Breaker) State() BreakerState {
	if BreakerState(atomic.LoadInt32(&b.state)) != BreakerOpen {
		return BreakerState(atomic.LoadInt32(&b.state))
	}
	b.mu.RLock()
	openedAt := b.openedAt
	b.mu.RUnlock()
	if time.Since(openedAt) >= time.Duration(b.cfg.ResetMS)*time.Millisecond {
		atomic.CompareAndSwapInt32(&b.state, int32(BreakerOpen), int32(BreakerHalfOpen))
	}
	return BreakerState(atomic.LoadInt32(&b.state))
}

// Allow reports whether a call may proceed. Open (and not yet eligible
// for half-open) denies without consuming permission budget (spec.md
// §4.3: "Open state short-circuits ... without consuming permission
// budget").
func (b *Breaker) Allow() bool {
	return b.State() != BreakerOpen
}

// RecordSuccess closes the breaker (from closed or half-open).
func (b *Breaker) RecordSuccess() {
	atomic.StoreInt32(&b.consecutiveFails, 0)
	atomic.StoreInt32(&b.state, int32(BreakerClosed))
}

// RecordFailure increments the consecutive-failure count; from
// half-open a single failure reopens, from closed the threshold must
// be reached.
func (b *Breaker) RecordFailure() {
	if BreakerState(atomic.LoadInt32(&b.state)) == BreakerHalfOpen {
		b.open()
		return
	}
	fails := atomic.AddInt32(&b.consecutiveFails, 1)
	if int(fails) >= b.cfg.OpenAfter {
		b.open()
	}
}

func (b *Breaker) open() {
	atomic.StoreInt32(&b.state, int32(BreakerOpen))
	atomic.StoreInt32(&b.consecutiveFails, 0)
	b.mu.Lock()
	b.openedAt = time.Now()
	b.mu.Unlock()
}

// BreakerGroup owns one Breaker per tool name, created on first use.
type BreakerGroup struct {
	mu       sync.Mutex
	breakers map[string]*Breaker
}

func newBreakerGroup() *BreakerGroup {
	return &BreakerGroup{breakers: make(map[string]*Breaker)}
}

func (g *BreakerGroup) get(tool string, cfg *BreakerConfig) *Breaker {
	g.mu.Lock()
	defer g.mu.Unlock()
	if b, ok := g.breakers[tool]; ok {
		return b
	}
	var c BreakerConfig
	if cfg != nil {
		c = *cfg
	}
	b := newBreaker(c)
	g.breakers[tool] = b
	return b
}
