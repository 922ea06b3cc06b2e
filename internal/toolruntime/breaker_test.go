package toolruntime

import (
	"testing"
	"time"
)

func TestBreakerOpensAfterConsecutiveFailures(t *testing.T) {
	b := newBreaker(BreakerConfig{OpenAfter: 3, ResetMS: 50})
	for i := 0; i < 2; i++ {
		b.RecordFailure()
		if !b.Allow() {
			t.Fatalf("breaker opened too early after %d failures", i+1)
		}
	}
	b.RecordFailure()
	if b.Allow() {
		t.Fatal("expected breaker to be open after reaching the failure threshold")
	}
}

func TestBreakerHalfOpenAfterCooldownThenCloses(t *testing.T) {
	b := newBreaker(BreakerConfig{OpenAfter: 1, ResetMS: 20})
	b.RecordFailure()
	if b.Allow() {
		t.Fatal("expected breaker open immediately after one failure with OpenAfter=1")
	}

	time.Sleep(30 * time.Millisecond)
	if !b.Allow() {
		t.Fatal("expected breaker to admit a probe call after reset_ms elapses")
	}
	b.RecordSuccess()
	if b.State() != BreakerClosed {
		t.Fatalf("State() = %v, want closed after a successful probe", b.State())
	}
}

func TestBreakerHalfOpenFailureReopens(t *testing.T) {
	b := newBreaker(BreakerConfig{OpenAfter: 1, ResetMS: 20})
	b.RecordFailure()
	time.Sleep(30 * time.Millisecond)
	if !b.Allow() {
		t.Fatal("expected probe to be admitted")
	}
	b.RecordFailure()
	if b.State() != BreakerOpen {
		t.Fatalf("State() = %v, want open after a failed probe", b.State())
	}
}

func TestBreakerGroupIsPerTool(t *testing.T) {
	g := newBreakerGroup()
	a := g.get("tool_a", nil)
	b := g.get("tool_b", nil)
	a.RecordFailure()
	if b.State() != BreakerClosed {
		t.Fatal("expected tool_b's breaker to be unaffected by tool_a's failure")
	}
}
