package reacherr

import (
	"errors"
	"testing"
)

func TestCategoryGrouping(t *testing.T) {
	cases := map[Code]string{
		CodeJournalHashMismatch: "integrity",
		CodeInputValidationFailed: "validation",
		CodePermissionDenied: "authorization",
		CodeSSRF: "policy",
		CodeCircuitOpen: "execution",
		CodeLimitExceeded: "budget",
		CodePlannerEmptyInitial: "plan",
	}
	for code, want := range cases {
		if got := code.Category(); got != want {
			t.Errorf("%s.Category() = %q, want %q", code, got, want)
		}
	}
}

func TestSessionFatal(t *testing.T) {
	fatal := []Code{CodeJournalHashMismatch, CodeJournalIOError, CodeLimitExceeded, CodePlannerEmptyInitial}
	for _, c := range fatal {
		if !c.SessionFatal() {
			t.Errorf("%s expected session-fatal", c)
		}
	}
	notFatal := []Code{CodeTimeout, CodeCircuitOpen, CodePolicyPathDenied, CodePlannerEmptyContinue}
	for _, c := range notFatal {
		if c.SessionFatal() {
			t.Errorf("%s unexpectedly session-fatal", c)
		}
	}
}

func TestErrorIsByCode(t *testing.T) {
	a := New(CodeTimeout, "deadline exceeded")
	b := Wrap(CodeTimeout, "deadline exceeded again", errors.New("boom"))
	if !errors.Is(a, b) {
		t.Fatal("expected errors.Is to match on code")
	}
	c := New(CodeCircuitOpen, "breaker open")
	if errors.Is(a, c) {
		t.Fatal("expected errors.Is to not match across codes")
	}
}

func TestCodeOfUnwrapsChain(t *testing.T) {
	inner := New(CodeSSRF, "blocked redirect")
	outer := errorsWrap(inner)
	if got := CodeOf(outer); got != CodeSSRF {
		t.Fatalf("CodeOf() = %s, want %s", got, CodeSSRF)
	}
	if got := CodeOf(errors.New("plain")); got != CodeUnknown {
		t.Fatalf("CodeOf(plain) = %s, want %s", got, CodeUnknown)
	}
}

type wrapper struct{ err error }

func (w *wrapper) Error() string { return "wrapped: " + w.err.Error() }
func (w *wrapper) Unwrap() error { return w.err }

func errorsWrap(err error) error { return &wrapper{err: err} }
