package permission

import (
	"context"
	"path/filepath"
	"testing"

	"reach/core/internal/journal"
)

func newTestEngine(t *testing.T, cb ApprovalCallback) *Engine {
	t.Helper()
	j, err := journal.Open(filepath.Join(t.TempDir(), "events.jsonl"), journal.Options{})
	if err != nil {
		t.Fatalf("journal.Open() error = %v", err)
	}
	t.Cleanup(func() { j.Close() })
	return New(j, cb, nil)
}

func allowSession(ctx context.Context, req Request) (Decision, error) {
	return DecisionAllowSession, nil
}

func TestCheckDefaultDeniesWithoutCallback(t *testing.T) {
	e := newTestEngine(t, nil)
	result, err := e.Check(context.Background(), Request{
		SessionID:      "s1",
		RequiredScopes: []string{"filesystem:read:workspace"},
	})
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if result.Allowed {
		t.Fatal("expected default-deny callback to deny")
	}
}

func TestCheckGrantsThenReuses(t *testing.T) {
	e := newTestEngine(t, allowSession)
	req := Request{SessionID: "s1", RequiredScopes: []string{"filesystem:read:workspace"}}

	r1, err := e.Check(context.Background(), req)
	if err != nil || !r1.Allowed {
		t.Fatalf("first check = %+v, err=%v", r1, err)
	}
	if !e.IsGranted("s1", "filesystem:read:workspace") {
		t.Fatal("expected grant to be recorded")
	}

	r2, err := e.Check(context.Background(), req)
	if err != nil || !r2.Allowed {
		t.Fatalf("second check = %+v, err=%v", r2, err)
	}
}

func TestDelegationBoundaryScenario(t *testing.T) {
	e := newTestEngine(t, allowSession)
	parentReq := Request{SessionID: "parent", RequiredScopes: []string{"filesystem:read:workspace", "network:request:*"}}
	if _, err := e.Check(context.Background(), parentReq); err != nil {
		t.Fatalf("parent Check() error = %v", err)
	}

	parentGrants := e.ListGrants("parent")
	child := "child"
	scopes := make([]string, 0, len(parentGrants))
	for _, g := range parentGrants {
		if g.Scope.Resource == "filesystem" {
			scopes = append(scopes, g.Scope.String())
		}
	}
	if err := e.PreGrant(child, scopes); err != nil {
		t.Fatalf("PreGrant() error = %v", err)
	}
	e.SetDCTEnforcer(child, &allowListEnforcer{allowed: scopes})

	netResult, err := e.Check(context.Background(), Request{SessionID: child, RequiredScopes: []string{"network:request:https://x"}})
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if netResult.Allowed {
		t.Fatal("expected child to be denied network scope outside tool_allowlist")
	}

	fsResult, err := e.Check(context.Background(), Request{SessionID: child, RequiredScopes: []string{"filesystem:read:workspace"}})
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if !fsResult.Allowed {
		t.Fatal("expected child to be allowed the pre-granted filesystem scope")
	}
}

type allowListEnforcer struct{ allowed []string }

func (en *allowListEnforcer) ValidateScope(scope Scope) bool {
	for _, a := range en.allowed {
		s, _ := ParseScope(a)
		if s.Matches(scope) {
			return true
		}
	}
	return false
}

func TestDCTEnforcementOverridesExistingGrants(t *testing.T) {
	e := newTestEngine(t, allowSession)
	req := Request{SessionID: "s1", RequiredScopes: []string{"filesystem:read:workspace"}}
	if _, err := e.Check(context.Background(), req); err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if !e.IsGranted("s1", "filesystem:read:workspace") {
		t.Fatal("expected grant before enforcer installed")
	}

	e.SetDCTEnforcer("s1", &allowListEnforcer{allowed: []string{"network:request:*"}})

	result, err := e.Check(context.Background(), req)
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if result.Allowed {
		t.Fatal("expected DCT enforcer to deny despite a pre-existing grant")
	}
}

func TestClearSessionDropsGrants(t *testing.T) {
	e := newTestEngine(t, allowSession)
	e.PreGrant("s1", []string{"filesystem:read:workspace"})
	if !e.IsGranted("s1", "filesystem:read:workspace") {
		t.Fatal("expected grant present")
	}
	e.ClearSession("s1")
	if e.IsGranted("s1", "filesystem:read:workspace") {
		t.Fatal("expected grant cleared")
	}
}

func TestProfileRequireExplicitApprovalNeverCallsCallback(t *testing.T) {
	called := false
	e := newTestEngine(t, func(ctx context.Context, req Request) (Decision, error) {
		called = true
		return DecisionAllowSession, nil
	})
	profile := DefaultProfile()
	profile.RequireExplicitApproval = true
	e.SetProfile("s1", profile)

	result, err := e.Check(context.Background(), Request{
		SessionID:      "s1",
		RequiredScopes: []string{"filesystem:read:workspace"},
	})
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if called {
		t.Fatal("require_explicit_approval must never consult the approval callback")
	}
	if result.Allowed {
		t.Fatal("expected deny with no pre-existing allow_always grant")
	}

	e.ClearSession("s1") // drop the deny recorded above; then verify an allow_always grant satisfies the profile
	e.recordGrant("s1", &Grant{Scope: mustParseScope(t, "filesystem:read:workspace"), Decision: DecisionAllowAlways, Granter: GranterPolicy, GrantedAt: e.clock()})
	result, err = e.Check(context.Background(), Request{
		SessionID:      "s1",
		RequiredScopes: []string{"filesystem:read:workspace"},
	})
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if !result.Allowed {
		t.Fatal("expected allow_always grant to satisfy even under require_explicit_approval")
	}
}

func TestProfileMaxGrantsPerSession(t *testing.T) {
	e := newTestEngine(t, allowSession)
	profile := DefaultProfile()
	profile.MaxGrantsPerSession = 1
	e.SetProfile("s1", profile)

	first, err := e.Check(context.Background(), Request{SessionID: "s1", RequiredScopes: []string{"filesystem:read:workspace"}})
	if err != nil || !first.Allowed {
		t.Fatalf("expected first grant to succeed, got %+v err=%v", first, err)
	}
	second, err := e.Check(context.Background(), Request{SessionID: "s1", RequiredScopes: []string{"network:request:*"}})
	if err != nil {
		t.Fatalf("Check() error = %v", err)
	}
	if second.Allowed {
		t.Fatal("expected second distinct scope to be denied once max_grants_per_session is reached")
	}
}

func mustParseScope(t *testing.T, raw string) Scope {
	t.Helper()
	s, err := ParseScope(raw)
	if err != nil {
		t.Fatalf("ParseScope(%q): %v", raw, err)
	}
	return s
}
