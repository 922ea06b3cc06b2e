package delegation

import (
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"

	"reach/core/internal/permission"
)

func grants(scopes ...string) []permission.Grant {
	out := make([]permission.Grant, len(scopes))
	for i, s := range scopes {
		out[i] = permission.Grant{Scope: permission.MustParseScope(s), Decision: permission.DecisionAllowSession}
	}
	return out
}

func TestDeriveChildTokenSubsetInvariant(t *testing.T) {
	parent := grants("filesystem:read:workspace", "network:request:*")
	token := DeriveChildToken("parent", "child", parent, []string{"filesystem"}, time.Hour)

	if len(token.AllowedScopes) != 1 || token.AllowedScopes[0] != "filesystem:read:workspace" {
		t.Fatalf("AllowedScopes = %v, want only the filesystem scope", token.AllowedScopes)
	}
}

func TestDeriveChildTokenEmptyAllowlistKeepsAll(t *testing.T) {
	parent := grants("filesystem:read:workspace", "network:request:*")
	token := DeriveChildToken("parent", "child", parent, nil, time.Hour)
	if len(token.AllowedScopes) != 2 {
		t.Fatalf("expected all parent scopes with empty allowlist, got %v", token.AllowedScopes)
	}
}

func TestHMACSignVerifyRoundTrip(t *testing.T) {
	secret := []byte("shared-secret")
	token := DeriveChildToken("p", "c", grants("filesystem:read:workspace"), nil, time.Hour)
	signed, err := SignHMAC(token, secret)
	if err != nil {
		t.Fatalf("SignHMAC() error = %v", err)
	}
	if err := VerifyHMAC(signed, secret); err != nil {
		t.Fatalf("VerifyHMAC() error = %v", err)
	}
	if err := VerifyHMAC(signed, []byte("wrong-secret")); err == nil {
		t.Fatal("expected verification to fail with wrong secret")
	}
}

func TestEd25519SignVerifyRoundTrip(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("GenerateKey() error = %v", err)
	}
	token := DeriveChildToken("p", "c", grants("filesystem:read:workspace"), nil, time.Hour)
	signed := SignEd25519(token, priv)
	if err := VerifyEd25519(signed, pub); err != nil {
		t.Fatalf("VerifyEd25519() error = %v", err)
	}

	otherPub, _, _ := ed25519.GenerateKey(rand.Reader)
	if err := VerifyEd25519(signed, otherPub); err == nil {
		t.Fatal("expected verification to fail against a different key")
	}
}

func TestEnforcerValidatesScopeWithinToken(t *testing.T) {
	token := DeriveChildToken("p", "c", grants("filesystem:read:workspace"), nil, time.Hour)
	enforcer, err := NewEnforcer(token)
	if err != nil {
		t.Fatalf("NewEnforcer() error = %v", err)
	}
	if !enforcer.ValidateScope(permission.MustParseScope("filesystem:read:workspace")) {
		t.Fatal("expected scope covered by token to validate")
	}
	if enforcer.ValidateScope(permission.MustParseScope("network:request:https://x")) {
		t.Fatal("expected scope outside token to be rejected")
	}
}

func TestTamperedSignatureFailsVerification(t *testing.T) {
	secret := []byte("shared-secret")
	token := DeriveChildToken("p", "c", grants("filesystem:read:workspace"), nil, time.Hour)
	signed, _ := SignHMAC(token, secret)
	signed.AllowedScopes = append(signed.AllowedScopes, "network:request:*")
	if err := VerifyHMAC(signed, secret); err == nil {
		t.Fatal("expected verification to fail after tampering with allowed scopes")
	}
}
