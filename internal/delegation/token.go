// Package delegation derives and signs Delegation Tokens: the signed
// capability envelope a parent session hands to a child (spec.md §3,
// §4.2). Ed25519 signing is grounded on the teacher's internal/signing
// package's detached-signature-over-canonical-payload pattern; HMAC-SHA256
// signing is grounded on the teacher's internal/audit receipt-signing
// pattern, generalized to delegation tokens per spec.md §4.2's explicit
// "HMAC or Ed25519" choice.
package delegation

import (
	"crypto/ed25519"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"reach/core/internal/determinism"
	"reach/core/internal/permission"
	"reach/core/internal/reacherr"
)

// Algorithm identifies how a Token is signed.
type Algorithm string

const (
	AlgorithmHMACSHA256 Algorithm = "hmac-sha256"
	AlgorithmEd25519    Algorithm = "ed25519"
)

// Token is a signed capability envelope binding a child session's maximum
// authority to a subset of its parent's currently-held scopes (spec.md §3).
type Token struct {
	ChildSessionID  string    `json:"child_session_id"`
	ParentSessionID string    `json:"parent_session_id"`
	AllowedScopes   []string  `json:"allowed_scopes"`
	IssuedAt        time.Time `json:"issued_at"`
	ExpiresAt       time.Time `json:"expires_at"`
	Algorithm       Algorithm `json:"algorithm"`
	Signature       string    `json:"signature"`
}

// signedFields returns the canonical, fixed-field-order payload that is
// the ONLY thing ever hashed or signed (spec.md §9: "This canonical form
// is the ONLY thing hashed/signed; never the parsed object").
func (t Token) signedFields() map[string]any {
	return map[string]any{
		"child_session_id":  t.ChildSessionID,
		"parent_session_id": t.ParentSessionID,
		"allowed_scopes":    toAnySlice(t.AllowedScopes),
		"issued_at":         t.IssuedAt.UTC().Format(time.RFC3339Nano),
		"expires_at":        t.ExpiresAt.UTC().Format(time.RFC3339Nano),
	}
}

func toAnySlice(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}

func (t Token) canonicalPayload() string {
	return determinism.CanonicalJSON(t.signedFields())
}

// DeriveChildToken computes allowed_scopes = { s in parentGrants :
// (allowlist empty) or (s's resource segment in allowlist) }, per spec.md
// §4.2's "Delegation derivation". It does not sign the result — call
// SignHMAC or SignEd25519 next.
func DeriveChildToken(parentSessionID, childSessionID string, parentGrants []permission.Grant, toolAllowlist []string, ttl time.Duration) Token {
	allow := make(map[string]bool, len(toolAllowlist))
	for _, a := range toolAllowlist {
		allow[strings.ToLower(a)] = true
	}

	now := time.Now().UTC()
	var scopes []string
	for _, g := range parentGrants {
		if g.Decision == permission.DecisionDeny {
			continue
		}
		if len(allow) == 0 || allow[strings.ToLower(g.Scope.Resource)] {
			scopes = append(scopes, g.Scope.String())
		}
	}

	return Token{
		ChildSessionID:  childSessionID,
		ParentSessionID: parentSessionID,
		AllowedScopes:   scopes,
		IssuedAt:        now,
		ExpiresAt:       now.Add(ttl),
	}
}

// SignHMAC signs t with a shared secret — the common in-process path.
func SignHMAC(t Token, secret []byte) (Token, error) {
	if len(secret) == 0 {
		return Token{}, errors.New("delegation: HMAC secret must not be empty")
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(t.canonicalPayload()))
	t.Algorithm = AlgorithmHMACSHA256
	t.Signature = hex.EncodeToString(mac.Sum(nil))
	return t, nil
}

// VerifyHMAC recomputes the MAC in constant time.
func VerifyHMAC(t Token, secret []byte) error {
	if t.Algorithm != AlgorithmHMACSHA256 {
		return reacherr.New(reacherr.CodeSignatureInvalid, "token is not HMAC-signed")
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(t.canonicalPayload()))
	expected := mac.Sum(nil)
	got, err := hex.DecodeString(t.Signature)
	if err != nil || subtle.ConstantTimeCompare(expected, got) != 1 {
		return reacherr.New(reacherr.CodeSignatureInvalid, "HMAC verification failed")
	}
	return nil
}

// SignEd25519 signs t with priv — the cross-node path (spec.md §9: ed25519
// for cross-node delegation).
func SignEd25519(t Token, priv ed25519.PrivateKey) Token {
	sig := ed25519.Sign(priv, []byte(t.canonicalPayload()))
	t.Algorithm = AlgorithmEd25519
	t.Signature = hex.EncodeToString(sig)
	return t
}

// VerifyEd25519 verifies t's signature against pub.
func VerifyEd25519(t Token, pub ed25519.PublicKey) error {
	if t.Algorithm != AlgorithmEd25519 {
		return reacherr.New(reacherr.CodeSignatureInvalid, "token is not Ed25519-signed")
	}
	sig, err := hex.DecodeString(t.Signature)
	if err != nil {
		return reacherr.Wrap(reacherr.CodeSignatureInvalid, "invalid signature hex", err)
	}
	if !ed25519.Verify(pub, []byte(t.canonicalPayload()), sig) {
		return reacherr.New(reacherr.CodeSignatureInvalid, "Ed25519 verification failed")
	}
	return nil
}

// Enforcer adapts a verified Token into a permission.DCTEnforcer: any
// scope not covered by the token's allowed_scopes is denied regardless of
// grants already present on the child session (spec.md §4.2).
type Enforcer struct {
	allowed []permission.Scope
}

// NewEnforcer parses t's allowed scopes. Call only after Verify* succeeds.
func NewEnforcer(t Token) (*Enforcer, error) {
	parsed := make([]permission.Scope, 0, len(t.AllowedScopes))
	for _, raw := range t.AllowedScopes {
		s, err := permission.ParseScope(raw)
		if err != nil {
			return nil, fmt.Errorf("delegation: invalid scope in token: %w", err)
		}
		parsed = append(parsed, s)
	}
	return &Enforcer{allowed: parsed}, nil
}

// ValidateScope implements permission.DCTEnforcer.
func (en *Enforcer) ValidateScope(scope permission.Scope) bool {
	for _, a := range en.allowed {
		if a.Matches(scope) {
			return true
		}
	}
	return false
}
