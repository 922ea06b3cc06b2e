package permission

import "time"

// Decision is an approval outcome for a permission scope (spec.md §3).
type Decision string

const (
	DecisionAllowOnce    Decision = "allow_once"
	DecisionAllowSession Decision = "allow_session"
	DecisionAllowAlways  Decision = "allow_always"
	DecisionDeny         Decision = "deny"
)

// Granter identifies who produced a Grant.
type Granter string

const (
	GranterUser       Granter = "user"
	GranterPolicy     Granter = "policy"
	GranterDelegation Granter = "delegation"
)

// Grant is an active permission decision bound to a session and scope
// with a lifetime (spec.md §3).
type Grant struct {
	Scope     Scope
	Decision  Decision
	Granter   Granter
	GrantedAt time.Time
	ExpiresAt *time.Time // nil for allow_session/allow_always (lifetime is structural, not time-based)
	consumed  bool       // allow_once grants flip this after first satisfying use
}

func (g *Grant) expired(now time.Time) bool {
	if g.ExpiresAt == nil {
		return false
	}
	return now.After(*g.ExpiresAt)
}

func (g *Grant) active(now time.Time) bool {
	if g.Decision == DecisionDeny {
		return true // a deny grant is "active" in the sense that it still blocks
	}
	if g.consumed {
		return false
	}
	return !g.expired(now)
}
