package permission

import (
	"fmt"
	"strings"
)

// Scope is a parsed <resource>:<action>:<target> permission string
// (spec.md §3). Wildcards ("*") are allowed on any segment.
type Scope struct {
	Resource string
	Action   string
	Target   string
	raw      string
}

// ParseScope parses "resource:action:target" into a Scope.
func ParseScope(s string) (Scope, error) {
	parts := strings.SplitN(s, ":", 3)
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return Scope{}, fmt.Errorf("permission: malformed scope %q, want resource:action:target", s)
	}
	return Scope{Resource: parts[0], Action: parts[1], Target: parts[2], raw: s}, nil
}

// MustParseScope panics on malformed input — used for scopes known at
// compile time (manifest defaults, tests).
func MustParseScope(s string) Scope {
	sc, err := ParseScope(s)
	if err != nil {
		panic(err)
	}
	return sc
}

// String returns the original "resource:action:target" form.
func (s Scope) String() string { return s.raw }

// Matches reports whether s and other match segment-wise, where a "*" on
// either side matches any value in that segment (spec.md §3: "Two scopes
// match iff their parsed triples match segment-wise (literal or via
// wildcard)").
func (s Scope) Matches(other Scope) bool {
	return segmentMatches(s.Resource, other.Resource) &&
		segmentMatches(s.Action, other.Action) &&
		segmentMatches(s.Target, other.Target)
}

func segmentMatches(a, b string) bool {
	if a == "*" || b == "*" {
		return true
	}
	return a == b
}
