package permission

import (
	"fmt"
	"strings"
	"sync"
)

// Sandbox is a second, independent check (spec.md §4.2 "additional
// requirements"): it tracks which tools/env-vars a session declared up
// front and denies a reference outside that declaration even where scope
// matching alone would allow it. Neither Engine.Check nor
// toolruntime.Runtime.Execute consults it. Grounded on the teacher's
// internal/sandbox.EnforcementLayer, trimmed to the declarations this
// core's Session actually carries (workspace-path resolution moved to
// internal/toolruntime's policy checks, which own path/SSRF enforcement).
type Sandbox struct {
	mu              sync.RWMutex
	declaredTools   map[string]map[string]struct{}
	declaredEnvVars map[string]map[string]struct{}
}

// NewSandbox constructs an empty Sandbox.
func NewSandbox() *Sandbox {
	return &Sandbox{
		declaredTools:   make(map[string]map[string]struct{}),
		declaredEnvVars: make(map[string]map[string]struct{}),
	}
}

// RegisterSession declares the tools and environment-variable patterns a
// session is permitted to reference. Must be called before any check for
// that session.
func (s *Sandbox) RegisterSession(sessionID string, tools []string, envVars []string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	toolSet := make(map[string]struct{}, len(tools))
	for _, t := range tools {
		toolSet[t] = struct{}{}
	}
	s.declaredTools[sessionID] = toolSet

	envSet := make(map[string]struct{}, len(envVars))
	for _, v := range envVars {
		envSet[v] = struct{}{}
	}
	s.declaredEnvVars[sessionID] = envSet
}

// UnregisterSession forgets sessionID's declarations, freeing memory when
// the session reaches a terminal state.
func (s *Sandbox) UnregisterSession(sessionID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.declaredTools, sessionID)
	delete(s.declaredEnvVars, sessionID)
}

// CheckToolAccess returns an error unless toolName was declared for
// sessionID (or the session never registered at all, in which case every
// tool is permitted — registration is opt-in hardening, not mandatory).
func (s *Sandbox) CheckToolAccess(sessionID, toolName string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	tools, registered := s.declaredTools[sessionID]
	if !registered {
		return nil
	}
	if _, ok := tools[toolName]; !ok {
		return fmt.Errorf("sandbox: tool %q not declared for session %s", toolName, sessionID)
	}
	return nil
}

// CheckEnvAccess allows exact match or a trailing-"*" prefix match
// (e.g. "REACH_*").
func (s *Sandbox) CheckEnvAccess(sessionID, envVar string) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	envs, registered := s.declaredEnvVars[sessionID]
	if !registered {
		return nil
	}
	for allowed := range envs {
		if allowed == envVar {
			return nil
		}
		if strings.HasSuffix(allowed, "*") && strings.HasPrefix(envVar, strings.TrimSuffix(allowed, "*")) {
			return nil
		}
	}
	return fmt.Errorf("sandbox: environment variable %q not declared for session %s", envVar, sessionID)
}
