// Package toolruntime executes a single tool call end-to-end: resolve
// manifest, validate input, check permissions, select execution path by
// mode, enforce timeout, validate output, update breaker, journal
// (spec.md §4.3). Grounded on the teacher's internal/manifest and
// internal/registry packages, generalized from capability-pack metadata
// to the tool-manifest shape spec.md §6 requires.
package toolruntime

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

var (
	nameRe       = regexp.MustCompile(`^[a-z][a-z0-9_-]{0,63}$`)
	permissionRe = regexp.MustCompile(`^[a-z]+:[a-z_]+:[A-Za-z0-9_./-]+$`)
	semverRe     = regexp.MustCompile(`^\d+\.\d+\.\d+(-[0-9A-Za-z.-]+)?(\+[0-9A-Za-z.-]+)?$`)
)

// Supports records which non-live execution modes a tool's handler
// accepts (spec.md §6: "supports.{mock, dry_run}").
type Supports struct {
	Mock   bool `json:"mock"`
	DryRun bool `json:"dry_run"`
}

// Manifest is a tool's on-disk declaration (spec.md §6 "Tool manifest
// on-disk"). Required keys: name, version, description, runner,
// input_schema, output_schema, permissions[], timeout_ms, supports.
type Manifest struct {
	Name          string                 `json:"name"`
	Version       string                 `json:"version"`
	Description   string                 `json:"description"`
	Runner        string                 `json:"runner"`
	InputSchema   map[string]any         `json:"input_schema"`
	OutputSchema  map[string]any         `json:"output_schema"`
	Permissions   []string               `json:"permissions"`
	TimeoutMS     int                    `json:"timeout_ms"`
	Supports      Supports               `json:"supports"`
	MockResponses []map[string]any       `json:"mock_responses,omitempty"`
	BreakerConfig *BreakerConfig         `json:"breaker,omitempty"`
	Metadata      map[string]any         `json:"metadata,omitempty"`
}

// ParseManifest decodes and validates a manifest document per spec.md
// §6's field constraints.
func ParseManifest(data []byte) (Manifest, error) {
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return Manifest{}, fmt.Errorf("toolruntime: parse manifest: %w", err)
	}
	if err := m.Validate(); err != nil {
		return Manifest{}, err
	}
	return m, nil
}

// Validate checks every required-key constraint from spec.md §6.
func (m Manifest) Validate() error {
	if !nameRe.MatchString(m.Name) {
		return fmt.Errorf("toolruntime: invalid manifest name %q", m.Name)
	}
	if !semverRe.MatchString(m.Version) {
		return fmt.Errorf("toolruntime: invalid manifest version %q for tool %s", m.Version, m.Name)
	}
	if strings.TrimSpace(m.Description) == "" {
		return fmt.Errorf("toolruntime: manifest %s missing description", m.Name)
	}
	if strings.TrimSpace(m.Runner) == "" {
		return fmt.Errorf("toolruntime: manifest %s missing runner", m.Name)
	}
	if m.InputSchema == nil || m.OutputSchema == nil {
		return fmt.Errorf("toolruntime: manifest %s missing input_schema/output_schema", m.Name)
	}
	for _, p := range m.Permissions {
		if !permissionRe.MatchString(p) {
			return fmt.Errorf("toolruntime: manifest %s has invalid permission scope %q", m.Name, p)
		}
	}
	if m.TimeoutMS < 100 || m.TimeoutMS > 600000 {
		return fmt.Errorf("toolruntime: manifest %s timeout_ms %d out of range [100, 600000]", m.Name, m.TimeoutMS)
	}
	return nil
}

func (m Manifest) String() string {
	return m.Name + "@" + m.Version + " (timeout=" + strconv.Itoa(m.TimeoutMS) + "ms)"
}
