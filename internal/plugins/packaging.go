// Package plugins implements the typed hook dispatch mechanism third
// parties use to observe or modify execution (spec.md §1, §9) plus
// manifest trust verification for a loaded plugin. Manifest discovery
// itself — scanning a directory tree for plugin packages — is the
// out-of-scope plugin loader (spec.md §1); this package only describes
// the shape of a plugin once the loader hands it over, and dispatches
// hooks against it.
package plugins

// PluginManifest describes a loaded plugin. Trimmed from the teacher's
// registry-distribution fields (no CID, no pack graph — those belong to
// the out-of-scope swarm/registry layer) to what a hook dispatcher
// needs: identity, the hook points it subscribes to, and the scopes it
// requires to run.
type PluginManifest struct {
	Name        string   `json:"name"`
	Version     string   `json:"version"`
	Description string   `json:"description"`
	HookPoints  []string `json:"hook_points"`
	Permissions []string `json:"permissions,omitempty"`
	Author      string   `json:"author,omitempty"`
	License     string   `json:"license,omitempty"`
}
