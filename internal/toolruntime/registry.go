package toolruntime

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"

	"reach/core/internal/logging"
)

// Registry is a load-once, read-many manifest map (spec.md §5 "Tool
// registry, tool manifest map: load-once, read-many. No mutation after
// startup"). A background watch may still replace the map wholesale in
// response to directory changes, but no caller ever sees a partially
// updated map: swaps are atomic pointer replacements.
type Registry struct {
	dir    string
	logger *logging.Logger

	mu        sync.RWMutex
	manifests map[string]Manifest

	watcher *fsnotify.Watcher
	done    chan struct{}
}

// LoadRegistry scans dir for *.json manifest files and parses each.
func LoadRegistry(dir string, logger *logging.Logger) (*Registry, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	r := &Registry{dir: dir, logger: logger.WithComponent("toolruntime.registry")}
	if err := r.reload(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Registry) reload() error {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return fmt.Errorf("toolruntime: read manifest dir: %w", err)
	}
	next := make(map[string]Manifest, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(r.dir, e.Name()))
		if err != nil {
			return fmt.Errorf("toolruntime: read manifest %s: %w", e.Name(), err)
		}
		m, err := ParseManifest(data)
		if err != nil {
			return fmt.Errorf("toolruntime: %s: %w", e.Name(), err)
		}
		next[m.Name] = m
	}

	r.mu.Lock()
	r.manifests = next
	r.mu.Unlock()
	return nil
}

// Resolve looks up a manifest by tool name.
func (r *Registry) Resolve(name string) (Manifest, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	m, ok := r.manifests[name]
	return m, ok
}

// List returns a snapshot of every loaded manifest.
func (r *Registry) List() []Manifest {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Manifest, 0, len(r.manifests))
	for _, m := range r.manifests {
		out = append(out, m)
	}
	return out
}

// Watch starts an fsnotify watch on the manifest directory, reloading
// the whole map on any write/create/remove/rename event. Reload errors
// are logged and the previous map is kept in place.
func (r *Registry) Watch() error {
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("toolruntime: create watcher: %w", err)
	}
	if err := w.Add(r.dir); err != nil {
		w.Close()
		return fmt.Errorf("toolruntime: watch manifest dir: %w", err)
	}
	r.watcher = w
	r.done = make(chan struct{})

	go func() {
		for {
			select {
			case ev, ok := <-w.Events:
				if !ok {
					return
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
					continue
				}
				if err := r.reload(); err != nil {
					r.logger.Warn("manifest reload failed, keeping previous registry")
				}
			case err, ok := <-w.Errors:
				if !ok {
					return
				}
				r.logger.Warn("manifest watcher error: " + err.Error())
			case <-r.done:
				return
			}
		}
	}()
	return nil
}

// Close stops the watch goroutine, if running.
func (r *Registry) Close() error {
	if r.watcher == nil {
		return nil
	}
	close(r.done)
	return r.watcher.Close()
}
