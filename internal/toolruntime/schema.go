package toolruntime

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
)

// defaultValidatorCacheSize bounds the compiled-schema cache so a
// process loading many distinct manifests doesn't keep every compiled
// validator resident forever. Grounded on the teacher's trust.CAS LRU
// eviction policy, simplified from byte-size tracking to entry-count
// tracking since compiled schemas are small and uniform.
const defaultValidatorCacheSize = 256

// validatorCache is a bounded, thread-safe LRU cache of compiled JSON
// Schema validators keyed by the SHA-256 of their schema document, so
// two manifests sharing an identical input_schema compile it once.
type validatorCache struct {
	mu       sync.Mutex
	maxSize  int
	entries  map[string]*jsonschema.Schema
	accessed map[string]time.Time
}

func newValidatorCache(maxSize int) *validatorCache {
	if maxSize <= 0 {
		maxSize = defaultValidatorCacheSize
	}
	return &validatorCache{
		maxSize:  maxSize,
		entries:  make(map[string]*jsonschema.Schema),
		accessed: make(map[string]time.Time),
	}
}

func schemaKey(doc map[string]any) (string, error) {
	b, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("toolruntime: marshal schema: %w", err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}

// compile returns a compiled validator for doc, reusing a cached one
// when the schema's hash already has an entry.
func (c *validatorCache) compile(doc map[string]any) (*jsonschema.Schema, error) {
	key, err := schemaKey(doc)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if sch, ok := c.entries[key]; ok {
		c.accessed[key] = time.Now()
		c.mu.Unlock()
		return sch, nil
	}
	c.mu.Unlock()

	b, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("toolruntime: marshal schema: %w", err)
	}
	compiler := jsonschema.NewCompiler()
	resourceURL := "mem://" + key
	if err := compiler.AddResource(resourceURL, jsonDecode(b)); err != nil {
		return nil, fmt.Errorf("toolruntime: add schema resource: %w", err)
	}
	sch, err := compiler.Compile(resourceURL)
	if err != nil {
		return nil, fmt.Errorf("toolruntime: compile schema: %w", err)
	}

	c.mu.Lock()
	c.entries[key] = sch
	c.accessed[key] = time.Now()
	c.evictLocked()
	c.mu.Unlock()

	return sch, nil
}

// evictLocked drops the least-recently-used entries once the cache
// exceeds maxSize. Caller must hold c.mu.
func (c *validatorCache) evictLocked() {
	if len(c.entries) <= c.maxSize {
		return
	}
	type keyed struct {
		key string
		at  time.Time
	}
	all := make([]keyed, 0, len(c.accessed))
	for k, at := range c.accessed {
		all = append(all, keyed{k, at})
	}
	sort.Slice(all, func(i, j int) bool { return all[i].at.Before(all[j].at) })
	excess := len(c.entries) - c.maxSize
	for i := 0; i < excess; i++ {
		delete(c.entries, all[i].key)
		delete(c.accessed, all[i].key)
	}
}

// jsonDecode unmarshals a marshaled schema document back into a plain any
// value, since AddResource wants a pre-unmarshaled value, not raw bytes.
// A decode error is ignored and yields nil.
func jsonDecode(b []byte) any {
	var v any
	_ = json.Unmarshal(b, &v)
	return v
}

// validateAgainst validates instance against the schema document doc,
// returning the list of schema error strings on failure (spec.md §4.3
// step 2: "INPUT_VALIDATION_FAILED carrying the list of schema error
// strings").
func (c *validatorCache) validateAgainst(doc map[string]any, instance any) []string {
	sch, err := c.compile(doc)
	if err != nil {
		return []string{err.Error()}
	}
	if err := sch.Validate(instance); err != nil {
		return flattenValidationError(err)
	}
	return nil
}

func flattenValidationError(err error) []string {
	if ve, ok := err.(*jsonschema.ValidationError); ok {
		var out []string
		var walk func(e *jsonschema.ValidationError)
		walk = func(e *jsonschema.ValidationError) {
			if e.Error() != "" {
				out = append(out, e.Error())
			}
			for _, c := range e.Causes {
				walk(c)
			}
		}
		walk(ve)
		if len(out) > 0 {
			return out
		}
	}
	return []string{err.Error()}
}
