package operations

import (
	"fmt"
	"maps"
	"slices"
	"sync"
)

// Context is the run scoped key/value store steps use to hand values to later steps, for
// example a deployed proxy address. It only grows: keys can be added or redefined but never
// removed. It also holds the results of the steps executed so far.
type Context struct {
	mu      sync.RWMutex
	values  map[string]any
	results []StepResult
}

// NewContext returns a Context seeded with initial. The map is copied.
func NewContext(initial map[string]any) *Context {
	values := make(map[string]any, len(initial))
	maps.Copy(values, initial)

	return &Context{values: values}
}

// Set adds key or redefines its value.
func (c *Context) Set(key string, value any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.values == nil {
		c.values = make(map[string]any)
	}
	c.values[key] = value
}

// Get returns the value stored under key.
func (c *Context) Get(key string) (any, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	v, ok := c.values[key]

	return v, ok
}

// Keys returns the defined keys in sorted order.
func (c *Context) Keys() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return slices.Sorted(maps.Keys(c.values))
}

// Values returns a copy of all key/value pairs.
func (c *Context) Values() map[string]any {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return maps.Clone(c.values)
}

// Results returns a copy of the results recorded so far, in execution order.
func (c *Context) Results() []StepResult {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return slices.Clone(c.results)
}

func (c *Context) record(r StepResult) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.results = append(c.results, r)
}

// Value returns the value under key as a T. It fails when the key is missing or holds another
// type, which usually means an earlier step did not run.
func Value[T any](c *Context, key string) (T, error) {
	var zero T

	v, ok := c.Get(key)
	if !ok {
		return zero, fmt.Errorf("context key %q is not set", key)
	}

	t, ok := v.(T)
	if !ok {
		return zero, fmt.Errorf("context key %q holds %T, want %T", key, v, zero)
	}

	return t, nil
}
