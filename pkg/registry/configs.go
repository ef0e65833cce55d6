package registry

import (
	"strconv"
	"strings"
	"sync"

	"github.com/vango-dev/tapas/internal/errors"
)

// ConfigEntry is a binding configuration registered under a hierarchical,
// dot separated id such as "2.1.3".
type ConfigEntry[D any] struct {
	ID     string
	Parent string
	Config D
}

// Configs holds binding configurations by id in registration order. They
// are registered at startup and read when list items are stamped.
type Configs[D any] struct {
	mu      sync.RWMutex
	order   []string
	entries map[string]ConfigEntry[D]
	hasList func(D) bool
}

// NewConfigs creates an empty configuration registry. hasList reports
// whether a configuration declares a list binding.
func NewConfigs[D any](hasList func(D) bool) *Configs[D] {
	return &Configs[D]{
		entries: make(map[string]ConfigEntry[D]),
		hasList: hasList,
	}
}

// Register stores cfg under id. A non-empty parent must already be
// registered. Registering an id again replaces its configuration in place.
func (c *Configs[D]) Register(id, parent string, cfg D) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if parent != "" {
		if _, ok := c.entries[parent]; !ok {
			return errors.New("E031").WithDetailf("configuration %q", parent)
		}
	}
	if _, ok := c.entries[id]; !ok {
		c.order = append(c.order, id)
	}
	c.entries[id] = ConfigEntry[D]{ID: id, Parent: parent, Config: cfg}
	return nil
}

// Get returns the configuration registered under id.
func (c *Configs[D]) Get(id string) (ConfigEntry[D], bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[id]
	return e, ok
}

// TopLevel returns every configuration without a parent.
func (c *Configs[D]) TopLevel() []ConfigEntry[D] {
	c.mu.RLock()
	defer c.mu.RUnlock()
	var out []ConfigEntry[D]
	for _, id := range c.order {
		if e := c.entries[id]; e.Parent == "" {
			out = append(out, e)
		}
	}
	return out
}

// Nested returns the configuration for id followed by every configuration
// whose id extends it segment-wise. Configurations below a list-bearing
// descendant are left out: that list stamps its own items.
func (c *Configs[D]) Nested(id string) []ConfigEntry[D] {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []ConfigEntry[D]
	if e, ok := c.entries[id]; ok {
		out = append(out, e)
		if c.hasList(e.Config) {
			return out
		}
	}

	var skipped []string
	for _, k := range c.order {
		if k == id || !HasPrefix(k, id) {
			continue
		}
		if under(k, skipped) {
			continue
		}
		e := c.entries[k]
		out = append(out, e)
		if c.hasList(e.Config) {
			skipped = append(skipped, k)
		}
	}
	return out
}

func under(id string, prefixes []string) bool {
	for _, p := range prefixes {
		if id != p && HasPrefix(id, p) {
			return true
		}
	}
	return false
}

// Len returns the number of configurations.
func (c *Configs[D]) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.order)
}

// HasPrefix reports whether id equals prefix or lies below it, comparing
// whole dot separated segments ("1.10" is not below "1.1").
func HasPrefix(id, prefix string) bool {
	if prefix == "" {
		return true
	}
	if !strings.HasPrefix(id, prefix) {
		return false
	}
	return len(id) == len(prefix) || id[len(prefix)] == '.'
}

// ReplacePrefix rewrites the leading prefix segments of id to repl.
func ReplacePrefix(id, prefix, repl string) string {
	if !HasPrefix(id, prefix) || prefix == "" {
		return id
	}
	return repl + id[len(prefix):]
}

// IncrementID replaces the last segment of id with n.
func IncrementID(id string, n int) string {
	if i := strings.LastIndexByte(id, '.'); i >= 0 {
		return id[:i+1] + strconv.Itoa(n)
	}
	return strconv.Itoa(n)
}

// ParentID returns id with its last segment removed.
func ParentID(id string) string {
	if i := strings.LastIndexByte(id, '.'); i >= 0 {
		return id[:i]
	}
	return ""
}
