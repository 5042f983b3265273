package permission

import (
	"errors"
	"fmt"
	"sort"
	"sync"
)

var (
	ErrRegistryFrozen    = errors.New("registry frozen")
	ErrInvalidPermission = errors.New("invalid permission name")
	ErrDuplicate         = errors.New("permission already registered")
)

// Registry is the catalogue of capability names the service knows about.
// Names are lower-case identifiers such as "manage_users".
type Registry struct {
	mu     sync.RWMutex
	names  map[string]struct{}
	frozen bool
}

// NewRegistry returns a registry pre-populated with names.
func NewRegistry(names ...string) (*Registry, error) {
	r := &Registry{names: make(map[string]struct{}, len(names))}
	for _, n := range names {
		if err := r.Register(n); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds name. Must be called before [Registry.Freeze].
func (r *Registry) Register(name string) error {
	if !ValidName(name) {
		return fmt.Errorf("%w: %q", ErrInvalidPermission, name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.frozen {
		return ErrRegistryFrozen
	}
	if _, exists := r.names[name]; exists {
		return fmt.Errorf("%w: %q", ErrDuplicate, name)
	}
	r.names[name] = struct{}{}
	return nil
}

// Known reports whether name was registered.
func (r *Registry) Known(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.names[name]
	return ok
}

// Freeze prevents further registrations.
func (r *Registry) Freeze() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frozen = true
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.names))
	for n := range r.names {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

// Count returns the number of registered permissions.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.names)
}

// ValidName accepts 1..64 characters of [a-z0-9_.:].
func ValidName(name string) bool {
	if name == "" || len(name) > 64 {
		return false
	}
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '_', c == '.', c == ':':
		default:
			return false
		}
	}
	return true
}
