package permission

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// RoleSource reads the permission links of a role, typically from the
// role_permissions junction table. A role with no rows yields an empty slice.
type RoleSource interface {
	PermissionsForRole(ctx context.Context, roleID string) ([]string, error)
}

// RoleSourceFunc adapts a function to RoleSource.
type RoleSourceFunc func(ctx context.Context, roleID string) ([]string, error)

func (f RoleSourceFunc) PermissionsForRole(ctx context.Context, roleID string) ([]string, error) {
	return f(ctx, roleID)
}

// ResolverConfig controls caching. A zero CacheTTL resolves on every call.
type ResolverConfig struct {
	CacheTTL time.Duration
}

// Resolver turns a role id into its permission Set. Unknown names are
// dropped when a Registry is attached, so a stray row never grants anything.
type Resolver struct {
	source   RoleSource
	registry *Registry
	cache    *gocache.Cache
}

// NewResolver creates a Resolver; registry may be nil.
func NewResolver(source RoleSource, registry *Registry, cfg ResolverConfig) *Resolver {
	r := &Resolver{source: source, registry: registry}
	if cfg.CacheTTL > 0 {
		r.cache = gocache.New(cfg.CacheTTL, 2*cfg.CacheTTL)
	}
	return r
}

// Resolve returns the union of permissions linked to roleID.
func (r *Resolver) Resolve(ctx context.Context, roleID string) (Set, error) {
	if roleID == "" {
		return Set{}, nil
	}
	if r.cache != nil {
		if v, ok := r.cache.Get(roleID); ok {
			return v.(Set), nil
		}
	}

	names, err := r.source.PermissionsForRole(ctx, roleID)
	if err != nil {
		return Set{}, err
	}
	if r.registry != nil {
		kept := names[:0:0]
		for _, n := range names {
			if r.registry.Known(n) {
				kept = append(kept, n)
			}
		}
		names = kept
	}
	set := NewSet(names...)

	if r.cache != nil {
		r.cache.SetDefault(roleID, set)
	}
	return set, nil
}

// InvalidateRole drops a cached entry after its links change.
func (r *Resolver) InvalidateRole(roleID string) {
	if r.cache != nil {
		r.cache.Delete(roleID)
	}
}

// InvalidateAll drops every cached entry.
func (r *Resolver) InvalidateAll() {
	if r.cache != nil {
		r.cache.Flush()
	}
}
