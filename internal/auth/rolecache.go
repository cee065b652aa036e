package auth

import (
	"context"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"medidesk.org/internal/clinic"
)

const roleCacheSize = 4096

// RoleResolver reports the currently stored role for a subject.
type RoleResolver interface {
	RoleOf(ctx context.Context, id string) (clinic.Role, error)
}

// RoleCache re-reads roles from storage in strict mode so that a demotion
// takes effect before the access token expires. Entries age out on a short
// TTL; a lookup failure falls back to the role claimed in the token.
type RoleCache struct {
	resolver RoleResolver
	cache    *expirable.LRU[string, clinic.Role]
}

// NewRoleCache builds the cache with the given entry lifetime.
func NewRoleCache(resolver RoleResolver, ttl time.Duration) *RoleCache {
	return &RoleCache{
		resolver: resolver,
		cache:    expirable.NewLRU[string, clinic.Role](roleCacheSize, nil, ttl),
	}
}

// Resolve returns the live role for the subject, consulting storage on a
// cache miss.
func (c *RoleCache) Resolve(ctx context.Context, id string, claimed clinic.Role) clinic.Role {
	if role, ok := c.cache.Get(id); ok {
		return role
	}
	role, err := c.resolver.RoleOf(ctx, id)
	if err != nil {
		return claimed
	}
	c.cache.Add(id, role)
	return role
}

// Invalidate drops the cached role after a promotion or demotion.
func (c *RoleCache) Invalidate(id string) {
	c.cache.Remove(id)
}
