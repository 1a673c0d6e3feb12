package keyset

import (
	"time"

	"github.com/maypok86/otter/v2"

	"github.com/mcpguard/gateway/internal/identity"
)

// introspectionCacheTTL is the fixed ceiling imposed on every introspection
// cache entry, regardless of the token's own expiry.
const introspectionCacheTTL = 5 * time.Minute

// introspectionCacheSize is the LRU capacity: the token introspection cache
// never holds more than 500 entries.
const introspectionCacheSize = 500

// cachedIdentity pairs a resolved Identity with its effective expiry, the
// earlier of the token's stated expiration and the 5-minute ceiling.
type cachedIdentity struct {
	id        identity.Identity
	expiresAt time.Time
}

// IntrospectionCache is the bounded LRU of opaque-token-hash -> Identity,
// backed by otter's size- and write-time-based eviction.
type IntrospectionCache struct {
	cache *otter.Cache[string, cachedIdentity]
}

// NewIntrospectionCache builds a capacity-500 cache whose entries expire
// 5 minutes after being written (a shorter, token-stated expiry is enforced
// by Get).
func NewIntrospectionCache() *IntrospectionCache {
	cache := otter.Must(&otter.Options[string, cachedIdentity]{
		MaximumSize:      introspectionCacheSize,
		ExpiryCalculator: otter.ExpiryWriting[string, cachedIdentity](introspectionCacheTTL),
	})
	return &IntrospectionCache{cache: cache}
}

// Get returns the cached identity for tokenHash if present and not expired
// by its own token-stated expiry (the 5-minute ceiling is enforced by the
// cache itself and never needs checking here).
func (c *IntrospectionCache) Get(tokenHash string) (identity.Identity, bool) {
	entry, ok := c.cache.GetIfPresent(tokenHash)
	if !ok {
		return identity.Identity{}, false
	}
	if time.Now().After(entry.expiresAt) {
		c.cache.Invalidate(tokenHash)
		return identity.Identity{}, false
	}
	return entry.id, true
}

// Put caches id under tokenHash, expiring at the earlier of tokenExpiresAt
// and the 5-minute ceiling.
func (c *IntrospectionCache) Put(tokenHash string, id identity.Identity, tokenExpiresAt time.Time) {
	ceiling := time.Now().Add(introspectionCacheTTL)
	expiry := ceiling
	if !tokenExpiresAt.IsZero() && tokenExpiresAt.Before(ceiling) {
		expiry = tokenExpiresAt
	}
	c.cache.Set(tokenHash, cachedIdentity{id: id, expiresAt: expiry})
}

// Size returns the current entry count, for the size invariant test.
func (c *IntrospectionCache) Size() int {
	return c.cache.EstimatedSize()
}
