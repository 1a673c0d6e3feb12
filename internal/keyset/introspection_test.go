package keyset

import (
	"testing"
	"time"

	"github.com/mcpguard/gateway/internal/identity"
)

func TestIntrospectionCache_PutGetRoundTrip(t *testing.T) {
	t.Parallel()

	c := NewIntrospectionCache()
	id := identity.Identity{ID: "user-1", Provider: "oauth"}
	c.Put("hash-1", id, time.Now().Add(time.Minute))

	got, ok := c.Get("hash-1")
	if !ok {
		t.Fatal("Get() ok = false, want true")
	}
	if got.ID != "user-1" {
		t.Errorf("got.ID = %q, want user-1", got.ID)
	}
}

func TestIntrospectionCache_MissReturnsFalse(t *testing.T) {
	t.Parallel()

	c := NewIntrospectionCache()
	if _, ok := c.Get("absent"); ok {
		t.Error("Get() ok = true for absent key")
	}
}

func TestIntrospectionCache_ExpiredEntryEvictedOnGet(t *testing.T) {
	t.Parallel()

	c := NewIntrospectionCache()
	c.Put("hash-1", identity.Identity{ID: "user-1"}, time.Now().Add(-time.Second))

	if _, ok := c.Get("hash-1"); ok {
		t.Error("Get() returned expired entry")
	}
	if c.Size() != 0 {
		t.Errorf("Size() = %d, want 0 after expired eviction", c.Size())
	}
}

func TestIntrospectionCache_CeilingCapsLongLivedToken(t *testing.T) {
	t.Parallel()

	c := NewIntrospectionCache()
	farFuture := time.Now().Add(24 * time.Hour)
	c.Put("hash-1", identity.Identity{ID: "user-1"}, farFuture)

	// Entry must still be readable immediately; the 5-minute ceiling caps the
	// TTL but doesn't evict it right away.
	if _, ok := c.Get("hash-1"); !ok {
		t.Fatal("Get() ok = false immediately after Put")
	}
}
