package ratelimit

import (
	"context"
	"testing"
	"time"
)

func TestCheck_Disabled_AlwaysAllows(t *testing.T) {
	t.Parallel()

	l := New(false, Defaults{RequestsPerSecond: 1, BurstSize: 1})
	for i := 0; i < 5; i++ {
		r := l.Check("u1", 0, 0)
		if !r.Allowed {
			t.Fatalf("Check() = %+v, want always allowed when disabled", r)
		}
	}
	if l.TrackedIdentities() != 0 {
		t.Errorf("TrackedIdentities() = %d, want 0 when disabled", l.TrackedIdentities())
	}
}

func TestCheck_EnabledExhaustsBurst(t *testing.T) {
	t.Parallel()

	l := New(true, Defaults{RequestsPerSecond: 1, BurstSize: 2})
	first := l.Check("u1", 0, 0)
	second := l.Check("u1", 0, 0)
	third := l.Check("u1", 0, 0)

	if !first.Allowed || !second.Allowed {
		t.Fatalf("first/second = %+v / %+v, want allowed", first, second)
	}
	if third.Allowed {
		t.Fatalf("third = %+v, want denied once burst exhausted", third)
	}
	if third.RetryAfter <= 0 {
		t.Errorf("RetryAfter = %v, want positive", third.RetryAfter)
	}
}

func TestCheck_PerIdentityOverride(t *testing.T) {
	t.Parallel()

	l := New(true, Defaults{RequestsPerSecond: 1, BurstSize: 1})
	r := l.Check("u1", 50, 100)
	if r.Limit != 100 {
		t.Errorf("Limit = %v, want override fill rate 100, not burst size 50", r.Limit)
	}
}

func TestCheck_SeparateIdentitiesIndependent(t *testing.T) {
	t.Parallel()

	l := New(true, Defaults{RequestsPerSecond: 1, BurstSize: 1})
	l.Check("u1", 0, 0)
	r := l.Check("u2", 0, 0)
	if !r.Allowed {
		t.Errorf("Check(u2) = %+v, want allowed (independent bucket)", r)
	}
	if l.TrackedIdentities() != 2 {
		t.Errorf("TrackedIdentities() = %d, want 2", l.TrackedIdentities())
	}
}

func TestBucket_RefillsOverTime(t *testing.T) {
	t.Parallel()

	b := newBucket(1, 10, time.Unix(0, 0))
	first := b.check(time.Unix(0, 0))
	if !first.Allowed {
		t.Fatalf("first check = %+v, want allowed", first)
	}
	denied := b.check(time.Unix(0, 0))
	if denied.Allowed {
		t.Fatalf("immediate second check = %+v, want denied", denied)
	}

	later := time.Unix(0, 0).Add(200 * time.Millisecond)
	refilled := b.check(later)
	if !refilled.Allowed {
		t.Errorf("check after refill window = %+v, want allowed", refilled)
	}
}

func TestEvictIdle_RemovesStaleBuckets(t *testing.T) {
	t.Parallel()

	l := New(true, Defaults{RequestsPerSecond: 1, BurstSize: 1})
	l.Check("u1", 0, 0)
	if l.TrackedIdentities() != 1 {
		t.Fatalf("TrackedIdentities() = %d, want 1", l.TrackedIdentities())
	}

	l.evictIdle(time.Now().Add(2 * time.Hour))
	if l.TrackedIdentities() != 0 {
		t.Errorf("TrackedIdentities() = %d, want 0 after eviction sweep", l.TrackedIdentities())
	}
}

func TestStartStop_DisabledIsNoop(t *testing.T) {
	t.Parallel()

	l := New(false, Defaults{})
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	l.Start(ctx, time.Millisecond)
	l.Stop()
	l.Stop() // safe to call twice
}
