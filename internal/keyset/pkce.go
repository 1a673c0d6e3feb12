package keyset

import (
	"container/list"
	"sync"
	"time"
)

// pkceMaxPending is the hard cap on the PKCE state store: pending state
// count never exceeds 10,000.
const pkceMaxPending = 10000

// pkceMaxAge is how long a state may sit unclaimed before it is treated as
// expired on access.
const pkceMaxAge = 10 * time.Minute

// PKCEState is the record created by /authorize and consumed by /callback.
type PKCEState struct {
	State       string
	Verifier    string
	RedirectURI string
	ClientIP    string
	ExpiresAt   time.Time
}

type pkceEntry struct {
	state PKCEState
	elem  *list.Element // position in the insertion-order eviction list
}

// PKCEStore is the bounded, FIFO-evicting PKCE state store. It deliberately
// does not use the otter LRU cache: eviction at the 10,000 cap must remove
// exactly the single oldest entry, which an approximate/sampled-LRU cache
// cannot guarantee.
type PKCEStore struct {
	mu      sync.Mutex
	entries map[string]*pkceEntry
	order   *list.List // front = oldest
}

// NewPKCEStore builds an empty store.
func NewPKCEStore() *PKCEStore {
	return &PKCEStore{
		entries: make(map[string]*pkceEntry),
		order:   list.New(),
	}
}

// Put inserts a new state, bound to clientIP and expiring after pkceMaxAge.
// If the store is at capacity, the single oldest entry is evicted first.
func (s *PKCEStore) Put(state, verifier, redirectURI, clientIP string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.entries) >= pkceMaxPending {
		s.evictOldestLocked()
	}

	rec := PKCEState{
		State:       state,
		Verifier:    verifier,
		RedirectURI: redirectURI,
		ClientIP:    clientIP,
		ExpiresAt:   time.Now().Add(pkceMaxAge),
	}
	elem := s.order.PushBack(state)
	s.entries[state] = &pkceEntry{state: rec, elem: elem}
}

func (s *PKCEStore) evictOldestLocked() {
	front := s.order.Front()
	if front == nil {
		return
	}
	s.order.Remove(front)
	delete(s.entries, front.Value.(string))
}

// ErrPKCENotFound means no state exists for the key, or it expired and was
// swept, or it was already consumed.
var ErrPKCENotFound = errPKCE("pkce state not found")

// ErrPKCEIPMismatch means the state exists and is unexpired, but the requesting
// client's IP does not match the IP captured at /authorize.
var ErrPKCEIPMismatch = errPKCE("pkce state client ip mismatch")

type errPKCE string

func (e errPKCE) Error() string { return string(e) }

// Take validates and atomically deletes the state for (state, clientIP),
// enforcing single-use plus IP-binding: the state is destroyed whether or
// not the IP matches, so a replayed `code` can never succeed even from the
// right IP after a first consumption attempt.
func (s *PKCEStore) Take(state, clientIP string) (PKCEState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.entries[state]
	if !ok {
		return PKCEState{}, ErrPKCENotFound
	}
	s.removeLocked(state, entry)

	if time.Now().After(entry.state.ExpiresAt) {
		return PKCEState{}, ErrPKCENotFound
	}
	if entry.state.ClientIP != clientIP {
		return PKCEState{}, ErrPKCEIPMismatch
	}
	return entry.state, nil
}

func (s *PKCEStore) removeLocked(state string, entry *pkceEntry) {
	s.order.Remove(entry.elem)
	delete(s.entries, state)
}

// SweepExpired removes states older than pkceMaxAge that were never
// consumed. Safe to call periodically from a background goroutine; Take
// already self-sweeps on access so this is a best-effort memory reclaimer.
func (s *PKCEStore) SweepExpired() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	removed := 0
	for e := s.order.Front(); e != nil; {
		next := e.Next()
		state := e.Value.(string)
		entry := s.entries[state]
		if entry != nil && now.After(entry.state.ExpiresAt) {
			s.order.Remove(e)
			delete(s.entries, state)
			removed++
		}
		e = next
	}
	return removed
}

// Size returns the current pending-state count.
func (s *PKCEStore) Size() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
