// Package keyset implements the remote key-set fetcher, the token
// introspection cache, and the PKCE state store.
package keyset

import (
	"context"
	"crypto/rsa"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// jwk is the subset of RFC 7517 fields the gateway needs to build an RSA
// public key. EC/OKP keys are out of scope — the configured algorithm list
// is expected to name RSA variants when JWKS is in use.
type jwk struct {
	Kty string `json:"kty"`
	Kid string `json:"kid"`
	N   string `json:"n"`
	E   string `json:"e"`
}

type jwksDoc struct {
	Keys []jwk `json:"keys"`
}

// snapshot is one fetched-and-parsed key set, immutable once built.
type snapshot struct {
	byKid     map[string]*rsa.PublicKey
	solo      *rsa.PublicKey // set iff exactly one key was present
	fetchedAt time.Time
	ttl       time.Duration
}

func (s *snapshot) expired(now time.Time) bool {
	return now.Sub(s.fetchedAt) >= s.ttl
}

func (s *snapshot) refreshDue(now time.Time) bool {
	return now.Sub(s.fetchedAt) >= (s.ttl*75)/100
}

// Fetcher fetches, caches and background-refreshes a remote JWKS document:
// a first synchronous fetch at construction, a background refresh at 75%
// of TTL, and fail-open on refresh failure until TTL elapses.
type Fetcher struct {
	url    string
	ttl    time.Duration
	client *http.Client

	mu   sync.RWMutex
	cur  *snapshot

	cancel context.CancelFunc
}

// NewFetcher performs the mandatory first fetch (10-second deadline) and
// returns an error if it fails — there is no prior cache to fall back to.
func NewFetcher(ctx context.Context, url string, ttl time.Duration, client *http.Client) (*Fetcher, error) {
	if ttl <= 0 {
		ttl = time.Hour
	}
	if client == nil {
		client = http.DefaultClient
	}
	f := &Fetcher{url: url, ttl: ttl, client: client}
	fetchCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	snap, err := f.fetch(fetchCtx)
	if err != nil {
		return nil, err
	}
	f.mu.Lock()
	f.cur = snap
	f.mu.Unlock()
	return f, nil
}

// Start launches the background refresh loop, checking for the 75%-of-TTL
// threshold on a short poll interval.
func (f *Fetcher) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	f.cancel = cancel
	go f.refreshLoop(ctx)
}

// Stop terminates the background refresh loop.
func (f *Fetcher) Stop() {
	if f.cancel != nil {
		f.cancel()
	}
}

func (f *Fetcher) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			f.mu.RLock()
			due := f.cur != nil && f.cur.refreshDue(now)
			f.mu.RUnlock()
			if !due {
				continue
			}
			fetchCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			snap, err := f.fetch(fetchCtx)
			cancel()
			if err != nil {
				// Retain prior keys; fail open until TTL elapses.
				continue
			}
			f.mu.Lock()
			f.cur = snap
			f.mu.Unlock()
		}
	}
}

func (f *Fetcher) fetch(ctx context.Context) (*snapshot, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("jwks fetch: unexpected status %d", resp.StatusCode)
	}

	var doc jwksDoc
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, err
	}

	byKid := make(map[string]*rsa.PublicKey, len(doc.Keys))
	var solo *rsa.PublicKey
	for _, k := range doc.Keys {
		if k.Kty != "RSA" {
			continue
		}
		pub, err := parseRSAPublicKey(k.N, k.E)
		if err != nil {
			continue
		}
		byKid[k.Kid] = pub
		if len(doc.Keys) == 1 {
			solo = pub
		}
	}

	return &snapshot{byKid: byKid, solo: solo, fetchedAt: time.Now(), ttl: f.ttl}, nil
}

// ErrNoKey is returned when Lookup cannot resolve a usable key.
type ErrNoKey struct {
	Reason string
}

func (e *ErrNoKey) Error() string { return e.Reason }

// ErrStale is returned when the cached key set has outlived its TTL with no
// successful refresh.
var ErrStale = &ErrNoKey{Reason: "key set stale: refresh has failed past TTL"}

// Lookup resolves a public key by kid. An empty kid resolves only if the key
// set holds exactly one key.
func (f *Fetcher) Lookup(kid string) (*rsa.PublicKey, error) {
	f.mu.RLock()
	snap := f.cur
	f.mu.RUnlock()
	if snap == nil {
		return nil, &ErrNoKey{Reason: "key set not yet fetched"}
	}
	if snap.expired(time.Now()) {
		return nil, ErrStale
	}
	if kid == "" {
		if snap.solo != nil {
			return snap.solo, nil
		}
		return nil, &ErrNoKey{Reason: "missing key id and key set has more than one key"}
	}
	if key, ok := snap.byKid[kid]; ok {
		return key, nil
	}
	return nil, &ErrNoKey{Reason: "no key for kid " + kid}
}

// Keyfunc adapts Lookup to golang-jwt's Keyfunc signature.
func (f *Fetcher) Keyfunc(t *jwt.Token) (any, error) {
	kid, _ := t.Header["kid"].(string)
	return f.Lookup(kid)
}
