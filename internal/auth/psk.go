package auth

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"strings"

	"github.com/alexedwards/argon2id"

	"github.com/mcpguard/gateway/internal/gatewayerr"
	"github.com/mcpguard/gateway/internal/identity"
)

// KeyRecord is a configured pre-shared key: {id, digest, allowed_tools?,
// rate_limit?}. Digest is the stored hash of the raw key.
type KeyRecord struct {
	ID           string
	Digest       string
	AllowedTools []string
	RateLimit    float64
	BurstSize    float64
}

// argon2idParams are OWASP-minimum Argon2id parameters.
var argon2idParams = &argon2id.Params{
	Memory:      47 * 1024,
	Iterations:  1,
	Parallelism: 1,
	SaltLength:  16,
	KeyLength:   32,
}

// HashKeyCanonical returns the canonical digest form for a freshly minted
// key: SHA-256, URL-safe base64, no padding.
func HashKeyCanonical(rawKey string) string {
	sum := sha256.Sum256([]byte(rawKey))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// HashKeyArgon2id returns a PHC-format Argon2id hash, offered for operators
// who want a memory-hard KDF over the raw key instead of a bare digest.
func HashKeyArgon2id(rawKey string) (string, error) {
	return argon2id.CreateHash(rawKey, argon2idParams)
}

func isArgon2idHash(digest string) bool {
	return strings.HasPrefix(digest, "$argon2id$")
}

// decodeSHA256Digest accepts URL-safe base64 (padded or unpadded) or
// standard base64, since operators may have minted digests with either.
func decodeSHA256Digest(digest string) ([]byte, bool) {
	for _, enc := range []*base64.Encoding{base64.RawURLEncoding, base64.URLEncoding, base64.RawStdEncoding, base64.StdEncoding} {
		if b, err := enc.DecodeString(digest); err == nil && len(b) == sha256.Size {
			return b, true
		}
	}
	return nil, false
}

// verifyKey reports whether rawKey matches storedDigest. SHA-256 digests are
// compared in constant time over their decoded bytes; every byte is examined
// regardless of mismatch position. Argon2id digests delegate to the
// library's own constant-time comparison.
func verifyKey(rawKey, storedDigest string) bool {
	if isArgon2idHash(storedDigest) {
		match, err := safeArgon2idCompare(rawKey, storedDigest)
		return err == nil && match
	}

	want, ok := decodeSHA256Digest(storedDigest)
	if !ok {
		return false
	}
	got := sha256.Sum256([]byte(rawKey))
	return subtle.ConstantTimeCompare(got[:], want) == 1
}

// safeArgon2idCompare recovers from the argon2id library's panic on
// malformed PHC parameters (t=0, p=0, ...), converting it to a plain
// not-matched result instead of crashing the request.
func safeArgon2idCompare(rawKey, storedHash string) (match bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			match, err = false, nil
		}
	}()
	return argon2id.ComparePasswordAndHash(rawKey, storedHash)
}

// PreSharedKeyProvider authenticates bearer tokens by constant-time digest
// comparison against every configured record.
type PreSharedKeyProvider struct {
	records []KeyRecord
}

// NewPreSharedKeyProvider builds a provider over a fixed set of key records.
func NewPreSharedKeyProvider(records []KeyRecord) *PreSharedKeyProvider {
	return &PreSharedKeyProvider{records: records}
}

func (p *PreSharedKeyProvider) Name() string { return "api_key" }

// Authenticate iterates every configured record and compares digests in
// constant time; the loop does not short-circuit on the first candidate so
// total comparison time does not leak which record (if any) was closest.
func (p *PreSharedKeyProvider) Authenticate(_ context.Context, token string) (identity.Identity, *gatewayerr.Error) {
	var matched *KeyRecord
	for i := range p.records {
		rec := &p.records[i]
		if verifyKey(token, rec.Digest) {
			matched = rec
		}
	}
	if matched == nil {
		return identity.Identity{}, gatewayerr.New(gatewayerr.InvalidAPIKey, "no matching key record")
	}

	id := identity.Identity{
		ID:        matched.ID,
		RateLimit: matched.RateLimit,
		BurstSize: matched.BurstSize,
		Provider:  p.Name(),
	}
	if matched.AllowedTools != nil {
		id.AllowedTools = identity.ToolSet(matched.AllowedTools)
	}
	return id, nil
}
