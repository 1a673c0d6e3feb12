package auth

import (
	"context"
	"fmt"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mcpguard/gateway/internal/gatewayerr"
	"github.com/mcpguard/gateway/internal/identity"
	"github.com/mcpguard/gateway/internal/keyset"
)

// AsymmetricJWTConfig configures the remote-key-set signed-token provider.
type AsymmetricJWTConfig struct {
	Issuer        string
	Audience      string
	UserIDClaim   string
	ScopesClaim   string
	LeewaySeconds int
	Algorithms    []string // allow-list; e.g. "RS256"
	ScopeMappings []ScopeMapping
}

// AsymmetricJWTProvider verifies tokens against a remote key set, selecting
// the verification key by the token's "kid" header.
type AsymmetricJWTProvider struct {
	cfg      AsymmetricJWTConfig
	mappings []resolvedMapping
	keys     *keyset.Fetcher
	allowed  map[string]struct{}
}

// NewAsymmetricJWTProvider binds the provider to an already-constructed key
// set fetcher; the fetcher's own lifecycle (first fetch, background
// refresh) is managed by the composition root.
func NewAsymmetricJWTProvider(cfg AsymmetricJWTConfig, keys *keyset.Fetcher) (*AsymmetricJWTProvider, error) {
	mappings, err := ResolveMappings(cfg.ScopeMappings)
	if err != nil {
		return nil, err
	}
	allowed := make(map[string]struct{}, len(cfg.Algorithms))
	for _, a := range cfg.Algorithms {
		allowed[a] = struct{}{}
	}
	return &AsymmetricJWTProvider{cfg: cfg, mappings: mappings, keys: keys, allowed: allowed}, nil
}

func (p *AsymmetricJWTProvider) Name() string { return "jwt" }

func (p *AsymmetricJWTProvider) Authenticate(_ context.Context, token string) (identity.Identity, *gatewayerr.Error) {
	keyFunc := func(t *jwt.Token) (any, error) {
		alg, _ := t.Header["alg"].(string)
		if len(p.allowed) > 0 {
			if _, ok := p.allowed[alg]; !ok {
				return nil, fmt.Errorf("algorithm %q not in configured allow-list", alg)
			}
		}
		return p.keys.Keyfunc(t)
	}
	return verifyJWTClaims(token, keyFunc, p.cfg.Issuer, p.cfg.Audience, p.cfg.LeewaySeconds, p.cfg.UserIDClaim, p.cfg.ScopesClaim, p.mappings, p.Name())
}
