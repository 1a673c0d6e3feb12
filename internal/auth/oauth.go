package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/cespare/xxhash/v2"

	"github.com/mcpguard/gateway/internal/gatewayerr"
	"github.com/mcpguard/gateway/internal/identity"
	"github.com/mcpguard/gateway/internal/keyset"
)

// OAuthConfig configures the delegated-authorization (PKCE) provider.
type OAuthConfig struct {
	Provider         string
	ClientID         string
	ClientSecret     string
	AuthorizationURL string
	TokenURL         string
	IntrospectionURL string
	UserInfoURL      string
	RedirectURI      string
	Scopes           []string
	UserIDClaim      string
	ScopeMappings    []ScopeMapping
}

// TokenHash returns the cache key for an opaque access token: a fast,
// non-cryptographic digest is fine here since the token has already cleared
// the identity provider, unlike a PSK digest comparison.
func TokenHash(token string) string {
	return strconv.FormatUint(xxhash.Sum64String(token), 16)
}

// DelegatedAuthProvider performs the delegated-authorization bearer check:
// an access token (or gateway-minted session token) is looked up in the
// introspection cache; on a miss it is validated against the identity
// provider's introspection endpoint, falling back to the user-info
// endpoint, and the result is cached for up to 5 minutes.
type DelegatedAuthProvider struct {
	cfg      OAuthConfig
	mappings []resolvedMapping
	cache    *keyset.IntrospectionCache
	client   *http.Client
}

// NewDelegatedAuthProvider wires a provider over a shared introspection
// cache and HTTP client; the client is expected to carry the gateway's
// SSRF-safe dialer.
func NewDelegatedAuthProvider(cfg OAuthConfig, cache *keyset.IntrospectionCache, client *http.Client) (*DelegatedAuthProvider, error) {
	mappings, err := ResolveMappings(cfg.ScopeMappings)
	if err != nil {
		return nil, err
	}
	if client == nil {
		client = http.DefaultClient
	}
	return &DelegatedAuthProvider{cfg: cfg, mappings: mappings, cache: cache, client: client}, nil
}

func (p *DelegatedAuthProvider) Name() string { return "oauth" }

func (p *DelegatedAuthProvider) Authenticate(ctx context.Context, token string) (identity.Identity, *gatewayerr.Error) {
	hash := TokenHash(token)
	if id, ok := p.cache.Get(hash); ok {
		return id, nil
	}

	id, expiresAt, gerr := p.introspect(ctx, token)
	if gerr != nil {
		return identity.Identity{}, gerr
	}
	p.cache.Put(hash, id, expiresAt)
	return id, nil
}

func (p *DelegatedAuthProvider) introspect(ctx context.Context, token string) (identity.Identity, time.Time, *gatewayerr.Error) {
	if p.cfg.IntrospectionURL != "" {
		return p.introspectVia(ctx, p.cfg.IntrospectionURL, token, true)
	}
	if p.cfg.UserInfoURL != "" {
		return p.introspectVia(ctx, p.cfg.UserInfoURL, token, false)
	}
	return identity.Identity{}, time.Time{}, gatewayerr.New(gatewayerr.IntrospectionFailed, "no introspection or userinfo endpoint configured")
}

func (p *DelegatedAuthProvider) introspectVia(ctx context.Context, url, token string, isIntrospection bool) (identity.Identity, time.Time, *gatewayerr.Error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return identity.Identity{}, time.Time{}, gatewayerr.New(gatewayerr.IntrospectionFailed, err.Error())
	}
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := p.client.Do(req)
	if err != nil {
		return identity.Identity{}, time.Time{}, gatewayerr.New(gatewayerr.IntrospectionFailed, err.Error())
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return identity.Identity{}, time.Time{}, gatewayerr.New(gatewayerr.IntrospectionFailed, "endpoint returned non-200")
	}

	var claims map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&claims); err != nil {
		return identity.Identity{}, time.Time{}, gatewayerr.New(gatewayerr.IntrospectionFailed, err.Error())
	}

	if isIntrospection {
		if active, ok := claims["active"].(bool); ok && !active {
			return identity.Identity{}, time.Time{}, gatewayerr.New(gatewayerr.TokenExpired, "token introspection reports inactive")
		}
	}

	userIDClaim := p.cfg.UserIDClaim
	if userIDClaim == "" {
		userIDClaim = "sub"
	}
	sub, _ := claims[userIDClaim].(string)
	if sub == "" {
		return identity.Identity{}, time.Time{}, gatewayerr.New(gatewayerr.IntrospectionFailed, "missing subject claim in introspection response")
	}

	var expiresAt time.Time
	if expF, ok := claims["exp"].(float64); ok {
		expiresAt = time.Unix(int64(expF), 0)
	}

	id := identity.Identity{
		ID:       sub,
		Claims:   claims,
		Provider: p.Name(),
	}
	scopes := ParseScopes(claims["scope"])
	id.AllowedTools = AllowedToolsFromScopes(p.mappings, scopes, claims)

	return id, expiresAt, nil
}
