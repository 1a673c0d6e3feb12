package auth

import (
	"context"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/mcpguard/gateway/internal/gatewayerr"
	"github.com/mcpguard/gateway/internal/identity"
)

// SymmetricJWTConfig configures the shared-secret signed-token provider
// (HS256 family).
type SymmetricJWTConfig struct {
	Secret        string
	Issuer        string
	Audience      string
	UserIDClaim   string // default "sub"
	ScopesClaim   string
	LeewaySeconds int
	ScopeMappings []ScopeMapping
}

// SymmetricJWTProvider verifies HMAC-signed tokens against a shared secret.
type SymmetricJWTProvider struct {
	cfg      SymmetricJWTConfig
	mappings []resolvedMapping
	keyFunc  jwt.Keyfunc
}

// NewSymmetricJWTProvider compiles the provider's scope-mapping conditions
// once; returns an error if any CEL expression fails to compile.
func NewSymmetricJWTProvider(cfg SymmetricJWTConfig) (*SymmetricJWTProvider, error) {
	mappings, err := ResolveMappings(cfg.ScopeMappings)
	if err != nil {
		return nil, err
	}
	secret := []byte(cfg.Secret)
	return &SymmetricJWTProvider{
		cfg:      cfg,
		mappings: mappings,
		keyFunc: func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, gatewayerr.New(gatewayerr.InvalidJWT, "unexpected signing method")
			}
			return secret, nil
		},
	}, nil
}

func (p *SymmetricJWTProvider) Name() string { return "jwt" }

// Authenticate parses and verifies token against the shared secret.
func (p *SymmetricJWTProvider) Authenticate(_ context.Context, token string) (identity.Identity, *gatewayerr.Error) {
	return verifyJWTClaims(token, p.keyFunc, p.cfg.Issuer, p.cfg.Audience, p.cfg.LeewaySeconds, p.cfg.UserIDClaim, p.cfg.ScopesClaim, p.mappings, p.Name())
}

// verifyJWTClaims is shared by the symmetric and asymmetric providers: once
// the key is resolved, claim validation (iss/aud/exp/nbf/leeway) and
// allowed_tools derivation are identical.
func verifyJWTClaims(token string, keyFunc jwt.Keyfunc, issuer, audience string, leewaySeconds int, userIDClaim, scopesClaim string, mappings []resolvedMapping, provider string) (identity.Identity, *gatewayerr.Error) {
	if userIDClaim == "" {
		userIDClaim = "sub"
	}
	leeway := time.Duration(leewaySeconds) * time.Second

	opts := []jwt.ParserOption{jwt.WithLeeway(leeway)}
	if issuer != "" {
		opts = append(opts, jwt.WithIssuer(issuer))
	}
	if audience != "" {
		opts = append(opts, jwt.WithAudience(audience))
	}

	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, keyFunc, opts...)
	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return identity.Identity{}, gatewayerr.New(gatewayerr.TokenExpired, err.Error())
		case errors.Is(err, jwt.ErrTokenInvalidIssuer):
			return identity.Identity{}, gatewayerr.New(gatewayerr.InvalidIssuer, err.Error())
		case errors.Is(err, jwt.ErrTokenInvalidAudience):
			return identity.Identity{}, gatewayerr.New(gatewayerr.InvalidAudience, err.Error())
		default:
			return identity.Identity{}, gatewayerr.New(gatewayerr.InvalidJWT, err.Error())
		}
	}
	if !parsed.Valid {
		return identity.Identity{}, gatewayerr.New(gatewayerr.InvalidJWT, "token not valid")
	}

	sub, _ := claims[userIDClaim].(string)
	if sub == "" {
		return identity.Identity{}, gatewayerr.New(gatewayerr.InvalidJWT, "missing subject claim")
	}

	id := identity.Identity{
		ID:       sub,
		Claims:   map[string]any(claims),
		Provider: provider,
	}

	if scopesClaim != "" {
		scopes := ParseScopes(claims[scopesClaim])
		id.AllowedTools = AllowedToolsFromScopes(mappings, scopes, id.Claims)
	}

	return id, nil
}

