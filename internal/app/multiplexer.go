package app

import (
	"context"
	"net/http"
	"time"

	"github.com/mcpguard/gateway/internal/auth"
	"github.com/mcpguard/gateway/internal/config"
	"github.com/mcpguard/gateway/internal/keyset"
)

// buildMultiplexer wires each configured provider in fixed precedence order:
// pre-shared key, symmetric JWT, asymmetric JWT, OAuth. oauthProvider is
// built once by the caller and shared with the PKCE callback handler so a
// token minted by /oauth/callback is already resolved in the introspection
// cache the bearer path reads from.
func buildMultiplexer(ctx context.Context, cfg *config.Config, httpClient *http.Client, oauthProvider *auth.DelegatedAuthProvider) (*auth.Multiplexer, error) {
	var bearers []auth.BearerProvider

	if len(cfg.Auth.APIKeys) > 0 {
		records := make([]auth.KeyRecord, 0, len(cfg.Auth.APIKeys))
		for _, k := range cfg.Auth.APIKeys {
			records = append(records, auth.KeyRecord{
				ID:           k.ID,
				Digest:       k.KeyHash,
				AllowedTools: k.AllowedTools,
				RateLimit:    k.RateLimit,
			})
		}
		bearers = append(bearers, auth.NewPreSharedKeyProvider(records))
	}

	if cfg.Auth.JWT.Mode == "symmetric" {
		p, err := auth.NewSymmetricJWTProvider(auth.SymmetricJWTConfig{
			Secret:        cfg.Auth.JWT.Secret,
			Issuer:        cfg.Auth.JWT.Issuer,
			Audience:      cfg.Auth.JWT.Audience,
			UserIDClaim:   cfg.Auth.JWT.UserIDClaim,
			ScopesClaim:   cfg.Auth.JWT.ScopesClaim,
			LeewaySeconds: cfg.Auth.JWT.LeewaySecs,
			ScopeMappings: scopeMappings(cfg.Auth.JWT.ScopeToolMapping),
		})
		if err != nil {
			return nil, err
		}
		bearers = append(bearers, p)
	}

	if cfg.Auth.JWT.Mode == "asymmetric" {
		ttl := time.Duration(cfg.Auth.JWT.CacheDurationSecs) * time.Second
		fetcher, err := keyset.NewFetcher(ctx, cfg.Auth.JWT.JWKSURL, ttl, httpClient)
		if err != nil {
			return nil, err
		}
		fetcher.Start(ctx)
		p, err := auth.NewAsymmetricJWTProvider(auth.AsymmetricJWTConfig{
			Issuer:        cfg.Auth.JWT.Issuer,
			Audience:      cfg.Auth.JWT.Audience,
			UserIDClaim:   cfg.Auth.JWT.UserIDClaim,
			ScopesClaim:   cfg.Auth.JWT.ScopesClaim,
			LeewaySeconds: cfg.Auth.JWT.LeewaySecs,
			Algorithms:    cfg.Auth.JWT.Algorithms,
			ScopeMappings: scopeMappings(cfg.Auth.JWT.ScopeToolMapping),
		}, fetcher)
		if err != nil {
			return nil, err
		}
		bearers = append(bearers, p)
	}

	if oauthProvider != nil {
		bearers = append(bearers, oauthProvider)
	}

	var cert auth.CertProvider
	if cfg.Auth.MTLS.Enabled {
		p, err := auth.NewMTLSProvider(auth.MTLSConfig{
			IdentitySource:    auth.IdentitySource(cfg.Auth.MTLS.IdentitySource),
			AllowedTools:      cfg.Auth.MTLS.AllowedTools,
			RateLimit:         cfg.Auth.MTLS.RateLimit,
			TrustedProxyCIDRs: cfg.Auth.MTLS.TrustedProxyIPs,
		})
		if err != nil {
			return nil, err
		}
		cert = p
	}

	return auth.NewMultiplexer(cert, bearers), nil
}

func scopeMappings(specs []config.ScopeMappingSpec) []auth.ScopeMapping {
	out := make([]auth.ScopeMapping, 0, len(specs))
	for _, s := range specs {
		out = append(out, auth.ScopeMapping{Scope: s.Scope, Tools: s.Tools, Condition: s.Condition})
	}
	return out
}
