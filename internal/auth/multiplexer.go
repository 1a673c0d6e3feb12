package auth

import (
	"context"
	"strings"

	"github.com/mcpguard/gateway/internal/gatewayerr"
	"github.com/mcpguard/gateway/internal/identity"
)

// Multiplexer composes the five providers behind a single
// authenticate(request_metadata) operation.
type Multiplexer struct {
	cert    CertProvider
	bearers []BearerProvider // fixed order: psk, jwt-symmetric, jwt-asymmetric, oauth
}

// NewMultiplexer builds a multiplexer. cert may be nil if mTLS is not
// configured at all (equivalent to an always-inert provider). bearers should
// already be in the fixed precedence order: psk, jwt-symmetric,
// jwt-asymmetric, oauth.
func NewMultiplexer(cert CertProvider, bearers []BearerProvider) *Multiplexer {
	return &Multiplexer{cert: cert, bearers: bearers}
}

// Authenticate applies the provider-order rule: certificate headers from a
// trusted proxy take precedence; otherwise each configured
// bearer provider is tried in order and the first success wins. When every
// bearer provider rejects, the most specific non-MissingCredentials error
// is surfaced (gatewayerr.MostSpecific).
func (m *Multiplexer) Authenticate(ctx context.Context, meta RequestMetadata) (identity.Identity, *gatewayerr.Error) {
	if meta.Cert.Present && m.cert != nil {
		id, err := m.cert.Authenticate(ctx, meta)
		if err == nil {
			return id, nil
		}
		// A present-but-rejected cert bundle does not fall through to
		// bearer providers when there is no bearer token at all.
		if meta.BearerToken == "" {
			return identity.Identity{}, err
		}
	}

	if meta.BearerToken == "" {
		return identity.Identity{}, gatewayerr.New(gatewayerr.MissingCredentials, "no bearer token presented")
	}

	if len(m.bearers) == 0 {
		return identity.Identity{}, gatewayerr.New(gatewayerr.NoProviderConfigured, "no bearer providers configured")
	}

	errs := make([]*gatewayerr.Error, 0, len(m.bearers))
	for _, p := range m.bearers {
		id, err := p.Authenticate(ctx, meta.BearerToken)
		if err == nil {
			return id, nil
		}
		errs = append(errs, err)
	}
	return identity.Identity{}, gatewayerr.MostSpecific(errs)
}

// ExtractBearer pulls the token out of an "Authorization: Bearer <token>"
// header value. Returns "" for any other scheme or an empty header.
func ExtractBearer(authorizationHeader string) string {
	const prefix = "Bearer "
	if !strings.HasPrefix(authorizationHeader, prefix) {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(authorizationHeader, prefix))
}
