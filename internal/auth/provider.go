// Package auth implements the five authentication providers and the
// multiplexer that dispatches between them.
package auth

import (
	"context"
	"net"

	"github.com/mcpguard/gateway/internal/gatewayerr"
	"github.com/mcpguard/gateway/internal/identity"
)

// CertHeaders carries the client-certificate-derived proxy headers. Present
// is false when none of the headers were sent.
type CertHeaders struct {
	Present        bool
	CommonName     string
	SANDNS         []string
	SANEmail       []string
	VerifiedHeader string // expected literal "SUCCESS"
}

// RequestMetadata is the input to the authentication multiplexer: everything
// a provider might need, gathered once per request by the HTTP layer.
type RequestMetadata struct {
	// BearerToken is the token carried by "Authorization: Bearer <token>",
	// empty if the header was absent or a different scheme.
	BearerToken string

	Cert CertHeaders

	// ClientAddr is the caller's socket address (host:port or bare host).
	ClientAddr string
}

// ClientIP returns the host portion of ClientAddr, or ClientAddr unchanged if
// it carries no port.
func (m RequestMetadata) ClientIP() string {
	host, _, err := net.SplitHostPort(m.ClientAddr)
	if err != nil {
		return m.ClientAddr
	}
	return host
}

// BearerProvider is implemented by the four bearer-credential providers.
// Name is used as the `provider` label on mcp_guard_auth_total.
type BearerProvider interface {
	Name() string
	Authenticate(ctx context.Context, token string) (identity.Identity, *gatewayerr.Error)
}

// CertProvider is implemented by the mTLS-via-proxy-header provider.
type CertProvider interface {
	Authenticate(ctx context.Context, meta RequestMetadata) (identity.Identity, *gatewayerr.Error)
}
