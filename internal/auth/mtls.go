package auth

import (
	"context"
	"net"

	"github.com/mcpguard/gateway/internal/gatewayerr"
	"github.com/mcpguard/gateway/internal/identity"
)

// IdentitySource selects which client-certificate-derived field names the
// identity.
type IdentitySource string

const (
	SourceCommonName IdentitySource = "common_name"
	SourceSANDNS     IdentitySource = "san_dns"
	SourceSANEmail   IdentitySource = "san_email"
)

// MTLSConfig configures the client-certificate-via-proxy-header provider.
type MTLSConfig struct {
	IdentitySource    IdentitySource
	AllowedTools      []string
	RateLimit         float64
	BurstSize         float64
	TrustedProxyCIDRs []string
}

// MTLSProvider authenticates client-certificate-via-proxy-header requests.
// With an empty trusted-proxy list it is inert by construction: zero
// configured trust nets makes every Authenticate call fail
// CertHeaderNotTrusted regardless of header content, the anti-spoofing
// default.
type MTLSProvider struct {
	cfg   MTLSConfig
	trust []*net.IPNet
}

// NewMTLSProvider parses the configured trusted-proxy CIDR ranges once.
func NewMTLSProvider(cfg MTLSConfig) (*MTLSProvider, error) {
	nets := make([]*net.IPNet, 0, len(cfg.TrustedProxyCIDRs))
	for _, c := range cfg.TrustedProxyCIDRs {
		_, n, err := net.ParseCIDR(c)
		if err != nil {
			return nil, err
		}
		nets = append(nets, n)
	}
	return &MTLSProvider{cfg: cfg, trust: nets}, nil
}

func (p *MTLSProvider) trusted(clientIP string) bool {
	ip := net.ParseIP(clientIP)
	if ip == nil {
		return false
	}
	for _, n := range p.trust {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// Authenticate rejects every request when the trusted-proxy list is empty,
// regardless of the Verified header's value.
func (p *MTLSProvider) Authenticate(_ context.Context, meta RequestMetadata) (identity.Identity, *gatewayerr.Error) {
	if len(p.trust) == 0 {
		return identity.Identity{}, gatewayerr.New(gatewayerr.CertHeaderNotTrusted, "no trusted proxy ips configured")
	}
	if !meta.Cert.Present {
		return identity.Identity{}, gatewayerr.New(gatewayerr.CertHeaderNotTrusted, "no client certificate headers present")
	}
	if !p.trusted(meta.ClientIP()) {
		return identity.Identity{}, gatewayerr.New(gatewayerr.CertHeaderNotTrusted, "client address not in trusted proxy range")
	}
	if meta.Cert.VerifiedHeader != "SUCCESS" {
		return identity.Identity{}, gatewayerr.New(gatewayerr.CertHeaderNotTrusted, "proxy did not report chain verification success")
	}

	var subject string
	switch p.cfg.IdentitySource {
	case SourceSANDNS:
		if len(meta.Cert.SANDNS) > 0 {
			subject = meta.Cert.SANDNS[0]
		}
	case SourceSANEmail:
		if len(meta.Cert.SANEmail) > 0 {
			subject = meta.Cert.SANEmail[0]
		}
	default:
		subject = meta.Cert.CommonName
	}
	if subject == "" {
		return identity.Identity{}, gatewayerr.New(gatewayerr.CertHeaderNotTrusted, "configured identity source field is empty")
	}

	id := identity.Identity{
		ID:        subject,
		RateLimit: p.cfg.RateLimit,
		BurstSize: p.cfg.BurstSize,
		Provider:  "mtls",
	}
	if p.cfg.AllowedTools != nil {
		id.AllowedTools = identity.ToolSet(p.cfg.AllowedTools)
	}
	return id, nil
}
