package transport

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/rs/dnscache"
)

// blockedNetworks enumerates the private, loopback, and link-local ranges
// the HTTP/SSE transports reject, including the cloud metadata address's
// /16.
var blockedNetworks []*net.IPNet

func init() {
	for _, cidr := range []string{
		"127.0.0.0/8",
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"169.254.0.0/16", // covers the metadata address 169.254.169.254
		"::1/128",
		"fd00::/8",
		"fe80::/10",
	} {
		_, n, err := net.ParseCIDR(cidr)
		if err != nil {
			panic("invalid CIDR in blockedNetworks: " + cidr)
		}
		blockedNetworks = append(blockedNetworks, n)
	}
}

func isBlockedIP(ip net.IP) bool {
	for _, n := range blockedNetworks {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}

// SSRFSafeDialer returns a DialContext that resolves via a caching resolver,
// rejects any resolved address in a blocked range, and pins the dial to the
// first accepted address (so a second DNS answer observed after the check
// can never be substituted in — this is what defeats rebinding).
func SSRFSafeDialer(resolver *dnscache.Resolver) func(ctx context.Context, network, addr string) (net.Conn, error) {
	dialer := &net.Dialer{Timeout: 30 * time.Second, KeepAlive: 30 * time.Second}

	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, fmt.Errorf("ssrf: invalid address %q: %w", addr, err)
		}

		ips, err := resolver.LookupHost(ctx, host)
		if err != nil {
			return nil, fmt.Errorf("ssrf: dns resolution failed for %q: %w", host, err)
		}
		if len(ips) == 0 {
			return nil, fmt.Errorf("ssrf: no addresses resolved for %q", host)
		}

		for _, raw := range ips {
			ip := net.ParseIP(raw)
			if ip != nil && isBlockedIP(ip) {
				return nil, fmt.Errorf("ssrf: blocked connection to %s (resolved from %s)", raw, host)
			}
		}

		return dialer.DialContext(ctx, network, net.JoinHostPort(ips[0], port))
	}
}
