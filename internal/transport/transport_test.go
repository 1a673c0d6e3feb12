package transport

import (
	"context"
	"net"
	"strings"
	"testing"

	"github.com/rs/dnscache"

	"github.com/mcpguard/gateway/internal/gatewayerr"
)

func TestSanitizeError(t *testing.T) {
	t.Parallel()

	cases := []struct {
		kind gatewayerr.Kind
		want string
	}{
		{gatewayerr.Timeout, "Upstream request timed out"},
		{gatewayerr.ConnectionClosed, "Upstream connection closed"},
		{gatewayerr.ProcessExited, "Upstream process unavailable"},
		{gatewayerr.IOError, "Upstream communication error"},
	}
	for _, c := range cases {
		if got := SanitizeError(c.kind); got != c.want {
			t.Errorf("SanitizeError(%v) = %q, want %q", c.kind, got, c.want)
		}
	}
}

func TestIsBlockedIP(t *testing.T) {
	t.Parallel()

	blocked := []string{"127.0.0.1", "10.1.2.3", "192.168.1.1", "169.254.169.254", "::1"}
	for _, ip := range blocked {
		if !isBlockedIP(net.ParseIP(ip)) {
			t.Errorf("isBlockedIP(%s) = false, want true", ip)
		}
	}

	allowed := []string{"8.8.8.8", "1.1.1.1", "93.184.216.34"}
	for _, ip := range allowed {
		if isBlockedIP(net.ParseIP(ip)) {
			t.Errorf("isBlockedIP(%s) = true, want false", ip)
		}
	}
}

func TestSSRFSafeDialer_BlocksLoopback(t *testing.T) {
	t.Parallel()

	dial := SSRFSafeDialer(&dnscache.Resolver{})
	_, err := dial(context.Background(), "tcp", "127.0.0.1:80")
	if err == nil {
		t.Fatal("expected dial to loopback to be blocked")
	}
	if !strings.Contains(err.Error(), "blocked") {
		t.Errorf("error = %v, want to mention blocked", err)
	}
}

func TestSSRFSafeDialer_RejectsMalformedAddress(t *testing.T) {
	t.Parallel()

	dial := SSRFSafeDialer(&dnscache.Resolver{})
	_, err := dial(context.Background(), "tcp", "not-a-valid-address")
	if err == nil {
		t.Fatal("expected error for malformed address")
	}
}
