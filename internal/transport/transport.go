// Package transport implements the three transport engines: subprocess
// stdio, HTTP one-shot, and SSE streaming, behind one interface.
package transport

import (
	"context"

	"github.com/mcpguard/gateway/internal/gatewayerr"
)

// Transport is the send/receive/health contract every engine implements.
// Send and Receive are paired one-to-one: for every Send there is exactly
// one Receive per request id.
type Transport interface {
	// Send transmits a single JSON-RPC message (raw bytes, newline not
	// required) to the upstream.
	Send(ctx context.Context, message []byte) error

	// Receive blocks for the next reply. For stdio/HTTP this returns once;
	// for SSE it may be called repeatedly to drain a multi-event stream.
	Receive(ctx context.Context) ([]byte, error)

	// IsHealthy reports whether the transport can currently accept a Send.
	IsHealthy() bool

	// Close releases any held resources (child process, connection pool).
	Close() error
}

// SanitizeError maps internal transport errors to client-safe strings,
// without leaking paths, commands, URLs, or stack traces.
func SanitizeError(kind gatewayerr.Kind) string {
	switch kind {
	case gatewayerr.Timeout:
		return "Upstream request timed out"
	case gatewayerr.ConnectionClosed:
		return "Upstream connection closed"
	case gatewayerr.ProcessExited:
		return "Upstream process unavailable"
	default:
		return "Upstream communication error"
	}
}
