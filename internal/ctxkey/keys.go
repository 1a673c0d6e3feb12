// Package ctxkey defines shared context key types used across multiple packages.
// This package should have no dependencies on other internal packages to avoid import cycles.
package ctxkey

// LoggerKey is the context key type for the enriched logger.
// Used by HTTP middleware to store and retrieve the logger with the request_id field.
type LoggerKey struct{}

// RequestIDKey is the context key type for the per-request opaque id.
type RequestIDKey struct{}

// TraceIDKey is the context key type for the W3C trace id extracted or minted
// by the trace-context pipeline stage.
type TraceIDKey struct{}

// ClientIPKey is the context key type for the caller's socket address, captured
// once by the inbound middleware and reused by rate limiting, mTLS and PKCE.
type ClientIPKey struct{}

// IdentityKey is the context key type for the Identity produced by the
// authentication stage, consumed by rate limiting, authorization and audit.
type IdentityKey struct{}
