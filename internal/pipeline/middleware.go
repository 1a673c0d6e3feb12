// Package pipeline assembles the ordered request-processing chain: security
// headers, trace context, metrics, authentication, rate limiting, the MCP
// handler, and response headers.
package pipeline

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/mcpguard/gateway/internal/auth"
	"github.com/mcpguard/gateway/internal/ctxkey"
	"github.com/mcpguard/gateway/internal/gatewayerr"
	"github.com/mcpguard/gateway/internal/identity"
	"github.com/mcpguard/gateway/internal/ratelimit"
	"github.com/mcpguard/gateway/internal/sinks"

	"github.com/google/uuid"
)

// SecurityHeaders is pipeline stage 1: every response carries a fixed set
// of hardening headers.
func SecurityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		h := w.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("X-XSS-Protection", "1; mode=block")
		h.Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		next.ServeHTTP(w, r)
	})
}

// TraceContext is pipeline stage 2: extract W3C traceparent/tracestate,
// start a child span, and make the trace id available to later stages.
func TraceContext(enabled bool, tracer trace.Tracer) func(http.Handler) http.Handler {
	propagator := propagation.TraceContext{}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !enabled {
				next.ServeHTTP(w, r)
				return
			}

			ctx := propagator.Extract(r.Context(), propagation.HeaderCarrier(r.Header))
			ctx, span := tracer.Start(ctx, r.Method+" "+r.URL.Path)
			defer span.End()

			traceID := span.SpanContext().TraceID().String()
			ctx = context.WithValue(ctx, ctxkey.TraceIDKey{}, traceID)
			w.Header().Set("X-Trace-ID", traceID)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// NewTracer builds the otel tracer the pipeline uses; callers wire a
// concrete TracerProvider (stdouttrace by default).
func NewTracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// statusRecorder captures the status code a downstream handler wrote so the
// metrics and response-header stages can observe it after the fact.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

// Metrics is pipeline stage 3: time the request and record the sampled
// duration plus the request counter labeled by method and final status.
func Metrics(m *sinks.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
			start := time.Now()
			next.ServeHTTP(rec, r)
			elapsed := time.Since(start).Seconds()

			m.RequestDuration.WithLabelValues(r.Method).Observe(elapsed)
			m.RequestsTotal.WithLabelValues(r.Method, strconv.Itoa(rec.status)).Inc()
		})
	}
}

// RequestMeta bundles the values the remaining stages derive from the raw
// HTTP request, stashing per-request derived values (request id, client IP,
// scoped logger) in context.
func RequestMeta(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			reqID := r.Header.Get("X-Request-ID")
			if reqID == "" {
				reqID = uuid.New().String()
			}
			w.Header().Set("X-Request-ID", reqID)

			ctx := context.WithValue(r.Context(), ctxkey.RequestIDKey{}, reqID)
			ctx = context.WithValue(ctx, ctxkey.ClientIPKey{}, clientIP(r))
			ctx = context.WithValue(ctx, ctxkey.LoggerKey{}, logger.With("request_id", reqID))

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func clientIP(r *http.Request) string {
	return r.RemoteAddr
}

// Authenticate is pipeline stage 4: invoke the multiplexer and emit
// AuthSuccess/AuthFailure. On failure the chain short-circuits with a
// generic 401.
func Authenticate(mux *auth.Multiplexer, audit sinks.AuditSink, metrics *sinks.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			meta := auth.RequestMetadata{
				BearerToken: auth.ExtractBearer(r.Header.Get("Authorization")),
				Cert: auth.CertHeaders{
					CommonName:     r.Header.Get("X-Client-Cert-CN"),
					SANDNS:         splitComma(r.Header.Get("X-Client-Cert-SAN-DNS")),
					SANEmail:       splitComma(r.Header.Get("X-Client-Cert-SAN-Email")),
					VerifiedHeader: r.Header.Get("X-Client-Cert-Verified"),
					Present:        r.Header.Get("X-Client-Cert-Verified") != "",
				},
				ClientAddr: r.RemoteAddr,
			}

			id, gwErr := mux.Authenticate(r.Context(), meta)
			if gwErr != nil {
				provider := authProviderLabel(gwErr.Kind)
				metrics.AuthTotal.WithLabelValues(provider, "failure").Inc()
				audit.Emit(sinks.Event{
					Timestamp: time.Now(),
					Type:      sinks.EventAuthFailure,
					RequestID: requestID(r.Context()),
					TraceID:   traceID(r.Context()),
					Fields:    map[string]any{"reason": string(gwErr.Kind), "provider": provider},
				})
				writeError(w, http.StatusUnauthorized, "authentication failed")
				return
			}

			metrics.AuthTotal.WithLabelValues(id.Provider, "success").Inc()
			audit.Emit(sinks.Event{
				Timestamp:  time.Now(),
				Type:       sinks.EventAuthSuccess,
				IdentityID: id.ID,
				RequestID:  requestID(r.Context()),
				TraceID:    traceID(r.Context()),
			})

			ctx := context.WithValue(r.Context(), ctxkey.IdentityKey{}, id)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func authProviderLabel(kind gatewayerr.Kind) string {
	switch kind {
	case gatewayerr.InvalidAPIKey:
		return "api_key"
	case gatewayerr.InvalidJWT, gatewayerr.TokenExpired, gatewayerr.InvalidIssuer, gatewayerr.InvalidAudience:
		return "jwt"
	case gatewayerr.IntrospectionFailed, gatewayerr.InvalidState:
		return "oauth"
	case gatewayerr.CertHeaderNotTrusted:
		return "mtls"
	default:
		return "unknown"
	}
}

// RateLimit is pipeline stage 5: runs only after successful authentication.
func RateLimit(limiter *ratelimit.Limiter, audit sinks.AuditSink, metrics *sinks.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, ok := r.Context().Value(ctxkey.IdentityKey{}).(identity.Identity)
			if !ok {
				next.ServeHTTP(w, r)
				return
			}

			var capacityOverride, fillRateOverride float64
			if id.BurstSize > 0 {
				capacityOverride = id.BurstSize
			}
			if id.RateLimit > 0 {
				fillRateOverride = id.RateLimit
			}

			result := limiter.Check(id.ID, capacityOverride, fillRateOverride)
			metrics.ActiveIdentities.Set(float64(limiter.TrackedIdentities()))

			if !result.Allowed {
				retrySecs := int(result.RetryAfter.Round(time.Second).Seconds())
				metrics.RateLimitTotal.WithLabelValues("false").Inc()
				audit.Emit(sinks.Event{
					Timestamp:  time.Now(),
					Type:       sinks.EventRateLimited,
					IdentityID: id.ID,
					RequestID:  requestID(r.Context()),
					TraceID:    traceID(r.Context()),
					Fields:     map[string]any{"retry_after_secs": retrySecs},
				})
				w.Header().Set("Retry-After", strconv.Itoa(retrySecs))
				writeErrorBody(w, http.StatusTooManyRequests, "rate limit exceeded")
				return
			}

			metrics.RateLimitTotal.WithLabelValues("true").Inc()
			w.Header().Set("X-RateLimit-Limit", strconv.FormatFloat(result.Limit, 'f', -1, 64))
			w.Header().Set("X-RateLimit-Remaining", strconv.FormatFloat(result.Remaining, 'f', -1, 64))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(result.ResetAt.Unix(), 10))

			next.ServeHTTP(w, r)
		})
	}
}

func splitComma(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, len(parts))
	for i, p := range parts {
		out[i] = strings.TrimSpace(p)
	}
	return out
}

func requestID(ctx context.Context) string {
	v, _ := ctx.Value(ctxkey.RequestIDKey{}).(string)
	return v
}

func traceID(ctx context.Context) string {
	v, _ := ctx.Value(ctxkey.TraceIDKey{}).(string)
	return v
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeErrorBody(w, status, msg)
}
