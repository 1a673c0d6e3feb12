// Package app assembles the gateway's composition root: config in, an
// http.Handler (the ordered middleware pipeline) and its background
// goroutines out. Nothing outside this package wires a provider, a
// transport, or a sink directly to another.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/dnscache"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"

	"github.com/mcpguard/gateway/internal/auth"
	"github.com/mcpguard/gateway/internal/config"
	"github.com/mcpguard/gateway/internal/keyset"
	"github.com/mcpguard/gateway/internal/pipeline"
	"github.com/mcpguard/gateway/internal/ratelimit"
	"github.com/mcpguard/gateway/internal/router"
	"github.com/mcpguard/gateway/internal/sinks"
	"github.com/mcpguard/gateway/internal/transport"
)

// App holds every long-lived component the gateway needs to serve requests
// and to shut down cleanly.
type App struct {
	Handler http.Handler
	Logger  *slog.Logger

	limiter     *ratelimit.Limiter
	audit       *sinks.AsyncAuditSink
	transports  map[string]transport.Transport
	tracerClose func(context.Context) error
}

// upstreamResolver implements pipeline.TransportResolver over a fixed map
// built once at startup.
type upstreamResolver struct {
	byName map[string]transport.Transport
}

func (r upstreamResolver) Resolve(name string) (transport.Transport, bool) {
	t, ok := r.byName[name]
	return t, ok
}

// New builds the full gateway from a validated config. The returned App's
// Handler is ready to be passed to an http.Server; Close stops the rate
// limiter and the audit sink, closes the transports, then shuts down the
// tracer provider.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*App, error) {
	resolver := &dnscache.Resolver{}
	upstreamHTTPClient := transport.NewUpstreamHTTPClient(transport.SSRFSafeDialer(resolver))

	transports, upstreams, err := buildUpstreams(ctx, cfg, logger, upstreamHTTPClient)
	if err != nil {
		return nil, fmt.Errorf("building upstreams: %w", err)
	}
	rt := router.New(upstreams)

	oauthProvider, oauthCache, err := buildOAuthProvider(cfg, upstreamHTTPClient)
	if err != nil {
		return nil, fmt.Errorf("building oauth provider: %w", err)
	}

	mux, err := buildMultiplexer(ctx, cfg, upstreamHTTPClient, oauthProvider)
	if err != nil {
		return nil, fmt.Errorf("building auth multiplexer: %w", err)
	}

	limiter := ratelimit.New(cfg.RateLimit.Enabled, ratelimit.Defaults{
		RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
		BurstSize:         cfg.RateLimit.BurstSize,
	})
	limiter.Start(ctx, 5*time.Minute)

	reg := prometheus.NewRegistry()
	metrics := sinks.NewMetrics(reg)

	writer := sinks.NewSlogWriter(logger)
	auditSink := sinks.NewAsyncAuditSink(writer, logger, cfg.Audit.ExportBatchSize, time.Duration(cfg.Audit.ExportIntervalSecs)*time.Second)
	auditSink.Start(ctx)

	tracerProvider, tracerClose, err := buildTracerProvider(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("building tracer provider: %w", err)
	}
	tracer := tracerProvider.Tracer("mcp-guard")

	handler := &pipeline.Handler{
		Router:         rt,
		Resolver:       upstreamResolver{byName: transports},
		Audit:          auditSink,
		SingleUpstream: len(cfg.Upstream.Servers) == 0,
	}

	r := chi.NewRouter()
	r.Use(pipeline.SecurityHeaders)
	r.Use(pipeline.TraceContext(cfg.Tracing.Enabled, tracer))
	r.Use(pipeline.Metrics(metrics))
	r.Use(pipeline.RequestMeta(logger))

	r.Get("/health", healthHandler)
	r.Get("/live", healthHandler)
	r.Get("/ready", readyHandler(transports))
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	r.Get("/routes", routesHandler(rt))

	if oauthHandler := buildPKCEHandler(cfg, oauthCache, oauthProvider); oauthHandler != nil {
		r.Get("/oauth/authorize", oauthHandler.Authorize)
		r.Get("/oauth/callback", oauthHandler.Callback)
	}

	r.Group(func(r chi.Router) {
		r.Use(pipeline.Authenticate(mux, auditSink, metrics))
		r.Use(pipeline.RateLimit(limiter, auditSink, metrics))
		r.Post("/mcp", handler.ServeHTTP)
		r.Post("/mcp/{name}", handler.ServeHTTP)
	})

	return &App{
		Handler:     r,
		Logger:      logger,
		limiter:     limiter,
		audit:       auditSink,
		transports:  transports,
		tracerClose: tracerClose,
	}, nil
}

// Close shuts down background workers and upstream transports.
func (a *App) Close(ctx context.Context) error {
	a.limiter.Stop()
	a.audit.Stop()
	for _, t := range a.transports {
		_ = t.Close()
	}
	if a.tracerClose != nil {
		return a.tracerClose(ctx)
	}
	return nil
}

func healthHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

func readyHandler(transports map[string]transport.Transport) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		for name, t := range transports {
			if !t.IsHealthy() {
				w.WriteHeader(http.StatusServiceUnavailable)
				_, _ = w.Write([]byte(`{"status":"not ready","upstream":"` + name + `"}`))
				return
			}
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ready"}`))
	}
}

// routesHandler reports the configured multi-route set. With a single
// default upstream there is nothing to list, so it answers 404; otherwise
// it answers 200 with the route count and names.
func routesHandler(rt *router.Router) http.HandlerFunc {
	return func(w http.ResponseWriter, _ *http.Request) {
		if _, err := rt.Match("/mcp"); err == nil {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		names := rt.Names()
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"count":` + strconv.Itoa(len(names)) + `,"routes":["`))
		for i, n := range names {
			if i > 0 {
				_, _ = w.Write([]byte(`","`))
			}
			_, _ = w.Write([]byte(n))
		}
		_, _ = w.Write([]byte(`"]}`))
	}
}

// buildTracerProvider wires a stdout span exporter when tracing is enabled.
// otlp_endpoint is accepted in config but the bundled exporter is
// stdouttrace, avoiding an extra collector dependency (see DESIGN.md).
func buildTracerProvider(ctx context.Context, cfg *config.Config) (*sdktrace.TracerProvider, func(context.Context) error, error) {
	if !cfg.Tracing.Enabled {
		tp := sdktrace.NewTracerProvider(sdktrace.WithSampler(sdktrace.NeverSample()))
		otel.SetTracerProvider(tp)
		return tp, tp.Shutdown, nil
	}

	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, nil, err
	}
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(cfg.Tracing.ServiceName)))
	if err != nil {
		return nil, nil, err
	}
	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.Tracing.SampleRate)),
	)
	otel.SetTracerProvider(tp)
	return tp, tp.Shutdown, nil
}

// buildOAuthProvider constructs the delegated-auth bearer provider and its
// backing introspection cache once, so the composition root can hand the
// same pair to both the bearer multiplexer and the PKCE callback handler:
// a token minted by /oauth/callback is then already warm in the cache the
// bearer path consults on the very next request. Returns nil, nil, nil when
// OAuth isn't configured.
func buildOAuthProvider(cfg *config.Config, httpClient *http.Client) (*auth.DelegatedAuthProvider, *keyset.IntrospectionCache, error) {
	if cfg.Auth.OAuth.ClientID == "" {
		return nil, nil, nil
	}
	cache := keyset.NewIntrospectionCache()
	provider, err := auth.NewDelegatedAuthProvider(oauthConfigFrom(cfg), cache, httpClient)
	if err != nil {
		return nil, nil, err
	}
	return provider, cache, nil
}

func oauthConfigFrom(cfg *config.Config) auth.OAuthConfig {
	mappings := make([]auth.ScopeMapping, 0, len(cfg.Auth.OAuth.ScopeToolMapping))
	for _, m := range cfg.Auth.OAuth.ScopeToolMapping {
		mappings = append(mappings, auth.ScopeMapping{Scope: m.Scope, Tools: m.Tools, Condition: m.Condition})
	}
	return auth.OAuthConfig{
		Provider:         cfg.Auth.OAuth.Provider,
		ClientID:         cfg.Auth.OAuth.ClientID,
		ClientSecret:     cfg.Auth.OAuth.ClientSecret,
		AuthorizationURL: cfg.Auth.OAuth.AuthorizationURL,
		TokenURL:         cfg.Auth.OAuth.TokenURL,
		IntrospectionURL: cfg.Auth.OAuth.IntrospectionURL,
		UserInfoURL:      cfg.Auth.OAuth.UserInfoURL,
		RedirectURI:      cfg.Auth.OAuth.RedirectURI,
		Scopes:           cfg.Auth.OAuth.Scopes,
		UserIDClaim:      cfg.Auth.OAuth.UserIDClaim,
		ScopeMappings:    mappings,
	}
}

func buildPKCEHandler(cfg *config.Config, cache *keyset.IntrospectionCache, provider *auth.DelegatedAuthProvider) *auth.PKCEHandler {
	if provider == nil {
		return nil
	}
	return auth.NewPKCEHandler(oauthConfigFrom(cfg), keyset.NewPKCEStore(), cache, provider)
}
