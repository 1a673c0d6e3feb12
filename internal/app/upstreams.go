package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/mcpguard/gateway/internal/config"
	"github.com/mcpguard/gateway/internal/router"
	"github.com/mcpguard/gateway/internal/transport"
)

// defaultUpstreamName is used for the single-upstream "/mcp" shape, where
// no operator-supplied name is configured.
const defaultUpstreamName = "default"

// buildUpstreams constructs one Transport per configured upstream (single
// default or named servers[]) and the matching router.Upstream descriptors.
func buildUpstreams(ctx context.Context, cfg *config.Config, logger *slog.Logger, httpClient *http.Client) (map[string]transport.Transport, []router.Upstream, error) {
	transports := make(map[string]transport.Transport)
	var upstreams []router.Upstream

	if cfg.HasSingleUpstream() || (cfg.Upstream.Transport != "" && len(cfg.Upstream.Servers) == 0) {
		t, err := buildTransport(ctx, cfg.Upstream.Transport, cfg.Upstream.Command, cfg.Upstream.Args, cfg.Upstream.URL, logger, httpClient)
		if err != nil {
			return nil, nil, fmt.Errorf("default upstream: %w", err)
		}
		transports[defaultUpstreamName] = t
		upstreams = append(upstreams, router.Upstream{Name: defaultUpstreamName, IsDefault: true})
		return transports, upstreams, nil
	}

	for _, s := range cfg.Upstream.Servers {
		t, err := buildTransport(ctx, s.Transport, s.Command, s.Args, s.URL, logger, httpClient)
		if err != nil {
			return nil, nil, fmt.Errorf("upstream %q: %w", s.Name, err)
		}
		transports[s.Name] = t
		upstreams = append(upstreams, router.Upstream{
			Name:        s.Name,
			PathPrefix:  s.PathPrefix,
			StripPrefix: s.StripPrefix,
		})
	}
	return transports, upstreams, nil
}

func buildTransport(ctx context.Context, kind, command string, args []string, url string, logger *slog.Logger, httpClient *http.Client) (transport.Transport, error) {
	switch kind {
	case "stdio":
		return transport.NewStdioTransport(ctx, command, args, logger)
	case "http":
		return transport.NewHTTPTransport(url, httpClient), nil
	case "sse":
		return transport.NewSSETransport(url, httpClient), nil
	default:
		return nil, fmt.Errorf("unknown transport kind %q", kind)
	}
}
