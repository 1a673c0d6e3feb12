// Package router resolves an inbound request to a configured upstream: the
// default "/mcp" transport, exact "/mcp/<name>" lookup by descriptor name,
// and longest-prefix matching over descriptors that carry a path_prefix.
package router

import (
	"sort"
	"strings"
	"sync"

	"github.com/mcpguard/gateway/internal/gatewayerr"
)

// Upstream is the subset of upstream configuration the router needs to
// dispatch a request; the pipeline holds the rest (transport, credentials).
type Upstream struct {
	Name        string
	PathPrefix  string // e.g. "/billing"; empty if only reachable by name or as default
	StripPrefix bool
	IsDefault   bool
}

// Route is a resolved match: the upstream to forward to and the path the
// downstream transport should see once StripPrefix has been applied.
type Route struct {
	Upstream    Upstream
	ForwardPath string
}

// Router holds the configured upstreams, indexed by name and sorted by
// descending path_prefix length so the longest prefix is always tried first.
type Router struct {
	mu          sync.RWMutex
	byName      map[string]Upstream
	byPrefix    []Upstream
	defaultUp   *Upstream
}

// New builds a Router from the configured upstreams.
func New(upstreams []Upstream) *Router {
	r := &Router{}
	r.Replace(upstreams)
	return r
}

// Replace atomically swaps the configured upstream set, e.g. on config reload.
func (r *Router) Replace(upstreams []Upstream) {
	byName := make(map[string]Upstream, len(upstreams))
	var byPrefix []Upstream
	var def *Upstream

	for _, u := range upstreams {
		byName[u.Name] = u
		if u.PathPrefix != "" {
			byPrefix = append(byPrefix, u)
		}
		if u.IsDefault {
			cp := u
			def = &cp
		}
	}
	sort.SliceStable(byPrefix, func(i, j int) bool {
		return len(byPrefix[i].PathPrefix) > len(byPrefix[j].PathPrefix)
	})

	r.mu.Lock()
	r.byName = byName
	r.byPrefix = byPrefix
	r.defaultUp = def
	r.mu.Unlock()
}

// Match resolves a request path: exact "/mcp" uses the default transport,
// "/mcp/<name>" looks up by name, and any configured path_prefix is matched
// longest-first against the remaining path.
func (r *Router) Match(path string) (Route, *gatewayerr.Error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if path == "/mcp" || path == "/mcp/" {
		if r.defaultUp == nil {
			return Route{}, gatewayerr.New(gatewayerr.NoRoute, "no default upstream configured")
		}
		return Route{Upstream: *r.defaultUp, ForwardPath: path}, nil
	}

	if rest, ok := splitMCPName(path); ok {
		if u, found := r.byName[rest.name]; found {
			forward := path
			if u.StripPrefix {
				forward = rest.tail
				if forward == "" {
					forward = "/"
				}
			}
			return Route{Upstream: u, ForwardPath: forward}, nil
		}
		return Route{}, gatewayerr.New(gatewayerr.ServerNotFound, "no upstream named "+rest.name)
	}

	for _, u := range r.byPrefix {
		if !pathHasPrefix(path, u.PathPrefix) {
			continue
		}
		forward := path
		if u.StripPrefix {
			forward = strings.TrimPrefix(path, u.PathPrefix)
			if forward == "" {
				forward = "/"
			}
		}
		return Route{Upstream: u, ForwardPath: forward}, nil
	}

	return Route{}, gatewayerr.New(gatewayerr.NoRoute, "no route matches "+path)
}

type mcpName struct {
	name string
	tail string
}

// splitMCPName recognizes "/mcp/<name>" and "/mcp/<name>/<tail...>", returning
// the first path segment after "/mcp/" as the descriptor name.
func splitMCPName(path string) (mcpName, bool) {
	const base = "/mcp/"
	if !strings.HasPrefix(path, base) {
		return mcpName{}, false
	}
	rest := strings.TrimPrefix(path, base)
	if rest == "" {
		return mcpName{}, false
	}
	if idx := strings.IndexByte(rest, '/'); idx >= 0 {
		return mcpName{name: rest[:idx], tail: rest[idx:]}, true
	}
	return mcpName{name: rest, tail: ""}, true
}

// Names returns the configured upstream names, for the /routes listing
// endpoint.
func (r *Router) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.byName))
	for name := range r.byName {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Count returns the number of configured upstreams.
func (r *Router) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byName)
}

// pathHasPrefix matches prefix as a path segment boundary: "/billing"
// matches "/billing" and "/billing/tools" but not "/billingx".
func pathHasPrefix(path, prefix string) bool {
	if !strings.HasPrefix(path, prefix) {
		return false
	}
	if len(path) == len(prefix) {
		return true
	}
	return path[len(prefix)] == '/'
}
