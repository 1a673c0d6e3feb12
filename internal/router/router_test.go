package router

import (
	"testing"

	"github.com/mcpguard/gateway/internal/gatewayerr"
)

func TestMatch_DefaultUpstream(t *testing.T) {
	t.Parallel()

	r := New([]Upstream{{Name: "default", IsDefault: true}})
	route, err := r.Match("/mcp")
	if err != nil {
		t.Fatalf("Match() error: %v", err)
	}
	if route.Upstream.Name != "default" || route.ForwardPath != "/mcp" {
		t.Errorf("route = %+v", route)
	}
}

func TestMatch_NoDefaultUpstream(t *testing.T) {
	t.Parallel()

	r := New([]Upstream{{Name: "billing", PathPrefix: "/billing"}})
	_, err := r.Match("/mcp")
	if err == nil || err.Kind != gatewayerr.NoRoute {
		t.Fatalf("err = %v, want NoRoute", err)
	}
}

func TestMatch_ExactNameLookup(t *testing.T) {
	t.Parallel()

	r := New([]Upstream{{Name: "billing"}})
	route, err := r.Match("/mcp/billing")
	if err != nil {
		t.Fatalf("Match() error: %v", err)
	}
	if route.Upstream.Name != "billing" || route.ForwardPath != "/mcp/billing" {
		t.Errorf("route = %+v", route)
	}
}

func TestMatch_NameNotFound(t *testing.T) {
	t.Parallel()

	r := New([]Upstream{{Name: "billing"}})
	_, err := r.Match("/mcp/unknown")
	if err == nil || err.Kind != gatewayerr.ServerNotFound {
		t.Fatalf("err = %v, want ServerNotFound", err)
	}
}

func TestMatch_NameLookupWithStripPrefix(t *testing.T) {
	t.Parallel()

	r := New([]Upstream{{Name: "billing", StripPrefix: true}})
	route, err := r.Match("/mcp/billing/tools")
	if err != nil {
		t.Fatalf("Match() error: %v", err)
	}
	if route.ForwardPath != "/tools" {
		t.Errorf("ForwardPath = %q, want /tools", route.ForwardPath)
	}
}

func TestMatch_PathPrefixLongestMatch(t *testing.T) {
	t.Parallel()

	r := New([]Upstream{
		{Name: "billing", PathPrefix: "/billing"},
		{Name: "billing-v2", PathPrefix: "/billing/v2"},
	})
	route, err := r.Match("/billing/v2/tools")
	if err != nil {
		t.Fatalf("Match() error: %v", err)
	}
	if route.Upstream.Name != "billing-v2" {
		t.Errorf("Upstream = %q, want billing-v2 (longest prefix)", route.Upstream.Name)
	}
}

func TestMatch_PathPrefixDoesNotMatchPartialSegment(t *testing.T) {
	t.Parallel()

	r := New([]Upstream{{Name: "billing", PathPrefix: "/billing"}})
	_, err := r.Match("/billingx")
	if err == nil || err.Kind != gatewayerr.NoRoute {
		t.Fatalf("err = %v, want NoRoute for /billingx", err)
	}
}

func TestMatch_PathPrefixWithStrip(t *testing.T) {
	t.Parallel()

	r := New([]Upstream{{Name: "billing", PathPrefix: "/billing", StripPrefix: true}})
	route, err := r.Match("/billing/tools")
	if err != nil {
		t.Fatalf("Match() error: %v", err)
	}
	if route.ForwardPath != "/tools" {
		t.Errorf("ForwardPath = %q, want /tools", route.ForwardPath)
	}
}

func TestMatch_NoRouteMatches(t *testing.T) {
	t.Parallel()

	r := New([]Upstream{{Name: "billing", PathPrefix: "/billing"}})
	_, err := r.Match("/other")
	if err == nil || err.Kind != gatewayerr.NoRoute {
		t.Fatalf("err = %v, want NoRoute", err)
	}
}

func TestNamesAndCount(t *testing.T) {
	t.Parallel()

	r := New([]Upstream{{Name: "b"}, {Name: "a"}})
	if r.Count() != 2 {
		t.Errorf("Count() = %d, want 2", r.Count())
	}
	names := r.Names()
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Errorf("Names() = %v, want sorted [a b]", names)
	}
}

func TestReplace_SwapsConfiguration(t *testing.T) {
	t.Parallel()

	r := New([]Upstream{{Name: "old", IsDefault: true}})
	r.Replace([]Upstream{{Name: "new", IsDefault: true}})

	if _, err := r.Match("/mcp/old"); err == nil {
		t.Error("expected old upstream to be gone after Replace")
	}
	route, err := r.Match("/mcp")
	if err != nil || route.Upstream.Name != "new" {
		t.Errorf("route = %+v, err = %v, want new default", route, err)
	}
}
