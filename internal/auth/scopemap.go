package auth

import (
	"strings"

	"github.com/google/cel-go/cel"

	"github.com/mcpguard/gateway/internal/identity"
)

// ScopeMapping maps one configured scope to the tool names it grants. An
// optional CEL guard expression additionally restricts the grant to claim
// sets that satisfy it; a mapping with no expression always applies.
type ScopeMapping struct {
	Scope     string
	Tools     []string // may contain identity.AllTools for a wildcard grant
	Condition string   // optional CEL expression over `claims` and `scope`
}

// scopeEnv is the fixed CEL variable set scope-mapping conditions may use.
var scopeEnv, _ = cel.NewEnv(
	cel.Variable("claims", cel.DynType),
	cel.Variable("scope", cel.StringType),
)

// compiledCondition caches one mapping's compiled CEL program, if any.
type compiledCondition struct {
	program cel.Program
}

func compileCondition(expr string) (*compiledCondition, error) {
	if expr == "" {
		return nil, nil
	}
	ast, iss := scopeEnv.Compile(expr)
	if iss.Err() != nil {
		return nil, iss.Err()
	}
	prg, err := scopeEnv.Program(ast)
	if err != nil {
		return nil, err
	}
	return &compiledCondition{program: prg}, nil
}

func (c *compiledCondition) allows(claims map[string]any, scope string) bool {
	if c == nil {
		return true
	}
	out, _, err := c.program.Eval(map[string]any{"claims": claims, "scope": scope})
	if err != nil {
		return false
	}
	b, ok := out.Value().(bool)
	return ok && b
}

// ParseScopes splits a scopes claim value, which may be a space-separated
// string or an array of strings.
func ParseScopes(raw any) []string {
	switch v := raw.(type) {
	case string:
		return strings.Fields(v)
	case []string:
		return v
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}

// resolvedMapping is a ScopeMapping with its condition pre-compiled, ready
// for repeated evaluation against many tokens.
type resolvedMapping struct {
	scope     string
	tools     []string
	condition *compiledCondition
}

// ResolveMappings compiles every configured ScopeMapping's CEL condition
// once, at provider-construction time, so request-path evaluation never
// recompiles an expression.
func ResolveMappings(mappings []ScopeMapping) ([]resolvedMapping, error) {
	out := make([]resolvedMapping, 0, len(mappings))
	for _, m := range mappings {
		cond, err := compileCondition(m.Condition)
		if err != nil {
			return nil, err
		}
		out = append(out, resolvedMapping{scope: m.Scope, tools: m.Tools, condition: cond})
	}
	return out, nil
}

// AllowedToolsFromScopes computes the union of every matching mapping's
// tools, or the wildcard if any matching mapping grants it; an absent/empty
// mapping configuration leaves AllowedTools unset (nil), meaning "all
// tools".
func AllowedToolsFromScopes(mappings []resolvedMapping, scopes []string, claims map[string]any) map[string]struct{} {
	if len(mappings) == 0 {
		return nil
	}
	scopeSet := make(map[string]struct{}, len(scopes))
	for _, s := range scopes {
		scopeSet[s] = struct{}{}
	}

	// Mappings are configured but the token's scopes may match none of them;
	// the result is then the union of zero sets, i.e. "deny all", not
	// "absent" — only a wholly unconfigured mapping leaves AllowedTools
	// absent.
	granted := make(map[string]struct{})
	for _, m := range mappings {
		if _, has := scopeSet[m.scope]; !has {
			continue
		}
		if !m.condition.allows(claims, m.scope) {
			continue
		}
		for _, t := range m.tools {
			if t == identity.AllTools {
				return identity.ToolSet([]string{identity.AllTools})
			}
			granted[t] = struct{}{}
		}
	}
	return granted
}
