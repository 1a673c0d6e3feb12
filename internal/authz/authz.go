// Package authz implements the authorization filter: the tools/call guard
// and the tools/list response filter.
package authz

import (
	"encoding/json"

	"github.com/mcpguard/gateway/internal/gatewayerr"
	"github.com/mcpguard/gateway/internal/identity"
)

// Authorize implements authorize(method, tool_name?, identity). Only
// "tools/call" is restricted; every other method is always allowed.
func Authorize(method, toolName string, id identity.Identity) *gatewayerr.Error {
	if method != "tools/call" {
		return nil
	}
	if id.Allows(toolName) {
		return nil
	}
	return gatewayerr.New(gatewayerr.ToolNotAuthorized, toolName)
}

// FilterToolsList implements filter_tools_list(response, identity). result
// is the raw `result` object of a tools/list JSON-RPC reply (or nil if the
// reply was an error, in which case it passes through unchanged by the
// caller never invoking this function). Order and all non-name fields are
// preserved for the tools that remain.
func FilterToolsList(result json.RawMessage, id identity.Identity) (json.RawMessage, error) {
	if id.AllowsAll() {
		return result, nil
	}

	var parsed struct {
		Tools []json.RawMessage `json:"tools"`
	}
	if err := json.Unmarshal(result, &parsed); err != nil {
		return nil, err
	}

	kept := make([]json.RawMessage, 0, len(parsed.Tools))
	for _, raw := range parsed.Tools {
		var entry struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(raw, &entry); err != nil {
			return nil, err
		}
		if id.Allows(entry.Name) {
			kept = append(kept, raw)
		}
	}

	// Re-merge the filtered tools array into the original result object so
	// any sibling fields (e.g. nextCursor) survive untouched.
	var generic map[string]json.RawMessage
	if err := json.Unmarshal(result, &generic); err != nil {
		return nil, err
	}
	toolsJSON, err := json.Marshal(kept)
	if err != nil {
		return nil, err
	}
	generic["tools"] = toolsJSON
	return json.Marshal(generic)
}
