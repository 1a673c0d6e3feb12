// Command mcp-guard runs the MCP security gateway.
package main

import "github.com/mcpguard/gateway/cmd/mcpguard/cmd"

func main() {
	cmd.Execute()
}
