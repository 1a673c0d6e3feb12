// Package cmd provides the CLI commands for mcp-guard.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/mcpguard/gateway/internal/config"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "mcp-guard",
	Short: "mcp-guard - MCP security gateway",
	Long: `mcp-guard sits in front of one or more Model Context Protocol servers
and enforces authentication, rate limiting, authorization, and audit
logging on every JSON-RPC call before it reaches the upstream.

Quick start:
  1. Create a config file: mcp-guard.yaml
  2. Run: mcp-guard run

Configuration:
  Config is loaded from mcp-guard.yaml in the current directory,
  $HOME/.mcp-guard/, or /etc/mcp-guard/.

  Environment variables override config values with the MCP_GUARD_ prefix.
  Example: MCP_GUARD_SERVER_PORT=9090

Commands:
  run         Start the gateway
  version     Print version information`,
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./mcp-guard.yaml)")
}

func initConfig() {
	config.InitViper(cfgFile)
}
