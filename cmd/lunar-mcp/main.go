/*
Package main is the entry point for the lunar-mcp CLI.

lunar-mcp analyzes free-text requests and suggests the tool that should
handle them, resolves [TOOL:code] jump codes and runs [CHAIN:a→b] tool
chains. It learns from usage and serves all of this to AI clients as an
MCP server.

Usage:
  lunar-mcp [command]

Available Commands:
  serve       Run the MCP server (stdio transport)
  analyze     Analyze a request and print the decision as JSON
  chain       Validate or run tool chains
  codes       List the jump codes of the tool registry
  search      Rank registry tools for a free-text query
  history     Show journaled chain executions or tool usage
  init        Create a configuration file with every default
  add         Add an MCP server and its tools to the configuration
  remove      Remove an MCP server
  verify      Verify configuration and server commands
  benchmark   Measure analysis latency and suggestion cache hit rate
  version     Show version information

Examples:
  # Write ~/.lunar-mcp/config.yaml
  lunar-mcp init

  # Run as MCP server
  lunar-mcp serve

  # Try the engine from the shell
  lunar-mcp analyze create a github repository
*/
package main

import (
	"fmt"
	"os"

	"github.com/khanglvm/lunar-mcp/internal/cli"
	"github.com/khanglvm/lunar-mcp/internal/version"
)

// Version information (set via ldflags during build)
var (
	buildVersion = "dev"
	commit       = "none"
	date         = "unknown"
)

func main() {
	if buildVersion != "dev" {
		version.Version, version.Commit, version.Date = buildVersion, commit, date
	}

	if err := cli.NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
