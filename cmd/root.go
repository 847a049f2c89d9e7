package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/giantswarm/mcp-azure-devops/internal/logger"
)

var (
	version string

	verbose bool
	noColor bool
	jsonRPC bool
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "mcp-azure-devops",
	Short: "Multi-tenant bridge for Azure DevOps MCP servers",
	Long: `mcp-azure-devops fronts Azure DevOps MCP servers for any number of
organizations through a single process.

It maintains one backend client per organization, created lazily on first use,
cached while traffic flows, and closed again after sitting idle. Backends are
reached either by spawning the Azure DevOps MCP server as a subprocess (stdio)
or by connecting to an already running instance over streamable HTTP.

The tool provides several commands:
- serve: run the bridge, either as a multi-tenant streamable HTTP endpoint
  (tenants selected per request via X-Ado-* headers) or as a single-tenant
  stdio MCP server for direct use from an AI assistant
- relay: pump newline-delimited JSON-RPC from stdin to a bridge endpoint and
  write the correlated responses to stdout, for hosts that only speak stdio
- debug: connect to a running bridge and explore its tool surface
  interactively
- selfupdate: update the binary to the latest released version

All JSON-RPC traffic can be traced with --json-rpc, which logs every request,
response, and notification in full.`,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

// SetVersion sets the version for the application
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "Enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "Disable colored output")
	rootCmd.PersistentFlags().BoolVar(&jsonRPC, "json-rpc", false, "Enable full JSON-RPC message logging")

	rootCmd.AddCommand(newSelfUpdateCmd())
}

// newCLILogger builds the logger used by commands whose stdout is free for
// log output.
func newCLILogger() *logger.Logger {
	return logger.NewLogger(verbose, !noColor, jsonRPC)
}

// newStderrLogger builds a logger for modes where stdout carries protocol
// traffic and logs must stay out of the stream.
func newStderrLogger() *logger.Logger {
	return logger.NewLoggerWithWriter(verbose, !noColor, jsonRPC, os.Stderr)
}

// setupSignalHandler sets up graceful shutdown on interrupt signals. quiet
// suppresses the console note for modes that own stdout.
func setupSignalHandler(cancel context.CancelFunc, quiet bool) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		if !quiet {
			fmt.Println("\nReceived interrupt signal, shutting down gracefully...")
		}
		cancel()
	}()
}
