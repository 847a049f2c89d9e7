package cmd

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/giantswarm/mcp-azure-devops/internal/debug"
)

var (
	debugEndpoint     string
	debugOrganization string
	debugTransport    string
	debugServerURL    string
	debugTimeout      time.Duration
	debugREPL         bool
)

// debugCmd represents the debug command
var debugCmd = &cobra.Command{
	Use:   "debug",
	Short: "Connect to a running bridge and inspect its tool surface",
	Long: `The debug command connects to a bridge endpoint as an MCP client, logs
all JSON-RPC communication, and shows how the tool catalog changes over time.

The client runs in two modes:
1. Normal mode (default): connects, lists tools, and waits for notifications
2. REPL mode (--repl): provides an interactive interface to explore and call
   tools

In REPL mode you can:
- List the tools the bridge exposes
- Show a tool's description and input schema
- Call tools with JSON arguments
- Toggle notification display

The tenant flags select the organization on a multi-tenant bridge; without
them the bridge applies its configured defaults.`,
	RunE: runDebug,
}

func init() {
	rootCmd.AddCommand(debugCmd)

	debugCmd.Flags().StringVar(&debugEndpoint, "endpoint", "http://localhost:8080/mcp", "Bridge endpoint URL (must end with /mcp)")
	debugCmd.Flags().StringVar(&debugOrganization, "organization", "", "Azure DevOps organization to debug")
	debugCmd.Flags().StringVar(&debugTransport, "backend-transport", "", "Backend transport header (stdio, http)")
	debugCmd.Flags().StringVar(&debugServerURL, "backend-url", "", "Backend server URL header for the http transport")
	debugCmd.Flags().DurationVar(&debugTimeout, "timeout", 5*time.Minute, "Timeout for waiting for notifications")
	debugCmd.Flags().BoolVar(&debugREPL, "repl", false, "Start interactive REPL mode")
}

func runDebug(cmd *cobra.Command, _ []string) error {
	if !strings.HasSuffix(debugEndpoint, "/mcp") {
		return fmt.Errorf("endpoint '%s' must end with /mcp", debugEndpoint)
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	setupSignalHandler(cancel, false)

	log := newCLILogger()

	client := debug.NewClient(debug.ClientConfig{
		Endpoint:     debugEndpoint,
		Organization: debugOrganization,
		Transport:    debugTransport,
		ServerURL:    debugServerURL,
		Logger:       log,
		Version:      version,
	})
	if err := client.Run(ctx); err != nil {
		return fmt.Errorf("failed to connect client: %w", err)
	}
	defer func() { _ = client.Close() }()

	if debugREPL {
		repl := debug.NewREPL(client, log)
		if err := repl.Run(ctx); err != nil {
			return fmt.Errorf("REPL error: %w", err)
		}
		return nil
	}

	timeoutCtx, timeoutCancel := context.WithTimeout(ctx, debugTimeout)
	defer timeoutCancel()

	if err := client.Listen(timeoutCtx); err != nil {
		return fmt.Errorf("debug client error: %w", err)
	}
	if errors.Is(timeoutCtx.Err(), context.DeadlineExceeded) {
		log.Info("Timeout reached after %v", debugTimeout)
	}
	return nil
}
