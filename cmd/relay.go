package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/giantswarm/mcp-azure-devops/internal/bridge"
	"github.com/giantswarm/mcp-azure-devops/internal/relay"
)

var (
	relayEndpoint     string
	relayOrganization string
	relayTransport    string
	relayServerURL    string
	relayTimeout      time.Duration
)

// relayCmd represents the relay command
var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Relay newline-delimited JSON-RPC from stdin to a bridge endpoint",
	Long: `The relay command turns a stdio-only MCP host into a client of a remote
bridge. It reads newline-delimited JSON-RPC messages from stdin, forwards each
one to the configured HTTP endpoint, and writes exactly one correlated
response line to stdout per request. Notifications are forwarded without
producing any output.

Responses always carry the id of the original request. Transport failures,
empty backend replies, and malformed backend replies are converted into
well-formed JSON-RPC error responses so the host never hangs on a request.

The optional tenant flags are attached as X-Ado-* headers on every forwarded
request, selecting the organization on a multi-tenant bridge.`,
	RunE: runRelay,
}

func init() {
	rootCmd.AddCommand(relayCmd)

	relayCmd.Flags().StringVar(&relayEndpoint, "endpoint", "http://localhost:8080/mcp", "Bridge endpoint URL messages are forwarded to")
	relayCmd.Flags().StringVar(&relayOrganization, "organization", "", "Azure DevOps organization header attached to forwarded requests")
	relayCmd.Flags().StringVar(&relayTransport, "backend-transport", "", "Backend transport header (stdio, http)")
	relayCmd.Flags().StringVar(&relayServerURL, "backend-url", "", "Backend server URL header for the http transport")
	relayCmd.Flags().DurationVar(&relayTimeout, "timeout", 10*time.Second, "Timeout for a single forwarded request")
}

func runRelay(cmd *cobra.Command, _ []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// stdout carries responses, logs stay on stderr
	log := newStderrLogger()
	setupSignalHandler(cancel, true)

	headers := make(map[string]string)
	if relayOrganization != "" {
		headers[bridge.HeaderOrganization] = relayOrganization
	}
	if relayTransport != "" {
		headers[bridge.HeaderTransport] = relayTransport
	}
	if relayServerURL != "" {
		headers[bridge.HeaderServerURL] = relayServerURL
	}

	r, err := relay.New(relay.Config{
		Endpoint: relayEndpoint,
		Headers:  headers,
		Timeout:  relayTimeout,
		Logger:   log,
	})
	if err != nil {
		return fmt.Errorf("failed to create relay: %w", err)
	}

	log.Info("Relaying stdin to %s", relayEndpoint)
	if err := r.Run(ctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("relay error: %w", err)
	}
	return nil
}
