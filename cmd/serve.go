package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/giantswarm/mcp-azure-devops/internal/bridge"
	"github.com/giantswarm/mcp-azure-devops/internal/server"
)

const (
	serverTransportStreamableHTTP = "streamable-http"
	serverTransportStdio          = "stdio"
)

// serveCmd represents the serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Azure DevOps MCP bridge",
	Long: `The serve command runs the bridge itself.

In streamable-http mode (the default) it listens for MCP requests over HTTP
and serves any number of organizations at once: each request names its tenant
through the X-Ado-Organization header (plus optional X-Ado-Transport and
X-Ado-Server-Url), and the bridge keeps one backend client per tenant, spawned
or connected on first use and evicted after sitting idle.

In stdio mode it serves exactly one organization over stdin/stdout, mirroring
the backend's tool catalog as a regular MCP server. This mode is meant for AI
assistants that launch their MCP servers as subprocesses.

Every option can also be set through the environment with the ADO_MCP_ prefix,
for example ADO_MCP_ORGANIZATION or ADO_MCP_ACCESS_TOKEN. Flags win over the
environment.`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("server-transport", serverTransportStreamableHTTP, "Transport the bridge itself serves on (streamable-http, stdio)")
	serveCmd.Flags().String("listen-addr", ":8080", "Listen address for the streamable HTTP facade (path is fixed to /mcp)")
	serveCmd.Flags().String("organization", "", "Default Azure DevOps organization for requests without tenant headers")
	serveCmd.Flags().String("backend-transport", "stdio", "Default backend transport (stdio, http)")
	serveCmd.Flags().String("backend-url", "", "Default backend MCP server URL for the http transport")
	serveCmd.Flags().String("server-command", bridge.DefaultServerCommand, "Command that starts a stdio backend MCP server")
	serveCmd.Flags().String("domains", "", "Comma-separated Azure DevOps domain filters passed to spawned backends")
	serveCmd.Flags().String("access-token", "", "Static Azure DevOps access token handed to backends")
	serveCmd.Flags().Duration("request-timeout", bridge.DefaultRequestTimeout, "Timeout for a single backend call")
	serveCmd.Flags().Duration("cleanup-interval", bridge.DefaultCleanupInterval, "How often idle backend clients are swept")
	serveCmd.Flags().Duration("max-idle", bridge.DefaultMaxIdle, "Idle time after which a backend client is closed")

	viper.SetEnvPrefix("ado_mcp")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	for _, name := range []string{
		"server-transport", "listen-addr", "organization", "backend-transport",
		"backend-url", "server-command", "domains", "access-token",
		"request-timeout", "cleanup-interval", "max-idle",
	} {
		if err := viper.BindPFlag(name, serveCmd.Flags().Lookup(name)); err != nil {
			panic(err)
		}
	}
}

func runServe(cmd *cobra.Command, _ []string) error {
	serverTransport := viper.GetString("server-transport")
	stdioMode := false
	switch serverTransport {
	case serverTransportStreamableHTTP:
	case serverTransportStdio:
		stdioMode = true
	default:
		return fmt.Errorf("unsupported server transport '%s' (streamable-http, stdio)", serverTransport)
	}

	backendTransport, err := bridge.ParseTransportType(viper.GetString("backend-transport"))
	if err != nil {
		return err
	}

	// In stdio mode stdout carries the protocol, so logs go to stderr.
	log := newCLILogger()
	if stdioMode {
		log = newStderrLogger()
	}

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	setupSignalHandler(cancel, stdioMode)

	pool := bridge.NewPool(bridge.Config{
		ServerCommand:   viper.GetString("server-command"),
		Domains:         viper.GetString("domains"),
		AccessToken:     viper.GetString("access-token"),
		RequestTimeout:  viper.GetDuration("request-timeout"),
		CleanupInterval: viper.GetDuration("cleanup-interval"),
		MaxIdle:         viper.GetDuration("max-idle"),
		ClientVersion:   version,
		Logger:          log,
	})
	defer pool.CloseAll()

	if stdioMode {
		auth := bridge.AuthContext{
			Organization: viper.GetString("organization"),
			Transport:    backendTransport,
			ServerURL:    viper.GetString("backend-url"),
		}

		srv, err := server.NewStdioServer(server.Config{
			Pool:    pool,
			Name:    rootCmd.Use,
			Version: version,
			Logger:  log,
		}, auth)
		if err != nil {
			return err
		}

		log.Info("Serving organization %s over stdio", auth.Organization)
		return srv.Serve(ctx)
	}

	pool.StartCleanup(ctx)
	defer pool.Stop()

	srv, err := server.New(server.Config{
		Addr: viper.GetString("listen-addr"),
		Pool: pool,
		Defaults: server.Defaults{
			Organization: viper.GetString("organization"),
			Transport:    backendTransport,
			ServerURL:    viper.GetString("backend-url"),
		},
		RequestTimeout: viper.GetDuration("request-timeout"),
		Name:           rootCmd.Use,
		Version:        version,
		Logger:         log,
	})
	if err != nil {
		return err
	}

	if org := viper.GetString("organization"); org != "" {
		log.Info("Default organization: %s (backend transport: %s)", org, backendTransport)
	}
	return srv.Start(ctx)
}
