package bridge

import (
	"context"
	"fmt"
	"strings"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"
)

// Headers attached to backend connections and recognized by the HTTP surface.
const (
	HeaderOrganization = "X-Ado-Organization"
	HeaderTransport    = "X-Ado-Transport"
	HeaderServerURL    = "X-Ado-Server-Url"
)

// tokenEnvVar is the variable a spawned backend server reads its Azure DevOps
// access token from (the az devops CLI convention).
const tokenEnvVar = "AZURE_DEVOPS_EXT_PAT"

// TransportAdapter is the contract shared by both backend transports. Connect
// must leave the adapter fully usable or fully closed; a partially-opened
// connection is never handed back.
type TransportAdapter interface {
	Connect(ctx context.Context) error
	ListTools(ctx context.Context) ([]mcp.Tool, error)
	CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error)
	Close() error
}

// newTransport builds the adapter selected by the auth context. The context
// must already be validated.
func newTransport(auth AuthContext, cfg Config) (TransportAdapter, error) {
	switch auth.Transport {
	case TransportStdio:
		return newStdioTransport(auth, cfg), nil
	case TransportHTTP:
		return newHTTPTransport(auth, cfg), nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedTransport, auth.Transport)
	}
}

// SplitDomains turns the comma-separated domain filter configuration into a
// clean argument list: entries are trimmed and empty ones dropped.
func SplitDomains(csv string) []string {
	if strings.TrimSpace(csv) == "" {
		return nil
	}
	var domains []string
	for _, d := range strings.Split(csv, ",") {
		d = strings.TrimSpace(d)
		if d == "" {
			continue
		}
		domains = append(domains, d)
	}
	return domains
}

// mcpSession holds the established mark3labs client and implements the
// post-connect half of TransportAdapter shared by both transports.
type mcpSession struct {
	client *client.Client
}

func (s *mcpSession) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	result, err := s.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, err
	}
	return result.Tools, nil
}

func (s *mcpSession) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args
	return s.client.CallTool(ctx, req)
}

func (s *mcpSession) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

// initializeSession runs the MCP handshake and waits for the server's
// response, the point at which the connection is known to be stable.
func initializeSession(ctx context.Context, c *client.Client, info mcp.Implementation) error {
	initReq := mcp.InitializeRequest{}
	initReq.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	initReq.Params.Capabilities = mcp.ClientCapabilities{}
	initReq.Params.ClientInfo = info
	_, err := c.Initialize(ctx, initReq)
	return err
}

// stdioTransport spawns the backend tool server as a subprocess and talks
// newline-delimited JSON-RPC over its standard streams.
type stdioTransport struct {
	mcpSession

	command string
	args    []string
	env     []string
	info    mcp.Implementation
}

func newStdioTransport(auth AuthContext, cfg Config) *stdioTransport {
	fields := strings.Fields(cfg.ServerCommand)
	command := fields[0]

	// argv: base command arguments, then the organization, then the
	// optional domain filters.
	args := append([]string{}, fields[1:]...)
	args = append(args, auth.Organization)
	if domains := SplitDomains(cfg.Domains); len(domains) > 0 {
		args = append(args, "-d")
		args = append(args, domains...)
	}

	// The child inherits the parent environment; the extra entries here are
	// appended on top of it by the stdio transport.
	var env []string
	if cfg.AccessToken != "" {
		env = append(env, tokenEnvVar+"="+cfg.AccessToken)
	}

	return &stdioTransport{
		command: command,
		args:    args,
		env:     env,
		info:    cfg.clientInfo(),
	}
}

func (t *stdioTransport) Connect(ctx context.Context) error {
	stdio := transport.NewStdio(t.command, t.env, t.args...)
	c := client.NewClient(stdio)

	// Start with a background context so the subprocess lifetime is bound
	// to Close, not to the creation context.
	if err := c.Start(context.Background()); err != nil {
		return fmt.Errorf("failed to spawn backend server %q: %w", t.command, err)
	}

	if err := initializeSession(ctx, c, t.info); err != nil {
		_ = c.Close()
		return fmt.Errorf("backend handshake failed: %w", err)
	}

	t.client = c
	return nil
}

// httpTransport reaches an already-running backend tool server over a
// persistent streamable HTTP connection, carrying the organization id as a
// connection-level header.
type httpTransport struct {
	mcpSession

	serverURL string
	headers   map[string]string
	cfg       Config
	info      mcp.Implementation
}

func newHTTPTransport(auth AuthContext, cfg Config) *httpTransport {
	headers := map[string]string{
		HeaderOrganization: auth.Organization,
	}
	if cfg.AccessToken != "" {
		headers["Authorization"] = "Bearer " + cfg.AccessToken
	}
	return &httpTransport{
		serverURL: auth.ServerURL,
		headers:   headers,
		cfg:       cfg,
		info:      cfg.clientInfo(),
	}
}

func (t *httpTransport) Connect(ctx context.Context) error {
	c, err := client.NewStreamableHttpClient(t.serverURL,
		transport.WithHTTPTimeout(t.cfg.RequestTimeout),
		transport.WithHTTPHeaders(t.headers),
	)
	if err != nil {
		return fmt.Errorf("failed to create streamable HTTP client: %w", err)
	}

	// Start with a background context so the connection lifetime is bound
	// to Close, not to the creation context.
	if err := c.Start(context.Background()); err != nil {
		_ = c.Close()
		return fmt.Errorf("failed to connect to %s: %w", t.serverURL, err)
	}

	if err := initializeSession(ctx, c, t.info); err != nil {
		_ = c.Close()
		return fmt.Errorf("backend handshake failed: %w", err)
	}

	t.client = c
	return nil
}
