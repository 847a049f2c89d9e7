package debug

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/giantswarm/mcp-azure-devops/internal/bridge"
	"github.com/giantswarm/mcp-azure-devops/internal/logger"
)

// notificationToolsListChanged is sent when the server's tool list changes.
const notificationToolsListChanged = "notifications/tools/list_changed"

// clientName identifies the debug client in the initialize handshake.
const clientName = "mcp-azure-devops-debug"

// Client is an MCP client pointed at a running bridge endpoint. It keeps a
// cache of the advertised tool catalog and refreshes it when the server
// announces changes.
type Client struct {
	endpoint           string
	headers            map[string]string
	logger             *logger.Logger
	client             *client.Client
	toolCache          []mcp.Tool
	mu                 sync.RWMutex
	notificationChan   chan mcp.JSONRPCNotification
	serverCapabilities *mcp.ServerCapabilities
	version            string
}

// ClientConfig holds configuration for creating a new Client.
type ClientConfig struct {
	// Endpoint is the bridge's MCP endpoint, e.g. http://localhost:8080/mcp.
	Endpoint string

	// Organization, Transport and ServerURL select the tenant the bridge
	// routes to. Non-empty fields are attached as X-Ado-* headers on every
	// request; empty ones are omitted so the bridge applies its defaults.
	Organization string
	Transport    string
	ServerURL    string

	Logger  *logger.Logger
	Version string
}

// NewClient creates a new debug client from a configuration.
func NewClient(cfg ClientConfig) *Client {
	headers := make(map[string]string)
	if cfg.Organization != "" {
		headers[bridge.HeaderOrganization] = cfg.Organization
	}
	if cfg.Transport != "" {
		headers[bridge.HeaderTransport] = cfg.Transport
	}
	if cfg.ServerURL != "" {
		headers[bridge.HeaderServerURL] = cfg.ServerURL
	}

	return &Client{
		endpoint:         cfg.Endpoint,
		headers:          headers,
		logger:           cfg.Logger,
		toolCache:        []mcp.Tool{},
		notificationChan: make(chan mcp.JSONRPCNotification, 10),
		version:          cfg.Version,
	}
}

// Run connects to the bridge and performs the initial handshake.
func (c *Client) Run(ctx context.Context) error {
	return c.connectAndInitialize(ctx)
}

// Reconnect tears down the current session and establishes a fresh one.
func (c *Client) Reconnect(ctx context.Context) error {
	c.logger.Info("Attempting to reconnect to the bridge...")
	if c.client != nil {
		c.client.Close()
	}
	return c.connectAndInitialize(ctx)
}

// Close shuts down the underlying MCP client.
func (c *Client) Close() error {
	if c.client == nil {
		return nil
	}
	return c.client.Close()
}

func (c *Client) connectAndInitialize(ctx context.Context) error {
	c.logger.Info("Connecting to bridge at %s...", c.endpoint)

	mcpClient, err := client.NewStreamableHttpClient(c.endpoint,
		transport.WithHTTPHeaders(c.headers))
	if err != nil {
		return fmt.Errorf("failed to create streamable HTTP client: %w", err)
	}

	c.client = mcpClient

	if err := mcpClient.Start(ctx); err != nil {
		return fmt.Errorf("failed to start client: %w", err)
	}

	mcpClient.OnNotification(func(notification mcp.JSONRPCNotification) {
		select {
		case c.notificationChan <- notification:
		case <-ctx.Done():
		}
	})

	if err := c.initialize(ctx); err != nil {
		return err
	}

	if !c.ServerSupportsTools() {
		c.logger.Info("Server does not support tools capability")
		return nil
	}

	if err := c.listTools(ctx, true); err != nil {
		return fmt.Errorf("initial tool listing failed: %w", err)
	}

	return nil
}

// Listen blocks and processes notifications until the context is cancelled.
func (c *Client) Listen(ctx context.Context) error {
	c.logger.Info("Waiting for notifications (press Ctrl+C to exit)...")

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("Shutting down...")
			return nil

		case notification := <-c.notificationChan:
			if err := c.handleNotification(ctx, notification); err != nil {
				c.logger.Error("Failed to handle notification: %v", err)
			}
		}
	}
}

// initialize performs the MCP protocol handshake.
func (c *Client) initialize(ctx context.Context) error {
	req := mcp.InitializeRequest{}
	req.Params.ProtocolVersion = mcp.LATEST_PROTOCOL_VERSION
	req.Params.Capabilities = mcp.ClientCapabilities{}
	req.Params.ClientInfo = mcp.Implementation{
		Name:    clientName,
		Version: c.version,
	}

	c.logger.Request("initialize", req.Params)

	result, err := c.client.Initialize(ctx, req)
	if err != nil {
		c.logger.Error("Initialize failed: %v", err)
		return err
	}

	c.logger.Response("initialize", result)

	c.mu.Lock()
	c.serverCapabilities = &result.Capabilities
	c.mu.Unlock()

	return nil
}

// listTools fetches the tool catalog. On refreshes it diffs the new list
// against the cache and reports what changed.
func (c *Client) listTools(ctx context.Context, initial bool) error {
	req := mcp.ListToolsRequest{}

	c.logger.Request("tools/list", req.Params)

	result, err := c.client.ListTools(ctx, req)
	if err != nil {
		c.logger.Error("ListTools failed: %v", err)
		return err
	}

	c.logger.Response("tools/list", result)

	if !initial {
		c.mu.RLock()
		oldTools := c.toolCache
		c.mu.RUnlock()

		c.mu.Lock()
		c.toolCache = result.Tools
		c.mu.Unlock()

		c.showToolDiff(oldTools, result.Tools)
	} else {
		c.mu.Lock()
		c.toolCache = result.Tools
		c.mu.Unlock()
	}

	return nil
}

// CallTool executes a tool with the given arguments, with reconnection logic.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]interface{}) (*mcp.CallToolResult, error) {
	req := mcp.CallToolRequest{}
	req.Params.Name = name
	req.Params.Arguments = args

	c.logger.Request("tools/call", req.Params)

	const maxRetries = 1
	var result *mcp.CallToolResult
	var err error

	for i := 0; i <= maxRetries; i++ {
		result, err = c.client.CallTool(ctx, req)
		if err == nil {
			c.logger.Response("tools/call", result)
			return result, nil
		}

		if shouldReconnect(err) && i < maxRetries {
			c.logger.Error("Connection lost during tool call. Attempting to reconnect...")
			if reconnErr := c.Reconnect(ctx); reconnErr != nil {
				err = fmt.Errorf("failed to reconnect: %w", reconnErr)
				break
			}
			c.logger.Info("Reconnected successfully. Retrying tool call...")
			continue
		}

		break
	}

	c.logger.Error("CallTool failed: %v", err)
	return nil, err
}

// handleNotification processes incoming notifications.
func (c *Client) handleNotification(ctx context.Context, notification mcp.JSONRPCNotification) error {
	c.logger.Notification(notification.Method, notification.Params)

	if notification.Method == notificationToolsListChanged && c.ServerSupportsTools() {
		return c.listTools(ctx, false)
	}

	return nil
}

// showToolDiff displays the differences between old and new tool lists.
func (c *Client) showToolDiff(oldTools, newTools []mcp.Tool) {
	oldMap := make(map[string]mcp.Tool)
	for _, tool := range oldTools {
		oldMap[tool.Name] = tool
	}

	newMap := make(map[string]mcp.Tool)
	for _, tool := range newTools {
		newMap[tool.Name] = tool
	}

	var added []string
	var removed []string
	var unchanged []string

	for name := range newMap {
		if _, exists := oldMap[name]; exists {
			unchanged = append(unchanged, name)
		} else {
			added = append(added, name)
		}
	}

	for name := range oldMap {
		if _, exists := newMap[name]; !exists {
			removed = append(removed, name)
		}
	}

	if len(added) > 0 || len(removed) > 0 {
		c.logger.Info("Tool changes detected:")
		for _, name := range unchanged {
			c.logger.Success("  ✓ Unchanged: %s", name)
		}
		for _, name := range added {
			c.logger.Success("  + Added: %s", name)
		}
		for _, name := range removed {
			c.logger.Error("  - Removed: %s", name)
		}
	} else {
		c.logger.Info("No tool changes detected")
	}
}

// ServerSupportsTools reports whether the connected server advertised the
// tools capability during initialization.
func (c *Client) ServerSupportsTools() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.serverCapabilities != nil && c.serverCapabilities.Tools != nil
}

func shouldReconnect(err error) bool {
	if err == nil {
		return false
	}

	// Context cancellation can happen on disconnect
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	errMsg := strings.ToLower(err.Error())
	if strings.Contains(errMsg, "connection refused") ||
		strings.Contains(errMsg, "connection reset by peer") ||
		strings.Contains(errMsg, "transport is closing") ||
		strings.Contains(errMsg, "broken pipe") ||
		strings.Contains(errMsg, "unexpected eof") {
		return true
	}

	return false
}
