package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/giantswarm/mcp-azure-devops/internal/bridge"
	"github.com/giantswarm/mcp-azure-devops/internal/logger"
)

// StdioServer exposes a single organization's backend tools over stdio, for
// MCP hosts that spawn their servers as subprocesses. The backend is
// connected up front so the catalog is known at registration time.
type StdioServer struct {
	pool    ClientPool
	auth    bridge.AuthContext
	name    string
	version string
	log     *logger.Logger
}

// NewStdioServer builds the stdio surface for one auth context.
func NewStdioServer(cfg Config, auth bridge.AuthContext) (*StdioServer, error) {
	if cfg.Pool == nil {
		return nil, errors.New("client pool is required")
	}
	if err := auth.Validate(); err != nil {
		return nil, err
	}

	name := cfg.Name
	if name == "" {
		name = defaultServerName
	}
	version := cfg.Version
	if version == "" {
		version = "dev"
	}
	log := cfg.Logger
	if log == nil {
		log = logger.NewLoggerWithWriter(false, false, false, io.Discard)
	}

	return &StdioServer{
		pool:    cfg.Pool,
		auth:    auth,
		name:    name,
		version: version,
		log:     log,
	}, nil
}

// Serve connects the backend, mirrors its catalog onto a local MCP server,
// and speaks MCP on stdin/stdout until EOF.
func (s *StdioServer) Serve(ctx context.Context) error {
	inst, err := s.pool.GetOrCreate(ctx, s.auth)
	if err != nil {
		return fmt.Errorf("failed to connect backend for %s: %w", s.auth.Organization, err)
	}

	srv := mcpserver.NewMCPServer(
		s.name,
		s.version,
		mcpserver.WithToolCapabilities(false),
		mcpserver.WithResourceCapabilities(false, false),
		mcpserver.WithPromptCapabilities(false),
	)
	if err := s.registerTools(srv, inst.Tools()); err != nil {
		return err
	}

	s.log.Info("Serving %d tools for organization %s on stdio", len(inst.Tools()), s.auth.Organization)
	return mcpserver.ServeStdio(srv)
}

// registerTools re-registers the backend catalog under this server. Schemas
// are carried over verbatim as raw JSON so nothing is lost in translation.
func (s *StdioServer) registerTools(srv *mcpserver.MCPServer, tools []mcp.Tool) error {
	for _, tool := range tools {
		schemaJSON, err := json.Marshal(tool.InputSchema)
		if err != nil {
			return fmt.Errorf("failed to encode schema for tool %s: %w", tool.Name, err)
		}
		proxied := mcp.Tool{
			Name:           tool.Name,
			Description:    tool.Description,
			RawInputSchema: schemaJSON,
		}
		srv.AddTool(proxied, s.proxyHandler(tool.Name))
	}
	return nil
}

// proxyHandler forwards one tool's invocations to the pooled backend
// client. Backend failures come back as tool errors rather than protocol
// errors so the host surfaces them to the model.
func (s *StdioServer) proxyHandler(name string) mcpserver.ToolHandlerFunc {
	return func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		args, _ := req.Params.Arguments.(map[string]any)
		result, err := s.pool.CallTool(ctx, name, args, s.auth)
		if err != nil {
			s.log.WarningVerbose("Tool %s failed: %v", name, err)
			return mcp.NewToolResultError(err.Error()), nil
		}
		return result, nil
	}
}
