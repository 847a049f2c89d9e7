package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/giantswarm/mcp-azure-devops/internal/bridge"
)

// JSON-RPC methods the HTTP surface answers.
const (
	methodInitialize  = "initialize"
	methodInitialized = "notifications/initialized"
	methodPing        = "ping"
	methodToolsList   = "tools/list"
	methodToolsCall   = "tools/call"
)

// JSON-RPC error codes.
const (
	codeParseError     = -32700
	codeInvalidRequest = -32600
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603
)

// maxRequestBody caps a single inbound request body.
const maxRequestBody = 4 * 1024 * 1024

// rpcRequest is the inbound message envelope. ID keeps the raw bytes so a
// null id round-trips as null and an absent one stays absent.
type rpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type rpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcErrorObj    `json:"error,omitempty"`
}

type rpcErrorObj struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

type callToolParams struct {
	Name      string         `json:"name"`
	Arguments map[string]any `json:"arguments"`
}

// handleMCP answers one JSON-RPC message per POST. Requests with an id get a
// JSON-RPC body back; notifications are acknowledged with 202 and no body.
func (s *Server) handleMCP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody))
	if err != nil {
		s.writeRPCError(w, nil, codeParseError, fmt.Sprintf("Invalid JSON request: %v", err))
		return
	}

	var req rpcRequest
	if err := json.Unmarshal(body, &req); err != nil {
		s.writeRPCError(w, nil, codeParseError, fmt.Sprintf("Invalid JSON request: %v", err))
		return
	}
	if req.Method == "" {
		s.writeRPCError(w, req.ID, codeInvalidRequest, "method is required")
		return
	}

	s.log.Request(req.Method, json.RawMessage(body))

	if req.ID == nil {
		// Notification. notifications/initialized needs no bookkeeping
		// here; everything else is ignored the same way.
		w.WriteHeader(http.StatusAccepted)
		return
	}

	switch req.Method {
	case methodInitialize:
		s.writeRPCResult(w, req.ID, s.initializeResult())
	case methodPing:
		s.writeRPCResult(w, req.ID, struct{}{})
	case methodToolsList:
		s.handleToolsList(w, r, req)
	case methodToolsCall:
		s.handleToolsCall(w, r, req)
	default:
		s.writeRPCError(w, req.ID, codeMethodNotFound, fmt.Sprintf("Method not found: %s", req.Method))
	}
}

func (s *Server) initializeResult() map[string]any {
	return map[string]any{
		"protocolVersion": mcp.LATEST_PROTOCOL_VERSION,
		"capabilities": map[string]any{
			"tools": map[string]any{"listChanged": false},
		},
		"serverInfo": map[string]any{
			"name":    s.name,
			"version": s.version,
		},
	}
}

// handleToolsList connects the tenant's backend on first use and returns its
// cached catalog.
func (s *Server) handleToolsList(w http.ResponseWriter, r *http.Request, req rpcRequest) {
	auth, err := resolveAuth(r, s.defaults)
	if err != nil {
		s.writeRPCError(w, req.ID, codeInvalidParams, err.Error())
		return
	}
	if _, err := s.pool.GetOrCreate(r.Context(), auth); err != nil {
		s.writeRPCError(w, req.ID, rpcCodeFor(err), err.Error())
		return
	}

	tools := s.pool.Tools(auth)
	if tools == nil {
		tools = []mcp.Tool{}
	}
	s.writeRPCResult(w, req.ID, map[string]any{"tools": tools})
}

func (s *Server) handleToolsCall(w http.ResponseWriter, r *http.Request, req rpcRequest) {
	auth, err := resolveAuth(r, s.defaults)
	if err != nil {
		s.writeRPCError(w, req.ID, codeInvalidParams, err.Error())
		return
	}

	var params callToolParams
	if len(req.Params) > 0 {
		if err := json.Unmarshal(req.Params, &params); err != nil {
			s.writeRPCError(w, req.ID, codeInvalidParams, fmt.Sprintf("invalid tool call params: %v", err))
			return
		}
	}
	if strings.TrimSpace(params.Name) == "" {
		s.writeRPCError(w, req.ID, codeInvalidParams, "tool name is required")
		return
	}

	if _, err := s.pool.GetOrCreate(r.Context(), auth); err != nil {
		s.writeRPCError(w, req.ID, rpcCodeFor(err), err.Error())
		return
	}
	result, err := s.pool.CallTool(r.Context(), params.Name, params.Arguments, auth)
	if err != nil {
		s.writeRPCError(w, req.ID, rpcCodeFor(err), err.Error())
		return
	}
	s.writeRPCResult(w, req.ID, result)
}

// rpcCodeFor maps pool errors onto JSON-RPC error codes: auth context
// problems are parameter errors, an unknown tool is method-not-found, and
// everything else is internal.
func rpcCodeFor(err error) int {
	switch {
	case errors.Is(err, bridge.ErrMissingOrganization),
		errors.Is(err, bridge.ErrMissingServerURL),
		errors.Is(err, bridge.ErrUnsupportedTransport):
		return codeInvalidParams
	case errors.Is(err, bridge.ErrToolNotFound):
		return codeMethodNotFound
	default:
		return codeInternalError
	}
}

func (s *Server) writeRPCResult(w http.ResponseWriter, id json.RawMessage, result any) {
	s.writeJSON(w, rpcResponse{JSONRPC: "2.0", ID: normalizeID(id), Result: result})
}

func (s *Server) writeRPCError(w http.ResponseWriter, id json.RawMessage, code int, message string) {
	s.writeJSON(w, rpcResponse{JSONRPC: "2.0", ID: normalizeID(id), Error: &rpcErrorObj{Code: code, Message: message}})
}

// normalizeID turns an absent id into an explicit null for responses where
// the request never carried a usable one.
func normalizeID(id json.RawMessage) json.RawMessage {
	if len(id) == 0 {
		return json.RawMessage("null")
	}
	return id
}

func (s *Server) writeJSON(w http.ResponseWriter, resp rpcResponse) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		s.log.Error("Failed to encode response: %v", err)
	}
}
