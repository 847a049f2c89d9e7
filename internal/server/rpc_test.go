package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/giantswarm/mcp-azure-devops/internal/bridge"
)

// fakePool records the auth contexts and calls the handlers hand it.
type fakePool struct {
	mu        sync.Mutex
	created   []bridge.AuthContext
	createErr error
	tools     []mcp.Tool
	callErr   error
	lastName  string
	lastArgs  map[string]any
}

func (f *fakePool) GetOrCreate(_ context.Context, auth bridge.AuthContext) (*bridge.ClientInstance, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.created = append(f.created, auth)
	if f.createErr != nil {
		return nil, f.createErr
	}
	return nil, nil
}

func (f *fakePool) Tools(bridge.AuthContext) []mcp.Tool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.tools
}

func (f *fakePool) CallTool(_ context.Context, name string, args map[string]any, _ bridge.AuthContext) (*mcp.CallToolResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastName, f.lastArgs = name, args
	if f.callErr != nil {
		return nil, f.callErr
	}
	return mcp.NewToolResultText("ran " + name), nil
}

func (f *fakePool) createdAuths() []bridge.AuthContext {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]bridge.AuthContext{}, f.created...)
}

func newTestServer(t *testing.T, pool ClientPool, defaults Defaults) *Server {
	t.Helper()
	s, err := New(Config{
		Addr:     ":0",
		Pool:     pool,
		Defaults: defaults,
		Name:     "test-bridge",
		Version:  "0.0.1",
	})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return s
}

func postRPC(t *testing.T, h http.Handler, body string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/mcp", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeRPC(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var obj map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &obj); err != nil {
		t.Fatalf("response is not JSON: %q (%v)", rr.Body.String(), err)
	}
	return obj
}

func rpcErrorOf(t *testing.T, obj map[string]any) (float64, string) {
	t.Helper()
	e, ok := obj["error"].(map[string]any)
	if !ok {
		t.Fatalf("expected an error object, got %v", obj)
	}
	code, _ := e["code"].(float64)
	message, _ := e["message"].(string)
	return code, message
}

func TestHealthz(t *testing.T) {
	s := newTestServer(t, &fakePool{}, Defaults{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rr := httptest.NewRecorder()
	s.Handler().ServeHTTP(rr, req)

	if rr.Code != http.StatusNoContent {
		t.Errorf("status: got %d, want %d", rr.Code, http.StatusNoContent)
	}
	if rr.Body.Len() != 0 {
		t.Errorf("unexpected body: %q", rr.Body.String())
	}
}

func TestInitialize(t *testing.T) {
	s := newTestServer(t, &fakePool{}, Defaults{})
	rr := postRPC(t, s.Handler(), `{"jsonrpc":"2.0","id":1,"method":"initialize"}`, nil)

	obj := decodeRPC(t, rr)
	if id, _ := obj["id"].(float64); id != 1 {
		t.Errorf("id: got %v, want 1", obj["id"])
	}
	result, ok := obj["result"].(map[string]any)
	if !ok {
		t.Fatalf("no result in %v", obj)
	}
	if v, _ := result["protocolVersion"].(string); v == "" {
		t.Error("protocolVersion missing")
	}
	info, _ := result["serverInfo"].(map[string]any)
	if info["name"] != "test-bridge" || info["version"] != "0.0.1" {
		t.Errorf("serverInfo: got %v", info)
	}
}

func TestPing(t *testing.T) {
	s := newTestServer(t, &fakePool{}, Defaults{})
	rr := postRPC(t, s.Handler(), `{"jsonrpc":"2.0","id":"ping-1","method":"ping"}`, nil)

	obj := decodeRPC(t, rr)
	if obj["id"] != "ping-1" {
		t.Errorf("string id not preserved: %v", obj["id"])
	}
	if _, ok := obj["result"]; !ok {
		t.Error("ping must return an empty result")
	}
}

func TestUnknownMethod(t *testing.T) {
	s := newTestServer(t, &fakePool{}, Defaults{})
	rr := postRPC(t, s.Handler(), `{"jsonrpc":"2.0","id":2,"method":"resources/list"}`, nil)

	code, message := rpcErrorOf(t, decodeRPC(t, rr))
	if code != -32601 {
		t.Errorf("code: got %v, want -32601", code)
	}
	if !strings.Contains(message, "resources/list") {
		t.Errorf("message does not name the method: %q", message)
	}
}

func TestMalformedBody(t *testing.T) {
	s := newTestServer(t, &fakePool{}, Defaults{})
	rr := postRPC(t, s.Handler(), "this is not json", nil)

	obj := decodeRPC(t, rr)
	code, message := rpcErrorOf(t, obj)
	if code != -32700 {
		t.Errorf("code: got %v, want -32700", code)
	}
	if !strings.HasPrefix(message, "Invalid JSON request:") {
		t.Errorf("message: got %q", message)
	}
	if id, present := obj["id"]; !present || id != nil {
		t.Errorf("id must be null, got %v", id)
	}
}

func TestMissingMethod(t *testing.T) {
	s := newTestServer(t, &fakePool{}, Defaults{})
	rr := postRPC(t, s.Handler(), `{"jsonrpc":"2.0","id":3}`, nil)

	code, _ := rpcErrorOf(t, decodeRPC(t, rr))
	if code != -32600 {
		t.Errorf("code: got %v, want -32600", code)
	}
}

func TestNotificationAccepted(t *testing.T) {
	pool := &fakePool{}
	s := newTestServer(t, pool, Defaults{})

	for _, body := range []string{
		`{"jsonrpc":"2.0","method":"notifications/initialized"}`,
		`{"jsonrpc":"2.0","method":"notifications/cancelled"}`,
	} {
		rr := postRPC(t, s.Handler(), body, nil)
		if rr.Code != http.StatusAccepted {
			t.Errorf("status for %s: got %d, want %d", body, rr.Code, http.StatusAccepted)
		}
		if rr.Body.Len() != 0 {
			t.Errorf("notification produced a body: %q", rr.Body.String())
		}
	}
	if len(pool.createdAuths()) != 0 {
		t.Error("notifications must not touch the pool")
	}
}

func TestToolsListWithHeaders(t *testing.T) {
	pool := &fakePool{tools: []mcp.Tool{
		mcp.NewTool("core_list_projects", mcp.WithDescription("List projects")),
	}}
	s := newTestServer(t, pool, Defaults{})

	rr := postRPC(t, s.Handler(), `{"jsonrpc":"2.0","id":7,"method":"tools/list"}`,
		map[string]string{bridge.HeaderOrganization: "contoso"})

	obj := decodeRPC(t, rr)
	if id, _ := obj["id"].(float64); id != 7 {
		t.Errorf("id: got %v, want 7", obj["id"])
	}
	result, _ := obj["result"].(map[string]any)
	tools, _ := result["tools"].([]any)
	if len(tools) != 1 {
		t.Fatalf("expected one tool, got %v", result)
	}
	first, _ := tools[0].(map[string]any)
	if first["name"] != "core_list_projects" {
		t.Errorf("tool name: got %v", first["name"])
	}

	created := pool.createdAuths()
	if len(created) != 1 {
		t.Fatalf("expected one creation, got %d", len(created))
	}
	if created[0].Organization != "contoso" || created[0].Transport != bridge.TransportStdio {
		t.Errorf("resolved auth: %+v", created[0])
	}
}

func TestToolsListEmptyCatalog(t *testing.T) {
	s := newTestServer(t, &fakePool{}, Defaults{Organization: "contoso"})
	rr := postRPC(t, s.Handler(), `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`, nil)

	result, _ := decodeRPC(t, rr)["result"].(map[string]any)
	tools, ok := result["tools"].([]any)
	if !ok {
		t.Fatalf("tools must be an array even when empty, got %v", result["tools"])
	}
	if len(tools) != 0 {
		t.Errorf("expected no tools, got %v", tools)
	}
}

func TestToolsListMissingOrganization(t *testing.T) {
	pool := &fakePool{}
	s := newTestServer(t, pool, Defaults{})

	rr := postRPC(t, s.Handler(), `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`, nil)

	code, message := rpcErrorOf(t, decodeRPC(t, rr))
	if code != -32602 {
		t.Errorf("code: got %v, want -32602", code)
	}
	if !strings.Contains(message, "organization is required") {
		t.Errorf("message: got %q", message)
	}
	if len(pool.createdAuths()) != 0 {
		t.Error("invalid auth context reached the pool")
	}
}

func TestToolsListDefaultsApplied(t *testing.T) {
	pool := &fakePool{}
	s := newTestServer(t, pool, Defaults{
		Organization: "defaultorg",
		Transport:    bridge.TransportHTTP,
		ServerURL:    "https://backend.example.com/mcp",
	})

	postRPC(t, s.Handler(), `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`, nil)

	created := pool.createdAuths()
	if len(created) != 1 {
		t.Fatalf("expected one creation, got %d", len(created))
	}
	want := bridge.AuthContext{
		Organization: "defaultorg",
		Transport:    bridge.TransportHTTP,
		ServerURL:    "https://backend.example.com/mcp",
	}
	if created[0] != want {
		t.Errorf("resolved auth: got %+v, want %+v", created[0], want)
	}
}

func TestToolsListHeaderOverridesDefault(t *testing.T) {
	pool := &fakePool{}
	s := newTestServer(t, pool, Defaults{Organization: "defaultorg"})

	postRPC(t, s.Handler(), `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`,
		map[string]string{bridge.HeaderOrganization: "override"})

	created := pool.createdAuths()
	if len(created) != 1 || created[0].Organization != "override" {
		t.Errorf("header did not override default: %+v", created)
	}
}

func TestToolsListInvalidTransportHeader(t *testing.T) {
	s := newTestServer(t, &fakePool{}, Defaults{Organization: "contoso"})

	rr := postRPC(t, s.Handler(), `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`,
		map[string]string{bridge.HeaderTransport: "grpc"})

	code, _ := rpcErrorOf(t, decodeRPC(t, rr))
	if code != -32602 {
		t.Errorf("code: got %v, want -32602", code)
	}
}

func TestToolsListBackendFailure(t *testing.T) {
	pool := &fakePool{createErr: errors.New("spawn failed")}
	s := newTestServer(t, pool, Defaults{Organization: "contoso"})

	rr := postRPC(t, s.Handler(), `{"jsonrpc":"2.0","id":1,"method":"tools/list"}`, nil)

	code, message := rpcErrorOf(t, decodeRPC(t, rr))
	if code != -32603 {
		t.Errorf("code: got %v, want -32603", code)
	}
	if !strings.Contains(message, "spawn failed") {
		t.Errorf("message: got %q", message)
	}
}

func TestToolsCall(t *testing.T) {
	pool := &fakePool{}
	s := newTestServer(t, pool, Defaults{Organization: "contoso"})

	rr := postRPC(t, s.Handler(),
		`{"jsonrpc":"2.0","id":5,"method":"tools/call","params":{"name":"core_list_projects","arguments":{"top":5}}}`, nil)

	obj := decodeRPC(t, rr)
	result, _ := obj["result"].(map[string]any)
	content, _ := result["content"].([]any)
	if len(content) != 1 {
		t.Fatalf("expected one content block, got %v", result)
	}
	block, _ := content[0].(map[string]any)
	if block["text"] != "ran core_list_projects" {
		t.Errorf("content: got %v", block)
	}

	if pool.lastName != "core_list_projects" {
		t.Errorf("tool name: got %q", pool.lastName)
	}
	if top, _ := pool.lastArgs["top"].(float64); top != 5 {
		t.Errorf("arguments not forwarded: %v", pool.lastArgs)
	}
}

func TestToolsCallMissingName(t *testing.T) {
	s := newTestServer(t, &fakePool{}, Defaults{Organization: "contoso"})

	rr := postRPC(t, s.Handler(), `{"jsonrpc":"2.0","id":5,"method":"tools/call","params":{"arguments":{}}}`, nil)

	code, message := rpcErrorOf(t, decodeRPC(t, rr))
	if code != -32602 {
		t.Errorf("code: got %v, want -32602", code)
	}
	if message != "tool name is required" {
		t.Errorf("message: got %q", message)
	}
}

func TestToolsCallUnknownTool(t *testing.T) {
	pool := &fakePool{callErr: fmt.Errorf("%w: no_such_tool", bridge.ErrToolNotFound)}
	s := newTestServer(t, pool, Defaults{Organization: "contoso"})

	rr := postRPC(t, s.Handler(),
		`{"jsonrpc":"2.0","id":5,"method":"tools/call","params":{"name":"no_such_tool"}}`, nil)

	code, _ := rpcErrorOf(t, decodeRPC(t, rr))
	if code != -32601 {
		t.Errorf("code: got %v, want -32601", code)
	}
}

func TestToolsCallBackendFailure(t *testing.T) {
	pool := &fakePool{callErr: errors.New("broken pipe")}
	s := newTestServer(t, pool, Defaults{Organization: "contoso"})

	rr := postRPC(t, s.Handler(),
		`{"jsonrpc":"2.0","id":5,"method":"tools/call","params":{"name":"core_list_projects"}}`, nil)

	code, message := rpcErrorOf(t, decodeRPC(t, rr))
	if code != -32603 {
		t.Errorf("code: got %v, want -32603", code)
	}
	if !strings.Contains(message, "broken pipe") {
		t.Errorf("message: got %q", message)
	}
}

func TestNewValidatesConfig(t *testing.T) {
	if _, err := New(Config{Addr: ":0"}); err == nil {
		t.Error("expected error for missing pool")
	}
	if _, err := New(Config{Pool: &fakePool{}}); err == nil {
		t.Error("expected error for missing address")
	}
}
