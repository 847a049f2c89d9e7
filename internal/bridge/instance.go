package bridge

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"
)

// InstanceState tracks a pooled client through its lifecycle. Transitions are
// connecting to ready or failed, and ready to closed; failed instances are
// never cached, so a later lookup retries from scratch.
type InstanceState string

const (
	StateConnecting InstanceState = "connecting"
	StateReady      InstanceState = "ready"
	StateFailed     InstanceState = "failed"
	StateClosed     InstanceState = "closed"
)

// ClientInstance is one live backend connection plus its cached tool catalog.
// The catalog is fetched once during creation and immutable afterwards.
type ClientInstance struct {
	key       string
	id        string
	transport TransportAdapter
	tools     []mcp.Tool

	mu         sync.RWMutex
	state      InstanceState
	lastUsedAt time.Time
}

func newConnectingInstance(key string) *ClientInstance {
	return &ClientInstance{
		key:        key,
		id:         shortID(),
		state:      StateConnecting,
		lastUsedAt: time.Now(),
	}
}

// complete installs the connected transport and catalog and publishes the
// ready state. Only the creating goroutine calls it, before any other
// goroutine can observe StateReady.
func (ci *ClientInstance) complete(t TransportAdapter, tools []mcp.Tool) {
	ci.transport = t
	ci.tools = tools
	ci.mu.Lock()
	ci.state = StateReady
	ci.lastUsedAt = time.Now()
	ci.mu.Unlock()
}

func (ci *ClientInstance) fail() {
	ci.mu.Lock()
	ci.state = StateFailed
	ci.mu.Unlock()
}

// shortID returns a compact identifier for log lines.
func shortID() string {
	return strings.SplitN(uuid.NewString(), "-", 2)[0]
}

// ID is the instance's log identifier, stable for its lifetime.
func (ci *ClientInstance) ID() string {
	return ci.id
}

// Key is the cache key the instance was created under.
func (ci *ClientInstance) Key() string {
	return ci.key
}

func (ci *ClientInstance) State() InstanceState {
	ci.mu.RLock()
	defer ci.mu.RUnlock()
	return ci.state
}

func (ci *ClientInstance) LastUsedAt() time.Time {
	ci.mu.RLock()
	defer ci.mu.RUnlock()
	return ci.lastUsedAt
}

// touch records activity so the idle sweep leaves the instance alone.
func (ci *ClientInstance) touch() {
	ci.mu.Lock()
	ci.lastUsedAt = time.Now()
	ci.mu.Unlock()
}

func (ci *ClientInstance) markClosed() {
	ci.mu.Lock()
	ci.state = StateClosed
	ci.mu.Unlock()
}

// Tools returns a copy of the cached catalog.
func (ci *ClientInstance) Tools() []mcp.Tool {
	tools := make([]mcp.Tool, len(ci.tools))
	copy(tools, ci.tools)
	return tools
}

// Tool looks up a catalog entry by name, returning the first match in
// catalog order.
func (ci *ClientInstance) Tool(name string) (mcp.Tool, bool) {
	for _, t := range ci.tools {
		if t.Name == name {
			return t, true
		}
	}
	return mcp.Tool{}, false
}

// CallTool forwards a tool invocation over the instance's transport.
func (ci *ClientInstance) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	ci.touch()
	result, err := ci.transport.CallTool(ctx, name, args)
	if err != nil {
		return nil, err
	}
	ci.touch()
	return result, nil
}
