package bridge

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/giantswarm/mcp-azure-devops/internal/logger"
)

// Defaults applied by NewPool when the corresponding Config field is zero.
const (
	DefaultServerCommand   = "npx -y @azure-devops/mcp"
	DefaultRequestTimeout  = 30 * time.Second
	DefaultCleanupInterval = 15 * time.Minute
	DefaultMaxIdle         = 30 * time.Minute

	defaultClientName = "mcp-azure-devops"
)

// Config carries the pool-wide settings shared by every backend client.
// Per-tenant parameters arrive with each AuthContext instead.
type Config struct {
	// ServerCommand is the stdio backend command line, split on whitespace.
	ServerCommand string
	// Domains is the comma-separated tool domain filter passed to spawned
	// backends, empty for all domains.
	Domains string
	// AccessToken is a static Azure DevOps token handed to backends: as an
	// environment variable over stdio, as a bearer header over HTTP.
	AccessToken string

	RequestTimeout  time.Duration
	CleanupInterval time.Duration
	MaxIdle         time.Duration

	// ClientName and ClientVersion identify the bridge in the MCP
	// handshake with backend servers.
	ClientName    string
	ClientVersion string

	Logger *logger.Logger
}

func (c Config) withDefaults() Config {
	if c.ServerCommand == "" {
		c.ServerCommand = DefaultServerCommand
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = DefaultRequestTimeout
	}
	if c.CleanupInterval <= 0 {
		c.CleanupInterval = DefaultCleanupInterval
	}
	if c.MaxIdle <= 0 {
		c.MaxIdle = DefaultMaxIdle
	}
	return c
}

func (c Config) clientInfo() mcp.Implementation {
	name := c.ClientName
	if name == "" {
		name = defaultClientName
	}
	version := c.ClientVersion
	if version == "" {
		version = "dev"
	}
	return mcp.Implementation{Name: name, Version: version}
}

// connectFunc establishes a backend connection and fetches its tool catalog.
// Swapped out in tests.
type connectFunc func(ctx context.Context, auth AuthContext) (TransportAdapter, []mcp.Tool, error)

// poolEntry pairs an instance with the channel its creation is announced on.
// The channel is closed exactly once, after inst reached ready or failed and
// err is final.
type poolEntry struct {
	inst  *ClientInstance
	ready chan struct{}
	err   error
}

// Pool caches one backend client per auth context and hands concurrent
// callers of the same context a single shared instance. Creation is
// single-flight: the first caller connects while later ones wait for the
// outcome, and a failed attempt is forgotten so the next caller retries.
type Pool struct {
	cfg     Config
	log     *logger.Logger
	connect connectFunc

	mu      sync.Mutex
	entries map[string]*poolEntry

	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

func NewPool(cfg Config) *Pool {
	cfg = cfg.withDefaults()
	log := cfg.Logger
	if log == nil {
		log = logger.NewLoggerWithWriter(false, false, false, io.Discard)
	}
	p := &Pool{
		cfg:     cfg,
		log:     log,
		entries: make(map[string]*poolEntry),
		stopCh:  make(chan struct{}),
	}
	p.connect = p.dial
	return p
}

// dial is the production connectFunc: build the transport for the auth
// context, connect it, and pull the tool catalog.
func (p *Pool) dial(ctx context.Context, auth AuthContext) (TransportAdapter, []mcp.Tool, error) {
	t, err := newTransport(auth, p.cfg)
	if err != nil {
		return nil, nil, err
	}
	if err := t.Connect(ctx); err != nil {
		return nil, nil, err
	}
	tools, err := t.ListTools(ctx)
	if err != nil {
		_ = t.Close()
		return nil, nil, fmt.Errorf("failed to list backend tools: %w", err)
	}
	return t, tools, nil
}

// GetOrCreate returns the ready client for the auth context, creating and
// connecting one if none is cached. It validates the context first and never
// touches the network for an invalid one.
func (p *Pool) GetOrCreate(ctx context.Context, auth AuthContext) (*ClientInstance, error) {
	if err := auth.Validate(); err != nil {
		return nil, err
	}
	key := auth.CacheKey()

	for {
		p.mu.Lock()
		e, ok := p.entries[key]
		if !ok {
			e = &poolEntry{inst: newConnectingInstance(key), ready: make(chan struct{})}
			p.entries[key] = e
			p.mu.Unlock()
			return p.create(ctx, key, e, auth)
		}
		p.mu.Unlock()

		select {
		case <-e.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
		if e.err != nil {
			return nil, e.err
		}
		if e.inst.State() == StateReady {
			e.inst.touch()
			return e.inst, nil
		}
		// The entry was closed between lookup and wakeup. Loop so a fresh
		// connection replaces it.
	}
}

// create runs the connection attempt for a freshly claimed entry. On failure
// the entry is purged before waiters are released, so the key retries from
// scratch on the next lookup.
func (p *Pool) create(ctx context.Context, key string, e *poolEntry, auth AuthContext) (*ClientInstance, error) {
	p.log.InfoVerbose("Creating %s backend client %s for organization %s", auth.Transport, e.inst.ID(), auth.Organization)

	t, tools, err := p.connect(ctx, auth)
	if err != nil {
		e.inst.fail()
		p.mu.Lock()
		delete(p.entries, key)
		p.mu.Unlock()
		e.err = err
		close(e.ready)
		p.log.Warning("Backend client for organization %s failed: %v", auth.Organization, err)
		return nil, err
	}

	e.inst.complete(t, tools)
	close(e.ready)
	p.log.Info("Backend client %s ready for organization %s (%d tools)", e.inst.ID(), auth.Organization, len(tools))
	return e.inst, nil
}

// lookupReady fetches the cached instance for the auth context if it is in
// the ready state. It never creates one.
func (p *Pool) lookupReady(auth AuthContext) (*ClientInstance, bool) {
	p.mu.Lock()
	e, ok := p.entries[auth.CacheKey()]
	p.mu.Unlock()
	if !ok || e.inst.State() != StateReady {
		return nil, false
	}
	return e.inst, true
}

// IsReady reports whether a ready client is cached for the auth context.
func (p *Pool) IsReady(auth AuthContext) bool {
	_, ok := p.lookupReady(auth)
	return ok
}

// Tools returns the cached tool catalog for the auth context, or nil when no
// ready client exists.
func (p *Pool) Tools(auth AuthContext) []mcp.Tool {
	inst, ok := p.lookupReady(auth)
	if !ok {
		return nil
	}
	return inst.Tools()
}

// Tool looks up a single catalog entry by name for the auth context.
func (p *Pool) Tool(name string, auth AuthContext) (mcp.Tool, bool) {
	inst, ok := p.lookupReady(auth)
	if !ok {
		return mcp.Tool{}, false
	}
	return inst.Tool(name)
}

// CallTool invokes a tool on the ready client for the auth context. The tool
// must exist in the cached catalog; unknown names are rejected locally
// without a backend round trip.
func (p *Pool) CallTool(ctx context.Context, name string, args map[string]any, auth AuthContext) (*mcp.CallToolResult, error) {
	inst, ok := p.lookupReady(auth)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrClientNotReady, auth.Organization)
	}
	if _, found := inst.Tool(name); !found {
		return nil, fmt.Errorf("%w: %s", ErrToolNotFound, name)
	}
	result, err := inst.CallTool(ctx, name, args)
	if err != nil {
		return nil, fmt.Errorf("tool %s failed: %w", name, err)
	}
	return result, nil
}

// CleanupUnused closes and forgets every ready client whose last use lies
// further back than maxAge, returning how many were evicted. In-flight
// creations are left alone. Close failures are logged and do not abort the
// sweep.
func (p *Pool) CleanupUnused(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	p.mu.Lock()
	var victims []*ClientInstance
	for key, e := range p.entries {
		if e.inst.State() != StateReady {
			continue
		}
		if !e.inst.LastUsedAt().Before(cutoff) {
			continue
		}
		delete(p.entries, key)
		victims = append(victims, e.inst)
	}
	p.mu.Unlock()

	for _, inst := range victims {
		inst.markClosed()
		if err := inst.transport.Close(); err != nil {
			p.log.Warning("Failed to close idle backend client %s: %v", inst.ID(), err)
			continue
		}
		p.log.InfoVerbose("Closed idle backend client %s (%s)", inst.ID(), inst.Key())
	}
	return len(victims)
}

// CloseAll closes every cached client and empties the pool. Per-instance
// close errors are logged and swallowed. Meant for process shutdown; an
// in-flight creation finishing afterwards publishes into an entry that is no
// longer in the map and is never handed out again.
func (p *Pool) CloseAll() {
	p.mu.Lock()
	victims := make([]*ClientInstance, 0, len(p.entries))
	for key, e := range p.entries {
		delete(p.entries, key)
		if e.inst.State() == StateReady {
			victims = append(victims, e.inst)
		}
	}
	p.mu.Unlock()

	for _, inst := range victims {
		inst.markClosed()
		if err := inst.transport.Close(); err != nil {
			p.log.WarningVerbose("Failed to close backend client %s: %v", inst.ID(), err)
		}
	}
	if len(victims) > 0 {
		p.log.Info("Closed %d backend client(s)", len(victims))
	}
}

// Size reports how many entries the pool currently tracks, including
// in-flight creations.
func (p *Pool) Size() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.entries)
}

// StartCleanup launches the periodic idle sweep. It stops when ctx is
// cancelled or Stop is called.
func (p *Pool) StartCleanup(ctx context.Context) {
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ticker := time.NewTicker(p.cfg.CleanupInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-p.stopCh:
				return
			case <-ticker.C:
				if n := p.CleanupUnused(p.cfg.MaxIdle); n > 0 {
					p.log.Info("Evicted %d idle backend client(s)", n)
				}
			}
		}
	}()
}

// Stop terminates the cleanup goroutine and waits for it to exit. Safe to
// call multiple times.
func (p *Pool) Stop() {
	p.stopOnce.Do(func() { close(p.stopCh) })
	p.wg.Wait()
}
