// Package bridge maintains the pool of backend MCP clients the server
// multiplexes Azure DevOps traffic over.
//
// Each distinct auth context (organization, transport, server URL) maps to at
// most one live backend connection. The first request for a context spawns or
// dials the backend, runs the MCP handshake, and caches the tool catalog;
// concurrent requests for the same context share that single creation attempt
// and its outcome. Idle connections are reaped by a periodic sweep.
//
// # Key Components
//
//   - AuthContext: Per-request tenant identity and transport selection
//   - Pool: Single-flight cache of backend clients keyed by auth context
//   - ClientInstance: One live connection plus its cached tool catalog
//   - TransportAdapter: Backend access over stdio subprocess or streamable HTTP
package bridge
