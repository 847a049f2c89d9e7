// Package server contains the serving surfaces of the bridge: a
// multi-tenant JSON-RPC endpoint over HTTP and a single-tenant stdio MCP
// server.
//
// The HTTP surface resolves a tenant auth context from request headers on
// every message, so one listener multiplexes any number of Azure DevOps
// organizations over the shared client pool. The stdio surface is pinned to
// one organization at startup and mirrors that backend's tool catalog for
// hosts that spawn MCP servers as subprocesses.
package server
