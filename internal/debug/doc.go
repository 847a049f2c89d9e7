// Package debug provides an interactive client for a running bridge.
//
// The client speaks MCP over streamable HTTP to the bridge endpoint and tags
// every request with the X-Ado-* tenant headers, so one bridge process can be
// exercised on behalf of any organization. The REPL wraps the client with
// readline editing, tab completion fed from the live tool cache, and a
// background listener that reacts to tools/list_changed notifications.
//
// # Key Components
//
//   - Client: connects to the bridge, caches the tool catalog, and
//     reconnects once when the connection drops mid-call
//   - REPL: interactive Read-Eval-Print Loop (list, describe, call)
package debug
