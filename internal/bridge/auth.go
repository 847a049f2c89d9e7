package bridge

import (
	"errors"
	"fmt"
	"strings"
)

// TransportType selects how the backend tool server for a tenant is reached.
type TransportType string

const (
	// TransportStdio spawns the backend tool server as a subprocess and
	// speaks newline-delimited JSON-RPC over its standard streams.
	TransportStdio TransportType = "stdio"

	// TransportHTTP connects to an already-running backend tool server
	// over a persistent streamable HTTP connection.
	TransportHTTP TransportType = "http"
)

// cacheKeySeparator joins the auth context fields into a cache key. The
// separator cannot occur in an Azure DevOps organization name.
const cacheKeySeparator = "::"

// Sentinel errors returned by context validation and pool operations.
var (
	ErrMissingOrganization  = errors.New("organization is required")
	ErrMissingServerURL     = errors.New("server URL is required for http transport")
	ErrUnsupportedTransport = errors.New("unsupported transport type")
	ErrClientNotReady       = errors.New("no ready client for organization")
	ErrToolNotFound         = errors.New("tool not found")
)

// ParseTransportType validates a transport name. An empty string defaults to
// stdio, matching the behavior of running the backend server locally.
func ParseTransportType(s string) (TransportType, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", string(TransportStdio):
		return TransportStdio, nil
	case string(TransportHTTP), "streamable-http":
		return TransportHTTP, nil
	default:
		return "", fmt.Errorf("%w: %s", ErrUnsupportedTransport, s)
	}
}

// AuthContext carries the resolved tenant identity and transport selection
// for one request. It is produced outside this package (request headers or
// serve configuration) and is immutable once constructed.
type AuthContext struct {
	// Organization is the Azure DevOps organization name.
	Organization string

	// Transport selects stdio or http backend connectivity.
	Transport TransportType

	// ServerURL is the backend endpoint, required for the http transport.
	ServerURL string
}

// Validate checks the context invariants before any transport work happens.
func (a AuthContext) Validate() error {
	if strings.TrimSpace(a.Organization) == "" {
		return ErrMissingOrganization
	}
	switch a.Transport {
	case TransportStdio:
	case TransportHTTP:
		if strings.TrimSpace(a.ServerURL) == "" {
			return ErrMissingServerURL
		}
	default:
		return fmt.Errorf("%w: %s", ErrUnsupportedTransport, a.Transport)
	}
	return nil
}

// CacheKey derives the pooling key. Contexts with identical fields always
// yield identical keys; ServerURL contributes the empty string when unset.
func (a AuthContext) CacheKey() string {
	return a.Organization + cacheKeySeparator + string(a.Transport) + cacheKeySeparator + a.ServerURL
}
