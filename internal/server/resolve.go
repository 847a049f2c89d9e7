package server

import (
	"net/http"
	"strings"

	"github.com/giantswarm/mcp-azure-devops/internal/bridge"
)

// Defaults fills in auth context fields for requests that omit the tenant
// headers, so a single-tenant deployment can run without any client-side
// header configuration.
type Defaults struct {
	Organization string
	Transport    bridge.TransportType
	ServerURL    string
}

// resolveAuth derives the tenant auth context for one request. Header values
// win over configured defaults; the result is validated before any backend
// work happens.
func resolveAuth(r *http.Request, defaults Defaults) (bridge.AuthContext, error) {
	org := strings.TrimSpace(r.Header.Get(bridge.HeaderOrganization))
	if org == "" {
		org = defaults.Organization
	}

	transport := defaults.Transport
	if name := strings.TrimSpace(r.Header.Get(bridge.HeaderTransport)); name != "" {
		parsed, err := bridge.ParseTransportType(name)
		if err != nil {
			return bridge.AuthContext{}, err
		}
		transport = parsed
	}
	if transport == "" {
		transport = bridge.TransportStdio
	}

	serverURL := strings.TrimSpace(r.Header.Get(bridge.HeaderServerURL))
	if serverURL == "" {
		serverURL = defaults.ServerURL
	}

	auth := bridge.AuthContext{
		Organization: org,
		Transport:    transport,
		ServerURL:    serverURL,
	}
	if err := auth.Validate(); err != nil {
		return bridge.AuthContext{}, err
	}
	return auth, nil
}
