package mcp

import (
	"net/http"
	"net/url"
	"strings"

	"wpmcp/internal/protocol"
)

var (
	corsAllowMethods  = "POST, DELETE, OPTIONS"
	corsAllowHeaders  = "Authorization, Content-Type, Accept, " + protocol.MCPProtocolVersionHeader + ", " + protocol.MCPSessionHeader
	corsExposeHeaders = protocol.MCPSessionHeader + ", " + protocol.SessionExpiredHeader
)

// originPolicy is the browser-origin allowlist for the MCP path. An
// allowlist entry without a port matches the same scheme and host on any
// port.
type originPolicy struct {
	allowed []*url.URL
	any     bool
}

func newOriginPolicy(origins []string) originPolicy {
	var p originPolicy
	for _, origin := range origins {
		origin = strings.TrimSpace(origin)
		if origin == "*" {
			p.any = true
			continue
		}
		if u, err := url.Parse(origin); err == nil && u.Scheme != "" && u.Host != "" {
			p.allowed = append(p.allowed, u)
		}
	}
	return p
}

func (p originPolicy) allows(origin string) bool {
	if p.any {
		return true
	}
	u, err := url.Parse(origin)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return false
	}
	for _, a := range p.allowed {
		if !strings.EqualFold(a.Scheme, u.Scheme) || !strings.EqualFold(a.Hostname(), u.Hostname()) {
			continue
		}
		if a.Port() == "" || a.Port() == u.Port() {
			return true
		}
	}
	return false
}

func isPreflight(r *http.Request) bool {
	return r.Method == http.MethodOptions &&
		r.Header.Get("Origin") != "" &&
		r.Header.Get("Access-Control-Request-Method") != ""
}

func setCORSHeaders(w http.ResponseWriter, origin string) {
	h := w.Header()
	h.Set("Access-Control-Allow-Origin", origin)
	h.Add("Vary", "Origin")
	h.Set("Access-Control-Expose-Headers", corsExposeHeaders)
}

func setPreflightHeaders(w http.ResponseWriter, origin string) {
	setCORSHeaders(w, origin)
	h := w.Header()
	h.Set("Access-Control-Allow-Methods", corsAllowMethods)
	h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
	h.Set("Access-Control-Max-Age", "600")
}
