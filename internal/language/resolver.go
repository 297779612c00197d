// Package language picks the display language for a request.
package language

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
)

// HeaderName carries an explicit language choice from the client.
const HeaderName = "X-Language"

// DefaultCode is used when no signal is present.
const DefaultCode = "en"

// Holder persists the resolved code. *session.Session implements it.
type Holder interface {
	SetLanguage(code string)
}

// Resolver maps a request to a two-letter language code.
type Resolver struct {
	defaultCode string
	routes      map[string]string
}

// NewResolver creates a resolver. routes maps a hostname (without port) to a code.
func NewResolver(defaultCode string, routes map[string]string) *Resolver {
	if defaultCode == "" {
		defaultCode = DefaultCode
	}
	normalized := make(map[string]string, len(routes))
	for host, code := range routes {
		normalized[strings.ToLower(host)] = strings.ToLower(code)
	}
	slog.Debug("Language resolver configured", "default", defaultCode, "routes", len(normalized))
	return &Resolver{defaultCode: defaultCode, routes: normalized}
}

// Resolve checks the lang query parameter, then the X-Language header, then
// the host map. The result is stored on holder and returned.
func (r *Resolver) Resolve(holder Holder, req *http.Request) string {
	code := firstTwo(req.URL.Query().Get("lang"))
	if code == "" {
		code = firstTwo(req.Header.Get(HeaderName))
	}
	if code == "" {
		code = r.fromHost(req.Host)
	}
	if code == "" {
		code = r.defaultCode
	}
	holder.SetLanguage(code)
	return code
}

func (r *Resolver) fromHost(host string) string {
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return r.routes[strings.ToLower(host)]
}

func firstTwo(v string) string {
	v = strings.ToLower(strings.TrimSpace(v))
	if len(v) > 2 {
		v = v[:2]
	}
	return v
}
