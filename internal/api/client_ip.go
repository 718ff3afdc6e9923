package api

import (
	"log/slog"
	"net"
	"net/http"
	"strings"
)

var defaultTrustedProxyCIDRs = []string{
	"127.0.0.1/32",
	"::1/128",
}

// clientIPResolver extracts the caller address, honoring X-Forwarded-For only
// when the immediate peer is a trusted proxy.
type clientIPResolver struct {
	trusted ipAllowList
}

func newClientIPResolver(trustedProxies []string) clientIPResolver {
	if len(trustedProxies) == 0 {
		trustedProxies = defaultTrustedProxyCIDRs
	}
	return clientIPResolver{trusted: parseIPAllowList("trusted_proxies", trustedProxies)}
}

func (c clientIPResolver) clientIPFromRequest(r *http.Request) string {
	peer := remoteHost(r)
	if !c.trusted.contains(peer) {
		return peer
	}
	fwd := strings.TrimSpace(r.Header.Get("X-Forwarded-For"))
	if fwd == "" {
		return peer
	}
	first, _, _ := strings.Cut(fwd, ",")
	first = strings.TrimSpace(first)
	if net.ParseIP(first) == nil {
		slog.Debug("ignoring malformed X-Forwarded-For", "value", fwd)
		return peer
	}
	return first
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	return strings.TrimSpace(r.RemoteAddr)
}
