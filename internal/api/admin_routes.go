package api

import (
	"log/slog"
	"net"
	"net/http"
	"net/http/pprof"
	"strings"
)

var defaultAdminRouteCIDRs = []string{
	"127.0.0.1/32",
	"::1/128",
}

// ipAllowList matches addresses against a set of networks. Bare IPs are
// treated as single-host networks.
type ipAllowList []*net.IPNet

func parseIPAllowList(kind string, entries []string) ipAllowList {
	list := make(ipAllowList, 0, len(entries))
	for _, raw := range entries {
		value := strings.TrimSpace(raw)
		if value == "" {
			continue
		}
		if ip := net.ParseIP(value); ip != nil {
			bits := 128
			if v4 := ip.To4(); v4 != nil {
				ip, bits = v4, 32
			}
			list = append(list, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, block, err := net.ParseCIDR(value)
		if err != nil {
			slog.Warn("ignoring invalid CIDR", "list", kind, "cidr", value, "error", err)
			continue
		}
		list = append(list, block)
	}
	return list
}

func (l ipAllowList) contains(host string) bool {
	ip := net.ParseIP(strings.TrimSpace(host))
	if ip == nil {
		return false
	}
	for _, block := range l {
		if block.Contains(ip) {
			return true
		}
	}
	return false
}

// adminRouteAccess hides operator routes from callers outside the allowlist;
// they see a plain 404.
type adminRouteAccess struct {
	allowList ipAllowList
	clientIP  func(*http.Request) string
}

func newAdminRouteAccess(cidrs []string, clientIP func(*http.Request) string) adminRouteAccess {
	if clientIP == nil {
		clientIP = remoteHost
	}
	return adminRouteAccess{
		allowList: parseIPAllowList("admin", cidrs),
		clientIP:  clientIP,
	}
}

func (a adminRouteAccess) wrap(next http.Handler) http.Handler {
	if next == nil {
		return http.NotFoundHandler()
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !a.allows(r) {
			http.NotFound(w, r)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (a adminRouteAccess) allows(r *http.Request) bool {
	return a.allowList.contains(a.clientIP(r))
}

func (s *Server) registerPprofRoutes() {
	guard := s.adminRouteAccess.wrap
	s.mux.Handle("GET /debug/pprof/", guard(http.HandlerFunc(pprof.Index)))
	s.mux.Handle("GET /debug/pprof/cmdline", guard(http.HandlerFunc(pprof.Cmdline)))
	s.mux.Handle("GET /debug/pprof/profile", guard(http.HandlerFunc(pprof.Profile)))
	s.mux.Handle("GET /debug/pprof/symbol", guard(http.HandlerFunc(pprof.Symbol)))
	s.mux.Handle("POST /debug/pprof/symbol", guard(http.HandlerFunc(pprof.Symbol)))
	s.mux.Handle("GET /debug/pprof/trace", guard(http.HandlerFunc(pprof.Trace)))
	s.mux.Handle("GET /debug/pprof/{profile}", guard(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		pprof.Handler(r.PathValue("profile")).ServeHTTP(w, r)
	})))
}
