package middleware

import (
	"context"
	"crypto/subtle"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

// Headers injected by the edge worker in front of the server.
const (
	HeaderWorkerSecret = "X-Worker-Secret"
	HeaderCFRay        = "Cf-Ray"
	HeaderCFIP         = "Cf-Connecting-Ip"
	HeaderCFVisitor    = "Cf-Visitor"
	HeaderForwardedFor = "X-Forwarded-For"
)

// EdgeConfig configures EdgeGuard.
type EdgeConfig struct {
	// Secret is the shared worker secret. Empty disables the guard.
	Secret string
	// UserAgent, when set, must equal the User-Agent of plain HTTP requests
	// passing the guard. WebSocket upgrades are exempt.
	UserAgent string
	// TrustedProxies lists peers (IPs or CIDRs) whose X-Forwarded-For is
	// honoured when the guard is disabled. Other peers are identified by
	// their socket address.
	TrustedProxies []string
}

// ParseProxies parses a list of IPs or CIDRs.
func ParseProxies(list []string) ([]*net.IPNet, error) {
	nets := make([]*net.IPNet, 0, len(list))
	for _, entry := range list {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if !strings.Contains(entry, "/") {
			ip := net.ParseIP(entry)
			if ip == nil {
				return nil, fmt.Errorf("invalid trusted proxy %q", entry)
			}
			bits := 128
			if ip.To4() != nil {
				ip = ip.To4()
				bits = 32
			}
			nets = append(nets, &net.IPNet{IP: ip, Mask: net.CIDRMask(bits, bits)})
			continue
		}
		_, n, err := net.ParseCIDR(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", entry, err)
		}
		nets = append(nets, n)
	}
	return nets, nil
}

// EdgeGuard rejects requests that did not pass through the edge worker and
// records the client address for later handlers. With an empty secret the
// guard only records the address. Invalid trusted proxy entries are logged
// and skipped.
func EdgeGuard(cfg EdgeConfig, log *zap.Logger) func(http.Handler) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	proxies, err := ParseProxies(cfg.TrustedProxies)
	if err != nil {
		log.Warn("trusted proxies ignored", zap.Error(err))
		proxies = nil
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if cfg.Secret == "" {
				next.ServeHTTP(w, withAddr(r, peerAddr(r, proxies)))
				return
			}

			got := r.Header.Get(HeaderWorkerSecret)
			if subtle.ConstantTimeCompare([]byte(got), []byte(cfg.Secret)) != 1 ||
				r.Header.Get(HeaderCFRay) == "" ||
				r.Header.Get(HeaderCFIP) == "" ||
				r.Header.Get(HeaderCFVisitor) == "" ||
				!agentAllowed(r, cfg.UserAgent) {
				log.Warn("request bypassed edge",
					zap.String("remote", r.RemoteAddr),
					zap.String("path", r.URL.Path))
				writeError(w, http.StatusForbidden, "Forbidden")
				return
			}

			// The worker's own headers must not reach handlers.
			r.Header.Del(HeaderWorkerSecret)
			next.ServeHTTP(w, withAddr(r, strings.TrimSpace(r.Header.Get(HeaderCFIP))))
		})
	}
}

func agentAllowed(r *http.Request, want string) bool {
	if want == "" || websocket.IsWebSocketUpgrade(r) {
		return true
	}
	return r.Header.Get("User-Agent") == want
}

func withAddr(r *http.Request, addr string) *http.Request {
	return r.WithContext(context.WithValue(r.Context(), ClientAddrKey, addr))
}

// ClientAddr returns the client address recorded by EdgeGuard, or the
// socket peer when the guard did not run.
func ClientAddr(r *http.Request) string {
	if v, ok := r.Context().Value(ClientAddrKey).(string); ok && v != "" {
		return v
	}
	return remoteHost(r)
}

// peerAddr returns the first X-Forwarded-For hop when the socket peer is a
// trusted proxy, and the socket peer otherwise.
func peerAddr(r *http.Request, proxies []*net.IPNet) string {
	host := remoteHost(r)
	if len(proxies) == 0 {
		return host
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return host
	}
	for _, n := range proxies {
		if !n.Contains(ip) {
			continue
		}
		if fwd := r.Header.Get(HeaderForwardedFor); fwd != "" {
			if first := strings.TrimSpace(strings.Split(fwd, ",")[0]); first != "" {
				return first
			}
		}
		break
	}
	return host
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
