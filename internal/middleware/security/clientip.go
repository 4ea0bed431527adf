package security

import (
	"fmt"
	"net"
	"net/http"
	"strings"
)

// IPResolver finds the client address, trusting forwarding headers only when
// the direct peer is a known proxy.
type IPResolver struct {
	trusted []*net.IPNet
}

// NewIPResolver trusts loopback and private ranges by default.
func NewIPResolver() *IPResolver {
	r := &IPResolver{}
	for _, cidr := range []string{"127.0.0.0/8", "10.0.0.0/8", "172.16.0.0/12", "192.168.0.0/16", "::1/128"} {
		_, network, _ := net.ParseCIDR(cidr)
		r.trusted = append(r.trusted, network)
	}
	return r
}

func (r *IPResolver) AddTrustedProxy(cidr string) error {
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		return fmt.Errorf("invalid CIDR %s: %w", cidr, err)
	}
	r.trusted = append(r.trusted, network)
	return nil
}

func (r *IPResolver) ClientIP(req *http.Request) string {
	direct, _, err := net.SplitHostPort(req.RemoteAddr)
	if err != nil {
		direct = req.RemoteAddr
	}
	ip := net.ParseIP(direct)
	if ip == nil || !r.isTrusted(ip) {
		return direct
	}

	if xff := req.Header.Get("X-Forwarded-For"); xff != "" {
		first := strings.TrimSpace(strings.Split(xff, ",")[0])
		if net.ParseIP(first) != nil {
			return first
		}
	}
	if realIP := strings.TrimSpace(req.Header.Get("X-Real-IP")); net.ParseIP(realIP) != nil {
		return realIP
	}
	return direct
}

func (r *IPResolver) isTrusted(ip net.IP) bool {
	for _, network := range r.trusted {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}
