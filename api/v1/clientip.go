package v1

import (
	"net"
	"net/netip"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// Reverse-proxy headers consulted after X-Forwarded-For, in order.
var proxyIPHeaders = []string{
	"X-Real-IP",
	"CF-Connecting-IP",
	"True-Client-IP",
	"X-Client-IP",
}

// Ranges never treated as a visitor address (RFC 1918, 4193, 4291, loopback).
var nonPublicPrefixes = []netip.Prefix{
	netip.MustParsePrefix("10.0.0.0/8"),
	netip.MustParsePrefix("172.16.0.0/12"),
	netip.MustParsePrefix("192.168.0.0/16"),
	netip.MustParsePrefix("127.0.0.0/8"),
	netip.MustParsePrefix("fc00::/7"),
	netip.MustParsePrefix("fe80::/10"),
	netip.MustParsePrefix("::1/128"),
}

const loopbackIP = "127.0.0.1"

// clientIP resolves the visitor's public address from proxy headers, then the
// socket. Purely local traffic resolves to loopback.
func clientIP(c *fiber.Ctx) string {
	groups := [][]string{strings.Split(c.Get(fiber.HeaderXForwardedFor), ",")}
	for _, header := range proxyIPHeaders {
		if value := c.Get(header); value != "" {
			groups = append(groups, []string{value})
		}
	}
	if forwarded := c.Get(fiber.HeaderForwarded); forwarded != "" {
		groups = append(groups, forwardedFor(forwarded))
	}
	groups = append(groups, []string{c.Context().RemoteAddr().String()}, []string{c.IP()})

	for _, candidates := range groups {
		if ip := preferredIP(candidates); ip != "" {
			return ip
		}
	}
	return loopbackIP
}

// preferredIP returns the first public IPv4 among values, else the first
// public IPv6.
func preferredIP(values []string) string {
	var v6 string
	for _, raw := range values {
		addr, ok := parseAddr(raw)
		if !ok || !isPublic(addr) {
			continue
		}
		if addr.Is4() {
			return addr.String()
		}
		if v6 == "" {
			v6 = addr.String()
		}
	}
	return v6
}

// parseAddr accepts bare, quoted, bracketed, zoned and host:port forms.
// IPv4-mapped IPv6 addresses come back as IPv4.
func parseAddr(raw string) (netip.Addr, bool) {
	s := strings.Trim(strings.TrimSpace(raw), "\"")
	if s == "" {
		return netip.Addr{}, false
	}
	if i := strings.IndexByte(s, '%'); i >= 0 {
		s = s[:i]
	}

	if ap, err := netip.ParseAddrPort(s); err == nil {
		return ap.Addr().Unmap(), true
	}
	if addr, err := netip.ParseAddr(strings.TrimSuffix(strings.TrimPrefix(s, "["), "]")); err == nil {
		return addr.Unmap(), true
	}
	if host, _, err := net.SplitHostPort(s); err == nil && host != s {
		return parseAddr(host)
	}
	return netip.Addr{}, false
}

func isPublic(addr netip.Addr) bool {
	addr = addr.Unmap()
	if !addr.IsValid() || addr.IsUnspecified() {
		return false
	}
	for _, prefix := range nonPublicPrefixes {
		if prefix.Contains(addr) {
			return false
		}
	}
	return true
}

// forwardedFor extracts the for= values of an RFC 7239 Forwarded header.
func forwardedFor(header string) []string {
	var values []string
	for _, element := range strings.Split(header, ",") {
		for _, pair := range strings.Split(element, ";") {
			pair = strings.TrimSpace(pair)
			if len(pair) > 4 && strings.EqualFold(pair[:4], "for=") {
				values = append(values, pair[4:])
			}
		}
	}
	return values
}
