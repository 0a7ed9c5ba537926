package fetch

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// HostGuard refuses source URLs that do not belong to a real upstream:
// loopback, private and link-local targets are rejected so a stray dev URL
// can never poison hosted storage.
type HostGuard struct {
	allowedHosts map[string]struct{}
	allowPrivate bool
}

var blockedHostnames = []string{
	"localhost",
	"127.0.0.1",
	"::1",
	"0.0.0.0",
	"::",
	"[::1]",
}

// NewHostGuard builds a guard. When allowedHosts is non-empty, only those
// hosts pass; otherwise any public host does. allowPrivate disables the
// private-address checks for tests and local development.
func NewHostGuard(allowedHosts []string, allowPrivate bool) *HostGuard {
	g := &HostGuard{allowPrivate: allowPrivate}
	if len(allowedHosts) > 0 {
		g.allowedHosts = make(map[string]struct{}, len(allowedHosts))
		for _, h := range allowedHosts {
			g.allowedHosts[strings.ToLower(h)] = struct{}{}
		}
	}
	return g
}

func (g *HostGuard) Check(u *url.URL) error {
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("unsupported scheme %q", u.Scheme)
	}

	host := strings.ToLower(strings.TrimSpace(u.Hostname()))
	if host == "" {
		return fmt.Errorf("url has no host")
	}

	if g.allowedHosts != nil {
		if _, ok := g.allowedHosts[host]; !ok {
			return fmt.Errorf("host %q is not an allowed upstream", host)
		}
	}

	if g.allowPrivate {
		return nil
	}

	for _, blocked := range blockedHostnames {
		if host == blocked {
			return fmt.Errorf("host %q is blocked (local address)", host)
		}
	}

	if ip := net.ParseIP(host); ip != nil {
		return checkIP(ip)
	}

	// Best effort: if DNS fails here the actual request will fail anyway.
	ips, err := net.LookupIP(host)
	if err != nil {
		return nil
	}
	for _, ip := range ips {
		if err := checkIP(ip); err != nil {
			return fmt.Errorf("host %q: %w", host, err)
		}
	}
	return nil
}

func checkIP(ip net.IP) error {
	switch {
	case ip.IsLoopback():
		return fmt.Errorf("ip %s is loopback", ip)
	case ip.IsPrivate():
		return fmt.Errorf("ip %s is in a private range", ip)
	case ip.IsLinkLocalUnicast(), ip.IsLinkLocalMulticast():
		return fmt.Errorf("ip %s is link-local", ip)
	case ip.IsUnspecified():
		return fmt.Errorf("ip %s is unspecified", ip)
	}
	return nil
}
