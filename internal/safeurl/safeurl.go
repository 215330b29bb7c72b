package safeurl

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"strings"
)

var (
	ErrMalformedURL = errors.New("malformed destination url")
	ErrUnsafeURL    = errors.New("unsafe destination url")
)

// Hostnames that must never be dialed regardless of what they resolve to.
var blockedHosts = map[string]struct{}{
	"localhost":                {},
	"metadata.google.internal": {},
	"metadata.goog":            {},
	"instance-data":            {},
	"169.254.169.254":          {},
}

// Policy validates destination URLs before any network call is made:
// only HTTP/S, no loopback/private/link-local addresses, no cloud
// metadata hosts, optional explicit allow-list.
type Policy struct {
	// AllowHosts, when non-empty, restricts destinations to exactly
	// these hostnames (case-insensitive).
	AllowHosts []string

	// LookupIP resolves non-literal hostnames so DNS-rebound private
	// targets are caught too. Nil disables resolution; literal IPs and
	// blocked hostnames are still checked.
	LookupIP func(ctx context.Context, host string) ([]net.IP, error)
}

// WithResolver returns a policy that resolves hostnames through the
// default resolver.
func WithResolver(allowHosts []string) *Policy {
	return &Policy{
		AllowHosts: allowHosts,
		LookupIP: func(ctx context.Context, host string) ([]net.IP, error) {
			addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
			if err != nil {
				return nil, err
			}
			ips := make([]net.IP, 0, len(addrs))
			for _, a := range addrs {
				ips = append(ips, a.IP)
			}
			return ips, nil
		},
	}
}

// Validate returns nil when the destination is safe to dial.
func (p *Policy) Validate(ctx context.Context, raw string) error {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedURL, err)
	}

	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return fmt.Errorf("%w: scheme %q", ErrUnsafeURL, u.Scheme)
	}

	host := strings.ToLower(u.Hostname())
	if host == "" {
		return fmt.Errorf("%w: empty host", ErrMalformedURL)
	}

	if _, blocked := blockedHosts[host]; blocked {
		return fmt.Errorf("%w: blocked host %q", ErrUnsafeURL, host)
	}

	if len(p.AllowHosts) > 0 && !p.allowed(host) {
		return fmt.Errorf("%w: host %q not in allow-list", ErrUnsafeURL, host)
	}

	if ip := net.ParseIP(host); ip != nil {
		return checkIP(ip, host)
	}

	if p.LookupIP != nil {
		ips, err := p.LookupIP(ctx, host)
		if err != nil {
			return fmt.Errorf("%w: resolve %q: %v", ErrUnsafeURL, host, err)
		}
		for _, ip := range ips {
			if err := checkIP(ip, host); err != nil {
				return err
			}
		}
	}

	return nil
}

func (p *Policy) allowed(host string) bool {
	for _, h := range p.AllowHosts {
		if strings.EqualFold(strings.TrimSpace(h), host) {
			return true
		}
	}
	return false
}

func checkIP(ip net.IP, host string) error {
	switch {
	case ip.IsLoopback(),
		ip.IsPrivate(),
		ip.IsLinkLocalUnicast(),
		ip.IsLinkLocalMulticast(),
		ip.IsUnspecified():
		return fmt.Errorf("%w: %q resolves to restricted address %s", ErrUnsafeURL, host, ip)
	}
	return nil
}
