package fetcher

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"net/url"
	"strings"

	"pagefeed/internal/domain/entity"
)

// reservedPrefixes lists address ranges that are never fetched when private
// targets are denied, in addition to what netip.Addr classifies as loopback,
// private, link-local, multicast or unspecified.
var reservedPrefixes = []netip.Prefix{
	netip.MustParsePrefix("0.0.0.0/8"),       // "this" network
	netip.MustParsePrefix("100.64.0.0/10"),   // carrier-grade NAT
	netip.MustParsePrefix("192.0.0.0/24"),    // IETF protocol assignments
	netip.MustParsePrefix("192.0.2.0/24"),    // TEST-NET-1
	netip.MustParsePrefix("198.18.0.0/15"),   // benchmarking
	netip.MustParsePrefix("198.51.100.0/24"), // TEST-NET-2
	netip.MustParsePrefix("203.0.113.0/24"),  // TEST-NET-3
	netip.MustParsePrefix("240.0.0.0/4"),     // reserved, includes broadcast
	netip.MustParsePrefix("64:ff9b::/96"),    // NAT64
	netip.MustParsePrefix("100::/64"),        // discard-only
	netip.MustParsePrefix("2001:db8::/32"),   // documentation
}

// isBlockedIP reports whether ip is private, loopback, link-local or reserved.
// IPv4-mapped IPv6 addresses are judged by their IPv4 form.
func isBlockedIP(ip netip.Addr) bool {
	ip = ip.Unmap()
	if !ip.IsValid() {
		return true
	}
	if ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() ||
		ip.IsInterfaceLocalMulticast() || ip.IsMulticast() {
		return true
	}
	for _, p := range reservedPrefixes {
		if p.Contains(ip) {
			return true
		}
	}
	return false
}

// resolver is the subset of *net.Resolver used for pre-flight checks.
type resolver interface {
	LookupNetIP(ctx context.Context, network, host string) ([]netip.Addr, error)
}

// policy validates request targets. blocked decides address policy and is
// nil when private targets are allowed.
type policy struct {
	resolver resolver
	blocked  func(netip.Addr) bool
}

// parseTarget parses and statically validates rawURL: scheme, host and
// credentials. It performs no DNS lookups.
func parseTarget(rawURL string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, &entity.BlockedTargetError{Code: entity.CodeInvalidURL, URL: rawURL, Err: err}
	}

	switch strings.ToLower(u.Scheme) {
	case "http", "https":
	case "":
		return nil, &entity.BlockedTargetError{Code: entity.CodeInvalidURL, URL: rawURL, Err: fmt.Errorf("missing scheme")}
	default:
		return nil, &entity.BlockedTargetError{Code: entity.CodeUnsupportedScheme, URL: rawURL,
			Err: fmt.Errorf("scheme %q not allowed (only http/https)", u.Scheme)}
	}

	if u.User != nil {
		return nil, &entity.BlockedTargetError{Code: entity.CodeDisallowedAuth, URL: rawURL,
			Err: fmt.Errorf("credentials in URL are not allowed")}
	}

	if u.Hostname() == "" {
		return nil, &entity.BlockedTargetError{Code: entity.CodeInvalidURL, URL: rawURL, Err: fmt.Errorf("empty hostname")}
	}

	return u, nil
}

// checkHost resolves the host of u and rejects it when any resolved address
// is blocked. A literal IP host is checked without DNS.
func (p *policy) checkHost(ctx context.Context, u *url.URL) error {
	if p.blocked == nil {
		return nil
	}

	host := u.Hostname()
	if ip, err := netip.ParseAddr(host); err == nil {
		if p.blocked(ip) {
			return &entity.BlockedTargetError{Code: entity.CodePrivateTarget, URL: u.String(),
				Err: fmt.Errorf("address %s is not publicly routable", ip)}
		}
		return nil
	}

	addrs, err := p.resolver.LookupNetIP(ctx, "ip", host)
	if err != nil {
		return &entity.TransientFetchError{Code: entity.CodeNetwork, URL: u.String(),
			Err: fmt.Errorf("DNS lookup failed for %s: %w", host, err)}
	}
	for _, ip := range addrs {
		if p.blocked(ip) {
			return &entity.BlockedTargetError{Code: entity.CodePrivateTarget, URL: u.String(),
				Err: fmt.Errorf("hostname %q resolves to private address %s", host, ip)}
		}
	}
	return nil
}

// controlPeer is installed as net.Dialer.Control. It inspects the address
// actually dialled, which defeats DNS rebinding between check and connect.
func (p *policy) controlPeer(network, address string) error {
	if p.blocked == nil {
		return nil
	}
	host, _, err := net.SplitHostPort(address)
	if err != nil {
		host = address
	}
	ip, err := netip.ParseAddr(host)
	if err != nil {
		return &entity.BlockedTargetError{Code: entity.CodeBlockedPrivateIP, URL: address,
			Err: fmt.Errorf("unparseable peer address %q", address)}
	}
	if p.blocked(ip) {
		return &entity.BlockedTargetError{Code: entity.CodeBlockedPrivateIP, URL: address,
			Err: fmt.Errorf("connection to %s over %s refused", ip, network)}
	}
	return nil
}

// resolveLocation resolves a redirect Location header against the current
// URL. Absolute, scheme-relative and path-relative forms are supported and
// dot segments are removed.
func resolveLocation(current *url.URL, location string) (*url.URL, error) {
	location = strings.TrimSpace(location)
	if location == "" {
		return nil, &entity.BlockedTargetError{Code: entity.CodeInvalidRedirectTarget, URL: current.String(),
			Err: fmt.Errorf("empty Location header")}
	}
	ref, err := url.Parse(location)
	if err != nil {
		return nil, &entity.BlockedTargetError{Code: entity.CodeInvalidRedirectTarget, URL: location, Err: err}
	}
	next := current.ResolveReference(ref)
	next.Fragment = ""
	next.RawFragment = ""
	if _, err := parseTarget(next.String()); err != nil {
		return nil, &entity.BlockedTargetError{Code: entity.CodeInvalidRedirectTarget, URL: next.String(), Err: err}
	}
	return next, nil
}
