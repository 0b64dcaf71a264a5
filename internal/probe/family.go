package probe

import (
	"context"
	"fmt"
	"net"
	"time"
)

// Family pins a probe evaluation to one IP address family. reqwest (and most
// HTTP clients) resolve a hostname and hand the first result to the OS
// resolver without giving the caller a say in v4 vs v6, so binding the local
// address alone (https://github.com/seanmonstar/reqwest/issues/584) isn't
// enough to guarantee the connection actually goes out over that family.
// Family additionally resolves the remote host itself scoped to "ip4"/"ip6"
// so dual-stack probes genuinely exercise both paths.
type Family int

const (
	FamilyV4 Family = iota
	FamilyV6
)

// FamiliesFor expands a probe's configured IPVersion into the concrete
// Family values it must be evaluated against.
func FamiliesFor(v IPVersion) []Family {
	switch v {
	case IPVersionV4:
		return []Family{FamilyV4}
	case IPVersionV6:
		return []Family{FamilyV6}
	default:
		return []Family{FamilyV4, FamilyV6}
	}
}

func (f Family) String() string {
	if f == FamilyV6 {
		return "IPV6"
	}
	return "IPV4"
}

func (f Family) ipNetwork() string {
	if f == FamilyV6 {
		return "ip6"
	}
	return "ip4"
}

func (f Family) localAddr() *net.TCPAddr {
	if f == FamilyV6 {
		return &net.TCPAddr{IP: net.IPv6unspecified}
	}
	return &net.TCPAddr{IP: net.IPv4zero}
}

// dialer returns a *net.Dialer whose local address is pinned to this
// family's unspecified address, so outbound connections cannot silently
// fall back to the other family's interface.
func (f Family) dialer(timeout time.Duration) *net.Dialer {
	return &net.Dialer{Timeout: timeout, LocalAddr: f.localAddr()}
}

// resolveHostPort resolves host scoped to this family and returns the first
// result joined with port, ready to dial as a literal address.
func (f Family) resolveHostPort(ctx context.Context, host, port string) (string, error) {
	ips, err := net.DefaultResolver.LookupIP(ctx, f.ipNetwork(), host)
	if err != nil {
		return "", fmt.Errorf("failed to resolve socket address: %w", err)
	}
	if len(ips) == 0 {
		return "", fmt.Errorf("failed to resolve socket address: no %s addresses found for %s", f, host)
	}
	return net.JoinHostPort(ips[0].String(), port), nil
}

// dialContext adapts resolveHostPort+dialer into the shape http.Transport
// expects, so a standard *http.Client can be pinned to this family without
// the caller managing sockets directly.
func (f Family) dialContext(timeout time.Duration) func(ctx context.Context, network, addr string) (net.Conn, error) {
	return func(ctx context.Context, network, addr string) (net.Conn, error) {
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, err
		}
		resolved, err := f.resolveHostPort(ctx, host, port)
		if err != nil {
			return nil, err
		}
		return f.dialer(timeout).DialContext(ctx, "tcp", resolved)
	}
}
