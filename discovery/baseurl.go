package discovery

import (
	"context"
	"net"
	"net/netip"
	"net/url"

	apperrors "github.com/kbukum/resilix/errors"
)

// HostResolver resolves a host name to IP addresses. *net.Resolver and
// *DNSHostResolver implement it.
type HostResolver interface {
	LookupHost(ctx context.Context, host string) ([]string, error)
}

// NormalizeBaseURL rewrites raw so that its host is an IP literal. The URL
// must carry a scheme and a host; a host that is already an IP is left as
// is. Port, path and query are preserved. IPv4 answers are preferred. A nil
// resolver uses net.DefaultResolver.
func NormalizeBaseURL(ctx context.Context, raw string, r HostResolver) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", apperrors.InvalidInput("base_url", "must be a URL").WithCause(err)
	}
	host := u.Hostname()
	if u.Scheme == "" || host == "" {
		return "", apperrors.InvalidInput("base_url", "must include scheme and host").
			WithDetail("value", raw)
	}
	// ParseAddr also accepts IPv6 literals with a zone, e.g. fe80::1%eth0.
	if _, err := netip.ParseAddr(host); err == nil {
		return raw, nil
	}

	if r == nil {
		r = net.DefaultResolver
	}
	addrs, err := r.LookupHost(ctx, host)
	if err != nil {
		return "", apperrors.ConnectionFailed(host).WithCause(err)
	}
	ip := preferIPv4(addrs)
	if ip == "" {
		return "", apperrors.ConnectionFailed(host).WithDetail("reason", "no addresses")
	}

	if port := u.Port(); port != "" {
		u.Host = net.JoinHostPort(ip, port)
	} else if net.ParseIP(ip).To4() == nil {
		u.Host = "[" + ip + "]"
	} else {
		u.Host = ip
	}
	return u.String(), nil
}

func preferIPv4(addrs []string) string {
	first := ""
	for _, a := range addrs {
		ip := net.ParseIP(a)
		if ip == nil {
			continue
		}
		if ip.To4() != nil {
			return a
		}
		if first == "" {
			first = a
		}
	}
	return first
}
