package discovery

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"
)

// DNSHostResolver looks host names up against one DNS server, querying A
// records first and AAAA records only when no A record exists.
type DNSHostResolver struct {
	server string
	client *dns.Client
}

// NewDNSHostResolver creates a resolver for server ("host:port") over
// network ("udp" or "tcp"). A zero timeout defaults to 2s.
func NewDNSHostResolver(server, network string, timeout time.Duration) *DNSHostResolver {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	if network == "" {
		network = "udp"
	}
	return &DNSHostResolver{
		server: server,
		client: &dns.Client{Net: network, Timeout: timeout},
	}
}

// LookupHost returns the addresses of host. A name without records fails
// with a *net.DNSError whose IsNotFound is set.
func (r *DNSHostResolver) LookupHost(ctx context.Context, host string) ([]string, error) {
	if ip := net.ParseIP(host); ip != nil {
		return []string{host}, nil
	}

	fqdn := dns.Fqdn(host)
	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		addrs, err := r.query(ctx, fqdn, qtype)
		if err != nil {
			return nil, err
		}
		if len(addrs) > 0 {
			return addrs, nil
		}
	}
	return nil, &net.DNSError{Err: "no such host", Name: host, Server: r.server, IsNotFound: true}
}

func (r *DNSHostResolver) query(ctx context.Context, fqdn string, qtype uint16) ([]string, error) {
	q := new(dns.Msg)
	q.SetQuestion(fqdn, qtype)
	q.RecursionDesired = true

	resp, _, err := r.client.ExchangeContext(ctx, q, r.server)
	if err != nil {
		return nil, fmt.Errorf("dns %s %s: %w", dns.TypeToString[qtype], fqdn, err)
	}
	switch resp.Rcode {
	case dns.RcodeSuccess:
	case dns.RcodeNameError:
		return nil, nil
	default:
		return nil, fmt.Errorf("dns %s %s: %s", dns.TypeToString[qtype], fqdn, dns.RcodeToString[resp.Rcode])
	}

	var addrs []string
	for _, rr := range resp.Answer {
		switch v := rr.(type) {
		case *dns.A:
			addrs = append(addrs, v.A.String())
		case *dns.AAAA:
			addrs = append(addrs, v.AAAA.String())
		}
	}
	return addrs, nil
}
