package discovery

import (
	"context"
	"errors"
	"net"
	"testing"
	"time"

	"github.com/miekg/dns"
)

// startDNS serves fixed answers on a loopback UDP port.
func startDNS(t *testing.T, records map[string][]string) string {
	t.Helper()
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}

	started := make(chan struct{})
	srv := &dns.Server{
		PacketConn:        pc,
		NotifyStartedFunc: func() { close(started) },
		Handler: dns.HandlerFunc(func(w dns.ResponseWriter, r *dns.Msg) {
			m := new(dns.Msg)
			q := r.Question[0]
			if q.Name == "fail.test." {
				m.SetRcode(r, dns.RcodeServerFailure)
				w.WriteMsg(m)
				return
			}
			m.SetReply(r)
			found := false
			for _, s := range records[q.Name] {
				rr, err := dns.NewRR(s)
				if err != nil {
					continue
				}
				found = true
				if rr.Header().Rrtype == q.Qtype {
					m.Answer = append(m.Answer, rr)
				}
			}
			if !found {
				m.SetRcode(r, dns.RcodeNameError)
			}
			w.WriteMsg(m)
		}),
	}
	go srv.ActivateAndServe()
	<-started
	t.Cleanup(func() { srv.Shutdown() })
	return pc.LocalAddr().String()
}

func TestDNSHostResolver_LookupHost(t *testing.T) {
	addr := startDNS(t, map[string][]string{
		"example.com.": {"example.com. 60 IN A 10.0.0.5"},
		"v6.test.":     {"v6.test. 60 IN AAAA fe80::2"},
	})
	r := NewDNSHostResolver(addr, "udp", time.Second)
	ctx := context.Background()

	tests := []struct {
		host     string
		want     string
		notFound bool
		fail     bool
	}{
		{host: "example.com", want: "10.0.0.5"},
		{host: "v6.test", want: "fe80::2"},
		{host: "10.1.1.1", want: "10.1.1.1"},
		{host: "missing.test", notFound: true},
		{host: "fail.test", fail: true},
	}
	for _, tt := range tests {
		t.Run(tt.host, func(t *testing.T) {
			addrs, err := r.LookupHost(ctx, tt.host)
			switch {
			case tt.notFound:
				var dnsErr *net.DNSError
				if !errors.As(err, &dnsErr) || !dnsErr.IsNotFound {
					t.Fatalf("LookupHost() error = %v, want not-found DNSError", err)
				}
			case tt.fail:
				if err == nil {
					t.Fatal("LookupHost() should fail on SERVFAIL")
				}
			default:
				if err != nil {
					t.Fatalf("LookupHost() error = %v", err)
				}
				if len(addrs) != 1 || addrs[0] != tt.want {
					t.Errorf("LookupHost() = %v, want [%s]", addrs, tt.want)
				}
			}
		})
	}
}

func TestDNSHostResolver_NormalizeBaseURL(t *testing.T) {
	addr := startDNS(t, map[string][]string{
		"example.com.": {"example.com. 60 IN A 10.0.0.5"},
	})
	got, err := NormalizeBaseURL(context.Background(), "http://example.com:80/x", NewDNSHostResolver(addr, "", 0))
	if err != nil {
		t.Fatalf("NormalizeBaseURL() error = %v", err)
	}
	if got != "http://10.0.0.5:80/x" {
		t.Errorf("NormalizeBaseURL() = %q", got)
	}
}
