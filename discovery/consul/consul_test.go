package consul

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/hashicorp/consul/api"

	"github.com/kbukum/resilix/discovery"
	"github.com/kbukum/resilix/logger"
)

// fakeAgent serves the subset of the Consul HTTP API the provider uses.
type fakeAgent struct {
	mu       sync.Mutex
	services map[string]*api.AgentServiceRegistration
	leader   string
}

func (f *fakeAgent) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("X-Consul-Index", "1")
	w.Header().Set("X-Consul-KnownLeader", "true")
	w.Header().Set("X-Consul-LastContact", "0")
	w.Header().Set("Content-Type", "application/json")

	switch {
	case r.URL.Path == "/v1/agent/services":
		out := make(map[string]*api.AgentService, len(f.services))
		for id, s := range f.services {
			out[id] = &api.AgentService{ID: id, Service: s.Name, Address: s.Address, Port: s.Port}
		}
		json.NewEncoder(w).Encode(out)

	case r.URL.Path == "/v1/agent/service/register":
		var reg api.AgentServiceRegistration
		if err := json.NewDecoder(r.Body).Decode(&reg); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.services[reg.ID] = &reg

	case strings.HasPrefix(r.URL.Path, "/v1/agent/service/deregister/"):
		delete(f.services, strings.TrimPrefix(r.URL.Path, "/v1/agent/service/deregister/"))

	case strings.HasPrefix(r.URL.Path, "/v1/health/service/"):
		name := strings.TrimPrefix(r.URL.Path, "/v1/health/service/")
		entries := []*api.ServiceEntry{}
		for id, s := range f.services {
			if s.Name != name {
				continue
			}
			weights := api.AgentWeights{Passing: 1}
			if s.Weights != nil {
				weights = *s.Weights
			}
			entries = append(entries, &api.ServiceEntry{
				Node: &api.Node{Address: "192.168.1.1"},
				Service: &api.AgentService{
					ID:      id,
					Service: s.Name,
					Address: s.Address,
					Port:    s.Port,
					Meta:    s.Meta,
					Weights: weights,
				},
			})
		}
		json.NewEncoder(w).Encode(entries)

	case r.URL.Path == "/v1/status/leader":
		json.NewEncoder(w).Encode(f.leader)

	default:
		http.NotFound(w, r)
	}
}

func (f *fakeAgent) get(id string) *api.AgentServiceRegistration {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.services[id]
}

func (f *fakeAgent) put(reg *api.AgentServiceRegistration) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.services[reg.ID] = reg
}

func (f *fakeAgent) setLeader(leader string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leader = leader
}

func newTestProvider(t *testing.T) (*Provider, *fakeAgent) {
	t.Helper()
	agent := &fakeAgent{services: make(map[string]*api.AgentServiceRegistration), leader: "10.0.0.1:8300"}
	srv := httptest.NewServer(agent)
	t.Cleanup(srv.Close)

	cfg := discovery.Config{Provider: discovery.ProviderConsul, Policy: string(discovery.PolicyRoundRobin)}
	cfg.ApplyDefaults()
	cfg.Consul.Address = strings.TrimPrefix(srv.URL, "http://")
	cfg.Consul.IDPrefix = "rx-"

	p, err := NewProvider(cfg, logger.Nop())
	if err != nil {
		t.Fatalf("NewProvider() error = %v", err)
	}
	return p, agent
}

func TestProvider_JoinLeave(t *testing.T) {
	p, agent := newTestProvider(t)
	ctx := context.Background()

	added, err := p.Join(ctx, "db", "10.0.0.1", 3306, discovery.WithWeight(5), discovery.WithMetadata("zone", "a"))
	if err != nil || !added {
		t.Fatalf("Join() = %v, %v; want true, nil", added, err)
	}
	reg := agent.get("rx-db_10.0.0.1:3306")
	if reg == nil {
		t.Fatal("registration missing")
	}
	if reg.Weights == nil || reg.Weights.Passing != 5 {
		t.Errorf("Weights = %+v, want passing 5", reg.Weights)
	}

	added, err = p.Join(ctx, "db", "10.0.0.1", 3306)
	if err != nil || added {
		t.Fatalf("re-Join() = %v, %v; want false, nil", added, err)
	}

	removed, err := p.Leave(ctx, "db", "10.0.0.1", 3306)
	if err != nil || !removed {
		t.Fatalf("Leave() = %v, %v; want true, nil", removed, err)
	}
	removed, err = p.Leave(ctx, "db", "10.0.0.1", 3306)
	if err != nil || removed {
		t.Fatalf("second Leave() = %v, %v; want false, nil", removed, err)
	}
}

func TestProvider_GetCluster(t *testing.T) {
	p, agent := newTestProvider(t)
	ctx := context.Background()

	c, err := p.GetCluster(ctx, "db")
	if err != nil {
		t.Fatalf("GetCluster() error = %v", err)
	}
	if c != nil {
		t.Fatal("unknown service should yield nil cluster")
	}

	p.Join(ctx, "db", "10.0.0.1", 3306, discovery.WithMetadata("zone", "a"))
	agent.put(&api.AgentServiceRegistration{ID: "manual", Name: "db", Port: 3307})

	c, err = p.GetCluster(ctx, "db")
	if err != nil {
		t.Fatalf("GetCluster() error = %v", err)
	}
	if c.Count() != 2 {
		t.Fatalf("Count() = %d, want 2", c.Count())
	}
	addrs := map[string]discovery.Node{}
	for _, n := range c.Nodes() {
		addrs[n.Address()] = n
	}
	if n, ok := addrs["10.0.0.1:3306"]; !ok || n.Metadata["zone"] != "a" {
		t.Errorf("registered node missing or without metadata: %v", addrs)
	}
	if _, ok := addrs["192.168.1.1:3307"]; !ok {
		t.Errorf("node address fallback missing: %v", addrs)
	}
}

func TestProvider_Ping(t *testing.T) {
	p, agent := newTestProvider(t)
	if err := p.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}
	agent.setLeader("")
	if err := p.Ping(context.Background()); err == nil {
		t.Error("Ping() without leader should fail")
	}
}

func TestProvider_ServiceID(t *testing.T) {
	p, _ := newTestProvider(t)
	tests := []struct {
		ip   string
		port int
		want string
	}{
		{"10.0.0.1", 80, "rx-api_10.0.0.1:80"},
		{"::1", 8080, "rx-api_[::1]:8080"},
	}
	for _, tt := range tests {
		if got := p.ServiceID("api", tt.ip, tt.port); got != tt.want {
			t.Errorf("ServiceID(%q, %d) = %q, want %q", tt.ip, tt.port, got, tt.want)
		}
	}
}
