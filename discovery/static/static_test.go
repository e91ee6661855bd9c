package static

import (
	"context"
	"testing"

	"github.com/kbukum/resilix/discovery"
)

func TestNewProvider_Seeded(t *testing.T) {
	p := NewProvider(discovery.PolicyRoundRobin, []discovery.StaticEndpoint{
		{Name: "db", Address: "10.0.0.1", Port: 3306},
		{Name: "db", Address: "10.0.0.2", Port: 3306, Weight: 4},
		{Name: "cache", Address: "10.0.1.1", Port: 6379, Metadata: map[string]string{"zone": "a"}},
	})

	c, err := p.GetCluster(context.Background(), "db")
	if err != nil {
		t.Fatalf("GetCluster() error = %v", err)
	}
	nodes := c.Nodes()
	if len(nodes) != 2 {
		t.Fatalf("len(nodes) = %d, want 2", len(nodes))
	}
	if nodes[0].Weight != 1 || nodes[1].Weight != 4 {
		t.Errorf("weights = %d, %d; want 1, 4", nodes[0].Weight, nodes[1].Weight)
	}
	if c.Policy() != discovery.PolicyRoundRobin {
		t.Errorf("Policy() = %q", c.Policy())
	}
}

func TestProvider_JoinLeave(t *testing.T) {
	p := NewProvider(discovery.PolicyRandom, nil)
	ctx := context.Background()

	tests := []struct {
		name string
		op   func() (bool, error)
		want bool
	}{
		{"first join", func() (bool, error) { return p.Join(ctx, "db", "10.0.0.1", 3306) }, true},
		{"re-join updates", func() (bool, error) { return p.Join(ctx, "db", "10.0.0.1", 3306, discovery.WithWeight(2)) }, false},
		{"second node", func() (bool, error) { return p.Join(ctx, "db", "10.0.0.2", 3306) }, true},
		{"leave member", func() (bool, error) { return p.Leave(ctx, "db", "10.0.0.1", 3306) }, true},
		{"leave again", func() (bool, error) { return p.Leave(ctx, "db", "10.0.0.1", 3306) }, false},
		{"leave unknown cluster", func() (bool, error) { return p.Leave(ctx, "nope", "10.0.0.1", 3306) }, false},
	}
	for _, tt := range tests {
		got, err := tt.op()
		if err != nil {
			t.Fatalf("%s: error = %v", tt.name, err)
		}
		if got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.name, got, tt.want)
		}
	}

	c, _ := p.GetCluster(ctx, "db")
	if c.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", c.Count())
	}
}

func TestProvider_UnknownAndEmptied(t *testing.T) {
	p := NewProvider(discovery.PolicyRandom, nil)
	ctx := context.Background()

	if c, _ := p.GetCluster(ctx, "db"); c != nil {
		t.Error("unknown cluster should be nil")
	}
	p.Join(ctx, "db", "10.0.0.1", 3306)
	p.Leave(ctx, "db", "10.0.0.1", 3306)
	if c, _ := p.GetCluster(ctx, "db"); c != nil {
		t.Error("emptied cluster should be nil")
	}
	if len(p.Names()) != 0 {
		t.Errorf("Names() = %v, want none", p.Names())
	}
}

func TestProvider_SnapshotsIndependent(t *testing.T) {
	p := NewProvider(discovery.PolicyRandom, nil)
	ctx := context.Background()
	p.Join(ctx, "db", "10.0.0.1", 3306, discovery.WithMetadata("zone", "a"))

	c1, _ := p.GetCluster(ctx, "db")
	n, _ := c1.Pop()
	n.Metadata["zone"] = "changed"

	c2, _ := p.GetCluster(ctx, "db")
	if c2.Count() != 1 {
		t.Fatalf("Count() = %d, want 1", c2.Count())
	}
	if got := c2.Nodes()[0].Metadata["zone"]; got != "a" {
		t.Errorf("zone = %q, want a", got)
	}
}

func TestFactoryRegistered(t *testing.T) {
	cfg := discovery.Config{
		Enabled:         true,
		StaticEndpoints: []discovery.StaticEndpoint{{Name: "api", Address: "10.0.0.1", Port: 80}},
	}
	comp := discovery.NewComponent(cfg, nil)
	if err := comp.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer comp.Stop(context.Background())

	res, err := comp.Resolver().Lookup(context.Background(), "api")
	if err != nil {
		t.Fatalf("Lookup() error = %v", err)
	}
	if res.Address != "10.0.0.1:80" {
		t.Errorf("Address = %q", res.Address)
	}
}
