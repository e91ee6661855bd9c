package discovery

import (
	"context"
	"errors"
	"sync"
)

// fakeBackend is an in-memory Backend with an injectable GetCluster error.
type fakeBackend struct {
	mu       sync.Mutex
	policy   Policy
	clusters map[string][]Node
	err      error
	gets     int
	leaves   int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{policy: PolicyRoundRobin, clusters: make(map[string][]Node)}
}

func (f *fakeBackend) Join(_ context.Context, name, ip string, port int, opts ...JoinOption) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	o := ApplyJoinOptions(opts...)
	for _, n := range f.clusters[name] {
		if n.IP == ip && n.Port == port {
			return false, nil
		}
	}
	f.clusters[name] = append(f.clusters[name], Node{IP: ip, Port: port, Weight: o.Weight, Metadata: o.Metadata})
	return true, nil
}

func (f *fakeBackend) Leave(_ context.Context, name, ip string, port int) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.leaves++
	nodes := f.clusters[name]
	for i, n := range nodes {
		if n.IP == ip && n.Port == port {
			f.clusters[name] = append(nodes[:i], nodes[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeBackend) GetCluster(_ context.Context, name string) (*Cluster, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gets++
	if f.err != nil {
		return nil, f.err
	}
	nodes, ok := f.clusters[name]
	if !ok {
		return nil, nil
	}
	return NewCluster(f.policy, nodes...), nil
}

func (f *fakeBackend) getCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gets
}

var errBackend = errors.New("backend down")
