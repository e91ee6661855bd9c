package discovery

import (
	"math/rand"
	"net"
	"strconv"
	"sync"
)

// Node is one endpoint of a cluster.
type Node struct {
	IP       string            `json:"ip"`
	Port     int               `json:"port"`
	Weight   int               `json:"weight,omitempty"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Address returns the node as host:port, bracketing IPv6 literals.
func (n Node) Address() string {
	return net.JoinHostPort(n.IP, strconv.Itoa(n.Port))
}

// Policy decides which node Pop returns next.
type Policy string

const (
	// PolicyRandom pops a uniformly random remaining node.
	PolicyRandom Policy = "random"
	// PolicyRoundRobin pops nodes in the order they were added.
	PolicyRoundRobin Policy = "round_robin"
	// PolicyWeighted pops a remaining node with probability proportional to
	// its Weight. Weights below 1 count as 1.
	PolicyWeighted Policy = "weighted"
)

// Policies lists the supported selection policies.
var Policies = []Policy{PolicyRandom, PolicyRoundRobin, PolicyWeighted}

// Cluster is a set of nodes consumed without replacement. A Cluster is
// safe for concurrent use, but each GetCluster call returns its own copy.
type Cluster struct {
	mu     sync.Mutex
	policy Policy
	nodes  []Node
}

// NewCluster creates a cluster with the given selection policy and nodes.
// An empty policy means PolicyRandom.
func NewCluster(policy Policy, nodes ...Node) *Cluster {
	if policy == "" {
		policy = PolicyRandom
	}
	c := &Cluster{policy: policy}
	for _, n := range nodes {
		c.Add(n)
	}
	return c
}

// Add appends a node.
func (c *Cluster) Add(n Node) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nodes = append(c.nodes, n)
}

// Count returns the number of nodes not yet popped.
func (c *Cluster) Count() int {
	if c == nil {
		return 0
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.nodes)
}

// Policy returns the selection policy.
func (c *Cluster) Policy() Policy { return c.policy }

// Pop removes and returns the next node. It returns false once the
// cluster is exhausted.
func (c *Cluster) Pop() (Node, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.nodes) == 0 {
		return Node{}, false
	}

	i := 0
	if len(c.nodes) > 1 {
		switch c.policy {
		case PolicyRandom:
			i = rand.Intn(len(c.nodes))
		case PolicyWeighted:
			i = pickWeighted(c.nodes)
		}
	}

	n := c.nodes[i]
	c.nodes = append(c.nodes[:i], c.nodes[i+1:]...)
	return n, true
}

func weightOf(n Node) int {
	if n.Weight <= 0 {
		return 1
	}
	return n.Weight
}

func pickWeighted(nodes []Node) int {
	total := 0
	for _, n := range nodes {
		total += weightOf(n)
	}
	r := rand.Intn(total)
	for i, n := range nodes {
		r -= weightOf(n)
		if r < 0 {
			return i
		}
	}
	return len(nodes) - 1
}

// Nodes returns a copy of the remaining nodes in registration order.
func (c *Cluster) Nodes() []Node {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Node, len(c.nodes))
	copy(out, c.nodes)
	return out
}

// Clone returns an independent copy with the same policy and remaining nodes.
func (c *Cluster) Clone() *Cluster {
	return NewCluster(c.policy, c.Nodes()...)
}
