package discovery

// Kind classifies a lookup outcome.
type Kind int

const (
	// KindDeferred means the resolver declined the name; try the next one.
	KindDeferred Kind = iota
	// KindNotFound means the name is authoritatively unknown; stop looking.
	KindNotFound
	// KindSingle means exactly one endpoint; no failover is possible.
	KindSingle
	// KindFailover means several endpoints to try in turn.
	KindFailover
)

func (k Kind) String() string {
	switch k {
	case KindDeferred:
		return "deferred"
	case KindNotFound:
		return "not_found"
	case KindSingle:
		return "single"
	case KindFailover:
		return "failover"
	default:
		return "unknown"
	}
}

// Result is the outcome of Lookup. Address is set for KindSingle, Cluster
// for KindFailover.
type Result struct {
	Kind    Kind
	Address string
	Node    Node
	Cluster *Cluster
}

// Deferred returns a result that passes the name on to the next resolver.
func Deferred() Result { return Result{Kind: KindDeferred} }

// NotFound returns an authoritative miss.
func NotFound() Result { return Result{Kind: KindNotFound} }

// Single returns a one-endpoint result.
func Single(n Node) Result { return Result{Kind: KindSingle, Address: n.Address(), Node: n} }

// Multi returns a failover result over c.
func Multi(c *Cluster) Result { return Result{Kind: KindFailover, Cluster: c} }

// Found reports whether the result carries at least one endpoint.
func (r Result) Found() bool {
	return r.Kind == KindSingle || r.Kind == KindFailover
}
