package discovery

import "context"

// Chain tries resolvers in order. A Deferred result moves on to the next
// resolver; NotFound, a found result or an error ends the lookup. If every
// resolver defers, the chain defers too.
type Chain struct {
	resolvers []Lookuper
}

// Lookuper is anything that resolves a name to a Result.
type Lookuper interface {
	Lookup(ctx context.Context, name string) (Result, error)
}

// NewChain creates a Chain over resolvers.
func NewChain(resolvers ...Lookuper) *Chain {
	return &Chain{resolvers: resolvers}
}

// Append adds resolvers to the end of the chain.
func (c *Chain) Append(resolvers ...Lookuper) *Chain {
	c.resolvers = append(c.resolvers, resolvers...)
	return c
}

// Len returns the number of resolvers.
func (c *Chain) Len() int { return len(c.resolvers) }

// Lookup runs name through the chain.
func (c *Chain) Lookup(ctx context.Context, name string) (Result, error) {
	for _, r := range c.resolvers {
		if err := ctx.Err(); err != nil {
			return Result{}, err
		}
		res, err := r.Lookup(ctx, name)
		if err != nil {
			return Result{}, err
		}
		if res.Kind != KindDeferred {
			return res, nil
		}
	}
	return Deferred(), nil
}
