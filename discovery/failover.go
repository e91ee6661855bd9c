package discovery

import (
	"context"
	"errors"
	"fmt"
)

// DialFunc attempts one endpoint.
type DialFunc func(ctx context.Context, addr string) error

// Failover drives a lookup result: a Single result is dialed once, a
// Failover result pops nodes until dial succeeds. It returns the address
// that succeeded. Deferred and NotFound results fail with
// ErrServiceNotFound; when every endpoint fails the error wraps
// ErrNoHealthyEndpoints and each endpoint's error.
func Failover(ctx context.Context, res Result, dial DialFunc) (string, error) {
	switch res.Kind {
	case KindSingle:
		if err := dial(ctx, res.Address); err != nil {
			return "", errors.Join(ErrNoHealthyEndpoints, fmt.Errorf("%s: %w", res.Address, err))
		}
		return res.Address, nil

	case KindFailover:
		errs := []error{ErrNoHealthyEndpoints}
		for {
			if err := ctx.Err(); err != nil {
				return "", err
			}
			n, ok := res.Cluster.Pop()
			if !ok {
				return "", errors.Join(errs...)
			}
			addr := n.Address()
			err := dial(ctx, addr)
			if err == nil {
				return addr, nil
			}
			errs = append(errs, fmt.Errorf("%s: %w", addr, err))
		}

	default:
		return "", ErrServiceNotFound
	}
}
