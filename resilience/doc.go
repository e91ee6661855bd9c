// Package resilience provides retry and circuit breaking primitives used by
// the statement proxy and the endpoint dialer.
//
//   - Retry: bounded attempts with optional exponential backoff. An
//     operation can stop the loop early by returning Permanent(err).
//   - CircuitBreaker: fails fast for an endpoint that keeps failing.
//   - Breakers: a keyed set of circuit breakers, one per endpoint address.
//
// Example:
//
//	res, err := resilience.RetryN(ctx, cfg, func(attempt int) (sql.Result, error) {
//	    if attempt > 1 {
//	        if err := refresh(ctx); err != nil {
//	            return nil, resilience.Permanent(err)
//	        }
//	    }
//	    return stmt.ExecContext(ctx, args...)
//	})
package resilience
