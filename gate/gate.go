// Package gate provides the bounded-polling primitive the harness uses to
// synchronize otherwise-unconnected processes and sessions.
//
// There is no push channel between the two client instances or the backend
// services; every cross-process wait in the harness goes through Poll.
package gate

import (
	"context"
	"time"
)

// Predicate reports whether the awaited condition holds. Predicates may
// perform I/O. A predicate error is transient ("not yet ready"), never a
// gate failure.
type Predicate func(ctx context.Context) (bool, error)

// Poll evaluates pred at the given interval until it reports true or the
// timeout elapses. The first evaluation happens immediately.
//
// Returns true on the first success, false on timeout or context
// cancellation. Timeout is an expected outcome, not an error, so Poll
// never returns one.
//
// Each evaluation runs under a context bounded by the gate deadline, so
// Poll returns within timeout + one interval of invocation regardless of
// predicate behavior.
func Poll(ctx context.Context, pred Predicate, interval, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	ctx, cancel := context.WithDeadline(ctx, deadline)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		ok, err := pred(ctx)
		if err == nil && ok {
			return true
		}

		if !time.Now().Before(deadline) {
			return false
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return false
		}
	}
}
