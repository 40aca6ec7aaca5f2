package sync

import (
	"context"
	"sync/atomic"

	"golang.org/x/sync/singleflight"
)

// Guard lets at most one run per key execute at a time. Callers arriving
// while a run is in flight wait for it and share its outcome.
type Guard struct {
	group singleflight.Group
}

// NewGuard creates a Guard.
func NewGuard() *Guard {
	return &Guard{}
}

// Do runs fn unless a run for key is already in flight, in which case it
// waits for that run. Joiners get a copy of the summary with Joined set.
//
// fn receives a context that keeps ctx's values but is never cancelled, so
// a run outlives the caller that started it. When ctx ends first, Do
// returns ctx's error and the run continues for the remaining callers.
func (g *Guard) Do(ctx context.Context, key string, fn func(context.Context) (*RunSummary, error)) (*RunSummary, error) {
	runCtx := context.WithoutCancel(ctx)

	var started atomic.Bool
	ch := g.group.DoChan(key, func() (any, error) {
		started.Store(true)
		return fn(runCtx)
	})

	var res singleflight.Result
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res = <-ch:
	}

	summary, _ := res.Val.(*RunSummary)
	if summary != nil && !started.Load() {
		joined := *summary
		joined.Joined = true
		summary = &joined
	}
	return summary, res.Err
}
