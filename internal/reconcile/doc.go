// Package reconcile pulls counter values from peers and merges them into
// the local counter.
//
// Bootstrap runs once at startup. It queries every peer's /counter
// concurrently, ignores peers that fail (an unreachable peer contributes no
// information, not a zero), and applies the largest value seen with a single
// merge per round. Peers that did not answer are retried with exponential
// backoff until they all answered or the deadline passed. Bootstrap never
// fails: a node whose peers are all down keeps its own value (0 on a cold
// start) and serves degraded.
//
// Monitor is the steady-state counterpart. On every tick it pulls all peers,
// merges the maximum, and records per-peer reachability the same way a health
// checker would. It closes gaps left by dropped replication pushes.
//
// Example:
//
//	res := reconcile.Bootstrap(ctx, reconcile.Options{
//	    NodeID:   "node-a",
//	    Peers:    reg.Peers(),
//	    Fetcher:  client,
//	    Target:   ctr,
//	    Deadline: 10 * time.Second,
//	})
//	log.Printf("initialized counter=%d", res.After)
package reconcile

import (
	"context"
)

// Fetcher reads a peer's current counter. cluster.Client implements it.
type Fetcher interface {
	Fetch(ctx context.Context, peer string) (int64, error)
}

// Target is the local state values are merged into. counter.Counter
// implements it.
type Target interface {
	Value() int64
	Merge(candidate int64) int64
}
