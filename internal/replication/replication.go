// Package replication pushes a node's counter to every peer after a local
// increment.
//
// Deliveries are independent: one peer timing out, refusing the connection or
// answering non-2xx is logged and never stops delivery to the others, nor
// fails the client request that triggered the push. Nothing is retried; a
// stale peer catches up on a later push, its own bootstrap, or anti-entropy.
// Because the receiver merges with max, duplicated or reordered pushes are
// harmless.
package replication

import (
	"context"
	"log"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

// Policy selects how long Replicate holds the caller.
type Policy string

const (
	// AwaitAll returns once every peer delivery has finished, successfully or not.
	AwaitAll Policy = "await-all"
	// FireAndForget dispatches deliveries and returns immediately.
	FireAndForget Policy = "fire-and-forget"
)

// ParsePolicy maps a configuration string to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch p := Policy(strings.ToLower(strings.TrimSpace(s))); p {
	case AwaitAll, FireAndForget:
		return p, nil
	}
	return "", errors.Errorf("unknown replication policy %q (want await-all or fire-and-forget)", s)
}

// Pusher delivers a value to one peer. cluster.Client implements it.
type Pusher interface {
	Push(ctx context.Context, peer string, value int64) (int64, error)
}

// Report summarizes one Replicate call. For FireAndForget the counts are
// unknown at return time and stay zero.
type Report struct {
	Peers     int  // Peers the value was sent to
	Delivered int  // Pushes a peer acknowledged
	Failed    int  // Pushes that timed out, were refused or got a non-2xx
	Async     bool // Deliveries still running in the background
}

// Replicator fans a value out to a fixed peer list.
//
// Each push goes to the peer's /sync endpoint. A failing peer is logged and
// skipped; it never aborts the other pushes and never fails the caller.
// There are no retries: a peer that missed a push catches up from a later
// one, or from anti-entropy when enabled.
//
// Thread-safe: Replicate may be called from many requests at once.
type Replicator struct {
	pusher   Pusher
	nodeID   string
	policy   Policy
	peers    []string
	inflight sync.WaitGroup
}

// New returns a Replicator for peers using policy.
func New(nodeID string, peers []string, pusher Pusher, policy Policy) *Replicator {
	return &Replicator{
		pusher: pusher,
		nodeID: nodeID,
		policy: policy,
		peers:  append([]string(nil), peers...),
	}
}

// Policy returns the configured delivery policy.
func (r *Replicator) Policy() Policy {
	return r.policy
}

// Replicate sends value to every peer according to the policy. Deliveries
// are detached from ctx cancellation so that a client hanging up does not
// cut a push short; each delivery is still bounded by the pusher's timeout.
func (r *Replicator) Replicate(ctx context.Context, value int64) Report {
	rep := Report{Peers: len(r.peers)}
	if len(r.peers) == 0 {
		return rep
	}
	ctx = context.WithoutCancel(ctx)

	if r.policy == FireAndForget {
		rep.Async = true
		r.inflight.Add(1)
		go func() {
			defer r.inflight.Done()
			r.deliver(ctx, value)
		}()
		return rep
	}

	rep.Delivered, rep.Failed = r.deliver(ctx, value)
	return rep
}

// Wait blocks until all background deliveries have finished.
func (r *Replicator) Wait() {
	r.inflight.Wait()
}

func (r *Replicator) deliver(ctx context.Context, value int64) (int, int) {
	var ok, failed atomic.Int64
	var g errgroup.Group
	for _, peer := range r.peers {
		g.Go(func() error {
			if _, err := r.pusher.Push(ctx, peer, value); err != nil {
				failed.Add(1)
				log.Printf("node[%s] replicate %d to %s failed: %v", r.nodeID, value, peer, err)
				return nil
			}
			ok.Add(1)
			return nil
		})
	}
	_ = g.Wait()
	return int(ok.Load()), int(failed.Load())
}
