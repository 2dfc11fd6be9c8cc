// Package workload injects artificial per-request cost in front of a counter
// increment.
//
// Two strategies behave very differently under load. CooperativeDelay parks
// the request on a timer and lets everything else on the node run.
// BlockingCompute burns CPU while holding the node's processing gate: every
// request passes Barrier before doing any work, so nothing else on the node
// (increments, /sync from peers, reads, health checks) progresses until the
// computation ends. That head-of-line blocking is the point of the
// experiment; isolating it behind admission control or a worker pool is left
// for later.
package workload

import (
	"context"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// Kind selects a Simulator.
type Kind string

const (
	// KindDelay selects CooperativeDelay.
	KindDelay Kind = "delay"
	// KindCompute selects BlockingCompute.
	KindCompute Kind = "compute"
	// KindNone disables the simulated cost.
	KindNone Kind = "none"
)

// ParseKind maps a configuration string to a Kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(strings.ToLower(strings.TrimSpace(s))); k {
	case KindDelay, KindCompute, KindNone:
		return k, nil
	}
	return "", errors.Errorf("unknown workload %q (want delay, compute or none)", s)
}

// Simulator models the processing cost of one request.
type Simulator interface {
	// Simulate spends the cost for one request.
	Simulate(ctx context.Context) error
	// Barrier returns once the node is free to make progress on a request.
	Barrier()
	// Name identifies the strategy in logs.
	Name() string
}

// New builds the simulator for kind. maxDelay bounds CooperativeDelay and
// compute is the BlockingCompute duration.
func New(kind Kind, maxDelay, compute time.Duration) (Simulator, error) {
	switch kind {
	case KindDelay:
		return NewCooperativeDelay(maxDelay), nil
	case KindCompute:
		return NewBlockingCompute(compute), nil
	case KindNone:
		return None{}, nil
	}
	return nil, errors.Errorf("unknown workload %q", kind)
}

// None costs nothing. Requests run straight through, which is what the
// convergence tests and a plain counter deployment want.
type None struct{}

// Simulate returns immediately.
func (None) Simulate(context.Context) error { return nil }

// Barrier never blocks.
func (None) Barrier() {}

// Name returns "none".
func (None) Name() string { return string(KindNone) }

// CooperativeDelay sleeps for a uniformly random duration in [0, Max).
//
// The wait parks only the calling goroutine, so other requests on the node
// (including peer pushes and reads) keep flowing while it sleeps. A request
// whose context ends during the wait is abandoned before any state change.
//
// Thread-safe: the random source is guarded by a mutex.
type CooperativeDelay struct {
	rng *rand.Rand
	Max time.Duration
	mu  sync.Mutex
}

// NewCooperativeDelay returns a delay strategy whose waits stay below bound.
func NewCooperativeDelay(bound time.Duration) *CooperativeDelay {
	return &CooperativeDelay{
		Max: bound,
		rng: rand.New(rand.NewSource(time.Now().UnixNano())),
	}
}

// Simulate waits for the random delay or until ctx is done.
func (d *CooperativeDelay) Simulate(ctx context.Context) error {
	wait := d.next()
	if wait <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(wait)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (d *CooperativeDelay) next() time.Duration {
	if d.Max <= 0 {
		return 0
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return time.Duration(d.rng.Int63n(int64(d.Max)))
}

// Barrier never blocks.
func (d *CooperativeDelay) Barrier() {}

// Name returns "delay".
func (d *CooperativeDelay) Name() string { return string(KindDelay) }

// BlockingCompute occupies the node for a fixed Duration of busy work.
//
// Simulate takes the write side of the gate and every request takes the
// read side in Barrier, so while one computation runs:
//   - other increments queue behind it
//   - /sync pushes from peers wait, and the peers may time out
//   - reads and health checks stall
//
// Computations on the same node are serialized.
type BlockingCompute struct {
	gate     sync.RWMutex
	Duration time.Duration
}

// NewBlockingCompute returns a compute strategy that spins for d.
func NewBlockingCompute(d time.Duration) *BlockingCompute {
	return &BlockingCompute{Duration: d}
}

// Simulate holds the node gate and spins until Duration has elapsed. The
// context is deliberately not consulted: the work cannot be interrupted.
func (b *BlockingCompute) Simulate(context.Context) error {
	b.gate.Lock()
	defer b.gate.Unlock()
	spin(b.Duration)
	return nil
}

// Barrier waits for any running computation to finish.
func (b *BlockingCompute) Barrier() {
	b.gate.RLock()
	b.gate.RUnlock()
}

// Name returns "compute".
func (b *BlockingCompute) Name() string { return string(KindCompute) }

// sink keeps the compiler from discarding the loop body.
var sink uint64

func spin(d time.Duration) {
	deadline := time.Now().Add(d)
	x := uint64(1)
	for time.Now().Before(deadline) {
		for i := 0; i < 1000; i++ {
			x = x*6364136223846793005 + 1442695040888963407
		}
	}
	sink = x
}
