package reconcile

import (
	"context"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/pkg/errors"
	"golang.org/x/sync/errgroup"
)

const (
	// DefaultDeadline bounds the whole bootstrap.
	DefaultDeadline = 10 * time.Second
	// DefaultInitialInterval is the first backoff wait between rounds.
	DefaultInitialInterval = 200 * time.Millisecond
	// DefaultMaxInterval caps the backoff wait between rounds.
	DefaultMaxInterval = 2 * time.Second
)

// Mode decides whether a node serves traffic before bootstrap finishes.
type Mode string

const (
	// Blocking binds the listener, bootstraps, then serves.
	Blocking Mode = "blocking"
	// Background serves immediately and bootstraps concurrently. Early
	// clients may see a low value that later jumps up.
	Background Mode = "background"
)

// ParseMode maps a configuration string to a Mode. Case and surrounding
// whitespace are ignored.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(strings.ToLower(strings.TrimSpace(s))); m {
	case Blocking, Background:
		return m, nil
	}
	return "", errors.Errorf("unknown bootstrap mode %q (want blocking or background)", s)
}

// Options configures Bootstrap. Zero durations select the package defaults.
type Options struct {
	Fetcher         Fetcher       // Reads a peer's counter
	Target          Target        // Local counter to seed
	NodeID          string        // Used in log lines
	Peers           []string      // Peer base URLs to ask
	Deadline        time.Duration // Budget for all rounds together
	InitialInterval time.Duration // First wait between rounds
	MaxInterval     time.Duration // Cap on the wait between rounds
}

// Result describes a finished bootstrap.
//
// Responded and Unreachable partition the peer list. After is never below
// Before; with no responding peer they are equal.
type Result struct {
	Responded   []string // Peers that answered in some round
	Unreachable []string // Peers still silent at the deadline
	Before      int64    // Local value when bootstrap started
	After       int64    // Local value when bootstrap returned
	Attempts    int      // Number of rounds run
}

// Bootstrap seeds the target from its peers. It always returns; failures
// only show up in Result.Unreachable and the log.
func Bootstrap(ctx context.Context, opts Options) Result {
	res := Result{Before: opts.Target.Value()}
	if len(opts.Peers) == 0 {
		res.After = res.Before
		return res
	}

	deadline := opts.Deadline
	if deadline <= 0 {
		deadline = DefaultDeadline
	}
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = orDefault(opts.InitialInterval, DefaultInitialInterval)
	b.MaxInterval = orDefault(opts.MaxInterval, DefaultMaxInterval)
	b.MaxElapsedTime = 0
	b.Reset()

	pending := append([]string(nil), opts.Peers...)
	round := func() error {
		res.Attempts++
		values, failed := pull(ctx, opts.NodeID, opts.Fetcher, pending)

		best := int64(-1)
		for _, peer := range pending {
			v, ok := values[peer]
			if !ok {
				continue
			}
			res.Responded = append(res.Responded, peer)
			if v > best {
				best = v
			}
		}
		if best >= 0 {
			opts.Target.Merge(best)
		}

		pending = failed
		if len(pending) > 0 {
			return errors.Errorf("%d of %d peers unreachable", len(pending), len(opts.Peers))
		}
		return nil
	}

	if err := backoff.Retry(round, backoff.WithContext(b, ctx)); err != nil {
		log.Printf("node[%s] bootstrap gave up after %d attempts: %v", opts.NodeID, res.Attempts, err)
	}

	res.Unreachable = pending
	res.After = opts.Target.Value()
	return res
}

// pull fetches every peer concurrently. Failed peers are returned in input
// order and are absent from the value map.
func pull(ctx context.Context, nodeID string, f Fetcher, peers []string) (map[string]int64, []string) {
	var mu sync.Mutex
	values := make(map[string]int64, len(peers))

	var g errgroup.Group
	for _, peer := range peers {
		g.Go(func() error {
			v, err := f.Fetch(ctx, peer)
			if err != nil {
				log.Printf("node[%s] read %s failed: %v", nodeID, peer, err)
				return nil
			}
			mu.Lock()
			values[peer] = v
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	var failed []string
	for _, peer := range peers {
		if _, ok := values[peer]; !ok {
			failed = append(failed, peer)
		}
	}
	return values, failed
}

func orDefault(d, def time.Duration) time.Duration {
	if d > 0 {
		return d
	}
	return def
}
