package reconcile

import (
	"context"
	"fmt"
	"sync"
)

// fakeFetcher serves fixed values; peers without a value fail. A peer listed
// in upAfter fails until it has been asked that many times.
type fakeFetcher struct {
	values  map[string]int64
	upAfter map[string]int
	calls   map[string]int
	mu      sync.Mutex
}

func newFakeFetcher(values map[string]int64) *fakeFetcher {
	return &fakeFetcher{
		values:  values,
		upAfter: make(map[string]int),
		calls:   make(map[string]int),
	}
}

func (f *fakeFetcher) Fetch(ctx context.Context, peer string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[peer]++
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if n, ok := f.upAfter[peer]; ok && f.calls[peer] <= n {
		return 0, fmt.Errorf("dial %s: connection refused", peer)
	}
	v, ok := f.values[peer]
	if !ok {
		return 0, fmt.Errorf("dial %s: connection refused", peer)
	}
	return v, nil
}

func (f *fakeFetcher) set(peer string, v int64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[peer] = v
}

func (f *fakeFetcher) drop(peer string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.values, peer)
}

func (f *fakeFetcher) callCount(peer string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[peer]
}
