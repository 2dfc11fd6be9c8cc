package reconcile

import (
	"context"
	"log"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// Peer health states.
const (
	StatusUnknown   = "unknown"
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// PeerHealth tracks what the monitor last learned about one peer.
type PeerHealth struct {
	LastCheck        time.Time // Timestamp of the last pull attempt
	LastHealthy      time.Time // Timestamp of the last successful pull
	Addr             string    // Peer base URL
	Status           string    // "healthy", "unhealthy" or "unknown"
	LastValue        int64     // Counter the peer reported on its last successful pull
	ConsecutiveFails int       // Failed pulls since the last success
}

// Monitor periodically pulls every peer's counter and merges the maximum into
// the local target. Thread-safe: all methods are safe for concurrent access.
type Monitor struct {
	fetcher     Fetcher
	target      Target
	peers       map[string]*PeerHealth
	ctx         context.Context
	cancel      context.CancelFunc
	nodeID      string
	order       []string
	interval    time.Duration
	mu          sync.RWMutex
	wg          sync.WaitGroup
	maxFailures int
}

// NewMonitor creates a monitor for peers. An interval <= 0 disables the
// periodic loop; Sync can still be called directly.
func NewMonitor(nodeID string, peers []string, f Fetcher, target Target, interval time.Duration) *Monitor {
	ctx, cancel := context.WithCancel(context.Background())
	m := &Monitor{
		fetcher:     f,
		target:      target,
		nodeID:      nodeID,
		interval:    interval,
		maxFailures: 3,
		peers:       make(map[string]*PeerHealth, len(peers)),
		order:       append([]string(nil), peers...),
		ctx:         ctx,
		cancel:      cancel,
	}
	for _, p := range peers {
		m.peers[p] = &PeerHealth{Addr: p, Status: StatusUnknown}
	}
	return m
}

// Enabled reports whether the periodic loop will run.
func (m *Monitor) Enabled() bool {
	return m.interval > 0 && len(m.order) > 0
}

// Start launches the pull loop in the background. It runs until ctx is
// canceled or Stop is called.
func (m *Monitor) Start(ctx context.Context) {
	if !m.Enabled() {
		return
	}
	m.wg.Add(1)
	go m.run(ctx)
}

func (m *Monitor) run(ctx context.Context) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	log.Printf("node[%s] anti-entropy started with interval %v", m.nodeID, m.interval)

	for {
		select {
		case <-ticker.C:
			m.Sync(ctx)
		case <-ctx.Done():
			return
		case <-m.ctx.Done():
			return
		}
	}
}

// Stop cancels the loop and waits for it to exit.
func (m *Monitor) Stop() {
	m.cancel()
	m.wg.Wait()
}

// Sync performs one pull round and returns the local value afterwards.
func (m *Monitor) Sync(ctx context.Context) int64 {
	var mu sync.Mutex
	best := int64(-1)

	var g errgroup.Group
	for _, peer := range m.order {
		g.Go(func() error {
			v, err := m.fetcher.Fetch(ctx, peer)
			m.record(peer, v, err)
			if err == nil {
				mu.Lock()
				if v > best {
					best = v
				}
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()

	if best < 0 {
		return m.target.Value()
	}
	before := m.target.Value()
	after := m.target.Merge(best)
	if after > before {
		log.Printf("node[%s] anti-entropy raised counter %d -> %d", m.nodeID, before, after)
	}
	return after
}

func (m *Monitor) record(peer string, value int64, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	h := m.peers[peer]
	h.LastCheck = time.Now()

	if err != nil {
		h.ConsecutiveFails++
		if h.ConsecutiveFails >= m.maxFailures && h.Status != StatusUnhealthy {
			h.Status = StatusUnhealthy
			log.Printf("node[%s] peer %s marked unhealthy after %d failures: %v",
				m.nodeID, peer, h.ConsecutiveFails, err)
		}
		return
	}

	if h.Status == StatusUnhealthy {
		log.Printf("node[%s] peer %s recovered", m.nodeID, peer)
	}
	h.Status = StatusHealthy
	h.ConsecutiveFails = 0
	h.LastHealthy = h.LastCheck
	h.LastValue = value
}

// PeerHealth returns a copy of one peer's record, or nil if unknown.
func (m *Monitor) PeerHealth(peer string) *PeerHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()

	h, ok := m.peers[peer]
	if !ok {
		return nil
	}
	cp := *h
	return &cp
}

// Snapshot returns copies of every peer record in configuration order.
func (m *Monitor) Snapshot() []PeerHealth {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]PeerHealth, 0, len(m.order))
	for _, p := range m.order {
		out = append(out, *m.peers[p])
	}
	return out
}

// IsHealthy reports whether the last pulls from peer succeeded.
func (m *Monitor) IsHealthy(peer string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	h, ok := m.peers[peer]
	return ok && h.Status == StatusHealthy
}
