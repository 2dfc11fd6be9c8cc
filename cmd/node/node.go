package main

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/dreamware/tally/internal/cluster"
	"github.com/dreamware/tally/internal/counter"
	"github.com/dreamware/tally/internal/reconcile"
	"github.com/dreamware/tally/internal/replication"
	"github.com/dreamware/tally/internal/workload"
)

// Node is one replica: the counter it owns plus the machinery that keeps it
// in step with its peers.
//
// Request path for /increment:
//
//	barrier ─▶ workload ─▶ counter.LocalIncrement ─▶ replicator ─▶ response
//
// Everything a peer sends goes through counter.Merge, so the counter only
// ever moves up.
type Node struct {
	counter    *counter.Counter
	registry   *cluster.Registry
	client     *cluster.Client
	sim        workload.Simulator
	replicator *replication.Replicator
	monitor    *reconcile.Monitor
	cfg        Config
	ID         string
}

// NewNode wires a node from cfg. It does not touch the network.
func NewNode(cfg Config) (*Node, error) {
	reg, err := cluster.NewRegistry(cfg.ServerID, cfg.Peers)
	if err != nil {
		return nil, err
	}
	sim, err := workload.New(cfg.Workload, cfg.MaxDelay, cfg.Compute)
	if err != nil {
		return nil, err
	}

	client := cluster.NewClient(cfg.PeerTimeout)
	ctr := counter.New(cfg.ServerID)

	return &Node{
		ID:         cfg.ServerID,
		cfg:        cfg,
		counter:    ctr,
		registry:   reg,
		client:     client,
		sim:        sim,
		replicator: replication.New(cfg.ServerID, reg.Peers(), client, cfg.Replication),
		monitor:    reconcile.NewMonitor(cfg.ServerID, reg.Peers(), client, ctr, cfg.AntiEntropyInterval),
	}, nil
}

// Routes returns the node's HTTP surface. Every route first passes the
// workload barrier, so a blocking computation stalls the whole node.
func (n *Node) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/increment", n.handleIncrement)
	mux.HandleFunc("/sync", n.handleSync)
	mux.HandleFunc("/replicate", n.handleSync)
	mux.HandleFunc("/counter", n.handleCounter)
	mux.HandleFunc("/peers", n.handlePeers)
	mux.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return n.admit(mux)
}

func (n *Node) admit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n.sim.Barrier()
		next.ServeHTTP(w, r)
	})
}

// Bootstrap pulls the best known value from the peers and logs the result.
//
// A standalone node has nobody to ask and starts from its current value.
// Otherwise the call returns once every peer answered or the bootstrap
// deadline passed; it never fails, unreachable peers only show up in the
// result and the log.
func (n *Node) Bootstrap(ctx context.Context) reconcile.Result {
	if n.registry.Standalone() {
		v := n.counter.Value()
		log.Printf("node[%s] no peers configured, running standalone at counter=%d", n.ID, v)
		return reconcile.Result{Before: v, After: v}
	}

	res := reconcile.Bootstrap(ctx, reconcile.Options{
		NodeID:   n.ID,
		Peers:    n.registry.Peers(),
		Fetcher:  n.client,
		Target:   n.counter,
		Deadline: n.cfg.BootstrapDeadline,
	})
	log.Printf("node[%s] initialized counter=%d (was %d, %d/%d peers answered, %d attempts)",
		n.ID, res.After, res.Before, len(res.Responded), n.registry.Len(), res.Attempts)
	return res
}

// Close stops the anti-entropy loop and waits for in-flight pushes.
// Call it after the HTTP server has shut down so no new pushes start.
func (n *Node) Close() {
	n.monitor.Stop()
	n.replicator.Wait()
}

// handleIncrement simulates the request cost, increments the counter and
// replicates the new value.
//
// Endpoint: GET|POST /increment
//
// Response:
//
//	{"counter": 5, "server": "node-a"}
//
// Behavior:
//   - The workload runs first; a client that hangs up during a cooperative
//     delay gets 503 and the counter is not touched
//   - With await-all replication the response waits for every peer push
//   - With fire-and-forget it returns as soon as the local increment is done
//
// Peer failures never fail this request. Under await-all they are counted
// and logged once per request.
func (n *Node) handleIncrement(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if err := n.sim.Simulate(r.Context()); err != nil {
		log.Printf("node[%s] increment abandoned during %s workload: %v", n.ID, n.sim.Name(), err)
		http.Error(w, "request canceled", http.StatusServiceUnavailable)
		return
	}

	v := n.counter.LocalIncrement()
	rep := n.replicator.Replicate(r.Context(), v)
	if rep.Failed > 0 {
		log.Printf("node[%s] counter=%d reached %d/%d peers", n.ID, v, rep.Delivered, rep.Peers)
	}

	writeJSON(w, cluster.CounterResponse{Server: n.ID, Counter: v})
}

// handleSync merges a value pushed by a peer.
//
// Endpoint: POST /sync (alias /replicate)
//
// Request body:
//
//	{"counter": 5}
//
// Response:
//
//	{"counter": 7}
//
// The response carries the value after merging, which may be larger than
// the one sent. A malformed body or counter (string, negative, fraction,
// null) is ignored; the node answers 200 with its unchanged value so the
// sender's push is never reported as failed.
func (n *Node) handleSync(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req cluster.SyncEnvelope
	var v int64
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("node[%s] ignoring malformed sync body: %v", n.ID, err)
		v = n.counter.Value()
	} else if merged, ok := n.counter.MergeRaw(req.Counter); ok {
		v = merged
	} else {
		log.Printf("node[%s] ignoring invalid sync counter %s", n.ID, req.Counter)
		v = merged
	}

	writeJSON(w, cluster.SyncResponse{Counter: v})
}

// handleCounter returns the current value. Peers call it during bootstrap
// and anti-entropy; clients call it to read.
//
// Endpoint: GET /counter
//
// Response:
//
//	{"counter": 5, "server": "node-a"}
func (n *Node) handleCounter(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	snap := n.counter.Read()
	writeJSON(w, cluster.CounterResponse{Server: snap.NodeID, Counter: snap.Value})
}

// handlePeers reports what anti-entropy knows about each peer.
//
// Endpoint: GET /peers[?peer=<url>]
//
// Response:
//
//	{
//	  "server": "node-a",
//	  "healthy": 1,
//	  "peers": [{"addr": "http://b:3000", "status": "healthy", "last_value": 5, ...}]
//	}
//
// With ?peer= only that peer's record is returned, or 404 if it is not
// configured. All records stay "unknown" while anti-entropy is disabled.
func (n *Node) handlePeers(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	if addr := r.URL.Query().Get("peer"); addr != "" {
		h := n.monitor.PeerHealth(addr)
		if h == nil {
			http.Error(w, "unknown peer", http.StatusNotFound)
			return
		}
		writeJSON(w, peerStatus(*h))
		return
	}

	health := n.monitor.Snapshot()
	resp := cluster.PeersResponse{Server: n.ID, Peers: make([]cluster.PeerStatus, 0, len(health))}
	for _, h := range health {
		if n.monitor.IsHealthy(h.Addr) {
			resp.Healthy++
		}
		resp.Peers = append(resp.Peers, peerStatus(h))
	}
	writeJSON(w, resp)
}

func peerStatus(h reconcile.PeerHealth) cluster.PeerStatus {
	return cluster.PeerStatus{
		Addr:             h.Addr,
		Status:           h.Status,
		LastValue:        h.LastValue,
		ConsecutiveFails: h.ConsecutiveFails,
		LastCheck:        formatTime(h.LastCheck),
		LastHealthy:      formatTime(h.LastHealthy),
	}
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Error writing response: %v", err)
	}
}
