package cluster

import (
	"encoding/json"
)

// SyncRequest is the replication message pushed to a peer's /sync endpoint.
// It carries no sender identity and no ordering metadata.
type SyncRequest struct {
	Counter int64 `json:"counter"`
}

// SyncEnvelope is the server-side view of a SyncRequest. The counter is kept
// raw so that malformed values can be rejected without failing the request.
type SyncEnvelope struct {
	Counter json.RawMessage `json:"counter"`
}

// SyncResponse is returned by /sync with the receiver's value after merging.
type SyncResponse struct {
	Counter int64 `json:"counter"`
}

// CounterResponse is returned by /counter and /increment.
type CounterResponse struct {
	Server  string `json:"server"`
	Counter int64  `json:"counter"`
}

// PeerStatus describes what a node currently knows about one peer.
type PeerStatus struct {
	LastCheck        string `json:"last_check,omitempty"`
	LastHealthy      string `json:"last_healthy,omitempty"`
	Addr             string `json:"addr"`
	Status           string `json:"status"`
	LastValue        int64  `json:"last_value"`
	ConsecutiveFails int    `json:"consecutive_fails"`
}

// PeersResponse is returned by /peers. Healthy counts the peers whose
// last pulls succeeded.
type PeersResponse struct {
	Server  string       `json:"server"`
	Peers   []PeerStatus `json:"peers"`
	Healthy int          `json:"healthy"`
}
