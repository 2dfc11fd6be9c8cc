// Package cluster provides the peer-facing plumbing shared by every tally
// node: the static peer registry, the HTTP/JSON wire types, and the client
// used to push and pull counter values between nodes.
//
// # Topology
//
// There is no coordinator. Each node is started with the same list of peer
// base URLs and talks to every other node directly:
//
//	┌─────────┐  POST /sync   ┌─────────┐
//	│ Node A  │ ────────────▶ │ Node B  │
//	│         │ ◀──────────── │         │
//	└─────────┘  GET /counter └─────────┘
//	     │  ▲                     │  ▲
//	     ▼  │                     ▼  │
//	        ┌─────────────────────┐
//	        │       Node C        │
//	        └─────────────────────┘
//
// # Wire Protocol
//
// Replication push (POST /sync, alias /replicate):
//
//	{"counter": 42}
//
// The receiver merges the value with max and answers with its own value.
//
// Read (GET /counter):
//
//	{"counter": 42, "server": "node-a"}
//
// # Failure Handling
//
// Every outbound call made through Client is bounded by a timeout (default
// 2s). Errors carry the peer URL and, for HTTP failures, the status code.
// Callers treat any error as "no information from this peer"; nothing here
// retries.
//
// # Registry
//
// Registry is immutable after construction. Peers() hands out copies so that
// no caller can reorder or extend the list at runtime.
package cluster
