// Package counter owns the single replicated value held by a tally node.
//
// The value only ever grows: by LocalIncrement, or by Merge with a larger
// candidate. Merge is max, so it is idempotent and commutative but it does
// not add up increments made independently on different nodes. Two nodes
// that each increment from v and then exchange values both end at v+1.
package counter

import (
	"bytes"
	"encoding/json"
	"math"
	"sync"
)

// Snapshot is the read-only view handed to clients.
type Snapshot struct {
	NodeID string
	Value  int64
}

// Counter is the node state. All access goes through its methods.
//
// Invariants:
//   - the value starts at 0 and is never negative
//   - it changes only through LocalIncrement or a Merge with a larger value
//   - it never decreases, and saturates at math.MaxInt64
//
// Thread-safe: a mutex serializes every mutation.
type Counter struct {
	nodeID string
	mu     sync.Mutex
	value  int64
}

// New returns a counter at zero owned by nodeID.
func New(nodeID string) *Counter {
	return &Counter{nodeID: nodeID}
}

// Read returns the current value. It never fails.
func (c *Counter) Read() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Snapshot{NodeID: c.nodeID, Value: c.value}
}

// Value is shorthand for Read().Value.
func (c *Counter) Value() int64 {
	return c.Read().Value
}

// LocalIncrement adds exactly one and returns the new value.
//
// The counter saturates at math.MaxInt64: a peer may legally push the
// maximum, and wrapping past it would make the value negative.
func (c *Counter) LocalIncrement() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.value < math.MaxInt64 {
		c.value++
	}
	return c.value
}

// Merge raises the counter to candidate if candidate is larger and returns
// the resulting value. Negative candidates are ignored.
func (c *Counter) Merge(candidate int64) int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	if candidate > c.value {
		c.value = candidate
	}
	return c.value
}

// MergeRaw merges an untrusted wire value. Anything that is not a JSON
// non-negative integer leaves the counter untouched; the second result
// reports whether the candidate was accepted for comparison.
func (c *Counter) MergeRaw(raw json.RawMessage) (int64, bool) {
	v, ok := ParseCandidate(raw)
	if !ok {
		return c.Value(), false
	}
	return c.Merge(v), true
}

// ParseCandidate validates a raw JSON merge candidate. Only a JSON integer
// in [0, math.MaxInt64] is accepted; numeric strings, fractions, exponents,
// null and an absent value are not.
func ParseCandidate(raw json.RawMessage) (int64, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || raw[0] == '"' {
		return 0, false
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var n json.Number
	if err := dec.Decode(&n); err != nil {
		return 0, false
	}
	v, err := n.Int64()
	if err != nil || v < 0 {
		return 0, false
	}
	return v, true
}
