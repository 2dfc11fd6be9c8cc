package cluster

import (
	"net/url"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/exp/slices"
)

// Registry holds this node's identity and the static peer list. It is built
// once at startup and never changes for the process lifetime.
type Registry struct {
	self  string
	peers []string
}

// NewRegistry validates peers and returns an immutable registry. Duplicates
// are dropped, order is otherwise preserved.
func NewRegistry(self string, peers []string) (*Registry, error) {
	if self == "" {
		return nil, errors.New("node id must not be empty")
	}
	out := make([]string, 0, len(peers))
	for _, p := range peers {
		p = strings.TrimRight(strings.TrimSpace(p), "/")
		if p == "" {
			continue
		}
		u, err := url.Parse(p)
		if err != nil {
			return nil, errors.Wrapf(err, "invalid peer %q", p)
		}
		if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			return nil, errors.Errorf("invalid peer %q (expected http://host:port)", p)
		}
		if slices.Contains(out, p) {
			continue
		}
		out = append(out, p)
	}
	return &Registry{self: self, peers: out}, nil
}

// ParsePeers splits a comma-separated PEERS value. An empty string yields a
// standalone node.
func ParsePeers(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	return strings.Split(raw, ",")
}

// Self returns this node's identity.
func (r *Registry) Self() string {
	return r.self
}

// Peers returns a copy of the peer base URLs.
func (r *Registry) Peers() []string {
	return slices.Clone(r.peers)
}

// Len returns the number of peers.
func (r *Registry) Len() int {
	return len(r.peers)
}

// Standalone reports whether the node has no peers.
func (r *Registry) Standalone() bool {
	return len(r.peers) == 0
}
