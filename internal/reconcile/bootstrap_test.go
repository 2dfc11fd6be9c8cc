package reconcile

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/tally/internal/cluster"
	"github.com/dreamware/tally/internal/counter"
)

func fastOptions(peers []string, f Fetcher, c *counter.Counter) Options {
	return Options{
		NodeID:          "n1",
		Peers:           peers,
		Fetcher:         f,
		Target:          c,
		Deadline:        300 * time.Millisecond,
		InitialInterval: 5 * time.Millisecond,
		MaxInterval:     20 * time.Millisecond,
	}
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("blocking")
	require.NoError(t, err)
	assert.Equal(t, Blocking, m)

	m, err = ParseMode("background")
	require.NoError(t, err)
	assert.Equal(t, Background, m)

	m, err = ParseMode(" Blocking ")
	require.NoError(t, err)
	assert.Equal(t, Blocking, m)

	m, err = ParseMode("BACKGROUND")
	require.NoError(t, err)
	assert.Equal(t, Background, m)

	_, err = ParseMode("grace")
	assert.Error(t, err)
}

func TestBootstrapStandalone(t *testing.T) {
	c := counter.New("n1")
	c.Merge(4)

	res := Bootstrap(context.Background(), fastOptions(nil, newFakeFetcher(nil), c))

	assert.Equal(t, Result{Before: 4, After: 4}, res)
}

// TestBootstrapOneLiveOneUnreachable covers the degraded cluster start: the
// live peer's 7 is adopted and the dead peer raises nothing.
func TestBootstrapOneLiveOneUnreachable(t *testing.T) {
	c := counter.New("n1")
	f := newFakeFetcher(map[string]int64{"http://live": 7})

	res := Bootstrap(context.Background(), fastOptions([]string{"http://live", "http://dead"}, f, c))

	assert.Equal(t, int64(7), c.Value())
	assert.Equal(t, int64(0), res.Before)
	assert.Equal(t, int64(7), res.After)
	assert.Equal(t, []string{"http://live"}, res.Responded)
	assert.Equal(t, []string{"http://dead"}, res.Unreachable)
	assert.Greater(t, res.Attempts, 1, "unreachable peer should be retried")
	assert.Equal(t, 1, f.callCount("http://live"), "answered peer must not be asked again")
}

func TestBootstrapAllUnreachableKeepsLocal(t *testing.T) {
	c := counter.New("n1")
	f := newFakeFetcher(map[string]int64{})

	start := time.Now()
	res := Bootstrap(context.Background(), fastOptions([]string{"http://a", "http://b"}, f, c))

	assert.Equal(t, int64(0), res.After)
	assert.Empty(t, res.Responded)
	assert.Equal(t, []string{"http://a", "http://b"}, res.Unreachable)
	assert.Less(t, time.Since(start), 2*time.Second, "bootstrap must respect its deadline")
}

func TestBootstrapTakesMaximum(t *testing.T) {
	c := counter.New("n1")
	c.Merge(5)
	f := newFakeFetcher(map[string]int64{"http://a": 3, "http://b": 12, "http://c": 8})

	res := Bootstrap(context.Background(), fastOptions([]string{"http://a", "http://b", "http://c"}, f, c))

	assert.Equal(t, int64(12), res.After)
	assert.Equal(t, 1, res.Attempts)
	assert.Empty(t, res.Unreachable)
	assert.ElementsMatch(t, []string{"http://a", "http://b", "http://c"}, res.Responded)
}

// TestBootstrapNeverLowersLocal verifies peers below the local value change nothing
func TestBootstrapNeverLowersLocal(t *testing.T) {
	c := counter.New("n1")
	c.Merge(20)
	f := newFakeFetcher(map[string]int64{"http://a": 0, "http://b": 3})

	res := Bootstrap(context.Background(), fastOptions([]string{"http://a", "http://b"}, f, c))
	assert.Equal(t, int64(20), res.After)
}

// TestBootstrapPeerComesUpLate verifies a peer that starts after us is picked up by a retry
func TestBootstrapPeerComesUpLate(t *testing.T) {
	c := counter.New("n1")
	f := newFakeFetcher(map[string]int64{"http://late": 9})
	f.upAfter["http://late"] = 2

	res := Bootstrap(context.Background(), fastOptions([]string{"http://late"}, f, c))

	assert.Equal(t, int64(9), res.After)
	assert.Equal(t, 3, res.Attempts)
	assert.Empty(t, res.Unreachable)
}

func TestBootstrapCanceledContext(t *testing.T) {
	c := counter.New("n1")
	f := newFakeFetcher(map[string]int64{"http://a": 4})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	res := Bootstrap(ctx, fastOptions([]string{"http://a"}, f, c))
	assert.Equal(t, int64(0), res.After)
	assert.Equal(t, []string{"http://a"}, res.Unreachable)
}

// TestBootstrapOverHTTP runs bootstrap with the real client against one live
// and one closed peer.
func TestBootstrapOverHTTP(t *testing.T) {
	live := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(cluster.CounterResponse{Server: "peer", Counter: 7})
	}))
	defer live.Close()

	dead := httptest.NewServer(http.NotFoundHandler())
	deadURL := dead.URL
	dead.Close()

	c := counter.New("n1")
	opts := fastOptions([]string{live.URL, deadURL}, cluster.NewClient(100*time.Millisecond), c)

	res := Bootstrap(context.Background(), opts)
	assert.Equal(t, int64(7), res.After)
	assert.Equal(t, []string{deadURL}, res.Unreachable)
}
