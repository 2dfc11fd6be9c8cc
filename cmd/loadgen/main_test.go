package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dreamware/tally/internal/cluster"
)

func TestLoadConfig(t *testing.T) {
	t.Setenv("LOADGEN_TARGET", "")
	t.Setenv("LOADGEN_RPS", "")
	t.Setenv("LOADGEN_DURATION", "")

	cfg, err := loadConfig()
	require.NoError(t, err)
	assert.Equal(t, config{target: "http://localhost/increment", rps: 5, duration: 20 * time.Second}, cfg)

	t.Setenv("LOADGEN_RPS", "0")
	_, err = loadConfig()
	assert.Error(t, err)

	t.Setenv("LOADGEN_RPS", "10")
	t.Setenv("LOADGEN_DURATION", "forever")
	_, err = loadConfig()
	assert.Error(t, err)
}

func TestTallyRecord(t *testing.T) {
	tl := newTally()
	tl.record(cluster.CounterResponse{Server: "a", Counter: 3}, nil)
	tl.record(cluster.CounterResponse{Server: "b", Counter: 5}, nil)
	tl.record(cluster.CounterResponse{Server: "a", Counter: 4}, nil)
	tl.record(cluster.CounterResponse{}, errors.New("refused"))

	assert.Equal(t, map[string]int{"a": 2, "b": 1}, tl.perServer)
	assert.Equal(t, int64(5), tl.highest)
	assert.Equal(t, 1, tl.failures)
	tl.report()
}

// TestRun drives a fake node and checks requests arrive at roughly the configured rate
func TestRun(t *testing.T) {
	var hits atomic.Int64
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := hits.Add(1)
		json.NewEncoder(w).Encode(cluster.CounterResponse{Server: "n1", Counter: n})
	}))
	defer srv.Close()

	tl := newTally()
	run(context.Background(), config{target: srv.URL + "/increment", rps: 50, duration: 300 * time.Millisecond}, tl)

	got := hits.Load()
	assert.GreaterOrEqual(t, got, int64(5))
	assert.LessOrEqual(t, got, int64(20))
	assert.Equal(t, int(got), tl.perServer["n1"])
	assert.Equal(t, got, tl.highest)
}
