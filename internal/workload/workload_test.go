package workload

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseKind(t *testing.T) {
	tests := []struct {
		in      string
		want    Kind
		wantErr bool
	}{
		{"delay", KindDelay, false},
		{" Compute ", KindCompute, false},
		{"none", KindNone, false},
		{"busy", "", true},
		{"", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseKind(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestNew(t *testing.T) {
	for _, k := range []Kind{KindDelay, KindCompute, KindNone} {
		s, err := New(k, time.Millisecond, time.Millisecond)
		require.NoError(t, err)
		assert.Equal(t, string(k), s.Name())
	}
	_, err := New("bogus", 0, 0)
	assert.Error(t, err)
}

func TestCooperativeDelayBounded(t *testing.T) {
	d := NewCooperativeDelay(20 * time.Millisecond)
	for i := 0; i < 10; i++ {
		start := time.Now()
		require.NoError(t, d.Simulate(context.Background()))
		assert.Less(t, time.Since(start), 500*time.Millisecond)
	}
}

func TestCooperativeDelayZero(t *testing.T) {
	d := NewCooperativeDelay(0)
	assert.NoError(t, d.Simulate(context.Background()))
}

func TestCooperativeDelayCanceled(t *testing.T) {
	d := NewCooperativeDelay(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, d.Simulate(ctx), context.Canceled)
}

// TestCooperativeDelayDoesNotBlockOthers verifies other work proceeds during a delay
func TestCooperativeDelayDoesNotBlockOthers(t *testing.T) {
	d := NewCooperativeDelay(time.Hour)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go d.Simulate(ctx)

	done := make(chan struct{})
	go func() {
		d.Barrier()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("barrier blocked during cooperative delay")
	}
}

func TestBlockingComputeDuration(t *testing.T) {
	b := NewBlockingCompute(30 * time.Millisecond)
	start := time.Now()
	require.NoError(t, b.Simulate(context.Background()))
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

// TestBlockingComputeHoldsBarrier verifies head-of-line blocking: nothing
// passes the barrier while a computation runs.
func TestBlockingComputeHoldsBarrier(t *testing.T) {
	b := NewBlockingCompute(150 * time.Millisecond)

	start := time.Now()
	var running atomic.Bool
	go func() {
		running.Store(true)
		b.Simulate(context.Background())
	}()
	require.Eventually(t, running.Load, time.Second, time.Millisecond)
	time.Sleep(20 * time.Millisecond)

	b.Barrier()
	assert.GreaterOrEqual(t, time.Since(start), 150*time.Millisecond, "barrier returned before compute finished")
}

// TestBlockingComputeIgnoresCancel verifies the computation cannot be cut short
func TestBlockingComputeIgnoresCancel(t *testing.T) {
	b := NewBlockingCompute(30 * time.Millisecond)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	start := time.Now()
	assert.NoError(t, b.Simulate(ctx))
	assert.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestNone(t *testing.T) {
	var n None
	assert.NoError(t, n.Simulate(context.Background()))
	n.Barrier()
}
