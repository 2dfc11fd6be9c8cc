// Package main implements the tally load generator. It sends /increment
// requests at a fixed rate to one target (normally a load balancer in front
// of the nodes), logs which node answered with which value, and prints a
// per-node tally when done.
//
// Configuration:
//   - LOADGEN_TARGET: increment URL (default "http://localhost/increment")
//   - LOADGEN_RPS: requests per second (default 5)
//   - LOADGEN_DURATION: how long to send (default 20s)
//
// Requests are fired without waiting for earlier ones, so a node stuck in a
// blocking workload shows up as a growing backlog rather than a lower rate.
package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/exp/slices"

	"github.com/dreamware/tally/internal/cluster"
)

// logFatal is a variable to allow mocking log.Fatal in tests.
var logFatal = log.Fatalf

type config struct {
	target   string
	rps      int
	duration time.Duration
}

func loadConfig() (config, error) {
	cfg := config{target: getenv("LOADGEN_TARGET", "http://localhost/increment")}

	rps, err := strconv.Atoi(getenv("LOADGEN_RPS", "5"))
	if err != nil || rps <= 0 {
		return cfg, errors.Errorf("invalid LOADGEN_RPS %q", os.Getenv("LOADGEN_RPS"))
	}
	cfg.rps = rps

	d, err := time.ParseDuration(getenv("LOADGEN_DURATION", "20s"))
	if err != nil || d <= 0 {
		return cfg, errors.Errorf("invalid LOADGEN_DURATION %q", os.Getenv("LOADGEN_DURATION"))
	}
	cfg.duration = d
	return cfg, nil
}

// tally counts responses per answering node and remembers the highest value.
type tally struct {
	perServer map[string]int
	mu        sync.Mutex
	failures  int
	highest   int64
}

func newTally() *tally {
	return &tally{perServer: make(map[string]int)}
}

func (t *tally) record(resp cluster.CounterResponse, err error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if err != nil {
		t.failures++
		return
	}
	t.perServer[resp.Server]++
	if resp.Counter > t.highest {
		t.highest = resp.Counter
	}
}

func (t *tally) report() {
	t.mu.Lock()
	defer t.mu.Unlock()

	servers := make([]string, 0, len(t.perServer))
	for s := range t.perServer {
		servers = append(servers, s)
	}
	slices.Sort(servers)
	for _, s := range servers {
		log.Printf("  %-24s %d responses", s, t.perServer[s])
	}
	log.Printf("highest counter seen: %d, failures: %d", t.highest, t.failures)
}

// run fires requests at cfg.rps until cfg.duration passes or ctx ends, then
// waits for outstanding requests.
func run(ctx context.Context, cfg config, t *tally) {
	ctx, cancel := context.WithTimeout(ctx, cfg.duration)
	defer cancel()

	ticker := time.NewTicker(time.Second / time.Duration(cfg.rps))
	defer ticker.Stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			wg.Add(1)
			go func() {
				defer wg.Done()
				var resp cluster.CounterResponse
				err := cluster.GetJSON(context.Background(), cfg.target, &resp)
				if err != nil {
					log.Printf("Error: %v", err)
				} else {
					log.Printf("Response from %s | Counter: %d", resp.Server, resp.Counter)
				}
				t.record(resp, err)
			}()
		}
	}
}

func main() {
	cfg, err := loadConfig()
	if err != nil {
		logFatal("config: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("Spamming %s at %d req/s for %v ...", cfg.target, cfg.rps, cfg.duration)
	t := newTally()
	run(ctx, cfg, t)
	log.Println("Done spamming.")
	t.report()
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
