// Package main implements the tally node: one replica of a counter shared by
// a static set of peers with no coordinator.
//
// Architecture:
//
//	┌─────────────────────────────────────────┐
//	│                 Node                    │
//	├─────────────────────────────────────────┤
//	│  HTTP API:                              │
//	│    /increment    - Increment + push     │
//	│    /sync         - Merge peer value     │
//	│    /counter      - Read value           │
//	│    /peers        - Peer reachability    │
//	│    /health       - Health check         │
//	├─────────────────────────────────────────┤
//	│  Components:                            │
//	│    Counter       - max-merge state      │
//	│    Workload      - simulated cost       │
//	│    Replicator    - push to peers        │
//	│    Bootstrap     - pull on startup      │
//	│    Monitor       - periodic pull        │
//	└─────────────────────────────────────────┘
//
// Example usage:
//
//	PORT=3001 SERVER_ID=a PEERS=http://localhost:3002,http://localhost:3003 ./node
//	PORT=3002 SERVER_ID=b PEERS=http://localhost:3001,http://localhost:3003 ./node
//	PORT=3003 SERVER_ID=c PEERS=http://localhost:3001,http://localhost:3002 ./node
//
//	curl localhost:3001/increment
//	curl localhost:3003/counter
//
// See loadConfig for every environment variable.
package main

import (
	"context"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dreamware/tally/internal/reconcile"
)

// logFatal is a variable to allow mocking log.Fatal in tests.
var logFatal = log.Fatalf

func main() {
	if err := loadEnvFile(); err != nil {
		logFatal("config: %v", err)
	}
	cfg, err := loadConfig()
	if err != nil {
		logFatal("config: %v", err)
	}

	node, err := NewNode(cfg)
	if err != nil {
		logFatal("node: %v", err)
	}

	lis, err := net.Listen("tcp", ":"+cfg.Port)
	if err != nil {
		logFatal("listen: %v", err)
	}

	s := &http.Server{
		Handler:           node.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	log.Printf("node[%s] listening on :%s (peers=%d replication=%s workload=%s bootstrap=%s peer_timeout=%v)",
		node.ID, cfg.Port, node.registry.Len(), node.replicator.Policy(), node.sim.Name(),
		cfg.BootstrapMode, node.client.Timeout())

	if cfg.BootstrapMode == reconcile.Blocking {
		node.Bootstrap(ctx)
		go serve(s, lis)
	} else {
		go serve(s, lis)
		go node.Bootstrap(ctx)
	}
	node.monitor.Start(ctx)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		log.Printf("Server shutdown error: %v", err)
	}
	node.Close()
	log.Printf("node[%s] stopped at counter=%d", node.ID, node.counter.Value())
}

func serve(s *http.Server, lis net.Listener) {
	if err := s.Serve(lis); err != nil && err != http.ErrServerClosed {
		logFatal("serve: %v", err)
	}
}
