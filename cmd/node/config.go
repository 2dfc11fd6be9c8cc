package main

import (
	"errors"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	perrors "github.com/pkg/errors"

	"github.com/dreamware/tally/internal/cluster"
	"github.com/dreamware/tally/internal/reconcile"
	"github.com/dreamware/tally/internal/replication"
	"github.com/dreamware/tally/internal/workload"
)

// Config is the complete node configuration, read once at startup.
type Config struct {
	ServerID            string
	Port                string
	Peers               []string
	Replication         replication.Policy
	Workload            workload.Kind
	BootstrapMode       reconcile.Mode
	MaxDelay            time.Duration
	Compute             time.Duration
	BootstrapDeadline   time.Duration
	PeerTimeout         time.Duration
	AntiEntropyInterval time.Duration
}

// loadConfig reads the node configuration from the environment.
//
// Environment:
//   - PORT: listen port (default "3000")
//   - SERVER_ID: node identity (default hostname-port)
//   - PEERS: comma-separated peer base URLs (default none, standalone)
//   - REPLICATION_POLICY: await-all | fire-and-forget (default await-all)
//   - WORKLOAD: delay | compute | none (default delay)
//   - WORKLOAD_MAX_DELAY: upper bound of the random delay (default 200ms)
//   - WORKLOAD_COMPUTE: busy-loop duration (default 200ms)
//   - BOOTSTRAP_MODE: blocking | background (default background)
//   - BOOTSTRAP_DEADLINE: bootstrap retry budget (default 10s)
//   - PEER_TIMEOUT: bound on every outbound call (default 2s)
//   - ANTI_ENTROPY_INTERVAL: periodic pull interval, 0 disables (default 0)
func loadConfig() (Config, error) {
	var cfg Config
	var err error

	cfg.Port = getenv("PORT", "3000")
	if _, err := strconv.ParseUint(cfg.Port, 10, 16); err != nil {
		return cfg, perrors.Errorf("invalid PORT %q", cfg.Port)
	}
	cfg.ServerID = getenv("SERVER_ID", "")
	if cfg.ServerID == "" {
		cfg.ServerID = defaultServerID(cfg.Port)
	}
	cfg.Peers = cluster.ParsePeers(os.Getenv("PEERS"))

	if cfg.Replication, err = replication.ParsePolicy(getenv("REPLICATION_POLICY", string(replication.AwaitAll))); err != nil {
		return cfg, err
	}
	if cfg.Workload, err = workload.ParseKind(getenv("WORKLOAD", string(workload.KindDelay))); err != nil {
		return cfg, err
	}
	if cfg.BootstrapMode, err = reconcile.ParseMode(getenv("BOOTSTRAP_MODE", string(reconcile.Background))); err != nil {
		return cfg, err
	}

	durations := []struct {
		dst *time.Duration
		key string
		def string
	}{
		{&cfg.MaxDelay, "WORKLOAD_MAX_DELAY", "200ms"},
		{&cfg.Compute, "WORKLOAD_COMPUTE", "200ms"},
		{&cfg.BootstrapDeadline, "BOOTSTRAP_DEADLINE", "10s"},
		{&cfg.PeerTimeout, "PEER_TIMEOUT", "2s"},
		{&cfg.AntiEntropyInterval, "ANTI_ENTROPY_INTERVAL", "0"},
	}
	for _, d := range durations {
		v := getenv(d.key, d.def)
		parsed, err := time.ParseDuration(v)
		if err != nil || parsed < 0 {
			return cfg, perrors.Errorf("invalid %s %q", d.key, v)
		}
		*d.dst = parsed
	}

	return cfg, nil
}

// loadEnvFile loads variables from a dotenv file without overriding ones
// already set. A missing default file is fine; a missing ENV_FILE is not.
func loadEnvFile() error {
	path, explicit := os.LookupEnv("ENV_FILE")
	if !explicit || path == "" {
		path = ".env"
	}
	err := godotenv.Load(path)
	if err != nil && !explicit && errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return perrors.Wrapf(err, "load %s", path)
}

// defaultServerID derives a node identity from the hostname and port. In a
// container the hostname is the container id, which is unique per replica.
func defaultServerID(port string) string {
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "node-" + uuid.NewString()[:8]
	}
	return host + "-" + port
}

// getenv retrieves an environment variable with a default fallback value.
func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
