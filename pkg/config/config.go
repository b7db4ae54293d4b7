// Package config loads node configuration from environment variables and
// an optional .env file, following the project's env-over-dotenv-over-
// defaults precedence.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config is everything needed to wire a running electiond process.
type Config struct {
	// ListenAddr is the libp2p multiaddr this node listens on, e.g.
	// "/ip4/0.0.0.0/tcp/4001".
	ListenAddr string
	// Bootstrap is a comma-separated list of peer multiaddrs to dial at
	// startup.
	Bootstrap []string

	ExternalHost string
	ExternalPort uint16

	ClusterSize       int
	NodePriority      int32
	IsReadOnlyReplica bool

	DataDir string

	AdminListenAddr string

	LogLevel string
	LogFile  string

	GossipTopic string
}

// Default returns the baseline single-node-devnet configuration.
func Default() Config {
	return Config{
		ListenAddr:        "/ip4/0.0.0.0/tcp/4001",
		ExternalHost:      "127.0.0.1",
		ExternalPort:      4001,
		ClusterSize:       1,
		NodePriority:      0,
		IsReadOnlyReplica: false,
		DataDir:           "./data",
		AdminListenAddr:   "127.0.0.1:2113",
		LogLevel:          "info",
		LogFile:           "data/electiond.log",
		GossipTopic:       "eventstore/elections/v1",
	}
}

// LoadFromEnv loads a .env file (if present at envPath, or ".env" in the
// working directory when envPath is empty) and then overlays process
// environment variables on top of Default(). It fails fast on malformed
// required values so misconfiguration is caught at startup, not mid-run.
func LoadFromEnv(envPath string) (Config, error) {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if v := os.Getenv("ELECTIOND_LISTEN_ADDR"); v != "" {
		cfg.ListenAddr = v
	}
	if v := os.Getenv("ELECTIOND_BOOTSTRAP"); v != "" {
		cfg.Bootstrap = splitAndTrim(v)
	}
	if v := os.Getenv("ELECTIOND_EXTERNAL_HOST"); v != "" {
		cfg.ExternalHost = v
	}
	if v := os.Getenv("ELECTIOND_EXTERNAL_PORT"); v != "" {
		port, err := strconv.ParseUint(v, 10, 16)
		if err != nil {
			return Config{}, fmt.Errorf("config: ELECTIOND_EXTERNAL_PORT must be a valid port, got %q: %w", v, err)
		}
		cfg.ExternalPort = uint16(port)
	}
	if v := os.Getenv("ELECTIOND_CLUSTER_SIZE"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return Config{}, fmt.Errorf("config: ELECTIOND_CLUSTER_SIZE must be a positive integer, got %q: %w", v, err)
		}
		if n <= 0 {
			return Config{}, fmt.Errorf("config: ELECTIOND_CLUSTER_SIZE must be a positive integer, got %q", v)
		}
		cfg.ClusterSize = n
	}
	if v := os.Getenv("ELECTIOND_NODE_PRIORITY"); v != "" {
		n, err := strconv.ParseInt(v, 10, 32)
		if err != nil {
			return Config{}, fmt.Errorf("config: ELECTIOND_NODE_PRIORITY must be an integer, got %q: %w", v, err)
		}
		cfg.NodePriority = int32(n)
	}
	if v := os.Getenv("ELECTIOND_READ_ONLY_REPLICA"); v != "" {
		cfg.IsReadOnlyReplica = v == "true" || v == "1"
	}
	if v := os.Getenv("ELECTIOND_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("ELECTIOND_ADMIN_LISTEN_ADDR"); v != "" {
		cfg.AdminListenAddr = v
	}
	if v := os.Getenv("ELECTIOND_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("ELECTIOND_LOG_FILE"); v != "" {
		cfg.LogFile = v
	}
	if v := os.Getenv("ELECTIOND_GOSSIP_TOPIC"); v != "" {
		cfg.GossipTopic = v
	}

	return cfg, nil
}

func splitAndTrim(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ProgressTimeout and ProofInterval mirror the elections package's fixed
// protocol constants; kept here too so operators can see them alongside
// the rest of node configuration without importing the core package.
const (
	ProgressTimeout = 1000 * time.Millisecond
	ProofInterval   = 5000 * time.Millisecond
)
