// Package config holds the settings of all three processes. One YAML file
// can configure the directory, the workers and the coordinator; each binary
// reads the section it needs.
//
// Precedence, lowest first: Default(), the YAML file, environment
// variables, then command-line flags applied by the binary.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-yaml"

	"github.com/dreamware/knnshard/internal/dataset"
)

// Config is the root of the YAML document.
type Config struct {
	Logger      LoggerConfig      `yaml:"logger"`
	Directory   DirectoryConfig   `yaml:"directory"`
	Worker      WorkerConfig      `yaml:"worker"`
	Coordinator CoordinatorConfig `yaml:"coordinator"`
}

// LoggerConfig selects the slog handler.
type LoggerConfig struct {
	Level string `yaml:"level"` // debug, info, warn, error
	JSON  bool   `yaml:"json"`
}

// DirectoryConfig configures the membership directory.
type DirectoryConfig struct {
	Listen string `yaml:"listen"`
	// Host and Port are the advertised endpoint. The directory treats it as
	// the bootstrap member and never lists it.
	Host      string          `yaml:"host"`
	Port      int             `yaml:"port"`
	Groups    []int           `yaml:"groups"`
	Backend   string          `yaml:"backend"` // memory or zookeeper
	ZooKeeper ZooKeeperConfig `yaml:"zookeeper"`

	// Liveness probing. A zero interval disables it.
	HealthCheckInterval time.Duration `yaml:"health_check_interval"`
	HealthCheckTimeout  time.Duration `yaml:"health_check_timeout"`
	MaxFailures         int           `yaml:"max_failures"`
}

// ZooKeeperConfig is used when Backend is "zookeeper".
type ZooKeeperConfig struct {
	Servers        []string      `yaml:"servers"`
	Root           string        `yaml:"root"`
	SessionTimeout time.Duration `yaml:"session_timeout"`
}

// WorkerConfig configures a shard worker.
type WorkerConfig struct {
	Host          string         `yaml:"host"`
	Port          int            `yaml:"port"`
	DirectoryURL  string         `yaml:"directory_url"`
	Group         int            `yaml:"group"`
	Data          dataset.Config `yaml:"data"`
	MaxConcurrent int            `yaml:"max_concurrent"` // 0 = unlimited
	JoinAttempts  int            `yaml:"join_attempts"`
	JoinInterval  time.Duration  `yaml:"join_interval"`

	// RejoinInterval repeats the join so a worker evicted by the directory's
	// health monitor comes back once it answers again. 0 disables it.
	RejoinInterval time.Duration `yaml:"rejoin_interval"`
}

// CoordinatorConfig configures query execution.
type CoordinatorConfig struct {
	DirectoryURL string        `yaml:"directory_url"`
	Group        int           `yaml:"group"`
	ShardTimeout time.Duration `yaml:"shard_timeout"` // 0 = no per-shard deadline
	Policy       string        `yaml:"policy"`        // strict or best-effort
	Listen       string        `yaml:"listen"`        // serve mode when set

	// DiscoverTimeout bounds the member list call; 0 uses ShardTimeout.
	DiscoverTimeout time.Duration `yaml:"discover_timeout"`
}

const (
	BackendMemory    = "memory"
	BackendZooKeeper = "zookeeper"
)

// Default returns a config for a single-host development cluster.
func Default() Config {
	return Config{
		Logger: LoggerConfig{Level: "info"},
		Directory: DirectoryConfig{
			Listen:  ":5000",
			Host:    "127.0.0.1",
			Port:    5000,
			Groups:  []int{0},
			Backend: BackendMemory,
			ZooKeeper: ZooKeeperConfig{
				Servers:        []string{"127.0.0.1:2181"},
				Root:           "/knnshard",
				SessionTimeout: 10 * time.Second,
			},
			HealthCheckTimeout: 2 * time.Second,
			MaxFailures:        3,
		},
		Worker: WorkerConfig{
			Host:         "127.0.0.1",
			Port:         5001,
			DirectoryURL: "http://127.0.0.1:5000",
			Data:         dataset.DefaultConfig(),
			JoinAttempts: 10,
			JoinInterval: 400 * time.Millisecond,
		},
		Coordinator: CoordinatorConfig{
			DirectoryURL: "http://127.0.0.1:5000",
			ShardTimeout:    10 * time.Second,
			DiscoverTimeout: 5 * time.Second,
			Policy:          "strict",
		},
	}
}

// Load reads path over Default() and applies environment overrides. A
// missing file is not an error; an empty path skips the file entirely.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case errors.Is(err, os.ErrNotExist):
		case err != nil:
			return cfg, fmt.Errorf("read config: %w", err)
		default:
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parse config %s: %w", path, err)
			}
		}
	}
	if err := applyEnv(&cfg, os.Getenv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

// applyEnv overrides cfg from the environment. getenv is os.Getenv outside
// of tests.
func applyEnv(cfg *Config, getenv func(string) string) error {
	var errs []error
	str := func(k string, dst *string) {
		if v := getenv(k); v != "" {
			*dst = v
		}
	}
	num := func(k string, dst *int) {
		if v := getenv(k); v != "" {
			n, err := strconv.Atoi(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", k, err))
				return
			}
			*dst = n
		}
	}
	dur := func(k string, dst *time.Duration) {
		if v := getenv(k); v != "" {
			d, err := time.ParseDuration(v)
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", k, err))
				return
			}
			*dst = d
		}
	}

	str("LOG_LEVEL", &cfg.Logger.Level)
	if v := getenv("LOG_JSON"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("LOG_JSON: %w", err))
		}
		cfg.Logger.JSON = b
	}

	str("DIRECTORY_LISTEN", &cfg.Directory.Listen)
	str("DIRECTORY_HOST", &cfg.Directory.Host)
	num("DIRECTORY_PORT", &cfg.Directory.Port)
	str("DIRECTORY_BACKEND", &cfg.Directory.Backend)
	if v := getenv("ZK_SERVERS"); v != "" {
		cfg.Directory.ZooKeeper.Servers = strings.Split(v, ",")
	}
	dur("DIRECTORY_HEALTH_CHECK_INTERVAL", &cfg.Directory.HealthCheckInterval)

	// DIRECTORY_ADDR is where clients of the directory reach it.
	if v := getenv("DIRECTORY_ADDR"); v != "" {
		cfg.Worker.DirectoryURL = v
		cfg.Coordinator.DirectoryURL = v
	}

	str("WORKER_HOST", &cfg.Worker.Host)
	num("WORKER_PORT", &cfg.Worker.Port)
	str("WORKER_MOVIES", &cfg.Worker.Data.MoviesPath)
	str("WORKER_RATINGS", &cfg.Worker.Data.RatingsPath)
	num("WORKER_MAX_CONCURRENT", &cfg.Worker.MaxConcurrent)
	dur("WORKER_REJOIN_INTERVAL", &cfg.Worker.RejoinInterval)

	str("COORDINATOR_POLICY", &cfg.Coordinator.Policy)
	dur("COORDINATOR_SHARD_TIMEOUT", &cfg.Coordinator.ShardTimeout)
	dur("COORDINATOR_DISCOVER_TIMEOUT", &cfg.Coordinator.DiscoverTimeout)
	str("COORDINATOR_LISTEN", &cfg.Coordinator.Listen)

	return errors.Join(errs...)
}

// Validate checks values that would otherwise fail late.
func (c Config) Validate() error {
	var errs []error
	switch c.Directory.Backend {
	case BackendMemory:
	case BackendZooKeeper:
		if len(c.Directory.ZooKeeper.Servers) == 0 {
			errs = append(errs, errors.New("directory.zookeeper.servers is empty"))
		}
	default:
		errs = append(errs, fmt.Errorf("directory.backend %q: want memory or zookeeper", c.Directory.Backend))
	}
	if c.Worker.JoinAttempts < 1 {
		errs = append(errs, fmt.Errorf("worker.join_attempts must be at least 1, got %d", c.Worker.JoinAttempts))
	}
	if c.Worker.MaxConcurrent < 0 {
		errs = append(errs, fmt.Errorf("worker.max_concurrent must not be negative, got %d", c.Worker.MaxConcurrent))
	}
	if c.Worker.RejoinInterval < 0 {
		errs = append(errs, fmt.Errorf("worker.rejoin_interval must not be negative, got %s", c.Worker.RejoinInterval))
	}
	if c.Coordinator.ShardTimeout < 0 {
		errs = append(errs, fmt.Errorf("coordinator.shard_timeout must not be negative, got %s", c.Coordinator.ShardTimeout))
	}
	if c.Coordinator.DiscoverTimeout < 0 {
		errs = append(errs, fmt.Errorf("coordinator.discover_timeout must not be negative, got %s", c.Coordinator.DiscoverTimeout))
	}
	switch c.Coordinator.Policy {
	case "strict", "best-effort":
	default:
		errs = append(errs, fmt.Errorf("coordinator.policy %q: want strict or best-effort", c.Coordinator.Policy))
	}
	return errors.Join(errs...)
}
