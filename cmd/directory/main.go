// Package main runs the membership directory.
//
// Workers join a group with PUT /parallelism-entity and the coordinator
// lists it with GET /parallelism-entity. The directory's own advertised
// endpoint (directory.host:directory.port) is the bootstrap member and is
// never listed.
//
// Configuration comes from the YAML file given with -config, then from the
// environment (DIRECTORY_LISTEN, DIRECTORY_HOST, DIRECTORY_PORT,
// DIRECTORY_BACKEND, ZK_SERVERS, DIRECTORY_HEALTH_CHECK_INTERVAL).
//
// Example usage:
//
//	./directory -config config.yaml
//	DIRECTORY_BACKEND=zookeeper ZK_SERVERS=zk1:2181 ./directory
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dreamware/knnshard/internal/cluster"
	"github.com/dreamware/knnshard/internal/config"
	"github.com/dreamware/knnshard/internal/directory"
)

// logFatal is a variable so tests can intercept fatal errors.
var logFatal = func(msg string, args ...any) {
	slog.Error(msg, args...)
	os.Exit(1)
}

func main() {
	configPath := flag.String("config", getenv("KNN_CONFIG", "config.yaml"), "path to the YAML config")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	log := config.InitLogger(cfg.Logger, os.Stderr, "directory")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store, err := newStore(ctx, cfg.Directory)
	if err != nil {
		logFatal("store init failed", "backend", cfg.Directory.Backend, "error", err)
	}
	defer store.Close()

	self := cluster.Member{Host: cfg.Directory.Host, Port: cfg.Directory.Port}
	dir := directory.New(store, self, log)

	if cfg.Directory.HealthCheckInterval > 0 {
		for _, g := range cfg.Directory.Groups {
			hm := monitor(ctx, dir, g, cfg.Directory, log)
			go hm.Start(ctx, func(ctx context.Context) []cluster.Member {
				members, err := dir.List(ctx, g)
				if err != nil {
					log.Warn("health monitor list failed", "group", g, "error", err)
				}
				return members
			})
		}
	}

	s := &http.Server{
		Addr:              cfg.Directory.Listen,
		Handler:           dir.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("directory listening", "addr", cfg.Directory.Listen, "self", self.String(),
			"backend", cfg.Directory.Backend, "groups", cfg.Directory.Groups)
		if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logFatal("listen failed", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		log.Warn("server shutdown error", "error", err)
	}
	log.Info("directory stopped")
}

// newStore opens the configured backend and creates every configured group.
func newStore(ctx context.Context, cfg config.DirectoryConfig) (directory.Store, error) {
	var store directory.Store
	switch cfg.Backend {
	case config.BackendZooKeeper:
		zs, err := directory.NewZKStore(cfg.ZooKeeper.Servers, cfg.ZooKeeper.Root, cfg.ZooKeeper.SessionTimeout)
		if err != nil {
			return nil, err
		}
		store = zs
	default:
		store = directory.NewMemoryStore()
	}
	for _, g := range cfg.Groups {
		if err := store.CreateGroup(ctx, g); err != nil {
			store.Close()
			return nil, fmt.Errorf("create group %d: %w", g, err)
		}
	}
	return store, nil
}

// monitor builds a health monitor that evicts dead members of group.
func monitor(ctx context.Context, dir *directory.Directory, group int, cfg config.DirectoryConfig, log *slog.Logger) *directory.HealthMonitor {
	hm := directory.NewHealthMonitor(cfg.HealthCheckInterval, cfg.HealthCheckTimeout, cfg.MaxFailures, log)
	hm.SetOnUnhealthy(func(m cluster.Member) {
		if err := dir.Evict(ctx, group, m); err != nil {
			log.Warn("evict failed", "group", group, "member", m.String(), "error", err)
		}
	})
	return hm
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
