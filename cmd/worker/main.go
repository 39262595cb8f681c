// Package main runs a shard worker.
//
// The worker loads the movie collection, starts serving POST /knn and then
// joins its group at the directory. A worker that cannot join exits.
//
// Example usage:
//
//	./worker 5001
//	WORKER_PORT=5002 DIRECTORY_ADDR=http://dir:5000 ./worker -config config.yaml
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/dreamware/knnshard/internal/cluster"
	"github.com/dreamware/knnshard/internal/config"
	"github.com/dreamware/knnshard/internal/dataset"
	"github.com/dreamware/knnshard/internal/worker"
)

// logFatal is a variable so tests can intercept fatal errors.
var logFatal = func(msg string, args ...any) {
	slog.Error(msg, args...)
	os.Exit(1)
}

func main() {
	configPath := flag.String("config", getenv("KNN_CONFIG", "config.yaml"), "path to the YAML config")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [-config file] [port]\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	if cfg.Worker.Port, err = portArg(flag.Args(), cfg.Worker.Port); err != nil {
		fmt.Fprintln(os.Stderr, err)
		flag.Usage()
		os.Exit(2)
	}
	self := cluster.Member{Host: cfg.Worker.Host, Port: cfg.Worker.Port}
	log := config.InitLogger(cfg.Logger, os.Stderr, "worker").With("member", self.String())

	start := time.Now()
	coll, err := dataset.Load(cfg.Worker.Data)
	if err != nil {
		logFatal("dataset load failed", "movies", cfg.Worker.Data.MoviesPath,
			"ratings", cfg.Worker.Data.RatingsPath, "error", err)
	}
	log.Info("dataset loaded", "items", coll.Len(), "dim", coll.Dim(), "elapsed", time.Since(start))

	w := worker.New(coll, self, cfg.Worker.MaxConcurrent, log)
	listen := net.JoinHostPort("", strconv.Itoa(cfg.Worker.Port))
	s := &http.Server{
		Addr:              listen,
		Handler:           w.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("worker listening", "addr", listen)
		if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logFatal("listen failed", "error", err)
		}
	}()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	tr := cluster.NewHTTPTransport(5 * time.Second)
	reg := worker.Registration{
		DirectoryURL: cfg.Worker.DirectoryURL,
		Self:         self,
		Group:        cfg.Worker.Group,
		Attempts:     cfg.Worker.JoinAttempts,
		Interval:     cfg.Worker.JoinInterval,
	}
	if _, err = worker.Register(ctx, tr, reg, log); err != nil {
		logFatal("failed to register with directory", "error", err)
	}
	if cfg.Worker.RejoinInterval > 0 {
		go worker.KeepRegistered(ctx, tr, reg, cfg.Worker.RejoinInterval, log)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := s.Shutdown(shutdownCtx); err != nil {
		log.Warn("server shutdown error", "error", err)
	}
	log.Info("worker stopped", "served", w.Info().Served)
}

// portArg returns the port given as the only positional argument, or def.
func portArg(args []string, def int) (int, error) {
	switch len(args) {
	case 0:
		return def, nil
	case 1:
		port, err := strconv.Atoi(args[0])
		if err != nil || port <= 0 || port > 65535 {
			return 0, fmt.Errorf("invalid port %q", args[0])
		}
		return port, nil
	default:
		return 0, fmt.Errorf("expected at most one argument, got %d", len(args))
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
