// Package main runs the query coordinator.
//
// With a title and k it runs one query, prints the merged neighbors and the
// elapsed wall-clock time, and exits. With no arguments and
// coordinator.listen set it serves GET /recommend instead.
//
// Example usage:
//
//	./coordinator "Toy Story (1995)" 10
//	COORDINATOR_POLICY=best-effort ./coordinator -config config.yaml "Heat (1995)" 5
//	COORDINATOR_LISTEN=:8080 ./coordinator
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/dreamware/knnshard/internal/cluster"
	"github.com/dreamware/knnshard/internal/config"
	"github.com/dreamware/knnshard/internal/coordinator"
)

// logFatal is a variable so tests can intercept fatal errors.
var logFatal = func(msg string, args ...any) {
	slog.Error(msg, args...)
	os.Exit(1)
}

func main() {
	configPath := flag.String("config", getenv("KNN_CONFIG", "config.yaml"), "path to the YAML config")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [-config file] <title> <k>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	log := config.InitLogger(cfg.Logger, os.Stderr, "coordinator")

	c, err := newCoordinator(cfg.Coordinator, log)
	if err != nil {
		logFatal("bad coordinator config", "error", err)
	}

	if flag.NArg() == 0 && cfg.Coordinator.Listen != "" {
		serve(c, cfg.Coordinator.Listen, log)
		return
	}

	title, k, err := queryArgs(flag.Args())
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		flag.Usage()
		os.Exit(2)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	res, err := c.Recommend(ctx, title, k)
	if err != nil {
		logFatal("query failed", "title", title, "k", k, "error", err, "exit", exitReason(err))
	}
	printResult(os.Stdout, res)
}

func newCoordinator(cfg config.CoordinatorConfig, log *slog.Logger) (*coordinator.Coordinator, error) {
	policy, err := coordinator.ParsePolicy(cfg.Policy)
	if err != nil {
		return nil, err
	}
	return coordinator.New(coordinator.Config{
		DirectoryURL:    cfg.DirectoryURL,
		Group:           cfg.Group,
		ShardTimeout:    cfg.ShardTimeout,
		DiscoverTimeout: cfg.DiscoverTimeout,
		Policy:          policy,
	}, cluster.NewHTTPTransport(0), log), nil
}

func serve(c *coordinator.Coordinator, addr string, log *slog.Logger) {
	s := &http.Server{
		Addr:              addr,
		Handler:           c.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		log.Info("coordinator listening", "addr", addr)
		if err := s.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logFatal("listen failed", "error", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.Shutdown(ctx); err != nil {
		log.Warn("server shutdown error", "error", err)
	}
	log.Info("coordinator stopped")
}

// queryArgs parses "<title> <k>".
func queryArgs(args []string) (string, int, error) {
	if len(args) != 2 {
		return "", 0, fmt.Errorf("expected <title> <k>, got %d arguments", len(args))
	}
	k, err := strconv.Atoi(args[1])
	if err != nil || k < 1 {
		return "", 0, fmt.Errorf("k must be a positive integer, got %q", args[1])
	}
	return args[0], k, nil
}

// printResult writes one "id  title  distance" row per neighbor followed by
// the elapsed time.
func printResult(w io.Writer, res *coordinator.Result) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tTITLE\tDISTANCE")
	for _, n := range res.Neighbors {
		fmt.Fprintf(tw, "%d\t%s\t%s\n", n.ID, n.Label, strconv.FormatFloat(n.Distance, 'f', -1, 64))
	}
	tw.Flush()
	if len(res.Missing) > 0 {
		fmt.Fprintf(w, "missing shards: %v of %d\n", res.Missing, len(res.Members))
	}
	fmt.Fprintf(w, "elapsed: %s\n", res.Elapsed)
}

// exitReason names the error class for the log line.
func exitReason(err error) string {
	switch {
	case errors.Is(err, cluster.ErrEmptyGroup):
		return "no workers registered"
	case errors.Is(err, cluster.ErrLookup):
		return "unknown title or group"
	case cluster.IsTimeout(err):
		return "timeout"
	case errors.Is(err, cluster.ErrTransport):
		return "worker or directory unreachable"
	default:
		return "query rejected"
	}
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}
