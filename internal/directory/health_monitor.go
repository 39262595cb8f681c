package directory

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/dreamware/knnshard/internal/cluster"
)

// Health states reported by MemberHealth.Status.
const (
	healthStatusUnknown   = "unknown"
	healthStatusHealthy   = "healthy"
	healthStatusUnhealthy = "unhealthy"
)

// MemberHealth tracks the health status of a single member.
// Protected by HealthMonitor's mutex when accessed.
type MemberHealth struct {
	LastCheck        time.Time      // Timestamp of the last health check attempt
	LastHealthy      time.Time      // Timestamp of the last successful health check
	Member           cluster.Member // Member being probed
	Status           string         // "healthy", "unhealthy", "unknown"
	ConsecutiveFails int            // Number of consecutive failed health checks
}

// HealthMonitor probes every listed member's /health endpoint on an interval
// and reports members that fail maxFailures probes in a row. Wired to
// Directory.Evict it turns the directory's join-only membership into a
// lease that expires when a worker stops answering.
type HealthMonitor struct {
	members     map[cluster.Member]*MemberHealth
	httpClient  *http.Client
	checkFunc   func(ctx context.Context, m cluster.Member) error
	onUnhealthy func(m cluster.Member)
	log         *slog.Logger
	interval    time.Duration
	mu          sync.RWMutex
	maxFailures int
}

// NewHealthMonitor creates a monitor probing every interval with the given
// per-probe timeout. Members are reported after maxFailures failures.
func NewHealthMonitor(interval, timeout time.Duration, maxFailures int, log *slog.Logger) *HealthMonitor {
	if maxFailures < 1 {
		maxFailures = 1
	}
	if log == nil {
		log = slog.Default()
	}
	return &HealthMonitor{
		interval:    interval,
		maxFailures: maxFailures,
		members:     make(map[cluster.Member]*MemberHealth),
		httpClient:  &http.Client{Timeout: timeout},
		log:         log.With("component", "health-monitor"),
	}
}

// SetOnUnhealthy sets the callback invoked once when a member becomes unhealthy.
func (h *HealthMonitor) SetOnUnhealthy(callback func(m cluster.Member)) {
	h.onUnhealthy = callback
}

// SetCheckFunction overrides the HTTP probe. Used by tests.
func (h *HealthMonitor) SetCheckFunction(checkFunc func(ctx context.Context, m cluster.Member) error) {
	h.checkFunc = checkFunc
}

// Start runs the probe loop until ctx is canceled. provider returns the
// members to probe on each round.
func (h *HealthMonitor) Start(ctx context.Context, provider func(ctx context.Context) []cluster.Member) {
	if h.checkFunc == nil {
		h.checkFunc = h.defaultHealthCheck
	}

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.log.Info("health monitor started", "interval", h.interval, "max_failures", h.maxFailures)
	h.checkAll(ctx, provider(ctx))

	for {
		select {
		case <-ticker.C:
			h.checkAll(ctx, provider(ctx))
		case <-ctx.Done():
			h.log.Info("health monitor stopped")
			return
		}
	}
}

func (h *HealthMonitor) checkAll(ctx context.Context, members []cluster.Member) {
	current := make(map[cluster.Member]bool, len(members))
	for _, m := range members {
		current[m] = true
		h.check(ctx, m)
	}

	// Forget members that left the group.
	h.mu.Lock()
	for m := range h.members {
		if !current[m] {
			delete(h.members, m)
		}
	}
	h.mu.Unlock()
}

func (h *HealthMonitor) check(ctx context.Context, m cluster.Member) {
	h.mu.Lock()
	health, ok := h.members[m]
	if !ok {
		health = &MemberHealth{Member: m, Status: healthStatusUnknown, LastHealthy: time.Now()}
		h.members[m] = health
	}
	h.mu.Unlock()

	err := h.checkFunc(ctx, m)

	h.mu.Lock()
	defer h.mu.Unlock()
	health.LastCheck = time.Now()

	if err == nil {
		if health.Status == healthStatusUnhealthy {
			h.log.Info("member recovered", "member", m.String())
		}
		health.Status = healthStatusHealthy
		health.ConsecutiveFails = 0
		health.LastHealthy = health.LastCheck
		return
	}

	health.ConsecutiveFails++
	h.log.Warn("health check failed", "member", m.String(),
		"attempt", health.ConsecutiveFails, "max", h.maxFailures, "error", err)
	if health.ConsecutiveFails < h.maxFailures || health.Status == healthStatusUnhealthy {
		return
	}
	health.Status = healthStatusUnhealthy
	if h.onUnhealthy != nil {
		// Called without holding the lock.
		go h.onUnhealthy(m)
	}
}

func (h *HealthMonitor) defaultHealthCheck(ctx context.Context, m cluster.Member) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.URL()+"/health", nil)
	if err != nil {
		return err
	}
	resp, err := h.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}
	return nil
}

// MemberHealth returns a copy of m's health record, or nil if m is not tracked.
func (h *HealthMonitor) MemberHealth(m cluster.Member) *MemberHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()
	health, ok := h.members[m]
	if !ok {
		return nil
	}
	cp := *health
	return &cp
}

// IsHealthy reports whether m passed its latest probe.
func (h *HealthMonitor) IsHealthy(m cluster.Member) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	health, ok := h.members[m]
	return ok && health.Status == healthStatusHealthy
}
