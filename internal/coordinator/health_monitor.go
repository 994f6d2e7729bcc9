// Package coordinator provides the collaboration coordination core.
// This file implements health monitoring for the coordinator's dependencies.
package coordinator

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/benbjohnson/clock"
	"go.uber.org/zap"
)

// Dependency health states.
const (
	StatusUnknown   = "unknown"
	StatusHealthy   = "healthy"
	StatusUnhealthy = "unhealthy"
)

// Probe checks one dependency (the ephemeral store, the presence store, ...).
type Probe struct {
	Check func(ctx context.Context) error
	Name  string
}

// DependencyHealth tracks the health status of a single dependency.
// Thread-safe: Protected by HealthMonitor's mutex when accessed.
type DependencyHealth struct {
	LastCheck        time.Time `json:"last_check"`   // Timestamp of the last check attempt
	LastHealthy      time.Time `json:"last_healthy"` // Timestamp of the last successful check
	Name             string    `json:"name"`         // Dependency name
	Status           string    `json:"status"`       // "healthy", "unhealthy", "unknown"
	LastError        string    `json:"last_error,omitempty"`
	ConsecutiveFails int       `json:"consecutive_fails"` // Number of consecutive failed checks
}

// HealthMonitor performs periodic checks on the coordinator's dependencies.
// A dependency is marked unhealthy after maxFailures consecutive failures and
// healthy again after the first success.
// Thread-safe: All methods are safe for concurrent access.
type HealthMonitor struct {
	deps        map[string]*DependencyHealth // Current health status per dependency
	onUnhealthy func(name string)            // Callback when a dependency becomes unhealthy
	clock       clock.Clock
	logger      *zap.Logger
	ctx         context.Context    // Context for cancellation
	cancel      context.CancelFunc // Cancel function for shutdown
	probes      []Probe
	interval    time.Duration  // How often to check dependencies
	timeout     time.Duration  // Per-probe timeout
	mu          sync.RWMutex   // Protects deps, probes and the Start/Stop handoff
	wg          sync.WaitGroup // Wait group for graceful shutdown
	maxFailures int            // Failures before marking unhealthy
}

// NewHealthMonitor creates a new health monitor with the specified check
// interval. Dependencies are marked unhealthy after maxFailures consecutive
// failures (3 if maxFailures <= 0).
//
// Example:
//
//	monitor := NewHealthMonitor(5*time.Second, 3, logger)
//	monitor.AddProbe(Probe{Name: "ephemeral-store", Check: store.Ping})
//	go monitor.Start(ctx)
func NewHealthMonitor(interval time.Duration, maxFailures int, logger *zap.Logger) *HealthMonitor {
	ctx, cancel := context.WithCancel(context.Background())
	if maxFailures <= 0 {
		maxFailures = 3
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	return &HealthMonitor{
		interval:    interval,
		timeout:     2 * time.Second,
		maxFailures: maxFailures,
		deps:        make(map[string]*DependencyHealth),
		clock:       clock.New(),
		logger:      logger,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// AddProbe registers a dependency check. Must be called before Start.
func (h *HealthMonitor) AddProbe(p Probe) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.probes = append(h.probes, p)
	h.deps[p.Name] = &DependencyHealth{Name: p.Name, Status: StatusUnknown}
}

// SetClock replaces the time source; used by tests.
func (h *HealthMonitor) SetClock(clk clock.Clock) {
	h.clock = clk
}

// SetOnUnhealthy sets the callback invoked when a dependency becomes unhealthy.
func (h *HealthMonitor) SetOnUnhealthy(callback func(name string)) {
	h.onUnhealthy = callback
}

// Start runs the check loop in the current goroutine until ctx or the
// monitor's own context is canceled. An initial check runs immediately.
func (h *HealthMonitor) Start(ctx context.Context) {
	// Add and Stop's cancel share the lock, so Stop never waits while an
	// Add is still possible.
	h.mu.Lock()
	if h.ctx.Err() != nil {
		h.mu.Unlock()
		return
	}
	h.wg.Add(1)
	h.mu.Unlock()
	defer h.wg.Done()

	if ctx == nil {
		ctx = h.ctx
	}

	ticker := h.clock.Ticker(h.interval)
	defer ticker.Stop()

	h.logger.Info("health monitor started", zap.Duration("interval", h.interval))

	h.CheckAll(ctx)

	for {
		select {
		case <-ticker.C:
			h.CheckAll(ctx)
		case <-ctx.Done():
			h.logger.Info("health monitor stopping", zap.String("reason", "context canceled"))
			return
		case <-h.ctx.Done():
			h.logger.Info("health monitor stopping", zap.String("reason", "stopped"))
			return
		}
	}
}

// Stop shuts down the monitor and waits for the loop to exit.
func (h *HealthMonitor) Stop() {
	h.mu.Lock()
	h.cancel()
	h.mu.Unlock()
	h.wg.Wait()
}

// CheckAll runs every probe once.
func (h *HealthMonitor) CheckAll(ctx context.Context) {
	h.mu.RLock()
	probes := append([]Probe(nil), h.probes...)
	h.mu.RUnlock()

	for _, p := range probes {
		h.check(ctx, p)
	}
}

func (h *HealthMonitor) check(ctx context.Context, p Probe) {
	checkCtx, cancel := context.WithTimeout(ctx, h.timeout)
	err := p.Check(checkCtx)
	cancel()

	h.mu.Lock()
	defer h.mu.Unlock()

	health := h.deps[p.Name]
	health.LastCheck = h.clock.Now()

	if err != nil {
		health.ConsecutiveFails++
		health.LastError = err.Error()
		h.logger.Warn("dependency check failed",
			zap.String("dependency", p.Name),
			zap.Int("attempt", health.ConsecutiveFails),
			zap.Int("max_failures", h.maxFailures),
			zap.Error(err))

		if health.ConsecutiveFails >= h.maxFailures {
			previous := health.Status
			health.Status = StatusUnhealthy
			if previous != StatusUnhealthy && h.onUnhealthy != nil {
				// Call callback without holding the lock
				go h.onUnhealthy(p.Name)
			}
		}
		return
	}

	if health.Status == StatusUnhealthy {
		h.logger.Info("dependency recovered", zap.String("dependency", p.Name))
	}
	health.Status = StatusHealthy
	health.ConsecutiveFails = 0
	health.LastError = ""
	health.LastHealthy = h.clock.Now()
}

// Healthy reports whether no dependency is currently unhealthy.
// Unknown (not yet checked) dependencies count as healthy.
func (h *HealthMonitor) Healthy() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, d := range h.deps {
		if d.Status == StatusUnhealthy {
			return false
		}
	}
	return true
}

// Snapshot returns copies of all dependency records sorted by name.
func (h *HealthMonitor) Snapshot() []DependencyHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]DependencyHealth, 0, len(h.deps))
	for _, d := range h.deps {
		out = append(out, *d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Get returns a copy of one dependency's record, or nil if unknown.
func (h *HealthMonitor) Get(name string) *DependencyHealth {
	h.mu.RLock()
	defer h.mu.RUnlock()

	d, ok := h.deps[name]
	if !ok {
		return nil
	}
	copied := *d
	return &copied
}
