// Package gate provides the shared rolling-window budget that bounds how
// much work the platform dispatches against the upstream content-generation
// API. Two budgets are tracked per window: request count and resource-unit
// consumption. The gate's counters are the system's one piece of cross-task
// shared mutable state; a single mutex serializes every acquisition and
// release.
package gate

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Config holds gate budget configuration. Effective budgets are the upstream
// published limits scaled by the safety margin, leaving headroom for retries
// and bursts.
type Config struct {
	// Window is the rolling window over which budgets apply.
	Window time.Duration `yaml:"window"`

	// UpstreamRequestLimit is the provider's published requests-per-window limit.
	UpstreamRequestLimit int `yaml:"upstream_request_limit"`

	// UpstreamUnitLimit is the provider's published resource-units-per-window
	// limit (e.g. generation tokens).
	UpstreamUnitLimit int64 `yaml:"upstream_unit_limit"`

	// SafetyMargin scales the upstream limits down (0 < margin <= 1).
	SafetyMargin float64 `yaml:"safety_margin"`
}

// DefaultConfig returns gate defaults: 60 requests and 100k units per
// minute upstream, consumed at 70%.
func DefaultConfig() Config {
	return Config{
		Window:               time.Minute,
		UpstreamRequestLimit: 60,
		UpstreamUnitLimit:    100_000,
		SafetyMargin:         0.7,
	}
}

// Validate checks the configuration is usable.
func (c Config) Validate() error {
	if c.Window <= 0 {
		return fmt.Errorf("window must be positive")
	}
	if c.UpstreamRequestLimit <= 0 {
		return fmt.Errorf("upstream_request_limit must be positive")
	}
	if c.UpstreamUnitLimit <= 0 {
		return fmt.Errorf("upstream_unit_limit must be positive")
	}
	if c.SafetyMargin <= 0 || c.SafetyMargin > 1 {
		return fmt.Errorf("safety_margin must be in (0, 1]")
	}
	return nil
}

// RequestBudget returns the effective requests-per-window budget.
func (c Config) RequestBudget() int {
	return int(float64(c.UpstreamRequestLimit) * c.SafetyMargin)
}

// UnitBudget returns the effective units-per-window budget.
func (c Config) UnitBudget() int64 {
	return int64(float64(c.UpstreamUnitLimit) * c.SafetyMargin)
}

// Token represents a granted budget acquisition. Release it when the
// guarded call completes.
type Token struct {
	cost     int64
	at       time.Time
	released bool
}

// entry records a consumption event inside the rolling window.
type entry struct {
	at   time.Time
	cost int64
}

// Gate tracks rolling-window request and unit budgets. Budget replenishes
// continuously as consumption events age out of the window. All methods are
// safe for concurrent use.
type Gate struct {
	config Config
	now    func() time.Time

	mu       sync.Mutex
	entries  []entry
	requests int
	units    int64
	inFlight int
	metrics  *metrics
}

// Option configures a Gate.
type Option func(*Gate)

// WithClock overrides the gate's time source. Used in tests.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) {
		g.now = now
	}
}

// New creates a gate with the given budget configuration.
func New(config Config, opts ...Option) (*Gate, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid gate config: %w", err)
	}
	g := &Gate{
		config:  config,
		now:     time.Now,
		metrics: newMetrics(),
	}
	for _, opt := range opts {
		opt(g)
	}
	return g, nil
}

// Acquire blocks until both window budgets can cover one request of the
// given unit cost, then reserves it and returns a token. A cost exceeding
// the whole unit budget is rejected outright rather than blocking forever.
func (g *Gate) Acquire(ctx context.Context, cost int64) (*Token, error) {
	if cost < 0 {
		return nil, fmt.Errorf("cost must be non-negative")
	}
	if cost > g.config.UnitBudget() {
		return nil, fmt.Errorf("cost %d exceeds unit budget %d", cost, g.config.UnitBudget())
	}

	for {
		g.mu.Lock()
		now := g.now()
		g.pruneLocked(now)

		if g.requests < g.config.RequestBudget() && g.units+cost <= g.config.UnitBudget() {
			e := entry{at: now, cost: cost}
			g.entries = append(g.entries, e)
			g.requests++
			g.units += cost
			g.inFlight++
			g.metrics.observeAcquire(g.requests, g.units, g.inFlight)
			g.mu.Unlock()
			return &Token{cost: cost, at: now}, nil
		}

		wait := g.nextExpiryLocked(now)
		g.metrics.throttled.Inc()
		g.mu.Unlock()

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// Release marks the guarded call complete. Window consumption stays counted
// until it ages out; release only retires the in-flight slot. Releasing a
// token twice is a no-op.
func (g *Gate) Release(t *Token) {
	if t == nil {
		return
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if t.released {
		return
	}
	t.released = true
	if g.inFlight > 0 {
		g.inFlight--
	}
	g.metrics.inFlightGauge.Set(float64(g.inFlight))
}

// Available returns how many more requests the current window can admit.
// The executor bounds its dispatch width by this value.
func (g *Gate) Available() int {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.pruneLocked(g.now())
	remaining := g.config.RequestBudget() - g.requests
	if remaining < 0 {
		return 0
	}
	return remaining
}

// InFlight returns the number of unreleased tokens.
func (g *Gate) InFlight() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.inFlight
}

// UnitsUsed returns the resource units consumed within the current window.
func (g *Gate) UnitsUsed() int64 {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.pruneLocked(g.now())
	return g.units
}

// pruneLocked drops consumption events that have aged out of the window.
// Caller must hold g.mu.
func (g *Gate) pruneLocked(now time.Time) {
	cutoff := now.Add(-g.config.Window)
	i := 0
	for ; i < len(g.entries); i++ {
		if g.entries[i].at.After(cutoff) {
			break
		}
		g.requests--
		g.units -= g.entries[i].cost
	}
	if i > 0 {
		g.entries = append(g.entries[:0], g.entries[i:]...)
	}
}

// nextExpiryLocked returns how long until the oldest window entry expires.
// Caller must hold g.mu.
func (g *Gate) nextExpiryLocked(now time.Time) time.Duration {
	if len(g.entries) == 0 {
		// Nothing to expire; re-check shortly in case of clock skew
		return 10 * time.Millisecond
	}
	wait := g.entries[0].at.Add(g.config.Window).Sub(now)
	if wait < time.Millisecond {
		wait = time.Millisecond
	}
	return wait
}
