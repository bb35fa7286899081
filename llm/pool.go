package llm

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Outcome is what a caller reports back after using a backend.
type Outcome int

const (
	// OutcomeOK resets the backend's failure state.
	OutcomeOK Outcome = iota
	// OutcomeRateLimited puts the backend into a cooldown window.
	OutcomeRateLimited
	// OutcomeHardFailure counts toward demotion to the rotation tail.
	OutcomeHardFailure
)

// Backend is one pool member: a provider with its scheduling traits.
type Backend struct {
	Provider Provider
	// Weight biases selection; zero means 1.
	Weight float64
	// LogicStrong marks backends favored for reasoning-heavy tasks.
	LogicStrong bool
}

// TaskProfile tells the selection strategy what the task needs.
type TaskProfile struct {
	// NeedsReasoning favors logic-strong backends; diversity-only
	// tasks leave it false.
	NeedsReasoning bool
}

// entry is a Backend plus its rotating health state.
type entry struct {
	Backend
	position      int
	cooldownUntil time.Time
	hardFailures  int
	rateHits      int
}

// Handle is an acquired backend. Callers use Provider and must call
// Pool.Report exactly once per acquisition.
type Handle struct {
	entry *entry
}

// Provider returns the backend's provider.
func (h *Handle) Provider() Provider { return h.entry.Provider }

// Name returns the backend's provider name.
func (h *Handle) Name() string { return h.entry.Provider.Name() }

// Pool maintains an ordered, rotating set of generation backends with
// per-backend cooldown and demotion state. A backend is never removed
// for failing; at worst it cools down or moves to the rotation tail.
type Pool struct {
	mu       sync.Mutex
	entries  []*entry
	strategy Strategy

	baseCooldown time.Duration
	maxCooldown  time.Duration
	demoteAfter  int
	now          func() time.Time
}

// PoolOption customizes pool behavior.
type PoolOption func(*Pool)

// WithBaseCooldown sets the first rate-limit cooldown window; each
// consecutive rate limit doubles it up to the maximum.
func WithBaseCooldown(d time.Duration) PoolOption {
	return func(p *Pool) { p.baseCooldown = d }
}

// WithMaxCooldown caps the exponential cooldown.
func WithMaxCooldown(d time.Duration) PoolOption {
	return func(p *Pool) { p.maxCooldown = d }
}

// WithDemotionThreshold sets how many consecutive hard failures move a
// backend to the back of the rotation.
func WithDemotionThreshold(n int) PoolOption {
	return func(p *Pool) { p.demoteAfter = n }
}

// withClock injects a clock for tests.
func withClock(now func() time.Time) PoolOption {
	return func(p *Pool) { p.now = now }
}

// NewPool creates a pool over the given backends in rotation order.
func NewPool(backends []Backend, strategy Strategy, opts ...PoolOption) (*Pool, error) {
	if len(backends) == 0 {
		return nil, fmt.Errorf("pool needs at least one backend")
	}
	if strategy == nil {
		strategy = NewWeightedRotation(time.Now().UnixNano())
	}
	p := &Pool{
		strategy:     strategy,
		baseCooldown: 5 * time.Second,
		maxCooldown:  2 * time.Minute,
		demoteAfter:  3,
		now:          time.Now,
	}
	for i, b := range backends {
		if b.Provider == nil {
			return nil, fmt.Errorf("backend %d has no provider", i)
		}
		if b.Weight <= 0 {
			b.Weight = 1
		}
		p.entries = append(p.entries, &entry{Backend: b, position: i})
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Acquire returns a backend respecting cooldown state, blocking until
// one becomes eligible or the context ends.
func (p *Pool) Acquire(ctx context.Context, profile TaskProfile) (*Handle, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		p.mu.Lock()
		now := p.now()
		var eligible []*entry
		wake := time.Time{}
		for _, e := range p.entries {
			if !e.cooldownUntil.After(now) {
				eligible = append(eligible, e)
			} else if wake.IsZero() || e.cooldownUntil.Before(wake) {
				wake = e.cooldownUntil
			}
		}
		if len(eligible) > 0 {
			chosen := eligible[p.strategy.Pick(candidates(eligible), profile)]
			p.mu.Unlock()
			return &Handle{entry: chosen}, nil
		}
		p.mu.Unlock()

		// Everything is cooling down; wait for the earliest expiry.
		timer := time.NewTimer(wake.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, ctx.Err()
		case <-timer.C:
		}
	}
}

// Report updates a backend's health state after use.
func (p *Pool) Report(h *Handle, outcome Outcome) {
	p.mu.Lock()
	defer p.mu.Unlock()

	e := h.entry
	switch outcome {
	case OutcomeOK:
		e.hardFailures = 0
		e.rateHits = 0
	case OutcomeRateLimited:
		cooldown := p.baseCooldown << e.rateHits
		if cooldown > p.maxCooldown || cooldown <= 0 {
			cooldown = p.maxCooldown
		}
		e.cooldownUntil = p.now().Add(cooldown)
		e.rateHits++
	case OutcomeHardFailure:
		e.hardFailures++
		if e.hardFailures >= p.demoteAfter {
			p.demote(e)
			e.hardFailures = 0
		}
	}
}

// ReportError maps a typed backend error onto the outcome taxonomy
// and reports it.
func (p *Pool) ReportError(h *Handle, err error) {
	if err == nil {
		p.Report(h, OutcomeOK)
		return
	}
	if IsRateLimit(err) {
		p.Report(h, OutcomeRateLimited)
		return
	}
	p.Report(h, OutcomeHardFailure)
}

// demote moves an entry behind every other backend in rotation order.
func (p *Pool) demote(target *entry) {
	maxPos := 0
	for _, e := range p.entries {
		if e.position > maxPos {
			maxPos = e.position
		}
	}
	target.position = maxPos + 1
}

// Rotation returns provider names in current rotation order, for
// logging and tests.
func (p *Pool) Rotation() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	sorted := append([]*entry(nil), p.entries...)
	for i := 1; i < len(sorted); i++ {
		for j := i; j > 0 && sorted[j-1].position > sorted[j].position; j-- {
			sorted[j-1], sorted[j] = sorted[j], sorted[j-1]
		}
	}
	names := make([]string, len(sorted))
	for i, e := range sorted {
		names[i] = e.Provider.Name()
	}
	return names
}

func candidates(eligible []*entry) []Candidate {
	out := make([]Candidate, len(eligible))
	for i, e := range eligible {
		out[i] = Candidate{Weight: e.Weight, LogicStrong: e.LogicStrong, Position: e.position}
	}
	return out
}
