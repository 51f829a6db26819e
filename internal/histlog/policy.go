// Package histlog decides what gets persisted on each poll cycle: metrics and
// position rows are rate limited to a minimum wall-clock interval per account,
// fills are written immediately but deduplicated by fill id.
package histlog

import (
	"sync"
	"time"
)

// Artifact identifies one rate-limited row type.
type Artifact string

const (
	ArtifactMetrics   Artifact = "metrics"
	ArtifactPositions Artifact = "positions"
)

// Policy holds the last successful write time per (account, artifact) key and
// answers whether enough wall-clock time has elapsed for another write. It is
// the single piece of mutable state in the engine; the clock is injectable so
// tests can drive it deterministically.
//
// The mutex makes the policy safe for concurrent workers on *different*
// accounts. Concurrent writers for the same account are out of scope: the
// check-then-write is not atomic across processes, only eventual
// single-writer-per-account consistency is assumed.
type Policy struct {
	mu          sync.Mutex
	minInterval time.Duration
	lastWrite   map[string]time.Time
	now         func() time.Time
}

// NewPolicy creates a Policy with the given minimum inter-write interval.
func NewPolicy(minInterval time.Duration) *Policy {
	return &Policy{
		minInterval: minInterval,
		lastWrite:   make(map[string]time.Time),
		now:         time.Now,
	}
}

// WithClock replaces the wall clock, for tests.
func (p *Policy) WithClock(now func() time.Time) *Policy {
	p.now = now
	return p
}

// ShouldWrite reports whether the artifact is due for a write. The first call
// for a key is always true. The decision is based purely on elapsed time since
// the last confirmed write, not on value change, so the write rate stays
// bounded and predictable under frequent polling.
func (p *Policy) ShouldWrite(account string, artifact Artifact) bool {
	p.mu.Lock()
	defer p.mu.Unlock()

	last, ok := p.lastWrite[key(account, artifact)]
	if !ok {
		return true
	}
	return p.now().Sub(last) >= p.minInterval
}

// MarkWritten records a confirmed successful write. It must only be called
// after the store acknowledged the write; a failed write leaves the clock
// untouched so the row stays eligible for retry on the next cycle.
func (p *Policy) MarkWritten(account string, artifact Artifact) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastWrite[key(account, artifact)] = p.now()
}

func key(account string, artifact Artifact) string {
	return account + "/" + string(artifact)
}
