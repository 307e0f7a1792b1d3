package testutil

import (
	"sync"
	"time"

	"github.com/roach88/circlesync/internal/ir"
)

// DefaultEpoch is where a DeterministicClock starts unless told otherwise.
var DefaultEpoch = ir.MustParseTimestamp("2026-01-01T00:00:00Z")

// DeterministicClock issues server timestamps one second apart from a fixed
// epoch, so scenarios produce byte-identical logs on every run.
//
// Unlike engine.Clock, DeterministicClock ignores the wall clock and can be
// reset for test reuse.
//
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type DeterministicClock struct {
	mu    sync.Mutex
	epoch ir.Timestamp
	n     int64
}

// NewDeterministicClock creates a clock whose first Next() is
// DefaultEpoch + 1s.
func NewDeterministicClock() *DeterministicClock {
	return NewDeterministicClockAt(DefaultEpoch)
}

// NewDeterministicClockAt creates a clock whose first Next() is epoch + 1s.
func NewDeterministicClockAt(epoch ir.Timestamp) *DeterministicClock {
	return &DeterministicClock{epoch: epoch}
}

// Next advances the clock by one second and returns the new time.
func (c *DeterministicClock) Next() ir.Timestamp {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n++
	return c.at(c.n)
}

// Current returns the last issued timestamp (the epoch before any Next).
func (c *DeterministicClock) Current() ir.Timestamp {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.at(c.n)
}

// Ticks returns how many timestamps have been issued.
func (c *DeterministicClock) Ticks() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.n
}

// Reset rewinds the clock to its epoch.
func (c *DeterministicClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.n = 0
}

func (c *DeterministicClock) at(n int64) ir.Timestamp {
	return ir.NewTimestamp(c.epoch.Add(time.Duration(n) * time.Second))
}
