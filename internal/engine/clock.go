package engine

import (
	"sync/atomic"
	"time"

	"github.com/roach88/circlesync/internal/ir"
)

// TimeSource issues server timestamps for change log entries.
//
// Implemented by Clock (production) and testutil.DeterministicClock (tests).
type TimeSource interface {
	// Next returns a timestamp strictly later than every earlier result.
	Next() ir.Timestamp
}

// Seeder is implemented by time sources that can resume after a restart.
type Seeder interface {
	Seed(floor ir.Timestamp)
}

// Clock is a monotonic timestamp service backed by the wall clock.
//
// Next returns max(wall, last+1µs), so results are strictly increasing
// even when the wall clock is coarser than the call rate or steps backwards.
//
// Thread-safety: Clock is safe for concurrent use (atomic operations).
type Clock struct {
	last atomic.Int64 // unix microseconds of the last issued timestamp
	wall func() time.Time
}

// NewClock creates a clock reading time.Now.
func NewClock() *Clock {
	return NewClockWithSource(time.Now)
}

// NewClockWithSource creates a clock reading wall instead of time.Now.
func NewClockWithSource(wall func() time.Time) *Clock {
	return &Clock{wall: wall}
}

// Seed raises the floor so that the next timestamp is after floor.
// Used at startup with the newest timestamp already in the log.
func (c *Clock) Seed(floor ir.Timestamp) {
	f := floor.UnixMicro()
	for {
		cur := c.last.Load()
		if cur >= f || c.last.CompareAndSwap(cur, f) {
			return
		}
	}
}

// Next returns the next timestamp. Calls are linearizable.
func (c *Clock) Next() ir.Timestamp {
	for {
		prev := c.last.Load()
		next := c.wall().UnixMicro()
		if next <= prev {
			next = prev + 1
		}
		if c.last.CompareAndSwap(prev, next) {
			return ir.NewTimestamp(time.UnixMicro(next))
		}
	}
}

// Current returns the last issued timestamp without advancing the clock.
func (c *Clock) Current() ir.Timestamp {
	return ir.NewTimestamp(time.UnixMicro(c.last.Load()))
}
