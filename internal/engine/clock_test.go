package engine

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/roach88/circlesync/internal/ir"
)

func frozenWall(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func TestClock_FollowsWallClock(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	c := NewClockWithSource(frozenWall(now))

	assert.Equal(t, "2026-05-01T12:00:00.000000Z", c.Next().String())
	assert.Equal(t, "2026-05-01T12:00:00.000000Z", c.Current().String())
}

func TestClock_StrictlyIncreasingWhenWallStalls(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	c := NewClockWithSource(frozenWall(now))

	first := c.Next()
	second := c.Next()
	third := c.Next()

	assert.Equal(t, "2026-05-01T12:00:00.000000Z", first.String())
	assert.Equal(t, "2026-05-01T12:00:00.000001Z", second.String())
	assert.Equal(t, "2026-05-01T12:00:00.000002Z", third.String())
}

func TestClock_WallGoingBackwards(t *testing.T) {
	times := []time.Time{
		time.Date(2026, 5, 1, 12, 0, 5, 0, time.UTC),
		time.Date(2026, 5, 1, 12, 0, 1, 0, time.UTC),
	}
	i := 0
	c := NewClockWithSource(func() time.Time {
		t := times[i]
		if i < len(times)-1 {
			i++
		}
		return t
	})

	a := c.Next()
	b := c.Next()
	assert.True(t, b.After(a))
	assert.Equal(t, "2026-05-01T12:00:05.000001Z", b.String())
}

func TestClock_Seed(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	c := NewClockWithSource(frozenWall(now))

	c.Seed(ir.MustParseTimestamp("2026-06-01T00:00:00Z"))
	assert.Equal(t, "2026-06-01T00:00:00.000001Z", c.Next().String())

	// A lower seed never moves the clock back.
	c.Seed(ir.MustParseTimestamp("2020-01-01T00:00:00Z"))
	assert.Equal(t, "2026-06-01T00:00:00.000002Z", c.Next().String())
}

func TestClock_ThreadSafe(t *testing.T) {
	c := NewClockWithSource(frozenWall(time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)))
	const goroutines = 50
	const callsPerGoroutine = 100

	var wg sync.WaitGroup
	stamps := make(chan string, goroutines*callsPerGoroutine)

	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < callsPerGoroutine; j++ {
				stamps <- c.Next().String()
			}
		}()
	}
	wg.Wait()
	close(stamps)

	seen := make(map[string]bool)
	for s := range stamps {
		assert.False(t, seen[s], "timestamp %s issued twice", s)
		seen[s] = true
	}
	assert.Len(t, seen, goroutines*callsPerGoroutine)
}
