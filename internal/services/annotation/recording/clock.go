package recording

import (
	"sync"
	"time"
)

// Clock supplies action timestamps as milliseconds from the page start.
type Clock interface {
	NowMs() uint64
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() uint64

// NowMs calls f.
func (f ClockFunc) NowMs() uint64 { return f() }

// MonotonicClock wraps a clock so consecutive readings strictly increase,
// absorbing sampling jitter and cursor stalls of the wrapped clock.
type MonotonicClock struct {
	base Clock

	mu      sync.Mutex
	last    uint64
	started bool
}

// NewMonotonicClock wraps base.
func NewMonotonicClock(base Clock) *MonotonicClock {
	return &MonotonicClock{base: base}
}

// NowMs returns the wrapped reading, or one past the previous reading when the
// wrapped clock did not advance.
func (c *MonotonicClock) NowMs() uint64 {
	now := c.base.NowMs()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.started && now <= c.last {
		now = c.last + 1
	}
	c.started = true
	c.last = now
	return now
}

// Position reads the current playback position of a page.
// *playback.Cursor implements it.
type Position interface {
	CurrentTimestampMs(pageIndex int) (uint64, error)
}

// CursorClock reads timestamps from the playback cursor of one page, so
// re-recorded actions line up with the playback being edited.
type CursorClock struct {
	cursor    Position
	pageIndex int
}

// NewCursorClock creates a clock that follows the page cursor.
func NewCursorClock(cursor Position, pageIndex int) CursorClock {
	return CursorClock{cursor: cursor, pageIndex: pageIndex}
}

// NowMs returns the cursor timestamp, or 0 when the page is unknown.
func (c CursorClock) NowMs() uint64 {
	ts, err := c.cursor.CurrentTimestampMs(c.pageIndex)
	if err != nil {
		return 0
	}
	return ts
}

// ElapsedClock measures wall time since it was created, shifted by an offset.
// Live capture uses it with the page's existing duration as the offset.
type ElapsedClock struct {
	offsetMs uint64
	start    time.Time
	now      func() time.Time
}

// NewElapsedClock starts an elapsed clock at offsetMs. now defaults to time.Now.
func NewElapsedClock(offsetMs uint64, now func() time.Time) *ElapsedClock {
	if now == nil {
		now = time.Now
	}
	return &ElapsedClock{offsetMs: offsetMs, start: now(), now: now}
}

// NowMs returns the offset plus the elapsed milliseconds.
func (c *ElapsedClock) NowMs() uint64 {
	elapsed := c.now().Sub(c.start)
	if elapsed < 0 {
		elapsed = 0
	}
	return c.offsetMs + uint64(elapsed.Milliseconds())
}
