// Package playback tracks the normalized playback position of each page.
package playback

import (
	"math"
	"sync"
)

// DurationSource reports page durations. *timeline.Timeline implements it.
type DurationSource interface {
	Duration(pageIndex int) (uint64, error)
}

// Cursor is the single authority for the playback position. It never mutates
// the timeline.
type Cursor struct {
	durations DurationSource

	mu        sync.RWMutex
	positions map[int]float64
}

// NewCursor creates a cursor positioned at the start of every page.
func NewCursor(durations DurationSource) *Cursor {
	return &Cursor{
		durations: durations,
		positions: make(map[int]float64),
	}
}

// Seek moves the page cursor to a normalized position. Out of range positions
// are clamped to [0, 1]; NaN is treated as 0.
func (c *Cursor) Seek(pageIndex int, position float64) error {
	if _, err := c.durations.Duration(pageIndex); err != nil {
		return err
	}

	c.mu.Lock()
	c.positions[pageIndex] = clamp(position)
	c.mu.Unlock()
	return nil
}

// Position returns the normalized position of the page cursor.
func (c *Cursor) Position(pageIndex int) float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.positions[pageIndex]
}

// CurrentTimestampMs converts the page cursor to milliseconds from the page
// start, rounded down.
func (c *Cursor) CurrentTimestampMs(pageIndex int) (uint64, error) {
	return c.TimestampAt(pageIndex, c.Position(pageIndex))
}

// TimestampAt converts a normalized position of the page to milliseconds,
// clamping it the way Seek does.
func (c *Cursor) TimestampAt(pageIndex int, position float64) (uint64, error) {
	durationMs, err := c.durations.Duration(pageIndex)
	if err != nil {
		return 0, err
	}
	ts := uint64(math.Floor(clamp(position) * float64(durationMs)))
	return min(ts, durationMs), nil
}

func clamp(position float64) float64 {
	switch {
	case math.IsNaN(position), position < 0:
		return 0
	case position > 1:
		return 1
	default:
		return position
	}
}
