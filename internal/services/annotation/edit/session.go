// Package edit re-records a span of an existing page and commits the result
// as a single splice.
package edit

import (
	"slices"
	"sync"

	"github.com/lectureStudio/lectureStudio-sub005/internal/services/annotation/commit"
	"github.com/lectureStudio/lectureStudio-sub005/internal/services/annotation/domain"
	"github.com/lectureStudio/lectureStudio-sub005/internal/services/annotation/recording"
)

const machine = "edit session"

// DurationSource reports page durations. *timeline.Timeline implements it.
type DurationSource interface {
	Duration(pageIndex int) (uint64, error)
}

// ClockFactory builds the clock that stamps re-recorded actions.
type ClockFactory func(cursor recording.Position, pageIndex int) recording.Clock

// Config configures an edit session.
type Config struct {
	// Tool is stamped on staged actions until SetTool changes it.
	Tool string
	// Clock defaults to a monotonic clock that follows the page cursor.
	Clock ClockFactory
}

func (c Config) normalized() Config {
	if c.Clock == nil {
		c.Clock = func(cursor recording.Position, pageIndex int) recording.Clock {
			return recording.NewMonotonicClock(recording.NewCursorClock(cursor, pageIndex))
		}
	}
	return c
}

// Session stages re-recorded actions while active and replaces the edited
// span of the page with them on deactivation.
//
// Calling Activate while active, or Deactivate or a capture call while
// inactive, panics with a *domain.TransitionError.
type Session struct {
	pageIndex int
	durations DurationSource
	queue     recording.Enqueuer
	clock     ClockFactory

	mu       sync.Mutex
	tool     string
	active   bool
	startMs  uint64
	staged   []domain.Action
	recorder *recording.Session
}

// New creates an inactive edit session for a page.
func New(pageIndex int, durations DurationSource, queue recording.Enqueuer, cfg Config) *Session {
	cfg = cfg.normalized()
	return &Session{
		pageIndex: pageIndex,
		durations: durations,
		queue:     queue,
		clock:     cfg.Clock,
		tool:      cfg.Tool,
	}
}

// PageIndex returns the edited page.
func (s *Session) PageIndex() int { return s.pageIndex }

// Active reports whether the session is staging actions.
func (s *Session) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// StartMs returns the window start captured by Activate.
func (s *Session) StartMs() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.startMs
}

// Staged returns a copy of the actions staged so far.
func (s *Session) Staged() []domain.Action {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.staged)
}

// SetTool changes the tool stamped on staged actions.
func (s *Session) SetTool(tool string) {
	s.mu.Lock()
	s.tool = tool
	recorder := s.recorder
	s.mu.Unlock()
	if recorder != nil {
		recorder.SetTool(tool)
	}
}

// Activate opens the edit window at the current cursor position.
func (s *Session) Activate(cursor recording.Position) error {
	startMs, err := cursor.CurrentTimestampMs(s.pageIndex)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active {
		domain.PanicTransition(machine, "active", "Activate")
	}
	s.active = true
	s.startMs = startMs
	s.staged = nil
	s.recorder = recording.NewSession(s.pageIndex, s.tool, s.clock(cursor, s.pageIndex), recording.SinkFunc(s.stage))
	return nil
}

// Begin stages the start of a stroke.
func (s *Session) Begin(point domain.Point) *commit.Handle {
	return s.capture("Begin").Begin(point)
}

// ExecuteAction stages a stroke continuation.
func (s *Session) ExecuteAction(point domain.Point) *commit.Handle {
	return s.capture("ExecuteAction").ExecuteAction(point)
}

// End stages the end of a stroke.
func (s *Session) End(point domain.Point) *commit.Handle {
	return s.capture("End").End(point)
}

// Deactivate closes the window at the current cursor position and enqueues the
// splice. A window reaching the page duration seen here replaces everything
// after its start, including actions still queued ahead of the splice. A
// stroke still open is ended at its last point first. When nothing
// was staged no splice is enqueued and the returned handle is already resolved.
func (s *Session) Deactivate(cursor recording.Position) *commit.Handle {
	recorder := s.capture("Deactivate")
	if recorder.State() == recording.StateCapturing {
		s.mu.Lock()
		last := s.staged[len(s.staged)-1].Point
		s.mu.Unlock()
		recorder.End(last)
	}

	cursorMs, cursorErr := cursor.CurrentTimestampMs(s.pageIndex)

	s.mu.Lock()
	window := domain.EditWindow{
		PageIndex: s.pageIndex,
		StartMs:   s.startMs,
		EndMs:     s.startMs,
		Staged:    s.staged,
	}
	s.active = false
	s.staged = nil
	s.recorder = nil
	s.mu.Unlock()

	if len(window.Staged) == 0 {
		return commit.Resolved(commit.Result{Kind: commit.OpSplice, PageIndex: s.pageIndex, StartMs: window.StartMs, EndMs: window.StartMs}, nil)
	}
	if cursorErr == nil {
		window.EndMs = max(window.EndMs, cursorMs)
	}
	window.EndMs = max(window.EndMs, window.Staged[len(window.Staged)-1].TimestampMs)
	if durationMs, err := s.durations.Duration(s.pageIndex); err == nil {
		window.EndMs = min(window.EndMs, durationMs)
		window.ToEnd = window.EndMs == durationMs
	}
	return s.queue.Enqueue(commit.Splice(window))
}

func (s *Session) capture(call string) *recording.Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		domain.PanicTransition(machine, "inactive", call)
	}
	return s.recorder
}

// stage is the recorder sink. Timestamps are kept inside [startMs, duration].
func (s *Session) stage(_ int, action domain.Action) *commit.Handle {
	durationMs, durationErr := s.durations.Duration(s.pageIndex)

	s.mu.Lock()
	defer s.mu.Unlock()
	action.TimestampMs = max(action.TimestampMs, s.startMs)
	if durationErr == nil {
		action.TimestampMs = min(action.TimestampMs, durationMs)
	}
	if n := len(s.staged); n > 0 {
		action.TimestampMs = max(action.TimestampMs, s.staged[n-1].TimestampMs)
	}
	s.staged = append(s.staged, action)
	return commit.Resolved(commit.Result{Kind: commit.OpSplice, PageIndex: s.pageIndex, StartMs: action.TimestampMs, EndMs: action.TimestampMs}, nil)
}
