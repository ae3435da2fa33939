// Package recording turns raw tool input into ordered page actions.
package recording

import (
	"sync"

	"github.com/lectureStudio/lectureStudio-sub005/internal/services/annotation/commit"
	"github.com/lectureStudio/lectureStudio-sub005/internal/services/annotation/domain"
)

// State is the capture state of a Session.
type State string

const (
	// StateIdle waits for a stroke to begin.
	StateIdle State = "idle"
	// StateCapturing is inside a stroke.
	StateCapturing State = "capturing"
)

// Sink receives every action a session produces.
type Sink interface {
	Accept(pageIndex int, action domain.Action) *commit.Handle
}

// SinkFunc adapts a function to Sink.
type SinkFunc func(pageIndex int, action domain.Action) *commit.Handle

// Accept calls f.
func (f SinkFunc) Accept(pageIndex int, action domain.Action) *commit.Handle {
	return f(pageIndex, action)
}

// Enqueuer accepts commit operations. *commit.Queue implements it.
type Enqueuer interface {
	Enqueue(op commit.Op) *commit.Handle
}

// QueueSink forwards actions as append operations for live capture.
func QueueSink(queue Enqueuer) Sink {
	return SinkFunc(func(pageIndex int, action domain.Action) *commit.Handle {
		return queue.Enqueue(commit.Append(pageIndex, action))
	})
}

// Session is the capture state machine for one page. Each call produces exactly
// one action stamped by the session clock; ordering across calls is the clock's
// responsibility (see MonotonicClock).
//
// Calling ExecuteAction or End while idle, or Begin while capturing, panics
// with a *domain.TransitionError.
type Session struct {
	pageIndex int
	clock     Clock
	sink      Sink

	mu    sync.Mutex
	tool  string
	state State
}

// NewSession creates an idle session for a page.
func NewSession(pageIndex int, tool string, clock Clock, sink Sink) *Session {
	return &Session{
		pageIndex: pageIndex,
		tool:      tool,
		clock:     clock,
		sink:      sink,
		state:     StateIdle,
	}
}

// PageIndex returns the page the session records into.
func (s *Session) PageIndex() int { return s.pageIndex }

// State returns the current capture state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// SetTool changes the tool stamped on subsequent strokes.
func (s *Session) SetTool(tool string) {
	s.mu.Lock()
	s.tool = tool
	s.mu.Unlock()
}

// Begin starts a stroke.
func (s *Session) Begin(point domain.Point) *commit.Handle {
	return s.produce(domain.KindBegin, StateIdle, StateCapturing, "Begin", point)
}

// ExecuteAction continues the open stroke.
func (s *Session) ExecuteAction(point domain.Point) *commit.Handle {
	return s.produce(domain.KindMove, StateCapturing, StateCapturing, "ExecuteAction", point)
}

// End closes the open stroke.
func (s *Session) End(point domain.Point) *commit.Handle {
	return s.produce(domain.KindEnd, StateCapturing, StateIdle, "End", point)
}

func (s *Session) produce(kind domain.Kind, from, to State, call string, point domain.Point) *commit.Handle {
	s.mu.Lock()
	if s.state != from {
		state := s.state
		s.mu.Unlock()
		domain.PanicTransition("recording session", string(state), call)
	}
	s.state = to
	action := domain.Action{
		Kind:        kind,
		TimestampMs: s.clock.NowMs(),
		Tool:        s.tool,
		Point:       point,
	}
	s.mu.Unlock()

	return s.sink.Accept(s.pageIndex, action)
}
