package recording

import (
	"context"
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/lectureStudio/lectureStudio-sub005/internal/services/annotation/commit"
	"github.com/lectureStudio/lectureStudio-sub005/internal/services/annotation/domain"
	"github.com/lectureStudio/lectureStudio-sub005/internal/services/annotation/playback"
	"github.com/lectureStudio/lectureStudio-sub005/internal/services/annotation/timeline"
)

type collectSink struct {
	actions []domain.Action
}

func (c *collectSink) Accept(_ int, action domain.Action) *commit.Handle {
	c.actions = append(c.actions, action)
	return commit.Resolved(commit.Result{Kind: commit.OpAppend}, nil)
}

func sequenceClock(values ...uint64) ClockFunc {
	i := 0
	return func() uint64 {
		v := values[i]
		if i < len(values)-1 {
			i++
		}
		return v
	}
}

func expectTransitionPanic(t *testing.T, call string, fn func()) {
	t.Helper()
	defer func() {
		t.Helper()
		r := recover()
		err, ok := r.(error)
		if !ok || !errors.Is(err, domain.ErrInvalidTransition) {
			t.Fatalf("%s panic = %v, want %v", call, r, domain.ErrInvalidTransition)
		}
	}()
	fn()
}

func TestSessionProducesStrokeInOrder(t *testing.T) {
	for _, moves := range []int{0, 1, 5} {
		sink := &collectSink{}
		s := NewSession(0, "pen", NewMonotonicClock(ClockFunc(func() uint64 { return 100 })), sink)

		s.Begin(domain.Point{X: 1})
		for i := 0; i < moves; i++ {
			s.ExecuteAction(domain.Point{X: float64(i)})
		}
		s.End(domain.Point{X: 9})

		if len(sink.actions) != moves+2 {
			t.Fatalf("moves=%d: actions = %d, want %d", moves, len(sink.actions), moves+2)
		}
		if sink.actions[0].Kind != domain.KindBegin || sink.actions[len(sink.actions)-1].Kind != domain.KindEnd {
			t.Fatalf("moves=%d: stroke not bracketed: %+v", moves, sink.actions)
		}
		for i, action := range sink.actions {
			if i > 0 && i < len(sink.actions)-1 && action.Kind != domain.KindMove {
				t.Fatalf("moves=%d: action %d kind = %s, want move", moves, i, action.Kind)
			}
			if i > 0 && action.TimestampMs <= sink.actions[i-1].TimestampMs {
				t.Fatalf("moves=%d: timestamps not increasing: %+v", moves, sink.actions)
			}
			if action.Tool != "pen" {
				t.Fatalf("tool = %q, want pen", action.Tool)
			}
		}
		if s.State() != StateIdle {
			t.Fatalf("state = %s, want idle", s.State())
		}
	}
}

func TestSessionInvalidTransitionsPanic(t *testing.T) {
	s := NewSession(0, "pen", ClockFunc(func() uint64 { return 0 }), &collectSink{})
	expectTransitionPanic(t, "ExecuteAction", func() { s.ExecuteAction(domain.Point{}) })
	expectTransitionPanic(t, "End", func() { s.End(domain.Point{}) })

	s.Begin(domain.Point{})
	expectTransitionPanic(t, "Begin", func() { s.Begin(domain.Point{}) })
	if s.State() != StateCapturing {
		t.Fatalf("state = %s, want capturing", s.State())
	}
}

func TestSetToolAppliesToNextActions(t *testing.T) {
	sink := &collectSink{}
	s := NewSession(0, "pen", NewMonotonicClock(ClockFunc(func() uint64 { return 0 })), sink)
	s.Begin(domain.Point{})
	s.SetTool("highlighter")
	s.End(domain.Point{})

	if sink.actions[0].Tool != "pen" || sink.actions[1].Tool != "highlighter" {
		t.Fatalf("tools = %q, %q", sink.actions[0].Tool, sink.actions[1].Tool)
	}
}

func TestRegressingClockSurfacesOutOfOrder(t *testing.T) {
	tl := timeline.New()
	if err := tl.AddPage(0, 1000, nil); err != nil {
		t.Fatalf("add page: %v", err)
	}
	q, err := commit.New(tl, nil, commit.Config{})
	if err != nil {
		t.Fatalf("new queue: %v", err)
	}

	s := NewSession(0, "pen", sequenceClock(50, 60, 40), QueueSink(q))
	begin := s.Begin(domain.Point{})
	move := s.ExecuteAction(domain.Point{})
	end := s.End(domain.Point{})

	q.Close()
	if err := q.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	if err := commit.AwaitAll(context.Background(), begin, move); err != nil {
		t.Fatalf("await: %v", err)
	}
	if _, err := end.Poll(); !errors.Is(err, domain.ErrOutOfOrder) {
		t.Fatalf("end err = %v, want %v", err, domain.ErrOutOfOrder)
	}

	actions, err := tl.Snapshot(0)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	if len(actions) != 2 || actions[1].TimestampMs != 60 {
		t.Fatalf("actions = %+v, want begin and move only", actions)
	}
}

func TestMonotonicClockStrictlyIncreases(t *testing.T) {
	c := NewMonotonicClock(sequenceClock(10, 10, 5, 30, 30))
	var got []uint64
	for i := 0; i < 5; i++ {
		got = append(got, c.NowMs())
	}
	if want := []uint64{10, 11, 12, 30, 31}; !slices.Equal(got, want) {
		t.Fatalf("readings = %v, want %v", got, want)
	}
}

func TestCursorClockFollowsCursor(t *testing.T) {
	tl := timeline.New()
	if err := tl.AddPage(0, 2000, nil); err != nil {
		t.Fatalf("add page: %v", err)
	}
	cursor := playback.NewCursor(tl)
	if err := cursor.Seek(0, 0.25); err != nil {
		t.Fatalf("seek: %v", err)
	}

	if got := NewCursorClock(cursor, 0).NowMs(); got != 500 {
		t.Fatalf("now = %d, want 500", got)
	}
	if got := NewCursorClock(cursor, 9).NowMs(); got != 0 {
		t.Fatalf("unknown page now = %d, want 0", got)
	}
}

func TestElapsedClockAddsOffset(t *testing.T) {
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	now := base
	c := NewElapsedClock(1500, func() time.Time { return now })

	if got := c.NowMs(); got != 1500 {
		t.Fatalf("now = %d, want 1500", got)
	}
	now = base.Add(250 * time.Millisecond)
	if got := c.NowMs(); got != 1750 {
		t.Fatalf("now = %d, want 1750", got)
	}
	now = base.Add(-time.Second)
	if got := c.NowMs(); got != 1500 {
		t.Fatalf("now before start = %d, want 1500", got)
	}
}
