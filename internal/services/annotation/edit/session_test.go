package edit

import (
	"context"
	"errors"
	"slices"
	"testing"

	"github.com/lectureStudio/lectureStudio-sub005/internal/services/annotation/commit"
	"github.com/lectureStudio/lectureStudio-sub005/internal/services/annotation/domain"
	"github.com/lectureStudio/lectureStudio-sub005/internal/services/annotation/playback"
	"github.com/lectureStudio/lectureStudio-sub005/internal/services/annotation/recording"
	"github.com/lectureStudio/lectureStudio-sub005/internal/services/annotation/timeline"
)

type fixture struct {
	timeline *timeline.Timeline
	cursor   *playback.Cursor
	queue    *commit.Queue
}

func newFixture(t *testing.T, durationMs uint64, actions ...domain.Action) fixture {
	t.Helper()
	tl := timeline.New()
	if err := tl.AddPage(0, durationMs, actions); err != nil {
		t.Fatalf("add page: %v", err)
	}
	q, err := commit.New(tl, nil, commit.Config{})
	if err != nil {
		t.Fatalf("new queue: %v", err)
	}
	return fixture{timeline: tl, cursor: playback.NewCursor(tl), queue: q}
}

// drain applies everything queued so far and waits for h.
func (f fixture) drain(t *testing.T, h *commit.Handle) (commit.Result, error) {
	t.Helper()
	f.queue.Close()
	if err := f.queue.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	return h.Poll()
}

func (f fixture) seek(t *testing.T, position float64) {
	t.Helper()
	if err := f.cursor.Seek(0, position); err != nil {
		t.Fatalf("seek: %v", err)
	}
}

func (f fixture) snapshot(t *testing.T) []domain.Action {
	t.Helper()
	actions, err := f.timeline.Snapshot(0)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
	}
	return actions
}

func act(kind domain.Kind, ts uint64) domain.Action {
	return domain.Action{Kind: kind, TimestampMs: ts, Tool: "pen"}
}

func TestNoOpEditLeavesPageUntouched(t *testing.T) {
	f := newFixture(t, 1000, act(domain.KindBegin, 100), act(domain.KindMove, 200), act(domain.KindEnd, 300))
	before := f.snapshot(t)
	s := New(0, f.timeline, f.queue, Config{Tool: "pen"})

	f.seek(t, 0.15)
	if err := s.Activate(f.cursor); err != nil {
		t.Fatalf("activate: %v", err)
	}
	f.seek(t, 0.5)
	h := s.Deactivate(f.cursor)

	result, err := h.Poll()
	if err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if len(result.Removed) != 0 || result.Inserted != 0 {
		t.Fatalf("result = %+v, want empty", result)
	}
	if f.queue.Len() != 0 {
		t.Fatalf("queued = %d, want 0", f.queue.Len())
	}
	if got := f.snapshot(t); !slices.Equal(got, before) {
		t.Fatalf("snapshot = %+v, want %+v", got, before)
	}
	if s.Active() {
		t.Fatal("session still active")
	}
}

func TestEditReplacesWindowThroughQueue(t *testing.T) {
	f := newFixture(t, 1000,
		act(domain.KindBegin, 100), act(domain.KindEnd, 150),
		act(domain.KindBegin, 400), act(domain.KindMove, 450), act(domain.KindEnd, 500),
		act(domain.KindBegin, 800), act(domain.KindEnd, 850),
	)
	s := New(0, f.timeline, f.queue, Config{Tool: "marker"})

	f.seek(t, 0.3)
	if err := s.Activate(f.cursor); err != nil {
		t.Fatalf("activate: %v", err)
	}
	s.Begin(domain.Point{X: 1})
	f.seek(t, 0.35)
	s.ExecuteAction(domain.Point{X: 2})
	f.seek(t, 0.4)
	s.End(domain.Point{X: 3})
	if got := len(s.Staged()); got != 3 {
		t.Fatalf("staged = %d, want 3", got)
	}
	f.seek(t, 0.6)
	h := s.Deactivate(f.cursor)

	result, err := f.drain(t, h)
	if err != nil {
		t.Fatalf("splice: %v", err)
	}
	if result.StartMs != 300 || result.EndMs != 600 {
		t.Fatalf("window = [%d, %d], want [300, 600]", result.StartMs, result.EndMs)
	}
	if len(result.Removed) != 3 || result.Inserted != 3 {
		t.Fatalf("result = %+v, want 3 removed and 3 inserted", result)
	}

	got := f.snapshot(t)
	var stamps []uint64
	for _, action := range got {
		stamps = append(stamps, action.TimestampMs)
	}
	if want := []uint64{100, 150, 300, 350, 400, 800, 850}; !slices.Equal(stamps, want) {
		t.Fatalf("timestamps = %v, want %v", stamps, want)
	}
	if got[2].Tool != "marker" {
		t.Fatalf("tool = %q, want marker", got[2].Tool)
	}
}

func TestRerecordNearPageEnd(t *testing.T) {
	tests := []struct {
		name        string
		actions     []domain.Action
		wantDelta   int
		wantRemoved int
	}{
		{
			name:      "appends after last action",
			actions:   []domain.Action{act(domain.KindBegin, 900), act(domain.KindEnd, 990)},
			wantDelta: 2,
		},
		{
			name: "replaces actions past page end",
			actions: []domain.Action{
				act(domain.KindBegin, 900), act(domain.KindEnd, 990),
				act(domain.KindBegin, 1002), act(domain.KindEnd, 1005),
			},
			wantDelta:   0,
			wantRemoved: 2,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, 1000, tt.actions...)
			before := len(f.snapshot(t))
			s := New(0, f.timeline, f.queue, Config{Tool: "pen"})

			f.seek(t, 0.999)
			if err := s.Activate(f.cursor); err != nil {
				t.Fatalf("activate: %v", err)
			}
			if s.StartMs() != 999 {
				t.Fatalf("start = %d, want 999", s.StartMs())
			}
			s.Begin(domain.Point{})
			s.End(domain.Point{})
			result, err := f.drain(t, s.Deactivate(f.cursor))
			if err != nil {
				t.Fatalf("splice: %v", err)
			}
			if len(result.Removed) != tt.wantRemoved {
				t.Fatalf("removed = %d, want %d", len(result.Removed), tt.wantRemoved)
			}

			after := f.snapshot(t)
			if len(after) != before+tt.wantDelta {
				t.Fatalf("actions = %d, want %d", len(after), before+tt.wantDelta)
			}
			if err := domain.ValidateOrder(after); err != nil {
				t.Fatalf("order: %v", err)
			}
			for _, action := range after {
				if action.TimestampMs > 1000 {
					t.Fatalf("action at %dms past page end remains", action.TimestampMs)
				}
			}
		})
	}
}

func TestRerecordAtPageEndReplacesQueuedAppendsPastEnd(t *testing.T) {
	f := newFixture(t, 1000, act(domain.KindMove, 900), act(domain.KindMove, 990))
	live := []*commit.Handle{
		f.queue.Enqueue(commit.Append(0, act(domain.KindMove, 1200))),
		f.queue.Enqueue(commit.Append(0, act(domain.KindMove, 1300))),
	}
	s := New(0, f.timeline, f.queue, Config{Tool: "pen"})

	f.seek(t, 1)
	if err := s.Activate(f.cursor); err != nil {
		t.Fatalf("activate: %v", err)
	}
	s.Begin(domain.Point{X: 1})
	s.End(domain.Point{X: 2})
	h := s.Deactivate(f.cursor)

	result, err := f.drain(t, h)
	if err != nil {
		t.Fatalf("splice: %v", err)
	}
	if err := commit.AwaitAll(context.Background(), live...); err != nil {
		t.Fatalf("appends: %v", err)
	}
	if result.StartMs != 1000 || result.EndMs != 1300 {
		t.Fatalf("window = [%d, %d], want [1000, 1300]", result.StartMs, result.EndMs)
	}
	if len(result.Removed) != 2 || result.Inserted != 2 {
		t.Fatalf("result = %+v, want 2 removed and 2 inserted", result)
	}

	var stamps []uint64
	for _, action := range f.snapshot(t) {
		stamps = append(stamps, action.TimestampMs)
	}
	if want := []uint64{900, 990, 1000, 1000}; !slices.Equal(stamps, want) {
		t.Fatalf("timestamps = %v, want %v", stamps, want)
	}
}

func TestDeactivateEndsOpenStroke(t *testing.T) {
	f := newFixture(t, 1000)
	s := New(0, f.timeline, f.queue, Config{})

	f.seek(t, 0.1)
	if err := s.Activate(f.cursor); err != nil {
		t.Fatalf("activate: %v", err)
	}
	s.Begin(domain.Point{X: 4, Y: 2})
	s.ExecuteAction(domain.Point{X: 5, Y: 3})
	if _, err := f.drain(t, s.Deactivate(f.cursor)); err != nil {
		t.Fatalf("splice: %v", err)
	}

	got := f.snapshot(t)
	if len(got) != 3 {
		t.Fatalf("actions = %+v, want 3", got)
	}
	last := got[2]
	if last.Kind != domain.KindEnd || last.Point != (domain.Point{X: 5, Y: 3}) {
		t.Fatalf("last = %+v, want end at last point", last)
	}
}

func TestStagedTimestampsStayInsideWindow(t *testing.T) {
	f := newFixture(t, 1000)
	readings := []uint64{700, 200, 5000}
	s := New(0, f.timeline, f.queue, Config{
		Clock: func(recording.Position, int) recording.Clock {
			return recording.ClockFunc(func() uint64 {
				v := readings[0]
				readings = readings[1:]
				return v
			})
		},
	})

	f.seek(t, 0.5)
	if err := s.Activate(f.cursor); err != nil {
		t.Fatalf("activate: %v", err)
	}
	s.Begin(domain.Point{})
	s.ExecuteAction(domain.Point{})
	s.End(domain.Point{})

	var stamps []uint64
	for _, action := range s.Staged() {
		stamps = append(stamps, action.TimestampMs)
	}
	if want := []uint64{700, 700, 1000}; !slices.Equal(stamps, want) {
		t.Fatalf("staged = %v, want %v", stamps, want)
	}
	if _, err := f.drain(t, s.Deactivate(f.cursor)); err != nil {
		t.Fatalf("splice: %v", err)
	}
}

func TestMisuseDuringEditPanics(t *testing.T) {
	f := newFixture(t, 1000)
	s := New(0, f.timeline, f.queue, Config{})

	mustPanic(t, "Deactivate", func() { s.Deactivate(f.cursor) })
	mustPanic(t, "Begin", func() { s.Begin(domain.Point{}) })

	if err := s.Activate(f.cursor); err != nil {
		t.Fatalf("activate: %v", err)
	}
	mustPanic(t, "Activate", func() { _ = s.Activate(f.cursor) })
	mustPanic(t, "End", func() { s.End(domain.Point{}) })
}

func TestActivateUnknownPage(t *testing.T) {
	f := newFixture(t, 1000)
	s := New(3, f.timeline, f.queue, Config{})
	if err := s.Activate(f.cursor); !errors.Is(err, domain.ErrPageNotFound) {
		t.Fatalf("err = %v, want %v", err, domain.ErrPageNotFound)
	}
	if s.Active() {
		t.Fatal("session active after failed activation")
	}
}

func mustPanic(t *testing.T, call string, fn func()) {
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
