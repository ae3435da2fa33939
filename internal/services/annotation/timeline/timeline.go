// Package timeline owns the ordered action sequence of every page of an open
// recording.
//
// Writers are serialized per page. Readers load an immutable slice published
// with an atomic swap, so a reader never waits for a writer and never sees a
// splice with only its removal or only its insertion applied.
package timeline

import (
	"fmt"
	"slices"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/lectureStudio/lectureStudio-sub005/internal/services/annotation/domain"
)

// Timeline is the single source of truth for per-page action order.
type Timeline struct {
	mu    sync.RWMutex
	pages map[int]*page
}

type page struct {
	// mu serializes writers; readers only use actions.
	mu         sync.Mutex
	durationMs atomic.Uint64
	// actions holds a published slice that is never modified within its length.
	actions atomic.Pointer[[]domain.Action]
}

func (p *page) load() []domain.Action {
	if current := p.actions.Load(); current != nil {
		return *current
	}
	return nil
}

func (p *page) publish(actions []domain.Action) {
	p.actions.Store(&actions)
}

// SpliceResult describes an applied splice.
type SpliceResult struct {
	// StartMs and EndMs are the window bounds after clamping to the page duration.
	StartMs uint64
	EndMs   uint64
	// Removed holds the actions that were replaced, in their original order.
	Removed []domain.Action
	// Inserted counts the staged actions plus any stroke boundary actions.
	Inserted int
}

// New creates an empty timeline.
func New() *Timeline {
	return &Timeline{pages: make(map[int]*page)}
}

// AddPage registers a page with its recorded actions. Loaded actions must
// already be in timestamp order.
func (t *Timeline) AddPage(index int, durationMs uint64, actions []domain.Action) error {
	if err := domain.ValidateOrder(actions); err != nil {
		return fmt.Errorf("page %d: %w", index, err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, exists := t.pages[index]; exists {
		return fmt.Errorf("page %d: %w", index, domain.ErrPageExists)
	}
	p := &page{}
	p.durationMs.Store(durationMs)
	p.publish(slices.Clone(actions))
	t.pages[index] = p
	return nil
}

// Pages returns the registered page indexes in ascending order.
func (t *Timeline) Pages() []int {
	t.mu.RLock()
	indexes := make([]int, 0, len(t.pages))
	for index := range t.pages {
		indexes = append(indexes, index)
	}
	t.mu.RUnlock()
	sort.Ints(indexes)
	return indexes
}

// Duration returns the page duration in milliseconds.
func (t *Timeline) Duration(index int) (uint64, error) {
	p, err := t.page(index)
	if err != nil {
		return 0, err
	}
	return p.durationMs.Load(), nil
}

// Page returns a copy of the page with its current actions.
func (t *Timeline) Page(index int) (domain.Page, error) {
	p, err := t.page(index)
	if err != nil {
		return domain.Page{}, err
	}
	return domain.Page{
		Index:      index,
		DurationMs: p.durationMs.Load(),
		Actions:    slices.Clone(p.load()),
	}, nil
}

// Snapshot returns an independent copy of the page's current action sequence.
func (t *Timeline) Snapshot(index int) ([]domain.Action, error) {
	p, err := t.page(index)
	if err != nil {
		return nil, err
	}
	return slices.Clone(p.load()), nil
}

// Append adds an action at the tail of the page. Live capture may run past the
// recorded duration, in which case the page duration grows to cover it.
func (t *Timeline) Append(index int, action domain.Action) error {
	p, err := t.page(index)
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	current := p.load()
	if n := len(current); n > 0 && action.TimestampMs < current[n-1].TimestampMs {
		return fmt.Errorf("%w: page %d append at %dms after %dms", domain.ErrOutOfOrder, index, action.TimestampMs, current[n-1].TimestampMs)
	}
	// Writing past len(current) is invisible to holders of the old slice.
	p.publish(append(current, action))
	if action.TimestampMs > p.durationMs.Load() {
		p.durationMs.Store(action.TimestampMs)
	}
	return nil
}

// SpliceReplace replaces every action whose timestamp falls inside the window
// with the window's staged actions.
//
// Both bounds are clamped to the page duration. A ToEnd window ends at the
// current duration and replaces every action at or after StartMs, including
// actions stamped past the nominal end of the page. Staged actions must be
// ordered and lie inside the clamped window.
func (t *Timeline) SpliceReplace(window domain.EditWindow) (SpliceResult, error) {
	p, err := t.page(window.PageIndex)
	if err != nil {
		return SpliceResult{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	durationMs := p.durationMs.Load()
	startMs := min(window.StartMs, durationMs)
	endMs := max(min(window.EndMs, durationMs), startMs)
	if window.ToEnd {
		endMs = durationMs
	}
	if err := checkStaged(window.Staged, startMs, endMs); err != nil {
		return SpliceResult{}, fmt.Errorf("page %d: %w", window.PageIndex, err)
	}

	current := p.load()
	lo := sort.Search(len(current), func(i int) bool {
		return current[i].TimestampMs >= startMs
	})
	hi := len(current)
	if !window.ToEnd {
		hi = sort.Search(len(current), func(i int) bool {
			return current[i].TimestampMs > endMs
		})
	}

	result := SpliceResult{StartMs: startMs, EndMs: endMs}
	if lo == hi && len(window.Staged) == 0 {
		return result, nil
	}

	insert := make([]domain.Action, 0, len(window.Staged)+2)
	if openStroke(current[:lo]) {
		last := current[lo-1]
		insert = append(insert, domain.Action{Kind: domain.KindEnd, TimestampMs: startMs, Tool: last.Tool, Point: last.Point})
	}
	insert = append(insert, window.Staged...)
	if hi < len(current) && openStroke(current[:hi]) {
		next := current[hi]
		insert = append(insert, domain.Action{Kind: domain.KindBegin, TimestampMs: endMs, Tool: next.Tool, Point: next.Point})
	}

	next := make([]domain.Action, 0, len(current)-(hi-lo)+len(insert))
	next = append(next, current[:lo]...)
	next = append(next, insert...)
	next = append(next, current[hi:]...)
	p.publish(next)

	result.Removed = slices.Clone(current[lo:hi])
	result.Inserted = len(insert)
	return result, nil
}

// Cut removes every action inside [startMs, endMs] from the page. Actions
// past the page duration are kept.
func (t *Timeline) Cut(index int, startMs, endMs uint64) (SpliceResult, error) {
	return t.SpliceReplace(domain.EditWindow{PageIndex: index, StartMs: startMs, EndMs: endMs})
}

func (t *Timeline) page(index int) (*page, error) {
	t.mu.RLock()
	p, ok := t.pages[index]
	t.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("page %d: %w", index, domain.ErrPageNotFound)
	}
	return p, nil
}

func checkStaged(staged []domain.Action, startMs, endMs uint64) error {
	for i, action := range staged {
		if action.TimestampMs < startMs || action.TimestampMs > endMs {
			return fmt.Errorf("%w: staged action at %dms outside window [%d, %d]", domain.ErrOutOfOrder, action.TimestampMs, startMs, endMs)
		}
		if i > 0 && action.TimestampMs < staged[i-1].TimestampMs {
			return fmt.Errorf("%w: staged index %d at %dms follows %dms", domain.ErrOutOfOrder, i, action.TimestampMs, staged[i-1].TimestampMs)
		}
	}
	return nil
}

// openStroke reports whether the sequence ends inside a stroke, that is the
// last Begin or End in it is a Begin.
func openStroke(actions []domain.Action) bool {
	for i := len(actions) - 1; i >= 0; i-- {
		switch actions[i].Kind {
		case domain.KindBegin:
			return true
		case domain.KindEnd:
			return false
		}
	}
	return false
}
