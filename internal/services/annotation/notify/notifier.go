// Package notify publishes timeline change events to explicit subscribers.
package notify

import (
	"cmp"
	"slices"
	"sync"

	"github.com/lectureStudio/lectureStudio-sub005/internal/services/annotation/domain"
)

// Change identifies what kind of commit changed the timeline.
type Change string

const (
	// ChangeAppended reports one action appended by live capture.
	ChangeAppended Change = "appended"
	// ChangeSpliced reports an edit window replaced on a page.
	ChangeSpliced Change = "spliced"
	// ChangeCut reports a time range deleted from a page.
	ChangeCut Change = "cut"
)

// Event describes one applied commit.
type Event struct {
	OpID      string
	Change    Change
	PageIndex int
	StartMs   uint64
	EndMs     uint64
	Removed   []domain.Action
	Inserted  int
}

// Notifier fans events out to subscribers. Subscribers are invoked on the
// publishing goroutine and must not block.
type Notifier struct {
	logf func(string, ...any)

	mu          sync.Mutex
	nextID      uint64
	subscribers map[uint64]func(Event)
}

// NewNotifier creates a notifier. logf reports recovered subscriber panics and
// may be nil.
func NewNotifier(logf func(string, ...any)) *Notifier {
	if logf == nil {
		logf = func(string, ...any) {}
	}
	return &Notifier{
		logf:        logf,
		subscribers: make(map[uint64]func(Event)),
	}
}

// Subscription is owned by the subscriber and ends delivery when closed.
type Subscription struct {
	notifier *Notifier
	id       uint64
	once     sync.Once
}

// Close stops delivery. It is safe to call more than once.
func (s *Subscription) Close() {
	if s == nil || s.notifier == nil {
		return
	}
	s.once.Do(func() {
		s.notifier.mu.Lock()
		delete(s.notifier.subscribers, s.id)
		s.notifier.mu.Unlock()
	})
}

// Subscribe registers fn for every subsequent event.
func (n *Notifier) Subscribe(fn func(Event)) *Subscription {
	n.mu.Lock()
	defer n.mu.Unlock()

	n.nextID++
	n.subscribers[n.nextID] = fn
	return &Subscription{notifier: n, id: n.nextID}
}

// Publish delivers evt, in subscription order, to the subscribers registered
// when Publish is called.
func (n *Notifier) Publish(evt Event) {
	if n == nil {
		return
	}
	n.mu.Lock()
	targets := make([]subscriber, 0, len(n.subscribers))
	for id, fn := range n.subscribers {
		targets = append(targets, subscriber{id: id, fn: fn})
	}
	n.mu.Unlock()
	slices.SortFunc(targets, func(a, b subscriber) int { return cmp.Compare(a.id, b.id) })

	for _, target := range targets {
		n.deliver(target, evt)
	}
}

type subscriber struct {
	id uint64
	fn func(Event)
}

func (n *Notifier) deliver(target subscriber, evt Event) {
	defer func() {
		if r := recover(); r != nil {
			n.logf("notify subscriber %d panicked on %s page %d: %v", target.id, evt.Change, evt.PageIndex, r)
		}
	}()
	target.fn(evt)
}
