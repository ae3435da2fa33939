package commit

import (
	"context"
	"errors"

	"github.com/lectureStudio/lectureStudio-sub005/internal/services/annotation/domain"
)

// ErrPending indicates the operation has not been applied yet.
var ErrPending = errors.New("commit pending")

// Result describes an applied operation.
type Result struct {
	OpID      string
	Kind      OpKind
	PageIndex int
	// StartMs and EndMs bound the changed range of the page.
	StartMs uint64
	EndMs   uint64
	Removed []domain.Action
	// Inserted counts the actions added to the page.
	Inserted int
}

// Handle is the caller-visible token of an enqueued operation.
type Handle struct {
	id     string
	done   chan struct{}
	result Result
	err    error
}

func newHandle(id string) *Handle {
	return &Handle{id: id, done: make(chan struct{})}
}

// Resolved returns a handle that is already complete. Sessions use it for
// actions that never reach the queue.
func Resolved(result Result, err error) *Handle {
	h := newHandle(result.OpID)
	h.resolve(result, err)
	return h
}

// resolve must be called exactly once.
func (h *Handle) resolve(result Result, err error) {
	h.result = result
	h.err = err
	close(h.done)
}

// ID returns the operation id the handle tracks.
func (h *Handle) ID() string { return h.id }

// Done is closed once the operation has been applied or rejected.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Poll returns the outcome without blocking, or ErrPending.
func (h *Handle) Poll() (Result, error) {
	select {
	case <-h.done:
		return h.result, h.err
	default:
		return Result{}, ErrPending
	}
}

// Await blocks until the operation resolves or ctx ends.
func (h *Handle) Await(ctx context.Context) (Result, error) {
	select {
	case <-h.done:
		return h.result, h.err
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}
}

// AwaitAll waits for every handle and returns the first operation error.
func AwaitAll(ctx context.Context, handles ...*Handle) error {
	var first error
	for _, h := range handles {
		if h == nil {
			continue
		}
		if _, err := h.Await(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if first == nil {
				first = err
			}
		}
	}
	return first
}
