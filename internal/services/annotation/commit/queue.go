package commit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/lectureStudio/lectureStudio-sub005/internal/services/annotation/domain"
	"github.com/lectureStudio/lectureStudio-sub005/internal/services/annotation/notify"
	"github.com/lectureStudio/lectureStudio-sub005/internal/services/annotation/timeline"
)

const tracerName = "github.com/lectureStudio/lectureStudio-sub005/internal/services/annotation/commit"

var (
	// ErrQueueClosed indicates the queue no longer accepts or applies operations.
	ErrQueueClosed = errors.New("commit queue closed")
	// ErrAlreadyRunning indicates Run was called while a worker is active.
	ErrAlreadyRunning = errors.New("commit queue already running")
	// ErrTimelineRequired indicates a missing timeline.
	ErrTimelineRequired = errors.New("timeline is required")
)

// Timeline is the mutation surface the worker applies operations to.
type Timeline interface {
	Append(pageIndex int, action domain.Action) error
	SpliceReplace(window domain.EditWindow) (timeline.SpliceResult, error)
	Cut(pageIndex int, startMs, endMs uint64) (timeline.SpliceResult, error)
}

// Publisher receives an event after each applied operation.
type Publisher interface {
	Publish(evt notify.Event)
}

// Config controls queue diagnostics.
type Config struct {
	// Logf reports rejected operations. Nil discards them.
	Logf func(string, ...any)
	// TracerProvider defaults to the global OpenTelemetry provider.
	TracerProvider trace.TracerProvider
}

// Queue is a FIFO of operations drained by a single worker. Enqueue never
// blocks on timeline mutation.
type Queue struct {
	timeline  Timeline
	publisher Publisher
	logf      func(string, ...any)
	tracer    trace.Tracer

	mu      sync.Mutex
	pending []entry
	closed  bool
	wake    chan struct{}
	running atomic.Bool
}

type entry struct {
	op     Op
	handle *Handle
}

// New creates a queue. Call Run to start the worker.
func New(tl Timeline, publisher Publisher, cfg Config) (*Queue, error) {
	if tl == nil {
		return nil, ErrTimelineRequired
	}
	logf := cfg.Logf
	if logf == nil {
		logf = func(string, ...any) {}
	}
	provider := cfg.TracerProvider
	if provider == nil {
		provider = otel.GetTracerProvider()
	}
	return &Queue{
		timeline:  tl,
		publisher: publisher,
		logf:      logf,
		tracer:    provider.Tracer(tracerName),
		wake:      make(chan struct{}, 1),
	}, nil
}

// Enqueue appends op to the queue and returns its handle. Operations enqueued
// after Close resolve immediately with ErrQueueClosed.
func (q *Queue) Enqueue(op Op) *Handle {
	h := newHandle(op.ID())

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		h.resolve(resultFor(op), ErrQueueClosed)
		return h
	}
	q.pending = append(q.pending, entry{op: op, handle: h})
	q.mu.Unlock()

	q.signal()
	return h
}

// Len returns the number of operations waiting for the worker.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Close stops accepting operations. The worker drains what is already queued
// and then Run returns.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.signal()
}

// Run applies operations one at a time until the queue is closed and drained
// or ctx ends. Operations still queued when ctx ends resolve with an error
// wrapping ErrQueueClosed.
func (q *Queue) Run(ctx context.Context) error {
	if !q.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	defer q.running.Store(false)

	for {
		if err := ctx.Err(); err != nil {
			q.abandon(err)
			return err
		}
		next, ok, closed := q.next()
		if ok {
			q.apply(ctx, next)
			continue
		}
		if closed {
			return nil
		}
		select {
		case <-ctx.Done():
		case <-q.wake:
		}
	}
}

func (q *Queue) signal() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *Queue) next() (entry, bool, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.pending) == 0 {
		return entry{}, false, q.closed
	}
	next := q.pending[0]
	q.pending[0] = entry{}
	q.pending = q.pending[1:]
	return next, true, q.closed
}

func (q *Queue) abandon(cause error) {
	q.mu.Lock()
	q.closed = true
	pending := q.pending
	q.pending = nil
	q.mu.Unlock()

	for _, e := range pending {
		e.handle.resolve(resultFor(e.op), fmt.Errorf("%w: %w", ErrQueueClosed, cause))
	}
}

func (q *Queue) apply(ctx context.Context, e entry) {
	op := e.op
	_, span := q.tracer.Start(ctx, "annotation.commit.apply",
		trace.WithAttributes(
			attribute.String("op.id", op.id),
			attribute.String("op.kind", string(op.kind)),
			attribute.Int("page.index", op.pageIndex),
		),
	)
	defer span.End()

	result := resultFor(op)
	var err error
	switch op.kind {
	case OpAppend:
		err = q.timeline.Append(op.pageIndex, op.action)
		if err == nil {
			result.StartMs = op.action.TimestampMs
			result.EndMs = op.action.TimestampMs
			result.Inserted = 1
		}
	case OpSplice, OpCut:
		var splice timeline.SpliceResult
		if op.kind == OpCut {
			splice, err = q.timeline.Cut(op.pageIndex, op.window.StartMs, op.window.EndMs)
		} else {
			splice, err = q.timeline.SpliceReplace(op.window)
		}
		if err == nil {
			result.StartMs = splice.StartMs
			result.EndMs = splice.EndMs
			result.Removed = splice.Removed
			result.Inserted = splice.Inserted
		}
	default:
		err = fmt.Errorf("unknown commit op kind %q", op.kind)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		q.logf("commit %s %s on page %d rejected: %v", op.kind, op.id, op.pageIndex, err)
		e.handle.resolve(result, err)
		return
	}

	span.SetAttributes(
		attribute.Int("removed_count", len(result.Removed)),
		attribute.Int("inserted_count", result.Inserted),
	)
	e.handle.resolve(result, nil)

	if q.publisher == nil || (len(result.Removed) == 0 && result.Inserted == 0) {
		return
	}
	q.publisher.Publish(notify.Event{
		OpID:      result.OpID,
		Change:    changeFor(op.kind),
		PageIndex: result.PageIndex,
		StartMs:   result.StartMs,
		EndMs:     result.EndMs,
		Removed:   result.Removed,
		Inserted:  result.Inserted,
	})
}

func resultFor(op Op) Result {
	return Result{OpID: op.id, Kind: op.kind, PageIndex: op.pageIndex}
}

func changeFor(kind OpKind) notify.Change {
	switch kind {
	case OpAppend:
		return notify.ChangeAppended
	case OpCut:
		return notify.ChangeCut
	default:
		return notify.ChangeSpliced
	}
}
