// Package app wires the annotation timeline components into a recorder and
// runs it as a process.
package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/lectureStudio/lectureStudio-sub005/internal/services/annotation/commit"
	"github.com/lectureStudio/lectureStudio-sub005/internal/services/annotation/domain"
	"github.com/lectureStudio/lectureStudio-sub005/internal/services/annotation/edit"
	"github.com/lectureStudio/lectureStudio-sub005/internal/services/annotation/notify"
	"github.com/lectureStudio/lectureStudio-sub005/internal/services/annotation/playback"
	"github.com/lectureStudio/lectureStudio-sub005/internal/services/annotation/recording"
	"github.com/lectureStudio/lectureStudio-sub005/internal/services/annotation/timeline"
)

const defaultTool = "pen"

// Options configures a Recorder and its tool controllers.
type Options struct {
	// LiveCapture appends tool input outside edit mode to the timeline. When
	// false, such input is only previewed.
	LiveCapture bool
	// Tool is the initially selected tool.
	Tool string
	// Logf receives diagnostics from the queue and notifier.
	Logf func(string, ...any)
	// TracerProvider is used for commit spans; nil uses the global provider.
	TracerProvider trace.TracerProvider
	// Preview receives tool input that is not recorded. It runs with the
	// controller locked and must not call back into it.
	Preview func(pageIndex int, action domain.Action)
	// CaptureClock stamps live capture. Defaults to a monotonic wall clock
	// offset by the page's current duration.
	CaptureClock func(pageIndex int, offsetMs uint64) recording.Clock
	// EditClock stamps re-recorded actions. Defaults to the page cursor.
	EditClock edit.ClockFactory
}

func (o Options) normalized() Options {
	if o.Tool == "" {
		o.Tool = defaultTool
	}
	if o.Logf == nil {
		o.Logf = func(string, ...any) {}
	}
	if o.CaptureClock == nil {
		o.CaptureClock = func(_ int, offsetMs uint64) recording.Clock {
			return recording.NewMonotonicClock(recording.NewElapsedClock(offsetMs, time.Now))
		}
	}
	return o
}

// Recorder owns the components of one open recording.
type Recorder struct {
	Timeline *timeline.Timeline
	Cursor   *playback.Cursor
	Notifier *notify.Notifier
	Queue    *commit.Queue

	options Options

	mu    sync.Mutex
	group *errgroup.Group
}

// NewRecorder loads pages into a new timeline and builds the commit pipeline.
func NewRecorder(pages []domain.Page, options Options) (*Recorder, error) {
	options = options.normalized()

	tl := timeline.New()
	for _, page := range pages {
		if err := tl.AddPage(page.Index, page.DurationMs, page.Actions); err != nil {
			return nil, fmt.Errorf("load page: %w", err)
		}
	}
	notifier := notify.NewNotifier(options.Logf)
	queue, err := commit.New(tl, notifier, commit.Config{
		Logf:           options.Logf,
		TracerProvider: options.TracerProvider,
	})
	if err != nil {
		return nil, fmt.Errorf("new commit queue: %w", err)
	}
	return &Recorder{
		Timeline: tl,
		Cursor:   playback.NewCursor(tl),
		Notifier: notifier,
		Queue:    queue,
		options:  options,
	}, nil
}

// Start runs the commit worker in the background until Stop.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.group != nil {
		return commit.ErrAlreadyRunning
	}
	r.group = &errgroup.Group{}
	r.group.Go(func() error {
		return r.Queue.Run(ctx)
	})
	return nil
}

// Stop closes the queue, waits for queued operations to be applied and
// returns the worker error.
func (r *Recorder) Stop() error {
	r.Queue.Close()

	r.mu.Lock()
	group := r.group
	r.mu.Unlock()
	if group == nil {
		return nil
	}
	return group.Wait()
}

// Pages returns a copy of every page in index order.
func (r *Recorder) Pages() ([]domain.Page, error) {
	indexes := r.Timeline.Pages()
	pages := make([]domain.Page, 0, len(indexes))
	for _, index := range indexes {
		page, err := r.Timeline.Page(index)
		if err != nil {
			return nil, err
		}
		pages = append(pages, page)
	}
	return pages, nil
}

// Verify checks that every page is still in timestamp order.
func (r *Recorder) Verify() error {
	pages, err := r.Pages()
	if err != nil {
		return err
	}
	for _, page := range pages {
		if err := domain.ValidateOrder(page.Actions); err != nil {
			return fmt.Errorf("page %d: %w", page.Index, err)
		}
	}
	return nil
}

// NewToolController creates a tool input adapter positioned on the first page.
func (r *Recorder) NewToolController() *ToolController {
	page := 0
	if indexes := r.Timeline.Pages(); len(indexes) > 0 {
		page = indexes[0]
	}
	return &ToolController{
		recorder: r,
		page:     page,
		tool:     r.options.Tool,
	}
}
