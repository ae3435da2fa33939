package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/lectureStudio/lectureStudio-sub005/internal/services/annotation/commit"
	"github.com/lectureStudio/lectureStudio-sub005/internal/services/annotation/domain"
	"github.com/lectureStudio/lectureStudio-sub005/internal/services/annotation/edit"
	"github.com/lectureStudio/lectureStudio-sub005/internal/services/annotation/recording"
)

type capturer interface {
	Begin(point domain.Point) *commit.Handle
	ExecuteAction(point domain.Point) *commit.Handle
	End(point domain.Point) *commit.Handle
}

// ToolController routes pointer input from the active tool to the edit
// session while editing, and to live capture or preview otherwise.
//
// Input calls follow the capture state machine: a second BeginToolAction
// without EndToolAction panics with a *domain.TransitionError.
type ToolController struct {
	recorder *Recorder

	mu        sync.Mutex
	page      int
	tool      string
	editing   *edit.Session
	capture   *recording.Session
	lastPoint domain.Point
	handles   []*commit.Handle
	compactAt int
}

// Page returns the selected page.
func (c *ToolController) Page() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.page
}

// Editing reports whether an edit session is active.
func (c *ToolController) Editing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.editing != nil
}

// SelectPage switches input to another page. It is refused while editing.
func (c *ToolController) SelectPage(index int) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.editing != nil {
		return fmt.Errorf("select page %d: %w", index, domain.ErrEditInProgress)
	}
	if _, err := c.recorder.Timeline.Duration(index); err != nil {
		return err
	}
	c.endOpenStroke()
	c.page = index
	c.capture = nil
	return nil
}

// SelectTool changes the tool stamped on subsequent input.
func (c *ToolController) SelectTool(tool string) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.tool = tool
	if c.editing != nil {
		c.editing.SetTool(tool)
	}
	if c.capture != nil {
		c.capture.SetTool(tool)
	}
}

// Seek moves the playback cursor of the selected page.
func (c *ToolController) Seek(position float64) error {
	c.mu.Lock()
	page := c.page
	c.mu.Unlock()
	return c.recorder.Cursor.Seek(page, position)
}

// SetIsEditing enters or leaves edit mode on the selected page. Leaving edit
// mode returns the handle of the resulting splice; entering returns nil.
// Repeating the current mode is a no-op.
func (c *ToolController) SetIsEditing(editing bool) (*commit.Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if editing {
		if c.editing != nil {
			return nil, nil
		}
		c.endOpenStroke()
		session := edit.New(c.page, c.recorder.Timeline, c.recorder.Queue, edit.Config{
			Tool:  c.tool,
			Clock: c.recorder.options.EditClock,
		})
		if err := session.Activate(c.recorder.Cursor); err != nil {
			return nil, fmt.Errorf("start edit: %w", err)
		}
		c.editing = session
		return nil, nil
	}

	if c.editing == nil {
		return nil, nil
	}
	h := c.track(c.editing.Deactivate(c.recorder.Cursor))
	c.editing = nil
	return h, nil
}

// Cut deletes every action between two normalized positions of the selected
// page. It is refused while editing and ends an open stroke first.
func (c *ToolController) Cut(from, to float64) (*commit.Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.editing != nil {
		return nil, fmt.Errorf("cut page %d: %w", c.page, domain.ErrEditInProgress)
	}
	startMs, err := c.recorder.Cursor.TimestampAt(c.page, min(from, to))
	if err != nil {
		return nil, err
	}
	endMs, err := c.recorder.Cursor.TimestampAt(c.page, max(from, to))
	if err != nil {
		return nil, err
	}
	c.endOpenStroke()
	return c.track(c.recorder.Queue.Enqueue(commit.Cut(c.page, startMs, endMs))), nil
}

// BeginToolAction starts a stroke.
func (c *ToolController) BeginToolAction(point domain.Point) *commit.Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastPoint = point
	return c.track(c.input().Begin(point))
}

// ExecuteToolAction continues the stroke.
func (c *ToolController) ExecuteToolAction(point domain.Point) *commit.Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastPoint = point
	return c.track(c.input().ExecuteAction(point))
}

// EndToolAction ends the stroke.
func (c *ToolController) EndToolAction(point domain.Point) *commit.Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastPoint = point
	return c.track(c.input().End(point))
}

// Wait blocks until every operation issued so far is applied. It returns the
// context error if ctx ends first, and otherwise the joined errors of rejected
// operations.
func (c *ToolController) Wait(ctx context.Context) error {
	c.mu.Lock()
	handles := c.handles
	c.handles = nil
	c.mu.Unlock()

	var errs []error
	for _, h := range handles {
		if _, err := h.Await(ctx); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			errs = append(errs, fmt.Errorf("op %s: %w", h.ID(), err))
		}
	}
	return errors.Join(errs...)
}

func (c *ToolController) input() capturer {
	if c.editing != nil {
		return c.editing
	}
	if c.capture == nil {
		c.capture = c.newCaptureSession()
	}
	return c.capture
}

func (c *ToolController) newCaptureSession() *recording.Session {
	options := c.recorder.options
	if !options.LiveCapture {
		return recording.NewSession(c.page, c.tool, recording.NewCursorClock(c.recorder.Cursor, c.page), recording.SinkFunc(c.preview))
	}
	offsetMs, _ := c.recorder.Timeline.Duration(c.page)
	return recording.NewSession(c.page, c.tool, options.CaptureClock(c.page, offsetMs), recording.QueueSink(c.recorder.Queue))
}

func (c *ToolController) preview(pageIndex int, action domain.Action) *commit.Handle {
	if preview := c.recorder.options.Preview; preview != nil {
		preview(pageIndex, action)
	}
	return commit.Resolved(commit.Result{PageIndex: pageIndex}, nil)
}

// endOpenStroke closes a live or preview stroke at its last point.
func (c *ToolController) endOpenStroke() {
	if c.capture != nil && c.capture.State() == recording.StateCapturing {
		c.track(c.capture.End(c.lastPoint))
	}
}

// minCompact is the handle count below which track does not compact.
const minCompact = 64

// track remembers h for Wait. Handles that already succeeded are dropped once
// the list doubles since the last compaction; pending and rejected ones stay.
func (c *ToolController) track(h *commit.Handle) *commit.Handle {
	if h == nil {
		return h
	}
	c.handles = append(c.handles, h)
	if len(c.handles) < max(c.compactAt, minCompact) {
		return h
	}
	kept := c.handles[:0]
	for _, tracked := range c.handles {
		if _, err := tracked.Poll(); err != nil {
			kept = append(kept, tracked)
		}
	}
	clear(c.handles[len(kept):])
	c.handles = kept
	c.compactAt = 2 * len(kept)
	return h
}
