// Package commit serializes every timeline mutation onto one worker goroutine.
//
// Producers enqueue immutable operations and receive a Handle they can poll or
// await. The worker applies operations in enqueue order, resolves the handle,
// and then publishes a change notification.
package commit

import (
	"github.com/google/uuid"

	"github.com/lectureStudio/lectureStudio-sub005/internal/services/annotation/domain"
)

// OpKind identifies the variant of an Op.
type OpKind string

const (
	// OpAppend adds one action at the tail of a page.
	OpAppend OpKind = "append"
	// OpSplice replaces an edit window of a page.
	OpSplice OpKind = "splice"
	// OpCut deletes a time range of a page.
	OpCut OpKind = "cut"
)

// Op is the unit of queued work. Its fields are unexported so an Op cannot be
// changed once built.
type Op struct {
	id        string
	kind      OpKind
	pageIndex int
	action    domain.Action
	window    domain.EditWindow
}

// Append builds an append operation.
func Append(pageIndex int, action domain.Action) Op {
	return Op{id: uuid.NewString(), kind: OpAppend, pageIndex: pageIndex, action: action}
}

// Splice builds a splice operation. The staged actions are copied.
func Splice(window domain.EditWindow) Op {
	return Op{id: uuid.NewString(), kind: OpSplice, pageIndex: window.PageIndex, window: window.Clone()}
}

// Cut builds an operation deleting every action inside [startMs, endMs].
func Cut(pageIndex int, startMs, endMs uint64) Op {
	return Op{
		id:        uuid.NewString(),
		kind:      OpCut,
		pageIndex: pageIndex,
		window:    domain.EditWindow{PageIndex: pageIndex, StartMs: startMs, EndMs: endMs},
	}
}

// ID returns the operation id.
func (o Op) ID() string { return o.id }

// Kind returns the operation variant.
func (o Op) Kind() OpKind { return o.kind }

// PageIndex returns the page the operation mutates.
func (o Op) PageIndex() int { return o.pageIndex }

// Action returns the appended action of an OpAppend.
func (o Op) Action() domain.Action { return o.action }

// Window returns a copy of the edit window of an OpSplice or the range of an
// OpCut.
func (o Op) Window() domain.EditWindow { return o.window.Clone() }
