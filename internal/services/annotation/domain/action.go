package domain

import (
	"fmt"
	"slices"
)

// Kind identifies the phase of a tool interaction.
type Kind string

const (
	// KindBegin starts a tool stroke.
	KindBegin Kind = "begin"
	// KindMove continues the open stroke.
	KindMove Kind = "move"
	// KindEnd closes the open stroke.
	KindEnd Kind = "end"
)

// Valid reports whether the kind is one of the known tool phases.
func (k Kind) Valid() bool {
	switch k {
	case KindBegin, KindMove, KindEnd:
		return true
	default:
		return false
	}
}

// Point is a tool position on the page in page coordinates.
type Point struct {
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
	Pressure float64 `json:"pressure,omitempty"`
}

// Action is one recorded tool event. TimestampMs is relative to the start of
// the page; Tool and Point are the tool-specific payload.
type Action struct {
	Kind        Kind   `json:"kind"`
	TimestampMs uint64 `json:"timestamp_ms"`
	Tool        string `json:"tool,omitempty"`
	Point       Point  `json:"point"`
}

// Page is one presentation slide and its ordered action sequence.
type Page struct {
	Index      int
	DurationMs uint64
	Actions    []Action
}

// EditWindow is the staged replacement for a time range of one page.
type EditWindow struct {
	PageIndex int
	StartMs   uint64
	EndMs     uint64
	// ToEnd extends the window over every action at or after StartMs, whatever
	// the page duration has grown to by the time the window is applied.
	ToEnd  bool
	Staged []Action
}

// Clone returns a window whose staged slice is not shared with w.
func (w EditWindow) Clone() EditWindow {
	w.Staged = slices.Clone(w.Staged)
	return w
}

// ValidateOrder returns ErrOutOfOrder when timestamps regress anywhere in actions.
func ValidateOrder(actions []Action) error {
	for i := 1; i < len(actions); i++ {
		if actions[i].TimestampMs < actions[i-1].TimestampMs {
			return fmt.Errorf("%w: index %d at %dms follows %dms", ErrOutOfOrder, i, actions[i].TimestampMs, actions[i-1].TimestampMs)
		}
	}
	return nil
}
