// Package domain defines the annotation timeline value types shared by the
// capture, edit, and commit layers.
//
// A recording is a set of pages. Each page owns an ordered sequence of tool
// actions whose timestamps are offsets from the start of the page. Actions are
// plain comparable values so snapshots can be compared element by element.
package domain
