// Package view holds the visible drag-and-drop layer list. The list is an
// ordering hint for the order engine, never ground truth: rows may point at
// records that no longer exist, and the engine rebuilds the list from the
// backing stores when that happens.
package view

import (
	"strings"

	"github.com/kingrea/layerdeck/internal/layer"
)

// Row is one visible entry. Label and Hidden are whatever the view cached
// when the row was drawn.
type Row struct {
	ID     string
	Kind   layer.Kind
	Label  string
	Hidden bool
}

// List is the visible, user-orderable list. Row 0 is the top of the stack.
type List struct {
	rows      []Row
	highlight string
	revision  uint64
}

// NewList returns a list showing rows in the given order.
func NewList(rows ...Row) *List {
	return &List{rows: cloneRows(rows)}
}

// Rows returns the current rows top to bottom.
func (l *List) Rows() []Row {
	return cloneRows(l.rows)
}

// Len returns the number of rows.
func (l *List) Len() int { return len(l.rows) }

// At returns the row at index i.
func (l *List) At(i int) (Row, bool) {
	if i < 0 || i >= len(l.rows) {
		return Row{}, false
	}
	return l.rows[i], true
}

// Index returns the position of id, or -1.
func (l *List) Index(id string) int {
	for i, row := range l.rows {
		if row.ID == id {
			return i
		}
	}
	return -1
}

// Revision increments whenever the row order changes.
func (l *List) Revision() uint64 { return l.revision }

// Move relocates draggedID immediately before (or after) targetID. It
// reports false and leaves the list untouched when either id is missing or
// both are the same row.
func (l *List) Move(draggedID, targetID string, after bool) bool {
	if draggedID == targetID {
		return false
	}
	from := l.Index(draggedID)
	if from < 0 || l.Index(targetID) < 0 {
		return false
	}
	row := l.rows[from]
	rest := append(append([]Row(nil), l.rows[:from]...), l.rows[from+1:]...)
	at := 0
	for i, candidate := range rest {
		if candidate.ID == targetID {
			at = i
			break
		}
	}
	if after {
		at++
	}
	next := make([]Row, 0, len(l.rows))
	next = append(next, rest[:at]...)
	next = append(next, row)
	next = append(next, rest[at:]...)
	l.rows = next
	l.revision++
	return true
}

// Replace swaps every row, used by rebuilds.
func (l *List) Replace(rows []Row) {
	l.rows = cloneRows(rows)
	if l.highlight != "" && l.Index(l.highlight) < 0 {
		l.highlight = ""
	}
	l.revision++
}

// Highlight marks id as the current drop target. Visual only.
func (l *List) Highlight(id string) {
	l.highlight = strings.TrimSpace(id)
}

// ClearHighlight removes the drop-target mark.
func (l *List) ClearHighlight() {
	l.highlight = ""
}

// Highlighted returns the id currently marked as drop target.
func (l *List) Highlighted() string { return l.highlight }

func cloneRows(rows []Row) []Row {
	if len(rows) == 0 {
		return nil
	}
	out := make([]Row, len(rows))
	copy(out, rows)
	return out
}
