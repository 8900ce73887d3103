package order

import (
	"github.com/kingrea/layerdeck/internal/layer"
	"github.com/kingrea/layerdeck/internal/view"
)

// DefaultBase is the paint index given to the bottom entry of a snapshot.
// Indices below it are reserved for the shared drawing canvas.
const DefaultBase = 100

// ZIndex derives the paint index of the entry at displayOrder in an order of
// n entries: Base + (n - displayOrder - 1). Display order 0 paints on top.
func ZIndex(base, n, displayOrder int) int {
	return base + (n - displayOrder - 1)
}

// Ref points an entry at its backing-store record. The two implementations
// are the only variants; a nil Ref marks a placeholder.
type Ref interface {
	Kind() layer.Kind
	RecordID() string
	DisplayName() string
	Visible() bool
	sealed()
}

// ImageRef references a record of the image layer store.
type ImageRef struct {
	Record layer.ImageRecord
}

func (r ImageRef) Kind() layer.Kind    { return layer.KindImage }
func (r ImageRef) RecordID() string    { return r.Record.ID }
func (r ImageRef) DisplayName() string { return r.Record.DisplayName() }
func (r ImageRef) Visible() bool       { return r.Record.Visible }
func (ImageRef) sealed()               {}

// AnnotationRef references a record of the annotation store.
type AnnotationRef struct {
	Record layer.AnnotationRecord
}

func (r AnnotationRef) Kind() layer.Kind    { return layer.KindAnnotation }
func (r AnnotationRef) RecordID() string    { return r.Record.ID }
func (r AnnotationRef) DisplayName() string { return r.Record.DisplayName() }
func (r AnnotationRef) Visible() bool       { return r.Record.Visible }
func (AnnotationRef) sealed()               {}

// Entry is the canonical view of one stackable item at one point in time.
// Entries are rebuilt on every resolution and never mutated afterwards.
type Entry struct {
	ID           string
	Kind         layer.Kind
	DisplayOrder int
	ZIndex       int
	Name         string
	Hidden       bool
	Ref          Ref
}

// Placeholder reports whether the entry could not be resolved against its store.
func (e Entry) Placeholder() bool { return e.Ref == nil }

// Row converts the entry back into a visible-list row.
func (e Entry) Row() view.Row {
	return view.Row{ID: e.ID, Kind: e.Kind, Label: e.Name, Hidden: e.Hidden}
}

// Snapshot is a resolved canonical order, top to bottom.
type Snapshot []Entry

// IDs lists entry ids in display order.
func (s Snapshot) IDs() []string {
	out := make([]string, len(s))
	for i, entry := range s {
		out[i] = entry.ID
	}
	return out
}

// Find locates an entry by id.
func (s Snapshot) Find(id string) (Entry, bool) {
	for _, entry := range s {
		if entry.ID == id {
			return entry, true
		}
	}
	return Entry{}, false
}

// IDsOfKind lists the ids of one kind in display order. Placeholders are
// excluded so they can never reach a backing store.
func (s Snapshot) IDsOfKind(kind layer.Kind) []string {
	var out []string
	for _, entry := range s {
		if entry.Kind == kind && !entry.Placeholder() {
			out = append(out, entry.ID)
		}
	}
	return out
}

// Placeholders returns the unresolved entries.
func (s Snapshot) Placeholders() []Entry {
	var out []Entry
	for _, entry := range s {
		if entry.Placeholder() {
			out = append(out, entry)
		}
	}
	return out
}

// HasPlaceholders reports whether any entry is unresolved.
func (s Snapshot) HasPlaceholders() bool {
	for _, entry := range s {
		if entry.Placeholder() {
			return true
		}
	}
	return false
}

// Rows converts the snapshot back into visible-list rows.
func (s Snapshot) Rows() []view.Row {
	out := make([]view.Row, len(s))
	for i, entry := range s {
		out[i] = entry.Row()
	}
	return out
}

// move returns a copy of s with the entry at from reinserted next to the
// entry at to: after it when moving down, before it when moving up.
func move(s Snapshot, from, to int) Snapshot {
	if from == to || from < 0 || to < 0 || from >= len(s) || to >= len(s) {
		return append(Snapshot(nil), s...)
	}
	dragged := s[from]
	targetID := s[to].ID
	rest := make(Snapshot, 0, len(s)-1)
	rest = append(rest, s[:from]...)
	rest = append(rest, s[from+1:]...)
	at := 0
	for i, entry := range rest {
		if entry.ID == targetID {
			at = i
			break
		}
	}
	if from < to {
		at++
	}
	out := make(Snapshot, 0, len(s))
	out = append(out, rest[:at]...)
	out = append(out, dragged)
	out = append(out, rest[at:]...)
	return out
}
