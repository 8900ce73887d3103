package order

import "fmt"

// DragState is the state of the drag-session machine.
type DragState int

const (
	DragIdle DragState = iota
	DragDragging
	DragCommitting
	DragCancelled
)

func (s DragState) String() string {
	switch s {
	case DragIdle:
		return "idle"
	case DragDragging:
		return "dragging"
	case DragCommitting:
		return "committing"
	case DragCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("drag-state(%d)", int(s))
	}
}

// DragEventKind enumerates the pointer events the machine understands.
type DragEventKind int

const (
	DragStart DragEventKind = iota
	DragOver
	DragDrop
	DragEnd
)

func (k DragEventKind) String() string {
	switch k {
	case DragStart:
		return "start"
	case DragOver:
		return "over"
	case DragDrop:
		return "drop"
	case DragEnd:
		return "end"
	default:
		return fmt.Sprintf("drag-event(%d)", int(k))
	}
}

// DragEvent is one pointer event over the visible list. RowID is the row
// under the pointer, empty when the pointer is outside every row.
type DragEvent struct {
	Kind  DragEventKind
	RowID string
}

// CommitFunc receives the reorder intent of a completed drag.
type CommitFunc func(draggedID, targetID string) Result

// DragSession tracks at most one in-progress drag and turns it into a
// reorder intent. Committing and Cancelled are transient: the session is
// back in Idle, with ids and highlight cleared, whenever Handle returns.
type DragSession struct {
	state       DragState
	dragged     string
	hover       string
	highlighter Highlighter
	commit      CommitFunc
}

// NewDragSession wires a session to the list highlighter and the commit callback.
func NewDragSession(highlighter Highlighter, commit CommitFunc) *DragSession {
	return &DragSession{highlighter: highlighter, commit: commit}
}

// State returns the current state.
func (d *DragSession) State() DragState { return d.state }

// Dragged returns the id being dragged, empty when idle.
func (d *DragSession) Dragged() string { return d.dragged }

// Hover returns the current drop target, empty when none.
func (d *DragSession) Hover() string { return d.hover }

// Handle applies one event. The bool reports whether a commit ran, in which
// case Result carries its outcome.
func (d *DragSession) Handle(ev DragEvent) (Result, bool) {
	switch d.state {
	case DragIdle:
		if ev.Kind == DragStart && ev.RowID != "" {
			d.state = DragDragging
			d.dragged = ev.RowID
		}
		return Result{}, false
	case DragDragging:
		switch ev.Kind {
		case DragStart:
			// The release of the previous drag was lost; drop it and start over.
			d.cancel()
			if ev.RowID != "" {
				d.state = DragDragging
				d.dragged = ev.RowID
			}
			return Result{}, false
		case DragOver:
			d.over(ev.RowID)
			return Result{}, false
		case DragDrop:
			target := ev.RowID
			if target == "" {
				target = d.hover
			}
			if target == "" || target == d.dragged {
				d.cancel()
				return Result{}, false
			}
			return d.commitTo(target), true
		case DragEnd:
			d.cancel()
			return Result{}, false
		}
	}
	// Committing and Cancelled never survive a Handle call; reaching here
	// means the machine was left mid-transition, so reset it.
	d.reset()
	return Result{}, false
}

func (d *DragSession) over(id string) {
	if id == "" || id == d.dragged {
		d.hover = ""
		d.clearHighlight()
		return
	}
	if id == d.hover {
		return
	}
	d.hover = id
	if d.highlighter != nil {
		d.highlighter.Highlight(id)
	}
}

func (d *DragSession) commitTo(target string) Result {
	d.state = DragCommitting
	dragged := d.dragged
	d.hover = target
	defer d.reset()
	if d.commit == nil {
		return Result{Dragged: dragged, Target: target, Applied: AppliedNone, Reason: "no commit handler"}
	}
	return d.commit(dragged, target)
}

func (d *DragSession) cancel() {
	d.state = DragCancelled
	d.reset()
}

func (d *DragSession) reset() {
	d.dragged = ""
	d.hover = ""
	d.clearHighlight()
	d.state = DragIdle
}

func (d *DragSession) clearHighlight() {
	if d.highlighter != nil {
		d.highlighter.ClearHighlight()
	}
}
