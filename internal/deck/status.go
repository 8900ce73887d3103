package deck

import (
	"context"

	"github.com/kingrea/layerdeck/internal/order"
	"github.com/kingrea/layerdeck/internal/surface"
)

// Painted is one stackable surface as the scene paints it.
type Painted struct {
	ID     string
	Kind   surface.NodeKind
	ZIndex int
	HasZ   bool
}

// Status is a consistent read of everything the UI shows.
type Status struct {
	Snapshot       order.Snapshot
	Highlight      string
	Dragging       string
	DragState      order.DragState
	Report         order.Report
	Seq            uint64
	Base           int
	RebuildPending bool
	// Paint lists surfaces top first.
	Paint []Painted
}

// Status reads the workspace state in one loop turn.
func (w *Workspace) Status(ctx context.Context) (Status, error) {
	var st Status
	err := w.loop.Do(ctx, func() {
		st = Status{
			Snapshot:       w.engine.ResolveSnapshot(),
			Highlight:      w.list.Highlighted(),
			Dragging:       w.engine.Dragging(),
			DragState:      w.engine.DragState(),
			Report:         w.engine.LastReport(),
			Seq:            w.engine.Seq(),
			Base:           w.engine.Base(),
			RebuildPending: w.engine.RebuildPending(),
		}
		nodes := w.scene.PaintOrder()
		st.Paint = make([]Painted, 0, len(nodes))
		for i := len(nodes) - 1; i >= 0; i-- {
			z, ok := nodes[i].ZIndex()
			st.Paint = append(st.Paint, Painted{ID: nodes[i].ID(), Kind: nodes[i].Kind(), ZIndex: z, HasZ: ok})
		}
	})
	return st, err
}
