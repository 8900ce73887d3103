// Package order keeps the visible layer list, the derived paint order and the
// two backing stores consistent with each other.
//
// An Engine is not safe for concurrent use. Every call, and every task it
// hands to its Scheduler, must run on the same loop.
package order

import "github.com/kingrea/layerdeck/internal/view"

// Engine is the facade the host drives: it resolves snapshots, commits
// reorders, runs drags and rebuilds, and announces order changes.
type Engine struct {
	ctx         Context
	resolver    *Resolver
	assigner    *Assigner
	verifier    *Verifier
	coordinator *Coordinator
	session     *DragSession

	lastCommitted  Snapshot
	lastReport     Report
	seq            uint64
	rebuildPending bool
	subscribers    []subscriber
	nextSub        int
}

// New validates ctx and builds an engine over it.
func New(ctx Context) (*Engine, error) {
	if err := ctx.validate(); err != nil {
		return nil, err
	}
	ctx = ctx.withDefaults()
	e := &Engine{ctx: ctx}
	e.resolver = NewResolver(ctx.Images, ctx.Annotations, ctx.Base)
	e.assigner = NewAssigner(ctx)
	e.verifier = NewVerifier(ctx, e.RequestRebuild)
	e.coordinator = NewCoordinator(ctx, e.resolver, e.assigner, e.verifier, e.RequestRebuild)
	e.session = NewDragSession(ctx.View, e.CommitReorder)
	return e, nil
}

// Base returns the paint index of the bottom entry.
func (e *Engine) Base() int { return e.ctx.Base }

// ResolveSnapshot resolves the current visible rows. It only reads.
func (e *Engine) ResolveSnapshot() Snapshot {
	return e.resolver.Resolve(e.ctx.View.Rows())
}

// CommitReorder moves dragged next to target and notifies subscribers when
// anything was applied.
func (e *Engine) CommitReorder(dragged, target string) Result {
	result := e.coordinator.Commit(dragged, target)
	switch result.Applied {
	case AppliedFull:
		e.lastCommitted = result.Order
		e.lastReport = result.Report
		e.publish(OrderChange{Mode: ChangeFull, Entries: result.Order, Dragged: dragged, Target: target})
	case AppliedViewOnly:
		e.lastReport = result.Report
		e.publish(OrderChange{Mode: ChangeViewOnly, Entries: result.Order, Dragged: dragged, Target: target})
	}
	return result
}

// HandleDrag feeds one pointer event to the drag session. The bool reports
// whether the event completed a drag and ran a commit.
func (e *Engine) HandleDrag(ev DragEvent) (Result, bool) {
	return e.session.Handle(ev)
}

// DragState returns the state of the drag session.
func (e *Engine) DragState() DragState { return e.session.State() }

// Dragging returns the id being dragged, empty when no drag is active.
func (e *Engine) Dragging() string { return e.session.Dragged() }

// ForceRebuild regenerates the visible rows from the stores and reapplies
// the paint order. Its findings are logged, never retried.
func (e *Engine) ForceRebuild() RebuildResult {
	return e.rebuild("forced")
}

// Reset replaces the visible rows wholesale and rebuilds with them as the
// hint instead of the last committed order: the rows decide how the kinds
// interleave, the stores still decide the order within a kind. Used at
// startup and when the document is reloaded from disk.
func (e *Engine) Reset(rows []view.Row, trigger string) RebuildResult {
	e.ctx.View.Replace(rows)
	e.lastCommitted = nil
	return e.rebuild(trigger)
}

// RequestRebuild schedules one rebuild on the next tick. Requests made while
// one is pending are folded into it.
func (e *Engine) RequestRebuild(trigger string) {
	if e.rebuildPending {
		return
	}
	e.rebuildPending = true
	e.ctx.Scheduler.Defer(func() {
		e.rebuildPending = false
		e.rebuild(trigger)
	})
}

// RebuildPending reports whether a deferred rebuild is queued.
func (e *Engine) RebuildPending() bool { return e.rebuildPending }

// Refresh re-derives the paint order of the current view without moving
// anything, typically after the canvas redrew or a surface came back.
func (e *Engine) Refresh() Report {
	snapshot := e.ResolveSnapshot()
	e.assigner.Assign(snapshot)
	e.lastReport = e.verifier.VerifyAndRecover(snapshot)
	return e.lastReport
}

// OnOrderChanged subscribes fn to order changes. The returned func removes it.
func (e *Engine) OnOrderChanged(fn func(OrderChange)) (unsubscribe func()) {
	if fn == nil {
		return func() {}
	}
	e.nextSub++
	id := e.nextSub
	e.subscribers = append(e.subscribers, subscriber{id: id, fn: fn})
	return func() {
		for i, sub := range e.subscribers {
			if sub.id == id {
				e.subscribers = append(e.subscribers[:i], e.subscribers[i+1:]...)
				return
			}
		}
	}
}

// LastReport returns the most recent verification report.
func (e *Engine) LastReport() Report { return e.lastReport }

// LastCommitted returns the snapshot of the last full commit or rebuild.
func (e *Engine) LastCommitted() Snapshot { return append(Snapshot(nil), e.lastCommitted...) }

// Seq returns the sequence number of the last published change.
func (e *Engine) Seq() uint64 { return e.seq }

func (e *Engine) rebuild(trigger string) RebuildResult {
	hint := e.lastCommitted.Rows()
	if len(hint) == 0 {
		hint = e.ctx.View.Rows()
	}
	rows := PlanRebuild(hint, e.ctx.Images.Images(), e.ctx.Annotations.Annotations())
	e.ctx.View.Replace(rows)

	result := RebuildResult{Trigger: trigger, Rows: rows}
	result.Order = e.ResolveSnapshot()
	result.Assign = e.assigner.Assign(result.Order)
	result.Report = e.verifier.Verify(result.Order)
	e.verifier.LogRebuildReport(result.Report)
	e.ctx.Recorder.ObserveRebuild(trigger, len(result.Report.Issues))
	e.ctx.Logger.Info("rebuilt order (%s): %d rows", trigger, len(rows))

	e.lastCommitted = result.Order
	e.lastReport = result.Report
	e.publish(OrderChange{Mode: ChangeRebuild, Entries: result.Order, Trigger: trigger})
	return result
}

func (e *Engine) publish(change OrderChange) {
	e.seq++
	change.Seq = e.seq
	change.At = e.ctx.Clock()
	e.notify(change)
}
