package order

import "time"

// ChangeMode says what produced an order change.
type ChangeMode string

const (
	ChangeFull     ChangeMode = "full"
	ChangeViewOnly ChangeMode = "view-only"
	ChangeRebuild  ChangeMode = "rebuild"
)

// OrderChange is delivered to subscribers after every applied commit and
// every rebuild.
type OrderChange struct {
	Seq     uint64
	Mode    ChangeMode
	Entries Snapshot
	At      time.Time
	// Dragged and Target are set for commits.
	Dragged string
	Target  string
	// Trigger is set for rebuilds.
	Trigger string
}

// Persisted reports whether the stores reflect the change.
func (c OrderChange) Persisted() bool { return c.Mode != ChangeViewOnly }

type subscriber struct {
	id int
	fn func(OrderChange)
}

// notify hands the change to every subscriber on a later tick. A panicking
// subscriber is logged and does not affect the others.
func (e *Engine) notify(change OrderChange) {
	for _, sub := range append([]subscriber(nil), e.subscribers...) {
		entries := append(Snapshot(nil), change.Entries...)
		e.ctx.Scheduler.Defer(func() {
			defer func() {
				if r := recover(); r != nil {
					e.ctx.Logger.Error("order change subscriber %d panicked: %v", sub.id, r)
				}
			}()
			delivered := change
			delivered.Entries = entries
			sub.fn(delivered)
		})
	}
}
