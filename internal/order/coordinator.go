package order

import (
	"fmt"

	"github.com/kingrea/layerdeck/internal/layer"
)

// Applied reports how far a reorder commit got.
type Applied string

const (
	// AppliedNone means nothing changed.
	AppliedNone Applied = "none"
	// AppliedFull means both stores and the view were reordered.
	AppliedFull Applied = "full"
	// AppliedViewOnly means only the view moved; the stores are untouched and
	// a resync has been requested.
	AppliedViewOnly Applied = "view-only"
)

// Result is the outcome of one reorder commit.
type Result struct {
	Dragged string
	Target  string
	Applied Applied
	// Reason explains a degraded or skipped commit.
	Reason string
	// Err is the write fault that degraded the commit, if any.
	Err    error
	Order  Snapshot
	Assign AssignReport
	Report Report
}

// Coordinator performs a single reorder: it writes the stores when both ends
// of the drag resolve and falls back to a view-only move when they do not.
type Coordinator struct {
	resolver    *Resolver
	images      ImageStore
	annotations AnnotationStore
	view        View
	assigner    *Assigner
	verifier    *Verifier
	logger      Logger
	recorder    Recorder
	resync      func(trigger string)
}

// NewCoordinator wires a coordinator from an engine context. resync is
// called whenever the commit leaves the view ahead of the stores.
func NewCoordinator(ctx Context, resolver *Resolver, assigner *Assigner, verifier *Verifier, resync func(trigger string)) *Coordinator {
	ctx = ctx.withDefaults()
	if resync == nil {
		resync = func(string) {}
	}
	return &Coordinator{
		resolver:    resolver,
		images:      ctx.Images,
		annotations: ctx.Annotations,
		view:        ctx.View,
		assigner:    assigner,
		verifier:    verifier,
		logger:      ctx.Logger,
		recorder:    ctx.Recorder,
		resync:      resync,
	}
}

// Commit moves dragged next to target. It never panics and never returns an
// error; faults are folded into the Result.
//
// An id that is absent from the visible list yields AppliedNone, not
// AppliedViewOnly: nothing is moved and a rebuild is requested with the
// "missing-row" trigger. AppliedViewOnly is reserved for rows that are
// visible but do not resolve to a store record, or for store writes that fail.
func (c *Coordinator) Commit(dragged, target string) Result {
	result := Result{Dragged: dragged, Target: target, Applied: AppliedNone}
	if dragged == "" || target == "" {
		result.Reason = "empty id"
		return result
	}
	if dragged == target {
		result.Reason = "dropped on itself"
		return result
	}

	snapshot := c.resolver.Resolve(c.view.Rows())
	from := indexOf(snapshot, dragged)
	to := indexOf(snapshot, target)
	if from < 0 || to < 0 {
		result.Reason = "id not in the visible list"
		c.logger.Warn("reorder %s -> %s skipped: %s", dragged, target, result.Reason)
		c.resync("missing-row")
		return result
	}
	after := from < to

	switch {
	case snapshot[from].Placeholder() || snapshot[to].Placeholder():
		c.degrade(&result, after, "unresolved id", nil)
	default:
		next := move(snapshot, from, to)
		if err := c.writeStores(next); err != nil {
			c.degrade(&result, after, "store write failed", err)
			break
		}
		c.view.Move(dragged, target, after)
		result.Applied = AppliedFull
	}

	result.Order = c.resolver.Resolve(c.view.Rows())
	result.Assign = c.assigner.Assign(result.Order)
	if result.Applied == AppliedFull {
		result.Report = c.verifier.VerifyAndRecover(result.Order)
	} else {
		// A resync is already pending for degraded commits.
		result.Report = c.verifier.Verify(result.Order)
	}
	c.recorder.ObserveCommit(result.Applied)
	return result
}

func (c *Coordinator) degrade(result *Result, after bool, reason string, err error) {
	result.Applied = AppliedViewOnly
	result.Reason = reason
	result.Err = err
	if err != nil {
		c.logger.Error("reorder %s -> %s degraded: %v", result.Dragged, result.Target, err)
	} else {
		c.logger.Warn("reorder %s -> %s degraded: %s", result.Dragged, result.Target, reason)
	}
	c.view.Move(result.Dragged, result.Target, after)
	c.resync("degraded")
}

// writeStores reorders both stores to the relative order of next. When the
// second write fails the first store is put back so the two never disagree
// about which commit they reflect.
func (c *Coordinator) writeStores(next Snapshot) error {
	imageIDs := next.IDsOfKind(layer.KindImage)
	annotationIDs := next.IDsOfKind(layer.KindAnnotation)
	previous := recordIDs(c.images.Images())

	if err := c.images.ReorderImages(imageIDs); err != nil {
		return fmt.Errorf("order: reorder images: %w", err)
	}
	if err := c.annotations.ReorderAnnotations(annotationIDs); err != nil {
		if rbErr := c.images.ReorderImages(previous); rbErr != nil {
			c.logger.Error("rollback of image order failed: %v", rbErr)
		}
		return fmt.Errorf("order: reorder annotations: %w", err)
	}
	return nil
}

func indexOf(s Snapshot, id string) int {
	for i, entry := range s {
		if entry.ID == id {
			return i
		}
	}
	return -1
}

func recordIDs(records []layer.ImageRecord) []string {
	out := make([]string, len(records))
	for i, rec := range records {
		out[i] = rec.ID
	}
	return out
}
