package order

import (
	"errors"

	"github.com/kingrea/layerdeck/internal/layer"
	"github.com/kingrea/layerdeck/internal/surface"
)

var errNoElement = errors.New("no annotation element")

// Skip records an entry the assigner could not stamp.
type Skip struct {
	ID     string
	Kind   layer.Kind
	Reason string
}

// AssignReport summarizes one assignment pass.
type AssignReport struct {
	Applied        int
	Skipped        []Skip
	ProxiesCreated int
	Readopted      int
	FramesSynced   int
}

// Assigner stamps the derived paint index onto each entry's surface. Image
// entries use their own surface; each annotation is lifted out of the shared
// canvas into a proxy container of its own so it can stack independently.
type Assigner struct {
	surfaces Surfaces
	base     int
	logger   Logger
	recorder Recorder
}

// NewAssigner builds an assigner from an engine context.
func NewAssigner(ctx Context) *Assigner {
	ctx = ctx.withDefaults()
	return &Assigner{surfaces: ctx.Surfaces, base: ctx.Base, logger: ctx.Logger, recorder: ctx.Recorder}
}

// CanvasZIndex is the paint index of the shared drawing canvas, just below
// every entry.
func (a *Assigner) CanvasZIndex() int { return a.base - 1 }

// Assign stamps every entry of s. Entries whose surface is missing are
// logged and skipped; the rest of the pass continues.
func (a *Assigner) Assign(s Snapshot) AssignReport {
	var report AssignReport
	if canvas, ok := a.surfaces.DrawingCanvas(); ok {
		canvas.SetZIndex(a.CanvasZIndex())
	}
	for _, entry := range s {
		if entry.Placeholder() {
			a.skip(&report, entry, "unresolved")
			continue
		}
		switch entry.Kind {
		case layer.KindImage:
			node, ok := a.surfaces.ImageSurface(entry.ID)
			if !ok {
				a.skip(&report, entry, "no image surface")
				continue
			}
			node.SetZIndex(entry.ZIndex)
			report.Applied++
		case layer.KindAnnotation:
			if err := a.promote(entry, &report); err != nil {
				a.skip(&report, entry, err.Error())
				continue
			}
			report.Applied++
		default:
			a.skip(&report, entry, "unknown kind")
		}
	}
	return report
}

// promote makes sure the annotation lives in its own proxy, in the same
// screen position it had in the canvas, and stamps the proxy.
func (a *Assigner) promote(entry Entry, report *AssignReport) error {
	canvas, ok := a.surfaces.DrawingCanvas()
	if !ok {
		return surface.ErrNoCanvas
	}
	element, ok := a.surfaces.Element(entry.ID)
	if !ok {
		return errNoElement
	}
	proxy, existed := a.surfaces.Proxy(entry.ID)
	if !existed {
		created, err := a.surfaces.CreateProxy(entry.ID)
		if err != nil {
			return err
		}
		proxy = created
		proxy.SetFrame(canvas.Frame())
		report.ProxiesCreated++
	} else if proxy.Frame() != canvas.Frame() {
		proxy.SetFrame(canvas.Frame())
		report.FramesSynced++
	}

	if element.Parent() != proxy {
		// A detached element is measured against the canvas it was drawn in.
		before, err := element.ScreenBounds()
		if err != nil {
			before = canvas.Frame().ToScreen(element.Shape())
		}
		if err := proxy.Append(element); err != nil {
			return err
		}
		after, err := element.ScreenBounds()
		if err != nil {
			return err
		}
		if after != before {
			a.logger.Warn("annotation %s moved from %v to %v when adopted", entry.ID, before, after)
		}
		if existed {
			report.Readopted++
		}
	}
	proxy.SetZIndex(entry.ZIndex)
	return nil
}

func (a *Assigner) skip(report *AssignReport, entry Entry, reason string) {
	report.Skipped = append(report.Skipped, Skip{ID: entry.ID, Kind: entry.Kind, Reason: reason})
	a.logger.Warn("paint index for %s %s skipped: %s", entry.Kind, entry.ID, reason)
	a.recorder.ObserveSurfaceSkip(entry.Kind, reason)
}

var _ Surfaces = (*surface.Scene)(nil)
