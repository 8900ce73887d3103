package order

import (
	"fmt"
	"time"

	"github.com/kingrea/layerdeck/internal/layer"
	"github.com/kingrea/layerdeck/internal/surface"
	"github.com/kingrea/layerdeck/internal/view"
)

// ImageAccessor is the read side of the image layer store.
type ImageAccessor interface {
	Images() []layer.ImageRecord
	Image(id string) (layer.ImageRecord, bool)
}

// AnnotationAccessor is the read side of the annotation store.
type AnnotationAccessor interface {
	Annotations() []layer.AnnotationRecord
	Annotation(id string) (layer.AnnotationRecord, bool)
}

// ImageStore adds the one write the engine performs: a set-preserving reorder.
type ImageStore interface {
	ImageAccessor
	ReorderImages(ids []string) error
}

// AnnotationStore adds the one write the engine performs: a set-preserving reorder.
type AnnotationStore interface {
	AnnotationAccessor
	ReorderAnnotations(ids []string) error
}

// Highlighter marks the current drop target in the visible list.
type Highlighter interface {
	Highlight(id string)
	ClearHighlight()
}

// View is the visible drag-and-drop list.
type View interface {
	Highlighter
	Rows() []view.Row
	Move(draggedID, targetID string, after bool) bool
	Replace(rows []view.Row)
}

// Surfaces exposes the rendering surfaces the assigner stamps paint indices on.
type Surfaces interface {
	ImageSurface(id string) (*surface.Node, bool)
	DrawingCanvas() (*surface.Node, bool)
	Element(annotationID string) (*surface.Node, bool)
	Proxy(annotationID string) (*surface.Node, bool)
	CreateProxy(annotationID string) (*surface.Node, error)
}

// Scheduler runs fire-and-forget work on a later tick of the same loop.
type Scheduler interface {
	Defer(task func())
}

// Logger is the levelled logger the engine writes diagnostics to.
type Logger interface {
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Recorder receives counters about engine activity.
type Recorder interface {
	ObserveCommit(mode Applied)
	ObserveRebuild(trigger string, issues int)
	ObserveVerification(issues int)
	ObserveSurfaceSkip(kind layer.Kind, reason string)
}

// Context is everything the engine needs from its host. It replaces any
// implicit reference to a shared host instance.
type Context struct {
	Images      ImageStore
	Annotations AnnotationStore
	View        View
	Surfaces    Surfaces
	Scheduler   Scheduler
	Logger      Logger
	Recorder    Recorder
	// Base is the paint index of the bottom entry. Values below 1 use DefaultBase.
	Base  int
	Clock func() time.Time
}

func (c Context) validate() error {
	switch {
	case c.Images == nil:
		return fmt.Errorf("order: image store is required")
	case c.Annotations == nil:
		return fmt.Errorf("order: annotation store is required")
	case c.View == nil:
		return fmt.Errorf("order: view is required")
	case c.Surfaces == nil:
		return fmt.Errorf("order: surfaces are required")
	case c.Scheduler == nil:
		return fmt.Errorf("order: scheduler is required")
	}
	return nil
}

func (c Context) withDefaults() Context {
	if c.Logger == nil {
		c.Logger = nopLogger{}
	}
	if c.Recorder == nil {
		c.Recorder = nopRecorder{}
	}
	if c.Base < 1 {
		c.Base = DefaultBase
	}
	if c.Clock == nil {
		c.Clock = func() time.Time { return time.Now().UTC() }
	}
	return c
}

type nopLogger struct{}

func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

type nopRecorder struct{}

func (nopRecorder) ObserveCommit(Applied)                 {}
func (nopRecorder) ObserveRebuild(string, int)            {}
func (nopRecorder) ObserveVerification(int)               {}
func (nopRecorder) ObserveSurfaceSkip(layer.Kind, string) {}
