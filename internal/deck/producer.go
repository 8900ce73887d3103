package deck

import (
	"context"
	"errors"

	"github.com/kingrea/layerdeck/internal/layer"
	"github.com/kingrea/layerdeck/internal/surface"
)

// The producer methods below satisfy eventbridge.Producer. Each mutation is
// applied to the store and the scene on the loop, then a rebuild is requested
// so the visible list picks the change up. Adding an id that already exists
// or removing one that does not is treated as already applied.

// AddImage inserts an image record at index (negative appends).
func (w *Workspace) AddImage(ctx context.Context, rec layer.ImageRecord, index int) error {
	var err error
	doErr := w.loop.Do(ctx, func() {
		if err = w.images.Insert(rec, index); err != nil {
			if errors.Is(err, layer.ErrDuplicateRecord) {
				w.log.Debug("image %s already present", rec.ID)
				err = nil
			}
			return
		}
		w.scene.AddImage(rec.ID, rec.Bounds)
		w.engine.RequestRebuild("image.added")
	})
	if doErr != nil {
		return doErr
	}
	return err
}

// RemoveImage deletes an image record and its surface.
func (w *Workspace) RemoveImage(ctx context.Context, id string) error {
	var err error
	doErr := w.loop.Do(ctx, func() {
		if err = w.images.Remove(id); err != nil {
			if errors.Is(err, layer.ErrUnknownRecord) {
				w.log.Debug("image %s already removed", id)
				err = nil
			}
			return
		}
		w.scene.RemoveImage(id)
		w.engine.RequestRebuild("image.removed")
	})
	if doErr != nil {
		return doErr
	}
	return err
}

// AddAnnotation inserts an annotation record at index and draws it into the
// canvas.
func (w *Workspace) AddAnnotation(ctx context.Context, rec layer.AnnotationRecord, index int) error {
	var err error
	doErr := w.loop.Do(ctx, func() {
		if err = w.annotations.Insert(rec, index); err != nil {
			if errors.Is(err, layer.ErrDuplicateRecord) {
				w.log.Debug("annotation %s already present", rec.ID)
				err = nil
			}
			return
		}
		if _, drawErr := w.scene.Draw(rec.ID, rec.Extent()); drawErr != nil {
			w.log.Warn("draw annotation %s: %v", rec.ID, drawErr)
		}
		w.engine.RequestRebuild("annotation.added")
	})
	if doErr != nil {
		return doErr
	}
	return err
}

// RemoveAnnotation deletes an annotation record, its element and its proxy.
func (w *Workspace) RemoveAnnotation(ctx context.Context, id string) error {
	var err error
	doErr := w.loop.Do(ctx, func() {
		if err = w.annotations.Remove(id); err != nil {
			if errors.Is(err, layer.ErrUnknownRecord) {
				w.log.Debug("annotation %s already removed", id)
				err = nil
			}
			return
		}
		w.scene.Erase(id)
		w.engine.RequestRebuild("annotation.removed")
	})
	if doErr != nil {
		return doErr
	}
	return err
}

// RedrawCanvas runs the canvas' own render pass, which pulls every element
// back into the canvas, then re-derives the paint order so lifted
// annotations are re-adopted by their proxies. A nil frame keeps the
// current canvas geometry.
func (w *Workspace) RedrawCanvas(ctx context.Context, frame *surface.Frame) error {
	var err error
	doErr := w.loop.Do(ctx, func() {
		moved := false
		if frame != nil && *frame != w.canvas {
			w.canvas = *frame
			w.scene.MountCanvas(w.canvas)
			moved = true
		}
		if err = w.scene.Redraw(w.annotations.Annotations()); err != nil {
			return
		}
		report := w.engine.Refresh()
		if !report.OK() {
			w.log.Warn("canvas redraw left %d issue(s)", len(report.Issues))
		}
		if moved && w.opts.Autosave {
			if w.saveErr = w.save(); w.saveErr != nil {
				w.log.Error("autosave: %v", w.saveErr)
			}
		}
	})
	if doErr != nil {
		return doErr
	}
	return err
}
