// Package deck assembles a workspace: the two record stores, the rendering
// scene, the visible list and the order engine, all driven from one event
// loop. Every exported method is safe to call from any goroutine; the work
// itself runs on the loop.
package deck

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kingrea/layerdeck/internal/config"
	"github.com/kingrea/layerdeck/internal/document"
	"github.com/kingrea/layerdeck/internal/eventloop"
	"github.com/kingrea/layerdeck/internal/layer"
	"github.com/kingrea/layerdeck/internal/order"
	"github.com/kingrea/layerdeck/internal/surface"
	"github.com/kingrea/layerdeck/internal/view"
)

// Rebuild triggers raised by the workspace itself.
const (
	TriggerStartup = "startup"
	TriggerReload  = "reload"
)

// Logger is what the workspace logs through. *logbook.Logbook satisfies it.
type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
	Printf(format string, args ...any)
}

// Journal stores applied order changes.
type Journal interface {
	Record(ctx context.Context, change order.OrderChange) error
}

// Publisher fans order changes out to remote observers.
type Publisher interface {
	PublishOrderChange(change order.OrderChange) error
}

// Options configures Open.
type Options struct {
	DocumentPath string
	Base         int
	Autosave     bool
	Watch        bool
	Debounce     time.Duration
	Logger       Logger
	Recorder     order.Recorder
	Journal      Journal
	Publisher    Publisher
	Clock        func() time.Time
}

// OptionsFromConfig maps the project config onto workspace options.
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		DocumentPath: cfg.DocumentPath(),
		Base:         cfg.ZIndexBase(),
		Autosave:     true,
		Watch:        cfg.WatchEnabled(),
		Debounce:     time.Duration(cfg.WatchDebounceMS()) * time.Millisecond,
	}
}

// Workspace owns one document's state.
type Workspace struct {
	opts        Options
	log         Logger
	loop        *eventloop.Loop
	images      *layer.ImageCollection
	annotations *layer.AnnotationCollection
	scene       *surface.Scene
	list        *view.List
	engine      *order.Engine
	canvas      surface.Frame
	watcher     *document.Watcher
	saved       string
	saveErr     error
}

// Open loads the document (a missing one starts empty) and assembles the
// workspace. Nothing runs until Run is called.
func Open(opts Options) (*Workspace, error) {
	if opts.DocumentPath == "" {
		return nil, errors.New("deck: document path is required")
	}
	log := opts.Logger
	if log == nil {
		log = nopLogger{}
	}
	doc, hash, err := document.Load(opts.DocumentPath)
	switch {
	case errors.Is(err, document.ErrNotFound):
		log.Info("document %s not found; starting empty", opts.DocumentPath)
		doc = &document.Document{Version: document.CurrentVersion}
	case err != nil:
		return nil, err
	}
	rows, err := doc.Rows()
	if err != nil {
		return nil, err
	}
	images, err := layer.NewImageCollection(doc.Images...)
	if err != nil {
		return nil, fmt.Errorf("deck: load images: %w", err)
	}
	annotations, err := layer.NewAnnotationCollection(doc.Annotations...)
	if err != nil {
		return nil, fmt.Errorf("deck: load annotations: %w", err)
	}

	w := &Workspace{
		opts:        opts,
		log:         log,
		loop:        eventloop.New(eventloop.WithLogger(log)),
		images:      images,
		annotations: annotations,
		scene:       surface.NewScene(),
		list:        view.NewList(),
		canvas:      defaultCanvas(),
		saved:       hash,
	}
	if doc.Canvas != nil {
		w.canvas = *doc.Canvas
	}
	w.scene.MountCanvas(w.canvas)
	if err := w.scene.Sync(images.Images(), annotations.Annotations()); err != nil {
		return nil, fmt.Errorf("deck: build scene: %w", err)
	}
	w.engine, err = order.New(order.Context{
		Images:      images,
		Annotations: annotations,
		View:        w.list,
		Surfaces:    w.scene,
		Scheduler:   w.loop,
		Logger:      log,
		Recorder:    opts.Recorder,
		Base:        opts.Base,
		Clock:       opts.Clock,
	})
	if err != nil {
		return nil, err
	}
	w.engine.OnOrderChanged(w.afterChange)
	if err := w.loop.Post(func() { w.engine.Reset(rows, TriggerStartup) }); err != nil {
		return nil, err
	}
	return w, nil
}

func defaultCanvas() surface.Frame {
	return surface.Frame{Transform: surface.Identity()}
}

// Run drives the loop until ctx is cancelled. The first turn rebuilds the
// order from the loaded document; calls made before Run wait for it.
func (w *Workspace) Run(ctx context.Context) error {
	if w.opts.Watch {
		watcher, err := document.NewWatcher(w.opts.DocumentPath, w.onDiskChange,
			document.WithDebounce(w.opts.Debounce), document.WithLogger(w.log))
		if err != nil {
			return err
		}
		watcher.Remember(w.saved)
		if err := watcher.Start(ctx); err != nil {
			return err
		}
		w.watcher = watcher
		defer watcher.Stop()
	}
	err := w.loop.Run(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// Do runs fn on the loop with direct access to the engine and waits for it.
func (w *Workspace) Do(ctx context.Context, fn func(*order.Engine)) error {
	return w.loop.Do(ctx, func() { fn(w.engine) })
}

// Flush waits for every deferred task (rebuilds, notifications) to finish.
func (w *Workspace) Flush(ctx context.Context) error {
	return w.loop.Flush(ctx)
}

// OnOrderChanged subscribes fn; it is called on the loop goroutine.
func (w *Workspace) OnOrderChanged(ctx context.Context, fn func(order.OrderChange)) (func(), error) {
	var unsubscribe func()
	err := w.loop.Do(ctx, func() { unsubscribe = w.engine.OnOrderChanged(fn) })
	if err != nil {
		return func() {}, err
	}
	return func() {
		_ = w.loop.Post(unsubscribe)
	}, nil
}

// Snapshot resolves the current visible order.
func (w *Workspace) Snapshot(ctx context.Context) (order.Snapshot, error) {
	var s order.Snapshot
	err := w.loop.Do(ctx, func() { s = w.engine.ResolveSnapshot() })
	return s, err
}

// CurrentOrder satisfies eventbridge.OrderSource.
func (w *Workspace) CurrentOrder(ctx context.Context) (order.Snapshot, int, error) {
	var (
		s    order.Snapshot
		base int
	)
	err := w.loop.Do(ctx, func() {
		s = w.engine.ResolveSnapshot()
		base = w.engine.Base()
	})
	return s, base, err
}

// Move commits dragged next to target, as a completed drag would.
func (w *Workspace) Move(ctx context.Context, dragged, target string) (order.Result, error) {
	var result order.Result
	err := w.loop.Do(ctx, func() { result = w.engine.CommitReorder(dragged, target) })
	return result, err
}

// Drag feeds one pointer event to the drag session.
func (w *Workspace) Drag(ctx context.Context, ev order.DragEvent) (order.Result, bool, error) {
	var (
		result    order.Result
		committed bool
	)
	err := w.loop.Do(ctx, func() { result, committed = w.engine.HandleDrag(ev) })
	return result, committed, err
}

// Rebuild forces a rebuild from the stores.
func (w *Workspace) Rebuild(ctx context.Context) (order.RebuildResult, error) {
	var result order.RebuildResult
	err := w.loop.Do(ctx, func() { result = w.engine.ForceRebuild() })
	return result, err
}

// Save writes the current state to the document.
func (w *Workspace) Save(ctx context.Context) error {
	var err error
	if doErr := w.loop.Do(ctx, func() { err = w.save() }); doErr != nil {
		return doErr
	}
	return err
}

// LastSaveError returns the error of the most recent autosave, if any.
func (w *Workspace) LastSaveError(ctx context.Context) error {
	var err error
	if doErr := w.loop.Do(ctx, func() { err = w.saveErr }); doErr != nil {
		return doErr
	}
	return err
}

func (w *Workspace) afterChange(change order.OrderChange) {
	if w.opts.Journal != nil {
		if err := w.opts.Journal.Record(context.Background(), change); err != nil {
			w.log.Warn("journal: %v", err)
		}
	}
	if w.opts.Publisher != nil {
		if err := w.opts.Publisher.PublishOrderChange(change); err != nil {
			w.log.Warn("publish order change %d: %v", change.Seq, err)
		}
	}
	if !w.opts.Autosave || !change.Persisted() {
		return
	}
	if change.Trigger == TriggerStartup || change.Trigger == TriggerReload {
		return
	}
	w.saveErr = w.save()
	if w.saveErr != nil {
		w.log.Error("autosave: %v", w.saveErr)
	}
}

func (w *Workspace) save() error {
	canvas := w.canvas
	doc := document.New(&canvas, w.images.Images(), w.annotations.Annotations(), w.list.Rows())
	data, err := doc.Marshal()
	if err != nil {
		return err
	}
	hash := document.Hash(data)
	if hash == w.saved {
		return nil
	}
	if w.watcher != nil {
		w.watcher.Remember(hash)
	}
	if err := document.WriteAtomic(w.opts.DocumentPath, data); err != nil {
		return err
	}
	w.saved = hash
	w.log.Debug("saved %s (%d images, %d annotations)", w.opts.DocumentPath, len(doc.Images), len(doc.Annotations))
	return nil
}

func (w *Workspace) onDiskChange(doc *document.Document, hash string) {
	err := w.loop.Post(func() { w.reload(doc, hash) })
	if err != nil && !errors.Is(err, eventloop.ErrStopped) {
		w.log.Warn("reload: %v", err)
	}
}

// reload swaps in a document edited by another process.
func (w *Workspace) reload(doc *document.Document, hash string) {
	rows, err := doc.Rows()
	if err != nil {
		w.log.Warn("reload rejected: %v", err)
		return
	}
	if err := w.images.Replace(doc.Images); err != nil {
		w.log.Warn("reload images: %v", err)
		return
	}
	if err := w.annotations.Replace(doc.Annotations); err != nil {
		w.log.Warn("reload annotations: %v", err)
		return
	}
	if doc.Canvas != nil {
		w.canvas = *doc.Canvas
		w.scene.MountCanvas(w.canvas)
	}
	if err := w.scene.Sync(w.images.Images(), w.annotations.Annotations()); err != nil {
		w.log.Warn("reload scene: %v", err)
	}
	w.saved = hash
	w.log.Info("document changed on disk; reloading")
	w.engine.Reset(rows, TriggerReload)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any)  {}
func (nopLogger) Info(string, ...any)   {}
func (nopLogger) Warn(string, ...any)   {}
func (nopLogger) Error(string, ...any)  {}
func (nopLogger) Printf(string, ...any) {}
