package order

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/kingrea/layerdeck/internal/eventloop"
	"github.com/kingrea/layerdeck/internal/layer"
	"github.com/kingrea/layerdeck/internal/surface"
	"github.com/kingrea/layerdeck/internal/view"
)

var fixedClock = func() time.Time { return time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC) }

type captureLogger struct {
	mu    sync.Mutex
	lines []string
}

func (l *captureLogger) add(level, format string, args ...any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.lines = append(l.lines, level+" "+fmt.Sprintf(format, args...))
}

func (l *captureLogger) Info(format string, args ...any)  { l.add("INFO", format, args...) }
func (l *captureLogger) Warn(format string, args ...any)  { l.add("WARN", format, args...) }
func (l *captureLogger) Error(format string, args ...any) { l.add("ERROR", format, args...) }

type countingRecorder struct {
	commits      map[Applied]int
	rebuilds     map[string]int
	verifyIssues int
	skips        int
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{commits: map[Applied]int{}, rebuilds: map[string]int{}}
}

func (r *countingRecorder) ObserveCommit(mode Applied)                { r.commits[mode]++ }
func (r *countingRecorder) ObserveRebuild(trigger string, issues int) { r.rebuilds[trigger]++ }
func (r *countingRecorder) ObserveVerification(issues int)            { r.verifyIssues += issues }
func (r *countingRecorder) ObserveSurfaceSkip(layer.Kind, string)     { r.skips++ }

// failingAnnotations rejects every reorder.
type failingAnnotations struct {
	*layer.AnnotationCollection
	err error
}

func (f failingAnnotations) ReorderAnnotations([]string) error { return f.err }

type harness struct {
	images      *layer.ImageCollection
	annotations *layer.AnnotationCollection
	list        *view.List
	scene       *surface.Scene
	queue       *eventloop.Queue
	logger      *captureLogger
	recorder    *countingRecorder
	engine      *Engine
}

type harnessOption func(*harness, *Context)

func withFailingAnnotations(err error) harnessOption {
	return func(h *harness, c *Context) {
		c.Annotations = failingAnnotations{AnnotationCollection: h.annotations, err: err}
	}
}

func canvasFrame() surface.Frame {
	return surface.Frame{
		Screen:    layer.Rect{X: 20, Y: 40, W: 800, H: 600},
		ViewBox:   layer.Rect{X: 0, Y: 0, W: 400, H: 300},
		Transform: surface.Translate(10, 5),
	}
}

func img(id string) layer.ImageRecord {
	return layer.ImageRecord{ID: id, Name: "Image " + id, Visible: true, Opacity: 1, Bounds: layer.Rect{W: 800, H: 600}}
}

func ann(id string) layer.AnnotationRecord {
	return layer.AnnotationRecord{
		ID:       id,
		Label:    "Note " + id,
		Shape:    layer.ShapeRect,
		Geometry: layer.Rect{X: 12, Y: 8, W: 40, H: 20},
		Visible:  true,
	}
}

func imageRow(id string) view.Row {
	return view.Row{ID: id, Kind: layer.KindImage, Label: "Image " + id}
}

func annotationRow(id string) view.Row {
	return view.Row{ID: id, Kind: layer.KindAnnotation, Label: "Note " + id}
}

func newHarness(t *testing.T, images []layer.ImageRecord, annotations []layer.AnnotationRecord, rows []view.Row, opts ...harnessOption) *harness {
	t.Helper()
	imageStore, err := layer.NewImageCollection(images...)
	require.NoError(t, err)
	annotationStore, err := layer.NewAnnotationCollection(annotations...)
	require.NoError(t, err)

	scene := surface.NewScene()
	scene.MountCanvas(canvasFrame())
	require.NoError(t, scene.Sync(images, annotations))

	h := &harness{
		images:      imageStore,
		annotations: annotationStore,
		list:        view.NewList(rows...),
		scene:       scene,
		queue:       eventloop.NewQueue(nil),
		logger:      &captureLogger{},
		recorder:    newCountingRecorder(),
	}
	ctx := Context{
		Images:      imageStore,
		Annotations: annotationStore,
		View:        h.list,
		Surfaces:    scene,
		Scheduler:   h.queue,
		Logger:      h.logger,
		Recorder:    h.recorder,
		Clock:       fixedClock,
	}
	for _, opt := range opts {
		opt(h, &ctx)
	}
	h.engine, err = New(ctx)
	require.NoError(t, err)
	return h
}

func (h *harness) rowIDs() []string {
	var out []string
	for _, row := range h.list.Rows() {
		out = append(out, row.ID)
	}
	return out
}

func (h *harness) appliedZ(t *testing.T, id string) int {
	t.Helper()
	if node, ok := h.scene.ImageSurface(id); ok {
		z, set := node.ZIndex()
		require.True(t, set, "image %s has no paint index", id)
		return z
	}
	proxy, ok := h.scene.Proxy(id)
	require.True(t, ok, "no surface for %s", id)
	z, set := proxy.ZIndex()
	require.True(t, set, "proxy %s has no paint index", id)
	return z
}

func zIndices(s Snapshot) []int {
	out := make([]int, len(s))
	for i, entry := range s {
		out[i] = entry.ZIndex
	}
	return out
}
