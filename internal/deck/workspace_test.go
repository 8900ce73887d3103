package deck

import (
	"context"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingrea/layerdeck/internal/document"
	"github.com/kingrea/layerdeck/internal/layer"
	"github.com/kingrea/layerdeck/internal/order"
	"github.com/kingrea/layerdeck/internal/surface"
	"github.com/kingrea/layerdeck/internal/view"
)

type memoryJournal struct {
	mu      sync.Mutex
	changes []order.OrderChange
}

func (j *memoryJournal) Record(_ context.Context, change order.OrderChange) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.changes = append(j.changes, change)
	return nil
}

func (j *memoryJournal) modes() []order.ChangeMode {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]order.ChangeMode, len(j.changes))
	for i, c := range j.changes {
		out[i] = c.Mode
	}
	return out
}

type memoryPublisher struct {
	mu   sync.Mutex
	seqs []uint64
}

func (p *memoryPublisher) PublishOrderChange(change order.OrderChange) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.seqs = append(p.seqs, change.Seq)
	return nil
}

func canvas() *surface.Frame {
	return &surface.Frame{
		Screen:    layer.Rect{W: 800, H: 600},
		ViewBox:   layer.Rect{W: 800, H: 600},
		Transform: surface.Identity(),
	}
}

func img(id string) layer.ImageRecord {
	return layer.ImageRecord{ID: id, Name: "Image " + id, Visible: true, Bounds: layer.Rect{W: 800, H: 600}}
}

func ann(id string) layer.AnnotationRecord {
	return layer.AnnotationRecord{ID: id, Label: "Note " + id, Shape: layer.ShapeRect, Geometry: layer.Rect{X: 10, Y: 10, W: 30, H: 20}, Visible: true}
}

// writeDocument seeds a document with a1 above img-1 above img-2.
func writeDocument(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "layers.yaml")
	doc := document.New(canvas(),
		[]layer.ImageRecord{img("img-1"), img("img-2")},
		[]layer.AnnotationRecord{ann("a1")},
		[]view.Row{
			{ID: "a1", Kind: layer.KindAnnotation},
			{ID: "img-1", Kind: layer.KindImage},
			{ID: "img-2", Kind: layer.KindImage},
		})
	_, err := document.Save(path, doc)
	require.NoError(t, err)
	return path
}

func startWorkspace(t *testing.T, opts Options) *Workspace {
	t.Helper()
	ws, err := Open(opts)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ws.Run(ctx) }()
	t.Cleanup(func() {
		cancel()
		require.NoError(t, <-done)
	})
	return ws
}

func TestStartupResolvesDocumentOrder(t *testing.T) {
	path := writeDocument(t, t.TempDir())
	ws := startWorkspace(t, Options{DocumentPath: path})
	ctx := context.Background()

	snapshot, base, err := ws.CurrentOrder(ctx)
	require.NoError(t, err)
	assert.Equal(t, order.DefaultBase, base)
	assert.Equal(t, []string{"a1", "img-1", "img-2"}, snapshot.IDs())
	assert.Equal(t, []int{102, 101, 100}, []int{snapshot[0].ZIndex, snapshot[1].ZIndex, snapshot[2].ZIndex})

	st, err := ws.Status(ctx)
	require.NoError(t, err)
	require.True(t, st.Report.OK(), "issues: %v", st.Report.Issues)
	require.NotEmpty(t, st.Paint)
	assert.Equal(t, surface.ProxyID("a1"), st.Paint[0].ID)
	assert.Equal(t, 102, st.Paint[0].ZIndex)
}

func TestMoveAutosavesAndJournals(t *testing.T) {
	path := writeDocument(t, t.TempDir())
	journal := &memoryJournal{}
	publisher := &memoryPublisher{}
	ws := startWorkspace(t, Options{DocumentPath: path, Autosave: true, Journal: journal, Publisher: publisher})
	ctx := context.Background()

	result, err := ws.Move(ctx, "img-2", "a1")
	require.NoError(t, err)
	require.Equal(t, order.AppliedFull, result.Applied)
	require.NoError(t, ws.Flush(ctx))
	require.NoError(t, ws.LastSaveError(ctx))

	saved, _, err := document.Load(path)
	require.NoError(t, err)
	rows, err := saved.Rows()
	require.NoError(t, err)
	assert.Equal(t, []string{"img-2", "a1", "img-1"}, []string{rows[0].ID, rows[1].ID, rows[2].ID})
	assert.Equal(t, "img-2", saved.Images[0].ID, "store order follows the commit")

	assert.Equal(t, []order.ChangeMode{order.ChangeRebuild, order.ChangeFull}, journal.modes())
	publisher.mu.Lock()
	assert.Equal(t, []uint64{1, 2}, publisher.seqs)
	publisher.mu.Unlock()
}

func TestDegradedCommitIsSavedOnlyThroughItsRebuild(t *testing.T) {
	path := writeDocument(t, t.TempDir())
	journal := &memoryJournal{}
	ws := startWorkspace(t, Options{DocumentPath: path, Autosave: true, Journal: journal})
	ctx := context.Background()

	// Drop a1 behind the view's back so its row no longer resolves.
	require.NoError(t, ws.annotations.Remove("a1"))
	result, err := ws.Move(ctx, "a1", "img-2")
	require.NoError(t, err)
	assert.Equal(t, order.AppliedViewOnly, result.Applied)
	require.NoError(t, ws.Flush(ctx))

	assert.Equal(t, []order.ChangeMode{order.ChangeRebuild, order.ChangeViewOnly, order.ChangeRebuild}, journal.modes())
	snapshot, err := ws.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"img-1", "img-2"}, snapshot.IDs())

	saved, _, err := document.Load(path)
	require.NoError(t, err)
	rows, err := saved.Rows()
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "img-1", rows[0].ID)
	assert.Empty(t, saved.Annotations)
}

func TestProducerEventsAreIdempotent(t *testing.T) {
	path := writeDocument(t, t.TempDir())
	ws := startWorkspace(t, Options{DocumentPath: path})
	ctx := context.Background()

	require.NoError(t, ws.AddImage(ctx, img("img-3"), -1))
	require.NoError(t, ws.AddImage(ctx, img("img-3"), -1))
	require.NoError(t, ws.AddAnnotation(ctx, ann("a2"), 0))
	require.NoError(t, ws.RemoveImage(ctx, "missing"))
	require.NoError(t, ws.RemoveAnnotation(ctx, "missing"))
	require.NoError(t, ws.Flush(ctx))

	snapshot, err := ws.Snapshot(ctx)
	require.NoError(t, err)
	// a2 went in at annotation store index 0, so it takes the top
	// annotation slot and pushes a1 below the images.
	assert.Equal(t, []string{"a2", "img-1", "img-2", "img-3", "a1"}, snapshot.IDs())
	assert.False(t, snapshot.HasPlaceholders())

	require.NoError(t, ws.RemoveAnnotation(ctx, "a1"))
	require.NoError(t, ws.Flush(ctx))
	snapshot, err = ws.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a2", "img-1", "img-2", "img-3"}, snapshot.IDs())

	st, err := ws.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.Report.OK(), "issues: %v", st.Report.Issues)
}

func TestRedrawCanvasReadoptsAnnotations(t *testing.T) {
	path := writeDocument(t, t.TempDir())
	ws := startWorkspace(t, Options{DocumentPath: path, Autosave: true})
	ctx := context.Background()

	moved := canvas()
	moved.Screen.X = 40
	require.NoError(t, ws.RedrawCanvas(ctx, moved))

	st, err := ws.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.Report.OK(), "issues: %v", st.Report.Issues)
	var (
		parentID    string
		parentFrame surface.Frame
	)
	require.NoError(t, ws.Do(ctx, func(*order.Engine) {
		if element, ok := ws.scene.Element("a1"); ok && element.Parent() != nil {
			parentID = element.Parent().ID()
			parentFrame = element.Parent().Frame()
		}
	}))
	assert.Equal(t, surface.ProxyID("a1"), parentID)
	assert.Equal(t, *moved, parentFrame)

	saved, _, err := document.Load(path)
	require.NoError(t, err)
	require.NotNil(t, saved.Canvas)
	assert.Equal(t, 40.0, saved.Canvas.Screen.X)
}

func TestMissingDocumentStartsEmptyAndSaves(t *testing.T) {
	path := filepath.Join(t.TempDir(), "new.yaml")
	ws := startWorkspace(t, Options{DocumentPath: path, Autosave: true})
	ctx := context.Background()

	snapshot, err := ws.Snapshot(ctx)
	require.NoError(t, err)
	assert.Empty(t, snapshot)

	require.NoError(t, ws.AddImage(ctx, img("img-1"), -1))
	require.NoError(t, ws.Flush(ctx))
	saved, _, err := document.Load(path)
	require.NoError(t, err)
	require.Len(t, saved.Images, 1)
	assert.Equal(t, "img-1", saved.Order[0].ID)
}

func TestExternalEditIsReloaded(t *testing.T) {
	path := writeDocument(t, t.TempDir())
	ws := startWorkspace(t, Options{DocumentPath: path, Autosave: true, Watch: true, Debounce: 20 * time.Millisecond})
	ctx := context.Background()
	require.NoError(t, ws.Flush(ctx))

	edited := document.New(canvas(),
		[]layer.ImageRecord{img("img-2")},
		[]layer.AnnotationRecord{ann("a1"), ann("a9")},
		[]view.Row{
			{ID: "img-2", Kind: layer.KindImage},
			{ID: "a1", Kind: layer.KindAnnotation},
			{ID: "a9", Kind: layer.KindAnnotation},
		})
	_, err := document.Save(path, edited)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		snapshot, err := ws.Snapshot(ctx)
		return err == nil && assert.ObjectsAreEqual([]string{"img-2", "a1", "a9"}, snapshot.IDs())
	}, 3*time.Second, 20*time.Millisecond)
}
