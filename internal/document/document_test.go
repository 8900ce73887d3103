package document

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingrea/layerdeck/internal/layer"
	"github.com/kingrea/layerdeck/internal/surface"
	"github.com/kingrea/layerdeck/internal/view"
)

func sampleDocument() *Document {
	frame := surface.Frame{
		Screen:    layer.Rect{W: 800, H: 600},
		ViewBox:   layer.Rect{W: 400, H: 300},
		Transform: surface.Identity(),
	}
	images := []layer.ImageRecord{
		{ID: "img-1", Name: "Background", Visible: true, Bounds: layer.Rect{W: 800, H: 600}},
		{ID: "img-2", Name: "Overlay", Visible: false, Opacity: 0.5},
	}
	annotations := []layer.AnnotationRecord{
		{ID: "a1", Label: "Arrow", Shape: layer.ShapePath, Points: []layer.Point{{X: 1, Y: 2}, {X: 5, Y: 9}}, Visible: true},
	}
	rows := []view.Row{
		{ID: "a1", Kind: layer.KindAnnotation, Label: "Arrow"},
		{ID: "img-1", Kind: layer.KindImage, Label: "Background"},
		{ID: "img-2", Kind: layer.KindImage, Label: "Overlay", Hidden: true},
	}
	return New(&frame, images, annotations, rows)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "layers.yaml")
	doc := sampleDocument()

	hash, err := Save(path, doc)
	require.NoError(t, err)
	loaded, loadedHash, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, hash, loadedHash)
	assert.Equal(t, doc, loaded)
	rows, err := loaded.Rows()
	require.NoError(t, err)
	assert.Equal(t, []string{"a1", "img-1", "img-2"}, []string{rows[0].ID, rows[1].ID, rows[2].ID})
	assert.Equal(t, layer.KindAnnotation, rows[0].Kind)
	assert.True(t, rows[2].Hidden)
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "layers.yaml")
	_, err := Save(path, sampleDocument())
	require.NoError(t, err)
	_, err = Save(path, sampleDocument())
	require.NoError(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "layers.yaml", entries[0].Name())
}

func TestLoadMissingReturnsErrNotFound(t *testing.T) {
	_, _, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestParseDefaultsVersionAndAcceptsKindAliases(t *testing.T) {
	doc, err := Parse([]byte(`
images:
  - id: img-1
annotations:
  - id: a1
    shape: rect
order:
  - id: a1
    kind: ann
  - id: img-1
    kind: layer
`))
	require.NoError(t, err)
	assert.Equal(t, CurrentVersion, doc.Version)
	rows, err := doc.Rows()
	require.NoError(t, err)
	assert.Equal(t, layer.KindAnnotation, rows[0].Kind)
	assert.Equal(t, layer.KindImage, rows[1].Kind)
}

func TestParseRejectsInvalidDocuments(t *testing.T) {
	cases := map[string]string{
		"future version":     "version: 9\n",
		"missing image id":   "images:\n  - name: nameless\n",
		"duplicate image":    "images:\n  - id: x\n  - id: x\n",
		"duplicate note":     "annotations:\n  - id: a\n  - id: a\n",
		"unknown order kind": "order:\n  - id: x\n    kind: sticker\n",
		"malformed yaml":     "images: [\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Parse([]byte(body))
			assert.Error(t, err)
		})
	}
}

func TestHashIsStable(t *testing.T) {
	a := Hash([]byte("images: []\n"))
	assert.Equal(t, a, Hash([]byte("images: []\n")))
	assert.NotEqual(t, a, Hash([]byte("images: []\n\n")))
	assert.Len(t, a, 64)
}
