package surface

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingrea/layerdeck/internal/layer"
)

func testFrame() Frame {
	return Frame{
		Screen:    layer.Rect{X: 10, Y: 20, W: 200, H: 100},
		ViewBox:   layer.Rect{X: 0, Y: 0, W: 100, H: 50},
		Transform: Translate(5, 5),
	}
}

func TestFrameToScreenAppliesTransformThenViewBox(t *testing.T) {
	got := testFrame().ToScreen(layer.Rect{X: 10, Y: 10, W: 20, H: 10})
	assert.Equal(t, layer.Rect{X: 40, Y: 50, W: 40, H: 20}, got)
}

func TestFrameWithoutViewBoxOffsetsOnly(t *testing.T) {
	f := Frame{Screen: layer.Rect{X: 3, Y: 4, W: 50, H: 50}}
	got := f.ToScreen(layer.Rect{X: 1, Y: 1, W: 2, H: 2})
	assert.Equal(t, layer.Rect{X: 4, Y: 5, W: 2, H: 2}, got)
}

func TestMatrixThenComposes(t *testing.T) {
	m := Scale(2, 3).Then(Translate(1, 1))
	assert.Equal(t, layer.Point{X: 5, Y: 7}, m.Apply(layer.Point{X: 2, Y: 2}))
	assert.True(t, Matrix{}.IsIdentity())
	assert.Equal(t, "matrix(1 0 0 1 0 0)", Matrix{}.String())
}

func TestDrawRequiresCanvas(t *testing.T) {
	scene := NewScene()
	_, err := scene.Draw("a1", layer.Rect{W: 1, H: 1})
	assert.ErrorIs(t, err, ErrNoCanvas)
	_, err = scene.CreateProxy("a1")
	assert.ErrorIs(t, err, ErrNoCanvas)
}

func TestProxySitsNextToCanvasAndPreservesBounds(t *testing.T) {
	scene := NewScene()
	scene.AddImage("img1", layer.Rect{W: 100, H: 100})
	canvas := scene.MountCanvas(testFrame())
	scene.AddImage("img2", layer.Rect{W: 100, H: 100})
	elem, err := scene.Draw("a1", layer.Rect{X: 10, Y: 10, W: 20, H: 10})
	require.NoError(t, err)
	before, err := elem.ScreenBounds()
	require.NoError(t, err)

	proxy, err := scene.CreateProxy("a1")
	require.NoError(t, err)
	proxy.SetFrame(canvas.Frame())
	require.NoError(t, proxy.Append(elem))

	after, err := elem.ScreenBounds()
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.True(t, proxy.Contains(elem))
	assert.False(t, canvas.Contains(elem))

	ids := []string{}
	for _, child := range scene.Root().Children() {
		ids = append(ids, child.ID())
	}
	assert.Equal(t, []string{"img1", CanvasID, ProxyID("a1"), "img2"}, ids)

	again, err := scene.CreateProxy("a1")
	require.NoError(t, err)
	assert.Same(t, proxy, again)
}

func TestRedrawReclaimsElementsFromProxies(t *testing.T) {
	scene := NewScene()
	canvas := scene.MountCanvas(testFrame())
	elem, err := scene.Draw("a1", layer.Rect{W: 5, H: 5})
	require.NoError(t, err)
	_, err = scene.Draw("gone", layer.Rect{W: 5, H: 5})
	require.NoError(t, err)
	proxy, err := scene.CreateProxy("a1")
	require.NoError(t, err)
	require.NoError(t, proxy.Append(elem))

	require.NoError(t, scene.Redraw([]layer.AnnotationRecord{{ID: "a1", Geometry: layer.Rect{W: 6, H: 6}}}))
	assert.True(t, canvas.Contains(elem))
	assert.Equal(t, layer.Rect{W: 6, H: 6}, elem.Shape())
	_, ok := scene.Element("gone")
	assert.False(t, ok)
}

func TestSyncCreatesAndDropsSurfaces(t *testing.T) {
	scene := NewScene()
	scene.MountCanvas(testFrame())
	require.NoError(t, scene.Sync(
		[]layer.ImageRecord{{ID: "i1"}, {ID: "i2"}},
		[]layer.AnnotationRecord{{ID: "a1"}},
	))
	_, ok := scene.ImageSurface("i2")
	require.True(t, ok)

	require.NoError(t, scene.Sync([]layer.ImageRecord{{ID: "i1"}}, nil))
	_, ok = scene.ImageSurface("i2")
	assert.False(t, ok)
	_, ok = scene.Element("a1")
	assert.False(t, ok)
}

func TestPaintOrderSortsByIndex(t *testing.T) {
	scene := NewScene()
	low := scene.AddImage("low", layer.Rect{})
	high := scene.AddImage("high", layer.Rect{})
	scene.AddImage("unset", layer.Rect{})
	high.SetZIndex(10)
	low.SetZIndex(1)

	var got []string
	for _, node := range scene.PaintOrder() {
		got = append(got, node.ID())
	}
	assert.Equal(t, []string{"unset", "low", "high"}, got)
}

func TestElementBoundsNeedParent(t *testing.T) {
	scene := NewScene()
	scene.MountCanvas(testFrame())
	elem, err := scene.Draw("a1", layer.Rect{W: 1, H: 1})
	require.NoError(t, err)
	scene.Erase("a1")
	_, err = elem.ScreenBounds()
	assert.ErrorIs(t, err, ErrNoParent)
}
