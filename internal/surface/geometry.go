package surface

import (
	"fmt"

	"github.com/kingrea/layerdeck/internal/layer"
)

// Matrix is a 2D affine transform in SVG order: x' = A*x + C*y + E and
// y' = B*x + D*y + F. The zero Matrix is treated as identity.
type Matrix struct {
	A float64 `yaml:"a" json:"a"`
	B float64 `yaml:"b" json:"b"`
	C float64 `yaml:"c" json:"c"`
	D float64 `yaml:"d" json:"d"`
	E float64 `yaml:"e" json:"e"`
	F float64 `yaml:"f" json:"f"`
}

// Identity returns the identity transform.
func Identity() Matrix {
	return Matrix{A: 1, D: 1}
}

// Translate returns a translation by (tx, ty).
func Translate(tx, ty float64) Matrix {
	return Matrix{A: 1, D: 1, E: tx, F: ty}
}

// Scale returns a scale by (sx, sy) around the origin.
func Scale(sx, sy float64) Matrix {
	return Matrix{A: sx, D: sy}
}

// IsIdentity reports whether the transform leaves points unchanged.
func (m Matrix) IsIdentity() bool {
	return m.normalized() == Identity()
}

func (m Matrix) normalized() Matrix {
	if m == (Matrix{}) {
		return Identity()
	}
	return m
}

// Apply transforms a single point.
func (m Matrix) Apply(p layer.Point) layer.Point {
	n := m.normalized()
	return layer.Point{
		X: n.A*p.X + n.C*p.Y + n.E,
		Y: n.B*p.X + n.D*p.Y + n.F,
	}
}

// Then returns the transform that applies m first and next second.
func (m Matrix) Then(next Matrix) Matrix {
	a, b := m.normalized(), next.normalized()
	return Matrix{
		A: b.A*a.A + b.C*a.B,
		B: b.B*a.A + b.D*a.B,
		C: b.A*a.C + b.C*a.D,
		D: b.B*a.C + b.D*a.D,
		E: b.A*a.E + b.C*a.F + b.E,
		F: b.B*a.E + b.D*a.F + b.F,
	}
}

// String renders the transform as an SVG attribute value.
func (m Matrix) String() string {
	n := m.normalized()
	return fmt.Sprintf("matrix(%g %g %g %g %g %g)", n.A, n.B, n.C, n.D, n.E, n.F)
}

// Frame is the coordinate configuration of a container surface: where it sits
// on screen, which user-space window (view box) is stretched onto that
// screen rect, and the transform active on its children.
type Frame struct {
	Screen    layer.Rect `yaml:"screen" json:"screen"`
	ViewBox   layer.Rect `yaml:"view_box" json:"view_box"`
	Transform Matrix     `yaml:"transform" json:"transform"`
}

// ToScreen maps a user-space rect to its screen-space bounding box.
func (f Frame) ToScreen(r layer.Rect) layer.Rect {
	far := r.Max()
	corners := []layer.Point{
		{X: r.X, Y: r.Y},
		{X: far.X, Y: r.Y},
		{X: r.X, Y: far.Y},
		{X: far.X, Y: far.Y},
	}
	for i, p := range corners {
		corners[i] = f.mapViewBox(f.Transform.Apply(p))
	}
	return layer.RectFromPoints(corners...)
}

func (f Frame) mapViewBox(p layer.Point) layer.Point {
	vb := f.ViewBox
	if vb.Empty() {
		return layer.Point{X: f.Screen.X + p.X, Y: f.Screen.Y + p.Y}
	}
	sx := f.Screen.W / vb.W
	sy := f.Screen.H / vb.H
	return layer.Point{
		X: f.Screen.X + (p.X-vb.X)*sx,
		Y: f.Screen.Y + (p.Y-vb.Y)*sy,
	}
}
