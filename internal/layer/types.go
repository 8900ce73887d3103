package layer

import (
	"fmt"
	"strings"
)

// Kind distinguishes the two backing stores a stackable item can live in.
type Kind int

const (
	KindImage Kind = iota
	KindAnnotation
)

// String renders the kind the way it appears in documents and bridge events.
func (k Kind) String() string {
	switch k {
	case KindImage:
		return "image"
	case KindAnnotation:
		return "annotation"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// Valid reports whether k is one of the two known kinds.
func (k Kind) Valid() bool {
	return k == KindImage || k == KindAnnotation
}

// ParseKind accepts the names produced by String plus a few aliases used by
// older documents ("layer", "img", "ann").
func ParseKind(value string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "image", "layer", "img":
		return KindImage, nil
	case "annotation", "ann", "shape":
		return KindAnnotation, nil
	default:
		return 0, fmt.Errorf("layer: unknown kind %q", value)
	}
}

// MarshalText implements encoding.TextMarshaler so kinds serialize by name.
func (k Kind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("layer: cannot encode %s", k)
	}
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *Kind) UnmarshalText(text []byte) error {
	parsed, err := ParseKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Point is a 2D coordinate.
type Point struct {
	X float64 `yaml:"x" json:"x"`
	Y float64 `yaml:"y" json:"y"`
}

// Rect is an axis-aligned rectangle. W and H are never negative for rects
// produced by this package.
type Rect struct {
	X float64 `yaml:"x" json:"x"`
	Y float64 `yaml:"y" json:"y"`
	W float64 `yaml:"w" json:"w"`
	H float64 `yaml:"h" json:"h"`
}

// Empty reports whether the rect has no area.
func (r Rect) Empty() bool {
	return r.W <= 0 || r.H <= 0
}

// Max returns the bottom-right corner.
func (r Rect) Max() Point {
	return Point{X: r.X + r.W, Y: r.Y + r.H}
}

// RectFromPoints returns the smallest rect containing every point.
func RectFromPoints(points ...Point) Rect {
	if len(points) == 0 {
		return Rect{}
	}
	minX, minY := points[0].X, points[0].Y
	maxX, maxY := minX, minY
	for _, p := range points[1:] {
		minX = min(minX, p.X)
		minY = min(minY, p.Y)
		maxX = max(maxX, p.X)
		maxY = max(maxY, p.Y)
	}
	return Rect{X: minX, Y: minY, W: maxX - minX, H: maxY - minY}
}

// ImageRecord is one entry of the image layer store. Its payload is
// independent of stacking order.
type ImageRecord struct {
	ID      string  `yaml:"id" json:"id"`
	Name    string  `yaml:"name,omitempty" json:"name,omitempty"`
	Source  string  `yaml:"source,omitempty" json:"source,omitempty"`
	Opacity float64 `yaml:"opacity,omitempty" json:"opacity,omitempty"`
	Visible bool    `yaml:"visible" json:"visible"`
	Blend   string  `yaml:"blend,omitempty" json:"blend,omitempty"`
	Bounds  Rect    `yaml:"bounds" json:"bounds"`
}

// RecordID returns the stable identifier.
func (r ImageRecord) RecordID() string { return r.ID }

// DisplayName prefers the human name and falls back to the id.
func (r ImageRecord) DisplayName() string {
	if name := strings.TrimSpace(r.Name); name != "" {
		return name
	}
	return r.ID
}

// Shape enumerates annotation primitives drawn by the drawing tool.
type Shape string

const (
	ShapeRect    Shape = "rect"
	ShapeEllipse Shape = "ellipse"
	ShapePath    Shape = "path"
)

// AnnotationRecord is one entry of the annotation store. Geometry is in the
// shared canvas' user space.
type AnnotationRecord struct {
	ID          string  `yaml:"id" json:"id"`
	Label       string  `yaml:"label,omitempty" json:"label,omitempty"`
	Shape       Shape   `yaml:"shape" json:"shape"`
	Geometry    Rect    `yaml:"geometry" json:"geometry"`
	Points      []Point `yaml:"points,omitempty" json:"points,omitempty"`
	Stroke      string  `yaml:"stroke,omitempty" json:"stroke,omitempty"`
	Fill        string  `yaml:"fill,omitempty" json:"fill,omitempty"`
	StrokeWidth float64 `yaml:"stroke_width,omitempty" json:"stroke_width,omitempty"`
	Visible     bool    `yaml:"visible" json:"visible"`
}

// RecordID returns the stable identifier.
func (r AnnotationRecord) RecordID() string { return r.ID }

// DisplayName prefers the label and falls back to "<shape> <id>".
func (r AnnotationRecord) DisplayName() string {
	if label := strings.TrimSpace(r.Label); label != "" {
		return label
	}
	shape := string(r.Shape)
	if shape == "" {
		shape = string(ShapeRect)
	}
	return shape + " " + r.ID
}

// Extent returns the user-space box covered by the annotation. Path shapes
// derive it from their points when present.
func (r AnnotationRecord) Extent() Rect {
	if r.Shape == ShapePath && len(r.Points) > 0 {
		return RectFromPoints(r.Points...)
	}
	return r.Geometry
}
