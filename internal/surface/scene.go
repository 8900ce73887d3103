// Package surface is a headless model of the rendering surfaces the
// compositor paints into: one surface per image layer, a shared drawing
// canvas holding every annotation element, and per-annotation proxy
// containers split off from that canvas. It knows geometry and paint index,
// nothing about pixels.
//
// A Scene is owned by the event loop that drives the order engine and is not
// safe for concurrent use.
package surface

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/kingrea/layerdeck/internal/layer"
)

var (
	// ErrNoParent is returned when a node must be attached somewhere but is detached.
	ErrNoParent = errors.New("surface: node has no parent")
	// ErrNotContainer is returned when appending into a node that cannot hold children.
	ErrNotContainer = errors.New("surface: node is not a container")
	// ErrNoCanvas is returned when the shared drawing canvas has not been mounted.
	ErrNoCanvas = errors.New("surface: drawing canvas not mounted")
)

// NodeKind tags what a node renders.
type NodeKind int

const (
	NodeRoot NodeKind = iota
	NodeImage
	NodeCanvas
	NodeProxy
	NodeElement
)

func (k NodeKind) String() string {
	switch k {
	case NodeRoot:
		return "root"
	case NodeImage:
		return "image"
	case NodeCanvas:
		return "canvas"
	case NodeProxy:
		return "proxy"
	case NodeElement:
		return "element"
	default:
		return "unknown"
	}
}

// CanvasID is the node id of the shared drawing canvas.
const CanvasID = "canvas"

// ProxyID returns the node id used for an annotation's proxy container.
func ProxyID(annotationID string) string {
	return "proxy:" + annotationID
}

// Node is one surface or element in the scene tree.
type Node struct {
	id       string
	kind     NodeKind
	parent   *Node
	children []*Node
	frame    Frame
	shape    layer.Rect
	z        int
	hasZ     bool
}

// ID returns the node identifier.
func (n *Node) ID() string { return n.id }

// Kind returns what the node renders.
func (n *Node) Kind() NodeKind { return n.kind }

// Parent returns the containing node, or nil when detached.
func (n *Node) Parent() *Node { return n.parent }

// Children returns a copy of the child list in document order.
func (n *Node) Children() []*Node { return append([]*Node(nil), n.children...) }

// ZIndex returns the applied paint index, if one was set.
func (n *Node) ZIndex() (int, bool) { return n.z, n.hasZ }

// SetZIndex applies a paint index.
func (n *Node) SetZIndex(z int) {
	n.z = z
	n.hasZ = true
}

// ClearZIndex removes any applied paint index.
func (n *Node) ClearZIndex() {
	n.z = 0
	n.hasZ = false
}

// Frame returns the coordinate configuration of a container or image surface.
func (n *Node) Frame() Frame { return n.frame }

// SetFrame replaces the coordinate configuration.
func (n *Node) SetFrame(f Frame) { n.frame = f }

// Shape returns an element's user-space geometry.
func (n *Node) Shape() layer.Rect { return n.shape }

// SetShape replaces an element's user-space geometry.
func (n *Node) SetShape(r layer.Rect) { n.shape = r }

func (n *Node) isContainer() bool {
	switch n.kind {
	case NodeRoot, NodeCanvas, NodeProxy:
		return true
	}
	return false
}

// Contains reports whether child is a direct child of n.
func (n *Node) Contains(child *Node) bool {
	return child != nil && child.parent == n
}

// Append reparents child under n, detaching it from any previous parent.
func (n *Node) Append(child *Node) error {
	if !n.isContainer() {
		return fmt.Errorf("surface: append %s into %s: %w", child.id, n.id, ErrNotContainer)
	}
	child.detach()
	child.parent = n
	n.children = append(n.children, child)
	return nil
}

// InsertAfter places child under n immediately after sibling. A sibling that
// is not a child of n appends.
func (n *Node) InsertAfter(child, sibling *Node) error {
	if !n.isContainer() {
		return fmt.Errorf("surface: insert %s into %s: %w", child.id, n.id, ErrNotContainer)
	}
	child.detach()
	child.parent = n
	idx := indexOf(n.children, sibling)
	if idx < 0 {
		n.children = append(n.children, child)
		return nil
	}
	n.children = append(n.children, nil)
	copy(n.children[idx+2:], n.children[idx+1:])
	n.children[idx+1] = child
	return nil
}

func (n *Node) detach() {
	if n.parent == nil {
		return
	}
	siblings := n.parent.children
	if idx := indexOf(siblings, n); idx >= 0 {
		n.parent.children = append(siblings[:idx], siblings[idx+1:]...)
	}
	n.parent = nil
}

// ScreenBounds returns the node's bounding box in screen space. Elements are
// mapped through their container's frame; surfaces report their own screen rect.
func (n *Node) ScreenBounds() (layer.Rect, error) {
	switch n.kind {
	case NodeElement:
		if n.parent == nil {
			return layer.Rect{}, fmt.Errorf("surface: bounds of %s: %w", n.id, ErrNoParent)
		}
		return n.parent.frame.ToScreen(n.shape), nil
	default:
		return n.frame.Screen, nil
	}
}

func indexOf(nodes []*Node, target *Node) int {
	for i, node := range nodes {
		if node == target {
			return i
		}
	}
	return -1
}

// Scene is the root of the surface tree plus id indexes for each node kind.
type Scene struct {
	root     *Node
	canvas   *Node
	images   map[string]*Node
	elements map[string]*Node
	proxies  map[string]*Node
}

// NewScene returns an empty scene with no canvas mounted.
func NewScene() *Scene {
	return &Scene{
		root:     &Node{id: "root", kind: NodeRoot},
		images:   map[string]*Node{},
		elements: map[string]*Node{},
		proxies:  map[string]*Node{},
	}
}

// Root returns the scene root.
func (s *Scene) Root() *Node { return s.root }

// MountCanvas attaches (or reconfigures) the shared drawing canvas.
func (s *Scene) MountCanvas(frame Frame) *Node {
	if s.canvas == nil {
		s.canvas = &Node{id: CanvasID, kind: NodeCanvas}
		_ = s.root.Append(s.canvas)
	}
	s.canvas.frame = frame
	return s.canvas
}

// UnmountCanvas detaches the canvas. Elements stay inside it; proxies stay put.
func (s *Scene) UnmountCanvas() {
	if s.canvas == nil {
		return
	}
	s.canvas.detach()
	s.canvas = nil
}

// DrawingCanvas returns the shared canvas when mounted and attached.
func (s *Scene) DrawingCanvas() (*Node, bool) {
	if s.canvas == nil || s.canvas.parent == nil {
		return nil, false
	}
	return s.canvas, true
}

// AddImage creates or moves the surface for an image layer.
func (s *Scene) AddImage(id string, screen layer.Rect) *Node {
	node, ok := s.images[id]
	if !ok {
		node = &Node{id: id, kind: NodeImage}
		s.images[id] = node
		_ = s.root.Append(node)
	}
	node.frame = Frame{Screen: screen}
	return node
}

// RemoveImage drops an image surface.
func (s *Scene) RemoveImage(id string) {
	if node, ok := s.images[id]; ok {
		node.detach()
		delete(s.images, id)
	}
}

// ImageSurface returns the surface for an image layer.
func (s *Scene) ImageSurface(id string) (*Node, bool) {
	node, ok := s.images[id]
	return node, ok
}

// Draw creates an annotation element inside the canvas, or updates the shape
// of an existing one wherever it currently lives.
func (s *Scene) Draw(annotationID string, shape layer.Rect) (*Node, error) {
	if node, ok := s.elements[annotationID]; ok {
		node.shape = shape
		return node, nil
	}
	if s.canvas == nil {
		return nil, fmt.Errorf("surface: draw %s: %w", annotationID, ErrNoCanvas)
	}
	node := &Node{id: annotationID, kind: NodeElement, shape: shape}
	s.elements[annotationID] = node
	_ = s.canvas.Append(node)
	return node, nil
}

// Erase removes an annotation element and its proxy, if any.
func (s *Scene) Erase(annotationID string) {
	if node, ok := s.elements[annotationID]; ok {
		node.detach()
		delete(s.elements, annotationID)
	}
	if proxy, ok := s.proxies[annotationID]; ok {
		proxy.detach()
		delete(s.proxies, annotationID)
	}
}

// Element returns the visual subtree of an annotation.
func (s *Scene) Element(annotationID string) (*Node, bool) {
	node, ok := s.elements[annotationID]
	return node, ok
}

// Proxy returns the proxy container created for an annotation.
func (s *Scene) Proxy(annotationID string) (*Node, bool) {
	node, ok := s.proxies[annotationID]
	return node, ok
}

// CreateProxy adds an empty proxy container as the next sibling of the
// canvas. The caller configures its frame and adopts the element.
func (s *Scene) CreateProxy(annotationID string) (*Node, error) {
	canvas, ok := s.DrawingCanvas()
	if !ok {
		return nil, fmt.Errorf("surface: proxy for %s: %w", annotationID, ErrNoCanvas)
	}
	if existing, ok := s.proxies[annotationID]; ok {
		return existing, nil
	}
	proxy := &Node{id: ProxyID(annotationID), kind: NodeProxy}
	if err := canvas.parent.InsertAfter(proxy, canvas); err != nil {
		return nil, err
	}
	s.proxies[annotationID] = proxy
	return proxy, nil
}

// Redraw is the canvas' own render pass: every annotation in records is
// (re)drawn into the canvas, reclaiming elements that were moved into
// proxies, and elements without a record are erased.
func (s *Scene) Redraw(records []layer.AnnotationRecord) error {
	if s.canvas == nil {
		return ErrNoCanvas
	}
	keep := make(map[string]struct{}, len(records))
	for _, rec := range records {
		keep[rec.ID] = struct{}{}
		node, err := s.Draw(rec.ID, rec.Extent())
		if err != nil {
			return err
		}
		if node.parent != s.canvas {
			_ = s.canvas.Append(node)
		}
	}
	for id := range s.elements {
		if _, ok := keep[id]; !ok {
			s.Erase(id)
		}
	}
	return nil
}

// Sync brings image surfaces and annotation elements in line with the
// stores without touching stacking or proxies. New elements land in the canvas.
func (s *Scene) Sync(images []layer.ImageRecord, annotations []layer.AnnotationRecord) error {
	liveImages := make(map[string]struct{}, len(images))
	for _, rec := range images {
		liveImages[rec.ID] = struct{}{}
		s.AddImage(rec.ID, rec.Bounds)
	}
	for id := range s.images {
		if _, ok := liveImages[id]; !ok {
			s.RemoveImage(id)
		}
	}
	liveAnnotations := make(map[string]struct{}, len(annotations))
	for _, rec := range annotations {
		liveAnnotations[rec.ID] = struct{}{}
		if _, err := s.Draw(rec.ID, rec.Extent()); err != nil {
			return err
		}
	}
	for id := range s.elements {
		if _, ok := liveAnnotations[id]; !ok {
			s.Erase(id)
		}
	}
	return nil
}

// PaintOrder lists stackable surfaces bottom to top: ascending paint index,
// then document order. Surfaces without an index paint first.
func (s *Scene) PaintOrder() []*Node {
	var out []*Node
	for _, child := range s.root.children {
		if child.kind == NodeImage || child.kind == NodeCanvas || child.kind == NodeProxy {
			out = append(out, child)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		zi, oki := out[i].ZIndex()
		zj, okj := out[j].ZIndex()
		if oki != okj {
			return !oki
		}
		return zi < zj
	})
	return out
}

// Describe renders the tree for debugging and golden tests.
func (s *Scene) Describe() string {
	var b strings.Builder
	var walk func(n *Node, depth int)
	walk = func(n *Node, depth int) {
		b.WriteString(strings.Repeat("  ", depth))
		b.WriteString(n.kind.String())
		b.WriteString(" ")
		b.WriteString(n.id)
		if z, ok := n.ZIndex(); ok {
			fmt.Fprintf(&b, " z=%d", z)
		}
		b.WriteString("\n")
		for _, child := range n.children {
			walk(child, depth+1)
		}
	}
	walk(s.root, 0)
	return b.String()
}
