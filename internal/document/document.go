// Package document reads and writes the layer document: the canvas frame,
// both record stores and the last committed stacking order, as one YAML file.
package document

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/kingrea/layerdeck/internal/layer"
	"github.com/kingrea/layerdeck/internal/surface"
	"github.com/kingrea/layerdeck/internal/view"
)

// CurrentVersion is the document format written by Save.
const CurrentVersion = 1

// ErrNotFound is returned by Load when the document does not exist.
var ErrNotFound = errors.New("document: not found")

// OrderRow is one line of the persisted stacking order, top first.
type OrderRow struct {
	ID     string `yaml:"id"`
	Kind   string `yaml:"kind"`
	Label  string `yaml:"label,omitempty"`
	Hidden bool   `yaml:"hidden,omitempty"`
}

// Document is the on-disk layer document.
type Document struct {
	Version     int                      `yaml:"version"`
	Canvas      *surface.Frame           `yaml:"canvas,omitempty"`
	Images      []layer.ImageRecord      `yaml:"images"`
	Annotations []layer.AnnotationRecord `yaml:"annotations"`
	Order       []OrderRow               `yaml:"order,omitempty"`
}

// New captures the given state as a document. rows become the persisted
// order.
func New(canvas *surface.Frame, images []layer.ImageRecord, annotations []layer.AnnotationRecord, rows []view.Row) *Document {
	doc := &Document{
		Version:     CurrentVersion,
		Canvas:      canvas,
		Images:      append([]layer.ImageRecord(nil), images...),
		Annotations: append([]layer.AnnotationRecord(nil), annotations...),
	}
	for _, row := range rows {
		doc.Order = append(doc.Order, OrderRow{ID: row.ID, Kind: row.Kind.String(), Label: row.Label, Hidden: row.Hidden})
	}
	return doc
}

// Rows converts the persisted order into visible-list rows. Rows with an
// unknown kind are reported, not dropped silently.
func (d *Document) Rows() ([]view.Row, error) {
	rows := make([]view.Row, 0, len(d.Order))
	for i, entry := range d.Order {
		kind, err := layer.ParseKind(entry.Kind)
		if err != nil {
			return nil, fmt.Errorf("document: order[%d] %s: %w", i, entry.ID, err)
		}
		rows = append(rows, view.Row{ID: entry.ID, Kind: kind, Label: entry.Label, Hidden: entry.Hidden})
	}
	return rows, nil
}

// Validate checks the document for the problems that would make the stores
// reject it.
func (d *Document) Validate() error {
	if d.Version < 1 || d.Version > CurrentVersion {
		return fmt.Errorf("document: version %d not supported", d.Version)
	}
	seen := map[string]struct{}{}
	for i, img := range d.Images {
		id := strings.TrimSpace(img.ID)
		if id == "" {
			return fmt.Errorf("document: images[%d]: id is required", i)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("document: image %s listed twice", id)
		}
		seen[id] = struct{}{}
	}
	seen = map[string]struct{}{}
	for i, ann := range d.Annotations {
		id := strings.TrimSpace(ann.ID)
		if id == "" {
			return fmt.Errorf("document: annotations[%d]: id is required", i)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("document: annotation %s listed twice", id)
		}
		seen[id] = struct{}{}
	}
	if _, err := d.Rows(); err != nil {
		return err
	}
	return nil
}

// Parse decodes and validates a document.
func Parse(data []byte) (*Document, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("document: parse: %w", err)
	}
	if doc.Version == 0 {
		doc.Version = CurrentVersion
	}
	if err := doc.Validate(); err != nil {
		return nil, err
	}
	return &doc, nil
}

// Marshal encodes the document with two-space indentation.
func (d *Document) Marshal() ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(d); err != nil {
		return nil, fmt.Errorf("document: encode: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("document: encode: %w", err)
	}
	return buf.Bytes(), nil
}

// Load reads the document at path. A missing file yields ErrNotFound.
func Load(path string) (*Document, string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, "", fmt.Errorf("document: load %s: %w", path, ErrNotFound)
		}
		return nil, "", fmt.Errorf("document: load %s: %w", path, err)
	}
	doc, err := Parse(data)
	if err != nil {
		return nil, "", fmt.Errorf("%w (%s)", err, path)
	}
	return doc, Hash(data), nil
}

// Save encodes doc and writes it with WriteAtomic. It returns the hash of
// the bytes written.
func Save(path string, doc *Document) (string, error) {
	data, err := doc.Marshal()
	if err != nil {
		return "", err
	}
	if err := WriteAtomic(path, data); err != nil {
		return "", err
	}
	return Hash(data), nil
}

// WriteAtomic writes data through a temp file and rename so watchers never
// see a half-written file.
func WriteAtomic(path string, data []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("document: ensure dir: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("document: create temp: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("document: write temp: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("document: close temp: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("document: replace %s: %w", path, err)
	}
	return nil
}

// Hash fingerprints document bytes.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
