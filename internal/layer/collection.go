package layer

import (
	"errors"
	"fmt"
	"strings"
	"sync"
)

var (
	// ErrUnknownRecord is returned when an id does not exist in a collection.
	ErrUnknownRecord = errors.New("layer: unknown record")
	// ErrDuplicateRecord is returned when adding an id that already exists.
	ErrDuplicateRecord = errors.New("layer: duplicate record")
	// ErrOrderMismatch is returned when a reorder is not a permutation of the
	// collection's current contents.
	ErrOrderMismatch = errors.New("layer: order is not a permutation of the collection")
	// ErrInvalidRecordID is returned for an empty id or one with surrounding
	// whitespace.
	ErrInvalidRecordID = errors.New("layer: invalid record id")
)

type record interface {
	RecordID() string
}

// collection is the ordered, id-indexed list shared by both stores. Producers
// mutate it from their own goroutines, so every access takes the lock and
// returns copies.
type collection[T record] struct {
	name    string
	mu      sync.RWMutex
	order   []string
	records map[string]T
	version uint64
}

func newCollection[T record](name string, items []T) (*collection[T], error) {
	c := &collection[T]{name: name, records: map[string]T{}}
	for _, item := range items {
		if err := c.add(item, -1); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func (c *collection[T]) list() []T {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]T, 0, len(c.order))
	for _, id := range c.order {
		out = append(out, c.records[id])
	}
	return out
}

func (c *collection[T]) ids() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return append([]string(nil), c.order...)
}

func (c *collection[T]) get(id string) (T, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	item, ok := c.records[id]
	return item, ok
}

func (c *collection[T]) len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.order)
}

func (c *collection[T]) currentVersion() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.version
}

// checkID rejects ids that are empty or padded; the map key and the stored
// record must agree.
func (c *collection[T]) checkID(id string) error {
	if id == "" || strings.TrimSpace(id) != id {
		return fmt.Errorf("%s: id %q: %w", c.name, id, ErrInvalidRecordID)
	}
	return nil
}

// add inserts item at index; a negative or out-of-range index appends.
func (c *collection[T]) add(item T, index int) error {
	id := item.RecordID()
	if err := c.checkID(id); err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.records[id]; exists {
		return fmt.Errorf("%s: add %s: %w", c.name, id, ErrDuplicateRecord)
	}
	c.records[id] = item
	if index < 0 || index >= len(c.order) {
		c.order = append(c.order, id)
	} else {
		c.order = append(c.order, "")
		copy(c.order[index+1:], c.order[index:])
		c.order[index] = id
	}
	c.version++
	return nil
}

func (c *collection[T]) update(item T) error {
	id := item.RecordID()
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.records[id]; !ok {
		return fmt.Errorf("%s: update %s: %w", c.name, id, ErrUnknownRecord)
	}
	c.records[id] = item
	c.version++
	return nil
}

func (c *collection[T]) remove(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.records[id]; !ok {
		return fmt.Errorf("%s: remove %s: %w", c.name, id, ErrUnknownRecord)
	}
	delete(c.records, id)
	for i, existing := range c.order {
		if existing == id {
			c.order = append(c.order[:i], c.order[i+1:]...)
			break
		}
	}
	c.version++
	return nil
}

// replace swaps the whole contents, used when a producer reloads its state.
func (c *collection[T]) replace(items []T) error {
	next := make(map[string]T, len(items))
	order := make([]string, 0, len(items))
	for _, item := range items {
		id := item.RecordID()
		if err := c.checkID(id); err != nil {
			return err
		}
		if _, dup := next[id]; dup {
			return fmt.Errorf("%s: replace %s: %w", c.name, id, ErrDuplicateRecord)
		}
		next[id] = item
		order = append(order, id)
	}
	c.mu.Lock()
	c.records = next
	c.order = order
	c.version++
	c.mu.Unlock()
	return nil
}

// reorder applies a set-preserving permutation. The collection is left
// untouched on any error.
func (c *collection[T]) reorder(ids []string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(ids) != len(c.order) {
		return fmt.Errorf("%s: reorder %d ids over %d records: %w", c.name, len(ids), len(c.order), ErrOrderMismatch)
	}
	seen := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		if _, ok := c.records[id]; !ok {
			return fmt.Errorf("%s: reorder %s: %w", c.name, id, ErrUnknownRecord)
		}
		if _, dup := seen[id]; dup {
			return fmt.Errorf("%s: reorder repeats %s: %w", c.name, id, ErrOrderMismatch)
		}
		seen[id] = struct{}{}
	}
	c.order = append(c.order[:0:0], ids...)
	c.version++
	return nil
}

// ImageCollection is the image layer backing store.
type ImageCollection struct {
	c *collection[ImageRecord]
}

// NewImageCollection builds a store from records in stacking order.
func NewImageCollection(records ...ImageRecord) (*ImageCollection, error) {
	c, err := newCollection("images", records)
	if err != nil {
		return nil, err
	}
	return &ImageCollection{c: c}, nil
}

// Images returns a copy of the records in store order.
func (s *ImageCollection) Images() []ImageRecord { return s.c.list() }

// ImageIDs returns the ids in store order.
func (s *ImageCollection) ImageIDs() []string { return s.c.ids() }

// Image looks up one record.
func (s *ImageCollection) Image(id string) (ImageRecord, bool) { return s.c.get(id) }

// Len reports how many records the store holds.
func (s *ImageCollection) Len() int { return s.c.len() }

// Version increments on every mutation; callers use it to detect interleaved writes.
func (s *ImageCollection) Version() uint64 { return s.c.currentVersion() }

// Add appends a record. Producers only.
func (s *ImageCollection) Add(record ImageRecord) error { return s.c.add(record, -1) }

// Insert places a record at index. Producers only.
func (s *ImageCollection) Insert(record ImageRecord, index int) error {
	return s.c.add(record, index)
}

// Update replaces the payload of an existing record without moving it.
func (s *ImageCollection) Update(record ImageRecord) error { return s.c.update(record) }

// Remove deletes a record. Producers only.
func (s *ImageCollection) Remove(id string) error { return s.c.remove(id) }

// Replace swaps the entire contents. Producers only.
func (s *ImageCollection) Replace(records []ImageRecord) error { return s.c.replace(records) }

// ReorderImages rewrites the stacking order. ids must be a permutation of the
// current contents.
func (s *ImageCollection) ReorderImages(ids []string) error { return s.c.reorder(ids) }

// AnnotationCollection is the annotation backing store.
type AnnotationCollection struct {
	c *collection[AnnotationRecord]
}

// NewAnnotationCollection builds a store from records in stacking order.
func NewAnnotationCollection(records ...AnnotationRecord) (*AnnotationCollection, error) {
	c, err := newCollection("annotations", records)
	if err != nil {
		return nil, err
	}
	return &AnnotationCollection{c: c}, nil
}

// Annotations returns a copy of the records in store order.
func (s *AnnotationCollection) Annotations() []AnnotationRecord { return s.c.list() }

// AnnotationIDs returns the ids in store order.
func (s *AnnotationCollection) AnnotationIDs() []string { return s.c.ids() }

// Annotation looks up one record.
func (s *AnnotationCollection) Annotation(id string) (AnnotationRecord, bool) { return s.c.get(id) }

// Len reports how many records the store holds.
func (s *AnnotationCollection) Len() int { return s.c.len() }

// Version increments on every mutation.
func (s *AnnotationCollection) Version() uint64 { return s.c.currentVersion() }

// Add appends a record. Producers only.
func (s *AnnotationCollection) Add(record AnnotationRecord) error { return s.c.add(record, -1) }

// Insert places a record at index. Producers only.
func (s *AnnotationCollection) Insert(record AnnotationRecord, index int) error {
	return s.c.add(record, index)
}

// Update replaces the payload of an existing record without moving it.
func (s *AnnotationCollection) Update(record AnnotationRecord) error { return s.c.update(record) }

// Remove deletes a record. Producers only.
func (s *AnnotationCollection) Remove(id string) error { return s.c.remove(id) }

// Replace swaps the entire contents. Producers only.
func (s *AnnotationCollection) Replace(records []AnnotationRecord) error {
	return s.c.replace(records)
}

// ReorderAnnotations rewrites the stacking order. ids must be a permutation
// of the current contents.
func (s *AnnotationCollection) ReorderAnnotations(ids []string) error { return s.c.reorder(ids) }
