package order

import (
	"fmt"
	"strings"

	"github.com/kingrea/layerdeck/internal/layer"
	"github.com/kingrea/layerdeck/internal/view"
)

// Resolver turns visible rows into a typed snapshot by looking every row up
// in the store its kind selects. It only reads.
type Resolver struct {
	images      ImageAccessor
	annotations AnnotationAccessor
	base        int
}

// NewResolver builds a resolver over the two accessors.
func NewResolver(images ImageAccessor, annotations AnnotationAccessor, base int) *Resolver {
	if base < 1 {
		base = DefaultBase
	}
	return &Resolver{images: images, annotations: annotations, base: base}
}

// Resolve returns one entry per row, in row order. Rows that cannot be
// resolved, and repeats of an id already resolved earlier in the walk,
// become placeholders.
func (r *Resolver) Resolve(rows []view.Row) Snapshot {
	n := len(rows)
	out := make(Snapshot, 0, n)
	seen := make(map[string]struct{}, n)
	for i, row := range rows {
		entry := Entry{
			ID:           row.ID,
			Kind:         row.Kind,
			DisplayOrder: i,
			ZIndex:       ZIndex(r.base, n, i),
		}
		_, repeated := seen[row.ID]
		seen[row.ID] = struct{}{}
		if !repeated {
			if ref, ok := r.lookup(row); ok {
				entry.Ref = ref
				entry.Name = ref.DisplayName()
				entry.Hidden = !ref.Visible()
				out = append(out, entry)
				continue
			}
		}
		entry.Name = placeholderName(row)
		entry.Hidden = row.Hidden
		out = append(out, entry)
	}
	return out
}

func (r *Resolver) lookup(row view.Row) (Ref, bool) {
	id := strings.TrimSpace(row.ID)
	if id == "" {
		return nil, false
	}
	switch row.Kind {
	case layer.KindImage:
		if r.images == nil {
			return nil, false
		}
		if rec, ok := r.images.Image(id); ok {
			return ImageRef{Record: rec}, true
		}
	case layer.KindAnnotation:
		if r.annotations == nil {
			return nil, false
		}
		if rec, ok := r.annotations.Annotation(id); ok {
			return AnnotationRef{Record: rec}, true
		}
	}
	return nil, false
}

// placeholderName uses the label the view cached for the row, falling back
// to a synthesized "<kind> <id> (unresolved)".
func placeholderName(row view.Row) string {
	if label := strings.TrimSpace(row.Label); label != "" {
		return label
	}
	kind := "layer"
	if row.Kind.Valid() {
		kind = row.Kind.String()
	}
	return fmt.Sprintf("%s %s (unresolved)", kind, row.ID)
}
