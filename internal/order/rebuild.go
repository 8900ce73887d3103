package order

import (
	"github.com/kingrea/layerdeck/internal/layer"
	"github.com/kingrea/layerdeck/internal/view"
)

// RebuildResult is the outcome of a forced rebuild.
type RebuildResult struct {
	Trigger string
	Rows    []view.Row
	Order   Snapshot
	Assign  AssignReport
	Report  Report
}

// PlanRebuild regenerates the visible rows from the two stores. The kind
// pattern of hint decides how images and annotations interleave: every hint
// row that still names a stored record claims one slot of its kind, and each
// slot takes the next record of that kind in store order, whether the hint
// mentions it or not. Store order within a kind is therefore preserved
// exactly. Records left over once the pattern runs out go to the bottom,
// annotations above images. The plan depends only on its inputs, so planning
// twice over unchanged stores yields the same rows.
func PlanRebuild(hint []view.Row, images []layer.ImageRecord, annotations []layer.AnnotationRecord) []view.Row {
	imageRows := make([]view.Row, 0, len(images))
	imageIDs := make(map[string]struct{}, len(images))
	for _, rec := range images {
		imageIDs[rec.ID] = struct{}{}
		imageRows = append(imageRows, view.Row{ID: rec.ID, Kind: layer.KindImage, Label: rec.DisplayName(), Hidden: !rec.Visible})
	}
	annotationRows := make([]view.Row, 0, len(annotations))
	annotationIDs := make(map[string]struct{}, len(annotations))
	for _, rec := range annotations {
		annotationIDs[rec.ID] = struct{}{}
		annotationRows = append(annotationRows, view.Row{ID: rec.ID, Kind: layer.KindAnnotation, Label: rec.DisplayName(), Hidden: !rec.Visible})
	}

	rows := make([]view.Row, 0, len(images)+len(annotations))
	seen := map[layer.Kind]map[string]struct{}{
		layer.KindImage:      {},
		layer.KindAnnotation: {},
	}
	for _, row := range hint {
		var known map[string]struct{}
		var next *[]view.Row
		switch row.Kind {
		case layer.KindImage:
			known, next = imageIDs, &imageRows
		case layer.KindAnnotation:
			known, next = annotationIDs, &annotationRows
		default:
			continue
		}
		if _, ok := known[row.ID]; !ok {
			continue
		}
		if _, dup := seen[row.Kind][row.ID]; dup {
			continue
		}
		seen[row.Kind][row.ID] = struct{}{}
		rows = append(rows, (*next)[0])
		*next = (*next)[1:]
	}
	rows = append(rows, annotationRows...)
	rows = append(rows, imageRows...)
	return rows
}
