package journal

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kingrea/layerdeck/internal/layer"
	"github.com/kingrea/layerdeck/internal/order"
)

func openTestJournal(t *testing.T, opts ...Option) (*Journal, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "state", "journal.db")
	j, err := Open(path, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j, path
}

func stack(ids ...string) order.Snapshot {
	out := make(order.Snapshot, len(ids))
	for i, id := range ids {
		kind := layer.KindImage
		var ref order.Ref = order.ImageRef{Record: layer.ImageRecord{ID: id}}
		if strings.HasPrefix(id, "a") {
			kind = layer.KindAnnotation
			ref = order.AnnotationRef{Record: layer.AnnotationRecord{ID: id}}
		}
		if strings.HasPrefix(id, "ghost") {
			ref = nil
		}
		out[i] = order.Entry{ID: id, Kind: kind, DisplayOrder: i, ZIndex: order.ZIndex(order.DefaultBase, len(ids), i), Ref: ref}
	}
	return out
}

func TestRecordAndHistoryNewestFirst(t *testing.T) {
	j, _ := openTestJournal(t, WithSession("session-1"))
	ctx := context.Background()
	at := time.Date(2024, 3, 9, 8, 7, 6, 0, time.UTC)

	require.NoError(t, j.Record(ctx, order.OrderChange{Seq: 1, Mode: order.ChangeRebuild, Trigger: "startup", At: at, Entries: stack("a1", "img-1")}))
	require.NoError(t, j.Record(ctx, order.OrderChange{Seq: 2, Mode: order.ChangeFull, Dragged: "img-1", Target: "a1", At: at.Add(time.Second), Entries: stack("img-1", "a1")}))
	require.NoError(t, j.Record(ctx, order.OrderChange{Seq: 3, Mode: order.ChangeViewOnly, Dragged: "ghost", Target: "a1", At: at.Add(2 * time.Second), Entries: stack("ghost", "img-1", "a1")}))

	history, err := j.History(ctx, 0)
	require.NoError(t, err)
	require.Len(t, history, 3)
	assert.Equal(t, uint64(3), history[0].Seq)
	assert.Equal(t, order.ChangeViewOnly, history[0].Mode)
	assert.True(t, history[0].Stack[0].Placeholder)
	assert.Equal(t, []string{"img-1", "a1"}, history[1].IDs())
	assert.Equal(t, "annotation", history[1].Stack[1].Kind)
	assert.Equal(t, 101, history[1].Stack[0].ZIndex)
	assert.Equal(t, "startup", history[2].Trigger)
	assert.True(t, history[2].At.Equal(at))
	assert.Equal(t, "session-1", history[2].Session)

	limited, err := j.History(ctx, 1)
	require.NoError(t, err)
	require.Len(t, limited, 1)
	assert.Equal(t, uint64(3), limited[0].Seq)
}

func TestHistorySurvivesReopen(t *testing.T) {
	j, path := openTestJournal(t)
	ctx := context.Background()
	require.NoError(t, j.Record(ctx, order.OrderChange{Seq: 1, Mode: order.ChangeFull, Entries: stack("a1")}))
	first := j.Session()
	require.NoError(t, j.Close())

	reopened, err := Open(path)
	require.NoError(t, err)
	defer reopened.Close()
	assert.NotEqual(t, first, reopened.Session())

	history, err := reopened.History(ctx, 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, first, history[0].Session)
}

func TestClosedJournalRejectsWrites(t *testing.T) {
	j, _ := openTestJournal(t)
	require.NoError(t, j.Close())
	require.NoError(t, j.Close())

	err := j.Record(context.Background(), order.OrderChange{Seq: 1, Mode: order.ChangeFull})
	assert.ErrorIs(t, err, ErrClosed)
	_, err = j.History(context.Background(), 0)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestFormatHistory(t *testing.T) {
	at := time.Date(2024, 3, 9, 8, 7, 6, 0, time.UTC)
	out := FormatHistory([]Record{
		{Seq: 2, Mode: order.ChangeFull, Dragged: "img-1", Target: "a1", At: at, Stack: []StackEntry{{ID: "img-1"}, {ID: "a1"}}},
		{Seq: 1, Mode: order.ChangeRebuild, Trigger: "startup", At: at, Stack: []StackEntry{{ID: "a1"}, {ID: "img-1"}}},
	})
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "SEQ"))
	assert.Contains(t, lines[1], "img-1 > a1")
	assert.True(t, strings.HasSuffix(lines[1], "img-1 a1"))
	assert.Contains(t, lines[2], "startup")
	assert.Contains(t, lines[2], "2024-03-09 08:07:06")
}
