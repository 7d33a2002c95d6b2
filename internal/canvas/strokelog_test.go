package canvas_test

import (
	"fmt"
	"testing"

	"github.com/manpreetbhatti/scribble/internal/canvas"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dot(x, y float64) canvas.Segment {
	return canvas.NewFreehand(canvas.Point{X: x, Y: y}, nil, "#000000", 2)
}

func points(segs []canvas.Segment) []canvas.Point {
	out := make([]canvas.Point, len(segs))
	for i, s := range segs {
		out[i] = s.Freehand.At
	}
	return out
}

func TestStrokeLog_AppendGroupsContiguousIDs(t *testing.T) {
	tests := []struct {
		name      string
		appends   []string
		wantSizes []int
	}{
		{name: "single gesture", appends: []string{"a", "a", "a"}, wantSizes: []int{3}},
		{name: "two gestures", appends: []string{"a", "a", "b"}, wantSizes: []int{2, 1}},
		{name: "interleaved ids split groups", appends: []string{"a", "b", "a"}, wantSizes: []int{1, 1, 1}},
		{name: "empty log", appends: nil, wantSizes: []int{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := canvas.NewStrokeLog()
			for i, id := range tt.appends {
				log.Append(id, dot(float64(i), 0))
			}

			groups := log.Groups()
			sizes := make([]int, len(groups))
			for i, g := range groups {
				sizes[i] = len(g.Segments)
			}
			assert.Equal(t, tt.wantSizes, sizes)
			assert.Equal(t, len(tt.appends), log.SegmentCount())
		})
	}
}

func TestStrokeLog_SameGroupPreservesOrder(t *testing.T) {
	log := canvas.NewStrokeLog()
	for i := 0; i < 10; i++ {
		log.Append("g", dot(float64(i), float64(i)))
	}

	groups := log.Groups()
	require.Len(t, groups, 1)
	for i, seg := range groups[0].Segments {
		assert.Equal(t, float64(i), seg.Freehand.At.X)
	}
}

func TestStrokeLog_UndoRedo(t *testing.T) {
	log := canvas.NewStrokeLog()
	log.Append("1", dot(0, 0))
	log.Append("1", dot(5, 5))
	log.Append("2", dot(9, 9))

	assert.Equal(t, []canvas.Point{{0, 0}, {5, 5}, {9, 9}}, points(log.Flatten()))

	removed, ok := log.Undo()
	require.True(t, ok)
	assert.Equal(t, "2", removed.ID)
	assert.Equal(t, []canvas.Point{{0, 0}, {5, 5}}, points(log.Flatten()))
	assert.Equal(t, 1, log.RedoLen())

	restored, ok := log.Redo()
	require.True(t, ok)
	assert.Equal(t, "2", restored.ID)
	assert.Equal(t, []canvas.Point{{0, 0}, {5, 5}, {9, 9}}, points(log.Flatten()))
	assert.Equal(t, 0, log.RedoLen())
}

func TestStrokeLog_UndoThenRedoRestoresExactGroups(t *testing.T) {
	log := canvas.NewStrokeLog()
	for i := 0; i < 5; i++ {
		id := fmt.Sprintf("g%d", i%3)
		log.Append(id, dot(float64(i), 1))
		log.Append(id, dot(float64(i), 2))
	}
	before := log.Groups()

	_, ok := log.Undo()
	require.True(t, ok)
	_, ok = log.Redo()
	require.True(t, ok)

	assert.Equal(t, before, log.Groups())
	assert.Equal(t, 10, log.SegmentCount())
}

func TestStrokeLog_NothingToUndoOrRedo(t *testing.T) {
	log := canvas.NewStrokeLog()

	_, ok := log.Undo()
	assert.False(t, ok)
	_, ok = log.Redo()
	assert.False(t, ok)
	assert.Empty(t, log.Flatten())
}

func TestStrokeLog_AppendClearsRedo(t *testing.T) {
	log := canvas.NewStrokeLog()
	log.Append("a", dot(1, 1))
	log.Append("b", dot(2, 2))
	_, _ = log.Undo()
	_, _ = log.Undo()
	require.Equal(t, 2, log.RedoLen())

	log.Append("c", dot(3, 3))

	_, ok := log.Redo()
	assert.False(t, ok)
	assert.Equal(t, []canvas.Point{{3, 3}}, points(log.Flatten()))
}

func TestStrokeLog_RedoAfterUndoOfMany(t *testing.T) {
	log := canvas.NewStrokeLog()
	log.Append("a", dot(1, 1))
	log.Append("b", dot(2, 2))
	log.Append("c", dot(3, 3))

	_, _ = log.Undo()
	_, _ = log.Undo()

	// most recently undone comes back first
	g, ok := log.Redo()
	require.True(t, ok)
	assert.Equal(t, "b", g.ID)
	g, ok = log.Redo()
	require.True(t, ok)
	assert.Equal(t, "c", g.ID)
}

func TestStrokeLog_FlattenCountsAndOrder(t *testing.T) {
	sizes := []int{3, 1, 4, 1, 5}
	log := canvas.NewStrokeLog()
	var want []canvas.Point
	for gi, k := range sizes {
		for si := 0; si < k; si++ {
			p := canvas.Point{X: float64(gi), Y: float64(si)}
			want = append(want, p)
			log.Append(fmt.Sprintf("group-%d", gi), canvas.NewFreehand(p, nil, "", 1))
		}
	}

	flat := log.Flatten()
	assert.Len(t, flat, 14)
	assert.Equal(t, want, points(flat))
}

func TestStrokeLog_Clear(t *testing.T) {
	log := canvas.NewStrokeLog()
	log.Append("a", dot(1, 1))
	log.Append("b", dot(2, 2))
	_, _ = log.Undo()

	log.Clear()

	assert.Equal(t, 0, log.Len())
	assert.Equal(t, 0, log.RedoLen())
	assert.Equal(t, 0, log.SegmentCount())
	_, ok := log.Redo()
	assert.False(t, ok)
}

func TestStrokeLog_GroupsAreCopies(t *testing.T) {
	log := canvas.NewStrokeLog()
	log.Append("a", dot(1, 1))

	groups := log.Groups()
	groups[0].Segments[0] = dot(42, 42)

	assert.Equal(t, []canvas.Point{{1, 1}}, points(log.Flatten()))
}
