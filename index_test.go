package geoinfer

import (
	"fmt"
	"math"
	"testing"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ids(fps []Footprint) (ret []string) {
	for _, fp := range fps {
		ret = append(ret, fp.AssetID)
	}
	return
}

func TestRtreeIndexIntersect(t *testing.T) {
	t.Parallel()
	idx := testIndex(t,
		testFootprint("a", 0, 0, 10, 10, 1),
		testFootprint("b", 20, 0, 10, 10, 1),
		testFootprint("c", 500000.5, 4000000.25, 1000, 1000, 0.5),
	)
	cases := []struct {
		name string
		roi  *BoundingBox
		want []string
	}{
		{"all", nil, []string{"a", "b", "c"}},
		{"inside", &BoundingBox{MinX: 1, MaxX: 2, MinY: 1, MaxY: 2}, []string{"a"}},
		{"touch corner", &BoundingBox{MinX: 10, MaxX: 15, MinY: 10, MaxY: 15}, []string{"a"}},
		{"touch both", &BoundingBox{MinX: 10, MaxX: 20, MinY: 5, MaxY: 6}, []string{"a", "b"}},
		{"gap", &BoundingBox{MinX: 10.5, MaxX: 19.5, MinY: 0, MaxY: 10}, nil},
		{"degenerate point", &BoundingBox{MinX: 30, MaxX: 30, MinY: 10, MaxY: 10}, []string{"b"}},
		{"disjoint", &BoundingBox{MinX: -100, MaxX: -50, MinY: -100, MaxY: -50}, nil},
		{"touch far", &BoundingBox{MinX: 500500.5, MaxX: 500600, MinY: 4000000.25 - 10, MaxY: 4000000.25}, []string{"c"}},
		{"past time", &BoundingBox{MinX: 0, MaxX: 100, MinY: 0, MaxY: 100, MinT: -10, MaxT: -1}, nil},
		{"touch time", &BoundingBox{MinX: 0, MaxX: 100, MinY: 0, MaxY: 100, MinT: -10, MaxT: 0}, []string{"a", "b"}},
		{"future time", &BoundingBox{MinX: 0, MaxX: 100, MinY: 0, MaxY: 100, MinT: math.MaxInt64, MaxT: math.MaxInt64}, []string{"a", "b"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ids(idx.Intersect(tc.roi)))
		})
	}
}

func TestRtreeIndexDuplicate(t *testing.T) {
	t.Parallel()
	idx := NewRtreeIndex(nil)
	require.NoError(t, idx.Insert(testFootprint("a", 0, 0, 10, 10, 1)))
	err := idx.Insert(testFootprint("a", 100, 100, 10, 10, 1))
	assert.ErrorIs(t, err, ErrDuplicateAsset)
	assert.Equal(t, 1, idx.Len())
	assert.Empty(t, idx.Intersect(&BoundingBox{MinX: 100, MaxX: 110, MinY: 100, MaxY: 110}))
}

// 插入数量超过R树节点容量时仍保持插入顺序
func TestRtreeIndexOrderStable(t *testing.T) {
	t.Parallel()
	idx := NewRtreeIndex(nil)
	var want []string
	for i := 0; i < 20; i++ {
		for j := 0; j < 20; j++ {
			id := fmt.Sprintf("%02d_%02d", i, j)
			require.NoError(t, idx.Insert(testFootprint(id, float64(j*100), float64(i*100), 100, 100, 1)))
			if i >= 5 && i <= 9 && j >= 3 && j <= 7 {
				want = append(want, id)
			}
		}
	}
	roi := &BoundingBox{MinX: 350, MaxX: 750, MinY: 550, MaxY: 950}
	first := ids(idx.Intersect(roi))
	assert.Equal(t, want, first)
	for i := 0; i < 5; i++ {
		assert.Equal(t, first, ids(idx.Intersect(roi)))
	}
	assert.Len(t, idx.Intersect(nil), 400)
}

// 索引记录本身即R树中的几何对象，检索结果可还原为记录
func TestIndexEntryInRtree(t *testing.T) {
	t.Parallel()
	e := &indexEntry{seq: 3, fp: testFootprint("a", 10, 20, 5, 4, 1)}
	e.box = e.fp.Bounds()
	bounds := e.Bounds()
	assert.Equal(t, 4, e.Len())
	next := e.Points()
	assert.Equal(t, bounds.Min, next())
	next()
	assert.Equal(t, bounds.Max, next())
	assert.True(t, e.Similar(bounds, 0))
	assert.False(t, e.Similar(&geom.Bounds{Min: bounds.Min, Max: geom.Point{X: 0, Y: 0}}, 0))

	tree := rtree.NewTree(rtreeMinChildren, rtreeMaxChildren)
	tree.Insert(e)
	hits := tree.SearchIntersect(&geom.Bounds{Min: geom.Point{X: 12, Y: 21}, Max: geom.Point{X: 13, Y: 22}})
	require.Len(t, hits, 1)
	got, ok := hits[0].(*indexEntry)
	require.True(t, ok)
	assert.Same(t, e, got)
	assert.Empty(t, tree.SearchIntersect(&geom.Bounds{Min: geom.Point{X: 100, Y: 100}, Max: geom.Point{X: 101, Y: 101}}))
}
