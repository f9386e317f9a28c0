package geoinfer

import (
	"math"
	"sort"
	"sync"

	"github.com/ctessum/geom"
	"github.com/ctessum/geom/index/rtree"
	"github.com/ctessum/geom/proj"
	"go.uber.org/zap"
)

const (
	rtreeMinChildren = 25
	rtreeMaxChildren = 50
)

type indexEntry struct {
	seq int
	fp  Footprint
	box BoundingBox
}

func (e *indexEntry) Bounds() *geom.Bounds {
	return &geom.Bounds{
		Min: geom.Point{X: e.box.MinX, Y: e.box.MinY},
		Max: geom.Point{X: e.box.MaxX, Y: e.box.MaxY},
	}
}

// 以下方法均委托给外包框，使记录可直接存入R树
var _ geom.Geom = (*indexEntry)(nil)

func (e *indexEntry) Len() int {
	return e.Bounds().Len()
}

func (e *indexEntry) Points() func() geom.Point {
	return e.Bounds().Points()
}

func (e *indexEntry) Similar(g geom.Geom, tolerance float64) bool {
	return e.Bounds().Similar(g, tolerance)
}

func (e *indexEntry) Transform(t proj.Transformer) (geom.Geom, error) {
	return e.Bounds().Transform(t)
}

// 基于R树的影像范围索引，每个影像一条记录
type RtreeIndex struct {
	tree    *rtree.Rtree
	entries []*indexEntry
	ids     map[string]struct{}
	mu      sync.RWMutex
	logger  *zap.Logger
	logTag  string
}

func NewRtreeIndex(logger *zap.Logger) *RtreeIndex {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RtreeIndex{
		tree:   rtree.NewTree(rtreeMinChildren, rtreeMaxChildren),
		ids:    map[string]struct{}{},
		logger: logger,
		logTag: "SpatialIndex:",
	}
}

func (x *RtreeIndex) Insert(fp Footprint) (err error) {
	x.mu.Lock()
	defer x.mu.Unlock()
	if _, ok := x.ids[fp.AssetID]; ok {
		x.logger.Error(x.logTag+"duplicate asset", zap.String("asset", fp.AssetID))
		err = ErrDuplicateAsset
		return
	}
	e := &indexEntry{seq: len(x.entries), fp: fp, box: fp.Bounds()}
	x.tree.Insert(e)
	x.entries = append(x.entries, e)
	x.ids[fp.AssetID] = struct{}{}
	x.logger.Debug(x.logTag+"insert asset", zap.String("asset", fp.AssetID),
		zap.Float64("minx", fp.MinX), zap.Float64("maxx", fp.MaxX),
		zap.Float64("miny", fp.MinY), zap.Float64("maxy", fp.MaxY))
	return
}

// 返回与roi相交（含边界接触）的影像，按插入顺序排列
func (x *RtreeIndex) Intersect(roi *BoundingBox) (ret []Footprint) {
	x.mu.RLock()
	defer x.mu.RUnlock()
	if roi == nil {
		ret = make([]Footprint, len(x.entries))
		for i, e := range x.entries {
			ret[i] = e.fp
		}
		return
	}
	// 查询框外扩一个浮点步长，保证R树检索不漏掉恰好接触的影像
	query := &geom.Bounds{
		Min: geom.Point{X: math.Nextafter(roi.MinX, math.Inf(-1)), Y: math.Nextafter(roi.MinY, math.Inf(-1))},
		Max: geom.Point{X: math.Nextafter(roi.MaxX, math.Inf(1)), Y: math.Nextafter(roi.MaxY, math.Inf(1))},
	}
	var hits []*indexEntry
	for _, h := range x.tree.SearchIntersect(query) {
		e := h.(*indexEntry)
		if e.box.Intersects(*roi) {
			hits = append(hits, e)
		}
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].seq < hits[j].seq })
	ret = make([]Footprint, len(hits))
	for i, e := range hits {
		ret[i] = e.fp
	}
	return
}

func (x *RtreeIndex) Len() int {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return len(x.entries)
}
