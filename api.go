package geoinfer

import (
	"context"
	"math"

	"gonum.org/v1/gonum/mat"
)

// 栅格影像的地理范围及元数据，由影像头信息得到后不再修改
type Footprint struct {
	AssetID      string
	MinX, MaxX   float64
	MinY, MaxY   float64
	Res          float64 // x方向分辨率（地理单位/像素）
	Bands        int
	CRS          string // 投影WKT
	SRID         int    // 可识别时的EPSG编号，否则为0
	Width        int    // 像素
	Height       int    // 像素
	GeoTransform [6]float64
	DataType     string
}

// 克隆元数据作为输出栅格的模板；不带源影像的nodata，否则值为0时会遮住类别0
func (f Footprint) Metadata() Metadata {
	return Metadata{
		CRS:          f.CRS,
		GeoTransform: f.GeoTransform,
		Width:        f.Width,
		Height:       f.Height,
		Bands:        f.Bands,
		DataType:     f.DataType,
	}
}

func (f Footprint) Bounds() BoundingBox {
	return BoundingBox{
		MinX: f.MinX, MaxX: f.MaxX,
		MinY: f.MinY, MaxY: f.MaxY,
		MinT: 0, MaxT: math.MaxInt64,
	}
}

// 空间索引的查询范围（含时间区间，影像的时间区间恒为[0, MaxInt64]）
type BoundingBox struct {
	MinX float64 `json:"minx"`
	MaxX float64 `json:"maxx"`
	MinY float64 `json:"miny"`
	MaxY float64 `json:"maxy"`
	MinT int64   `json:"mint"`
	MaxT int64   `json:"maxt"`
}

func (b BoundingBox) Valid() bool {
	return b.MinX <= b.MaxX && b.MinY <= b.MaxY && b.MinT <= b.MaxT
}

// 闭区间相交，仅边界接触也算相交
func (b BoundingBox) Intersects(o BoundingBox) bool {
	return b.MinX <= o.MaxX && o.MinX <= b.MaxX &&
		b.MinY <= o.MaxY && o.MinY <= b.MaxY &&
		b.MinT <= o.MaxT && o.MinT <= b.MaxT
}

// 输出栅格的元数据模板
type Metadata struct {
	CRS          string
	GeoTransform [6]float64
	Width        int
	Height       int
	Bands        int
	DataType     string
	Compress     string
	NoData       *float64
}

// 按波段优先（CHW）排列的数值数组
type Array struct {
	Bands  int
	Height int
	Width  int
	Data   []float64
}

func NewArray(bands, height, width int) *Array {
	return &Array{
		Bands:  bands,
		Height: height,
		Width:  width,
		Data:   make([]float64, bands*height*width),
	}
}

func (a *Array) At(b, y, x int) float64 {
	return a.Data[(b*a.Height+y)*a.Width+x]
}

func (a *Array) Set(b, y, x int, v float64) {
	a.Data[(b*a.Height+y)*a.Width+x] = v
}

// 第b个波段的切片视图
func (a *Array) Band(b int) []float64 {
	n := a.Height * a.Width
	return a.Data[b*n : (b+1)*n]
}

// 单波段uint8分类结果
type LabelRaster struct {
	Width  int
	Height int
	Pix    []uint8
}

func (l *LabelRaster) At(x, y int) uint8 {
	return l.Pix[y*l.Width+x]
}

// 一个待推理切片
type Tile struct {
	Seq     int // 在采样序列中的位置
	Row     int
	Col     int
	X, Y    int // 像素原点
	Width   int
	Height  int
	Weight  *mat.Dense // 指向窗口库，只读
	AssetID string
}

// 栅格读写能力
type Accessor interface {
	Open(path string) (Footprint, error)
	// 越界部分不返回，调用方负责补齐
	ReadWindow(ctx context.Context, asset string, x, y, w, h int) (*Array, error)
	WriteRaster(path string, labels *LabelRaster, meta Metadata) error
}

// 空间索引能力，roi为nil表示全部影像
type SpatialIndex interface {
	Insert(fp Footprint) error
	Intersect(roi *BoundingBox) []Footprint
}

// 分类模型：输入 bands×patch×patch，输出 classes×patch×patch 原始得分
type Model interface {
	Classes() int
	Predict(ctx context.Context, batch []*Array) ([]*Array, error)
}

// 标签栅格矢量化（下游，可选）
type Vectorizer interface {
	Vectorize(ctx context.Context, maskPath string) error
}
