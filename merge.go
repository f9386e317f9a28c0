package geoinfer

import (
	"fmt"
	"math"
	"sync"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

// 推理结果拼接画布
// acc 累加各切片 softmax(score)*weight，norm 累加权重；norm 初始为1而非0，
// 未被任何切片覆盖的像素因此得到确定但无实际含义的类别0
type Canvas struct {
	classes   int
	height    int
	width     int
	acc       []float32 // classes × height × width
	norm      []float32 // height × width
	tiles     int
	finalized bool
	accessor  Accessor
	mu        sync.Mutex
	logger    *zap.Logger
	logTag    string
}

// height/width 应为影像尺寸加一个切片的余量，保证回退后的边缘切片不越界
func NewCanvas(accessor Accessor, classes, height, width int, logger *zap.Logger) (c *Canvas, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if classes <= 0 || classes > MaxClasses {
		err = configErr("classes", "must be in [1, %d], got %d", MaxClasses, classes)
		return
	}
	if height <= 0 || width <= 0 {
		err = configErr("canvas", "invalid canvas size %dx%d", width, height)
		return
	}
	n := height * width
	c = &Canvas{
		classes:  classes,
		height:   height,
		width:    width,
		acc:      make([]float32, classes*n),
		norm:     make([]float32, n),
		accessor: accessor,
		logger:   logger,
		logTag:   "Canvas:",
	}
	for i := range c.norm {
		c.norm[i] = 1
	}
	logger.Info(c.logTag+"canvas allocated", zap.Int("classes", classes), zap.Int("height", height), zap.Int("width", width))
	return
}

func (c *Canvas) Classes() int {
	return c.classes
}

// 将一个切片的原始得分按权重累加到(x, y)处
// 形状不匹配属于调用方违约，直接panic
func (c *Canvas) Merge(scores *Array, weight *mat.Dense, x, y int) {
	ph, pw := weight.Dims()
	if scores.Bands != c.classes || scores.Height != ph || scores.Width != pw {
		panic(fmt.Sprintf("geoinfer: scores %dx%dx%d do not match classes %d and weight %dx%d",
			scores.Bands, scores.Height, scores.Width, c.classes, ph, pw))
	}
	if x < 0 || y < 0 || x+pw > c.width || y+ph > c.height {
		panic(fmt.Sprintf("geoinfer: tile at (%d,%d) size %dx%d outside canvas %dx%d", x, y, pw, ph, c.width, c.height))
	}
	probs := softmax(scores)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finalized {
		panic("geoinfer: merge on finalized canvas")
	}
	n := c.height * c.width
	for r := 0; r < ph; r++ {
		wrow := weight.RawRowView(r)
		off := (y+r)*c.width + x
		for k := 0; k < c.classes; k++ {
			src := probs.Band(k)[r*pw : (r+1)*pw]
			dst := c.acc[k*n+off : k*n+off+pw]
			for i, v := range src {
				dst[i] += float32(v * wrow[i])
			}
		}
		norm := c.norm[off : off+pw]
		for i, v := range wrow {
			norm[i] += float32(v)
		}
	}
	c.tiles++
}

// 归一化、取最大类别，并按源影像元数据（单波段、Byte、LZW）写出
// 输出裁剪回 meta.Width × meta.Height；画布只能结束一次
func (c *Canvas) Finalize(meta Metadata, outPath string) (labels *LabelRaster, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.finalized {
		err = ErrCanvasFinalized
		return
	}
	c.finalized = true
	width, height := meta.Width, meta.Height
	if width <= 0 || width > c.width {
		width = c.width
	}
	if height <= 0 || height > c.height {
		height = c.height
	}
	labels = &LabelRaster{Width: width, Height: height, Pix: make([]uint8, width*height)}
	n := c.height * c.width
	for r := 0; r < height; r++ {
		for col := 0; col < width; col++ {
			p := r*c.width + col
			best, bestV := 0, float32(math.Inf(-1))
			norm := c.norm[p]
			for k := 0; k < c.classes; k++ {
				if v := c.acc[k*n+p] / norm; v > bestV {
					best, bestV = k, v
				}
			}
			labels.Pix[r*width+col] = uint8(best)
		}
	}
	// 释放缓冲区，画布不可复用
	c.acc, c.norm = nil, nil

	out := meta
	out.Width, out.Height = width, height
	out.Bands = 1
	out.DataType = LABEL_DATA_TYPE
	out.Compress = COMPRESS_LZW
	if c.accessor != nil && outPath != "" {
		if err = c.accessor.WriteRaster(outPath, labels, out); err != nil {
			c.logger.Error(c.logTag+"write mask failed", zap.String("out", outPath), zap.Error(err))
			return
		}
		c.logger.Info(c.logTag+"mask saved", zap.String("out", outPath), zap.Int("tiles", c.tiles))
	}
	return
}

// 沿类别轴做softmax，先减去最大值保证数值稳定
func softmax(scores *Array) *Array {
	out := NewArray(scores.Bands, scores.Height, scores.Width)
	n := scores.Height * scores.Width
	vec := make([]float64, scores.Bands)
	for p := 0; p < n; p++ {
		for k := range vec {
			vec[k] = scores.Data[k*n+p]
		}
		floats.AddConst(-floats.Max(vec), vec)
		for k, v := range vec {
			vec[k] = math.Exp(v)
		}
		floats.Scale(1/floats.Sum(vec), vec)
		for k, v := range vec {
			out.Data[k*n+p] = v
		}
	}
	return out
}
