package geoinfer

import (
	"iter"
	"math"

	"go.uber.org/zap"
	"gonum.org/v1/gonum/mat"
)

// 按固定尺寸和步长生成推理切片的采样器
// 序列惰性生成、可重复遍历，遍历本身不修改采样器状态
type Sampler struct {
	index   SpatialIndex
	patch   int
	stride  int
	roi     *BoundingBox
	windows *WindowBank
	ones    *mat.Dense
	hits    []samplerHit // 可切分的影像
	small   []samplerHit // 小于一个切片的影像
	length  int
	height  int
	width   int
	logger  *zap.Logger
	logTag  string
}

type samplerHit struct {
	fp     Footprint
	height int // 像素
	width  int
	rows   int
	cols   int
}

type SamplerOptions struct {
	PatchSize int
	Stride    int
	ROI       *BoundingBox // nil表示全部影像
	Windows   *WindowBank  // 可选，相同尺寸的窗口库可共享
}

func NewSampler(index SpatialIndex, opts SamplerOptions, logger *zap.Logger) (s *Sampler, err error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err = validatePatch(opts.PatchSize, opts.Stride); err != nil {
		return
	}
	if opts.ROI != nil && !opts.ROI.Valid() {
		err = ErrInvalidRoi
		return
	}
	windows := opts.Windows
	if windows == nil {
		if windows, err = NewWindowBank(opts.PatchSize); err != nil {
			return
		}
	} else if windows.Size() != opts.PatchSize {
		err = configErr("windows", "window size %d does not match patch size %d", windows.Size(), opts.PatchSize)
		return
	}
	s = &Sampler{
		index:   index,
		patch:   opts.PatchSize,
		stride:  opts.Stride,
		roi:     opts.ROI,
		windows: windows,
		ones:    onesWindow(opts.PatchSize),
		logger:  logger,
		logTag:  "Sampler:",
	}
	for _, fp := range index.Intersect(opts.ROI) {
		h := samplerHit{
			fp:     fp,
			height: pixelSpan(fp.MaxY-fp.MinY, fp.Res),
			width:  pixelSpan(fp.MaxX-fp.MinX, fp.Res),
		}
		patchInCrs := float64(s.patch) * fp.Res
		if fp.MaxX-fp.MinX >= patchInCrs && fp.MaxY-fp.MinY >= patchInCrs {
			h.rows = gridSteps(h.height, s.patch, s.stride)
			h.cols = gridSteps(h.width, s.patch, s.stride)
			s.hits = append(s.hits, h)
			s.length += h.rows * h.cols
		} else {
			s.small = append(s.small, h)
			s.length++
		}
		// 以最后一个命中影像的尺寸作为画布尺寸
		s.height, s.width = h.height, h.width
	}
	s.logger.Info(s.logTag+"sampler ready", zap.Int("patch", s.patch), zap.Int("stride", s.stride),
		zap.Int("tiled", len(s.hits)), zap.Int("small", len(s.small)), zap.Int("tiles", s.length))
	return
}

// 切片总数，无需实际生成切片
func (s *Sampler) Len() int {
	return s.length
}

// 最后一个命中影像的像素高、宽
func (s *Sampler) Dims() (height, width int) {
	return s.height, s.width
}

func (s *Sampler) Windows() *WindowBank {
	return s.windows
}

func (s *Sampler) All() iter.Seq[Tile] {
	return func(yield func(Tile) bool) {
		seq := 0
		for _, h := range s.hits {
			for row := 0; row < h.rows; row++ {
				y := clampOrigin(row, s.stride, s.patch, h.height)
				for col := 0; col < h.cols; col++ {
					x := clampOrigin(col, s.stride, s.patch, h.width)
					t := Tile{
						Seq:     seq,
						Row:     row,
						Col:     col,
						X:       x,
						Y:       y,
						Width:   s.patch,
						Height:  s.patch,
						Weight:  s.windows.Window(borderOf(row, h.rows), borderOf(col, h.cols)),
						AssetID: h.fp.AssetID,
					}
					if !yield(t) {
						return
					}
					seq++
				}
			}
		}
		for _, h := range s.small {
			t := Tile{
				Seq:     seq,
				Width:   s.patch,
				Height:  s.patch,
				Weight:  s.ones,
				AssetID: h.fp.AssetID,
			}
			if !yield(t) {
				return
			}
			seq++
		}
	}
}

// ceil((dim-patch)/stride)+1
func gridSteps(dim, patch, stride int) int {
	if dim <= patch {
		return 1
	}
	return (dim-patch+stride-1)/stride + 1
}

// 末行/列越界时回退到 dim-patch，重叠更多而不补造数据
func clampOrigin(i, stride, patch, dim int) int {
	origin := stride * i
	if origin+patch > dim {
		origin = dim - patch
	}
	return origin
}

// 只有一步时既是首也是尾，取Last
func borderOf(i, steps int) Border {
	b := Middle
	if i == 0 {
		b = First
	}
	if i == steps-1 {
		b = Last
	}
	return b
}

func pixelSpan(extent, res float64) int {
	return int(math.Round(extent / res))
}
