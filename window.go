package geoinfer

import (
	"math"

	"gonum.org/v1/gonum/mat"
)

// 切片在网格某一轴上的位置
type Border int

const (
	First Border = iota
	Middle
	Last
)

// 3×3 融合窗口，按(行位置, 列位置)索引；构建后只读，可被多个采样器共享
type WindowBank struct {
	size    int
	windows [3][3]*mat.Dense
}

// 生成覆盖中心、四边及四角的9个二维窗口
// 边缘窗口在朝外的一半用峰值行/列填平，角点块置1，避免影像真实边界处信号被衰减
func NewWindowBank(size int) (*WindowBank, error) {
	if size <= 0 || size%2 != 0 {
		return nil, configErr("patch_size", "window size must be positive and even, got %d", size)
	}
	step := size >> 1
	taper := mat.NewVecDense(size, hann(size))
	center := mat.NewDense(size, size, nil)
	center.Outer(1, taper, taper)

	up := plateauRows(center, 0, step, step)
	bottom := plateauRows(center, step, size, step)
	left := plateauCols(center, 0, step, step)
	right := plateauCols(center, step, size, step)

	// 四角：相邻两条边各取一部分拼接，角点块全1
	ul := mat.DenseCopyOf(left)
	copyBlock(ul, up, 0, step, step, size)
	fillOnes(ul, 0, step, 0, step)

	ur := mat.DenseCopyOf(right)
	copyBlock(ur, up, 0, step, 0, step)
	fillOnes(ur, 0, step, step, size)

	bl := mat.DenseCopyOf(left)
	copyBlock(bl, bottom, step, size, step, size)
	fillOnes(bl, step, size, 0, step)

	br := mat.DenseCopyOf(right)
	copyBlock(br, bottom, step, size, 0, step)
	fillOnes(br, step, size, step, size)

	return &WindowBank{
		size: size,
		windows: [3][3]*mat.Dense{
			{ul, up, ur},
			{left, center, right},
			{bl, bottom, br},
		},
	}, nil
}

func (w *WindowBank) Size() int {
	return w.size
}

func (w *WindowBank) Window(row, col Border) *mat.Dense {
	return w.windows[row][col]
}

// 非对称（周期）汉宁窗，n=N/2处取峰值1，n=0处为0
func hann(n int) []float64 {
	w := make([]float64, n)
	for i := range w {
		w[i] = 0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n))
	}
	return w
}

// 将[r0,r1)行替换为第src行
func plateauRows(m *mat.Dense, r0, r1, src int) *mat.Dense {
	out := mat.DenseCopyOf(m)
	row := m.RawRowView(src)
	for r := r0; r < r1; r++ {
		out.SetRow(r, row)
	}
	return out
}

// 将[c0,c1)列替换为第src列
func plateauCols(m *mat.Dense, c0, c1, src int) *mat.Dense {
	out := mat.DenseCopyOf(m)
	col := mat.Col(nil, src, m)
	for c := c0; c < c1; c++ {
		out.SetCol(c, col)
	}
	return out
}

func copyBlock(dst, src *mat.Dense, r0, r1, c0, c1 int) {
	for r := r0; r < r1; r++ {
		for c := c0; c < c1; c++ {
			dst.Set(r, c, src.At(r, c))
		}
	}
}

func fillOnes(m *mat.Dense, r0, r1, c0, c1 int) {
	for r := r0; r < r1; r++ {
		for c := c0; c < c1; c++ {
			m.Set(r, c, 1)
		}
	}
}

func onesWindow(size int) *mat.Dense {
	m := mat.NewDense(size, size, nil)
	fillOnes(m, 0, size, 0, size)
	return m
}
