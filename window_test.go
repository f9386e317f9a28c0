package geoinfer

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWindowBankRejectsOddSize(t *testing.T) {
	t.Parallel()
	for _, n := range []int{-2, 0, 7, 255} {
		_, err := NewWindowBank(n)
		assert.True(t, errors.Is(err, ErrConfiguration), "size %d", n)
	}
}

func TestWindowBankRange(t *testing.T) {
	t.Parallel()
	bank, err := NewWindowBank(16)
	require.NoError(t, err)
	for r := First; r <= Last; r++ {
		for c := First; c <= Last; c++ {
			w := bank.Window(r, c)
			rows, cols := w.Dims()
			require.Equal(t, 16, rows)
			require.Equal(t, 16, cols)
			for i := 0; i < rows; i++ {
				for j := 0; j < cols; j++ {
					v := w.At(i, j)
					assert.True(t, v >= 0 && v <= 1+1e-12, "window[%d][%d] (%d,%d) = %v", r, c, i, j, v)
				}
			}
		}
	}
}

// 周期汉宁窗的峰值在 N/2，绕峰值旋转180°对称
func TestWindowBankCenterSymmetry(t *testing.T) {
	t.Parallel()
	const n = 16
	bank, err := NewWindowBank(n)
	require.NoError(t, err)
	center := bank.Window(Middle, Middle)
	assert.InDelta(t, 1.0, center.At(n/2, n/2), 1e-12)
	assert.Equal(t, 0.0, center.At(0, n/2))
	for i := 1; i < n; i++ {
		for j := 1; j < n; j++ {
			assert.InDelta(t, center.At(i, j), center.At(n-i, n-j), 1e-12, "(%d,%d)", i, j)
		}
	}
}

func TestWindowBankEdgesFlatOutwardTaperInward(t *testing.T) {
	t.Parallel()
	const n = 16
	const step = n / 2
	bank, err := NewWindowBank(n)
	require.NoError(t, err)
	up := bank.Window(First, Middle)
	bottom := bank.Window(Last, Middle)
	left := bank.Window(Middle, First)
	right := bank.Window(Middle, Last)

	// 第0行/列的汉宁值为0，跳过
	for j := 1; j < n; j++ {
		for i := 0; i < step; i++ {
			assert.Equal(t, up.At(step, j), up.At(i, j), "up flat (%d,%d)", i, j)
			assert.Equal(t, left.At(j, step), left.At(j, i), "left flat (%d,%d)", j, i)
		}
		for i := step; i < n-1; i++ {
			assert.Greater(t, up.At(i, j), up.At(i+1, j), "up taper (%d,%d)", i, j)
			assert.Greater(t, left.At(j, i), left.At(j, i+1), "left taper (%d,%d)", j, i)
		}
		for i := step; i < n; i++ {
			assert.Equal(t, bottom.At(step, j), bottom.At(i, j), "bottom flat (%d,%d)", i, j)
			assert.Equal(t, right.At(j, step), right.At(j, i), "right flat (%d,%d)", j, i)
		}
		for i := 0; i < step; i++ {
			assert.Less(t, bottom.At(i, j), bottom.At(i+1, j), "bottom taper (%d,%d)", i, j)
			assert.Less(t, right.At(j, i), right.At(j, i+1), "right taper (%d,%d)", j, i)
		}
	}
}

func TestWindowBankCornersAreOne(t *testing.T) {
	t.Parallel()
	const n = 16
	const step = n / 2
	bank, err := NewWindowBank(n)
	require.NoError(t, err)
	cases := []struct {
		name           string
		row, col       Border
		r0, r1, c0, c1 int
	}{
		{"upper left", First, First, 0, step, 0, step},
		{"upper right", First, Last, 0, step, step, n},
		{"bottom left", Last, First, step, n, 0, step},
		{"bottom right", Last, Last, step, n, step, n},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := bank.Window(tc.row, tc.col)
			for i := tc.r0; i < tc.r1; i++ {
				for j := tc.c0; j < tc.c1; j++ {
					require.Equal(t, 1.0, w.At(i, j), "(%d,%d)", i, j)
				}
			}
		})
	}
}

// 角窗口的非角点部分分别来自相邻两条边的窗口
func TestWindowBankCornerComposition(t *testing.T) {
	t.Parallel()
	const n = 8
	const step = n / 2
	bank, err := NewWindowBank(n)
	require.NoError(t, err)
	ul := bank.Window(First, First)
	up := bank.Window(First, Middle)
	left := bank.Window(Middle, First)
	center := bank.Window(Middle, Middle)
	for i := 0; i < step; i++ {
		for j := step; j < n; j++ {
			assert.Equal(t, up.At(i, j), ul.At(i, j))
		}
	}
	for i := step; i < n; i++ {
		for j := 0; j < step; j++ {
			assert.Equal(t, left.At(i, j), ul.At(i, j))
		}
		for j := step; j < n; j++ {
			assert.Equal(t, center.At(i, j), ul.At(i, j))
		}
	}
}
