package geoinfer

import "fmt"

func PointsToWkt(x1, x2, y1, y2 float64) string {
	return fmt.Sprintf("POLYGON((%[1]f %[3]f, %[1]f %[4]f, %[2]f %[4]f, %[2]f %[3]f, %[1]f %[3]f))", x1, x2, y1, y2)
}

// span: [minx, maxx, miny, maxy]
func SpanToWkt(span [4]float64) string {
	return PointsToWkt(span[0], span[1], span[2], span[3])
}

func BoxToSpan(b BoundingBox) [4]float64 {
	return [4]float64{b.MinX, b.MaxX, b.MinY, b.MaxY}
}

// 按源影像尺寸在右、下两侧补0至 bands×size×size
func PadArray(a *Array, size int) *Array {
	if a.Height == size && a.Width == size {
		return a
	}
	out := NewArray(a.Bands, size, size)
	h, w := min(a.Height, size), min(a.Width, size)
	for b := 0; b < a.Bands; b++ {
		for r := 0; r < h; r++ {
			src := a.Data[(b*a.Height+r)*a.Width:]
			copy(out.Data[(b*size+r)*size:(b*size+r)*size+w], src[:w])
		}
	}
	return out
}
