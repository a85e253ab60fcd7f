package worker

import "image"

// Stride is the sampling step along both axes.
const Stride = 10

// Color is an unclamped average of the R, G and B channels.
type Color struct {
	R, G, B float64
}

// AverageColor samples img every Stride pixels on both axes and averages
// the visited points. When the dimensions are multiples of Stride the
// divisor is (w/Stride)*(h/Stride); otherwise it is still the number of
// points visited. An empty image yields the zero colour.
func AverageColor(img *image.RGBA) Color {
	b := img.Rect
	var r, g, bl, n uint64
	for y := b.Min.Y; y < b.Max.Y; y += Stride {
		for x := b.Min.X; x < b.Max.X; x += Stride {
			i := img.PixOffset(x, y)
			r += uint64(img.Pix[i])
			g += uint64(img.Pix[i+1])
			bl += uint64(img.Pix[i+2])
			n++
		}
	}
	if n == 0 {
		return Color{}
	}
	return Color{
		R: float64(r) / float64(n),
		G: float64(g) / float64(n),
		B: float64(bl) / float64(n),
	}
}
