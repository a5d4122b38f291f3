package detections

import "math"

// gaussianTruncate matches scipy.ndimage's default kernel truncation.
const gaussianTruncate = 4.0

type sample struct {
	i0, i1 int
	w1     float64
}

// ResizeReflect resamples src to width×height the way the training
// pipeline did (skimage resize, mode='reflect', order=1, anti-aliased).
// When shrinking, the source is first smoothed with a Gaussian of
// sigma = (factor-1)/2 per axis. Samples are taken at pixel centres,
// (o+0.5)*factor-0.5, and coordinates outside the grid are mirrored
// without repeating the edge pixel. The result is clipped to the input
// value range. A same-size resize returns the input values unchanged.
func ResizeReflect(src *Plane, width, height int) *Plane {
	if src.Width == 0 || src.Height == 0 || width <= 0 || height <= 0 {
		return NewPlane(max(width, 0), max(height, 0))
	}

	fx := float64(src.Width) / float64(width)
	fy := float64(src.Height) / float64(height)

	work := src
	sigmaX := math.Max(0, (fx-1)/2)
	sigmaY := math.Max(0, (fy-1)/2)
	if sigmaX > 0 || sigmaY > 0 {
		work = gaussianBlur(src, sigmaX, sigmaY)
	}

	xs := samples(src.Width, width, fx)
	ys := samples(src.Height, height, fy)
	lo, hi := src.Range()

	dst := NewPlane(width, height)
	parallelRows(height, func(start, end int) {
		for y := start; y < end; y++ {
			sy := ys[y]
			row0 := work.Pix[sy.i0*work.Width : (sy.i0+1)*work.Width]
			row1 := work.Pix[sy.i1*work.Width : (sy.i1+1)*work.Width]
			for x, sx := range xs {
				top := float64(row0[sx.i0])*(1-sx.w1) + float64(row0[sx.i1])*sx.w1
				bottom := float64(row1[sx.i0])*(1-sx.w1) + float64(row1[sx.i1])*sx.w1
				v := float32(top*(1-sy.w1) + bottom*sy.w1)
				if v < lo {
					v = lo
				} else if v > hi {
					v = hi
				}
				dst.Pix[y*width+x] = v
			}
		}
	})
	return dst
}

func samples(n, out int, factor float64) []sample {
	s := make([]sample, out)
	for o := range s {
		c := (float64(o)+0.5)*factor - 0.5
		f := math.Floor(c)
		s[o] = sample{
			i0: mirror(int(f), n),
			i1: mirror(int(f)+1, n),
			w1: c - f,
		}
	}
	return s
}

// mirror folds i into [0, n) reflecting about the edge pixel centres
// (d c b | a b c d | c b a).
func mirror(i, n int) int {
	if n == 1 {
		return 0
	}
	period := 2 * (n - 1)
	if i < 0 {
		i = -i
	}
	i %= period
	if i >= n {
		i = period - i
	}
	return i
}

func gaussianKernel(sigma float64) []float64 {
	if sigma <= 0 {
		return []float64{1}
	}
	radius := int(gaussianTruncate*sigma + 0.5)
	kernel := make([]float64, 2*radius+1)
	var sum float64
	for i := -radius; i <= radius; i++ {
		w := math.Exp(-0.5 * float64(i*i) / (sigma * sigma))
		kernel[i+radius] = w
		sum += w
	}
	for i := range kernel {
		kernel[i] /= sum
	}
	return kernel
}

func gaussianBlur(src *Plane, sigmaX, sigmaY float64) *Plane {
	kx := gaussianKernel(sigmaX)
	ky := gaussianKernel(sigmaY)
	rx := len(kx) / 2
	ry := len(ky) / 2

	tmp := NewPlane(src.Width, src.Height)
	parallelRows(src.Height, func(start, end int) {
		for y := start; y < end; y++ {
			row := src.Pix[y*src.Width : (y+1)*src.Width]
			for x := 0; x < src.Width; x++ {
				var acc float64
				for k, w := range kx {
					acc += w * float64(row[mirror(x+k-rx, src.Width)])
				}
				tmp.Pix[y*src.Width+x] = float32(acc)
			}
		}
	})

	dst := NewPlane(src.Width, src.Height)
	parallelRows(src.Height, func(start, end int) {
		for y := start; y < end; y++ {
			for x := 0; x < src.Width; x++ {
				var acc float64
				for k, w := range ky {
					acc += w * float64(tmp.Pix[mirror(y+k-ry, src.Height)*src.Width+x])
				}
				dst.Pix[y*src.Width+x] = float32(acc)
			}
		}
	})
	return dst
}
