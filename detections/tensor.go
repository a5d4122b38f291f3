package detections

import (
	"image"
	"math"
)

// Tensor is a dense float32 tensor in NHWC layout.
type Tensor struct {
	Shape []int64
	Data  []float32
}

func NewTensor(shape ...int64) *Tensor {
	n := int64(1)
	for _, d := range shape {
		n *= d
	}
	return &Tensor{
		Shape: shape,
		Data:  make([]float32, n),
	}
}

func (t *Tensor) Height() int   { return int(t.Shape[1]) }
func (t *Tensor) Width() int    { return int(t.Shape[2]) }
func (t *Tensor) Channels() int { return int(t.Shape[3]) }

func (t *Tensor) At(y, x, c int) float32 {
	return t.Data[(y*t.Width()+x)*t.Channels()+c]
}

// Plane is a single-channel float image stored row-major.
type Plane struct {
	Width, Height int
	Pix           []float32
}

func NewPlane(width, height int) *Plane {
	return &Plane{
		Width:  width,
		Height: height,
		Pix:    make([]float32, width*height),
	}
}

func (p *Plane) At(x, y int) float32 {
	return p.Pix[y*p.Width+x]
}

func (p *Plane) Set(x, y int, v float32) {
	p.Pix[y*p.Width+x] = v
}

func (p *Plane) Range() (lo, hi float32) {
	if len(p.Pix) == 0 {
		return 0, 0
	}
	lo, hi = p.Pix[0], p.Pix[0]
	for _, v := range p.Pix[1:] {
		if v < lo {
			lo = v
		}
		if v > hi {
			hi = v
		}
	}
	return lo, hi
}

func (p *Plane) Max() float32 {
	_, hi := p.Range()
	return hi
}

// Image maps values in [0,1] to an 8-bit grayscale image.
func (p *Plane) Image() *image.Gray {
	img := image.NewGray(image.Rect(0, 0, p.Width, p.Height))
	for i, v := range p.Pix {
		switch {
		case v <= 0:
			img.Pix[i] = 0
		case v >= 1:
			img.Pix[i] = 255
		default:
			img.Pix[i] = uint8(math.Round(float64(v) * 255))
		}
	}
	return img
}

// Tensor wraps the plane as a [1, H, W, 1] batch.
func (p *Plane) Tensor() *Tensor {
	data := make([]float32, len(p.Pix))
	copy(data, p.Pix)
	return &Tensor{
		Shape: []int64{1, int64(p.Height), int64(p.Width), GrayChannels},
		Data:  data,
	}
}

// Stretch rescales the plane so its minimum maps to 0 and its maximum to 1.
// A flat plane becomes all zeros.
func (p *Plane) Stretch() *Plane {
	out := NewPlane(p.Width, p.Height)
	lo, hi := p.Range()
	if hi <= lo {
		return out
	}
	span := hi - lo
	for i, v := range p.Pix {
		out.Pix[i] = (v - lo) / span
	}
	return out
}
