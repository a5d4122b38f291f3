// Package annotations renders segmentation results onto a figure canvas and
// persists the resulting PNG.
package annotations

import (
	"fmt"
	"image"
	"math"
)

// Layout reproduces a single matplotlib subplot: a figure of
// CanvasWidth×CanvasHeight pixels with the axes box placed by the subplot
// fractions, the image fitted into it with equal aspect, and a fixed crop
// window cut out of the saved figure.
type Layout struct {
	CanvasWidth, CanvasHeight int
	Left, Right, Bottom, Top  float64
	Crop                      image.Rectangle
	LineWidth                 int
}

// DefaultLayout is a 20×15 inch figure at 100 dpi with matplotlib's default
// subplot parameters.
func DefaultLayout() Layout {
	return Layout{
		CanvasWidth:  2000,
		CanvasHeight: 1500,
		Left:         0.125,
		Right:        0.9,
		Bottom:       0.11,
		Top:          0.88,
		Crop:         image.Rect(415, 140, 1635, 1370),
		LineWidth:    3,
	}
}

func (l Layout) Canvas() image.Rectangle {
	return image.Rect(0, 0, l.CanvasWidth, l.CanvasHeight)
}

// Axes is the subplot area in canvas pixels (y grows downwards).
func (l Layout) Axes() image.Rectangle {
	w, h := float64(l.CanvasWidth), float64(l.CanvasHeight)
	return image.Rect(
		int(math.Round(l.Left*w)),
		int(math.Round((1-l.Top)*h)),
		int(math.Round(l.Right*w)),
		int(math.Round((1-l.Bottom)*h)),
	)
}

// ImageBox is where an imgW×imgH image lands inside the axes with equal
// aspect, centred along the slack axis.
func (l Layout) ImageBox(imgW, imgH int) image.Rectangle {
	w, h := float64(l.CanvasWidth), float64(l.CanvasHeight)
	ax0, ax1 := l.Left*w, l.Right*w
	ay0, ay1 := (1-l.Top)*h, (1-l.Bottom)*h
	axW, axH := ax1-ax0, ay1-ay0

	scale := math.Min(axW/float64(imgW), axH/float64(imgH))
	boxW, boxH := scale*float64(imgW), scale*float64(imgH)
	x0 := ax0 + (axW-boxW)/2
	y0 := ay0 + (axH-boxH)/2

	return image.Rect(
		int(math.Round(x0)),
		int(math.Round(y0)),
		int(math.Round(x0+boxW)),
		int(math.Round(y0+boxH)),
	)
}

// Validate fails when the crop window no longer matches the canvas. The
// window is tuned for the default figure, so a canvas change without a new
// window must be caught at startup.
func (l Layout) Validate(imgW, imgH int) error {
	if l.CanvasWidth <= 0 || l.CanvasHeight <= 0 {
		return fmt.Errorf("invalid canvas %dx%d", l.CanvasWidth, l.CanvasHeight)
	}
	if !(0 <= l.Left && l.Left < l.Right && l.Right <= 1) || !(0 <= l.Bottom && l.Bottom < l.Top && l.Top <= 1) {
		return fmt.Errorf("invalid subplot fractions left=%v right=%v bottom=%v top=%v", l.Left, l.Right, l.Bottom, l.Top)
	}
	if l.Crop.Empty() || !l.Crop.In(l.Canvas()) {
		return fmt.Errorf("crop window %v outside canvas %v", l.Crop, l.Canvas())
	}
	if box := l.ImageBox(imgW, imgH); !box.In(l.Crop) {
		return fmt.Errorf("crop window %v does not cover image box %v", l.Crop, box)
	}
	return nil
}
