package annotations

import (
	"image"
	"image/color"
	"image/draw"
	"math"

	"github.com/Tutortoise/pneumonia-service/models"

	"github.com/disintegration/imaging"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

var (
	boxColor   = color.NRGBA{R: 0, G: 0, B: 255, A: 255}
	titleColor = color.NRGBA{R: 0, G: 0, B: 0, A: 255}
)

// titlePad is the gap between the title baseline and the top of the axes.
const titlePad = 8

// Render draws img into the layout's image box on a white canvas, outlines
// every region and writes the title above the axes. Region coordinates are
// in img pixels.
func Render(layout Layout, img image.Image, boxes []models.Region, title string) *image.NRGBA {
	canvas := imaging.New(layout.CanvasWidth, layout.CanvasHeight, color.White)

	srcW, srcH := img.Bounds().Dx(), img.Bounds().Dy()
	box := layout.ImageBox(srcW, srcH)
	scaled := imaging.Resize(img, box.Dx(), box.Dy(), imaging.NearestNeighbor)
	canvas = imaging.Paste(canvas, scaled, box.Min)

	sx := float64(box.Dx()) / float64(srcW)
	sy := float64(box.Dy()) / float64(srcH)
	for _, r := range boxes {
		// imshow puts pixel centres on integer coordinates, so a region's
		// edges sit half a pixel right of and below its first pixel
		rect := image.Rect(
			box.Min.X+int(math.Round((float64(r.X)+0.5)*sx)),
			box.Min.Y+int(math.Round((float64(r.Y)+0.5)*sy)),
			box.Min.X+int(math.Round((float64(r.X+r.Width)+0.5)*sx)),
			box.Min.Y+int(math.Round((float64(r.Y+r.Height)+0.5)*sy)),
		)
		strokeRect(canvas, rect, layout.LineWidth, boxColor)
	}

	if title != "" {
		drawTitle(canvas, layout.Axes(), title)
	}
	return canvas
}

// Crop cuts the layout's crop window out of a rendered canvas.
func Crop(layout Layout, canvas image.Image) *image.NRGBA {
	return imaging.Crop(canvas, layout.Crop)
}

// strokeRect draws an unfilled rectangle whose stroke of the given width is
// centred on r's edges.
func strokeRect(dst draw.Image, r image.Rectangle, width int, c color.Color) {
	if width < 1 {
		width = 1
	}
	lo := width / 2
	hi := width - lo
	src := image.NewUniform(c)
	edges := []image.Rectangle{
		image.Rect(r.Min.X-lo, r.Min.Y-lo, r.Max.X+hi, r.Min.Y+hi),
		image.Rect(r.Min.X-lo, r.Max.Y-lo, r.Max.X+hi, r.Max.Y+hi),
		image.Rect(r.Min.X-lo, r.Min.Y-lo, r.Min.X+hi, r.Max.Y+hi),
		image.Rect(r.Max.X-lo, r.Min.Y-lo, r.Max.X+hi, r.Max.Y+hi),
	}
	for _, e := range edges {
		draw.Draw(dst, e.Intersect(dst.Bounds()), src, image.Point{}, draw.Src)
	}
}

func drawTitle(dst draw.Image, axes image.Rectangle, title string) {
	face := basicfont.Face7x13
	d := &font.Drawer{
		Dst:  dst,
		Src:  image.NewUniform(titleColor),
		Face: face,
	}
	width := d.MeasureString(title).Ceil()
	x := axes.Min.X + (axes.Dx()-width)/2
	y := axes.Min.Y - titlePad - face.Descent
	d.Dot = fixed.P(x, y)
	d.DrawString(title)
}

// Title is the sentence printed above the figure.
func Title(positive bool) string {
	if positive {
		return "The model predicted the image as positive."
	}
	return "The model predicted the image as negative."
}
