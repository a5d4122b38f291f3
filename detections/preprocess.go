package detections

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"
	"time"

	"github.com/Tutortoise/pneumonia-service/models"

	"github.com/disintegration/imaging"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// DecodeImage decodes any format registered with the image package.
func DecodeImage(data []byte) (image.Image, string, error) {
	if len(data) == 0 {
		return nil, "", newError("decode", ErrDecode, errors.New("empty image data"))
	}
	img, format, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", newError("decode", ErrDecode, err)
	}
	if img.Bounds().Empty() {
		return nil, "", newError("decode", ErrDecode, fmt.Errorf("image has no pixels (%dx%d)", img.Bounds().Dx(), img.Bounds().Dy()))
	}
	return img, format, nil
}

// GrayPlane converts img to luminance in [0,1] using the ITU-R 601 weights
// (the same conversion PIL applies for mode "L"). 16-bit grayscale input is
// scaled by 65535 so no precision is lost.
func GrayPlane(img image.Image) *Plane {
	if g16, ok := img.(*image.Gray16); ok {
		return gray16Plane(g16)
	}

	gray := imaging.Grayscale(img)
	width, height := gray.Bounds().Dx(), gray.Bounds().Dy()
	plane := NewPlane(width, height)

	parallelRows(height, func(start, end int) {
		for y := start; y < end; y++ {
			offset := y * gray.Stride
			for x := 0; x < width; x++ {
				plane.Pix[y*width+x] = float32(gray.Pix[offset+x*4]) / 255.0
			}
		}
	})
	return plane
}

func gray16Plane(img *image.Gray16) *Plane {
	b := img.Bounds()
	width, height := b.Dx(), b.Dy()
	plane := NewPlane(width, height)

	parallelRows(height, func(start, end int) {
		for y := start; y < end; y++ {
			offset := img.PixOffset(b.Min.X, b.Min.Y+y)
			for x := 0; x < width; x++ {
				v := uint16(img.Pix[offset+2*x])<<8 | uint16(img.Pix[offset+2*x+1])
				plane.Pix[y*width+x] = float32(v) / 65535.0
			}
		}
	})
	return plane
}

// GrayscaleInput produces the segmentation model input: the image as a
// size×size luminance plane in [0,1] plus its [1,size,size,1] tensor.
// This must stay byte-for-byte compatible with training preprocessing.
func GrayscaleInput(img image.Image, size int, timings *models.ProcessingTimings) (*Plane, *Tensor) {
	prepStart := time.Now()
	plane := GrayPlane(img)

	resizeStart := time.Now()
	resized := ResizeReflect(plane, size, size)
	if timings != nil {
		timings.Resize = time.Since(resizeStart)
	}

	tensor := resized.Tensor()
	if timings != nil {
		timings.Preprocess = time.Since(prepStart)
	}
	return resized, tensor
}

// RGBInput produces the classifier input: a bicubic resize to size×size and
// interleaved RGB channels scaled by scale ([1,size,size,3]).
func RGBInput(img image.Image, size int, scale float32, timings *models.ProcessingTimings) *Tensor {
	prepStart := time.Now()
	tensor := NewTensor(1, int64(size), int64(size), RGBChannels)
	if img.Bounds().Empty() {
		return tensor
	}

	resizeStart := time.Now()
	resized := imaging.Resize(img, size, size, imaging.CatmullRom)
	if timings != nil {
		timings.Resize = time.Since(resizeStart)
	}

	newChannelProcessor(size, size, scale).processChannels(resized, tensor.Data)
	if timings != nil {
		timings.Preprocess = time.Since(prepStart)
	}
	return tensor
}
