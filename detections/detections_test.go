package detections

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/gif"
	"image/png"
	"math"
	"testing"

	"github.com/Tutortoise/pneumonia-service/models"
	"github.com/Tutortoise/pneumonia-service/regions"
)

// squareImage is black with a white square covering [x0,x1)×[y0,y1).
func squareImage(size, x0, y0, x1, y1 int) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, size, size))
	for y := y0; y < y1; y++ {
		for x := x0; x < x1; x++ {
			img.SetGray(x, y, color.Gray{Y: 255})
		}
	}
	return img
}

// echoRunner predicts 1 wherever the input pixel is bright.
var echoRunner = RunnerFunc(func(_ context.Context, input []float32) ([]float32, error) {
	out := make([]float32, len(input))
	for i, v := range input {
		if v > 0.5 {
			out[i] = 1
		}
	}
	return out, nil
})

func TestDecodeImage(t *testing.T) {
	if _, _, err := DecodeImage(nil); !errors.Is(err, ErrDecode) {
		t.Fatalf("empty data: err = %v, want ErrDecode", err)
	}
	if _, _, err := DecodeImage([]byte("definitely not an image")); !errors.Is(err, ErrDecode) {
		t.Fatalf("garbage: err = %v, want ErrDecode", err)
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, squareImage(8, 0, 0, 4, 4)); err != nil {
		t.Fatal(err)
	}
	img, format, err := DecodeImage(buf.Bytes())
	if err != nil {
		t.Fatalf("DecodeImage: %v", err)
	}
	if format != "png" || img.Bounds().Dx() != 8 {
		t.Fatalf("format=%s bounds=%v", format, img.Bounds())
	}
}

func TestDecodeImageRejectsEmptyImage(t *testing.T) {
	var buf bytes.Buffer
	empty := image.NewPaletted(image.Rect(0, 0, 0, 0), color.Palette{color.Black, color.White})
	if err := gif.Encode(&buf, empty, nil); err != nil {
		t.Fatal(err)
	}
	if _, _, err := DecodeImage(buf.Bytes()); !errors.Is(err, ErrDecode) {
		t.Fatalf("err = %v, want ErrDecode", err)
	}
}

func TestEmptySourcesDoNotPanic(t *testing.T) {
	if p := ResizeReflect(NewPlane(0, 0), 4, 4); len(p.Pix) != 16 {
		t.Fatalf("resize of empty plane has %d pixels", len(p.Pix))
	}
	if p := ResizeReflect(NewPlane(0, 7), 4, 4); p.Max() != 0 {
		t.Fatalf("resize of empty plane max = %v", p.Max())
	}
	tensor := RGBInput(image.NewNRGBA(image.Rect(0, 0, 0, 0)), 4, 1, nil)
	if len(tensor.Data) != 4*4*RGBChannels {
		t.Fatalf("tensor length = %d", len(tensor.Data))
	}
}

func TestGrayPlaneKeeps16BitPrecision(t *testing.T) {
	img := image.NewGray16(image.Rect(0, 0, 3, 1))
	img.SetGray16(0, 0, color.Gray16{Y: 32768})
	img.SetGray16(1, 0, color.Gray16{Y: 255})
	img.SetGray16(2, 0, color.Gray16{Y: 65535})

	plane := GrayPlane(img)
	want := []float32{32768.0 / 65535, 255.0 / 65535, 1}
	for i, w := range want {
		if math.Abs(float64(plane.Pix[i]-w)) > 1e-6 {
			t.Errorf("pixel %d = %v, want %v", i, plane.Pix[i], w)
		}
	}
}

func TestGrayscaleInputShape(t *testing.T) {
	timings := &models.ProcessingTimings{}
	plane, tensor := GrayscaleInput(squareImage(512, 0, 0, 512, 512), InputWidth, timings)

	if plane.Width != InputWidth || plane.Height != InputHeight {
		t.Fatalf("plane = %dx%d", plane.Width, plane.Height)
	}
	want := []int64{1, InputHeight, InputWidth, GrayChannels}
	for i, d := range want {
		if tensor.Shape[i] != d {
			t.Fatalf("shape = %v, want %v", tensor.Shape, want)
		}
	}
	for i, v := range tensor.Data {
		if v < 0.999 || v > 1 {
			t.Fatalf("value %d = %v, want 1", i, v)
		}
	}
}

func TestRGBInputScalesChannels(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = 10, 20, 30, 255
	}

	tensor := RGBInput(img, 4, 0.5, nil)
	if len(tensor.Data) != 4*4*RGBChannels {
		t.Fatalf("len = %d", len(tensor.Data))
	}
	if r, g, b := tensor.At(2, 1, 0), tensor.At(2, 1, 1), tensor.At(2, 1, 2); r != 5 || g != 10 || b != 15 {
		t.Fatalf("pixel = (%v, %v, %v), want (5, 10, 15)", r, g, b)
	}
}

func TestEvaluateAllZero(t *testing.T) {
	probs := NewPlane(InputWidth, InputHeight)
	got := Evaluate(probs, MaskThreshold, regions.Connectivity8)
	if got.Label != models.LabelNegative || got.Positive {
		t.Fatalf("label = %s positive=%v", got.Label, got.Positive)
	}
	if got.Confidence != 100 {
		t.Fatalf("confidence = %v, want 100", got.Confidence)
	}
	if len(got.Regions) != 0 {
		t.Fatalf("regions = %v", got.Regions)
	}
}

func TestEvaluateAllOnes(t *testing.T) {
	probs := NewPlane(InputWidth, InputHeight)
	for i := range probs.Pix {
		probs.Pix[i] = 1
	}
	got := Evaluate(probs, MaskThreshold, regions.Connectivity8)
	if got.Label != models.LabelPositive || got.Confidence != 100 {
		t.Fatalf("got %s %v", got.Label, got.Confidence)
	}
	want := models.Region{X: 0, Y: 0, Width: InputWidth, Height: InputHeight}
	if len(got.Regions) != 1 || got.Regions[0] != want {
		t.Fatalf("regions = %v", got.Regions)
	}
}

func TestEvaluateAtThreshold(t *testing.T) {
	probs := NewPlane(4, 4)
	for i := range probs.Pix {
		probs.Pix[i] = MaskThreshold
	}
	got := Evaluate(probs, MaskThreshold, regions.Connectivity8)
	if got.Positive {
		t.Fatal("a map equal to the threshold must be negative")
	}
	if got.Confidence != 50 {
		t.Fatalf("confidence = %v, want 50", got.Confidence)
	}
}

func TestConfidence(t *testing.T) {
	tests := []struct {
		p        float32
		positive bool
		want     float64
	}{
		{0.87, true, 87},
		{0.999, true, 99},
		{1, true, 100},
		{0.3, false, 70},
		{0.499, false, 51},
		{0, false, 100},
	}
	for _, tt := range tests {
		if got := Confidence(tt.p, tt.positive); got != tt.want {
			t.Errorf("Confidence(%v, %v) = %v, want %v", tt.p, tt.positive, got, tt.want)
		}
	}
}

func TestSegmentBrightSquare(t *testing.T) {
	seg := NewSegmenter(echoRunner, DefaultSegmenterMetadata())
	timings := &models.ProcessingTimings{}

	res, err := seg.Segment(context.Background(), squareImage(256, 50, 50, 100, 100), timings)
	if err != nil {
		t.Fatalf("Segment: %v", err)
	}

	out := res.Outcome
	if out.Label != models.LabelPositive || out.Confidence != 100 {
		t.Fatalf("outcome = %s %v", out.Label, out.Confidence)
	}
	want := models.Region{X: 50, Y: 50, Width: 50, Height: 50}
	if len(out.Regions) != 1 || out.Regions[0] != want {
		t.Fatalf("regions = %+v, want [%+v]", out.Regions, want)
	}
	if res.Input.Width != 256 || res.Probabilities.Width != 256 {
		t.Fatalf("unexpected plane sizes")
	}
}

func TestSegmentRunnerError(t *testing.T) {
	loadErr := newError("load", ErrLoad, errors.New("no model"))
	seg := NewSegmenter(Unavailable(loadErr), DefaultSegmenterMetadata())
	_, err := seg.Segment(context.Background(), squareImage(16, 0, 0, 1, 1), nil)
	if !errors.Is(err, ErrLoad) {
		t.Fatalf("err = %v, want ErrLoad", err)
	}
}

func TestSegmentBadOutputLength(t *testing.T) {
	short := RunnerFunc(func(context.Context, []float32) ([]float32, error) {
		return make([]float32, 10), nil
	})
	seg := NewSegmenter(short, DefaultSegmenterMetadata())
	_, err := seg.Segment(context.Background(), squareImage(16, 0, 0, 1, 1), nil)
	if !errors.Is(err, ErrInference) {
		t.Fatalf("err = %v, want ErrInference", err)
	}
}

func TestClassify(t *testing.T) {
	var seen int
	runner := RunnerFunc(func(_ context.Context, input []float32) ([]float32, error) {
		seen = len(input)
		return []float32{0.2, 0.8}, nil
	})

	c := NewClassifier(runner, DefaultClassifierMetadata())
	got, err := c.Classify(context.Background(), squareImage(32, 0, 0, 8, 8), nil)
	if err != nil {
		t.Fatalf("Classify: %v", err)
	}
	if seen != InputWidth*InputHeight*RGBChannels {
		t.Fatalf("runner saw %d values", seen)
	}
	if got.Label != "PNEUMONIA" || got.Index != 1 || got.Confidence != 0.8 {
		t.Fatalf("outcome = %+v", got)
	}
	if got.Probabilities["NORMAL"] != 0.2 {
		t.Fatalf("probabilities = %v", got.Probabilities)
	}
}

func TestSelect(t *testing.T) {
	classes := []string{"NORMAL", "PNEUMONIA"}

	got, err := Select([]float32{0.9, 0.1}, classes)
	if err != nil || got.Label != "NORMAL" || got.Confidence != 0.9 {
		t.Fatalf("got %+v, %v", got, err)
	}

	got, err = Select([]float32{0.5, 0.5}, classes)
	if err != nil || got.Index != 0 {
		t.Fatalf("tie should pick the first class, got %+v", got)
	}

	if _, err := Select([]float32{1}, classes); !errors.Is(err, ErrInference) {
		t.Fatalf("short vector: err = %v", err)
	}
}
