package detections

import (
	"context"
	"fmt"
	"image"
	"math"
	"time"

	"github.com/Tutortoise/pneumonia-service/models"
	"github.com/Tutortoise/pneumonia-service/regions"
)

type Segmenter struct {
	runner       Runner
	meta         Metadata
	threshold    float32
	connectivity regions.Connectivity
}

type SegmenterOption func(*Segmenter)

func WithThreshold(thr float32) SegmenterOption {
	return func(s *Segmenter) { s.threshold = thr }
}

func WithConnectivity(conn regions.Connectivity) SegmenterOption {
	return func(s *Segmenter) { s.connectivity = conn }
}

func NewSegmenter(runner Runner, meta Metadata, opts ...SegmenterOption) *Segmenter {
	s := &Segmenter{
		runner:       runner,
		meta:         meta,
		threshold:    MaskThreshold,
		connectivity: regions.Connectivity8,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Segmentation carries the preprocessed input alongside the outcome so the
// annotator can render exactly what the model saw.
type Segmentation struct {
	Input         *Plane
	Probabilities *Plane
	Outcome       models.SegmentationOutcome
}

func (s *Segmenter) Segment(ctx context.Context, img image.Image, timings *models.ProcessingTimings) (*Segmentation, error) {
	size := s.meta.ImageSize
	input, tensor := GrayscaleInput(img, size, timings)

	inferStart := time.Now()
	raw, err := s.runner.Run(ctx, tensor.Data)
	if timings != nil {
		timings.Inference = time.Since(inferStart)
	}
	if err != nil {
		return nil, err
	}

	postStart := time.Now()
	probs, err := firstChannel(raw, size, size)
	if err != nil {
		return nil, err
	}

	labelStart := time.Now()
	outcome := Evaluate(probs, s.threshold, s.connectivity)
	if timings != nil {
		timings.Labeling = time.Since(labelStart)
		timings.Postprocess = time.Since(postStart)
	}

	return &Segmentation{
		Input:         input,
		Probabilities: probs,
		Outcome:       outcome,
	}, nil
}

// firstChannel pulls channel 0 out of an NHWC [1,H,W,C] probability map.
func firstChannel(raw []float32, width, height int) (*Plane, error) {
	pixels := width * height
	if len(raw) == 0 || len(raw)%pixels != 0 {
		return nil, newError("postprocess", ErrInference,
			fmt.Errorf("unexpected output length: got %d, want a multiple of %d", len(raw), pixels))
	}
	channels := len(raw) / pixels

	plane := NewPlane(width, height)
	if channels == 1 {
		copy(plane.Pix, raw)
		return plane, nil
	}
	for i := range plane.Pix {
		plane.Pix[i] = raw[i*channels]
	}
	return plane, nil
}

// Evaluate thresholds probs, boxes the connected components and scores the
// prediction.
func Evaluate(probs *Plane, threshold float32, conn regions.Connectivity) models.SegmentationOutcome {
	mask := regions.Threshold(probs.Pix, probs.Width, probs.Height, threshold)
	positive := mask.Any()
	maxProb := probs.Max()

	outcome := models.SegmentationOutcome{
		Label:          models.LabelNegative,
		Positive:       positive,
		Confidence:     Confidence(maxProb, positive),
		MaxProbability: maxProb,
		Regions:        regions.Extract(mask, conn),
	}
	if positive {
		outcome.Label = models.LabelPositive
	}
	if outcome.Regions == nil {
		outcome.Regions = []models.Region{}
	}
	return outcome
}

// Confidence truncates the peak probability to a whole percent. A negative
// prediction reports the complement.
func Confidence(maxProb float32, positive bool) float64 {
	pct := float64(int32(maxProb * 100))
	pct = math.Max(0, math.Min(100, pct))
	if positive {
		return pct
	}
	return 100 - pct
}
