package detections

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/Tutortoise/pneumonia-service/models"
)

type Classifier struct {
	runner Runner
	meta   Metadata
}

func NewClassifier(runner Runner, meta Metadata) *Classifier {
	return &Classifier{runner: runner, meta: meta}
}

func (c *Classifier) Classify(ctx context.Context, img image.Image, timings *models.ProcessingTimings) (models.ClassificationOutcome, error) {
	tensor := RGBInput(img, c.meta.ImageSize, c.meta.InputScale, timings)

	inferStart := time.Now()
	probs, err := c.runner.Run(ctx, tensor.Data)
	if timings != nil {
		timings.Inference = time.Since(inferStart)
	}
	if err != nil {
		return models.ClassificationOutcome{}, err
	}

	postStart := time.Now()
	outcome, err := Select(probs, c.meta.Classes)
	if timings != nil {
		timings.Postprocess = time.Since(postStart)
	}
	return outcome, err
}

// Select picks the most probable class. Ties resolve to the lower index.
func Select(probs []float32, classes []string) (models.ClassificationOutcome, error) {
	if len(classes) == 0 || len(probs) < len(classes) {
		return models.ClassificationOutcome{}, newError("postprocess", ErrInference,
			fmt.Errorf("got %d scores for %d classes", len(probs), len(classes)))
	}

	best := 0
	for i := 1; i < len(classes); i++ {
		if probs[i] > probs[best] {
			best = i
		}
	}

	all := make(map[string]float32, len(classes))
	for i, name := range classes {
		all[name] = probs[i]
	}

	return models.ClassificationOutcome{
		Label:         classes[best],
		Index:         best,
		Confidence:    probs[best],
		Probabilities: all,
	}, nil
}
