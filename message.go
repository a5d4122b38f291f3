package main

import (
	"fmt"

	"github.com/Tutortoise/pneumonia-service/models"
)

const (
	MsgPositive = "The model predicted the image as positive. Opacities consistent with pneumonia were found; please have the radiograph reviewed by a clinician."

	MsgNegative = "The model predicted the image as negative. No opacities were found above the detection threshold."
)

func getPredictionMessage(outcome models.SegmentationOutcome) string {
	if !outcome.Positive {
		return MsgNegative
	}
	switch n := len(outcome.Regions); n {
	case 1:
		return MsgPositive + " 1 region is marked on the annotated image."
	default:
		return fmt.Sprintf("%s %d regions are marked on the annotated image.", MsgPositive, n)
	}
}
