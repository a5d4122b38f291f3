package annotations

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/Tutortoise/pneumonia-service/models"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
)

// Annotator renders a segmentation outcome and stores the cropped PNG.
type Annotator struct {
	layout Layout
	store  Store
}

// NewAnnotator checks the layout against an inputSize×inputSize image before
// accepting it.
func NewAnnotator(layout Layout, store Store, inputSize int) (*Annotator, error) {
	if err := layout.Validate(inputSize, inputSize); err != nil {
		return nil, fmt.Errorf("annotation layout: %w", err)
	}
	return &Annotator{layout: layout, store: store}, nil
}

// Annotate stores the rendering under "<id>.png" and returns the store's
// reference to it.
func (a *Annotator) Annotate(ctx context.Context, id string, img image.Image, outcome models.SegmentationOutcome, timings *models.ProcessingTimings) (string, error) {
	renderStart := time.Now()
	canvas := Render(a.layout, img, outcome.Regions, Title(outcome.Positive))
	cropped := Crop(a.layout, canvas)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, cropped, imaging.PNG); err != nil {
		return "", fmt.Errorf("encode annotation: %w", err)
	}
	if timings != nil {
		timings.Render = time.Since(renderStart)
	}

	persistStart := time.Now()
	ref, err := a.store.Save(ctx, id+".png", buf.Bytes(), "image/png")
	if timings != nil {
		timings.Persist = time.Since(persistStart)
	}
	if err != nil {
		return "", fmt.Errorf("store annotation: %w", err)
	}
	return ref, nil
}

// NewID returns a fresh artifact id.
func NewID() string {
	return uuid.NewString()
}

var unsafeChars = regexp.MustCompile(`[^A-Za-z0-9._-]+`)

// UploadName builds the storage name for an uploaded file. The id keeps
// concurrent uploads of the same filename apart.
func UploadName(id, filename string) string {
	base := filepath.Base(strings.ReplaceAll(filename, `\`, "/"))
	base = unsafeChars.ReplaceAllString(base, "_")
	base = strings.TrimLeft(base, ".")
	if base == "" || base == "_" {
		base = "upload"
	}
	return id + "-" + base
}
