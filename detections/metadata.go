package detections

import (
	"errors"
	"fmt"
	"os"

	jsoniter "github.com/json-iterator/go"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Metadata describes an exported model. It is stored as JSON next to the
// .onnx file; any field left out falls back to the variant defaults.
type Metadata struct {
	InputName   string   `json:"input_name"`
	OutputName  string   `json:"output_name"`
	InputShape  []int64  `json:"input_shape"`
	OutputShape []int64  `json:"output_shape"`
	Classes     []string `json:"classes"`
	ImageSize   int      `json:"image_size"`
	// InputScale multiplies 0..255 pixel values for the classifier input.
	// The segmentation input is always normalised to [0,1].
	InputScale    float32  `json:"input_scale"`
	CustomObjects []string `json:"custom_objects"`
}

func DefaultSegmenterMetadata() Metadata {
	return Metadata{
		InputName:     "input_1",
		OutputName:    "output_1",
		InputShape:    []int64{1, InputHeight, InputWidth, GrayChannels},
		OutputShape:   []int64{1, InputHeight, InputWidth, 1},
		ImageSize:     InputWidth,
		InputScale:    1,
		CustomObjects: []string{"iou_bce_loss", "mean_iou"},
	}
}

func DefaultClassifierMetadata() Metadata {
	return Metadata{
		InputName:   "input_1",
		OutputName:  "output_1",
		InputShape:  []int64{1, InputHeight, InputWidth, RGBChannels},
		OutputShape: []int64{1, 2},
		Classes:     []string{"NORMAL", "PNEUMONIA"},
		ImageSize:   InputWidth,
		InputScale:  1,
	}
}

// LoadMetadata reads path and fills missing fields from defaults. An empty
// path or a missing file yields the defaults unchanged.
func LoadMetadata(path string, defaults Metadata) (Metadata, error) {
	if path == "" {
		return defaults, nil
	}

	raw, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return defaults, nil
	}
	if err != nil {
		return Metadata{}, newError("metadata", ErrLoad, err)
	}

	var meta Metadata
	if err := json.Unmarshal(raw, &meta); err != nil {
		return Metadata{}, newError("metadata", ErrLoad, fmt.Errorf("parse %s: %w", path, err))
	}

	if meta.InputName == "" {
		meta.InputName = defaults.InputName
	}
	if meta.OutputName == "" {
		meta.OutputName = defaults.OutputName
	}
	if len(meta.InputShape) == 0 {
		meta.InputShape = defaults.InputShape
	}
	if len(meta.OutputShape) == 0 {
		meta.OutputShape = defaults.OutputShape
	}
	if len(meta.Classes) == 0 {
		meta.Classes = defaults.Classes
	}
	if meta.ImageSize == 0 {
		meta.ImageSize = defaults.ImageSize
	}
	if meta.InputScale == 0 {
		meta.InputScale = defaults.InputScale
	}
	if meta.CustomObjects == nil {
		meta.CustomObjects = defaults.CustomObjects
	}

	if err := meta.Validate(); err != nil {
		return Metadata{}, err
	}
	return meta, nil
}

func (m Metadata) Validate() error {
	if len(m.InputShape) != 4 {
		return newError("metadata", ErrLoad, fmt.Errorf("input shape must be NHWC, got %v", m.InputShape))
	}
	if m.InputShape[1] != int64(m.ImageSize) || m.InputShape[2] != int64(m.ImageSize) {
		return newError("metadata", ErrLoad, fmt.Errorf("input shape %v does not match image size %d", m.InputShape, m.ImageSize))
	}
	for _, d := range append(append([]int64{}, m.InputShape...), m.OutputShape...) {
		if d <= 0 {
			return newError("metadata", ErrLoad, fmt.Errorf("non-positive dimension in %v / %v", m.InputShape, m.OutputShape))
		}
	}
	return nil
}

func (m Metadata) InputLen() int  { return shapeLen(m.InputShape) }
func (m Metadata) OutputLen() int { return shapeLen(m.OutputShape) }

func shapeLen(shape []int64) int {
	n := 1
	for _, d := range shape {
		n *= int(d)
	}
	return n
}
