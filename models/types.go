package models

import "time"

type Label string

const (
	LabelPositive Label = "POSITIVE"
	LabelNegative Label = "NEGATIVE"
)

// Region is an axis-aligned bounding box in tensor pixel coordinates.
type Region struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

type SegmentationOutcome struct {
	Label          Label    `json:"label"`
	Positive       bool     `json:"positive"`
	Confidence     float64  `json:"confidence"`
	MaxProbability float32  `json:"max_probability"`
	Regions        []Region `json:"regions"`
}

type ClassificationOutcome struct {
	Label         string             `json:"label"`
	Index         int                `json:"index"`
	Confidence    float32            `json:"confidence"`
	Probabilities map[string]float32 `json:"probabilities"`
}

type ProcessingTimings struct {
	RequestID   string
	ImageDecode time.Duration
	Resize      time.Duration
	Preprocess  time.Duration
	Inference   time.Duration
	Postprocess time.Duration
	Labeling    time.Duration
	Render      time.Duration
	Persist     time.Duration
	Total       time.Duration
}

type Variant string

const (
	VariantSegmentation Variant = "segmentation"
	VariantClassifier   Variant = "classifier"
)

// PredictionRecord is what the history store keeps for every answered request.
type PredictionRecord struct {
	ID            string    `json:"id" db:"id"`
	RequestID     string    `json:"request_id" db:"request_id"`
	Variant       Variant   `json:"variant" db:"variant"`
	Filename      string    `json:"filename" db:"filename"`
	Label         string    `json:"label" db:"label"`
	Confidence    float64   `json:"confidence" db:"confidence"`
	RegionCount   int       `json:"region_count" db:"region_count"`
	AnnotationRef string    `json:"annotation_ref,omitempty" db:"annotation_ref"`
	CreatedAt     time.Time `json:"created_at" db:"created_at"`
}
