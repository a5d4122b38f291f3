package detections

import (
	"errors"
	"fmt"
)

var (
	ErrDecode    = errors.New("image could not be decoded")
	ErrLoad      = errors.New("model could not be loaded")
	ErrInference = errors.New("model inference failed")
)

// ProcessingError records which pipeline stage failed. Kind is one of the
// sentinel errors above so callers can match with errors.Is.
type ProcessingError struct {
	Stage string
	Kind  error
	Cause error
}

func (e *ProcessingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v: %v", e.Stage, e.Kind, e.Cause)
	}
	return fmt.Sprintf("%s: %v", e.Stage, e.Kind)
}

func (e *ProcessingError) Unwrap() []error {
	if e.Cause == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Cause}
}

func newError(stage string, kind, cause error) error {
	return &ProcessingError{Stage: stage, Kind: kind, Cause: cause}
}
