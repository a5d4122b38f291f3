// Package history keeps a record of every answered prediction.
package history

import (
	"context"
	"errors"

	"github.com/Tutortoise/pneumonia-service/models"
)

var ErrNotFound = errors.New("prediction not found")

const (
	DefaultLimit = 20
	MaxLimit     = 200
)

type Store interface {
	Record(ctx context.Context, rec models.PredictionRecord) error
	Get(ctx context.Context, id string) (models.PredictionRecord, error)
	Recent(ctx context.Context, limit int) ([]models.PredictionRecord, error)
	Close() error
}

// ClampLimit maps a requested page size into [1, MaxLimit].
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultLimit
	case limit > MaxLimit:
		return MaxLimit
	default:
		return limit
	}
}

// Noop discards records. It is used when no history backend is configured.
type Noop struct{}

func (Noop) Record(context.Context, models.PredictionRecord) error { return nil }

func (Noop) Get(context.Context, string) (models.PredictionRecord, error) {
	return models.PredictionRecord{}, ErrNotFound
}

func (Noop) Recent(context.Context, int) ([]models.PredictionRecord, error) {
	return []models.PredictionRecord{}, nil
}

func (Noop) Close() error { return nil }
