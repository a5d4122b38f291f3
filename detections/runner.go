package detections

import "context"

// Runner maps a flattened input batch to the model's flattened output.
type Runner interface {
	Run(ctx context.Context, input []float32) ([]float32, error)
}

type RunnerFunc func(ctx context.Context, input []float32) ([]float32, error)

func (f RunnerFunc) Run(ctx context.Context, input []float32) ([]float32, error) {
	return f(ctx, input)
}

// Unavailable returns a Runner that always fails with err. It stands in for
// a model that could not be loaded at startup.
func Unavailable(err error) Runner {
	return RunnerFunc(func(context.Context, []float32) ([]float32, error) {
		return nil, err
	})
}
