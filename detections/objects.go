package detections

import (
	"fmt"
	"math"
	"sort"
	"sync"
)

// LossFunc scores a prediction against ground truth over flattened masks.
type LossFunc func(yTrue, yPred []float32) float64

// The segmentation model was compiled with these loss and metric functions.
// An exported artifact that names a custom object missing from this
// registry is rejected at load time.
var (
	customObjectsMu sync.RWMutex
	customObjects   = map[string]LossFunc{
		"iou_loss":     IoULoss,
		"iou_bce_loss": IoUBCELoss,
		"mean_iou":     MeanIoU,
	}
)

func RegisterCustomObject(name string, fn LossFunc) {
	customObjectsMu.Lock()
	defer customObjectsMu.Unlock()
	customObjects[name] = fn
}

func LookupCustomObject(name string) (LossFunc, bool) {
	customObjectsMu.RLock()
	defer customObjectsMu.RUnlock()
	fn, ok := customObjects[name]
	return fn, ok
}

func CheckCustomObjects(names []string) error {
	var missing []string
	for _, name := range names {
		if _, ok := LookupCustomObject(name); !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		sort.Strings(missing)
		return newError("load", ErrLoad, fmt.Errorf("unknown custom objects %v", missing))
	}
	return nil
}

// IoULoss is 1 - soft Jaccard index with +1 smoothing.
func IoULoss(yTrue, yPred []float32) float64 {
	var intersection, sumTrue, sumPred float64
	for i := range yTrue {
		t, p := float64(yTrue[i]), float64(yPred[i])
		intersection += t * p
		sumTrue += t
		sumPred += p
	}
	score := (intersection + 1) / (sumTrue + sumPred - intersection + 1)
	return 1 - score
}

// BinaryCrossEntropy averages the per-pixel log loss, clipping predictions
// to [eps, 1-eps] with eps = 1e-7.
func BinaryCrossEntropy(yTrue, yPred []float32) float64 {
	const eps = 1e-7
	if len(yTrue) == 0 {
		return 0
	}
	var sum float64
	for i := range yTrue {
		t := float64(yTrue[i])
		p := math.Min(math.Max(float64(yPred[i]), eps), 1-eps)
		sum += -(t*math.Log(p) + (1-t)*math.Log(1-p))
	}
	return sum / float64(len(yTrue))
}

func IoUBCELoss(yTrue, yPred []float32) float64 {
	return 0.5*BinaryCrossEntropy(yTrue, yPred) + 0.5*IoULoss(yTrue, yPred)
}

// MeanIoU rounds predictions to {0,1} and returns the smoothed IoU of a
// single mask.
func MeanIoU(yTrue, yPred []float32) float64 {
	var intersect, union float64
	for i := range yTrue {
		t := float64(yTrue[i])
		p := math.RoundToEven(float64(yPred[i]))
		intersect += t * p
		union += t + p
	}
	return (intersect + 1) / (union - intersect + 1)
}
