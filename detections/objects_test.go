package detections

import (
	"errors"
	"math"
	"testing"
)

func TestCheckCustomObjects(t *testing.T) {
	if err := CheckCustomObjects(DefaultSegmenterMetadata().CustomObjects); err != nil {
		t.Fatalf("default objects: %v", err)
	}
	if err := CheckCustomObjects([]string{"mean_iou", "dice_loss"}); !errors.Is(err, ErrLoad) {
		t.Fatalf("err = %v, want ErrLoad", err)
	}

	RegisterCustomObject("dice_loss", IoULoss)
	t.Cleanup(func() {
		customObjectsMu.Lock()
		delete(customObjects, "dice_loss")
		customObjectsMu.Unlock()
	})
	if err := CheckCustomObjects([]string{"dice_loss"}); err != nil {
		t.Fatalf("after register: %v", err)
	}
	if _, ok := LookupCustomObject("dice_loss"); !ok {
		t.Fatal("lookup failed")
	}
}

func TestLossFunctions(t *testing.T) {
	truth := []float32{1, 1, 0, 0}

	if got := IoULoss(truth, truth); math.Abs(got) > 1e-12 {
		t.Errorf("IoULoss(perfect) = %v", got)
	}
	if got := MeanIoU(truth, []float32{0.9, 0.6, 0.2, 0.1}); math.Abs(got-1) > 1e-12 {
		t.Errorf("MeanIoU(rounded perfect) = %v", got)
	}
	// no overlap: intersection 0, union 4
	if got := MeanIoU(truth, []float32{0, 0, 1, 1}); math.Abs(got-0.2) > 1e-12 {
		t.Errorf("MeanIoU(disjoint) = %v, want 0.2", got)
	}
	if got := BinaryCrossEntropy(truth, []float32{1, 1, 0, 0}); got > 1e-6 {
		t.Errorf("BCE(perfect) = %v", got)
	}
	bce := BinaryCrossEntropy([]float32{1}, []float32{0.5})
	if math.Abs(bce-math.Ln2) > 1e-9 {
		t.Errorf("BCE(0.5) = %v, want ln 2", bce)
	}
	mixed := IoUBCELoss(truth, []float32{0.5, 0.5, 0.5, 0.5})
	want := 0.5*BinaryCrossEntropy(truth, []float32{0.5, 0.5, 0.5, 0.5}) + 0.5*IoULoss(truth, []float32{0.5, 0.5, 0.5, 0.5})
	if math.Abs(mixed-want) > 1e-12 {
		t.Errorf("IoUBCELoss = %v, want %v", mixed, want)
	}
}
