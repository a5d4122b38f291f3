package detections

import (
	"runtime"
	"sync"

	"golang.org/x/sys/cpu"
)

var (
	useAVX512 = cpu.X86.HasAVX512
	useAVX2   = cpu.X86.HasAVX2
	useSSE41  = cpu.X86.HasSSE41
	useASIMD  = cpu.ARM64.HasASIMD
)

// Features lists the vector extensions the ONNX Runtime kernels can use on
// this host. Reported at startup and on /metrics.
func Features() []string {
	var features []string
	if useAVX512 {
		features = append(features, "avx512")
	}
	if useAVX2 {
		features = append(features, "avx2")
	}
	if useSSE41 {
		features = append(features, "sse4.1")
	}
	if useASIMD {
		features = append(features, "asimd")
	}
	return features
}

// parallelRows splits [0, rows) into contiguous bands and runs fn on each
// band in its own goroutine.
func parallelRows(rows int, fn func(start, end int)) {
	numWorkers := runtime.GOMAXPROCS(0)
	if numWorkers > rows {
		numWorkers = rows
	}
	if numWorkers <= 1 {
		fn(0, rows)
		return
	}

	rowsPerWorker := rows / numWorkers
	var wg sync.WaitGroup
	wg.Add(numWorkers)

	for w := 0; w < numWorkers; w++ {
		startRow := w * rowsPerWorker
		endRow := (w + 1) * rowsPerWorker
		if w == numWorkers-1 {
			endRow = rows
		}

		go func(start, end int) {
			defer wg.Done()
			fn(start, end)
		}(startRow, endRow)
	}

	wg.Wait()
}
