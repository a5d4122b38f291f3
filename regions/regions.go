// Package regions turns a probability map into labelled connected
// components and their bounding boxes.
package regions

import "github.com/Tutortoise/pneumonia-service/models"

// Connectivity selects which neighbours join a component.
type Connectivity int

const (
	// Connectivity4 joins edge neighbours only.
	Connectivity4 Connectivity = 1
	// Connectivity8 also joins diagonal neighbours.
	Connectivity8 Connectivity = 2
)

type Mask struct {
	Width, Height int
	Bits          []bool
}

// Threshold marks every value strictly greater than thr.
func Threshold(values []float32, width, height int, thr float32) *Mask {
	m := &Mask{Width: width, Height: height, Bits: make([]bool, width*height)}
	for i := range m.Bits {
		m.Bits[i] = values[i] > thr
	}
	return m
}

func (m *Mask) Any() bool {
	for _, b := range m.Bits {
		if b {
			return true
		}
	}
	return false
}

func (m *Mask) Count() int {
	n := 0
	for _, b := range m.Bits {
		if b {
			n++
		}
	}
	return n
}

var (
	offsets4 = [][2]int{{0, -1}, {-1, 0}, {1, 0}, {0, 1}}
	offsets8 = [][2]int{
		{-1, -1}, {0, -1}, {1, -1},
		{-1, 0}, {1, 0},
		{-1, 1}, {0, 1}, {1, 1},
	}
)

// Label assigns 1..count to foreground pixels. Labels are numbered in the
// raster order of each component's first pixel; background stays 0.
func Label(m *Mask, conn Connectivity) ([]int, int) {
	offsets := offsets8
	if conn == Connectivity4 {
		offsets = offsets4
	}

	labels := make([]int, len(m.Bits))
	queue := make([]int, 0, 64)
	count := 0

	for start, fg := range m.Bits {
		if !fg || labels[start] != 0 {
			continue
		}
		count++
		labels[start] = count
		queue = append(queue[:0], start)

		for len(queue) > 0 {
			idx := queue[len(queue)-1]
			queue = queue[:len(queue)-1]
			x, y := idx%m.Width, idx/m.Width

			for _, off := range offsets {
				nx, ny := x+off[0], y+off[1]
				if nx < 0 || ny < 0 || nx >= m.Width || ny >= m.Height {
					continue
				}
				n := ny*m.Width + nx
				if m.Bits[n] && labels[n] == 0 {
					labels[n] = count
					queue = append(queue, n)
				}
			}
		}
	}
	return labels, count
}

// Boxes returns one bounding box per label, in label order. Width and
// Height are exclusive extents, so a single pixel is 1×1.
func Boxes(labels []int, count, width, height int) []models.Region {
	if count == 0 {
		return nil
	}

	type bounds struct{ minX, minY, maxX, maxY int }
	b := make([]bounds, count)
	for i := range b {
		b[i] = bounds{minX: width, minY: height, maxX: -1, maxY: -1}
	}

	for y := 0; y < height; y++ {
		row := labels[y*width : (y+1)*width]
		for x, l := range row {
			if l == 0 {
				continue
			}
			bb := &b[l-1]
			bb.minX = min(bb.minX, x)
			bb.minY = min(bb.minY, y)
			bb.maxX = max(bb.maxX, x)
			bb.maxY = max(bb.maxY, y)
		}
	}

	out := make([]models.Region, count)
	for i, bb := range b {
		out[i] = models.Region{
			X:      bb.minX,
			Y:      bb.minY,
			Width:  bb.maxX - bb.minX + 1,
			Height: bb.maxY - bb.minY + 1,
		}
	}
	return out
}

// Extract labels m and returns its component boxes.
func Extract(m *Mask, conn Connectivity) []models.Region {
	labels, count := Label(m, conn)
	return Boxes(labels, count, m.Width, m.Height)
}
