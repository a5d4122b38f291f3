package regions

import (
	"reflect"
	"testing"

	"github.com/Tutortoise/pneumonia-service/models"
)

func maskFromRows(rows ...string) *Mask {
	h := len(rows)
	w := len(rows[0])
	m := &Mask{Width: w, Height: h, Bits: make([]bool, w*h)}
	for y, row := range rows {
		for x, c := range row {
			m.Bits[y*w+x] = c == '#'
		}
	}
	return m
}

func TestThresholdIsStrict(t *testing.T) {
	m := Threshold([]float32{0.5, 0.50001, 0.2, 1}, 2, 2, 0.5)
	want := []bool{false, true, false, true}
	if !reflect.DeepEqual(m.Bits, want) {
		t.Fatalf("bits = %v, want %v", m.Bits, want)
	}
	if !m.Any() || m.Count() != 2 {
		t.Fatalf("Any=%v Count=%d", m.Any(), m.Count())
	}
}

func TestExtract(t *testing.T) {
	tests := []struct {
		name string
		rows []string
		conn Connectivity
		want []models.Region
	}{
		{
			name: "empty",
			rows: []string{"....", "...."},
			conn: Connectivity8,
			want: nil,
		},
		{
			name: "single pixel",
			rows: []string{"....", ".#..", "...."},
			conn: Connectivity8,
			want: []models.Region{{X: 1, Y: 1, Width: 1, Height: 1}},
		},
		{
			name: "diagonal joined with 8-connectivity",
			rows: []string{"#...", ".#..", "..#."},
			conn: Connectivity8,
			want: []models.Region{{X: 0, Y: 0, Width: 3, Height: 3}},
		},
		{
			name: "diagonal split with 4-connectivity",
			rows: []string{"#...", ".#..", "..#."},
			conn: Connectivity4,
			want: []models.Region{
				{X: 0, Y: 0, Width: 1, Height: 1},
				{X: 1, Y: 1, Width: 1, Height: 1},
				{X: 2, Y: 2, Width: 1, Height: 1},
			},
		},
		{
			name: "raster order",
			rows: []string{
				"......##",
				"##....##",
				"##......",
				"....#...",
			},
			conn: Connectivity8,
			want: []models.Region{
				{X: 6, Y: 0, Width: 2, Height: 2},
				{X: 0, Y: 1, Width: 2, Height: 2},
				{X: 4, Y: 3, Width: 1, Height: 1},
			},
		},
		{
			name: "u shape is one component",
			rows: []string{
				"#...#",
				"#...#",
				"#####",
			},
			conn: Connectivity4,
			want: []models.Region{{X: 0, Y: 0, Width: 5, Height: 3}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Extract(maskFromRows(tt.rows...), tt.conn)
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Extract() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestBoxesCoverEveryForegroundPixel(t *testing.T) {
	m := maskFromRows(
		"##..#.....",
		".#..#..###",
		"....#..#.#",
		"##.....###",
		"#..#......",
	)
	labels, count := Label(m, Connectivity8)
	boxes := Boxes(labels, count, m.Width, m.Height)
	if len(boxes) != count {
		t.Fatalf("got %d boxes for %d labels", len(boxes), count)
	}

	for i, l := range labels {
		if l == 0 {
			if m.Bits[i] {
				t.Fatalf("foreground pixel %d left unlabelled", i)
			}
			continue
		}
		x, y := i%m.Width, i/m.Width
		b := boxes[l-1]
		if x < b.X || x >= b.X+b.Width || y < b.Y || y >= b.Y+b.Height {
			t.Fatalf("pixel (%d,%d) outside box %+v", x, y, b)
		}
		if b.X+b.Width > m.Width || b.Y+b.Height > m.Height {
			t.Fatalf("box %+v exceeds %dx%d", b, m.Width, m.Height)
		}
	}
}
