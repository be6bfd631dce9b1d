package lutcam

import (
	"math"

	"github.com/vearutop/lutcam/internal/workers"
)

// ApplyLUT color grades fb in place with nearest-index lookup.
//
// Each channel byte c maps to index round(c*(size-1)/255) and the entry is found at
// b*size^2 + g*size + r. The entry replaces R, G and B, alpha is kept. Pixels whose entry is
// out of range or did not parse are left untouched. Tables larger than MaxLUTSize are ignored.
func ApplyLUT(fb *FrameBuffer, lut *LutTable) {
	if fb == nil || lut == nil || lut.Size < 1 || lut.Size > MaxLUTSize || len(lut.Entries) == 0 {
		return
	}
	n := lut.Size
	n2 := n * n
	cells := lut.quantized()

	var idx [256]int
	scale := float64(n-1) / 255
	for c := range idx {
		idx[c] = int(math.Floor(float64(c)*scale + 0.5))
	}

	workers.ParallelFor(fb.Height, func(start, end int) {
		for y := start; y < end; y++ {
			row := fb.Pix[y*fb.Stride : y*fb.Stride+fb.Width*4]
			for i := 0; i+3 < len(row); i += 4 {
				flat := idx[row[i+2]]*n2 + idx[row[i+1]]*n + idx[row[i]]
				if flat < 0 || flat >= len(cells) {
					continue
				}
				cell := &cells[flat]
				if !cell.ok {
					continue
				}
				row[i] = cell.rgb[0]
				row[i+1] = cell.rgb[1]
				row[i+2] = cell.rgb[2]
			}
		}
	})
}
