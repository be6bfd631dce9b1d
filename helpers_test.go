package lutcam

import (
	"image"
	"image/color"
	"testing"
)

func solidImage(w, h int, c color.RGBA) *image.RGBA {
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = c.R, c.G, c.B, c.A
	}
	return img
}

// constantLUT maps every input to one color.
func constantLUT(size int, rgb [3]float32) *LutTable {
	t := &LutTable{Size: size, DomainMax: [3]float32{1, 1, 1}}
	for i := 0; i < size*size*size; i++ {
		t.Entries = append(t.Entries, rgb)
	}
	return t
}

func assertPixel(t *testing.T, fb *FrameBuffer, x, y int, want [4]uint8) {
	t.Helper()
	if got := fb.At(x, y); got != want {
		t.Fatalf("pixel (%d,%d): got %v want %v", x, y, got, want)
	}
}

var (
	gray  = color.RGBA{R: 128, G: 128, B: 128, A: 255}
	red   = color.RGBA{R: 255, A: 255}
	blue  = color.RGBA{B: 255, A: 255}
	black = color.RGBA{A: 255}
	white = color.RGBA{R: 255, G: 255, B: 255, A: 255}
)

func rgbaBytes(c color.RGBA) [4]uint8 { return [4]uint8{c.R, c.G, c.B, c.A} }
