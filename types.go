package lutcam

import (
	"fmt"
	"image"
	"strings"

	"golang.org/x/image/draw"
)

// FrameBuffer is a row-major RGBA pixel buffer, 4 bytes per pixel.
// The same buffer type backs preview and export frames.
type FrameBuffer struct {
	Width  int
	Height int
	Stride int // bytes per row
	Pix    []uint8
}

// NewFrameBuffer allocates a zeroed buffer of the given size.
func NewFrameBuffer(width, height int) *FrameBuffer {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return &FrameBuffer{
		Width:  width,
		Height: height,
		Stride: width * 4,
		Pix:    make([]uint8, width*height*4),
	}
}

// FrameBufferFromImage copies img into a new buffer anchored at (0, 0).
func FrameBufferFromImage(img image.Image) *FrameBuffer {
	b := img.Bounds()
	fb := NewFrameBuffer(b.Dx(), b.Dy())
	draw.Draw(fb.RGBA(), fb.RGBA().Rect, img, b.Min, draw.Src)
	return fb
}

// Resize sets new dimensions, reusing the backing array when it is large enough.
// Pixel contents are unspecified after a resize.
func (f *FrameBuffer) Resize(width, height int) {
	n := width * height * 4
	if cap(f.Pix) < n {
		f.Pix = make([]uint8, n)
	}
	f.Pix = f.Pix[:n]
	f.Width, f.Height, f.Stride = width, height, width*4
}

// RGBA returns an *image.RGBA sharing the buffer's pixels.
func (f *FrameBuffer) RGBA() *image.RGBA {
	return &image.RGBA{Pix: f.Pix, Stride: f.Stride, Rect: image.Rect(0, 0, f.Width, f.Height)}
}

// Clone returns a deep copy.
func (f *FrameBuffer) Clone() *FrameBuffer {
	c := *f
	c.Pix = append([]uint8(nil), f.Pix...)
	return &c
}

// At returns the RGBA bytes of a pixel.
func (f *FrameBuffer) At(x, y int) [4]uint8 {
	i := y*f.Stride + x*4
	return [4]uint8{f.Pix[i], f.Pix[i+1], f.Pix[i+2], f.Pix[i+3]}
}

// FlipHorizontal mirrors the buffer in place.
func (f *FrameBuffer) FlipHorizontal() {
	for y := 0; y < f.Height; y++ {
		row := f.Pix[y*f.Stride : y*f.Stride+f.Width*4]
		for l, r := 0, (f.Width-1)*4; l < r; l, r = l+4, r-4 {
			row[l], row[r] = row[r], row[l]
			row[l+1], row[r+1] = row[r+1], row[l+1]
			row[l+2], row[r+2] = row[r+2], row[l+2]
			row[l+3], row[r+3] = row[r+3], row[l+3]
		}
	}
}

// Interpolation selects the resampling mode used when scaling frames and overlays.
type Interpolation int

const (
	// InterpolationNearest is nearest-neighbor sampling.
	InterpolationNearest Interpolation = iota
	// InterpolationBilinear is linear sampling.
	InterpolationBilinear
	// InterpolationBicubic is cubic sampling.
	InterpolationBicubic
	// InterpolationMitchellNetravali is Mitchell-Netravali sampling.
	InterpolationMitchellNetravali
	// InterpolationLanczos2 is Lanczos sampling with a=2.
	InterpolationLanczos2
	// InterpolationLanczos3 is Lanczos sampling with a=3.
	InterpolationLanczos3
)

var interpolationNames = map[Interpolation]string{
	InterpolationNearest:           "nearest",
	InterpolationBilinear:          "bilinear",
	InterpolationBicubic:           "bicubic",
	InterpolationMitchellNetravali: "mitchell",
	InterpolationLanczos2:          "lanczos2",
	InterpolationLanczos3:          "lanczos3",
}

func (i Interpolation) String() string {
	if n, ok := interpolationNames[i]; ok {
		return n
	}
	return fmt.Sprintf("Interpolation(%d)", int(i))
}

// ParseInterpolation resolves an interpolation by name, empty name means nearest.
func ParseInterpolation(name string) (Interpolation, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		return InterpolationNearest, nil
	}
	for k, v := range interpolationNames {
		if v == name {
			return k, nil
		}
	}
	return InterpolationNearest, fmt.Errorf("unknown interpolation %q", name)
}
