package lutcam

import (
	"errors"
	"image"
	"math"

	"github.com/nfnt/resize"
	"golang.org/x/image/draw"

	"github.com/vearutop/lutcam/internal/workers"
)

// Crop is the source region shown by a cover fit, in source pixel coordinates
// relative to the source bounds origin.
type Crop struct {
	X, Y  float64
	W, H  float64
	Scale float64 // destination pixels per source pixel
}

// Bounds rounds the crop to integer pixels.
func (c Crop) Bounds() image.Rectangle {
	return image.Rect(
		int(math.Round(c.X)), int(math.Round(c.Y)),
		int(math.Round(c.X+c.W)), int(math.Round(c.Y+c.H)),
	)
}

// CoverRect computes the centered source crop that fills a w x h destination while
// keeping the source aspect ratio: scale = max(w/sw, h/sh).
func CoverRect(sw, sh, w, h int) Crop {
	if sw <= 0 || sh <= 0 || w <= 0 || h <= 0 {
		return Crop{}
	}
	scale := math.Max(float64(w)/float64(sw), float64(h)/float64(sh))
	cw := float64(w) / scale
	ch := float64(h) / scale
	return Crop{
		X:     (float64(sw) - cw) / 2,
		Y:     (float64(sh) - ch) / 2,
		W:     cw,
		H:     ch,
		Scale: scale,
	}
}

// Placement is where a contain-fit image lands in the destination.
type Placement struct {
	X, Y  float64
	W, H  float64
	Scale float64
}

// Bounds rounds the placement to integer pixels.
func (p Placement) Bounds() image.Rectangle {
	return image.Rect(
		int(math.Round(p.X)), int(math.Round(p.Y)),
		int(math.Round(p.X+p.W)), int(math.Round(p.Y+p.H)),
	)
}

// ContainRect scales an ow x oh image to fit entirely inside w x h, centered:
// scale = min(w/ow, h/oh).
func ContainRect(ow, oh, w, h int) Placement {
	if ow <= 0 || oh <= 0 || w <= 0 || h <= 0 {
		return Placement{}
	}
	scale := math.Min(float64(w)/float64(ow), float64(h)/float64(oh))
	pw := float64(ow) * scale
	ph := float64(oh) * scale
	return Placement{
		X:     (float64(w) - pw) / 2,
		Y:     (float64(h) - ph) / 2,
		W:     pw,
		H:     ph,
		Scale: scale,
	}
}

// DrawCover fills dst with src using a cover fit, cropping source edges as needed.
// Every destination pixel is written.
func DrawCover(dst *FrameBuffer, src image.Image, interp Interpolation) error {
	if dst == nil || dst.Width <= 0 || dst.Height <= 0 {
		return errors.New("empty destination")
	}
	if src == nil {
		return errors.New("nil source frame")
	}
	sb := src.Bounds()
	if sb.Empty() {
		return errors.New("empty source frame")
	}
	c := CoverRect(sb.Dx(), sb.Dy(), dst.Width, dst.Height)

	if interp == InterpolationNearest {
		coverNearest(dst, asRGBA(src), c)
		return nil
	}

	crop := c.Bounds().Add(sb.Min).Intersect(sb)
	if crop.Empty() {
		crop = sb
	}
	out := resize.Resize(uint(dst.Width), uint(dst.Height), asRGBA(src).SubImage(crop), resampler(interp))
	draw.Draw(dst.RGBA(), image.Rect(0, 0, dst.Width, dst.Height), out, out.Bounds().Min, draw.Src)
	return nil
}

func coverNearest(dst *FrameBuffer, src *image.RGBA, c Crop) {
	sb := src.Rect
	sw, sh := sb.Dx(), sb.Dy()

	xoff := make([]int, dst.Width)
	for x := range xoff {
		sx := clampInt(int(c.X+(float64(x)+0.5)/c.Scale), 0, sw-1)
		xoff[x] = sx * 4
	}

	workers.ParallelFor(dst.Height, func(start, end int) {
		for y := start; y < end; y++ {
			sy := clampInt(int(c.Y+(float64(y)+0.5)/c.Scale), 0, sh-1)
			srow := src.Pix[src.PixOffset(sb.Min.X, sb.Min.Y+sy):]
			drow := dst.Pix[y*dst.Stride : y*dst.Stride+dst.Width*4]
			for x, o := range xoff {
				copy(drow[x*4:x*4+4], srow[o:o+4])
			}
		}
	})
}

// DrawContain composites overlay over dst using a contain fit, centered.
// Areas outside the scaled overlay are left as they are.
func DrawContain(dst *FrameBuffer, overlay image.Image, interp Interpolation) error {
	if dst == nil || dst.Width <= 0 || dst.Height <= 0 {
		return errors.New("empty destination")
	}
	if overlay == nil {
		return errors.New("nil overlay")
	}
	ob := overlay.Bounds()
	r := ContainRect(ob.Dx(), ob.Dy(), dst.Width, dst.Height).Bounds()
	if r.Empty() {
		return nil
	}
	scaler(interp).Scale(dst.RGBA(), r, overlay, ob, draw.Over, nil)
	return nil
}

// asRGBA returns src as *image.RGBA, converting with the same bounds when needed.
func asRGBA(src image.Image) *image.RGBA {
	if rgba, ok := src.(*image.RGBA); ok {
		return rgba
	}
	b := src.Bounds()
	rgba := image.NewRGBA(b)
	draw.Draw(rgba, b, src, b.Min, draw.Src)
	return rgba
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
