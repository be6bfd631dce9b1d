package lutcam

import (
	"errors"
	"fmt"
	"image"
	"sync"

	"golang.org/x/image/draw"
)

// PipelineOptions controls rendering.
type PipelineOptions struct {
	// Interpolation is used for the cover-fit source draw.
	Interpolation Interpolation
	// OverlayInterpolation is used for scaling overlays.
	OverlayInterpolation Interpolation
}

// Pipeline renders output frames: cover draw, then the active effect.
// It is safe for concurrent use; preview and export share one Pipeline.
type Pipeline struct {
	opt PipelineOptions

	mu       sync.Mutex
	overlays []overlayLayer
}

// overlayLayer is an overlay already contain-fit into a transparent frame of a given size.
type overlayLayer struct {
	src    *image.RGBA
	w, h   int
	interp Interpolation
	layer  *FrameBuffer
	rect   image.Rectangle
}

// RenderOptions adjusts a single Render call.
type RenderOptions struct {
	// MirrorSource flips the cover-fit source horizontally before the effect step.
	// Overlays are drawn unmirrored on top.
	MirrorSource bool
}

// NewPipeline creates a pipeline.
func NewPipeline(opts ...func(o *PipelineOptions)) *Pipeline {
	opt := PipelineOptions{
		Interpolation:        InterpolationNearest,
		OverlayInterpolation: InterpolationBilinear,
	}
	for _, applyOpt := range opts {
		applyOpt(&opt)
	}
	return &Pipeline{opt: opt}
}

// Options returns the pipeline options.
func (p *Pipeline) Options() PipelineOptions { return p.opt }

// Render draws src into a w x h frame and applies eff.
//
// Steps run strictly in order: cover-fit draw, optional source mirror, then LUT for
// ColorGradeEffect or overlay for OverlayEffect. Only the step matching the effect's mode runs.
// dst is reused when non-nil, otherwise a new buffer is allocated.
func (p *Pipeline) Render(dst *FrameBuffer, w, h int, src image.Image, eff Effect, opts ...func(o *RenderOptions)) (*FrameBuffer, error) {
	var ro RenderOptions
	for _, applyOpt := range opts {
		applyOpt(&ro)
	}
	if w <= 0 || h <= 0 {
		return nil, fmt.Errorf("invalid output size %dx%d", w, h)
	}
	if src == nil {
		return nil, errors.New("nil source frame")
	}
	if dst == nil {
		dst = NewFrameBuffer(w, h)
	} else {
		dst.Resize(w, h)
	}

	if err := DrawCover(dst, src, p.opt.Interpolation); err != nil {
		return nil, fmt.Errorf("cover: %w", err)
	}
	if ro.MirrorSource {
		dst.FlipHorizontal()
	}

	switch e := eff.(type) {
	case *ColorGradeEffect:
		if e != nil {
			ApplyLUT(dst, e.LUT())
		}
	case *OverlayEffect:
		if e != nil && e.Image() != nil {
			if err := p.drawOverlay(dst, e.Image()); err != nil {
				return nil, fmt.Errorf("overlay: %w", err)
			}
		}
	}

	return dst, nil
}

func (p *Pipeline) drawOverlay(dst *FrameBuffer, img *image.RGBA) error {
	l, err := p.overlayLayer(img, dst.Width, dst.Height)
	if err != nil {
		return err
	}
	if l.rect.Empty() {
		return nil
	}
	draw.Draw(dst.RGBA(), l.rect, l.layer.RGBA(), l.rect.Min, draw.Over)
	return nil
}

// overlayLayer returns the scaled overlay for the output size, scaling at most once per
// (overlay, size) pair while it stays in the small cache.
func (p *Pipeline) overlayLayer(img *image.RGBA, w, h int) (overlayLayer, error) {
	interp := p.opt.OverlayInterpolation

	p.mu.Lock()
	for _, l := range p.overlays {
		if l.src == img && l.w == w && l.h == h && l.interp == interp {
			p.mu.Unlock()
			return l, nil
		}
	}
	p.mu.Unlock()

	layer := NewFrameBuffer(w, h)
	if err := DrawContain(layer, img, interp); err != nil {
		return overlayLayer{}, err
	}
	ob := img.Bounds()
	l := overlayLayer{
		src:    img,
		w:      w,
		h:      h,
		interp: interp,
		layer:  layer,
		rect:   ContainRect(ob.Dx(), ob.Dy(), w, h).Bounds().Intersect(image.Rect(0, 0, w, h)),
	}

	p.mu.Lock()
	if len(p.overlays) >= overlayCacheSize {
		p.overlays = append(p.overlays[:0], p.overlays[1:]...)
	}
	p.overlays = append(p.overlays, l)
	p.mu.Unlock()

	return l, nil
}
