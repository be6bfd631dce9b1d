package lutcam

import (
	"errors"
	"image"
)

// Mode identifies the active effect.
type Mode int

const (
	// ModeNone renders the cover-fit frame only.
	ModeNone Mode = iota
	// ModeOverlay composites an overlay graphic.
	ModeOverlay
	// ModeColorGrade applies a 3D LUT.
	ModeColorGrade
)

func (m Mode) String() string {
	switch m {
	case ModeOverlay:
		return "overlay"
	case ModeColorGrade:
		return "color-grade"
	default:
		return "none"
	}
}

// Effect is the rendering configuration: exactly one of NoEffect, *OverlayEffect or
// *ColorGradeEffect. Values are immutable and are swapped whole, never edited.
type Effect interface {
	Mode() Mode
	effect()
}

// NoEffect renders the source without grading or overlay.
type NoEffect struct{}

// Mode implements Effect.
func (NoEffect) Mode() Mode { return ModeNone }
func (NoEffect) effect()    {}

// OverlayEffect composites an overlay image.
type OverlayEffect struct {
	img *image.RGBA
}

// NewOverlayEffect converts img once to premultiplied RGBA; img must not be nil or empty.
func NewOverlayEffect(img image.Image) (*OverlayEffect, error) {
	if img == nil || img.Bounds().Empty() {
		return nil, ErrNoOverlay
	}
	return &OverlayEffect{img: asRGBA(img)}, nil
}

// Mode implements Effect.
func (*OverlayEffect) Mode() Mode { return ModeOverlay }
func (*OverlayEffect) effect()    {}

// Image returns the overlay.
func (e *OverlayEffect) Image() *image.RGBA { return e.img }

// ColorGradeEffect applies a LUT.
type ColorGradeEffect struct {
	lut *LutTable
}

// NewColorGradeEffect wraps a parsed LUT; lut must not be nil.
func NewColorGradeEffect(lut *LutTable) (*ColorGradeEffect, error) {
	if lut == nil {
		return nil, errors.New("nil lut")
	}
	return &ColorGradeEffect{lut: lut}, nil
}

// Mode implements Effect.
func (*ColorGradeEffect) Mode() Mode { return ModeColorGrade }
func (*ColorGradeEffect) effect()    {}

// LUT returns the table.
func (e *ColorGradeEffect) LUT() *LutTable { return e.lut }

// modeOf treats a nil effect as NoEffect.
func modeOf(e Effect) Mode {
	if e == nil {
		return ModeNone
	}
	return e.Mode()
}
