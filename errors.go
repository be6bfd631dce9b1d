package lutcam

import (
	"errors"
	"fmt"
)

var (
	// ErrMediaAccess means the media source is unavailable or never became ready.
	// The session cannot render and must be recreated.
	ErrMediaAccess = errors.New("media source unavailable")

	// ErrSuperseded is returned by an effect selection whose result arrived after a newer selection.
	ErrSuperseded = errors.New("effect selection superseded")

	// ErrSessionStopped is returned by operations on a stopped session.
	ErrSessionStopped = errors.New("session stopped")

	// ErrNotReady is returned when a frame is requested before the source is ready.
	ErrNotReady = errors.New("media source not ready")

	// ErrNoOverlay is returned when overlay mode is selected without an overlay image.
	ErrNoOverlay = errors.New("no overlay image")

	// ErrSourceClosed is returned by a closed media source.
	ErrSourceClosed = errors.New("media source closed")
)

// LutLoadError reports a failure to obtain LUT text. The active effect is left unchanged.
type LutLoadError struct {
	Location string
	Err      error
}

func (e *LutLoadError) Error() string {
	return fmt.Sprintf("load lut %q: %v", e.Location, e.Err)
}

func (e *LutLoadError) Unwrap() error { return e.Err }

// ExportError reports a failed one-shot export. No file is produced.
type ExportError struct {
	Stage string // render, encode or save
	Err   error
}

func (e *ExportError) Error() string {
	return fmt.Sprintf("export %s: %v", e.Stage, e.Err)
}

func (e *ExportError) Unwrap() error { return e.Err }

// AnomalyKind classifies a non-fatal ".cube" parse problem.
type AnomalyKind int

const (
	// AnomalyMalformedValue is a data token that is not a number.
	AnomalyMalformedValue AnomalyKind = iota
	// AnomalyMissingValue is a data line with fewer than three tokens.
	AnomalyMissingValue
	// AnomalyInvalidSize is a LUT_3D_SIZE directive without a positive integer.
	AnomalyInvalidSize
	// AnomalyRowCount means the number of data rows differs from size^3.
	AnomalyRowCount
)

func (k AnomalyKind) String() string {
	switch k {
	case AnomalyMalformedValue:
		return "malformed value"
	case AnomalyMissingValue:
		return "missing value"
	case AnomalyInvalidSize:
		return "invalid size"
	case AnomalyRowCount:
		return "row count mismatch"
	default:
		return "unknown"
	}
}

// LutParseAnomaly is a diagnostic produced while parsing; it never aborts parsing.
type LutParseAnomaly struct {
	Line   int // 1-based source line, 0 when not tied to a line
	Kind   AnomalyKind
	Detail string
}

func (a LutParseAnomaly) Error() string {
	if a.Line > 0 {
		return fmt.Sprintf("line %d: %s: %s", a.Line, a.Kind, a.Detail)
	}
	return fmt.Sprintf("%s: %s", a.Kind, a.Detail)
}
