package lutcam

import "time"

const (
	// DefaultLUTSize is used when a ".cube" document has no LUT_3D_SIZE directive.
	DefaultLUTSize = 32
	// MaxLUTSize is the largest accepted LUT_3D_SIZE.
	MaxLUTSize = 256

	defaultPreviewWidth  = 1080
	defaultPreviewHeight = 1920
	defaultFPS           = 30.0
	defaultReadyTimeout  = 10 * time.Second
	readyPollInterval    = 10 * time.Millisecond

	maxStoredAnomalies = 64
	overlayCacheSize   = 4
)

const (
	directiveTitle     = "TITLE"
	directiveDomainMin = "DOMAIN_MIN"
	directiveDomainMax = "DOMAIN_MAX"
	directiveLUT3DSize = "LUT_3D_SIZE"
)

func secondsToDuration(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}
