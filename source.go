package lutcam

import (
	"image"
	"sync"
)

// MediaSource supplies live decoded frames. Frames returned by Frame must not be
// modified by the source afterwards: the pipeline reads them without copying.
type MediaSource interface {
	// Ready reports whether a frame is available.
	Ready() bool
	// Frame returns the current frame.
	Frame() (image.Image, error)
	// Size returns the native frame dimensions.
	Size() (width, height int)
	// Close releases the source. Frame fails afterwards.
	Close() error
}

// StillSource serves one image as a never-changing stream.
type StillSource struct {
	img image.Image

	mu     sync.RWMutex
	closed bool
}

// NewStillSource wraps img, converting it to RGBA once.
func NewStillSource(img image.Image) *StillSource {
	if img == nil {
		return &StillSource{}
	}
	return &StillSource{img: asRGBA(img)}
}

// Ready implements MediaSource.
func (s *StillSource) Ready() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return !s.closed && s.img != nil
}

// Frame implements MediaSource.
func (s *StillSource) Frame() (image.Image, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrSourceClosed
	}
	if s.img == nil {
		return nil, ErrNotReady
	}
	return s.img, nil
}

// Size implements MediaSource.
func (s *StillSource) Size() (int, int) {
	if s.img == nil {
		return 0, 0
	}
	b := s.img.Bounds()
	return b.Dx(), b.Dy()
}

// Close implements MediaSource.
func (s *StillSource) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
