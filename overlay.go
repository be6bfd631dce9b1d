package lutcam

import (
	"fmt"
	"image"
	_ "image/jpeg" // Register JPEG decoder.
	_ "image/png"  // Register PNG decoder.
	"io"
	"os"
	"path/filepath"

	_ "golang.org/x/image/webp" // Register WebP decoder.
)

// DecodeOverlay decodes a PNG, JPEG or WebP overlay graphic.
func DecodeOverlay(r io.Reader) (image.Image, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode overlay: %w", err)
	}
	if img.Bounds().Empty() {
		return nil, fmt.Errorf("decode overlay: empty %s image", format)
	}
	return img, nil
}

// LoadOverlay reads an overlay graphic from disk.
func LoadOverlay(path string) (image.Image, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return DecodeOverlay(f)
}

// LoadImage reads any supported image from disk, used for still sources.
func LoadImage(path string) (image.Image, error) {
	return LoadOverlay(path)
}
