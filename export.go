package lutcam

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image/png"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// ExportSink persists an encoded export under a suggested file name.
type ExportSink interface {
	Save(ctx context.Context, name string, data []byte) error
}

// ExportResult describes a finished export.
type ExportResult struct {
	Name      string
	Data      []byte // PNG
	Width     int
	Height    int
	Mode      Mode
	SessionID string
}

// ExportFilename returns photo-<ISO-8601 UTC timestamp>.png with ':' and '.' replaced by '-'.
func ExportFilename(t time.Time) string {
	ts := t.UTC().Format("2006-01-02T15:04:05.000Z")
	ts = strings.NewReplacer(":", "-", ".", "-").Replace(ts)
	return "photo-" + ts + ".png"
}

// EncodePNG encodes a frame. An empty result is an error.
func EncodePNG(fb *FrameBuffer) ([]byte, error) {
	if fb == nil || fb.Width <= 0 || fb.Height <= 0 {
		return nil, errors.New("empty frame")
	}
	var buf bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.BestSpeed}
	if err := enc.Encode(&buf, fb.RGBA()); err != nil {
		return nil, err
	}
	if buf.Len() == 0 {
		return nil, errors.New("encoder produced no output")
	}
	return buf.Bytes(), nil
}

// DirSink writes exports into a directory. Files appear atomically: data goes to a
// temporary file that is renamed on success.
type DirSink struct {
	Dir string
}

// Save implements ExportSink.
func (d DirSink) Save(ctx context.Context, name string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(d.Dir, 0o755); err != nil {
		return fmt.Errorf("create export dir: %w", err)
	}
	tmp, err := os.CreateTemp(d.Dir, ".export-*")
	if err != nil {
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	dst := filepath.Join(d.Dir, filepath.Base(filepath.Clean(name)))
	if err := os.Rename(tmp.Name(), dst); err != nil {
		_ = os.Remove(tmp.Name())
		return err
	}
	return nil
}

// MemorySink keeps exports in memory.
type MemorySink struct {
	mu    sync.Mutex
	files map[string][]byte
	order []string
}

// Save implements ExportSink.
func (m *MemorySink) Save(_ context.Context, name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.files == nil {
		m.files = make(map[string][]byte)
	}
	if _, ok := m.files[name]; !ok {
		m.order = append(m.order, name)
	}
	m.files[name] = append([]byte(nil), data...)
	return nil
}

// Get returns a saved export.
func (m *MemorySink) Get(name string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.files[name]
	return d, ok
}

// Names lists saved exports in save order.
func (m *MemorySink) Names() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.order...)
}
