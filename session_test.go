package lutcam

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type manualTicker struct {
	c       chan time.Time
	stopped atomic.Bool
}

func newManualTicker() *manualTicker {
	return &manualTicker{c: make(chan time.Time, 1)}
}

func (m *manualTicker) C() <-chan time.Time { return m.c }
func (m *manualTicker) Stop()               { m.stopped.Store(true) }

// fakeSource is a MediaSource that records calls made after Close.
type fakeSource struct {
	img   image.Image
	ready atomic.Bool
	err   atomic.Pointer[error]

	closed          atomic.Bool
	frameAfterClose atomic.Bool
	frames          atomic.Int64
}

func newFakeSource(img image.Image) *fakeSource {
	s := &fakeSource{img: img}
	s.ready.Store(true)
	return s
}

func (s *fakeSource) Ready() bool { return s.ready.Load() && !s.closed.Load() }

func (s *fakeSource) Frame() (image.Image, error) {
	if s.closed.Load() {
		s.frameAfterClose.Store(true)
		return nil, ErrSourceClosed
	}
	s.frames.Add(1)
	return s.img, nil
}

func (s *fakeSource) Size() (int, int) {
	b := s.img.Bounds()
	return b.Dx(), b.Dy()
}

func (s *fakeSource) Close() error {
	s.closed.Store(true)
	return nil
}

func (s *fakeSource) Err() error {
	if p := s.err.Load(); p != nil {
		return *p
	}
	return nil
}

type sessionHarness struct {
	sess   *Session
	src    *fakeSource
	ticker *manualTicker
	frames chan *FrameBuffer
}

func newHarness(t *testing.T, img image.Image, opts ...func(o *SessionOptions)) *sessionHarness {
	t.Helper()
	h := &sessionHarness{
		src:    newFakeSource(img),
		ticker: newManualTicker(),
		frames: make(chan *FrameBuffer, 16),
	}
	b := img.Bounds()
	base := func(o *SessionOptions) {
		o.PreviewWidth = b.Dx()
		o.PreviewHeight = b.Dy()
		o.NewTicker = func(time.Duration) Ticker { return h.ticker }
		o.OnPreview = func(fb *FrameBuffer) {
			select {
			case h.frames <- fb.Clone():
			default:
			}
		}
		o.Fetcher = FetcherFunc(func(context.Context, string) ([]byte, error) {
			return nil, errors.New("no fetcher in test")
		})
	}
	sess, err := NewSession(h.src, append([]func(o *SessionOptions){base}, opts...)...)
	if err != nil {
		t.Fatalf("new session: %v", err)
	}
	h.sess = sess
	t.Cleanup(func() { _ = sess.Stop() })
	return h
}

func (h *sessionHarness) start(t *testing.T) {
	t.Helper()
	if err := h.sess.Start(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
}

// tick renders one preview frame and returns it.
func (h *sessionHarness) tick(t *testing.T) *FrameBuffer {
	t.Helper()
	h.ticker.c <- time.Now()
	select {
	case fb := <-h.frames:
		return fb
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for preview frame")
		return nil
	}
}

func TestSessionPreview(t *testing.T) {
	h := newHarness(t, solidImage(40, 20, gray))
	if h.sess.IsReady() {
		t.Fatal("session must not be ready before start")
	}
	if h.sess.Preview() != nil {
		t.Fatal("expected no preview before first frame")
	}
	h.start(t)
	if !h.sess.IsReady() {
		t.Fatal("session must be ready after start")
	}

	fb := h.tick(t)
	assertPixel(t, fb, 0, 0, rgbaBytes(gray))
	h.tick(t)

	p := h.sess.Preview()
	if p == nil || p.Width != 40 || p.Height != 20 {
		t.Fatalf("unexpected preview %+v", p)
	}
	st := h.sess.Stats()
	if st.FramesRendered != 2 || st.SessionID != h.sess.ID() || st.Mode != ModeNone {
		t.Fatalf("unexpected stats %+v", st)
	}

	if err := h.sess.Start(context.Background()); err == nil {
		t.Fatal("expected error on second start")
	}
}

func TestSessionStartsWithOverlay(t *testing.T) {
	h := newHarness(t, solidImage(40, 20, gray), func(o *SessionOptions) {
		o.Overlay = solidImage(10, 10, blue)
	})
	if h.sess.CurrentMode() != ModeOverlay {
		t.Fatalf("mode: got %v", h.sess.CurrentMode())
	}
	h.start(t)
	fb := h.tick(t)
	assertPixel(t, fb, 20, 10, rgbaBytes(blue))
	assertPixel(t, fb, 0, 0, rgbaBytes(gray))
}

func TestSessionStartNotReady(t *testing.T) {
	h := newHarness(t, solidImage(4, 4, gray), func(o *SessionOptions) {
		o.ReadyTimeout = 50 * time.Millisecond
	})
	h.src.ready.Store(false)

	err := h.sess.Start(context.Background())
	if !errors.Is(err, ErrMediaAccess) {
		t.Fatalf("expected ErrMediaAccess, got %v", err)
	}
	if h.sess.IsReady() {
		t.Fatal("session must not be ready")
	}
}

func TestSessionStartSourceError(t *testing.T) {
	h := newHarness(t, solidImage(4, 4, gray))
	h.src.ready.Store(false)
	denied := errors.New("permission denied")
	h.src.err.Store(&denied)

	err := h.sess.Start(context.Background())
	if !errors.Is(err, ErrMediaAccess) || !errors.Is(err, denied) {
		t.Fatalf("expected wrapped access error, got %v", err)
	}
}

func TestSessionStopOrdering(t *testing.T) {
	h := newHarness(t, solidImage(8, 8, gray))
	h.start(t)
	h.tick(t)
	h.tick(t)

	// Keep ticks queued while stopping.
	h.ticker.c <- time.Now()

	if err := h.sess.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if !h.src.closed.Load() {
		t.Fatal("source not closed")
	}
	if h.src.frameAfterClose.Load() {
		t.Fatal("frame requested after source was closed")
	}
	if !h.ticker.stopped.Load() {
		t.Fatal("ticker not stopped")
	}
	if h.sess.IsReady() {
		t.Fatal("stopped session must not be ready")
	}

	if err := h.sess.Stop(); err != nil {
		t.Fatalf("second stop: %v", err)
	}
	if err := h.sess.Start(context.Background()); !errors.Is(err, ErrSessionStopped) {
		t.Fatalf("expected ErrSessionStopped, got %v", err)
	}
	if _, err := h.sess.Export(context.Background()); !errors.Is(err, ErrSessionStopped) {
		t.Fatalf("expected ErrSessionStopped, got %v", err)
	}
}

func TestSessionStopBeforeStart(t *testing.T) {
	h := newHarness(t, solidImage(8, 8, gray))
	if err := h.sess.Stop(); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if !h.src.closed.Load() {
		t.Fatal("source not closed")
	}
}

func TestSessionEffectSwapIsAtomic(t *testing.T) {
	h := newHarness(t, solidImage(40, 20, gray), func(o *SessionOptions) {
		o.Overlay = solidImage(10, 10, blue)
	})
	lut := constantLUT(2, [3]float32{1, 0, 0})

	var (
		bad    atomic.Int64
		frames atomic.Int64
	)
	h.sess.opt.OnPreview = func(fb *FrameBuffer) {
		frames.Add(1)
		corner, center := fb.At(0, 0), fb.At(20, 10)
		switch {
		case corner == rgbaBytes(red) && center == rgbaBytes(red):
		case corner == rgbaBytes(gray) && center == rgbaBytes(blue):
		default:
			bad.Add(1)
		}
	}
	h.start(t)

	done := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; ; i++ {
			select {
			case <-done:
				return
			default:
			}
			if i%2 == 0 {
				if err := h.sess.UseLUT(lut); err != nil {
					t.Errorf("use lut: %v", err)
					return
				}
			} else if err := h.sess.UseOverlay(nil); err != nil {
				t.Errorf("use overlay: %v", err)
				return
			}
			switch e := h.sess.CurrentEffect().(type) {
			case *ColorGradeEffect:
				if e.LUT() == nil {
					t.Error("color grade effect without lut")
				}
			case *OverlayEffect:
				if e.Image() == nil {
					t.Error("overlay effect without image")
				}
			}
		}
	}()

	for i := 0; i < 200; i++ {
		h.ticker.c <- time.Now()
	}
	deadline := time.Now().Add(5 * time.Second)
	for frames.Load() < 199 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	close(done)
	wg.Wait()

	if bad.Load() != 0 {
		t.Fatalf("%d frames mixed two effects", bad.Load())
	}
	if frames.Load() == 0 {
		t.Fatal("no frames rendered")
	}
}

func TestSessionUseColorGrade(t *testing.T) {
	h := newHarness(t, solidImage(8, 8, gray), func(o *SessionOptions) {
		o.Fetcher = FetcherFunc(func(_ context.Context, location string) ([]byte, error) {
			if location != "red.cube" {
				return nil, errors.New("not found")
			}
			return []byte("LUT_3D_SIZE 2\n" +
				"1 0 0\n1 0 0\n1 0 0\n1 0 0\n1 0 0\n1 0 0\n1 0 0\n1 0 0\n"), nil
		})
	})

	if err := h.sess.UseColorGrade(context.Background(), "red.cube"); err != nil {
		t.Fatalf("use color grade: %v", err)
	}
	if h.sess.CurrentMode() != ModeColorGrade {
		t.Fatalf("mode: got %v", h.sess.CurrentMode())
	}

	h.start(t)
	fb := h.tick(t)
	assertPixel(t, fb, 3, 3, rgbaBytes(red))
}

func TestSessionColorGradeLoadFailure(t *testing.T) {
	h := newHarness(t, solidImage(8, 8, gray), func(o *SessionOptions) {
		o.Overlay = solidImage(4, 4, blue)
	})
	before := h.sess.CurrentEffect()

	err := h.sess.UseColorGrade(context.Background(), "missing.cube")
	var le *LutLoadError
	if !errors.As(err, &le) || le.Location != "missing.cube" {
		t.Fatalf("expected LutLoadError, got %v", err)
	}
	if h.sess.CurrentEffect() != before {
		t.Fatal("effect changed after failed load")
	}
}

func TestSessionLastSelectionWins(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	cube := []byte("LUT_3D_SIZE 2\n0 0 0\n0 0 0\n0 0 0\n0 0 0\n0 0 0\n0 0 0\n0 0 0\n0 0 0\n")

	h := newHarness(t, solidImage(8, 8, gray), func(o *SessionOptions) {
		o.Fetcher = FetcherFunc(func(ctx context.Context, location string) ([]byte, error) {
			if location == "slow.cube" {
				close(started)
				<-release
			}
			return cube, nil
		})
	})

	errc := make(chan error, 1)
	go func() { errc <- h.sess.UseColorGrade(context.Background(), "slow.cube") }()

	<-started
	h.sess.UseNone()
	close(release)

	if err := <-errc; !errors.Is(err, ErrSuperseded) {
		t.Fatalf("expected ErrSuperseded, got %v", err)
	}
	if h.sess.CurrentMode() != ModeNone {
		t.Fatalf("stale lut applied: mode %v", h.sess.CurrentMode())
	}

	// A slow load followed by a fast one: only the fast one lands.
	if err := h.sess.UseColorGrade(context.Background(), "fast.cube"); err != nil {
		t.Fatalf("fast load: %v", err)
	}
	if h.sess.CurrentMode() != ModeColorGrade {
		t.Fatalf("mode: got %v", h.sess.CurrentMode())
	}
}

func TestSessionCommitRejectsOlderGeneration(t *testing.T) {
	h := newHarness(t, solidImage(2, 2, gray))
	h.sess.SetEffect(NoEffect{})
	cur := h.sess.gen.Load()

	grade, err := NewColorGradeEffect(constantLUT(2, [3]float32{}))
	if err != nil {
		t.Fatalf("grade: %v", err)
	}
	if h.sess.commit(cur-1, grade) {
		t.Fatal("older generation committed")
	}
	if !h.sess.commit(cur, grade) {
		t.Fatal("current generation rejected")
	}
}

func TestSessionUseOverlayWithoutImage(t *testing.T) {
	h := newHarness(t, solidImage(2, 2, gray))
	if err := h.sess.UseOverlay(nil); !errors.Is(err, ErrNoOverlay) {
		t.Fatalf("expected ErrNoOverlay, got %v", err)
	}
	if err := h.sess.UseOverlay(solidImage(2, 2, blue)); err != nil {
		t.Fatalf("use overlay: %v", err)
	}
	if h.sess.CurrentMode() != ModeOverlay {
		t.Fatalf("mode: got %v", h.sess.CurrentMode())
	}
}

func TestSessionExport(t *testing.T) {
	src := solidImage(40, 20, black)
	for y := 0; y < 20; y++ {
		for x := 0; x < 10; x++ {
			src.SetRGBA(x, y, white)
		}
	}
	sink := &MemorySink{}
	now := time.Date(2026, 10, 18, 12, 34, 56, 789e6, time.UTC)

	h := newHarness(t, src, func(o *SessionOptions) {
		o.PreviewWidth = 20
		o.PreviewHeight = 10
		o.MirrorPreview = true
		o.Export = sink
		o.Now = func() time.Time { return now }
	})
	h.start(t)

	// Preview is mirrored: white strip on the right.
	fb := h.tick(t)
	assertPixel(t, fb, 19, 5, rgbaBytes(white))
	assertPixel(t, fb, 0, 5, rgbaBytes(black))

	if _, ok := h.sess.LastExport(); ok {
		t.Fatal("unexpected export before export")
	}

	res, err := h.sess.Export(context.Background())
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	const wantName = "photo-2026-10-18T12-34-56-789Z.png"
	if res.Name != wantName || res.Width != 40 || res.Height != 20 || res.Mode != ModeNone {
		t.Fatalf("unexpected result %+v", res)
	}
	if res.SessionID != h.sess.ID() {
		t.Fatalf("session id: got %q", res.SessionID)
	}

	data, ok := sink.Get(wantName)
	if !ok || !bytes.Equal(data, res.Data) {
		t.Fatal("export not saved to sink")
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode export: %v", err)
	}
	if img.Bounds() != image.Rect(0, 0, 40, 20) {
		t.Fatalf("export bounds: got %v", img.Bounds())
	}
	// Exports are not mirrored.
	out := FrameBufferFromImage(img)
	assertPixel(t, out, 0, 10, rgbaBytes(white))
	assertPixel(t, out, 39, 10, rgbaBytes(black))

	if name, ok := h.sess.LastExport(); !ok || name != wantName {
		t.Fatalf("last export: got %q %v", name, ok)
	}
	if h.sess.Stats().Exports != 1 {
		t.Fatalf("exports: got %d", h.sess.Stats().Exports)
	}
}

// halfImage returns a w x h image with the left half set to left and the right half to right.
func halfImage(w, h int, left, right color.RGBA) *image.RGBA {
	img := solidImage(w, h, right)
	for y := 0; y < h; y++ {
		for x := 0; x < w/2; x++ {
			img.SetRGBA(x, y, left)
		}
	}
	return img
}

func TestSessionMirrorKeepsOverlayUnmirrored(t *testing.T) {
	h := newHarness(t, halfImage(40, 20, white, black), func(o *SessionOptions) {
		o.MirrorPreview = true
		o.Overlay = halfImage(10, 10, red, color.RGBA{})
	})
	h.start(t)

	// The overlay lands on x 10..30 with its red half on 10..20.
	fb := h.tick(t)
	assertPixel(t, fb, 12, 10, rgbaBytes(red))
	assertPixel(t, fb, 27, 10, rgbaBytes(white))
	assertPixel(t, fb, 2, 10, rgbaBytes(black))
	assertPixel(t, fb, 37, 10, rgbaBytes(white))

	res, err := h.sess.Export(context.Background())
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(res.Data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	out := FrameBufferFromImage(img)
	assertPixel(t, out, 12, 10, rgbaBytes(red))
	assertPixel(t, out, 27, 10, rgbaBytes(black))
	assertPixel(t, out, 2, 10, rgbaBytes(white))
}

func TestSessionExportAppliesEffect(t *testing.T) {
	h := newHarness(t, solidImage(30, 30, gray), func(o *SessionOptions) {
		o.Overlay = solidImage(5, 5, blue)
	})

	if err := h.sess.UseLUT(constantLUT(2, [3]float32{1, 0, 0})); err != nil {
		t.Fatalf("use lut: %v", err)
	}
	res, err := h.sess.Export(context.Background())
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	img, err := png.Decode(bytes.NewReader(res.Data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	out := FrameBufferFromImage(img)
	assertPixel(t, out, 15, 15, rgbaBytes(red))
	assertPixel(t, out, 0, 0, rgbaBytes(red))
	if res.Mode != ModeColorGrade {
		t.Fatalf("mode: got %v", res.Mode)
	}
}

type failingSink struct{ err error }

func (f failingSink) Save(context.Context, string, []byte) error { return f.err }

func TestSessionExportSaveFailure(t *testing.T) {
	boom := errors.New("disk full")
	h := newHarness(t, solidImage(4, 4, gray), func(o *SessionOptions) {
		o.Export = failingSink{err: boom}
	})

	_, err := h.sess.Export(context.Background())
	var ee *ExportError
	if !errors.As(err, &ee) || ee.Stage != "save" || !errors.Is(err, boom) {
		t.Fatalf("expected save ExportError, got %v", err)
	}
	if _, ok := h.sess.LastExport(); ok {
		t.Fatal("failed export recorded")
	}
}

func TestSessionExportSourceFailure(t *testing.T) {
	h := newHarness(t, solidImage(4, 4, gray))
	_ = h.src.Close()

	_, err := h.sess.Export(context.Background())
	var ee *ExportError
	if !errors.As(err, &ee) || ee.Stage != "render" || !errors.Is(err, ErrSourceClosed) {
		t.Fatalf("expected render ExportError, got %v", err)
	}
}

func TestNewSessionValidation(t *testing.T) {
	if _, err := NewSession(nil); !errors.Is(err, ErrMediaAccess) {
		t.Fatalf("expected ErrMediaAccess, got %v", err)
	}
	src := NewStillSource(solidImage(2, 2, gray))
	if _, err := NewSession(src, func(o *SessionOptions) { o.PreviewWidth = 0 }); err == nil {
		t.Fatal("expected error for empty preview")
	}
	if _, err := NewSession(src, func(o *SessionOptions) { o.FPS = 0 }); err == nil {
		t.Fatal("expected error for zero fps")
	}
}
