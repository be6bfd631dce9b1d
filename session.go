package lutcam

import (
	"context"
	"errors"
	"fmt"
	"image"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// Ticker delivers render ticks. *time.Ticker is adapted by the default factory.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type timeTicker struct{ t *time.Ticker }

func (t timeTicker) C() <-chan time.Time { return t.t.C }
func (t timeTicker) Stop()               { t.t.Stop() }

// SessionOptions controls a capture session.
type SessionOptions struct {
	// PreviewWidth and PreviewHeight set the fixed preview resolution.
	PreviewWidth  int
	PreviewHeight int
	// FPS is the preview tick rate.
	FPS float64
	// Interpolation is used for the cover draw, OverlayInterpolation for overlay scaling.
	Interpolation        Interpolation
	OverlayInterpolation Interpolation
	// MirrorPreview flips the camera image in preview frames like a selfie view. Overlays stay
	// unmirrored and exports are never mirrored.
	MirrorPreview bool
	// ReadyTimeout bounds the wait for the source to become ready in Start.
	ReadyTimeout time.Duration
	// Overlay is the preloaded overlay; when set the session starts in overlay mode.
	Overlay image.Image
	// Fetcher loads LUT documents, DefaultFetcher when nil.
	Fetcher Fetcher
	// Export receives encoded exports, optional.
	Export ExportSink
	// OnPreview is called from the render loop with each finished preview frame.
	// The frame is only valid during the call.
	OnPreview func(fb *FrameBuffer)
	// NewTicker creates the render ticker, time.NewTicker when nil.
	NewTicker func(d time.Duration) Ticker
	// Now is the clock used for export names, time.Now when nil.
	Now func() time.Time
}

// SessionStats contains render loop statistics.
type SessionStats struct {
	// SessionID identifies the session in logs and exports.
	SessionID string
	// Mode is the active effect mode.
	Mode Mode
	// FramesRendered is the number of preview frames rendered.
	FramesRendered uint64
	// FrameErrors counts ticks where the source or pipeline failed.
	FrameErrors uint64
	// SlowFrames counts frames that took longer than the tick interval.
	SlowFrames uint64
	// Exports is the number of successful exports.
	Exports uint64
	// FPS is the measured preview rate since Start.
	FPS float64
	// LastRender is the duration of the last preview render.
	LastRender time.Duration
}

type effectState struct {
	effect Effect
	gen    uint64
}

// Session drives the preview loop and one-shot exports over a MediaSource.
//
// The active Effect is the only state shared between effect selection and rendering. It is held
// as an immutable snapshot behind an atomic pointer; each frame loads it once at its start.
type Session struct {
	id       string
	src      MediaSource
	opt      SessionOptions
	pipeline *Pipeline
	overlay  *OverlayEffect

	effect atomic.Pointer[effectState]
	gen    atomic.Uint64

	mu       sync.Mutex
	started  bool
	cancel   context.CancelFunc
	loopDone chan struct{}
	stopOnce sync.Once
	stopping atomic.Bool
	closeErr error

	previewMu sync.Mutex
	front     *FrameBuffer
	back      *FrameBuffer

	startedAt  time.Time
	rendered   atomic.Uint64
	frameErrs  atomic.Uint64
	slow       atomic.Uint64
	exports    atomic.Uint64
	lastRender atomic.Int64
	lastExport atomic.Pointer[string]
}

// NewSession creates a session over src. It does not start rendering.
func NewSession(src MediaSource, opts ...func(o *SessionOptions)) (*Session, error) {
	if src == nil {
		return nil, fmt.Errorf("%w: nil source", ErrMediaAccess)
	}
	opt := SessionOptions{
		PreviewWidth:         defaultPreviewWidth,
		PreviewHeight:        defaultPreviewHeight,
		FPS:                  defaultFPS,
		Interpolation:        InterpolationNearest,
		OverlayInterpolation: InterpolationBilinear,
		ReadyTimeout:         defaultReadyTimeout,
	}
	for _, applyOpt := range opts {
		applyOpt(&opt)
	}
	if opt.PreviewWidth <= 0 || opt.PreviewHeight <= 0 {
		return nil, fmt.Errorf("invalid preview size %dx%d", opt.PreviewWidth, opt.PreviewHeight)
	}
	if opt.FPS <= 0 {
		return nil, fmt.Errorf("invalid fps %v", opt.FPS)
	}
	if opt.Fetcher == nil {
		opt.Fetcher = DefaultFetcher()
	}
	if opt.NewTicker == nil {
		opt.NewTicker = func(d time.Duration) Ticker { return timeTicker{t: time.NewTicker(d)} }
	}
	if opt.Now == nil {
		opt.Now = time.Now
	}

	s := &Session{
		id:  uuid.NewString(),
		src: src,
		opt: opt,
		pipeline: NewPipeline(func(o *PipelineOptions) {
			o.Interpolation = opt.Interpolation
			o.OverlayInterpolation = opt.OverlayInterpolation
		}),
		loopDone: make(chan struct{}),
	}

	var initial Effect = NoEffect{}
	if opt.Overlay != nil {
		ov, err := NewOverlayEffect(opt.Overlay)
		if err != nil {
			return nil, err
		}
		s.overlay = ov
		initial = ov
	}
	s.effect.Store(&effectState{effect: initial})

	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.id }

func (s *Session) log() *slog.Logger {
	return Logger().With("session", s.id)
}

// Start waits for the source to become ready and starts the preview loop.
// ctx bounds the readiness wait only; the loop runs until Stop.
// It fails with ErrMediaAccess when the source never becomes ready.
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.stopping.Load() {
		s.mu.Unlock()
		return ErrSessionStopped
	}
	if s.started {
		s.mu.Unlock()
		return errors.New("session already started")
	}
	s.started = true
	s.mu.Unlock()

	if err := s.waitReady(ctx); err != nil {
		s.log().Error("media source unavailable", "error", err)
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopping.Load() {
		return ErrSessionStopped
	}

	loopCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.startedAt = time.Now()

	interval := time.Duration(float64(time.Second) / s.opt.FPS)
	ticker := s.opt.NewTicker(interval)
	go s.loop(loopCtx, ticker, interval)

	w, h := s.src.Size()
	s.log().Info("session started",
		"preview", fmt.Sprintf("%dx%d", s.opt.PreviewWidth, s.opt.PreviewHeight),
		"source", fmt.Sprintf("%dx%d", w, h),
		"fps", s.opt.FPS,
		"mode", s.CurrentMode().String(),
	)
	return nil
}

type errSource interface {
	Err() error
}

func (s *Session) waitReady(ctx context.Context) error {
	if s.src.Ready() {
		return nil
	}
	timeout := time.NewTimer(s.opt.ReadyTimeout)
	defer timeout.Stop()
	poll := time.NewTicker(readyPollInterval)
	defer poll.Stop()

	for {
		select {
		case <-ctx.Done():
			return fmt.Errorf("%w: %w", ErrMediaAccess, ctx.Err())
		case <-timeout.C:
			return fmt.Errorf("%w: not ready after %s", ErrMediaAccess, s.opt.ReadyTimeout)
		case <-poll.C:
		}
		if s.stopping.Load() {
			return ErrSessionStopped
		}
		if es, ok := s.src.(errSource); ok {
			if err := es.Err(); err != nil {
				return fmt.Errorf("%w: %w", ErrMediaAccess, err)
			}
		}
		if s.src.Ready() {
			return nil
		}
	}
}

// loop renders one preview frame per tick. The stop flag is checked before each tick;
// a frame in progress always runs to completion.
func (s *Session) loop(ctx context.Context, t Ticker, interval time.Duration) {
	defer close(s.loopDone)
	defer t.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C():
		}
		if s.stopping.Load() {
			return
		}

		start := time.Now()
		if err := s.renderPreview(); err != nil {
			s.frameErrs.Add(1)
			s.log().Debug("preview frame failed", "error", err)
			continue
		}
		d := time.Since(start)
		s.lastRender.Store(int64(d))
		if d > interval {
			s.slow.Add(1)
			s.log().Debug("slow preview frame", "duration", d, "interval", interval)
		}
	}
}

func (s *Session) renderPreview() error {
	st := s.effect.Load()

	frame, err := s.src.Frame()
	if err != nil {
		return err
	}

	fb, err := s.pipeline.Render(s.back, s.opt.PreviewWidth, s.opt.PreviewHeight, frame, st.effect,
		func(o *RenderOptions) { o.MirrorSource = s.opt.MirrorPreview })
	if err != nil {
		return err
	}

	s.previewMu.Lock()
	s.back, s.front = s.front, fb
	s.previewMu.Unlock()

	s.rendered.Add(1)
	if s.opt.OnPreview != nil {
		s.opt.OnPreview(fb)
	}
	return nil
}

// Preview returns a copy of the latest preview frame, nil before the first frame.
func (s *Session) Preview() *FrameBuffer {
	s.previewMu.Lock()
	defer s.previewMu.Unlock()
	if s.front == nil {
		return nil
	}
	return s.front.Clone()
}

// Stop halts the render loop, waits for it to exit and only then closes the source.
// Safe to call multiple times.
func (s *Session) Stop() error {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopping.Store(true)
		cancel := s.cancel
		s.mu.Unlock()

		if cancel != nil {
			cancel()
			<-s.loopDone
		}
		s.closeErr = s.src.Close()
		s.log().Info("session stopped", "frames", s.rendered.Load(), "exports", s.exports.Load())
	})
	return s.closeErr
}

// IsReady reports whether the session is running and its source has frames.
func (s *Session) IsReady() bool {
	s.mu.Lock()
	running := s.started && s.cancel != nil
	s.mu.Unlock()
	return running && !s.stopping.Load() && s.src.Ready()
}

// CurrentMode returns the mode of the committed effect.
func (s *Session) CurrentMode() Mode {
	return modeOf(s.effect.Load().effect)
}

// CurrentEffect returns the committed effect snapshot.
func (s *Session) CurrentEffect() Effect {
	return s.effect.Load().effect
}

// SetEffect commits an effect immediately, superseding pending LUT loads.
func (s *Session) SetEffect(e Effect) {
	if e == nil {
		e = NoEffect{}
	}
	s.commit(s.gen.Add(1), e)
}

// UseNone switches to plain rendering.
func (s *Session) UseNone() {
	s.SetEffect(NoEffect{})
}

// UseOverlay switches to overlay mode. A nil img selects the preloaded overlay.
func (s *Session) UseOverlay(img image.Image) error {
	ov := s.overlay
	if img != nil {
		var err error
		if ov, err = NewOverlayEffect(img); err != nil {
			return err
		}
	}
	if ov == nil {
		return ErrNoOverlay
	}
	s.SetEffect(ov)
	return nil
}

// UseColorGrade loads the LUT at location and switches to color-grade mode.
//
// On fetch failure it returns *LutLoadError and the previous effect stays active. When another
// selection is made while the LUT loads, the result is dropped and ErrSuperseded is returned.
func (s *Session) UseColorGrade(ctx context.Context, location string) error {
	gen := s.gen.Add(1)

	lut, err := LoadLUT(ctx, s.opt.Fetcher, location)
	if err != nil {
		s.log().Warn("lut load failed", "location", location, "error", err)
		return err
	}
	eff, err := NewColorGradeEffect(lut)
	if err != nil {
		return err
	}
	if s.gen.Load() != gen || !s.commit(gen, eff) {
		s.log().Warn("lut load superseded", "location", location)
		return ErrSuperseded
	}
	s.log().Info("lut applied", "location", location, "size", lut.Size, "rows", lut.Len(), "anomalies", len(lut.Anomalies))
	return nil
}

// UseLUT switches to color-grade mode with an already parsed table.
func (s *Session) UseLUT(lut *LutTable) error {
	eff, err := NewColorGradeEffect(lut)
	if err != nil {
		return err
	}
	s.SetEffect(eff)
	return nil
}

// commit stores e unless a newer selection has been committed already.
func (s *Session) commit(gen uint64, e Effect) bool {
	next := &effectState{effect: e, gen: gen}
	for {
		cur := s.effect.Load()
		if cur.gen > gen {
			return false
		}
		if s.effect.CompareAndSwap(cur, next) {
			if cur.effect == nil || cur.effect.Mode() != e.Mode() {
				s.log().Info("effect switched", "from", modeOf(cur.effect).String(), "to", e.Mode().String())
			}
			return true
		}
	}
}

// Export renders the current source frame at its native resolution with the committed effect,
// encodes it as PNG and hands it to the export sink. Failures return *ExportError and leave
// nothing saved.
func (s *Session) Export(ctx context.Context) (*ExportResult, error) {
	if s.stopping.Load() {
		return nil, ErrSessionStopped
	}
	st := s.effect.Load()

	frame, err := s.src.Frame()
	if err != nil {
		return nil, &ExportError{Stage: "render", Err: err}
	}
	b := frame.Bounds()

	fb, err := s.pipeline.Render(nil, b.Dx(), b.Dy(), frame, st.effect)
	if err != nil {
		return nil, &ExportError{Stage: "render", Err: err}
	}

	data, err := EncodePNG(fb)
	if err != nil {
		s.log().Error("export encode failed", "error", err)
		return nil, &ExportError{Stage: "encode", Err: err}
	}

	res := &ExportResult{
		Name:      ExportFilename(s.opt.Now()),
		Data:      data,
		Width:     fb.Width,
		Height:    fb.Height,
		Mode:      modeOf(st.effect),
		SessionID: s.id,
	}

	if s.opt.Export != nil {
		if err := s.opt.Export.Save(ctx, res.Name, data); err != nil {
			s.log().Error("export save failed", "name", res.Name, "error", err)
			return nil, &ExportError{Stage: "save", Err: err}
		}
	}

	s.exports.Add(1)
	name := res.Name
	s.lastExport.Store(&name)
	s.log().Info("exported", "name", res.Name, "width", res.Width, "height", res.Height, "mode", res.Mode.String())

	return res, nil
}

// LastExport returns the name of the last successful export.
func (s *Session) LastExport() (string, bool) {
	p := s.lastExport.Load()
	if p == nil {
		return "", false
	}
	return *p, true
}

// Stats returns current statistics. Safe for concurrent use.
func (s *Session) Stats() SessionStats {
	st := SessionStats{
		SessionID:      s.id,
		Mode:           s.CurrentMode(),
		FramesRendered: s.rendered.Load(),
		FrameErrors:    s.frameErrs.Load(),
		SlowFrames:     s.slow.Load(),
		Exports:        s.exports.Load(),
		LastRender:     time.Duration(s.lastRender.Load()),
	}
	s.mu.Lock()
	startedAt := s.startedAt
	s.mu.Unlock()
	if !startedAt.IsZero() {
		if el := time.Since(startedAt).Seconds(); el > 0 {
			st.FPS = float64(st.FramesRendered) / el
		}
	}
	return st
}
