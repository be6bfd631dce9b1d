package lutcam

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	"image/png"
	"io"
	"strconv"
	"sync"
	"sync/atomic"

	ffmpeg "github.com/u2takey/ffmpeg-go"
)

// FFmpegOptions controls FFmpegSource decoding.
type FFmpegOptions struct {
	// FPS resamples the decoded stream, 0 keeps the native rate.
	FPS int
	// Realtime paces decoding at the native frame rate (ffmpeg -re).
	Realtime bool
	// Loop restarts decoding when the input ends.
	Loop bool
}

// FFmpegStats reports decoder counters.
type FFmpegStats struct {
	// Decoded is the number of frames decoded.
	Decoded uint64
	// Overwritten counts frames replaced before anyone read them.
	Overwritten uint64
	// Restarts counts loop restarts.
	Restarts uint64
}

// FFmpegSource decodes a video file or URL with ffmpeg and keeps only the latest frame.
type FFmpegSource struct {
	input  string
	opt    FFmpegOptions
	width  int
	height int

	cancel context.CancelFunc
	done   chan struct{}

	mu     sync.Mutex
	latest *image.RGBA
	fresh  bool
	err    error
	closed bool

	decoded     atomic.Uint64
	overwritten atomic.Uint64
	restarts    atomic.Uint64
}

type probeResult struct {
	Streams []struct {
		CodecType string `json:"codec_type"`
		Width     int    `json:"width"`
		Height    int    `json:"height"`
	} `json:"streams"`
}

// OpenFFmpegSource probes input and starts decoding in the background.
// Ready reports true once the first frame has been decoded.
func OpenFFmpegSource(ctx context.Context, input string, opts ...func(o *FFmpegOptions)) (*FFmpegSource, error) {
	var opt FFmpegOptions
	for _, applyOpt := range opts {
		applyOpt(&opt)
	}

	probe, err := ffmpeg.Probe(input)
	if err != nil {
		return nil, fmt.Errorf("%w: ffprobe: %w", ErrMediaAccess, err)
	}
	w, h, err := videoSize(probe)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMediaAccess, err)
	}

	ctx, cancel := context.WithCancel(ctx)
	s := &FFmpegSource{
		input:  input,
		opt:    opt,
		width:  w,
		height: h,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go s.run(ctx)

	Logger().Info("ffmpeg source started", "input", input, "width", w, "height", h, "loop", opt.Loop)
	return s, nil
}

func videoSize(probe string) (int, int, error) {
	var res probeResult
	if err := json.Unmarshal([]byte(probe), &res); err != nil {
		return 0, 0, fmt.Errorf("parse probe: %w", err)
	}
	for _, st := range res.Streams {
		if st.CodecType == "video" && st.Width > 0 && st.Height > 0 {
			return st.Width, st.Height, nil
		}
	}
	return 0, 0, errors.New("no video stream found")
}

func (s *FFmpegSource) run(ctx context.Context) {
	defer close(s.done)
	for {
		err := s.decode(ctx)
		if ctx.Err() != nil {
			return
		}
		if err != nil {
			s.mu.Lock()
			s.err = err
			s.mu.Unlock()
			Logger().Error("ffmpeg decode failed", "input", s.input, "error", err)
			return
		}
		if !s.opt.Loop {
			return
		}
		s.restarts.Add(1)
	}
}

func (s *FFmpegSource) decode(ctx context.Context) error {
	in := ffmpeg.KwArgs{}
	if s.opt.Realtime {
		in["re"] = ""
	}
	out := ffmpeg.KwArgs{"format": "image2pipe", "vcodec": "png"}
	if s.opt.FPS > 0 {
		out["r"] = strconv.Itoa(s.opt.FPS)
	}

	r, w := io.Pipe()
	cmd := ffmpeg.Input(s.input, in).Output("pipe:1", out).WithOutput(w).WithErrorOutput(io.Discard)
	cmd.Context = ctx
	go func() {
		_ = w.CloseWithError(cmd.Run())
	}()

	br := bufio.NewReader(r)
	for {
		if _, err := br.Peek(1); err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
		img, err := png.Decode(br)
		if err != nil {
			_ = r.CloseWithError(err)
			return fmt.Errorf("decode frame %d: %w", s.decoded.Load(), err)
		}
		s.publish(asRGBA(img))
	}
}

// publish replaces the latest frame, counting frames nobody read.
func (s *FFmpegSource) publish(img *image.RGBA) {
	s.mu.Lock()
	if s.fresh {
		s.overwritten.Add(1)
	}
	s.latest = img
	s.fresh = true
	s.mu.Unlock()
	s.decoded.Add(1)
}

// Ready implements MediaSource.
func (s *FFmpegSource) Ready() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return !s.closed && s.latest != nil
}

// Err returns the decode error that stopped the source, if any.
func (s *FFmpegSource) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Frame implements MediaSource. The last decoded frame stays available after the input ends.
func (s *FFmpegSource) Frame() (image.Image, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, ErrSourceClosed
	}
	if s.latest == nil {
		if s.err != nil {
			return nil, s.err
		}
		return nil, ErrNotReady
	}
	s.fresh = false
	return s.latest, nil
}

// Done is closed once the decoder has exited, at end of input, on error or after Close.
func (s *FFmpegSource) Done() <-chan struct{} {
	return s.done
}

// Size implements MediaSource.
func (s *FFmpegSource) Size() (int, int) {
	return s.width, s.height
}

// Stats returns decoder counters.
func (s *FFmpegSource) Stats() FFmpegStats {
	return FFmpegStats{
		Decoded:     s.decoded.Load(),
		Overwritten: s.overwritten.Load(),
		Restarts:    s.restarts.Load(),
	}
}

// Close stops decoding and waits for the decoder to exit. Safe to call multiple times.
func (s *FFmpegSource) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancel()
	<-s.done
	return nil
}
