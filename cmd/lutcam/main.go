package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/vearutop/lutcam"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	var err error
	switch os.Args[1] {
	case "apply":
		err = runApply(os.Args[2:])
	case "export":
		err = runExport(os.Args[2:])
	case "preview":
		err = runPreview(os.Args[2:])
	case "inspect":
		err = runInspect(os.Args[2:])
	case "gen-lut":
		err = runGenLUT(os.Args[2:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fail(err)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "Usage: lutcam <command> [args]")
	fmt.Fprintln(os.Stderr, "Commands:")
	fmt.Fprintln(os.Stderr, "  apply   -in photo.jpg -out out.png [-lut film.cube | -preset mono | -overlay frame.png] [-w 1080 -h 1920] [-interp nearest]")
	fmt.Fprintln(os.Stderr, "  export  -video in.mp4 [-config lutcam.yaml] [-lut film.cube | -effect name | -overlay frame.png] [-out-dir photos] [-seek-frames 10]")
	fmt.Fprintln(os.Stderr, "  preview -video in.mp4 [-config lutcam.yaml] [-lut film.cube | -effect name] [-duration 5s] [-out preview.png]")
	fmt.Fprintln(os.Stderr, "  inspect -lut film.cube")
	fmt.Fprintln(os.Stderr, "  gen-lut -preset warm -size 33 -out warm.cube")
	fmt.Fprintln(os.Stderr, "Common flags: -v enables debug logging.")
}

func setupLogging(verbose bool) {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	lutcam.SetLogger(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}

// effectFlags are shared by the commands that select an effect.
type effectFlags struct {
	lut     *string
	preset  *string
	effect  *string
	overlay *string
}

func addEffectFlags(fs *flag.FlagSet) effectFlags {
	return effectFlags{
		lut:     fs.String("lut", "", "LUT location (.cube path, http(s):// or s3:// URL)"),
		preset:  fs.String("preset", "", "built-in LUT preset"),
		effect:  fs.String("effect", "", "named LUT from the config file"),
		overlay: fs.String("overlay", "", "overlay image (png, jpeg, webp)"),
	}
}

// resolve turns flags and config into an effect. nil means keep the session default.
func (f effectFlags) resolve(ctx context.Context, cfg *lutcam.Config) (lutcam.Effect, error) {
	lutLocation := *f.lut
	if *f.effect != "" {
		loc, ok := cfg.LUTs[*f.effect]
		if !ok {
			return nil, fmt.Errorf("unknown effect %q, configured: %v", *f.effect, cfg.LUTNames())
		}
		lutLocation = loc
	}
	switch {
	case lutLocation != "":
		lut, err := lutcam.LoadLUT(ctx, lutcam.DefaultFetcher(), lutLocation)
		if err != nil {
			return nil, err
		}
		return lutcam.NewColorGradeEffect(lut)
	case *f.preset != "":
		lut, err := lutcam.PresetLUT(*f.preset, lutcam.DefaultLUTSize)
		if err != nil {
			return nil, err
		}
		return lutcam.NewColorGradeEffect(lut)
	case *f.overlay != "":
		img, err := lutcam.LoadOverlay(*f.overlay)
		if err != nil {
			return nil, err
		}
		return lutcam.NewOverlayEffect(img)
	}
	return nil, nil
}

func loadConfig(path string) (*lutcam.Config, error) {
	if path == "" {
		return lutcam.DefaultConfig(), nil
	}
	return lutcam.LoadConfig(path)
}

func runApply(args []string) error {
	fs := flag.NewFlagSet("apply", flag.ContinueOnError)
	inPath := fs.String("in", "", "input image")
	outPath := fs.String("out", "", "output PNG")
	width := fs.Int("w", 0, "output width, default native")
	height := fs.Int("h", 0, "output height, default native")
	interp := fs.String("interp", "nearest", "interpolation")
	verbose := fs.Bool("v", false, "debug logging")
	ef := addEffectFlags(fs)
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *inPath == "" || *outPath == "" {
		return errors.New("missing required arguments")
	}
	setupLogging(*verbose)

	in, err := lutcam.ParseInterpolation(*interp)
	if err != nil {
		return err
	}
	img, err := lutcam.LoadImage(*inPath)
	if err != nil {
		return err
	}
	eff, err := ef.resolve(context.Background(), lutcam.DefaultConfig())
	if err != nil {
		return err
	}
	w, h := img.Bounds().Dx(), img.Bounds().Dy()
	if *width > 0 && *height > 0 {
		w, h = *width, *height
	}
	p := lutcam.NewPipeline(func(o *lutcam.PipelineOptions) {
		o.Interpolation = in
		o.OverlayInterpolation = in
	})
	fb, err := p.Render(nil, w, h, img, eff)
	if err != nil {
		return err
	}
	return writePNG(*outPath, fb)
}

func openSession(ctx context.Context, video string, cfg *lutcam.Config, eff lutcam.Effect) (*lutcam.Session, *lutcam.FFmpegSource, error) {
	if video == "" {
		video = cfg.Source.Input
	}
	if video == "" {
		return nil, nil, errors.New("missing -video or source.input")
	}
	src, err := lutcam.OpenFFmpegSource(ctx, video, cfg.FFmpegOptions())
	if err != nil {
		return nil, nil, err
	}

	opts := []func(o *lutcam.SessionOptions){cfg.SessionOptions()}
	if cfg.Overlay != "" {
		img, err := lutcam.LoadOverlay(cfg.Overlay)
		if err != nil {
			_ = src.Close()
			return nil, nil, err
		}
		opts = append(opts, func(o *lutcam.SessionOptions) { o.Overlay = img })
	}

	sess, err := lutcam.NewSession(src, opts...)
	if err != nil {
		_ = src.Close()
		return nil, nil, err
	}
	if eff != nil {
		sess.SetEffect(eff)
	}
	if err := sess.Start(ctx); err != nil {
		_ = sess.Stop()
		return nil, nil, err
	}
	return sess, src, nil
}

func runExport(args []string) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	video := fs.String("video", "", "input video file or URL")
	cfgPath := fs.String("config", "", "YAML config")
	outDir := fs.String("out-dir", "", "export directory, overrides export_dir")
	seekFrames := fs.Int("seek-frames", 1, "number of decoded frames to wait for before exporting")
	verbose := fs.Bool("v", false, "debug logging")
	ef := addEffectFlags(fs)
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	setupLogging(*verbose)

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}
	if *outDir != "" {
		cfg.ExportDir = *outDir
	}
	if cfg.ExportDir == "" {
		cfg.ExportDir = "."
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	eff, err := ef.resolve(ctx, cfg)
	if err != nil {
		return err
	}
	sess, src, err := openSession(ctx, *video, cfg, eff)
	if err != nil {
		return err
	}
	defer sess.Stop()

wait:
	for src.Stats().Decoded < uint64(*seekFrames) && src.Err() == nil {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-src.Done():
			break wait
		case <-time.After(10 * time.Millisecond):
		}
	}

	res, err := sess.Export(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, filepath.Join(cfg.ExportDir, res.Name))
	return nil
}

func runPreview(args []string) error {
	fs := flag.NewFlagSet("preview", flag.ContinueOnError)
	video := fs.String("video", "", "input video file or URL")
	cfgPath := fs.String("config", "", "YAML config")
	duration := fs.Duration("duration", 5*time.Second, "how long to run the preview loop")
	outPath := fs.String("out", "", "write the last preview frame as PNG")
	verbose := fs.Bool("v", false, "debug logging")
	ef := addEffectFlags(fs)
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	setupLogging(*verbose)

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	eff, err := ef.resolve(ctx, cfg)
	if err != nil {
		return err
	}
	sess, src, err := openSession(ctx, *video, cfg, eff)
	if err != nil {
		return err
	}

	select {
	case <-ctx.Done():
	case <-time.After(*duration):
	}

	preview := sess.Preview()
	stats := sess.Stats()
	decoder := src.Stats()
	if err := sess.Stop(); err != nil {
		return err
	}

	payload, err := json.MarshalIndent(struct {
		Session lutcam.SessionStats `json:"session"`
		Mode    string              `json:"mode"`
		Decoder lutcam.FFmpegStats  `json:"decoder"`
	}{Session: stats, Mode: stats.Mode.String(), Decoder: decoder}, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, string(payload))

	if *outPath != "" {
		if preview == nil {
			return errors.New("no preview frame rendered")
		}
		return writePNG(*outPath, preview)
	}
	return nil
}

func runInspect(args []string) error {
	fs := flag.NewFlagSet("inspect", flag.ContinueOnError)
	location := fs.String("lut", "", "LUT location")
	verbose := fs.Bool("v", false, "debug logging")
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *location == "" {
		return errors.New("missing required arguments")
	}
	setupLogging(*verbose)

	lut, err := lutcam.LoadLUT(context.Background(), lutcam.DefaultFetcher(), *location)
	if err != nil {
		return err
	}
	anomalies := make([]string, 0, len(lut.Anomalies))
	for _, a := range lut.Anomalies {
		anomalies = append(anomalies, a.Error())
	}
	payload, err := json.MarshalIndent(map[string]any{
		"title":      lut.Title,
		"size":       lut.Size,
		"rows":       lut.Len(),
		"expected":   lut.Expected(),
		"malformed":  lut.Malformed,
		"domain_min": lut.DomainMin,
		"domain_max": lut.DomainMax,
		"anomalies":  anomalies,
	}, "", "  ")
	if err != nil {
		return err
	}
	fmt.Fprintln(os.Stdout, string(payload))
	return nil
}

func runGenLUT(args []string) error {
	fs := flag.NewFlagSet("gen-lut", flag.ContinueOnError)
	preset := fs.String("preset", "identity", "preset name")
	size := fs.Int("size", 33, "cube size")
	outPath := fs.String("out", "", "output .cube file")
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *outPath == "" {
		return fmt.Errorf("missing required arguments, presets: %v", lutcam.PresetNames())
	}
	lut, err := lutcam.PresetLUT(*preset, *size)
	if err != nil {
		return err
	}
	f, err := os.Create(filepath.Clean(*outPath))
	if err != nil {
		return err
	}
	if err := lutcam.WriteCube(f, lut); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

func writePNG(path string, fb *lutcam.FrameBuffer) error {
	data, err := lutcam.EncodePNG(fb)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Clean(path), data, 0o644)
}

func fail(err error) {
	fmt.Fprintln(os.Stderr, "error:", err)
	os.Exit(1)
}
