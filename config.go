package lutcam

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the application configuration file.
type Config struct {
	Preview PreviewConfig `yaml:"preview"`
	Source  SourceConfig  `yaml:"source"`
	// Overlay is the path of the preloaded overlay graphic.
	Overlay string `yaml:"overlay"`
	// LUTs maps effect names to LUT locations (path, http(s):// or s3:// URL).
	LUTs map[string]string `yaml:"luts"`
	// ExportDir receives exported photos.
	ExportDir string `yaml:"export_dir"`
}

// PreviewConfig contains preview loop settings.
type PreviewConfig struct {
	Width                int     `yaml:"width"`
	Height               int     `yaml:"height"`
	FPS                  float64 `yaml:"fps"`
	Interpolation        string  `yaml:"interpolation"`         // nearest, bilinear, bicubic, mitchell, lanczos2, lanczos3
	OverlayInterpolation string  `yaml:"overlay_interpolation"` // same names as interpolation
	Mirror               bool    `yaml:"mirror"`
	ReadyTimeoutS        float64 `yaml:"ready_timeout_s"`
}

// SourceConfig contains video source settings.
type SourceConfig struct {
	Input    string `yaml:"input"`
	FPS      int    `yaml:"fps"`
	Realtime bool   `yaml:"realtime"`
	Loop     bool   `yaml:"loop"`
}

// DefaultConfig returns a configuration with default values.
func DefaultConfig() *Config {
	return &Config{
		Preview: PreviewConfig{
			Width:                defaultPreviewWidth,
			Height:               defaultPreviewHeight,
			FPS:                  defaultFPS,
			Interpolation:        InterpolationNearest.String(),
			OverlayInterpolation: InterpolationBilinear.String(),
			ReadyTimeoutS:        defaultReadyTimeout.Seconds(),
		},
		Source: SourceConfig{Realtime: true},
		LUTs:   map[string]string{},
	}
}

// LoadConfig reads and validates a YAML configuration file. Relative overlay, LUT and export
// paths are resolved against the file's directory.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	cfg, err := ParseConfig(data)
	if err != nil {
		return nil, err
	}
	cfg.resolve(filepath.Dir(path))
	return cfg, nil
}

// ParseConfig parses YAML over the defaults and validates the result.
func ParseConfig(data []byte) (*Config, error) {
	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate checks value ranges and names.
func (c *Config) Validate() error {
	var errs []error
	if c.Preview.Width <= 0 || c.Preview.Height <= 0 {
		errs = append(errs, fmt.Errorf("preview size must be positive, got %dx%d", c.Preview.Width, c.Preview.Height))
	}
	if c.Preview.FPS <= 0 || c.Preview.FPS > 240 {
		errs = append(errs, fmt.Errorf("preview fps must be in (0, 240], got %v", c.Preview.FPS))
	}
	if _, err := ParseInterpolation(c.Preview.Interpolation); err != nil {
		errs = append(errs, fmt.Errorf("preview.interpolation: %w", err))
	}
	if _, err := ParseInterpolation(c.Preview.OverlayInterpolation); err != nil {
		errs = append(errs, fmt.Errorf("preview.overlay_interpolation: %w", err))
	}
	if c.Preview.ReadyTimeoutS < 0 {
		errs = append(errs, errors.New("preview.ready_timeout_s must not be negative"))
	}
	if c.Source.FPS < 0 {
		errs = append(errs, errors.New("source.fps must not be negative"))
	}
	for name, loc := range c.LUTs {
		if loc == "" {
			errs = append(errs, fmt.Errorf("lut %q has no location", name))
		}
	}
	return errors.Join(errs...)
}

// LUTNames returns configured LUT names, sorted.
func (c *Config) LUTNames() []string {
	names := make([]string, 0, len(c.LUTs))
	for n := range c.LUTs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

func (c *Config) resolve(dir string) {
	abs := func(p string) string {
		if p == "" || filepath.IsAbs(p) || isURL(p) {
			return p
		}
		return filepath.Join(dir, p)
	}
	c.Overlay = abs(c.Overlay)
	c.ExportDir = abs(c.ExportDir)
	for k, v := range c.LUTs {
		c.LUTs[k] = abs(v)
	}
}

func isURL(p string) bool {
	for _, prefix := range []string{"http://", "https://", "s3://", "file://"} {
		if strings.HasPrefix(p, prefix) {
			return true
		}
	}
	return false
}

// SessionOptions applies the preview settings to session options.
func (c *Config) SessionOptions() func(o *SessionOptions) {
	return func(o *SessionOptions) {
		o.PreviewWidth = c.Preview.Width
		o.PreviewHeight = c.Preview.Height
		o.FPS = c.Preview.FPS
		o.MirrorPreview = c.Preview.Mirror
		if i, err := ParseInterpolation(c.Preview.Interpolation); err == nil {
			o.Interpolation = i
		}
		if i, err := ParseInterpolation(c.Preview.OverlayInterpolation); err == nil {
			o.OverlayInterpolation = i
		}
		if c.Preview.ReadyTimeoutS > 0 {
			o.ReadyTimeout = secondsToDuration(c.Preview.ReadyTimeoutS)
		}
		if c.ExportDir != "" {
			o.Export = DirSink{Dir: c.ExportDir}
		}
	}
}

// FFmpegOptions applies the source settings to ffmpeg options.
func (c *Config) FFmpegOptions() func(o *FFmpegOptions) {
	return func(o *FFmpegOptions) {
		o.FPS = c.Source.FPS
		o.Realtime = c.Source.Realtime
		o.Loop = c.Source.Loop
	}
}
