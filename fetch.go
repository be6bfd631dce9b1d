package lutcam

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

// maxLUTBytes bounds a fetched LUT document.
const maxLUTBytes = 256 << 20

// Fetcher returns the full contents of a LUT document.
type Fetcher interface {
	Fetch(ctx context.Context, location string) ([]byte, error)
}

// FetcherFunc adapts a function to Fetcher.
type FetcherFunc func(ctx context.Context, location string) ([]byte, error)

// Fetch implements Fetcher.
func (f FetcherFunc) Fetch(ctx context.Context, location string) ([]byte, error) {
	return f(ctx, location)
}

// LoadLUT fetches and parses a LUT. Fetch failures return *LutLoadError; parse problems
// never fail and are reported in the table's Anomalies.
func LoadLUT(ctx context.Context, f Fetcher, location string) (*LutTable, error) {
	if f == nil {
		f = DefaultFetcher()
	}
	data, err := f.Fetch(ctx, location)
	if err != nil {
		return nil, &LutLoadError{Location: location, Err: err}
	}
	return ParseCube(string(data)), nil
}

// FileFetcher reads local files, resolving relative paths against Root.
type FileFetcher struct {
	Root string
}

// Fetch implements Fetcher.
func (f FileFetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := strings.TrimPrefix(location, "file://")
	if f.Root != "" && !filepath.IsAbs(p) {
		p = filepath.Join(f.Root, p)
	}
	fh, err := os.Open(filepath.Clean(p))
	if err != nil {
		return nil, err
	}
	defer fh.Close()
	return readLimited(fh)
}

// HTTPFetcher downloads LUTs over HTTP(S).
type HTTPFetcher struct {
	Client *http.Client
}

// Fetch implements Fetcher.
func (f HTTPFetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, location, nil)
	if err != nil {
		return nil, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return readLimited(resp.Body)
}

// S3Fetcher reads LUTs from s3://bucket/key locations.
type S3Fetcher struct {
	Client s3iface.S3API
}

// NewS3Fetcher creates a fetcher with a session built from cfg and the environment.
func NewS3Fetcher(cfg *aws.Config) (*S3Fetcher, error) {
	sess, err := session.NewSessionWithOptions(session.Options{
		Config:            *cfgOrEmpty(cfg),
		SharedConfigState: session.SharedConfigEnable,
	})
	if err != nil {
		return nil, fmt.Errorf("aws session: %w", err)
	}
	return &S3Fetcher{Client: s3.New(sess)}, nil
}

func cfgOrEmpty(cfg *aws.Config) *aws.Config {
	if cfg == nil {
		return aws.NewConfig()
	}
	return cfg
}

// Fetch implements Fetcher.
func (f *S3Fetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	bucket, key, err := parseS3Location(location)
	if err != nil {
		return nil, err
	}
	out, err := f.Client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	defer out.Body.Close()
	return readLimited(out.Body)
}

func parseS3Location(location string) (string, string, error) {
	u, err := url.Parse(location)
	if err != nil {
		return "", "", err
	}
	if u.Scheme != "s3" || u.Host == "" {
		return "", "", fmt.Errorf("not an s3 location: %q", location)
	}
	key := strings.TrimPrefix(u.Path, "/")
	if key == "" {
		return "", "", fmt.Errorf("missing object key in %q", location)
	}
	return u.Host, key, nil
}

// MultiFetcher dispatches by location scheme: http(s), s3 or local file.
type MultiFetcher struct {
	File Fetcher
	HTTP Fetcher
	// S3 is created lazily from the environment when nil.
	S3 Fetcher

	mu sync.Mutex
}

// DefaultFetcher handles local files and http(s); s3 locations get a client on first use.
func DefaultFetcher() *MultiFetcher {
	return &MultiFetcher{File: FileFetcher{}, HTTP: HTTPFetcher{}}
}

// Fetch implements Fetcher.
func (m *MultiFetcher) Fetch(ctx context.Context, location string) ([]byte, error) {
	switch {
	case strings.HasPrefix(location, "http://"), strings.HasPrefix(location, "https://"):
		if m.HTTP == nil {
			return nil, errors.New("http fetcher not configured")
		}
		return m.HTTP.Fetch(ctx, location)
	case strings.HasPrefix(location, "s3://"):
		f, err := m.s3Fetcher()
		if err != nil {
			return nil, err
		}
		return f.Fetch(ctx, location)
	default:
		if m.File == nil {
			return nil, errors.New("file fetcher not configured")
		}
		return m.File.Fetch(ctx, location)
	}
}

func (m *MultiFetcher) s3Fetcher() (Fetcher, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.S3 == nil {
		f, err := NewS3Fetcher(nil)
		if err != nil {
			return nil, err
		}
		m.S3 = f
	}
	return m.S3, nil
}

func readLimited(r io.Reader) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, maxLUTBytes+1))
	if err != nil {
		return nil, err
	}
	if len(data) > maxLUTBytes {
		return nil, fmt.Errorf("lut document exceeds %d bytes", maxLUTBytes)
	}
	return data, nil
}
