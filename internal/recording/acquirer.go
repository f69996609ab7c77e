package recording

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"cloud.google.com/go/storage"

	"call-insights/pkg/logger"
)

// ObjectReader opens a Cloud Storage object. *storage.Client satisfies it through GCSReader.
type ObjectReader interface {
	NewReader(ctx context.Context, bucket, object string) (io.ReadCloser, error)
}

// GCSReader adapts a Cloud Storage client to ObjectReader.
type GCSReader struct {
	Client *storage.Client
}

func (g GCSReader) NewReader(ctx context.Context, bucket, object string) (io.ReadCloser, error) {
	return g.Client.Bucket(bucket).Object(object).NewReader(ctx)
}

type Config struct {
	// AccountSID is appended as the AccountSid query parameter on provider URLs.
	AccountSID string
	// AuthToken enables HTTP basic auth (AccountSID:AuthToken) when set.
	AuthToken string
	// TempDir defaults to os.TempDir().
	TempDir string
	// Timeout bounds one HTTP fetch. Defaults to 60s.
	Timeout time.Duration
	// MaxBytes caps a downloaded recording. Zero means 100 MiB.
	MaxBytes int64
}

// Acquirer turns a recording reference into a readable audio file.
type Acquirer struct {
	cfg     Config
	http    *http.Client
	objects ObjectReader
}

// NewAcquirer builds an Acquirer. objects may be nil when gs:// references are not used.
func NewAcquirer(cfg Config, hc *http.Client, objects ObjectReader) *Acquirer {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = 100 << 20
	}
	if cfg.TempDir == "" {
		cfg.TempDir = os.TempDir()
	}
	if hc == nil {
		hc = &http.Client{Timeout: cfg.Timeout}
	}
	return &Acquirer{cfg: cfg, http: hc, objects: objects}
}

// Recording is an acquired audio file.
// Close removes it when it was downloaded into a temp file; local uploads are left in place.
type Recording struct {
	Path     string
	Filename string
	temp     bool
	log      *slog.Logger
}

func (r *Recording) Open() (*os.File, error) {
	return os.Open(r.Path)
}

// Close never fails the caller; removal errors are only logged.
func (r *Recording) Close() error {
	if r == nil || !r.temp {
		return nil
	}
	if err := os.Remove(r.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		r.log.Warn("recording temp file cleanup failed", "path", r.Path, "err", err)
	}
	return nil
}

// Acquire resolves ref: http(s) URLs are downloaded, gs:// objects are read from
// Cloud Storage, anything else is treated as a local path.
func (a *Acquirer) Acquire(ctx context.Context, callID, ref string) (*Recording, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, ErrEmptyRef
	}
	log := logger.ForCall(ctx, callID)

	switch {
	case strings.HasPrefix(ref, "http://"), strings.HasPrefix(ref, "https://"):
		body, err := a.download(ctx, ref)
		if err != nil {
			return nil, err
		}
		return a.spool(callID, bytes.NewReader(body), log)
	case strings.HasPrefix(ref, "gs://"):
		return a.fromStorage(ctx, callID, ref, log)
	default:
		if _, err := os.Stat(ref); err != nil {
			return nil, fmt.Errorf("recording: local file: %w", err)
		}
		return &Recording{Path: ref, Filename: filepath.Base(ref), log: log}, nil
	}
}

func (a *Acquirer) download(ctx context.Context, raw string) ([]byte, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("recording: parse url: %w", err)
	}
	if a.cfg.AccountSID != "" {
		q := u.Query()
		q.Set("AccountSid", a.cfg.AccountSID)
		u.RawQuery = q.Encode()
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("recording: build request: %w", err)
	}
	if a.cfg.AccountSID != "" && a.cfg.AuthToken != "" {
		req.SetBasicAuth(a.cfg.AccountSID, a.cfg.AuthToken)
	}

	resp, err := a.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("recording: fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
		return nil, &FetchError{URL: raw, StatusCode: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, a.cfg.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("recording: read body: %w", err)
	}
	if int64(len(body)) > a.cfg.MaxBytes {
		return nil, fmt.Errorf("recording: body exceeds %d bytes", a.cfg.MaxBytes)
	}
	return body, nil
}

func (a *Acquirer) fromStorage(ctx context.Context, callID, ref string, log *slog.Logger) (*Recording, error) {
	if a.objects == nil {
		return nil, fmt.Errorf("recording: cloud storage not configured for %s", ref)
	}
	bucket, object, ok := strings.Cut(strings.TrimPrefix(ref, "gs://"), "/")
	if !ok || bucket == "" || object == "" {
		return nil, fmt.Errorf("recording: malformed object reference %q", ref)
	}

	rc, err := a.objects.NewReader(ctx, bucket, object)
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, &FetchError{URL: ref, StatusCode: http.StatusNotFound}
	}
	if err != nil {
		return nil, fmt.Errorf("recording: open object: %w", err)
	}
	defer rc.Close()

	return a.spool(callID, io.LimitReader(rc, a.cfg.MaxBytes), log)
}

// spool writes r into a fresh temp file named after the call.
func (a *Acquirer) spool(callID string, r io.Reader, log *slog.Logger) (*Recording, error) {
	f, err := os.CreateTemp(a.cfg.TempDir, "recording-"+callID+"-*.mp3")
	if err != nil {
		return nil, fmt.Errorf("recording: create temp file: %w", err)
	}
	rec := &Recording{Path: f.Name(), Filename: filepath.Base(f.Name()), temp: true, log: log}

	if _, err := io.Copy(f, r); err != nil {
		_ = f.Close()
		_ = rec.Close()
		return nil, fmt.Errorf("recording: write temp file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = rec.Close()
		return nil, fmt.Errorf("recording: close temp file: %w", err)
	}
	return rec, nil
}
