package recording

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"cloud.google.com/go/storage"
)

func TestAcquire_LocalFileIsNotRemoved(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "upload.mp3")
	if err := os.WriteFile(path, []byte("audio"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	a := NewAcquirer(Config{TempDir: dir}, nil, nil)
	rec, err := a.Acquire(context.Background(), "c1", path)
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if rec.Filename != "upload.mp3" {
		t.Fatalf("unexpected filename %q", rec.Filename)
	}
	_ = rec.Close()
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("expected local file kept: %v", err)
	}
}

func TestAcquire_MissingLocalFile(t *testing.T) {
	a := NewAcquirer(Config{TempDir: t.TempDir()}, nil, nil)
	if _, err := a.Acquire(context.Background(), "c1", "/does/not/exist.mp3"); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := a.Acquire(context.Background(), "c1", " "); !errors.Is(err, ErrEmptyRef) {
		t.Fatalf("expected ErrEmptyRef, got %v", err)
	}
}

func TestAcquire_HTTPDownloadsWithAccountSid(t *testing.T) {
	var gotQuery, gotUser, gotPass string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("AccountSid")
		gotUser, gotPass, _ = r.BasicAuth()
		_, _ = w.Write([]byte("mp3-bytes"))
	}))
	defer srv.Close()

	dir := t.TempDir()
	a := NewAcquirer(Config{AccountSID: "AC123", AuthToken: "tok", TempDir: dir}, srv.Client(), nil)
	rec, err := a.Acquire(context.Background(), "c1", srv.URL+"/rec/RE1")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if gotQuery != "AC123" || gotUser != "AC123" || gotPass != "tok" {
		t.Fatalf("unexpected auth: query=%q user=%q pass=%q", gotQuery, gotUser, gotPass)
	}
	if !strings.HasPrefix(rec.Filename, "recording-c1-") || !strings.HasSuffix(rec.Filename, ".mp3") {
		t.Fatalf("unexpected temp name %q", rec.Filename)
	}

	f, err := rec.Open()
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	b, _ := io.ReadAll(f)
	_ = f.Close()
	if string(b) != "mp3-bytes" {
		t.Fatalf("unexpected body %q", b)
	}

	_ = rec.Close()
	if _, err := os.Stat(rec.Path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected temp file removed, stat err=%v", err)
	}
}

func TestAcquire_HTTPNon2xxIsFetchError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	dir := t.TempDir()
	a := NewAcquirer(Config{TempDir: dir}, srv.Client(), nil)
	_, err := a.Acquire(context.Background(), "c1", srv.URL+"/missing")
	var fe *FetchError
	if !errors.As(err, &fe) || fe.StatusCode != http.StatusNotFound {
		t.Fatalf("expected FetchError 404, got %v", err)
	}
	entries, _ := os.ReadDir(dir)
	if len(entries) != 0 {
		t.Fatalf("expected no temp files left, got %d", len(entries))
	}
}

func TestAcquire_HTTPTooLarge(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(strings.Repeat("x", 64)))
	}))
	defer srv.Close()

	a := NewAcquirer(Config{TempDir: t.TempDir(), MaxBytes: 16}, srv.Client(), nil)
	if _, err := a.Acquire(context.Background(), "c1", srv.URL); err == nil {
		t.Fatalf("expected size error")
	}
}

type fakeObjects struct {
	data map[string]string
}

func (f fakeObjects) NewReader(ctx context.Context, bucket, object string) (io.ReadCloser, error) {
	d, ok := f.data[bucket+"/"+object]
	if !ok {
		return nil, storage.ErrObjectNotExist
	}
	return io.NopCloser(strings.NewReader(d)), nil
}

func TestAcquire_CloudStorage(t *testing.T) {
	objs := fakeObjects{data: map[string]string{"bucket/calls/a.mp3": "gcs-audio"}}
	a := NewAcquirer(Config{TempDir: t.TempDir()}, nil, objs)

	rec, err := a.Acquire(context.Background(), "c1", "gs://bucket/calls/a.mp3")
	if err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	b, _ := os.ReadFile(rec.Path)
	if string(b) != "gcs-audio" {
		t.Fatalf("unexpected content %q", b)
	}
	_ = rec.Close()

	_, err = a.Acquire(context.Background(), "c1", "gs://bucket/missing.mp3")
	var fe *FetchError
	if !errors.As(err, &fe) || fe.StatusCode != http.StatusNotFound {
		t.Fatalf("expected FetchError 404, got %v", err)
	}

	if _, err := a.Acquire(context.Background(), "c1", "gs://bucket"); err == nil {
		t.Fatalf("expected malformed reference error")
	}
}

func TestAcquire_CloudStorageNotConfigured(t *testing.T) {
	a := NewAcquirer(Config{TempDir: t.TempDir()}, nil, nil)
	if _, err := a.Acquire(context.Background(), "c1", "gs://bucket/a.mp3"); err == nil {
		t.Fatalf("expected error")
	}
}
