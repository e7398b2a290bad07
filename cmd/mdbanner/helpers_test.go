package main

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	mdbanner "github.com/alnah/go-mdbanner"
)

// ---------------------------------------------------------------------------
// Test Infrastructure - vault fixture, buffers, fake exporters
// ---------------------------------------------------------------------------

// syncBuffer is a bytes.Buffer safe for the logger and the CLI to share.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

type fakeExporter struct {
	mu   sync.Mutex
	docs []string
	err  error
}

func (f *fakeExporter) ToPDF(_ context.Context, htmlContent string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.docs = append(f.docs, htmlContent)
	return []byte("%PDF-1.7 fake"), nil
}

func (f *fakeExporter) Close() error { return nil }

// fakePool hands out a single shared fake exporter.
type fakePool struct {
	x      *fakeExporter
	size   int
	mu     sync.Mutex
	closed bool
}

func (p *fakePool) Acquire() mdbanner.PDFExporter { return p.x }
func (p *fakePool) Release(mdbanner.PDFExporter)  {}
func (p *fakePool) Size() int                     { return p.size }

func (p *fakePool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

// testEnv returns an environment writing to buffers, with a fake pool.
func testEnv() (*Environment, *syncBuffer, *syncBuffer, *fakePool) {
	stdout, stderr := &syncBuffer{}, &syncBuffer{}
	pool := &fakePool{x: &fakeExporter{}}
	env := &Environment{
		Stdout: stdout,
		Stderr: stderr,
		Exporters: func(n int, _ time.Duration, _ mdbanner.PageSize) Pool {
			pool.size = n
			return pool
		},
	}
	return env, stdout, stderr, pool
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 4, 4))
	for x := range 4 {
		for y := range 4 {
			img.Set(x, y, color.RGBA{R: 30, G: 90, B: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatal(err)
	}
	return buf.Bytes()
}

// writeVault creates a small vault: two notes with local banners, one
// with a broken link, and an image folder.
func writeVault(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	files := map[string]string{
		"trip.md":         "---\nbanner: \"[[sky.png]]\"\nbanner-height: 220\n---\n# Trip\n\nDay one.\n",
		"journal/week.md": "---\nbanner: \"[[sky.png]]\"\n---\nMonday.\n",
		"broken.md":       "---\nbanner: \"[[nowhere.png]]\"\n---\nOops.\n",
	}
	for name, content := range files {
		p := filepath.Join(dir, filepath.FromSlash(name))
		if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(p, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
	}
	img := pngBytes(t)
	if err := os.MkdirAll(filepath.Join(dir, "pics"), 0o750); err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"sky.png", "pics/sea.png"} {
		if err := os.WriteFile(filepath.Join(dir, filepath.FromSlash(name)), img, 0o600); err != nil {
			t.Fatal(err)
		}
	}
	return dir
}
