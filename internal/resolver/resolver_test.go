package resolver

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/png"
	"io/fs"
	"math/rand/v2"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alnah/go-mdbanner/internal/imagecache"
	"github.com/alnah/go-mdbanner/internal/objecturl"
	"github.com/alnah/go-mdbanner/internal/source"
)

func pngBytes(t testing.TB, w, h int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	img.Set(0, 0, color.RGBA{R: 255, A: 255})
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

type fakeStore struct {
	files  map[string]bool
	images map[string][]string
}

func (s *fakeStore) ResolveInternalLink(ref, _ string) (string, error) {
	if s.files[ref] {
		return ref, nil
	}
	return "", fmt.Errorf("missing %s: %w", ref, fs.ErrNotExist)
}

func (s *fakeStore) ReadBinary(p string) ([]byte, error) { return nil, fs.ErrNotExist }

func (s *fakeStore) DisplayablePath(p string) string { return "file:///vault/" + p }

func (s *fakeStore) ListImages(folder string) ([]string, error) {
	imgs, ok := s.images[folder]
	if !ok {
		return nil, fs.ErrNotExist
	}
	return imgs, nil
}

type fakeFetcher struct {
	mu    sync.Mutex
	body  map[string][]byte
	err   error
	gate  chan struct{}
	calls atomic.Int32
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) ([]byte, string, error) {
	f.calls.Add(1)
	if f.gate != nil {
		<-f.gate
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, "", f.err
	}
	b, ok := f.body[url]
	if !ok {
		return nil, "", fmt.Errorf("%w: HTTP 404", ErrFetchFailed)
	}
	return b, "image/png", nil
}

type countingSearch struct {
	StaticSearch
	calls atomic.Int32
}

func (c *countingSearch) Search(ctx context.Context, kw string) ([]string, error) {
	c.calls.Add(1)
	return c.StaticSearch.Search(ctx, kw)
}

func newTestResolver(t *testing.T, fetcher Fetcher, search SearchProvider) (*Resolver, *objecturl.Registry) {
	t.Helper()
	reg := objecturl.NewRegistry()
	r := New(Config{
		Store: &fakeStore{
			files:  map[string]bool{"img.png": true, "notes.txt": true},
			images: map[string][]string{"banners": {"banners/a.png", "banners/b.png", "banners/c.png"}},
		},
		Fetcher: fetcher,
		Search:  search,
		Cache:   imagecache.New(imagecache.WithStrict(true)),
		Objects: reg,
	})
	return r, reg
}

func TestResolve_RemoteMissThenHit(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{body: map[string][]byte{"https://x/a.png": pngBytes(t, 4, 3)}}
	r, reg := newTestResolver(t, f, nil)
	ctx := context.Background()
	c := source.Classify("https://x/a.png")

	first, err := r.Resolve(ctx, c, "note.md")
	require.NoError(t, err)
	second, err := r.Resolve(ctx, c, "other.md")
	require.NoError(t, err)

	assert.Equal(t, int32(1), f.calls.Load())
	assert.Equal(t, first.Resource.URL, second.Resource.URL)
	assert.True(t, objecturl.IsObjectURL(first.Resource.URL))
	assert.Equal(t, 4, first.Resource.Width)
	assert.Equal(t, 3, first.Resource.Height)
	assert.Equal(t, "url:https://x/a.png", first.Key)
	assert.Equal(t, 2, r.Cache().Refs(first.Key))

	r.Release(first)
	_, _, live := reg.Lookup(first.Resource.URL)
	assert.True(t, live, "released while another view holds it")

	r.Release(second)
	_, _, live = reg.Lookup(first.Resource.URL)
	assert.False(t, live, "object URL not revoked after last release")
	assert.Equal(t, 0, r.Cache().Len())
}

func TestResolve_ConcurrentCallersShareOneFetch(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{
		body: map[string][]byte{"https://x/big.png": pngBytes(t, 2, 2)},
		gate: make(chan struct{}),
	}
	r, _ := newTestResolver(t, f, nil)
	c := source.Classify("https://x/big.png")

	const callers = 16
	results := make([]*Resolved, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i], errs[i] = r.Resolve(context.Background(), c, "")
		}()
	}

	time.Sleep(20 * time.Millisecond)
	close(f.gate)
	wg.Wait()

	assert.Equal(t, int32(1), f.calls.Load())
	for i := range callers {
		require.NoError(t, errs[i])
		assert.Equal(t, results[0].Resource.URL, results[i].Resource.URL)
	}
	assert.Equal(t, callers, r.Cache().Refs("url:https://x/big.png"))
}

func TestResolve_FetchFailureNotCached(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{err: errors.New("connection refused")}
	r, _ := newTestResolver(t, f, nil)
	c := source.Classify("https://x/down.png")

	_, err := r.Resolve(context.Background(), c, "")
	require.ErrorIs(t, err, ErrFetchFailed)
	_, err = r.Resolve(context.Background(), c, "")
	require.ErrorIs(t, err, ErrFetchFailed)

	assert.Equal(t, int32(2), f.calls.Load(), "failures must not be cached")
	assert.Equal(t, 0, r.Cache().Len())
}

func TestResolve_NotFoundStatus(t *testing.T) {
	t.Parallel()

	r, _ := newTestResolver(t, &fakeFetcher{}, nil)
	_, err := r.Resolve(context.Background(), source.Classify("https://x/404.png"), "")
	require.ErrorIs(t, err, ErrFetchFailed)
	assert.Equal(t, "fetch-failed", Class(err))
}

func TestResolve_DecodeFailure(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{body: map[string][]byte{"https://x/page.png": []byte("<html>not an image</html>")}}
	r, reg := newTestResolver(t, f, nil)

	_, err := r.Resolve(context.Background(), source.Classify("https://x/page.png"), "")
	require.ErrorIs(t, err, ErrDecodeFailed)
	assert.Equal(t, 0, r.Cache().Len())
	assert.Equal(t, 0, reg.Len())
}

func TestResolve_CanceledCallerLeavesEntryForReuse(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{
		body: map[string][]byte{"https://x/slow.png": pngBytes(t, 1, 1)},
		gate: make(chan struct{}),
	}
	r, _ := newTestResolver(t, f, nil)
	c := source.Classify("https://x/slow.png")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := r.Resolve(ctx, c, "")
		done <- err
	}()
	time.Sleep(10 * time.Millisecond)
	cancel()
	require.ErrorIs(t, <-done, context.Canceled)

	close(f.gate)
	require.Eventually(t, func() bool { return r.Cache().Len() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, r.Cache().Refs("url:https://x/slow.png"))

	res, err := r.Resolve(context.Background(), c, "")
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.calls.Load())
	r.Release(res)
}

func TestResolve_InvalidateDuringFetchRefetches(t *testing.T) {
	t.Parallel()

	f := &fakeFetcher{
		body: map[string][]byte{"https://x/key.png": pngBytes(t, 1, 1)},
		gate: make(chan struct{}),
	}
	r, reg := newTestResolver(t, f, nil)
	c := source.Classify("https://x/key.png")

	type result struct {
		res *Resolved
		err error
	}
	resolve := func() chan result {
		ch := make(chan result, 1)
		go func() {
			res, err := r.Resolve(context.Background(), c, "")
			ch <- result{res, err}
		}()
		return ch
	}

	before := resolve()
	require.Eventually(t, func() bool { return f.calls.Load() == 1 }, time.Second, time.Millisecond)

	require.NoError(t, r.Invalidate())
	after := resolve()
	require.Eventually(t, func() bool { return f.calls.Load() == 2 }, time.Second, time.Millisecond,
		"resolution after invalidation joined the older fetch")

	close(f.gate)
	first, second := <-before, <-after
	require.NoError(t, first.err)
	require.NoError(t, second.err)

	assert.Equal(t, int32(2), f.calls.Load())
	assert.Equal(t, first.res.Resource.URL, second.res.Resource.URL)
	assert.Equal(t, 1, r.Cache().Len())
	assert.Equal(t, 2, r.Cache().Refs("url:https://x/key.png"))
	assert.Equal(t, 1, reg.Len(), "object URL from the stale fetch not revoked")

	r.Release(first.res)
	r.Release(second.res)
}

func TestResolve_InternalLink(t *testing.T) {
	t.Parallel()

	r, _ := newTestResolver(t, &fakeFetcher{}, nil)
	ctx := context.Background()

	res, err := r.Resolve(ctx, source.Classify("[[img.png]]"), "note.md")
	require.NoError(t, err)
	assert.Equal(t, "file:///vault/img.png", res.Resource.URL)
	assert.Equal(t, "image/png", res.Resource.MIME)
	assert.Nil(t, res.Lease())
	assert.False(t, res.Resource.Disposable())
	assert.Equal(t, 0, r.Cache().Len(), "vault files are not cached")
	r.Release(res)

	_, err = r.Resolve(ctx, source.Classify("[[missing.png]]"), "note.md")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = r.Resolve(ctx, source.Classify("[[notes.txt]]"), "note.md")
	assert.ErrorIs(t, err, ErrUnsupportedType)
}

func TestResolve_Keyword(t *testing.T) {
	t.Parallel()

	body := pngBytes(t, 2, 1)
	f := &fakeFetcher{body: map[string][]byte{
		"https://img/1.png": body, "https://img/2.png": body, "https://img/3.png": body,
	}}
	s := &countingSearch{StaticSearch: StaticSearch{
		"aurora": {"https://img/1.png", "https://img/2.png", "https://img/3.png"},
	}}
	r, _ := newTestResolver(t, f, s)
	ctx := context.Background()
	c := source.Classify("aurora")
	require.Equal(t, source.Keyword, c.Kind)

	first, err := r.Resolve(ctx, c, "")
	require.NoError(t, err)
	second, err := r.Resolve(ctx, c, "")
	require.NoError(t, err)

	assert.Equal(t, first.Key, second.Key, "keyword pick must be stable")
	assert.Equal(t, int32(1), s.calls.Load(), "pick memoized until Reset")
	assert.Equal(t, source.Keyword, first.Kind)

	want := "url:" + s.StaticSearch["aurora"][pickIndex("aurora", 3)]
	assert.Equal(t, want, first.Key)

	r.Reset()
	third, err := r.Resolve(ctx, c, "")
	require.NoError(t, err)
	assert.Equal(t, int32(2), s.calls.Load())
	assert.Equal(t, first.Key, third.Key)

	_, err = r.Resolve(ctx, source.Classify("nothing here"), "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolve_KeywordWithoutProvider(t *testing.T) {
	t.Parallel()

	r, _ := newTestResolver(t, &fakeFetcher{}, nil)
	_, err := r.Resolve(context.Background(), source.Classify("mountains"), "")
	assert.ErrorIs(t, err, ErrNoSearchProvider)
}

func TestResolve_Inline(t *testing.T) {
	t.Parallel()

	r, reg := newTestResolver(t, &fakeFetcher{}, nil)
	payload := "data:image/png;base64," + base64.StdEncoding.EncodeToString(pngBytes(t, 3, 3))
	c := source.Classify(payload)
	require.Equal(t, source.Inline, c.Kind)

	a, err := r.Resolve(context.Background(), c, "")
	require.NoError(t, err)
	b, err := r.Resolve(context.Background(), c, "")
	require.NoError(t, err)

	assert.Equal(t, payload, a.Resource.URL)
	assert.True(t, strings.HasPrefix(a.Key, "inline:"))
	assert.Equal(t, a.Key, b.Key)
	assert.Equal(t, 2, r.Cache().Refs(a.Key))
	assert.Equal(t, 0, reg.Len(), "inline payloads need no object URL")

	entry, ok := r.Cache().Get(a.Key)
	require.True(t, ok)
	assert.Equal(t, imagecache.KindInline, entry.Kind)

	_, err = r.Resolve(context.Background(), source.Classify("data:image/png;base64,!!!"), "")
	assert.ErrorIs(t, err, ErrDecodeFailed)
}

func TestResolve_None(t *testing.T) {
	t.Parallel()

	r, _ := newTestResolver(t, &fakeFetcher{}, nil)
	_, err := r.Resolve(context.Background(), source.Classify(""), "")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPickShuffle(t *testing.T) {
	t.Parallel()

	r, _ := newTestResolver(t, &fakeFetcher{}, nil)
	ctx := context.Background()

	a, err := r.PickShuffle(ctx, "banners", rand.New(rand.NewPCG(1, 2)))
	require.NoError(t, err)
	b, err := r.PickShuffle(ctx, "banners", rand.New(rand.NewPCG(1, 2)))
	require.NoError(t, err)
	assert.Equal(t, a, b, "same seed, same pick")
	assert.True(t, strings.HasPrefix(a, "banners/"))

	_, err = r.PickShuffle(ctx, "empty", nil)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDecodeImage(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		data     []byte
		wantMIME string
		wantW    int
		wantErr  error
	}{
		{name: "png", data: pngBytes(t, 5, 2), wantMIME: "image/png", wantW: 5},
		{name: "svg", data: []byte(`<svg xmlns="http://www.w3.org/2000/svg"/>`), wantMIME: mimeSVG},
		{name: "svg with prolog", data: []byte("<?xml version=\"1.0\"?>\n<svg/>"), wantMIME: mimeSVG},
		{name: "empty", data: nil, wantErr: ErrDecodeFailed},
		{name: "text", data: []byte("hello"), wantErr: ErrDecodeFailed},
		{name: "truncated png", data: pngBytes(t, 5, 2)[:40], wantErr: ErrDecodeFailed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			res, err := decodeImage(tt.data)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantMIME, res.MIME)
			assert.Equal(t, tt.wantW, res.Width)
		})
	}
}

func TestClass(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{fmt.Errorf("x: %w", ErrNotFound), "not-found"},
		{ErrUnsupportedType, "unsupported-type"},
		{ErrDecodeFailed, "decode-failed"},
		{ErrNoSearchProvider, "no-search-provider"},
		{context.Canceled, "error"},
	}
	for _, tt := range tests {
		if got := Class(tt.err); got != tt.want {
			t.Errorf("Class(%v) = %q, want %q", tt.err, got, tt.want)
		}
	}
}
