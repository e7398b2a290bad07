// Package resolver turns classified banner sources into displayable images.
//
// Vault links resolve to store URLs. Remote URLs and keyword searches
// fetch bytes once, validate them, and publish them as object URLs shared
// through the image cache. Inline data payloads are validated and cached
// as they are.
package resolver

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"math/rand/v2"
	"mime"
	"net/url"
	"path"
	"strings"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/alnah/go-mdbanner/internal/imagecache"
	"github.com/alnah/go-mdbanner/internal/metrics"
	"github.com/alnah/go-mdbanner/internal/objecturl"
	"github.com/alnah/go-mdbanner/internal/source"
)

// Resolved is a displayable banner image. A Resolved that carries a lease
// must be handed back through Release exactly once.
type Resolved struct {
	Resource imagecache.Resource
	Kind     source.Kind
	Key      string // cache key; empty for vault files
	Path     string // store path; empty unless Kind is InternalLink
	lease    *imagecache.Lease
}

// Lease returns the cache lease, or nil for uncached resources.
func (r *Resolved) Lease() *imagecache.Lease {
	if r == nil {
		return nil
	}
	return r.lease
}

// Identity returns the value views compare to decide whether the image
// changed: the cache key when cached, the URL otherwise.
func (r *Resolved) Identity() string {
	if r == nil {
		return ""
	}
	if r.Key != "" {
		return r.Key
	}
	return r.Resource.URL
}

// Config wires a Resolver to its collaborators.
type Config struct {
	Store   Store
	Fetcher Fetcher
	Search  SearchProvider // optional
	Cache   *imagecache.Cache
	Objects *objecturl.Registry
	Logger  *zap.Logger
}

// Resolver resolves banner sources. Safe for concurrent use.
type Resolver struct {
	store   Store
	fetcher Fetcher
	search  SearchProvider
	cache   *imagecache.Cache
	objects *objecturl.Registry
	logger  *zap.Logger

	group singleflight.Group

	// epoch counts invalidations. Flights are keyed by it and a flight
	// started before the current epoch never stores its result.
	epochMu sync.RWMutex
	epoch   uint64

	mu    sync.Mutex
	picks map[string]string
}

// New creates a Resolver. Missing cache, registry or logger are created.
func New(cfg Config) *Resolver {
	if cfg.Cache == nil {
		cfg.Cache = imagecache.New(imagecache.WithLogger(cfg.Logger))
	}
	if cfg.Objects == nil {
		cfg.Objects = objecturl.NewRegistry()
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Resolver{
		store:   cfg.Store,
		fetcher: cfg.Fetcher,
		search:  cfg.Search,
		cache:   cfg.Cache,
		objects: cfg.Objects,
		logger:  cfg.Logger,
		picks:   make(map[string]string),
	}
}

// Cache returns the image cache.
func (r *Resolver) Cache() *imagecache.Cache {
	return r.cache
}

// Objects returns the object URL registry.
func (r *Resolver) Objects() *objecturl.Registry {
	return r.objects
}

// Resolve produces a displayable image for c, in the context of the note
// contextDoc. No retry is attempted on failure.
func (r *Resolver) Resolve(ctx context.Context, c source.Classified, contextDoc string) (*Resolved, error) {
	var (
		res *Resolved
		err error
	)
	switch c.Kind {
	case source.InternalLink:
		res, err = r.resolveInternal(c.Normalized, contextDoc)
	case source.RemoteURL:
		res, err = r.resolveRemote(ctx, c.Normalized, source.RemoteURL)
	case source.Inline:
		res, err = r.resolveInline(c.Normalized)
	case source.Keyword:
		res, err = r.resolveKeyword(ctx, c.Normalized)
	default:
		err = fmt.Errorf("%w: empty source", ErrNotFound)
	}

	metrics.ObserveResolution(c.Kind.String(), Class(err))
	if err != nil {
		r.logger.Debug("banner resolution failed",
			zap.String("kind", c.Kind.String()),
			zap.String("source", c.Normalized),
			zap.Error(err))
		return nil, err
	}
	return res, nil
}

// Release returns res's lease to the cache. Nil and uncached results are
// accepted.
func (r *Resolver) Release(res *Resolved) {
	if res == nil || res.lease == nil {
		return
	}
	r.cache.Release(res.lease)
}

// Park returns res's lease but leaves the cached image stored for the next
// resolution of the same source. Used for results nobody displays.
func (r *Resolver) Park(res *Resolved) {
	if res == nil || res.lease == nil {
		return
	}
	r.cache.Park(res.lease)
}

// Reset forgets memoized keyword picks.
func (r *Resolver) Reset() {
	r.mu.Lock()
	r.picks = make(map[string]string)
	r.mu.Unlock()
}

// Invalidate drops every cached image and keyword pick, as done when
// settings are saved. Outstanding leases become stale and their release
// is a no-op. Fetches already in flight finish for their callers but
// their results are not cached, so the next resolution fetches again.
func (r *Resolver) Invalidate() error {
	r.epochMu.Lock()
	defer r.epochMu.Unlock()
	r.epoch++
	r.Reset()
	return r.cache.InvalidateAll()
}

func (r *Resolver) currentEpoch() uint64 {
	r.epochMu.RLock()
	defer r.epochMu.RUnlock()
	return r.epoch
}

// putCurrent caches res under key unless an invalidation happened since epoch.
// A result that is not stored has its handle disposed.
func (r *Resolver) putCurrent(epoch uint64, key string, res imagecache.Resource, kind imagecache.Kind) bool {
	r.epochMu.RLock()
	defer r.epochMu.RUnlock()
	if r.epoch != epoch {
		r.logger.Debug("dropping result fetched before invalidation", zap.String("key", key))
		if res.Handle != nil {
			if err := res.Handle.Dispose(); err != nil {
				r.logger.Warn("dispose stale resource", zap.String("key", key), zap.Error(err))
			}
		}
		return false
	}
	r.cache.Put(key, res, kind)
	return true
}

// PickShuffle returns a random image reference from folder.
func (r *Resolver) PickShuffle(ctx context.Context, folder string, rnd *rand.Rand) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if r.store == nil {
		return "", fmt.Errorf("%w: no document store", ErrNotFound)
	}
	images, err := r.store.ListImages(folder)
	if err != nil {
		return "", fmt.Errorf("%w: shuffle folder %q: %v", ErrNotFound, folder, err)
	}
	if len(images) == 0 {
		return "", fmt.Errorf("%w: shuffle folder %q has no images", ErrNotFound, folder)
	}
	if rnd == nil {
		return images[rand.IntN(len(images))], nil
	}
	return images[rnd.IntN(len(images))], nil
}

func (r *Resolver) resolveInternal(ref, contextDoc string) (*Resolved, error) {
	if r.store == nil {
		return nil, fmt.Errorf("%w: no document store", ErrNotFound)
	}
	p, err := r.store.ResolveInternalLink(ref, contextDoc)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
		}
		return nil, fmt.Errorf("%w: %s: %v", ErrNotFound, ref, err)
	}
	if !source.IsImageExt(p) {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedType, p)
	}
	return &Resolved{
		Resource: imagecache.Resource{
			URL:  r.store.DisplayablePath(p),
			MIME: mime.TypeByExtension(strings.ToLower(path.Ext(p))),
		},
		Kind: source.InternalLink,
		Path: p,
	}, nil
}

func (r *Resolver) resolveKeyword(ctx context.Context, keyword string) (*Resolved, error) {
	if r.search == nil {
		return nil, ErrNoSearchProvider
	}

	r.mu.Lock()
	pick, ok := r.picks[keyword]
	r.mu.Unlock()

	if !ok {
		candidates, err := r.search.Search(ctx, keyword)
		if err != nil {
			return nil, fmt.Errorf("%w: search %q: %v", ErrFetchFailed, keyword, err)
		}
		if len(candidates) == 0 {
			return nil, fmt.Errorf("%w: no results for %q", ErrNotFound, keyword)
		}
		pick = candidates[pickIndex(keyword, len(candidates))]

		r.mu.Lock()
		if prev, ok := r.picks[keyword]; ok {
			pick = prev
		} else {
			r.picks[keyword] = pick
		}
		r.mu.Unlock()
	}

	return r.resolveRemote(ctx, pick, source.Keyword)
}

// maxAttempts bounds the loop in resolveRemote. Extra passes only happen
// when the freshly cached entry was evicted before this caller leased it,
// or when an invalidation made the flight's result stale.
const maxAttempts = 3

func (r *Resolver) resolveRemote(ctx context.Context, rawURL string, kind source.Kind) (*Resolved, error) {
	if r.fetcher == nil {
		return nil, fmt.Errorf("%w: no fetcher configured", ErrFetchFailed)
	}
	key := "url:" + rawURL

	for range maxAttempts {
		if l, ok := r.cache.Acquire(key); ok {
			return leased(l, kind), nil
		}

		// The flight runs detached from ctx: a caller that gives up leaves
		// the result in the cache for the next one.
		epoch := r.currentEpoch()
		ch := r.group.DoChan(fmt.Sprintf("%d|%s", epoch, key), func() (any, error) {
			if _, ok := r.cache.Get(key); ok {
				return nil, nil
			}
			data, _, err := r.fetcher.Fetch(context.WithoutCancel(ctx), rawURL)
			if err != nil {
				if !errors.Is(err, ErrFetchFailed) {
					err = fmt.Errorf("%w: %s: %v", ErrFetchFailed, rawURL, err)
				}
				return nil, err
			}
			res, err := decodeImage(data)
			if err != nil {
				return nil, fmt.Errorf("%s: %w", rawURL, err)
			}
			obj := r.objects.Create(data, res.MIME)
			res.URL = obj.URL()
			res.Handle = obj
			r.putCurrent(epoch, key, res, imagecache.KindRemote)
			return nil, nil
		})

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case out := <-ch:
			if out.Err != nil {
				return nil, out.Err
			}
		}
	}
	return nil, fmt.Errorf("%w: %s: cache entry evicted before use", ErrFetchFailed, rawURL)
}

func (r *Resolver) resolveInline(payload string) (*Resolved, error) {
	sum := sha256.Sum256([]byte(payload))
	key := "inline:" + hex.EncodeToString(sum[:])
	epoch := r.currentEpoch()

	if l, ok := r.cache.Acquire(key); ok {
		return leased(l, source.Inline), nil
	}

	data, err := decodeDataURI(payload)
	if err != nil {
		return nil, err
	}
	res, err := decodeImage(data)
	if err != nil {
		return nil, err
	}
	res.URL = payload
	if !r.putCurrent(epoch, key, res, imagecache.KindInline) {
		return &Resolved{Resource: res, Kind: source.Inline}, nil
	}

	l, ok := r.cache.Acquire(key)
	if !ok {
		return nil, fmt.Errorf("%w: inline entry evicted before use", ErrDecodeFailed)
	}
	return leased(l, source.Inline), nil
}

func leased(l *imagecache.Lease, kind source.Kind) *Resolved {
	return &Resolved{Resource: l.Resource(), Kind: kind, Key: l.Key(), lease: l}
}

// decodeDataURI extracts the bytes of a data: URI.
func decodeDataURI(s string) ([]byte, error) {
	rest, ok := strings.CutPrefix(s, "data:")
	if !ok {
		if len(s) >= 5 && strings.EqualFold(s[:5], "data:") {
			rest = s[5:]
		} else {
			return nil, fmt.Errorf("%w: not a data URI", ErrDecodeFailed)
		}
	}
	meta, payload, ok := strings.Cut(rest, ",")
	if !ok {
		return nil, fmt.Errorf("%w: data URI without payload", ErrDecodeFailed)
	}
	if strings.HasSuffix(strings.ToLower(meta), ";base64") {
		data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(payload))
		if err != nil {
			return nil, fmt.Errorf("%w: base64: %v", ErrDecodeFailed, err)
		}
		return data, nil
	}
	data, err := url.PathUnescape(payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}
	return []byte(data), nil
}
