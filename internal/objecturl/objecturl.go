// Package objecturl issues short-lived object URLs for in-memory image data.
//
// An object URL stands for a byte payload held by a Registry until the URL
// is revoked. Views reference banners fetched from the network through
// these URLs, and revoking one is how a cached image gives its memory back.
package objecturl

import (
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
)

// Scheme prefixes every URL issued by a Registry.
const Scheme = "blob:mdbanner/"

var (
	// ErrRevoked is returned when an Object is disposed a second time.
	ErrRevoked = errors.New("object URL already revoked")
	// ErrUnknownURL is returned for URLs that are not live: never issued
	// by this registry, or already revoked.
	ErrUnknownURL = errors.New("unknown object URL")
)

type entry struct {
	data []byte
	mime string
}

// Registry holds object URL payloads. Safe for concurrent use. Only live
// URLs are tracked.
type Registry struct {
	mu   sync.RWMutex
	live map[string]entry
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{live: make(map[string]entry)}
}

// Object is a live object URL. Dispose revokes it.
type Object struct {
	url      string
	reg      *Registry
	disposed atomic.Bool
}

// URL returns the object URL.
func (o *Object) URL() string {
	return o.url
}

// Dispose revokes the URL. A second call returns ErrRevoked.
func (o *Object) Dispose() error {
	if o.disposed.Swap(true) {
		return fmt.Errorf("%w: %s", ErrRevoked, o.url)
	}
	return o.reg.Revoke(o.url)
}

// Create registers data and returns its object URL.
func (r *Registry) Create(data []byte, mime string) *Object {
	u := Scheme + uuid.NewString()
	r.mu.Lock()
	r.live[u] = entry{data: data, mime: mime}
	r.mu.Unlock()
	return &Object{url: u, reg: r}
}

// Revoke releases the payload behind u.
func (r *Registry) Revoke(u string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.live[u]; !ok {
		return fmt.Errorf("%w: %s", ErrUnknownURL, u)
	}
	delete(r.live, u)
	return nil
}

// Lookup returns the payload and MIME type of a live URL.
func (r *Registry) Lookup(u string) ([]byte, string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.live[u]
	return e.data, e.mime, ok
}

// DataURI returns u's payload encoded as a data: URI.
func (r *Registry) DataURI(u string) (string, error) {
	data, mime, ok := r.Lookup(u)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnknownURL, u)
	}
	return "data:" + mime + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

// Len returns the number of live URLs.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.live)
}

// IsObjectURL reports whether s looks like a URL issued by a Registry.
func IsObjectURL(s string) bool {
	return strings.HasPrefix(s, Scheme)
}
