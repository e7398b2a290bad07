package objecturl

import (
	"errors"
	"strings"
	"testing"
)

func TestRegistry_CreateLookupRevoke(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	obj := r.Create([]byte("png-bytes"), "image/png")

	if !IsObjectURL(obj.URL()) {
		t.Fatalf("URL() = %q, want %s prefix", obj.URL(), Scheme)
	}
	data, mime, ok := r.Lookup(obj.URL())
	if !ok || string(data) != "png-bytes" || mime != "image/png" {
		t.Fatalf("Lookup() = %q, %q, %v", data, mime, ok)
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d, want 1", r.Len())
	}

	if err := obj.Dispose(); err != nil {
		t.Fatalf("Dispose() error = %v", err)
	}
	if _, _, ok := r.Lookup(obj.URL()); ok {
		t.Error("Lookup() after Dispose() still finds the payload")
	}
	if err := obj.Dispose(); !errors.Is(err, ErrRevoked) {
		t.Errorf("second Dispose() error = %v, want ErrRevoked", err)
	}
	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0", r.Len())
	}
}

func TestRegistry_UniqueURLs(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	a := r.Create(nil, "image/png")
	b := r.Create(nil, "image/png")
	if a.URL() == b.URL() {
		t.Errorf("Create() returned duplicate URL %q", a.URL())
	}
}

func TestRegistry_RevokeUnknown(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	if err := r.Revoke(Scheme + "nope"); !errors.Is(err, ErrUnknownURL) {
		t.Errorf("Revoke(unknown) error = %v, want ErrUnknownURL", err)
	}
}

func TestRegistry_RevokedURLsAreForgotten(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	const n = 100
	urls := make([]string, 0, n)
	for range n {
		obj := r.Create([]byte("x"), "image/png")
		urls = append(urls, obj.URL())
		if err := obj.Dispose(); err != nil {
			t.Fatalf("Dispose() error = %v", err)
		}
	}

	r.mu.RLock()
	tracked := len(r.live)
	r.mu.RUnlock()
	if tracked != 0 {
		t.Errorf("registry still tracks %d URLs after revoking all", tracked)
	}
	for _, u := range urls[:3] {
		if err := r.Revoke(u); !errors.Is(err, ErrUnknownURL) {
			t.Errorf("Revoke(revoked) error = %v, want ErrUnknownURL", err)
		}
	}
}

func TestRegistry_DataURI(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	obj := r.Create([]byte("hi"), "image/gif")

	got, err := r.DataURI(obj.URL())
	if err != nil {
		t.Fatalf("DataURI() error = %v", err)
	}
	if want := "data:image/gif;base64,aGk="; got != want {
		t.Errorf("DataURI() = %q, want %q", got, want)
	}

	_ = obj.Dispose()
	if _, err := r.DataURI(obj.URL()); !errors.Is(err, ErrUnknownURL) {
		t.Errorf("DataURI(revoked) error = %v, want ErrUnknownURL", err)
	}
	if _, err := r.DataURI("blob:other"); !errors.Is(err, ErrUnknownURL) {
		t.Errorf("DataURI(foreign) error = %v, want ErrUnknownURL", err)
	}
}

func TestIsObjectURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want bool
	}{
		{Scheme + "abc", true},
		{"blob:https://example.com/abc", false},
		{"https://example.com/a.png", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsObjectURL(tt.in); got != tt.want {
			t.Errorf("IsObjectURL(%q) = %v, want %v", tt.in, got, tt.want)
		}
	}
	if strings.Count(Scheme, "/") != 1 {
		t.Errorf("Scheme %q changed shape", Scheme)
	}
}
