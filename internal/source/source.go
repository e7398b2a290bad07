// Package source classifies banner source references.
//
// A banner source is whatever the note's frontmatter names as its banner:
// an internal link into the vault, a remote URL, a previously generated
// data: payload, or a free-form keyword handed to an image search provider.
// Classification is pure string inspection and never touches the vault
// or the network.
package source

import (
	"net/url"
	"path"
	"strings"
)

// Kind identifies how a banner source must be resolved.
type Kind int

// Source kinds.
const (
	None Kind = iota
	InternalLink
	RemoteURL
	Inline
	Keyword
)

// String returns the kind name used in logs and metrics labels.
func (k Kind) String() string {
	switch k {
	case InternalLink:
		return "internal-link"
	case RemoteURL:
		return "remote-url"
	case Inline:
		return "inline"
	case Keyword:
		return "keyword"
	default:
		return "none"
	}
}

// Classified is the result of classifying a raw source string.
type Classified struct {
	Kind       Kind
	Normalized string // link target, URL, payload or keyword
	Raw        string // input as found in metadata
}

// IsZero reports whether no source was given.
func (c Classified) IsZero() bool {
	return c.Kind == None
}

// imageExtensions lists the file extensions accepted as banner images.
var imageExtensions = []string{".png", ".jpg", ".jpeg", ".gif", ".webp", ".svg", ".bmp", ".avif"}

// ImageExtensions returns a copy of the accepted image extensions (with dot).
func ImageExtensions() []string {
	return append([]string(nil), imageExtensions...)
}

// IsImageExt reports whether name ends with an accepted image extension.
// Comparison is case-insensitive.
func IsImageExt(name string) bool {
	ext := strings.ToLower(path.Ext(name))
	if ext == "" {
		return false
	}
	for _, e := range imageExtensions {
		if e == ext {
			return true
		}
	}
	return false
}

// Classify inspects raw and returns its kind and normalized form.
//
// Recognized forms, in order:
//   - "" (after trimming): None
//   - [[target]], ![[target]], [[target|alias]], [[target#heading]]: InternalLink
//   - data:...: Inline
//   - absolute URL with a host: RemoteURL
//   - relative path ending in an image extension: InternalLink
//   - anything else: Keyword
func Classify(raw string) Classified {
	s := strings.TrimSpace(raw)
	c := Classified{Raw: raw}

	if s == "" {
		return c
	}

	if target, ok := unwrapLink(s); ok {
		c.Kind = InternalLink
		c.Normalized = target
		if target == "" {
			c.Kind = None
		}
		return c
	}

	if strings.HasPrefix(strings.ToLower(s), "data:") {
		c.Kind = Inline
		c.Normalized = s
		return c
	}

	if isAbsoluteURL(s) {
		c.Kind = RemoteURL
		c.Normalized = s
		return c
	}

	if IsImageExt(s) && !strings.ContainsAny(s, "\n\t") {
		c.Kind = InternalLink
		c.Normalized = strings.TrimPrefix(s, "./")
		return c
	}

	c.Kind = Keyword
	c.Normalized = strings.Join(strings.Fields(s), " ")
	return c
}

// unwrapLink strips wiki-link syntax and returns the link target.
func unwrapLink(s string) (string, bool) {
	s = strings.TrimPrefix(s, "!")
	if !strings.HasPrefix(s, "[[") || !strings.HasSuffix(s, "]]") || len(s) < 4 {
		return "", false
	}
	inner := s[2 : len(s)-2]
	if i := strings.IndexByte(inner, '|'); i >= 0 {
		inner = inner[:i]
	}
	if i := strings.IndexByte(inner, '#'); i >= 0 {
		inner = inner[:i]
	}
	return strings.TrimSpace(inner), true
}

// isAbsoluteURL reports whether s parses as an absolute URL with a host.
func isAbsoluteURL(s string) bool {
	if strings.ContainsAny(s, " \t\n") {
		return false
	}
	u, err := url.Parse(s)
	if err != nil {
		return false
	}
	return u.IsAbs() && u.Host != ""
}

// WrapLink formats target as an internal link, the form written back into
// frontmatter by selection dialogs.
func WrapLink(target string) string {
	return "[[" + target + "]]"
}
