package pipeline

import (
	"fmt"
	"net/url"
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"github.com/alnah/go-mdbanner/internal/fileutil"
)

// RewriteRelativePaths converts relative img[src] and a[href] paths to
// absolute file:// URLs. Paths are resolved from baseDir and must stay
// under rootDir; others are left alone. If baseDir is empty the HTML is
// returned unchanged.
//
// Anchors, URLs, absolute paths, srcset and CSS url() references are not
// rewritten.
func RewriteRelativePaths(htmlContent, baseDir, rootDir string) (string, error) {
	if baseDir == "" {
		return htmlContent, nil
	}
	if rootDir == "" {
		rootDir = baseDir
	}

	absBase, err := filepath.Abs(baseDir)
	if err != nil {
		return "", err
	}
	absRoot, err := filepath.Abs(rootDir)
	if err != nil {
		return "", err
	}

	doc, isFragment, err := ParseHTML(htmlContent)
	if err != nil {
		return "", err
	}

	Walk(doc, func(n *html.Node) {
		switch {
		case IsElement(n, "img"):
			rewriteAttr(n, "src", absBase, absRoot)
		case IsElement(n, "a"):
			rewriteAttr(n, "href", absBase, absRoot)
		}
	})

	return RenderHTML(doc, isFragment)
}

func rewriteAttr(n *html.Node, attrName, baseDir, rootDir string) {
	val, ok := Attr(n, attrName)
	if !ok || !isRelativePath(val) {
		return
	}
	if unescaped, err := url.PathUnescape(val); err == nil {
		val = unescaped
	}

	absPath := filepath.Join(baseDir, filepath.FromSlash(val))
	if !fileutil.IsPathUnderDir(absPath, rootDir) {
		return
	}
	SetAttr(n, attrName, fileutil.PathToFileURL(absPath))
}

// isRelativePath returns true if the path should be rewritten.
func isRelativePath(path string) bool {
	if path == "" || strings.HasPrefix(path, "#") || strings.HasPrefix(path, "//") {
		return false
	}
	if strings.Contains(path, ":") {
		if u, err := url.Parse(path); err == nil && u.Scheme != "" && len(u.Scheme) > 1 {
			return false
		}
	}
	return !filepath.IsAbs(path) && !strings.HasPrefix(path, "/")
}

// ResourceLookup returns the data: URI for a blob: or file:// URL.
type ResourceLookup func(rawURL string) (string, error)

// cssURLPattern matches url("...") inside inline styles.
var cssURLPattern = regexp.MustCompile(`url\("((?:[^"\\]|\\.)*)"\)`)

// InlineResources rewrites blob: and file:// URLs in img[src] and inline
// style url() references into data: URIs, so the document no longer
// depends on object URLs or the local disk. URLs lookup rejects are left
// as they are and reported in the returned error after the whole document
// has been processed.
func InlineResources(htmlContent string, lookup ResourceLookup) (string, error) {
	doc, isFragment, err := ParseHTML(htmlContent)
	if err != nil {
		return "", err
	}

	var failed []string
	inline := func(raw string) string {
		if !isInlinable(raw) {
			return raw
		}
		data, err := lookup(raw)
		if err != nil {
			failed = append(failed, fmt.Sprintf("%s: %v", raw, err))
			return raw
		}
		return data
	}

	Walk(doc, func(n *html.Node) {
		if n.Type != html.ElementNode {
			return
		}
		if IsElement(n, "img") {
			if src, ok := Attr(n, "src"); ok {
				SetAttr(n, "src", inline(src))
			}
		}
		if style, ok := Attr(n, "style"); ok && strings.Contains(style, "url(") {
			SetAttr(n, "style", cssURLPattern.ReplaceAllStringFunc(style, func(m string) string {
				raw := unquoteCSS(cssURLPattern.FindStringSubmatch(m)[1])
				return `url("` + quoteCSS(inline(raw)) + `")`
			}))
		}
	})

	out, err := RenderHTML(doc, isFragment)
	if err != nil {
		return "", err
	}
	if len(failed) > 0 {
		return out, fmt.Errorf("inlining %d resource(s): %s", len(failed), strings.Join(failed, "; "))
	}
	return out, nil
}

func isInlinable(raw string) bool {
	return strings.HasPrefix(raw, "blob:") || strings.HasPrefix(raw, "file://")
}

func unquoteCSS(s string) string {
	s = strings.ReplaceAll(s, `\"`, `"`)
	return strings.ReplaceAll(s, `\\`, `\`)
}

func quoteCSS(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	return strings.ReplaceAll(s, `"`, `\"`)
}
