package pipeline

import (
	"context"
	"net/url"
	"regexp"
	"strings"
)

// Highlight placeholders use Unicode Private Use Area characters, which
// pass through Goldmark unchanged. ConvertMarkPlaceholders turns them into
// <mark> tags after conversion.
const (
	MarkStartPlaceholder = "\uE000"
	MarkEndPlaceholder   = "\uE001"
)

var (
	crlfOrCR           = regexp.MustCompile(`\r\n?`)
	multipleBlankLines = regexp.MustCompile(`\n{3,}`)
	highlightPattern   = regexp.MustCompile(`==(.*?)==`)

	// ![[target]] and ![[target|alt]]
	embedPattern = regexp.MustCompile(`!\[\[([^\]|]+)(?:\|([^\]]*))?\]\]`)
	// [[target]] and [[target|label]]
	wikiLinkPattern = regexp.MustCompile(`\[\[([^\]|]+)(?:\|([^\]]*))?\]\]`)
)

// MarkdownPreprocessor defines the contract for markdown preprocessing.
type MarkdownPreprocessor interface {
	PreprocessMarkdown(ctx context.Context, content string) string
}

// NotePreprocessor prepares a note body for CommonMark conversion.
type NotePreprocessor struct{}

// PreprocessMarkdown normalizes line endings, rewrites note link syntax
// into CommonMark, and marks highlights.
func (p *NotePreprocessor) PreprocessMarkdown(ctx context.Context, content string) string {
	if ctx.Err() != nil {
		return content
	}

	content = normalizeLineEndings(content)
	content = convertEmbeds(content)
	content = convertWikiLinks(content)
	content = convertHighlights(content)
	content = compressBlankLines(content)
	return content
}

func normalizeLineEndings(content string) string {
	return crlfOrCR.ReplaceAllString(content, "\n")
}

// compressBlankLines limits consecutive blank lines to 2 maximum.
func compressBlankLines(content string) string {
	return multipleBlankLines.ReplaceAllString(content, "\n\n")
}

// convertEmbeds turns ![[img.png|alt]] into ![alt](img.png). The target is
// path-escaped so spaces survive CommonMark link parsing.
func convertEmbeds(content string) string {
	return embedPattern.ReplaceAllStringFunc(content, func(m string) string {
		sub := embedPattern.FindStringSubmatch(m)
		target := strings.TrimSpace(sub[1])
		alt := strings.TrimSpace(sub[2])
		return "![" + alt + "](" + escapeLinkTarget(target) + ")"
	})
}

// convertWikiLinks reduces [[note|label]] to its label. Links between notes
// have no meaning in a standalone view.
func convertWikiLinks(content string) string {
	return wikiLinkPattern.ReplaceAllStringFunc(content, func(m string) string {
		sub := wikiLinkPattern.FindStringSubmatch(m)
		if label := strings.TrimSpace(sub[2]); label != "" {
			return label
		}
		target := strings.TrimSpace(sub[1])
		if i := strings.IndexByte(target, '#'); i > 0 {
			target = target[:i]
		}
		return strings.TrimSuffix(target, ".md")
	})
}

func escapeLinkTarget(target string) string {
	u := url.URL{Path: target}
	return u.EscapedPath()
}

// convertHighlights transforms ==text== to placeholder markers.
func convertHighlights(content string) string {
	return highlightPattern.ReplaceAllString(content, MarkStartPlaceholder+"$1"+MarkEndPlaceholder)
}

// ConvertMarkPlaceholders converts placeholder markers to <mark> tags.
func ConvertMarkPlaceholders(content string) string {
	return strings.ReplaceAll(
		strings.ReplaceAll(content, MarkStartPlaceholder, "<mark>"),
		MarkEndPlaceholder, "</mark>",
	)
}
