// Package pipeline turns note bodies into view documents.
//
// Stages:
//   - Markdown preprocessing (line endings, embeds, note links, highlights)
//   - Markdown to HTML conversion via Goldmark
//   - CSS injection into the document head
//   - Relative path rewriting to file:// URLs
//   - Inlining of blob: and file:// resources as data: URIs
//
// The DOM helpers in dom.go are shared with the view package, which mounts
// banners into the documents produced here.
package pipeline
