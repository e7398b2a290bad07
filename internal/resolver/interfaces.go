package resolver

import "context"

// Store is the document store banner links resolve against.
type Store interface {
	// ResolveInternalLink returns the store path of the file ref points at
	// from contextDoc. A missing target returns an error matching
	// fs.ErrNotExist.
	ResolveInternalLink(ref, contextDoc string) (string, error)
	ReadBinary(path string) ([]byte, error)
	// DisplayablePath returns a URL a view can load the file from.
	DisplayablePath(path string) string
	ListImages(folder string) ([]string, error)
}

// Fetcher downloads remote images.
type Fetcher interface {
	// Fetch returns the body and the declared content type of url.
	Fetch(ctx context.Context, url string) ([]byte, string, error)
}

// SearchProvider maps a keyword to candidate image URLs.
type SearchProvider interface {
	Search(ctx context.Context, keyword string) ([]string, error)
}
