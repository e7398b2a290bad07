package resolver

import "errors"

// Resolution failures. Every error returned by Resolver matches one of them.
var (
	ErrNotFound         = errors.New("banner image not found")
	ErrUnsupportedType  = errors.New("unsupported banner file type")
	ErrFetchFailed      = errors.New("banner fetch failed")
	ErrDecodeFailed     = errors.New("banner image could not be decoded")
	ErrNoSearchProvider = errors.New("no image search provider configured")
)

// Class returns a short identifier for err, used to tag error states in
// views and as a metrics label.
func Class(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not-found"
	case errors.Is(err, ErrUnsupportedType):
		return "unsupported-type"
	case errors.Is(err, ErrFetchFailed):
		return "fetch-failed"
	case errors.Is(err, ErrDecodeFailed):
		return "decode-failed"
	case errors.Is(err, ErrNoSearchProvider):
		return "no-search-provider"
	default:
		return "error"
	}
}
