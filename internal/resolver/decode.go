package resolver

import (
	"bytes"
	"fmt"
	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/disintegration/imaging"
	"github.com/h2non/filetype"
	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"

	"github.com/alnah/go-mdbanner/internal/imagecache"
)

const mimeSVG = "image/svg+xml"

// decodeImage validates raw image bytes. The content is sniffed rather
// than trusted from the server's Content-Type; raster formats must decode
// fully. SVG and AVIF are accepted on sniffing alone.
func decodeImage(data []byte) (imagecache.Resource, error) {
	if len(data) == 0 {
		return imagecache.Resource{}, fmt.Errorf("%w: empty body", ErrDecodeFailed)
	}

	if looksLikeSVG(data) {
		return imagecache.Resource{MIME: mimeSVG, Size: len(data)}, nil
	}

	if !filetype.IsImage(data) {
		kind, _ := filetype.Match(data)
		return imagecache.Resource{}, fmt.Errorf("%w: not an image (%s)", ErrDecodeFailed, describeKind(kind.MIME.Value))
	}
	kind, err := filetype.Match(data)
	if err != nil {
		return imagecache.Resource{}, fmt.Errorf("%w: %v", ErrDecodeFailed, err)
	}
	res := imagecache.Resource{MIME: kind.MIME.Value, Size: len(data)}

	switch kind.MIME.Value {
	case "image/avif", "image/heif":
		return res, nil
	}

	img, err := imaging.Decode(bytes.NewReader(data), imaging.AutoOrientation(true))
	if err != nil {
		return imagecache.Resource{}, fmt.Errorf("%w: %s: %v", ErrDecodeFailed, kind.MIME.Value, err)
	}
	b := img.Bounds()
	res.Width, res.Height = b.Dx(), b.Dy()
	return res, nil
}

func describeKind(mime string) string {
	if mime == "" {
		return "unknown content"
	}
	return mime
}

// looksLikeSVG reports whether data is an SVG document.
func looksLikeSVG(data []byte) bool {
	head := data
	if len(head) > 1024 {
		head = head[:1024]
	}
	head = bytes.TrimSpace(bytes.TrimPrefix(head, []byte("\xef\xbb\xbf")))
	if bytes.HasPrefix(head, []byte("<svg")) {
		return true
	}
	if bytes.HasPrefix(head, []byte("<?xml")) || bytes.HasPrefix(head, []byte("<!--")) || bytes.HasPrefix(head, []byte("<!DOCTYPE svg")) {
		return bytes.Contains(head, []byte("<svg"))
	}
	return false
}
