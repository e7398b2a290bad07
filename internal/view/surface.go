// Package view renders banners into the DOM of an open note view.
//
// A Surface is the document of one view. A Controller owns the banner
// elements inside that document and keeps them in line with the note's
// BannerConfig. Controllers are not safe for concurrent use; they belong
// to the goroutine that coordinates views. Surfaces are, since the host
// may mutate a document from anywhere.
package view

import (
	"errors"
	"sync"

	"golang.org/x/net/html"

	"github.com/alnah/go-mdbanner/internal/pipeline"
)

// DOM names shared with the stylesheet.
const (
	ContainerClass = "mdbanner-view"
	BannerClass    = "mdbanner"
	IconClass      = "mdbanner-icon"
	ErrorClass     = "mdbanner-error"
	AttrBanner     = "data-mdbanner"
	AttrIcon       = "data-mdbanner-icon"
	AttrError      = "data-mdbanner-error"
)

// ErrNoContainer is returned when a document has no banner container.
var ErrNoContainer = errors.New("view: document has no ." + ContainerClass + " container")

// Surface is the DOM of one view.
type Surface struct {
	mu       sync.Mutex
	doc      *html.Node
	fragment bool
	writes   int
	observer func()
}

// NewSurface parses content. The document must contain a
// div.mdbanner-view container.
func NewSurface(content string) (*Surface, error) {
	doc, fragment, err := pipeline.ParseHTML(content)
	if err != nil {
		return nil, err
	}
	if findContainer(doc) == nil {
		return nil, ErrNoContainer
	}
	return &Surface{doc: doc, fragment: fragment}, nil
}

func findContainer(doc *html.Node) *html.Node {
	return pipeline.Find(doc, func(n *html.Node) bool {
		return pipeline.IsElement(n, "div") && pipeline.HasClass(n, ContainerClass)
	})
}

// HTML serializes the current document.
func (s *Surface) HTML() (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return pipeline.RenderHTML(s.doc, s.fragment)
}

// Writes returns the number of DOM writes controllers made so far.
func (s *Surface) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}

// SetObserver registers fn to run after every host mutation. fn runs on
// the mutating goroutine and must not block.
func (s *Surface) SetObserver(fn func()) {
	s.mu.Lock()
	s.observer = fn
	s.mu.Unlock()
}

// Mutate lets the host change the document, then notifies the observer
// that banner elements may have drifted.
func (s *Surface) Mutate(fn func(doc *html.Node)) {
	s.mu.Lock()
	fn(s.doc)
	obs := s.observer
	s.mu.Unlock()

	if obs != nil {
		obs()
	}
}

// Replace swaps in a freshly rendered document, as a host does when it
// re-renders a view, and notifies the observer.
func (s *Surface) Replace(content string) error {
	doc, fragment, err := pipeline.ParseHTML(content)
	if err != nil {
		return err
	}
	if findContainer(doc) == nil {
		return ErrNoContainer
	}
	s.Mutate(func(*html.Node) {
		s.doc = doc
		s.fragment = fragment
	})
	return nil
}

// edit runs fn with the lock held. Writes made through the tx are counted.
func (s *Surface) edit(fn func(t *tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	container := findContainer(s.doc)
	if container == nil {
		return ErrNoContainer
	}
	return fn(&tx{s: s, doc: s.doc, container: container})
}

// tx is a locked view of the document used by controllers.
type tx struct {
	s         *Surface
	doc       *html.Node
	container *html.Node
}

func (t *tx) setAttr(n *html.Node, key, val string) {
	if pipeline.SetAttr(n, key, val) {
		t.s.writes++
	}
}

func (t *tx) removeAttr(n *html.Node, key string) {
	if pipeline.RemoveAttr(n, key) {
		t.s.writes++
	}
}

func (t *tx) setText(n *html.Node, text string) {
	if n.FirstChild != nil && n.FirstChild == n.LastChild && n.FirstChild.Type == html.TextNode && n.FirstChild.Data == text {
		return
	}
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		n.RemoveChild(c)
		c = next
	}
	if text != "" {
		n.AppendChild(&html.Node{Type: html.TextNode, Data: text})
	}
	t.s.writes++
}

// insertFirst makes n the first child of the container.
func (t *tx) insertFirst(n *html.Node) {
	pipeline.Detach(n)
	t.container.InsertBefore(n, t.container.FirstChild)
	t.s.writes++
}

// insertAfter makes n the next sibling of ref.
func (t *tx) insertAfter(n, ref *html.Node) {
	pipeline.Detach(n)
	ref.Parent.InsertBefore(n, ref.NextSibling)
	t.s.writes++
}

func (t *tx) remove(n *html.Node) {
	if n == nil || n.Parent == nil {
		return
	}
	n.Parent.RemoveChild(n)
	t.s.writes++
}

func (t *tx) attached(n *html.Node) bool {
	return n != nil && pipeline.Contains(t.doc, n)
}
