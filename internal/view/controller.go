package view

import (
	"errors"

	"golang.org/x/net/html"

	"github.com/alnah/go-mdbanner/internal/fields"
	"github.com/alnah/go-mdbanner/internal/pipeline"
)

// ErrTornDown is returned by operations on a controller after Teardown.
var ErrTornDown = errors.New("view: controller torn down")

// State is the lifecycle state of a view's banner.
type State int

// Banner lifecycle states.
const (
	// Absent means nothing has been painted yet.
	Absent State = iota
	// Resolving means a resolution is in flight.
	Resolving
	// Rendered means the painted banner matches the note.
	Rendered
	// Stale means the note changed since the last paint.
	Stale
	// TornDown means the view closed and its elements were removed.
	TornDown
)

// String returns the lowercase state name used in logs and the views API.
func (s State) String() string {
	switch s {
	case Absent:
		return "absent"
	case Resolving:
		return "resolving"
	case Rendered:
		return "rendered"
	case Stale:
		return "stale"
	case TornDown:
		return "torn-down"
	default:
		return "unknown"
	}
}

// Image is a resolved image as the view sees it: the URL to paint and
// the identity of the underlying resource. Two images with the same
// identity are the same pixels.
type Image struct {
	URL      string
	Identity string
}

// desired is everything the controller last painted.
type desired struct {
	cfg      fields.BannerConfig
	banner   Image
	icon     Image
	errClass string
}

// Controller keeps one view's banner elements in line with its config.
type Controller struct {
	id      string
	surface *Surface
	state   State
	width   float64

	applied bool
	want    desired

	bannerEl *html.Node
	iconEl   *html.Node
}

// NewController creates a controller for the view with the given ID.
func NewController(viewID string, s *Surface) *Controller {
	return &Controller{id: viewID, surface: s, state: Absent}
}

// ID returns the view ID the controller marks its elements with.
func (c *Controller) ID() string { return c.id }

// State returns the banner lifecycle state.
func (c *Controller) State() State { return c.state }

// Surface returns the view document the controller paints into.
func (c *Controller) Surface() *Surface { return c.surface }

// Width returns the last known view width, 0 when unknown.
func (c *Controller) Width() float64 { return c.width }

// ErrorClass returns the class of the painted error state, or "" when the
// banner rendered.
func (c *Controller) ErrorClass() string { return c.want.errClass }

// Config returns the last applied config.
func (c *Controller) Config() fields.BannerConfig { return c.want.cfg }

// Begin marks a resolution in flight.
func (c *Controller) Begin() {
	if c.state == TornDown {
		return
	}
	c.state = Resolving
}

// MarkStale records that the note changed since the last render.
func (c *Controller) MarkStale() {
	if c.state == Rendered {
		c.state = Stale
	}
}

// Update paints cfg with the resolved banner and icon images. It reports
// whether the DOM changed; an update identical to the last one that
// finds its elements intact writes nothing.
func (c *Controller) Update(cfg fields.BannerConfig, banner, icon Image) (bool, error) {
	if c.state == TornDown {
		return false, ErrTornDown
	}
	if !cfg.HasBanner() && !cfg.Icon.HasIcon() {
		changed, err := c.clear()
		c.state = Absent
		return changed, err
	}
	return c.paint(desired{cfg: cfg, banner: banner, icon: icon})
}

// Fail paints the inline error state for cfg. class is the error class
// shown in data-mdbanner-error.
func (c *Controller) Fail(cfg fields.BannerConfig, class string) (bool, error) {
	if c.state == TornDown {
		return false, ErrTornDown
	}
	if class == "" {
		class = "error"
	}
	return c.paint(desired{cfg: cfg, errClass: class})
}

func (c *Controller) paint(d desired) (bool, error) {
	before := c.surface.Writes()
	if c.applied && c.want == d && c.intact() {
		c.state = Rendered
		return false, nil
	}
	if err := c.surface.edit(func(t *tx) error {
		c.apply(t, d)
		return nil
	}); err != nil {
		return false, err
	}
	c.want = d
	c.applied = true
	c.state = Rendered
	return c.surface.Writes() != before, nil
}

// apply brings the DOM to d. Each element gets one style write.
func (c *Controller) apply(t *tx, d desired) {
	bannerClass := BannerClass
	if d.errClass != "" {
		bannerClass += " " + ErrorClass
	}
	bStyle := bannerStyle(d.cfg, d.banner.URL, c.width)

	if c.bannerEl == nil {
		c.bannerEl = pipeline.NewElement("div", "class", bannerClass, AttrBanner, c.id, "style", bStyle)
		if d.errClass != "" {
			c.bannerEl.Attr = append(c.bannerEl.Attr, html.Attribute{Key: AttrError, Val: d.errClass})
		}
		t.insertFirst(c.bannerEl)
	} else {
		if !t.attached(c.bannerEl) || pipeline.FirstElementChild(t.container) != c.bannerEl {
			t.insertFirst(c.bannerEl)
		}
		t.setAttr(c.bannerEl, "class", bannerClass)
		t.setAttr(c.bannerEl, AttrBanner, c.id)
		t.setAttr(c.bannerEl, "style", bStyle)
		if d.errClass != "" {
			t.setAttr(c.bannerEl, AttrError, d.errClass)
		} else {
			t.removeAttr(c.bannerEl, AttrError)
		}
	}

	ic := d.cfg.Icon
	if !ic.HasIcon() {
		if c.iconEl != nil {
			if t.attached(c.iconEl) {
				t.remove(c.iconEl)
			}
			c.iconEl = nil
		}
		return
	}

	iStyle := iconStyle(d.cfg, d.icon.URL)
	text := ""
	if d.icon.URL == "" {
		text = ic.Emoji
	}
	if c.iconEl == nil {
		c.iconEl = pipeline.NewElement("div", "class", IconClass, AttrIcon, c.id, "style", iStyle)
		if text != "" {
			c.iconEl.AppendChild(&html.Node{Type: html.TextNode, Data: text})
		}
		t.insertAfter(c.iconEl, c.bannerEl)
		return
	}
	if !t.attached(c.iconEl) || pipeline.NextElementSibling(c.bannerEl) != c.iconEl {
		t.insertAfter(c.iconEl, c.bannerEl)
	}
	t.setAttr(c.iconEl, "class", IconClass)
	t.setAttr(c.iconEl, AttrIcon, c.id)
	t.setAttr(c.iconEl, "style", iStyle)
	t.setText(c.iconEl, text)
}

// intact reports whether the DOM still shows what was last painted.
func (c *Controller) intact() bool {
	ok := true
	err := c.surface.edit(func(t *tx) error {
		ok = c.intactLocked(t)
		return nil
	})
	return err == nil && ok
}

func (c *Controller) intactLocked(t *tx) bool {
	if !c.applied {
		return true
	}
	d := c.want
	if c.bannerEl == nil || !t.attached(c.bannerEl) {
		return false
	}
	if pipeline.FirstElementChild(t.container) != c.bannerEl {
		return false
	}
	if v, _ := pipeline.Attr(c.bannerEl, AttrBanner); v != c.id {
		return false
	}
	if v, _ := pipeline.Attr(c.bannerEl, "style"); v != bannerStyle(d.cfg, d.banner.URL, c.width) {
		return false
	}
	if !d.cfg.Icon.HasIcon() {
		return true
	}
	if c.iconEl == nil || !t.attached(c.iconEl) || pipeline.NextElementSibling(c.bannerEl) != c.iconEl {
		return false
	}
	if v, _ := pipeline.Attr(c.iconEl, AttrIcon); v != c.id {
		return false
	}
	v, _ := pipeline.Attr(c.iconEl, "style")
	return v == iconStyle(d.cfg, d.icon.URL)
}

// Drifted reports whether the host moved, detached, or altered the
// banner elements since the last paint.
func (c *Controller) Drifted() bool {
	if c.state == TornDown || !c.applied {
		return false
	}
	return !c.intact()
}

// Reassert repaints the last applied state if the host disturbed it.
// Nothing is re-resolved. It reports whether the DOM changed.
func (c *Controller) Reassert() (bool, error) {
	if c.state == TornDown {
		return false, ErrTornDown
	}
	if !c.applied {
		return false, nil
	}
	var changed bool
	err := c.surface.edit(func(t *tx) error {
		if c.intactLocked(t) {
			return nil
		}
		before := c.surface.writes
		c.apply(t, c.want)
		changed = c.surface.writes != before
		return nil
	})
	return changed, err
}

// Resize records the view width and rewrites the banner style if the
// width-dependent part changed.
func (c *Controller) Resize(width float64) (bool, error) {
	if c.state == TornDown {
		return false, ErrTornDown
	}
	old := bannerWidth(c.want.cfg, c.width)
	c.width = width
	if !c.applied || c.bannerEl == nil || bannerWidth(c.want.cfg, width) == old {
		return false, nil
	}
	var changed bool
	err := c.surface.edit(func(t *tx) error {
		before := c.surface.writes
		t.setAttr(c.bannerEl, "style", bannerStyle(c.want.cfg, c.want.banner.URL, width))
		changed = c.surface.writes != before
		return nil
	})
	return changed, err
}

// Clear removes the banner elements. The view keeps its controller.
func (c *Controller) Clear() (bool, error) {
	if c.state == TornDown {
		return false, ErrTornDown
	}
	changed, err := c.clear()
	c.state = Absent
	return changed, err
}

func (c *Controller) clear() (bool, error) {
	if c.bannerEl == nil && c.iconEl == nil {
		c.applied = false
		c.want = desired{}
		return false, nil
	}
	var changed bool
	err := c.surface.edit(func(t *tx) error {
		before := c.surface.writes
		for _, n := range []*html.Node{c.iconEl, c.bannerEl} {
			if n != nil && t.attached(n) {
				t.remove(n)
			}
		}
		changed = c.surface.writes != before
		return nil
	})
	c.bannerEl, c.iconEl = nil, nil
	c.applied = false
	c.want = desired{}
	return changed, err
}

// Teardown removes the banner elements and retires the controller.
func (c *Controller) Teardown() {
	if c.state == TornDown {
		return
	}
	_, _ = c.clear()
	c.state = TornDown
}
