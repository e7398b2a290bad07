package fields

import (
	"strings"

	"github.com/alnah/go-mdbanner/internal/source"
)

// DisplayMode controls how the banner image fills its box.
type DisplayMode string

// Display modes.
const (
	DisplayAuto    DisplayMode = "auto"
	DisplayCover   DisplayMode = "cover"
	DisplayContain DisplayMode = "contain"
)

// ParseDisplayMode parses a display mode (case-insensitive).
func ParseDisplayMode(s string) (DisplayMode, bool) {
	switch DisplayMode(strings.ToLower(strings.TrimSpace(s))) {
	case DisplayAuto:
		return DisplayAuto, true
	case DisplayCover:
		return DisplayCover, true
	case DisplayContain:
		return DisplayContain, true
	}
	return "", false
}

// AlignMode positions the banner (or icon image) horizontally.
type AlignMode string

// Alignments.
const (
	AlignLeft   AlignMode = "left"
	AlignCenter AlignMode = "center"
	AlignRight  AlignMode = "right"
)

// ParseAlignMode parses an alignment (case-insensitive).
func ParseAlignMode(s string) (AlignMode, bool) {
	switch AlignMode(strings.ToLower(strings.TrimSpace(s))) {
	case AlignLeft:
		return AlignLeft, true
	case AlignCenter:
		return AlignCenter, true
	case AlignRight:
		return AlignRight, true
	}
	return "", false
}

// BannerConfig is the canonical banner configuration of one note.
// It is a comparable value: two configs are equal exactly when == holds,
// which is what view controllers use as their dirty check.
type BannerConfig struct {
	Source     string      // normalized reference, "" when the note has no banner
	SourceKind source.Kind // classification of Source
	XPosition  float64     // focal point, percent
	YPosition  float64     // focal point, percent
	Display    DisplayMode
	Repeat     bool
	Height     float64 // px
	MaxWidth   float64 // px, 0 = uncapped
	Fade       float64
	// BorderRadius is in px.
	BorderRadius float64
	ContentStart float64 // px from the top of the view where content begins
	Alignment    AlignMode
	TitleColor   string
	Shuffle      bool
	Icon         IconConfig
}

// IconConfig describes the decorative icon overlay.
type IconConfig struct {
	Emoji           string
	Image           string      // normalized icon image reference
	ImageKind       source.Kind // classification of Image
	Size            float64
	Opacity         float64
	Color           string
	BackgroundColor string
	PaddingX        float64
	PaddingY        float64
	BorderRadius    float64
	VerticalOffset  float64
	XPosition       float64
	Rotate          float64
	ImageAlignment  AlignMode
}

// HasIcon reports whether an icon overlay should be shown.
func (c IconConfig) HasIcon() bool {
	return c.Emoji != "" || c.Image != ""
}

// HasBanner reports whether the config names a banner source.
func (c BannerConfig) HasBanner() bool {
	return c.Source != "" && c.SourceKind != source.None
}

// Classified returns the banner source as a classifier result.
func (c BannerConfig) Classified() source.Classified {
	return source.Classified{Kind: c.SourceKind, Normalized: c.Source, Raw: c.Source}
}

// IconClassified returns the icon image as a classifier result.
func (c BannerConfig) IconClassified() source.Classified {
	return source.Classified{Kind: c.Icon.ImageKind, Normalized: c.Icon.Image, Raw: c.Icon.Image}
}

// Documented bounds for numeric properties.
const (
	MinPosition      = 0.0
	MaxPosition      = 100.0
	MinHeight        = 0.0
	MaxHeight        = 1280.0
	MinMaxWidth      = 0.0
	MaxMaxWidth      = 4096.0
	MinFade          = -1500.0
	MaxFade          = 100.0
	MinBorderRadius  = 0.0
	MaxBorderRadius  = 50.0
	MinContentStart  = 0.0
	MaxContentStart  = 2560.0
	MinIconSize      = 10.0
	MaxIconSize      = 200.0
	MinIconOpacity   = 0.0
	MaxIconOpacity   = 100.0
	MinIconPadding   = 0.0
	MaxIconPadding   = 100.0
	MinIconOffset    = -500.0
	MaxIconOffset    = 500.0
	MinIconRotate    = -360.0
	MaxIconRotate    = 360.0
	DefaultTitleHint = "var(--inline-title-color)"
)

// DefaultBannerConfig returns the built-in global defaults.
func DefaultBannerConfig() BannerConfig {
	return BannerConfig{
		XPosition:    50,
		YPosition:    50,
		Display:      DisplayCover,
		Repeat:       false,
		Height:       350,
		MaxWidth:     0,
		Fade:         -75,
		BorderRadius: 17,
		ContentStart: 150,
		Alignment:    AlignCenter,
		TitleColor:   DefaultTitleHint,
		Icon: IconConfig{
			Size:            70,
			Opacity:         100,
			BackgroundColor: "transparent",
			BorderRadius:    17,
			XPosition:       25,
			ImageAlignment:  AlignCenter,
		},
	}
}

// clampDefaults brings a user-supplied defaults value inside the documented
// ranges so Resolve never emits out-of-range values.
func clampDefaults(d BannerConfig) BannerConfig {
	d.Source = ""
	d.SourceKind = source.None
	d.XPosition = clamp(d.XPosition, MinPosition, MaxPosition)
	d.YPosition = clamp(d.YPosition, MinPosition, MaxPosition)
	if _, ok := ParseDisplayMode(string(d.Display)); !ok {
		d.Display = DisplayCover
	}
	d.Height = clamp(d.Height, MinHeight, MaxHeight)
	d.MaxWidth = clamp(d.MaxWidth, MinMaxWidth, MaxMaxWidth)
	d.Fade = clamp(d.Fade, MinFade, MaxFade)
	d.BorderRadius = clamp(d.BorderRadius, MinBorderRadius, MaxBorderRadius)
	d.ContentStart = clamp(d.ContentStart, MinContentStart, MaxContentStart)
	if _, ok := ParseAlignMode(string(d.Alignment)); !ok {
		d.Alignment = AlignCenter
	}
	if !IsSafeCSSValue(d.TitleColor) {
		d.TitleColor = DefaultTitleHint
	}
	d.Icon.Emoji = ""
	d.Icon.Image = ""
	d.Icon.ImageKind = source.None
	d.Icon.Size = clamp(d.Icon.Size, MinIconSize, MaxIconSize)
	d.Icon.Opacity = clamp(d.Icon.Opacity, MinIconOpacity, MaxIconOpacity)
	d.Icon.PaddingX = clamp(d.Icon.PaddingX, MinIconPadding, MaxIconPadding)
	d.Icon.PaddingY = clamp(d.Icon.PaddingY, MinIconPadding, MaxIconPadding)
	d.Icon.BorderRadius = clamp(d.Icon.BorderRadius, MinBorderRadius, MaxBorderRadius)
	d.Icon.VerticalOffset = clamp(d.Icon.VerticalOffset, MinIconOffset, MaxIconOffset)
	d.Icon.XPosition = clamp(d.Icon.XPosition, MinPosition, MaxPosition)
	d.Icon.Rotate = clamp(d.Icon.Rotate, MinIconRotate, MaxIconRotate)
	if _, ok := ParseAlignMode(string(d.Icon.ImageAlignment)); !ok {
		d.Icon.ImageAlignment = AlignCenter
	}
	if !IsSafeCSSValue(d.Icon.Color) {
		d.Icon.Color = ""
	}
	if !IsSafeCSSValue(d.Icon.BackgroundColor) {
		d.Icon.BackgroundColor = "transparent"
	}
	return d
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// IsSafeCSSValue reports whether s can be placed inside a style declaration
// without terminating it. The empty string is safe.
func IsSafeCSSValue(s string) bool {
	return !strings.ContainsAny(s, ";{}<>\"\\\n\r")
}
