package fields

import (
	"fmt"
	"strings"
)

// Property is a canonical banner property, independent of the frontmatter
// key names users may choose for it.
type Property int

// Canonical properties. The order is the order of AllProperties.
const (
	Source Property = iota
	XPosition
	YPosition
	Display
	Repeat
	Height
	MaxWidth
	Fade
	BorderRadius
	ContentStart
	Alignment
	TitleColor
	Shuffle
	Icon
	IconImage
	IconSize
	IconOpacity
	IconColor
	IconBackgroundColor
	IconPaddingX
	IconPaddingY
	IconBorderRadius
	IconVerticalOffset
	IconXPosition
	IconRotate
	IconImageAlignment

	propertyCount
)

var propertyNames = [propertyCount]string{
	Source:              "source",
	XPosition:           "xPosition",
	YPosition:           "yPosition",
	Display:             "display",
	Repeat:              "repeat",
	Height:              "height",
	MaxWidth:            "maxWidth",
	Fade:                "fade",
	BorderRadius:        "borderRadius",
	ContentStart:        "contentStart",
	Alignment:           "alignment",
	TitleColor:          "titleColor",
	Shuffle:             "shuffle",
	Icon:                "icon",
	IconImage:           "iconImage",
	IconSize:            "iconSize",
	IconOpacity:         "iconOpacity",
	IconColor:           "iconColor",
	IconBackgroundColor: "iconBackgroundColor",
	IconPaddingX:        "iconPaddingX",
	IconPaddingY:        "iconPaddingY",
	IconBorderRadius:    "iconBorderRadius",
	IconVerticalOffset:  "iconVerticalOffset",
	IconXPosition:       "iconXPosition",
	IconRotate:          "iconRotate",
	IconImageAlignment:  "iconImageAlignment",
}

// String returns the canonical property name.
func (p Property) String() string {
	if p < 0 || p >= propertyCount {
		return fmt.Sprintf("Property(%d)", int(p))
	}
	return propertyNames[p]
}

// AllProperties returns every canonical property in declaration order.
func AllProperties() []Property {
	props := make([]Property, propertyCount)
	for i := range props {
		props[i] = Property(i)
	}
	return props
}

// ParseProperty maps a canonical name (case-insensitive) to its Property.
func ParseProperty(name string) (Property, error) {
	for i, n := range propertyNames {
		if strings.EqualFold(n, name) {
			return Property(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownProperty, name)
}

// defaultAliases are the frontmatter keys recognized out of the box.
// The first entry of each list has the highest priority.
var defaultAliases = [propertyCount][]string{
	Source:              {"banner", "pixel-banner"},
	XPosition:           {"banner-x", "x"},
	YPosition:           {"banner-y", "y"},
	Display:             {"banner-display"},
	Repeat:              {"banner-repeat"},
	Height:              {"banner-height"},
	MaxWidth:            {"banner-max-width"},
	Fade:                {"banner-fade"},
	BorderRadius:        {"banner-radius"},
	ContentStart:        {"content-start"},
	Alignment:           {"banner-alignment"},
	TitleColor:          {"banner-inline-title-color"},
	Shuffle:             {"banner-shuffle"},
	Icon:                {"icon", "banner-icon"},
	IconImage:           {"icon-image"},
	IconSize:            {"icon-size"},
	IconOpacity:         {"icon-opacity"},
	IconColor:           {"icon-color"},
	IconBackgroundColor: {"icon-bg-color"},
	IconPaddingX:        {"icon-padding-x"},
	IconPaddingY:        {"icon-padding-y"},
	IconBorderRadius:    {"icon-border-radius"},
	IconVerticalOffset:  {"icon-y"},
	IconXPosition:       {"icon-x"},
	IconRotate:          {"icon-rotate"},
	IconImageAlignment:  {"icon-image-alignment"},
}

// DefaultAliases returns a copy of the built-in alias lists.
func DefaultAliases() map[Property][]string {
	m := make(map[Property][]string, propertyCount)
	for i, aliases := range defaultAliases {
		m[Property(i)] = append([]string(nil), aliases...)
	}
	return m
}
