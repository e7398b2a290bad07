package fields

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/alnah/go-mdbanner/internal/source"
)

// Resolver reduces note metadata to a BannerConfig.
// It holds no mutable state; one instance may be shared across goroutines.
type Resolver struct {
	aliases  *AliasTable
	defaults BannerConfig
}

// NewResolver creates a Resolver from a validated alias table and global
// defaults. A nil table means DefaultAliasTable. Defaults outside the
// documented ranges are clamped.
func NewResolver(aliases *AliasTable, defaults BannerConfig) *Resolver {
	if aliases == nil {
		aliases = DefaultAliasTable()
	}
	return &Resolver{aliases: aliases, defaults: clampDefaults(defaults)}
}

// NewResolverFromMap validates custom aliases and creates a Resolver.
// Returns a *ConflictError (matching ErrConfigurationConflict) when an
// alias is claimed twice; resolution cannot start from such a table.
func NewResolverFromMap(custom map[Property][]string, defaults BannerConfig) (*Resolver, error) {
	t, err := NewAliasTable(custom)
	if err != nil {
		return nil, err
	}
	return NewResolver(t, defaults), nil
}

// Aliases returns the alias table in use.
func (r *Resolver) Aliases() *AliasTable {
	return r.aliases
}

// Defaults returns the clamped global defaults.
func (r *Resolver) Defaults() BannerConfig {
	return r.defaults
}

// Resolve builds the BannerConfig for metadata. For every property the
// first alias present with a non-empty value wins; later aliases are
// ignored. Numbers are clamped to their documented range and malformed
// values fall back to the default. metadata is never modified.
func (r *Resolver) Resolve(metadata map[string]any) BannerConfig {
	cfg := r.defaults

	if v, ok := r.aliases.lookup(metadata, Source); ok {
		c := source.Classify(stringValue(v))
		cfg.Source = c.Normalized
		cfg.SourceKind = c.Kind
		if c.Kind == source.None {
			cfg.Source = ""
		}
	}

	r.setFloat(metadata, XPosition, &cfg.XPosition, MinPosition, MaxPosition)
	r.setFloat(metadata, YPosition, &cfg.YPosition, MinPosition, MaxPosition)
	if v, ok := r.aliases.lookup(metadata, Display); ok {
		if d, ok := ParseDisplayMode(stringValue(v)); ok {
			cfg.Display = d
		}
	}
	r.setBool(metadata, Repeat, &cfg.Repeat)
	r.setFloat(metadata, Height, &cfg.Height, MinHeight, MaxHeight)
	r.setFloat(metadata, MaxWidth, &cfg.MaxWidth, MinMaxWidth, MaxMaxWidth)
	r.setFloat(metadata, Fade, &cfg.Fade, MinFade, MaxFade)
	r.setFloat(metadata, BorderRadius, &cfg.BorderRadius, MinBorderRadius, MaxBorderRadius)
	r.setFloat(metadata, ContentStart, &cfg.ContentStart, MinContentStart, MaxContentStart)
	if v, ok := r.aliases.lookup(metadata, Alignment); ok {
		if a, ok := ParseAlignMode(stringValue(v)); ok {
			cfg.Alignment = a
		}
	}
	r.setColor(metadata, TitleColor, &cfg.TitleColor)
	r.setShuffle(metadata, &cfg)

	if v, ok := r.aliases.lookup(metadata, Icon); ok {
		cfg.Icon.Emoji = stringValue(v)
	}
	if v, ok := r.aliases.lookup(metadata, IconImage); ok {
		c := source.Classify(stringValue(v))
		if c.Kind != source.None {
			cfg.Icon.Image = c.Normalized
			cfg.Icon.ImageKind = c.Kind
		}
	}
	r.setFloat(metadata, IconSize, &cfg.Icon.Size, MinIconSize, MaxIconSize)
	r.setFloat(metadata, IconOpacity, &cfg.Icon.Opacity, MinIconOpacity, MaxIconOpacity)
	r.setColor(metadata, IconColor, &cfg.Icon.Color)
	r.setColor(metadata, IconBackgroundColor, &cfg.Icon.BackgroundColor)
	r.setFloat(metadata, IconPaddingX, &cfg.Icon.PaddingX, MinIconPadding, MaxIconPadding)
	r.setFloat(metadata, IconPaddingY, &cfg.Icon.PaddingY, MinIconPadding, MaxIconPadding)
	r.setFloat(metadata, IconBorderRadius, &cfg.Icon.BorderRadius, MinBorderRadius, MaxBorderRadius)
	r.setFloat(metadata, IconVerticalOffset, &cfg.Icon.VerticalOffset, MinIconOffset, MaxIconOffset)
	r.setFloat(metadata, IconXPosition, &cfg.Icon.XPosition, MinPosition, MaxPosition)
	r.setFloat(metadata, IconRotate, &cfg.Icon.Rotate, MinIconRotate, MaxIconRotate)
	if v, ok := r.aliases.lookup(metadata, IconImageAlignment); ok {
		if a, ok := ParseAlignMode(stringValue(v)); ok {
			cfg.Icon.ImageAlignment = a
		}
	}

	return cfg
}

func (r *Resolver) setFloat(metadata map[string]any, p Property, dst *float64, lo, hi float64) {
	v, ok := r.aliases.lookup(metadata, p)
	if !ok {
		return
	}
	f, ok := floatValue(v)
	if !ok {
		return
	}
	*dst = clamp(f, lo, hi)
}

func (r *Resolver) setBool(metadata map[string]any, p Property, dst *bool) {
	v, ok := r.aliases.lookup(metadata, p)
	if !ok {
		return
	}
	if b, ok := boolValue(v); ok {
		*dst = b
	}
}

func (r *Resolver) setColor(metadata map[string]any, p Property, dst *string) {
	v, ok := r.aliases.lookup(metadata, p)
	if !ok {
		return
	}
	s := stringValue(v)
	if s != "" && IsSafeCSSValue(s) {
		*dst = s
	}
}

// setShuffle accepts either a boolean or a folder reference. A folder turns
// shuffling on and, when the note names no banner of its own, becomes the
// folder the banner is drawn from.
func (r *Resolver) setShuffle(metadata map[string]any, cfg *BannerConfig) {
	v, ok := r.aliases.lookup(metadata, Shuffle)
	if !ok {
		return
	}
	if b, ok := boolValue(v); ok {
		cfg.Shuffle = b
		return
	}
	c := source.Classify(stringValue(v))
	if c.Kind == source.None {
		return
	}
	cfg.Shuffle = true
	if cfg.Source == "" {
		cfg.Source = strings.TrimSuffix(c.Normalized, "/")
		cfg.SourceKind = source.InternalLink
	}
}

// isEmpty reports whether a metadata value counts as absent.
func isEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return strings.TrimSpace(x) == ""
	case []any:
		return len(x) == 0
	case []string:
		return len(x) == 0
	case map[string]any:
		return len(x) == 0
	}
	return false
}

// stringValue renders a metadata value as a trimmed string. Nested
// single-element sequences are what YAML produces for an unquoted
// [[link]], so they are turned back into link syntax.
func stringValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case []any:
		if inner, ok := nestedLink(x); ok {
			return source.WrapLink(inner)
		}
		if len(x) == 1 {
			return stringValue(x[0])
		}
		return ""
	case []string:
		if len(x) == 1 {
			return strings.TrimSpace(x[0])
		}
		return ""
	case map[string]any:
		return ""
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	default:
		return strings.TrimSpace(fmt.Sprint(x))
	}
}

// nestedLink recognizes [[x]] decoded by YAML as a sequence of a sequence.
func nestedLink(seq []any) (string, bool) {
	if len(seq) != 1 {
		return "", false
	}
	inner, ok := seq[0].([]any)
	if !ok || len(inner) != 1 {
		return "", false
	}
	s, ok := inner[0].(string)
	if !ok {
		return "", false
	}
	return strings.TrimSpace(s), true
}

// floatValue converts numeric metadata. Strings may carry a px or % unit.
func floatValue(v any) (float64, bool) {
	var f float64
	switch x := v.(type) {
	case int:
		f = float64(x)
	case int8:
		f = float64(x)
	case int16:
		f = float64(x)
	case int32:
		f = float64(x)
	case int64:
		f = float64(x)
	case uint:
		f = float64(x)
	case uint8:
		f = float64(x)
	case uint16:
		f = float64(x)
	case uint32:
		f = float64(x)
	case uint64:
		f = float64(x)
	case float32:
		f = float64(x)
	case float64:
		f = x
	case string:
		s := strings.ToLower(strings.TrimSpace(x))
		s = strings.TrimSuffix(s, "px")
		s = strings.TrimSuffix(s, "%")
		parsed, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func boolValue(v any) (bool, bool) {
	switch x := v.(type) {
	case bool:
		return x, true
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "true", "yes", "on", "1":
			return true, true
		case "false", "no", "off", "0":
			return false, true
		}
	case int:
		return x != 0, true
	case int64:
		return x != 0, true
	case uint64:
		return x != 0, true
	}
	return false, false
}
