// Package config loads the settings shared by every view: global banner
// defaults, frontmatter aliases, styling, shuffle, debounce windows,
// image fetching and logging.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/alnah/go-mdbanner/internal/assets"
	"github.com/alnah/go-mdbanner/internal/fields"
	"github.com/alnah/go-mdbanner/internal/fileutil"
	"github.com/alnah/go-mdbanner/internal/logging"
	"github.com/alnah/go-mdbanner/internal/resolver"
	"github.com/alnah/go-mdbanner/internal/yamlutil"
)

// Sentinel errors for config operations.
var (
	ErrConfigNotFound  = errors.New("config file not found")
	ErrEmptyConfigName = errors.New("config name cannot be empty")
	ErrConfigParse     = errors.New("failed to parse config")
	ErrFieldTooLong    = errors.New("field exceeds maximum length")
	ErrOutOfRange      = errors.New("value out of range")
	ErrInvalidValue    = errors.New("invalid value")
)

// Field length limits.
const (
	MaxPathLength  = 4096
	MaxStyleLength = 100
	MaxColorLength = 100
	MaxAgentLength = 200
	MaxKeyLength   = 100
)

// Bounds for the sync and fetch sections.
const (
	MaxDelay        = 10 * time.Second
	MaxFetchTimeout = 5 * time.Minute
	MaxFetchBytes   = 200 << 20
)

// Settings holds every user-tunable option.
type Settings struct {
	Defaults DefaultsConfig      `yaml:"defaults"`
	Aliases  map[string][]string `yaml:"aliases,omitempty"`  // canonical property -> frontmatter keys
	Keywords map[string][]string `yaml:"keywords,omitempty"` // keyword -> candidate image URLs
	Style    string              `yaml:"style"`
	Assets   AssetsConfig        `yaml:"assets"`
	Shuffle  ShuffleConfig       `yaml:"shuffle"`
	Sync     SyncConfig          `yaml:"sync"`
	Fetch    FetchConfig         `yaml:"fetch"`
	Logging  LoggingConfig       `yaml:"logging"`
}

// DefaultsConfig holds the global banner defaults applied when a note
// leaves a property unset.
type DefaultsConfig struct {
	XPosition    float64     `yaml:"xPosition"`
	YPosition    float64     `yaml:"yPosition"`
	Display      string      `yaml:"display"` // cover, contain, auto
	Repeat       bool        `yaml:"repeat"`
	Height       float64     `yaml:"height"`
	MaxWidth     float64     `yaml:"maxWidth"` // 0 = uncapped
	Fade         float64     `yaml:"fade"`
	BorderRadius float64     `yaml:"borderRadius"`
	ContentStart float64     `yaml:"contentStart"`
	Alignment    string      `yaml:"alignment"` // left, center, right
	TitleColor   string      `yaml:"titleColor"`
	Icon         IconDefault `yaml:"icon"`
}

// IconDefault holds the icon overlay defaults.
type IconDefault struct {
	Size            float64 `yaml:"size"`
	Opacity         float64 `yaml:"opacity"`
	Color           string  `yaml:"color"`
	BackgroundColor string  `yaml:"backgroundColor"`
	PaddingX        float64 `yaml:"paddingX"`
	PaddingY        float64 `yaml:"paddingY"`
	BorderRadius    float64 `yaml:"borderRadius"`
	VerticalOffset  float64 `yaml:"verticalOffset"`
	XPosition       float64 `yaml:"xPosition"`
	Rotate          float64 `yaml:"rotate"`
	ImageAlignment  string  `yaml:"imageAlignment"`
}

// AssetsConfig defines asset loading options.
type AssetsConfig struct {
	BasePath string `yaml:"basePath"` // Empty = use embedded assets
}

// ShuffleConfig defines where shuffled banners come from.
type ShuffleConfig struct {
	Folder     string `yaml:"folder"`     // used when a note does not name one
	PersistKey string `yaml:"persistKey"` // empty = picks are not written back
}

// SyncConfig defines the debounce windows of view updates.
type SyncConfig struct {
	MetadataDelay time.Duration `yaml:"metadataDelay"`
	ResizeDelay   time.Duration `yaml:"resizeDelay"`
}

// FetchConfig defines remote image download limits.
type FetchConfig struct {
	Timeout   time.Duration `yaml:"timeout"`
	MaxBytes  int64         `yaml:"maxBytes"`
	UserAgent string        `yaml:"userAgent"`
}

// LoggingConfig defines log verbosity and encoding.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // none, normal, debug
	Format string `yaml:"format"` // console, json
}

// DefaultSettings returns the built-in settings.
func DefaultSettings() *Settings {
	d := fields.DefaultBannerConfig()
	return &Settings{
		Defaults: FromBannerConfig(d),
		Style:    assets.DefaultStyleName,
		Sync: SyncConfig{
			MetadataDelay: 100 * time.Millisecond,
			ResizeDelay:   100 * time.Millisecond,
		},
		Fetch: FetchConfig{
			Timeout:   resolver.DefaultFetchTimeout,
			MaxBytes:  resolver.DefaultMaxBytes,
			UserAgent: resolver.DefaultUserAgent,
		},
		Logging: LoggingConfig{
			Level:  logging.LevelNormal,
			Format: logging.FormatConsole,
		},
	}
}

// FromBannerConfig converts banner defaults to their settings form.
func FromBannerConfig(d fields.BannerConfig) DefaultsConfig {
	return DefaultsConfig{
		XPosition:    d.XPosition,
		YPosition:    d.YPosition,
		Display:      string(d.Display),
		Repeat:       d.Repeat,
		Height:       d.Height,
		MaxWidth:     d.MaxWidth,
		Fade:         d.Fade,
		BorderRadius: d.BorderRadius,
		ContentStart: d.ContentStart,
		Alignment:    string(d.Alignment),
		TitleColor:   d.TitleColor,
		Icon: IconDefault{
			Size:            d.Icon.Size,
			Opacity:         d.Icon.Opacity,
			Color:           d.Icon.Color,
			BackgroundColor: d.Icon.BackgroundColor,
			PaddingX:        d.Icon.PaddingX,
			PaddingY:        d.Icon.PaddingY,
			BorderRadius:    d.Icon.BorderRadius,
			VerticalOffset:  d.Icon.VerticalOffset,
			XPosition:       d.Icon.XPosition,
			Rotate:          d.Icon.Rotate,
			ImageAlignment:  string(d.Icon.ImageAlignment),
		},
	}
}

// BannerConfig converts the defaults section to a banner config.
func (d DefaultsConfig) BannerConfig() fields.BannerConfig {
	display, _ := fields.ParseDisplayMode(d.Display)
	align, _ := fields.ParseAlignMode(d.Alignment)
	iconAlign, _ := fields.ParseAlignMode(d.Icon.ImageAlignment)
	return fields.BannerConfig{
		XPosition:    d.XPosition,
		YPosition:    d.YPosition,
		Display:      display,
		Repeat:       d.Repeat,
		Height:       d.Height,
		MaxWidth:     d.MaxWidth,
		Fade:         d.Fade,
		BorderRadius: d.BorderRadius,
		ContentStart: d.ContentStart,
		Alignment:    align,
		TitleColor:   d.TitleColor,
		Icon: fields.IconConfig{
			Size:            d.Icon.Size,
			Opacity:         d.Icon.Opacity,
			Color:           d.Icon.Color,
			BackgroundColor: d.Icon.BackgroundColor,
			PaddingX:        d.Icon.PaddingX,
			PaddingY:        d.Icon.PaddingY,
			BorderRadius:    d.Icon.BorderRadius,
			VerticalOffset:  d.Icon.VerticalOffset,
			XPosition:       d.Icon.XPosition,
			Rotate:          d.Icon.Rotate,
			ImageAlignment:  iconAlign,
		},
	}
}

// AliasMap converts the aliases section to canonical properties.
// Returns fields.ErrUnknownProperty for names that are not properties.
func (s *Settings) AliasMap() (map[fields.Property][]string, error) {
	if len(s.Aliases) == 0 {
		return nil, nil
	}
	m := make(map[fields.Property][]string, len(s.Aliases))
	for name, aliases := range s.Aliases {
		p, err := fields.ParseProperty(name)
		if err != nil {
			return nil, fmt.Errorf("aliases: %w", err)
		}
		m[p] = aliases
	}
	return m, nil
}

// FieldResolver builds the frontmatter resolver these settings describe.
// Alias collisions return an error matching fields.ErrConfigurationConflict.
func (s *Settings) FieldResolver() (*fields.Resolver, error) {
	custom, err := s.AliasMap()
	if err != nil {
		return nil, err
	}
	return fields.NewResolverFromMap(custom, s.Defaults.BannerConfig())
}

// Validate checks ranges, enums and the alias table.
// Called automatically by Load, but available for consumers who
// construct Settings manually.
func (s *Settings) Validate() error {
	if err := s.Defaults.validate(); err != nil {
		return err
	}

	if _, err := s.FieldResolver(); err != nil {
		return err
	}

	if err := validateFieldLength("style", s.Style, MaxStyleLength); err != nil {
		return err
	}
	if s.Style != "" && !fileutil.IsFilePath(s.Style) {
		if err := assets.ValidateAssetName(s.Style); err != nil {
			return fmt.Errorf("style: %w", err)
		}
	}
	if err := validateFieldLength("assets.basePath", s.Assets.BasePath, MaxPathLength); err != nil {
		return err
	}

	if err := validateFieldLength("shuffle.folder", s.Shuffle.Folder, MaxPathLength); err != nil {
		return err
	}
	if err := validateFieldLength("shuffle.persistKey", s.Shuffle.PersistKey, MaxKeyLength); err != nil {
		return err
	}
	if strings.ContainsAny(s.Shuffle.PersistKey, " :\t\n") {
		return fmt.Errorf("%w: shuffle.persistKey %q", ErrInvalidValue, s.Shuffle.PersistKey)
	}

	if err := validateDuration("sync.metadataDelay", s.Sync.MetadataDelay, MaxDelay); err != nil {
		return err
	}
	if err := validateDuration("sync.resizeDelay", s.Sync.ResizeDelay, MaxDelay); err != nil {
		return err
	}

	if err := validateDuration("fetch.timeout", s.Fetch.Timeout, MaxFetchTimeout); err != nil {
		return err
	}
	if s.Fetch.MaxBytes < 0 || s.Fetch.MaxBytes > MaxFetchBytes {
		return fmt.Errorf("%w: fetch.maxBytes must be between 0 and %d, got %d", ErrOutOfRange, MaxFetchBytes, s.Fetch.MaxBytes)
	}
	if err := validateFieldLength("fetch.userAgent", s.Fetch.UserAgent, MaxAgentLength); err != nil {
		return err
	}

	for keyword, urls := range s.Keywords {
		if strings.TrimSpace(keyword) == "" || len(urls) == 0 {
			return fmt.Errorf("%w: keywords entry %q needs a name and at least one URL", ErrInvalidValue, keyword)
		}
	}

	if err := logging.ValidateLevel(s.Logging.Level); err != nil {
		return fmt.Errorf("logging.level: %w", err)
	}
	if err := logging.ValidateFormat(s.Logging.Format); err != nil {
		return fmt.Errorf("logging.format: %w", err)
	}

	return nil
}

func (d DefaultsConfig) validate() error {
	ranges := []struct {
		name   string
		v      float64
		lo, hi float64
	}{
		{"defaults.xPosition", d.XPosition, fields.MinPosition, fields.MaxPosition},
		{"defaults.yPosition", d.YPosition, fields.MinPosition, fields.MaxPosition},
		{"defaults.height", d.Height, fields.MinHeight, fields.MaxHeight},
		{"defaults.maxWidth", d.MaxWidth, fields.MinMaxWidth, fields.MaxMaxWidth},
		{"defaults.fade", d.Fade, fields.MinFade, fields.MaxFade},
		{"defaults.borderRadius", d.BorderRadius, fields.MinBorderRadius, fields.MaxBorderRadius},
		{"defaults.contentStart", d.ContentStart, fields.MinContentStart, fields.MaxContentStart},
		{"defaults.icon.size", d.Icon.Size, fields.MinIconSize, fields.MaxIconSize},
		{"defaults.icon.opacity", d.Icon.Opacity, fields.MinIconOpacity, fields.MaxIconOpacity},
		{"defaults.icon.paddingX", d.Icon.PaddingX, fields.MinIconPadding, fields.MaxIconPadding},
		{"defaults.icon.paddingY", d.Icon.PaddingY, fields.MinIconPadding, fields.MaxIconPadding},
		{"defaults.icon.borderRadius", d.Icon.BorderRadius, fields.MinBorderRadius, fields.MaxBorderRadius},
		{"defaults.icon.verticalOffset", d.Icon.VerticalOffset, fields.MinIconOffset, fields.MaxIconOffset},
		{"defaults.icon.xPosition", d.Icon.XPosition, fields.MinPosition, fields.MaxPosition},
		{"defaults.icon.rotate", d.Icon.Rotate, fields.MinIconRotate, fields.MaxIconRotate},
	}
	for _, r := range ranges {
		if r.v < r.lo || r.v > r.hi {
			return fmt.Errorf("%w: %s must be between %g and %g, got %g", ErrOutOfRange, r.name, r.lo, r.hi, r.v)
		}
	}

	if _, ok := fields.ParseDisplayMode(d.Display); !ok {
		return fmt.Errorf("%w: defaults.display %q (want cover, contain or auto)", ErrInvalidValue, d.Display)
	}
	if _, ok := fields.ParseAlignMode(d.Alignment); !ok {
		return fmt.Errorf("%w: defaults.alignment %q (want left, center or right)", ErrInvalidValue, d.Alignment)
	}
	if _, ok := fields.ParseAlignMode(d.Icon.ImageAlignment); !ok {
		return fmt.Errorf("%w: defaults.icon.imageAlignment %q (want left, center or right)", ErrInvalidValue, d.Icon.ImageAlignment)
	}

	colors := []struct{ name, v string }{
		{"defaults.titleColor", d.TitleColor},
		{"defaults.icon.color", d.Icon.Color},
		{"defaults.icon.backgroundColor", d.Icon.BackgroundColor},
	}
	for _, c := range colors {
		if err := validateFieldLength(c.name, c.v, MaxColorLength); err != nil {
			return err
		}
		if !fields.IsSafeCSSValue(c.v) {
			return fmt.Errorf("%w: %s %q", ErrInvalidValue, c.name, c.v)
		}
	}
	return nil
}

// validateFieldLength checks if a field exceeds its maximum allowed length.
func validateFieldLength(fieldName, value string, maxLength int) error {
	if len(value) > maxLength {
		return fmt.Errorf("%w: %s (%d chars, max %d)", ErrFieldTooLong, fieldName, len(value), maxLength)
	}
	return nil
}

func validateDuration(fieldName string, d, maxDuration time.Duration) error {
	if d < 0 || d > maxDuration {
		return fmt.Errorf("%w: %s must be between 0 and %s, got %s", ErrOutOfRange, fieldName, maxDuration, d)
	}
	return nil
}

// Load loads settings from a file path or config name.
// If nameOrPath contains a path separator, it's treated as a file path.
// Otherwise, it's treated as a config name and searched in standard locations.
// Keys absent from the file keep their defaults. Unknown keys are rejected.
// Returns error if the file is not found (no silent fallback).
func Load(nameOrPath string) (*Settings, error) {
	if nameOrPath == "" {
		return nil, ErrEmptyConfigName
	}

	var configPath string
	var err error

	if fileutil.IsFilePath(nameOrPath) {
		configPath = nameOrPath
	} else {
		configPath, err = resolveConfigPath(nameOrPath)
		if err != nil {
			return nil, err
		}
	}

	data, err := os.ReadFile(configPath) // #nosec G304 -- config path is user-provided
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, configPath)
		}
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return Parse(data)
}

// Parse decodes settings from YAML over the defaults and validates them.
// An empty document yields the defaults.
func Parse(data []byte) (*Settings, error) {
	s := DefaultSettings()
	if len(bytes.TrimSpace(data)) == 0 {
		return s, nil
	}
	if err := yamlutil.UnmarshalStrict(data, s); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfigParse, err)
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}

	return s, nil
}

// Save validates s and writes it to path as YAML.
func (s *Settings) Save(path string) error {
	if err := s.Validate(); err != nil {
		return err
	}
	data, err := yamlutil.Marshal(s)
	if err != nil {
		return fmt.Errorf("encoding settings: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return fmt.Errorf("creating config directory: %w", err)
		}
	}
	if err := fileutil.WriteFileAtomic(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

// resolveConfigPath searches for a config file by name in standard locations.
// Tries extensions in order: .yaml, .yml
// Tries locations in order: current directory, ~/.config/go-mdbanner/
func resolveConfigPath(name string) (string, error) {
	extensions := []string{".yaml", ".yml"}
	triedPaths := make([]string, 0, len(extensions)*2) // 2 locations

	for _, ext := range extensions {
		localPath := name + ext
		if fileutil.FileExists(localPath) {
			return localPath, nil
		}
		triedPaths = append(triedPaths, localPath)
	}

	userConfigDir, err := os.UserConfigDir()
	if err == nil {
		for _, ext := range extensions {
			userPath := filepath.Join(userConfigDir, "go-mdbanner", name+ext)
			if fileutil.FileExists(userPath) {
				return userPath, nil
			}
			triedPaths = append(triedPaths, userPath)
		}
	}

	return "", fmt.Errorf("%w: tried %s", ErrConfigNotFound, strings.Join(triedPaths, ", "))
}
