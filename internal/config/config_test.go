package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alnah/go-mdbanner/internal/assets"
	"github.com/alnah/go-mdbanner/internal/fields"
)

// ---------------------------------------------------------------------------
// TestDefaultSettings - built-in values round-trip to banner defaults
// ---------------------------------------------------------------------------

func TestDefaultSettings(t *testing.T) {
	t.Parallel()

	s := DefaultSettings()
	if err := s.Validate(); err != nil {
		t.Fatalf("DefaultSettings().Validate() error = %v", err)
	}
	if got, want := s.Defaults.BannerConfig(), fields.DefaultBannerConfig(); got != want {
		t.Errorf("Defaults.BannerConfig() = %+v, want %+v", got, want)
	}
	if s.Style != "default" {
		t.Errorf("Style = %q, want default", s.Style)
	}
	if s.Sync.MetadataDelay != 100*time.Millisecond || s.Sync.ResizeDelay != 100*time.Millisecond {
		t.Errorf("Sync = %+v, want 100ms windows", s.Sync)
	}
	if s.Shuffle.PersistKey != "" {
		t.Errorf("Shuffle.PersistKey = %q, want empty", s.Shuffle.PersistKey)
	}
}

func TestValidateFieldLength(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		value     string
		maxLength int
		wantErr   bool
	}{
		{name: "empty value is valid", value: "", maxLength: 10},
		{name: "value at limit is valid", value: "1234567890", maxLength: 10},
		{name: "value over limit returns error", value: "12345678901", maxLength: 10, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := validateFieldLength("test.field", tt.value, tt.maxLength)
			if tt.wantErr != errors.Is(err, ErrFieldTooLong) {
				t.Errorf("validateFieldLength() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// TestSettings_Validate - ranges, enums, aliases
// ---------------------------------------------------------------------------

func TestSettings_Validate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		mutate  func(*Settings)
		wantErr error
	}{
		{
			name:   "defaults are valid",
			mutate: func(*Settings) {},
		},
		{
			name:    "height above range",
			mutate:  func(s *Settings) { s.Defaults.Height = 5000 },
			wantErr: ErrOutOfRange,
		},
		{
			name:    "negative x position",
			mutate:  func(s *Settings) { s.Defaults.XPosition = -1 },
			wantErr: ErrOutOfRange,
		},
		{
			name:    "icon size below range",
			mutate:  func(s *Settings) { s.Defaults.Icon.Size = 1 },
			wantErr: ErrOutOfRange,
		},
		{
			name:    "unknown display",
			mutate:  func(s *Settings) { s.Defaults.Display = "stretch" },
			wantErr: ErrInvalidValue,
		},
		{
			name:    "unknown alignment",
			mutate:  func(s *Settings) { s.Defaults.Alignment = "middle" },
			wantErr: ErrInvalidValue,
		},
		{
			name:    "unsafe title color",
			mutate:  func(s *Settings) { s.Defaults.TitleColor = "red; display: none" },
			wantErr: ErrInvalidValue,
		},
		{
			name: "alias shared by two properties",
			mutate: func(s *Settings) {
				s.Aliases = map[string][]string{"source": {"cover"}, "icon": {"cover"}}
			},
			wantErr: fields.ErrConfigurationConflict,
		},
		{
			name:    "alias for unknown property",
			mutate:  func(s *Settings) { s.Aliases = map[string][]string{"glow": {"glow"}} },
			wantErr: fields.ErrUnknownProperty,
		},
		{
			name:   "custom aliases",
			mutate: func(s *Settings) { s.Aliases = map[string][]string{"source": {"cover", "banner"}} },
		},
		{
			name:    "style with dots",
			mutate:  func(s *Settings) { s.Style = "..x" },
			wantErr: assets.ErrInvalidAssetName,
		},
		{
			name:    "debounce too long",
			mutate:  func(s *Settings) { s.Sync.MetadataDelay = time.Minute },
			wantErr: ErrOutOfRange,
		},
		{
			name:    "negative resize delay",
			mutate:  func(s *Settings) { s.Sync.ResizeDelay = -time.Millisecond },
			wantErr: ErrOutOfRange,
		},
		{
			name:    "fetch limit too large",
			mutate:  func(s *Settings) { s.Fetch.MaxBytes = MaxFetchBytes + 1 },
			wantErr: ErrOutOfRange,
		},
		{
			name:    "persist key with colon",
			mutate:  func(s *Settings) { s.Shuffle.PersistKey = "a:b" },
			wantErr: ErrInvalidValue,
		},
		{
			name:    "keyword without URLs",
			mutate:  func(s *Settings) { s.Keywords = map[string][]string{"sea": nil} },
			wantErr: ErrInvalidValue,
		},
		{
			name:    "agent too long",
			mutate:  func(s *Settings) { s.Fetch.UserAgent = strings.Repeat("a", MaxAgentLength+1) },
			wantErr: ErrFieldTooLong,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := DefaultSettings()
			tt.mutate(s)
			err := s.Validate()

			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("Validate() error = %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSettings_Validate_Logging(t *testing.T) {
	t.Parallel()

	s := DefaultSettings()
	s.Logging.Level = "verbose"
	if err := s.Validate(); err == nil {
		t.Error("Validate() accepted unknown log level")
	}

	s = DefaultSettings()
	s.Logging.Format = "xml"
	if err := s.Validate(); err == nil {
		t.Error("Validate() accepted unknown log format")
	}
}

// ---------------------------------------------------------------------------
// TestSettings_FieldResolver - aliases and defaults reach the resolver
// ---------------------------------------------------------------------------

func TestSettings_FieldResolver(t *testing.T) {
	t.Parallel()

	s := DefaultSettings()
	s.Aliases = map[string][]string{"source": {"cover"}}
	s.Defaults.Height = 200

	r, err := s.FieldResolver()
	if err != nil {
		t.Fatal(err)
	}

	cfg := r.Resolve(map[string]any{"cover": "https://example.com/a.png", "banner": "ignored.png"})
	if cfg.Source != "https://example.com/a.png" {
		t.Errorf("Source = %q, want the cover alias value", cfg.Source)
	}
	if cfg.Height != 200 {
		t.Errorf("Height = %v, want 200", cfg.Height)
	}
	if got := r.Aliases().Primary(fields.Source); got != "cover" {
		t.Errorf("Primary(Source) = %q, want cover", got)
	}
}

// ---------------------------------------------------------------------------
// TestLoad - file lookup, strict decoding, defaults preserved
// ---------------------------------------------------------------------------

func TestLoad(t *testing.T) {
	t.Parallel()

	t.Run("empty name returns ErrEmptyConfigName", func(t *testing.T) {
		t.Parallel()

		if _, err := Load(""); !errors.Is(err, ErrEmptyConfigName) {
			t.Errorf("Load(\"\") error = %v, want ErrEmptyConfigName", err)
		}
	})

	t.Run("partial file keeps defaults", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "banner.yaml")
		content := `defaults:
  height: 250
  icon:
    size: 40
shuffle:
  folder: pics
  persistKey: banner-pick
sync:
  metadataDelay: 250ms
logging:
  level: debug
`
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}

		s, err := Load(path)
		if err != nil {
			t.Fatalf("Load() error = %v", err)
		}
		if s.Defaults.Height != 250 || s.Defaults.Icon.Size != 40 {
			t.Errorf("Defaults = %+v", s.Defaults)
		}
		if s.Defaults.Fade != -75 || s.Defaults.Icon.Opacity != 100 {
			t.Errorf("unset defaults lost: %+v", s.Defaults)
		}
		if s.Shuffle.Folder != "pics" || s.Shuffle.PersistKey != "banner-pick" {
			t.Errorf("Shuffle = %+v", s.Shuffle)
		}
		if s.Sync.MetadataDelay != 250*time.Millisecond || s.Sync.ResizeDelay != 100*time.Millisecond {
			t.Errorf("Sync = %+v", s.Sync)
		}
		if s.Logging.Level != "debug" {
			t.Errorf("Logging.Level = %q", s.Logging.Level)
		}
	})

	t.Run("unknown key rejected", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "bad.yaml")
		if err := os.WriteFile(path, []byte("bannerz: true\n"), 0o600); err != nil {
			t.Fatal(err)
		}
		if _, err := Load(path); !errors.Is(err, ErrConfigParse) {
			t.Errorf("Load() error = %v, want ErrConfigParse", err)
		}
	})

	t.Run("alias conflict rejected", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "conflict.yaml")
		content := "aliases:\n  source: [cover]\n  icon: [cover]\n"
		if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
			t.Fatal(err)
		}
		if _, err := Load(path); !errors.Is(err, fields.ErrConfigurationConflict) {
			t.Errorf("Load() error = %v, want ErrConfigurationConflict", err)
		}
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()

		if _, err := Load(filepath.Join(t.TempDir(), "absent.yaml")); !errors.Is(err, ErrConfigNotFound) {
			t.Errorf("Load() error = %v, want ErrConfigNotFound", err)
		}
	})

	t.Run("missing name", func(t *testing.T) {
		t.Parallel()

		_, err := Load("no-such-config-xyz")
		if !errors.Is(err, ErrConfigNotFound) {
			t.Errorf("Load() error = %v, want ErrConfigNotFound", err)
		}
	})
}

func TestParse_Empty(t *testing.T) {
	t.Parallel()

	s, err := Parse([]byte("  \n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if s.Defaults.Height != 350 {
		t.Errorf("Defaults.Height = %v, want 350", s.Defaults.Height)
	}
}

// ---------------------------------------------------------------------------
// TestSettings_Save - written files load back
// ---------------------------------------------------------------------------

func TestSettings_Save(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "nested", "banner.yaml")

	s := DefaultSettings()
	s.Defaults.Height = 420
	s.Aliases = map[string][]string{"source": {"cover"}}
	s.Keywords = map[string][]string{"sea": {"https://example.com/sea.png"}}
	s.Sync.ResizeDelay = 50 * time.Millisecond

	if err := s.Save(path); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if got.Defaults != s.Defaults {
		t.Errorf("Defaults = %+v, want %+v", got.Defaults, s.Defaults)
	}
	if got.Sync != s.Sync {
		t.Errorf("Sync = %+v, want %+v", got.Sync, s.Sync)
	}
	if len(got.Aliases["source"]) != 1 || got.Keywords["sea"][0] != "https://example.com/sea.png" {
		t.Errorf("maps not preserved: %+v %+v", got.Aliases, got.Keywords)
	}
}

func TestSettings_Save_Invalid(t *testing.T) {
	t.Parallel()

	s := DefaultSettings()
	s.Defaults.Height = -1
	path := filepath.Join(t.TempDir(), "banner.yaml")
	if err := s.Save(path); !errors.Is(err, ErrOutOfRange) {
		t.Errorf("Save() error = %v, want ErrOutOfRange", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Error("Save() wrote an invalid file")
	}
}
