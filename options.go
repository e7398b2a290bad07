package mdbanner

import (
	"context"
	"math/rand/v2"
	"time"

	"go.uber.org/zap"

	"github.com/alnah/go-mdbanner/internal/config"
	"github.com/alnah/go-mdbanner/internal/viewsync"
)

// Settings holds every user-tunable option. See DefaultSettings and
// LoadSettings.
type Settings = config.Settings

// ViewState is a snapshot of one view's banner.
type ViewState = viewsync.ViewState

// Clock schedules debounced work. Tests inject a fake one.
type Clock = viewsync.Clock

// DefaultSettings returns the built-in settings.
func DefaultSettings() *Settings {
	return config.DefaultSettings()
}

// LoadSettings loads settings from a YAML file path or a config name
// searched in the current directory and ~/.config/go-mdbanner/.
func LoadSettings(nameOrPath string) (*Settings, error) {
	return config.Load(nameOrPath)
}

// Fetcher downloads remote banner images.
type Fetcher interface {
	// Fetch returns the body and the declared content type of url.
	Fetch(ctx context.Context, url string) ([]byte, string, error)
}

// SearchProvider maps a keyword banner to candidate image URLs.
type SearchProvider interface {
	Search(ctx context.Context, keyword string) ([]string, error)
}

// Option configures an Engine.
type Option func(*Engine)

// engineConfig holds internal configuration for Engine.
type engineConfig struct {
	settings *config.Settings
	logger   *zap.Logger
	fetcher  Fetcher
	search   SearchProvider
	clock    Clock
	rand     *rand.Rand
	timeout  time.Duration
	userCSS  string
	page     PageSize
}

// defaultTimeout bounds PDF page loads when the context has no deadline.
const defaultTimeout = 30 * time.Second

// WithSettings replaces the default settings. A nil value is ignored.
func WithSettings(s *Settings) Option {
	return func(e *Engine) {
		if s != nil {
			e.cfg.settings = s
		}
	}
}

// WithLogger sets the logger. Default: zap.NewNop().
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.cfg.logger = l
		}
	}
}

// WithFetcher replaces the HTTP image fetcher.
func WithFetcher(f Fetcher) Option {
	return func(e *Engine) {
		e.cfg.fetcher = f
	}
}

// WithSearchProvider sets the keyword image search. It takes precedence
// over the keywords section of the settings.
func WithSearchProvider(p SearchProvider) Option {
	return func(e *Engine) {
		e.cfg.search = p
	}
}

// WithClock replaces the clock used for debouncing.
func WithClock(c Clock) Option {
	return func(e *Engine) {
		e.cfg.clock = c
	}
}

// WithRand sets the source of shuffle picks.
func WithRand(r *rand.Rand) Option {
	return func(e *Engine) {
		e.cfg.rand = r
	}
}

// WithTimeout sets the PDF export timeout.
// Panics if d <= 0 (programmer error).
func WithTimeout(d time.Duration) Option {
	if d <= 0 {
		panic("mdbanner: WithTimeout duration must be positive")
	}
	return func(e *Engine) {
		e.cfg.timeout = d
	}
}

// WithCSS appends CSS after the configured style.
func WithCSS(css string) Option {
	return func(e *Engine) {
		e.cfg.userCSS = css
	}
}

// WithPageSize sets the PDF paper size. Default: PageLetter.
func WithPageSize(p PageSize) Option {
	return func(e *Engine) {
		e.cfg.page = p
	}
}
