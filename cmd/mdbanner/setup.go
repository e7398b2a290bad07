package main

import (
	"errors"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	mdbanner "github.com/alnah/go-mdbanner"
	"github.com/alnah/go-mdbanner/internal/logging"
	"github.com/alnah/go-mdbanner/internal/yamlutil"
)

// defaultTimeout bounds the work done for one note or one request.
const defaultTimeout = 30 * time.Second

// Sentinel errors for CLI setup.
var (
	ErrInvalidTimeout = errors.New("invalid timeout")
	ErrKeywordMap     = errors.New("failed to read keyword map")
)

// loadSettings builds settings with the priority
// flags > environment > config file > defaults.
func loadSettings(common *commonFlags, sf *settingsFlags, env *envConfig) (*mdbanner.Settings, error) {
	s := mdbanner.DefaultSettings()
	if name := pick(common.config, env.ConfigPath); name != "" {
		loaded, err := mdbanner.LoadSettings(name)
		if err != nil {
			return nil, fmt.Errorf("loading config: %w", err)
		}
		s = loaded
	}

	if v := pick(sf.style, env.Style); v != "" {
		s.Style = v
	}
	if sf.assetPath != "" {
		s.Assets.BasePath = sf.assetPath
	}
	if sf.height > 0 {
		s.Defaults.Height = sf.height
	}
	if path := pick(sf.keywordMap, env.KeywordMap); path != "" {
		kw, err := loadKeywordMap(path)
		if err != nil {
			return nil, err
		}
		if s.Keywords == nil {
			s.Keywords = make(map[string][]string, len(kw))
		}
		for k, urls := range kw {
			s.Keywords[k] = urls
		}
	}

	switch {
	case common.logLevel != "":
		s.Logging.Level = common.logLevel
	case common.verbose:
		s.Logging.Level = logging.LevelDebug
	case env.LogLevel != "":
		s.Logging.Level = env.LogLevel
	}
	if v := pick(common.logFormat, env.LogFormat); v != "" {
		s.Logging.Format = v
	}

	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// loadKeywordMap reads a YAML table of keyword -> image URLs.
func loadKeywordMap(path string) (map[string][]string, error) {
	data, err := os.ReadFile(path) // #nosec G304 -- user-provided path
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrKeywordMap, err)
	}
	var kw map[string][]string
	if err := yamlutil.UnmarshalStrict(data, &kw); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrKeywordMap, path, err)
	}
	return kw, nil
}

// newLogger builds the CLI logger. Logs go to stderr so stdout stays
// usable for command output.
func newLogger(s *mdbanner.Settings, env *Environment) (*zap.Logger, error) {
	return logging.New(logging.Config{
		Level:  s.Logging.Level,
		Format: s.Logging.Format,
		Output: env.Stderr,
	})
}

// resolveTimeout parses the timeout flag, falling back to the environment
// then to defaultTimeout.
func resolveTimeout(flagValue string, env *envConfig) (time.Duration, error) {
	if flagValue != "" {
		d, err := time.ParseDuration(flagValue)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidTimeout, flagValue)
		}
		if d <= 0 {
			return 0, fmt.Errorf("%w: %q (must be positive)", ErrInvalidTimeout, flagValue)
		}
		return d, nil
	}
	if env.Timeout > 0 {
		return env.Timeout, nil
	}
	return defaultTimeout, nil
}

// vaultDir returns the vault to open, defaulting to the working directory.
func vaultDir(common *commonFlags, env *envConfig) string {
	if dir := pick(common.vault, env.Vault); dir != "" {
		return dir
	}
	return "."
}

// openEngine loads settings, builds the logger and opens the vault.
// The caller owns the returned engine and logger.
func openEngine(common *commonFlags, sf *settingsFlags, env *envConfig, cli *Environment, opts ...mdbanner.Option) (*mdbanner.Engine, *zap.Logger, error) {
	s, err := loadSettings(common, sf, env)
	if err != nil {
		return nil, nil, err
	}
	logger, err := newLogger(s, cli)
	if err != nil {
		return nil, nil, err
	}

	base := []mdbanner.Option{
		mdbanner.WithSettings(s),
		mdbanner.WithLogger(logger),
	}
	eng, err := mdbanner.New(vaultDir(common, env), append(base, opts...)...)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, err
	}
	return eng, logger, nil
}
