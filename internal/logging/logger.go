// Package logging builds the zap logger used by the command line tool.
package logging

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Levels.
const (
	LevelNone   = "none"
	LevelNormal = "normal"
	LevelDebug  = "debug"
)

// Formats.
const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

var (
	ErrUnknownLevel  = errors.New("unknown log level")
	ErrUnknownFormat = errors.New("unknown log format")
)

// Config selects verbosity and encoding. Output defaults to stderr so
// rendered documents written to stdout stay clean.
type Config struct {
	Level  string
	Format string
	Output io.Writer
}

// ValidateLevel reports whether level is one of none, normal or debug.
// The empty string means normal.
func ValidateLevel(level string) error {
	switch strings.ToLower(level) {
	case "", LevelNone, LevelNormal, LevelDebug:
		return nil
	}
	return fmt.Errorf("%w: %q (want none, normal or debug)", ErrUnknownLevel, level)
}

// ValidateFormat reports whether format is console or json. The empty
// string means console.
func ValidateFormat(format string) error {
	switch strings.ToLower(format) {
	case "", FormatConsole, FormatJSON:
		return nil
	}
	return fmt.Errorf("%w: %q (want console or json)", ErrUnknownFormat, format)
}

// New builds a logger. Level "none" returns a no-op logger.
func New(cfg Config) (*zap.Logger, error) {
	if err := ValidateLevel(cfg.Level); err != nil {
		return nil, err
	}
	if err := ValidateFormat(cfg.Format); err != nil {
		return nil, err
	}

	var min zapcore.Level
	switch strings.ToLower(cfg.Level) {
	case LevelNone:
		return zap.NewNop(), nil
	case LevelDebug:
		min = zapcore.DebugLevel
	default:
		min = zapcore.InfoLevel
	}

	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}

	var enc zapcore.Encoder
	if strings.ToLower(cfg.Format) == FormatJSON {
		ec := zap.NewProductionEncoderConfig()
		ec.TimeKey = "ts"
		ec.EncodeTime = zapcore.ISO8601TimeEncoder
		enc = zapcore.NewJSONEncoder(ec)
	} else {
		ec := zap.NewDevelopmentEncoderConfig()
		ec.EncodeCaller = nil
		ec.EncodeLevel = zapcore.CapitalLevelEncoder
		if min > zapcore.DebugLevel {
			ec.TimeKey = zapcore.OmitKey
		}
		enc = zapcore.NewConsoleEncoder(ec)
	}

	core := zapcore.NewCore(enc, zapcore.Lock(zapcore.AddSync(out)), min)
	opts := []zap.Option{zap.ErrorOutput(zapcore.Lock(zapcore.AddSync(out)))}
	if min == zapcore.DebugLevel {
		opts = append(opts, zap.AddCaller())
	}
	return zap.New(core, opts...), nil
}
