package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	mdbanner "github.com/alnah/go-mdbanner"
	"github.com/alnah/go-mdbanner/internal/assets"
	"github.com/alnah/go-mdbanner/internal/config"
	"github.com/alnah/go-mdbanner/internal/hints"
	"github.com/alnah/go-mdbanner/internal/logging"
)

// Exit codes for the mdbanner CLI.
// Follows Unix conventions: 0=success, 1=general, 2=usage, and custom codes < 126.
const (
	ExitSuccess = 0 // All notes processed
	ExitGeneral = 1 // General/unexpected error
	ExitUsage   = 2 // Invalid flags, config, or validation
	ExitIO      = 3 // Vault, note, or output file errors
	ExitBrowser = 4 // Browser/Chrome errors
)

// exitCodeFor returns the appropriate exit code for an error.
// It uses errors.Is to check wrapped errors, so callers must use fmt.Errorf("%w", err).
func exitCodeFor(err error) int {
	if err == nil {
		return ExitSuccess
	}

	// Browser errors (exit 4)
	if errors.Is(err, mdbanner.ErrBrowserConnect) ||
		errors.Is(err, mdbanner.ErrPageCreate) ||
		errors.Is(err, mdbanner.ErrPageLoad) ||
		errors.Is(err, mdbanner.ErrPDFGeneration) {
		return ExitBrowser
	}

	// I/O errors (exit 3)
	if errors.Is(err, os.ErrNotExist) ||
		errors.Is(err, os.ErrPermission) ||
		errors.Is(err, mdbanner.ErrInvalidVault) ||
		errors.Is(err, mdbanner.ErrNoteNotFound) ||
		errors.Is(err, mdbanner.ErrOutsideVault) ||
		errors.Is(err, ErrWriteOutput) ||
		errors.Is(err, ErrKeywordMap) ||
		errors.Is(err, ErrNoNotes) {
		return ExitIO
	}

	// Usage/config/validation errors (exit 2)
	if errors.Is(err, config.ErrConfigNotFound) ||
		errors.Is(err, config.ErrConfigParse) ||
		errors.Is(err, config.ErrEmptyConfigName) ||
		errors.Is(err, config.ErrFieldTooLong) ||
		errors.Is(err, config.ErrOutOfRange) ||
		errors.Is(err, config.ErrInvalidValue) ||
		errors.Is(err, logging.ErrUnknownLevel) ||
		errors.Is(err, logging.ErrUnknownFormat) ||
		errors.Is(err, assets.ErrInvalidAssetName) ||
		errors.Is(err, mdbanner.ErrConfigurationConflict) ||
		errors.Is(err, mdbanner.ErrStyleNotFound) ||
		errors.Is(err, mdbanner.ErrInvalidAssetPath) ||
		errors.Is(err, mdbanner.ErrInvalidPageSize) ||
		errors.Is(err, ErrInvalidWorkerCount) ||
		errors.Is(err, ErrInvalidTimeout) ||
		errors.Is(err, ErrUnknownCommand) {
		return ExitUsage
	}

	return ExitGeneral
}

// formatError renders err with an actionable hint when one applies.
func formatError(err error) string {
	msg := "error: " + err.Error()

	switch {
	case errors.Is(err, mdbanner.ErrBrowserConnect):
		msg += hints.ForBrowserConnect()
	case errors.Is(err, context.DeadlineExceeded):
		msg += hints.ForTimeout()
	case errors.Is(err, config.ErrConfigNotFound):
		msg += hints.ForConfigNotFound(configSearchPaths())
	case errors.Is(err, mdbanner.ErrStyleNotFound):
		msg += hints.ForStyleNotFound(assets.NewEmbeddedLoader().Names())
	case errors.Is(err, mdbanner.ErrConfigurationConflict):
		msg += hints.ForAliasConflict()
	case errors.Is(err, ErrWriteOutput):
		msg += hints.ForOutputDirectory()
	}
	return msg
}

// configSearchPaths lists where a named config is looked up.
func configSearchPaths() []string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return nil
	}
	return []string{filepath.Join(dir, "go-mdbanner", "config.yaml")}
}
