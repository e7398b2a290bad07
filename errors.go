package mdbanner

import (
	"errors"

	"github.com/alnah/go-mdbanner/internal/assets"
	"github.com/alnah/go-mdbanner/internal/fields"
	"github.com/alnah/go-mdbanner/internal/resolver"
	"github.com/alnah/go-mdbanner/internal/vault"
	"github.com/alnah/go-mdbanner/internal/viewsync"
)

// Sentinel errors for library operations. Errors returned by Engine
// methods wrap one of them; match with errors.Is.
var (
	// Settings errors.
	ErrConfigurationConflict = fields.ErrConfigurationConflict
	ErrInvalidAssetPath      = errors.New("invalid asset path")
	ErrStyleNotFound         = assets.ErrStyleNotFound

	// Banner resolution errors. Views carry them as error classes rather
	// than returning them; see ViewState.ErrorClass.
	ErrNotFound         = resolver.ErrNotFound
	ErrUnsupportedType  = resolver.ErrUnsupportedType
	ErrFetchFailed      = resolver.ErrFetchFailed
	ErrDecodeFailed     = resolver.ErrDecodeFailed
	ErrNoSearchProvider = resolver.ErrNoSearchProvider

	// Vault errors.
	ErrInvalidVault = vault.ErrInvalidRoot
	ErrNoteNotFound = vault.ErrNotFound
	ErrOutsideVault = vault.ErrOutsideVault

	// View lifecycle errors.
	ErrViewNotFound = viewsync.ErrViewNotFound
	ErrEngineClosed = errors.New("engine closed")

	// Export errors.
	ErrPDFGeneration   = errors.New("PDF generation failed")
	ErrBrowserConnect  = errors.New("failed to connect to browser")
	ErrPageCreate      = errors.New("failed to create browser page")
	ErrPageLoad        = errors.New("failed to load page")
	ErrInvalidPageSize = errors.New("invalid page size")
)
