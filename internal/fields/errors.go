package fields

import (
	"errors"
	"fmt"
)

// Sentinel errors for alias table construction.
var (
	// ErrConfigurationConflict indicates the same frontmatter key was assigned
	// to two canonical properties.
	ErrConfigurationConflict = errors.New("alias configuration conflict")

	// ErrInvalidAlias indicates an alias contains characters other than
	// letters, digits, dash and underscore.
	ErrInvalidAlias = errors.New("invalid alias")

	// ErrUnknownProperty indicates a canonical property name is not recognized.
	ErrUnknownProperty = errors.New("unknown banner property")
)

// ConflictError names both properties claiming the same alias.
type ConflictError struct {
	Alias  string
	First  Property
	Second Property
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: alias %q used by both %s and %s",
		ErrConfigurationConflict, e.Alias, e.First, e.Second)
}

// Is reports whether target is ErrConfigurationConflict.
func (e *ConflictError) Is(target error) bool {
	return target == ErrConfigurationConflict
}
