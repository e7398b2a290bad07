package fields

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// aliasPattern restricts alias names to frontmatter-safe keys.
var aliasPattern = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// AliasTable maps each canonical property to its ordered alias list.
// A table can only be obtained from NewAliasTable or DefaultAliasTable,
// so every instance is known to be free of conflicts.
type AliasTable struct {
	aliases [propertyCount][]string
}

// NewAliasTable validates custom alias lists and returns a table.
// Properties absent from custom keep their default aliases; a present
// property replaces its defaults entirely. Aliases are trimmed and empty
// entries dropped. A name claimed by two properties returns a
// *ConflictError; names are compared case-sensitively, as frontmatter keys are.
func NewAliasTable(custom map[Property][]string) (*AliasTable, error) {
	t := &AliasTable{}
	for i := range t.aliases {
		p := Property(i)
		list, ok := custom[p]
		if !ok {
			list = defaultAliases[p]
		}
		cleaned := make([]string, 0, len(list))
		for _, a := range list {
			a = strings.TrimSpace(a)
			if a == "" {
				continue
			}
			if !aliasPattern.MatchString(a) {
				return nil, fmt.Errorf("%w: %q for %s (letters, digits, dash and underscore only)", ErrInvalidAlias, a, p)
			}
			cleaned = append(cleaned, a)
		}
		t.aliases[i] = cleaned
	}

	for p := range custom {
		if p < 0 || p >= propertyCount {
			return nil, fmt.Errorf("%w: %d", ErrUnknownProperty, int(p))
		}
	}

	if err := t.checkConflicts(); err != nil {
		return nil, err
	}
	return t, nil
}

// DefaultAliasTable returns the built-in table.
func DefaultAliasTable() *AliasTable {
	t, err := NewAliasTable(nil)
	if err != nil {
		panic("fields: default alias table is invalid: " + err.Error())
	}
	return t
}

// checkConflicts scans properties in declaration order so the reported
// pair is deterministic.
func (t *AliasTable) checkConflicts() error {
	owner := make(map[string]Property)
	for i, list := range t.aliases {
		p := Property(i)
		for _, a := range list {
			if prev, ok := owner[a]; ok && prev != p {
				return &ConflictError{Alias: a, First: prev, Second: p}
			}
			owner[a] = p
		}
	}
	return nil
}

// Aliases returns a copy of the alias list for p.
func (t *AliasTable) Aliases(p Property) []string {
	if p < 0 || p >= propertyCount {
		return nil
	}
	return append([]string(nil), t.aliases[p]...)
}

// Primary returns the highest-priority alias for p, or "" if none.
func (t *AliasTable) Primary(p Property) string {
	if p < 0 || p >= propertyCount || len(t.aliases[p]) == 0 {
		return ""
	}
	return t.aliases[p][0]
}

// Keys returns every alias across all properties, sorted.
// Used to recognize banner keys when hiding frontmatter from rendered views.
func (t *AliasTable) Keys() []string {
	var keys []string
	for _, list := range t.aliases {
		keys = append(keys, list...)
	}
	sort.Strings(keys)
	return keys
}

// Map returns the table as a plain map, keyed by canonical property name.
func (t *AliasTable) Map() map[string][]string {
	m := make(map[string][]string, propertyCount)
	for i, list := range t.aliases {
		m[Property(i).String()] = append([]string(nil), list...)
	}
	return m
}

// lookup returns the first alias of p present in metadata with a non-empty value.
func (t *AliasTable) lookup(metadata map[string]any, p Property) (any, bool) {
	for _, a := range t.aliases[p] {
		v, ok := metadata[a]
		if !ok || isEmpty(v) {
			continue
		}
		return v, true
	}
	return nil, false
}
