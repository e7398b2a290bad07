package fields

import (
	"errors"
	"slices"
	"testing"
)

func TestDefaultAliasTable_NoConflicts(t *testing.T) {
	t.Parallel()

	table := DefaultAliasTable()
	for _, p := range AllProperties() {
		if table.Primary(p) == "" {
			t.Errorf("property %s has no default alias", p)
		}
	}
}

func TestNewAliasTable(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name        string
		custom      map[Property][]string
		wantErr     error
		wantAlias   string
		wantFirst   Property
		wantSecond  Property
		checkPrimry map[Property]string
	}{
		{
			name:        "nil keeps defaults",
			custom:      nil,
			checkPrimry: map[Property]string{Source: "banner", YPosition: "banner-y"},
		},
		{
			name:        "override replaces list",
			custom:      map[Property][]string{Source: {"cover", "banner"}},
			checkPrimry: map[Property]string{Source: "cover"},
		},
		{
			name:        "blank entries dropped",
			custom:      map[Property][]string{Height: {" ", "tall_banner"}},
			checkPrimry: map[Property]string{Height: "tall_banner"},
		},
		{
			name:    "invalid characters",
			custom:  map[Property][]string{Height: {"banner height"}},
			wantErr: ErrInvalidAlias,
		},
		{
			name:    "dot rejected",
			custom:  map[Property][]string{Height: {"banner.height"}},
			wantErr: ErrInvalidAlias,
		},
		{
			name:       "conflict with default alias",
			custom:     map[Property][]string{Height: {"banner"}},
			wantErr:    ErrConfigurationConflict,
			wantAlias:  "banner",
			wantFirst:  Source,
			wantSecond: Height,
		},
		{
			name: "conflict between custom lists",
			custom: map[Property][]string{
				XPosition: {"pos"},
				YPosition: {"pos"},
			},
			wantErr:    ErrConfigurationConflict,
			wantAlias:  "pos",
			wantFirst:  XPosition,
			wantSecond: YPosition,
		},
		{
			name:    "unknown property",
			custom:  map[Property][]string{Property(999): {"whatever"}},
			wantErr: ErrUnknownProperty,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			table, err := NewAliasTable(tt.custom)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("NewAliasTable() error = %v, want %v", err, tt.wantErr)
				}
				if tt.wantAlias != "" {
					var ce *ConflictError
					if !errors.As(err, &ce) {
						t.Fatalf("error %T is not *ConflictError", err)
					}
					if ce.Alias != tt.wantAlias || ce.First != tt.wantFirst || ce.Second != tt.wantSecond {
						t.Errorf("ConflictError = %+v, want alias %q between %s and %s", ce, tt.wantAlias, tt.wantFirst, tt.wantSecond)
					}
				}
				return
			}
			if err != nil {
				t.Fatalf("NewAliasTable() unexpected error = %v", err)
			}
			for p, want := range tt.checkPrimry {
				if got := table.Primary(p); got != want {
					t.Errorf("Primary(%s) = %q, want %q", p, got, want)
				}
			}
		})
	}
}

func TestConflictError_Message(t *testing.T) {
	t.Parallel()

	err := &ConflictError{Alias: "pos", First: XPosition, Second: YPosition}
	want := `alias configuration conflict: alias "pos" used by both xPosition and yPosition`
	if err.Error() != want {
		t.Errorf("Error() = %q, want %q", err.Error(), want)
	}
}

func TestAliasTable_Accessors(t *testing.T) {
	t.Parallel()

	table := DefaultAliasTable()

	aliases := table.Aliases(YPosition)
	aliases[0] = "mutated"
	if table.Primary(YPosition) != "banner-y" {
		t.Error("Aliases() must return a copy")
	}

	keys := table.Keys()
	if !slices.IsSorted(keys) {
		t.Error("Keys() not sorted")
	}
	if !slices.Contains(keys, "pixel-banner") {
		t.Error("Keys() missing pixel-banner")
	}

	m := table.Map()
	if got := m["yPosition"]; len(got) != 2 || got[0] != "banner-y" {
		t.Errorf("Map()[yPosition] = %v", got)
	}
}

func TestParseProperty(t *testing.T) {
	t.Parallel()

	for _, p := range AllProperties() {
		got, err := ParseProperty(p.String())
		if err != nil || got != p {
			t.Errorf("ParseProperty(%q) = %v, %v", p.String(), got, err)
		}
	}

	if p, err := ParseProperty("YPOSITION"); err != nil || p != YPosition {
		t.Errorf("ParseProperty case-insensitive = %v, %v", p, err)
	}
	if _, err := ParseProperty("nope"); !errors.Is(err, ErrUnknownProperty) {
		t.Errorf("ParseProperty(nope) error = %v", err)
	}
}
