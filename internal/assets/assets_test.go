package assets

import (
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
)

// ---------------------------------------------------------------------------
// TestEmbeddedLoader_LoadStyle - built-in styles
// ---------------------------------------------------------------------------

func TestEmbeddedLoader_LoadStyle(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		style   string
		wantErr error
	}{
		{name: "default", style: "default"},
		{name: "minimal", style: "minimal"},
		{name: "missing", style: "nonexistent-xyz", wantErr: ErrStyleNotFound},
		{name: "empty name", style: "", wantErr: ErrInvalidAssetName},
		{name: "traversal", style: "../default", wantErr: ErrInvalidAssetName},
		{name: "extension", style: "default.css", wantErr: ErrInvalidAssetName},
		{name: "backslash", style: `a\b`, wantErr: ErrInvalidAssetName},
	}

	loader := NewEmbeddedLoader()

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := loader.LoadStyle(tt.style)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("LoadStyle(%q) error = %v, want %v", tt.style, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("LoadStyle(%q) error = %v", tt.style, err)
			}
			for _, class := range []string{".mdbanner", ".mdbanner-icon", ".mdbanner-error"} {
				if !strings.Contains(got, class+" {") {
					t.Errorf("style %q missing rule for %s", tt.style, class)
				}
			}
		})
	}
}

func TestEmbeddedLoader_Names(t *testing.T) {
	t.Parallel()

	got := NewEmbeddedLoader().Names()
	want := []string{"default", "minimal"}
	if strings.Join(got, ",") != strings.Join(want, ",") {
		t.Errorf("Names() = %v, want %v", got, want)
	}
}

func TestLoadStyle_Default(t *testing.T) {
	t.Parallel()

	if _, err := LoadStyle(DefaultStyleName); err != nil {
		t.Errorf("LoadStyle(%q) error = %v", DefaultStyleName, err)
	}
}

// ---------------------------------------------------------------------------
// TestNewFilesystemLoader - base path validation
// ---------------------------------------------------------------------------

func TestNewFilesystemLoader(t *testing.T) {
	t.Parallel()

	file := filepath.Join(t.TempDir(), "file.txt")
	if err := os.WriteFile(file, []byte("x"), 0o600); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name    string
		path    string
		wantErr bool
	}{
		{name: "directory", path: t.TempDir()},
		{name: "empty", path: "", wantErr: true},
		{name: "missing", path: "/nonexistent/path/abc123xyz", wantErr: true},
		{name: "file", path: file, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := NewFilesystemLoader(tt.path)
			if tt.wantErr {
				if !errors.Is(err, ErrInvalidBasePath) {
					t.Errorf("NewFilesystemLoader(%q) error = %v, want ErrInvalidBasePath", tt.path, err)
				}
				return
			}
			if err != nil {
				t.Errorf("NewFilesystemLoader(%q) error = %v", tt.path, err)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// TestFilesystemLoader_LoadStyle - custom styles and containment
// ---------------------------------------------------------------------------

func writeStyle(t *testing.T, dir, name, content string) {
	t.Helper()
	stylesDir := filepath.Join(dir, "styles")
	if err := os.MkdirAll(stylesDir, 0o750); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(stylesDir, name+".css"), []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
}

func TestFilesystemLoader_LoadStyle(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeStyle(t, dir, "brand", ".mdbanner { height: 1px; }")

	loader, err := NewFilesystemLoader(dir)
	if err != nil {
		t.Fatal(err)
	}

	got, err := loader.LoadStyle("brand")
	if err != nil {
		t.Fatalf("LoadStyle() error = %v", err)
	}
	if got != ".mdbanner { height: 1px; }" {
		t.Errorf("LoadStyle() = %q", got)
	}

	if _, err := loader.LoadStyle("absent"); !errors.Is(err, ErrStyleNotFound) {
		t.Errorf("LoadStyle(absent) error = %v, want ErrStyleNotFound", err)
	}
}

func TestFilesystemLoader_SymlinkEscape(t *testing.T) {
	t.Parallel()

	if runtime.GOOS == "windows" {
		t.Skip("symlinks need privileges on windows")
	}

	outside := t.TempDir()
	writeStyle(t, outside, "secret", "body{}")

	dir := t.TempDir()
	if err := os.MkdirAll(filepath.Join(dir, "styles"), 0o750); err != nil {
		t.Fatal(err)
	}
	link := filepath.Join(dir, "styles", "leak.css")
	if err := os.Symlink(filepath.Join(outside, "styles", "secret.css"), link); err != nil {
		t.Fatal(err)
	}

	loader, err := NewFilesystemLoader(dir)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := loader.LoadStyle("leak"); !errors.Is(err, ErrPathTraversal) {
		t.Errorf("LoadStyle(leak) error = %v, want ErrPathTraversal", err)
	}
}

// ---------------------------------------------------------------------------
// TestStyleResolver - custom first, embedded fallback
// ---------------------------------------------------------------------------

func TestStyleResolver(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	writeStyle(t, dir, "default", "/* overridden */")
	writeStyle(t, dir, "brand", "/* brand */")

	custom, err := NewStyleResolver(dir)
	if err != nil {
		t.Fatal(err)
	}
	embedded, err := NewStyleResolver("")
	if err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		name     string
		resolver *StyleResolver
		style    string
		want     string
		wantErr  error
	}{
		{name: "custom overrides embedded", resolver: custom, style: "default", want: "/* overridden */"},
		{name: "custom only", resolver: custom, style: "brand", want: "/* brand */"},
		{name: "falls back to embedded", resolver: custom, style: "minimal", want: ".mdbanner-error"},
		{name: "embedded only", resolver: embedded, style: "brand", wantErr: ErrStyleNotFound},
		{name: "invalid name not masked", resolver: custom, style: "../x", wantErr: ErrInvalidAssetName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			got, err := tt.resolver.LoadStyle(tt.style)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Errorf("LoadStyle(%q) error = %v, want %v", tt.style, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("LoadStyle(%q) error = %v", tt.style, err)
			}
			if !strings.Contains(got, tt.want) {
				t.Errorf("LoadStyle(%q) = %q, want it to contain %q", tt.style, got, tt.want)
			}
		})
	}

	if !custom.HasCustomLoader() || embedded.HasCustomLoader() {
		t.Error("HasCustomLoader() mismatch")
	}
	if _, err := NewStyleResolver("/nonexistent/path/abc123xyz"); !errors.Is(err, ErrInvalidBasePath) {
		t.Errorf("NewStyleResolver(missing) error = %v, want ErrInvalidBasePath", err)
	}
}
