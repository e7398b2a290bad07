// Package vault reads and writes Markdown notes stored in a directory tree.
//
// Notes are addressed by their vault-relative, slash-separated path
// ("trips/iceland.md"). Every path handed to the vault is checked to stay
// inside the vault root, symlinks included.
package vault

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/alnah/go-mdbanner/internal/fileutil"
	"github.com/alnah/go-mdbanner/internal/source"
	"github.com/alnah/go-mdbanner/internal/yamlutil"
)

// Sentinel errors.
var (
	// ErrNotFound matches fs.ErrNotExist so callers outside the package
	// can test for it without importing vault.
	ErrNotFound       = fmt.Errorf("vault: not found: %w", fs.ErrNotExist)
	ErrOutsideVault   = errors.New("vault: path escapes vault root")
	ErrInvalidRoot    = errors.New("vault: invalid root directory")
	ErrBadFrontmatter = errors.New("vault: malformed frontmatter")
)

// NoteExt is the extension of note files.
const NoteExt = ".md"

// Vault is a note store rooted at a directory. Safe for concurrent use.
type Vault struct {
	root   string
	logger *zap.Logger

	// writeMu serializes frontmatter rewrites so two writers never
	// interleave read-modify-write cycles on the same vault.
	writeMu sync.Mutex
}

// Option configures a Vault.
type Option func(*Vault)

// WithLogger sets the logger. Default: zap.NewNop().
func WithLogger(l *zap.Logger) Option {
	return func(v *Vault) {
		if l != nil {
			v.logger = l
		}
	}
}

// Open returns a vault rooted at dir.
func Open(dir string, opts ...Option) (*Vault, error) {
	if dir == "" {
		return nil, fmt.Errorf("%w: empty path", ErrInvalidRoot)
	}
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRoot, err)
	}
	if real, err := filepath.EvalSymlinks(abs); err == nil {
		abs = real
	}
	if !fileutil.DirExists(abs) {
		return nil, fmt.Errorf("%w: not a directory: %s", ErrInvalidRoot, abs)
	}

	v := &Vault{root: abs, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Root returns the absolute vault root.
func (v *Vault) Root() string {
	return v.root
}

// abs maps a vault-relative path to an absolute one, rejecting escapes.
func (v *Vault) abs(rel string) (string, error) {
	rel = strings.TrimPrefix(filepath.ToSlash(rel), "/")
	p := filepath.Join(v.root, filepath.FromSlash(rel))
	if !fileutil.IsPathUnderDir(p, v.root) {
		return "", fmt.Errorf("%w: %s", ErrOutsideVault, rel)
	}
	if real, err := filepath.EvalSymlinks(p); err == nil && !fileutil.IsPathUnderDir(real, v.root) {
		return "", fmt.Errorf("%w: %s (symlink)", ErrOutsideVault, rel)
	}
	return p, nil
}

// rel maps an absolute path under the root to its vault-relative form.
func (v *Vault) rel(abs string) string {
	r, err := filepath.Rel(v.root, abs)
	if err != nil {
		return filepath.ToSlash(abs)
	}
	return filepath.ToSlash(r)
}

func (v *Vault) read(doc string) ([]byte, error) {
	p, err := v.abs(doc)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(p) // #nosec G304 -- containment checked in abs
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, doc)
		}
		return nil, fmt.Errorf("vault: read %s: %w", doc, err)
	}
	return data, nil
}

// ReadMetadata returns the frontmatter of doc as a map. A note without
// frontmatter yields an empty, non-nil map.
func (v *Vault) ReadMetadata(doc string) (map[string]any, error) {
	data, err := v.read(doc)
	if err != nil {
		return nil, err
	}
	fm, _, ok := splitFrontmatter(data)
	if !ok {
		return map[string]any{}, nil
	}
	d, err := yamlutil.ParseDocument(fm)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrBadFrontmatter, doc, err)
	}
	return d.Map(), nil
}

// Body returns the Markdown of doc with its frontmatter removed.
func (v *Vault) Body(doc string) (string, error) {
	data, err := v.read(doc)
	if err != nil {
		return "", err
	}
	_, body, _ := splitFrontmatter(data)
	return string(body), nil
}

// WriteMetadata rewrites the frontmatter of doc through mutate. Key order
// and the note body are preserved. A note without frontmatter gains one.
func (v *Vault) WriteMetadata(doc string, mutate func(*yamlutil.Document) error) error {
	v.writeMu.Lock()
	defer v.writeMu.Unlock()

	p, err := v.abs(doc)
	if err != nil {
		return err
	}
	data, err := v.read(doc)
	if err != nil {
		return err
	}
	info, err := os.Stat(p)
	if err != nil {
		return fmt.Errorf("vault: stat %s: %w", doc, err)
	}

	fm, body, ok := splitFrontmatter(data)
	if !ok {
		fm, body = nil, data
	}
	d, err := yamlutil.ParseDocument(fm)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrBadFrontmatter, doc, err)
	}
	if err := mutate(d); err != nil {
		return err
	}
	out, err := d.Marshal()
	if err != nil {
		return fmt.Errorf("vault: encode frontmatter of %s: %w", doc, err)
	}

	if err := fileutil.WriteFileAtomic(p, joinFrontmatter(out, body), info.Mode().Perm()); err != nil {
		return fmt.Errorf("vault: write %s: %w", doc, err)
	}
	v.logger.Debug("frontmatter written", zap.String("doc", doc))
	return nil
}

// ResolveInternalLink finds the file a link in contextDoc points at.
// Lookup order: relative to the note's folder, then relative to the vault
// root, then by unique base name anywhere in the vault. When several files
// share the base name the shortest path wins (ties broken lexically).
func (v *Vault) ResolveInternalLink(ref, contextDoc string) (string, error) {
	ref = strings.TrimSpace(filepath.ToSlash(ref))
	if ref == "" {
		return "", fmt.Errorf("%w: empty link", ErrNotFound)
	}

	candidates := []string{
		path.Join(path.Dir(filepath.ToSlash(contextDoc)), ref),
		path.Clean(ref),
	}
	for _, c := range candidates {
		p, err := v.abs(c)
		if err != nil {
			if errors.Is(err, ErrOutsideVault) {
				return "", err
			}
			continue
		}
		if fileutil.FileExists(p) {
			return v.rel(p), nil
		}
	}

	if strings.Contains(ref, "/") {
		return "", fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	match, err := v.findByName(ref)
	if err != nil {
		return "", err
	}
	if match == "" {
		return "", fmt.Errorf("%w: %s", ErrNotFound, ref)
	}
	return match, nil
}

func (v *Vault) findByName(name string) (string, error) {
	var matches []string
	err := filepath.WalkDir(v.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			if p != v.root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if d.Name() == name {
			matches = append(matches, v.rel(p))
		}
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("vault: walk: %w", err)
	}
	if len(matches) == 0 {
		return "", nil
	}
	slices.SortFunc(matches, func(a, b string) int {
		if len(a) != len(b) {
			return len(a) - len(b)
		}
		return strings.Compare(a, b)
	})
	return matches[0], nil
}

// ReadBinary returns the bytes of a vault file.
func (v *Vault) ReadBinary(rel string) ([]byte, error) {
	return v.read(rel)
}

// DisplayablePath returns a URL a view can load the vault file from.
func (v *Vault) DisplayablePath(rel string) string {
	p, err := v.abs(rel)
	if err != nil {
		return ""
	}
	return fileutil.PathToFileURL(p)
}

// ListImages returns the vault-relative paths of the images directly inside
// folder (not recursive), sorted.
func (v *Vault) ListImages(folder string) ([]string, error) {
	p, err := v.abs(folder)
	if err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: folder %s", ErrNotFound, folder)
		}
		return nil, fmt.Errorf("vault: list %s: %w", folder, err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !source.IsImageExt(e.Name()) {
			continue
		}
		out = append(out, v.rel(filepath.Join(p, e.Name())))
	}
	return out, nil
}

// ListNotes returns every note in the vault, sorted. Hidden folders are skipped.
func (v *Vault) ListNotes() ([]string, error) {
	var out []string
	err := filepath.WalkDir(v.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if p != v.root && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		if strings.EqualFold(filepath.Ext(d.Name()), NoteExt) {
			out = append(out, v.rel(p))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("vault: walk: %w", err)
	}
	slices.Sort(out)
	return out, nil
}
