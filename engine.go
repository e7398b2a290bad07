package mdbanner

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/h2non/filetype"
	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/alnah/go-mdbanner/internal/assets"
	"github.com/alnah/go-mdbanner/internal/config"
	"github.com/alnah/go-mdbanner/internal/fileutil"
	"github.com/alnah/go-mdbanner/internal/objecturl"
	"github.com/alnah/go-mdbanner/internal/pipeline"
	"github.com/alnah/go-mdbanner/internal/resolver"
	"github.com/alnah/go-mdbanner/internal/vault"
	"github.com/alnah/go-mdbanner/internal/view"
	"github.com/alnah/go-mdbanner/internal/viewsync"
	"github.com/alnah/go-mdbanner/internal/yamlutil"
)

var (
	_ pipeline.MarkdownPreprocessor = (*pipeline.NotePreprocessor)(nil)
	_ pipeline.HTMLConverter        = (*pipeline.GoldmarkConverter)(nil)
	_ pipeline.CSSInjector          = (*pipeline.CSSInjection)(nil)
	_ viewsync.Notes                = (*vault.Vault)(nil)
	_ viewsync.Images               = (*resolver.Resolver)(nil)
	_ resolver.Store                = (*vault.Vault)(nil)
)

// Engine renders the notes of a vault into views and keeps their banners
// in step with the notes' frontmatter. Create with New, open views with
// OpenView, and Close when done. Safe for concurrent use.
type Engine struct {
	cfg           engineConfig
	vault         *vault.Vault
	images        *resolver.Resolver
	sync          *viewsync.Coordinator
	preprocessor  pipeline.MarkdownPreprocessor
	htmlConverter pipeline.HTMLConverter
	cssInjector   pipeline.CSSInjector

	exportMu sync.Mutex
	exporter PDFExporter

	mu     sync.Mutex
	css    string
	views  map[string]*openView
	closed bool
}

type openView struct {
	doc     string
	surface *view.Surface
}

// New opens the vault rooted at vaultDir and starts the view coordinator.
// Settings are validated; alias collisions return an error matching
// ErrConfigurationConflict.
func New(vaultDir string, opts ...Option) (*Engine, error) {
	e := &Engine{
		cfg: engineConfig{
			settings: config.DefaultSettings(),
			logger:   zap.NewNop(),
			timeout:  defaultTimeout,
			page:     PageLetter,
		},
		preprocessor:  &pipeline.NotePreprocessor{},
		htmlConverter: pipeline.NewGoldmarkConverter(),
		cssInjector:   &pipeline.CSSInjection{},
		views:         make(map[string]*openView),
	}

	for _, opt := range opts {
		opt(e)
	}

	s := e.cfg.settings
	if err := s.Validate(); err != nil {
		return nil, err
	}
	fieldRes, err := s.FieldResolver()
	if err != nil {
		return nil, err
	}

	css, err := e.resolveStyle(s)
	if err != nil {
		return nil, err
	}
	e.css = css

	v, err := vault.Open(vaultDir, vault.WithLogger(e.cfg.logger))
	if err != nil {
		return nil, err
	}
	e.vault = v

	var fetcher resolver.Fetcher = e.cfg.fetcher
	if fetcher == nil {
		fetcher = resolver.NewHTTPFetcher(resolver.HTTPFetcherConfig{
			Timeout:   s.Fetch.Timeout,
			MaxBytes:  s.Fetch.MaxBytes,
			UserAgent: s.Fetch.UserAgent,
			Logger:    e.cfg.logger,
		})
	}
	rcfg := resolver.Config{
		Store:   v,
		Fetcher: fetcher,
		Logger:  e.cfg.logger,
	}
	switch {
	case e.cfg.search != nil:
		rcfg.Search = e.cfg.search
	case len(s.Keywords) > 0:
		rcfg.Search = resolver.StaticSearch(s.Keywords)
	}
	e.images = resolver.New(rcfg)

	e.sync = viewsync.New(viewsync.Options{
		Notes:             v,
		Images:            e.images,
		Fields:            fieldRes,
		Clock:             e.cfg.clock,
		MetadataDelay:     s.Sync.MetadataDelay,
		ResizeDelay:       s.Sync.ResizeDelay,
		ShuffleFolder:     s.Shuffle.Folder,
		ShufflePersistKey: s.Shuffle.PersistKey,
		Rand:              e.cfg.rand,
		Logger:            e.cfg.logger,
	})

	return e, nil
}

// resolveStyle resolves the configured style (name or path) plus any
// user CSS to stylesheet content.
func (e *Engine) resolveStyle(s *config.Settings) (string, error) {
	var css string
	switch input := s.Style; {
	case input == "":
	case strings.Contains(input, "{"):
		css = input
	case fileutil.IsFilePath(input):
		content, err := os.ReadFile(input) // #nosec G304 -- user-provided path
		if err != nil {
			return "", fmt.Errorf("loading style file %q: %w", input, err)
		}
		css = string(content)
	default:
		loader, err := assets.NewStyleResolver(s.Assets.BasePath)
		if err != nil {
			return "", fmt.Errorf("%w: %v", ErrInvalidAssetPath, err)
		}
		css, err = loader.LoadStyle(input)
		if err != nil {
			return "", fmt.Errorf("loading style %q: %w", input, err)
		}
	}
	if e.cfg.userCSS != "" {
		css += "\n" + e.cfg.userCSS
	}
	return css, nil
}

// Root returns the absolute vault directory.
func (e *Engine) Root() string {
	return e.vault.Root()
}

// Notes lists the vault's notes, sorted.
func (e *Engine) Notes() ([]string, error) {
	return e.vault.ListNotes()
}

// Settings returns the settings in effect.
func (e *Engine) Settings() *Settings {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cfg.settings
}

// OpenView renders doc into a new view of the given width in CSS pixels
// (0 when unknown) and schedules its banner. It returns the view ID.
func (e *Engine) OpenView(ctx context.Context, doc string, width float64) (string, error) {
	if e.isClosed() {
		return "", ErrEngineClosed
	}

	content, err := e.renderNote(ctx, doc)
	if err != nil {
		return "", err
	}
	surface, err := view.NewSurface(content)
	if err != nil {
		return "", fmt.Errorf("mounting view of %s: %w", doc, err)
	}

	id := uuid.NewString()
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return "", ErrEngineClosed
	}
	e.views[id] = &openView{doc: doc, surface: surface}
	e.mu.Unlock()

	if err := e.sync.Open(id, doc, surface, width); err != nil {
		e.mu.Lock()
		delete(e.views, id)
		e.mu.Unlock()
		return "", e.mapErr(err)
	}

	e.cfg.logger.Debug("view opened", zap.String("view", id), zap.String("doc", doc))
	return id, nil
}

// renderNote runs the note body through the pipeline.
func (e *Engine) renderNote(ctx context.Context, doc string) (string, error) {
	body, err := e.vault.Body(doc)
	if err != nil {
		return "", fmt.Errorf("reading note %s: %w", doc, err)
	}

	mdContent := e.preprocessor.PreprocessMarkdown(ctx, body)
	if ctx.Err() != nil {
		return "", ctx.Err()
	}

	htmlContent, err := e.htmlConverter.ToHTML(ctx, doc, noteTitle(doc), mdContent)
	if err != nil {
		return "", fmt.Errorf("converting to HTML: %w", err)
	}

	noteDir := filepath.Join(e.vault.Root(), filepath.FromSlash(path.Dir(doc)))
	htmlContent, err = pipeline.RewriteRelativePaths(htmlContent, noteDir, e.vault.Root())
	if err != nil {
		return "", fmt.Errorf("rewriting relative paths: %w", err)
	}

	e.mu.Lock()
	css := e.css
	e.mu.Unlock()

	htmlContent = e.cssInjector.InjectCSS(ctx, htmlContent, css)
	if ctx.Err() != nil {
		return "", ctx.Err()
	}
	return htmlContent, nil
}

// noteTitle is the file name of doc without its extension.
func noteTitle(doc string) string {
	base := path.Base(doc)
	return strings.TrimSuffix(base, path.Ext(base))
}

// NoteChanged re-renders every open view of doc, as a host does after the
// note is edited, and recomputes their banners. Banners survive the
// re-render.
func (e *Engine) NoteChanged(ctx context.Context, doc string) error {
	if e.isClosed() {
		return ErrEngineClosed
	}

	var errs error
	if surfaces := e.surfacesOf(doc); len(surfaces) > 0 {
		content, err := e.renderNote(ctx, doc)
		if err != nil {
			return err
		}
		for _, s := range surfaces {
			errs = multierr.Append(errs, s.Replace(content))
		}
	}
	e.sync.MetadataChanged(doc)
	return errs
}

// SetFrontmatter writes values into doc's frontmatter and recomputes its
// views. A nil value deletes the key.
func (e *Engine) SetFrontmatter(doc string, values map[string]any) error {
	if e.isClosed() {
		return ErrEngineClosed
	}

	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	err := e.vault.WriteMetadata(doc, func(d *yamlutil.Document) error {
		for _, k := range keys {
			if values[k] == nil {
				d.Delete(k)
				continue
			}
			d.Set(k, values[k])
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("writing frontmatter of %s: %w", doc, err)
	}
	e.sync.MetadataChanged(doc)
	return nil
}

// Frontmatter returns doc's frontmatter.
func (e *Engine) Frontmatter(doc string) (map[string]any, error) {
	return e.vault.ReadMetadata(doc)
}

// Resize records a new view width. Only width-dependent styles change.
func (e *Engine) Resize(viewID string, width float64) error {
	if _, err := e.lookup(viewID); err != nil {
		return err
	}
	e.sync.Resized(viewID, width)
	return nil
}

// Choose shows raw as the view's banner now. With persist, raw is also
// written into the note under the first source alias.
func (e *Engine) Choose(viewID, raw string, persist bool) error {
	if e.isClosed() {
		return ErrEngineClosed
	}
	return e.mapErr(e.sync.Choose(viewID, raw, persist))
}

// Refresh resolves the view's banner again, retrying failures.
func (e *Engine) Refresh(viewID string) error {
	if e.isClosed() {
		return ErrEngineClosed
	}
	return e.mapErr(e.sync.Refresh(viewID))
}

// SaveSettings applies s to every open view: cached images are dropped
// and banners recompute with the new aliases and defaults. A changed
// style re-renders the views. When path is not empty, s is also written
// there. Fetch, sync and shuffle settings take effect for new engines.
func (e *Engine) SaveSettings(s *Settings, path string) error {
	if e.isClosed() {
		return ErrEngineClosed
	}
	if err := s.Validate(); err != nil {
		return err
	}
	fieldRes, err := s.FieldResolver()
	if err != nil {
		return err
	}
	css, err := e.resolveStyle(s)
	if err != nil {
		return err
	}
	if path != "" {
		if err := s.Save(path); err != nil {
			return err
		}
	}

	e.mu.Lock()
	styleChanged := css != e.css
	e.css = css
	e.cfg.settings = s
	e.mu.Unlock()

	var errs error
	if styleChanged {
		errs = e.rerenderAll()
	}
	if err := e.sync.RecomputeAll(fieldRes); err != nil {
		errs = multierr.Append(errs, e.mapErr(err))
	}
	return errs
}

func (e *Engine) rerenderAll() error {
	e.mu.Lock()
	docs := make(map[string][]*view.Surface)
	for _, ov := range e.views {
		docs[ov.doc] = append(docs[ov.doc], ov.surface)
	}
	e.mu.Unlock()

	var errs error
	for doc, surfaces := range docs {
		content, err := e.renderNote(context.Background(), doc)
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		for _, s := range surfaces {
			errs = multierr.Append(errs, s.Replace(content))
		}
	}
	return errs
}

// State returns a snapshot of a view's banner.
func (e *Engine) State(viewID string) (ViewState, error) {
	st, err := e.sync.State(viewID)
	return st, e.mapErr(err)
}

// Views lists open view IDs, sorted.
func (e *Engine) Views() []string {
	e.mu.Lock()
	defer e.mu.Unlock()
	ids := make([]string, 0, len(e.views))
	for id := range e.views {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Wait blocks until no banner work is pending or ctx is done.
func (e *Engine) Wait(ctx context.Context) error {
	return e.mapErr(e.sync.Wait(ctx))
}

// ViewHTML serializes a view. With inline, blob: and file:// image URLs
// become data: URIs so the document outlives the view and the vault.
// Images that can no longer be read keep their URL and are logged.
func (e *Engine) ViewHTML(viewID string, inline bool) (string, error) {
	ov, err := e.lookup(viewID)
	if err != nil {
		return "", err
	}
	out, err := ov.surface.HTML()
	if err != nil {
		return "", fmt.Errorf("serializing view: %w", err)
	}
	if !inline {
		return out, nil
	}

	inlined, err := pipeline.InlineResources(out, e.dataURI)
	if inlined == "" && err != nil {
		return "", fmt.Errorf("inlining resources: %w", err)
	}
	if err != nil {
		e.cfg.logger.Warn("some images could not be inlined", zap.String("view", viewID), zap.Error(err))
	}
	return inlined, nil
}

// dataURI reads a blob: object or a vault file as a data: URI.
func (e *Engine) dataURI(rawURL string) (string, error) {
	if objecturl.IsObjectURL(rawURL) {
		return e.images.Objects().DataURI(rawURL)
	}

	p, err := fileutil.FileURLToPath(rawURL)
	if err != nil {
		return "", err
	}
	if !fileutil.IsPathUnderDir(p, e.vault.Root()) {
		return "", fmt.Errorf("%w: %s", ErrOutsideVault, p)
	}
	data, err := os.ReadFile(p) // #nosec G304 -- contained in the vault root
	if err != nil {
		return "", err
	}
	return "data:" + sniffMIME(p, data) + ";base64," + base64.StdEncoding.EncodeToString(data), nil
}

func sniffMIME(name string, data []byte) string {
	if kind, err := filetype.Match(data); err == nil && kind != filetype.Unknown {
		return kind.MIME.Value
	}
	if strings.EqualFold(filepath.Ext(name), ".svg") {
		return "image/svg+xml"
	}
	return "application/octet-stream"
}

// Render opens doc, waits for its banner and returns the self-contained
// view document. The view is closed before returning.
func (e *Engine) Render(ctx context.Context, doc string, width float64) (string, error) {
	id, err := e.OpenView(ctx, doc, width)
	if err != nil {
		return "", err
	}
	defer func() {
		if err := e.CloseView(id); err != nil && !errors.Is(err, ErrEngineClosed) {
			e.cfg.logger.Debug("closing render view", zap.Error(err))
		}
	}()

	if err := e.Wait(ctx); err != nil {
		return "", err
	}
	return e.ViewHTML(id, true)
}

// ExportPDF prints a view, banner included, through headless Chrome.
func (e *Engine) ExportPDF(ctx context.Context, viewID string) ([]byte, error) {
	htmlContent, err := e.ViewHTML(viewID, true)
	if err != nil {
		return nil, err
	}

	e.exportMu.Lock()
	defer e.exportMu.Unlock()
	if e.exporter == nil {
		e.exporter = NewPDFExporter(e.cfg.timeout, e.cfg.page)
	}
	pdf, err := e.exporter.ToPDF(ctx, htmlContent)
	if err != nil {
		return nil, fmt.Errorf("converting to PDF: %w", err)
	}
	return pdf, nil
}

// CloseView tears a view down: its banner is removed and its images
// released before CloseView returns.
func (e *Engine) CloseView(viewID string) error {
	if e.isClosed() {
		return ErrEngineClosed
	}
	err := e.sync.CloseView(viewID)
	e.mu.Lock()
	delete(e.views, viewID)
	e.mu.Unlock()
	return e.mapErr(err)
}

// Close tears down every view and releases the browser used for export.
// Further calls return nil.
func (e *Engine) Close() error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return nil
	}
	e.closed = true
	e.views = make(map[string]*openView)
	e.mu.Unlock()

	err := e.sync.Close()
	// Parked images have no view left to release them.
	err = multierr.Append(err, e.images.Invalidate())

	e.exportMu.Lock()
	if e.exporter != nil {
		err = multierr.Append(err, e.exporter.Close())
		e.exporter = nil
	}
	e.exportMu.Unlock()

	return err
}

func (e *Engine) isClosed() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.closed
}

func (e *Engine) lookup(viewID string) (*openView, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed {
		return nil, ErrEngineClosed
	}
	ov, ok := e.views[viewID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrViewNotFound, viewID)
	}
	return ov, nil
}

func (e *Engine) surfacesOf(doc string) []*view.Surface {
	e.mu.Lock()
	defer e.mu.Unlock()
	var out []*view.Surface
	for _, ov := range e.views {
		if ov.doc == doc {
			out = append(out, ov.surface)
		}
	}
	return out
}

// mapErr translates coordinator shutdown into ErrEngineClosed.
func (e *Engine) mapErr(err error) error {
	if errors.Is(err, viewsync.ErrClosed) {
		return fmt.Errorf("%w: %v", ErrEngineClosed, err)
	}
	return err
}
