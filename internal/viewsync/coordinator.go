// Package viewsync keeps the banners of open views in step with their
// notes.
//
// A Coordinator runs one event loop goroutine that owns every view's
// state. Host events are posted to the loop as messages: note metadata
// changes and resizes are debounced, explicit user actions are not, and
// host DOM mutations arrive as drift notices that the loop reconciles by
// repainting without resolving again. Resolutions run off the loop and
// post their results back; results for views that closed or moved on are
// released and dropped.
package viewsync

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/alnah/go-mdbanner/internal/fields"
	"github.com/alnah/go-mdbanner/internal/metrics"
	"github.com/alnah/go-mdbanner/internal/resolver"
	"github.com/alnah/go-mdbanner/internal/source"
	"github.com/alnah/go-mdbanner/internal/view"
	"github.com/alnah/go-mdbanner/internal/yamlutil"
)

// Default coalescing windows.
const (
	DefaultMetadataDelay = 100 * time.Millisecond
	DefaultResizeDelay   = 100 * time.Millisecond
)

var (
	ErrViewNotFound = errors.New("view not found")
	ErrViewExists   = errors.New("view already open")
	ErrClosed       = errors.New("coordinator closed")
)

// Recompute triggers, as reported to metrics.
const (
	TriggerOpen     = "open"
	TriggerMetadata = "metadata"
	TriggerChoose   = "choose"
	TriggerRefresh  = "refresh"
	TriggerSettings = "settings"
)

// Notes reads and writes note frontmatter.
type Notes interface {
	ReadMetadata(doc string) (map[string]any, error)
	WriteMetadata(doc string, mutate func(*yamlutil.Document) error) error
}

// Images resolves banner sources. *resolver.Resolver implements it.
type Images interface {
	Resolve(ctx context.Context, c source.Classified, contextDoc string) (*resolver.Resolved, error)
	Release(res *resolver.Resolved)
	Park(res *resolver.Resolved)
	PickShuffle(ctx context.Context, folder string, rnd *rand.Rand) (string, error)
	Invalidate() error
}

// Options configures a Coordinator.
type Options struct {
	Notes  Notes
	Images Images
	Fields *fields.Resolver // nil means built-in aliases and defaults

	Clock         Clock
	MetadataDelay time.Duration
	ResizeDelay   time.Duration

	// ShuffleFolder is used when a note turns shuffle on without naming
	// a folder. ShufflePersistKey, when set, receives each pick.
	ShuffleFolder     string
	ShufflePersistKey string
	Rand              *rand.Rand

	Logger *zap.Logger
}

// ViewState is a snapshot of one view's banner.
type ViewState struct {
	ViewID     string
	Doc        string
	State      view.State
	Config     fields.BannerConfig
	Identity   string // identity of the painted banner image
	ErrorClass string
	Pick       string // current shuffle pick, if any
}

type shufflePick struct {
	folder string
	path   string
}

// viewState is owned by the loop goroutine.
type viewState struct {
	id       string
	doc      string
	surface  *view.Surface
	ctrl     *view.Controller
	banner   *resolver.Resolved
	icon     *resolver.Resolved
	override *source.Classified
	pick     shufflePick
	seq      uint64
	drift    *atomic.Bool
}

// outcome is what a resolution posts back to the loop.
type outcome struct {
	cfg    fields.BannerConfig
	banner *resolver.Resolved
	icon   *resolver.Resolved
	pick   shufflePick
	err    error
}

// Coordinator drives the banner controllers of all open views.
type Coordinator struct {
	opts   Options
	logger *zap.Logger
	ctx    context.Context
	cancel context.CancelFunc

	msgs    chan func()
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once

	postMu sync.RWMutex
	closed bool

	metaDeb   *Debouncer
	resizeDeb *Debouncer

	rndMu sync.Mutex

	// Loop-owned.
	views  map[string]*viewState
	fields *fields.Resolver

	// Idle tracking for Wait.
	idleMu  sync.Mutex
	pending int
	idle    chan struct{}
}

// New starts a coordinator.
func New(opts Options) *Coordinator {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.Clock == nil {
		opts.Clock = RealClock{}
	}
	if opts.MetadataDelay <= 0 {
		opts.MetadataDelay = DefaultMetadataDelay
	}
	if opts.ResizeDelay <= 0 {
		opts.ResizeDelay = DefaultResizeDelay
	}
	if opts.Fields == nil {
		opts.Fields = fields.NewResolver(fields.DefaultAliasTable(), fields.DefaultBannerConfig())
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Coordinator{
		opts:      opts,
		logger:    opts.Logger,
		ctx:       ctx,
		cancel:    cancel,
		msgs:      make(chan func(), 64),
		done:      make(chan struct{}),
		stopped:   make(chan struct{}),
		metaDeb:   NewDebouncer(opts.Clock, opts.MetadataDelay),
		resizeDeb: NewDebouncer(opts.Clock, opts.ResizeDelay),
		views:     make(map[string]*viewState),
		fields:    opts.Fields,
		idle:      make(chan struct{}),
	}
	go c.loop()
	return c
}

func (c *Coordinator) loop() {
	defer close(c.stopped)
	for {
		select {
		case fn := <-c.msgs:
			c.run(fn)
			c.add(-1)
		case <-c.done:
			return
		}
	}
}

// run executes a message. A panic is logged and the loop carries on.
func (c *Coordinator) run(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("view sync handler panicked", zap.Any("panic", r), zap.Stack("stack"))
		}
	}()
	fn()
}

// post queues fn on the loop. It reports false once the coordinator is
// closed, in which case fn never runs.
func (c *Coordinator) post(fn func()) bool {
	c.postMu.RLock()
	defer c.postMu.RUnlock()
	if c.closed {
		return false
	}
	c.add(1)
	c.msgs <- fn
	return true
}

// call runs fn on the loop and waits for its result.
func (c *Coordinator) call(fn func() error) error {
	errc := make(chan error, 1)
	if !c.post(func() { errc <- fn() }) {
		return ErrClosed
	}
	return <-errc
}

func (c *Coordinator) add(n int) {
	c.idleMu.Lock()
	defer c.idleMu.Unlock()
	c.pending += n
	if c.pending == 0 {
		close(c.idle)
		c.idle = make(chan struct{})
	}
}

// Wait blocks until no message, debounce timer or resolution is
// outstanding.
func (c *Coordinator) Wait(ctx context.Context) error {
	for {
		c.idleMu.Lock()
		if c.pending == 0 {
			c.idleMu.Unlock()
			return nil
		}
		ch := c.idle
		c.idleMu.Unlock()

		select {
		case <-ch:
		case <-ctx.Done():
			return ctx.Err()
		case <-c.stopped:
			return ErrClosed
		}
	}
}

// debounce schedules fn on the loop after deb's window. Pending triggers
// count as outstanding work for Wait.
func (c *Coordinator) debounce(deb *Debouncer, key string, fn func()) {
	c.add(1)
	fresh := deb.Trigger(key, func() {
		c.post(fn)
		c.add(-1)
	})
	if !fresh {
		c.add(-1)
	}
}

func (c *Coordinator) cancelDebounce(deb *Debouncer, key string) {
	if deb.Cancel(key) {
		c.add(-1)
	}
}

// Open registers a view showing doc and schedules its first render.
func (c *Coordinator) Open(viewID, doc string, surface *view.Surface, width float64) error {
	return c.call(func() error {
		if _, ok := c.views[viewID]; ok {
			return fmt.Errorf("%w: %s", ErrViewExists, viewID)
		}
		vs := &viewState{
			id:      viewID,
			doc:     doc,
			surface: surface,
			ctrl:    view.NewController(viewID, surface),
			drift:   new(atomic.Bool),
		}
		if width > 0 {
			_, _ = vs.ctrl.Resize(width)
		}
		c.views[viewID] = vs
		metrics.IncActiveViews()

		drift := vs.drift
		surface.SetObserver(func() {
			if drift.CompareAndSwap(false, true) {
				c.post(func() { c.reconcile(viewID) })
			}
		})

		c.logger.Debug("view opened", zap.String("view", viewID), zap.String("doc", doc))
		c.debounce(c.metaDeb, viewID, func() { c.recomputeByID(viewID, TriggerOpen) })
		return nil
	})
}

// MetadataChanged tells the coordinator doc's frontmatter changed. Every
// view of doc recomputes once the window closes.
func (c *Coordinator) MetadataChanged(doc string) {
	c.post(func() {
		for id, vs := range c.views {
			if vs.doc != doc {
				continue
			}
			vs.override = nil
			vs.ctrl.MarkStale()
			c.debounce(c.metaDeb, id, func() { c.recomputeByID(id, TriggerMetadata) })
		}
	})
}

// Resized records a new view width. Only width-dependent styles change.
func (c *Coordinator) Resized(viewID string, width float64) {
	c.post(func() {
		if _, ok := c.views[viewID]; !ok {
			return
		}
		c.debounce(c.resizeDeb, viewID, func() {
			vs, ok := c.views[viewID]
			if !ok {
				return
			}
			if _, err := vs.ctrl.Resize(width); err != nil {
				c.logger.Debug("resize skipped", zap.String("view", viewID), zap.Error(err))
			}
		})
	})
}

// Choose applies a source picked by the user, bypassing the debounce
// window. With persist the source is written into the note under the
// primary source alias before resolving.
func (c *Coordinator) Choose(viewID, raw string, persist bool) error {
	cl := source.Classify(raw)
	return c.call(func() error {
		vs, ok := c.views[viewID]
		if !ok {
			return fmt.Errorf("%w: %s", ErrViewNotFound, viewID)
		}
		vs.override = &cl
		vs.pick = shufflePick{}
		c.cancelDebounce(c.metaDeb, viewID)

		var write func() error
		if persist {
			key := c.fields.Aliases().Primary(fields.Source)
			value := raw
			if cl.Kind == source.InternalLink {
				value = source.WrapLink(cl.Normalized)
			}
			doc := vs.doc
			write = func() error {
				return c.opts.Notes.WriteMetadata(doc, func(d *yamlutil.Document) error {
					d.Set(key, value)
					return nil
				})
			}
		}
		c.recompute(vs, TriggerChoose, write)
		return nil
	})
}

// Refresh re-resolves a view now. Failed resolutions are never cached,
// so this retries them.
func (c *Coordinator) Refresh(viewID string) error {
	return c.call(func() error {
		vs, ok := c.views[viewID]
		if !ok {
			return fmt.Errorf("%w: %s", ErrViewNotFound, viewID)
		}
		c.cancelDebounce(c.metaDeb, viewID)
		c.recompute(vs, TriggerRefresh, nil)
		return nil
	})
}

// RecomputeAll drops cached images and recomputes every view, as after a
// settings save. A non-nil f replaces the field resolver.
func (c *Coordinator) RecomputeAll(f *fields.Resolver) error {
	return c.call(func() error {
		if f != nil {
			c.fields = f
		}
		err := c.opts.Images.Invalidate()
		if err != nil {
			c.logger.Warn("cache invalidation reported errors", zap.Error(err))
		}
		for id, vs := range c.views {
			c.cancelDebounce(c.metaDeb, id)
			c.recompute(vs, TriggerSettings, nil)
		}
		return err
	})
}

// CloseView tears a view down before returning: its elements are removed
// and its leases released.
func (c *Coordinator) CloseView(viewID string) error {
	return c.call(func() error {
		vs, ok := c.views[viewID]
		if !ok {
			return fmt.Errorf("%w: %s", ErrViewNotFound, viewID)
		}
		c.teardown(vs)
		return nil
	})
}

// State returns a snapshot of a view.
func (c *Coordinator) State(viewID string) (ViewState, error) {
	var st ViewState
	err := c.call(func() error {
		vs, ok := c.views[viewID]
		if !ok {
			return fmt.Errorf("%w: %s", ErrViewNotFound, viewID)
		}
		st = ViewState{
			ViewID:     vs.id,
			Doc:        vs.doc,
			State:      vs.ctrl.State(),
			Config:     vs.ctrl.Config(),
			Identity:   vs.banner.Identity(),
			ErrorClass: vs.ctrl.ErrorClass(),
			Pick:       vs.pick.path,
		}
		return nil
	})
	return st, err
}

// Views lists open view IDs.
func (c *Coordinator) Views() []string {
	var ids []string
	_ = c.call(func() error {
		for id := range c.views {
			ids = append(ids, id)
		}
		return nil
	})
	return ids
}

// Close tears down every view and stops the loop. Resolutions still in
// flight release their results when they finish.
func (c *Coordinator) Close() error {
	err := c.call(func() error {
		for _, vs := range c.views {
			c.teardown(vs)
		}
		return nil
	})
	c.once.Do(func() {
		c.postMu.Lock()
		c.closed = true
		c.postMu.Unlock()

		c.add(-(c.metaDeb.Stop() + c.resizeDeb.Stop()))
		c.cancel()
		close(c.done)
		<-c.stopped
		c.drain()
	})
	if errors.Is(err, ErrClosed) {
		return nil
	}
	return err
}

// drain runs messages queued before the loop stopped.
func (c *Coordinator) drain() {
	for {
		select {
		case fn := <-c.msgs:
			c.run(fn)
			c.add(-1)
		default:
			return
		}
	}
}

func (c *Coordinator) teardown(vs *viewState) {
	c.cancelDebounce(c.metaDeb, vs.id)
	c.cancelDebounce(c.resizeDeb, vs.id)
	vs.surface.SetObserver(nil)
	vs.ctrl.Teardown()
	c.opts.Images.Release(vs.banner)
	c.opts.Images.Release(vs.icon)
	vs.banner, vs.icon = nil, nil
	vs.seq++
	delete(c.views, vs.id)
	metrics.DecActiveViews()
	c.logger.Debug("view closed", zap.String("view", vs.id))
}

// reconcile compares the painted state with the DOM and repaints the
// difference.
func (c *Coordinator) reconcile(viewID string) {
	vs, ok := c.views[viewID]
	if !ok {
		return
	}
	vs.drift.Store(false)
	if !vs.ctrl.Drifted() {
		return
	}
	changed, err := vs.ctrl.Reassert()
	if err != nil {
		c.logger.Warn("banner reassert failed", zap.String("view", viewID), zap.Error(err))
		return
	}
	if changed {
		metrics.ObserveReassertion()
		c.logger.Debug("banner reasserted", zap.String("view", viewID))
	}
}

func (c *Coordinator) recomputeByID(viewID, trigger string) {
	vs, ok := c.views[viewID]
	if !ok {
		return
	}
	c.recompute(vs, trigger, nil)
}

// recompute starts a resolution for vs. before, when set, runs first on
// the resolution goroutine.
func (c *Coordinator) recompute(vs *viewState, trigger string, before func() error) {
	vs.seq++
	seq := vs.seq
	vs.ctrl.Begin()
	metrics.ObserveRecompute(trigger)

	in := loadInput{
		doc:      vs.doc,
		fields:   c.fields,
		override: vs.override,
		pick:     vs.pick,
		before:   before,
	}
	id := vs.id

	c.add(1)
	go func() {
		defer c.add(-1)
		out := c.load(in)
		ok := c.post(func() { c.apply(id, seq, out) })
		if !ok {
			c.opts.Images.Release(out.banner)
			c.opts.Images.Release(out.icon)
		}
	}()
}

// apply paints a resolution result if it is still wanted. An unwanted
// result stays in the image cache for other views.
func (c *Coordinator) apply(viewID string, seq uint64, out outcome) {
	vs, ok := c.views[viewID]
	if !ok || vs.seq != seq {
		c.opts.Images.Park(out.banner)
		c.opts.Images.Park(out.icon)
		c.logger.Debug("discarding superseded resolution", zap.String("view", viewID))
		return
	}

	prevBanner, prevIcon := vs.banner, vs.icon
	if out.err != nil {
		class := resolver.Class(out.err)
		c.logger.Info("banner unavailable",
			zap.String("view", viewID),
			zap.String("doc", vs.doc),
			zap.String("class", class),
			zap.Error(out.err))
		vs.banner, vs.icon = nil, nil
		if _, err := vs.ctrl.Fail(out.cfg, class); err != nil {
			c.logger.Warn("painting error state failed", zap.String("view", viewID), zap.Error(err))
		}
	} else {
		vs.banner, vs.icon = out.banner, out.icon
		vs.pick = out.pick
		_, err := vs.ctrl.Update(out.cfg, viewImage(out.banner), viewImage(out.icon))
		if err != nil {
			c.logger.Warn("painting banner failed", zap.String("view", viewID), zap.Error(err))
		}
	}
	// Release after painting so a key shared with the new image never
	// drops to zero references in between.
	c.opts.Images.Release(prevBanner)
	c.opts.Images.Release(prevIcon)
}

func viewImage(r *resolver.Resolved) view.Image {
	if r == nil {
		return view.Image{}
	}
	return view.Image{URL: r.Resource.URL, Identity: r.Identity()}
}

type loadInput struct {
	doc      string
	fields   *fields.Resolver
	override *source.Classified
	pick     shufflePick
	before   func() error
}

// load reads the note and resolves its images off the loop. It never
// panics; a panic becomes the outcome's error.
func (c *Coordinator) load(in loadInput) (out outcome) {
	defer func() {
		if r := recover(); r != nil {
			c.opts.Images.Release(out.banner)
			c.opts.Images.Release(out.icon)
			out = outcome{cfg: out.cfg, err: fmt.Errorf("banner resolution panicked: %v", r)}
		}
	}()

	if in.before != nil {
		if err := in.before(); err != nil {
			c.logger.Warn("writing banner source failed", zap.String("doc", in.doc), zap.Error(err))
		}
	}

	meta, err := c.opts.Notes.ReadMetadata(in.doc)
	if err != nil {
		out.cfg = in.fields.Defaults()
		out.err = err
		return out
	}
	cfg := in.fields.Resolve(meta)
	if in.override != nil {
		cfg.Source = in.override.Normalized
		cfg.SourceKind = in.override.Kind
	}

	out.pick = in.pick
	if folder := c.shuffleFolder(cfg); folder != "" {
		if in.pick.folder != folder || in.pick.path == "" {
			path, err := c.pickShuffle(folder)
			if err != nil {
				out.cfg = cfg
				out.err = err
				return out
			}
			out.pick = shufflePick{folder: folder, path: path}
			c.persistPick(in.doc, path)
		}
		cfg.Source = out.pick.path
		cfg.SourceKind = source.InternalLink
	}
	out.cfg = cfg

	if cfg.HasBanner() {
		out.banner, out.err = c.opts.Images.Resolve(c.ctx, cfg.Classified(), in.doc)
		if out.err != nil {
			return out
		}
	}
	if cfg.Icon.Image != "" {
		icon, err := c.opts.Images.Resolve(c.ctx, cfg.IconClassified(), in.doc)
		if err != nil {
			// The emoji, if any, stands in for a broken icon image.
			c.logger.Info("banner icon unavailable", zap.String("doc", in.doc), zap.Error(err))
		} else {
			out.icon = icon
		}
	}
	return out
}

func (c *Coordinator) shuffleFolder(cfg fields.BannerConfig) string {
	if !cfg.Shuffle {
		return ""
	}
	if cfg.SourceKind == source.InternalLink && cfg.Source != "" && !source.IsImageExt(cfg.Source) {
		return cfg.Source
	}
	return c.opts.ShuffleFolder
}

func (c *Coordinator) pickShuffle(folder string) (string, error) {
	if c.opts.Rand == nil {
		return c.opts.Images.PickShuffle(c.ctx, folder, nil)
	}
	c.rndMu.Lock()
	defer c.rndMu.Unlock()
	return c.opts.Images.PickShuffle(c.ctx, folder, c.opts.Rand)
}

func (c *Coordinator) persistPick(doc, path string) {
	key := c.opts.ShufflePersistKey
	if key == "" {
		return
	}
	err := c.opts.Notes.WriteMetadata(doc, func(d *yamlutil.Document) error {
		d.Set(key, source.WrapLink(path))
		return nil
	})
	if err != nil {
		c.logger.Warn("persisting shuffle pick failed", zap.String("doc", doc), zap.Error(err))
	}
}
