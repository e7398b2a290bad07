package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	mdbanner "github.com/alnah/go-mdbanner"
	"github.com/alnah/go-mdbanner/internal/metrics"
)

const (
	defaultAddr     = "127.0.0.1:8080"
	shutdownTimeout = 10 * time.Second
)

// liveView is a view kept open across requests for one note.
type liveView struct {
	id      string
	modTime time.Time
}

// server previews a vault over HTTP. Each note gets one persistent view;
// edits on disk are picked up on the next request.
type server struct {
	eng     *mdbanner.Engine
	logger  *zap.Logger
	pool    Pool
	width   float64
	timeout time.Duration

	mu    sync.Mutex
	views map[string]*liveView // by note
}

func newServer(eng *mdbanner.Engine, logger *zap.Logger, pool Pool, width float64, timeout time.Duration) *server {
	return &server{
		eng:     eng,
		logger:  logger,
		pool:    pool,
		width:   width,
		timeout: timeout,
		views:   make(map[string]*liveView),
	}
}

// routes wires handlers and middleware.
func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(s.logRequests)
	r.Use(middleware.Recoverer)
	r.Use(metrics.Middleware)

	r.Get("/healthz", s.healthz)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	r.Get("/", s.index)
	r.Get("/notes/*", s.showNote)
	r.Get("/pdf/*", s.exportNote)
	r.Post("/banner/*", s.chooseBanner)
	r.Post("/refresh/*", s.refreshNote)

	r.Route("/api/views", func(r chi.Router) {
		r.Get("/", s.listViews)
		r.Delete("/{id}", s.closeView)
	})
	return r
}

func (s *server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)
		s.logger.Debug("request completed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())))
	})
}

func (s *server) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

var indexTemplate = template.Must(template.New("index").Parse(`<!DOCTYPE html>
<html><head><meta charset="utf-8"><title>{{.Root}}</title></head>
<body><h1>{{.Root}}</h1><ul>
{{range .Notes}}<li><a href="/notes/{{.}}">{{.}}</a> (<a href="/pdf/{{.}}">pdf</a>)</li>
{{end}}</ul></body></html>
`))

func (s *server) index(w http.ResponseWriter, _ *http.Request) {
	notes, err := s.eng.Notes()
	if err != nil {
		s.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	data := struct {
		Root  string
		Notes []string
	}{s.eng.Root(), notes}
	if err := indexTemplate.Execute(w, data); err != nil {
		s.logger.Warn("index write failed", zap.Error(err))
	}
}

// noteParam extracts the note path from a wildcard route.
func noteParam(r *http.Request) (string, error) {
	raw, err := url.PathUnescape(chi.URLParam(r, "*"))
	if err != nil {
		return "", fmt.Errorf("%w: %v", mdbanner.ErrNoteNotFound, err)
	}
	doc := strings.TrimPrefix(path.Clean("/"+raw), "/")
	if doc == "" || !strings.EqualFold(path.Ext(doc), ".md") {
		return "", fmt.Errorf("%w: %q", mdbanner.ErrNoteNotFound, doc)
	}
	return doc, nil
}

// view returns the live view of doc, opening it on first use. A note
// modified on disk since the last request is re-rendered.
func (s *server) view(ctx context.Context, doc string) (string, error) {
	info, err := os.Stat(filepath.Join(s.eng.Root(), filepath.FromSlash(doc)))
	if err != nil {
		return "", fmt.Errorf("%w: %s", mdbanner.ErrNoteNotFound, doc)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	lv, ok := s.views[doc]
	if !ok {
		id, err := s.eng.OpenView(ctx, doc, s.width)
		if err != nil {
			return "", err
		}
		s.views[doc] = &liveView{id: id, modTime: info.ModTime()}
		return id, nil
	}
	if !info.ModTime().Equal(lv.modTime) {
		lv.modTime = info.ModTime()
		if err := s.eng.NoteChanged(ctx, doc); err != nil {
			return "", err
		}
	}
	return lv.id, nil
}

// settled opens or refreshes doc's view and waits for its banner.
func (s *server) settled(ctx context.Context, doc string) (string, error) {
	id, err := s.view(ctx, doc)
	if err != nil {
		return "", err
	}
	if err := s.eng.Wait(ctx); err != nil {
		return "", err
	}
	return id, nil
}

func (s *server) showNote(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	doc, err := noteParam(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	id, err := s.settled(ctx, doc)
	if err != nil {
		s.fail(w, err)
		return
	}
	out, err := s.eng.ViewHTML(id, true)
	if err != nil {
		s.fail(w, err)
		return
	}
	if st, err := s.eng.State(id); err == nil && st.ErrorClass != "" {
		w.Header().Set("X-Banner-Error", st.ErrorClass)
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = w.Write([]byte(out))
}

func (s *server) exportNote(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	doc, err := noteParam(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	id, err := s.settled(ctx, doc)
	if err != nil {
		s.fail(w, err)
		return
	}
	out, err := s.eng.ViewHTML(id, true)
	if err != nil {
		s.fail(w, err)
		return
	}

	x := s.pool.Acquire()
	pdf, err := x.ToPDF(ctx, out)
	s.pool.Release(x)
	if err != nil {
		s.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Length", strconv.Itoa(len(pdf)))
	_, _ = w.Write(pdf)
}

// chooseBanner applies the form value "source"; "persist=true" also
// writes it into the note.
func (s *server) chooseBanner(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	doc, err := noteParam(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, "invalid form")
		return
	}
	src := strings.TrimSpace(r.PostForm.Get("source"))
	if src == "" {
		writeError(w, http.StatusBadRequest, "missing source")
		return
	}
	persist, _ := strconv.ParseBool(r.PostForm.Get("persist"))

	id, err := s.view(ctx, doc)
	if err != nil {
		s.fail(w, err)
		return
	}
	if err := s.eng.Choose(id, src, persist); err != nil {
		s.fail(w, err)
		return
	}
	if persist {
		// The note is written off the request; settle before reading its mtime.
		if err := s.eng.Wait(ctx); err != nil {
			s.fail(w, err)
			return
		}
		s.syncModTime(doc)
	}
	http.Redirect(w, r, "/notes/"+doc, http.StatusSeeOther)
}

// syncModTime records the note's current mtime so a write made through
// the view does not count as an outside edit.
func (s *server) syncModTime(doc string) {
	info, err := os.Stat(filepath.Join(s.eng.Root(), filepath.FromSlash(doc)))
	if err != nil {
		return
	}
	s.mu.Lock()
	if lv, ok := s.views[doc]; ok {
		lv.modTime = info.ModTime()
	}
	s.mu.Unlock()
}

func (s *server) refreshNote(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), s.timeout)
	defer cancel()

	doc, err := noteParam(r)
	if err != nil {
		s.fail(w, err)
		return
	}
	id, err := s.view(ctx, doc)
	if err != nil {
		s.fail(w, err)
		return
	}
	if err := s.eng.Refresh(id); err != nil {
		s.fail(w, err)
		return
	}
	http.Redirect(w, r, "/notes/"+doc, http.StatusSeeOther)
}

// viewJSON is the API form of a view's state.
type viewJSON struct {
	ID         string  `json:"id"`
	Doc        string  `json:"doc"`
	State      string  `json:"state"`
	Source     string  `json:"source,omitempty"`
	Height     float64 `json:"height"`
	Identity   string  `json:"identity,omitempty"`
	ErrorClass string  `json:"error,omitempty"`
	Pick       string  `json:"pick,omitempty"`
}

func (s *server) listViews(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	ids := make([]string, 0, len(s.views))
	for _, lv := range s.views {
		ids = append(ids, lv.id)
	}
	s.mu.Unlock()

	out := make([]viewJSON, 0, len(ids))
	for _, id := range ids {
		st, err := s.eng.State(id)
		if err != nil {
			continue
		}
		out = append(out, viewJSON{
			ID:         st.ViewID,
			Doc:        st.Doc,
			State:      st.State.String(),
			Source:     st.Config.Source,
			Height:     st.Config.Height,
			Identity:   st.Identity,
			ErrorClass: st.ErrorClass,
			Pick:       st.Pick,
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Doc < out[j].Doc })
	writeJSON(w, http.StatusOK, map[string]any{"views": out})
}

func (s *server) closeView(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.eng.CloseView(id); err != nil {
		s.fail(w, err)
		return
	}
	s.mu.Lock()
	for doc, lv := range s.views {
		if lv.id == id {
			delete(s.views, doc)
		}
	}
	s.mu.Unlock()
	w.WriteHeader(http.StatusNoContent)
}

// fail maps err to an HTTP status and writes it as JSON.
func (s *server) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Warn("request failed", zap.Error(err))
	}
	writeError(w, status, err.Error())
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, mdbanner.ErrNoteNotFound),
		errors.Is(err, mdbanner.ErrViewNotFound),
		errors.Is(err, os.ErrNotExist):
		return http.StatusNotFound
	case errors.Is(err, mdbanner.ErrOutsideVault):
		return http.StatusForbidden
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	case errors.Is(err, mdbanner.ErrEngineClosed):
		return http.StatusServiceUnavailable
	case errors.Is(err, mdbanner.ErrBrowserConnect),
		errors.Is(err, mdbanner.ErrPageCreate),
		errors.Is(err, mdbanner.ErrPageLoad),
		errors.Is(err, mdbanner.ErrPDFGeneration):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// runServe previews a vault over HTTP until ctx is canceled.
func runServe(ctx context.Context, args []string, env *Environment) error {
	f, err := parseServeFlags(args, env.Stderr)
	if err != nil {
		return err
	}

	envCfg := loadEnvConfig()
	warnUnknownEnvVars(env.Stderr)

	timeout, err := resolveTimeout(f.timeout, envCfg)
	if err != nil {
		return err
	}
	page, err := mdbanner.ParsePageSize(pick(f.pageSize, envCfg.PageSize))
	if err != nil {
		return err
	}

	eng, logger, err := openEngine(&f.common, &f.settings, envCfg, env)
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()
	defer func() { _ = eng.Close() }()

	pool := env.Exporters(1, timeout, page)
	defer func() { _ = pool.Close() }()

	metrics.Init()
	s := newServer(eng, logger, pool, f.width, timeout)

	addr := pick(f.addr, envCfg.Addr)
	if addr == "" {
		addr = defaultAddr
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	if !f.common.quiet {
		fmt.Fprintf(env.Stdout, "Serving %s on http://%s\n", eng.Root(), addr)
	}
	logger.Info("serving vault", zap.String("root", eng.Root()), zap.String("addr", addr))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serving: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutting down: %w", err)
	}
	return nil
}
