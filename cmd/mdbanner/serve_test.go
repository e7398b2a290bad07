package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"

	mdbanner "github.com/alnah/go-mdbanner"
	"github.com/alnah/go-mdbanner/internal/metrics"
)

// ---------------------------------------------------------------------------
// Test Infrastructure - server over a temp vault
// ---------------------------------------------------------------------------

type serveFixture struct {
	vault string
	eng   *mdbanner.Engine
	pool  *fakePool
	srv   *httptest.Server
}

func newServeFixture(t *testing.T) *serveFixture {
	t.Helper()
	metrics.Init()

	vault := writeVault(t)
	s := mdbanner.DefaultSettings()
	s.Sync.MetadataDelay = time.Millisecond
	s.Sync.ResizeDelay = time.Millisecond

	eng, err := mdbanner.New(vault, mdbanner.WithSettings(s), mdbanner.WithLogger(zap.NewNop()))
	if err != nil {
		t.Fatalf("mdbanner.New() error = %v", err)
	}
	pool := &fakePool{x: &fakeExporter{}, size: 1}
	srv := httptest.NewServer(newServer(eng, zap.NewNop(), pool, 0, 5*time.Second).routes())
	t.Cleanup(func() {
		srv.Close()
		_ = eng.Close()
	})
	return &serveFixture{vault: vault, eng: eng, pool: pool, srv: srv}
}

// noRedirect returns a client that reports redirects instead of following them.
func noRedirect() *http.Client {
	return &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}}
}

func get(t *testing.T, rawURL string) (*http.Response, string) {
	t.Helper()
	resp, err := http.Get(rawURL) // #nosec G107 -- test server URL
	if err != nil {
		t.Fatalf("GET %s: %v", rawURL, err)
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatal(err)
	}
	return resp, string(body)
}

// ---------------------------------------------------------------------------
// TestServe - HTTP routes
// ---------------------------------------------------------------------------

func TestServe_IndexAndHealth(t *testing.T) {
	t.Parallel()

	f := newServeFixture(t)

	resp, body := get(t, f.srv.URL+"/")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET / status = %d", resp.StatusCode)
	}
	for _, want := range []string{"trip.md", "journal/week.md", "/pdf/trip.md"} {
		if !strings.Contains(body, want) {
			t.Errorf("index missing %q", want)
		}
	}

	resp, body = get(t, f.srv.URL+"/healthz")
	if resp.StatusCode != http.StatusOK || !strings.Contains(body, `"ok"`) {
		t.Errorf("GET /healthz = %d %q", resp.StatusCode, body)
	}
}

func TestServe_ShowNote(t *testing.T) {
	t.Parallel()

	f := newServeFixture(t)

	tests := []struct {
		name       string
		path       string
		wantStatus int
		wantBody   string
		wantHeader string
	}{
		{"note", "/notes/trip.md", http.StatusOK, "data:image/png", ""},
		{"nested note", "/notes/journal/week.md", http.StatusOK, "Monday.", ""},
		{"broken banner", "/notes/broken.md", http.StatusOK, `data-mdbanner-error="not-found"`, "not-found"},
		{"missing note", "/notes/absent.md", http.StatusNotFound, "error", ""},
		{"not markdown", "/notes/sky.png", http.StatusNotFound, "error", ""},
		{"escape attempt", "/notes/..%2f..%2fetc%2fpasswd.md", http.StatusNotFound, "error", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp, body := get(t, f.srv.URL+tt.path)
			if resp.StatusCode != tt.wantStatus {
				t.Fatalf("status = %d, want %d\n%s", resp.StatusCode, tt.wantStatus, body)
			}
			if !strings.Contains(body, tt.wantBody) {
				t.Errorf("body missing %q", tt.wantBody)
			}
			if got := resp.Header.Get("X-Banner-Error"); got != tt.wantHeader {
				t.Errorf("X-Banner-Error = %q, want %q", got, tt.wantHeader)
			}
		})
	}
}

func TestServe_EditOnDisk(t *testing.T) {
	t.Parallel()

	f := newServeFixture(t)

	_, body := get(t, f.srv.URL+"/notes/trip.md")
	if !strings.Contains(body, "height: 220px") {
		t.Fatalf("initial render missing height 220")
	}

	note := filepath.Join(f.vault, "trip.md")
	content := "---\nbanner: \"[[sky.png]]\"\nbanner-height: 150\n---\nDay two.\n"
	if err := os.WriteFile(note, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	later := time.Now().Add(time.Minute)
	if err := os.Chtimes(note, later, later); err != nil {
		t.Fatal(err)
	}

	_, body = get(t, f.srv.URL+"/notes/trip.md")
	if !strings.Contains(body, "height: 150px") || !strings.Contains(body, "Day two.") {
		t.Errorf("edit on disk not picked up")
	}
	if strings.Count(body, `data-mdbanner="`) != 1 {
		t.Errorf("want exactly one banner mounted")
	}
}

func TestServe_ChooseBanner(t *testing.T) {
	t.Parallel()

	f := newServeFixture(t)
	client := noRedirect()

	post := func(path string, form url.Values) *http.Response {
		t.Helper()
		resp, err := client.PostForm(f.srv.URL+path, form)
		if err != nil {
			t.Fatalf("POST %s: %v", path, err)
		}
		_ = resp.Body.Close()
		return resp
	}

	if resp := post("/banner/trip.md", url.Values{}); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("missing source status = %d, want 400", resp.StatusCode)
	}

	resp := post("/banner/trip.md", url.Values{"source": {"[[pics/sea.png]]"}, "persist": {"true"}})
	if resp.StatusCode != http.StatusSeeOther {
		t.Fatalf("status = %d, want 303", resp.StatusCode)
	}
	if loc := resp.Header.Get("Location"); loc != "/notes/trip.md" {
		t.Errorf("Location = %q", loc)
	}

	data, err := os.ReadFile(filepath.Join(f.vault, "trip.md"))
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "pics/sea.png") {
		t.Errorf("persisted note = %q", data)
	}

	_, body := get(t, f.srv.URL+"/notes/trip.md")
	if !strings.Contains(body, "data:image/png") {
		t.Errorf("chosen banner not rendered")
	}

	if resp := post("/refresh/trip.md", nil); resp.StatusCode != http.StatusSeeOther {
		t.Errorf("refresh status = %d, want 303", resp.StatusCode)
	}
}

func TestServe_ViewsAPI(t *testing.T) {
	t.Parallel()

	f := newServeFixture(t)
	get(t, f.srv.URL+"/notes/trip.md")
	get(t, f.srv.URL+"/notes/broken.md")

	resp, body := get(t, f.srv.URL+"/api/views")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	var payload struct {
		Views []viewJSON `json:"views"`
	}
	if err := json.Unmarshal([]byte(body), &payload); err != nil {
		t.Fatalf("decoding %q: %v", body, err)
	}
	if len(payload.Views) != 2 {
		t.Fatalf("got %d views, want 2", len(payload.Views))
	}
	if payload.Views[0].Doc != "broken.md" || payload.Views[0].ErrorClass != "not-found" {
		t.Errorf("views[0] = %+v", payload.Views[0])
	}
	if payload.Views[1].Doc != "trip.md" || payload.Views[1].State != "rendered" || payload.Views[1].Height != 220 {
		t.Errorf("views[1] = %+v", payload.Views[1])
	}

	req, err := http.NewRequest(http.MethodDelete, f.srv.URL+"/api/views/"+payload.Views[1].ID, nil)
	if err != nil {
		t.Fatal(err)
	}
	del, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	_ = del.Body.Close()
	if del.StatusCode != http.StatusNoContent {
		t.Errorf("DELETE status = %d, want 204", del.StatusCode)
	}
	if got := len(f.eng.Views()); got != 1 {
		t.Errorf("engine views = %d, want 1", got)
	}

	req, _ = http.NewRequest(http.MethodDelete, f.srv.URL+"/api/views/nope", nil)
	del, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	_ = del.Body.Close()
	if del.StatusCode != http.StatusNotFound {
		t.Errorf("DELETE unknown status = %d, want 404", del.StatusCode)
	}
}

func TestServe_PDF(t *testing.T) {
	t.Parallel()

	f := newServeFixture(t)

	resp, body := get(t, f.srv.URL+"/pdf/trip.md")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d\n%s", resp.StatusCode, body)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("Content-Type = %q", ct)
	}
	if !strings.HasPrefix(body, "%PDF") {
		t.Errorf("body = %q", body)
	}
}

func TestServe_Metrics(t *testing.T) {
	t.Parallel()

	f := newServeFixture(t)
	get(t, f.srv.URL+"/healthz")

	resp, body := get(t, f.srv.URL+"/metrics")
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", resp.StatusCode)
	}
	if !strings.Contains(body, "mdbanner_http_requests_total") {
		t.Errorf("metrics missing http request counter")
	}
}

// ---------------------------------------------------------------------------
// TestStatusFor - error to HTTP status mapping
// ---------------------------------------------------------------------------

func TestStatusFor(t *testing.T) {
	t.Parallel()

	tests := []struct {
		err  error
		want int
	}{
		{mdbanner.ErrNoteNotFound, http.StatusNotFound},
		{mdbanner.ErrViewNotFound, http.StatusNotFound},
		{mdbanner.ErrOutsideVault, http.StatusForbidden},
		{fmt.Errorf("wait: %w", context.DeadlineExceeded), http.StatusGatewayTimeout},
		{mdbanner.ErrEngineClosed, http.StatusServiceUnavailable},
		{mdbanner.ErrPageLoad, http.StatusBadGateway},
		{errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.err); got != tt.want {
			t.Errorf("statusFor(%v) = %d, want %d", tt.err, got, tt.want)
		}
	}
}
