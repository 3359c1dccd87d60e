package api

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/JakeFAU/bookmarks/internal/bookmark"
	"github.com/JakeFAU/bookmarks/internal/config"
	"github.com/JakeFAU/bookmarks/internal/metadata"
	"github.com/JakeFAU/bookmarks/internal/storage/memory"
)

const (
	alice = "alice"
	bob   = "bob"
)

func TestServer_Healthz(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, testDeps{})
	rec := do(t, srv, http.MethodGet, "/healthz", "", nil)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "ok")
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestServer_Readyz(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, testDeps{ready: &fakePinger{}})
	require.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/readyz", "", nil).Code)

	srv = newTestServer(t, testDeps{ready: &fakePinger{err: errors.New("db down")}})
	rec := do(t, srv, http.MethodGet, "/readyz", "", nil)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.NotContains(t, rec.Body.String(), "db down")
}

func TestServer_RequestIDIsEchoed(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, testDeps{})
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "req-123")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, "req-123", rec.Header().Get("X-Request-ID"))
}

func TestServer_RequiresIdentity(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, testDeps{})
	rec := do(t, srv, http.MethodGet, "/v1/bookmarks", "", nil)

	require.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestServer_CustomUserHeader(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, testDeps{auth: config.AuthConfig{UserHeader: "X-Forwarded-User"}})
	req := httptest.NewRequest(http.MethodGet, "/v1/collections", nil)
	req.Header.Set("X-Forwarded-User", alice)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_APIKeyMiddleware(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, testDeps{auth: config.AuthConfig{Enabled: true, APIKey: "secret"}})

	require.Equal(t, http.StatusOK, do(t, srv, http.MethodGet, "/healthz", "", nil).Code)
	require.Equal(t, http.StatusForbidden, do(t, srv, http.MethodGet, "/v1/bookmarks", alice, nil).Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/bookmarks", nil)
	req.Header.Set("X-API-Key", "secret")
	req.Header.Set(defaultUserHeader, alice)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestServer_BookmarkLifecycle(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, testDeps{})

	rec := do(t, srv, http.MethodPost, "/v1/bookmarks", alice, map[string]any{
		"url":   "https://go.dev",
		"title": "Go",
		"tags":  []string{" lang ", ""},
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[bookmark.Bookmark](t, rec)
	require.Equal(t, alice, created.UserID)
	require.Equal(t, []string{"lang"}, created.Tags)

	dup := do(t, srv, http.MethodPost, "/v1/bookmarks", alice, map[string]any{"url": "https://go.dev", "title": "Again"})
	require.Equal(t, http.StatusConflict, dup.Code)

	rec = do(t, srv, http.MethodGet, "/v1/bookmarks/"+created.ID, alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	require.Equal(t, http.StatusForbidden, do(t, srv, http.MethodGet, "/v1/bookmarks/"+created.ID, bob, nil).Code)
	require.Equal(t, http.StatusForbidden, do(t, srv, http.MethodDelete, "/v1/bookmarks/"+created.ID, bob, nil).Code)

	rec = do(t, srv, http.MethodPut, "/v1/bookmarks/"+created.ID, alice, map[string]any{
		"title":       "",
		"description": "The Go site",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decode[bookmark.Bookmark](t, rec)
	require.Equal(t, "Go", updated.Title)
	require.Equal(t, "The Go site", updated.Description)
	require.True(t, updated.UpdatedAt.After(created.UpdatedAt))

	rec = do(t, srv, http.MethodGet, "/v1/bookmarks", alice, nil)
	require.Len(t, decode[[]bookmark.Bookmark](t, rec), 1)
	rec = do(t, srv, http.MethodGet, "/v1/bookmarks", bob, nil)
	require.Equal(t, "[]\n", rec.Body.String())

	rec = do(t, srv, http.MethodDelete, "/v1/bookmarks/"+created.ID, alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"message":"bookmark removed"}`, rec.Body.String())

	require.Equal(t, http.StatusNotFound, do(t, srv, http.MethodDelete, "/v1/bookmarks/"+created.ID, alice, nil).Code)
	require.Equal(t, http.StatusNotFound, do(t, srv, http.MethodGet, "/v1/bookmarks/"+created.ID, alice, nil).Code)
}

func TestServer_CreateBookmarkRejectsBadInput(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, testDeps{})

	req := httptest.NewRequest(http.MethodPost, "/v1/bookmarks", bytes.NewBufferString("{invalid"))
	req.Header.Set(defaultUserHeader, alice)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Contains(t, rec.Body.String(), "invalid JSON")

	rec = do(t, srv, http.MethodPost, "/v1/bookmarks", alice, map[string]any{"title": "No URL"})
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = do(t, srv, http.MethodPost, "/v1/bookmarks", alice, map[string]any{"url": "https://go.dev"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_CreateBookmarkFillsMissingTitleFromPage(t *testing.T) {
	t.Parallel()

	extractor := &fakeExtractor{result: metadata.Result{
		Title:       "Example Domain",
		Description: "An example",
		Favicon:     "https://example.com/favicon.ico",
		Thumbnail:   "https://example.com/og.png",
		Body:        []byte("<html></html>"),
	}}
	archiver := &fakeArchiver{}
	srv := newTestServer(t, testDeps{extractor: extractor, archiver: archiver})

	rec := do(t, srv, http.MethodPost, "/v1/bookmarks", alice, map[string]any{"url": "https://example.com"})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[bookmark.Bookmark](t, rec)

	require.Equal(t, "Example Domain", created.Title)
	require.Equal(t, "An example", created.Description)
	require.Equal(t, "https://example.com/favicon.ico", created.Favicon)
	require.Equal(t, "https://example.com/og.png", created.Thumbnail)
	require.Equal(t, "memory://snapshots/alice/example.html", created.Snapshot)
	require.Equal(t, []string{"https://example.com"}, extractor.calls())
	require.Equal(t, 1, archiver.saves)
}

func TestServer_CreateBookmarkKeepsCallerFields(t *testing.T) {
	t.Parallel()

	extractor := &fakeExtractor{result: metadata.Result{Title: "From page", Description: "From page"}}
	srv := newTestServer(t, testDeps{extractor: extractor})

	rec := do(t, srv, http.MethodPost, "/v1/bookmarks", alice, map[string]any{
		"url":     "https://example.com",
		"title":   "Mine",
		"extract": true,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := decode[bookmark.Bookmark](t, rec)
	require.Equal(t, "Mine", created.Title)
	require.Equal(t, "From page", created.Description)
	require.Empty(t, created.Snapshot)

	rec = do(t, srv, http.MethodPost, "/v1/bookmarks", alice, map[string]any{
		"url":   "https://example.org",
		"title": "Titled",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Len(t, extractor.calls(), 1)
}

func TestServer_CreateBookmarkSurvivesArchiveFailure(t *testing.T) {
	t.Parallel()

	extractor := &fakeExtractor{result: metadata.Result{Title: "Page", Body: []byte("<html></html>")}}
	srv := newTestServer(t, testDeps{extractor: extractor, archiver: &fakeArchiver{err: errors.New("bucket gone")}})

	rec := do(t, srv, http.MethodPost, "/v1/bookmarks", alice, map[string]any{"url": "https://example.com"})
	require.Equal(t, http.StatusCreated, rec.Code)
	require.Empty(t, decode[bookmark.Bookmark](t, rec).Snapshot)
}

func TestServer_CreateBookmarkWithFailedExtraction(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, testDeps{extractor: &fakeExtractor{}})

	rec := do(t, srv, http.MethodPost, "/v1/bookmarks", alice, map[string]any{"url": "https://unreachable.invalid"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_SearchBookmarks(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, testDeps{})
	for _, body := range []map[string]any{
		{"url": "https://go.dev", "title": "Go", "tags": []string{"golang"}},
		{"url": "https://rust-lang.org", "title": "Rust", "description": "systems language"},
		{"url": "https://python.org", "title": "Python"},
	} {
		require.Equal(t, http.StatusCreated, do(t, srv, http.MethodPost, "/v1/bookmarks", alice, body).Code)
	}
	require.Equal(t, http.StatusCreated, do(t, srv, http.MethodPost, "/v1/bookmarks", bob,
		map[string]any{"url": "https://go.dev", "title": "Go"}).Code)

	rec := do(t, srv, http.MethodGet, "/v1/bookmarks/search?q=golang+SYSTEMS", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []string{"Rust", "Go"}, titles(decode[[]bookmark.Bookmark](t, rec)))

	rec = do(t, srv, http.MethodGet, "/v1/bookmarks/search/python", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []string{"Python"}, titles(decode[[]bookmark.Bookmark](t, rec)))

	rec = do(t, srv, http.MethodGet, "/v1/bookmarks/search?q=%21%21", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, decode[[]bookmark.Bookmark](t, rec))
}

func TestServer_SearchPathDecodedOnce(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, testDeps{})
	for _, body := range []map[string]any{
		{"url": "https://a.com", "title": "aA"},
		{"url": "https://b.com", "title": "Report 41"},
		{"url": "https://go.dev", "title": "Go"},
	} {
		require.Equal(t, http.StatusCreated, do(t, srv, http.MethodPost, "/v1/bookmarks", alice, body).Code)
	}

	// "%25" decodes to a literal percent sign; the query is "a%41", not "aA".
	rec := do(t, srv, http.MethodGet, "/v1/bookmarks/search/a%2541", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []string{"Report 41"}, titles(decode[[]bookmark.Bookmark](t, rec)))

	// An escaped slash keeps the segment intact and is decoded for the search.
	rec = do(t, srv, http.MethodGet, "/v1/bookmarks/search/go%2Fdev", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []string{"Go"}, titles(decode[[]bookmark.Bookmark](t, rec)))
}

func TestServer_CollectionLifecycle(t *testing.T) {
	t.Parallel()

	srv := newTestServer(t, testDeps{})

	rec := do(t, srv, http.MethodPost, "/v1/collections", alice, map[string]any{"name": "Reading"})
	require.Equal(t, http.StatusCreated, rec.Code)
	coll := decode[bookmark.Collection](t, rec)
	require.Equal(t, bookmark.DefaultCollectionColor, coll.Color)

	require.Equal(t, http.StatusConflict,
		do(t, srv, http.MethodPost, "/v1/collections", alice, map[string]any{"name": "Reading"}).Code)
	require.Equal(t, http.StatusBadRequest,
		do(t, srv, http.MethodPost, "/v1/collections", alice, map[string]any{"name": "Bad", "color": "blue"}).Code)

	rec = do(t, srv, http.MethodPost, "/v1/bookmarks", alice, map[string]any{
		"url": "https://go.dev", "title": "Go", "collection": coll.ID,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	linked := decode[bookmark.Bookmark](t, rec)

	rec = do(t, srv, http.MethodGet, "/v1/collections/"+coll.ID+"/bookmarks", alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []string{"Go"}, titles(decode[[]bookmark.Bookmark](t, rec)))
	require.Equal(t, http.StatusNotFound, do(t, srv, http.MethodGet, "/v1/collections/"+coll.ID+"/bookmarks", bob, nil).Code)

	rec = do(t, srv, http.MethodPut, "/v1/collections/"+coll.ID, alice, map[string]any{"color": "#000000"})
	require.Equal(t, http.StatusOK, rec.Code)
	updated := decode[bookmark.Collection](t, rec)
	require.Equal(t, "Reading", updated.Name)
	require.Equal(t, "#000000", updated.Color)

	rec = do(t, srv, http.MethodGet, "/v1/collections/"+coll.ID, alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, http.StatusForbidden, do(t, srv, http.MethodPut, "/v1/collections/"+coll.ID, bob, map[string]any{"name": "Mine"}).Code)

	rec = do(t, srv, http.MethodGet, "/v1/collections", alice, nil)
	require.Len(t, decode[[]bookmark.Collection](t, rec), 1)

	rec = do(t, srv, http.MethodDelete, "/v1/collections/"+coll.ID, alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"message":"collection removed"}`, rec.Body.String())

	rec = do(t, srv, http.MethodGet, "/v1/bookmarks/"+linked.ID, alice, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Empty(t, decode[bookmark.Bookmark](t, rec).CollectionID)
	require.Equal(t, http.StatusNotFound, do(t, srv, http.MethodGet, "/v1/collections/"+coll.ID, alice, nil).Code)
}

func TestServer_ExtractMetadata(t *testing.T) {
	t.Parallel()

	extractor := &fakeExtractor{result: metadata.Result{Title: "Example", Body: []byte("<html>")}}
	srv := newTestServer(t, testDeps{extractor: extractor})

	rec := do(t, srv, http.MethodPost, "/v1/metadata", alice, map[string]any{"url": " https://example.com "})
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"title":"Example","description":"","favicon":"","thumbnail":""}`, rec.Body.String())
	require.Equal(t, []string{"https://example.com"}, extractor.calls())

	require.Equal(t, http.StatusBadRequest, do(t, srv, http.MethodPost, "/v1/metadata", alice, map[string]any{}).Code)

	disabled := newTestServer(t, testDeps{})
	require.Equal(t, http.StatusServiceUnavailable,
		do(t, disabled, http.MethodPost, "/v1/metadata", alice, map[string]any{"url": "https://example.com"}).Code)
}

func TestServer_HidesStorageFailures(t *testing.T) {
	t.Parallel()

	failing := &failingBookmarks{err: &bookmark.PersistenceError{Op: "list bookmarks", Err: errors.New("connection reset")}}
	srv, err := NewServer(Dependencies{Bookmarks: failing, Collections: newServices(t).collections}, config.AuthConfig{}, zap.NewNop())
	require.NoError(t, err)

	rec := do(t, srv, http.MethodGet, "/v1/bookmarks", alice, nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.JSONEq(t, `{"error":"server error"}`, rec.Body.String())
}

func TestServer_RecoversFromPanics(t *testing.T) {
	t.Parallel()

	srv, err := NewServer(Dependencies{Bookmarks: &failingBookmarks{panics: true}, Collections: newServices(t).collections},
		config.AuthConfig{}, zap.NewNop())
	require.NoError(t, err)

	rec := do(t, srv, http.MethodGet, "/v1/bookmarks", alice, nil)
	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestNewServer_RequiresStores(t *testing.T) {
	t.Parallel()

	_, err := NewServer(Dependencies{}, config.AuthConfig{}, nil)
	require.Error(t, err)
}

func TestErrorStatus(t *testing.T) {
	t.Parallel()

	cases := []struct {
		err  error
		want int
	}{
		{fmt.Errorf("create: %w", bookmark.ErrValidation), http.StatusBadRequest},
		{fmt.Errorf("get: %w", bookmark.ErrUnauthorized), http.StatusForbidden},
		{fmt.Errorf("get: %w", bookmark.ErrNotFound), http.StatusNotFound},
		{fmt.Errorf("create: %w", bookmark.ErrDuplicate), http.StatusConflict},
		{&bookmark.PersistenceError{Op: "list", Err: errors.New("i/o timeout")}, http.StatusInternalServerError},
		{errors.New("anything else"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, errorStatus(tc.err), tc.err.Error())
	}
}

func TestResponseWriterHijackBehavior(t *testing.T) {
	t.Parallel()

	rw := &responseWriter{ResponseWriter: httptest.NewRecorder()}
	_, _, err := rw.Hijack()
	require.EqualError(t, err, "hijacker not supported")

	h := &hijackableRecorder{ResponseRecorder: httptest.NewRecorder()}
	rw = &responseWriter{ResponseWriter: h}
	conn, buf, err := rw.Hijack()
	require.NoError(t, err)
	require.NotNil(t, buf)
	require.NoError(t, conn.Close())
	require.NoError(t, h.CloseClient())
}

// --- helpers/fakes ---

type testDeps struct {
	extractor metadata.Source
	archiver  Archiver
	ready     Pinger
	auth      config.AuthConfig
}

type services struct {
	bookmarks   *bookmark.BookmarkService
	collections *bookmark.CollectionService
}

func newServices(t *testing.T) services {
	t.Helper()
	store := memory.NewStore()
	deps := bookmark.Dependencies{
		Bookmarks:   store,
		Collections: store,
		IDs:         &seqIDs{},
		Clock:       &stepClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)},
	}
	bookmarks, err := bookmark.NewBookmarkService(deps)
	require.NoError(t, err)
	collections, err := bookmark.NewCollectionService(deps)
	require.NoError(t, err)
	return services{bookmarks: bookmarks, collections: collections}
}

func newTestServer(t *testing.T, d testDeps) *Server {
	t.Helper()
	svc := newServices(t)
	srv, err := NewServer(Dependencies{
		Bookmarks:   svc.bookmarks,
		Collections: svc.collections,
		Extractor:   d.extractor,
		Archiver:    d.archiver,
		Ready:       d.ready,
	}, d.auth, zap.NewNop())
	require.NoError(t, err)
	return srv
}

func do(t *testing.T, srv *Server, method, path, user string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	if user != "" {
		req.Header.Set(defaultUserHeader, user)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func titles(in []bookmark.Bookmark) []string {
	out := make([]string, 0, len(in))
	for _, b := range in {
		out = append(out, b.Title)
	}
	return out
}

type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Second)
	return c.now
}

type seqIDs struct {
	mu sync.Mutex
	n  int
}

func (g *seqIDs) NewID() (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.n++
	return fmt.Sprintf("id-%03d", g.n), nil
}

type fakePinger struct{ err error }

func (p *fakePinger) Ping(context.Context) error { return p.err }

type fakeExtractor struct {
	mu     sync.Mutex
	result metadata.Result
	urls   []string
}

func (f *fakeExtractor) Extract(_ context.Context, rawURL string) metadata.Result {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.urls = append(f.urls, rawURL)
	return f.result
}

func (f *fakeExtractor) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.urls...)
}

type fakeArchiver struct {
	mu    sync.Mutex
	saves int
	err   error
}

func (a *fakeArchiver) Save(_ context.Context, userID, _ string, _ []byte) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.err != nil {
		return "", a.err
	}
	a.saves++
	return "memory://snapshots/" + userID + "/example.html", nil
}

type failingBookmarks struct {
	BookmarkStore
	err    error
	panics bool
}

func (f *failingBookmarks) List(context.Context, string) ([]bookmark.Bookmark, error) {
	if f.panics {
		panic("boom")
	}
	return nil, f.err
}

type hijackableRecorder struct {
	*httptest.ResponseRecorder
	client net.Conn
}

func (h *hijackableRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	server, client := net.Pipe()
	h.client = client
	return server, bufio.NewReadWriter(bufio.NewReader(server), bufio.NewWriter(server)), nil
}

func (h *hijackableRecorder) CloseClient() error {
	if h.client == nil {
		return nil
	}
	return h.client.Close()
}
