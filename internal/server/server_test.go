package server

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mikahagenbeek692/MovieManager/internal/config"
	"github.com/mikahagenbeek692/MovieManager/internal/middleware"
)

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	catalog := filepath.Join(t.TempDir(), "movies.json")
	require.NoError(t, os.WriteFile(catalog, []byte(`[
		{"id":1,"title":"Heat","releaseYear":1995,"genre":"Action,Drama","rating":8.3},
		{"id":2,"title":"Moonlight","releaseYear":2016,"genre":"Drama","rating":7.4}
	]`), 0o644))

	return &config.Config{
		Port:            0,
		DB:              config.DBConfig{Driver: "sqlite", DSN: ":memory:"},
		Auth:            config.AuthConfig{JWTSecret: "server-test-secret-0123456789", TokenTTL: time.Hour},
		CacheTTL:        time.Minute,
		LoginRateLimit:  3,
		LoginRateWindow: time.Minute,
		CatalogPath:     catalog,
	}
}

func newTestServer(t *testing.T, cfg *config.Config) *httptest.Server {
	t.Helper()
	s, err := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	ts := httptest.NewServer(s.Handler())
	t.Cleanup(ts.Close)
	return ts
}

// browser is an HTTP client with a cookie jar that echoes the CSRF cookie
// in the header, like the frontend does.
type browser struct {
	t      *testing.T
	base   string
	client *http.Client
}

func newBrowser(t *testing.T, base string) *browser {
	jar, err := cookiejar.New(nil)
	require.NoError(t, err)
	return &browser{t: t, base: base, client: &http.Client{Jar: jar}}
}

func (b *browser) do(method, path string, body any) *http.Response {
	b.t.Helper()
	var r io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		require.NoError(b.t, err)
		r = bytes.NewReader(buf)
	}
	req, err := http.NewRequest(method, b.base+path, r)
	require.NoError(b.t, err)
	req.Header.Set("Content-Type", "application/json")

	u, _ := url.Parse(b.base)
	for _, c := range b.client.Jar.Cookies(u) {
		if c.Name == middleware.CSRFCookie {
			req.Header.Set(middleware.CSRFHeader, c.Value)
		}
	}

	resp, err := b.client.Do(req)
	require.NoError(b.t, err)
	b.t.Cleanup(func() { resp.Body.Close() })
	return resp
}

// =========================================================================
// ROUTING
// =========================================================================

func TestNew_ImportsCatalog(t *testing.T) {
	ts := newTestServer(t, testConfig(t))

	resp, err := http.Get(ts.URL + "/api/movies")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var movies []map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&movies))
	assert.Len(t, movies, 2)
}

func TestNew_BadCatalog(t *testing.T) {
	cfg := testConfig(t)
	cfg.CatalogPath = filepath.Join(t.TempDir(), "missing.json")
	_, err := New(cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Error(t, err)
}

func TestProtectedRoutesNeedSession(t *testing.T) {
	ts := newTestServer(t, testConfig(t))
	b := newBrowser(t, ts.URL)

	for _, path := range []string{"/me", "/home", "/api/users", "/api/getWatchList?username=a", "/api/recommendations"} {
		assert.Equal(t, http.StatusUnauthorized, b.do(http.MethodGet, path, nil).StatusCode, path)
	}
}

// =========================================================================
// END TO END
// =========================================================================

func TestSessionAndSaveFlow(t *testing.T) {
	ts := newTestServer(t, testConfig(t))
	b := newBrowser(t, ts.URL)

	resp := b.do(http.MethodPost, "/register", map[string]string{
		"username": "alice", "password": "password123", "email": "alice@example.com",
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = b.do(http.MethodPost, "/login", map[string]string{"username": "alice", "password": "password123"})
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = b.do(http.MethodGet, "/home", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	save := map[string]any{
		"username":    "alice",
		"movieTitles": []map[string]any{{"id": 1, "watched": true, "favorite": false}, {"id": 2}},
	}

	// No CSRF cookie yet: the double-submit check refuses the save.
	resp = b.do(http.MethodPost, "/saveWatchList", save)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	resp = b.do(http.MethodGet, "/csrf-token", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp = b.do(http.MethodPost, "/saveWatchList", save)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	var saved map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&saved))
	assert.Equal(t, "Drama, Action", saved["favoriteGenres"])

	resp = b.do(http.MethodGet, "/api/getWatchList?username=alice", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "1", resp.Header.Get("X-Watchlist-Version"))

	resp = b.do(http.MethodPost, "/logout", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, http.StatusUnauthorized, b.do(http.MethodGet, "/me", nil).StatusCode)
}

func TestLoginRateLimit(t *testing.T) {
	ts := newTestServer(t, testConfig(t))
	b := newBrowser(t, ts.URL)

	creds := map[string]string{"username": "ghost", "password": "password123"}
	for i := 0; i < 3; i++ {
		assert.Equal(t, http.StatusNotFound, b.do(http.MethodPost, "/login", creds).StatusCode)
	}

	resp := b.do(http.MethodPost, "/login", creds)
	assert.Equal(t, http.StatusTooManyRequests, resp.StatusCode)
	assert.NotEmpty(t, resp.Header.Get("Retry-After"))
}
