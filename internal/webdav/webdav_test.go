package webdav

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lanbox/lanbox/internal/auth"
	"github.com/lanbox/lanbox/internal/sandbox"
)

// fixture is a share with one file, one subdirectory, and a secret file
// outside the sandbox.
type fixture struct {
	handler http.Handler
	root    string
	secret  string
}

func newFixture(t *testing.T, key string) fixture {
	t.Helper()
	parent := t.TempDir()
	root := filepath.Join(parent, "share")
	require.NoError(t, os.MkdirAll(filepath.Join(root, "photos"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "notes.txt"), []byte("hello dav"), 0o644))
	secret := filepath.Join(parent, "secret.txt")
	require.NoError(t, os.WriteFile(secret, []byte("top secret"), 0o600))

	a, err := sandbox.New(root, []string{root})
	require.NoError(t, err)
	gate := auth.NewGate(key, auth.NewStore(0))
	return fixture{handler: NewHandler(a, gate), root: root, secret: secret}
}

func (f fixture) do(r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	f.handler.ServeHTTP(w, r)
	return w
}

func TestGetFile(t *testing.T) {
	f := newFixture(t, "")

	w := f.do(httptest.NewRequest(http.MethodGet, "/dav/notes.txt", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hello dav", w.Body.String())
}

func TestGetMissingFile(t *testing.T) {
	f := newFixture(t, "")

	w := f.do(httptest.NewRequest(http.MethodGet, "/dav/nope.txt", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestWriteMethodsForbidden(t *testing.T) {
	f := newFixture(t, "")

	for _, method := range []string{
		http.MethodPut, http.MethodDelete, http.MethodPost,
		"MKCOL", "MOVE", "COPY", "PROPPATCH", "LOCK", "UNLOCK",
	} {
		t.Run(method, func(t *testing.T) {
			w := f.do(httptest.NewRequest(method, "/dav/notes.txt", nil))
			assert.Equal(t, http.StatusForbidden, w.Code)
		})
	}
}

func TestPropfindListsChildren(t *testing.T) {
	f := newFixture(t, "")

	req := httptest.NewRequest("PROPFIND", "/dav/", nil)
	req.Header.Set("Depth", "1")
	w := f.do(req)

	assert.Equal(t, http.StatusMultiStatus, w.Code)
	body := w.Body.String()
	assert.Contains(t, body, "notes.txt")
	assert.Contains(t, body, "photos")
}

func TestPropfindHidesSymlinkEscape(t *testing.T) {
	f := newFixture(t, "")
	if err := os.Symlink(f.secret, filepath.Join(f.root, "escape")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	req := httptest.NewRequest("PROPFIND", "/dav/", nil)
	req.Header.Set("Depth", "1")
	w := f.do(req)

	assert.Equal(t, http.StatusMultiStatus, w.Code)
	assert.NotContains(t, w.Body.String(), "escape")
}

func TestSymlinkEscapeNotServed(t *testing.T) {
	f := newFixture(t, "")
	if err := os.Symlink(f.secret, filepath.Join(f.root, "escape")); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	w := f.do(httptest.NewRequest(http.MethodGet, "/dav/escape", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.NotContains(t, w.Body.String(), "top secret")
}

func TestTraversalStaysInsideShare(t *testing.T) {
	f := newFixture(t, "")

	w := f.do(httptest.NewRequest(http.MethodGet, "/dav/../secret.txt", nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.NotContains(t, w.Body.String(), "top secret")
}

func TestBasicAuthRequired(t *testing.T) {
	f := newFixture(t, "sesame")

	w := f.do(httptest.NewRequest(http.MethodGet, "/dav/notes.txt", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.Contains(t, w.Header().Get("WWW-Authenticate"), "Basic")

	req := httptest.NewRequest(http.MethodGet, "/dav/notes.txt", nil)
	req.SetBasicAuth("ignored", "wrong")
	w = f.do(req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/dav/notes.txt", nil)
	req.SetBasicAuth("ignored", "sesame")
	w = f.do(req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "hello dav", w.Body.String())
}

func TestSessionCookieAccepted(t *testing.T) {
	sessions := auth.NewStore(0)
	tok, err := sessions.Mint()
	require.NoError(t, err)

	parent := t.TempDir()
	root := filepath.Join(parent, "share")
	require.NoError(t, os.MkdirAll(root, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), []byte("x"), 0o644))
	a, err := sandbox.New(root, []string{root})
	require.NoError(t, err)
	h := NewHandler(a, auth.NewGate("sesame", sessions))

	req := httptest.NewRequest(http.MethodGet, "/dav/a.txt", nil)
	req.AddCookie(&http.Cookie{Name: auth.CookieName, Value: tok})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestOptionsAdvertisesDAV(t *testing.T) {
	f := newFixture(t, "")

	w := f.do(httptest.NewRequest(http.MethodOptions, "/dav/", nil))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("DAV"))
}
