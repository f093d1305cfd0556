package webdav

import (
	"net/http"

	"go.uber.org/zap"
	"golang.org/x/net/webdav"

	"github.com/lanbox/lanbox/internal/auth"
	"github.com/lanbox/lanbox/internal/logging"
	"github.com/lanbox/lanbox/internal/sandbox"
)

// Prefix is the URL path the DAV tree is mounted under.
const Prefix = "/dav"

// NewHandler builds the authenticated, read-only WebDAV endpoint.
func NewHandler(a *sandbox.Authority, gate *auth.Gate) http.Handler {
	dav := &webdav.Handler{
		Prefix:     Prefix,
		FileSystem: &osFS{authority: a},
		LockSystem: webdav.NewMemLS(),
		Logger: func(r *http.Request, err error) {
			if err != nil {
				logging.Debug("dav request failed",
					zap.String("method", r.Method),
					zap.String("path", r.URL.Path),
					zap.Error(err))
			}
		},
	}
	return requireAuth(gate, readOnly(dav))
}

// readOnly rejects every method that could modify the tree. Clients see
// the share as a mounted volume they cannot write to.
func readOnly(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodOptions, http.MethodGet, http.MethodHead, "PROPFIND":
			next.ServeHTTP(w, r)
		default:
			http.Error(w, "read-only share", http.StatusForbidden)
		}
	})
}
