package webdav

import (
	"net/http"

	"github.com/lanbox/lanbox/internal/auth"
)

// requireAuth admits requests carrying a valid session cookie or HTTP Basic
// credentials whose password is the access key. DAV clients cannot drive the
// login form, so Basic is the usual path for them.
func requireAuth(gate *auth.Gate, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if gate.VerifyBasic(r) {
			next.ServeHTTP(w, r)
			return
		}
		w.Header().Set("WWW-Authenticate", `Basic realm="lanbox"`)
		http.Error(w, "authentication required", http.StatusUnauthorized)
	})
}
