package middleware

import (
	"net/http"

	"github.com/gridworks/catalogbridge/internal/auth"
)

// PermissionsMiddleware attaches the caller's grant to the request
// context. Without an authenticating proxy in front every caller gets the
// default grant.
func PermissionsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := auth.ContextWithPermissions(r.Context(), auth.DefaultPermissions())
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
