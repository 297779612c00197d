package middleware

import (
	"net/http"
	"strings"

	chiMiddleware "github.com/go-chi/chi/v5/middleware"
)

// BasicAuthFolders requires HTTP basic auth for paths under any of folders.
// Other paths pass through untouched.
func BasicAuthFolders(realm, username, password string, folders []string) func(http.Handler) http.Handler {
	auth := chiMiddleware.BasicAuth(realm, map[string]string{username: password})
	return func(next http.Handler) http.Handler {
		protected := auth(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, folder := range folders {
				if folder != "" && strings.HasPrefix(r.URL.Path, folder) {
					protected.ServeHTTP(w, r)
					return
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}
