package middleware

import (
	"cardstudio/i18n"
	"net/http"
)

// Locale makes the process-wide language store available to handlers
// through the request context.
func Locale(store *i18n.Store) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("Content-Language", store.Code())
			next.ServeHTTP(w, r.WithContext(i18n.WithStore(r.Context(), store)))
		})
	}
}
