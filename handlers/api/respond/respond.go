// Package respond writes the JSON error bodies shared by the API handlers.
package respond

import (
	"cardstudio/core"
	"cardstudio/i18n"
	"errors"
	"net/http"

	"github.com/go-chi/render"
)

// Error writes {"error": msg} where msg is the catalog message key
// translated into the active language.
func Error(w http.ResponseWriter, r *http.Request, status int, key string, args ...any) {
	render.Status(r, status)
	render.JSON(w, r, map[string]string{"error": i18n.T(r.Context(), key, args...)})
}

// StoreError maps storage errors to statuses: ErrNotFound to 404,
// ErrConflict to 409 and anything else to 500 with failureKey.
func StoreError(w http.ResponseWriter, r *http.Request, err error, notFoundKey, failureKey string) {
	switch {
	case errors.Is(err, core.ErrNotFound):
		Error(w, r, http.StatusNotFound, notFoundKey)
	case errors.Is(err, core.ErrConflict):
		Error(w, r, http.StatusConflict, i18n.MsgGenericFailure)
	default:
		Error(w, r, http.StatusInternalServerError, failureKey)
	}
}
