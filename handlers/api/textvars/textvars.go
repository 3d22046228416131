package textvars

import (
	"cardstudio/handlers/api/respond"
	"cardstudio/i18n"
	"cardstudio/textvar"
	"encoding/json"
	"net/http"

	"github.com/go-chi/render"
)

type (
	RenderRequest struct {
		Template string            `json:"template"`
		Values   map[string]string `json:"values,omitempty"`
	}

	RenderResponse struct {
		Text string `json:"text"`
	}
)

func HandleCatalog() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, textvar.Catalog())
	}
}

// HandleRender previews a template with sample values. Missing values fall
// back to the catalog defaults.
func HandleRender() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req RenderRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respond.Error(w, r, http.StatusBadRequest, i18n.MsgInvalidBody)
			return
		}
		render.JSON(w, r, RenderResponse{Text: textvar.Substitute(req.Template, req.Values)})
	}
}
