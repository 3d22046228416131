package locale

import (
	"cardstudio/handlers/api/respond"
	"cardstudio/i18n"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/render"
)

type (
	Request struct {
		Language string `json:"language"`
	}

	Response struct {
		Language  string   `json:"language"`
		Supported []string `json:"supported"`
		Persisted *bool    `json:"persisted,omitempty"`
		Warning   string   `json:"warning,omitempty"`
	}
)

func supported() []string {
	out := make([]string, 0, len(i18n.Supported))
	for _, tag := range i18n.Supported {
		base, _ := tag.Base()
		out = append(out, base.String())
	}
	return out
}

func HandleGet(store *i18n.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		render.JSON(w, r, Response{Language: store.Code(), Supported: supported()})
	}
}

// HandleSet switches the interface language. A language that could not be
// written to disk still takes effect for the running process.
func HandleSet(store *i18n.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req Request
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respond.Error(w, r, http.StatusBadRequest, i18n.MsgInvalidBody)
			return
		}

		err := store.Set(req.Language)
		if errors.Is(err, i18n.ErrUnsupportedLanguage) {
			respond.Error(w, r, http.StatusBadRequest, i18n.MsgUnsupportedLanguage, req.Language)
			return
		}

		persisted := err == nil
		resp := Response{Language: store.Code(), Supported: supported(), Persisted: &persisted}
		if !persisted {
			resp.Warning = store.Sprintf(i18n.MsgLanguageNotPersisted)
		}
		render.JSON(w, r, resp)
	}
}
