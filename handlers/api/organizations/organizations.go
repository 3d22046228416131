package organizations

import (
	"cardstudio/core"
	"cardstudio/design"
	"cardstudio/handlers/api/respond"
	"cardstudio/i18n"
	"cardstudio/middleware"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
)

type Request struct {
	Name    string `json:"name"`
	Email   string `json:"email,omitempty"`
	LogoURL string `json:"logoUrl,omitempty"`
}

func HandleList(store core.OrganizationStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.UserID(w, r)
		if !ok {
			return
		}
		orgs, err := store.ListOrganizations(r.Context(), userID)
		if err != nil {
			logrus.WithFields(logrus.Fields{"error": err, "userID": userID}).Error("Failed to list organizations")
			respond.Error(w, r, http.StatusInternalServerError, i18n.MsgListFailed)
			return
		}
		if orgs == nil {
			orgs = []*core.Organization{}
		}
		render.JSON(w, r, orgs)
	}
}

func HandleGet(store core.OrganizationStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.UserID(w, r)
		if !ok {
			return
		}
		org, err := store.GetOrganization(r.Context(), userID, chi.URLParam(r, "id"))
		if err != nil {
			respond.StoreError(w, r, err, i18n.MsgOrganizationNotFound, i18n.MsgGenericFailure)
			return
		}
		render.JSON(w, r, org)
	}
}

func HandleCreate(store core.OrganizationStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.UserID(w, r)
		if !ok {
			return
		}
		org := &core.Organization{ID: design.NewID(), OwnerID: userID}
		save(w, r, store, org, http.StatusCreated)
	}
}

func HandleUpdate(store core.OrganizationStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.UserID(w, r)
		if !ok {
			return
		}
		org, err := store.GetOrganization(r.Context(), userID, chi.URLParam(r, "id"))
		if err != nil {
			respond.StoreError(w, r, err, i18n.MsgOrganizationNotFound, i18n.MsgGenericFailure)
			return
		}
		save(w, r, store, org, http.StatusOK)
	}
}

func save(w http.ResponseWriter, r *http.Request, store core.OrganizationStore, org *core.Organization, status int) {
	var req Request
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, r, http.StatusBadRequest, i18n.MsgInvalidBody)
		return
	}
	if strings.TrimSpace(req.Name) == "" {
		respond.Error(w, r, http.StatusBadRequest, i18n.MsgOrganizationNameEmpty)
		return
	}

	org.Name = strings.TrimSpace(req.Name)
	org.Email = strings.TrimSpace(req.Email)
	org.LogoURL = strings.TrimSpace(req.LogoURL)

	if err := store.SaveOrganization(r.Context(), org); err != nil {
		logrus.WithFields(logrus.Fields{"error": err, "organizationID": org.ID}).Error("Failed to save organization")
		respond.Error(w, r, http.StatusInternalServerError, i18n.MsgSaveFailed)
		return
	}
	render.Status(r, status)
	render.JSON(w, r, org)
}

func HandleDelete(store core.OrganizationStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.UserID(w, r)
		if !ok {
			return
		}
		if err := store.DeleteOrganization(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
			respond.StoreError(w, r, err, i18n.MsgOrganizationNotFound, i18n.MsgDeleteFailed)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
