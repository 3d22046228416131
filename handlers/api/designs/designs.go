package designs

import (
	"cardstudio/core"
	"cardstudio/design"
	"cardstudio/handlers/api/respond"
	"cardstudio/i18n"
	"cardstudio/middleware"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/sirupsen/logrus"
)

type (
	// SaveRequest is the body of create and update. Items keep their ids.
	SaveRequest struct {
		Name       string          `json:"name"`
		Thumbnail  string          `json:"thumbnail,omitempty"`
		Items      []core.Item     `json:"items"`
		Background core.Background `json:"background"`
		SelectedID *string         `json:"selectedId,omitempty"`
	}

	AddItemRequest struct {
		Kind    core.ItemKind `json:"type"`
		Src     string        `json:"src"`
		X       *float64      `json:"x,omitempty"`
		Y       *float64      `json:"y,omitempty"`
		Width   *float64      `json:"width,omitempty"`
		Height  *float64      `json:"height,omitempty"`
		Content *string       `json:"content,omitempty"`
		Select  bool          `json:"select,omitempty"`
	}

	SelectRequest struct {
		ID *string `json:"id"`
	}

	// BackgroundRequest changes only what it names: Image replaces the
	// background image, ClearImage removes it.
	BackgroundRequest struct {
		Color      *string `json:"color,omitempty"`
		Image      *string `json:"image,omitempty"`
		ClearImage bool    `json:"clearImage,omitempty"`
	}
)

func HandleList(store core.DesignStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.UserID(w, r)
		if !ok {
			return
		}

		designs, err := store.List(r.Context(), userID)
		if err != nil {
			logrus.WithFields(logrus.Fields{"error": err, "userID": userID}).Error("Failed to list designs")
			respond.Error(w, r, http.StatusInternalServerError, i18n.MsgListFailed)
			return
		}
		if designs == nil {
			designs = []*core.Design{}
		}
		render.JSON(w, r, designs)
	}
}

func HandleGet(store core.DesignStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, _, ok := load(w, r, store)
		if !ok {
			return
		}
		render.JSON(w, r, d)
	}
}

// HandleCreate stores a new design under a fresh id.
func HandleCreate(store core.DesignStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.UserID(w, r)
		if !ok {
			return
		}
		save(w, r, store, &core.Design{ID: design.NewID(), UserID: userID}, http.StatusCreated)
	}
}

// HandleSave creates or replaces the design at {id}.
func HandleSave(store core.DesignStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.UserID(w, r)
		if !ok {
			return
		}
		id := chi.URLParam(r, "id")
		if id == "" {
			respond.Error(w, r, http.StatusBadRequest, i18n.MsgDesignKeyRequired)
			return
		}
		save(w, r, store, &core.Design{ID: id, UserID: userID}, http.StatusOK)
	}
}

func save(w http.ResponseWriter, r *http.Request, store core.DesignStore, d *core.Design, status int) {
	var req SaveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, r, http.StatusBadRequest, i18n.MsgInvalidBody)
		return
	}
	defer r.Body.Close()

	d.Name = req.Name
	d.Thumbnail = req.Thumbnail
	d.Items = req.Items
	d.Background = req.Background
	d.SelectedID = req.SelectedID

	// Going through the state drops a selection that points nowhere.
	st, err := design.FromDesign(d)
	if err != nil {
		respond.Error(w, r, http.StatusBadRequest, i18n.MsgInvalidBody)
		return
	}
	if err := st.ApplyTo(d); err != nil {
		respond.Error(w, r, http.StatusBadRequest, i18n.MsgInvalidBody)
		return
	}

	if err := store.Save(r.Context(), d); err != nil {
		logrus.WithFields(logrus.Fields{"error": err, "userID": d.UserID, "designID": d.ID}).Error("Failed to save design")
		respond.Error(w, r, http.StatusInternalServerError, i18n.MsgSaveFailed)
		return
	}
	render.Status(r, status)
	render.JSON(w, r, d)
}

func HandleDelete(store core.DesignStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, ok := middleware.UserID(w, r)
		if !ok {
			return
		}
		id := chi.URLParam(r, "id")

		if err := store.Delete(r.Context(), userID, id); err != nil {
			logrus.WithFields(logrus.Fields{"error": err, "userID": userID, "designID": id}).Warn("Failed to delete design")
			respond.StoreError(w, r, err, i18n.MsgDesignNotFound, i18n.MsgDeleteFailed)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

// HandleAddItem builds an item with the factory and puts it on top of the
// design.
func HandleAddItem(store core.DesignStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req AddItemRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respond.Error(w, r, http.StatusBadRequest, i18n.MsgInvalidBody)
			return
		}

		d, st, ok := load(w, r, store)
		if !ok {
			return
		}

		item := design.NewItem(req.Kind, req.Src, req.options()...)
		st.AddItem(item)
		if req.Select {
			st.Select(&item.ID)
		}
		if !commit(w, r, store, d, st) {
			return
		}
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, item)
	}
}

func (req AddItemRequest) options() []design.Option {
	var opts []design.Option
	if req.X != nil || req.Y != nil {
		x, y := float64(design.DefaultX), float64(design.DefaultY)
		if req.X != nil {
			x = *req.X
		}
		if req.Y != nil {
			y = *req.Y
		}
		opts = append(opts, design.WithPosition(x, y))
	}
	if req.Width != nil && req.Height != nil {
		opts = append(opts, design.WithSize(*req.Width, *req.Height))
	}
	if req.Content != nil {
		opts = append(opts, design.WithContent(*req.Content))
	}
	return opts
}

// HandleAddText appends a default text item and selects it.
func HandleAddText(store core.DesignStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, st, ok := load(w, r, store)
		if !ok {
			return
		}

		item := st.AddText()
		st.Select(&item.ID)
		if !commit(w, r, store, d, st) {
			return
		}
		render.Status(r, http.StatusCreated)
		render.JSON(w, r, item)
	}
}

// HandlePatchItem merges the body's attributes into one item. A patch for
// an item that is not in the design changes nothing and answers 404.
func HandlePatchItem(store core.DesignStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var patch map[string]any
		if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
			respond.Error(w, r, http.StatusBadRequest, i18n.MsgInvalidBody)
			return
		}

		d, st, ok := load(w, r, store)
		if !ok {
			return
		}
		itemID := chi.URLParam(r, "itemId")

		if err := st.UpdateItem(itemID, patch); err != nil {
			logrus.WithFields(logrus.Fields{"error": err, "designID": d.ID, "itemID": itemID}).Warn("Rejected item patch")
			respond.Error(w, r, http.StatusBadRequest, i18n.MsgInvalidPatch)
			return
		}
		item, found := findItem(st, itemID)
		if !found {
			respond.Error(w, r, http.StatusNotFound, i18n.MsgItemNotFound)
			return
		}
		if !commit(w, r, store, d, st) {
			return
		}
		render.JSON(w, r, item)
	}
}

// HandleRemoveSelected deletes the selected item. Without a selection it
// does nothing.
func HandleRemoveSelected(store core.DesignStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d, st, ok := load(w, r, store)
		if !ok {
			return
		}

		removed := st.RemoveSelected()
		if removed && !commit(w, r, store, d, st) {
			return
		}
		render.JSON(w, r, map[string]any{"removed": removed, "items": len(st.Items)})
	}
}

func HandleSelect(store core.DesignStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req SelectRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respond.Error(w, r, http.StatusBadRequest, i18n.MsgInvalidBody)
			return
		}

		d, st, ok := load(w, r, store)
		if !ok {
			return
		}

		st.Select(req.ID)
		if !commit(w, r, store, d, st) {
			return
		}
		render.JSON(w, r, map[string]*string{"selectedId": st.Selected})
	}
}

func HandleSetBackground(store core.DesignStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req BackgroundRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			respond.Error(w, r, http.StatusBadRequest, i18n.MsgInvalidBody)
			return
		}

		d, st, ok := load(w, r, store)
		if !ok {
			return
		}

		if req.Color != nil {
			st.SetBackground(*req.Color)
		}
		switch {
		case req.ClearImage:
			st.SetBackgroundImage(nil)
		case req.Image != nil:
			st.SetBackgroundImage(req.Image)
		}
		if !commit(w, r, store, d, st) {
			return
		}
		render.JSON(w, r, d.Background)
	}
}

// HandleFilter returns the CSS filter expression of an item.
func HandleFilter(store core.DesignStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, st, ok := load(w, r, store)
		if !ok {
			return
		}

		item, found := findItem(st, chi.URLParam(r, "itemId"))
		if !found {
			respond.Error(w, r, http.StatusNotFound, i18n.MsgItemNotFound)
			return
		}
		render.JSON(w, r, map[string]string{"filter": design.ItemFilterExpression(item)})
	}
}

// load fetches the design at {id} for the authenticated user and hydrates
// its state. On failure the response has been written.
func load(w http.ResponseWriter, r *http.Request, store core.DesignStore) (*core.Design, *design.State, bool) {
	userID, ok := middleware.UserID(w, r)
	if !ok {
		return nil, nil, false
	}
	id := chi.URLParam(r, "id")
	if id == "" {
		respond.Error(w, r, http.StatusBadRequest, i18n.MsgDesignKeyRequired)
		return nil, nil, false
	}

	d, err := store.Get(r.Context(), userID, id)
	if err != nil {
		logrus.WithFields(logrus.Fields{"error": err, "userID": userID, "designID": id}).Warn("Failed to get design")
		respond.StoreError(w, r, err, i18n.MsgDesignNotFound, i18n.MsgGenericFailure)
		return nil, nil, false
	}

	st, err := design.FromDesign(d)
	if err != nil {
		logrus.WithFields(logrus.Fields{"error": err, "designID": id}).Error("Failed to hydrate design")
		respond.Error(w, r, http.StatusInternalServerError, i18n.MsgGenericFailure)
		return nil, nil, false
	}
	return d, st, true
}

// commit writes the state back into d and saves it. On failure the
// response has been written.
func commit(w http.ResponseWriter, r *http.Request, store core.DesignStore, d *core.Design, st *design.State) bool {
	err := st.ApplyTo(d)
	if err == nil {
		err = store.Save(r.Context(), d)
	}
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, design.ErrNotSerializable) {
			status = http.StatusBadRequest
		}
		logrus.WithFields(logrus.Fields{"error": err, "designID": d.ID}).Error("Failed to save design")
		respond.Error(w, r, status, i18n.MsgSaveFailed)
		return false
	}
	return true
}

func findItem(st *design.State, id string) (core.Item, bool) {
	for _, item := range st.Items {
		if item.ID == id {
			return item, true
		}
	}
	return core.Item{}, false
}
