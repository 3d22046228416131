package designs

import (
	"cardstudio/core"
	"cardstudio/design"
	"cardstudio/handlers/auth"
	"cardstudio/middleware"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
)

// Mock design store for testing
type mockDesignStore struct {
	mu      sync.Mutex
	designs map[string]*core.Design
	saveErr error
	saves   int
}

func newMockStore() *mockDesignStore {
	return &mockDesignStore{designs: make(map[string]*core.Design)}
}

func (m *mockDesignStore) key(userID, id string) string { return userID + "/" + id }

func (m *mockDesignStore) List(ctx context.Context, userID string) ([]*core.Design, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*core.Design
	for _, d := range m.designs {
		if d.UserID == userID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *mockDesignStore) Get(ctx context.Context, userID, id string) (*core.Design, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.designs[m.key(userID, id)]
	if !ok {
		return nil, fmt.Errorf("design %s: %w", id, core.ErrNotFound)
	}
	cp := *d
	return &cp, nil
}

func (m *mockDesignStore) Save(ctx context.Context, d *core.Design) error {
	if m.saveErr != nil {
		return m.saveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *d
	m.designs[m.key(d.UserID, d.ID)] = &cp
	m.saves++
	return nil
}

func (m *mockDesignStore) Delete(ctx context.Context, userID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.designs[m.key(userID, id)]; !ok {
		return fmt.Errorf("design %s: %w", id, core.ErrNotFound)
	}
	delete(m.designs, m.key(userID, id))
	return nil
}

func (m *mockDesignStore) seed(items ...core.Item) *core.Design {
	d := &core.Design{ID: "d1", UserID: "user-1", Name: "Anniversaire", Items: items, Background: core.Background{Color: "#ffffff"}}
	m.designs[m.key(d.UserID, d.ID)] = d
	return d
}

func newRequest(method, target, body string, params map[string]string) *http.Request {
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
	claims := &auth.AppClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"}}
	ctx = context.WithValue(ctx, middleware.ClaimsContextKey, claims)
	return req.WithContext(ctx)
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(rec.Body).Decode(&v); err != nil {
		t.Fatalf("Failed to decode response: %v", err)
	}
	return v
}

func TestHandleList_Unauthorized(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/designs", nil)
	rec := httptest.NewRecorder()

	HandleList(newMockStore())(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("Status code mismatch: got %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestHandleList_EmptyIsArray(t *testing.T) {
	rec := httptest.NewRecorder()
	HandleList(newMockStore())(rec, newRequest(http.MethodGet, "/api/v1/designs", "", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Status code mismatch: got %d", rec.Code)
	}
	if got := strings.TrimSpace(rec.Body.String()); got != "[]" {
		t.Errorf("body = %s, want []", got)
	}
}

func TestHandleCreate_DropsDanglingSelection(t *testing.T) {
	store := newMockStore()
	text := design.NewTextItem("Bonjour")
	body := fmt.Sprintf(`{"name":"Mariage","items":[%s],"background":{"color":"#eeeeee"},"selectedId":"ghost"}`, mustJSON(t, text))

	rec := httptest.NewRecorder()
	HandleCreate(store)(rec, newRequest(http.MethodPost, "/api/v1/designs", body, nil))

	if rec.Code != http.StatusCreated {
		t.Fatalf("Status code mismatch: got %d, body %s", rec.Code, rec.Body.String())
	}
	d := decode[core.Design](t, rec)
	if d.ID == "" || d.Name != "Mariage" {
		t.Errorf("unexpected design: %+v", d)
	}
	if d.SelectedID != nil {
		t.Errorf("dangling selection kept: %v", *d.SelectedID)
	}
	if len(d.Items) != 1 || d.Items[0].ID != text.ID {
		t.Errorf("items = %+v", d.Items)
	}
}

func TestHandleSave_InvalidBody(t *testing.T) {
	rec := httptest.NewRecorder()
	HandleSave(newMockStore())(rec, newRequest(http.MethodPut, "/api/v1/designs/d1", "{", map[string]string{"id": "d1"}))

	if rec.Code != http.StatusBadRequest {
		t.Errorf("Status code mismatch: got %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestHandleGet_NotFound(t *testing.T) {
	rec := httptest.NewRecorder()
	HandleGet(newMockStore())(rec, newRequest(http.MethodGet, "/api/v1/designs/nope", "", map[string]string{"id": "nope"}))

	if rec.Code != http.StatusNotFound {
		t.Errorf("Status code mismatch: got %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestHandleDelete(t *testing.T) {
	store := newMockStore()
	store.seed()

	rec := httptest.NewRecorder()
	HandleDelete(store)(rec, newRequest(http.MethodDelete, "/api/v1/designs/d1", "", map[string]string{"id": "d1"}))
	if rec.Code != http.StatusNoContent {
		t.Fatalf("Status code mismatch: got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	HandleDelete(store)(rec, newRequest(http.MethodDelete, "/api/v1/designs/d1", "", map[string]string{"id": "d1"}))
	if rec.Code != http.StatusNotFound {
		t.Errorf("second delete: got %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestHandleAddItem_Video(t *testing.T) {
	store := newMockStore()
	store.seed()

	body := `{"type":"video","src":"https://cdn.example.com/clip.mp4","x":10,"select":true}`
	rec := httptest.NewRecorder()
	HandleAddItem(store)(rec, newRequest(http.MethodPost, "/api/v1/designs/d1/items", body, map[string]string{"id": "d1"}))

	if rec.Code != http.StatusCreated {
		t.Fatalf("Status code mismatch: got %d, body %s", rec.Code, rec.Body.String())
	}
	item := decode[core.Item](t, rec)
	if item.Kind != core.KindVideo || item.X != 10 || item.Y != design.DefaultY {
		t.Errorf("unexpected item: %+v", item)
	}
	if item.VideoProps == nil || !item.Muted || item.AutoPlay || item.Loop {
		t.Errorf("unexpected video defaults: %+v", item.VideoProps)
	}

	saved := store.designs["user-1/d1"]
	if len(saved.Items) != 1 || saved.SelectedID == nil || *saved.SelectedID != item.ID {
		t.Errorf("design not updated: %+v", saved)
	}
}

func TestHandleAddText(t *testing.T) {
	store := newMockStore()
	store.seed()

	rec := httptest.NewRecorder()
	HandleAddText(store)(rec, newRequest(http.MethodPost, "/api/v1/designs/d1/text", "", map[string]string{"id": "d1"}))

	if rec.Code != http.StatusCreated {
		t.Fatalf("Status code mismatch: got %d", rec.Code)
	}
	item := decode[core.Item](t, rec)
	if item.Kind != core.KindText || item.Content != design.DefaultTextContent {
		t.Errorf("unexpected text item: %+v", item)
	}
}

func TestHandlePatchItem(t *testing.T) {
	store := newMockStore()
	text := design.NewTextItem("Bonjour")
	store.seed(text)
	params := map[string]string{"id": "d1", "itemId": text.ID}

	rec := httptest.NewRecorder()
	HandlePatchItem(store)(rec, newRequest(http.MethodPatch, "/", `{"x":5,"id":"hijack","content":"Salut"}`, params))
	if rec.Code != http.StatusOK {
		t.Fatalf("Status code mismatch: got %d, body %s", rec.Code, rec.Body.String())
	}
	item := decode[core.Item](t, rec)
	if item.ID != text.ID || item.X != 5 || item.Content != "Salut" {
		t.Errorf("unexpected patched item: %+v", item)
	}

	rec = httptest.NewRecorder()
	HandlePatchItem(store)(rec, newRequest(http.MethodPatch, "/", `{"x":7}`, map[string]string{"id": "d1", "itemId": "ghost"}))
	if rec.Code != http.StatusNotFound {
		t.Errorf("patch miss: got %d, want %d", rec.Code, http.StatusNotFound)
	}
	if store.designs["user-1/d1"].Items[0].X != 5 {
		t.Error("patch miss changed the design")
	}

	rec = httptest.NewRecorder()
	HandlePatchItem(store)(rec, newRequest(http.MethodPatch, "/", `{"x":"far"}`, params))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("invalid patch: got %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestHandleSelectAndRemoveSelected(t *testing.T) {
	store := newMockStore()
	a, b := design.NewTextItem("a"), design.NewTextItem("b")
	store.seed(a, b)
	params := map[string]string{"id": "d1"}

	rec := httptest.NewRecorder()
	HandleRemoveSelected(store)(rec, newRequest(http.MethodDelete, "/", "", params))
	if got := decode[map[string]any](t, rec); got["removed"] != false {
		t.Errorf("remove without selection: %v", got)
	}
	if store.saves != 0 {
		t.Error("no-op removal should not save")
	}

	rec = httptest.NewRecorder()
	HandleSelect(store)(rec, newRequest(http.MethodPut, "/", fmt.Sprintf(`{"id":%q}`, a.ID), params))
	if rec.Code != http.StatusOK {
		t.Fatalf("select: got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	HandleRemoveSelected(store)(rec, newRequest(http.MethodDelete, "/", "", params))
	if got := decode[map[string]any](t, rec); got["removed"] != true {
		t.Errorf("remove selected: %v", got)
	}
	saved := store.designs["user-1/d1"]
	if len(saved.Items) != 1 || saved.Items[0].ID != b.ID || saved.SelectedID != nil {
		t.Errorf("unexpected design after removal: %+v", saved)
	}
}

func TestHandleSelect_UnknownClears(t *testing.T) {
	store := newMockStore()
	a := design.NewTextItem("a")
	d := store.seed(a)
	d.SelectedID = &a.ID

	rec := httptest.NewRecorder()
	HandleSelect(store)(rec, newRequest(http.MethodPut, "/", `{"id":"ghost"}`, map[string]string{"id": "d1"}))

	got := decode[map[string]*string](t, rec)
	if got["selectedId"] != nil {
		t.Errorf("selectedId = %v, want null", *got["selectedId"])
	}
}

func TestHandleSetBackground(t *testing.T) {
	store := newMockStore()
	store.seed()
	params := map[string]string{"id": "d1"}

	rec := httptest.NewRecorder()
	HandleSetBackground(store)(rec, newRequest(http.MethodPut, "/", `{"color":"#ff0000","image":"bg.png"}`, params))
	bg := decode[core.Background](t, rec)
	if bg.Color != "#ff0000" || bg.Image == nil || *bg.Image != "bg.png" {
		t.Errorf("unexpected background: %+v", bg)
	}

	rec = httptest.NewRecorder()
	HandleSetBackground(store)(rec, newRequest(http.MethodPut, "/", `{"color":"#00ff00"}`, params))
	bg = decode[core.Background](t, rec)
	if bg.Image == nil {
		t.Error("changing the color cleared the image")
	}

	rec = httptest.NewRecorder()
	HandleSetBackground(store)(rec, newRequest(http.MethodPut, "/", `{"clearImage":true}`, params))
	bg = decode[core.Background](t, rec)
	if bg.Image != nil || bg.Color != "#00ff00" {
		t.Errorf("unexpected background: %+v", bg)
	}
}

func TestHandleFilter(t *testing.T) {
	store := newMockStore()
	img := design.NewItem(core.KindImage, "photo.jpg")
	img.Filter.Brightness = 120
	img.Filter.Blur = 2.5
	store.seed(img)

	rec := httptest.NewRecorder()
	HandleFilter(store)(rec, newRequest(http.MethodGet, "/", "", map[string]string{"id": "d1", "itemId": img.ID}))

	got := decode[map[string]string](t, rec)
	want := "brightness(120%) contrast(100%) saturate(100%) blur(2.5px) grayscale(0%)"
	if got["filter"] != want {
		t.Errorf("filter = %q, want %q", got["filter"], want)
	}
}

func TestCommit_SaveFailure(t *testing.T) {
	store := newMockStore()
	store.seed()
	store.saveErr = errors.New("disk full")

	rec := httptest.NewRecorder()
	HandleAddText(store)(rec, newRequest(http.MethodPost, "/", "", map[string]string{"id": "d1"}))
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("Status code mismatch: got %d, want %d", rec.Code, http.StatusInternalServerError)
	}
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}
