package invitations

import (
	"bytes"
	"cardstudio/core"
	"cardstudio/design"
	"cardstudio/handlers/auth"
	"cardstudio/mailer"
	"cardstudio/metrics"
	"cardstudio/middleware"
	"cardstudio/stores/memory"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	dto "github.com/prometheus/client_model/go"
)

type fakeSender struct {
	sent    []*core.Invitation
	fail    bool
	limited map[string]bool
}

func (s *fakeSender) Send(ctx context.Context, inv *core.Invitation, organizer string) error {
	if s.fail || s.limited[inv.Recipient.Email] {
		return errors.New("provider down")
	}
	s.sent = append(s.sent, inv)
	return nil
}

func (s *fakeSender) SendBulk(ctx context.Context, invitations []*core.Invitation, organizer string) mailer.BulkResult {
	result := mailer.BulkResult{Total: len(invitations)}
	for _, inv := range invitations {
		r := mailer.Result{Token: inv.Token, Email: inv.Recipient.Email}
		if err := s.Send(ctx, inv, organizer); err != nil {
			r.Error = err.Error()
			result.Failed++
		} else {
			r.Sent = true
			result.Sent++
		}
		result.Results = append(result.Results, r)
	}
	return result
}

func (s *fakeSender) Link(token string) string { return "http://localhost/invitation/" + token }

var fixedNow = time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)

func newHandler(t *testing.T) (*Handler, *fakeSender) {
	t.Helper()
	store := memory.NewStore()
	d := &core.Design{ID: "d1", UserID: "user-1", Name: "Mariage"}
	st := design.NewState()
	st.AddText()
	if err := st.ApplyTo(d); err != nil {
		t.Fatal(err)
	}
	if err := store.Save(context.Background(), d); err != nil {
		t.Fatal(err)
	}
	sender := &fakeSender{}
	return &Handler{Store: store, Sender: sender, TTL: 24 * time.Hour, Now: func() time.Time { return fixedNow }}, sender
}

func newRequest(method, body string, params map[string]string) *http.Request {
	req := httptest.NewRequest(method, "/", bytes.NewBufferString(body))
	rctx := chi.NewRouteContext()
	for k, v := range params {
		rctx.URLParams.Add(k, v)
	}
	ctx := context.WithValue(req.Context(), chi.RouteCtxKey, rctx)
	claims := &auth.AppClaims{RegisteredClaims: jwt.RegisteredClaims{Subject: "user-1"}}
	ctx = context.WithValue(ctx, middleware.ClaimsContextKey, claims)
	return req.WithContext(ctx)
}

func TestHandleSend(t *testing.T) {
	h, sender := newHandler(t)

	body := `{"designId":"d1","recipient":{"name":"Alice Martin","email":"alice@example.com"},"message":"Bonjour {{prenom}}"}`
	rec := httptest.NewRecorder()
	h.HandleSend(rec, newRequest(http.MethodPost, body, nil))

	if rec.Code != http.StatusCreated {
		t.Fatalf("Status code mismatch: got %d, body %s", rec.Code, rec.Body.String())
	}
	var resp SendResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if _, err := uuid.Parse(resp.Invitation.Token); err != nil {
		t.Errorf("token is not a uuid: %q", resp.Invitation.Token)
	}
	if resp.Link != "http://localhost/invitation/"+resp.Invitation.Token {
		t.Errorf("link = %q", resp.Link)
	}
	if len(resp.Invitation.Items) != 1 || resp.Invitation.DesignID != "d1" {
		t.Errorf("snapshot missing: %+v", resp.Invitation)
	}
	if resp.Invitation.ExpiresAt == nil || !resp.Invitation.ExpiresAt.Equal(fixedNow.Add(24*time.Hour)) {
		t.Errorf("ExpiresAt = %v", resp.Invitation.ExpiresAt)
	}
	if len(sender.sent) != 1 {
		t.Errorf("sent %d mails, want 1", len(sender.sent))
	}
}

func TestHandleSend_Errors(t *testing.T) {
	testCases := []struct {
		name   string
		body   string
		status int
	}{
		{"invalid body", "{", http.StatusBadRequest},
		{"no email", `{"designId":"d1","recipient":{"name":"Bob"}}`, http.StatusBadRequest},
		{"no design", `{"recipient":{"email":"bob@example.com"}}`, http.StatusBadRequest},
		{"unknown design", `{"designId":"nope","recipient":{"email":"bob@example.com"}}`, http.StatusNotFound},
		{"unknown organization", `{"designId":"d1","organizationId":"org","recipient":{"email":"bob@example.com"}}`, http.StatusNotFound},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			h, _ := newHandler(t)
			rec := httptest.NewRecorder()
			h.HandleSend(rec, newRequest(http.MethodPost, tc.body, nil))
			if rec.Code != tc.status {
				t.Errorf("Status code mismatch: got %d, want %d", rec.Code, tc.status)
			}
		})
	}
}

func TestHandleSend_MailFailureKeepsInvitation(t *testing.T) {
	h, sender := newHandler(t)
	sender.fail = true

	rec := httptest.NewRecorder()
	h.HandleSend(rec, newRequest(http.MethodPost, `{"designId":"d1","recipient":{"email":"bob@example.com"}}`, nil))

	if rec.Code != http.StatusBadGateway {
		t.Fatalf("Status code mismatch: got %d", rec.Code)
	}
	var body map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatal(err)
	}
	if body["error"] == "" || body["token"] == "" {
		t.Errorf("unexpected body: %v", body)
	}
	if _, err := h.Store.FindInvitation(context.Background(), body["token"]); err != nil {
		t.Errorf("invitation not kept: %v", err)
	}
}

func TestHandleSendBulk(t *testing.T) {
	h, sender := newHandler(t)
	sender.limited = map[string]bool{"bounce@example.com": true}

	body := `{"designId":"d1","recipients":[
		{"name":"Alice","email":"alice@example.com"},
		{"name":"Bounce","email":"bounce@example.com"},
		{"name":"No mail"},
		{"name":"Carol","email":"carol@example.com"}]}`
	rec := httptest.NewRecorder()
	h.HandleSendBulk(rec, newRequest(http.MethodPost, body, nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("Status code mismatch: got %d, body %s", rec.Code, rec.Body.String())
	}
	var result mailer.BulkResult
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatal(err)
	}
	if result.Total != 4 || result.Sent != 2 || result.Failed != 2 {
		t.Errorf("counts = total %d sent %d failed %d", result.Total, result.Sent, result.Failed)
	}

	tokens := map[string]bool{}
	for _, r := range result.Results {
		if r.Token != "" {
			tokens[r.Token] = true
		}
	}
	if len(tokens) != 3 {
		t.Errorf("expected 3 distinct tokens, got %d", len(tokens))
	}

	list, err := h.Store.ListInvitations(context.Background(), "user-1")
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 3 {
		t.Errorf("stored %d invitations, want 3", len(list))
	}
}

func TestHandleSendBulk_NoRecipients(t *testing.T) {
	h, _ := newHandler(t)
	rec := httptest.NewRecorder()
	h.HandleSendBulk(rec, newRequest(http.MethodPost, `{"designId":"d1","recipients":[{"name":"x"}]}`, nil))
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Status code mismatch: got %d", rec.Code)
	}
}

func TestHandleView(t *testing.T) {
	h, _ := newHandler(t)
	ctx := context.Background()
	inv := &core.Invitation{
		Token:     uuid.NewString(),
		OwnerID:   "user-1",
		Recipient: core.Recipient{Name: "Alice Martin", Email: "alice@example.com"},
		Event:     &core.Event{Title: "le mariage"},
		Message:   "Chère {{prenom}}, bienvenue à {{evenement}} à {{heure}} {{inconnu}}",
		CreatedAt: fixedNow,
	}
	if err := h.Store.CreateInvitation(ctx, inv); err != nil {
		t.Fatal(err)
	}

	rec := httptest.NewRecorder()
	h.HandleView(rec, httptest.NewRequest(http.MethodGet, "/", nil).WithContext(withToken(inv.Token)))
	if rec.Code != http.StatusOK {
		t.Fatalf("Status code mismatch: got %d", rec.Code)
	}
	var view View
	if err := json.NewDecoder(rec.Body).Decode(&view); err != nil {
		t.Fatal(err)
	}
	if view.Message != "Chère Alice, bienvenue à le mariage à 18:00 {{inconnu}}" {
		t.Errorf("message = %q", view.Message)
	}
	if view.Invitation.ViewedAt == nil || !view.Invitation.ViewedAt.Equal(fixedNow) {
		t.Errorf("ViewedAt = %v", view.Invitation.ViewedAt)
	}

	h.Now = func() time.Time { return fixedNow.Add(time.Hour) }
	rec = httptest.NewRecorder()
	h.HandleView(rec, httptest.NewRequest(http.MethodGet, "/", nil).WithContext(withToken(inv.Token)))
	if err := json.NewDecoder(rec.Body).Decode(&view); err != nil {
		t.Fatal(err)
	}
	if !view.Invitation.ViewedAt.Equal(fixedNow) {
		t.Errorf("second view changed ViewedAt to %v", view.Invitation.ViewedAt)
	}
}

func TestHandleView_DefaultMessageMatchesEmail(t *testing.T) {
	h, _ := newHandler(t)
	org := &core.Organization{ID: "o1", OwnerID: "user-1", Name: "Famille Dupont"}
	if err := h.Store.SaveOrganization(context.Background(), org); err != nil {
		t.Fatal(err)
	}

	body := `{"designId":"d1","organizationId":"o1","recipient":{"name":"Alice Martin","email":"alice@example.com"},"event":{"title":"le mariage"}}`
	rec := httptest.NewRecorder()
	h.HandleSend(rec, newRequest(http.MethodPost, body, nil))
	if rec.Code != http.StatusCreated {
		t.Fatalf("Status code mismatch: got %d, body %s", rec.Code, rec.Body.String())
	}
	var sent SendResponse
	if err := json.NewDecoder(rec.Body).Decode(&sent); err != nil {
		t.Fatal(err)
	}

	rec = httptest.NewRecorder()
	h.HandleView(rec, httptest.NewRequest(http.MethodGet, "/", nil).WithContext(withToken(sent.Invitation.Token)))
	var view View
	if err := json.NewDecoder(rec.Body).Decode(&view); err != nil {
		t.Fatal(err)
	}

	if !strings.HasPrefix(view.Message, "Bonjour Alice,") || !strings.Contains(view.Message, "Famille Dupont a le plaisir") {
		t.Errorf("message = %q", view.Message)
	}
	stored, err := h.Store.FindInvitation(context.Background(), sent.Invitation.Token)
	if err != nil {
		t.Fatal(err)
	}
	_, email := mailer.NewInvitationMailer(nil, "", "http://localhost", nil).Compose(stored, "")
	if !strings.HasPrefix(email, view.Message+"\n\n") {
		t.Errorf("view message %q is not the email text %q", view.Message, email)
	}
}

// viewedElsewhereStore records every view at an earlier instant, as if a
// concurrent request had stored its timestamp first.
type viewedElsewhereStore struct {
	Store
	at time.Time
}

func (s *viewedElsewhereStore) MarkViewed(ctx context.Context, token string, _ time.Time) (*core.Invitation, error) {
	return s.Store.MarkViewed(ctx, token, s.at)
}

func firstViews(t *testing.T) float64 {
	t.Helper()
	var m dto.Metric
	if err := metrics.InvitationViews.Write(&m); err != nil {
		t.Fatal(err)
	}
	return m.GetCounter().GetValue()
}

func TestHandleView_CountsFirstViewOnce(t *testing.T) {
	h, _ := newHandler(t)
	newInvitation := func() string {
		inv := &core.Invitation{Token: uuid.NewString(), OwnerID: "user-1", CreatedAt: fixedNow}
		if err := h.Store.CreateInvitation(context.Background(), inv); err != nil {
			t.Fatal(err)
		}
		return inv.Token
	}
	view := func(token string) {
		rec := httptest.NewRecorder()
		h.HandleView(rec, httptest.NewRequest(http.MethodGet, "/", nil).WithContext(withToken(token)))
		if rec.Code != http.StatusOK {
			t.Fatalf("Status code mismatch: got %d", rec.Code)
		}
	}

	token := newInvitation()
	before := firstViews(t)
	view(token)
	view(token)
	if got := firstViews(t) - before; got != 1 {
		t.Errorf("first views counted %v times, want 1", got)
	}

	// The lookup still sees an unviewed invitation but another request wins the write.
	raced := newInvitation()
	h.Store = &viewedElsewhereStore{Store: h.Store, at: fixedNow.Add(-time.Second)}
	before = firstViews(t)
	view(raced)
	if got := firstViews(t) - before; got != 0 {
		t.Errorf("losing request counted a first view (%v)", got)
	}
}

func TestHandleView_ExpiredAndUnknown(t *testing.T) {
	h, _ := newHandler(t)
	expired := fixedNow.Add(-time.Minute)
	inv := &core.Invitation{Token: uuid.NewString(), OwnerID: "user-1", ExpiresAt: &expired}
	if err := h.Store.CreateInvitation(context.Background(), inv); err != nil {
		t.Fatal(err)
	}

	testCases := map[string]struct {
		token  string
		status int
	}{
		"expired":   {inv.Token, http.StatusGone},
		"unknown":   {uuid.NewString(), http.StatusNotFound},
		"malformed": {"../../etc", http.StatusNotFound},
	}
	for name, tc := range testCases {
		t.Run(name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			h.HandleView(rec, httptest.NewRequest(http.MethodGet, "/", nil).WithContext(withToken(tc.token)))
			if rec.Code != tc.status {
				t.Errorf("Status code mismatch: got %d, want %d", rec.Code, tc.status)
			}
		})
	}

	got, _ := h.Store.FindInvitation(context.Background(), inv.Token)
	if got.ViewedAt != nil {
		t.Error("expired invitation was marked viewed")
	}
}

func TestHandleList(t *testing.T) {
	h, _ := newHandler(t)
	rec := httptest.NewRecorder()
	h.HandleList(rec, newRequest(http.MethodGet, "", nil))
	if strings.TrimSpace(rec.Body.String()) != "[]" {
		t.Errorf("body = %s, want []", rec.Body.String())
	}
}

func withToken(token string) context.Context {
	rctx := chi.NewRouteContext()
	rctx.URLParams.Add("token", token)
	return context.WithValue(context.Background(), chi.RouteCtxKey, rctx)
}
