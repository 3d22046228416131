package invitations

import (
	"cardstudio/core"
	"cardstudio/design"
	"cardstudio/handlers/api/respond"
	"cardstudio/i18n"
	"cardstudio/mailer"
	"cardstudio/metrics"
	"cardstudio/middleware"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

type (
	Store interface {
		core.DesignStore
		core.InvitationStore
		core.OrganizationStore
	}

	// Sender delivers invitations, see mailer.InvitationMailer.
	Sender interface {
		Send(ctx context.Context, inv *core.Invitation, organizer string) error
		SendBulk(ctx context.Context, invitations []*core.Invitation, organizer string) mailer.BulkResult
		Link(token string) string
	}

	SendRequest struct {
		DesignID       string         `json:"designId"`
		Recipient      core.Recipient `json:"recipient"`
		Event          *core.Event    `json:"event,omitempty"`
		Message        string         `json:"message,omitempty"`
		OrganizationID string         `json:"organizationId,omitempty"`
	}

	BulkSendRequest struct {
		DesignID       string           `json:"designId"`
		Recipients     []core.Recipient `json:"recipients"`
		Event          *core.Event      `json:"event,omitempty"`
		Message        string           `json:"message,omitempty"`
		OrganizationID string           `json:"organizationId,omitempty"`
	}

	SendResponse struct {
		Invitation *core.Invitation `json:"invitation"`
		Link       string           `json:"link"`
	}

	// View is what the recipient sees: the frozen design and the message
	// with its variables filled in.
	View struct {
		Invitation *core.Invitation `json:"invitation"`
		Message    string           `json:"message"`
	}
)

// Handler serves the invitation endpoints.
type Handler struct {
	Store  Store
	Sender Sender
	// TTL is the lifetime of new invitations; zero means they never expire.
	TTL time.Duration
	Now func() time.Time
}

func (h *Handler) now() time.Time {
	if h.Now != nil {
		return h.Now()
	}
	return time.Now()
}

func (h *Handler) HandleList(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(w, r)
	if !ok {
		return
	}

	invitations, err := h.Store.ListInvitations(r.Context(), userID)
	if err != nil {
		logrus.WithFields(logrus.Fields{"error": err, "userID": userID}).Error("Failed to list invitations")
		respond.Error(w, r, http.StatusInternalServerError, i18n.MsgListFailed)
		return
	}
	if invitations == nil {
		invitations = []*core.Invitation{}
	}
	render.JSON(w, r, invitations)
}

// HandleSend freezes the design into an invitation for one recipient and
// mails it. The invitation is kept even when the mail fails; the response
// then carries the localized failure and the token so it can be resent.
func (h *Handler) HandleSend(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(w, r)
	if !ok {
		return
	}
	var req SendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, r, http.StatusBadRequest, i18n.MsgInvalidBody)
		return
	}
	if strings.TrimSpace(req.Recipient.Email) == "" {
		respond.Error(w, r, http.StatusBadRequest, i18n.MsgNoRecipients)
		return
	}

	snap, organizer, ok := h.prepare(w, r, userID, req.DesignID, req.OrganizationID)
	if !ok {
		return
	}

	inv, err := snap.invitation(userID, organizer, req.Recipient, req.Event, req.Message, h.now(), h.TTL)
	if err != nil {
		logrus.WithFields(logrus.Fields{"error": err, "designID": req.DesignID}).Error("Failed to snapshot design")
		respond.Error(w, r, http.StatusInternalServerError, i18n.MsgSaveFailed)
		return
	}
	if err := h.Store.CreateInvitation(r.Context(), inv); err != nil {
		logrus.WithFields(logrus.Fields{"error": err, "userID": userID}).Error("Failed to create invitation")
		respond.StoreError(w, r, err, i18n.MsgDesignNotFound, i18n.MsgSaveFailed)
		return
	}

	if err := h.Sender.Send(r.Context(), inv, organizer); err != nil {
		render.Status(r, http.StatusBadGateway)
		render.JSON(w, r, map[string]string{
			"error": i18n.T(r.Context(), i18n.MsgMailFailed),
			"token": inv.Token,
		})
		return
	}

	render.Status(r, http.StatusCreated)
	render.JSON(w, r, SendResponse{Invitation: inv, Link: h.Sender.Link(inv.Token)})
}

// HandleSendBulk creates one invitation per recipient, each with its own
// token, and mails them. Recipients without an email are reported as
// failures without creating anything.
func (h *Handler) HandleSendBulk(w http.ResponseWriter, r *http.Request) {
	userID, ok := middleware.UserID(w, r)
	if !ok {
		return
	}
	var req BulkSendRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respond.Error(w, r, http.StatusBadRequest, i18n.MsgInvalidBody)
		return
	}

	var valid, skipped []core.Recipient
	for _, rcpt := range req.Recipients {
		if strings.TrimSpace(rcpt.Email) == "" {
			skipped = append(skipped, rcpt)
			continue
		}
		valid = append(valid, rcpt)
	}
	if len(valid) == 0 {
		respond.Error(w, r, http.StatusBadRequest, i18n.MsgNoRecipients)
		return
	}

	snap, organizer, ok := h.prepare(w, r, userID, req.DesignID, req.OrganizationID)
	if !ok {
		return
	}

	now := h.now()
	created := make([]*core.Invitation, 0, len(valid))
	var failed []mailer.Result
	for _, rcpt := range valid {
		inv, err := snap.invitation(userID, organizer, rcpt, req.Event, req.Message, now, h.TTL)
		if err == nil {
			err = h.Store.CreateInvitation(r.Context(), inv)
		}
		if err != nil {
			logrus.WithFields(logrus.Fields{"error": err, "email": rcpt.Email}).Error("Failed to create invitation")
			failed = append(failed, mailer.Result{Email: rcpt.Email, Error: err.Error()})
			continue
		}
		created = append(created, inv)
	}

	result := h.Sender.SendBulk(r.Context(), created, organizer)
	for _, rcpt := range skipped {
		failed = append(failed, mailer.Result{Email: rcpt.Email, Error: mailer.ErrNoRecipient.Error()})
	}
	result.Results = append(result.Results, failed...)
	result.Failed += len(failed)
	result.Total += len(failed)

	render.JSON(w, r, result)
}

// HandleView is the public endpoint behind the invitation link. The first
// successful view is recorded; expired invitations answer 410.
func (h *Handler) HandleView(w http.ResponseWriter, r *http.Request) {
	token := chi.URLParam(r, "token")
	if _, err := uuid.Parse(token); err != nil {
		respond.Error(w, r, http.StatusNotFound, i18n.MsgInvitationNotFound)
		return
	}

	inv, err := h.Store.FindInvitation(r.Context(), token)
	if err != nil {
		respond.StoreError(w, r, err, i18n.MsgInvitationNotFound, i18n.MsgGenericFailure)
		return
	}
	now := h.now()
	if inv.Expired(now) {
		respond.Error(w, r, http.StatusGone, i18n.MsgInvitationExpired)
		return
	}

	if inv.ViewedAt != nil {
		// Seen before; skip the write.
		render.JSON(w, r, View{Invitation: inv, Message: mailer.Message(inv, "")})
		return
	}

	inv, err = h.Store.MarkViewed(r.Context(), token, now)
	if err != nil {
		logrus.WithFields(logrus.Fields{"error": err, "token": token}).Error("Failed to record invitation view")
		respond.StoreError(w, r, err, i18n.MsgInvitationNotFound, i18n.MsgGenericFailure)
		return
	}
	// Only the request whose timestamp was stored counts the first view.
	if firstView(inv, now) {
		metrics.InvitationViews.Inc()
	}

	render.JSON(w, r, View{Invitation: inv, Message: mailer.Message(inv, "")})
}

type snapshot struct {
	designID   string
	items      []core.Item
	background core.Background
}

// firstView reports whether the stored view timestamp is the one recorded
// at now. Stores may keep less precision than time.Time, so both sides are
// compared at millisecond precision.
func firstView(inv *core.Invitation, now time.Time) bool {
	return inv.ViewedAt != nil && inv.ViewedAt.Truncate(time.Millisecond).Equal(now.Truncate(time.Millisecond))
}

func (s snapshot) invitation(ownerID, organizer string, rcpt core.Recipient, event *core.Event, message string, now time.Time, ttl time.Duration) (*core.Invitation, error) {
	items, err := design.Clone(s.items)
	if err != nil {
		return nil, err
	}
	inv := &core.Invitation{
		Token:      uuid.NewString(),
		OwnerID:    ownerID,
		DesignID:   s.designID,
		Recipient:  core.Recipient{Name: strings.TrimSpace(rcpt.Name), Email: strings.TrimSpace(rcpt.Email)},
		Items:      items,
		Background: s.background,
		Event:      event,
		Message:    message,
		Organizer:  organizer,
		CreatedAt:  now,
	}
	if ttl > 0 {
		expires := now.Add(ttl)
		inv.ExpiresAt = &expires
	}
	return inv, nil
}

// prepare snapshots the design and resolves the organizer name. On failure
// the response has been written.
func (h *Handler) prepare(w http.ResponseWriter, r *http.Request, userID, designID, orgID string) (snapshot, string, bool) {
	if designID == "" {
		respond.Error(w, r, http.StatusBadRequest, i18n.MsgDesignKeyRequired)
		return snapshot{}, "", false
	}
	d, err := h.Store.Get(r.Context(), userID, designID)
	if err != nil {
		respond.StoreError(w, r, err, i18n.MsgDesignNotFound, i18n.MsgGenericFailure)
		return snapshot{}, "", false
	}
	st, err := design.FromDesign(d)
	if err != nil {
		respond.Error(w, r, http.StatusInternalServerError, i18n.MsgGenericFailure)
		return snapshot{}, "", false
	}
	items, bg, err := st.Snapshot()
	if err != nil {
		respond.Error(w, r, http.StatusInternalServerError, i18n.MsgGenericFailure)
		return snapshot{}, "", false
	}

	var organizer string
	if orgID != "" {
		org, err := h.Store.GetOrganization(r.Context(), userID, orgID)
		if err != nil {
			if errors.Is(err, core.ErrNotFound) {
				respond.Error(w, r, http.StatusNotFound, i18n.MsgOrganizationNotFound)
			} else {
				respond.Error(w, r, http.StatusInternalServerError, i18n.MsgGenericFailure)
			}
			return snapshot{}, "", false
		}
		organizer = org.Name
	}
	return snapshot{designID: d.ID, items: items, background: bg}, organizer, true
}
