package mailer

import (
	"cardstudio/core"
	"cardstudio/metrics"
	"cardstudio/textvar"
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	DefaultSubject = "{{prenom}}, vous êtes invité à {{evenement}}"
	DefaultMessage = "Bonjour {{prenom}},\n\n{{organisateur}} a le plaisir de vous inviter à {{evenement}}, le {{date}} à {{heure}}.\nLieu : {{lieu}}"
)

var ErrNoRecipient = errors.New("invitation has no recipient email")

type (
	// InvitationMailer turns stored invitations into emails carrying the
	// viewing link. Sends share one limiter so bulk sends stay under the
	// provider's quota. Nothing is retried.
	InvitationMailer struct {
		client  EmailClient
		from    string
		baseURL string
		limiter *rate.Limiter
	}

	Result struct {
		Token string `json:"token"`
		Email string `json:"email"`
		Sent  bool   `json:"sent"`
		Error string `json:"error,omitempty"`
	}

	BulkResult struct {
		Results []Result `json:"results"`
		Sent    int      `json:"sent"`
		Failed  int      `json:"failed"`
		Total   int      `json:"total"`
	}
)

// NewInvitationMailer builds a mailer. limiter may be nil to disable
// throttling.
func NewInvitationMailer(client EmailClient, from, baseURL string, limiter *rate.Limiter) *InvitationMailer {
	return &InvitationMailer{
		client:  client,
		from:    from,
		baseURL: strings.TrimRight(baseURL, "/"),
		limiter: limiter,
	}
}

// Link is the public viewing URL of an invitation.
func (m *InvitationMailer) Link(token string) string {
	return fmt.Sprintf("%s/invitation/%s", m.baseURL, token)
}

// Compose renders subject and body of the email for inv. The custom message
// of the invitation replaces the default one; both go through variable
// substitution.
func (m *InvitationMailer) Compose(inv *core.Invitation, organizer string) (string, string) {
	values := valuesFor(inv, organizer)
	subject := textvar.Substitute(DefaultSubject, values)
	body := textvar.Substitute(messageTemplate(inv), values) + "\n\n" + m.Link(inv.Token)
	return subject, body
}

// Message renders the text the recipient reads: the invitation's own
// message, or DefaultMessage, with its variables filled in. It is the body
// of the email without the link.
func Message(inv *core.Invitation, organizer string) string {
	return textvar.Substitute(messageTemplate(inv), valuesFor(inv, organizer))
}

func messageTemplate(inv *core.Invitation) string {
	if strings.TrimSpace(inv.Message) != "" {
		return inv.Message
	}
	return DefaultMessage
}

// valuesFor lets organizer override the one stored on the invitation.
func valuesFor(inv *core.Invitation, organizer string) map[string]string {
	values := textvar.ValuesFor(inv)
	if organizer = strings.TrimSpace(organizer); organizer != "" {
		values["organisateur"] = organizer
	}
	return values
}

func (m *InvitationMailer) Send(ctx context.Context, inv *core.Invitation, organizer string) error {
	log := logrus.WithFields(logrus.Fields{"token": inv.Token, "to": inv.Recipient.Email})

	if strings.TrimSpace(inv.Recipient.Email) == "" {
		metrics.InvitationsSent.WithLabelValues("failed").Inc()
		return ErrNoRecipient
	}
	if m.limiter != nil {
		if err := m.limiter.Wait(ctx); err != nil {
			metrics.InvitationsSent.WithLabelValues("failed").Inc()
			return fmt.Errorf("waiting for mail quota: %w", err)
		}
	}

	subject, body := m.Compose(inv, organizer)
	if err := m.client.Send(ctx, m.from, inv.Recipient.Email, subject, body); err != nil {
		log.WithError(err).Error("Failed to send invitation")
		metrics.InvitationsSent.WithLabelValues("failed").Inc()
		return err
	}

	log.Info("Invitation sent")
	metrics.InvitationsSent.WithLabelValues("sent").Inc()
	return nil
}

// SendBulk sends every invitation in order and reports each outcome. One
// failure does not stop the batch.
func (m *InvitationMailer) SendBulk(ctx context.Context, invitations []*core.Invitation, organizer string) BulkResult {
	result := BulkResult{
		Results: make([]Result, 0, len(invitations)),
		Total:   len(invitations),
	}

	for _, inv := range invitations {
		r := Result{Token: inv.Token, Email: inv.Recipient.Email}
		if err := m.Send(ctx, inv, organizer); err != nil {
			r.Error = err.Error()
			result.Failed++
		} else {
			r.Sent = true
			result.Sent++
		}
		result.Results = append(result.Results, r)
	}

	logrus.WithFields(logrus.Fields{
		"sent":   result.Sent,
		"failed": result.Failed,
		"total":  result.Total,
	}).Info("Bulk invitation send finished")
	return result
}
