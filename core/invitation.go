package core

import (
	"context"
	"time"
)

type (
	Recipient struct {
		Name  string `json:"name"`
		Email string `json:"email"`
	}

	Event struct {
		Title    string `json:"title,omitempty"`
		Date     string `json:"date,omitempty"`
		Time     string `json:"time,omitempty"`
		Location string `json:"location,omitempty"`
	}

	// Invitation is the frozen snapshot of a design sent to one recipient.
	// The token is the only credential needed to view it. Nothing changes
	// after creation except ViewedAt, which is set once on the first view.
	Invitation struct {
		Token      string     `json:"token"`
		OwnerID    string     `json:"-"`
		DesignID   string     `json:"designId,omitempty"`
		Recipient  Recipient  `json:"recipient"`
		Items      []Item     `json:"items"`
		Background Background `json:"background"`
		Event      *Event     `json:"event,omitempty"`
		Message    string     `json:"message,omitempty"`
		// Organizer is the sender name shown in the message, when one was chosen.
		Organizer  string     `json:"organizer,omitempty"`
		CreatedAt  time.Time  `json:"createdAt"`
		ExpiresAt  *time.Time `json:"expiresAt,omitempty"`
		ViewedAt   *time.Time `json:"viewedAt,omitempty"`
	}

	InvitationStore interface {
		// CreateInvitation stores a new invitation. It fails with ErrConflict
		// when the token is already taken.
		CreateInvitation(ctx context.Context, invitation *Invitation) error

		FindInvitation(ctx context.Context, token string) (*Invitation, error)

		// MarkViewed records the first view of an invitation and returns it.
		// Later calls leave the stored timestamp untouched.
		MarkViewed(ctx context.Context, token string, at time.Time) (*Invitation, error)

		ListInvitations(ctx context.Context, ownerID string) ([]*Invitation, error)
	}
)

// Expired reports whether the invitation has an expiry in the past of now.
func (i *Invitation) Expired(now time.Time) bool {
	return i.ExpiresAt != nil && now.After(*i.ExpiresAt)
}
