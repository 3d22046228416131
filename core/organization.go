package core

import (
	"context"
	"time"
)

type (
	// Organization is the sender identity shown on invitations (a company,
	// an association, a family...).
	Organization struct {
		ID        string    `json:"id"`
		OwnerID   string    `json:"-"`
		Name      string    `json:"name"`
		Email     string    `json:"email,omitempty"`
		LogoURL   string    `json:"logoUrl,omitempty"`
		CreatedAt time.Time `json:"createdAt"`
		UpdatedAt time.Time `json:"updatedAt"`
	}

	OrganizationStore interface {
		ListOrganizations(ctx context.Context, ownerID string) ([]*Organization, error)
		GetOrganization(ctx context.Context, ownerID, id string) (*Organization, error)
		SaveOrganization(ctx context.Context, org *Organization) error
		DeleteOrganization(ctx context.Context, ownerID, id string) error
	}
)
