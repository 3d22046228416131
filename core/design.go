package core

import (
	"context"
	"time"
)

type (
	Background struct {
		Color string  `json:"color"`
		Image *string `json:"image,omitempty"`
	}

	// Design is a user-saved invitation design: the ordered canvas items
	// (paint order) plus the background and the last selection.
	Design struct {
		ID         string     `json:"id"`
		UserID     string     `json:"-"` // Not exposed in JSON responses, used internally.
		Name       string     `json:"name"`
		Thumbnail  string     `json:"thumbnail,omitempty"`
		Items      []Item     `json:"items,omitempty"` // Not included in list views.
		Background Background `json:"background"`
		SelectedID *string    `json:"selectedId,omitempty"`
		CreatedAt  time.Time  `json:"createdAt"`
		UpdatedAt  time.Time  `json:"updatedAt"`
	}

	// DesignStore defines the persistence layer for user-owned designs.
	// All operations are scoped to a specific user.
	DesignStore interface {
		// List returns metadata for all designs owned by a user.
		// The returned designs do not carry their items.
		List(ctx context.Context, userID string) ([]*Design, error)

		// Get returns a single design by its ID, ensuring it belongs to the user.
		Get(ctx context.Context, userID, id string) (*Design, error)

		// Save creates or updates a design for a user.
		Save(ctx context.Context, design *Design) error

		// Delete removes a design, ensuring it belongs to the user.
		Delete(ctx context.Context, userID, id string) error
	}
)
