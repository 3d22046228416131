package memory

import (
	"cardstudio/core"
	"cardstudio/design"
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// memStore implements DesignStore, InvitationStore and OrganizationStore in
// memory. Values are copied in and out so callers never share state with
// the store.
type memStore struct {
	mu sync.RWMutex
	// designs is keyed by userID, then by design id.
	designs       map[string]map[string]*core.Design
	invitations   map[string]*core.Invitation
	organizations map[string]map[string]*core.Organization
}

// NewStore creates a new in-memory store.
func NewStore() *memStore {
	return &memStore{
		designs:       make(map[string]map[string]*core.Design),
		invitations:   make(map[string]*core.Invitation),
		organizations: make(map[string]map[string]*core.Organization),
	}
}

// copyDesign fails with design.ErrNotSerializable when an item holds
// content with no serialized form.
func copyDesign(d *core.Design) (*core.Design, error) {
	cp := *d
	items, err := design.Clone(d.Items)
	if err != nil {
		return nil, fmt.Errorf("design %s: %w", d.ID, err)
	}
	cp.Items = items
	return &cp, nil
}

func copyInvitation(inv *core.Invitation) (*core.Invitation, error) {
	cp := *inv
	items, err := design.Clone(inv.Items)
	if err != nil {
		return nil, fmt.Errorf("invitation %s: %w", inv.Token, err)
	}
	cp.Items = items
	if inv.Event != nil {
		ev := *inv.Event
		cp.Event = &ev
	}
	return &cp, nil
}

func (s *memStore) List(ctx context.Context, userID string) ([]*core.Design, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	userDesigns := s.designs[userID]
	designs := make([]*core.Design, 0, len(userDesigns))
	for _, d := range userDesigns {
		// List views carry metadata only.
		designs = append(designs, &core.Design{
			ID:         d.ID,
			UserID:     d.UserID,
			Name:       d.Name,
			Thumbnail:  d.Thumbnail,
			Background: d.Background,
			CreatedAt:  d.CreatedAt,
			UpdatedAt:  d.UpdatedAt,
		})
	}
	sort.Slice(designs, func(i, j int) bool { return designs[i].UpdatedAt.After(designs[j].UpdatedAt) })

	logrus.WithField("user_id", userID).Debugf("Listed %d designs", len(designs))
	return designs, nil
}

func (s *memStore) Get(ctx context.Context, userID, id string) (*core.Design, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	d, ok := s.designs[userID][id]
	if !ok {
		logrus.WithFields(logrus.Fields{"user_id": userID, "design_id": id}).Warn("Design not found for user")
		return nil, fmt.Errorf("design %s for user %s: %w", id, userID, core.ErrNotFound)
	}
	return copyDesign(d)
}

func (s *memStore) Save(ctx context.Context, d *core.Design) error {
	if d.UserID == "" {
		return fmt.Errorf("UserID cannot be empty")
	}
	if d.ID == "" {
		return fmt.Errorf("design ID cannot be empty for save operation")
	}

	stored, err := copyDesign(d)
	if err != nil {
		logrus.WithFields(logrus.Fields{"user_id": d.UserID, "design_id": d.ID, "error": err}).Error("Design not saved")
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	userDesigns, ok := s.designs[d.UserID]
	if !ok {
		userDesigns = make(map[string]*core.Design)
		s.designs[d.UserID] = userDesigns
	}

	now := time.Now()
	if existing, exists := userDesigns[d.ID]; exists {
		d.CreatedAt = existing.CreatedAt
	} else {
		d.CreatedAt = now
	}
	d.UpdatedAt = now
	stored.CreatedAt, stored.UpdatedAt = d.CreatedAt, d.UpdatedAt

	userDesigns[d.ID] = stored
	logrus.WithFields(logrus.Fields{"user_id": d.UserID, "design_id": d.ID}).Info("Design saved")
	return nil
}

func (s *memStore) Delete(ctx context.Context, userID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	log := logrus.WithFields(logrus.Fields{"user_id": userID, "design_id": id})
	if _, ok := s.designs[userID][id]; !ok {
		log.Warn("Design not found for deletion")
		return fmt.Errorf("design %s for user %s: %w", id, userID, core.ErrNotFound)
	}
	delete(s.designs[userID], id)
	log.Info("Design deleted")
	return nil
}

func (s *memStore) CreateInvitation(ctx context.Context, inv *core.Invitation) error {
	stored, err := copyInvitation(inv)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.invitations[inv.Token]; exists {
		return fmt.Errorf("invitation %s: %w", inv.Token, core.ErrConflict)
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now()
	}
	stored.CreatedAt = inv.CreatedAt
	s.invitations[inv.Token] = stored
	logrus.WithFields(logrus.Fields{"token": inv.Token, "owner_id": inv.OwnerID}).Info("Invitation created")
	return nil
}

func (s *memStore) FindInvitation(ctx context.Context, token string) (*core.Invitation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	inv, ok := s.invitations[token]
	if !ok {
		return nil, fmt.Errorf("invitation %s: %w", token, core.ErrNotFound)
	}
	return copyInvitation(inv)
}

func (s *memStore) MarkViewed(ctx context.Context, token string, at time.Time) (*core.Invitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, ok := s.invitations[token]
	if !ok {
		return nil, fmt.Errorf("invitation %s: %w", token, core.ErrNotFound)
	}
	if inv.ViewedAt == nil {
		viewed := at
		inv.ViewedAt = &viewed
	}
	return copyInvitation(inv)
}

func (s *memStore) ListInvitations(ctx context.Context, ownerID string) ([]*core.Invitation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	invitations := make([]*core.Invitation, 0)
	for _, inv := range s.invitations {
		if inv.OwnerID != ownerID {
			continue
		}
		cp, err := copyInvitation(inv)
		if err != nil {
			return nil, err
		}
		invitations = append(invitations, cp)
	}
	sort.Slice(invitations, func(i, j int) bool { return invitations[i].CreatedAt.After(invitations[j].CreatedAt) })
	return invitations, nil
}

func (s *memStore) ListOrganizations(ctx context.Context, ownerID string) ([]*core.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	orgs := make([]*core.Organization, 0, len(s.organizations[ownerID]))
	for _, org := range s.organizations[ownerID] {
		cp := *org
		orgs = append(orgs, &cp)
	}
	sort.Slice(orgs, func(i, j int) bool { return orgs[i].Name < orgs[j].Name })
	return orgs, nil
}

func (s *memStore) GetOrganization(ctx context.Context, ownerID, id string) (*core.Organization, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	org, ok := s.organizations[ownerID][id]
	if !ok {
		return nil, fmt.Errorf("organization %s for user %s: %w", id, ownerID, core.ErrNotFound)
	}
	cp := *org
	return &cp, nil
}

func (s *memStore) SaveOrganization(ctx context.Context, org *core.Organization) error {
	if org.OwnerID == "" || org.ID == "" {
		return fmt.Errorf("organization owner and ID cannot be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	owned, ok := s.organizations[org.OwnerID]
	if !ok {
		owned = make(map[string]*core.Organization)
		s.organizations[org.OwnerID] = owned
	}

	now := time.Now()
	if existing, exists := owned[org.ID]; exists {
		org.CreatedAt = existing.CreatedAt
	} else {
		org.CreatedAt = now
	}
	org.UpdatedAt = now

	cp := *org
	owned[org.ID] = &cp
	logrus.WithFields(logrus.Fields{"owner_id": org.OwnerID, "organization_id": org.ID}).Info("Organization saved")
	return nil
}

func (s *memStore) DeleteOrganization(ctx context.Context, ownerID, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.organizations[ownerID][id]; !ok {
		return fmt.Errorf("organization %s for user %s: %w", id, ownerID, core.ErrNotFound)
	}
	delete(s.organizations[ownerID], id)
	return nil
}
