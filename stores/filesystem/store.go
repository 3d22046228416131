package filesystem

import (
	"cardstudio/core"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// fsStore keeps one JSON file per record:
//
//	<base>/designs/<user>/<id>.json
//	<base>/invitations/<token>.json
//	<base>/organizations/<owner>/<id>.json
type fsStore struct {
	basePath string
	// mu serializes invitation writes so the first view is recorded once.
	mu sync.Mutex
}

// Owner ids are not part of the public JSON form of the records, so the
// files wrap them.
type (
	designFile struct {
		UserID string `json:"userId"`
		*core.Design
	}
	invitationFile struct {
		OwnerID string `json:"ownerId"`
		*core.Invitation
	}
	organizationFile struct {
		OwnerID string `json:"ownerId"`
		*core.Organization
	}
)

// NewStore creates a new filesystem-based store.
func NewStore(basePath string) *fsStore {
	for _, dir := range []string{"designs", "invitations", "organizations"} {
		if err := os.MkdirAll(filepath.Join(basePath, dir), 0755); err != nil {
			log.Fatalf("failed to create storage directory: %v", err)
		}
	}
	return &fsStore{basePath: basePath}
}

// path joins elems under the base directory and refuses anything that would
// escape it.
func (s *fsStore) path(elems ...string) (string, error) {
	for _, e := range elems {
		if e == "" || e == "." || e == ".." || strings.ContainsAny(e, `/\`) {
			return "", fmt.Errorf("invalid path element %q: access denied", e)
		}
	}
	base, err := filepath.Abs(s.basePath)
	if err != nil {
		return "", err
	}
	full := filepath.Join(append([]string{base}, elems...)...)
	if !strings.HasPrefix(full, base+string(filepath.Separator)) {
		return "", fmt.Errorf("invalid path: access denied")
	}
	return full, nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return core.ErrNotFound
		}
		return err
	}
	return json.Unmarshal(data, v)
}

// writeJSON replaces path atomically through a temporary file.
func writeJSON(path string, v any) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

func (s *fsStore) List(ctx context.Context, userID string) ([]*core.Design, error) {
	dir, err := s.path("designs", userID)
	if err != nil {
		return nil, err
	}
	log := logrus.WithFields(logrus.Fields{"user_id": userID, "path": dir})

	files, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*core.Design{}, nil
		}
		log.WithError(err).Error("Failed to read user directory")
		return nil, err
	}

	designs := make([]*core.Design, 0, len(files))
	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != ".json" {
			continue
		}
		rec := designFile{Design: &core.Design{}}
		if err := readJSON(filepath.Join(dir, file.Name()), &rec); err != nil {
			log.WithError(err).Warnf("Failed to read design file %s, skipping", file.Name())
			continue
		}
		rec.Design.UserID = rec.UserID
		// List views carry metadata only.
		rec.Design.Items = nil
		rec.Design.SelectedID = nil
		designs = append(designs, rec.Design)
	}
	sort.Slice(designs, func(i, j int) bool { return designs[i].UpdatedAt.After(designs[j].UpdatedAt) })

	log.Debugf("Listed %d designs", len(designs))
	return designs, nil
}

func (s *fsStore) Get(ctx context.Context, userID, id string) (*core.Design, error) {
	path, err := s.path("designs", userID, id+".json")
	if err != nil {
		return nil, err
	}

	rec := designFile{Design: &core.Design{}}
	if err := readJSON(path, &rec); err != nil {
		logrus.WithFields(logrus.Fields{"user_id": userID, "design_id": id}).WithError(err).Warn("Failed to read design")
		return nil, fmt.Errorf("design %s for user %s: %w", id, userID, err)
	}
	rec.Design.UserID = rec.UserID
	return rec.Design, nil
}

func (s *fsStore) Save(ctx context.Context, d *core.Design) error {
	if d.UserID == "" || d.ID == "" {
		return fmt.Errorf("design user and ID cannot be empty")
	}
	path, err := s.path("designs", d.UserID, d.ID+".json")
	if err != nil {
		return err
	}
	log := logrus.WithFields(logrus.Fields{"user_id": d.UserID, "design_id": d.ID, "path": path})

	now := time.Now()
	existing := designFile{Design: &core.Design{}}
	if err := readJSON(path, &existing); err == nil {
		d.CreatedAt = existing.CreatedAt
	} else {
		d.CreatedAt = now
	}
	d.UpdatedAt = now

	if err := writeJSON(path, designFile{UserID: d.UserID, Design: d}); err != nil {
		log.WithError(err).Error("Failed to write design file")
		return err
	}
	log.Info("Design saved")
	return nil
}

func (s *fsStore) Delete(ctx context.Context, userID, id string) error {
	path, err := s.path("designs", userID, id+".json")
	if err != nil {
		return err
	}
	log := logrus.WithFields(logrus.Fields{"user_id": userID, "design_id": id})

	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			log.Warn("Design file not found for deletion")
			return fmt.Errorf("design %s for user %s: %w", id, userID, core.ErrNotFound)
		}
		log.WithError(err).Error("Failed to delete design file")
		return err
	}
	log.Info("Design deleted")
	return nil
}

func (s *fsStore) CreateInvitation(ctx context.Context, inv *core.Invitation) error {
	path, err := s.path("invitations", inv.Token+".json")
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("invitation %s: %w", inv.Token, core.ErrConflict)
	}
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now()
	}
	if err := writeJSON(path, invitationFile{OwnerID: inv.OwnerID, Invitation: inv}); err != nil {
		logrus.WithField("token", inv.Token).WithError(err).Error("Failed to write invitation file")
		return err
	}
	logrus.WithFields(logrus.Fields{"token": inv.Token, "owner_id": inv.OwnerID}).Info("Invitation created")
	return nil
}

func (s *fsStore) readInvitation(token string) (*core.Invitation, error) {
	path, err := s.path("invitations", token+".json")
	if err != nil {
		return nil, err
	}
	rec := invitationFile{Invitation: &core.Invitation{}}
	if err := readJSON(path, &rec); err != nil {
		return nil, fmt.Errorf("invitation %s: %w", token, err)
	}
	rec.Invitation.OwnerID = rec.OwnerID
	return rec.Invitation, nil
}

func (s *fsStore) FindInvitation(ctx context.Context, token string) (*core.Invitation, error) {
	return s.readInvitation(token)
}

func (s *fsStore) MarkViewed(ctx context.Context, token string, at time.Time) (*core.Invitation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	inv, err := s.readInvitation(token)
	if err != nil {
		return nil, err
	}
	if inv.ViewedAt != nil {
		return inv, nil
	}

	inv.ViewedAt = &at
	path, _ := s.path("invitations", token+".json")
	if err := writeJSON(path, invitationFile{OwnerID: inv.OwnerID, Invitation: inv}); err != nil {
		return nil, err
	}
	return inv, nil
}

func (s *fsStore) ListInvitations(ctx context.Context, ownerID string) ([]*core.Invitation, error) {
	dir := filepath.Join(s.basePath, "invitations")
	files, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}

	invitations := make([]*core.Invitation, 0)
	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != ".json" {
			continue
		}
		inv, err := s.readInvitation(strings.TrimSuffix(file.Name(), ".json"))
		if err != nil {
			logrus.WithError(err).Warnf("Failed to read invitation file %s, skipping", file.Name())
			continue
		}
		if inv.OwnerID == ownerID {
			invitations = append(invitations, inv)
		}
	}
	sort.Slice(invitations, func(i, j int) bool { return invitations[i].CreatedAt.After(invitations[j].CreatedAt) })
	return invitations, nil
}

func (s *fsStore) ListOrganizations(ctx context.Context, ownerID string) ([]*core.Organization, error) {
	dir, err := s.path("organizations", ownerID)
	if err != nil {
		return nil, err
	}
	files, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return []*core.Organization{}, nil
		}
		return nil, err
	}

	orgs := make([]*core.Organization, 0, len(files))
	for _, file := range files {
		if file.IsDir() || filepath.Ext(file.Name()) != ".json" {
			continue
		}
		rec := organizationFile{Organization: &core.Organization{}}
		if err := readJSON(filepath.Join(dir, file.Name()), &rec); err != nil {
			logrus.WithError(err).Warnf("Failed to read organization file %s, skipping", file.Name())
			continue
		}
		rec.Organization.OwnerID = rec.OwnerID
		orgs = append(orgs, rec.Organization)
	}
	sort.Slice(orgs, func(i, j int) bool { return orgs[i].Name < orgs[j].Name })
	return orgs, nil
}

func (s *fsStore) GetOrganization(ctx context.Context, ownerID, id string) (*core.Organization, error) {
	path, err := s.path("organizations", ownerID, id+".json")
	if err != nil {
		return nil, err
	}
	rec := organizationFile{Organization: &core.Organization{}}
	if err := readJSON(path, &rec); err != nil {
		return nil, fmt.Errorf("organization %s for user %s: %w", id, ownerID, err)
	}
	rec.Organization.OwnerID = rec.OwnerID
	return rec.Organization, nil
}

func (s *fsStore) SaveOrganization(ctx context.Context, org *core.Organization) error {
	if org.OwnerID == "" || org.ID == "" {
		return fmt.Errorf("organization owner and ID cannot be empty")
	}
	path, err := s.path("organizations", org.OwnerID, org.ID+".json")
	if err != nil {
		return err
	}

	now := time.Now()
	existing := organizationFile{Organization: &core.Organization{}}
	if err := readJSON(path, &existing); err == nil {
		org.CreatedAt = existing.CreatedAt
	} else {
		org.CreatedAt = now
	}
	org.UpdatedAt = now

	if err := writeJSON(path, organizationFile{OwnerID: org.OwnerID, Organization: org}); err != nil {
		logrus.WithField("organization_id", org.ID).WithError(err).Error("Failed to write organization file")
		return err
	}
	return nil
}

func (s *fsStore) DeleteOrganization(ctx context.Context, ownerID, id string) error {
	path, err := s.path("organizations", ownerID, id+".json")
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("organization %s for user %s: %w", id, ownerID, core.ErrNotFound)
		}
		return err
	}
	return nil
}
