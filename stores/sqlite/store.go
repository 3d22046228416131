package sqlite

import (
	"cardstudio/core"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/sirupsen/logrus"
	_ "modernc.org/sqlite"
)

type sqliteStore struct {
	db *sql.DB
}

const schema = `
CREATE TABLE IF NOT EXISTS designs (
	id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	name TEXT,
	thumbnail TEXT,
	items TEXT,
	background TEXT,
	selected_id TEXT,
	created_at DATETIME,
	updated_at DATETIME,
	PRIMARY KEY (user_id, id)
);
CREATE TABLE IF NOT EXISTS invitations (
	token TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	data TEXT NOT NULL,
	created_at DATETIME,
	viewed_at DATETIME
);
CREATE INDEX IF NOT EXISTS invitations_owner ON invitations (owner_id, created_at);
CREATE TABLE IF NOT EXISTS organizations (
	id TEXT NOT NULL,
	owner_id TEXT NOT NULL,
	name TEXT NOT NULL,
	email TEXT,
	logo_url TEXT,
	created_at DATETIME,
	updated_at DATETIME,
	PRIMARY KEY (owner_id, id)
);`

// NewStore creates a new SQLite-based store.
func NewStore(dataSourceName string) *sqliteStore {
	db, err := sql.Open("sqlite", dataSourceName)
	if err != nil {
		log.Fatalf("failed to open sqlite database: %v", err)
	}
	// One connection keeps writes serialized and makes ":memory:" usable.
	db.SetMaxOpenConns(1)

	if _, err = db.Exec(schema); err != nil {
		log.Fatalf("failed to create tables: %v", err)
	}
	return &sqliteStore{db}
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}

func (s *sqliteStore) List(ctx context.Context, userID string) ([]*core.Design, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, thumbnail, background, created_at, updated_at FROM designs WHERE user_id = ? ORDER BY updated_at DESC", userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	designs := []*core.Design{}
	for rows.Next() {
		d := core.Design{UserID: userID}
		var background string
		if err := rows.Scan(&d.ID, &d.Name, &d.Thumbnail, &background, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(background), &d.Background); err != nil {
			logrus.WithField("design_id", d.ID).WithError(err).Warn("Corrupt background, skipping")
			continue
		}
		designs = append(designs, &d)
	}
	return designs, rows.Err()
}

func (s *sqliteStore) Get(ctx context.Context, userID, id string) (*core.Design, error) {
	d := core.Design{UserID: userID, ID: id}
	var items, background string
	var selected sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT name, thumbnail, items, background, selected_id, created_at, updated_at FROM designs WHERE user_id = ? AND id = ?", userID, id).
		Scan(&d.Name, &d.Thumbnail, &items, &background, &selected, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("design %s for user %s: %w", id, userID, core.ErrNotFound)
		}
		return nil, err
	}
	if err := json.Unmarshal([]byte(items), &d.Items); err != nil {
		return nil, fmt.Errorf("decoding items of design %s: %w", id, err)
	}
	if err := json.Unmarshal([]byte(background), &d.Background); err != nil {
		return nil, fmt.Errorf("decoding background of design %s: %w", id, err)
	}
	if selected.Valid {
		d.SelectedID = &selected.String
	}
	return &d, nil
}

func (s *sqliteStore) Save(ctx context.Context, d *core.Design) error {
	if d.UserID == "" || d.ID == "" {
		return fmt.Errorf("design user and ID cannot be empty")
	}
	items, err := json.Marshal(d.Items)
	if err != nil {
		return err
	}
	background, err := json.Marshal(d.Background)
	if err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	now := time.Now()
	var created time.Time
	err = tx.QueryRowContext(ctx, "SELECT created_at FROM designs WHERE user_id = ? AND id = ?", d.UserID, d.ID).Scan(&created)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		created = now
		_, err = tx.ExecContext(ctx,
			"INSERT INTO designs (id, user_id, name, thumbnail, items, background, selected_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)",
			d.ID, d.UserID, d.Name, d.Thumbnail, string(items), string(background), d.SelectedID, now, now)
	case err == nil:
		_, err = tx.ExecContext(ctx,
			"UPDATE designs SET name = ?, thumbnail = ?, items = ?, background = ?, selected_id = ?, updated_at = ? WHERE user_id = ? AND id = ?",
			d.Name, d.Thumbnail, string(items), string(background), d.SelectedID, now, d.UserID, d.ID)
	}
	if err != nil {
		logrus.WithFields(logrus.Fields{"user_id": d.UserID, "design_id": d.ID}).WithError(err).Error("Failed to save design")
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	d.CreatedAt = created
	d.UpdatedAt = now
	return nil
}

func (s *sqliteStore) Delete(ctx context.Context, userID, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM designs WHERE user_id = ? AND id = ?", userID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("design %s for user %s: %w", id, userID, core.ErrNotFound)
	}
	return nil
}

func (s *sqliteStore) CreateInvitation(ctx context.Context, inv *core.Invitation) error {
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now()
	}
	data, err := json.Marshal(inv)
	if err != nil {
		return err
	}

	res, err := s.db.ExecContext(ctx,
		"INSERT INTO invitations (token, owner_id, data, created_at) VALUES (?, ?, ?, ?) ON CONFLICT(token) DO NOTHING",
		inv.Token, inv.OwnerID, string(data), inv.CreatedAt)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("invitation %s: %w", inv.Token, core.ErrConflict)
	}
	logrus.WithFields(logrus.Fields{"token": inv.Token, "owner_id": inv.OwnerID}).Info("Invitation created")
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInvitation(row rowScanner) (*core.Invitation, error) {
	var (
		owner, data string
		viewed      sql.NullTime
	)
	if err := row.Scan(&owner, &data, &viewed); err != nil {
		return nil, err
	}
	var inv core.Invitation
	if err := json.Unmarshal([]byte(data), &inv); err != nil {
		return nil, err
	}
	inv.OwnerID = owner
	if viewed.Valid {
		inv.ViewedAt = &viewed.Time
	}
	return &inv, nil
}

func (s *sqliteStore) FindInvitation(ctx context.Context, token string) (*core.Invitation, error) {
	inv, err := scanInvitation(s.db.QueryRowContext(ctx,
		"SELECT owner_id, data, viewed_at FROM invitations WHERE token = ?", token))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("invitation %s: %w", token, core.ErrNotFound)
		}
		return nil, err
	}
	return inv, nil
}

func (s *sqliteStore) MarkViewed(ctx context.Context, token string, at time.Time) (*core.Invitation, error) {
	if _, err := s.db.ExecContext(ctx,
		"UPDATE invitations SET viewed_at = ? WHERE token = ? AND viewed_at IS NULL", at, token); err != nil {
		return nil, err
	}
	return s.FindInvitation(ctx, token)
}

func (s *sqliteStore) ListInvitations(ctx context.Context, ownerID string) ([]*core.Invitation, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT owner_id, data, viewed_at FROM invitations WHERE owner_id = ? ORDER BY created_at DESC", ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	invitations := []*core.Invitation{}
	for rows.Next() {
		inv, err := scanInvitation(rows)
		if err != nil {
			return nil, err
		}
		invitations = append(invitations, inv)
	}
	return invitations, rows.Err()
}

func (s *sqliteStore) ListOrganizations(ctx context.Context, ownerID string) ([]*core.Organization, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, name, email, logo_url, created_at, updated_at FROM organizations WHERE owner_id = ? ORDER BY name", ownerID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	orgs := []*core.Organization{}
	for rows.Next() {
		org := core.Organization{OwnerID: ownerID}
		if err := rows.Scan(&org.ID, &org.Name, &org.Email, &org.LogoURL, &org.CreatedAt, &org.UpdatedAt); err != nil {
			return nil, err
		}
		orgs = append(orgs, &org)
	}
	return orgs, rows.Err()
}

func (s *sqliteStore) GetOrganization(ctx context.Context, ownerID, id string) (*core.Organization, error) {
	org := core.Organization{OwnerID: ownerID, ID: id}
	err := s.db.QueryRowContext(ctx,
		"SELECT name, email, logo_url, created_at, updated_at FROM organizations WHERE owner_id = ? AND id = ?", ownerID, id).
		Scan(&org.Name, &org.Email, &org.LogoURL, &org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("organization %s for user %s: %w", id, ownerID, core.ErrNotFound)
		}
		return nil, err
	}
	return &org, nil
}

func (s *sqliteStore) SaveOrganization(ctx context.Context, org *core.Organization) error {
	if org.OwnerID == "" || org.ID == "" {
		return fmt.Errorf("organization owner and ID cannot be empty")
	}
	now := time.Now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO organizations (id, owner_id, name, email, logo_url, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(owner_id, id) DO UPDATE SET
			name = excluded.name, email = excluded.email, logo_url = excluded.logo_url, updated_at = excluded.updated_at`,
		org.ID, org.OwnerID, org.Name, org.Email, org.LogoURL, now, now)
	if err != nil {
		return err
	}

	return s.db.QueryRowContext(ctx,
		"SELECT created_at, updated_at FROM organizations WHERE owner_id = ? AND id = ?", org.OwnerID, org.ID).
		Scan(&org.CreatedAt, &org.UpdatedAt)
}

func (s *sqliteStore) DeleteOrganization(ctx context.Context, ownerID, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM organizations WHERE owner_id = ? AND id = ?", ownerID, id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("organization %s for user %s: %w", id, ownerID, core.ErrNotFound)
	}
	return nil
}
