package postgres

import (
	"cardstudio/core"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

const schema = `
CREATE TABLE IF NOT EXISTS designs (
	id TEXT NOT NULL,
	user_id TEXT NOT NULL,
	name TEXT NOT NULL DEFAULT '',
	thumbnail TEXT NOT NULL DEFAULT '',
	items JSONB NOT NULL DEFAULT '[]',
	background JSONB NOT NULL DEFAULT '{}',
	selected_id TEXT,
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (user_id, id)
);
CREATE TABLE IF NOT EXISTS invitations (
	token TEXT PRIMARY KEY,
	owner_id TEXT NOT NULL,
	data JSONB NOT NULL,
	created_at TIMESTAMPTZ NOT NULL,
	viewed_at TIMESTAMPTZ
);
CREATE INDEX IF NOT EXISTS invitations_owner ON invitations (owner_id, created_at DESC);
CREATE TABLE IF NOT EXISTS organizations (
	id TEXT NOT NULL,
	owner_id TEXT NOT NULL,
	name TEXT NOT NULL,
	email TEXT NOT NULL DEFAULT '',
	logo_url TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
	PRIMARY KEY (owner_id, id)
);`

type pgStore struct {
	db *pgxpool.Pool
}

// NewStore connects to databaseURL, checks the connection and creates the
// tables when missing.
func NewStore(ctx context.Context, databaseURL string) (*pgStore, error) {
	poolConfig, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("unable to parse database url: %w", err)
	}
	poolConfig.MaxConns = 10
	poolConfig.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return &pgStore{db: pool}, nil
}

func (s *pgStore) Close() {
	s.db.Close()
}

func (s *pgStore) List(ctx context.Context, userID string) ([]*core.Design, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, name, thumbnail, background, created_at, updated_at
		FROM designs WHERE user_id = $1 ORDER BY updated_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	designs := []*core.Design{}
	for rows.Next() {
		d := core.Design{UserID: userID}
		var background []byte
		if err := rows.Scan(&d.ID, &d.Name, &d.Thumbnail, &background, &d.CreatedAt, &d.UpdatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(background, &d.Background); err != nil {
			logrus.WithField("design_id", d.ID).WithError(err).Warn("Corrupt background, skipping")
			continue
		}
		designs = append(designs, &d)
	}
	return designs, rows.Err()
}

func (s *pgStore) Get(ctx context.Context, userID, id string) (*core.Design, error) {
	d := core.Design{UserID: userID, ID: id}
	var items, background []byte
	err := s.db.QueryRow(ctx, `
		SELECT name, thumbnail, items, background, selected_id, created_at, updated_at
		FROM designs WHERE user_id = $1 AND id = $2`, userID, id).
		Scan(&d.Name, &d.Thumbnail, &items, &background, &d.SelectedID, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("design %s for user %s: %w", id, userID, core.ErrNotFound)
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if err := json.Unmarshal(items, &d.Items); err != nil {
		return nil, fmt.Errorf("decoding items of design %s: %w", id, err)
	}
	if err := json.Unmarshal(background, &d.Background); err != nil {
		return nil, fmt.Errorf("decoding background of design %s: %w", id, err)
	}
	return &d, nil
}

func (s *pgStore) Save(ctx context.Context, d *core.Design) error {
	if d.UserID == "" || d.ID == "" {
		return fmt.Errorf("design user and ID cannot be empty")
	}
	items := d.Items
	if items == nil {
		items = []core.Item{}
	}
	itemsJSON, err := json.Marshal(items)
	if err != nil {
		return err
	}
	background, err := json.Marshal(d.Background)
	if err != nil {
		return err
	}

	err = s.db.QueryRow(ctx, `
		INSERT INTO designs (id, user_id, name, thumbnail, items, background, selected_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, NOW(), NOW())
		ON CONFLICT (user_id, id) DO UPDATE SET
			name = EXCLUDED.name, thumbnail = EXCLUDED.thumbnail, items = EXCLUDED.items,
			background = EXCLUDED.background, selected_id = EXCLUDED.selected_id, updated_at = NOW()
		RETURNING created_at, updated_at`,
		d.ID, d.UserID, d.Name, d.Thumbnail, itemsJSON, background, d.SelectedID).
		Scan(&d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		logrus.WithFields(logrus.Fields{"user_id": d.UserID, "design_id": d.ID}).WithError(err).Error("Failed to save design")
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (s *pgStore) Delete(ctx context.Context, userID, id string) error {
	tag, err := s.db.Exec(ctx, "DELETE FROM designs WHERE user_id = $1 AND id = $2", userID, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("design %s for user %s: %w", id, userID, core.ErrNotFound)
	}
	return nil
}

func (s *pgStore) CreateInvitation(ctx context.Context, inv *core.Invitation) error {
	if inv.CreatedAt.IsZero() {
		inv.CreatedAt = time.Now()
	}
	data, err := json.Marshal(inv)
	if err != nil {
		return err
	}

	tag, err := s.db.Exec(ctx, `
		INSERT INTO invitations (token, owner_id, data, created_at) VALUES ($1, $2, $3, $4)
		ON CONFLICT (token) DO NOTHING`,
		inv.Token, inv.OwnerID, data, inv.CreatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("invitation %s: %w", inv.Token, core.ErrConflict)
	}
	return nil
}

func scanInvitation(row pgx.Row) (*core.Invitation, error) {
	var (
		owner  string
		data   []byte
		viewed *time.Time
	)
	if err := row.Scan(&owner, &data, &viewed); err != nil {
		return nil, err
	}
	var inv core.Invitation
	if err := json.Unmarshal(data, &inv); err != nil {
		return nil, err
	}
	inv.OwnerID = owner
	inv.ViewedAt = viewed
	return &inv, nil
}

func (s *pgStore) FindInvitation(ctx context.Context, token string) (*core.Invitation, error) {
	inv, err := scanInvitation(s.db.QueryRow(ctx,
		"SELECT owner_id, data, viewed_at FROM invitations WHERE token = $1", token))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("invitation %s: %w", token, core.ErrNotFound)
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return inv, nil
}

// MarkViewed relies on COALESCE so concurrent first views keep the earliest
// committed timestamp.
func (s *pgStore) MarkViewed(ctx context.Context, token string, at time.Time) (*core.Invitation, error) {
	inv, err := scanInvitation(s.db.QueryRow(ctx, `
		UPDATE invitations SET viewed_at = COALESCE(viewed_at, $2) WHERE token = $1
		RETURNING owner_id, data, viewed_at`, token, at))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("invitation %s: %w", token, core.ErrNotFound)
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return inv, nil
}

func (s *pgStore) ListInvitations(ctx context.Context, ownerID string) ([]*core.Invitation, error) {
	rows, err := s.db.Query(ctx, `
		SELECT owner_id, data, viewed_at FROM invitations
		WHERE owner_id = $1 ORDER BY created_at DESC`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
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

func (s *pgStore) ListOrganizations(ctx context.Context, ownerID string) ([]*core.Organization, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, name, email, logo_url, created_at, updated_at
		FROM organizations WHERE owner_id = $1 ORDER BY name`, ownerID)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
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

func (s *pgStore) GetOrganization(ctx context.Context, ownerID, id string) (*core.Organization, error) {
	org := core.Organization{OwnerID: ownerID, ID: id}
	err := s.db.QueryRow(ctx, `
		SELECT name, email, logo_url, created_at, updated_at
		FROM organizations WHERE owner_id = $1 AND id = $2`, ownerID, id).
		Scan(&org.Name, &org.Email, &org.LogoURL, &org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("organization %s for user %s: %w", id, ownerID, core.ErrNotFound)
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return &org, nil
}

func (s *pgStore) SaveOrganization(ctx context.Context, org *core.Organization) error {
	if org.OwnerID == "" || org.ID == "" {
		return fmt.Errorf("organization owner and ID cannot be empty")
	}
	err := s.db.QueryRow(ctx, `
		INSERT INTO organizations (id, owner_id, name, email, logo_url)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (owner_id, id) DO UPDATE SET
			name = EXCLUDED.name, email = EXCLUDED.email, logo_url = EXCLUDED.logo_url, updated_at = NOW()
		RETURNING created_at, updated_at`,
		org.ID, org.OwnerID, org.Name, org.Email, org.LogoURL).
		Scan(&org.CreatedAt, &org.UpdatedAt)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (s *pgStore) DeleteOrganization(ctx context.Context, ownerID, id string) error {
	tag, err := s.db.Exec(ctx, "DELETE FROM organizations WHERE owner_id = $1 AND id = $2", ownerID, id)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("organization %s for user %s: %w", id, ownerID, core.ErrNotFound)
	}
	return nil
}
