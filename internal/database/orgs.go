package database

import (
	"context"
	"database/sql"

	"github.com/odvcencio/codehub/internal/models"
)

// --- Organizations ---

const orgColumns = `o.id, o.name, o.display_name, o.description, o.website, o.location, o.email, o.owner_id, o.created_at, o.updated_at`

func scanOrg(row rowScanner, o *models.Org) error {
	return row.Scan(&o.ID, &o.Name, &o.DisplayName, &o.Description, &o.Website, &o.Location, &o.Email,
		&o.OwnerID, &o.CreatedAt, &o.UpdatedAt)
}

// CreateOrg inserts the organization and its owner membership together.
func (s *sqlStore) CreateOrg(ctx context.Context, org *models.Org) error {
	ts := now()
	return s.withTx(ctx, func(h handle) error {
		id, err := h.insert(ctx,
			`INSERT INTO orgs (name, display_name, description, website, location, email, owner_id, created_at, updated_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			org.Name, org.DisplayName, org.Description, org.Website, org.Location, org.Email, org.OwnerID, ts, ts)
		if err != nil {
			return err
		}
		if _, err := h.exec(ctx,
			`INSERT INTO org_members (org_id, user_id, role, joined_at) VALUES (?, ?, ?, ?)`,
			id, org.OwnerID, models.OrgRoleOwner, ts); err != nil {
			return err
		}
		org.ID = id
		org.CreatedAt, org.UpdatedAt = ts, ts
		return nil
	})
}

func (s *sqlStore) GetOrg(ctx context.Context, name string) (*models.Org, error) {
	o := &models.Org{}
	if err := scanOrg(s.h().queryRow(ctx, `SELECT `+orgColumns+` FROM orgs o WHERE o.name = ?`, name), o); err != nil {
		return nil, err
	}
	return o, nil
}

// UpdateOrg rewrites the descriptive fields of an organization.
func (s *sqlStore) UpdateOrg(ctx context.Context, org *models.Org) error {
	org.UpdatedAt = now()
	err := s.h().execOne(ctx,
		`UPDATE orgs SET display_name = ?, description = ?, website = ?, location = ?, email = ?, updated_at = ?
		 WHERE id = ?`,
		org.DisplayName, org.Description, org.Website, org.Location, org.Email, org.UpdatedAt, org.ID)
	return normalizeErr(err)
}

func (s *sqlStore) GetOrgByID(ctx context.Context, id int64) (*models.Org, error) {
	o := &models.Org{}
	if err := scanOrg(s.h().queryRow(ctx, `SELECT `+orgColumns+` FROM orgs o WHERE o.id = ?`, id), o); err != nil {
		return nil, err
	}
	return o, nil
}

func (s *sqlStore) ListUserOrgs(ctx context.Context, userID int64) ([]models.Org, error) {
	rows, err := s.h().query(ctx,
		`SELECT `+orgColumns+` FROM orgs o
		 JOIN org_members m ON m.org_id = o.id
		 WHERE m.user_id = ?
		 ORDER BY o.name`, userID)
	if err != nil {
		return nil, err
	}
	return collectRows(rows, func(r *sql.Rows, o *models.Org) error { return scanOrg(r, o) })
}

func (s *sqlStore) DeleteOrg(ctx context.Context, id int64) error {
	return s.h().execOne(ctx, `DELETE FROM orgs WHERE id = ?`, id)
}

// --- Organization members ---

func (s *sqlStore) AddOrgMember(ctx context.Context, m *models.OrgMember) error {
	m.JoinedAt = now()
	_, err := s.h().exec(ctx,
		`INSERT INTO org_members (org_id, user_id, role, joined_at) VALUES (?, ?, ?, ?)`,
		m.OrgID, m.UserID, m.Role, m.JoinedAt)
	return normalizeErr(err)
}

func (s *sqlStore) UpdateOrgMemberRole(ctx context.Context, orgID, userID int64, role string) error {
	return s.h().execOne(ctx, `UPDATE org_members SET role = ? WHERE org_id = ? AND user_id = ?`, role, orgID, userID)
}

func (s *sqlStore) GetOrgMember(ctx context.Context, orgID, userID int64) (*models.OrgMember, error) {
	m := &models.OrgMember{}
	err := s.h().queryRow(ctx,
		`SELECT m.org_id, m.user_id, u.username, m.role, m.joined_at
		 FROM org_members m JOIN users u ON u.id = m.user_id
		 WHERE m.org_id = ? AND m.user_id = ?`, orgID, userID).
		Scan(&m.OrgID, &m.UserID, &m.Username, &m.Role, &m.JoinedAt)
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (s *sqlStore) ListOrgMembers(ctx context.Context, orgID int64) ([]models.OrgMember, error) {
	rows, err := s.h().query(ctx,
		`SELECT m.org_id, m.user_id, u.username, m.role, m.joined_at
		 FROM org_members m JOIN users u ON u.id = m.user_id
		 WHERE m.org_id = ?
		 ORDER BY u.username`, orgID)
	if err != nil {
		return nil, err
	}
	return collectRows(rows, func(r *sql.Rows, m *models.OrgMember) error {
		return r.Scan(&m.OrgID, &m.UserID, &m.Username, &m.Role, &m.JoinedAt)
	})
}

func (s *sqlStore) RemoveOrgMember(ctx context.Context, orgID, userID int64) error {
	return s.h().execOne(ctx, `DELETE FROM org_members WHERE org_id = ? AND user_id = ?`, orgID, userID)
}
