package stores

import (
	"context"
	"encoding/json"
	"time"

	"github.com/oarkflow/squealx"
	"github.com/propelio/authgate"
)

// SQLRoleStore persists roles in SQL (squealx). Grants are stored as a JSON
// column; the engine always loads a role whole.
type SQLRoleStore struct {
	db *squealx.DB
}

func NewSQLRoleStore(db *squealx.DB) *SQLRoleStore {
	return &SQLRoleStore{db: db}
}

func (s *SQLRoleStore) CreateRole(ctx context.Context, r *authgate.Role) error {
	grants, _ := json.Marshal(r.Grants)
	created := r.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	q := `INSERT INTO roles(id, organization_id, name, grants_json, created_at) VALUES(:id, :organization_id, :name, :grants_json, :created_at)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id":              r.ID,
		"organization_id": r.OrganizationID,
		"name":            r.Name,
		"grants_json":     string(grants),
		"created_at":      created,
	})
	return err
}

func (s *SQLRoleStore) UpdateRole(ctx context.Context, r *authgate.Role) error {
	if _, err := s.GetRole(ctx, r.ID); err != nil {
		return err
	}
	grants, _ := json.Marshal(r.Grants)
	q := `UPDATE roles SET organization_id=:organization_id, name=:name, grants_json=:grants_json WHERE id=:id`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id":              r.ID,
		"organization_id": r.OrganizationID,
		"name":            r.Name,
		"grants_json":     string(grants),
	})
	return err
}

func (s *SQLRoleStore) DeleteRole(ctx context.Context, id string) error {
	if _, err := s.GetRole(ctx, id); err != nil {
		return err
	}
	q := `DELETE FROM roles WHERE id = :id`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"id": id})
	return err
}

func (s *SQLRoleStore) GetRole(ctx context.Context, id string) (*authgate.Role, error) {
	q := `SELECT id, organization_id, name, grants_json, created_at FROM roles WHERE id = :id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if !r.Next() {
		return nil, &authgate.UnknownRoleError{RoleID: id}
	}
	var idv, org, name, grantsJSON string
	var createdRaw interface{}
	if err := r.Scan(&idv, &org, &name, &grantsJSON, &createdRaw); err != nil {
		return nil, err
	}
	role := &authgate.Role{ID: idv, OrganizationID: org, Name: name, CreatedAt: scanTime(createdRaw)}
	var grants []authgate.RoleGrant
	_ = json.Unmarshal([]byte(grantsJSON), &grants)
	role.Grants = grants
	return role, nil
}

func (s *SQLRoleStore) ListRoles(ctx context.Context, organizationID string) ([]*authgate.Role, error) {
	// System roles (empty organization) are visible to every organization.
	q := `SELECT id FROM roles WHERE organization_id = :organization_id OR organization_id = '' ORDER BY id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"organization_id": organizationID})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	ids := make([]string, 0)
	for r.Next() {
		var id string
		if err := r.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	out := make([]*authgate.Role, 0, len(ids))
	for _, id := range ids {
		role, err := s.GetRole(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, role)
	}
	return out, nil
}
