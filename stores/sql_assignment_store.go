package stores

import (
	"context"
	"time"

	"github.com/oarkflow/squealx"
	"github.com/propelio/authgate"
)

// SQLAssignmentStore persists user-to-role bindings in SQL (squealx).
// Re-assigning the same role replaces the existing row, matching the memory
// store semantics.
type SQLAssignmentStore struct {
	db *squealx.DB
}

func NewSQLAssignmentStore(db *squealx.DB) *SQLAssignmentStore {
	return &SQLAssignmentStore{db: db}
}

func (s *SQLAssignmentStore) AssignRole(ctx context.Context, a *authgate.RoleAssignment) error {
	created := a.CreatedAt
	if created.IsZero() {
		created = time.Now()
	}
	q := `INSERT OR REPLACE INTO role_assignments(user_id, role_id, is_active, expires_at, created_at) VALUES(:user_id, :role_id, :is_active, :expires_at, :created_at)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"user_id":    a.UserID,
		"role_id":    a.RoleID,
		"is_active":  boolToInt(a.IsActive),
		"expires_at": sqlNullTimeOrNil(a.ExpiresAt),
		"created_at": created,
	})
	return err
}

func (s *SQLAssignmentStore) RevokeRole(ctx context.Context, userID, roleID string) error {
	q := `DELETE FROM role_assignments WHERE user_id = :user_id AND role_id = :role_id`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"user_id": userID, "role_id": roleID})
	return err
}

func (s *SQLAssignmentStore) DeactivateRole(ctx context.Context, userID, roleID string) error {
	q := `UPDATE role_assignments SET is_active = 0 WHERE user_id = :user_id AND role_id = :role_id`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{"user_id": userID, "role_id": roleID})
	return err
}

func (s *SQLAssignmentStore) ListAssignments(ctx context.Context, userID string) ([]*authgate.RoleAssignment, error) {
	q := `SELECT user_id, role_id, is_active, expires_at, created_at FROM role_assignments WHERE user_id = :user_id ORDER BY role_id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"user_id": userID})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]*authgate.RoleAssignment, 0)
	for r.Next() {
		var uid, rid string
		var active int
		var expiresRaw, createdRaw interface{}
		if err := r.Scan(&uid, &rid, &active, &expiresRaw, &createdRaw); err != nil {
			return nil, err
		}
		a := &authgate.RoleAssignment{
			UserID:    uid,
			RoleID:    rid,
			IsActive:  active == 1,
			CreatedAt: scanTime(createdRaw),
		}
		if expiresRaw != nil {
			a.ExpiresAt = scanTime(expiresRaw)
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *SQLAssignmentStore) ListUsersForRole(ctx context.Context, roleID string) ([]string, error) {
	q := `SELECT DISTINCT user_id FROM role_assignments WHERE role_id = :role_id ORDER BY user_id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"role_id": roleID})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]string, 0)
	for r.Next() {
		var uid string
		if err := r.Scan(&uid); err != nil {
			return nil, err
		}
		out = append(out, uid)
	}
	return out, nil
}
