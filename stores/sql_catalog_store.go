package stores

import (
	"context"
	"fmt"

	"github.com/oarkflow/squealx"
	"github.com/propelio/authgate"
)

// SQLCatalogStore persists the permission catalog in SQL (squealx)
type SQLCatalogStore struct {
	db *squealx.DB
}

func NewSQLCatalogStore(db *squealx.DB) *SQLCatalogStore {
	return &SQLCatalogStore{db: db}
}

func (s *SQLCatalogStore) RegisterPermission(ctx context.Context, p authgate.Permission) error {
	existing, err := s.GetPermission(ctx, p.Resource, p.Action, p.Scope)
	if err == nil {
		// Catalog rows are append-only; identical re-registration is a
		// no-op, metadata drift is rejected.
		if existing.Name != p.Name || existing.Category != p.Category {
			return fmt.Errorf("permission %s already registered with different metadata", p.Key())
		}
		return nil
	}
	q := `INSERT INTO permissions(resource, action, scope, name, category) VALUES(:resource, :action, :scope, :name, :category)`
	_, err = s.db.NamedExecContext(ctx, q, map[string]any{
		"resource": p.Resource,
		"action":   p.Action,
		"scope":    p.Scope.String(),
		"name":     p.Name,
		"category": p.Category,
	})
	return err
}

func (s *SQLCatalogStore) GetPermission(ctx context.Context, resource, action string, scope authgate.ScopeLevel) (authgate.Permission, error) {
	q := `SELECT resource, action, scope, name, category FROM permissions WHERE resource = :resource AND action = :action AND scope = :scope`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"resource": resource, "action": action, "scope": scope.String()})
	if err != nil {
		return authgate.Permission{}, err
	}
	defer r.Close()
	if !r.Next() {
		key := authgate.Permission{Resource: resource, Action: action, Scope: scope}.Key()
		return authgate.Permission{}, fmt.Errorf("permission not found: %s", key)
	}
	return scanPermission(r)
}

func (s *SQLCatalogStore) ListPermissions(ctx context.Context) ([]authgate.Permission, error) {
	q := `SELECT resource, action, scope, name, category FROM permissions ORDER BY resource, action, scope`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]authgate.Permission, 0)
	for r.Next() {
		p, err := scanPermission(r)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPermission(r rowScanner) (authgate.Permission, error) {
	var resource, action, scopeName, name, category string
	if err := r.Scan(&resource, &action, &scopeName, &name, &category); err != nil {
		return authgate.Permission{}, err
	}
	scope, err := authgate.ParseScope(scopeName)
	if err != nil {
		return authgate.Permission{}, err
	}
	return authgate.Permission{Resource: resource, Action: action, Scope: scope, Name: name, Category: category}, nil
}
