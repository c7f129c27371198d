package stores

import (
	"context"
	"encoding/json"

	"github.com/oarkflow/squealx"
	"github.com/propelio/authgate"
)

// SQLModuleStore persists module manifests and subscription rows in SQL
// (squealx). A subscription row is keyed (organization, module, property)
// with an empty property id for the organization-level default.
type SQLModuleStore struct {
	db *squealx.DB
}

func NewSQLModuleStore(db *squealx.DB) *SQLModuleStore {
	return &SQLModuleStore{db: db}
}

func (s *SQLModuleStore) RegisterManifest(ctx context.Context, m *authgate.ModuleManifest) error {
	deps, _ := json.Marshal(m.DependsOn)
	q := `INSERT OR REPLACE INTO module_manifests(id, display_name, depends_on_json, is_system_module, is_active) VALUES(:id, :display_name, :depends_on_json, :is_system_module, :is_active)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"id":               m.ID,
		"display_name":     m.DisplayName,
		"depends_on_json":  string(deps),
		"is_system_module": boolToInt(m.IsSystemModule),
		"is_active":        boolToInt(m.IsActive),
	})
	return err
}

func (s *SQLModuleStore) GetManifest(ctx context.Context, moduleID string) (*authgate.ModuleManifest, error) {
	q := `SELECT id, display_name, depends_on_json, is_system_module, is_active FROM module_manifests WHERE id = :id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{"id": moduleID})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if !r.Next() {
		return nil, &authgate.UnknownModuleError{ModuleID: moduleID}
	}
	return scanManifest(r)
}

func (s *SQLModuleStore) ListManifests(ctx context.Context) ([]*authgate.ModuleManifest, error) {
	q := `SELECT id, display_name, depends_on_json, is_system_module, is_active FROM module_manifests ORDER BY id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]*authgate.ModuleManifest, 0)
	for r.Next() {
		m, err := scanManifest(r)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

func scanManifest(r rowScanner) (*authgate.ModuleManifest, error) {
	var id, name, depsJSON string
	var system, active int
	if err := r.Scan(&id, &name, &depsJSON, &system, &active); err != nil {
		return nil, err
	}
	m := &authgate.ModuleManifest{
		ID:             id,
		DisplayName:    name,
		IsSystemModule: system == 1,
		IsActive:       active == 1,
	}
	_ = json.Unmarshal([]byte(depsJSON), &m.DependsOn)
	return m, nil
}

func (s *SQLModuleStore) UpsertSubscription(ctx context.Context, sub *authgate.ModuleSubscription) error {
	q := `INSERT OR REPLACE INTO module_subscriptions(organization_id, module_id, property_id, is_enabled, enabled_at, disabled_at) VALUES(:organization_id, :module_id, :property_id, :is_enabled, :enabled_at, :disabled_at)`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"organization_id": sub.OrganizationID,
		"module_id":       sub.ModuleID,
		"property_id":     sub.PropertyID,
		"is_enabled":      boolToInt(sub.IsEnabled),
		"enabled_at":      sqlNullTimeOrNil(sub.EnabledAt),
		"disabled_at":     sqlNullTimeOrNil(sub.DisabledAt),
	})
	return err
}

func (s *SQLModuleStore) GetSubscription(ctx context.Context, organizationID, moduleID, propertyID string) (*authgate.ModuleSubscription, error) {
	q := `SELECT organization_id, module_id, property_id, is_enabled, enabled_at, disabled_at FROM module_subscriptions WHERE organization_id = :organization_id AND module_id = :module_id AND property_id = :property_id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{
		"organization_id": organizationID,
		"module_id":       moduleID,
		"property_id":     propertyID,
	})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	if !r.Next() {
		// Absence of a row is data, not an error: the gate falls back a level.
		return nil, nil
	}
	return scanSubscription(r)
}

func (s *SQLModuleStore) DeleteSubscription(ctx context.Context, organizationID, moduleID, propertyID string) error {
	q := `DELETE FROM module_subscriptions WHERE organization_id = :organization_id AND module_id = :module_id AND property_id = :property_id`
	_, err := s.db.NamedExecContext(ctx, q, map[string]any{
		"organization_id": organizationID,
		"module_id":       moduleID,
		"property_id":     propertyID,
	})
	return err
}

func (s *SQLModuleStore) ListSubscriptions(ctx context.Context, organizationID, propertyID string) ([]*authgate.ModuleSubscription, error) {
	q := `SELECT organization_id, module_id, property_id, is_enabled, enabled_at, disabled_at FROM module_subscriptions WHERE organization_id = :organization_id AND property_id = :property_id ORDER BY module_id`
	r, err := s.db.NamedQueryContext(ctx, q, map[string]any{
		"organization_id": organizationID,
		"property_id":     propertyID,
	})
	if err != nil {
		return nil, err
	}
	defer r.Close()
	out := make([]*authgate.ModuleSubscription, 0)
	for r.Next() {
		sub, err := scanSubscription(r)
		if err != nil {
			return nil, err
		}
		out = append(out, sub)
	}
	return out, nil
}

func scanSubscription(r rowScanner) (*authgate.ModuleSubscription, error) {
	var org, module, property string
	var enabled int
	var enabledRaw, disabledRaw interface{}
	if err := r.Scan(&org, &module, &property, &enabled, &enabledRaw, &disabledRaw); err != nil {
		return nil, err
	}
	sub := &authgate.ModuleSubscription{
		OrganizationID: org,
		ModuleID:       module,
		PropertyID:     property,
		IsEnabled:      enabled == 1,
	}
	if enabledRaw != nil {
		sub.EnabledAt = scanTime(enabledRaw)
	}
	if disabledRaw != nil {
		sub.DisabledAt = scanTime(disabledRaw)
	}
	return sub, nil
}
