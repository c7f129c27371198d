package authgate

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// ============================================================================
// DOMAIN OBJECTS
// ============================================================================

// Permission is a registered (resource, action, scope) record from the
// permission catalog. The tuple is the identity; Name and Category are
// descriptive metadata only.
type Permission struct {
	Resource string     `json:"resource" yaml:"resource"`
	Action   string     `json:"action" yaml:"action"`
	Scope    ScopeLevel `json:"scope" yaml:"scope"`
	Name     string     `json:"name,omitempty" yaml:"name,omitempty"`
	Category string     `json:"category,omitempty" yaml:"category,omitempty"`
}

// String returns the canonical dotted form resource.action.scope.
func (p Permission) String() string {
	return p.Resource + "." + p.Action + "." + p.Scope.String()
}

// Key returns the identity tuple without metadata, usable as a map key.
func (p Permission) Key() string { return p.String() }

// ParsePermission parses the dotted form resource.action.scope. Resource and
// action may be the wildcard "*"; scope must be a known level.
func ParsePermission(s string) (Permission, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 {
		return Permission{}, fmt.Errorf("malformed permission %q: want resource.action.scope", s)
	}
	if parts[0] == "" || parts[1] == "" {
		return Permission{}, fmt.Errorf("malformed permission %q: empty resource or action", s)
	}
	scope, err := ParseScope(parts[2])
	if err != nil {
		return Permission{}, fmt.Errorf("malformed permission %q: %w", s, err)
	}
	return Permission{Resource: parts[0], Action: parts[1], Scope: scope}, nil
}

// RoleGrant binds a permission to a role. Granted=false entries are kept in
// the data model for future explicit-deny support but are ignored by the
// additive resolver: only Granted=true contributes to the effective set.
type RoleGrant struct {
	Permission Permission `json:"permission" yaml:"permission"`
	Granted    bool       `json:"granted" yaml:"granted"`
}

// Role is a named set of permission grants. OrganizationID is empty for
// system roles usable platform-wide.
type Role struct {
	ID             string      `json:"id" yaml:"id"`
	Name           string      `json:"name" yaml:"name"`
	OrganizationID string      `json:"organization_id,omitempty" yaml:"organization_id,omitempty"`
	Grants         []RoleGrant `json:"grants" yaml:"grants"`
	CreatedAt      time.Time   `json:"created_at" yaml:"-"`
}

// IsSystemRole reports whether the role is usable across organizations.
func (r *Role) IsSystemRole() bool { return r.OrganizationID == "" }

// RoleAssignment is a time-bounded binding of a user to a role. A zero
// ExpiresAt means the assignment never expires.
type RoleAssignment struct {
	UserID    string    `json:"user_id" yaml:"user_id"`
	RoleID    string    `json:"role_id" yaml:"role_id"`
	IsActive  bool      `json:"is_active" yaml:"is_active"`
	ExpiresAt time.Time `json:"expires_at,omitempty" yaml:"expires_at,omitempty"`
	CreatedAt time.Time `json:"created_at" yaml:"-"`
}

// IsExpired checks the assignment against the given instant.
func (a *RoleAssignment) IsExpired(now time.Time) bool {
	return !a.ExpiresAt.IsZero() && a.ExpiresAt.Before(now)
}

// IsValid reports whether the assignment contributes to the effective set.
func (a *RoleAssignment) IsValid(now time.Time) bool {
	return a.IsActive && !a.IsExpired(now)
}

// PermissionContext carries everything the evaluator needs about one request:
// the authenticated identity, its legacy role tag (fallback key), the resolved
// tenant identifiers and optional supplemental condition inputs. It is built
// per request by the caller and never stored.
type PermissionContext struct {
	UserID          string         `json:"user_id"`
	LegacyRole      string         `json:"legacy_role"`
	OrganizationID  string         `json:"organization_id,omitempty"`
	PropertyID      string         `json:"property_id,omitempty"`
	DepartmentID    string         `json:"department_id,omitempty"`
	ResourceOwnerID string         `json:"resource_owner_id,omitempty"`
	Extra           map[string]any `json:"extra,omitempty"`
}

// Decision is the outcome of an evaluation. A deny carries a human-readable
// Reason for audit logging; it is never surfaced as an error.
type Decision struct {
	Granted      bool              `json:"granted"`
	Reason       string            `json:"reason,omitempty"`
	MatchedBy    string            `json:"matched_by,omitempty"` // grant pattern or legacy role tag
	ScopeFilters map[string]string `json:"scope_filters,omitempty"`
	Trace        []string          `json:"trace,omitempty"`
	Timestamp    time.Time         `json:"timestamp"`
}

// ModuleManifest is a registered feature module. System modules can never be
// disabled by any administrative action.
type ModuleManifest struct {
	ID             string   `json:"id" yaml:"id"`
	DisplayName    string   `json:"display_name" yaml:"display_name"`
	DependsOn      []string `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	IsSystemModule bool     `json:"is_system_module" yaml:"is_system_module"`
	IsActive       bool     `json:"is_active" yaml:"is_active"`
}

// ModuleSubscription is an enablement row keyed by (organization, module,
// property). An empty PropertyID is the organization-level default; a non-empty
// PropertyID is a property-level override that takes precedence over it.
type ModuleSubscription struct {
	OrganizationID string    `json:"organization_id" yaml:"organization_id"`
	ModuleID       string    `json:"module_id" yaml:"module_id"`
	PropertyID     string    `json:"property_id,omitempty" yaml:"property_id,omitempty"`
	IsEnabled      bool      `json:"is_enabled" yaml:"is_enabled"`
	EnabledAt      time.Time `json:"enabled_at,omitempty" yaml:"-"`
	DisabledAt     time.Time `json:"disabled_at,omitempty" yaml:"-"`
}

// ============================================================================
// STORAGE INTERFACES
// ============================================================================

// CatalogStore holds the registered permission records. Catalog data is
// append-only reference data; records are never mutated once referenced.
type CatalogStore interface {
	RegisterPermission(ctx context.Context, p Permission) error
	GetPermission(ctx context.Context, resource, action string, scope ScopeLevel) (Permission, error)
	ListPermissions(ctx context.Context) ([]Permission, error)
}

// RoleStore manages custom role persistence.
type RoleStore interface {
	CreateRole(ctx context.Context, r *Role) error
	UpdateRole(ctx context.Context, r *Role) error
	DeleteRole(ctx context.Context, id string) error
	GetRole(ctx context.Context, id string) (*Role, error)
	ListRoles(ctx context.Context, organizationID string) ([]*Role, error)
}

// AssignmentStore manages user-to-role bindings. ListAssignments returns all
// rows for the user including inactive and expired ones; validity filtering is
// the resolver's job. ListUsersForRole supports bulk cache invalidation when a
// role itself changes.
type AssignmentStore interface {
	AssignRole(ctx context.Context, a *RoleAssignment) error
	RevokeRole(ctx context.Context, userID, roleID string) error
	DeactivateRole(ctx context.Context, userID, roleID string) error
	ListAssignments(ctx context.Context, userID string) ([]*RoleAssignment, error)
	ListUsersForRole(ctx context.Context, roleID string) ([]string, error)
}

// ModuleStore manages module manifests and subscription rows. GetSubscription
// with an empty propertyID addresses the organization-level default row.
type ModuleStore interface {
	RegisterManifest(ctx context.Context, m *ModuleManifest) error
	GetManifest(ctx context.Context, moduleID string) (*ModuleManifest, error)
	ListManifests(ctx context.Context) ([]*ModuleManifest, error)
	UpsertSubscription(ctx context.Context, s *ModuleSubscription) error
	GetSubscription(ctx context.Context, organizationID, moduleID, propertyID string) (*ModuleSubscription, error)
	DeleteSubscription(ctx context.Context, organizationID, moduleID, propertyID string) error
	ListSubscriptions(ctx context.Context, organizationID, propertyID string) ([]*ModuleSubscription, error)
}
