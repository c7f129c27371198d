package authgate

import "time"

// Builders provide a fluent API for creating Permissions, Roles and
// ModuleManifests.

// PermissionBuilder builds a catalog Permission
type PermissionBuilder struct {
	p Permission
}

func NewPermissionBuilder() *PermissionBuilder { return &PermissionBuilder{} }

func (b *PermissionBuilder) Resource(r string) *PermissionBuilder   { b.p.Resource = r; return b }
func (b *PermissionBuilder) Action(a string) *PermissionBuilder     { b.p.Action = a; return b }
func (b *PermissionBuilder) Scope(s ScopeLevel) *PermissionBuilder  { b.p.Scope = s; return b }
func (b *PermissionBuilder) Name(n string) *PermissionBuilder       { b.p.Name = n; return b }
func (b *PermissionBuilder) Category(c string) *PermissionBuilder   { b.p.Category = c; return b }
func (b *PermissionBuilder) Build() Permission                      { return b.p }

// RoleBuilder builds a Role
type RoleBuilder struct {
	r *Role
}

func NewRoleBuilder() *RoleBuilder {
	return &RoleBuilder{r: &Role{Grants: []RoleGrant{}}}
}

func (b *RoleBuilder) ID(id string) *RoleBuilder            { b.r.ID = id; return b }
func (b *RoleBuilder) Name(n string) *RoleBuilder           { b.r.Name = n; return b }
func (b *RoleBuilder) Organization(org string) *RoleBuilder { b.r.OrganizationID = org; return b }

// Grant appends a granted permission.
func (b *RoleBuilder) Grant(resource, action string, scope ScopeLevel) *RoleBuilder {
	b.r.Grants = append(b.r.Grants, RoleGrant{
		Permission: Permission{Resource: resource, Action: action, Scope: scope},
		Granted:    true,
	})
	return b
}

// Withhold appends a granted=false entry. Ignored by additive resolution
// today; kept so role data round-trips intact.
func (b *RoleBuilder) Withhold(resource, action string, scope ScopeLevel) *RoleBuilder {
	b.r.Grants = append(b.r.Grants, RoleGrant{
		Permission: Permission{Resource: resource, Action: action, Scope: scope},
		Granted:    false,
	})
	return b
}

func (b *RoleBuilder) Build() *Role { return b.r }

// AssignmentBuilder builds a RoleAssignment
type AssignmentBuilder struct {
	a *RoleAssignment
}

func NewAssignmentBuilder() *AssignmentBuilder {
	return &AssignmentBuilder{a: &RoleAssignment{IsActive: true}}
}

func (b *AssignmentBuilder) User(id string) *AssignmentBuilder          { b.a.UserID = id; return b }
func (b *AssignmentBuilder) Role(id string) *AssignmentBuilder          { b.a.RoleID = id; return b }
func (b *AssignmentBuilder) Active(active bool) *AssignmentBuilder      { b.a.IsActive = active; return b }
func (b *AssignmentBuilder) ExpiresAt(t time.Time) *AssignmentBuilder   { b.a.ExpiresAt = t; return b }
func (b *AssignmentBuilder) Build() *RoleAssignment                     { return b.a }

// ManifestBuilder builds a ModuleManifest
type ManifestBuilder struct {
	m *ModuleManifest
}

func NewManifestBuilder() *ManifestBuilder {
	return &ManifestBuilder{m: &ModuleManifest{IsActive: true}}
}

func (b *ManifestBuilder) ID(id string) *ManifestBuilder          { b.m.ID = id; return b }
func (b *ManifestBuilder) DisplayName(n string) *ManifestBuilder  { b.m.DisplayName = n; return b }
func (b *ManifestBuilder) DependsOn(ids ...string) *ManifestBuilder {
	b.m.DependsOn = append(b.m.DependsOn, ids...)
	return b
}
func (b *ManifestBuilder) System(system bool) *ManifestBuilder    { b.m.IsSystemModule = system; return b }
func (b *ManifestBuilder) Active(active bool) *ManifestBuilder    { b.m.IsActive = active; return b }
func (b *ManifestBuilder) Build() *ModuleManifest                 { return b.m }
