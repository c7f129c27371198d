package authgate

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// ============================================================================
// IN-MEMORY STORES
// ============================================================================

// MemoryCatalogStore keeps the permission catalog in memory.
type MemoryCatalogStore struct {
	mu    sync.RWMutex
	perms map[string]Permission
}

func NewMemoryCatalogStore() *MemoryCatalogStore {
	return &MemoryCatalogStore{perms: make(map[string]Permission)}
}

func (s *MemoryCatalogStore) RegisterPermission(ctx context.Context, p Permission) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := p.Key()
	if existing, ok := s.perms[key]; ok {
		// Catalog records are append-only; re-registration with identical
		// identity is a no-op, metadata drift is rejected.
		if existing.Name != p.Name || existing.Category != p.Category {
			return fmt.Errorf("permission %s already registered with different metadata", key)
		}
		return nil
	}
	s.perms[key] = p
	return nil
}

func (s *MemoryCatalogStore) GetPermission(ctx context.Context, resource, action string, scope ScopeLevel) (Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	key := Permission{Resource: resource, Action: action, Scope: scope}.Key()
	p, ok := s.perms[key]
	if !ok {
		return Permission{}, fmt.Errorf("permission not found: %s", key)
	}
	return p, nil
}

func (s *MemoryCatalogStore) ListPermissions(ctx context.Context) ([]Permission, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]Permission, 0, len(s.perms))
	for _, p := range s.perms {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key() < out[j].Key() })
	return out, nil
}

// MemoryRoleStore keeps roles in memory.
type MemoryRoleStore struct {
	mu    sync.RWMutex
	roles map[string]*Role
}

func NewMemoryRoleStore() *MemoryRoleStore {
	return &MemoryRoleStore{roles: make(map[string]*Role)}
}

// cloneRole copies a role together with its grants slice so store rows never
// share memory with callers.
func cloneRole(r *Role) *Role {
	cp := *r
	cp.Grants = append([]RoleGrant(nil), r.Grants...)
	return &cp
}

func (s *MemoryRoleStore) CreateRole(ctx context.Context, r *Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now()
	}
	s.roles[r.ID] = cloneRole(r)
	return nil
}

func (s *MemoryRoleStore) UpdateRole(ctx context.Context, r *Role) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[r.ID]; !ok {
		return &UnknownRoleError{RoleID: r.ID}
	}
	s.roles[r.ID] = cloneRole(r)
	return nil
}

func (s *MemoryRoleStore) DeleteRole(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.roles[id]; !ok {
		return &UnknownRoleError{RoleID: id}
	}
	delete(s.roles, id)
	return nil
}

func (s *MemoryRoleStore) GetRole(ctx context.Context, id string) (*Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.roles[id]
	if !ok {
		return nil, &UnknownRoleError{RoleID: id}
	}
	return cloneRole(r), nil
}

func (s *MemoryRoleStore) ListRoles(ctx context.Context, organizationID string) ([]*Role, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*Role, 0)
	for _, r := range s.roles {
		// System roles (empty org) are visible to every organization.
		if r.OrganizationID == organizationID || r.OrganizationID == "" {
			out = append(out, cloneRole(r))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// MemoryAssignmentStore keeps role assignments in memory.
type MemoryAssignmentStore struct {
	mu     sync.RWMutex
	byUser map[string][]*RoleAssignment
}

func NewMemoryAssignmentStore() *MemoryAssignmentStore {
	return &MemoryAssignmentStore{byUser: make(map[string][]*RoleAssignment)}
}

func (s *MemoryAssignmentStore) AssignRole(ctx context.Context, a *RoleAssignment) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now()
	}
	cp := *a
	// Re-assigning the same role replaces the existing row.
	rows := s.byUser[a.UserID]
	for i, existing := range rows {
		if existing.RoleID == a.RoleID {
			rows[i] = &cp
			return nil
		}
	}
	s.byUser[a.UserID] = append(rows, &cp)
	return nil
}

func (s *MemoryAssignmentStore) RevokeRole(ctx context.Context, userID, roleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rows := s.byUser[userID]
	for i, a := range rows {
		if a.RoleID == roleID {
			s.byUser[userID] = append(rows[:i], rows[i+1:]...)
			return nil
		}
	}
	return nil
}

func (s *MemoryAssignmentStore) DeactivateRole(ctx context.Context, userID, roleID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, a := range s.byUser[userID] {
		if a.RoleID == roleID {
			a.IsActive = false
			return nil
		}
	}
	return nil
}

func (s *MemoryAssignmentStore) ListAssignments(ctx context.Context, userID string) ([]*RoleAssignment, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.byUser[userID]
	// Rows are copied out, not aliased: DeactivateRole mutates stored rows in
	// place and callers read theirs after the lock is released.
	out := make([]*RoleAssignment, len(rows))
	for i, a := range rows {
		cp := *a
		out[i] = &cp
	}
	return out, nil
}

func (s *MemoryAssignmentStore) ListUsersForRole(ctx context.Context, roleID string) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0)
	for userID, rows := range s.byUser {
		for _, a := range rows {
			if a.RoleID == roleID {
				out = append(out, userID)
				break
			}
		}
	}
	sort.Strings(out)
	return out, nil
}

// MemoryModuleStore keeps module manifests and subscriptions in memory.
type MemoryModuleStore struct {
	mu        sync.RWMutex
	manifests map[string]*ModuleManifest
	subs      map[string]*ModuleSubscription
}

func NewMemoryModuleStore() *MemoryModuleStore {
	return &MemoryModuleStore{
		manifests: make(map[string]*ModuleManifest),
		subs:      make(map[string]*ModuleSubscription),
	}
}

func subKey(organizationID, moduleID, propertyID string) string {
	return organizationID + "\x00" + moduleID + "\x00" + propertyID
}

func (s *MemoryModuleStore) RegisterManifest(ctx context.Context, m *ModuleManifest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.manifests[m.ID] = m
	return nil
}

func (s *MemoryModuleStore) GetManifest(ctx context.Context, moduleID string) (*ModuleManifest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	m, ok := s.manifests[moduleID]
	if !ok {
		return nil, &UnknownModuleError{ModuleID: moduleID}
	}
	return m, nil
}

func (s *MemoryModuleStore) ListManifests(ctx context.Context) ([]*ModuleManifest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*ModuleManifest, 0, len(s.manifests))
	for _, m := range s.manifests {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryModuleStore) UpsertSubscription(ctx context.Context, sub *ModuleSubscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *sub
	s.subs[subKey(sub.OrganizationID, sub.ModuleID, sub.PropertyID)] = &cp
	return nil
}

func (s *MemoryModuleStore) GetSubscription(ctx context.Context, organizationID, moduleID, propertyID string) (*ModuleSubscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sub, ok := s.subs[subKey(organizationID, moduleID, propertyID)]
	if !ok {
		return nil, nil
	}
	cp := *sub
	return &cp, nil
}

func (s *MemoryModuleStore) DeleteSubscription(ctx context.Context, organizationID, moduleID, propertyID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, subKey(organizationID, moduleID, propertyID))
	return nil
}

func (s *MemoryModuleStore) ListSubscriptions(ctx context.Context, organizationID, propertyID string) ([]*ModuleSubscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*ModuleSubscription, 0)
	for _, sub := range s.subs {
		if sub.OrganizationID == organizationID && sub.PropertyID == propertyID {
			cp := *sub
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ModuleID < out[j].ModuleID })
	return out, nil
}
