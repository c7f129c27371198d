package authgate

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/propelio/authgate/logger"
)

// ============================================================================
// PERMISSION RESOLVER
// ============================================================================

// Resolver computes a user's effective permission set from the assignment and
// role stores, with a per-user cache in front. The cached value is always the
// full effective set, never a per-permission answer, so a hit short-circuits
// the store reads entirely.
type Resolver struct {
	roles       RoleStore
	assignments AssignmentStore
	cache       PermissionCache
	cacheTTL    time.Duration
	log         logger.Logger
	now         func() time.Time
}

func NewResolver(roles RoleStore, assignments AssignmentStore, cache PermissionCache) *Resolver {
	return &Resolver{
		roles:       roles,
		assignments: assignments,
		cache:       cache,
		cacheTTL:    DefaultCacheTTL,
		log:         logger.NewNullLogger(),
		now:         time.Now,
	}
}

// SetCacheTTL overrides the default 5 minute entry lifetime.
func (r *Resolver) SetCacheTTL(ttl time.Duration) {
	if ttl > 0 {
		r.cacheTTL = ttl
	}
}

func (r *Resolver) SetLogger(l logger.Logger) {
	if l != nil {
		r.log = l
	}
}

// SetClock injects a time source. Tests use it to cross expiry boundaries.
func (r *Resolver) SetClock(now func() time.Time) {
	if now != nil {
		r.now = now
	}
}

// EffectivePermissions returns the deduplicated union of permission strings
// from all currently valid role assignments of the user. When the user has no
// valid assignment at all, the legacy role map keyed by legacyRole supplies
// wildcard patterns instead. The fallback is a presence check on assignments,
// not on permission count: a user whose single active role grants nothing gets
// an empty set and stays locked out.
//
// Store failures propagate; they are never collapsed into an empty set or a
// deny, so callers can apply their own fail-closed policy.
func (r *Resolver) EffectivePermissions(ctx context.Context, userID, legacyRole string) ([]string, error) {
	if cached, ok := r.cache.Get(userID); ok {
		return cached, nil
	}

	assignments, err := r.assignments.ListAssignments(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := r.now()
	seen := make(map[string]struct{})
	hasValidAssignment := false
	for _, a := range assignments {
		if !a.IsValid(now) {
			continue
		}
		role, err := r.roles.GetRole(ctx, a.RoleID)
		if err != nil {
			var unknown *UnknownRoleError
			if errors.As(err, &unknown) {
				// Dangling assignment rows are a data-hygiene problem, not a
				// reason to fail the whole resolution.
				r.log.Warn("assignment references missing role", "user_id", userID, "role_id", a.RoleID)
				continue
			}
			return nil, err
		}
		hasValidAssignment = true
		for _, g := range role.Grants {
			if !g.Granted {
				continue
			}
			seen[g.Permission.String()] = struct{}{}
		}
	}

	var perms []string
	if hasValidAssignment {
		perms = make([]string, 0, len(seen))
		for p := range seen {
			perms = append(perms, p)
		}
		sort.Strings(perms)
	} else {
		perms = LegacyPatterns(legacyRole)
		if perms == nil {
			perms = []string{}
			r.log.Debug("no assignments and unknown legacy role", "user_id", userID, "legacy_role", legacyRole)
		}
	}

	r.cache.Set(userID, perms, r.cacheTTL)
	return perms, nil
}

// Invalidate drops the cached set for one user. Wired into every
// role-assignment mutation path on the engine.
func (r *Resolver) Invalidate(userID string) {
	r.cache.Invalidate(userID)
}

// InvalidateRole drops the cached set of every user holding the role. Used
// when the role definition itself changes or is deleted.
func (r *Resolver) InvalidateRole(ctx context.Context, roleID string) error {
	users, err := r.assignments.ListUsersForRole(ctx, roleID)
	if err != nil {
		return err
	}
	for _, userID := range users {
		r.cache.Invalidate(userID)
	}
	return nil
}
