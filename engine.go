package authgate

import (
	"context"
	"fmt"
	"time"

	"github.com/propelio/authgate/logger"
)

// ============================================================================
// ENGINE
// ============================================================================

// Engine is the facade the CRUD/HTTP layer calls into: permission evaluation,
// role administration and the module gate behind one handle. All invocations
// are synchronous; the only shared mutable state is the permission cache and
// the backing stores.
type Engine struct {
	catalog     CatalogStore
	roleStore   RoleStore
	assignments AssignmentStore
	modules     ModuleStore

	resolver  *Resolver
	evaluator *Evaluator
	gate      *Gate

	logger      logger.Logger
	traceIDFunc logger.TraceIDFunc
}

// EngineOption mutates the engine during construction.
type EngineOption func(e *Engine) error

// WithPermissionCache replaces the default in-memory permission cache.
func WithPermissionCache(cache PermissionCache) EngineOption {
	return func(e *Engine) error {
		if cache == nil {
			return fmt.Errorf("permission cache must not be nil")
		}
		e.resolver.cache = cache
		return nil
	}
}

// WithCacheTTL overrides the default permission cache entry lifetime.
func WithCacheTTL(ttl time.Duration) EngineOption {
	return func(e *Engine) error {
		if ttl <= 0 {
			return fmt.Errorf("cache ttl must be positive")
		}
		e.resolver.SetCacheTTL(ttl)
		return nil
	}
}

// WithClock injects a time source for assignment expiry and subscription
// timestamps. Tests use it to cross expiry boundaries deterministically.
func WithClock(now func() time.Time) EngineOption {
	return func(e *Engine) error {
		e.resolver.SetClock(now)
		e.evaluator.SetClock(now)
		e.gate.SetClock(now)
		return nil
	}
}

func NewEngine(catalog CatalogStore, roles RoleStore, assignments AssignmentStore, modules ModuleStore, opts ...EngineOption) (*Engine, error) {
	if catalog == nil || roles == nil || assignments == nil || modules == nil {
		return nil, fmt.Errorf("all stores are required")
	}
	e := &Engine{
		catalog:     catalog,
		roleStore:   roles,
		assignments: assignments,
		modules:     modules,
		logger:      logger.NewNullLogger(),
	}
	e.resolver = NewResolver(roles, assignments, NewMemoryPermissionCache())
	e.evaluator = NewEvaluator(e.resolver)
	e.gate = NewGate(modules)
	for _, opt := range opts {
		if err := opt(e); err != nil {
			return nil, err
		}
	}
	e.resolver.SetLogger(e.logger)
	e.evaluator.SetLogger(e.logger)
	e.gate.SetLogger(e.logger)
	return e, nil
}

// ============================================================================
// EVALUATION
// ============================================================================

// Evaluate decides a requested permission for the context and logs the
// outcome for audit purposes.
func (e *Engine) Evaluate(ctx context.Context, requested Permission, pctx *PermissionContext) (*Decision, error) {
	decision, err := e.evaluator.Evaluate(ctx, requested, pctx)
	if err != nil {
		return nil, err
	}
	e.auditDecision(requested, pctx, decision)
	return decision, nil
}

// EvaluateString accepts the dotted resource.action.scope form.
func (e *Engine) EvaluateString(ctx context.Context, requested string, pctx *PermissionContext) (*Decision, error) {
	p, err := ParsePermission(requested)
	if err != nil {
		return nil, err
	}
	return e.Evaluate(ctx, p, pctx)
}

// Explain returns the decision with a populated trace.
func (e *Engine) Explain(ctx context.Context, requested Permission, pctx *PermissionContext) (*Decision, error) {
	decision, err := e.evaluator.Explain(ctx, requested, pctx)
	if err != nil {
		return nil, err
	}
	e.auditDecision(requested, pctx, decision)
	return decision, nil
}

// EvalRequest pairs a requested permission with its context for batch use.
type EvalRequest struct {
	Requested Permission
	Context   *PermissionContext
}

// BatchEvaluate evaluates requests in order. The first store failure aborts;
// denials do not.
func (e *Engine) BatchEvaluate(ctx context.Context, requests []EvalRequest) ([]*Decision, error) {
	out := make([]*Decision, 0, len(requests))
	for _, req := range requests {
		d, err := e.Evaluate(ctx, req.Requested, req.Context)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// EffectivePermissions exposes the resolver for callers that render
// permission-aware UI in bulk.
func (e *Engine) EffectivePermissions(ctx context.Context, userID, legacyRole string) ([]string, error) {
	return e.resolver.EffectivePermissions(ctx, userID, legacyRole)
}

// RequireCondition attaches a supplemental condition to a permission string.
func (e *Engine) RequireCondition(permission string, cond Condition) {
	e.evaluator.RequireCondition(permission, cond)
}

// ============================================================================
// ADMINISTRATION
// ============================================================================

// RegisterPermission adds a record to the permission catalog.
func (e *Engine) RegisterPermission(ctx context.Context, p Permission) error {
	return e.catalog.RegisterPermission(ctx, p)
}

func (e *Engine) CreateRole(ctx context.Context, role *Role) error {
	return e.roleStore.CreateRole(ctx, role)
}

// UpdateRole persists the role and invalidates the cached permission set of
// every user holding it; an uninvalidated entry would keep serving the old
// grants until the TTL expires.
func (e *Engine) UpdateRole(ctx context.Context, role *Role) error {
	if err := e.roleStore.UpdateRole(ctx, role); err != nil {
		return err
	}
	return e.resolver.InvalidateRole(ctx, role.ID)
}

func (e *Engine) DeleteRole(ctx context.Context, roleID string) error {
	// Collect affected users before the role disappears.
	users, err := e.assignments.ListUsersForRole(ctx, roleID)
	if err != nil {
		return err
	}
	if err := e.roleStore.DeleteRole(ctx, roleID); err != nil {
		return err
	}
	for _, userID := range users {
		e.resolver.Invalidate(userID)
	}
	return nil
}

// AssignRole binds a user to a role. The referenced role must exist.
func (e *Engine) AssignRole(ctx context.Context, a *RoleAssignment) error {
	if _, err := e.roleStore.GetRole(ctx, a.RoleID); err != nil {
		return err
	}
	if err := e.assignments.AssignRole(ctx, a); err != nil {
		return err
	}
	e.resolver.Invalidate(a.UserID)
	e.logger.Info("role assigned", "user_id", a.UserID, "role_id", a.RoleID)
	return nil
}

func (e *Engine) RevokeRole(ctx context.Context, userID, roleID string) error {
	if err := e.assignments.RevokeRole(ctx, userID, roleID); err != nil {
		return err
	}
	e.resolver.Invalidate(userID)
	e.logger.Info("role revoked", "user_id", userID, "role_id", roleID)
	return nil
}

// DeactivateAssignment flips the assignment inactive without deleting the row,
// preserving the audit trail.
func (e *Engine) DeactivateAssignment(ctx context.Context, userID, roleID string) error {
	if err := e.assignments.DeactivateRole(ctx, userID, roleID); err != nil {
		return err
	}
	e.resolver.Invalidate(userID)
	e.logger.Info("role assignment deactivated", "user_id", userID, "role_id", roleID)
	return nil
}

// ============================================================================
// MODULE GATE
// ============================================================================

func (e *Engine) RegisterModule(ctx context.Context, m *ModuleManifest) error {
	return e.modules.RegisterManifest(ctx, m)
}

func (e *Engine) IsModuleEnabled(ctx context.Context, organizationID, propertyID, moduleID string) (bool, error) {
	return e.gate.IsModuleEnabled(ctx, organizationID, propertyID, moduleID)
}

func (e *Engine) ModuleStatus(ctx context.Context, organizationID, propertyID, moduleID string) (*ModuleStatus, error) {
	return e.gate.StatusDetails(ctx, organizationID, propertyID, moduleID)
}

func (e *Engine) EnabledModulesForProperty(ctx context.Context, organizationID, propertyID string) ([]string, error) {
	return e.gate.EnabledModulesForProperty(ctx, organizationID, propertyID)
}

func (e *Engine) EnableModule(ctx context.Context, organizationID, propertyID, moduleID string) error {
	return e.gate.EnableModule(ctx, organizationID, propertyID, moduleID)
}

func (e *Engine) DisableModule(ctx context.Context, organizationID, propertyID, moduleID string) error {
	return e.gate.DisableModule(ctx, organizationID, propertyID, moduleID)
}

func (e *Engine) RemovePropertyOverride(ctx context.Context, organizationID, propertyID, moduleID string) error {
	return e.gate.RemovePropertyOverride(ctx, organizationID, propertyID, moduleID)
}

// ============================================================================
// AUDIT
// ============================================================================

func (e *Engine) auditDecision(requested Permission, pctx *PermissionContext, decision *Decision) {
	keyvals := []any{
		"user_id", pctx.UserID,
		"requested", requested.String(),
		"granted", decision.Granted,
	}
	if e.traceIDFunc != nil {
		keyvals = append(keyvals, "trace_id", e.traceIDFunc())
	}
	if decision.Granted {
		e.logger.Debug("permission granted", keyvals...)
		return
	}
	keyvals = append(keyvals, "reason", decision.Reason)
	e.logger.Info("permission denied", keyvals...)
}
