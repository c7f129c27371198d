package authgate

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/propelio/authgate/logger"
	"github.com/propelio/authgate/utils"
)

// ============================================================================
// DECISION EVALUATOR
// ============================================================================

// ActionRead is the only action a department admin may perform at property
// scope. The carve-out is a deliberate asymmetry kept from the legacy role
// system and must not be generalized.
const ActionRead = "read"

// Evaluator matches a requested permission against a user's effective set,
// derives scope filters and runs supplemental conditions. A negative outcome
// is a normal Decision with a reason, never an error.
type Evaluator struct {
	resolver *Resolver
	log      logger.Logger
	now      func() time.Time

	mu         sync.RWMutex
	conditions map[string][]Condition // keyed by canonical permission string
}

func NewEvaluator(resolver *Resolver) *Evaluator {
	return &Evaluator{
		resolver:   resolver,
		log:        logger.NewNullLogger(),
		now:        time.Now,
		conditions: make(map[string][]Condition),
	}
}

func (e *Evaluator) SetLogger(l logger.Logger) {
	if l != nil {
		e.log = l
	}
}

func (e *Evaluator) SetClock(now func() time.Time) {
	if now != nil {
		e.now = now
	}
}

// RequireCondition attaches a supplemental condition to a permission string.
// Conditions run in registration order after a successful pattern match.
func (e *Evaluator) RequireCondition(permission string, cond Condition) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.conditions[permission] = append(e.conditions[permission], cond)
}

// ClearConditions removes all conditions attached to a permission string.
func (e *Evaluator) ClearConditions(permission string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.conditions, permission)
}

// Evaluate decides the requested permission for the context.
func (e *Evaluator) Evaluate(ctx context.Context, requested Permission, pctx *PermissionContext) (*Decision, error) {
	return e.evaluateInternal(ctx, requested, pctx, false)
}

// EvaluateString accepts the dotted resource.action.scope form.
func (e *Evaluator) EvaluateString(ctx context.Context, requested string, pctx *PermissionContext) (*Decision, error) {
	p, err := ParsePermission(requested)
	if err != nil {
		return nil, err
	}
	return e.evaluateInternal(ctx, p, pctx, false)
}

// Explain is Evaluate with a populated per-step trace for debugging and audit.
func (e *Evaluator) Explain(ctx context.Context, requested Permission, pctx *PermissionContext) (*Decision, error) {
	return e.evaluateInternal(ctx, requested, pctx, true)
}

func (e *Evaluator) evaluateInternal(ctx context.Context, requested Permission, pctx *PermissionContext, includeTrace bool) (*Decision, error) {
	decision := &Decision{Timestamp: e.now()}
	if includeTrace {
		decision.Trace = make([]string, 0, 8)
	}

	effective, err := e.resolver.EffectivePermissions(ctx, pctx.UserID, pctx.LegacyRole)
	if err != nil {
		return nil, err
	}
	if includeTrace {
		decision.Trace = append(decision.Trace, fmt.Sprintf("effective set: %d entries", len(effective)))
	}

	matched := ""
	for _, g := range effective {
		grant, err := ParsePermission(g)
		if err != nil {
			// Malformed entries in the effective set are skipped, not fatal;
			// they can only come from hand-edited role data.
			e.log.Warn("skipping malformed grant", "grant", g, "user_id", pctx.UserID)
			continue
		}
		if !utils.MatchSegment(grant.Resource, requested.Resource) || !utils.MatchSegment(grant.Action, requested.Action) {
			if includeTrace {
				decision.Trace = append(decision.Trace, fmt.Sprintf("grant %s: resource/action no match", g))
			}
			continue
		}
		if !grant.Scope.Covers(requested.Scope) {
			if includeTrace {
				decision.Trace = append(decision.Trace, fmt.Sprintf("grant %s: scope %s does not cover %s", g, grant.Scope, requested.Scope))
			}
			continue
		}
		matched = g
		if includeTrace {
			decision.Trace = append(decision.Trace, fmt.Sprintf("grant %s: match", g))
		}
		// Matching is monotonic: any further matches are equivalent.
		break
	}

	if matched == "" {
		decision.Reason = fmt.Sprintf("no grant matches %s", requested.String())
		e.log.Debug("permission denied", "user_id", pctx.UserID, "requested", requested.String(), "reason", decision.Reason)
		return decision, nil
	}

	// Department admins keep read-only access at property scope: write-level
	// actions are denied even when a wildcard grant would otherwise match.
	if pctx.LegacyRole == LegacyDepartmentAdmin && requested.Scope == ScopeProperty && requested.Action != ActionRead {
		decision.Reason = fmt.Sprintf("department admin is limited to %s at property scope", ActionRead)
		if includeTrace {
			decision.Trace = append(decision.Trace, "department admin carve-out: deny")
		}
		e.log.Debug("permission denied", "user_id", pctx.UserID, "requested", requested.String(), "reason", decision.Reason)
		return decision, nil
	}

	filters := ScopeFilters(requested.Scope, pctx)

	e.mu.RLock()
	conds := e.conditions[requested.String()]
	e.mu.RUnlock()
	for _, cond := range conds {
		ok, err := cond.Evaluate(ctx, pctx)
		if err != nil {
			return nil, fmt.Errorf("condition %s: %w", cond.String(), err)
		}
		if !ok {
			decision.Reason = fmt.Sprintf("condition %s failed for %s", cond.String(), requested.String())
			if includeTrace {
				decision.Trace = append(decision.Trace, fmt.Sprintf("condition %s: fail", cond.String()))
			}
			e.log.Debug("permission denied", "user_id", pctx.UserID, "requested", requested.String(), "reason", decision.Reason)
			return decision, nil
		}
		if includeTrace {
			decision.Trace = append(decision.Trace, fmt.Sprintf("condition %s: pass", cond.String()))
		}
	}

	decision.Granted = true
	decision.MatchedBy = matched
	decision.ScopeFilters = filters
	return decision, nil
}
