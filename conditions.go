package authgate

import (
	"context"
	"fmt"
	"strings"
)

// Extra keys the built-in conditions read from PermissionContext.Extra. The
// caller resolves them from the record being accessed before evaluating.
const (
	ExtraResourceDepartmentID   = "resource_department_id"
	ExtraResourcePropertyID     = "resource_property_id"
	ExtraResourceOrganizationID = "resource_organization_id"
)

// Condition is a supplemental check attached to a requested permission.
// Conditions are ANDed in registration order; the first failure aborts the
// evaluation with a deny naming the condition.
type Condition interface {
	Evaluate(ctx context.Context, pctx *PermissionContext) (bool, error)
	String() string
}

// SameDepartmentCondition requires the target record to live in the
// requester's department.
type SameDepartmentCondition struct{}

func (SameDepartmentCondition) String() string { return "same_department" }

func (SameDepartmentCondition) Evaluate(_ context.Context, pctx *PermissionContext) (bool, error) {
	want := pctx.DepartmentID
	got := extraString(pctx, ExtraResourceDepartmentID)
	return want != "" && got == want, nil
}

// SamePropertyCondition requires the target record to belong to the
// requester's property.
type SamePropertyCondition struct{}

func (SamePropertyCondition) String() string { return "same_property" }

func (SamePropertyCondition) Evaluate(_ context.Context, pctx *PermissionContext) (bool, error) {
	want := pctx.PropertyID
	got := extraString(pctx, ExtraResourcePropertyID)
	return want != "" && got == want, nil
}

// SameOrganizationCondition requires the target record to belong to the
// requester's organization.
type SameOrganizationCondition struct{}

func (SameOrganizationCondition) String() string { return "same_organization" }

func (SameOrganizationCondition) Evaluate(_ context.Context, pctx *PermissionContext) (bool, error) {
	want := pctx.OrganizationID
	got := extraString(pctx, ExtraResourceOrganizationID)
	return want != "" && got == want, nil
}

// ResourceOwnerCondition requires the requester to own the target record.
type ResourceOwnerCondition struct{}

func (ResourceOwnerCondition) String() string { return "is_resource_owner" }

func (ResourceOwnerCondition) Evaluate(_ context.Context, pctx *PermissionContext) (bool, error) {
	return pctx.ResourceOwnerID != "" && pctx.ResourceOwnerID == pctx.UserID, nil
}

// PredicateCondition wraps an arbitrary caller-supplied check. The name is
// used in deny reasons and traces.
type PredicateCondition struct {
	Name string
	Fn   func(ctx context.Context, pctx *PermissionContext) (bool, error)
}

func (c PredicateCondition) String() string { return c.Name }

func (c PredicateCondition) Evaluate(ctx context.Context, pctx *PermissionContext) (bool, error) {
	if c.Fn == nil {
		return false, fmt.Errorf("predicate condition %s has no function", c.Name)
	}
	return c.Fn(ctx, pctx)
}

// ParseCondition maps a condition name from config or DSL input onto one of
// the built-in condition kinds. Custom predicates cannot be expressed in
// declarative input and must be registered programmatically.
func ParseCondition(s string) (Condition, error) {
	switch strings.TrimSpace(strings.ToLower(s)) {
	case "same_department":
		return SameDepartmentCondition{}, nil
	case "same_property":
		return SamePropertyCondition{}, nil
	case "same_organization":
		return SameOrganizationCondition{}, nil
	case "is_resource_owner", "resource_owner":
		return ResourceOwnerCondition{}, nil
	}
	return nil, fmt.Errorf("unsupported condition: %q", s)
}

func extraString(pctx *PermissionContext, key string) string {
	if pctx.Extra == nil {
		return ""
	}
	if v, ok := pctx.Extra[key].(string); ok {
		return v
	}
	return ""
}
