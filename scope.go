package authgate

import (
	"fmt"
	"strings"
)

// ScopeLevel is the breadth of a permission grant or request. The ordering
// own < department < property < organization < platform is the single
// invariant the whole engine depends on: a grant at a higher level always
// satisfies a request at an equal-or-lower level for the same resource/action.
type ScopeLevel uint8

const (
	ScopeOwn ScopeLevel = iota
	ScopeDepartment
	ScopeProperty
	ScopeOrganization
	ScopePlatform
)

// scopeNames maps levels to their canonical string form. Platform scope
// serializes as "all" for compatibility with existing permission records.
var scopeNames = map[ScopeLevel]string{
	ScopeOwn:          "own",
	ScopeDepartment:   "department",
	ScopeProperty:     "property",
	ScopeOrganization: "organization",
	ScopePlatform:     "all",
}

func (s ScopeLevel) String() string {
	if name, ok := scopeNames[s]; ok {
		return name
	}
	return fmt.Sprintf("scope(%d)", uint8(s))
}

// MarshalJSON emits the canonical string form.
func (s ScopeLevel) MarshalJSON() ([]byte, error) {
	return []byte(`"` + s.String() + `"`), nil
}

func (s *ScopeLevel) UnmarshalJSON(data []byte) error {
	name := strings.Trim(string(data), `"`)
	parsed, err := ParseScope(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// MarshalYAML emits the canonical string form.
func (s ScopeLevel) MarshalYAML() (any, error) { return s.String(), nil }

func (s *ScopeLevel) UnmarshalYAML(unmarshal func(any) error) error {
	var name string
	if err := unmarshal(&name); err != nil {
		return err
	}
	parsed, err := ParseScope(name)
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// Index returns the position of the scope in the hierarchy ordering.
func (s ScopeLevel) Index() int { return int(s) }

// Covers reports whether a grant at this level satisfies a request at level r.
func (s ScopeLevel) Covers(r ScopeLevel) bool { return s >= r }

// ParseScope parses a scope name. "platform" is accepted as an alias of "all".
func ParseScope(s string) (ScopeLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "own":
		return ScopeOwn, nil
	case "department":
		return ScopeDepartment, nil
	case "property":
		return ScopeProperty, nil
	case "organization":
		return ScopeOrganization, nil
	case "all", "platform":
		return ScopePlatform, nil
	}
	return ScopeOwn, fmt.Errorf("unknown scope level: %q", s)
}

// ScopeLevels lists all levels in ascending order.
func ScopeLevels() []ScopeLevel {
	return []ScopeLevel{ScopeOwn, ScopeDepartment, ScopeProperty, ScopeOrganization, ScopePlatform}
}

// ScopeFilters derives the tenant-key filter map the caller merges into its
// data-access query. Every tenant key at or below the requested scope that is
// present in the context is included; platform scope constrains nothing.
func ScopeFilters(scope ScopeLevel, pctx *PermissionContext) map[string]string {
	filters := make(map[string]string)
	if pctx == nil || scope == ScopePlatform {
		return filters
	}
	if scope <= ScopeOrganization && pctx.OrganizationID != "" {
		filters["organizationId"] = pctx.OrganizationID
	}
	if scope <= ScopeProperty && pctx.PropertyID != "" {
		filters["propertyId"] = pctx.PropertyID
	}
	if scope <= ScopeDepartment && pctx.DepartmentID != "" {
		filters["departmentId"] = pctx.DepartmentID
	}
	if scope == ScopeOwn && pctx.UserID != "" {
		filters["userId"] = pctx.UserID
	}
	return filters
}
