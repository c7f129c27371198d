package authgate

// Two-level tenant-scoped override resolution, shared by the module gate and
// any permission-adjacent feature with an organization default plus optional
// per-property override.

// Precedence sources reported by override resolution.
const (
	SourcePropertyOverride    = "property_override"
	SourceOrganizationDefault = "organization_default"
	SourceDefault             = "default"
)

// ResolveOverride applies the strict two-level precedence: a property-level
// value is authoritative when present, else the organization-level value,
// else the fallback. The returned source names which level decided.
func ResolveOverride[T any](property, organization *T, fallback T) (T, string) {
	if property != nil {
		return *property, SourcePropertyOverride
	}
	if organization != nil {
		return *organization, SourceOrganizationDefault
	}
	return fallback, SourceDefault
}

// MergeOverrides merges keyed organization-level and property-level row sets,
// applying the same per-key precedence as ResolveOverride. Keys present only
// at one level pass through.
func MergeOverrides[K comparable, T any](organization, property map[K]T) map[K]T {
	out := make(map[K]T, len(organization)+len(property))
	for k, v := range organization {
		out[k] = v
	}
	for k, v := range property {
		out[k] = v
	}
	return out
}
