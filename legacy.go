package authgate

// Legacy role tags carried on user records from before custom roles existed.
// The tag is always present on the identity and is used only as a fallback key
// when the user holds no active custom-role assignment at all.
const (
	LegacySuperAdmin      = "super_admin"
	LegacyOrgAdmin        = "org_admin"
	LegacyPropertyManager = "property_manager"
	LegacyDepartmentAdmin = "department_admin"
	LegacyStaff           = "staff"
	LegacyViewer          = "viewer"
)

// legacyRolePatterns is the static fallback table mapping legacy role tags to
// wildcard permission patterns. It is data, not code: resolution consults it
// verbatim, and the department_admin property-scope carve-out lives in the
// evaluator, not here.
var legacyRolePatterns = map[string][]string{
	LegacySuperAdmin: {
		"*.*.all",
	},
	LegacyOrgAdmin: {
		"*.*.organization",
	},
	LegacyPropertyManager: {
		"*.*.property",
	},
	LegacyDepartmentAdmin: {
		"*.*.property",
		"*.*.department",
	},
	LegacyStaff: {
		"*.read.department",
		"*.create.own",
		"*.update.own",
		"*.read.own",
	},
	LegacyViewer: {
		"*.read.own",
	},
}

// LegacyPatterns returns the wildcard patterns for a legacy role tag, or nil
// for an unknown tag. The returned slice is a copy.
func LegacyPatterns(tag string) []string {
	patterns, ok := legacyRolePatterns[tag]
	if !ok {
		return nil
	}
	out := make([]string, len(patterns))
	copy(out, patterns)
	return out
}

// LegacyRoleTags lists the known legacy role tags.
func LegacyRoleTags() []string {
	return []string{
		LegacySuperAdmin,
		LegacyOrgAdmin,
		LegacyPropertyManager,
		LegacyDepartmentAdmin,
		LegacyStaff,
		LegacyViewer,
	}
}
