package authgate

import (
	"errors"
	"fmt"
)

// ErrStoreUnavailable marks a backing-store connectivity failure. It must
// propagate to the caller rather than be coerced into a deny; fail-closed
// behavior is the caller's policy choice.
var ErrStoreUnavailable = errors.New("store unavailable")

// UnknownRoleError signals that a referenced role id does not exist.
type UnknownRoleError struct {
	RoleID string
}

func (e *UnknownRoleError) Error() string {
	return fmt.Sprintf("unknown role: %s", e.RoleID)
}

// UnknownModuleError signals that a referenced module id does not exist.
type UnknownModuleError struct {
	ModuleID string
}

func (e *UnknownModuleError) Error() string {
	return fmt.Sprintf("unknown module: %s", e.ModuleID)
}

// DependencyUnmetError rejects a module enable when a declared dependency is
// missing or inactive. No state change happens before the check.
type DependencyUnmetError struct {
	ModuleID   string
	Dependency string
}

func (e *DependencyUnmetError) Error() string {
	return fmt.Sprintf("module %s requires %s which is missing or inactive", e.ModuleID, e.Dependency)
}

// SystemModuleProtectedError rejects any disable attempt on a system module,
// regardless of caller privilege level.
type SystemModuleProtectedError struct {
	ModuleID string
}

func (e *SystemModuleProtectedError) Error() string {
	return fmt.Sprintf("module %s is a system module and cannot be disabled", e.ModuleID)
}
