package authgate

import (
	"context"
	"testing"
	"time"
)

func newTestEngine(t *testing.T, opts ...EngineOption) *Engine {
	t.Helper()
	e, err := NewEngine(
		NewMemoryCatalogStore(),
		NewMemoryRoleStore(),
		NewMemoryAssignmentStore(),
		NewMemoryModuleStore(),
		opts...,
	)
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	return e
}

func TestNewEngineRequiresStores(t *testing.T) {
	_, err := NewEngine(nil, NewMemoryRoleStore(), NewMemoryAssignmentStore(), NewMemoryModuleStore())
	if err == nil {
		t.Fatal("expected error for nil store")
	}
}

func TestEngineEndToEnd(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	role := NewRoleBuilder().ID("front-desk").Name("Front Desk").
		Organization("org-1").
		Grant("bookings", "read", ScopeProperty).
		Grant("bookings", "create", ScopeProperty).
		Build()
	if err := e.CreateRole(ctx, role); err != nil {
		t.Fatalf("create role: %v", err)
	}
	if err := e.AssignRole(ctx, &RoleAssignment{UserID: "u1", RoleID: "front-desk", IsActive: true}); err != nil {
		t.Fatalf("assign: %v", err)
	}

	pctx := &PermissionContext{UserID: "u1", LegacyRole: LegacyViewer, OrganizationID: "org-1", PropertyID: "p1"}
	d, err := e.EvaluateString(ctx, "bookings.create.property", pctx)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !d.Granted {
		t.Fatalf("denied: %s", d.Reason)
	}

	// A custom role suppresses the legacy fallback even for unmatched requests.
	d, err = e.EvaluateString(ctx, "bookings.read.own", pctx)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !d.Granted {
		t.Fatalf("property grant should cover own scope: %s", d.Reason)
	}
}

func TestRevocationVisibleImmediately(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	e.CreateRole(ctx, NewRoleBuilder().ID("mgr").Name("mgr").Grant("reports", "read", ScopeOrganization).Build())
	e.AssignRole(ctx, &RoleAssignment{UserID: "u1", RoleID: "mgr", IsActive: true})

	pctx := &PermissionContext{UserID: "u1", OrganizationID: "org-1"}
	d, _ := e.EvaluateString(ctx, "reports.read.organization", pctx)
	if !d.Granted {
		t.Fatalf("precondition failed: %s", d.Reason)
	}

	if err := e.RevokeRole(ctx, "u1", "mgr"); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	d, _ = e.EvaluateString(ctx, "reports.read.organization", pctx)
	if d.Granted {
		t.Fatal("revocation must be visible on the next evaluation")
	}
}

func TestUpdateRoleInvalidatesHolders(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	e.CreateRole(ctx, NewRoleBuilder().ID("mgr").Name("mgr").Grant("reports", "read", ScopeOrganization).Build())
	e.AssignRole(ctx, &RoleAssignment{UserID: "u1", RoleID: "mgr", IsActive: true})

	pctx := &PermissionContext{UserID: "u1", OrganizationID: "org-1"}
	e.EvaluateString(ctx, "reports.read.organization", pctx) // warm the cache

	updated := NewRoleBuilder().ID("mgr").Name("mgr").Grant("reports", "export", ScopeOrganization).Build()
	if err := e.UpdateRole(ctx, updated); err != nil {
		t.Fatalf("update: %v", err)
	}

	d, _ := e.EvaluateString(ctx, "reports.read.organization", pctx)
	if d.Granted {
		t.Fatal("stale cached grant survived role update")
	}
	d, _ = e.EvaluateString(ctx, "reports.export.organization", pctx)
	if !d.Granted {
		t.Fatalf("new grant not visible: %s", d.Reason)
	}
}

func TestDeleteRoleInvalidatesHolders(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	e.CreateRole(ctx, NewRoleBuilder().ID("mgr").Name("mgr").Grant("reports", "read", ScopeOrganization).Build())
	e.AssignRole(ctx, &RoleAssignment{UserID: "u1", RoleID: "mgr", IsActive: true})

	pctx := &PermissionContext{UserID: "u1", OrganizationID: "org-1"}
	e.EvaluateString(ctx, "reports.read.organization", pctx)

	if err := e.DeleteRole(ctx, "mgr"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	d, _ := e.EvaluateString(ctx, "reports.read.organization", pctx)
	if d.Granted {
		t.Fatal("deleted role still grants through the cache")
	}
}

func TestAssignRoleRejectsUnknownRole(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	err := e.AssignRole(ctx, &RoleAssignment{UserID: "u1", RoleID: "ghost", IsActive: true})
	if err == nil {
		t.Fatal("expected error for unknown role")
	}
}

func TestBatchEvaluate(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	pctx := &PermissionContext{UserID: "u1", LegacyRole: LegacyStaff, DepartmentID: "d1"}
	decisions, err := e.BatchEvaluate(ctx, []EvalRequest{
		{Requested: Permission{Resource: "bookings", Action: "read", Scope: ScopeDepartment}, Context: pctx},
		{Requested: Permission{Resource: "bookings", Action: "delete", Scope: ScopeDepartment}, Context: pctx},
	})
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if len(decisions) != 2 {
		t.Fatalf("expected 2 decisions, got %d", len(decisions))
	}
	if !decisions[0].Granted || decisions[1].Granted {
		t.Fatalf("unexpected outcomes: %v, %v", decisions[0].Granted, decisions[1].Granted)
	}
}

func TestWithClockExpiresAssignment(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2026, 6, 1, 9, 0, 0, 0, time.UTC)
	current := now
	e := newTestEngine(t, WithClock(func() time.Time { return current }))

	e.CreateRole(ctx, NewRoleBuilder().ID("temp").Name("temp").Grant("reports", "read", ScopeOrganization).Build())
	e.AssignRole(ctx, &RoleAssignment{UserID: "u1", RoleID: "temp", IsActive: true, ExpiresAt: now.Add(time.Hour)})

	pctx := &PermissionContext{UserID: "u1", OrganizationID: "org-1"}
	d, _ := e.EvaluateString(ctx, "reports.read.organization", pctx)
	if !d.Granted {
		t.Fatalf("assignment should be valid before expiry: %s", d.Reason)
	}

	// Advance past expiry; the cached set must not outlive its TTL forever,
	// so invalidate as an out-of-band admin would.
	current = now.Add(2 * time.Hour)
	e.resolver.Invalidate("u1")
	d, _ = e.EvaluateString(ctx, "reports.read.organization", pctx)
	if d.Granted {
		t.Fatal("expired assignment still grants")
	}
}

func TestEngineModuleGateDelegation(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	if err := e.RegisterModule(ctx, NewManifestBuilder().ID("spa").DisplayName("Spa").Build()); err != nil {
		t.Fatalf("register module: %v", err)
	}
	if err := e.EnableModule(ctx, "org-1", "", "spa"); err != nil {
		t.Fatalf("enable: %v", err)
	}
	enabled, err := e.IsModuleEnabled(ctx, "org-1", "p1", "spa")
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	if !enabled {
		t.Fatal("module should inherit org-level enable")
	}
	status, err := e.ModuleStatus(ctx, "org-1", "p1", "spa")
	if err != nil {
		t.Fatalf("details: %v", err)
	}
	if status.PrecedenceSource != SourceOrganizationDefault {
		t.Fatalf("source = %q", status.PrecedenceSource)
	}
}
