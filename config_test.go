package authgate

import (
	"bytes"
	"context"
	"testing"
	"time"
)

func sampleConfig() *Config {
	return NewConfigBuilder().
		AddPermission(NewPermissionBuilder().Resource("bookings").Action("read").Scope(ScopeProperty).Name("Read bookings").Category("reservations").Build()).
		AddPermission(NewPermissionBuilder().Resource("bookings").Action("create").Scope(ScopeProperty).Build()).
		AddRole(NewRoleBuilder().ID("front-desk").Name("Front Desk").Organization("org-1").
			Grant("bookings", "read", ScopeProperty).
			Withhold("bookings", "delete", ScopeProperty).
			Build()).
		AddAssignment(RoleAssignment{UserID: "u1", RoleID: "front-desk", IsActive: true, ExpiresAt: time.Date(2100, 1, 1, 0, 0, 0, 0, time.UTC)}).
		AddManifest(NewManifestBuilder().ID("spa").DisplayName("Spa Suite").Build()).
		AddManifest(NewManifestBuilder().ID("core").DisplayName("Core").System(true).Build()).
		AddSubscription(ModuleSubscription{OrganizationID: "org-1", ModuleID: "spa", IsEnabled: true}).
		AddSubscription(ModuleSubscription{OrganizationID: "org-1", ModuleID: "spa", PropertyID: "p2", IsEnabled: false}).
		RequireCondition("bookings.read.property", "same_property").
		EngineSettings(func(ec *EngineConfig) { ec.PermissionCacheTTL = 60000 }).
		Build()
}

func configsEquivalent(t *testing.T, a, b *Config) {
	t.Helper()
	if len(a.Catalog) != len(b.Catalog) {
		t.Fatalf("catalog: %d vs %d", len(a.Catalog), len(b.Catalog))
	}
	for i := range a.Catalog {
		if a.Catalog[i] != b.Catalog[i] {
			t.Fatalf("catalog[%d]: %+v vs %+v", i, a.Catalog[i], b.Catalog[i])
		}
	}
	if len(a.Roles) != len(b.Roles) {
		t.Fatalf("roles: %d vs %d", len(a.Roles), len(b.Roles))
	}
	for i := range a.Roles {
		ra, rb := a.Roles[i], b.Roles[i]
		if ra.ID != rb.ID || ra.Name != rb.Name || ra.OrganizationID != rb.OrganizationID || len(ra.Grants) != len(rb.Grants) {
			t.Fatalf("roles[%d]: %+v vs %+v", i, ra, rb)
		}
		for j := range ra.Grants {
			if ra.Grants[j] != rb.Grants[j] {
				t.Fatalf("roles[%d].grants[%d]: %+v vs %+v", i, j, ra.Grants[j], rb.Grants[j])
			}
		}
	}
	if len(a.Assignments) != len(b.Assignments) {
		t.Fatalf("assignments: %d vs %d", len(a.Assignments), len(b.Assignments))
	}
	for i := range a.Assignments {
		aa, ab := a.Assignments[i], b.Assignments[i]
		if aa.UserID != ab.UserID || aa.RoleID != ab.RoleID || aa.IsActive != ab.IsActive || !aa.ExpiresAt.Equal(ab.ExpiresAt) {
			t.Fatalf("assignments[%d]: %+v vs %+v", i, aa, ab)
		}
	}
	if len(a.Manifests) != len(b.Manifests) || len(a.Subscriptions) != len(b.Subscriptions) {
		t.Fatalf("module data count mismatch")
	}
	if len(a.Conditions) != len(b.Conditions) {
		t.Fatalf("conditions: %d vs %d", len(a.Conditions), len(b.Conditions))
	}
	if a.Engine != b.Engine {
		t.Fatalf("engine: %+v vs %+v", a.Engine, b.Engine)
	}
}

func TestConfigYAMLRoundtrip(t *testing.T) {
	cfg := sampleConfig()
	data, err := cfg.ToYAML()
	if err != nil {
		t.Fatalf("to yaml: %v", err)
	}
	got, err := NewConfigLoader().LoadYAML(data)
	if err != nil {
		t.Fatalf("load yaml: %v", err)
	}
	configsEquivalent(t, cfg, got)
}

func TestConfigBinaryRoundtrip(t *testing.T) {
	cfg := sampleConfig()
	data, err := EncodeBinaryConfig(cfg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	got, err := NewConfigLoader().LoadBinary(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	configsEquivalent(t, cfg, got)
}

func TestLoadBinaryRejectsBadMagic(t *testing.T) {
	if _, err := NewConfigLoader().LoadBinary([]byte{0xDE, 0xAD, 0x00, 0x01, 0x00, 0x01}); err == nil {
		t.Fatal("expected invalid magic error")
	}
}

// conditionHeavyConfig returns a config whose conditions map has enough
// entries that map iteration order varies between encodes.
func conditionHeavyConfig() *Config {
	cfg := sampleConfig()
	cfg.Conditions = map[string][]string{
		"bookings.read.property":    {"same_property"},
		"bookings.create.property":  {"same_property"},
		"reports.read.organization": {"same_organization"},
		"staff.update.department":   {"same_department"},
		"notes.delete.own":          {"resource_owner"},
	}
	return cfg
}

func TestEncodeBinaryConfigDeterministic(t *testing.T) {
	cfg := conditionHeavyConfig()
	first, err := EncodeBinaryConfig(cfg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	for i := 0; i < 50; i++ {
		next, err := EncodeBinaryConfig(cfg)
		if err != nil {
			t.Fatalf("encode %d: %v", i, err)
		}
		if !bytes.Equal(first, next) {
			t.Fatalf("encoding %d differs from the first", i)
		}
	}
}

func TestLoadBinaryRejectsTruncatedInput(t *testing.T) {
	data, err := EncodeBinaryConfig(conditionHeavyConfig())
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	// The engine section is last: tag(1) + size(4) + four int64 fields.
	engineSection := 1 + 4 + 32
	cuts := []int{
		7,                             // inside the first section's size prefix
		len(data) - engineSection - 1, // inside the conditions payload
		len(data) - 5,                 // inside the engine payload
		len(data) - 1,
	}
	for _, cut := range cuts {
		if _, err := NewConfigLoader().LoadBinary(data[:cut]); err == nil {
			t.Errorf("truncation at %d of %d decoded without error", cut, len(data))
		}
	}
}

func TestConfigValidate(t *testing.T) {
	if err := sampleConfig().Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	dup := sampleConfig()
	dup.Roles = append(dup.Roles, &Role{ID: "front-desk", Name: "dup"})
	if err := dup.Validate(); err == nil {
		t.Fatal("duplicate role id accepted")
	}

	dangling := sampleConfig()
	dangling.Assignments = append(dangling.Assignments, RoleAssignment{UserID: "u9", RoleID: "ghost"})
	if err := dangling.Validate(); err == nil {
		t.Fatal("dangling assignment accepted")
	}

	badDep := sampleConfig()
	badDep.Manifests[0].DependsOn = []string{"missing"}
	if err := badDep.Validate(); err == nil {
		t.Fatal("undefined module dependency accepted")
	}

	badSub := sampleConfig()
	badSub.Subscriptions[0].ModuleID = "ghost"
	if err := badSub.Validate(); err == nil {
		t.Fatal("subscription to undefined module accepted")
	}

	badCond := sampleConfig()
	badCond.Conditions["bookings.read.property"] = []string{"after_hours"}
	if err := badCond.Validate(); err == nil {
		t.Fatal("unsupported condition accepted")
	}
}

func TestApplyConfig(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	if err := e.ApplyConfig(ctx, sampleConfig()); err != nil {
		t.Fatalf("apply: %v", err)
	}

	pctx := &PermissionContext{UserID: "u1", OrganizationID: "org-1", PropertyID: "p1",
		Extra: map[string]any{ExtraResourcePropertyID: "p1"}}
	d, err := e.EvaluateString(ctx, "bookings.read.property", pctx)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !d.Granted {
		t.Fatalf("configured grant denied: %s", d.Reason)
	}

	// The configured same_property condition must bite when the record
	// belongs to another property.
	other := &PermissionContext{UserID: "u1", OrganizationID: "org-1", PropertyID: "p1",
		Extra: map[string]any{ExtraResourcePropertyID: "p9"}}
	d, err = e.EvaluateString(ctx, "bookings.read.property", other)
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if d.Granted {
		t.Fatal("condition from config not enforced")
	}

	// Subscriptions landed: org on, p2 overridden off.
	enabled, _ := e.IsModuleEnabled(ctx, "org-1", "p1", "spa")
	if !enabled {
		t.Fatal("spa should inherit org-level enable at p1")
	}
	enabled, _ = e.IsModuleEnabled(ctx, "org-1", "p2", "spa")
	if enabled {
		t.Fatal("spa should be overridden off at p2")
	}
}

func TestApplyConfigUpdatesExistingRole(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	if err := e.ApplyConfig(ctx, sampleConfig()); err != nil {
		t.Fatalf("first apply: %v", err)
	}

	updated := sampleConfig()
	updated.Roles[0].Grants = []RoleGrant{grant("bookings.create.property")}
	if err := e.ApplyConfig(ctx, updated); err != nil {
		t.Fatalf("second apply: %v", err)
	}

	pctx := &PermissionContext{UserID: "u1", OrganizationID: "org-1", PropertyID: "p1"}
	d, _ := e.EvaluateString(ctx, "bookings.create.property", pctx)
	if !d.Granted {
		t.Fatalf("updated grant not visible: %s", d.Reason)
	}
}
