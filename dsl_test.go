package authgate

import (
	"strings"
	"testing"
)

const sampleDSL = `# reference data for the demo org
perm bookings read property name:"Read bookings" category:reservations
perm bookings create property

role front-desk org-1 "Front Desk" bookings.read.property,bookings.create.property,!bookings.delete.property
role auditor - Auditor reports.read.all

assign u1 front-desk
assign u2 front-desk inactive
assign u3 auditor expires:2100-01-01T00:00:00Z

module spa "Spa Suite"
module core Core system
module beta Beta inactive

subscribe org-1 spa on
subscribe org-1 spa off property:p2

condition bookings.read.property same_property

engine cache_ttl=60000 counters=65536 max_cost=16777216 buffer=64
`

func TestDSLParse(t *testing.T) {
	cfg, err := NewDSLParser().Parse([]byte(sampleDSL))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if len(cfg.Catalog) != 2 {
		t.Fatalf("catalog: %d", len(cfg.Catalog))
	}
	if cfg.Catalog[0].Name != "Read bookings" || cfg.Catalog[0].Category != "reservations" {
		t.Fatalf("perm metadata: %+v", cfg.Catalog[0])
	}

	if len(cfg.Roles) != 2 {
		t.Fatalf("roles: %d", len(cfg.Roles))
	}
	fd := cfg.Roles[0]
	if fd.ID != "front-desk" || fd.OrganizationID != "org-1" || fd.Name != "Front Desk" {
		t.Fatalf("role: %+v", fd)
	}
	if len(fd.Grants) != 3 {
		t.Fatalf("grants: %d", len(fd.Grants))
	}
	if fd.Grants[2].Granted {
		t.Fatal("! prefix should withhold the grant")
	}
	if !cfg.Roles[1].IsSystemRole() {
		t.Fatal("dash org marker should produce a system role")
	}

	if len(cfg.Assignments) != 3 {
		t.Fatalf("assignments: %d", len(cfg.Assignments))
	}
	if cfg.Assignments[1].IsActive {
		t.Fatal("inactive flag ignored")
	}
	if cfg.Assignments[2].ExpiresAt.IsZero() {
		t.Fatal("expires option ignored")
	}

	if len(cfg.Manifests) != 3 {
		t.Fatalf("manifests: %d", len(cfg.Manifests))
	}
	if !cfg.Manifests[1].IsSystemModule || cfg.Manifests[2].IsActive {
		t.Fatalf("manifest flags: %+v, %+v", cfg.Manifests[1], cfg.Manifests[2])
	}

	if len(cfg.Subscriptions) != 2 {
		t.Fatalf("subscriptions: %d", len(cfg.Subscriptions))
	}
	if cfg.Subscriptions[1].PropertyID != "p2" || cfg.Subscriptions[1].IsEnabled {
		t.Fatalf("subscription: %+v", cfg.Subscriptions[1])
	}

	if got := cfg.Conditions["bookings.read.property"]; len(got) != 1 || got[0] != "same_property" {
		t.Fatalf("conditions: %v", cfg.Conditions)
	}

	if cfg.Engine.PermissionCacheTTL != 60000 || cfg.Engine.RistrettoNumCounter != 65536 {
		t.Fatalf("engine: %+v", cfg.Engine)
	}
}

func TestDSLRoundtrip(t *testing.T) {
	cfg, err := NewDSLParser().Parse([]byte(sampleDSL))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	encoded, err := NewDSLEncoder().Encode(cfg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	again, err := NewDSLParser().Parse(encoded)
	if err != nil {
		t.Fatalf("reparse: %v\n%s", err, encoded)
	}
	configsEquivalent(t, cfg, again)
}

func TestDSLEncodeDeterministic(t *testing.T) {
	cfg := conditionHeavyConfig()
	first, err := NewDSLEncoder().Encode(cfg)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	for i := 0; i < 20; i++ {
		next, err := NewDSLEncoder().Encode(cfg)
		if err != nil {
			t.Fatalf("encode %d: %v", i, err)
		}
		if string(next) != string(first) {
			t.Fatalf("encoding %d differs from the first:\n%s\nvs\n%s", i, next, first)
		}
	}
}

func TestDSLParseErrors(t *testing.T) {
	cases := []string{
		"teleport x y z",                     // unknown directive
		"perm bookings read",                 // missing scope
		"perm bookings read region",          // bad scope
		"role r1 org-1 Name bad-grant",       // malformed grant
		"subscribe org-1 spa maybe",          // bad state
		"assign u1 r1 expires:not-a-time",    // bad timestamp
		"condition bookings.read.property after_hours", // unknown condition
	}
	for _, src := range cases {
		if _, err := NewDSLParser().Parse([]byte(src)); err == nil {
			t.Errorf("expected error for %q", src)
		} else if !strings.Contains(err.Error(), "line 1") {
			t.Errorf("error for %q should carry the line number: %v", src, err)
		}
	}
}

func TestDSLSkipsCommentsAndBlanks(t *testing.T) {
	cfg, err := NewDSLParser().Parse([]byte("# comment\n\n   \nperm bookings read own\n"))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(cfg.Catalog) != 1 {
		t.Fatalf("catalog: %d", len(cfg.Catalog))
	}
}
