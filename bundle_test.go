package authgate

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"testing"
	"time"
)

func TestSignAndVerifyConfigBundle(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	bundle, err := SignConfigBundle(priv, sampleConfig())
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	ok, err := VerifyConfigBundle(pub, bundle)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !ok {
		t.Fatal("valid bundle rejected")
	}

	// A different key must reject it.
	otherPub, _, _ := ed25519.GenerateKey(rand.Reader)
	ok, err = VerifyConfigBundle(otherPub, bundle)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ok {
		t.Fatal("bundle verified under the wrong key")
	}

	// Tampering with the payload must invalidate the signature.
	bundle.Config.Roles[0].Grants = append(bundle.Config.Roles[0].Grants, grant("bookings.delete.all"))
	ok, err = VerifyConfigBundle(pub, bundle)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if ok {
		t.Fatal("tampered bundle verified")
	}
}

func TestVerifyConfigBundleStableAcrossEncodes(t *testing.T) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}

	// Several condition entries so the checksum covers a multi-key map;
	// verification re-encodes, and the bytes must come out identical.
	bundle, err := SignConfigBundle(priv, conditionHeavyConfig())
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	for i := 0; i < 50; i++ {
		ok, err := VerifyConfigBundle(pub, bundle)
		if err != nil {
			t.Fatalf("verify %d: %v", i, err)
		}
		if !ok {
			t.Fatalf("unmodified bundle failed verification on iteration %d", i)
		}
	}
}

func TestApplySignedBundle(t *testing.T) {
	ctx := context.Background()
	pub, priv, _ := ed25519.GenerateKey(rand.Reader)

	bundle, err := SignConfigBundle(priv, sampleConfig())
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	e := newTestEngine(t)
	if err := e.ApplySignedBundle(ctx, pub, bundle); err != nil {
		t.Fatalf("apply: %v", err)
	}

	pctx := &PermissionContext{UserID: "u1", OrganizationID: "org-1", PropertyID: "p1",
		Extra: map[string]any{ExtraResourcePropertyID: "p1"}}
	d, _ := e.EvaluateString(ctx, "bookings.read.property", pctx)
	if !d.Granted {
		t.Fatalf("bundle data not applied: %s", d.Reason)
	}

	// Wrong key: nothing is applied.
	otherPub, _, _ := ed25519.GenerateKey(rand.Reader)
	fresh := newTestEngine(t)
	if err := fresh.ApplySignedBundle(ctx, otherPub, bundle); err == nil {
		t.Fatal("bundle accepted under the wrong key")
	}
}

func TestExportConfig(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	if err := e.ApplyConfig(ctx, sampleConfig()); err != nil {
		t.Fatalf("apply: %v", err)
	}

	cfg, err := e.ExportConfig(ctx, "org-1")
	if err != nil {
		t.Fatalf("export: %v", err)
	}
	if len(cfg.Catalog) != 2 {
		t.Fatalf("catalog: %d", len(cfg.Catalog))
	}
	if len(cfg.Roles) != 1 || cfg.Roles[0].ID != "front-desk" {
		t.Fatalf("roles: %+v", cfg.Roles)
	}
	if len(cfg.Manifests) != 2 {
		t.Fatalf("manifests: %d", len(cfg.Manifests))
	}
	// Only the org-level subscription row; the property override stays local.
	if len(cfg.Subscriptions) != 1 || cfg.Subscriptions[0].PropertyID != "" {
		t.Fatalf("subscriptions: %+v", cfg.Subscriptions)
	}
	if len(cfg.Assignments) != 0 {
		t.Fatal("assignments are operational data and must not be exported")
	}
}

func TestBundleDistributor(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	e := newTestEngine(t)
	if err := e.ApplyConfig(ctx, sampleConfig()); err != nil {
		t.Fatalf("apply: %v", err)
	}

	dist, err := NewBundleDistributor(e)
	if err != nil {
		t.Fatalf("new distributor: %v", err)
	}

	received := make(chan *SignedConfigBundle, 1)
	dist.RegisterSubscriber("org-1", BundleSubscriberFunc(func(ctx context.Context, organizationID string, pub ed25519.PublicKey, bundle *SignedConfigBundle) error {
		ok, err := VerifyConfigBundle(pub, bundle)
		if err != nil || !ok {
			t.Errorf("delivered bundle failed verification: ok=%v err=%v", ok, err)
		}
		received <- bundle
		return nil
	}))

	dist.Start(ctx)
	defer dist.Stop(context.Background())

	dist.NotifyChange("org-1")

	select {
	case bundle := <-received:
		if bundle.Meta["organization_id"] != "org-1" {
			t.Fatalf("meta: %v", bundle.Meta)
		}
		if len(bundle.Config.Roles) != 1 {
			t.Fatalf("bundle roles: %d", len(bundle.Config.Roles))
		}
	case <-time.After(5 * time.Second):
		t.Fatal("no bundle delivered")
	}
}

func TestBundleDistributorKeyRotation(t *testing.T) {
	e := newTestEngine(t)
	dist, err := NewBundleDistributor(e)
	if err != nil {
		t.Fatalf("new distributor: %v", err)
	}
	before := dist.CurrentPublicKey()
	if err := dist.RotateSigningKey(); err != nil {
		t.Fatalf("rotate: %v", err)
	}
	after := dist.CurrentPublicKey()
	if string(before) == string(after) {
		t.Fatal("rotation did not change the key")
	}
}
