package authgate

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"sync"
	"time"
)

// Signed config bundles let a control plane push role and module reference
// data to engine nodes that cannot reach the primary store directly. A node
// verifies the signature before applying anything.

// SignedConfigBundle carries a config snapshot and its signature.
type SignedConfigBundle struct {
	Config    *Config        `json:"config"`
	Signature string         `json:"signature"` // base64 ed25519 over the checksum
	Meta      map[string]any `json:"meta,omitempty"`
}

// Checksum returns a deterministic hash of the bundle's config payload.
func (b *SignedConfigBundle) Checksum() (string, error) {
	data, err := EncodeBinaryConfig(b.Config)
	if err != nil {
		return "", err
	}
	hash := sha256.Sum256(data)
	return hex.EncodeToString(hash[:]), nil
}

// SignConfigBundle signs the config's checksum with the private key.
func SignConfigBundle(priv ed25519.PrivateKey, cfg *Config) (*SignedConfigBundle, error) {
	bundle := &SignedConfigBundle{Config: cfg}
	sum, err := bundle.Checksum()
	if err != nil {
		return nil, err
	}
	sig := ed25519.Sign(priv, []byte(sum))
	bundle.Signature = base64.StdEncoding.EncodeToString(sig)
	return bundle, nil
}

// VerifyConfigBundle verifies the bundle signature with the public key.
func VerifyConfigBundle(pub ed25519.PublicKey, bundle *SignedConfigBundle) (bool, error) {
	sig, err := base64.StdEncoding.DecodeString(bundle.Signature)
	if err != nil {
		return false, err
	}
	sum, err := bundle.Checksum()
	if err != nil {
		return false, err
	}
	return ed25519.Verify(pub, []byte(sum), sig), nil
}

// ApplySignedBundle verifies and applies a bundle in one step.
func (e *Engine) ApplySignedBundle(ctx context.Context, pub ed25519.PublicKey, bundle *SignedConfigBundle) error {
	ok, err := VerifyConfigBundle(pub, bundle)
	if err != nil {
		return fmt.Errorf("verify bundle: %w", err)
	}
	if !ok {
		return fmt.Errorf("bundle signature mismatch")
	}
	return e.ApplyConfig(ctx, bundle.Config)
}

// ExportConfig snapshots the engine's reference data for one organization:
// the catalog, the organization's roles (system roles included), module
// manifests and the organization-level subscription rows. Assignments are
// per-user operational data and are not part of the snapshot.
func (e *Engine) ExportConfig(ctx context.Context, organizationID string) (*Config, error) {
	catalog, err := e.catalog.ListPermissions(ctx)
	if err != nil {
		return nil, err
	}
	roles, err := e.roleStore.ListRoles(ctx, organizationID)
	if err != nil {
		return nil, err
	}
	manifests, err := e.modules.ListManifests(ctx)
	if err != nil {
		return nil, err
	}
	subs, err := e.modules.ListSubscriptions(ctx, organizationID, "")
	if err != nil {
		return nil, err
	}
	cfg := &Config{Version: 1, Catalog: catalog, Roles: roles, Manifests: manifests}
	for _, s := range subs {
		cfg.Subscriptions = append(cfg.Subscriptions, *s)
	}
	return cfg, nil
}

// BundleSubscriber receives freshly signed bundles for an organization.
type BundleSubscriber interface {
	OnBundle(ctx context.Context, organizationID string, pub ed25519.PublicKey, bundle *SignedConfigBundle) error
}

type BundleSubscriberFunc func(ctx context.Context, organizationID string, pub ed25519.PublicKey, bundle *SignedConfigBundle) error

func (f BundleSubscriberFunc) OnBundle(ctx context.Context, organizationID string, pub ed25519.PublicKey, bundle *SignedConfigBundle) error {
	return f(ctx, organizationID, pub, bundle)
}

// BundleDistributor signs and fans out config snapshots to subscribers when
// notified of a change, and rotates its signing key periodically.
type BundleDistributor struct {
	engine           *Engine
	pub              ed25519.PublicKey
	priv             ed25519.PrivateKey
	rotationInterval time.Duration
	notifyCh         chan string
	stopCh           chan struct{}
	subscribers      map[string][]BundleSubscriber
	mu               sync.RWMutex
	started          bool
	wg               sync.WaitGroup
}

type BundleDistributorOption func(*BundleDistributor)

func WithBundleSigningKey(priv ed25519.PrivateKey) BundleDistributorOption {
	return func(d *BundleDistributor) {
		if priv != nil && len(priv) == ed25519.PrivateKeySize {
			d.priv = append(ed25519.PrivateKey{}, priv...)
			d.pub = priv.Public().(ed25519.PublicKey)
		}
	}
}

func WithBundleRotationInterval(interval time.Duration) BundleDistributorOption {
	return func(d *BundleDistributor) {
		if interval > 0 {
			d.rotationInterval = interval
		}
	}
}

func NewBundleDistributor(engine *Engine, opts ...BundleDistributorOption) (*BundleDistributor, error) {
	if engine == nil {
		return nil, fmt.Errorf("engine is required")
	}
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate signing key: %w", err)
	}
	dist := &BundleDistributor{
		engine:           engine,
		priv:             priv,
		pub:              pub,
		rotationInterval: 24 * time.Hour,
		notifyCh:         make(chan string, 1024),
		stopCh:           make(chan struct{}),
		subscribers:      make(map[string][]BundleSubscriber),
	}
	for _, opt := range opts {
		opt(dist)
	}
	return dist, nil
}

func (d *BundleDistributor) Start(ctx context.Context) {
	d.mu.Lock()
	if d.started {
		d.mu.Unlock()
		return
	}
	d.started = true
	d.mu.Unlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ticker := time.NewTicker(d.rotationInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-d.stopCh:
				return
			case organizationID := <-d.notifyCh:
				if organizationID == "" {
					continue
				}
				if err := d.distribute(ctx, organizationID); err != nil {
					d.engine.logger.Error("bundle distribution failed", "organization_id", organizationID, "error", err.Error())
				}
			case <-ticker.C:
				if err := d.RotateSigningKey(); err != nil {
					d.engine.logger.Error("bundle key rotation failed", "error", err.Error())
				}
			}
		}
	}()
}

func (d *BundleDistributor) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.started {
		d.mu.Unlock()
		return nil
	}
	d.started = false
	d.mu.Unlock()

	close(d.stopCh)
	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// NotifyChange queues a re-distribution for the organization. Drops the
// notification when the queue is full; a later change will catch up.
func (d *BundleDistributor) NotifyChange(organizationID string) {
	if organizationID == "" {
		return
	}
	select {
	case d.notifyCh <- organizationID:
	default:
	}
}

// RegisterSubscriber adds a subscriber; empty organizationID subscribes to
// every organization.
func (d *BundleDistributor) RegisterSubscriber(organizationID string, sub BundleSubscriber) {
	if sub == nil {
		return
	}
	if organizationID == "" {
		organizationID = "*"
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.subscribers[organizationID] = append(d.subscribers[organizationID], sub)
}

func (d *BundleDistributor) RotateSigningKey() error {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.priv = priv
	d.pub = pub
	d.mu.Unlock()
	return nil
}

func (d *BundleDistributor) CurrentPublicKey() ed25519.PublicKey {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append(ed25519.PublicKey(nil), d.pub...)
}

func (d *BundleDistributor) distribute(ctx context.Context, organizationID string) error {
	cfg, err := d.engine.ExportConfig(ctx, organizationID)
	if err != nil {
		return err
	}
	d.mu.RLock()
	priv := d.priv
	d.mu.RUnlock()
	bundle, err := SignConfigBundle(priv, cfg)
	if err != nil {
		return err
	}
	if bundle.Meta == nil {
		bundle.Meta = map[string]any{}
	}
	bundle.Meta["organization_id"] = organizationID
	bundle.Meta["generated_at"] = time.Now().UTC().Format(time.RFC3339Nano)
	bundle.Meta["signing_key"] = base64.StdEncoding.EncodeToString(d.CurrentPublicKey())

	for _, sub := range d.collectSubscribers(organizationID) {
		if err := sub.OnBundle(ctx, organizationID, d.CurrentPublicKey(), bundle); err != nil {
			d.engine.logger.Error("bundle subscriber error", "organization_id", organizationID, "error", err.Error())
		}
	}
	return nil
}

func (d *BundleDistributor) collectSubscribers(organizationID string) []BundleSubscriber {
	d.mu.RLock()
	defer d.mu.RUnlock()
	subs := make([]BundleSubscriber, 0, len(d.subscribers[organizationID])+len(d.subscribers["*"]))
	subs = append(subs, d.subscribers[organizationID]...)
	subs = append(subs, d.subscribers["*"]...)
	return subs
}
