package authgate

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the declarative form of the engine's reference data: the
// permission catalog, roles, assignments, module manifests and subscription
// rows, plus engine tuning. It seeds the stores through ApplyConfig.
type Config struct {
	Version       uint16               `json:"version" yaml:"version"`
	Catalog       []Permission         `json:"catalog" yaml:"catalog"`
	Roles         []*Role              `json:"roles" yaml:"roles"`
	Assignments   []RoleAssignment     `json:"assignments" yaml:"assignments"`
	Manifests     []*ModuleManifest    `json:"manifests" yaml:"manifests"`
	Subscriptions []ModuleSubscription `json:"subscriptions" yaml:"subscriptions"`
	// Conditions maps a permission string to built-in condition names
	// evaluated after a successful match.
	Conditions map[string][]string `json:"conditions,omitempty" yaml:"conditions,omitempty"`
	Engine     EngineConfig        `json:"engine" yaml:"engine"`
}

type EngineConfig struct {
	PermissionCacheTTL  int64 `json:"permission_cache_ttl_ms" yaml:"permission_cache_ttl_ms"`
	RistrettoNumCounter int64 `json:"ristretto_num_counter" yaml:"ristretto_num_counter"`
	RistrettoMaxCost    int64 `json:"ristretto_max_cost" yaml:"ristretto_max_cost"`
	RistrettoBuffer     int64 `json:"ristretto_buffer" yaml:"ristretto_buffer"`
}

// ConfigLoader loads configuration from various formats
type ConfigLoader struct{}

func NewConfigLoader() *ConfigLoader {
	return &ConfigLoader{}
}

func (l *ConfigLoader) LoadYAML(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (l *ConfigLoader) LoadJSON(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadBinary loads from the compact binary protocol used for distribution.
func (l *ConfigLoader) LoadBinary(data []byte) (*Config, error) {
	return decodeBinaryConfig(bytes.NewReader(data))
}

// EncodeBinaryConfig encodes config to binary format
func EncodeBinaryConfig(cfg *Config) ([]byte, error) {
	buf := &bytes.Buffer{}
	if err := encodeBinaryConfig(cfg, buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// ToYAML exports config to YAML
func (c *Config) ToYAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// ToJSON exports config to JSON
func (c *Config) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// Validate performs structural checks before the config touches any store.
func (c *Config) Validate() error {
	roleIDs := make(map[string]struct{}, len(c.Roles))
	for _, r := range c.Roles {
		if r.ID == "" {
			return fmt.Errorf("role with empty id")
		}
		if _, dup := roleIDs[r.ID]; dup {
			return fmt.Errorf("duplicate role id: %s", r.ID)
		}
		roleIDs[r.ID] = struct{}{}
	}
	for _, a := range c.Assignments {
		if a.UserID == "" || a.RoleID == "" {
			return fmt.Errorf("assignment with empty user or role id")
		}
		if _, ok := roleIDs[a.RoleID]; !ok {
			return fmt.Errorf("assignment references undefined role: %s", a.RoleID)
		}
	}
	manifestIDs := make(map[string]struct{}, len(c.Manifests))
	for _, m := range c.Manifests {
		if m.ID == "" {
			return fmt.Errorf("manifest with empty id")
		}
		manifestIDs[m.ID] = struct{}{}
	}
	for _, m := range c.Manifests {
		for _, dep := range m.DependsOn {
			if _, ok := manifestIDs[dep]; !ok {
				return fmt.Errorf("manifest %s depends on undefined module: %s", m.ID, dep)
			}
		}
	}
	for _, s := range c.Subscriptions {
		if _, ok := manifestIDs[s.ModuleID]; !ok {
			return fmt.Errorf("subscription references undefined module: %s", s.ModuleID)
		}
	}
	for perm, conds := range c.Conditions {
		if _, err := ParsePermission(perm); err != nil {
			return fmt.Errorf("conditions key: %w", err)
		}
		for _, name := range conds {
			if _, err := ParseCondition(name); err != nil {
				return fmt.Errorf("conditions for %s: %w", perm, err)
			}
		}
	}
	return nil
}

// ApplyConfig applies configuration to the engine and its stores. Roles that
// already exist are updated (which invalidates their holders' cache entries);
// everything else is registered or upserted.
func (e *Engine) ApplyConfig(ctx context.Context, cfg *Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	if cfg.Engine.PermissionCacheTTL > 0 {
		e.resolver.SetCacheTTL(time.Duration(cfg.Engine.PermissionCacheTTL) * time.Millisecond)
	}
	if cfg.Engine.RistrettoNumCounter > 0 {
		cache, err := NewRistrettoPermissionCache(cfg.Engine.RistrettoNumCounter, cfg.Engine.RistrettoMaxCost, cfg.Engine.RistrettoBuffer)
		if err != nil {
			return fmt.Errorf("configure ristretto cache: %w", err)
		}
		e.resolver.cache = cache
	}

	for _, p := range cfg.Catalog {
		if err := e.catalog.RegisterPermission(ctx, p); err != nil {
			return fmt.Errorf("register permission %s: %w", p.Key(), err)
		}
	}

	for _, r := range cfg.Roles {
		if _, err := e.roleStore.GetRole(ctx, r.ID); err != nil {
			if err := e.CreateRole(ctx, r); err != nil {
				return fmt.Errorf("create role %s: %w", r.ID, err)
			}
		} else {
			if err := e.UpdateRole(ctx, r); err != nil {
				return fmt.Errorf("update role %s: %w", r.ID, err)
			}
		}
	}

	for i := range cfg.Assignments {
		a := cfg.Assignments[i]
		if err := e.AssignRole(ctx, &a); err != nil {
			return fmt.Errorf("assign role %s to %s: %w", a.RoleID, a.UserID, err)
		}
	}

	for _, m := range cfg.Manifests {
		if err := e.RegisterModule(ctx, m); err != nil {
			return fmt.Errorf("register module %s: %w", m.ID, err)
		}
	}

	for i := range cfg.Subscriptions {
		s := cfg.Subscriptions[i]
		if err := e.modules.UpsertSubscription(ctx, &s); err != nil {
			return fmt.Errorf("upsert subscription %s/%s: %w", s.OrganizationID, s.ModuleID, err)
		}
	}

	for perm, conds := range cfg.Conditions {
		for _, name := range conds {
			cond, err := ParseCondition(name)
			if err != nil {
				return err
			}
			e.RequireCondition(perm, cond)
		}
	}

	return nil
}

// Binary protocol encoding/decoding
const (
	binaryMagic   = 0x4147 // "AG"
	binaryVersion = 1
)

const (
	sectionCatalog       = 0x01
	sectionRoles         = 0x02
	sectionAssignments   = 0x03
	sectionManifests     = 0x04
	sectionSubscriptions = 0x05
	sectionConditions    = 0x06
	sectionEngine        = 0x07
)

func encodeBinaryConfig(cfg *Config, w io.Writer) error {
	buf := &bytes.Buffer{}

	// Header: magic(2) + version(2) + config_version(2)
	binary.Write(buf, binary.LittleEndian, uint16(binaryMagic))
	binary.Write(buf, binary.LittleEndian, uint16(binaryVersion))
	binary.Write(buf, binary.LittleEndian, cfg.Version)

	writeSection(buf, sectionCatalog, func(b *bytes.Buffer) { encodeCatalog(b, cfg.Catalog) })
	writeSection(buf, sectionRoles, func(b *bytes.Buffer) { encodeRoles(b, cfg.Roles) })
	writeSection(buf, sectionAssignments, func(b *bytes.Buffer) { encodeAssignments(b, cfg.Assignments) })
	writeSection(buf, sectionManifests, func(b *bytes.Buffer) { encodeManifests(b, cfg.Manifests) })
	writeSection(buf, sectionSubscriptions, func(b *bytes.Buffer) { encodeSubscriptions(b, cfg.Subscriptions) })
	writeSection(buf, sectionConditions, func(b *bytes.Buffer) { encodeConditions(b, cfg.Conditions) })
	writeSection(buf, sectionEngine, func(b *bytes.Buffer) { encodeEngineConfig(b, &cfg.Engine) })

	_, err := w.Write(buf.Bytes())
	return err
}

func decodeBinaryConfig(r io.Reader) (*Config, error) {
	cfg := &Config{}

	var magic, ver, cfgVer uint16
	if err := binary.Read(r, binary.LittleEndian, &magic); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if magic != binaryMagic {
		return nil, fmt.Errorf("invalid magic: %x", magic)
	}
	if err := binary.Read(r, binary.LittleEndian, &ver); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if ver != binaryVersion {
		return nil, fmt.Errorf("unsupported version: %d", ver)
	}
	if err := binary.Read(r, binary.LittleEndian, &cfgVer); err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	cfg.Version = cfgVer

	for {
		var tag uint8
		if err := binary.Read(r, binary.LittleEndian, &tag); err == io.EOF {
			break
		} else if err != nil {
			return nil, err
		}

		var size uint32
		if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
			return nil, fmt.Errorf("section %#x: read size: %w", tag, err)
		}
		data := make([]byte, size)
		if _, err := io.ReadFull(r, data); err != nil {
			return nil, fmt.Errorf("section %#x: truncated payload: %w", tag, err)
		}

		var err error
		switch tag {
		case sectionCatalog:
			cfg.Catalog, err = decodeCatalog(data)
		case sectionRoles:
			cfg.Roles, err = decodeRoles(data)
		case sectionAssignments:
			cfg.Assignments, err = decodeAssignments(data)
		case sectionManifests:
			cfg.Manifests, err = decodeManifests(data)
		case sectionSubscriptions:
			cfg.Subscriptions, err = decodeSubscriptions(data)
		case sectionConditions:
			cfg.Conditions, err = decodeConditions(data)
		case sectionEngine:
			cfg.Engine, err = decodeEngineConfig(data)
		}
		if err != nil {
			return nil, fmt.Errorf("section %#x: %w", tag, err)
		}
	}

	return cfg, nil
}

func writeSection(buf *bytes.Buffer, tag uint8, fn func(*bytes.Buffer)) {
	tmp := &bytes.Buffer{}
	fn(tmp)
	binary.Write(buf, binary.LittleEndian, tag)
	binary.Write(buf, binary.LittleEndian, uint32(tmp.Len()))
	buf.Write(tmp.Bytes())
}

func writeString(buf *bytes.Buffer, s string) {
	binary.Write(buf, binary.LittleEndian, uint16(len(s)))
	buf.WriteString(s)
}

func readString(r *bytes.Reader) (string, error) {
	var l uint16
	if err := binary.Read(r, binary.LittleEndian, &l); err != nil {
		return "", err
	}
	b := make([]byte, l)
	if _, err := io.ReadFull(r, b); err != nil {
		return "", err
	}
	return string(b), nil
}

func writeBool(buf *bytes.Buffer, b bool) {
	if b {
		buf.WriteByte(1)
	} else {
		buf.WriteByte(0)
	}
}

func readBool(r *bytes.Reader) (bool, error) {
	b, err := r.ReadByte()
	if err != nil {
		return false, err
	}
	return b == 1, nil
}

func writeTime(buf *bytes.Buffer, t time.Time) {
	if t.IsZero() {
		binary.Write(buf, binary.LittleEndian, int64(0))
		return
	}
	binary.Write(buf, binary.LittleEndian, t.Unix())
}

func readTime(r *bytes.Reader) (time.Time, error) {
	var unix int64
	if err := binary.Read(r, binary.LittleEndian, &unix); err != nil {
		return time.Time{}, err
	}
	if unix == 0 {
		return time.Time{}, nil
	}
	return time.Unix(unix, 0).UTC(), nil
}

func encodeCatalog(buf *bytes.Buffer, perms []Permission) {
	binary.Write(buf, binary.LittleEndian, uint16(len(perms)))
	for _, p := range perms {
		writeString(buf, p.Resource)
		writeString(buf, p.Action)
		buf.WriteByte(byte(p.Scope))
		writeString(buf, p.Name)
		writeString(buf, p.Category)
	}
}

func decodeCatalog(data []byte) ([]Permission, error) {
	r := bytes.NewReader(data)
	var count uint16
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, err
	}
	perms := make([]Permission, count)
	for i := range perms {
		var err error
		if perms[i].Resource, err = readString(r); err != nil {
			return nil, err
		}
		if perms[i].Action, err = readString(r); err != nil {
			return nil, err
		}
		scope, err := r.ReadByte()
		if err != nil {
			return nil, err
		}
		perms[i].Scope = ScopeLevel(scope)
		if perms[i].Name, err = readString(r); err != nil {
			return nil, err
		}
		if perms[i].Category, err = readString(r); err != nil {
			return nil, err
		}
	}
	return perms, nil
}

func encodeRoles(buf *bytes.Buffer, roles []*Role) {
	binary.Write(buf, binary.LittleEndian, uint16(len(roles)))
	for _, role := range roles {
		writeString(buf, role.ID)
		writeString(buf, role.Name)
		writeString(buf, role.OrganizationID)
		binary.Write(buf, binary.LittleEndian, uint16(len(role.Grants)))
		for _, g := range role.Grants {
			writeString(buf, g.Permission.Resource)
			writeString(buf, g.Permission.Action)
			buf.WriteByte(byte(g.Permission.Scope))
			writeBool(buf, g.Granted)
		}
	}
}

func decodeRoles(data []byte) ([]*Role, error) {
	r := bytes.NewReader(data)
	var count uint16
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, err
	}
	roles := make([]*Role, count)
	for i := range roles {
		role := &Role{}
		var err error
		if role.ID, err = readString(r); err != nil {
			return nil, err
		}
		if role.Name, err = readString(r); err != nil {
			return nil, err
		}
		if role.OrganizationID, err = readString(r); err != nil {
			return nil, err
		}
		var grantCount uint16
		if err := binary.Read(r, binary.LittleEndian, &grantCount); err != nil {
			return nil, err
		}
		role.Grants = make([]RoleGrant, grantCount)
		for j := range role.Grants {
			if role.Grants[j].Permission.Resource, err = readString(r); err != nil {
				return nil, err
			}
			if role.Grants[j].Permission.Action, err = readString(r); err != nil {
				return nil, err
			}
			scope, err := r.ReadByte()
			if err != nil {
				return nil, err
			}
			role.Grants[j].Permission.Scope = ScopeLevel(scope)
			if role.Grants[j].Granted, err = readBool(r); err != nil {
				return nil, err
			}
		}
		roles[i] = role
	}
	return roles, nil
}

func encodeAssignments(buf *bytes.Buffer, assignments []RoleAssignment) {
	binary.Write(buf, binary.LittleEndian, uint16(len(assignments)))
	for _, a := range assignments {
		writeString(buf, a.UserID)
		writeString(buf, a.RoleID)
		writeBool(buf, a.IsActive)
		writeTime(buf, a.ExpiresAt)
	}
}

func decodeAssignments(data []byte) ([]RoleAssignment, error) {
	r := bytes.NewReader(data)
	var count uint16
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, err
	}
	assignments := make([]RoleAssignment, count)
	for i := range assignments {
		var err error
		if assignments[i].UserID, err = readString(r); err != nil {
			return nil, err
		}
		if assignments[i].RoleID, err = readString(r); err != nil {
			return nil, err
		}
		if assignments[i].IsActive, err = readBool(r); err != nil {
			return nil, err
		}
		if assignments[i].ExpiresAt, err = readTime(r); err != nil {
			return nil, err
		}
	}
	return assignments, nil
}

func encodeManifests(buf *bytes.Buffer, manifests []*ModuleManifest) {
	binary.Write(buf, binary.LittleEndian, uint16(len(manifests)))
	for _, m := range manifests {
		writeString(buf, m.ID)
		writeString(buf, m.DisplayName)
		binary.Write(buf, binary.LittleEndian, uint16(len(m.DependsOn)))
		for _, dep := range m.DependsOn {
			writeString(buf, dep)
		}
		writeBool(buf, m.IsSystemModule)
		writeBool(buf, m.IsActive)
	}
}

func decodeManifests(data []byte) ([]*ModuleManifest, error) {
	r := bytes.NewReader(data)
	var count uint16
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, err
	}
	manifests := make([]*ModuleManifest, count)
	for i := range manifests {
		m := &ModuleManifest{}
		var err error
		if m.ID, err = readString(r); err != nil {
			return nil, err
		}
		if m.DisplayName, err = readString(r); err != nil {
			return nil, err
		}
		var depCount uint16
		if err := binary.Read(r, binary.LittleEndian, &depCount); err != nil {
			return nil, err
		}
		m.DependsOn = make([]string, depCount)
		for j := range m.DependsOn {
			if m.DependsOn[j], err = readString(r); err != nil {
				return nil, err
			}
		}
		if m.IsSystemModule, err = readBool(r); err != nil {
			return nil, err
		}
		if m.IsActive, err = readBool(r); err != nil {
			return nil, err
		}
		manifests[i] = m
	}
	return manifests, nil
}

func encodeSubscriptions(buf *bytes.Buffer, subs []ModuleSubscription) {
	binary.Write(buf, binary.LittleEndian, uint16(len(subs)))
	for _, s := range subs {
		writeString(buf, s.OrganizationID)
		writeString(buf, s.ModuleID)
		writeString(buf, s.PropertyID)
		writeBool(buf, s.IsEnabled)
		writeTime(buf, s.EnabledAt)
		writeTime(buf, s.DisabledAt)
	}
}

func decodeSubscriptions(data []byte) ([]ModuleSubscription, error) {
	r := bytes.NewReader(data)
	var count uint16
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, err
	}
	subs := make([]ModuleSubscription, count)
	for i := range subs {
		var err error
		if subs[i].OrganizationID, err = readString(r); err != nil {
			return nil, err
		}
		if subs[i].ModuleID, err = readString(r); err != nil {
			return nil, err
		}
		if subs[i].PropertyID, err = readString(r); err != nil {
			return nil, err
		}
		if subs[i].IsEnabled, err = readBool(r); err != nil {
			return nil, err
		}
		if subs[i].EnabledAt, err = readTime(r); err != nil {
			return nil, err
		}
		if subs[i].DisabledAt, err = readTime(r); err != nil {
			return nil, err
		}
	}
	return subs, nil
}

func encodeConditions(buf *bytes.Buffer, conditions map[string][]string) {
	binary.Write(buf, binary.LittleEndian, uint16(len(conditions)))
	// Keys are sorted so the encoding is byte-stable; bundle signatures are
	// computed over these bytes.
	keys := make([]string, 0, len(conditions))
	for perm := range conditions {
		keys = append(keys, perm)
	}
	sort.Strings(keys)
	for _, perm := range keys {
		writeString(buf, perm)
		names := conditions[perm]
		binary.Write(buf, binary.LittleEndian, uint16(len(names)))
		for _, name := range names {
			writeString(buf, name)
		}
	}
}

func decodeConditions(data []byte) (map[string][]string, error) {
	r := bytes.NewReader(data)
	var count uint16
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, err
	}
	if count == 0 {
		return nil, nil
	}
	conditions := make(map[string][]string, count)
	for i := 0; i < int(count); i++ {
		perm, err := readString(r)
		if err != nil {
			return nil, err
		}
		var nameCount uint16
		if err := binary.Read(r, binary.LittleEndian, &nameCount); err != nil {
			return nil, err
		}
		names := make([]string, nameCount)
		for j := range names {
			if names[j], err = readString(r); err != nil {
				return nil, err
			}
		}
		conditions[perm] = names
	}
	return conditions, nil
}

func encodeEngineConfig(buf *bytes.Buffer, cfg *EngineConfig) {
	binary.Write(buf, binary.LittleEndian, cfg.PermissionCacheTTL)
	binary.Write(buf, binary.LittleEndian, cfg.RistrettoNumCounter)
	binary.Write(buf, binary.LittleEndian, cfg.RistrettoMaxCost)
	binary.Write(buf, binary.LittleEndian, cfg.RistrettoBuffer)
}

func decodeEngineConfig(data []byte) (EngineConfig, error) {
	r := bytes.NewReader(data)
	cfg := EngineConfig{}
	for _, field := range []*int64{&cfg.PermissionCacheTTL, &cfg.RistrettoNumCounter, &cfg.RistrettoMaxCost, &cfg.RistrettoBuffer} {
		if err := binary.Read(r, binary.LittleEndian, field); err != nil {
			return EngineConfig{}, err
		}
	}
	return cfg, nil
}
