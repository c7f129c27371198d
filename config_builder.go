package authgate

// ConfigBuilder provides fluent API for building configurations
type ConfigBuilder struct {
	cfg *Config
}

func NewConfigBuilder() *ConfigBuilder {
	return &ConfigBuilder{
		cfg: &Config{
			Version:       1,
			Catalog:       []Permission{},
			Roles:         []*Role{},
			Assignments:   []RoleAssignment{},
			Manifests:     []*ModuleManifest{},
			Subscriptions: []ModuleSubscription{},
			Conditions:    make(map[string][]string),
			Engine: EngineConfig{
				PermissionCacheTTL: int64(DefaultCacheTTL.Milliseconds()),
			},
		},
	}
}

func (b *ConfigBuilder) Version(v uint16) *ConfigBuilder {
	b.cfg.Version = v
	return b
}

func (b *ConfigBuilder) AddPermission(p Permission) *ConfigBuilder {
	b.cfg.Catalog = append(b.cfg.Catalog, p)
	return b
}

func (b *ConfigBuilder) AddRole(r *Role) *ConfigBuilder {
	b.cfg.Roles = append(b.cfg.Roles, r)
	return b
}

func (b *ConfigBuilder) AddAssignment(a RoleAssignment) *ConfigBuilder {
	b.cfg.Assignments = append(b.cfg.Assignments, a)
	return b
}

func (b *ConfigBuilder) AddManifest(m *ModuleManifest) *ConfigBuilder {
	b.cfg.Manifests = append(b.cfg.Manifests, m)
	return b
}

func (b *ConfigBuilder) AddSubscription(s ModuleSubscription) *ConfigBuilder {
	b.cfg.Subscriptions = append(b.cfg.Subscriptions, s)
	return b
}

// RequireCondition attaches a named built-in condition to a permission string.
func (b *ConfigBuilder) RequireCondition(permission, condition string) *ConfigBuilder {
	b.cfg.Conditions[permission] = append(b.cfg.Conditions[permission], condition)
	return b
}

func (b *ConfigBuilder) EngineSettings(fn func(*EngineConfig)) *ConfigBuilder {
	fn(&b.cfg.Engine)
	return b
}

func (b *ConfigBuilder) Build() *Config {
	return b.cfg
}

func (b *ConfigBuilder) ToYAML() ([]byte, error) {
	return b.cfg.ToYAML()
}

func (b *ConfigBuilder) ToJSON() ([]byte, error) {
	return b.cfg.ToJSON()
}
