package authgate

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"
)

// DSL Syntax:
// perm <resource> <action> <scope> [name:<n>] [category:<c>]
// role <id> <org|-> <name> <grants>           grants: r.a.s[,r.a.s...], "!" prefix withholds
// assign <user> <role> [inactive] [expires:<RFC3339>]
// module <id> <name> [deps:<ids>] [system] [inactive]
// subscribe <org> <module> <on|off> [property:<id>]
// condition <permission> <names>
// engine <key>=<value>...

type DSLParser struct {
	line int
}

func NewDSLParser() *DSLParser {
	return &DSLParser{}
}

type DSLEncoder struct {
	buf []byte
}

func NewDSLEncoder() *DSLEncoder {
	return &DSLEncoder{buf: make([]byte, 0, 4096)}
}

func (e *DSLEncoder) Encode(cfg *Config) ([]byte, error) {
	e.buf = e.buf[:0]
	var tmp [20]byte

	for _, p := range cfg.Catalog {
		e.buf = append(e.buf, "perm "...)
		e.buf = append(e.buf, p.Resource...)
		e.buf = append(e.buf, ' ')
		e.buf = append(e.buf, p.Action...)
		e.buf = append(e.buf, ' ')
		e.buf = append(e.buf, p.Scope.String()...)
		if p.Name != "" {
			e.buf = append(e.buf, " name:\""...)
			e.buf = append(e.buf, p.Name...)
			e.buf = append(e.buf, '"')
		}
		if p.Category != "" {
			e.buf = append(e.buf, " category:"...)
			e.buf = append(e.buf, p.Category...)
		}
		e.buf = append(e.buf, '\n')
	}

	for _, r := range cfg.Roles {
		e.buf = append(e.buf, "role "...)
		e.buf = append(e.buf, r.ID...)
		e.buf = append(e.buf, ' ')
		if r.OrganizationID == "" {
			e.buf = append(e.buf, '-')
		} else {
			e.buf = append(e.buf, r.OrganizationID...)
		}
		e.buf = append(e.buf, ' ')
		if strings.Contains(r.Name, " ") {
			e.buf = append(e.buf, '"')
			e.buf = append(e.buf, r.Name...)
			e.buf = append(e.buf, '"')
		} else {
			e.buf = append(e.buf, r.Name...)
		}
		e.buf = append(e.buf, ' ')
		for i, g := range r.Grants {
			if i > 0 {
				e.buf = append(e.buf, ',')
			}
			if !g.Granted {
				e.buf = append(e.buf, '!')
			}
			e.buf = append(e.buf, g.Permission.String()...)
		}
		e.buf = append(e.buf, '\n')
	}

	for _, a := range cfg.Assignments {
		e.buf = append(e.buf, "assign "...)
		e.buf = append(e.buf, a.UserID...)
		e.buf = append(e.buf, ' ')
		e.buf = append(e.buf, a.RoleID...)
		if !a.IsActive {
			e.buf = append(e.buf, " inactive"...)
		}
		if !a.ExpiresAt.IsZero() {
			e.buf = append(e.buf, " expires:"...)
			e.buf = append(e.buf, a.ExpiresAt.Format(time.RFC3339)...)
		}
		e.buf = append(e.buf, '\n')
	}

	for _, m := range cfg.Manifests {
		e.buf = append(e.buf, "module "...)
		e.buf = append(e.buf, m.ID...)
		e.buf = append(e.buf, ' ')
		if strings.Contains(m.DisplayName, " ") {
			e.buf = append(e.buf, '"')
			e.buf = append(e.buf, m.DisplayName...)
			e.buf = append(e.buf, '"')
		} else {
			e.buf = append(e.buf, m.DisplayName...)
		}
		if len(m.DependsOn) > 0 {
			e.buf = append(e.buf, " deps:"...)
			for i, dep := range m.DependsOn {
				if i > 0 {
					e.buf = append(e.buf, ',')
				}
				e.buf = append(e.buf, dep...)
			}
		}
		if m.IsSystemModule {
			e.buf = append(e.buf, " system"...)
		}
		if !m.IsActive {
			e.buf = append(e.buf, " inactive"...)
		}
		e.buf = append(e.buf, '\n')
	}

	for _, s := range cfg.Subscriptions {
		e.buf = append(e.buf, "subscribe "...)
		e.buf = append(e.buf, s.OrganizationID...)
		e.buf = append(e.buf, ' ')
		e.buf = append(e.buf, s.ModuleID...)
		if s.IsEnabled {
			e.buf = append(e.buf, " on"...)
		} else {
			e.buf = append(e.buf, " off"...)
		}
		if s.PropertyID != "" {
			e.buf = append(e.buf, " property:"...)
			e.buf = append(e.buf, s.PropertyID...)
		}
		e.buf = append(e.buf, '\n')
	}

	condKeys := make([]string, 0, len(cfg.Conditions))
	for perm := range cfg.Conditions {
		condKeys = append(condKeys, perm)
	}
	sort.Strings(condKeys)
	for _, perm := range condKeys {
		e.buf = append(e.buf, "condition "...)
		e.buf = append(e.buf, perm...)
		e.buf = append(e.buf, ' ')
		for i, name := range cfg.Conditions[perm] {
			if i > 0 {
				e.buf = append(e.buf, ',')
			}
			e.buf = append(e.buf, name...)
		}
		e.buf = append(e.buf, '\n')
	}

	if cfg.Engine.PermissionCacheTTL > 0 || cfg.Engine.RistrettoMaxCost > 0 {
		e.buf = append(e.buf, "engine"...)
		if cfg.Engine.PermissionCacheTTL > 0 {
			e.buf = append(e.buf, " cache_ttl="...)
			n := strconv.AppendInt(tmp[:0], cfg.Engine.PermissionCacheTTL, 10)
			e.buf = append(e.buf, n...)
		}
		if cfg.Engine.RistrettoNumCounter > 0 {
			e.buf = append(e.buf, " counters="...)
			n := strconv.AppendInt(tmp[:0], cfg.Engine.RistrettoNumCounter, 10)
			e.buf = append(e.buf, n...)
		}
		if cfg.Engine.RistrettoMaxCost > 0 {
			e.buf = append(e.buf, " max_cost="...)
			n := strconv.AppendInt(tmp[:0], cfg.Engine.RistrettoMaxCost, 10)
			e.buf = append(e.buf, n...)
		}
		if cfg.Engine.RistrettoBuffer > 0 {
			e.buf = append(e.buf, " buffer="...)
			n := strconv.AppendInt(tmp[:0], cfg.Engine.RistrettoBuffer, 10)
			e.buf = append(e.buf, n...)
		}
		e.buf = append(e.buf, '\n')
	}

	return e.buf, nil
}

func (p *DSLParser) Parse(data []byte) (*Config, error) {
	cfg := &Config{
		Version:       1,
		Catalog:       make([]Permission, 0, 16),
		Roles:         make([]*Role, 0, 8),
		Assignments:   make([]RoleAssignment, 0, 8),
		Manifests:     make([]*ModuleManifest, 0, 8),
		Subscriptions: make([]ModuleSubscription, 0, 8),
		Conditions:    make(map[string][]string, 4),
		Engine:        EngineConfig{PermissionCacheTTL: DefaultCacheTTL.Milliseconds()},
	}

	p.line = 0
	start := 0
	for i := 0; i <= len(data); i++ {
		if i == len(data) || data[i] == '\n' {
			p.line++
			line := data[start:i]
			start = i + 1

			for len(line) > 0 && (line[0] == ' ' || line[0] == '\t') {
				line = line[1:]
			}
			for len(line) > 0 && (line[len(line)-1] == ' ' || line[len(line)-1] == '\t' || line[len(line)-1] == '\r') {
				line = line[:len(line)-1]
			}

			if len(line) == 0 || line[0] == '#' {
				continue
			}

			parts := splitLineBytes(line)
			if len(parts) == 0 {
				continue
			}

			switch parts[0] {
			case "perm":
				if err := p.parsePerm(cfg, parts[1:]); err != nil {
					return nil, fmt.Errorf("line %d: %w", p.line, err)
				}
			case "role":
				if err := p.parseRole(cfg, parts[1:]); err != nil {
					return nil, fmt.Errorf("line %d: %w", p.line, err)
				}
			case "assign":
				if err := p.parseAssign(cfg, parts[1:]); err != nil {
					return nil, fmt.Errorf("line %d: %w", p.line, err)
				}
			case "module":
				if err := p.parseModule(cfg, parts[1:]); err != nil {
					return nil, fmt.Errorf("line %d: %w", p.line, err)
				}
			case "subscribe":
				if err := p.parseSubscribe(cfg, parts[1:]); err != nil {
					return nil, fmt.Errorf("line %d: %w", p.line, err)
				}
			case "condition":
				if err := p.parseConditionLine(cfg, parts[1:]); err != nil {
					return nil, fmt.Errorf("line %d: %w", p.line, err)
				}
			case "engine":
				if err := p.parseEngine(cfg, parts[1:]); err != nil {
					return nil, fmt.Errorf("line %d: %w", p.line, err)
				}
			default:
				return nil, fmt.Errorf("line %d: unknown directive: %s", p.line, parts[0])
			}
		}
	}

	return cfg, nil
}

// splitLineBytes tokenizes on whitespace. Quotes protect spaces and may
// appear mid-token, so name:"Front Desk" stays a single token.
func splitLineBytes(line []byte) []string {
	parts := make([]string, 0, 8)
	cur := make([]byte, 0, 32)
	inQuote := false

	for i := 0; i < len(line); i++ {
		ch := line[i]
		switch {
		case ch == '"':
			inQuote = !inQuote
		case (ch == ' ' || ch == '\t') && !inQuote:
			if len(cur) > 0 {
				parts = append(parts, string(cur))
				cur = cur[:0]
			}
		default:
			cur = append(cur, ch)
		}
	}
	if len(cur) > 0 {
		parts = append(parts, string(cur))
	}

	return parts
}

func (p *DSLParser) parsePerm(cfg *Config, parts []string) error {
	if len(parts) < 3 {
		return fmt.Errorf("perm requires: <resource> <action> <scope> [name:<n>] [category:<c>]")
	}
	scope, err := ParseScope(parts[2])
	if err != nil {
		return err
	}
	perm := Permission{Resource: parts[0], Action: parts[1], Scope: scope}
	for _, opt := range parts[3:] {
		if strings.HasPrefix(opt, "name:") {
			perm.Name = opt[5:]
		} else if strings.HasPrefix(opt, "category:") {
			perm.Category = opt[9:]
		}
	}
	cfg.Catalog = append(cfg.Catalog, perm)
	return nil
}

func (p *DSLParser) parseRole(cfg *Config, parts []string) error {
	if len(parts) < 4 {
		return fmt.Errorf("role requires: <id> <org|-> <name> <grants>")
	}

	role := &Role{
		ID:     parts[0],
		Name:   parts[2],
		Grants: []RoleGrant{},
	}
	if parts[1] != "-" {
		role.OrganizationID = parts[1]
	}

	for _, raw := range strings.Split(parts[3], ",") {
		if raw == "" {
			continue
		}
		granted := true
		if raw[0] == '!' {
			granted = false
			raw = raw[1:]
		}
		perm, err := ParsePermission(raw)
		if err != nil {
			return err
		}
		role.Grants = append(role.Grants, RoleGrant{Permission: perm, Granted: granted})
	}

	cfg.Roles = append(cfg.Roles, role)
	return nil
}

func (p *DSLParser) parseAssign(cfg *Config, parts []string) error {
	if len(parts) < 2 {
		return fmt.Errorf("assign requires: <user> <role> [inactive] [expires:<time>]")
	}
	a := RoleAssignment{UserID: parts[0], RoleID: parts[1], IsActive: true}
	for _, opt := range parts[2:] {
		if opt == "inactive" {
			a.IsActive = false
		} else if strings.HasPrefix(opt, "expires:") {
			t, err := time.Parse(time.RFC3339, opt[8:])
			if err != nil {
				return fmt.Errorf("bad expires value %q: %w", opt[8:], err)
			}
			a.ExpiresAt = t
		}
	}
	cfg.Assignments = append(cfg.Assignments, a)
	return nil
}

func (p *DSLParser) parseModule(cfg *Config, parts []string) error {
	if len(parts) < 2 {
		return fmt.Errorf("module requires: <id> <name> [deps:<ids>] [system] [inactive]")
	}
	m := &ModuleManifest{ID: parts[0], DisplayName: parts[1], IsActive: true}
	for _, opt := range parts[2:] {
		switch {
		case strings.HasPrefix(opt, "deps:"):
			m.DependsOn = strings.Split(opt[5:], ",")
		case opt == "system":
			m.IsSystemModule = true
		case opt == "inactive":
			m.IsActive = false
		}
	}
	cfg.Manifests = append(cfg.Manifests, m)
	return nil
}

func (p *DSLParser) parseSubscribe(cfg *Config, parts []string) error {
	if len(parts) < 3 {
		return fmt.Errorf("subscribe requires: <org> <module> <on|off> [property:<id>]")
	}
	s := ModuleSubscription{OrganizationID: parts[0], ModuleID: parts[1]}
	switch parts[2] {
	case "on":
		s.IsEnabled = true
	case "off":
		s.IsEnabled = false
	default:
		return fmt.Errorf("subscribe state must be on or off, got %q", parts[2])
	}
	for _, opt := range parts[3:] {
		if strings.HasPrefix(opt, "property:") {
			s.PropertyID = opt[9:]
		}
	}
	cfg.Subscriptions = append(cfg.Subscriptions, s)
	return nil
}

func (p *DSLParser) parseConditionLine(cfg *Config, parts []string) error {
	if len(parts) < 2 {
		return fmt.Errorf("condition requires: <permission> <names>")
	}
	if _, err := ParsePermission(parts[0]); err != nil {
		return err
	}
	for _, name := range strings.Split(parts[1], ",") {
		if name == "" {
			continue
		}
		if _, err := ParseCondition(name); err != nil {
			return err
		}
		cfg.Conditions[parts[0]] = append(cfg.Conditions[parts[0]], name)
	}
	return nil
}

func (p *DSLParser) parseEngine(cfg *Config, parts []string) error {
	for _, kv := range parts {
		idx := strings.Index(kv, "=")
		if idx == -1 {
			continue
		}
		key, val := kv[:idx], kv[idx+1:]
		switch key {
		case "cache_ttl":
			cfg.Engine.PermissionCacheTTL, _ = strconv.ParseInt(val, 10, 64)
		case "counters":
			cfg.Engine.RistrettoNumCounter, _ = strconv.ParseInt(val, 10, 64)
		case "max_cost":
			cfg.Engine.RistrettoMaxCost, _ = strconv.ParseInt(val, 10, 64)
		case "buffer":
			cfg.Engine.RistrettoBuffer, _ = strconv.ParseInt(val, 10, 64)
		}
	}
	return nil
}
