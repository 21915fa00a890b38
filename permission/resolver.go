package permission

import "errors"

// Resolver maps a role set to its effective permission set. Only the highest
// role in the precedence order is consulted.
//
// A Resolver holds frozen tables only and is safe for concurrent use.
type Resolver struct {
	registry   *Registry
	roles      *RoleManager
	precedence []string
}

// NewResolver binds a frozen registry and role table to a precedence order,
// highest priority first. Every role in precedence must be registered.
func NewResolver(registry *Registry, roles *RoleManager, precedence []string) (*Resolver, error) {
	if registry == nil || roles == nil {
		return nil, errors.New("registry and role manager required")
	}
	if len(precedence) == 0 {
		return nil, errors.New("precedence order empty")
	}

	seen := make(map[string]struct{}, len(precedence))
	for _, role := range precedence {
		if _, dup := seen[role]; dup {
			return nil, errors.New("duplicate role in precedence: " + role)
		}
		seen[role] = struct{}{}
		if _, ok := roles.GetMask(role); !ok {
			return nil, errors.New("precedence role not registered: " + role)
		}
	}

	return &Resolver{
		registry:   registry,
		roles:      roles,
		precedence: append([]string(nil), precedence...),
	}, nil
}

// PrimaryRole returns the highest-precedence role present in roles, or false
// when roles is empty or matches nothing in the order.
func (r *Resolver) PrimaryRole(roles []string) (string, bool) {
	if len(roles) == 0 {
		return "", false
	}

	held := make(map[string]struct{}, len(roles))
	for _, role := range roles {
		held[role] = struct{}{}
	}

	for _, candidate := range r.precedence {
		if _, ok := held[candidate]; ok {
			return candidate, true
		}
	}
	return "", false
}

// PermissionsFor returns the permissions of the primary role in registration
// order. The result is empty when there is no primary role.
func (r *Resolver) PermissionsFor(roles []string) []string {
	primary, ok := r.PrimaryRole(roles)
	if !ok {
		return []string{}
	}

	mask, ok := r.roles.GetMask(primary)
	if !ok || mask.Empty() {
		return []string{}
	}

	out := make([]string, 0, r.registry.Count())
	for bit := 0; bit < r.registry.Count(); bit++ {
		if !mask.Has(bit) {
			continue
		}
		if name, ok := r.registry.Name(bit); ok {
			out = append(out, name)
		}
	}
	return out
}

// HasPermission reports whether the primary role of roles grants perm.
func (r *Resolver) HasPermission(roles []string, perm string) bool {
	mask, ok := r.primaryMask(roles)
	if !ok {
		return false
	}
	bit, ok := r.registry.Bit(perm)
	return ok && mask.Has(bit)
}

// HasAny reports whether at least one of perms is granted.
func (r *Resolver) HasAny(roles []string, perms ...string) bool {
	for _, p := range perms {
		if r.HasPermission(roles, p) {
			return true
		}
	}
	return false
}

// HasAll reports whether every one of perms is granted. An empty perms list is
// granted only when a primary role exists.
func (r *Resolver) HasAll(roles []string, perms ...string) bool {
	if _, ok := r.primaryMask(roles); !ok {
		return false
	}
	for _, p := range perms {
		if !r.HasPermission(roles, p) {
			return false
		}
	}
	return true
}

// Precedence returns a copy of the precedence order.
func (r *Resolver) Precedence() []string {
	return append([]string(nil), r.precedence...)
}

func (r *Resolver) primaryMask(roles []string) (Mask, bool) {
	primary, ok := r.PrimaryRole(roles)
	if !ok {
		return nil, false
	}
	return r.roles.GetMask(primary)
}

// NewDefaultResolver builds a resolver over the built-in catalog, role table,
// and precedence order.
func NewDefaultResolver() (*Resolver, error) {
	return Build(64, DefaultCatalog(), DefaultRoleTable(), DefaultPrecedence())
}

// Build registers catalog and table, freezes both, and returns a resolver.
func Build(maxBits int, catalog []string, table map[string][]string, precedence []string) (*Resolver, error) {
	registry, err := NewRegistry(maxBits)
	if err != nil {
		return nil, err
	}
	for _, p := range catalog {
		if _, err := registry.Register(p); err != nil {
			return nil, err
		}
	}
	registry.Freeze()

	roles := NewRoleManager(registry)
	for role, perms := range table {
		if err := roles.RegisterRole(role, perms); err != nil {
			return nil, err
		}
	}
	roles.Freeze()

	return NewResolver(registry, roles, precedence)
}
