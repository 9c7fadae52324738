// Package rbac holds the static role model and the single permission
// evaluator every authorization decision goes through.
package rbac

import (
	"fmt"
	"sort"
	"strings"
)

// Role is a closed, ordered set of capability groups.
type Role uint8

const (
	RoleStaff Role = iota + 1
	RoleManager
	RoleFinance
	RoleAdmin
	RoleSuperAdmin
)

var roleNames = map[Role]string{
	RoleStaff:      "staff",
	RoleManager:    "manager",
	RoleFinance:    "finance",
	RoleAdmin:      "admin",
	RoleSuperAdmin: "superadmin",
}

// AllRoles returns every role in declaration order
func AllRoles() []Role {
	return []Role{RoleStaff, RoleManager, RoleFinance, RoleAdmin, RoleSuperAdmin}
}

// ParseRole converts a role name into a Role. Unknown names are rejected.
func ParseRole(name string) (Role, error) {
	normalized := strings.ToLower(strings.TrimSpace(name))
	for role, n := range roleNames {
		if n == normalized {
			return role, nil
		}
	}
	return 0, fmt.Errorf("unknown role %q", name)
}

// IsValid reports whether r is one of the declared roles
func (r Role) IsValid() bool {
	_, ok := roleNames[r]
	return ok
}

// String returns the role name
func (r Role) String() string {
	if n, ok := roleNames[r]; ok {
		return n
	}
	return fmt.Sprintf("role(%d)", uint8(r))
}

// MarshalText encodes the role as its name
func (r Role) MarshalText() ([]byte, error) {
	if !r.IsValid() {
		return nil, fmt.Errorf("invalid role %d", uint8(r))
	}
	return []byte(r.String()), nil
}

// UnmarshalText decodes a role name
func (r *Role) UnmarshalText(text []byte) error {
	parsed, err := ParseRole(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}

func (r Role) requirement() {}

// RoleSet is an unordered set of roles. The zero value is the empty set.
type RoleSet uint8

// NewRoleSet builds a set from the given roles, ignoring invalid values
func NewRoleSet(roles ...Role) RoleSet {
	var s RoleSet
	for _, r := range roles {
		s = s.With(r)
	}
	return s
}

// ParseRoleSet parses role names into a set. Any unknown name fails the whole parse.
func ParseRoleSet(names []string) (RoleSet, error) {
	var s RoleSet
	for _, n := range names {
		r, err := ParseRole(n)
		if err != nil {
			return 0, err
		}
		s = s.With(r)
	}
	return s, nil
}

func bit(r Role) RoleSet {
	return RoleSet(1) << (r - 1)
}

// Has reports whether the set contains r
func (s RoleSet) Has(r Role) bool {
	if !r.IsValid() {
		return false
	}
	return s&bit(r) != 0
}

// With returns a copy of the set including r
func (s RoleSet) With(r Role) RoleSet {
	if !r.IsValid() {
		return s
	}
	return s | bit(r)
}

// Without returns a copy of the set excluding r
func (s RoleSet) Without(r Role) RoleSet {
	if !r.IsValid() {
		return s
	}
	return s &^ bit(r)
}

// IsEmpty reports whether the set holds no roles
func (s RoleSet) IsEmpty() bool {
	return s == 0
}

// Roles returns the members in declaration order
func (s RoleSet) Roles() []Role {
	roles := make([]Role, 0, len(roleNames))
	for _, r := range AllRoles() {
		if s.Has(r) {
			roles = append(roles, r)
		}
	}
	return roles
}

// Names returns the sorted role names
func (s RoleSet) Names() []string {
	names := make([]string, 0, len(roleNames))
	for _, r := range s.Roles() {
		names = append(names, r.String())
	}
	sort.Strings(names)
	return names
}

// String returns a comma separated list of role names
func (s RoleSet) String() string {
	return strings.Join(s.Names(), ",")
}
