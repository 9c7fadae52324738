package rbac

import "fmt"

// Permission is a fine-grained capability key granted by one or more roles.
type Permission string

const (
	PermClaimsCreate    Permission = "claims:create"
	PermClaimsApprove   Permission = "claims:approve"
	PermOvertimeCreate  Permission = "overtime:create"
	PermOvertimeApprove Permission = "overtime:approve"
	PermSubmissionsRead Permission = "submissions:read_all"
	PermPayoutsIssue    Permission = "payouts:issue"
	PermPayoutsExport   Permission = "payouts:export"
	PermRatesRead       Permission = "rates:read"
	PermRatesManage     Permission = "rates:manage"
	PermProfilesManage  Permission = "profiles:manage"
	PermRolesManage     Permission = "roles:manage"
	PermAuditRead       Permission = "audit:read"
)

// AllPermissions lists every permission known to the role table
var AllPermissions = []Permission{
	PermClaimsCreate,
	PermClaimsApprove,
	PermOvertimeCreate,
	PermOvertimeApprove,
	PermSubmissionsRead,
	PermPayoutsIssue,
	PermPayoutsExport,
	PermRatesRead,
	PermRatesManage,
	PermProfilesManage,
	PermRolesManage,
	PermAuditRead,
}

// rolePermissions is the static grant table. superadmin is absent on
// purpose: the evaluator answers for it before consulting the table.
var rolePermissions = map[Role][]Permission{
	RoleStaff: {
		PermClaimsCreate,
		PermOvertimeCreate,
		PermRatesRead,
	},
	RoleManager: {
		PermClaimsCreate,
		PermOvertimeCreate,
		PermClaimsApprove,
		PermOvertimeApprove,
		PermSubmissionsRead,
		PermRatesRead,
	},
	RoleFinance: {
		PermClaimsCreate,
		PermOvertimeCreate,
		PermClaimsApprove,
		PermOvertimeApprove,
		PermSubmissionsRead,
		PermPayoutsIssue,
		PermPayoutsExport,
		PermRatesRead,
		PermAuditRead,
	},
	RoleAdmin: {
		PermClaimsCreate,
		PermOvertimeCreate,
		PermClaimsApprove,
		PermOvertimeApprove,
		PermSubmissionsRead,
		PermRatesRead,
		PermRatesManage,
		PermProfilesManage,
		PermRolesManage,
		PermAuditRead,
	},
}

// grantedBy indexes the table by permission. Built once at start-up.
var grantedBy = mustIndex(rolePermissions, AllPermissions)

func buildIndex(table map[Role][]Permission, known []Permission) (map[Permission]RoleSet, error) {
	index := make(map[Permission]RoleSet, len(known))
	for _, p := range known {
		index[p] = 0
	}
	for role, perms := range table {
		if !role.IsValid() {
			return nil, fmt.Errorf("role table references invalid role %d", uint8(role))
		}
		for _, p := range perms {
			if _, ok := index[p]; !ok {
				return nil, fmt.Errorf("role %s grants unknown permission %s", role, p)
			}
			index[p] = index[p].With(role)
		}
	}
	for _, p := range known {
		if index[p].IsEmpty() {
			return nil, fmt.Errorf("permission %s is granted by no role", p)
		}
	}
	return index, nil
}

func mustIndex(table map[Role][]Permission, known []Permission) map[Permission]RoleSet {
	index, err := buildIndex(table, known)
	if err != nil {
		panic(fmt.Sprintf("rbac: %v", err))
	}
	return index
}

// IsKnown reports whether p appears in the role table
func (p Permission) IsKnown() bool {
	_, ok := grantedBy[p]
	return ok
}

// GrantedBy returns the roles that grant p. Unknown permissions yield the empty set.
func (p Permission) GrantedBy() RoleSet {
	return grantedBy[p]
}

// String returns the permission key
func (p Permission) String() string {
	return string(p)
}

func (p Permission) requirement() {}

// PermissionsFor returns the permissions held by a role set
func PermissionsFor(roles RoleSet) []Permission {
	held := make([]Permission, 0, len(AllPermissions))
	for _, p := range AllPermissions {
		if Evaluate(roles, p) {
			held = append(held, p)
		}
	}
	return held
}
