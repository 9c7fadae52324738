package rbac

// Requirement is either a Role or a Permission.
type Requirement interface {
	requirement()
}

// Principal is the authenticated actor making a request.
type Principal struct {
	SubjectID string
	Roles     RoleSet
}

// IsAuthenticated reports whether the principal carries an identity
func (p Principal) IsAuthenticated() bool {
	return p.SubjectID != ""
}

// IsSuperAdmin reports whether the principal holds the override role
func (p Principal) IsSuperAdmin() bool {
	return p.Roles.Has(RoleSuperAdmin)
}

// Can evaluates a single requirement for the principal
func (p Principal) Can(req Requirement) bool {
	return Evaluate(p.Roles, req)
}

// Evaluate decides whether roles satisfy req. superadmin satisfies every
// requirement, including unknown permissions; for everyone else unknown
// permissions are denied.
func Evaluate(roles RoleSet, req Requirement) bool {
	if roles.Has(RoleSuperAdmin) {
		return true
	}

	switch r := req.(type) {
	case Role:
		return roles.Has(r)
	case Permission:
		granted, ok := grantedBy[r]
		if !ok {
			return false
		}
		return roles&granted != 0
	default:
		return false
	}
}

// EvaluateAny reports whether any requirement is satisfied. An empty list is denied unless roles include superadmin.
func EvaluateAny(roles RoleSet, reqs ...Requirement) bool {
	if roles.Has(RoleSuperAdmin) {
		return true
	}
	for _, req := range reqs {
		if Evaluate(roles, req) {
			return true
		}
	}
	return false
}

// EvaluateAll reports whether every requirement is satisfied. An empty list is denied unless roles include superadmin.
func EvaluateAll(roles RoleSet, reqs ...Requirement) bool {
	if roles.Has(RoleSuperAdmin) {
		return true
	}
	if len(reqs) == 0 {
		return false
	}
	for _, req := range reqs {
		if !Evaluate(roles, req) {
			return false
		}
	}
	return true
}
