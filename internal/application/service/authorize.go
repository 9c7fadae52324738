package service

import (
	"fmt"

	"github.com/garyjia/expense-approval/internal/domain/apperr"
	"github.com/garyjia/expense-approval/internal/domain/rbac"
)

const (
	defaultPageSize = 50
	maxPageSize     = 200
)

// authorize is the single gate every service operation passes through.
// Messages never name the missing role or permission.
func authorize(p rbac.Principal, req rbac.Requirement) error {
	if !p.IsAuthenticated() {
		return apperr.ErrUnauthenticated
	}
	if !rbac.Evaluate(p.Roles, req) {
		return fmt.Errorf("%w: insufficient permissions", apperr.ErrForbidden)
	}
	return nil
}

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
