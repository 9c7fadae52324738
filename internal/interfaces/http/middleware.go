package http

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/expense-approval/internal/application/service"
	"github.com/garyjia/expense-approval/internal/domain/apperr"
	"github.com/garyjia/expense-approval/internal/domain/rbac"
)

const principalKey = "principal"

// authMiddleware verifies the bearer token and loads the caller's current
// role set into the request context.
func authMiddleware(tokens *TokenAuthority, access service.AccessService, h *Handlers) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := c.GetHeader("Authorization")
		scheme, token, found := strings.Cut(raw, " ")
		if !found || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			h.abortWithError(c, fmt.Errorf("%w: missing bearer token", apperr.ErrUnauthenticated))
			return
		}

		subject, err := tokens.Verify(strings.TrimSpace(token))
		if err != nil {
			h.abortWithError(c, err)
			return
		}

		principal, err := access.Principal(c.Request.Context(), subject)
		if err != nil {
			h.abortWithError(c, err)
			return
		}

		c.Set(principalKey, principal)
		c.Next()
	}
}

func principalFrom(c *gin.Context) (rbac.Principal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return rbac.Principal{}, false
	}
	p, ok := v.(rbac.Principal)
	return p, ok
}
