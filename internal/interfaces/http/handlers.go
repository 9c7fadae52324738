package http

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/garyjia/expense-approval/internal/application/service"
	"github.com/garyjia/expense-approval/internal/domain/apperr"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/rbac"
	"github.com/garyjia/expense-approval/internal/domain/workflow"
)

// Handlers contains all HTTP request handlers
type Handlers struct {
	services Services
	logger   Logger
}

// NewHandlers creates a new Handlers instance
func NewHandlers(services Services, logger Logger) *Handlers {
	return &Handlers{
		services: services,
		logger:   logger,
	}
}

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
	Kind    string      `json:"kind,omitempty"`
}

// HealthResponse represents the health check response
type HealthResponse struct {
	Status    string `json:"status"`
	Timestamp string `json:"timestamp"`
	Version   string `json:"version"`
}

// ClaimRequest is the body of POST /api/claims. claim_date accepts
// YYYY-MM-DD or RFC 3339.
type ClaimRequest struct {
	ClaimDate         string                     `json:"claim_date"`
	Description       string                     `json:"description"`
	CalculatedMileage decimal.Decimal            `json:"calculated_mileage"`
	Items             []service.ExpenseItemInput `json:"items"`
}

// TransitionRequest is the body of POST /api/submissions/:id/transition
type TransitionRequest struct {
	Status         string `json:"status"`
	Remarks        string `json:"remarks"`
	ExpectedStatus string `json:"expected_status"`
}

// PermissionCheckRequest is the body of POST /api/permissions/check
type PermissionCheckRequest struct {
	Permission string `json:"permission"`
}

// RateRequest is the body of POST /api/rates
type RateRequest struct {
	Kind          entity.RateKind             `json:"kind"`
	Value         decimal.Decimal             `json:"value"`
	Condition     *service.RateConditionInput `json:"condition"`
	EffectiveDate string                      `json:"effective_date"`
}

// RolesRequest is the body of PUT /api/users/:id/roles
type RolesRequest struct {
	Roles []string `json:"roles"`
}

// ListSubmissionsRequest represents query parameters for listing submissions
type ListSubmissionsRequest struct {
	Kind    string `form:"kind"`
	Status  string `form:"status"`
	OwnerID string `form:"owner_id"`
	Limit   int    `form:"limit"`
	Offset  int    `form:"offset"`
}

// ResolveRateRequest represents query parameters for rate resolution
type ResolveRateRequest struct {
	Kind        string `form:"kind"`
	Date        string `form:"date"`
	DayType     string `form:"day_type"`
	Designation string `form:"designation"`
}

// ListAuditRequest represents query parameters for listing audit entries
type ListAuditRequest struct {
	Collection string `form:"collection"`
	DocumentID string `form:"document_id"`
	ActorID    string `form:"actor_id"`
	Limit      int    `form:"limit"`
	Offset     int    `form:"offset"`
}

// PrincipalResponse describes the caller
type PrincipalResponse struct {
	SubjectID   string   `json:"subject_id"`
	Roles       []string `json:"roles"`
	Permissions []string `json:"permissions"`
}

// RoleAssignmentResponse is a stored role set
type RoleAssignmentResponse struct {
	SubjectID string   `json:"subject_id"`
	Roles     []string `json:"roles"`
	UpdatedBy string   `json:"updated_by"`
	UpdatedAt string   `json:"updated_at"`
}

// HealthCheck handles GET /health
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: HealthResponse{
			Status:    "healthy",
			Timestamp: time.Now().UTC().Format(time.RFC3339),
			Version:   "1.0.0",
		},
	})
}

// CreateClaim handles POST /api/claims
func (h *Handlers) CreateClaim(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}

	var req ClaimRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body")
		return
	}

	var claimDate time.Time
	if req.ClaimDate != "" {
		d, err := parseDate(req.ClaimDate)
		if err != nil {
			h.badRequest(c, "claim_date must be YYYY-MM-DD")
			return
		}
		claimDate = d
	}

	sub, err := h.services.Submissions.CreateClaim(c.Request.Context(), principal, service.ClaimInput{
		ClaimDate:         claimDate,
		Description:       req.Description,
		CalculatedMileage: req.CalculatedMileage,
		Items:             req.Items,
	})
	if err != nil {
		h.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: sub})
}

// CreateOvertime handles POST /api/overtime
func (h *Handlers) CreateOvertime(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}

	var req service.OvertimeInput
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body")
		return
	}

	sub, err := h.services.Submissions.CreateOvertime(c.Request.Context(), principal, req)
	if err != nil {
		h.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: sub})
}

// ListSubmissions handles GET /api/submissions
func (h *Handlers) ListSubmissions(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}

	var req ListSubmissionsRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.badRequest(c, "invalid query parameters")
		return
	}

	subs, err := h.services.Submissions.List(c.Request.Context(), principal, entity.SubmissionFilter{
		OwnerID: strings.TrimSpace(req.OwnerID),
		Kind:    entity.SubmissionKind(req.Kind),
		Status:  workflow.State(req.Status),
		Limit:   req.Limit,
		Offset:  req.Offset,
	})
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	if subs == nil {
		subs = []*entity.Submission{}
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: subs})
}

// GetSubmission handles GET /api/submissions/:id
func (h *Handlers) GetSubmission(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}

	sub, err := h.services.Submissions.Get(c.Request.Context(), principal, c.Param("id"))
	if err != nil {
		h.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: sub})
}

// TransitionSubmission handles POST /api/submissions/:id/transition
func (h *Handlers) TransitionSubmission(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}

	var req TransitionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body")
		return
	}

	target, valid := workflow.ParseState(strings.TrimSpace(req.Status))
	if !valid {
		h.abortWithError(c, fmt.Errorf("%w: unknown status %q", apperr.ErrValidationFailed, req.Status))
		return
	}

	var expected workflow.State
	if s := strings.TrimSpace(req.ExpectedStatus); s != "" {
		if expected, valid = workflow.ParseState(s); !valid {
			h.abortWithError(c, fmt.Errorf("%w: unknown expected_status %q", apperr.ErrValidationFailed, s))
			return
		}
	}

	sub, err := h.services.Submissions.Transition(c.Request.Context(), c.Param("id"), service.TransitionRequest{
		Target:         target,
		Reviewer:       principal,
		Remarks:        req.Remarks,
		ExpectedStatus: expected,
	})
	if err != nil {
		h.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: sub})
}

// Me handles GET /api/me
func (h *Handlers) Me(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}

	perms := rbac.PermissionsFor(principal.Roles)
	names := make([]string, 0, len(perms))
	for _, p := range perms {
		names = append(names, p.String())
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: PrincipalResponse{
			SubjectID:   principal.SubjectID,
			Roles:       principal.Roles.Names(),
			Permissions: names,
		},
	})
}

// CheckPermission handles POST /api/permissions/check
func (h *Handlers) CheckPermission(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}

	var req PermissionCheckRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body")
		return
	}

	allowed, err := h.services.Access.CheckPermission(principal, req.Permission)
	if err != nil {
		h.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data:    gin.H{"allowed": allowed},
	})
}

// AssignRoles handles PUT /api/users/:id/roles
func (h *Handlers) AssignRoles(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}

	var req RolesRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body")
		return
	}

	roles, err := rbac.ParseRoleSet(req.Roles)
	if err != nil {
		h.abortWithError(c, fmt.Errorf("%w: %v", apperr.ErrValidationFailed, err))
		return
	}

	assignment, err := h.services.Access.AssignRoles(c.Request.Context(), principal, c.Param("id"), roles)
	if err != nil {
		h.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{
		Success: true,
		Data: RoleAssignmentResponse{
			SubjectID: assignment.SubjectID,
			Roles:     assignment.Roles.Names(),
			UpdatedBy: assignment.UpdatedBy,
			UpdatedAt: assignment.UpdatedAt.UTC().Format(time.RFC3339),
		},
	})
}

// GetProfile handles GET /api/users/:id/profile
func (h *Handlers) GetProfile(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}

	profile, err := h.services.Access.GetProfile(c.Request.Context(), principal, c.Param("id"))
	if err != nil {
		h.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: profile})
}

// UpsertProfile handles PUT /api/users/:id/profile
func (h *Handlers) UpsertProfile(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}

	var req service.ProfileInput
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body")
		return
	}

	profile, err := h.services.Access.UpsertProfile(c.Request.Context(), principal, c.Param("id"), req)
	if err != nil {
		h.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: profile})
}

// ListRates handles GET /api/rates
func (h *Handlers) ListRates(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}

	rates, err := h.services.Rates.List(c.Request.Context(), principal, entity.RateKind(c.Query("kind")))
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	if rates == nil {
		rates = []entity.RateConfig{}
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: rates})
}

// CreateRate handles POST /api/rates
func (h *Handlers) CreateRate(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}

	var req RateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.badRequest(c, "invalid request body")
		return
	}

	var effective time.Time
	if req.EffectiveDate != "" {
		d, err := parseDate(req.EffectiveDate)
		if err != nil {
			h.badRequest(c, "effective_date must be YYYY-MM-DD")
			return
		}
		effective = d
	}

	cfg, err := h.services.Rates.Create(c.Request.Context(), principal, service.RateInput{
		Kind:          req.Kind,
		Value:         req.Value,
		Condition:     req.Condition,
		EffectiveDate: effective,
	})
	if err != nil {
		h.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, Response{Success: true, Data: cfg})
}

// ResolveRate handles GET /api/rates/resolve
func (h *Handlers) ResolveRate(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}

	var req ResolveRateRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.badRequest(c, "invalid query parameters")
		return
	}

	var date time.Time
	if req.Date != "" {
		d, err := parseDate(req.Date)
		if err != nil {
			h.badRequest(c, "date must be YYYY-MM-DD")
			return
		}
		date = d
	}

	cfg, err := h.services.Rates.Resolve(c.Request.Context(), principal, service.ResolveQuery{
		Kind:        entity.RateKind(req.Kind),
		Date:        date,
		DayType:     entity.DayType(req.DayType),
		Designation: req.Designation,
	})
	if err != nil {
		h.abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: cfg})
}

// ListAudit handles GET /api/audit
func (h *Handlers) ListAudit(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}

	var req ListAuditRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		h.badRequest(c, "invalid query parameters")
		return
	}

	entries, err := h.services.Audit.List(c.Request.Context(), principal, entity.AuditFilter{
		ActorID:    req.ActorID,
		Collection: req.Collection,
		DocumentID: req.DocumentID,
		Limit:      req.Limit,
		Offset:     req.Offset,
	})
	if err != nil {
		h.abortWithError(c, err)
		return
	}
	if entries == nil {
		entries = []*entity.AuditEntry{}
	}

	c.JSON(http.StatusOK, Response{Success: true, Data: entries})
}

// ExportPayouts handles GET /api/payouts/export
func (h *Handlers) ExportPayouts(c *gin.Context) {
	principal, ok := h.principal(c)
	if !ok {
		return
	}

	export, err := h.services.Payouts.ExportApproved(c.Request.Context(), principal)
	if err != nil {
		h.abortWithError(c, err)
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", export.FileName))
	c.Header("X-Payout-Count", fmt.Sprintf("%d", export.Count))
	c.Data(http.StatusOK, export.ContentType, export.Content)
}

// principal returns the authenticated caller or aborts the request
func (h *Handlers) principal(c *gin.Context) (rbac.Principal, bool) {
	p, ok := principalFrom(c)
	if !ok {
		h.abortWithError(c, errMissingPrincipal)
		return rbac.Principal{}, false
	}
	return p, true
}

// parseDate accepts a calendar date or a full RFC 3339 timestamp
func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if d, err := time.Parse(time.DateOnly, s); err == nil {
		return d, nil
	}
	return time.Parse(time.RFC3339, s)
}
