package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/apperr"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/rbac"
)

// SystemActor is the actor id recorded for entries not caused by a request
const SystemActor = "system"

// AuditRecorder appends audit entries. MustRecord failures fail the
// surrounding operation; BestEffortRecord failures are only logged.
type AuditRecorder interface {
	MustRecord(ctx context.Context, actorID, action string, target entity.AuditTarget, details map[string]interface{}) (*entity.AuditEntry, error)
	BestEffortRecord(ctx context.Context, actorID, action string, target entity.AuditTarget, details map[string]interface{})
	List(ctx context.Context, principal rbac.Principal, filter entity.AuditFilter) ([]*entity.AuditEntry, error)
}

type auditRecorderImpl struct {
	auditRepo port.AuditRepository
	logger    Logger
	now       func() time.Time
}

// NewAuditRecorder creates a new AuditRecorder
func NewAuditRecorder(auditRepo port.AuditRepository, logger Logger) AuditRecorder {
	return &auditRecorderImpl{
		auditRepo: auditRepo,
		logger:    logger,
		now:       time.Now,
	}
}

// MustRecord appends an entry and returns any failure to the caller
func (s *auditRecorderImpl) MustRecord(ctx context.Context, actorID, action string, target entity.AuditTarget, details map[string]interface{}) (*entity.AuditEntry, error) {
	if actorID == "" || action == "" || target.Collection == "" || target.DocumentID == "" {
		return nil, fmt.Errorf("%w: audit entry requires actor, action and target", apperr.ErrValidationFailed)
	}

	entry := &entity.AuditEntry{
		ID:        uuid.NewString(),
		ActorID:   actorID,
		Action:    action,
		Target:    target,
		Details:   copyDetails(details),
		Timestamp: s.now().UTC(),
	}

	if err := s.auditRepo.Append(ctx, entry); err != nil {
		s.logger.Error("Failed to record audit entry",
			"error", err,
			"action", action,
			"collection", target.Collection,
			"document_id", target.DocumentID,
		)
		return nil, fmt.Errorf("record audit %s: %w", action, err)
	}

	return entry, nil
}

// BestEffortRecord appends an entry, logging instead of returning failures
func (s *auditRecorderImpl) BestEffortRecord(ctx context.Context, actorID, action string, target entity.AuditTarget, details map[string]interface{}) {
	if _, err := s.MustRecord(ctx, actorID, action, target, details); err != nil {
		s.logger.Error("Best-effort audit entry dropped",
			"error", err,
			"action", action,
			"actor_id", actorID,
		)
	}
}

// List returns audit entries matching filter. Requires audit:read.
func (s *auditRecorderImpl) List(ctx context.Context, principal rbac.Principal, filter entity.AuditFilter) ([]*entity.AuditEntry, error) {
	if err := authorize(principal, rbac.PermAuditRead); err != nil {
		return nil, err
	}

	filter.Limit, filter.Offset = normalizePage(filter.Limit, filter.Offset)
	entries, err := s.auditRepo.List(ctx, filter)
	if err != nil {
		s.logger.Error("Failed to list audit entries", "error", err)
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	return entries, nil
}

func copyDetails(details map[string]interface{}) map[string]interface{} {
	if len(details) == 0 {
		return nil
	}
	out := make(map[string]interface{}, len(details))
	for k, v := range details {
		out[k] = v
	}
	return out
}
