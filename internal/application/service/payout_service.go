package service

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/rbac"
	"github.com/garyjia/expense-approval/internal/domain/workflow"
)

// PayoutExport is a rendered payout document
type PayoutExport struct {
	FileName    string
	ContentType string
	Content     []byte
	Count       int
	Total       decimal.Decimal
}

// PayoutService produces payout documents for approved submissions
type PayoutService interface {
	ExportApproved(ctx context.Context, principal rbac.Principal) (*PayoutExport, error)
}

type payoutServiceImpl struct {
	submissionRepo port.SubmissionRepository
	exporter       port.PayoutExporter
	recorder       AuditRecorder
	logger         Logger
	now            func() time.Time
}

// NewPayoutService creates a new PayoutService
func NewPayoutService(
	submissionRepo port.SubmissionRepository,
	exporter port.PayoutExporter,
	recorder AuditRecorder,
	logger Logger,
) PayoutService {
	return &payoutServiceImpl{
		submissionRepo: submissionRepo,
		exporter:       exporter,
		recorder:       recorder,
		logger:         logger,
		now:            time.Now,
	}
}

// ExportApproved renders every approved, not yet paid submission
func (s *payoutServiceImpl) ExportApproved(ctx context.Context, principal rbac.Principal) (*PayoutExport, error) {
	if err := authorize(principal, rbac.PermPayoutsExport); err != nil {
		return nil, err
	}

	subs, err := s.submissionRepo.ListByStatus(ctx, workflow.StateApproved)
	if err != nil {
		s.logger.Error("Failed to list approved submissions", "error", err)
		return nil, fmt.Errorf("list approved submissions: %w", err)
	}

	content, err := s.exporter.Export(ctx, subs)
	if err != nil {
		s.logger.Error("Failed to render payout export", "error", err, "count", len(subs))
		return nil, fmt.Errorf("render payout export: %w", err)
	}

	total := decimal.Zero
	for _, sub := range subs {
		if sub.Total != nil {
			total = total.Add(*sub.Total)
		}
	}

	now := s.now().UTC()
	exportID := now.Format("20060102T150405Z")
	out := &PayoutExport{
		FileName:    fmt.Sprintf("payouts_%s%s", exportID, s.exporter.FileExtension()),
		ContentType: s.exporter.ContentType(),
		Content:     content,
		Count:       len(subs),
		Total:       total,
	}

	s.recorder.BestEffortRecord(ctx, principal.SubjectID, entity.ActionPayoutsExported,
		entity.AuditTarget{Collection: entity.CollectionPayouts, DocumentID: exportID},
		map[string]interface{}{
			"count": out.Count,
			"total": total.StringFixed(2),
		})

	s.logger.Info("Payout export generated", "count", out.Count, "total", total.StringFixed(2), "actor_id", principal.SubjectID)
	return out, nil
}
