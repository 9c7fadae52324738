package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/garyjia/expense-approval/internal/application/dispatcher"
	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/apperr"
	"github.com/garyjia/expense-approval/internal/domain/approval"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/event"
	"github.com/garyjia/expense-approval/internal/domain/rbac"
	"github.com/garyjia/expense-approval/internal/domain/workflow"
)

// TransitionRequest asks to move a submission to a new status
type TransitionRequest struct {
	Target   workflow.State
	Reviewer rbac.Principal
	Remarks  string

	// ExpectedStatus, when set, is the status the caller last observed.
	// A mismatch is reported as a conflict before any guard runs.
	ExpectedStatus workflow.State
}

// SubmissionService manages claims and overtime requests
type SubmissionService interface {
	CreateClaim(ctx context.Context, principal rbac.Principal, input ClaimInput) (*entity.Submission, error)
	CreateOvertime(ctx context.Context, principal rbac.Principal, input OvertimeInput) (*entity.Submission, error)
	Get(ctx context.Context, principal rbac.Principal, id string) (*entity.Submission, error)
	List(ctx context.Context, principal rbac.Principal, filter entity.SubmissionFilter) ([]*entity.Submission, error)
	Transition(ctx context.Context, id string, req TransitionRequest) (*entity.Submission, error)
}

type submissionServiceImpl struct {
	submissionRepo port.SubmissionRepository
	machine        *approval.Machine
	recorder       AuditRecorder
	txManager      port.TransactionManager
	dispatcher     dispatcher.Dispatcher
	logger         Logger
	now            func() time.Time
}

// SubmissionOption configures the submission service
type SubmissionOption func(*submissionServiceImpl)

// WithDispatcher publishes committed changes as domain events
func WithDispatcher(d dispatcher.Dispatcher) SubmissionOption {
	return func(s *submissionServiceImpl) {
		s.dispatcher = d
	}
}

// WithSubmissionClock overrides the time source
func WithSubmissionClock(now func() time.Time) SubmissionOption {
	return func(s *submissionServiceImpl) {
		s.now = now
	}
}

// NewSubmissionService creates a new SubmissionService
func NewSubmissionService(
	submissionRepo port.SubmissionRepository,
	machine *approval.Machine,
	recorder AuditRecorder,
	txManager port.TransactionManager,
	logger Logger,
	opts ...SubmissionOption,
) SubmissionService {
	s := &submissionServiceImpl{
		submissionRepo: submissionRepo,
		machine:        machine,
		recorder:       recorder,
		txManager:      txManager,
		logger:         logger,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateClaim creates a claim in draft
func (s *submissionServiceImpl) CreateClaim(ctx context.Context, principal rbac.Principal, input ClaimInput) (*entity.Submission, error) {
	if err := authorize(principal, rbac.PermClaimsCreate); err != nil {
		return nil, err
	}
	if err := input.Validate(); err != nil {
		return nil, err
	}

	items := make([]entity.ExpenseItem, 0, len(input.Items))
	for _, it := range input.Items {
		items = append(items, entity.ExpenseItem{
			Category:    it.Category,
			Description: strings.TrimSpace(it.Description),
			Amount:      it.Amount,
		})
	}

	now := s.now().UTC()
	sub := &entity.Submission{
		ID:      uuid.NewString(),
		Kind:    entity.KindClaim,
		OwnerID: principal.SubjectID,
		Status:  entity.KindClaim.InitialState(),
		Claim: &entity.ClaimDetails{
			ClaimDate:         dateOnly(input.ClaimDate),
			Description:       strings.TrimSpace(input.Description),
			CalculatedMileage: input.CalculatedMileage,
			Items:             items,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.create(ctx, principal, sub, entity.ActionClaimCreate, map[string]interface{}{
		"claim_date": sub.Claim.ClaimDate.Format(time.DateOnly),
		"mileage":    sub.Claim.CalculatedMileage.String(),
		"item_count": len(items),
	}); err != nil {
		return nil, err
	}
	return sub, nil
}

// CreateOvertime creates an overtime request, which starts out submitted
func (s *submissionServiceImpl) CreateOvertime(ctx context.Context, principal rbac.Principal, input OvertimeInput) (*entity.Submission, error) {
	if err := authorize(principal, rbac.PermOvertimeCreate); err != nil {
		return nil, err
	}
	if err := input.Validate(); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	sub := &entity.Submission{
		ID:          uuid.NewString(),
		Kind:        entity.KindOvertime,
		OwnerID:     principal.SubjectID,
		Status:      entity.KindOvertime.InitialState(),
		SubmittedAt: &now,
		Overtime: &entity.OvertimeDetails{
			StartTime: input.StartTime.UTC(),
			EndTime:   input.EndTime.UTC(),
			Reason:    strings.TrimSpace(input.Reason),
			DayType:   input.DayType,
			WorkDate:  dateOnly(input.StartTime),
		},
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.create(ctx, principal, sub, entity.ActionOvertimeCreate, map[string]interface{}{
		"day_type":  string(sub.Overtime.DayType),
		"work_date": sub.Overtime.WorkDate.Format(time.DateOnly),
		"hours":     sub.Overtime.Hours().String(),
	}); err != nil {
		return nil, err
	}
	return sub, nil
}

func (s *submissionServiceImpl) create(ctx context.Context, principal rbac.Principal, sub *entity.Submission, action string, details map[string]interface{}) error {
	err := s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.submissionRepo.Create(txCtx, sub); err != nil {
			return fmt.Errorf("create %s: %w", sub.Kind, err)
		}
		target := entity.AuditTarget{Collection: sub.Collection(), DocumentID: sub.ID}
		if _, err := s.recorder.MustRecord(txCtx, principal.SubjectID, action, target, details); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to create submission", "error", err, "kind", sub.Kind, "owner_id", sub.OwnerID)
		return err
	}

	s.logger.Info("Submission created", "id", sub.ID, "kind", sub.Kind, "status", sub.Status)
	s.publish(ctx, event.NewEvent(event.TypeSubmissionCreated, sub.Collection(), sub.ID, principal.SubjectID, map[string]interface{}{
		"status": sub.Status.String(),
	}))
	return nil
}

// Get returns a submission visible to the principal
func (s *submissionServiceImpl) Get(ctx context.Context, principal rbac.Principal, id string) (*entity.Submission, error) {
	if !principal.IsAuthenticated() {
		return nil, apperr.ErrUnauthenticated
	}

	sub, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if sub.OwnerID != principal.SubjectID {
		if err := authorize(principal, rbac.PermSubmissionsRead); err != nil {
			return nil, err
		}
	}
	return sub, nil
}

// List returns submissions matching filter. Principals without
// submissions:read_all only see their own.
func (s *submissionServiceImpl) List(ctx context.Context, principal rbac.Principal, filter entity.SubmissionFilter) ([]*entity.Submission, error) {
	if !principal.IsAuthenticated() {
		return nil, apperr.ErrUnauthenticated
	}
	if filter.Kind != "" && !filter.Kind.IsValid() {
		return nil, fmt.Errorf("%w: unknown kind %q", apperr.ErrValidationFailed, filter.Kind)
	}
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, fmt.Errorf("%w: unknown status %q", apperr.ErrValidationFailed, filter.Status)
	}
	if !principal.Can(rbac.PermSubmissionsRead) {
		filter.OwnerID = principal.SubjectID
	}
	filter.Limit, filter.Offset = normalizePage(filter.Limit, filter.Offset)

	subs, err := s.submissionRepo.List(ctx, filter)
	if err != nil {
		s.logger.Error("Failed to list submissions", "error", err)
		return nil, fmt.Errorf("list submissions: %w", err)
	}
	return subs, nil
}

// Transition applies a status change. The write is a compare-and-swap on
// the status that was read, and the audit entry commits with it.
func (s *submissionServiceImpl) Transition(ctx context.Context, id string, req TransitionRequest) (*entity.Submission, error) {
	if !req.Reviewer.IsAuthenticated() {
		return nil, apperr.ErrUnauthenticated
	}

	sub, err := s.load(ctx, id)
	if err != nil {
		return nil, err
	}
	if req.ExpectedStatus != "" && req.ExpectedStatus != sub.Status {
		return nil, fmt.Errorf("%w: submission %s is %s, expected %s", apperr.ErrConflict, id, sub.Status, req.ExpectedStatus)
	}

	out, err := s.machine.Transition(ctx, sub, approval.Request{
		Target:   req.Target,
		Reviewer: req.Reviewer,
		Remarks:  req.Remarks,
	})
	if err != nil {
		s.logger.Info("Transition rejected",
			"id", id,
			"from", sub.Status,
			"to", req.Target,
			"reviewer_id", req.Reviewer.SubjectID,
			"kind", apperr.KindOf(err),
		)
		return nil, err
	}

	details := transitionDetails(out)
	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		if err := s.submissionRepo.CompareAndSwap(txCtx, out.Submission, out.From); err != nil {
			return err
		}
		target := entity.AuditTarget{Collection: out.Submission.Collection(), DocumentID: out.Submission.ID}
		action := entity.TransitionAction(out.Submission.Kind, out.Trigger.String())
		if _, err := s.recorder.MustRecord(txCtx, req.Reviewer.SubjectID, action, target, details); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		s.logger.Error("Failed to apply transition",
			"error", err,
			"id", id,
			"from", out.From,
			"to", out.To,
		)
		return nil, err
	}

	s.logger.Info("Submission transitioned",
		"id", id,
		"from", out.From,
		"to", out.To,
		"reviewer_id", req.Reviewer.SubjectID,
	)
	s.publish(ctx, event.NewEvent(event.TypeStatusChanged, out.Submission.Collection(), id, req.Reviewer.SubjectID, details))

	return out.Submission, nil
}

func (s *submissionServiceImpl) load(ctx context.Context, id string) (*entity.Submission, error) {
	sub, err := s.submissionRepo.GetByID(ctx, id)
	if err != nil {
		s.logger.Error("Failed to get submission", "error", err, "id", id)
		return nil, fmt.Errorf("get submission: %w", err)
	}
	if sub == nil {
		return nil, fmt.Errorf("%w: submission %s", apperr.ErrNotFound, id)
	}
	return sub, nil
}

func (s *submissionServiceImpl) publish(ctx context.Context, evt *event.Event) {
	if s.dispatcher == nil {
		return
	}
	s.dispatcher.DispatchAsync(ctx, evt)
}

func transitionDetails(out *approval.Outcome) map[string]interface{} {
	details := map[string]interface{}{
		"from": out.From.String(),
		"to":   out.To.String(),
	}
	if out.Submission.Remarks != "" && (out.To == workflow.StateApproved || out.To == workflow.StateRejected) {
		details["remarks"] = out.Submission.Remarks
	}
	if out.Quote != nil {
		for k, v := range out.Quote.Details() {
			details[k] = v
		}
	}
	if out.To == workflow.StatePaid && out.Submission.Total != nil {
		details["amount"] = out.Submission.Total.StringFixed(2)
	}
	return details
}
