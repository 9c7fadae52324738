package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/apperr"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/workflow"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
)

const submissionColumns = `
	id, kind, owner_id, status, reviewer_id, reviewed_at, remarks, total,
	submitted_at, paid_by, paid_at, details, created_at, updated_at
`

// SubmissionRepository implements port.SubmissionRepository
type SubmissionRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewSubmissionRepository creates a new submission repository
func NewSubmissionRepository(db *sql.DB, logger *zap.Logger) port.SubmissionRepository {
	return &SubmissionRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts a new submission
func (r *SubmissionRepository) Create(ctx context.Context, sub *entity.Submission) error {
	details, err := marshalDetails(sub)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO submissions (
			id, kind, owner_id, status, reviewer_id, reviewed_at, remarks, total,
			submitted_at, paid_by, paid_at, details, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = sqlite.Executor(ctx, r.db).ExecContext(ctx, query,
		sub.ID,
		string(sub.Kind),
		sub.OwnerID,
		string(sub.Status),
		sub.ReviewerID,
		timeArg(sub.ReviewedAt),
		sub.Remarks,
		decimalArg(sub.Total),
		timeArg(sub.SubmittedAt),
		sub.PaidBy,
		timeArg(sub.PaidAt),
		details,
		sub.CreatedAt.UTC(),
		sub.UpdatedAt.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to create submission", zap.String("id", sub.ID), zap.Error(err))
		return fmt.Errorf("failed to create submission: %w", err)
	}

	return nil
}

// GetByID retrieves a submission, or nil when it does not exist
func (r *SubmissionRepository) GetByID(ctx context.Context, id string) (*entity.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE id = ?`

	sub, err := scanSubmission(sqlite.Executor(ctx, r.db).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get submission", zap.String("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get submission: %w", err)
	}

	return sub, nil
}

// List retrieves submissions matching filter, newest first
func (r *SubmissionRepository) List(ctx context.Context, filter entity.SubmissionFilter) ([]*entity.Submission, error) {
	var where []string
	var args []interface{}

	if filter.OwnerID != "" {
		where = append(where, "owner_id = ?")
		args = append(args, filter.OwnerID)
	}
	if filter.Kind != "" {
		where = append(where, "kind = ?")
		args = append(args, string(filter.Kind))
	}
	if filter.Status != "" {
		where = append(where, "status = ?")
		args = append(args, string(filter.Status))
	}

	query := `SELECT ` + submissionColumns + ` FROM submissions`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC, id LIMIT ? OFFSET ?`
	args = append(args, filter.Limit, filter.Offset)

	return r.queryAll(ctx, query, args...)
}

// ListByStatus retrieves every submission in status with one query,
// oldest first
func (r *SubmissionRepository) ListByStatus(ctx context.Context, status workflow.State) ([]*entity.Submission, error) {
	query := `SELECT ` + submissionColumns + ` FROM submissions WHERE status = ? ORDER BY created_at, id`
	return r.queryAll(ctx, query, string(status))
}

func (r *SubmissionRepository) queryAll(ctx context.Context, query string, args ...interface{}) ([]*entity.Submission, error) {
	rows, err := sqlite.Executor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list submissions", zap.Error(err))
		return nil, fmt.Errorf("failed to list submissions: %w", err)
	}
	defer rows.Close()

	var subs []*entity.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan submission: %w", err)
		}
		subs = append(subs, sub)
	}

	return subs, rows.Err()
}

// CompareAndSwap writes sub only while the stored status equals expected
func (r *SubmissionRepository) CompareAndSwap(ctx context.Context, sub *entity.Submission, expected workflow.State) error {
	query := `
		UPDATE submissions
		SET status = ?, reviewer_id = ?, reviewed_at = ?, remarks = ?, total = ?,
			submitted_at = ?, paid_by = ?, paid_at = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`

	result, err := sqlite.Executor(ctx, r.db).ExecContext(ctx, query,
		string(sub.Status),
		sub.ReviewerID,
		timeArg(sub.ReviewedAt),
		sub.Remarks,
		decimalArg(sub.Total),
		timeArg(sub.SubmittedAt),
		sub.PaidBy,
		timeArg(sub.PaidAt),
		sub.UpdatedAt.UTC(),
		sub.ID,
		string(expected),
	)
	if err != nil {
		r.logger.Error("Failed to update submission", zap.String("id", sub.ID), zap.Error(err))
		return fmt.Errorf("failed to update submission: %w", err)
	}

	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%w: submission %s is no longer %s", apperr.ErrConflict, sub.ID, expected)
	}

	return nil
}

func marshalDetails(sub *entity.Submission) (string, error) {
	var payload interface{}
	switch sub.Kind {
	case entity.KindClaim:
		payload = sub.Claim
	case entity.KindOvertime:
		payload = sub.Overtime
	default:
		return "", fmt.Errorf("unknown submission kind %q", sub.Kind)
	}

	b, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal %s details: %w", sub.Kind, err)
	}
	return string(b), nil
}

func scanSubmission(row rowScanner) (*entity.Submission, error) {
	var sub entity.Submission
	var kind, status, details string
	var reviewedAt, submittedAt, paidAt sql.NullTime
	var total decimal.NullDecimal

	err := row.Scan(
		&sub.ID,
		&kind,
		&sub.OwnerID,
		&status,
		&sub.ReviewerID,
		&reviewedAt,
		&sub.Remarks,
		&total,
		&submittedAt,
		&sub.PaidBy,
		&paidAt,
		&details,
		&sub.CreatedAt,
		&sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	sub.Kind = entity.SubmissionKind(kind)
	sub.Status = workflow.State(status)
	sub.ReviewedAt = nullTimePtr(reviewedAt)
	sub.SubmittedAt = nullTimePtr(submittedAt)
	sub.PaidAt = nullTimePtr(paidAt)
	sub.Total = nullDecimalPtr(total)
	sub.CreatedAt = sub.CreatedAt.UTC()
	sub.UpdatedAt = sub.UpdatedAt.UTC()

	switch sub.Kind {
	case entity.KindClaim:
		sub.Claim = &entity.ClaimDetails{}
		err = json.Unmarshal([]byte(details), sub.Claim)
	case entity.KindOvertime:
		sub.Overtime = &entity.OvertimeDetails{}
		err = json.Unmarshal([]byte(details), sub.Overtime)
	default:
		err = fmt.Errorf("unknown submission kind %q", kind)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to decode %s details: %w", kind, err)
	}

	return &sub, nil
}
