package port

import (
	"context"

	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/rbac"
	"github.com/garyjia/expense-approval/internal/domain/workflow"
)

// SubmissionRepository defines persistence operations for Submission.
// Lookups of a missing id return (nil, nil).
type SubmissionRepository interface {
	Create(ctx context.Context, sub *entity.Submission) error
	GetByID(ctx context.Context, id string) (*entity.Submission, error)
	List(ctx context.Context, filter entity.SubmissionFilter) ([]*entity.Submission, error)

	// ListByStatus returns every submission in status from a single read
	ListByStatus(ctx context.Context, status workflow.State) ([]*entity.Submission, error)

	// CompareAndSwap persists sub only if the stored status still equals
	// expected. A lost race returns an error wrapping apperr.ErrConflict.
	CompareAndSwap(ctx context.Context, sub *entity.Submission, expected workflow.State) error
}

// RateConfigRepository defines persistence operations for RateConfig.
// Entries are append-only.
type RateConfigRepository interface {
	Create(ctx context.Context, cfg *entity.RateConfig) error
	ListAll(ctx context.Context) ([]entity.RateConfig, error)
}

// AuditRepository defines append-only persistence for AuditEntry
type AuditRepository interface {
	Append(ctx context.Context, entry *entity.AuditEntry) error
	List(ctx context.Context, filter entity.AuditFilter) ([]*entity.AuditEntry, error)
}

// ProfileRepository defines persistence operations for pay profiles
type ProfileRepository interface {
	Upsert(ctx context.Context, profile *entity.Profile) error
	GetProfile(ctx context.Context, subjectID string) (*entity.Profile, error)
}

// RoleRepository stores the role set of each subject. Unknown subjects
// have the empty set.
type RoleRepository interface {
	GetRoles(ctx context.Context, subjectID string) (rbac.RoleSet, error)
	SetRoles(ctx context.Context, assignment *entity.RoleAssignment) error
}

// TransactionManager defines transaction management
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}
