package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/domain/rbac"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
)

// RoleRepository implements port.RoleRepository. Role sets are stored as
// comma-separated role names.
type RoleRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewRoleRepository creates a new role repository
func NewRoleRepository(db *sql.DB, logger *zap.Logger) port.RoleRepository {
	return &RoleRepository{
		db:     db,
		logger: logger,
	}
}

// GetRoles returns the stored role set; unknown subjects have none
func (r *RoleRepository) GetRoles(ctx context.Context, subjectID string) (rbac.RoleSet, error) {
	var stored string
	err := sqlite.Executor(ctx, r.db).QueryRowContext(ctx,
		`SELECT roles FROM user_roles WHERE subject_id = ?`, subjectID,
	).Scan(&stored)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		r.logger.Error("Failed to get roles", zap.String("subject_id", subjectID), zap.Error(err))
		return 0, fmt.Errorf("failed to get roles: %w", err)
	}

	if stored == "" {
		return 0, nil
	}
	roles, err := rbac.ParseRoleSet(strings.Split(stored, ","))
	if err != nil {
		return 0, fmt.Errorf("stored roles for %s: %w", subjectID, err)
	}
	return roles, nil
}

// SetRoles replaces the role set of a subject
func (r *RoleRepository) SetRoles(ctx context.Context, assignment *entity.RoleAssignment) error {
	query := `
		INSERT INTO user_roles (subject_id, roles, updated_by, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(subject_id) DO UPDATE SET
			roles = excluded.roles,
			updated_by = excluded.updated_by,
			updated_at = excluded.updated_at
	`

	_, err := sqlite.Executor(ctx, r.db).ExecContext(ctx, query,
		assignment.SubjectID,
		assignment.Roles.String(),
		assignment.UpdatedBy,
		assignment.UpdatedAt.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to set roles", zap.String("subject_id", assignment.SubjectID), zap.Error(err))
		return fmt.Errorf("failed to set roles: %w", err)
	}

	return nil
}
