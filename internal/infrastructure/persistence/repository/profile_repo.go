package repository

import (
	"context"
	"database/sql"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
)

// ProfileRepository implements port.ProfileRepository
type ProfileRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewProfileRepository creates a new profile repository
func NewProfileRepository(db *sql.DB, logger *zap.Logger) port.ProfileRepository {
	return &ProfileRepository{
		db:     db,
		logger: logger,
	}
}

// Upsert inserts or replaces the profile of a subject
func (r *ProfileRepository) Upsert(ctx context.Context, profile *entity.Profile) error {
	query := `
		INSERT INTO profiles (subject_id, hourly_rate, designation, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(subject_id) DO UPDATE SET
			hourly_rate = excluded.hourly_rate,
			designation = excluded.designation,
			updated_at = excluded.updated_at
	`

	_, err := sqlite.Executor(ctx, r.db).ExecContext(ctx, query,
		profile.SubjectID,
		profile.HourlyRate.String(),
		profile.Designation,
		profile.UpdatedAt.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to upsert profile", zap.String("subject_id", profile.SubjectID), zap.Error(err))
		return fmt.Errorf("failed to upsert profile: %w", err)
	}

	return nil
}

// GetProfile returns the profile of a subject, or nil when none is stored
func (r *ProfileRepository) GetProfile(ctx context.Context, subjectID string) (*entity.Profile, error) {
	query := `
		SELECT subject_id, hourly_rate, designation, updated_at
		FROM profiles
		WHERE subject_id = ?
	`

	var profile entity.Profile
	err := sqlite.Executor(ctx, r.db).QueryRowContext(ctx, query, subjectID).Scan(
		&profile.SubjectID,
		&profile.HourlyRate,
		&profile.Designation,
		&profile.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get profile", zap.String("subject_id", subjectID), zap.Error(err))
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}

	profile.UpdatedAt = profile.UpdatedAt.UTC()
	return &profile, nil
}
