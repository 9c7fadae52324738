package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
)

// RateConfigRepository implements port.RateConfigRepository
type RateConfigRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewRateConfigRepository creates a new rate config repository
func NewRateConfigRepository(db *sql.DB, logger *zap.Logger) port.RateConfigRepository {
	return &RateConfigRepository{
		db:     db,
		logger: logger,
	}
}

// Create appends a rate entry and sets its ID
func (r *RateConfigRepository) Create(ctx context.Context, cfg *entity.RateConfig) error {
	query := `
		INSERT INTO rate_configs (
			kind, value, day_type, designation, effective_date, created_by, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	var dayType, designation sql.NullString
	if cfg.Condition != nil {
		dayType = sql.NullString{String: string(cfg.Condition.DayType), Valid: true}
		designation = sql.NullString{String: cfg.Condition.Designation, Valid: true}
	}

	result, err := sqlite.Executor(ctx, r.db).ExecContext(ctx, query,
		string(cfg.Kind),
		cfg.Value.String(),
		dayType,
		designation,
		cfg.EffectiveDate.UTC(),
		cfg.CreatedBy,
		cfg.CreatedAt.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to create rate config", zap.String("kind", string(cfg.Kind)), zap.Error(err))
		return fmt.Errorf("failed to create rate config: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	cfg.ID = id
	return nil
}

// ListAll returns every entry in insertion order
func (r *RateConfigRepository) ListAll(ctx context.Context) ([]entity.RateConfig, error) {
	query := `
		SELECT id, kind, value, day_type, designation, effective_date, created_by, created_at
		FROM rate_configs
		ORDER BY id
	`

	rows, err := sqlite.Executor(ctx, r.db).QueryContext(ctx, query)
	if err != nil {
		r.logger.Error("Failed to list rate configs", zap.Error(err))
		return nil, fmt.Errorf("failed to list rate configs: %w", err)
	}
	defer rows.Close()

	var configs []entity.RateConfig
	for rows.Next() {
		var cfg entity.RateConfig
		var kind string
		var value decimal.Decimal
		var dayType, designation sql.NullString

		err := rows.Scan(
			&cfg.ID,
			&kind,
			&value,
			&dayType,
			&designation,
			&cfg.EffectiveDate,
			&cfg.CreatedBy,
			&cfg.CreatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan rate config: %w", err)
		}

		cfg.Kind = entity.RateKind(kind)
		cfg.Value = value
		cfg.EffectiveDate = cfg.EffectiveDate.UTC()
		cfg.CreatedAt = cfg.CreatedAt.UTC()
		if dayType.Valid || designation.Valid {
			cfg.Condition = &entity.RateCondition{
				DayType:     entity.DayType(dayType.String),
				Designation: designation.String,
			}
		}

		configs = append(configs, cfg)
	}

	return configs, rows.Err()
}
