package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/garyjia/expense-approval/internal/application/port"
	"github.com/garyjia/expense-approval/internal/domain/entity"
	"github.com/garyjia/expense-approval/internal/infrastructure/persistence/sqlite"
)

// AuditRepository implements port.AuditRepository. Entries are never
// updated or deleted.
type AuditRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewAuditRepository creates a new audit repository
func NewAuditRepository(db *sql.DB, logger *zap.Logger) port.AuditRepository {
	return &AuditRepository{
		db:     db,
		logger: logger,
	}
}

// Append stores an entry
func (r *AuditRepository) Append(ctx context.Context, entry *entity.AuditEntry) error {
	var details sql.NullString
	if len(entry.Details) > 0 {
		b, err := json.Marshal(entry.Details)
		if err != nil {
			return fmt.Errorf("failed to marshal audit details: %w", err)
		}
		details = sql.NullString{String: string(b), Valid: true}
	}

	query := `
		INSERT INTO audit_entries (
			id, actor_id, action, collection_name, document_id, details, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	_, err := sqlite.Executor(ctx, r.db).ExecContext(ctx, query,
		entry.ID,
		entry.ActorID,
		entry.Action,
		entry.Target.Collection,
		entry.Target.DocumentID,
		details,
		entry.Timestamp.UTC(),
	)
	if err != nil {
		r.logger.Error("Failed to append audit entry", zap.String("action", entry.Action), zap.Error(err))
		return fmt.Errorf("failed to append audit entry: %w", err)
	}

	return nil
}

// List returns entries matching filter in the order they were written
func (r *AuditRepository) List(ctx context.Context, filter entity.AuditFilter) ([]*entity.AuditEntry, error) {
	var where []string
	var args []interface{}

	if filter.ActorID != "" {
		where = append(where, "actor_id = ?")
		args = append(args, filter.ActorID)
	}
	if filter.Collection != "" {
		where = append(where, "collection_name = ?")
		args = append(args, filter.Collection)
	}
	if filter.DocumentID != "" {
		where = append(where, "document_id = ?")
		args = append(args, filter.DocumentID)
	}

	query := `
		SELECT id, actor_id, action, collection_name, document_id, details, timestamp
		FROM audit_entries
	`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY timestamp, rowid`
	if filter.Limit > 0 {
		query += ` LIMIT ? OFFSET ?`
		args = append(args, filter.Limit, filter.Offset)
	}

	rows, err := sqlite.Executor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to list audit entries", zap.Error(err))
		return nil, fmt.Errorf("failed to list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []*entity.AuditEntry
	for rows.Next() {
		var entry entity.AuditEntry
		var details sql.NullString

		err := rows.Scan(
			&entry.ID,
			&entry.ActorID,
			&entry.Action,
			&entry.Target.Collection,
			&entry.Target.DocumentID,
			&details,
			&entry.Timestamp,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan audit entry: %w", err)
		}

		if details.Valid && details.String != "" {
			if err := json.Unmarshal([]byte(details.String), &entry.Details); err != nil {
				return nil, fmt.Errorf("failed to decode audit details: %w", err)
			}
		}
		entry.Timestamp = entry.Timestamp.UTC()

		entries = append(entries, &entry)
	}

	return entries, rows.Err()
}
