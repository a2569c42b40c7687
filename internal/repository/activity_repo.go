package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"ecoquest/internal/database"
	"ecoquest/internal/models"
)

// ActivityRepository handles the activity log feeding organization dashboards
type ActivityRepository struct {
	db database.DBTX
}

// NewActivityRepository creates a new activity repository
func NewActivityRepository(db *database.DB) *ActivityRepository {
	return &ActivityRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *ActivityRepository) WithTx(tx *database.Tx) *ActivityRepository {
	return &ActivityRepository{db: tx}
}

// LogActivity appends an entry to the activity log
func (r *ActivityRepository) LogActivity(ctx context.Context, entry *models.ActivityLog) error {
	var metadata interface{}
	if len(entry.Metadata) > 0 {
		encoded, err := encodeJSON(entry.Metadata)
		if err != nil {
			return fmt.Errorf("failed to encode activity metadata: %w", err)
		}
		metadata = encoded
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	query := `
		INSERT INTO activity_log (user_id, organization_code, activity_type, activity_message, metadata, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	id, err := r.db.ExecReturningID(ctx, query, entry.UserID, entry.OrganizationCode, entry.Type,
		entry.Message, metadata, entry.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to log activity: %w", err)
	}
	entry.ID = id
	return nil
}

// ListOrganizationActivity retrieves the newest entries of an organization's feed
func (r *ActivityRepository) ListOrganizationActivity(ctx context.Context, code string, limit int) ([]models.ActivityLog, error) {
	query := `
		SELECT id, user_id, organization_code, activity_type, activity_message, COALESCE(metadata, ''), created_at
		FROM activity_log
		WHERE organization_code = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`
	return r.list(ctx, query, code, limit)
}

// ListUserActivity retrieves the newest entries of a user
func (r *ActivityRepository) ListUserActivity(ctx context.Context, userID int64, limit int) ([]models.ActivityLog, error) {
	query := `
		SELECT id, user_id, organization_code, activity_type, activity_message, COALESCE(metadata, ''), created_at
		FROM activity_log
		WHERE user_id = ?
		ORDER BY created_at DESC, id DESC
		LIMIT ?
	`
	return r.list(ctx, query, userID, limit)
}

// ListAllActivity retrieves the whole log in insertion order
func (r *ActivityRepository) ListAllActivity(ctx context.Context) ([]models.ActivityLog, error) {
	query := `
		SELECT id, user_id, organization_code, activity_type, activity_message, COALESCE(metadata, ''), created_at
		FROM activity_log
		ORDER BY id
	`
	return r.list(ctx, query)
}

func (r *ActivityRepository) list(ctx context.Context, query string, args ...interface{}) ([]models.ActivityLog, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query activity: %w", err)
	}
	defer rows.Close()

	var entries []models.ActivityLog
	for rows.Next() {
		entry, err := scanActivity(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan activity: %w", err)
		}
		entries = append(entries, *entry)
	}
	return entries, rows.Err()
}

func scanActivity(rows *sql.Rows) (*models.ActivityLog, error) {
	entry := &models.ActivityLog{}
	var metadata string
	if err := rows.Scan(&entry.ID, &entry.UserID, &entry.OrganizationCode, &entry.Type, &entry.Message, &metadata, &entry.CreatedAt); err != nil {
		return nil, err
	}
	if metadata != "" {
		if err := json.Unmarshal([]byte(metadata), &entry.Metadata); err != nil {
			return nil, fmt.Errorf("invalid metadata for activity %d: %w", entry.ID, err)
		}
	}
	return entry, nil
}
