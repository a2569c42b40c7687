package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"ecoquest/internal/database"
	"ecoquest/internal/models"
)

// BadgeRepository handles the badge catalog and earned badges
type BadgeRepository struct {
	db database.DBTX
}

// NewBadgeRepository creates a new badge repository
func NewBadgeRepository(db *database.DB) *BadgeRepository {
	return &BadgeRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *BadgeRepository) WithTx(tx *database.Tx) *BadgeRepository {
	return &BadgeRepository{db: tx}
}

const badgeColumns = `b.id, b.name, b.description, b.image_url, b.category, b.lesson_id, COALESCE(b.requirements, ''), b.created_at`

func scanBadge(row rowScanner, extra ...interface{}) (*models.Badge, error) {
	b := &models.Badge{}
	var lessonID sql.NullInt64
	var requirements string
	dest := []interface{}{&b.ID, &b.Name, &b.Description, &b.ImageURL, &b.Category, &lessonID, &requirements, &b.CreatedAt}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	b.LessonID = int64Ptr(lessonID)
	req, err := models.ParseBadgeRequirement(requirements)
	if err != nil {
		return nil, fmt.Errorf("invalid requirements for badge %d: %w", b.ID, err)
	}
	b.Requirements = req
	return b, nil
}

// CreateBadge inserts a catalog badge
func (r *BadgeRepository) CreateBadge(ctx context.Context, b *models.Badge) error {
	var requirements interface{}
	if !b.Requirements.IsZero() {
		encoded, err := encodeJSON(b.Requirements)
		if err != nil {
			return fmt.Errorf("failed to encode badge requirements: %w", err)
		}
		requirements = encoded
	}
	now := time.Now().UTC()
	query := `
		INSERT INTO badges (name, description, image_url, category, lesson_id, requirements, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	id, err := r.db.ExecReturningID(ctx, query, b.Name, b.Description, b.ImageURL, b.Category,
		nullInt64(b.LessonID), requirements, now, now)
	if err != nil {
		return fmt.Errorf("failed to create badge: %w", err)
	}
	b.ID = id
	b.CreatedAt = now
	return nil
}

// ListBadges retrieves the badge catalog
func (r *BadgeRepository) ListBadges(ctx context.Context) ([]models.Badge, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+badgeColumns+` FROM badges b ORDER BY b.id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query badges: %w", err)
	}
	defer rows.Close()

	var badges []models.Badge
	for rows.Next() {
		b, err := scanBadge(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan badge: %w", err)
		}
		badges = append(badges, *b)
	}
	return badges, rows.Err()
}

// ListUserBadges retrieves the badges a user has earned, newest first
func (r *BadgeRepository) ListUserBadges(ctx context.Context, userID int64) ([]models.UserBadge, error) {
	query := `SELECT ` + badgeColumns + `, ub.user_id, ub.earned_at
		FROM user_badges ub
		JOIN badges b ON b.id = ub.badge_id
		WHERE ub.user_id = ?
		ORDER BY ub.earned_at DESC, b.id`
	return r.listUserBadges(ctx, query, userID)
}

// ListAllUserBadges retrieves every earned badge
func (r *BadgeRepository) ListAllUserBadges(ctx context.Context) ([]models.UserBadge, error) {
	query := `SELECT ` + badgeColumns + `, ub.user_id, ub.earned_at
		FROM user_badges ub
		JOIN badges b ON b.id = ub.badge_id
		ORDER BY ub.id`
	return r.listUserBadges(ctx, query)
}

func (r *BadgeRepository) listUserBadges(ctx context.Context, query string, args ...interface{}) ([]models.UserBadge, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query user badges: %w", err)
	}
	defer rows.Close()

	var earned []models.UserBadge
	for rows.Next() {
		var ub models.UserBadge
		b, err := scanBadge(rows, &ub.UserID, &ub.EarnedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user badge: %w", err)
		}
		ub.Badge = *b
		earned = append(earned, ub)
	}
	return earned, rows.Err()
}

// CountUserBadges counts the badges a user has earned
func (r *BadgeRepository) CountUserBadges(ctx context.Context, userID int64) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM user_badges WHERE user_id = ?", userID).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count user badges: %w", err)
	}
	return count, nil
}

// AwardBadge records that a user earned a badge. Awarding an already earned badge is a no-op
// and reports false.
func (r *BadgeRepository) AwardBadge(ctx context.Context, userID, badgeID int64, earnedAt time.Time) (bool, error) {
	var count int
	check := "SELECT COUNT(*) FROM user_badges WHERE user_id = ? AND badge_id = ?"
	if err := r.db.QueryRowContext(ctx, check, userID, badgeID).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check user badge: %w", err)
	}
	if count > 0 {
		return false, nil
	}

	query := "INSERT INTO user_badges (user_id, badge_id, earned_at) VALUES (?, ?, ?)"
	if _, err := r.db.ExecContext(ctx, query, userID, badgeID, earnedAt.UTC()); err != nil {
		return false, fmt.Errorf("failed to award badge: %w", err)
	}
	return true, nil
}
