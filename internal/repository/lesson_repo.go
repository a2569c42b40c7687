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

// LessonRepository handles lessons, lesson progress and video resume state
type LessonRepository struct {
	db database.DBTX
}

// NewLessonRepository creates a new lesson repository
func NewLessonRepository(db *database.DB) *LessonRepository {
	return &LessonRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *LessonRepository) WithTx(tx *database.Tx) *LessonRepository {
	return &LessonRepository{db: tx}
}

const lessonColumns = `id, slug, title, description, category, difficulty, duration_minutes, order_index,
	is_published, COALESCE(thumbnail_url, ''), content, created_at, updated_at`

func scanLesson(row rowScanner) (*models.Lesson, error) {
	lesson := &models.Lesson{}
	var content string
	err := row.Scan(
		&lesson.ID,
		&lesson.Slug,
		&lesson.Title,
		&lesson.Description,
		&lesson.Category,
		&lesson.Difficulty,
		&lesson.DurationMinutes,
		&lesson.OrderIndex,
		&lesson.IsPublished,
		&lesson.ThumbnailURL,
		&content,
		&lesson.CreatedAt,
		&lesson.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	lesson.Content, err = models.ParseLessonContent(content)
	if err != nil {
		return nil, fmt.Errorf("invalid content for lesson %d: %w", lesson.ID, err)
	}
	return lesson, nil
}

// CreateLesson inserts a catalog lesson
func (r *LessonRepository) CreateLesson(ctx context.Context, lesson *models.Lesson) error {
	content, err := json.Marshal(lesson.Content)
	if err != nil {
		return fmt.Errorf("failed to encode lesson content: %w", err)
	}
	now := time.Now().UTC()
	query := `
		INSERT INTO lessons (
			slug, title, description, category, difficulty, duration_minutes, order_index,
			is_published, thumbnail_url, content, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	id, err := r.db.ExecReturningID(ctx, query,
		lesson.Slug, lesson.Title, lesson.Description, lesson.Category, lesson.Difficulty,
		lesson.DurationMinutes, lesson.OrderIndex, lesson.IsPublished, nullString(lesson.ThumbnailURL),
		string(content), now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to create lesson: %w", err)
	}
	lesson.ID = id
	lesson.CreatedAt = now
	lesson.UpdatedAt = now
	return nil
}

// ListLessons retrieves lessons in catalog order; unpublished lessons are included only when asked
func (r *LessonRepository) ListLessons(ctx context.Context, includeUnpublished bool) ([]models.Lesson, error) {
	query := `SELECT ` + lessonColumns + ` FROM lessons`
	var args []interface{}
	if !includeUnpublished {
		query += ` WHERE is_published = ?`
		args = append(args, true)
	}
	query += ` ORDER BY order_index, id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query lessons: %w", err)
	}
	defer rows.Close()

	var lessons []models.Lesson
	for rows.Next() {
		lesson, err := scanLesson(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan lesson: %w", err)
		}
		lessons = append(lessons, *lesson)
	}
	return lessons, rows.Err()
}

// GetLesson retrieves a lesson by ID
func (r *LessonRepository) GetLesson(ctx context.Context, id int64) (*models.Lesson, error) {
	lesson, err := scanLesson(r.db.QueryRowContext(ctx, `SELECT `+lessonColumns+` FROM lessons WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get lesson: %w", err)
	}
	return lesson, nil
}

// GetLessonBySlug retrieves a lesson by slug
func (r *LessonRepository) GetLessonBySlug(ctx context.Context, slug string) (*models.Lesson, error) {
	lesson, err := scanLesson(r.db.QueryRowContext(ctx, `SELECT `+lessonColumns+` FROM lessons WHERE slug = ?`, slug))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get lesson by slug: %w", err)
	}
	return lesson, nil
}

const progressColumns = `id, user_id, lesson_id, progress_percentage, is_completed, last_accessed_at,
	completed_at, created_at, updated_at`

func scanProgress(row rowScanner) (*models.LessonProgress, error) {
	p := &models.LessonProgress{}
	var lastAccessed, completedAt sql.NullTime
	err := row.Scan(
		&p.ID,
		&p.UserID,
		&p.LessonID,
		&p.ProgressPercentage,
		&p.IsCompleted,
		&lastAccessed,
		&completedAt,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if lastAccessed.Valid {
		p.LastAccessedAt = lastAccessed.Time
	}
	p.CompletedAt = timePtr(completedAt)
	return p, nil
}

// GetProgress retrieves a user's progress in a lesson
func (r *LessonRepository) GetProgress(ctx context.Context, userID, lessonID int64) (*models.LessonProgress, error) {
	query := `SELECT ` + progressColumns + ` FROM lesson_progress WHERE user_id = ? AND lesson_id = ?`
	p, err := scanProgress(r.db.QueryRowContext(ctx, query, userID, lessonID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get lesson progress: %w", err)
	}
	return p, nil
}

// ListUserProgress retrieves every progress row of a user
func (r *LessonRepository) ListUserProgress(ctx context.Context, userID int64) ([]models.LessonProgress, error) {
	return r.listProgress(ctx, `SELECT `+progressColumns+` FROM lesson_progress WHERE user_id = ? ORDER BY lesson_id`, userID)
}

// ListAllProgress retrieves every progress row
func (r *LessonRepository) ListAllProgress(ctx context.Context) ([]models.LessonProgress, error) {
	return r.listProgress(ctx, `SELECT `+progressColumns+` FROM lesson_progress ORDER BY id`)
}

func (r *LessonRepository) listProgress(ctx context.Context, query string, args ...interface{}) ([]models.LessonProgress, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query lesson progress: %w", err)
	}
	defer rows.Close()

	var progress []models.LessonProgress
	for rows.Next() {
		p, err := scanProgress(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan lesson progress: %w", err)
		}
		progress = append(progress, *p)
	}
	return progress, rows.Err()
}

// CreateProgress inserts a progress row at 0%
func (r *LessonRepository) CreateProgress(ctx context.Context, userID, lessonID int64) (*models.LessonProgress, error) {
	now := time.Now().UTC()
	query := `
		INSERT INTO lesson_progress (
			user_id, lesson_id, progress_percentage, is_completed, last_accessed_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	id, err := r.db.ExecReturningID(ctx, query, userID, lessonID, 0, false, now, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create lesson progress: %w", err)
	}
	return &models.LessonProgress{
		ID:             id,
		UserID:         userID,
		LessonID:       lessonID,
		LastAccessedAt: now,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// ImportProgress inserts a progress row as-is
func (r *LessonRepository) ImportProgress(ctx context.Context, p *models.LessonProgress) error {
	query := `
		INSERT INTO lesson_progress (
			user_id, lesson_id, progress_percentage, is_completed, last_accessed_at, completed_at,
			created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`
	var completedAt interface{}
	if p.CompletedAt != nil {
		completedAt = p.CompletedAt.UTC()
	}
	_, err := r.db.ExecContext(ctx, query, p.UserID, p.LessonID, p.ProgressPercentage, p.IsCompleted,
		p.LastAccessedAt.UTC(), completedAt, p.CreatedAt.UTC(), p.UpdatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to import lesson progress: %w", err)
	}
	return nil
}

// TouchProgress updates last_accessed_at
func (r *LessonRepository) TouchProgress(ctx context.Context, userID, lessonID int64) error {
	now := time.Now().UTC()
	query := "UPDATE lesson_progress SET last_accessed_at = ?, updated_at = ? WHERE user_id = ? AND lesson_id = ?"
	if _, err := r.db.ExecContext(ctx, query, now, now, userID, lessonID); err != nil {
		return fmt.Errorf("failed to touch lesson progress: %w", err)
	}
	return nil
}

// RaiseProgress moves an incomplete lesson's percentage up to percentage.
// It never lowers the stored value and reports whether a row changed.
func (r *LessonRepository) RaiseProgress(ctx context.Context, userID, lessonID int64, percentage int) (bool, error) {
	if percentage >= models.ProgressCompleted {
		return false, fmt.Errorf("failed to raise lesson progress: use MarkCompleted for %d%%", percentage)
	}
	now := time.Now().UTC()
	query := `
		UPDATE lesson_progress
		SET progress_percentage = ?, last_accessed_at = ?, updated_at = ?
		WHERE user_id = ? AND lesson_id = ? AND is_completed = ? AND progress_percentage < ?
	`
	result, err := r.db.ExecContext(ctx, query, percentage, now, now, userID, lessonID, false, percentage)
	if err != nil {
		return false, fmt.Errorf("failed to raise lesson progress: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read lesson progress update: %w", err)
	}
	return n > 0, nil
}

// MarkCompleted sets the lesson to 100% and reports whether this call completed it
func (r *LessonRepository) MarkCompleted(ctx context.Context, userID, lessonID int64) (bool, error) {
	now := time.Now().UTC()
	query := `
		UPDATE lesson_progress
		SET progress_percentage = ?, is_completed = ?, completed_at = ?, last_accessed_at = ?, updated_at = ?
		WHERE user_id = ? AND lesson_id = ? AND is_completed = ?
	`
	result, err := r.db.ExecContext(ctx, query, models.ProgressCompleted, true, now, now, now, userID, lessonID, false)
	if err != nil {
		return false, fmt.Errorf("failed to complete lesson: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read lesson completion: %w", err)
	}
	return n > 0, nil
}

// GetVideo retrieves the resume state of a user's lesson video
func (r *LessonRepository) GetVideo(ctx context.Context, userID, lessonID int64) (*models.LessonVideo, error) {
	query := `
		SELECT user_id, lesson_id, video_position, duration, last_watched_at
		FROM lesson_videos
		WHERE user_id = ? AND lesson_id = ?
	`
	v := &models.LessonVideo{}
	var lastWatched sql.NullTime
	err := r.db.QueryRowContext(ctx, query, userID, lessonID).Scan(&v.UserID, &v.LessonID, &v.VideoPosition, &v.Duration, &lastWatched)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get lesson video: %w", err)
	}
	v.LastWatchedAt = timePtr(lastWatched)
	return v, nil
}

// SaveVideo stores the resume position, creating the row on first save
func (r *LessonRepository) SaveVideo(ctx context.Context, userID, lessonID int64, position, duration float64) error {
	now := time.Now().UTC()
	update := `
		UPDATE lesson_videos
		SET video_position = ?, duration = ?, last_watched_at = ?, updated_at = ?
		WHERE user_id = ? AND lesson_id = ?
	`
	result, err := r.db.ExecContext(ctx, update, position, duration, now, now, userID, lessonID)
	if err != nil {
		return fmt.Errorf("failed to save lesson video: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n > 0 {
		return nil
	}

	insert := `
		INSERT INTO lesson_videos (user_id, lesson_id, video_position, duration, last_watched_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	if _, err := r.db.ExecContext(ctx, insert, userID, lessonID, position, duration, now, now, now); err != nil {
		return fmt.Errorf("failed to save lesson video: %w", err)
	}
	return nil
}
