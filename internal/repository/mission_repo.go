package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"ecoquest/internal/database"
	"ecoquest/internal/models"
)

// MissionRepository handles missions and mission submissions
type MissionRepository struct {
	db database.DBTX
}

// NewMissionRepository creates a new mission repository
func NewMissionRepository(db *database.DB) *MissionRepository {
	return &MissionRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *MissionRepository) WithTx(tx *database.Tx) *MissionRepository {
	return &MissionRepository{db: tx}
}

const missionColumns = `id, title, description, category, difficulty, estimated_time, instructions,
	requirements, points, lesson_id, is_active, created_at, updated_at`

func scanMission(row rowScanner) (*models.Mission, error) {
	m := &models.Mission{}
	var requirements string
	var lessonID sql.NullInt64
	err := row.Scan(
		&m.ID,
		&m.Title,
		&m.Description,
		&m.Category,
		&m.Difficulty,
		&m.EstimatedTime,
		&m.Instructions,
		&requirements,
		&m.Points,
		&lessonID,
		&m.IsActive,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	m.LessonID = int64Ptr(lessonID)
	m.Requirements = []string{}
	if requirements != "" {
		if err := json.Unmarshal([]byte(requirements), &m.Requirements); err != nil {
			return nil, fmt.Errorf("invalid requirements for mission %d: %w", m.ID, err)
		}
	}
	return m, nil
}

func scanMissions(rows *sql.Rows) ([]models.Mission, error) {
	defer rows.Close()
	var missions []models.Mission
	for rows.Next() {
		m, err := scanMission(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan mission: %w", err)
		}
		missions = append(missions, *m)
	}
	return missions, rows.Err()
}

// CreateMission inserts a catalog mission
func (r *MissionRepository) CreateMission(ctx context.Context, m *models.Mission) error {
	requirements := m.Requirements
	if requirements == nil {
		requirements = []string{}
	}
	encoded, err := json.Marshal(requirements)
	if err != nil {
		return fmt.Errorf("failed to encode mission requirements: %w", err)
	}
	now := time.Now().UTC()
	query := `
		INSERT INTO missions (
			title, description, category, difficulty, estimated_time, instructions, requirements,
			points, lesson_id, is_active, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	id, err := r.db.ExecReturningID(ctx, query,
		m.Title, m.Description, m.Category, m.Difficulty, m.EstimatedTime, m.Instructions,
		string(encoded), m.Points, nullInt64(m.LessonID), m.IsActive, now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to create mission: %w", err)
	}
	m.ID = id
	m.CreatedAt = now
	m.UpdatedAt = now
	return nil
}

// ListMissions retrieves missions; inactive ones are included only when asked
func (r *MissionRepository) ListMissions(ctx context.Context, includeInactive bool) ([]models.Mission, error) {
	query := `SELECT ` + missionColumns + ` FROM missions`
	var args []interface{}
	if !includeInactive {
		query += ` WHERE is_active = ?`
		args = append(args, true)
	}
	query += ` ORDER BY id`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query missions: %w", err)
	}
	return scanMissions(rows)
}

// ListLessonMissions retrieves the active missions linked to a lesson
func (r *MissionRepository) ListLessonMissions(ctx context.Context, lessonID int64) ([]models.Mission, error) {
	query := `SELECT ` + missionColumns + ` FROM missions WHERE lesson_id = ? AND is_active = ? ORDER BY id`
	rows, err := r.db.QueryContext(ctx, query, lessonID, true)
	if err != nil {
		return nil, fmt.Errorf("failed to query lesson missions: %w", err)
	}
	return scanMissions(rows)
}

// CountActiveMissions counts the missions open to students
func (r *MissionRepository) CountActiveMissions(ctx context.Context) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM missions WHERE is_active = ?", true).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count missions: %w", err)
	}
	return count, nil
}

// GetMission retrieves a mission by ID
func (r *MissionRepository) GetMission(ctx context.Context, id int64) (*models.Mission, error) {
	m, err := scanMission(r.db.QueryRowContext(ctx, `SELECT `+missionColumns+` FROM missions WHERE id = ?`, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get mission: %w", err)
	}
	return m, nil
}

const submissionColumns = `s.id, s.user_id, s.mission_id, s.status, COALESCE(s.submission_data, ''),
	COALESCE(s.video_url, ''), s.iteration, s.points_awarded, s.reviewer_id,
	COALESCE(s.reviewer_notes, ''), s.submitted_at, s.reviewed_at, s.created_at, s.updated_at`

func scanSubmission(row rowScanner, extra ...interface{}) (*models.MissionSubmission, error) {
	s := &models.MissionSubmission{}
	var status string
	var points, reviewerID sql.NullInt64
	var submittedAt, reviewedAt sql.NullTime
	dest := []interface{}{
		&s.ID,
		&s.UserID,
		&s.MissionID,
		&status,
		&s.SubmissionData,
		&s.VideoURL,
		&s.Iteration,
		&points,
		&reviewerID,
		&s.ReviewerNotes,
		&submittedAt,
		&reviewedAt,
		&s.CreatedAt,
		&s.UpdatedAt,
	}
	if err := row.Scan(append(dest, extra...)...); err != nil {
		return nil, err
	}
	s.Status = models.SubmissionStatus(status)
	s.PointsAwarded = intPtr(points)
	s.ReviewerID = int64Ptr(reviewerID)
	s.SubmittedAt = timePtr(submittedAt)
	s.ReviewedAt = timePtr(reviewedAt)
	return s, nil
}

func (r *MissionRepository) getSubmission(ctx context.Context, where string, args ...interface{}) (*models.MissionSubmission, error) {
	query := `SELECT ` + submissionColumns + ` FROM mission_submissions s WHERE ` + where
	s, err := scanSubmission(r.db.QueryRowContext(ctx, query, args...))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get submission: %w", err)
	}
	return s, nil
}

// GetSubmission retrieves a user's submission for a mission
func (r *MissionRepository) GetSubmission(ctx context.Context, userID, missionID int64) (*models.MissionSubmission, error) {
	return r.getSubmission(ctx, "s.user_id = ? AND s.mission_id = ?", userID, missionID)
}

// GetSubmissionByID retrieves a submission by ID
func (r *MissionRepository) GetSubmissionByID(ctx context.Context, id int64) (*models.MissionSubmission, error) {
	return r.getSubmission(ctx, "s.id = ?", id)
}

// ListUserSubmissions retrieves every submission of a user
func (r *MissionRepository) ListUserSubmissions(ctx context.Context, userID int64) ([]models.MissionSubmission, error) {
	return r.listSubmissions(ctx, `SELECT `+submissionColumns+` FROM mission_submissions s WHERE s.user_id = ? ORDER BY s.mission_id`, userID)
}

// ListAllSubmissions retrieves every submission
func (r *MissionRepository) ListAllSubmissions(ctx context.Context) ([]models.MissionSubmission, error) {
	return r.listSubmissions(ctx, `SELECT `+submissionColumns+` FROM mission_submissions s ORDER BY s.id`)
}

func (r *MissionRepository) listSubmissions(ctx context.Context, query string, args ...interface{}) ([]models.MissionSubmission, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query submissions: %w", err)
	}
	defer rows.Close()

	var submissions []models.MissionSubmission
	for rows.Next() {
		s, err := scanSubmission(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan submission: %w", err)
		}
		submissions = append(submissions, *s)
	}
	return submissions, rows.Err()
}

// CreateSubmission inserts an in-progress submission
func (r *MissionRepository) CreateSubmission(ctx context.Context, userID, missionID int64) (*models.MissionSubmission, error) {
	now := time.Now().UTC()
	query := `
		INSERT INTO mission_submissions (user_id, mission_id, status, iteration, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	id, err := r.db.ExecReturningID(ctx, query, userID, missionID, string(models.StatusInProgress), 0, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to create submission: %w", err)
	}
	return &models.MissionSubmission{
		ID:        id,
		UserID:    userID,
		MissionID: missionID,
		Status:    models.StatusInProgress,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

// ImportSubmission inserts a submission as-is
func (r *MissionRepository) ImportSubmission(ctx context.Context, s *models.MissionSubmission) error {
	query := `
		INSERT INTO mission_submissions (
			user_id, mission_id, status, submission_data, video_url, iteration, points_awarded,
			reviewer_id, reviewer_notes, submitted_at, reviewed_at, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	var points interface{}
	if s.PointsAwarded != nil {
		points = *s.PointsAwarded
	}
	_, err := r.db.ExecContext(ctx, query,
		s.UserID, s.MissionID, string(s.Status), nullString(s.SubmissionData), nullString(s.VideoURL),
		s.Iteration, points, nullInt64(s.ReviewerID), nullString(s.ReviewerNotes),
		nullTime(s.SubmittedAt), nullTime(s.ReviewedAt), s.CreatedAt.UTC(), s.UpdatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to import submission: %w", err)
	}
	return nil
}

// MarkSubmitted moves a submission from one of the given statuses to submitted and bumps its iteration.
// It reports false when the row was not in an allowed status.
func (r *MissionRepository) MarkSubmitted(ctx context.Context, id int64, data, videoURL string, from ...models.SubmissionStatus) (bool, error) {
	if len(from) == 0 {
		return false, fmt.Errorf("failed to submit: no source status")
	}
	now := time.Now().UTC()
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(from)), ", ")
	query := `
		UPDATE mission_submissions
		SET status = ?, submission_data = ?, video_url = ?, iteration = iteration + 1,
			submitted_at = ?, updated_at = ?
		WHERE id = ? AND status IN (` + placeholders + `)
	`
	args := []interface{}{string(models.StatusSubmitted), data, nullString(videoURL), now, now, id}
	for _, status := range from {
		args = append(args, string(status))
	}
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return false, fmt.Errorf("failed to submit mission: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read submission update: %w", err)
	}
	return n > 0, nil
}

// Review records an approval or rejection of a submitted row.
// It reports false when the row was no longer submitted.
func (r *MissionRepository) Review(ctx context.Context, id int64, status models.SubmissionStatus, points *int, reviewerID int64, notes string) (bool, error) {
	now := time.Now().UTC()
	var awarded interface{}
	if points != nil {
		awarded = *points
	}
	query := `
		UPDATE mission_submissions
		SET status = ?, points_awarded = ?, reviewer_id = ?, reviewer_notes = ?, reviewed_at = ?, updated_at = ?
		WHERE id = ? AND status = ?
	`
	result, err := r.db.ExecContext(ctx, query, string(status), awarded, reviewerID, notes, now, now, id, string(models.StatusSubmitted))
	if err != nil {
		return false, fmt.Errorf("failed to review submission: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read review update: %w", err)
	}
	return n > 0, nil
}

// ListReviewQueue retrieves submitted work of the students linked to an organization code
func (r *MissionRepository) ListReviewQueue(ctx context.Context, organizationCode string) ([]models.ReviewItem, error) {
	query := `SELECT ` + submissionColumns + `, m.title, m.points, COALESCE(p.display_name, '')
		FROM mission_submissions s
		JOIN missions m ON m.id = s.mission_id
		JOIN profiles p ON p.user_id = s.user_id
		WHERE s.status = ? AND p.role = ? AND p.organization_code = ?
		ORDER BY s.submitted_at ASC, s.id ASC`
	rows, err := r.db.QueryContext(ctx, query, string(models.StatusSubmitted), string(models.RoleStudent), organizationCode)
	if err != nil {
		return nil, fmt.Errorf("failed to query review queue: %w", err)
	}
	defer rows.Close()

	var items []models.ReviewItem
	for rows.Next() {
		var item models.ReviewItem
		s, err := scanSubmission(rows, &item.MissionTitle, &item.MissionPoints, &item.StudentName)
		if err != nil {
			return nil, fmt.Errorf("failed to scan review item: %w", err)
		}
		item.Submission = *s
		items = append(items, item)
	}
	return items, rows.Err()
}

// CountOrganizationSubmissions counts submissions of an organization's students per status
func (r *MissionRepository) CountOrganizationSubmissions(ctx context.Context, organizationCode string) (map[models.SubmissionStatus]int, error) {
	query := `
		SELECT s.status, COUNT(*)
		FROM mission_submissions s
		JOIN profiles p ON p.user_id = s.user_id
		WHERE p.role = ? AND p.organization_code = ?
		GROUP BY s.status
	`
	return r.countByStatus(ctx, query, string(models.RoleStudent), organizationCode)
}

// CountUserSubmissions counts a user's submissions per status
func (r *MissionRepository) CountUserSubmissions(ctx context.Context, userID int64) (map[models.SubmissionStatus]int, error) {
	return r.countByStatus(ctx, "SELECT status, COUNT(*) FROM mission_submissions WHERE user_id = ? GROUP BY status", userID)
}

func (r *MissionRepository) countByStatus(ctx context.Context, query string, args ...interface{}) (map[models.SubmissionStatus]int, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to count submissions: %w", err)
	}
	defer rows.Close()

	counts := make(map[models.SubmissionStatus]int)
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, fmt.Errorf("failed to scan submission count: %w", err)
		}
		counts[models.SubmissionStatus(status)] = count
	}
	return counts, rows.Err()
}
