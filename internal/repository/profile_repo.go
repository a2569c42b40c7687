package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"ecoquest/internal/database"
	"ecoquest/internal/models"
)

// ProfileRepository handles profiles, organization codes and memberships
type ProfileRepository struct {
	db database.DBTX
}

// NewProfileRepository creates a new profile repository
func NewProfileRepository(db *database.DB) *ProfileRepository {
	return &ProfileRepository{db: db}
}

// WithTx returns a repository bound to tx
func (r *ProfileRepository) WithTx(tx *database.Tx) *ProfileRepository {
	return &ProfileRepository{db: tx}
}

const profileColumns = `p.user_id, p.role, COALESCE(p.display_name, ''), COALESCE(p.avatar_url, ''),
	COALESCE(p.gender, ''), p.eco_points, p.completed_lessons, p.completed_missions, p.streak_days,
	p.last_activity_date, COALESCE(p.region_country, ''), COALESCE(p.region_state, ''),
	COALESCE(p.region_district, ''), COALESCE(p.organization_name, ''),
	COALESCE(p.organization_code, ''), p.created_at, p.updated_at`

func scanProfile(row rowScanner) (*models.Profile, error) {
	p := &models.Profile{}
	var role string
	var lastActivity sql.NullTime
	err := row.Scan(
		&p.UserID,
		&role,
		&p.DisplayName,
		&p.AvatarURL,
		&p.Gender,
		&p.EcoPoints,
		&p.CompletedLessons,
		&p.CompletedMissions,
		&p.StreakDays,
		&lastActivity,
		&p.Region.Country,
		&p.Region.State,
		&p.Region.District,
		&p.OrganizationName,
		&p.OrganizationCode,
		&p.CreatedAt,
		&p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	p.Role = models.Role(role)
	p.LastActivityDate = timePtr(lastActivity)
	return p, nil
}

func scanProfiles(rows *sql.Rows) ([]models.Profile, error) {
	defer rows.Close()
	var profiles []models.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		profiles = append(profiles, *p)
	}
	return profiles, rows.Err()
}

// CreateProfile inserts a profile row for an existing user
func (r *ProfileRepository) CreateProfile(ctx context.Context, p *models.Profile) error {
	now := time.Now().UTC()
	query := `
		INSERT INTO profiles (
			user_id, role, display_name, avatar_url, gender, eco_points, completed_lessons,
			completed_missions, streak_days, last_activity_date, region_country, region_state,
			region_district, organization_name, organization_code, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	var lastActivity interface{}
	if p.LastActivityDate != nil {
		lastActivity = p.LastActivityDate.UTC()
	}
	_, err := r.db.ExecContext(ctx, query,
		p.UserID, string(p.Role), nullString(p.DisplayName), nullString(p.AvatarURL), nullString(p.Gender),
		p.EcoPoints, p.CompletedLessons, p.CompletedMissions, p.StreakDays, lastActivity,
		nullString(p.Region.Country), nullString(p.Region.State), nullString(p.Region.District),
		nullString(p.OrganizationName), nullString(p.OrganizationCode), now, now,
	)
	if err != nil {
		return fmt.Errorf("failed to create profile: %w", err)
	}
	p.CreatedAt = now
	p.UpdatedAt = now
	return nil
}

// GetProfile retrieves the profile of a user
func (r *ProfileRepository) GetProfile(ctx context.Context, userID int64) (*models.Profile, error) {
	query := `SELECT ` + profileColumns + ` FROM profiles p WHERE p.user_id = ?`
	p, err := scanProfile(r.db.QueryRowContext(ctx, query, userID))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	return p, nil
}

// ListProfiles retrieves every profile ordered by user id
func (r *ProfileRepository) ListProfiles(ctx context.Context) ([]models.Profile, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+profileColumns+` FROM profiles p ORDER BY p.user_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to query profiles: %w", err)
	}
	return scanProfiles(rows)
}

// ListOrganizationStudents retrieves the students linked to an organization code
func (r *ProfileRepository) ListOrganizationStudents(ctx context.Context, code string) ([]models.Profile, error) {
	query := `SELECT ` + profileColumns + `
		FROM profiles p
		WHERE p.role = ? AND p.organization_code = ?
		ORDER BY p.eco_points DESC, p.user_id ASC`
	rows, err := r.db.QueryContext(ctx, query, string(models.RoleStudent), code)
	if err != nil {
		return nil, fmt.Errorf("failed to query organization students: %w", err)
	}
	return scanProfiles(rows)
}

// UpdateProfile saves the user-editable fields of a profile
func (r *ProfileRepository) UpdateProfile(ctx context.Context, p *models.Profile) error {
	now := time.Now().UTC()
	query := `
		UPDATE profiles
		SET display_name = ?, avatar_url = ?, gender = ?, region_country = ?, region_state = ?,
			region_district = ?, organization_name = ?, updated_at = ?
		WHERE user_id = ?
	`
	_, err := r.db.ExecContext(ctx, query,
		nullString(p.DisplayName), nullString(p.AvatarURL), nullString(p.Gender),
		nullString(p.Region.Country), nullString(p.Region.State), nullString(p.Region.District),
		nullString(p.OrganizationName), now, p.UserID,
	)
	if err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}
	p.UpdatedAt = now
	return nil
}

// RenameOrganizationStudents mirrors a changed organization name onto its students
func (r *ProfileRepository) RenameOrganizationStudents(ctx context.Context, code, name string) error {
	query := "UPDATE profiles SET organization_name = ?, updated_at = ? WHERE role = ? AND organization_code = ?"
	if _, err := r.db.ExecContext(ctx, query, nullString(name), time.Now().UTC(), string(models.RoleStudent), code); err != nil {
		return fmt.Errorf("failed to rename organization students: %w", err)
	}
	return nil
}

// ApplyReward adds points and completion counters to a profile
func (r *ProfileRepository) ApplyReward(ctx context.Context, userID int64, points, lessons, missions int) error {
	query := `
		UPDATE profiles
		SET eco_points = eco_points + ?, completed_lessons = completed_lessons + ?,
			completed_missions = completed_missions + ?, updated_at = ?
		WHERE user_id = ?
	`
	result, err := r.db.ExecContext(ctx, query, points, lessons, missions, time.Now().UTC(), userID)
	if err != nil {
		return fmt.Errorf("failed to apply reward: %w", err)
	}
	if n, err := result.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("failed to apply reward: profile %d not found", userID)
	}
	return nil
}

// UpdateActivity stores the streak and the day of the latest activity
func (r *ProfileRepository) UpdateActivity(ctx context.Context, userID int64, streakDays int, day time.Time) error {
	query := "UPDATE profiles SET streak_days = ?, last_activity_date = ?, updated_at = ? WHERE user_id = ?"
	if _, err := r.db.ExecContext(ctx, query, streakDays, day.UTC(), time.Now().UTC(), userID); err != nil {
		return fmt.Errorf("failed to update activity: %w", err)
	}
	return nil
}

// ResetStaleStreaks zeroes streaks of profiles with no activity since before the given day
func (r *ProfileRepository) ResetStaleStreaks(ctx context.Context, before time.Time) (int64, error) {
	query := `
		UPDATE profiles
		SET streak_days = 0, updated_at = ?
		WHERE streak_days > 0 AND (last_activity_date IS NULL OR last_activity_date < ?)
	`
	result, err := r.db.ExecContext(ctx, query, time.Now().UTC(), before.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to reset streaks: %w", err)
	}
	return result.RowsAffected()
}

// OrganizationCodeExists checks whether a code is already issued
func (r *ProfileRepository) OrganizationCodeExists(ctx context.Context, code string) (bool, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM organization_codes WHERE code = ?", code).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check organization code: %w", err)
	}
	return count > 0, nil
}

// CreateOrganizationCode registers a code for an organization profile
func (r *ProfileRepository) CreateOrganizationCode(ctx context.Context, code string, organizationID int64) error {
	query := "INSERT INTO organization_codes (code, organization_id, created_at) VALUES (?, ?, ?)"
	if _, err := r.db.ExecContext(ctx, query, code, organizationID, time.Now().UTC()); err != nil {
		return fmt.Errorf("failed to create organization code: %w", err)
	}
	return nil
}

// GetOrganizationByCode finds the organization owning an exact code
func (r *ProfileRepository) GetOrganizationByCode(ctx context.Context, code string) (*models.Profile, error) {
	query := `SELECT ` + profileColumns + `
		FROM organization_codes c
		JOIN profiles p ON p.user_id = c.organization_id
		WHERE c.code = ? AND p.role = ?`
	p, err := scanProfile(r.db.QueryRowContext(ctx, query, code, string(models.RoleOrganization)))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization by code: %w", err)
	}
	return p, nil
}

// CreateMembership records that a student joined an organization
func (r *ProfileRepository) CreateMembership(ctx context.Context, userID int64, code string) error {
	now := time.Now().UTC()
	query := `
		INSERT INTO organization_memberships (user_id, organization_code, created_at, updated_at)
		VALUES (?, ?, ?, ?)
	`
	if _, err := r.db.ExecContext(ctx, query, userID, code, now, now); err != nil {
		return fmt.Errorf("failed to create membership: %w", err)
	}
	return nil
}

// CountOrganizationStudents counts students linked to a code
func (r *ProfileRepository) CountOrganizationStudents(ctx context.Context, code string) (int, error) {
	var count int
	query := "SELECT COUNT(*) FROM profiles WHERE role = ? AND organization_code = ?"
	if err := r.db.QueryRowContext(ctx, query, string(models.RoleStudent), code).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count organization students: %w", err)
	}
	return count, nil
}

// SumOrganizationPoints totals the eco points of students linked to a code
func (r *ProfileRepository) SumOrganizationPoints(ctx context.Context, code string) (int, error) {
	var total int
	query := "SELECT COALESCE(SUM(eco_points), 0) FROM profiles WHERE role = ? AND organization_code = ?"
	if err := r.db.QueryRowContext(ctx, query, string(models.RoleStudent), code).Scan(&total); err != nil {
		return 0, fmt.Errorf("failed to sum organization points: %w", err)
	}
	return total, nil
}
