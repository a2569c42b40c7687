package repository

import (
	"context"
	"database/sql"
	"fmt"

	"ecoquest/internal/database"
	"ecoquest/internal/models"
)

// LeaderboardRepository runs the ranking queries over profiles and the organization view
type LeaderboardRepository struct {
	db database.DBTX
}

// NewLeaderboardRepository creates a new leaderboard repository
func NewLeaderboardRepository(db *database.DB) *LeaderboardRepository {
	return &LeaderboardRepository{db: db}
}

// scopeColumn returns the profile column a scope filters on; global has none
func scopeColumn(scope models.Scope) (string, error) {
	switch scope {
	case models.ScopeOrganization:
		return "organization_code", nil
	case models.ScopeDistrict:
		return "region_district", nil
	case models.ScopeState:
		return "region_state", nil
	case models.ScopeCountry:
		return "region_country", nil
	case models.ScopeGlobal:
		return "", nil
	default:
		return "", fmt.Errorf("unknown leaderboard scope %q", scope)
	}
}

// studentScopeClause builds the WHERE clause shared by the board and the rank query
func studentScopeClause(filter models.ScopeFilter) (string, []interface{}, error) {
	column, err := scopeColumn(filter.Scope)
	if err != nil {
		return "", nil, err
	}
	where := `role = ? AND display_name IS NOT NULL AND display_name <> ''`
	args := []interface{}{string(models.RoleStudent)}
	if column != "" {
		where += ` AND ` + column + ` = ?`
		args = append(args, filter.Value)
	}
	return where, args, nil
}

// TopStudents returns the highest scoring students in scope, ties broken by user id
func (r *LeaderboardRepository) TopStudents(ctx context.Context, filter models.ScopeFilter, limit int) ([]models.LeaderboardEntry, error) {
	where, args, err := studentScopeClause(filter)
	if err != nil {
		return nil, err
	}
	query := `
		SELECT user_id, display_name, eco_points, completed_lessons, completed_missions, streak_days,
			COALESCE(organization_name, ''), COALESCE(organization_code, ''),
			COALESCE(region_country, ''), COALESCE(region_state, ''), COALESCE(region_district, '')
		FROM profiles
		WHERE ` + where + `
		ORDER BY eco_points DESC, user_id ASC
		LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query student leaderboard: %w", err)
	}
	defer rows.Close()

	var entries []models.LeaderboardEntry
	for rows.Next() {
		var e models.LeaderboardEntry
		err := rows.Scan(
			&e.UserID,
			&e.DisplayName,
			&e.EcoPoints,
			&e.CompletedLessons,
			&e.CompletedMissions,
			&e.StreakDays,
			&e.OrganizationName,
			&e.OrganizationCode,
			&e.Region.Country,
			&e.Region.State,
			&e.Region.District,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan leaderboard entry: %w", err)
		}
		e.Rank = len(entries) + 1
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// StudentRank returns the 1-based position of a student with points in scope using the
// same ordering as TopStudents, so it also covers students outside the top rows.
func (r *LeaderboardRepository) StudentRank(ctx context.Context, filter models.ScopeFilter, userID int64, points int) (int, error) {
	where, args, err := studentScopeClause(filter)
	if err != nil {
		return 0, err
	}
	query := `
		SELECT COUNT(*)
		FROM profiles
		WHERE ` + where + ` AND (eco_points > ? OR (eco_points = ? AND user_id < ?))`
	args = append(args, points, points, userID)

	var ahead int
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&ahead); err != nil {
		return 0, fmt.Errorf("failed to query student rank: %w", err)
	}
	return ahead + 1, nil
}

const organizationBoardColumns = `organization_id, organization_code, organization_name, region_country,
	region_state, region_district, student_count, total_eco_points, avg_eco_points,
	total_lessons_completed, total_missions_completed`

// TopOrganizations returns organizations ordered by the summed points of their students
func (r *LeaderboardRepository) TopOrganizations(ctx context.Context, filter models.ScopeFilter, limit int) ([]models.OrganizationLeaderboardEntry, error) {
	column, err := scopeColumn(filter.Scope)
	if err != nil {
		return nil, err
	}
	if filter.Scope == models.ScopeOrganization {
		return nil, fmt.Errorf("organization scope does not apply to the organization leaderboard")
	}

	query := `SELECT ` + organizationBoardColumns + ` FROM organization_leaderboard`
	var args []interface{}
	if column != "" {
		query += ` WHERE ` + column + ` = ?`
		args = append(args, filter.Value)
	}
	query += ` ORDER BY total_eco_points DESC, organization_id ASC LIMIT ?`
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query organization leaderboard: %w", err)
	}
	defer rows.Close()

	var entries []models.OrganizationLeaderboardEntry
	for rows.Next() {
		var e models.OrganizationLeaderboardEntry
		if err := scanOrganizationEntry(rows, &e); err != nil {
			return nil, fmt.Errorf("failed to scan organization entry: %w", err)
		}
		e.Rank = len(entries) + 1
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// GetOrganizationEntry returns the aggregate row of one organization with its global rank
func (r *LeaderboardRepository) GetOrganizationEntry(ctx context.Context, organizationID int64) (*models.OrganizationLeaderboardEntry, error) {
	var e models.OrganizationLeaderboardEntry
	query := `SELECT ` + organizationBoardColumns + ` FROM organization_leaderboard WHERE organization_id = ?`
	err := scanOrganizationEntry(r.db.QueryRowContext(ctx, query, organizationID), &e)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get organization entry: %w", err)
	}

	rankQuery := `
		SELECT COUNT(*)
		FROM organization_leaderboard
		WHERE total_eco_points > ? OR (total_eco_points = ? AND organization_id < ?)
	`
	var ahead int
	if err := r.db.QueryRowContext(ctx, rankQuery, e.TotalEcoPoints, e.TotalEcoPoints, organizationID).Scan(&ahead); err != nil {
		return nil, fmt.Errorf("failed to query organization rank: %w", err)
	}
	e.Rank = ahead + 1
	return &e, nil
}

func scanOrganizationEntry(row rowScanner, e *models.OrganizationLeaderboardEntry) error {
	var code *string
	err := row.Scan(
		&e.OrganizationID,
		&code,
		&e.OrganizationName,
		&e.Region.Country,
		&e.Region.State,
		&e.Region.District,
		&e.StudentCount,
		&e.TotalEcoPoints,
		&e.AvgEcoPoints,
		&e.TotalLessonsCompleted,
		&e.TotalMissionsCompleted,
	)
	if code != nil {
		e.OrganizationCode = *code
	}
	return err
}
