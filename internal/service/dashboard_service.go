package service

import (
	"context"
	"math"

	"golang.org/x/sync/errgroup"

	"ecoquest/internal/models"
	"ecoquest/internal/repository"
)

// RecentActivityLimit is the number of feed entries on the organization dashboard
const RecentActivityLimit = 10

// Dashboard kinds
const (
	DashboardStudent      = "student"
	DashboardOrganization = "organization"
)

// StudentStats is the student dashboard
type StudentStats struct {
	models.LevelInfo
	EcoPoints         int                `json:"eco_points"`
	StreakDays        int                `json:"streak_days"`
	LessonsCompleted  int                `json:"lessons_completed"`
	MissionsApproved  int                `json:"missions_approved"`
	MissionsSubmitted int                `json:"missions_submitted"`
	BadgesEarned      int                `json:"badges_earned"`
	Rank              int                `json:"rank"`
	RankScope         models.ScopeFilter `json:"rank_scope"`
}

// OrganizationStats is the organization dashboard
type OrganizationStats struct {
	OrganizationCode  string               `json:"organization_code"`
	TotalStudents     int                  `json:"total_students"`
	TotalEcoPoints    int                  `json:"total_eco_points"`
	ActivePrograms    int                  `json:"active_programs"`
	CompletedMissions int                  `json:"completed_missions"`
	ImpactScore       float64              `json:"impact_score"`
	Approved          int                  `json:"approved"`
	Rejected          int                  `json:"rejected"`
	Pending           int                  `json:"pending"`
	RecentActivity    []models.ActivityLog `json:"recent_activity"`
}

// Dashboard is the role-tagged dashboard of one profile; exactly one of the stats is set
type Dashboard struct {
	Kind         string             `json:"kind"`
	Student      *StudentStats      `json:"student,omitempty"`
	Organization *OrganizationStats `json:"organization,omitempty"`
}

// ImpactScore rates an organization from 0 to 10 by the average points of its students,
// where an average of 100 points scores 10
func ImpactScore(totalPoints, students int) float64 {
	if students <= 0 || totalPoints <= 0 {
		return 0
	}
	score := float64(totalPoints) / float64(students*100) * 10
	score = math.Round(score*10) / 10
	return math.Min(10, score)
}

// DashboardService gathers dashboard statistics
type DashboardService struct {
	profiles     *repository.ProfileRepository
	missions     *repository.MissionRepository
	badges       *repository.BadgeRepository
	activity     *repository.ActivityRepository
	leaderboards *LeaderboardService
	levels       LevelRules
}

// NewDashboardService creates a new dashboard service
func NewDashboardService(
	profiles *repository.ProfileRepository,
	missions *repository.MissionRepository,
	badges *repository.BadgeRepository,
	activity *repository.ActivityRepository,
	leaderboards *LeaderboardService,
	levels LevelRules,
) *DashboardService {
	return &DashboardService{
		profiles:     profiles,
		missions:     missions,
		badges:       badges,
		activity:     activity,
		leaderboards: leaderboards,
		levels:       levels,
	}
}

// GetDashboard returns the dashboard matching the profile's role
func (s *DashboardService) GetDashboard(ctx context.Context, userID int64) (*Dashboard, error) {
	profile, err := s.profiles.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, ErrNotFound
	}

	if profile.IsOrganization() {
		stats, err := s.OrganizationStats(ctx, profile)
		if err != nil {
			return nil, err
		}
		return &Dashboard{Kind: DashboardOrganization, Organization: stats}, nil
	}

	stats, err := s.StudentStats(ctx, profile)
	if err != nil {
		return nil, err
	}
	return &Dashboard{Kind: DashboardStudent, Student: stats}, nil
}

// StudentStats gathers a student's counters and rank
func (s *DashboardService) StudentStats(ctx context.Context, profile *models.Profile) (*StudentStats, error) {
	stats := &StudentStats{
		LevelInfo:        models.NewLevelInfo(profile.EcoPoints, s.levels.PointsPerLevel(profile.Role)),
		EcoPoints:        profile.EcoPoints,
		StreakDays:       profile.StreakDays,
		LessonsCompleted: profile.CompletedLessons,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		counts, err := s.missions.CountUserSubmissions(ctx, profile.UserID)
		if err != nil {
			return err
		}
		stats.MissionsApproved = counts[models.StatusApproved]
		stats.MissionsSubmitted = counts[models.StatusSubmitted]
		return nil
	})
	g.Go(func() error {
		count, err := s.badges.CountUserBadges(ctx, profile.UserID)
		if err != nil {
			return err
		}
		stats.BadgesEarned = count
		return nil
	})
	g.Go(func() error {
		scope, rank, err := s.leaderboards.StudentRank(ctx, profile.UserID, "")
		if err != nil {
			return err
		}
		stats.RankScope = scope
		stats.Rank = rank
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return stats, nil
}

// OrganizationStats gathers the student totals, review counts and recent feed of an organization
func (s *DashboardService) OrganizationStats(ctx context.Context, profile *models.Profile) (*OrganizationStats, error) {
	code := profile.OrganizationCode
	stats := &OrganizationStats{OrganizationCode: code, RecentActivity: []models.ActivityLog{}}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		count, err := s.profiles.CountOrganizationStudents(ctx, code)
		stats.TotalStudents = count
		return err
	})
	g.Go(func() error {
		total, err := s.profiles.SumOrganizationPoints(ctx, code)
		stats.TotalEcoPoints = total
		return err
	})
	g.Go(func() error {
		count, err := s.missions.CountActiveMissions(ctx)
		stats.ActivePrograms = count
		return err
	})
	g.Go(func() error {
		counts, err := s.missions.CountOrganizationSubmissions(ctx, code)
		if err != nil {
			return err
		}
		stats.Approved = counts[models.StatusApproved]
		stats.Rejected = counts[models.StatusRejected]
		stats.Pending = counts[models.StatusSubmitted]
		stats.CompletedMissions = stats.Approved
		return nil
	})
	g.Go(func() error {
		entries, err := s.activity.ListOrganizationActivity(ctx, code, RecentActivityLimit)
		if err != nil {
			return err
		}
		if entries != nil {
			stats.RecentActivity = entries
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	stats.ImpactScore = ImpactScore(stats.TotalEcoPoints, stats.TotalStudents)
	return stats, nil
}

// ActivityFeed returns the latest activity of an organization for organization accounts,
// and the viewer's own activity for students
func (s *DashboardService) ActivityFeed(ctx context.Context, userID int64, limit int) ([]models.ActivityLog, error) {
	profile, err := s.profiles.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, ErrNotFound
	}
	if limit <= 0 || limit > 100 {
		limit = RecentActivityLimit
	}

	var entries []models.ActivityLog
	if profile.IsOrganization() && profile.IsAffiliated() {
		entries, err = s.activity.ListOrganizationActivity(ctx, profile.OrganizationCode, limit)
	} else {
		entries, err = s.activity.ListUserActivity(ctx, userID, limit)
	}
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []models.ActivityLog{}
	}
	return entries, nil
}
