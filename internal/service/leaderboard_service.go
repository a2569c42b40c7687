package service

import (
	"context"
	"strings"

	"ecoquest/internal/models"
	"ecoquest/internal/repository"
)

// scopeOrder lists scopes from most to least specific
var scopeOrder = []models.Scope{
	models.ScopeOrganization,
	models.ScopeDistrict,
	models.ScopeState,
	models.ScopeCountry,
	models.ScopeGlobal,
}

func scopeIndex(scope models.Scope) int {
	for i, s := range scopeOrder {
		if s == scope {
			return i
		}
	}
	return -1
}

// scopeValue returns the profile value a scope filters on and whether it is populated
func scopeValue(p *models.Profile, scope models.Scope) (string, bool) {
	var value string
	switch scope {
	case models.ScopeOrganization:
		value = p.OrganizationCode
	case models.ScopeDistrict:
		value = p.Region.District
	case models.ScopeState:
		value = p.Region.State
	case models.ScopeCountry:
		value = p.Region.Country
	case models.ScopeGlobal:
		return "", true
	default:
		return "", false
	}
	value = strings.TrimSpace(value)
	return value, value != ""
}

// ResolveScope picks the narrowest scope the viewer has data for: their organization when
// affiliated, then district, state and country, and global when nothing is populated.
func ResolveScope(viewer *models.Profile) models.ScopeFilter {
	for _, scope := range scopeOrder {
		if value, ok := scopeValue(viewer, scope); ok {
			return models.ScopeFilter{Scope: scope, Value: value}
		}
	}
	return models.ScopeFilter{Scope: models.ScopeGlobal}
}

// ChooseScope resolves the viewer's default scope, or validates an explicitly requested one.
// A requested scope must be populated for the viewer and no narrower than the default.
func ChooseScope(viewer *models.Profile, requested models.Scope) (models.ScopeFilter, error) {
	resolved := ResolveScope(viewer)
	if requested == "" || requested == resolved.Scope {
		return resolved, nil
	}

	idx := scopeIndex(requested)
	if idx < 0 || idx < scopeIndex(resolved.Scope) {
		return models.ScopeFilter{}, ErrUnsupportedScope
	}
	value, ok := scopeValue(viewer, requested)
	if !ok {
		return models.ScopeFilter{}, ErrUnsupportedScope
	}
	return models.ScopeFilter{Scope: requested, Value: value}, nil
}

// LeaderboardService ranks students and organizations
type LeaderboardService struct {
	leaderboards *repository.LeaderboardRepository
	profiles     *repository.ProfileRepository
	levels       LevelRules
}

// NewLeaderboardService creates a new leaderboard service
func NewLeaderboardService(leaderboards *repository.LeaderboardRepository, profiles *repository.ProfileRepository, levels LevelRules) *LeaderboardService {
	return &LeaderboardService{
		leaderboards: leaderboards,
		profiles:     profiles,
		levels:       levels,
	}
}

// StudentBoard is a scoped top list of students plus the viewer's own rank
type StudentBoard struct {
	Scope      models.ScopeFilter        `json:"scope"`
	Entries    []models.LeaderboardEntry `json:"entries"`
	ViewerRank *int                      `json:"viewer_rank,omitempty"`
}

// OrganizationBoard is a top list of organizations plus the viewer's organization
type OrganizationBoard struct {
	Scope   models.ScopeFilter                    `json:"scope"`
	Entries []models.OrganizationLeaderboardEntry `json:"entries"`
	Viewer  *models.OrganizationLeaderboardEntry  `json:"viewer,omitempty"`
}

func (s *LeaderboardService) viewer(ctx context.Context, userID int64) (*models.Profile, error) {
	profile, err := s.profiles.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, ErrNotFound
	}
	return profile, nil
}

// StudentLeaderboard returns the top students in the viewer's scope
func (s *LeaderboardService) StudentLeaderboard(ctx context.Context, userID int64, requested models.Scope) (*StudentBoard, error) {
	viewer, err := s.viewer(ctx, userID)
	if err != nil {
		return nil, err
	}
	filter, err := ChooseScope(viewer, requested)
	if err != nil {
		return nil, err
	}

	entries, err := s.leaderboards.TopStudents(ctx, filter, models.LeaderboardLimit)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []models.LeaderboardEntry{}
	}
	perLevel := s.levels.PointsPerLevel(models.RoleStudent)
	for i := range entries {
		entries[i].Level = models.LevelFor(entries[i].EcoPoints, perLevel)
	}

	board := &StudentBoard{Scope: filter, Entries: entries}
	if viewer.Role == models.RoleStudent {
		rank, err := s.leaderboards.StudentRank(ctx, filter, viewer.UserID, viewer.EcoPoints)
		if err != nil {
			return nil, err
		}
		board.ViewerRank = &rank
	}
	return board, nil
}

// StudentRank returns the viewer's rank in their scope. Organizations have no student rank.
func (s *LeaderboardService) StudentRank(ctx context.Context, userID int64, requested models.Scope) (models.ScopeFilter, int, error) {
	viewer, err := s.viewer(ctx, userID)
	if err != nil {
		return models.ScopeFilter{}, 0, err
	}
	if viewer.Role != models.RoleStudent {
		return models.ScopeFilter{}, 0, ErrUnsupportedScope
	}
	filter, err := ChooseScope(viewer, requested)
	if err != nil {
		return models.ScopeFilter{}, 0, err
	}
	rank, err := s.leaderboards.StudentRank(ctx, filter, viewer.UserID, viewer.EcoPoints)
	if err != nil {
		return models.ScopeFilter{}, 0, err
	}
	return filter, rank, nil
}

// OrganizationLeaderboard returns the top organizations, globally unless a region scope
// the viewer has is requested
func (s *LeaderboardService) OrganizationLeaderboard(ctx context.Context, userID int64, requested models.Scope) (*OrganizationBoard, error) {
	viewer, err := s.viewer(ctx, userID)
	if err != nil {
		return nil, err
	}

	filter := models.ScopeFilter{Scope: models.ScopeGlobal}
	if requested != "" && requested != models.ScopeGlobal {
		if requested == models.ScopeOrganization {
			return nil, ErrUnsupportedScope
		}
		value, ok := scopeValue(viewer, requested)
		if !ok {
			return nil, ErrUnsupportedScope
		}
		filter = models.ScopeFilter{Scope: requested, Value: value}
	}

	entries, err := s.leaderboards.TopOrganizations(ctx, filter, models.LeaderboardLimit)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []models.OrganizationLeaderboardEntry{}
	}
	board := &OrganizationBoard{Scope: filter, Entries: entries}

	if viewer.IsAffiliated() {
		board.Viewer, err = s.OrganizationRank(ctx, viewer)
		if err != nil {
			return nil, err
		}
	}
	return board, nil
}

// OrganizationRank returns the aggregate row and global rank of the viewer's organization
func (s *LeaderboardService) OrganizationRank(ctx context.Context, viewer *models.Profile) (*models.OrganizationLeaderboardEntry, error) {
	orgID := viewer.UserID
	if !viewer.IsOrganization() {
		org, err := s.profiles.GetOrganizationByCode(ctx, viewer.OrganizationCode)
		if err != nil {
			return nil, err
		}
		if org == nil {
			return nil, nil
		}
		orgID = org.UserID
	}
	return s.leaderboards.GetOrganizationEntry(ctx, orgID)
}
