package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ecoquest/internal/database"
	"ecoquest/internal/models"
	"ecoquest/internal/repository"
	"ecoquest/internal/validation"
)

// WordFilter screens user-chosen names
type WordFilter interface {
	ContainsBadWord(ctx context.Context, text string) (bool, error)
}

// LevelRules holds the points each level costs per role
type LevelRules struct {
	StudentPointsPerLevel      int
	OrganizationPointsPerLevel int
}

// PointsPerLevel returns the level cost for role
func (r LevelRules) PointsPerLevel(role models.Role) int {
	if role == models.RoleOrganization {
		return r.OrganizationPointsPerLevel
	}
	return r.StudentPointsPerLevel
}

// ProfileService handles profile reads and edits, streaks and name screening
type ProfileService struct {
	db       *database.DB
	profiles *repository.ProfileRepository
	words    WordFilter
	levels   LevelRules
}

// NewProfileService creates a new profile service
func NewProfileService(db *database.DB, profiles *repository.ProfileRepository, words WordFilter, levels LevelRules) *ProfileService {
	return &ProfileService{
		db:       db,
		profiles: profiles,
		words:    words,
		levels:   levels,
	}
}

// ProfileView is a profile with its derived level state
type ProfileView struct {
	*models.Profile
	LevelInfo models.LevelInfo `json:"level_info"`
}

// UpdateProfileRequest carries the editable profile fields; nil fields are left unchanged
type UpdateProfileRequest struct {
	DisplayName      *string `json:"display_name" validate:"omitempty,min=2,max=100"`
	AvatarURL        *string `json:"avatar_url" validate:"omitempty,max=500"`
	Gender           *string `json:"gender" validate:"omitempty,max=30"`
	RegionCountry    *string `json:"region_country" validate:"omitempty,max=100"`
	RegionState      *string `json:"region_state" validate:"omitempty,max=100"`
	RegionDistrict   *string `json:"region_district" validate:"omitempty,max=100"`
	OrganizationName *string `json:"organization_name" validate:"omitempty,min=2,max=200"`
}

// GetProfile returns the profile of userID
func (s *ProfileService) GetProfile(ctx context.Context, userID int64) (*models.Profile, error) {
	profile, err := s.profiles.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, ErrNotFound
	}
	return profile, nil
}

// GetProfileView returns the profile of userID with level state
func (s *ProfileService) GetProfileView(ctx context.Context, userID int64) (*ProfileView, error) {
	profile, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.View(profile), nil
}

// View attaches level state to profile
func (s *ProfileService) View(profile *models.Profile) *ProfileView {
	return &ProfileView{
		Profile:   profile,
		LevelInfo: models.NewLevelInfo(profile.EcoPoints, s.levels.PointsPerLevel(profile.Role)),
	}
}

// UpdateProfile applies the non-nil fields of req
func (s *ProfileService) UpdateProfile(ctx context.Context, userID int64, req UpdateProfileRequest) (*ProfileView, error) {
	if err := validation.Struct(req); err != nil {
		return nil, err
	}

	profile, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	if req.DisplayName != nil {
		name := strings.TrimSpace(*req.DisplayName)
		if err := s.ScreenName(ctx, "display_name", name); err != nil {
			return nil, err
		}
		profile.DisplayName = name
	}
	renamed := false
	if req.OrganizationName != nil {
		if !profile.IsOrganization() {
			return nil, validation.ValidationError{Field: "organization_name", Message: "only organizations can change the organization name"}
		}
		name := strings.TrimSpace(*req.OrganizationName)
		if err := s.ScreenName(ctx, "organization_name", name); err != nil {
			return nil, err
		}
		renamed = name != profile.OrganizationName
		profile.OrganizationName = name
	}
	if req.AvatarURL != nil {
		profile.AvatarURL = strings.TrimSpace(*req.AvatarURL)
	}
	if req.Gender != nil {
		profile.Gender = strings.TrimSpace(*req.Gender)
	}
	if req.RegionCountry != nil {
		profile.Region.Country = strings.TrimSpace(*req.RegionCountry)
	}
	if req.RegionState != nil {
		profile.Region.State = strings.TrimSpace(*req.RegionState)
	}
	if req.RegionDistrict != nil {
		profile.Region.District = strings.TrimSpace(*req.RegionDistrict)
	}

	err = s.db.WithTx(ctx, func(tx *database.Tx) error {
		profiles := s.profiles.WithTx(tx)
		if err := profiles.UpdateProfile(ctx, profile); err != nil {
			return err
		}
		if renamed && profile.IsAffiliated() {
			return profiles.RenameOrganizationStudents(ctx, profile.OrganizationCode, profile.OrganizationName)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to update profile: %w", err)
	}

	return s.GetProfileView(ctx, userID)
}

// ScreenName validates a user-chosen name and rejects inappropriate language
func (s *ProfileService) ScreenName(ctx context.Context, field, name string) error {
	if err := validation.ValidateName(field, name); err != nil {
		return err
	}
	if s.words == nil {
		return nil
	}
	bad, err := s.words.ContainsBadWord(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to screen name: %w", err)
	}
	if bad {
		return validation.ValidationError{Field: field, Message: "please choose a different name"}
	}
	return nil
}

// ResetStaleStreaks zeroes the streak of every profile without activity yesterday or today
func (s *ProfileService) ResetStaleStreaks(ctx context.Context, now time.Time) (int64, error) {
	yesterday := activityDay(now).AddDate(0, 0, -1)
	return s.profiles.ResetStaleStreaks(ctx, yesterday)
}

// activityDay truncates t to its UTC calendar day
func activityDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// NextStreak returns the streak after activity on now, given the previous activity day
func NextStreak(current int, last *time.Time, now time.Time) int {
	if last == nil {
		return 1
	}
	today := activityDay(now)
	lastDay := activityDay(*last)
	switch {
	case lastDay.Equal(today):
		if current < 1 {
			return 1
		}
		return current
	case lastDay.Equal(today.AddDate(0, 0, -1)):
		return current + 1
	default:
		return 1
	}
}

// touchStreak records activity on now for profile, writing only when the day changes
func touchStreak(ctx context.Context, profiles *repository.ProfileRepository, profile *models.Profile, now time.Time) error {
	next := NextStreak(profile.StreakDays, profile.LastActivityDate, now)
	today := activityDay(now)
	if profile.LastActivityDate != nil && activityDay(*profile.LastActivityDate).Equal(today) && next == profile.StreakDays {
		return nil
	}
	if err := profiles.UpdateActivity(ctx, profile.UserID, next, today); err != nil {
		return err
	}
	profile.StreakDays = next
	profile.LastActivityDate = &today
	return nil
}
