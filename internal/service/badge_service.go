package service

import (
	"context"
	"fmt"
	"time"

	"ecoquest/internal/database"
	"ecoquest/internal/models"
	"ecoquest/internal/repository"
)

// BadgeService lists badges and awards the ones a profile has earned
type BadgeService struct {
	badges   *repository.BadgeRepository
	lessons  *repository.LessonRepository
	activity *repository.ActivityRepository
}

// NewBadgeService creates a new badge service
func NewBadgeService(badges *repository.BadgeRepository, lessons *repository.LessonRepository, activity *repository.ActivityRepository) *BadgeService {
	return &BadgeService{
		badges:   badges,
		lessons:  lessons,
		activity: activity,
	}
}

// ListBadges returns the badge catalog
func (s *BadgeService) ListBadges(ctx context.Context) ([]models.Badge, error) {
	return s.badges.ListBadges(ctx)
}

// ListEarnedBadges returns the badges userID has earned
func (s *BadgeService) ListEarnedBadges(ctx context.Context, userID int64) ([]models.UserBadge, error) {
	return s.badges.ListUserBadges(ctx, userID)
}

// EvaluateBadges awards every badge profile now qualifies for and returns the new ones.
// profile must reflect the counters as written in tx.
func (s *BadgeService) EvaluateBadges(ctx context.Context, tx *database.Tx, profile *models.Profile, now time.Time) ([]models.Badge, error) {
	badges := s.badges.WithTx(tx)
	lessons := s.lessons.WithTx(tx)
	activity := s.activity.WithTx(tx)

	catalog, err := badges.ListBadges(ctx)
	if err != nil {
		return nil, err
	}

	var awarded []models.Badge
	for _, badge := range catalog {
		ok, err := s.qualifies(ctx, lessons, badge, profile)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}

		added, err := badges.AwardBadge(ctx, profile.UserID, badge.ID, now)
		if err != nil {
			return nil, err
		}
		if !added {
			continue
		}

		awarded = append(awarded, badge)
		err = activity.LogActivity(ctx, &models.ActivityLog{
			UserID:           profile.UserID,
			OrganizationCode: profile.OrganizationCode,
			Type:             models.ActivityBadgeEarned,
			Message:          fmt.Sprintf("%s earned the %s badge", displayNameOf(profile), badge.Name),
			Metadata:         map[string]string{"badge_id": fmt.Sprint(badge.ID)},
		})
		if err != nil {
			return nil, err
		}
	}
	return awarded, nil
}

// qualifies checks a badge's lesson and counter requirements. A badge with neither is never
// awarded automatically.
func (s *BadgeService) qualifies(ctx context.Context, lessons *repository.LessonRepository, badge models.Badge, profile *models.Profile) (bool, error) {
	if badge.LessonID == nil && badge.Requirements.IsZero() {
		return false, nil
	}
	if !badge.Requirements.SatisfiedBy(profile) {
		return false, nil
	}
	if badge.LessonID != nil {
		progress, err := lessons.GetProgress(ctx, profile.UserID, *badge.LessonID)
		if err != nil {
			return false, err
		}
		if progress == nil || !progress.IsCompleted {
			return false, nil
		}
	}
	return true, nil
}

func displayNameOf(p *models.Profile) string {
	if p.DisplayName != "" {
		return p.DisplayName
	}
	return "A student"
}
