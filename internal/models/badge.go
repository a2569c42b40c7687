package models

import (
	"encoding/json"
	"time"
)

// Badge is a catalog achievement
type Badge struct {
	ID           int64            `json:"id"`
	Name         string           `json:"name"`
	Description  string           `json:"description"`
	ImageURL     string           `json:"image_url"`
	Category     string           `json:"category"`
	LessonID     *int64           `json:"lesson_id,omitempty"`
	Requirements BadgeRequirement `json:"requirements"`
	CreatedAt    time.Time        `json:"created_at"`
}

// BadgeRequirement is the machine-checkable condition of a badge. Zero fields are ignored,
// every non-zero field must hold.
type BadgeRequirement struct {
	LessonsCompleted  int `json:"lessons_completed,omitempty"`
	MissionsCompleted int `json:"missions_completed,omitempty"`
	EcoPoints         int `json:"eco_points,omitempty"`
	StreakDays        int `json:"streak_days,omitempty"`
}

// ParseBadgeRequirement decodes the stored JSON requirement
func ParseBadgeRequirement(raw string) (BadgeRequirement, error) {
	var req BadgeRequirement
	if raw == "" || raw == "null" {
		return req, nil
	}
	err := json.Unmarshal([]byte(raw), &req)
	return req, err
}

// IsZero reports whether the requirement has no counters
func (r BadgeRequirement) IsZero() bool {
	return r == BadgeRequirement{}
}

// SatisfiedBy reports whether a profile meets every counter of the requirement
func (r BadgeRequirement) SatisfiedBy(p *Profile) bool {
	if p == nil {
		return false
	}
	return p.CompletedLessons >= r.LessonsCompleted &&
		p.CompletedMissions >= r.MissionsCompleted &&
		p.EcoPoints >= r.EcoPoints &&
		p.StreakDays >= r.StreakDays
}

// UserBadge is a badge earned by a user
type UserBadge struct {
	UserID   int64     `json:"user_id"`
	Badge    Badge     `json:"badge"`
	EarnedAt time.Time `json:"earned_at"`
}
