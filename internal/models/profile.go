package models

import (
	"strings"
	"time"
)

// Role distinguishes learners from the organizations that review them
type Role string

const (
	RoleStudent      Role = "student"
	RoleOrganization Role = "organization"
)

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	return r == RoleStudent || r == RoleOrganization
}

// DefaultCountry is applied when sign-up leaves the country blank
const DefaultCountry = "India"

// Region is the geographic placement of a profile, from broad to specific
type Region struct {
	Country  string `json:"country"`
	State    string `json:"state"`
	District string `json:"district"`
}

// Profile is the per-user gamification record
type Profile struct {
	UserID            int64      `json:"user_id"`
	Role              Role       `json:"role"`
	DisplayName       string     `json:"display_name"`
	AvatarURL         string     `json:"avatar_url,omitempty"`
	Gender            string     `json:"gender,omitempty"`
	EcoPoints         int        `json:"eco_points"`
	CompletedLessons  int        `json:"completed_lessons"`
	CompletedMissions int        `json:"completed_missions"`
	StreakDays        int        `json:"streak_days"`
	LastActivityDate  *time.Time `json:"last_activity_date,omitempty"`
	Region            Region     `json:"region"`
	OrganizationName  string     `json:"organization_name,omitempty"`
	OrganizationCode  string     `json:"organization_code,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// IsOrganization reports whether the profile belongs to an organization account
func (p *Profile) IsOrganization() bool {
	return p.Role == RoleOrganization
}

// IsAffiliated reports whether the profile is tied to an organization code,
// either its own (organizations) or the one matched at sign-up (students)
func (p *Profile) IsAffiliated() bool {
	return strings.TrimSpace(p.OrganizationCode) != ""
}

// CanReview reports whether this profile may review work submitted by student
func (p *Profile) CanReview(student *Profile) bool {
	if p == nil || student == nil || !p.IsOrganization() || !p.IsAffiliated() {
		return false
	}
	return student.Role == RoleStudent && student.OrganizationCode == p.OrganizationCode
}
