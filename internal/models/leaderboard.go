package models

// Scope selects which slice of profiles a leaderboard ranks
type Scope string

const (
	ScopeOrganization Scope = "organization"
	ScopeDistrict     Scope = "district"
	ScopeState        Scope = "state"
	ScopeCountry      Scope = "country"
	ScopeGlobal       Scope = "global"
)

// LeaderboardLimit is the number of rows a leaderboard returns
const LeaderboardLimit = 50

// ScopeFilter is a resolved scope plus the value profiles must match
type ScopeFilter struct {
	Scope Scope  `json:"scope"`
	Value string `json:"value,omitempty"`
}

// LeaderboardEntry is a ranked student row
type LeaderboardEntry struct {
	Rank              int    `json:"rank"`
	UserID            int64  `json:"user_id"`
	DisplayName       string `json:"display_name"`
	EcoPoints         int    `json:"eco_points"`
	Level             int    `json:"level"`
	CompletedLessons  int    `json:"completed_lessons"`
	CompletedMissions int    `json:"completed_missions"`
	StreakDays        int    `json:"streak_days"`
	OrganizationName  string `json:"organization_name,omitempty"`
	OrganizationCode  string `json:"organization_code,omitempty"`
	Region            Region `json:"region"`
}

// OrganizationLeaderboardEntry is a ranked organization aggregate row
type OrganizationLeaderboardEntry struct {
	Rank                   int     `json:"rank"`
	OrganizationID         int64   `json:"organization_id"`
	OrganizationCode       string  `json:"organization_code"`
	OrganizationName       string  `json:"organization_name"`
	Region                 Region  `json:"region"`
	StudentCount           int     `json:"student_count"`
	TotalEcoPoints         int     `json:"total_eco_points"`
	AvgEcoPoints           float64 `json:"avg_eco_points"`
	TotalLessonsCompleted  int     `json:"total_lessons_completed"`
	TotalMissionsCompleted int     `json:"total_missions_completed"`
}
