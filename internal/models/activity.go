package models

import "time"

// Activity types written to the activity log
const (
	ActivityLessonCompleted  = "lesson_completed"
	ActivityMissionStarted   = "mission_started"
	ActivityMissionSubmitted = "mission_submitted"
	ActivityMissionApproved  = "mission_approved"
	ActivityMissionRejected  = "mission_rejected"
	ActivityBadgeEarned      = "badge_earned"
	ActivityStudentJoined    = "student_joined"
)

// ActivityLog is an entry of an organization's activity feed
type ActivityLog struct {
	ID               int64             `json:"id"`
	UserID           int64             `json:"user_id"`
	OrganizationCode string            `json:"organization_code"`
	Type             string            `json:"type"`
	Message          string            `json:"message"`
	Metadata         map[string]string `json:"metadata,omitempty"`
	CreatedAt        time.Time         `json:"created_at"`
}
