package models

import "time"

// Mission is a real-world task that needs proof and organization approval
type Mission struct {
	ID               int64     `json:"id"`
	Title            string    `json:"title"`
	Description      string    `json:"description"`
	Category         string    `json:"category"`
	Difficulty       string    `json:"difficulty"`
	EstimatedTime    string    `json:"estimated_time"`
	Instructions     string    `json:"instructions"`
	InstructionsHTML string    `json:"instructions_html,omitempty"`
	Requirements     []string  `json:"requirements"`
	Points           int       `json:"points"`
	LessonID         *int64    `json:"lesson_id,omitempty"`
	IsActive         bool      `json:"is_active"`
	CreatedAt        time.Time `json:"created_at"`
	UpdatedAt        time.Time `json:"updated_at"`
}

// SubmissionStatus is a state of the mission submission lifecycle
type SubmissionStatus string

const (
	// StatusNotStarted is never stored; it is the absence of a submission row
	StatusNotStarted SubmissionStatus = "not_started"
	StatusInProgress SubmissionStatus = "in_progress"
	StatusSubmitted  SubmissionStatus = "submitted"
	StatusApproved   SubmissionStatus = "approved"
	StatusRejected   SubmissionStatus = "rejected"
)

var submissionTransitions = map[SubmissionStatus][]SubmissionStatus{
	StatusNotStarted: {StatusInProgress},
	StatusInProgress: {StatusSubmitted},
	StatusSubmitted:  {StatusApproved, StatusRejected},
	StatusRejected:   {StatusSubmitted},
}

// CanTransition reports whether a submission may move from one status to another
func CanTransition(from, to SubmissionStatus) bool {
	for _, next := range submissionTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// MissionSubmission is a user's single attempt record for a mission
type MissionSubmission struct {
	ID             int64            `json:"id"`
	UserID         int64            `json:"user_id"`
	MissionID      int64            `json:"mission_id"`
	Status         SubmissionStatus `json:"status"`
	SubmissionData string           `json:"submission_data,omitempty"`
	VideoURL       string           `json:"video_url,omitempty"`
	Iteration      int              `json:"iteration"`
	PointsAwarded  *int             `json:"points_awarded,omitempty"`
	ReviewerID     *int64           `json:"reviewer_id,omitempty"`
	ReviewerNotes  string           `json:"reviewer_notes,omitempty"`
	SubmittedAt    *time.Time       `json:"submitted_at,omitempty"`
	ReviewedAt     *time.Time       `json:"reviewed_at,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
	UpdatedAt      time.Time        `json:"updated_at"`
}

// CurrentStatus returns the status of s, treating a missing row as not started
func (s *MissionSubmission) CurrentStatus() SubmissionStatus {
	if s == nil {
		return StatusNotStarted
	}
	return s.Status
}

// ReviewItem is a submitted mission with the context a reviewer needs
type ReviewItem struct {
	Submission    MissionSubmission `json:"submission"`
	MissionTitle  string            `json:"mission_title"`
	MissionPoints int               `json:"mission_points"`
	StudentName   string            `json:"student_name"`
}
