package models

import (
	"encoding/json"
	"math"
	"time"
)

// Lesson is a published unit of the learning catalog
type Lesson struct {
	ID              int64         `json:"id"`
	Slug            string        `json:"slug"`
	Title           string        `json:"title"`
	Description     string        `json:"description"`
	DescriptionHTML string        `json:"description_html,omitempty"`
	Category        string        `json:"category"`
	Difficulty      string        `json:"difficulty"`
	DurationMinutes int           `json:"duration_minutes"`
	OrderIndex      int           `json:"order_index"`
	IsPublished     bool          `json:"is_published"`
	ThumbnailURL    string        `json:"thumbnail_url,omitempty"`
	Content         LessonContent `json:"content"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// LessonContent is the structured body stored as JSON with the lesson
type LessonContent struct {
	VideoURL string         `json:"video_url"`
	Quiz     []QuizQuestion `json:"quiz"`
}

// QuizQuestion is a multiple-choice question; CorrectAnswer indexes Options
type QuizQuestion struct {
	ID            string   `json:"id"`
	Question      string   `json:"question"`
	Options       []string `json:"options"`
	CorrectAnswer int      `json:"correct_answer"`
	Explanation   string   `json:"explanation,omitempty"`
}

// ParseLessonContent decodes the stored JSON content; empty input yields empty content
func ParseLessonContent(raw string) (LessonContent, error) {
	var content LessonContent
	if raw == "" {
		return content, nil
	}
	if err := json.Unmarshal([]byte(raw), &content); err != nil {
		return LessonContent{}, err
	}
	return content, nil
}

// Stage is a step of the lesson pipeline
type Stage string

const (
	StageVideo     Stage = "VIDEO"
	StageQuiz      Stage = "QUIZ"
	StageMissions  Stage = "MISSIONS"
	StageCompleted Stage = "COMPLETED"
)

// Stored progress weights of the lesson pipeline
const (
	VideoStageWeight   = 33
	ProgressAfterVideo = 33
	ProgressAfterQuiz  = 67
	ProgressCompleted  = 100
)

// StageForProgress derives the pipeline stage from a stored percentage
func StageForProgress(percentage int) Stage {
	switch {
	case percentage >= ProgressCompleted:
		return StageCompleted
	case percentage >= ProgressAfterQuiz:
		return StageMissions
	case percentage >= ProgressAfterVideo:
		return StageQuiz
	default:
		return StageVideo
	}
}

// VideoProgressPercentage maps a playback position onto the video share of the lesson.
// The result is clamped to [0, VideoStageWeight].
func VideoProgressPercentage(position, duration float64) int {
	if duration <= 0 || position <= 0 {
		return 0
	}
	fraction := position / duration
	if fraction > 1 {
		fraction = 1
	}
	return int(math.Floor(fraction * VideoStageWeight))
}

// LessonProgress is a user's position in one lesson
type LessonProgress struct {
	ID                 int64      `json:"id"`
	UserID             int64      `json:"user_id"`
	LessonID           int64      `json:"lesson_id"`
	ProgressPercentage int        `json:"progress_percentage"`
	IsCompleted        bool       `json:"is_completed"`
	LastAccessedAt     time.Time  `json:"last_accessed_at"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// Stage returns the pipeline stage of this progress row
func (p *LessonProgress) Stage() Stage {
	if p == nil {
		return StageVideo
	}
	if p.IsCompleted {
		return StageCompleted
	}
	return StageForProgress(p.ProgressPercentage)
}

// LessonVideo is the resume point of a user's playback
type LessonVideo struct {
	UserID        int64      `json:"user_id"`
	LessonID      int64      `json:"lesson_id"`
	VideoPosition float64    `json:"video_position"`
	Duration      float64    `json:"duration"`
	LastWatchedAt *time.Time `json:"last_watched_at,omitempty"`
}
