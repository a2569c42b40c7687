package service

import (
	"context"
	"fmt"
	"math"
	"strconv"
	"time"

	"ecoquest/internal/content"
	"ecoquest/internal/database"
	"ecoquest/internal/models"
	"ecoquest/internal/realtime"
	"ecoquest/internal/repository"
	"ecoquest/internal/validation"
)

// LessonRules configure quiz gating, rewards and video progress persistence
type LessonRules struct {
	QuizPassThreshold     int
	QuizRequired          bool
	CompletionPoints      int
	VideoProgressInterval time.Duration
}

// LessonService drives a user through the VIDEO, QUIZ, MISSIONS and COMPLETED stages of a lesson
type LessonService struct {
	db       *database.DB
	lessons  *repository.LessonRepository
	missions *repository.MissionRepository
	profiles *repository.ProfileRepository
	activity *repository.ActivityRepository
	badges   *BadgeService
	events   realtime.Publisher
	rules    LessonRules
	levels   LevelRules
	throttle *Throttle
	now      func() time.Time
}

// NewLessonService creates a new lesson service
func NewLessonService(
	db *database.DB,
	lessons *repository.LessonRepository,
	missions *repository.MissionRepository,
	profiles *repository.ProfileRepository,
	activity *repository.ActivityRepository,
	badges *BadgeService,
	events realtime.Publisher,
	rules LessonRules,
	levels LevelRules,
) *LessonService {
	if events == nil {
		events = realtime.Discard{}
	}
	return &LessonService{
		db:       db,
		lessons:  lessons,
		missions: missions,
		profiles: profiles,
		activity: activity,
		badges:   badges,
		events:   events,
		rules:    rules,
		levels:   levels,
		throttle: NewThrottle(rules.VideoProgressInterval),
		now:      time.Now,
	}
}

// LessonState is the confirmed server-side position of a user in a lesson
type LessonState struct {
	LessonID           int64          `json:"lesson_id"`
	ProgressPercentage int            `json:"progress_percentage"`
	IsCompleted        bool           `json:"is_completed"`
	Stage              models.Stage   `json:"stage"`
	Reward             *RewardOutcome `json:"reward,omitempty"`
}

// RewardOutcome describes points granted by a completion or an approval
type RewardOutcome struct {
	PointsAwarded int            `json:"points_awarded"`
	EcoPoints     int            `json:"eco_points"`
	Level         int            `json:"level"`
	LevelUp       bool           `json:"level_up"`
	BadgesEarned  []models.Badge `json:"badges_earned,omitempty"`
}

// QuizQuestionView is a quiz question without its answer
type QuizQuestionView struct {
	ID       string   `json:"id"`
	Question string   `json:"question"`
	Options  []string `json:"options"`
}

// LessonSummary is a catalog entry with the viewer's progress
type LessonSummary struct {
	ID              int64       `json:"id"`
	Slug            string      `json:"slug"`
	Title           string      `json:"title"`
	Description     string      `json:"description"`
	Category        string      `json:"category"`
	Difficulty      string      `json:"difficulty"`
	DurationMinutes int         `json:"duration_minutes"`
	OrderIndex      int         `json:"order_index"`
	ThumbnailURL    string      `json:"thumbnail_url,omitempty"`
	Progress        LessonState `json:"progress"`
}

// LessonDetail is a lesson with everything needed to play it
type LessonDetail struct {
	LessonSummary
	DescriptionHTML string              `json:"description_html"`
	VideoURL        string              `json:"video_url"`
	Quiz            []QuizQuestionView  `json:"quiz"`
	Missions        []models.Mission    `json:"missions"`
	Video           *models.LessonVideo `json:"video,omitempty"`
}

// QuizResult is the outcome of a quiz attempt
type QuizResult struct {
	Score     int         `json:"score"`
	Correct   int         `json:"correct"`
	Total     int         `json:"total"`
	Passed    bool        `json:"passed"`
	Threshold int         `json:"threshold"`
	Lesson    LessonState `json:"lesson"`
}

// ScoreQuiz counts answers matching each question's correct option and returns the
// rounded percentage. Missing answers count as wrong; a quiz without questions scores 100.
func ScoreQuiz(questions []models.QuizQuestion, answers []int) (correct, score int) {
	if len(questions) == 0 {
		return 0, 100
	}
	for i, q := range questions {
		if i < len(answers) && answers[i] == q.CorrectAnswer {
			correct++
		}
	}
	score = int(math.Round(float64(correct) / float64(len(questions)) * 100))
	return correct, score
}

func stateOf(lessonID int64, p *models.LessonProgress) LessonState {
	state := LessonState{LessonID: lessonID, Stage: p.Stage()}
	if p != nil {
		state.ProgressPercentage = p.ProgressPercentage
		state.IsCompleted = p.IsCompleted
	}
	return state
}

func summarize(lesson *models.Lesson, p *models.LessonProgress) LessonSummary {
	return LessonSummary{
		ID:              lesson.ID,
		Slug:            lesson.Slug,
		Title:           lesson.Title,
		Description:     lesson.Description,
		Category:        lesson.Category,
		Difficulty:      lesson.Difficulty,
		DurationMinutes: lesson.DurationMinutes,
		OrderIndex:      lesson.OrderIndex,
		ThumbnailURL:    lesson.ThumbnailURL,
		Progress:        stateOf(lesson.ID, p),
	}
}

// ListLessons returns the published catalog with userID's progress
func (s *LessonService) ListLessons(ctx context.Context, userID int64) ([]LessonSummary, error) {
	lessons, err := s.lessons.ListLessons(ctx, false)
	if err != nil {
		return nil, err
	}
	progress, err := s.lessons.ListUserProgress(ctx, userID)
	if err != nil {
		return nil, err
	}

	byLesson := make(map[int64]*models.LessonProgress, len(progress))
	for i := range progress {
		byLesson[progress[i].LessonID] = &progress[i]
	}

	summaries := make([]LessonSummary, 0, len(lessons))
	for i := range lessons {
		summaries = append(summaries, summarize(&lessons[i], byLesson[lessons[i].ID]))
	}
	return summaries, nil
}

// GetLesson returns a lesson by numeric id or slug with userID's progress
func (s *LessonService) GetLesson(ctx context.Context, userID int64, ref string) (*LessonDetail, error) {
	var lesson *models.Lesson
	var err error
	if id, parseErr := strconv.ParseInt(ref, 10, 64); parseErr == nil {
		lesson, err = s.lessons.GetLesson(ctx, id)
	} else {
		lesson, err = s.lessons.GetLessonBySlug(ctx, ref)
	}
	if err != nil {
		return nil, err
	}
	if lesson == nil || !lesson.IsPublished {
		return nil, ErrNotFound
	}

	progress, err := s.lessons.GetProgress(ctx, userID, lesson.ID)
	if err != nil {
		return nil, err
	}
	video, err := s.lessons.GetVideo(ctx, userID, lesson.ID)
	if err != nil {
		return nil, err
	}
	missions, err := s.missions.ListLessonMissions(ctx, lesson.ID)
	if err != nil {
		return nil, err
	}
	for i := range missions {
		missions[i].InstructionsHTML = content.RenderMarkdown(missions[i].Instructions)
	}

	quiz := make([]QuizQuestionView, 0, len(lesson.Content.Quiz))
	for _, q := range lesson.Content.Quiz {
		quiz = append(quiz, QuizQuestionView{ID: q.ID, Question: q.Question, Options: q.Options})
	}

	return &LessonDetail{
		LessonSummary:   summarize(lesson, progress),
		DescriptionHTML: content.RenderMarkdown(lesson.Description),
		VideoURL:        lesson.Content.VideoURL,
		Quiz:            quiz,
		Missions:        missions,
		Video:           video,
	}, nil
}

func (s *LessonService) publishedLesson(ctx context.Context, lessonID int64) (*models.Lesson, error) {
	lesson, err := s.lessons.GetLesson(ctx, lessonID)
	if err != nil {
		return nil, err
	}
	if lesson == nil || !lesson.IsPublished {
		return nil, ErrNotFound
	}
	return lesson, nil
}

// ensureProgress returns the user's progress row, creating it at 0% when absent
func ensureProgress(ctx context.Context, lessons *repository.LessonRepository, userID, lessonID int64) (*models.LessonProgress, error) {
	progress, err := lessons.GetProgress(ctx, userID, lessonID)
	if err != nil || progress != nil {
		return progress, err
	}
	progress, err = lessons.CreateProgress(ctx, userID, lessonID)
	if err != nil {
		// a concurrent request may have created it first
		existing, getErr := lessons.GetProgress(ctx, userID, lessonID)
		if getErr == nil && existing != nil {
			return existing, nil
		}
		return nil, err
	}
	return progress, nil
}

func (s *LessonService) profileOf(ctx context.Context, userID int64) (*models.Profile, error) {
	profile, err := s.profiles.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, ErrNotFound
	}
	return profile, nil
}

// touch records lesson activity on the user's streak; failures are not fatal to the lesson
func (s *LessonService) touch(ctx context.Context, userID int64) {
	profile, err := s.profileOf(ctx, userID)
	if err == nil {
		err = touchStreak(ctx, s.profiles, profile, s.now())
	}
	if err != nil {
		logError("update streak", err)
	}
}

// StartLesson opens the lesson for userID, creating progress at 0% if needed
func (s *LessonService) StartLesson(ctx context.Context, userID, lessonID int64) (*LessonState, error) {
	if _, err := s.publishedLesson(ctx, lessonID); err != nil {
		return nil, err
	}
	progress, err := ensureProgress(ctx, s.lessons, userID, lessonID)
	if err != nil {
		return nil, err
	}
	if err := s.lessons.TouchProgress(ctx, userID, lessonID); err != nil {
		return nil, err
	}
	s.touch(ctx, userID)

	state := stateOf(lessonID, progress)
	return &state, nil
}

// RecordVideoProgress stores the playback position and raises the video share of progress.
// Writes for the same user and lesson are persisted at most once per interval; throttled calls
// return the stored state unchanged.
func (s *LessonService) RecordVideoProgress(ctx context.Context, userID, lessonID int64, position, duration float64) (*LessonState, error) {
	var errs validation.ValidationErrors
	if position < 0 || math.IsNaN(position) || math.IsInf(position, 0) {
		errs = append(errs, validation.ValidationError{Field: "position", Message: "position must be a non-negative number"})
	}
	if duration < 0 || math.IsNaN(duration) || math.IsInf(duration, 0) {
		errs = append(errs, validation.ValidationError{Field: "duration", Message: "duration must be a non-negative number"})
	}
	if len(errs) > 0 {
		return nil, errs
	}

	if _, err := s.publishedLesson(ctx, lessonID); err != nil {
		return nil, err
	}
	progress, err := ensureProgress(ctx, s.lessons, userID, lessonID)
	if err != nil {
		return nil, err
	}

	key := fmt.Sprintf("%d:%d", userID, lessonID)
	if !s.throttle.Allow(key, s.now()) {
		state := stateOf(lessonID, progress)
		return &state, nil
	}

	if err := s.lessons.SaveVideo(ctx, userID, lessonID, position, duration); err != nil {
		return nil, err
	}
	percentage := models.VideoProgressPercentage(position, duration)
	if percentage > 0 {
		raised, err := s.lessons.RaiseProgress(ctx, userID, lessonID, percentage)
		if err != nil {
			return nil, err
		}
		if raised {
			progress.ProgressPercentage = percentage
		}
	}

	state := stateOf(lessonID, progress)
	if percentage >= models.ProgressAfterVideo {
		s.publishState(ctx, userID, state)
	}
	return &state, nil
}

// CompleteVideo moves the lesson from VIDEO to QUIZ
func (s *LessonService) CompleteVideo(ctx context.Context, userID, lessonID int64) (*LessonState, error) {
	if _, err := s.publishedLesson(ctx, lessonID); err != nil {
		return nil, err
	}
	progress, err := ensureProgress(ctx, s.lessons, userID, lessonID)
	if err != nil {
		return nil, err
	}
	raised, err := s.lessons.RaiseProgress(ctx, userID, lessonID, models.ProgressAfterVideo)
	if err != nil {
		return nil, err
	}
	if raised {
		progress.ProgressPercentage = models.ProgressAfterVideo
	}
	s.touch(ctx, userID)

	state := stateOf(lessonID, progress)
	s.publishState(ctx, userID, state)
	return &state, nil
}

// SubmitQuiz scores answers and advances the lesson past QUIZ unless a required gate fails.
// Lessons without active missions complete immediately.
func (s *LessonService) SubmitQuiz(ctx context.Context, userID, lessonID int64, answers []int) (*QuizResult, error) {
	lesson, err := s.publishedLesson(ctx, lessonID)
	if err != nil {
		return nil, err
	}
	progress, err := s.lessons.GetProgress(ctx, userID, lessonID)
	if err != nil {
		return nil, err
	}
	if progress.Stage() == models.StageVideo {
		return nil, ErrQuizNotAvailable
	}

	correct, score := ScoreQuiz(lesson.Content.Quiz, answers)
	result := &QuizResult{
		Score:     score,
		Correct:   correct,
		Total:     len(lesson.Content.Quiz),
		Passed:    score >= s.rules.QuizPassThreshold,
		Threshold: s.rules.QuizPassThreshold,
	}

	state := stateOf(lessonID, progress)
	if progress.Stage() != models.StageQuiz || (!result.Passed && s.rules.QuizRequired) {
		result.Lesson = state
		s.touch(ctx, userID)
		return result, nil
	}

	missions, err := s.missions.ListLessonMissions(ctx, lessonID)
	if err != nil {
		return nil, err
	}
	if len(missions) > 0 {
		raised, err := s.lessons.RaiseProgress(ctx, userID, lessonID, models.ProgressAfterQuiz)
		if err != nil {
			return nil, err
		}
		if raised {
			progress.ProgressPercentage = models.ProgressAfterQuiz
		}
		s.touch(ctx, userID)
		result.Lesson = stateOf(lessonID, progress)
		s.publishState(ctx, userID, result.Lesson)
		return result, nil
	}

	completed, err := s.complete(ctx, userID, lesson)
	if err != nil {
		return nil, err
	}
	result.Lesson = *completed
	return result, nil
}

// CompleteLesson marks a lesson at MISSIONS as completed. Completing an already completed
// lesson returns its state unchanged.
func (s *LessonService) CompleteLesson(ctx context.Context, userID, lessonID int64) (*LessonState, error) {
	lesson, err := s.publishedLesson(ctx, lessonID)
	if err != nil {
		return nil, err
	}
	progress, err := s.lessons.GetProgress(ctx, userID, lessonID)
	if err != nil {
		return nil, err
	}

	switch progress.Stage() {
	case models.StageCompleted:
		state := stateOf(lessonID, progress)
		return &state, nil
	case models.StageMissions:
		return s.complete(ctx, userID, lesson)
	default:
		return nil, ErrInvalidTransition
	}
}

// complete finishes the lesson in a transaction and publishes the result
func (s *LessonService) complete(ctx context.Context, userID int64, lesson *models.Lesson) (*LessonState, error) {
	var reward *RewardOutcome
	err := s.db.WithTx(ctx, func(tx *database.Tx) error {
		var err error
		reward, err = s.completeInTx(ctx, tx, userID, lesson)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to complete lesson: %w", err)
	}

	progress, err := s.lessons.GetProgress(ctx, userID, lesson.ID)
	if err != nil {
		return nil, err
	}
	state := stateOf(lesson.ID, progress)
	state.Reward = reward
	s.publishState(ctx, userID, state)
	s.publishReward(ctx, userID, reward)
	return &state, nil
}

// completeInTx marks the lesson completed and grants the first-completion reward.
// It returns nil when the lesson was already completed.
func (s *LessonService) completeInTx(ctx context.Context, tx *database.Tx, userID int64, lesson *models.Lesson) (*RewardOutcome, error) {
	lessons := s.lessons.WithTx(tx)
	profiles := s.profiles.WithTx(tx)

	if _, err := ensureProgress(ctx, lessons, userID, lesson.ID); err != nil {
		return nil, err
	}
	first, err := lessons.MarkCompleted(ctx, userID, lesson.ID)
	if err != nil || !first {
		return nil, err
	}

	profile, err := profiles.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, ErrNotFound
	}

	now := s.now()
	points := s.rules.CompletionPoints
	before := profile.EcoPoints
	if err := profiles.ApplyReward(ctx, userID, points, 1, 0); err != nil {
		return nil, err
	}
	profile.EcoPoints += points
	profile.CompletedLessons++

	if err := touchStreak(ctx, profiles, profile, now); err != nil {
		return nil, err
	}

	err = s.activity.WithTx(tx).LogActivity(ctx, &models.ActivityLog{
		UserID:           userID,
		OrganizationCode: profile.OrganizationCode,
		Type:             models.ActivityLessonCompleted,
		Message:          fmt.Sprintf("%s completed the lesson %q", displayNameOf(profile), lesson.Title),
		Metadata:         map[string]string{"lesson_id": strconv.FormatInt(lesson.ID, 10)},
	})
	if err != nil {
		return nil, err
	}

	earned, err := s.badges.EvaluateBadges(ctx, tx, profile, now)
	if err != nil {
		return nil, err
	}

	perLevel := s.levels.PointsPerLevel(profile.Role)
	return &RewardOutcome{
		PointsAwarded: points,
		EcoPoints:     profile.EcoPoints,
		Level:         models.LevelFor(profile.EcoPoints, perLevel),
		LevelUp:       models.LeveledUp(before, profile.EcoPoints, perLevel),
		BadgesEarned:  earned,
	}, nil
}

func (s *LessonService) publishState(ctx context.Context, userID int64, state LessonState) {
	realtime.PublishAll(ctx, s.events, realtime.NewEvent(realtime.EventLessonProgress, state).ForUser(userID))
}

func (s *LessonService) publishReward(ctx context.Context, userID int64, reward *RewardOutcome) {
	publishReward(ctx, s.events, userID, reward)
}

// publishReward announces a points change and, when it crossed a level, the level-up
func publishReward(ctx context.Context, events realtime.Publisher, userID int64, reward *RewardOutcome) {
	if reward == nil {
		return
	}
	list := []realtime.Event{realtime.NewEvent(realtime.EventLeaderboardUpdated, nil)}
	if reward.LevelUp {
		list = append(list, realtime.NewEvent(realtime.EventLevelUp, map[string]int{
			"level":      reward.Level,
			"eco_points": reward.EcoPoints,
		}).ForUser(userID))
	}
	realtime.PublishAll(ctx, events, list...)
}

// completeIfAtMissions finishes a lesson that is waiting on its missions
func (s *LessonService) completeIfAtMissions(ctx context.Context, userID, lessonID int64) (*LessonState, error) {
	lesson, err := s.publishedLesson(ctx, lessonID)
	if err != nil {
		return nil, err
	}
	progress, err := s.lessons.GetProgress(ctx, userID, lessonID)
	if err != nil {
		return nil, err
	}
	if progress.Stage() != models.StageMissions {
		return nil, nil
	}
	return s.complete(ctx, userID, lesson)
}
