package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"strconv"
	"strings"
	"time"

	"ecoquest/internal/content"
	"ecoquest/internal/database"
	"ecoquest/internal/models"
	"ecoquest/internal/realtime"
	"ecoquest/internal/repository"
	"ecoquest/internal/storage"
	"ecoquest/internal/validation"
)

// ApprovedNote is stored as the reviewer notes of an approved submission
const ApprovedNote = "Approved by organization"

// MissionRules configure proof uploads
type MissionRules struct {
	MaxVideoUploadBytes int64
	SignedURLTTL        time.Duration
}

// MissionService runs the mission submission lifecycle and its review by organizations
type MissionService struct {
	db       *database.DB
	missions *repository.MissionRepository
	profiles *repository.ProfileRepository
	users    *repository.UserRepository
	activity *repository.ActivityRepository
	lessons  *LessonService
	badges   *BadgeService
	store    storage.Storage
	emails   *EmailService
	events   realtime.Publisher
	rules    MissionRules
	levels   LevelRules
	now      func() time.Time
}

// NewMissionService creates a new mission service
func NewMissionService(
	db *database.DB,
	missions *repository.MissionRepository,
	profiles *repository.ProfileRepository,
	users *repository.UserRepository,
	activity *repository.ActivityRepository,
	lessons *LessonService,
	badges *BadgeService,
	store storage.Storage,
	emails *EmailService,
	events realtime.Publisher,
	rules MissionRules,
	levels LevelRules,
) *MissionService {
	if events == nil {
		events = realtime.Discard{}
	}
	return &MissionService{
		db:       db,
		missions: missions,
		profiles: profiles,
		users:    users,
		activity: activity,
		lessons:  lessons,
		badges:   badges,
		store:    store,
		emails:   emails,
		events:   events,
		rules:    rules,
		levels:   levels,
		now:      time.Now,
	}
}

// MissionView is a mission with the viewer's submission status
type MissionView struct {
	models.Mission
	Status     models.SubmissionStatus   `json:"status"`
	Submission *models.MissionSubmission `json:"submission,omitempty"`
}

// StartMissionResult is the submission after starting and, when starting finished the
// linked lesson, the lesson's new state
type StartMissionResult struct {
	Submission *models.MissionSubmission `json:"submission"`
	Lesson     *LessonState              `json:"lesson,omitempty"`
}

// VideoUpload is a proof video received with a submission
type VideoUpload struct {
	Size int64
	Body io.ReadSeeker
}

// SubmitMissionRequest is a student's proof for a mission
type SubmitMissionRequest struct {
	Description string
	Video       *VideoUpload
}

func (s *MissionService) view(m models.Mission, sub *models.MissionSubmission) MissionView {
	m.InstructionsHTML = content.RenderMarkdown(m.Instructions)
	return MissionView{Mission: m, Status: sub.CurrentStatus(), Submission: sub}
}

// ListMissions returns active missions with userID's status for each
func (s *MissionService) ListMissions(ctx context.Context, userID int64) ([]MissionView, error) {
	missions, err := s.missions.ListMissions(ctx, false)
	if err != nil {
		return nil, err
	}
	submissions, err := s.missions.ListUserSubmissions(ctx, userID)
	if err != nil {
		return nil, err
	}

	byMission := make(map[int64]*models.MissionSubmission, len(submissions))
	for i := range submissions {
		byMission[submissions[i].MissionID] = &submissions[i]
	}

	views := make([]MissionView, 0, len(missions))
	for _, m := range missions {
		views = append(views, s.view(m, byMission[m.ID]))
	}
	return views, nil
}

// GetMission returns an active mission with userID's submission
func (s *MissionService) GetMission(ctx context.Context, userID, missionID int64) (*MissionView, error) {
	mission, err := s.activeMission(ctx, missionID)
	if err != nil {
		return nil, err
	}
	sub, err := s.missions.GetSubmission(ctx, userID, missionID)
	if err != nil {
		return nil, err
	}
	view := s.view(*mission, sub)
	return &view, nil
}

func (s *MissionService) activeMission(ctx context.Context, missionID int64) (*models.Mission, error) {
	mission, err := s.missions.GetMission(ctx, missionID)
	if err != nil {
		return nil, err
	}
	if mission == nil || !mission.IsActive {
		return nil, ErrNotFound
	}
	return mission, nil
}

// StartMission records that userID is working on a mission. Starting an already started mission
// returns the existing submission unchanged.
func (s *MissionService) StartMission(ctx context.Context, userID, missionID int64) (*StartMissionResult, error) {
	mission, err := s.activeMission(ctx, missionID)
	if err != nil {
		return nil, err
	}

	sub, err := s.missions.GetSubmission(ctx, userID, missionID)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		sub, err = s.missions.CreateSubmission(ctx, userID, missionID)
		if err != nil {
			existing, getErr := s.missions.GetSubmission(ctx, userID, missionID)
			if getErr != nil || existing == nil {
				return nil, err
			}
			sub = existing
		} else {
			s.logStudentActivity(ctx, userID, models.ActivityMissionStarted, "started the mission %q", mission)
		}
	}

	result := &StartMissionResult{Submission: sub}
	if mission.LessonID != nil && s.lessons != nil {
		state, err := s.lessons.completeIfAtMissions(ctx, userID, *mission.LessonID)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return nil, err
		}
		result.Lesson = state
	}
	s.touch(ctx, userID)
	return result, nil
}

// validateUpload checks the size and sniffs the content, returning the detected video type
func (s *MissionService) validateUpload(v *VideoUpload) (string, error) {
	if s.rules.MaxVideoUploadBytes > 0 && v.Size > s.rules.MaxVideoUploadBytes {
		return "", validation.ValidationError{
			Field:   "video",
			Message: fmt.Sprintf("video must be at most %d MB", s.rules.MaxVideoUploadBytes/(1024*1024)),
		}
	}
	contentType, err := storage.DetectVideoType(v.Body)
	if errors.Is(err, storage.ErrNotVideo) {
		return "", validation.ValidationError{Field: "video", Message: "video must be an MP4, WebM, MOV or AVI file"}
	}
	if err != nil {
		return "", err
	}
	return contentType, nil
}

// SubmitMission uploads optional video proof and moves the submission to submitted.
// The upload is removed again when the submission cannot be recorded.
func (s *MissionService) SubmitMission(ctx context.Context, userID, missionID int64, req SubmitMissionRequest) (*models.MissionSubmission, error) {
	description := strings.TrimSpace(req.Description)
	if description == "" {
		return nil, validation.ValidationError{Field: "description", Message: "description is required"}
	}
	var contentType string
	if req.Video != nil {
		var err error
		if contentType, err = s.validateUpload(req.Video); err != nil {
			return nil, err
		}
	}

	mission, err := s.activeMission(ctx, missionID)
	if err != nil {
		return nil, err
	}
	sub, err := s.missions.GetSubmission(ctx, userID, missionID)
	if err != nil {
		return nil, err
	}
	status := sub.CurrentStatus()
	if !models.CanTransition(status, models.StatusSubmitted) {
		return nil, ErrInvalidTransition
	}

	videoRef := sub.VideoURL
	uploadedKey := ""
	if req.Video != nil {
		uploadedKey = storage.VideoKey(userID, contentType, s.now())
		if err := s.store.Put(ctx, uploadedKey, req.Video.Body, contentType); err != nil {
			return nil, fmt.Errorf("failed to upload video: %w", err)
		}
		videoRef = uploadedKey
	}

	ok, err := s.missions.MarkSubmitted(ctx, sub.ID, description, videoRef, models.StatusInProgress, models.StatusRejected)
	if err == nil && !ok {
		err = ErrInvalidTransition
	}
	if err != nil {
		if uploadedKey != "" {
			if delErr := s.store.Delete(context.WithoutCancel(ctx), uploadedKey); delErr != nil {
				log.Printf("Failed to remove orphaned upload %s: %v", uploadedKey, delErr)
			}
		}
		return nil, err
	}

	s.logStudentActivity(ctx, userID, models.ActivityMissionSubmitted, "submitted the mission %q", mission)
	s.touch(ctx, userID)

	updated, err := s.missions.GetSubmissionByID(ctx, sub.ID)
	if err != nil {
		return nil, err
	}
	s.publishSubmission(ctx, userID, updated)
	return updated, nil
}

// reviewContext loads what a review decision needs and enforces the review policy
func (s *MissionService) reviewContext(ctx context.Context, reviewerID, submissionID int64) (*models.MissionSubmission, *models.Mission, *models.Profile, error) {
	sub, err := s.missions.GetSubmissionByID(ctx, submissionID)
	if err != nil {
		return nil, nil, nil, err
	}
	if sub == nil {
		return nil, nil, nil, ErrNotFound
	}

	reviewer, err := s.profiles.GetProfile(ctx, reviewerID)
	if err != nil {
		return nil, nil, nil, err
	}
	student, err := s.profiles.GetProfile(ctx, sub.UserID)
	if err != nil {
		return nil, nil, nil, err
	}
	if !reviewer.CanReview(student) {
		return nil, nil, nil, ErrForbidden
	}
	if sub.Status != models.StatusSubmitted {
		return nil, nil, nil, ErrInvalidTransition
	}

	mission, err := s.missions.GetMission(ctx, sub.MissionID)
	if err != nil {
		return nil, nil, nil, err
	}
	if mission == nil {
		return nil, nil, nil, ErrNotFound
	}
	return sub, mission, student, nil
}

// ApproveSubmission approves a submitted mission of a student in the reviewer's organization.
// Nil or zero points awards the mission's base points.
func (s *MissionService) ApproveSubmission(ctx context.Context, reviewerID, submissionID int64, points *int) (*models.MissionSubmission, error) {
	if points != nil && *points < 0 {
		return nil, validation.ValidationError{Field: "points", Message: "points must be at least 0"}
	}

	sub, mission, student, err := s.reviewContext(ctx, reviewerID, submissionID)
	if err != nil {
		return nil, err
	}

	awarded := mission.Points
	if points != nil && *points > 0 {
		awarded = *points
	}

	var reward *RewardOutcome
	err = s.db.WithTx(ctx, func(tx *database.Tx) error {
		ok, err := s.missions.WithTx(tx).Review(ctx, sub.ID, models.StatusApproved, &awarded, reviewerID, ApprovedNote)
		if err != nil {
			return err
		}
		if !ok {
			return ErrInvalidTransition
		}

		profiles := s.profiles.WithTx(tx)
		if err := profiles.ApplyReward(ctx, student.UserID, awarded, 0, 1); err != nil {
			return err
		}
		rewarded, err := profiles.GetProfile(ctx, student.UserID)
		if err != nil {
			return err
		}
		if rewarded == nil {
			return ErrNotFound
		}
		student = rewarded
		before := student.EcoPoints - awarded

		err = s.activity.WithTx(tx).LogActivity(ctx, &models.ActivityLog{
			UserID:           student.UserID,
			OrganizationCode: student.OrganizationCode,
			Type:             models.ActivityMissionApproved,
			Message:          fmt.Sprintf("%s completed the mission %q and earned %d points", displayNameOf(student), mission.Title, awarded),
			Metadata: map[string]string{
				"mission_id":    strconv.FormatInt(mission.ID, 10),
				"submission_id": strconv.FormatInt(sub.ID, 10),
			},
		})
		if err != nil {
			return err
		}

		earned, err := s.badges.EvaluateBadges(ctx, tx, student, s.now())
		if err != nil {
			return err
		}

		perLevel := s.levels.PointsPerLevel(student.Role)
		reward = &RewardOutcome{
			PointsAwarded: awarded,
			EcoPoints:     student.EcoPoints,
			Level:         models.LevelFor(student.EcoPoints, perLevel),
			LevelUp:       models.LeveledUp(before, student.EcoPoints, perLevel),
			BadgesEarned:  earned,
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to approve submission: %w", err)
	}

	updated, err := s.missions.GetSubmissionByID(ctx, sub.ID)
	if err != nil {
		return nil, err
	}
	s.publishSubmission(ctx, student.UserID, updated)
	publishReward(ctx, s.events, student.UserID, reward)
	s.notifyReviewed(ctx, student, mission, updated)
	return updated, nil
}

// RejectSubmission sends a submission back to the student with a reason
func (s *MissionService) RejectSubmission(ctx context.Context, reviewerID, submissionID int64, reason string) (*models.MissionSubmission, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, ErrRejectionReasonRequired
	}

	sub, mission, student, err := s.reviewContext(ctx, reviewerID, submissionID)
	if err != nil {
		return nil, err
	}

	err = s.db.WithTx(ctx, func(tx *database.Tx) error {
		ok, err := s.missions.WithTx(tx).Review(ctx, sub.ID, models.StatusRejected, nil, reviewerID, reason)
		if err != nil {
			return err
		}
		if !ok {
			return ErrInvalidTransition
		}
		return s.activity.WithTx(tx).LogActivity(ctx, &models.ActivityLog{
			UserID:           student.UserID,
			OrganizationCode: student.OrganizationCode,
			Type:             models.ActivityMissionRejected,
			Message:          fmt.Sprintf("%s's submission for %q needs another try", displayNameOf(student), mission.Title),
			Metadata: map[string]string{
				"mission_id":    strconv.FormatInt(mission.ID, 10),
				"submission_id": strconv.FormatInt(sub.ID, 10),
			},
		})
	})
	if err != nil {
		if errors.Is(err, ErrInvalidTransition) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to reject submission: %w", err)
	}

	updated, err := s.missions.GetSubmissionByID(ctx, sub.ID)
	if err != nil {
		return nil, err
	}
	s.publishSubmission(ctx, student.UserID, updated)
	s.notifyReviewed(ctx, student, mission, updated)
	return updated, nil
}

// ListReviewQueue returns the submitted work awaiting review by an organization
func (s *MissionService) ListReviewQueue(ctx context.Context, reviewerID int64) ([]models.ReviewItem, error) {
	reviewer, err := s.profiles.GetProfile(ctx, reviewerID)
	if err != nil {
		return nil, err
	}
	if reviewer == nil || !reviewer.IsOrganization() || !reviewer.IsAffiliated() {
		return nil, ErrForbidden
	}
	items, err := s.missions.ListReviewQueue(ctx, reviewer.OrganizationCode)
	if err != nil {
		return nil, err
	}
	if items == nil {
		items = []models.ReviewItem{}
	}
	return items, nil
}

// SubmissionVideoURL returns a playable URL for a submission's video. Only the student who
// submitted it and their reviewing organization may see it.
func (s *MissionService) SubmissionVideoURL(ctx context.Context, viewerID, submissionID int64) (string, error) {
	sub, err := s.missions.GetSubmissionByID(ctx, submissionID)
	if err != nil {
		return "", err
	}
	if sub == nil {
		return "", ErrNotFound
	}

	if sub.UserID != viewerID {
		viewer, err := s.profiles.GetProfile(ctx, viewerID)
		if err != nil {
			return "", err
		}
		student, err := s.profiles.GetProfile(ctx, sub.UserID)
		if err != nil {
			return "", err
		}
		if !viewer.CanReview(student) {
			return "", ErrForbidden
		}
	}

	if sub.VideoURL == "" {
		return "", ErrNotFound
	}
	url, err := storage.ResolveURL(ctx, s.store, sub.VideoURL, s.rules.SignedURLTTL)
	if err != nil {
		return "", fmt.Errorf("failed to sign video url: %w", err)
	}
	return url, nil
}

func (s *MissionService) touch(ctx context.Context, userID int64) {
	profile, err := s.profiles.GetProfile(ctx, userID)
	if err == nil && profile != nil {
		err = touchStreak(ctx, s.profiles, profile, s.now())
	}
	if err != nil {
		logError("update streak", err)
	}
}

func (s *MissionService) logStudentActivity(ctx context.Context, userID int64, activityType, format string, mission *models.Mission) {
	profile, err := s.profiles.GetProfile(ctx, userID)
	if err != nil || profile == nil {
		return
	}
	err = s.activity.LogActivity(ctx, &models.ActivityLog{
		UserID:           userID,
		OrganizationCode: profile.OrganizationCode,
		Type:             activityType,
		Message:          displayNameOf(profile) + " " + fmt.Sprintf(format, mission.Title),
		Metadata:         map[string]string{"mission_id": strconv.FormatInt(mission.ID, 10)},
	})
	if err != nil {
		logError("log activity", err)
	}
}

func (s *MissionService) publishSubmission(ctx context.Context, studentID int64, sub *models.MissionSubmission) {
	events := []realtime.Event{realtime.NewEvent(realtime.EventSubmissionUpdated, sub).ForUser(studentID)}
	profile, err := s.profiles.GetProfile(ctx, studentID)
	if err == nil && profile != nil && profile.IsAffiliated() {
		events = append(events, realtime.NewEvent(realtime.EventSubmissionUpdated, sub).ForOrganization(profile.OrganizationCode))
	}
	realtime.PublishAll(ctx, s.events, events...)
}

func (s *MissionService) notifyReviewed(ctx context.Context, student *models.Profile, mission *models.Mission, sub *models.MissionSubmission) {
	if s.emails == nil || s.users == nil {
		return
	}
	user, err := s.users.GetUserByID(ctx, student.UserID)
	if err != nil || user == nil {
		return
	}
	points := 0
	if sub.PointsAwarded != nil {
		points = *sub.PointsAwarded
	}
	err = s.emails.SendSubmissionReviewedEmail(ctx, user.Email, student.DisplayName, mission.Title, sub.Status, sub.ReviewerNotes, points)
	if err != nil {
		logError("send review email", err)
	}
}
