package service

import (
	"context"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"ecoquest/internal/database"
	"ecoquest/internal/database/dbtest"
	"ecoquest/internal/models"
	"ecoquest/internal/realtime"
	"ecoquest/internal/repository"
)

type memoryStorage struct {
	mu      sync.Mutex
	objects map[string][]byte
	deleted []string
	putErr  error
}

// mp4Video prefixes payload with an ISO media header so it sniffs as video/mp4
func mp4Video(payload string) string {
	return "\x00\x00\x00\x18ftypmp42\x00\x00\x00\x00mp42isom" + payload
}

func newMemoryStorage() *memoryStorage {
	return &memoryStorage{objects: make(map[string][]byte)}
}

func (m *memoryStorage) Put(ctx context.Context, key string, body io.ReadSeeker, contentType string) error {
	if m.putErr != nil {
		return m.putErr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

func (m *memoryStorage) Delete(ctx context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	m.deleted = append(m.deleted, key)
	return nil
}

func (m *memoryStorage) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	return fmt.Sprintf("https://media.test/%s?ttl=%d", key, int(ttl.Seconds())), nil
}

type recordingPublisher struct {
	mu     sync.Mutex
	events []realtime.Event
}

func (p *recordingPublisher) Publish(ctx context.Context, evt realtime.Event) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, evt)
	return nil
}

func (p *recordingPublisher) ofType(eventType string) []realtime.Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []realtime.Event
	for _, evt := range p.events {
		if evt.Type == eventType {
			out = append(out, evt)
		}
	}
	return out
}

type testEnv struct {
	db       *database.DB
	users    *repository.UserRepository
	profiles *repository.ProfileRepository
	lessons  *repository.LessonRepository
	missions *repository.MissionRepository
	badges   *repository.BadgeRepository
	activity *repository.ActivityRepository

	profileSvc     *ProfileService
	badgeSvc       *BadgeService
	lessonSvc      *LessonService
	missionSvc     *MissionService
	authSvc        *AuthService
	leaderboardSvc *LeaderboardService
	dashboardSvc   *DashboardService

	events *recordingPublisher
	store  *memoryStorage
	mail   *recordingSender
}

var testLevels = LevelRules{StudentPointsPerLevel: 200, OrganizationPointsPerLevel: 2000}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	db := dbtest.Open(t)

	env := &testEnv{
		db:       db,
		users:    repository.NewUserRepository(db),
		profiles: repository.NewProfileRepository(db),
		lessons:  repository.NewLessonRepository(db),
		missions: repository.NewMissionRepository(db),
		badges:   repository.NewBadgeRepository(db),
		activity: repository.NewActivityRepository(db),
		events:   &recordingPublisher{},
		store:    newMemoryStorage(),
		mail:     &recordingSender{},
	}
	emails := newTestEmailService(env.mail)

	env.profileSvc = NewProfileService(db, env.profiles, db, testLevels)
	env.badgeSvc = NewBadgeService(env.badges, env.lessons, env.activity)
	env.lessonSvc = NewLessonService(db, env.lessons, env.missions, env.profiles, env.activity, env.badgeSvc, env.events,
		LessonRules{QuizPassThreshold: 70, CompletionPoints: 10, VideoProgressInterval: time.Second}, testLevels)
	env.missionSvc = NewMissionService(db, env.missions, env.profiles, env.users, env.activity, env.lessonSvc, env.badgeSvc,
		env.store, emails, env.events, MissionRules{MaxVideoUploadBytes: 1024, SignedURLTTL: time.Hour}, testLevels)
	env.authSvc = NewAuthService(db, env.users, env.profiles, env.activity, env.profileSvc, emails, time.Hour)
	env.leaderboardSvc = NewLeaderboardService(repository.NewLeaderboardRepository(db), env.profiles, testLevels)
	env.dashboardSvc = NewDashboardService(env.profiles, env.missions, env.badges, env.activity, env.leaderboardSvc, testLevels)
	return env
}

func (env *testEnv) signUp(t *testing.T, req SignUpRequest) *models.Profile {
	t.Helper()
	if req.Password == "" {
		req.Password = "password123"
		req.ConfirmPassword = "password123"
	}
	_, profile, err := env.authSvc.SignUp(context.Background(), req)
	if err != nil {
		t.Fatalf("SignUp(%s) error = %v", req.Email, err)
	}
	return profile
}

func (env *testEnv) organization(t *testing.T, email, name string) *models.Profile {
	t.Helper()
	return env.signUp(t, SignUpRequest{
		Email:            email,
		DisplayName:      name,
		Role:             models.RoleOrganization,
		OrganizationName: name,
	})
}

func (env *testEnv) student(t *testing.T, email, name, code string) *models.Profile {
	t.Helper()
	return env.signUp(t, SignUpRequest{
		Email:            email,
		DisplayName:      name,
		Role:             models.RoleStudent,
		OrganizationCode: code,
	})
}

func (env *testEnv) lesson(t *testing.T, title string, quiz ...int) *models.Lesson {
	t.Helper()
	lesson := &models.Lesson{
		Slug:        LessonSlug(title),
		Title:       title,
		Description: "About " + title,
		IsPublished: true,
	}
	for i, correct := range quiz {
		lesson.Content.Quiz = append(lesson.Content.Quiz, models.QuizQuestion{
			ID:            fmt.Sprintf("q%d", i+1),
			Question:      fmt.Sprintf("Question %d", i+1),
			Options:       []string{"a", "b", "c"},
			CorrectAnswer: correct,
		})
	}
	if err := env.lessons.CreateLesson(context.Background(), lesson); err != nil {
		t.Fatalf("CreateLesson() error = %v", err)
	}
	return lesson
}

func (env *testEnv) mission(t *testing.T, title string, points int, lessonID *int64) *models.Mission {
	t.Helper()
	mission := &models.Mission{
		Title:        title,
		Instructions: "Do the thing",
		Points:       points,
		LessonID:     lessonID,
		IsActive:     true,
	}
	if err := env.missions.CreateMission(context.Background(), mission); err != nil {
		t.Fatalf("CreateMission() error = %v", err)
	}
	return mission
}

func (env *testEnv) profile(t *testing.T, userID int64) *models.Profile {
	t.Helper()
	p, err := env.profiles.GetProfile(context.Background(), userID)
	if err != nil || p == nil {
		t.Fatalf("GetProfile(%d) = %v, %v", userID, p, err)
	}
	return p
}
