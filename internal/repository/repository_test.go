package repository

import (
	"context"
	"testing"
	"time"

	"ecoquest/internal/database"
	"ecoquest/internal/database/dbtest"
	"ecoquest/internal/models"
)

func createStudent(t *testing.T, db *database.DB, email, name string, points int, region models.Region, code string) *models.Profile {
	t.Helper()
	ctx := context.Background()
	user, err := NewUserRepository(db).CreateUser(ctx, email, "hash")
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	p := &models.Profile{
		UserID:           user.ID,
		Role:             models.RoleStudent,
		DisplayName:      name,
		EcoPoints:        points,
		Region:           region,
		OrganizationCode: code,
	}
	if err := NewProfileRepository(db).CreateProfile(ctx, p); err != nil {
		t.Fatalf("CreateProfile() error = %v", err)
	}
	return p
}

func createOrganization(t *testing.T, db *database.DB, email, name, code string) *models.Profile {
	t.Helper()
	ctx := context.Background()
	user, err := NewUserRepository(db).CreateUser(ctx, email, "hash")
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	profiles := NewProfileRepository(db)
	p := &models.Profile{
		UserID:           user.ID,
		Role:             models.RoleOrganization,
		DisplayName:      name,
		OrganizationName: name,
		OrganizationCode: code,
	}
	if err := profiles.CreateProfile(ctx, p); err != nil {
		t.Fatalf("CreateProfile() error = %v", err)
	}
	if err := profiles.CreateOrganizationCode(ctx, code, p.UserID); err != nil {
		t.Fatalf("CreateOrganizationCode() error = %v", err)
	}
	return p
}

func TestUserRepositorySessions(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()
	repo := NewUserRepository(db)

	user, err := repo.CreateUser(ctx, "a@example.com", "hash")
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}

	got, err := repo.GetUserByEmail(ctx, "a@example.com")
	if err != nil || got == nil || got.ID != user.ID {
		t.Fatalf("GetUserByEmail() = %v, %v", got, err)
	}

	missing, err := repo.GetUserByEmail(ctx, "nobody@example.com")
	if err != nil || missing != nil {
		t.Errorf("GetUserByEmail(missing) = %v, %v, want nil, nil", missing, err)
	}

	if _, err := repo.CreateSession(ctx, "live", user.ID, time.Now().Add(time.Hour)); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if _, err := repo.CreateSession(ctx, "stale", user.ID, time.Now().Add(-time.Hour)); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	removed, err := repo.DeleteExpiredSessions(ctx)
	if err != nil {
		t.Fatalf("DeleteExpiredSessions() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("DeleteExpiredSessions() = %d, want 1", removed)
	}

	session, err := repo.GetSession(ctx, "live")
	if err != nil || session == nil {
		t.Fatalf("GetSession(live) = %v, %v", session, err)
	}
	if session.UserID != user.ID {
		t.Errorf("session.UserID = %d, want %d", session.UserID, user.ID)
	}
}

func TestUserRepositoryOAuthLink(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()
	repo := NewUserRepository(db)

	user, err := repo.CreateUser(ctx, "oauth@example.com", "")
	if err != nil {
		t.Fatalf("CreateUser() error = %v", err)
	}
	if err := repo.LinkOAuthProvider(ctx, user.ID, "google", "sub-1"); err != nil {
		t.Fatalf("LinkOAuthProvider() error = %v", err)
	}
	if err := repo.LinkOAuthProvider(ctx, user.ID, "facebook", "sub-2"); err == nil {
		t.Error("second LinkOAuthProvider() should fail")
	}

	got, err := repo.GetUserByOAuth(ctx, "google", "sub-1")
	if err != nil || got == nil || got.ID != user.ID {
		t.Errorf("GetUserByOAuth() = %v, %v", got, err)
	}
}

func TestProfileRepositoryOrganizationCode(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()
	repo := NewProfileRepository(db)

	org := createOrganization(t, db, "org@example.com", "Green School", "AB12")

	exists, err := repo.OrganizationCodeExists(ctx, "AB12")
	if err != nil || !exists {
		t.Errorf("OrganizationCodeExists(AB12) = %v, %v", exists, err)
	}

	tests := []struct {
		code  string
		found bool
	}{
		{code: "AB12", found: true},
		{code: "ab12", found: false},
		{code: "AB1", found: false},
		{code: "ZZ99", found: false},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			got, err := repo.GetOrganizationByCode(ctx, tt.code)
			if err != nil {
				t.Fatalf("GetOrganizationByCode() error = %v", err)
			}
			if (got != nil) != tt.found {
				t.Fatalf("GetOrganizationByCode(%q) found = %v, want %v", tt.code, got != nil, tt.found)
			}
			if got != nil && got.UserID != org.UserID {
				t.Errorf("GetOrganizationByCode() = %d, want %d", got.UserID, org.UserID)
			}
		})
	}
}

func TestProfileRepositoryRewardAndStreak(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()
	repo := NewProfileRepository(db)

	student := createStudent(t, db, "s@example.com", "Asha", 0, models.Region{Country: "India"}, "")

	if err := repo.ApplyReward(ctx, student.UserID, 50, 1, 0); err != nil {
		t.Fatalf("ApplyReward() error = %v", err)
	}
	if err := repo.ApplyReward(ctx, student.UserID, 30, 0, 1); err != nil {
		t.Fatalf("ApplyReward() error = %v", err)
	}
	if err := repo.ApplyReward(ctx, 9999, 10, 0, 0); err == nil {
		t.Error("ApplyReward() on a missing profile should fail")
	}

	day := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	if err := repo.UpdateActivity(ctx, student.UserID, 3, day); err != nil {
		t.Fatalf("UpdateActivity() error = %v", err)
	}

	got, err := repo.GetProfile(ctx, student.UserID)
	if err != nil || got == nil {
		t.Fatalf("GetProfile() = %v, %v", got, err)
	}
	if got.EcoPoints != 80 || got.CompletedLessons != 1 || got.CompletedMissions != 1 {
		t.Errorf("profile counters = %d/%d/%d, want 80/1/1", got.EcoPoints, got.CompletedLessons, got.CompletedMissions)
	}
	if got.StreakDays != 3 || got.LastActivityDate == nil || !got.LastActivityDate.Equal(day) {
		t.Errorf("streak = %d at %v, want 3 at %v", got.StreakDays, got.LastActivityDate, day)
	}

	reset, err := repo.ResetStaleStreaks(ctx, day.AddDate(0, 0, 2))
	if err != nil {
		t.Fatalf("ResetStaleStreaks() error = %v", err)
	}
	if reset != 1 {
		t.Errorf("ResetStaleStreaks() = %d, want 1", reset)
	}
}

func TestLessonRepositoryProgress(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()
	repo := NewLessonRepository(db)
	student := createStudent(t, db, "s@example.com", "Asha", 0, models.Region{}, "")

	lesson := &models.Lesson{
		Slug:        "water-cycle",
		Title:       "Water Cycle",
		IsPublished: true,
		Content: models.LessonContent{
			VideoURL: "https://videos.example.com/water.mp4",
			Quiz:     []models.QuizQuestion{{ID: "q1", Question: "?", Options: []string{"a", "b"}, CorrectAnswer: 1}},
		},
	}
	if err := repo.CreateLesson(ctx, lesson); err != nil {
		t.Fatalf("CreateLesson() error = %v", err)
	}

	bySlug, err := repo.GetLessonBySlug(ctx, "water-cycle")
	if err != nil || bySlug == nil || bySlug.ID != lesson.ID {
		t.Fatalf("GetLessonBySlug() = %v, %v", bySlug, err)
	}
	if len(bySlug.Content.Quiz) != 1 || bySlug.Content.Quiz[0].CorrectAnswer != 1 {
		t.Errorf("content round trip = %+v", bySlug.Content)
	}

	if _, err := repo.CreateProgress(ctx, student.UserID, lesson.ID); err != nil {
		t.Fatalf("CreateProgress() error = %v", err)
	}

	steps := []struct {
		name    string
		raise   int
		changed bool
		stored  int
	}{
		{name: "raise to 20", raise: 20, changed: true, stored: 20},
		{name: "lower is ignored", raise: 10, changed: false, stored: 20},
		{name: "equal is ignored", raise: 20, changed: false, stored: 20},
		{name: "raise to quiz", raise: 33, changed: true, stored: 33},
	}
	for _, step := range steps {
		changed, err := repo.RaiseProgress(ctx, student.UserID, lesson.ID, step.raise)
		if err != nil {
			t.Fatalf("%s: RaiseProgress() error = %v", step.name, err)
		}
		if changed != step.changed {
			t.Errorf("%s: changed = %v, want %v", step.name, changed, step.changed)
		}
		p, err := repo.GetProgress(ctx, student.UserID, lesson.ID)
		if err != nil {
			t.Fatalf("GetProgress() error = %v", err)
		}
		if p.ProgressPercentage != step.stored {
			t.Errorf("%s: stored = %d, want %d", step.name, p.ProgressPercentage, step.stored)
		}
	}

	first, err := repo.MarkCompleted(ctx, student.UserID, lesson.ID)
	if err != nil || !first {
		t.Fatalf("MarkCompleted() = %v, %v, want true", first, err)
	}
	again, err := repo.MarkCompleted(ctx, student.UserID, lesson.ID)
	if err != nil || again {
		t.Errorf("second MarkCompleted() = %v, %v, want false", again, err)
	}

	p, err := repo.GetProgress(ctx, student.UserID, lesson.ID)
	if err != nil {
		t.Fatalf("GetProgress() error = %v", err)
	}
	if !p.IsCompleted || p.ProgressPercentage != 100 || p.CompletedAt == nil {
		t.Errorf("completed progress = %+v", p)
	}
	if p.Stage() != models.StageCompleted {
		t.Errorf("Stage() = %s, want %s", p.Stage(), models.StageCompleted)
	}
}

func TestLessonRepositoryVideoResume(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()
	repo := NewLessonRepository(db)
	student := createStudent(t, db, "s@example.com", "Asha", 0, models.Region{}, "")

	lesson := &models.Lesson{Slug: "soil", Title: "Soil", IsPublished: true}
	if err := repo.CreateLesson(ctx, lesson); err != nil {
		t.Fatalf("CreateLesson() error = %v", err)
	}

	if err := repo.SaveVideo(ctx, student.UserID, lesson.ID, 12.5, 120); err != nil {
		t.Fatalf("SaveVideo() error = %v", err)
	}
	if err := repo.SaveVideo(ctx, student.UserID, lesson.ID, 48, 120); err != nil {
		t.Fatalf("SaveVideo() error = %v", err)
	}

	v, err := repo.GetVideo(ctx, student.UserID, lesson.ID)
	if err != nil || v == nil {
		t.Fatalf("GetVideo() = %v, %v", v, err)
	}
	if v.VideoPosition != 48 || v.Duration != 120 {
		t.Errorf("video = %v/%v, want 48/120", v.VideoPosition, v.Duration)
	}
}

func TestMissionRepositoryLifecycle(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()
	repo := NewMissionRepository(db)

	org := createOrganization(t, db, "org@example.com", "Green School", "AB12")
	student := createStudent(t, db, "s@example.com", "Asha", 0, models.Region{}, "AB12")

	mission := &models.Mission{Title: "Plant a tree", Points: 50, IsActive: true, Requirements: []string{"photo"}}
	if err := repo.CreateMission(ctx, mission); err != nil {
		t.Fatalf("CreateMission() error = %v", err)
	}

	sub, err := repo.CreateSubmission(ctx, student.UserID, mission.ID)
	if err != nil {
		t.Fatalf("CreateSubmission() error = %v", err)
	}

	reviewed, err := repo.Review(ctx, sub.ID, models.StatusApproved, nil, org.UserID, "early")
	if err != nil || reviewed {
		t.Errorf("Review() of in-progress = %v, %v, want false", reviewed, err)
	}

	ok, err := repo.MarkSubmitted(ctx, sub.ID, "planted", "", models.StatusInProgress, models.StatusRejected)
	if err != nil || !ok {
		t.Fatalf("MarkSubmitted() = %v, %v", ok, err)
	}

	queue, err := repo.ListReviewQueue(ctx, "AB12")
	if err != nil {
		t.Fatalf("ListReviewQueue() error = %v", err)
	}
	if len(queue) != 1 || queue[0].MissionTitle != "Plant a tree" || queue[0].StudentName != "Asha" || queue[0].MissionPoints != 50 {
		t.Errorf("ListReviewQueue() = %+v", queue)
	}

	other, err := repo.ListReviewQueue(ctx, "ZZ99")
	if err != nil || len(other) != 0 {
		t.Errorf("ListReviewQueue(other) = %v, %v, want empty", other, err)
	}

	if ok, err := repo.Review(ctx, sub.ID, models.StatusRejected, nil, org.UserID, "blurry"); err != nil || !ok {
		t.Fatalf("Review(rejected) = %v, %v", ok, err)
	}
	if ok, err := repo.MarkSubmitted(ctx, sub.ID, "replanted", "", models.StatusInProgress, models.StatusRejected); err != nil || !ok {
		t.Fatalf("resubmit = %v, %v", ok, err)
	}
	points := 50
	if ok, err := repo.Review(ctx, sub.ID, models.StatusApproved, &points, org.UserID, "Approved by organization"); err != nil || !ok {
		t.Fatalf("Review(approved) = %v, %v", ok, err)
	}

	got, err := repo.GetSubmissionByID(ctx, sub.ID)
	if err != nil || got == nil {
		t.Fatalf("GetSubmissionByID() = %v, %v", got, err)
	}
	if got.Status != models.StatusApproved || got.Iteration != 2 {
		t.Errorf("submission = %s iteration %d, want approved iteration 2", got.Status, got.Iteration)
	}
	if got.PointsAwarded == nil || *got.PointsAwarded != 50 {
		t.Errorf("PointsAwarded = %v, want 50", got.PointsAwarded)
	}
	if got.ReviewerID == nil || *got.ReviewerID != org.UserID {
		t.Errorf("ReviewerID = %v, want %d", got.ReviewerID, org.UserID)
	}

	counts, err := repo.CountOrganizationSubmissions(ctx, "AB12")
	if err != nil {
		t.Fatalf("CountOrganizationSubmissions() error = %v", err)
	}
	if counts[models.StatusApproved] != 1 {
		t.Errorf("approved count = %d, want 1", counts[models.StatusApproved])
	}
}

func TestLeaderboardRepository(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()
	repo := NewLeaderboardRepository(db)

	karnataka := models.Region{Country: "India", State: "Karnataka", District: "Mysuru"}
	kerala := models.Region{Country: "India", State: "Kerala", District: "Kochi"}

	org := createOrganization(t, db, "org@example.com", "Green School", "AB12")
	a := createStudent(t, db, "a@example.com", "A", 100, karnataka, "AB12")
	b := createStudent(t, db, "b@example.com", "B", 300, karnataka, "AB12")
	c := createStudent(t, db, "c@example.com", "C", 100, karnataka, "")
	d := createStudent(t, db, "d@example.com", "D", 500, kerala, "")
	createStudent(t, db, "e@example.com", "", 900, karnataka, "")

	state := models.ScopeFilter{Scope: models.ScopeState, Value: "Karnataka"}
	top, err := repo.TopStudents(ctx, state, models.LeaderboardLimit)
	if err != nil {
		t.Fatalf("TopStudents() error = %v", err)
	}
	wantOrder := []int64{b.UserID, a.UserID, c.UserID}
	if len(top) != len(wantOrder) {
		t.Fatalf("TopStudents() returned %d rows, want %d", len(top), len(wantOrder))
	}
	for i, id := range wantOrder {
		if top[i].UserID != id || top[i].Rank != i+1 {
			t.Errorf("row %d = user %d rank %d, want user %d rank %d", i, top[i].UserID, top[i].Rank, id, i+1)
		}
	}

	tests := []struct {
		name   string
		filter models.ScopeFilter
		user   *models.Profile
		want   int
	}{
		{name: "state tie broken by id", filter: state, user: c, want: 3},
		{name: "organization", filter: models.ScopeFilter{Scope: models.ScopeOrganization, Value: "AB12"}, user: a, want: 2},
		{name: "country", filter: models.ScopeFilter{Scope: models.ScopeCountry, Value: "India"}, user: b, want: 2},
		{name: "global leader", filter: models.ScopeFilter{Scope: models.ScopeGlobal}, user: d, want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rank, err := repo.StudentRank(ctx, tt.filter, tt.user.UserID, tt.user.EcoPoints)
			if err != nil {
				t.Fatalf("StudentRank() error = %v", err)
			}
			if rank != tt.want {
				t.Errorf("StudentRank() = %d, want %d", rank, tt.want)
			}
		})
	}

	orgs, err := repo.TopOrganizations(ctx, models.ScopeFilter{Scope: models.ScopeGlobal}, models.LeaderboardLimit)
	if err != nil {
		t.Fatalf("TopOrganizations() error = %v", err)
	}
	if len(orgs) != 1 || orgs[0].TotalEcoPoints != 400 || orgs[0].StudentCount != 2 {
		t.Errorf("TopOrganizations() = %+v", orgs)
	}

	entry, err := repo.GetOrganizationEntry(ctx, org.UserID)
	if err != nil || entry == nil {
		t.Fatalf("GetOrganizationEntry() = %v, %v", entry, err)
	}
	if entry.Rank != 1 || entry.AvgEcoPoints != 200 {
		t.Errorf("organization entry = %+v", entry)
	}
}

func TestBadgeRepositoryAwardIsIdempotent(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()
	repo := NewBadgeRepository(db)
	student := createStudent(t, db, "s@example.com", "Asha", 0, models.Region{}, "")

	badge := &models.Badge{Name: "First Steps", Requirements: models.BadgeRequirement{LessonsCompleted: 1}}
	if err := repo.CreateBadge(ctx, badge); err != nil {
		t.Fatalf("CreateBadge() error = %v", err)
	}

	for i, want := range []bool{true, false} {
		awarded, err := repo.AwardBadge(ctx, student.UserID, badge.ID, time.Now())
		if err != nil {
			t.Fatalf("AwardBadge() error = %v", err)
		}
		if awarded != want {
			t.Errorf("AwardBadge() call %d = %v, want %v", i+1, awarded, want)
		}
	}

	earned, err := repo.ListUserBadges(ctx, student.UserID)
	if err != nil {
		t.Fatalf("ListUserBadges() error = %v", err)
	}
	if len(earned) != 1 || earned[0].Badge.Requirements.LessonsCompleted != 1 {
		t.Errorf("ListUserBadges() = %+v", earned)
	}
}

func TestActivityRepository(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()
	repo := NewActivityRepository(db)
	student := createStudent(t, db, "s@example.com", "Asha", 0, models.Region{}, "AB12")

	for i := 0; i < 3; i++ {
		entry := &models.ActivityLog{
			UserID:           student.UserID,
			OrganizationCode: "AB12",
			Type:             models.ActivityLessonCompleted,
			Message:          "Asha completed a lesson",
			Metadata:         map[string]string{"lesson_id": "1"},
			CreatedAt:        time.Now().UTC().Add(time.Duration(i) * time.Minute),
		}
		if err := repo.LogActivity(ctx, entry); err != nil {
			t.Fatalf("LogActivity() error = %v", err)
		}
	}

	entries, err := repo.ListOrganizationActivity(ctx, "AB12", 2)
	if err != nil {
		t.Fatalf("ListOrganizationActivity() error = %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("ListOrganizationActivity() returned %d entries, want 2", len(entries))
	}
	if !entries[0].CreatedAt.After(entries[1].CreatedAt) {
		t.Error("entries should be newest first")
	}
	if entries[0].Metadata["lesson_id"] != "1" {
		t.Errorf("metadata = %v", entries[0].Metadata)
	}
}
