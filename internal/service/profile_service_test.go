package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"ecoquest/internal/validation"
)

func TestNextStreak(t *testing.T) {
	now := time.Date(2024, 3, 10, 9, 0, 0, 0, time.UTC)
	day := func(offset int) *time.Time {
		d := time.Date(2024, 3, 10+offset, 18, 30, 0, 0, time.UTC)
		return &d
	}

	tests := []struct {
		name    string
		current int
		last    *time.Time
		want    int
	}{
		{"first activity", 0, nil, 1},
		{"same day", 4, day(0), 4},
		{"same day after reset", 0, day(0), 1},
		{"consecutive day", 4, day(-1), 5},
		{"missed a day", 4, day(-2), 1},
		{"clock skew into future", 4, day(1), 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := NextStreak(tt.current, tt.last, now); got != tt.want {
				t.Errorf("NextStreak(%d) = %d, want %d", tt.current, got, tt.want)
			}
		})
	}
}

func TestUpdateProfileRenamesOrganization(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	org := env.organization(t, "green@example.com", "Green School")
	student := env.student(t, "asha@example.com", "Asha", org.OrganizationCode)

	name := "Greener School"
	district := " Pune "
	view, err := env.profileSvc.UpdateProfile(ctx, org.UserID, UpdateProfileRequest{
		OrganizationName: &name,
		RegionDistrict:   &district,
	})
	if err != nil {
		t.Fatalf("UpdateProfile() error = %v", err)
	}
	if view.OrganizationName != name || view.Region.District != "Pune" {
		t.Errorf("view = %q / %q", view.OrganizationName, view.Region.District)
	}
	if view.LevelInfo.PointsPerLevel != 2000 {
		t.Errorf("PointsPerLevel = %d, want 2000", view.LevelInfo.PointsPerLevel)
	}

	if got := env.profile(t, student.UserID).OrganizationName; got != name {
		t.Errorf("student OrganizationName = %q, want %q", got, name)
	}
}

func TestUpdateProfileValidation(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	student := env.student(t, "asha@example.com", "Asha", "")
	if _, err := env.db.ExecContext(ctx, "INSERT INTO bad_words (word) VALUES (?)", "darn"); err != nil {
		t.Fatalf("insert bad word: %v", err)
	}

	str := func(s string) *string { return &s }
	tests := []struct {
		name  string
		req   UpdateProfileRequest
		field string
	}{
		{"short name", UpdateProfileRequest{DisplayName: str("A")}, "display_name"},
		{"bad word", UpdateProfileRequest{DisplayName: str("Darn Kid")}, "display_name"},
		{"student renaming organization", UpdateProfileRequest{OrganizationName: str("My Club")}, "organization_name"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := env.profileSvc.UpdateProfile(ctx, student.UserID, tt.req)
			fields, ok := validation.AsFields(err)
			if !ok {
				t.Fatalf("UpdateProfile() error = %v, want validation error", err)
			}
			if _, ok := fields[tt.field]; !ok {
				t.Errorf("fields = %v, want %s", fields, tt.field)
			}
		})
	}

	if got := env.profile(t, student.UserID).DisplayName; got != "Asha" {
		t.Errorf("DisplayName = %q after rejected updates", got)
	}
	if _, err := env.profileSvc.UpdateProfile(ctx, 9999, UpdateProfileRequest{}); !errors.Is(err, ErrNotFound) {
		t.Errorf("UpdateProfile(missing) error = %v, want ErrNotFound", err)
	}
}

func TestResetStaleStreaks(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	now := time.Date(2024, 3, 10, 1, 0, 0, 0, time.UTC)

	active := env.student(t, "active@example.com", "Active", "")
	yesterday := env.student(t, "yesterday@example.com", "Yesterday", "")
	stale := env.student(t, "stale@example.com", "Stale", "")

	for userID, day := range map[int64]time.Time{
		active.UserID:    activityDay(now),
		yesterday.UserID: activityDay(now).AddDate(0, 0, -1),
		stale.UserID:     activityDay(now).AddDate(0, 0, -3),
	} {
		if err := env.profiles.UpdateActivity(ctx, userID, 5, day); err != nil {
			t.Fatalf("UpdateActivity() error = %v", err)
		}
	}

	reset, err := env.profileSvc.ResetStaleStreaks(ctx, now)
	if err != nil {
		t.Fatalf("ResetStaleStreaks() error = %v", err)
	}
	if reset != 1 {
		t.Errorf("ResetStaleStreaks() = %d, want 1", reset)
	}

	want := map[int64]int{active.UserID: 5, yesterday.UserID: 5, stale.UserID: 0}
	for userID, streak := range want {
		if got := env.profile(t, userID).StreakDays; got != streak {
			t.Errorf("user %d StreakDays = %d, want %d", userID, got, streak)
		}
	}
}
