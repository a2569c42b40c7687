package service

import (
	"context"
	"errors"
	"testing"

	"ecoquest/internal/models"
)

func TestImpactScore(t *testing.T) {
	tests := []struct {
		name     string
		total    int
		students int
		want     float64
	}{
		{"no students", 100, 0, 0},
		{"no points", 0, 5, 0},
		{"average of 100", 1000, 10, 10},
		{"capped", 250, 1, 10},
		{"quarter", 50, 2, 2.5},
		{"rounded to one decimal", 37, 3, 1.2},
		{"rounds down to zero", 1, 3, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ImpactScore(tt.total, tt.students); got != tt.want {
				t.Errorf("ImpactScore(%d, %d) = %v, want %v", tt.total, tt.students, got, tt.want)
			}
		})
	}
}

func TestOrganizationDashboard(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	org := env.organization(t, "green@example.com", "Green School")
	asha := env.student(t, "asha@example.com", "Asha", org.OrganizationCode)
	ravi := env.student(t, "ravi@example.com", "Ravi", org.OrganizationCode)
	env.student(t, "out@example.com", "Outsider", "")
	tree := env.mission(t, "Plant a Tree", 50, nil)
	tap := env.mission(t, "Fix a Tap", 30, nil)

	submit := func(userID, missionID int64) int64 {
		t.Helper()
		if _, err := env.missionSvc.StartMission(ctx, userID, missionID); err != nil {
			t.Fatalf("StartMission() error = %v", err)
		}
		sub, err := env.missionSvc.SubmitMission(ctx, userID, missionID, SubmitMissionRequest{Description: "done"})
		if err != nil {
			t.Fatalf("SubmitMission() error = %v", err)
		}
		return sub.ID
	}

	approved := submit(asha.UserID, tree.ID)
	rejected := submit(ravi.UserID, tap.ID)
	submit(ravi.UserID, tree.ID)

	if _, err := env.missionSvc.ApproveSubmission(ctx, org.UserID, approved, nil); err != nil {
		t.Fatalf("ApproveSubmission() error = %v", err)
	}
	if _, err := env.missionSvc.RejectSubmission(ctx, org.UserID, rejected, "No video"); err != nil {
		t.Fatalf("RejectSubmission() error = %v", err)
	}

	dash, err := env.dashboardSvc.GetDashboard(ctx, org.UserID)
	if err != nil {
		t.Fatalf("GetDashboard() error = %v", err)
	}
	if dash.Kind != DashboardOrganization || dash.Organization == nil || dash.Student != nil {
		t.Fatalf("dashboard = %+v, want organization stats only", dash)
	}

	stats := dash.Organization
	if stats.OrganizationCode != org.OrganizationCode {
		t.Errorf("OrganizationCode = %q, want %q", stats.OrganizationCode, org.OrganizationCode)
	}
	if stats.TotalStudents != 2 || stats.TotalEcoPoints != 50 {
		t.Errorf("students/points = %d / %d, want 2 / 50", stats.TotalStudents, stats.TotalEcoPoints)
	}
	if stats.ActivePrograms != 2 {
		t.Errorf("ActivePrograms = %d, want 2", stats.ActivePrograms)
	}
	if stats.Approved != 1 || stats.Rejected != 1 || stats.Pending != 1 || stats.CompletedMissions != 1 {
		t.Errorf("review counts = %d/%d/%d, want 1/1/1", stats.Approved, stats.Rejected, stats.Pending)
	}
	if stats.ImpactScore != 2.5 {
		t.Errorf("ImpactScore = %v, want 2.5", stats.ImpactScore)
	}
	if len(stats.RecentActivity) == 0 || len(stats.RecentActivity) > RecentActivityLimit {
		t.Errorf("len(RecentActivity) = %d, want 1..%d", len(stats.RecentActivity), RecentActivityLimit)
	}
	for _, entry := range stats.RecentActivity {
		if entry.OrganizationCode != org.OrganizationCode {
			t.Errorf("feed entry from %q leaked into %q", entry.OrganizationCode, org.OrganizationCode)
		}
	}
}

func TestStudentDashboard(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	org := env.organization(t, "green@example.com", "Green School")
	asha := env.student(t, "asha@example.com", "Asha", org.OrganizationCode)
	ravi := env.student(t, "ravi@example.com", "Ravi", org.OrganizationCode)
	env.reward(t, ravi.UserID, 500)
	mission := env.mission(t, "Plant a Tree", 250, nil)

	if _, err := env.missionSvc.StartMission(ctx, asha.UserID, mission.ID); err != nil {
		t.Fatalf("StartMission() error = %v", err)
	}
	sub, err := env.missionSvc.SubmitMission(ctx, asha.UserID, mission.ID, SubmitMissionRequest{Description: "done"})
	if err != nil {
		t.Fatalf("SubmitMission() error = %v", err)
	}
	if _, err := env.missionSvc.ApproveSubmission(ctx, org.UserID, sub.ID, nil); err != nil {
		t.Fatalf("ApproveSubmission() error = %v", err)
	}

	dash, err := env.dashboardSvc.GetDashboard(ctx, asha.UserID)
	if err != nil {
		t.Fatalf("GetDashboard() error = %v", err)
	}
	if dash.Kind != DashboardStudent || dash.Student == nil {
		t.Fatalf("dashboard = %+v, want student stats", dash)
	}

	stats := dash.Student
	if stats.EcoPoints != 250 || stats.Level != 2 || stats.PointsToNext != 150 {
		t.Errorf("points/level/to next = %d / %d / %d, want 250 / 2 / 150", stats.EcoPoints, stats.Level, stats.PointsToNext)
	}
	if stats.MissionsApproved != 1 || stats.MissionsSubmitted != 0 {
		t.Errorf("missions approved/submitted = %d / %d, want 1 / 0", stats.MissionsApproved, stats.MissionsSubmitted)
	}
	if stats.StreakDays != 1 {
		t.Errorf("StreakDays = %d, want 1", stats.StreakDays)
	}
	if stats.Rank != 2 || stats.RankScope.Scope != models.ScopeOrganization {
		t.Errorf("rank = %d in %+v, want 2 in organization", stats.Rank, stats.RankScope)
	}

	if _, err := env.dashboardSvc.GetDashboard(ctx, 9999); !errors.Is(err, ErrNotFound) {
		t.Errorf("GetDashboard(missing) error = %v, want ErrNotFound", err)
	}
}

func TestActivityFeed(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	org := env.organization(t, "green@example.com", "Green School")
	asha := env.student(t, "asha@example.com", "Asha", org.OrganizationCode)
	ravi := env.student(t, "ravi@example.com", "Ravi", org.OrganizationCode)
	mission := env.mission(t, "Plant a Tree", 50, nil)

	if _, err := env.missionSvc.StartMission(ctx, asha.UserID, mission.ID); err != nil {
		t.Fatalf("StartMission() error = %v", err)
	}

	own, err := env.dashboardSvc.ActivityFeed(ctx, asha.UserID, 0)
	if err != nil {
		t.Fatalf("ActivityFeed(student) error = %v", err)
	}
	for _, entry := range own {
		if entry.UserID != asha.UserID {
			t.Errorf("student feed has entry of user %d", entry.UserID)
		}
	}
	if len(own) != 2 || own[0].Type != models.ActivityMissionStarted {
		t.Errorf("student feed = %+v, want mission start then join", own)
	}

	orgFeed, err := env.dashboardSvc.ActivityFeed(ctx, org.UserID, 2)
	if err != nil {
		t.Fatalf("ActivityFeed(organization) error = %v", err)
	}
	if len(orgFeed) != 2 {
		t.Errorf("len(org feed) = %d, want 2", len(orgFeed))
	}

	joined, err := env.dashboardSvc.ActivityFeed(ctx, ravi.UserID, 5)
	if err != nil || len(joined) != 1 {
		t.Errorf("ActivityFeed(ravi) = %+v, %v, want the join entry", joined, err)
	}
}
