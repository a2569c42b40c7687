package service

import (
	"context"
	"errors"
	"testing"

	"ecoquest/internal/models"
)

func TestResolveScope(t *testing.T) {
	tests := []struct {
		name    string
		profile models.Profile
		want    models.ScopeFilter
	}{
		{
			name:    "affiliated student",
			profile: models.Profile{Role: models.RoleStudent, OrganizationCode: "AB12", Region: models.Region{District: "Pune"}},
			want:    models.ScopeFilter{Scope: models.ScopeOrganization, Value: "AB12"},
		},
		{
			name:    "district and state",
			profile: models.Profile{Region: models.Region{Country: "India", State: "Maharashtra", District: "Pune"}},
			want:    models.ScopeFilter{Scope: models.ScopeDistrict, Value: "Pune"},
		},
		{
			name:    "state only",
			profile: models.Profile{Region: models.Region{State: "Kerala"}},
			want:    models.ScopeFilter{Scope: models.ScopeState, Value: "Kerala"},
		},
		{
			name:    "country only",
			profile: models.Profile{Region: models.Region{Country: "India"}},
			want:    models.ScopeFilter{Scope: models.ScopeCountry, Value: "India"},
		},
		{
			name:    "blank values",
			profile: models.Profile{Region: models.Region{State: "  "}},
			want:    models.ScopeFilter{Scope: models.ScopeGlobal},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ResolveScope(&tt.profile); got != tt.want {
				t.Errorf("ResolveScope() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestChooseScope(t *testing.T) {
	viewer := &models.Profile{Region: models.Region{Country: "India", State: "Kerala"}}

	tests := []struct {
		name      string
		requested models.Scope
		want      models.ScopeFilter
		wantErr   bool
	}{
		{"default", "", models.ScopeFilter{Scope: models.ScopeState, Value: "Kerala"}, false},
		{"same as default", models.ScopeState, models.ScopeFilter{Scope: models.ScopeState, Value: "Kerala"}, false},
		{"broader", models.ScopeCountry, models.ScopeFilter{Scope: models.ScopeCountry, Value: "India"}, false},
		{"global", models.ScopeGlobal, models.ScopeFilter{Scope: models.ScopeGlobal}, false},
		{"narrower", models.ScopeDistrict, models.ScopeFilter{}, true},
		{"organization when unaffiliated", models.ScopeOrganization, models.ScopeFilter{}, true},
		{"unknown", "planet", models.ScopeFilter{}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ChooseScope(viewer, tt.requested)
			if tt.wantErr {
				if !errors.Is(err, ErrUnsupportedScope) {
					t.Errorf("ChooseScope() error = %v, want ErrUnsupportedScope", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("ChooseScope() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ChooseScope() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func (env *testEnv) reward(t *testing.T, userID int64, points int) {
	t.Helper()
	if err := env.profiles.ApplyReward(context.Background(), userID, points, 0, 0); err != nil {
		t.Fatalf("ApplyReward() error = %v", err)
	}
}

func TestStudentLeaderboard(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	org := env.organization(t, "green@example.com", "Green School")
	asha := env.student(t, "asha@example.com", "Asha", org.OrganizationCode)
	ravi := env.student(t, "ravi@example.com", "Ravi", org.OrganizationCode)
	meera := env.student(t, "meera@example.com", "Meera", org.OrganizationCode)
	outsider := env.student(t, "out@example.com", "Outsider", "")

	env.reward(t, asha.UserID, 100)
	env.reward(t, ravi.UserID, 450)
	env.reward(t, meera.UserID, 450)
	env.reward(t, outsider.UserID, 1000)

	board, err := env.leaderboardSvc.StudentLeaderboard(ctx, asha.UserID, "")
	if err != nil {
		t.Fatalf("StudentLeaderboard() error = %v", err)
	}
	if board.Scope.Scope != models.ScopeOrganization {
		t.Errorf("Scope = %+v, want organization", board.Scope)
	}

	wantOrder := []int64{ravi.UserID, meera.UserID, asha.UserID}
	if len(board.Entries) != len(wantOrder) {
		t.Fatalf("len(Entries) = %d, want %d", len(board.Entries), len(wantOrder))
	}
	for i, id := range wantOrder {
		if board.Entries[i].UserID != id || board.Entries[i].Rank != i+1 {
			t.Errorf("Entries[%d] = user %d rank %d, want user %d rank %d", i, board.Entries[i].UserID, board.Entries[i].Rank, id, i+1)
		}
	}
	if board.Entries[0].Level != 3 {
		t.Errorf("Entries[0].Level = %d, want 3", board.Entries[0].Level)
	}
	if board.ViewerRank == nil || *board.ViewerRank != 3 {
		t.Errorf("ViewerRank = %v, want 3", board.ViewerRank)
	}

	global, err := env.leaderboardSvc.StudentLeaderboard(ctx, asha.UserID, models.ScopeGlobal)
	if err != nil {
		t.Fatalf("StudentLeaderboard(global) error = %v", err)
	}
	if len(global.Entries) != 4 || global.Entries[0].UserID != outsider.UserID || *global.ViewerRank != 4 {
		t.Errorf("global board = %+v, rank %v", global.Entries, *global.ViewerRank)
	}

	orgBoard, err := env.leaderboardSvc.StudentLeaderboard(ctx, org.UserID, "")
	if err != nil {
		t.Fatalf("StudentLeaderboard(org viewer) error = %v", err)
	}
	if orgBoard.ViewerRank != nil || len(orgBoard.Entries) != 3 {
		t.Errorf("org viewer board = %d entries, rank %v", len(orgBoard.Entries), orgBoard.ViewerRank)
	}
}

func TestStudentRank(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	org := env.organization(t, "green@example.com", "Green School")
	asha := env.student(t, "asha@example.com", "Asha", "")
	ravi := env.student(t, "ravi@example.com", "Ravi", "")
	env.reward(t, ravi.UserID, 20)

	scope, rank, err := env.leaderboardSvc.StudentRank(ctx, asha.UserID, "")
	if err != nil {
		t.Fatalf("StudentRank() error = %v", err)
	}
	if scope.Scope != models.ScopeCountry || rank != 2 {
		t.Errorf("StudentRank() = %+v / %d, want country / 2", scope, rank)
	}

	if _, _, err := env.leaderboardSvc.StudentRank(ctx, org.UserID, ""); !errors.Is(err, ErrUnsupportedScope) {
		t.Errorf("StudentRank(organization) error = %v, want ErrUnsupportedScope", err)
	}
	if _, _, err := env.leaderboardSvc.StudentRank(ctx, 9999, ""); !errors.Is(err, ErrNotFound) {
		t.Errorf("StudentRank(missing) error = %v, want ErrNotFound", err)
	}
}

func TestOrganizationLeaderboard(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	green := env.organization(t, "green@example.com", "Green School")
	blue := env.organization(t, "blue@example.com", "Blue School")
	a := env.student(t, "a@example.com", "Student A", green.OrganizationCode)
	b := env.student(t, "b@example.com", "Student B", blue.OrganizationCode)
	c := env.student(t, "c@example.com", "Student C", blue.OrganizationCode)
	env.reward(t, a.UserID, 300)
	env.reward(t, b.UserID, 100)
	env.reward(t, c.UserID, 100)

	board, err := env.leaderboardSvc.OrganizationLeaderboard(ctx, green.UserID, "")
	if err != nil {
		t.Fatalf("OrganizationLeaderboard() error = %v", err)
	}
	if board.Scope.Scope != models.ScopeGlobal || len(board.Entries) != 2 {
		t.Fatalf("board = %+v", board)
	}
	if board.Entries[0].OrganizationID != green.UserID || board.Entries[0].TotalEcoPoints != 300 {
		t.Errorf("Entries[0] = %+v, want Green School with 300", board.Entries[0])
	}
	if board.Entries[1].StudentCount != 2 || board.Entries[1].AvgEcoPoints != 100 {
		t.Errorf("Entries[1] = %+v, want 2 students averaging 100", board.Entries[1])
	}
	if board.Viewer == nil || board.Viewer.Rank != 1 {
		t.Errorf("Viewer = %+v, want rank 1", board.Viewer)
	}

	studentView, err := env.leaderboardSvc.OrganizationLeaderboard(ctx, b.UserID, models.ScopeCountry)
	if err != nil {
		t.Fatalf("OrganizationLeaderboard(country) error = %v", err)
	}
	if studentView.Viewer == nil || studentView.Viewer.OrganizationID != blue.UserID || studentView.Viewer.Rank != 2 {
		t.Errorf("student Viewer = %+v, want Blue School rank 2", studentView.Viewer)
	}

	if _, err := env.leaderboardSvc.OrganizationLeaderboard(ctx, green.UserID, models.ScopeOrganization); !errors.Is(err, ErrUnsupportedScope) {
		t.Errorf("OrganizationLeaderboard(organization) error = %v, want ErrUnsupportedScope", err)
	}
	if _, err := env.leaderboardSvc.OrganizationLeaderboard(ctx, green.UserID, models.ScopeDistrict); !errors.Is(err, ErrUnsupportedScope) {
		t.Errorf("OrganizationLeaderboard(district) error = %v, want ErrUnsupportedScope", err)
	}
}
