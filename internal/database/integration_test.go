package database_test

import (
	"context"
	"strings"
	"sync"
	"testing"

	"ecoquest/internal/database"
	"ecoquest/internal/database/dbtest"
	"ecoquest/migrations"
)

// TestDatabaseIntegration tests the complete database lifecycle
func TestDatabaseIntegration(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := dbtest.Open(t)
	ctx := context.Background()

	if err := db.PingContext(ctx); err != nil {
		t.Fatalf("Failed to ping database: %v", err)
	}

	tables := []string{
		"users", "sessions", "profiles", "organization_codes", "organization_memberships",
		"lessons", "lesson_progress", "lesson_videos", "missions", "mission_submissions",
		"badges", "user_badges", "activity_log", "bad_words",
	}
	for _, table := range tables {
		var name string
		query := "SELECT name FROM sqlite_master WHERE type='table' AND name=?"
		if err := db.QueryRowContext(ctx, query, table).Scan(&name); err != nil {
			t.Errorf("Table %s not found: %v", table, err)
		}
	}

	var view string
	if err := db.QueryRowContext(ctx, "SELECT name FROM sqlite_master WHERE type='view' AND name=?", "organization_leaderboard").Scan(&view); err != nil {
		t.Errorf("View organization_leaderboard not found: %v", err)
	}

	// Running again is a no-op
	if err := db.RunMigrations(ctx, migrations.FS); err != nil {
		t.Fatalf("Second migration run failed: %v", err)
	}
}

// TestDatabaseTransactions tests commit and rollback through WithTx
func TestDatabaseTransactions(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := dbtest.Open(t)
	ctx := context.Background()

	err := db.WithTx(ctx, func(tx *database.Tx) error {
		_, err := tx.ExecReturningID(ctx, "INSERT INTO users (email, password_hash) VALUES (?, ?)", "test@example.com", "hashedpass")
		return err
	})
	if err != nil {
		t.Fatalf("Committed transaction failed: %v", err)
	}

	var count int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users WHERE email = ?", "test@example.com").Scan(&count); err != nil {
		t.Fatalf("Failed to query after commit: %v", err)
	}
	if count != 1 {
		t.Errorf("Expected 1 user, got %d", count)
	}

	err = db.WithTx(ctx, func(tx *database.Tx) error {
		if _, err := tx.ExecContext(ctx, "INSERT INTO users (email, password_hash) VALUES (?, ?)", "test2@example.com", "hashedpass"); err != nil {
			return err
		}
		// Duplicate email forces a rollback of the whole transaction
		_, err := tx.ExecContext(ctx, "INSERT INTO users (email, password_hash) VALUES (?, ?)", "test@example.com", "hashedpass")
		return err
	})
	if err == nil {
		t.Fatal("Expected duplicate email to fail the transaction")
	}

	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM users WHERE email = ?", "test2@example.com").Scan(&count); err != nil {
		t.Fatalf("Failed to query after rollback: %v", err)
	}
	if count != 0 {
		t.Errorf("Expected 0 users after rollback, got %d", count)
	}
}

// TestConcurrentAccess tests concurrent database reads
func TestConcurrentAccess(t *testing.T) {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	db := dbtest.Open(t)
	ctx := context.Background()

	if _, err := db.ExecReturningID(ctx, "INSERT INTO users (email, password_hash) VALUES (?, ?)", "concurrent@example.com", "hashedpass"); err != nil {
		t.Fatalf("Failed to create test user: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var email string
			if err := db.QueryRowContext(ctx, "SELECT email FROM users WHERE email = ?", "concurrent@example.com").Scan(&email); err != nil {
				t.Errorf("Concurrent read failed: %v", err)
			}
		}()
	}
	wg.Wait()
}

func TestBadWords(t *testing.T) {
	db := dbtest.Open(t)
	ctx := context.Background()

	loaded, err := db.LoadBadWords(ctx, strings.NewReader("darn\nheck\n\ndarn\n"))
	if err != nil {
		t.Fatalf("LoadBadWords() error = %v", err)
	}
	if loaded != 2 {
		t.Errorf("LoadBadWords() = %d, want 2", loaded)
	}

	tests := []struct {
		text string
		want bool
	}{
		{text: "Green Team", want: false},
		{text: "Darn Recyclers", want: true},
		{text: "oh heck!", want: true},
		{text: "checkers", want: false},
	}

	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			got, err := db.ContainsBadWord(ctx, tt.text)
			if err != nil {
				t.Fatalf("ContainsBadWord() error = %v", err)
			}
			if got != tt.want {
				t.Errorf("ContainsBadWord(%q) = %v, want %v", tt.text, got, tt.want)
			}
		})
	}
}
