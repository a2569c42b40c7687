package scheduler

import (
	"context"
	"log"
	"time"
)

// SessionCleaner removes expired sessions and password reset tokens
type SessionCleaner interface {
	CleanupExpired(ctx context.Context) error
}

// StreakResetter zeroes streaks of profiles that missed a day
type StreakResetter interface {
	ResetStaleStreaks(ctx context.Context, now time.Time) (int64, error)
}

// DefaultJobs returns the maintenance jobs of the server
func DefaultJobs(sessions SessionCleaner, streaks StreakResetter, streakSchedule string) []Job {
	return []Job{
		{
			Name:     "cleanup-expired-sessions",
			Schedule: "@hourly",
			Timeout:  2 * time.Minute,
			Run:      sessions.CleanupExpired,
		},
		{
			Name:     "reset-stale-streaks",
			Schedule: streakSchedule,
			Timeout:  4 * time.Minute,
			Run: func(ctx context.Context) error {
				reset, err := streaks.ResetStaleStreaks(ctx, time.Now())
				if err != nil {
					return err
				}
				log.Printf("[CRON] reset %d stale streaks", reset)
				return nil
			},
		},
	}
}
