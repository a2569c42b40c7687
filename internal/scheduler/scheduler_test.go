package scheduler

import (
	"context"
	"errors"
	"testing"
	"time"
)

type fakeCleaner struct {
	calls int
	err   error
}

func (f *fakeCleaner) CleanupExpired(ctx context.Context) error {
	f.calls++
	return f.err
}

type fakeStreaks struct {
	now time.Time
}

func (f *fakeStreaks) ResetStaleStreaks(ctx context.Context, now time.Time) (int64, error) {
	f.now = now
	if _, ok := ctx.Deadline(); !ok {
		return 0, errors.New("job ran without a deadline")
	}
	return 3, nil
}

func TestAddValidatesSchedule(t *testing.T) {
	tests := []struct {
		name    string
		job     Job
		wantErr bool
	}{
		{name: "descriptor", job: Job{Name: "a", Schedule: "@hourly", Run: func(context.Context) error { return nil }}},
		{name: "five fields", job: Job{Name: "b", Schedule: "5 0 * * *", Run: func(context.Context) error { return nil }}},
		{name: "invalid expression", job: Job{Name: "c", Schedule: "every day", Run: func(context.Context) error { return nil }}, wantErr: true},
		{name: "missing run", job: Job{Name: "d", Schedule: "@daily"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := New()
			err := s.Add(tt.job)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Add() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && len(s.Jobs()) != 1 {
				t.Errorf("Jobs() = %v, want one job", s.Jobs())
			}
		})
	}
}

func TestDefaultJobsRun(t *testing.T) {
	cleaner := &fakeCleaner{}
	streaks := &fakeStreaks{}

	jobs := DefaultJobs(cleaner, streaks, "5 0 * * *")
	if len(jobs) != 2 {
		t.Fatalf("DefaultJobs() returned %d jobs, want 2", len(jobs))
	}

	s := New()
	for _, job := range jobs {
		if err := s.Add(job); err != nil {
			t.Fatalf("Add(%s) error = %v", job.Name, err)
		}
		if err := runJob(job); err != nil {
			t.Errorf("runJob(%s) error = %v", job.Name, err)
		}
	}

	if cleaner.calls != 1 {
		t.Errorf("cleanup ran %d times, want 1", cleaner.calls)
	}
	if streaks.now.IsZero() {
		t.Error("streak reset did not run")
	}
}

func TestRunJobReportsFailure(t *testing.T) {
	cleaner := &fakeCleaner{err: errors.New("database locked")}
	job := DefaultJobs(cleaner, &fakeStreaks{}, "@daily")[0]

	if err := runJob(job); err == nil {
		t.Error("expected error from failing job")
	}
}

func TestStartStop(t *testing.T) {
	s := New()
	if err := s.Add(Job{Name: "noop", Schedule: "@every 1h", Run: func(context.Context) error { return nil }}); err != nil {
		t.Fatalf("Add() error = %v", err)
	}
	s.Start()

	select {
	case <-s.Stop().Done():
	case <-time.After(time.Second):
		t.Fatal("Stop() did not finish")
	}
}
