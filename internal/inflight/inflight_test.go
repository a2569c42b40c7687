package inflight

import (
	"context"
	"errors"
	"testing"
)

func TestBeginCancelsSupersededRequest(t *testing.T) {
	r := NewRegistry()

	first, releaseFirst := r.Begin(context.Background(), "session-1:dashboard")
	second, releaseSecond := r.Begin(context.Background(), "session-1:dashboard")
	other, releaseOther := r.Begin(context.Background(), "session-2:dashboard")

	if !errors.Is(first.Err(), context.Canceled) {
		t.Errorf("first request err = %v, want context.Canceled", first.Err())
	}
	if second.Err() != nil {
		t.Errorf("second request err = %v, want nil", second.Err())
	}
	if other.Err() != nil {
		t.Errorf("other key err = %v, want nil", other.Err())
	}

	// Releasing the superseded request must not drop the newer one
	releaseFirst()
	if r.Len() != 2 {
		t.Errorf("Len() = %d, want 2", r.Len())
	}

	releaseSecond()
	releaseOther()
	if r.Len() != 0 {
		t.Errorf("Len() = %d, want 0", r.Len())
	}
	if !errors.Is(second.Err(), context.Canceled) {
		t.Error("released context should be cancelled")
	}
}

func TestBeginInheritsParentCancellation(t *testing.T) {
	r := NewRegistry()
	parent, cancel := context.WithCancel(context.Background())

	ctx, release := r.Begin(parent, "key")
	defer release()

	cancel()
	if !errors.Is(ctx.Err(), context.Canceled) {
		t.Errorf("ctx err = %v, want context.Canceled", ctx.Err())
	}
}
