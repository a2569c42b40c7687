package credentials

import (
	"context"
	"errors"
	"testing"
)

func TestGenerateOrganizationCode(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		code, err := GenerateOrganizationCode()
		if err != nil {
			t.Fatalf("GenerateOrganizationCode() error = %v", err)
		}
		if !IsOrganizationCode(code) {
			t.Fatalf("GenerateOrganizationCode() = %q, not a valid code", code)
		}
		seen[code] = true
	}
	if len(seen) < 90 {
		t.Errorf("only %d distinct codes in 100 draws", len(seen))
	}
}

func TestIssueOrganizationCode(t *testing.T) {
	t.Run("skips taken codes", func(t *testing.T) {
		calls := 0
		exists := func(ctx context.Context, code string) (bool, error) {
			calls++
			return calls < 3, nil
		}
		code, err := IssueOrganizationCode(context.Background(), exists)
		if err != nil {
			t.Fatalf("IssueOrganizationCode() error = %v", err)
		}
		if calls != 3 || !IsOrganizationCode(code) {
			t.Errorf("IssueOrganizationCode() = %q after %d calls", code, calls)
		}
	})

	t.Run("gives up when every code is taken", func(t *testing.T) {
		exists := func(ctx context.Context, code string) (bool, error) { return true, nil }
		if _, err := IssueOrganizationCode(context.Background(), exists); !errors.Is(err, ErrCodeSpaceExhausted) {
			t.Errorf("IssueOrganizationCode() error = %v, want %v", err, ErrCodeSpaceExhausted)
		}
	})

	t.Run("propagates lookup errors", func(t *testing.T) {
		lookupErr := errors.New("db down")
		exists := func(ctx context.Context, code string) (bool, error) { return false, lookupErr }
		if _, err := IssueOrganizationCode(context.Background(), exists); !errors.Is(err, lookupErr) {
			t.Errorf("IssueOrganizationCode() error = %v, want %v", err, lookupErr)
		}
	})
}

func TestIsOrganizationCode(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{input: "AB12", want: true},
		{input: "ab12", want: false},
		{input: "AB1", want: false},
		{input: "AB123", want: false},
		{input: "AB-2", want: false},
		{input: "", want: false},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := IsOrganizationCode(tt.input); got != tt.want {
				t.Errorf("IsOrganizationCode(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}
