package service

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"ecoquest/internal/email"
	"ecoquest/internal/models"
	"ecoquest/internal/retry"
)

type recordingSender struct {
	mu       sync.Mutex
	sent     []email.SendRequest
	failures int
}

func (r *recordingSender) Send(ctx context.Context, req email.SendRequest) (email.SendResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failures > 0 {
		r.failures--
		return email.SendResult{}, errors.New("provider unavailable")
	}
	r.sent = append(r.sent, req)
	return email.SendResult{MessageID: "msg-1", SentAt: time.Now()}, nil
}

func (r *recordingSender) last(t *testing.T) email.SendRequest {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.sent) == 0 {
		t.Fatal("no email was sent")
	}
	return r.sent[len(r.sent)-1]
}

func newTestEmailService(sender email.Sender) *EmailService {
	svc := NewEmailService(sender, "noreply@ecoquest.test", "EcoQuest", "https://ecoquest.test", false)
	svc.policy = retry.Policy{Attempts: 3, BaseDelay: time.Millisecond}
	return svc
}

func TestSendPasswordResetEmail(t *testing.T) {
	sender := &recordingSender{}
	svc := newTestEmailService(sender)

	if err := svc.SendPasswordResetEmail(context.Background(), "asha@example.com", "Asha", "tok en"); err != nil {
		t.Fatalf("SendPasswordResetEmail() error = %v", err)
	}

	req := sender.last(t)
	if req.From != "EcoQuest <noreply@ecoquest.test>" {
		t.Errorf("From = %q", req.From)
	}
	if len(req.To) != 1 || req.To[0] != "asha@example.com" {
		t.Errorf("To = %v", req.To)
	}
	wantLink := "https://ecoquest.test/auth/reset-password?token=tok+en"
	if !strings.Contains(req.Text, wantLink) {
		t.Errorf("text body missing reset link %q:\n%s", wantLink, req.Text)
	}
	if !strings.Contains(req.HTML, "Hi Asha,") {
		t.Error("html body missing greeting")
	}
}

func TestEmailEscapesUserInput(t *testing.T) {
	sender := &recordingSender{}
	svc := newTestEmailService(sender)

	if err := svc.SendWelcomeEmail(context.Background(), "x@example.com", "<script>alert(1)</script>", models.RoleStudent); err != nil {
		t.Fatalf("SendWelcomeEmail() error = %v", err)
	}

	req := sender.last(t)
	if strings.Contains(req.HTML, "<script>") {
		t.Error("html body contains unescaped markup")
	}
	if !strings.Contains(req.HTML, "&lt;script&gt;") {
		t.Error("html body should contain the escaped name")
	}
}

func TestSendWelcomeEmailByRole(t *testing.T) {
	tests := []struct {
		role models.Role
		want string
	}{
		{role: models.RoleStudent, want: "complete real-world missions"},
		{role: models.RoleOrganization, want: "organization code"},
	}

	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			sender := &recordingSender{}
			svc := newTestEmailService(sender)
			if err := svc.SendWelcomeEmail(context.Background(), "x@example.com", "X", tt.role); err != nil {
				t.Fatalf("SendWelcomeEmail() error = %v", err)
			}
			if body := sender.last(t).Text; !strings.Contains(body, tt.want) {
				t.Errorf("text body missing %q:\n%s", tt.want, body)
			}
		})
	}
}

func TestSendSubmissionReviewedEmail(t *testing.T) {
	tests := []struct {
		name        string
		status      models.SubmissionStatus
		notes       string
		wantSubject string
		wantBody    string
		wantErr     bool
	}{
		{name: "approved", status: models.StatusApproved, wantSubject: "Your mission was approved!", wantBody: "earned 50 eco points"},
		{name: "rejected with notes", status: models.StatusRejected, notes: "Video is blurry", wantSubject: "Your mission needs another try", wantBody: "Reviewer notes: Video is blurry"},
		{name: "not a review outcome", status: models.StatusSubmitted, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sender := &recordingSender{}
			svc := newTestEmailService(sender)
			err := svc.SendSubmissionReviewedEmail(context.Background(), "s@example.com", "Sam", "Plant a Tree", tt.status, tt.notes, 50)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("SendSubmissionReviewedEmail() error = %v", err)
			}
			req := sender.last(t)
			if req.Subject != tt.wantSubject {
				t.Errorf("Subject = %q, want %q", req.Subject, tt.wantSubject)
			}
			if !strings.Contains(req.Text, tt.wantBody) {
				t.Errorf("text body missing %q:\n%s", tt.wantBody, req.Text)
			}
		})
	}
}

func TestEmailRetriesTransientFailures(t *testing.T) {
	sender := &recordingSender{failures: 2}
	svc := newTestEmailService(sender)

	if err := svc.SendWelcomeEmail(context.Background(), "x@example.com", "X", models.RoleStudent); err != nil {
		t.Fatalf("SendWelcomeEmail() error = %v", err)
	}
	if len(sender.sent) != 1 {
		t.Errorf("sent %d emails, want 1", len(sender.sent))
	}

	failing := &recordingSender{failures: 5}
	svc = newTestEmailService(failing)
	if err := svc.SendWelcomeEmail(context.Background(), "x@example.com", "X", models.RoleStudent); err == nil {
		t.Error("expected error after exhausting retries")
	}
}
