package handlers

import (
	"bytes"
	"context"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"ecoquest/internal/inflight"
	"ecoquest/internal/models"
	"ecoquest/internal/security"
)

func withViewModel(r *http.Request, sessionID string) *http.Request {
	user := &models.User{ID: 7, Email: "asha@example.com"}
	profile := &models.Profile{UserID: 7, Role: models.RoleStudent}
	ctx := context.WithValue(r.Context(), UserContextKey, user)
	ctx = context.WithValue(ctx, ViewModelContextKey, newViewModel(user, profile, sessionID))
	return r.WithContext(ctx)
}

func TestNewViewModelKind(t *testing.T) {
	tests := []struct {
		role models.Role
		want ViewKind
	}{
		{models.RoleStudent, ViewStudent},
		{models.RoleOrganization, ViewOrganization},
	}

	for _, tt := range tests {
		t.Run(string(tt.role), func(t *testing.T) {
			vm := newViewModel(&models.User{ID: 1}, &models.Profile{UserID: 1, Role: tt.role}, "sid")
			if vm.Kind != tt.want {
				t.Errorf("Kind = %q, want %q", vm.Kind, tt.want)
			}
			if vm.IsOrganization() != (tt.want == ViewOrganization) {
				t.Errorf("IsOrganization() = %v for %q", vm.IsOrganization(), tt.role)
			}
		})
	}
}

func TestCSRFProtect(t *testing.T) {
	csrf := security.NewCSRFGenerator("test-secret")
	m := NewMiddleware(nil, nil, csrf, nil, nil)
	token, err := csrf.GenerateToken("session-1")
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}

	handler := m.CSRFProtect(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	tests := []struct {
		name   string
		method string
		token  string
		want   int
	}{
		{"safe method skips check", http.MethodGet, "", http.StatusNoContent},
		{"missing token", http.MethodPost, "", http.StatusForbidden},
		{"token of another session", http.MethodPost, mustToken(t, csrf, "session-2"), http.StatusForbidden},
		{"valid token", http.MethodPatch, token, http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := withViewModel(httptest.NewRequest(tt.method, "/api/profile", nil), "session-1")
			if tt.token != "" {
				req.Header.Set(security.CSRFHeader, tt.token)
			}
			recorder := httptest.NewRecorder()
			handler(recorder, req)
			if recorder.Code != tt.want {
				t.Errorf("status = %d, want %d", recorder.Code, tt.want)
			}
		})
	}
}

func mustToken(t *testing.T, csrf *security.CSRFGenerator, sessionID string) string {
	t.Helper()
	token, err := csrf.GenerateToken(sessionID)
	if err != nil {
		t.Fatalf("GenerateToken() error = %v", err)
	}
	return token
}

func TestRateLimit(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m := NewMiddleware(nil, nil, nil, security.NewRateLimiter(ctx, 2, time.Minute), nil)

	handler := m.RateLimit(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	want := []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests}
	for i, status := range want {
		req := httptest.NewRequest(http.MethodPost, "/api/auth/login", nil)
		req.RemoteAddr = "203.0.113.9:5555"
		recorder := httptest.NewRecorder()
		handler(recorder, req)
		if recorder.Code != status {
			t.Errorf("request %d status = %d, want %d", i+1, recorder.Code, status)
		}
	}
}

func TestSupersedingCancelsOlderRequest(t *testing.T) {
	registry := inflight.NewRegistry()
	m := NewMiddleware(nil, nil, nil, nil, registry)

	started := make(chan struct{})
	firstErr := make(chan error, 1)
	handler := m.Superseding("dashboard", func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-First") == "" {
			w.WriteHeader(http.StatusOK)
			return
		}
		close(started)
		select {
		case <-r.Context().Done():
			firstErr <- r.Context().Err()
		case <-time.After(2 * time.Second):
			firstErr <- nil
		}
	})

	first := withViewModel(httptest.NewRequest(http.MethodGet, "/api/dashboard", nil), "session-1")
	first.Header.Set("X-First", "1")
	go handler(httptest.NewRecorder(), first)
	<-started

	second := withViewModel(httptest.NewRequest(http.MethodGet, "/api/dashboard", nil), "session-1")
	recorder := httptest.NewRecorder()
	handler(recorder, second)

	if err := <-firstErr; err != context.Canceled {
		t.Fatalf("first request context error = %v, want context.Canceled", err)
	}
	if recorder.Code != http.StatusOK {
		t.Errorf("second request status = %d, want 200", recorder.Code)
	}
}

func TestSupersedingKeepsOtherSessions(t *testing.T) {
	registry := inflight.NewRegistry()
	m := NewMiddleware(nil, nil, nil, nil, registry)

	var seen []string
	handler := m.Superseding("dashboard", func(w http.ResponseWriter, r *http.Request) {
		if r.Context().Err() != nil {
			seen = append(seen, "cancelled")
			return
		}
		seen = append(seen, GetViewModel(r.Context()).SessionID)
	})

	handler(httptest.NewRecorder(), withViewModel(httptest.NewRequest(http.MethodGet, "/", nil), "a"))
	handler(httptest.NewRecorder(), withViewModel(httptest.NewRequest(http.MethodGet, "/", nil), "b"))

	if strings.Join(seen, ",") != "a,b" {
		t.Errorf("seen = %v, want [a b]", seen)
	}
	if registry.Len() != 0 {
		t.Errorf("registry.Len() = %d after requests finished, want 0", registry.Len())
	}
}

func TestLoggingIncludesRequestID(t *testing.T) {
	var buf bytes.Buffer
	logger := log.Default()
	originalOutput := logger.Writer()
	logger.SetOutput(&buf)
	defer logger.SetOutput(originalOutput)

	handler := middleware.RequestID(Logging(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	})))

	req := httptest.NewRequest(http.MethodGet, "/api/badges", nil)
	req.Header.Set(middleware.RequestIDHeader, "req-123")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	out := buf.String()
	for _, want := range []string{"[req-123]", "GET /api/badges", "418"} {
		if !strings.Contains(out, want) {
			t.Errorf("log %q does not contain %q", out, want)
		}
	}
}
