package handlers

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"ecoquest/internal/inflight"
	"ecoquest/internal/models"
	"ecoquest/internal/security"
	"ecoquest/internal/service"
)

// ContextKey is a custom type for context keys to avoid collisions
type ContextKey string

const (
	UserContextKey      ContextKey = "user"
	ViewModelContextKey ContextKey = "view"
)

// Middleware holds dependencies for middleware functions
type Middleware struct {
	authService    *service.AuthService
	profileService *service.ProfileService
	csrf           *security.CSRFGenerator
	limiter        *security.RateLimiter
	inflight       *inflight.Registry
}

// NewMiddleware creates a new middleware instance
func NewMiddleware(
	authService *service.AuthService,
	profileService *service.ProfileService,
	csrf *security.CSRFGenerator,
	limiter *security.RateLimiter,
	registry *inflight.Registry,
) *Middleware {
	if registry == nil {
		registry = inflight.NewRegistry()
	}
	return &Middleware{
		authService:    authService,
		profileService: profileService,
		csrf:           csrf,
		limiter:        limiter,
		inflight:       registry,
	}
}

// RequireAuth is middleware that requires a valid session and a profile
func (m *Middleware) RequireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(security.SessionCookieName)
		if err != nil || cookie.Value == "" {
			respondWithError(w, http.StatusUnauthorized, ErrUnauthorized, "", nil)
			return
		}

		user, err := m.authService.ValidateSession(r.Context(), cookie.Value)
		if err != nil {
			if service.IsAuthError(err) {
				http.SetCookie(w, security.CreateDeleteCookie(r, security.SessionCookieName))
				respondWithError(w, http.StatusUnauthorized, ErrUnauthorized, "", nil)
				return
			}
			respondWithServiceError(w, "Error validating session", err)
			return
		}

		profile, err := m.authService.EnsureProfile(r.Context(), user, "")
		if err != nil {
			respondWithServiceError(w, "Error loading profile", err)
			return
		}

		ctx := context.WithValue(r.Context(), UserContextKey, user)
		ctx = context.WithValue(ctx, ViewModelContextKey, newViewModel(user, profile, cookie.Value))
		next(w, r.WithContext(ctx))
	}
}

// CSRFProtect rejects mutating requests without the session's CSRF token header.
// It must run inside RequireAuth.
func (m *Middleware) CSRFProtect(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			next(w, r)
			return
		}

		vm := GetViewModel(r.Context())
		if vm == nil || !m.csrf.ValidateToken(vm.SessionID, r.Header.Get(security.CSRFHeader)) {
			respondWithError(w, http.StatusForbidden, ErrInvalidCSRFToken, "", nil)
			return
		}
		next(w, r)
	}
}

// RateLimit limits requests per client IP
func (m *Middleware) RateLimit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if m.limiter != nil && !m.limiter.Allow(security.GetClientIP(r)) {
			log.Printf("Rate limit exceeded for %s on %s", security.GetClientIP(r), r.URL.Path)
			respondWithError(w, http.StatusTooManyRequests, ErrTooManyRequests, "", nil)
			return
		}
		next(w, r)
	}
}

// Superseding cancels the previous in-flight request of the same session for resource
// when a new one arrives. It must run inside RequireAuth.
func (m *Middleware) Superseding(resource string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		vm := GetViewModel(r.Context())
		if vm == nil {
			next(w, r)
			return
		}
		ctx, release := m.inflight.Begin(r.Context(), vm.SessionID+":"+resource)
		defer release()
		next(w, r.WithContext(ctx))
	}
}

// Logging middleware logs HTTP requests
func Logging(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		log.Printf("[%s] %s %s %d %s", middleware.GetReqID(r.Context()), r.Method, r.URL.Path, status, time.Since(start))
	})
}

// GetUserFromContext retrieves the user from the request context
func GetUserFromContext(ctx context.Context) *models.User {
	user, ok := ctx.Value(UserContextKey).(*models.User)
	if !ok {
		return nil
	}
	return user
}

// GetViewModel retrieves the signed-in caller from the request context
func GetViewModel(ctx context.Context) *ViewModel {
	vm, ok := ctx.Value(ViewModelContextKey).(*ViewModel)
	if !ok {
		return nil
	}
	return vm
}
