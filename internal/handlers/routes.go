package handlers

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5/middleware"
)

// Dependencies are the handlers and middleware the router wires together
type Dependencies struct {
	Middleware     *Middleware
	Auth           *AuthHandler
	Profile        *ProfileHandler
	Lessons        *LessonHandler
	Missions       *MissionHandler
	Leaderboards   *LeaderboardHandler
	Badges         *BadgeHandler
	Media          *MediaHandler
	Realtime       *RealtimeHandler
	Startup        *StartupStatus
	RequestTimeout time.Duration
}

// NewRouter builds the HTTP handler for the whole API
func NewRouter(d Dependencies) http.Handler {
	m := d.Middleware
	authed := func(h http.HandlerFunc) http.HandlerFunc {
		return m.RequireAuth(m.CSRFProtect(h))
	}
	superseding := func(resource string, h http.HandlerFunc) http.HandlerFunc {
		return m.RequireAuth(m.Superseding(resource, h))
	}

	api := http.NewServeMux()

	// Auth routes
	api.HandleFunc("POST /api/auth/signup", m.RateLimit(d.Auth.SignUp))
	api.HandleFunc("POST /api/auth/login", m.RateLimit(d.Auth.Login))
	api.HandleFunc("POST /api/auth/logout", authed(d.Auth.Logout))
	api.HandleFunc("GET /api/auth/me", authed(d.Auth.Me))
	api.HandleFunc("GET /api/auth/csrf", authed(d.Auth.CSRFToken))
	api.HandleFunc("GET /api/auth/providers", d.Auth.OAuthProviders)
	api.HandleFunc("POST /api/auth/password-reset", m.RateLimit(d.Auth.RequestPasswordReset))
	api.HandleFunc("POST /api/auth/password-reset/confirm", m.RateLimit(d.Auth.ConfirmPasswordReset))
	api.HandleFunc("GET /auth/{provider}/start", m.RateLimit(d.Auth.StartOAuth))
	api.HandleFunc("GET /auth/{provider}/callback", d.Auth.OAuthCallback)

	// Profile routes
	api.HandleFunc("GET /api/profile", authed(d.Profile.GetProfile))
	api.HandleFunc("PATCH /api/profile", authed(d.Profile.UpdateProfile))
	api.HandleFunc("GET /api/dashboard", superseding("dashboard", d.Profile.Dashboard))
	api.HandleFunc("GET /api/activity", authed(d.Profile.Activity))

	// Lesson routes
	api.HandleFunc("GET /api/lessons", authed(d.Lessons.ListLessons))
	api.HandleFunc("GET /api/lessons/{ref}", authed(d.Lessons.GetLesson))
	api.HandleFunc("POST /api/lessons/{id}/start", authed(d.Lessons.StartLesson))
	api.HandleFunc("POST /api/lessons/{id}/video-progress", authed(d.Lessons.VideoProgress))
	api.HandleFunc("POST /api/lessons/{id}/video-complete", authed(d.Lessons.CompleteVideo))
	api.HandleFunc("POST /api/lessons/{id}/quiz", authed(d.Lessons.SubmitQuiz))
	api.HandleFunc("POST /api/lessons/{id}/complete", authed(d.Lessons.CompleteLesson))

	// Mission routes
	api.HandleFunc("GET /api/missions", authed(d.Missions.ListMissions))
	api.HandleFunc("GET /api/missions/{id}", authed(d.Missions.GetMission))
	api.HandleFunc("POST /api/missions/{id}/start", authed(d.Missions.StartMission))
	api.HandleFunc("GET /api/submissions/{id}/video", authed(d.Missions.SubmissionVideo))

	// Review routes
	api.HandleFunc("GET /api/review/submissions", superseding("review", d.Missions.ReviewQueue))
	api.HandleFunc("POST /api/review/submissions/{id}/approve", authed(d.Missions.ApproveSubmission))
	api.HandleFunc("POST /api/review/submissions/{id}/reject", authed(d.Missions.RejectSubmission))

	// Leaderboard routes
	api.HandleFunc("GET /api/leaderboard/students", superseding("leaderboard:students", d.Leaderboards.Students))
	api.HandleFunc("GET /api/leaderboard/students/rank", superseding("leaderboard:rank", d.Leaderboards.StudentRank))
	api.HandleFunc("GET /api/leaderboard/organizations", superseding("leaderboard:organizations", d.Leaderboards.Organizations))

	// Badge routes
	api.HandleFunc("GET /api/badges", authed(d.Badges.ListBadges))
	api.HandleFunc("GET /api/badges/mine", authed(d.Badges.MyBadges))

	api.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		respondWithError(w, http.StatusNotFound, "Not found", "", nil)
	})

	var apiHandler http.Handler = api
	if d.RequestTimeout > 0 {
		apiHandler = middleware.Timeout(d.RequestTimeout)(apiHandler)
	}

	// Long-lived streams and media transfers stay outside the request timeout
	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", d.Startup.Healthz)
	mux.Handle("GET /ws", d.Startup.RequireReady(m.RequireAuth(d.Realtime.ServeWS)))
	mux.HandleFunc("GET /media/{key...}", d.Media.Serve)
	mux.Handle("POST /api/missions/{id}/submit", d.Startup.RequireReady(authed(d.Missions.SubmitMission)))
	mux.Handle("/", d.Startup.RequireReady(apiHandler))

	return middleware.RequestID(middleware.RealIP(Logging(middleware.Recoverer(mux))))
}
